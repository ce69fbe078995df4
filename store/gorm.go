package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/weaverun/weave/internal/metrics"
	"github.com/weaverun/weave/types"
)

// AutoMigrate creates or updates the record tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&types.CapabilityServer{},
		&types.CredentialReference{},
		&types.ExternalAgent{},
		&types.InternalAgent{},
		&types.AgentRelation{},
	); err != nil {
		return fmt.Errorf("migrate record tables: %w", err)
	}
	return nil
}

// Gorm is the relational RecordStore. It works against any dialector the
// database layer can open; tests use the pure-Go sqlite driver.
type Gorm struct {
	db        *gorm.DB
	collector *metrics.Collector
}

var _ RecordStore = (*Gorm)(nil)

// GormOption configures a Gorm store.
type GormOption func(*Gorm)

// WithMetrics records query timings on the collector.
func WithMetrics(c *metrics.Collector) GormOption {
	return func(g *Gorm) { g.collector = c }
}

// NewGorm wraps an open database handle.
func NewGorm(db *gorm.DB, opts ...GormOption) *Gorm {
	g := &Gorm{db: db}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gorm) scoped(ctx context.Context, scope types.Scope) *gorm.DB {
	return g.db.WithContext(ctx).
		Where("tenant_id = ? AND project_id = ?", scope.TenantID, scope.ProjectID)
}

// observe times one query when metrics are wired; meant to be deferred.
func (g *Gorm) observe(op string, start time.Time) {
	if g.collector != nil {
		g.collector.RecordDBQuery("records", op, time.Since(start))
	}
}

// GetCapabilityServer loads one server record within the scope.
func (g *Gorm) GetCapabilityServer(ctx context.Context, scope types.Scope, id string) (*types.CapabilityServer, error) {
	defer g.observe("get_capability_server", time.Now())
	var server types.CapabilityServer
	err := g.scoped(ctx, scope).Where("id = ?", id).First(&server).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("capability server %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load capability server %s: %w", id, err)
	}
	return &server, nil
}

// ListCapabilityServers returns every server in the scope, ordered by name.
func (g *Gorm) ListCapabilityServers(ctx context.Context, scope types.Scope) ([]*types.CapabilityServer, error) {
	defer g.observe("list_capability_servers", time.Now())
	var servers []*types.CapabilityServer
	err := g.scoped(ctx, scope).Order("name ASC").Find(&servers).Error
	if err != nil {
		return nil, fmt.Errorf("list capability servers: %w", err)
	}
	return servers, nil
}

// UpdateCapabilityServerStatus applies one check outcome. Last writer wins:
// there is no version column because a server's status is owned by its own
// check and concurrent checks of the same server are not deduplicated.
func (g *Gorm) UpdateCapabilityServerStatus(ctx context.Context, scope types.Scope, id string, update StatusUpdate) error {
	defer g.observe("update_capability_server_status", time.Now())
	checked := update.CheckedAt
	record := types.CapabilityServer{
		Status:        update.Status,
		LastError:     update.LastError,
		LastCheckedAt: &checked,
	}
	fields := []string{"status", "last_error", "last_checked_at"}
	if update.Capabilities != nil {
		record.Capabilities = *update.Capabilities
		fields = append(fields, "capabilities")
	}
	if update.Tools != nil {
		record.Tools = update.Tools
		fields = append(fields, "tools")
	}
	if update.ToolsSyncedAt != nil {
		record.ToolsSyncedAt = update.ToolsSyncedAt
		fields = append(fields, "tools_synced_at")
	}

	res := g.db.WithContext(ctx).Model(&types.CapabilityServer{}).
		Where("id = ? AND tenant_id = ? AND project_id = ?", id, scope.TenantID, scope.ProjectID).
		Select(fields).
		Updates(record)
	if res.Error != nil {
		return fmt.Errorf("update capability server %s status: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("capability server %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetCredentialReference loads one credential reference within the scope.
func (g *Gorm) GetCredentialReference(ctx context.Context, scope types.Scope, id string) (*types.CredentialReference, error) {
	defer g.observe("get_credential_reference", time.Now())
	var ref types.CredentialReference
	err := g.scoped(ctx, scope).Where("id = ?", id).First(&ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("credential reference %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load credential reference %s: %w", id, err)
	}
	return &ref, nil
}

// GetExternalAgent loads one external agent record within the scope.
func (g *Gorm) GetExternalAgent(ctx context.Context, scope types.Scope, id string) (*types.ExternalAgent, error) {
	defer g.observe("get_external_agent", time.Now())
	var agent types.ExternalAgent
	err := g.scoped(ctx, scope).Where("id = ?", id).First(&agent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("external agent %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load external agent %s: %w", id, err)
	}
	return &agent, nil
}

// GetInternalAgent loads one internal agent record within the scope.
func (g *Gorm) GetInternalAgent(ctx context.Context, scope types.Scope, id string) (*types.InternalAgent, error) {
	defer g.observe("get_internal_agent", time.Now())
	var agent types.InternalAgent
	err := g.scoped(ctx, scope).Where("id = ?", id).First(&agent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("internal agent %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load internal agent %s: %w", id, err)
	}
	return &agent, nil
}

// GetAgentRelation loads one relation within the scope.
func (g *Gorm) GetAgentRelation(ctx context.Context, scope types.Scope, id string) (*types.AgentRelation, error) {
	defer g.observe("get_agent_relation", time.Now())
	var relation types.AgentRelation
	err := g.scoped(ctx, scope).Where("id = ?", id).First(&relation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("agent relation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load agent relation %s: %w", id, err)
	}
	return &relation, nil
}

// ListAgentRelations returns the scope's relations, optionally narrowed to
// one graph and/or one source agent.
func (g *Gorm) ListAgentRelations(ctx context.Context, scope types.Scope, graphID, sourceAgentID string) ([]*types.AgentRelation, error) {
	defer g.observe("list_agent_relations", time.Now())
	q := g.scoped(ctx, scope)
	if graphID != "" {
		q = q.Where("graph_id = ?", graphID)
	}
	if sourceAgentID != "" {
		q = q.Where("source_agent_id = ?", sourceAgentID)
	}
	var relations []*types.AgentRelation
	if err := q.Order("id ASC").Find(&relations).Error; err != nil {
		return nil, fmt.Errorf("list agent relations: %w", err)
	}
	return relations, nil
}
