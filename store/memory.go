package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/weaverun/weave/types"
)

// Memory is a mutex-protected in-process RecordStore for tests and
// single-binary embedding. Records are copied on the way in and out, so a
// caller can never mutate stored state through a returned pointer.
type Memory struct {
	mu        sync.RWMutex
	servers   map[string]*types.CapabilityServer
	creds     map[string]*types.CredentialReference
	externals map[string]*types.ExternalAgent
	internals map[string]*types.InternalAgent
	relations map[string]*types.AgentRelation
}

var _ RecordStore = (*Memory)(nil)

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		servers:   make(map[string]*types.CapabilityServer),
		creds:     make(map[string]*types.CredentialReference),
		externals: make(map[string]*types.ExternalAgent),
		internals: make(map[string]*types.InternalAgent),
		relations: make(map[string]*types.AgentRelation),
	}
}

func recordKey(scope types.Scope, id string) string {
	return scope.TenantID + "/" + scope.ProjectID + "/" + id
}

// PutCapabilityServer inserts or replaces a server record.
func (m *Memory) PutCapabilityServer(server *types.CapabilityServer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.servers[recordKey(server.Scope(), server.ID)] = cloneServer(server)
}

// PutCredentialReference inserts or replaces a credential reference.
func (m *Memory) PutCredentialReference(ref *types.CredentialReference) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[recordKey(ref.Scope(), ref.ID)] = cloneCredential(ref)
}

// PutExternalAgent inserts or replaces an external agent record.
func (m *Memory) PutExternalAgent(agent *types.ExternalAgent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.externals[recordKey(agent.Scope(), agent.ID)] = cloneExternal(agent)
}

// PutInternalAgent inserts or replaces an internal agent record.
func (m *Memory) PutInternalAgent(agent *types.InternalAgent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.internals[recordKey(agent.Scope(), agent.ID)] = cloneInternal(agent)
}

// PutAgentRelation inserts or replaces a relation record.
func (m *Memory) PutAgentRelation(relation *types.AgentRelation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relations[recordKey(relation.Scope(), relation.ID)] = cloneRelation(relation)
}

func (m *Memory) GetCapabilityServer(_ context.Context, scope types.Scope, id string) (*types.CapabilityServer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	server, ok := m.servers[recordKey(scope, id)]
	if !ok {
		return nil, fmt.Errorf("capability server %s: %w", id, ErrNotFound)
	}
	return cloneServer(server), nil
}

func (m *Memory) ListCapabilityServers(_ context.Context, scope types.Scope) ([]*types.CapabilityServer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var servers []*types.CapabilityServer
	for _, s := range m.servers {
		if s.TenantID == scope.TenantID && s.ProjectID == scope.ProjectID {
			servers = append(servers, cloneServer(s))
		}
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].Name < servers[j].Name })
	return servers, nil
}

func (m *Memory) UpdateCapabilityServerStatus(_ context.Context, scope types.Scope, id string, update StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	server, ok := m.servers[recordKey(scope, id)]
	if !ok {
		return fmt.Errorf("capability server %s: %w", id, ErrNotFound)
	}
	server.Status = update.Status
	server.LastError = update.LastError
	checked := update.CheckedAt
	server.LastCheckedAt = &checked
	if update.Capabilities != nil {
		server.Capabilities = *update.Capabilities
	}
	if update.Tools != nil {
		server.Tools = append([]types.ToolSchema{}, update.Tools...)
	}
	if update.ToolsSyncedAt != nil {
		synced := *update.ToolsSyncedAt
		server.ToolsSyncedAt = &synced
	}
	server.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) GetCredentialReference(_ context.Context, scope types.Scope, id string) (*types.CredentialReference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ref, ok := m.creds[recordKey(scope, id)]
	if !ok {
		return nil, fmt.Errorf("credential reference %s: %w", id, ErrNotFound)
	}
	return cloneCredential(ref), nil
}

func (m *Memory) GetExternalAgent(_ context.Context, scope types.Scope, id string) (*types.ExternalAgent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agent, ok := m.externals[recordKey(scope, id)]
	if !ok {
		return nil, fmt.Errorf("external agent %s: %w", id, ErrNotFound)
	}
	return cloneExternal(agent), nil
}

func (m *Memory) GetInternalAgent(_ context.Context, scope types.Scope, id string) (*types.InternalAgent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agent, ok := m.internals[recordKey(scope, id)]
	if !ok {
		return nil, fmt.Errorf("internal agent %s: %w", id, ErrNotFound)
	}
	return cloneInternal(agent), nil
}

func (m *Memory) GetAgentRelation(_ context.Context, scope types.Scope, id string) (*types.AgentRelation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	relation, ok := m.relations[recordKey(scope, id)]
	if !ok {
		return nil, fmt.Errorf("agent relation %s: %w", id, ErrNotFound)
	}
	return cloneRelation(relation), nil
}

func (m *Memory) ListAgentRelations(_ context.Context, scope types.Scope, graphID, sourceAgentID string) ([]*types.AgentRelation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var relations []*types.AgentRelation
	for _, r := range m.relations {
		if r.TenantID != scope.TenantID || r.ProjectID != scope.ProjectID {
			continue
		}
		if graphID != "" && r.GraphID != graphID {
			continue
		}
		if sourceAgentID != "" && r.SourceAgentID != sourceAgentID {
			continue
		}
		relations = append(relations, cloneRelation(r))
	}
	sort.Slice(relations, func(i, j int) bool { return relations[i].ID < relations[j].ID })
	return relations, nil
}

// ---------------------------------------------------------------------------
// Record copies
// ---------------------------------------------------------------------------

func cloneServer(s *types.CapabilityServer) *types.CapabilityServer {
	cp := *s
	cp.StaticHeaders = cloneStringMap(s.StaticHeaders)
	cp.ToolSelection.Tools = append([]string(nil), s.ToolSelection.Tools...)
	cp.Tools = append([]types.ToolSchema(nil), s.Tools...)
	cp.LastCheckedAt = cloneTime(s.LastCheckedAt)
	cp.ToolsSyncedAt = cloneTime(s.ToolsSyncedAt)
	return &cp
}

func cloneCredential(c *types.CredentialReference) *types.CredentialReference {
	cp := *c
	cp.Params = cloneStringMap(c.Params)
	return &cp
}

func cloneExternal(a *types.ExternalAgent) *types.ExternalAgent {
	cp := *a
	cp.StaticHeaders = cloneStringMap(a.StaticHeaders)
	return &cp
}

func cloneInternal(a *types.InternalAgent) *types.InternalAgent {
	cp := *a
	return &cp
}

func cloneRelation(r *types.AgentRelation) *types.AgentRelation {
	cp := *r
	if r.TargetInternalID != nil {
		v := *r.TargetInternalID
		cp.TargetInternalID = &v
	}
	if r.TargetExternalID != nil {
		v := *r.TargetExternalID
		cp.TargetExternalID = &v
	}
	return &cp
}

func cloneStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
