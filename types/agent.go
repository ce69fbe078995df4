package types

import (
	"context"
	"time"
)

// Executor is the minimal in-process agent execution interface. Internal
// delegation targets implement it; the runtime dispatches transfer and
// delegate payloads through Execute without a network hop.
type Executor interface {
	// ID returns the agent's unique identifier.
	ID() string
	// Execute runs the agent with the given input and returns the result.
	Execute(ctx context.Context, input any) (any, error)
}

// Named is an optional interface for agents that have a display name.
type Named interface {
	// Name returns the agent's human-readable display name.
	Name() string
}

// ExternalAgent is a peer agent reachable over the network. Outbound calls
// to it resolve authentication material at call time from its static
// headers and optional credential reference.
type ExternalAgent struct {
	ID        string `gorm:"primaryKey;size:64" json:"id"`
	TenantID  string `gorm:"size:64;index:idx_external_agents_scope" json:"tenant_id"`
	ProjectID string `gorm:"size:64;index:idx_external_agents_scope" json:"project_id"`

	Name        string `gorm:"size:128" json:"name"`
	Description string `gorm:"type:text" json:"description,omitempty"`

	Address         string            `gorm:"size:512" json:"address"`
	StaticHeaders   map[string]string `gorm:"serializer:json" json:"static_headers,omitempty"`
	CredentialRefID string            `gorm:"size:64" json:"credential_ref_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Scope returns the tenant/project the agent belongs to.
func (a *ExternalAgent) Scope() Scope {
	return Scope{TenantID: a.TenantID, ProjectID: a.ProjectID}
}

// InternalAgent is an agent that runs in-process within the same graph.
// Reaching it needs no network credentials.
type InternalAgent struct {
	ID        string `gorm:"primaryKey;size:64" json:"id"`
	TenantID  string `gorm:"size:64;index:idx_internal_agents_scope" json:"tenant_id"`
	ProjectID string `gorm:"size:64;index:idx_internal_agents_scope" json:"project_id"`
	GraphID   string `gorm:"size:64;index" json:"graph_id"`

	Name        string `gorm:"size:128" json:"name"`
	Description string `gorm:"type:text" json:"description,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Scope returns the tenant/project the agent belongs to.
func (a *InternalAgent) Scope() Scope {
	return Scope{TenantID: a.TenantID, ProjectID: a.ProjectID}
}

// RelationKind tags a directed agent edge with its handoff semantics.
type RelationKind string

const (
	// RelationTransfer moves the conversation permanently to the target.
	RelationTransfer RelationKind = "transfer"
	// RelationDelegate issues a bounded sub-task and awaits the result.
	RelationDelegate RelationKind = "delegate"
)

// Valid reports whether the relation kind is known.
func (k RelationKind) Valid() bool {
	return k == RelationTransfer || k == RelationDelegate
}

// AgentRelation is a directed edge from a source agent to exactly one
// target, internal or external.
type AgentRelation struct {
	ID        string `gorm:"primaryKey;size:64" json:"id"`
	TenantID  string `gorm:"size:64;index:idx_agent_relations_scope" json:"tenant_id"`
	ProjectID string `gorm:"size:64;index:idx_agent_relations_scope" json:"project_id"`
	GraphID   string `gorm:"size:64;index" json:"graph_id"`

	SourceAgentID string       `gorm:"size:64;index" json:"source_agent_id"`
	Kind          RelationKind `gorm:"size:16" json:"kind"`

	TargetInternalID *string `gorm:"size:64" json:"target_internal_id,omitempty"`
	TargetExternalID *string `gorm:"size:64" json:"target_external_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Scope returns the tenant/project the relation belongs to.
func (r *AgentRelation) Scope() Scope {
	return Scope{TenantID: r.TenantID, ProjectID: r.ProjectID}
}

// IsExternal reports whether the relation targets a networked agent.
func (r *AgentRelation) IsExternal() bool {
	return r.TargetExternalID != nil && *r.TargetExternalID != ""
}

// Validate enforces that exactly one target is set and the kind is known.
func (r *AgentRelation) Validate() error {
	if !r.Kind.Valid() {
		return NewError(ErrInvalidRequest, "relation kind must be transfer or delegate")
	}
	internal := r.TargetInternalID != nil && *r.TargetInternalID != ""
	external := r.TargetExternalID != nil && *r.TargetExternalID != ""
	if internal == external {
		return NewError(ErrInvalidRequest,
			"relation must target exactly one of internal or external agent")
	}
	if r.SourceAgentID == "" {
		return NewError(ErrInvalidRequest, "relation source agent id is required")
	}
	return nil
}
