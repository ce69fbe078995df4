// Package store persists the records the runtime resolves at call time:
// capability servers, credential references, agents, and the relations
// between them. All lookups are scoped by tenant/project; the only write
// path the runtime itself exercises is the health manager's status update,
// applied last-writer-wins.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/weaverun/weave/types"
)

// ErrNotFound is returned when no record matches the id within the scope.
// A record belonging to another tenant/project is reported the same way.
var ErrNotFound = errors.New("store: record not found")

// StatusUpdate carries the outcome of one health check or discovery run
// against a capability server. Status, LastError, and CheckedAt are always
// written. The remaining fields are optional: a nil Capabilities, nil
// Tools, or nil ToolsSyncedAt leaves the stored value untouched, so a
// plain health check can record its result without clobbering the cached
// catalog. A non-nil empty Tools slice clears the catalog.
type StatusUpdate struct {
	Status    types.ServerStatus
	LastError string
	CheckedAt time.Time

	Capabilities  *types.ServerCapabilities
	Tools         []types.ToolSchema
	ToolsSyncedAt *time.Time
}

// RecordStore is the persistence surface the runtime consumes.
type RecordStore interface {
	GetCapabilityServer(ctx context.Context, scope types.Scope, id string) (*types.CapabilityServer, error)
	ListCapabilityServers(ctx context.Context, scope types.Scope) ([]*types.CapabilityServer, error)
	UpdateCapabilityServerStatus(ctx context.Context, scope types.Scope, id string, update StatusUpdate) error

	GetCredentialReference(ctx context.Context, scope types.Scope, id string) (*types.CredentialReference, error)

	GetExternalAgent(ctx context.Context, scope types.Scope, id string) (*types.ExternalAgent, error)
	GetInternalAgent(ctx context.Context, scope types.Scope, id string) (*types.InternalAgent, error)

	GetAgentRelation(ctx context.Context, scope types.Scope, id string) (*types.AgentRelation, error)
	// ListAgentRelations returns the relations within the scope, optionally
	// narrowed to one graph and/or one source agent. Empty filter values
	// match everything.
	ListAgentRelations(ctx context.Context, scope types.Scope, graphID, sourceAgentID string) ([]*types.AgentRelation, error)
}
