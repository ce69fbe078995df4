package types

import (
	"fmt"
	"time"
)

// TransportKind selects the wire mechanism used to reach a capability server.
type TransportKind string

const (
	// TransportStreamableHTTP streams request/response pairs over HTTP POST.
	TransportStreamableHTTP TransportKind = "streamable-http"
	// TransportSSE receives messages over a server-sent event stream and
	// sends over a companion POST endpoint.
	TransportSSE TransportKind = "sse"
	// TransportWebSocket exchanges messages over a WebSocket connection.
	TransportWebSocket TransportKind = "websocket"
)

// Valid reports whether the transport kind is one the runtime can open.
func (k TransportKind) Valid() bool {
	switch k {
	case TransportStreamableHTTP, TransportSSE, TransportWebSocket:
		return true
	}
	return false
}

// ServerStatus is the health state of a capability server as recorded by the
// last check. Informational only: tool calls are never gated on it.
type ServerStatus string

const (
	ServerStatusUnknown   ServerStatus = "unknown"
	ServerStatusHealthy   ServerStatus = "healthy"
	ServerStatusUnhealthy ServerStatus = "unhealthy"
	ServerStatusNeedsAuth ServerStatus = "needs_auth"
)

// ToolSelectionType distinguishes "expose everything" from an allow-list.
type ToolSelectionType string

const (
	ToolSelectionAll       ToolSelectionType = "all"
	ToolSelectionSelective ToolSelectionType = "selective"
)

// ToolSelection is a server's configured tool exposure policy.
type ToolSelection struct {
	Type  ToolSelectionType `json:"type" yaml:"type"`
	Tools []string          `json:"tools,omitempty" yaml:"tools,omitempty"`
}

// SelectAll reports whether the policy exposes the full advertised catalog.
func (s ToolSelection) SelectAll() bool {
	return s.Type == "" || s.Type == ToolSelectionAll
}

// ServerCapabilities records which protocol features a server supports.
// Only tools are consumed today; the remaining flags are recorded for
// forward compatibility and are always false.
type ServerCapabilities struct {
	Tools     bool `json:"tools"`
	Resources bool `json:"resources"`
	Prompts   bool `json:"prompts"`
	Logging   bool `json:"logging"`
}

// CapabilityServer is one external tool endpoint. Status, capabilities, and
// the cached catalog are mutated only by health checks and discovery, never
// by an in-flight tool call; they are eventually-consistent snapshots.
type CapabilityServer struct {
	ID        string `gorm:"primaryKey;size:64" json:"id"`
	TenantID  string `gorm:"size:64;index:idx_capability_servers_scope" json:"tenant_id"`
	ProjectID string `gorm:"size:64;index:idx_capability_servers_scope" json:"project_id"`
	Name      string `gorm:"size:128" json:"name"`

	Transport       TransportKind     `gorm:"size:32" json:"transport"`
	Endpoint        string            `gorm:"size:512" json:"endpoint"`
	StaticHeaders   map[string]string `gorm:"serializer:json" json:"static_headers,omitempty"`
	CredentialRefID string            `gorm:"size:64" json:"credential_ref_id,omitempty"`
	ToolSelection   ToolSelection     `gorm:"serializer:json" json:"tool_selection"`

	Status        ServerStatus       `gorm:"size:16;default:unknown" json:"status"`
	Capabilities  ServerCapabilities `gorm:"serializer:json" json:"capabilities"`
	Tools         []ToolSchema       `gorm:"serializer:json" json:"tools,omitempty"`
	LastError     string             `gorm:"type:text" json:"last_error,omitempty"`
	LastCheckedAt *time.Time         `json:"last_checked_at,omitempty"`
	ToolsSyncedAt *time.Time         `json:"tools_synced_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Scope returns the tenant/project the server belongs to.
func (s *CapabilityServer) Scope() Scope {
	return Scope{TenantID: s.TenantID, ProjectID: s.ProjectID}
}

// Validate checks the fields the runtime needs to open a connection.
func (s *CapabilityServer) Validate() error {
	if s.ID == "" {
		return NewError(ErrInvalidRequest, "capability server id is required")
	}
	if s.Endpoint == "" {
		return NewError(ErrInvalidRequest, "capability server endpoint is required")
	}
	if !s.Transport.Valid() {
		return NewError(ErrInvalidRequest,
			fmt.Sprintf("unsupported transport kind %q", s.Transport))
	}
	return nil
}
