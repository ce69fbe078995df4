package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyTraceID        contextKey = "trace_id"
	keyTenantID       contextKey = "tenant_id"
	keyProjectID      contextKey = "project_id"
	keyConversationID contextKey = "conversation_id"
	keyThreadID       contextKey = "thread_id"
	keyAgentID        contextKey = "agent_id"
)

// Scope identifies the tenant/project a record or call belongs to.
type Scope struct {
	TenantID  string `json:"tenant_id"`
	ProjectID string `json:"project_id"`
}

// WithScope adds tenant and project IDs to context.
func WithScope(ctx context.Context, scope Scope) context.Context {
	ctx = context.WithValue(ctx, keyTenantID, scope.TenantID)
	return context.WithValue(ctx, keyProjectID, scope.ProjectID)
}

// ScopeFrom extracts the call scope from context. Missing values are empty.
func ScopeFrom(ctx context.Context) Scope {
	tenant, _ := TenantID(ctx)
	project, _ := ProjectID(ctx)
	return Scope{TenantID: tenant, ProjectID: project}
}

// WithTraceID adds trace ID to context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

// TraceID extracts trace ID from context.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTraceID).(string)
	return v, ok && v != ""
}

// TenantID extracts tenant ID from context.
func TenantID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTenantID).(string)
	return v, ok && v != ""
}

// ProjectID extracts project ID from context.
func ProjectID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyProjectID).(string)
	return v, ok && v != ""
}

// WithConversationID adds conversation ID to context.
func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyConversationID, id)
}

// ConversationID extracts conversation ID from context.
func ConversationID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyConversationID).(string)
	return v, ok && v != ""
}

// WithThreadID adds thread ID to context.
func WithThreadID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyThreadID, id)
}

// ThreadID extracts thread ID from context.
func ThreadID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyThreadID).(string)
	return v, ok && v != ""
}

// WithAgentID adds the calling agent's ID to context.
func WithAgentID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyAgentID, id)
}

// AgentID extracts the calling agent's ID from context.
func AgentID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyAgentID).(string)
	return v, ok && v != ""
}
