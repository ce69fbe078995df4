package credential

import (
	"context"
	"regexp"

	"github.com/weaverun/weave/types"
)

// placeholderPattern matches {{ name }} with optional inner spaces.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.-]+)\s*\}\}`)

// ExpandParams substitutes {{placeholder}} occurrences in retrieval
// parameter values with call-scoped context values. Recognized
// placeholders: tenant_id, project_id, conversation_id, thread_id,
// agent_id, trace_id. Unknown placeholders are left intact so stores can
// apply their own templating downstream.
func ExpandParams(ctx context.Context, params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	if len(params) == 0 {
		return out
	}

	values := contextValues(ctx)
	for key, value := range params {
		out[key] = placeholderPattern.ReplaceAllStringFunc(value, func(match string) string {
			name := placeholderPattern.FindStringSubmatch(match)[1]
			if v, ok := values[name]; ok {
				return v
			}
			return match
		})
	}
	return out
}

func contextValues(ctx context.Context) map[string]string {
	values := make(map[string]string, 6)
	if v, ok := types.TenantID(ctx); ok {
		values["tenant_id"] = v
	}
	if v, ok := types.ProjectID(ctx); ok {
		values["project_id"] = v
	}
	if v, ok := types.ConversationID(ctx); ok {
		values["conversation_id"] = v
	}
	if v, ok := types.ThreadID(ctx); ok {
		values["thread_id"] = v
	}
	if v, ok := types.AgentID(ctx); ok {
		values["agent_id"] = v
	}
	if v, ok := types.TraceID(ctx); ok {
		values["trace_id"] = v
	}
	return values
}
