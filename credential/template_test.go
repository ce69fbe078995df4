package credential

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/weaverun/weave/types"
)

func templateCtx() context.Context {
	ctx := types.WithScope(context.Background(), types.Scope{TenantID: "acme", ProjectID: "proj-1"})
	ctx = types.WithConversationID(ctx, "conv-42")
	ctx = types.WithThreadID(ctx, "thr-7")
	ctx = types.WithAgentID(ctx, "agent-9")
	return ctx
}

func TestExpandParams_KnownPlaceholders(t *testing.T) {
	t.Parallel()

	out := ExpandParams(templateCtx(), map[string]string{
		"path":    "secrets/{{tenant_id}}/{{project_id}}",
		"subject": "{{agent_id}}",
		"scope":   "conv:{{conversation_id}}:thread:{{thread_id}}",
	})

	assert.Equal(t, "secrets/acme/proj-1", out["path"])
	assert.Equal(t, "agent-9", out["subject"])
	assert.Equal(t, "conv:conv-42:thread:thr-7", out["scope"])
}

func TestExpandParams_UnknownPlaceholderLeftIntact(t *testing.T) {
	t.Parallel()

	out := ExpandParams(templateCtx(), map[string]string{
		"path": "secrets/{{vault_role}}/token",
	})
	assert.Equal(t, "secrets/{{vault_role}}/token", out["path"])
}

func TestExpandParams_MissingContextValueLeftIntact(t *testing.T) {
	t.Parallel()

	out := ExpandParams(context.Background(), map[string]string{
		"path": "secrets/{{tenant_id}}",
	})
	assert.Equal(t, "secrets/{{tenant_id}}", out["path"])
}

func TestExpandParams_InnerSpacesAndPlainValues(t *testing.T) {
	t.Parallel()

	out := ExpandParams(templateCtx(), map[string]string{
		"spaced": "{{ tenant_id }}",
		"plain":  "no templates here",
		"empty":  "",
	})
	assert.Equal(t, "acme", out["spaced"])
	assert.Equal(t, "no templates here", out["plain"])
	assert.Equal(t, "", out["empty"])
}

func TestExpandParams_NilParams(t *testing.T) {
	t.Parallel()

	out := ExpandParams(templateCtx(), nil)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}
