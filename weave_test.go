package weave

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaverun/weave/config"
	"github.com/weaverun/weave/conversation"
	"github.com/weaverun/weave/credential"
	"github.com/weaverun/weave/internal/server"
	"github.com/weaverun/weave/store"
	"github.com/weaverun/weave/testutil"
	"github.com/weaverun/weave/types"
)

func newMemoryRuntime(t *testing.T, cfg *config.Config, opts ...Option) *Runtime {
	t.Helper()
	opts = append([]Option{
		WithRecordStore(store.NewMemory()),
		WithMessageStore(conversation.NewMemoryStore()),
	}, opts...)

	rt, err := New(testutil.TestContext(t), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, rt.Close()) })
	return rt
}

func TestNew_MemoryBacked(t *testing.T) {
	rt := newMemoryRuntime(t, nil)

	assert.NotNil(t, rt.Records())
	assert.NotNil(t, rt.Messages())
	assert.NotNil(t, rt.Credentials())
	assert.NotNil(t, rt.Resolver())
	assert.NotNil(t, rt.Capability())
	assert.NotNil(t, rt.Health())
	assert.NotNil(t, rt.Dispatcher())
	assert.NotNil(t, rt.Delegation())

	// No sweep scopes configured, so no scheduler.
	assert.Nil(t, rt.scheduler)

	ids := rt.Credentials().IDs()
	assert.Equal(t, []string{"env", "jwt", "static"}, ids)
}

func TestNew_SchedulerNeedsScopes(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Health.Scopes = []string{"acme/prod", "acme/staging"}
	rt := newMemoryRuntime(t, cfg)
	assert.NotNil(t, rt.scheduler)

	// Start and stop through the runtime; Close stops it again, which
	// must be safe.
	rt.StartHealthSweeps(testutil.TestContext(t))
	require.NoError(t, rt.Close())
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Conversation.Backend = "etcd"

	_, err := New(testutil.TestContext(t), cfg, WithRecordStore(store.NewMemory()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown conversation backend")
}

func TestNew_MalformedScope(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Health.Scopes = []string{"acme"}

	_, err := New(testutil.TestContext(t), cfg,
		WithRecordStore(store.NewMemory()),
		WithMessageStore(conversation.NewMemoryStore()),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid health scope "acme"`)
}

func TestNew_ExtraCredentialStore(t *testing.T) {
	rt := newMemoryRuntime(t, nil,
		WithCredentialStore("vault", credential.NewStaticStore()),
	)
	assert.Equal(t, []string{"env", "jwt", "static", "vault"}, rt.Credentials().IDs())
}

func TestParseScopes(t *testing.T) {
	scopes, err := parseScopes([]string{"acme/prod", "globex/dev"})
	require.NoError(t, err)
	assert.Equal(t, []types.Scope{
		{TenantID: "acme", ProjectID: "prod"},
		{TenantID: "globex", ProjectID: "dev"},
	}, scopes)

	for _, bad := range []string{"", "acme", "/prod", "acme/"} {
		_, err := parseScopes([]string{bad})
		assert.Error(t, err, "scope %q", bad)
	}
}

func TestRuntime_OpsHandler(t *testing.T) {
	rt := newMemoryRuntime(t, nil)
	handler := rt.OpsHandler(server.BuildInfo{Version: "0.3.0", Commit: "f00dcafe"})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Memory stores always pass readiness.
	resp, err = http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRuntime_CloseIdempotent(t *testing.T) {
	rt, err := New(testutil.TestContext(t), nil,
		WithRecordStore(store.NewMemory()),
		WithMessageStore(conversation.NewMemoryStore()),
	)
	require.NoError(t, err)
	require.NoError(t, rt.Close())
	require.NoError(t, rt.Close())
}
