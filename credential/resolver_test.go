package credential

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/weaverun/weave/internal/metrics"
	"github.com/weaverun/weave/types"
)

var resolverTestMetrics = metrics.NewCollector("weavetestcredential", zap.NewNop())

// fakeRefLookup serves credential references from a map.
type fakeRefLookup struct {
	refs map[string]*types.CredentialReference
}

func (f *fakeRefLookup) GetCredentialReference(_ context.Context, _ types.Scope, id string) (*types.CredentialReference, error) {
	ref, ok := f.refs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return ref, nil
}

// fakeStore returns a fixed header map or error.
type fakeStore struct {
	headers map[string]string
	err     error

	gotParams map[string]string
}

func (f *fakeStore) Resolve(_ context.Context, params map[string]string) (map[string]string, error) {
	f.gotParams = params
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]string, len(f.headers))
	for k, v := range f.headers {
		out[k] = v
	}
	return out, nil
}

func newTestResolver(store Store, refs map[string]*types.CredentialReference) *Resolver {
	registry := NewRegistry(nil)
	if store != nil {
		registry.Register("test", store)
	}
	return NewResolver(registry, &fakeRefLookup{refs: refs}, nil, WithMetrics(resolverTestMetrics))
}

func TestResolveHeaders_NoReferenceReturnsStatic(t *testing.T) {
	t.Parallel()

	resolver := newTestResolver(nil, nil)
	static := map[string]string{"X-Custom": "v", "Accept": "application/json"}

	headers, err := resolver.ResolveHeaders(context.Background(), static, "")
	require.NoError(t, err)
	assert.Equal(t, static, headers)

	// the result is a copy, not the caller's map
	headers["X-Custom"] = "mutated"
	assert.Equal(t, "v", static["X-Custom"])
}

func TestResolveHeaders_NilStaticNoReference(t *testing.T) {
	t.Parallel()

	resolver := newTestResolver(nil, nil)
	headers, err := resolver.ResolveHeaders(context.Background(), nil, "")
	require.NoError(t, err)
	require.NotNil(t, headers)
	assert.Empty(t, headers)
}

func TestResolveHeaders_ResolvedWinsOnCollision(t *testing.T) {
	t.Parallel()

	store := &fakeStore{headers: map[string]string{
		"Authorization": "Bearer t",
		"X-Custom":      "override",
	}}
	resolver := newTestResolver(store, map[string]*types.CredentialReference{
		"ref-1": {ID: "ref-1", StoreID: "test"},
	})

	headers, err := resolver.ResolveHeaders(context.Background(),
		map[string]string{"X-Custom": "v"}, "ref-1")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"X-Custom":      "override",
		"Authorization": "Bearer t",
	}, headers)
}

func TestResolveHeaders_ReferenceNotFound(t *testing.T) {
	t.Parallel()

	resolver := newTestResolver(&fakeStore{}, nil)
	_, err := resolver.ResolveHeaders(context.Background(), nil, "missing")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCredentialNotFound))
}

func TestResolveHeaders_NilRegistryIsContractViolation(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(nil, &fakeRefLookup{}, nil)
	_, err := resolver.ResolveHeaders(context.Background(), nil, "ref-1")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrStoreUnavailable))
}

func TestResolveHeaders_UnknownStoreID(t *testing.T) {
	t.Parallel()

	resolver := newTestResolver(nil, map[string]*types.CredentialReference{
		"ref-1": {ID: "ref-1", StoreID: "vault"},
	})

	_, err := resolver.ResolveHeaders(context.Background(), nil, "ref-1")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrStoreUnavailable))
	assert.ErrorIs(t, err, ErrStoreNotFound)
}

func TestResolveHeaders_StoreErrorPropagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("backend down")
	resolver := newTestResolver(&fakeStore{err: boom}, map[string]*types.CredentialReference{
		"ref-1": {ID: "ref-1", StoreID: "test"},
	})

	_, err := resolver.ResolveHeaders(context.Background(), nil, "ref-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestResolveHeaders_ParamsAreExpandedBeforeStore(t *testing.T) {
	t.Parallel()

	store := &fakeStore{headers: map[string]string{}}
	resolver := newTestResolver(store, map[string]*types.CredentialReference{
		"ref-1": {
			ID:      "ref-1",
			StoreID: "test",
			Params:  map[string]string{"path": "secrets/{{tenant_id}}/api"},
		},
	})

	ctx := types.WithScope(context.Background(), types.Scope{TenantID: "acme", ProjectID: "p"})
	_, err := resolver.ResolveHeaders(ctx, nil, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, "secrets/acme/api", store.gotParams["path"])
}

// genHeaderMap generates small header maps with plausible names and values.
func genHeaderMap() *rapid.Generator[map[string]string] {
	return rapid.MapOfN(
		rapid.StringMatching(`[A-Z][a-zA-Z-]{1,20}`),
		rapid.StringMatching(`[a-zA-Z0-9 ._-]{0,30}`),
		0, 8,
	)
}

func TestResolveHeaders_MergeProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		static := genHeaderMap().Draw(t, "static")
		resolved := genHeaderMap().Draw(t, "resolved")

		store := &fakeStore{headers: resolved}
		resolver := newTestResolver(store, map[string]*types.CredentialReference{
			"ref": {ID: "ref", StoreID: "test"},
		})

		merged, err := resolver.ResolveHeaders(context.Background(), static, "ref")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// every resolved key carries the resolved value
		for k, v := range resolved {
			if merged[k] != v {
				t.Fatalf("resolved value lost for %s: got %q want %q", k, merged[k], v)
			}
		}
		// static-only keys keep their static value
		for k, v := range static {
			if _, overridden := resolved[k]; !overridden && merged[k] != v {
				t.Fatalf("static value lost for %s: got %q want %q", k, merged[k], v)
			}
		}
		// no keys appear from nowhere
		if len(merged) > len(static)+len(resolved) {
			t.Fatalf("merged map has extra keys: %d > %d + %d",
				len(merged), len(static), len(resolved))
		}
	})
}

func TestRegistry_GetAndIDs(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(nil)
	assert.Equal(t, []string{"env", "jwt", "static"}, registry.IDs())

	_, err := registry.Get("static")
	require.NoError(t, err)

	_, err = registry.Get("vault")
	require.ErrorIs(t, err, ErrStoreNotFound)

	registry.Register("vault", &fakeStore{})
	_, err = registry.Get("vault")
	require.NoError(t, err)
}
