// Package credential resolves logical credential references into concrete
// request authentication material at call time.
//
// A destination (capability server or external agent) carries an optional
// static header set and an optional reference to a secret backend. The
// Resolver merges the two into the header map attached to the outbound
// call: static headers first, store-resolved headers on top, resolved
// values winning on key collision because they represent the authoritative,
// possibly-rotated credential. The material is call-scoped and never
// persisted.
package credential

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/weaverun/weave/internal/metrics"
	"github.com/weaverun/weave/types"
)

// ReferenceLookup fetches a stored credential reference by id within a
// tenant/project scope.
type ReferenceLookup interface {
	GetCredentialReference(ctx context.Context, scope types.Scope, id string) (*types.CredentialReference, error)
}

// Resolver produces the header map for an outbound call.
type Resolver struct {
	registry  *Registry
	refs      ReferenceLookup
	collector *metrics.Collector
	logger    *zap.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithMetrics records resolution outcomes on the collector.
func WithMetrics(c *metrics.Collector) ResolverOption {
	return func(r *Resolver) { r.collector = c }
}

// NewResolver creates a resolver. registry and refs may be nil for call
// paths that never use credential references; resolving a reference through
// a nil dependency is reported as a contract violation, not a user error.
func NewResolver(registry *Registry, refs ReferenceLookup, logger *zap.Logger, opts ...ResolverOption) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{
		registry: registry,
		refs:     refs,
		logger:   logger.With(zap.String("component", "credential_resolver")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveHeaders combines a destination's static headers with material from
// its credential reference, if any. The returned map is freshly allocated;
// callers own it for the duration of one call.
//
// With an empty refID the static headers are returned unchanged. With a
// refID, the reference is looked up (ErrCredentialNotFound when absent),
// its retrieval params are template-expanded from the call context, and the
// named store resolves them; resolved values override static ones.
func (r *Resolver) ResolveHeaders(ctx context.Context, static map[string]string, refID string) (headers map[string]string, err error) {
	if r != nil && r.collector != nil {
		source := "reference"
		if refID == "" {
			source = "static"
		}
		defer func() {
			status := "ok"
			if err != nil {
				status = "error"
			}
			r.collector.RecordCredentialResolution(source, status)
		}()
	}

	headers = make(map[string]string, len(static))
	for k, v := range static {
		headers[k] = v
	}
	if refID == "" {
		return headers, nil
	}

	if r == nil || r.registry == nil {
		return nil, types.NewError(types.ErrStoreUnavailable,
			"credential registry not configured for a call that needs one")
	}
	if r.refs == nil {
		return nil, types.NewError(types.ErrStoreUnavailable,
			"credential reference lookup not configured for a call that needs one")
	}

	ref, err := r.refs.GetCredentialReference(ctx, types.ScopeFrom(ctx), refID)
	if err != nil || ref == nil {
		return nil, types.NewError(types.ErrCredentialNotFound,
			fmt.Sprintf("credential reference %s not found", refID)).WithCause(err)
	}

	store, err := r.registry.Get(ref.StoreID)
	if err != nil {
		return nil, types.NewError(types.ErrStoreUnavailable,
			fmt.Sprintf("credential store %s is not registered", ref.StoreID)).WithCause(err)
	}

	params := ExpandParams(ctx, ref.Params)
	resolved, err := store.Resolve(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("resolve credential %s via store %s: %w", refID, ref.StoreID, err)
	}

	for k, v := range resolved {
		headers[k] = v
	}

	r.logger.Debug("credentials resolved",
		zap.String("ref_id", refID),
		zap.String("store_id", ref.StoreID),
		zap.Int("header_count", len(headers)))

	return headers, nil
}
