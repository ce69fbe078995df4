package credential

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Sentinel errors for the credential package.
var (
	// ErrStoreNotFound indicates the registry has no store under the
	// requested id.
	ErrStoreNotFound = errors.New("credential: store not found")
)

// Store is a pluggable secret backend. Given a set of retrieval parameters
// (already template-expanded), it produces concrete request headers. Stores
// may read call-scoped values (tenant, conversation) from the context.
type Store interface {
	Resolve(ctx context.Context, params map[string]string) (map[string]string, error)
}

// Registry is a lookup of named secret backends. The built-in static, env,
// and jwt stores are registered on construction; callers add their own with
// Register.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]Store
	logger *zap.Logger
}

// NewRegistry creates a registry with the built-in stores registered.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		stores: make(map[string]Store),
		logger: logger.With(zap.String("component", "credential_registry")),
	}
	r.Register("static", NewStaticStore())
	r.Register("env", NewEnvStore())
	r.Register("jwt", NewJWTStore())
	return r
}

// Register adds or replaces a store under the given id.
func (r *Registry) Register(id string, store Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[id] = store
	r.logger.Debug("credential store registered", zap.String("store_id", id))
}

// Get returns the store registered under id.
func (r *Registry) Get(id string) (Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	store, ok := r.stores[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, id)
	}
	return store, nil
}

// IDs returns the registered store ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.stores))
	for id := range r.stores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
