package delegation

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/weaverun/weave/types"
)

// Dispatcher routes a delegation payload to an agent hosted in this
// process. Internal targets are reached through it instead of the network,
// so no credential resolution happens on that path.
type Dispatcher interface {
	Dispatch(ctx context.Context, agentID string, input any) (any, error)
}

// LocalDispatcher is a registry of in-process executors keyed by agent id.
// The graph runtime registers an executor per hosted agent before actions
// built against those agents fire.
type LocalDispatcher struct {
	mu        sync.RWMutex
	executors map[string]types.Executor
	logger    *zap.Logger
}

var _ Dispatcher = (*LocalDispatcher)(nil)

// NewLocalDispatcher creates an empty dispatcher.
func NewLocalDispatcher(logger *zap.Logger) *LocalDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalDispatcher{
		executors: make(map[string]types.Executor),
		logger:    logger.With(zap.String("component", "local_dispatcher")),
	}
}

// Register adds or replaces the executor for its agent id. A nil executor
// or an executor without an id is ignored.
func (d *LocalDispatcher) Register(exec types.Executor) {
	if exec == nil || exec.ID() == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.executors[exec.ID()] = exec
	d.logger.Debug("executor registered", zap.String("agent_id", exec.ID()))
}

// Deregister removes the executor for the agent id, if present.
func (d *LocalDispatcher) Deregister(agentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.executors, agentID)
}

// IDs returns the registered agent ids in sorted order.
func (d *LocalDispatcher) IDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.executors))
	for id := range d.executors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dispatch runs the registered executor for agentID with the given input.
// An id with no executor is a wiring failure: the record store knows the
// agent but this process does not host it.
func (d *LocalDispatcher) Dispatch(ctx context.Context, agentID string, input any) (any, error) {
	d.mu.RLock()
	exec, ok := d.executors[agentID]
	d.mu.RUnlock()
	if !ok {
		return nil, types.NewError(types.ErrInternalError,
			"internal agent "+agentID+" is not hosted in this process")
	}
	return exec.Execute(ctx, input)
}
