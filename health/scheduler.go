package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/weaverun/weave/store"
	"github.com/weaverun/weave/types"
)

// DefaultSweepInterval is how often the scheduler re-checks every server.
const DefaultSweepInterval = 30 * time.Second

// Scheduler drives periodic health sweeps: every interval it lists the
// capability servers of each configured scope and runs them through
// Manager.CheckAllHealth. The manager's concurrency limit and pacer bound
// the load of a sweep.
type Scheduler struct {
	manager  *Manager
	records  store.RecordStore
	scopes   []types.Scope
	interval time.Duration
	logger   *zap.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler builds a scheduler sweeping the given scopes every interval.
func NewScheduler(manager *Manager, records store.RecordStore, scopes []types.Scope, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		manager:  manager,
		records:  records,
		scopes:   scopes,
		interval: interval,
		logger:   logger.With(zap.String("component", "health_scheduler")),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the sweep loop and returns immediately. The first sweep
// runs right away so fresh deployments get statuses without waiting a full
// interval. Stop or context cancellation ends the loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
	s.logger.Info("health scheduler started",
		zap.Duration("interval", s.interval),
		zap.Int("scopes", len(s.scopes)))
}

// Stop ends the loop and waits for an in-flight sweep to finish. Idempotent
// and safe to call without Start.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep checks every server of every configured scope once.
func (s *Scheduler) sweep(ctx context.Context) {
	for _, scope := range s.scopes {
		servers, err := s.records.ListCapabilityServers(ctx, scope)
		if err != nil {
			s.logger.Warn("list servers for sweep failed",
				zap.String("tenant_id", scope.TenantID),
				zap.String("project_id", scope.ProjectID),
				zap.Error(err))
			continue
		}
		if len(servers) == 0 {
			continue
		}

		outcomes := s.manager.CheckAllHealth(ctx, servers)
		healthy := 0
		for _, o := range outcomes {
			if o.Healthy() {
				healthy++
			}
		}
		s.logger.Debug("sweep complete",
			zap.String("tenant_id", scope.TenantID),
			zap.String("project_id", scope.ProjectID),
			zap.Int("servers", len(servers)),
			zap.Int("healthy", healthy))
	}
}
