// Package health verifies capability servers end-to-end and keeps their
// recorded status and tool catalogs fresh. A probe resolves the server's
// credentials, connects, and lists the catalog, proving the channel past
// the transport handshake. Outcomes are persisted last-writer-wins and
// never gate tool invocation; recorded status is advisory.
package health

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/weaverun/weave/capability"
	"github.com/weaverun/weave/credential"
	"github.com/weaverun/weave/internal/metrics"
	"github.com/weaverun/weave/store"
	"github.com/weaverun/weave/types"
)

const instrumentationName = "github.com/weaverun/weave/health"

// AuthRequiredMessage is the operator-facing status detail recorded when a
// probe fails with an authentication rejection.
const AuthRequiredMessage = "Authentication required - OAuth login needed"

// DefaultConcurrency bounds how many servers CheckAllHealth probes at once.
const DefaultConcurrency = 8

// persistTimeout bounds the status write after a probe, which runs on a
// context detached from the probe's own deadline.
const persistTimeout = 5 * time.Second

// Outcome is the result of one health check or discovery run against a
// single capability server.
type Outcome struct {
	ServerID string             `json:"server_id"`
	Status   types.ServerStatus `json:"status"`
	// LastError is the persisted status detail. Empty when healthy; the
	// fixed auth message for needs_auth; the raw error text otherwise.
	LastError string `json:"last_error,omitempty"`
	// Err is the underlying failure, nil when healthy.
	Err error `json:"-"`
	// Tools is the translated, selection-filtered catalog from a discovery
	// run. Nil for plain health checks; empty after a failed sync.
	Tools     []types.ToolSchema `json:"tools,omitempty"`
	CheckedAt time.Time          `json:"checked_at"`
	Duration  time.Duration      `json:"duration"`
}

// Healthy reports whether the probe passed.
func (o Outcome) Healthy() bool { return o.Status == types.ServerStatusHealthy }

// Manager probes capability servers and records the results. Safe for
// concurrent use; concurrent probes of the same server are not
// deduplicated, the last write wins.
type Manager struct {
	records    store.RecordStore
	resolver   *credential.Resolver
	client     *capability.Client
	classifier Classifier
	collector  *metrics.Collector
	pacer      *rate.Limiter
	tracer     trace.Tracer
	logger     *zap.Logger

	concurrency  int
	checkTimeout time.Duration
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClassifier replaces the failure classifier.
func WithClassifier(c Classifier) ManagerOption {
	return func(m *Manager) {
		if c != nil {
			m.classifier = c
		}
	}
}

// WithConcurrency bounds the CheckAllHealth fan-out.
func WithConcurrency(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// WithCheckTimeout bounds one server's resolve-connect-list-close cycle.
// Zero leaves the capability client's own timeouts as the only bound.
func WithCheckTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.checkTimeout = d }
}

// WithPacer spaces out probe starts during a fan-out so a large fleet is
// not hit all at once.
func WithPacer(l *rate.Limiter) ManagerOption {
	return func(m *Manager) { m.pacer = l }
}

// WithMetrics records probe outcomes on the collector.
func WithMetrics(c *metrics.Collector) ManagerOption {
	return func(m *Manager) { m.collector = c }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager builds a Manager. The resolver may be nil when no server in
// scope uses credential references; a nil client gets default timeouts.
func NewManager(records store.RecordStore, resolver *credential.Resolver, client *capability.Client, opts ...ManagerOption) *Manager {
	m := &Manager{
		records:     records,
		resolver:    resolver,
		client:      client,
		classifier:  HeuristicClassifier{},
		tracer:      otel.Tracer(instrumentationName),
		logger:      zap.NewNop(),
		concurrency: DefaultConcurrency,
	}
	if m.client == nil {
		m.client = capability.NewClient()
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "health_manager"))
	return m
}

// CheckHealth probes one server and records the outcome. The probe lists
// the tool catalog but discards it; only Discover persists catalogs, so a
// routine check never clobbers the cached tools.
func (m *Manager) CheckHealth(ctx context.Context, server *types.CapabilityServer) Outcome {
	outcome := m.probe(ctx, server, false)
	if m.collector != nil {
		m.collector.RecordHealthCheck(string(outcome.Status), outcome.Duration)
	}
	m.persist(ctx, server, outcome, false)
	m.log(server, outcome, "health check")
	return outcome
}

// Discover refreshes the server's cached tool catalog. The catalog and the
// sync timestamp are persisted on success and failure alike, so staleness
// stays measurable: a failed sync records an empty catalog, not the
// previous one.
func (m *Manager) Discover(ctx context.Context, server *types.CapabilityServer) Outcome {
	outcome := m.probe(ctx, server, true)
	if m.collector != nil {
		m.collector.RecordCatalogSync(server.ID, string(outcome.Status), len(outcome.Tools))
	}
	m.persist(ctx, server, outcome, true)
	m.log(server, outcome, "catalog discovery")
	return outcome
}

// CheckAllHealth probes every server concurrently and returns one outcome
// per server, index-aligned with the input. A failure, timeout, or panic
// in one probe never disturbs the others; each outcome is persisted
// independently with no transaction across servers.
func (m *Manager) CheckAllHealth(ctx context.Context, servers []*types.CapabilityServer) []Outcome {
	outcomes := make([]Outcome, len(servers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for i, server := range servers {
		g.Go(func() error {
			if m.pacer != nil {
				// On cancellation the probe itself fails fast and the
				// cancellation is recorded like any other failure.
				_ = m.pacer.Wait(gctx)
			}
			outcomes[i] = m.guardedCheck(gctx, server)
			return nil // collect every outcome; one failed server must not cancel the rest
		})
	}
	_ = g.Wait()
	return outcomes
}

// guardedCheck converts a panicking probe into an unhealthy outcome so a
// misbehaving transport or classifier cannot take down the fan-out.
func (m *Manager) guardedCheck(ctx context.Context, server *types.CapabilityServer) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = Outcome{
				ServerID:  server.ID,
				Status:    types.ServerStatusUnhealthy,
				LastError: fmt.Sprintf("health check panic: %v", r),
				CheckedAt: time.Now().UTC(),
			}
			m.logger.Error("health check panicked",
				zap.String("server_id", server.ID),
				zap.Any("panic", r))
			m.persist(ctx, server, outcome, false)
		}
	}()
	return m.CheckHealth(ctx, server)
}

// probe runs one resolve-connect-list-close cycle and classifies the result.
func (m *Manager) probe(ctx context.Context, server *types.CapabilityServer, full bool) Outcome {
	start := time.Now()
	ctx = types.WithScope(ctx, server.Scope())

	spanName := "health.check"
	if full {
		spanName = "health.discover"
	}
	ctx, span := m.tracer.Start(ctx, spanName,
		trace.WithAttributes(
			attribute.String("server.id", server.ID),
			attribute.String("server.transport", string(server.Transport)),
			attribute.String("tenant.id", server.TenantID)))
	defer span.End()

	if m.checkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.checkTimeout)
		defer cancel()
	}

	tools, err := m.listOnce(ctx, server, full)
	outcome := Outcome{
		ServerID:  server.ID,
		CheckedAt: time.Now().UTC(),
		Duration:  time.Since(start),
	}
	if err == nil {
		outcome.Status = types.ServerStatusHealthy
		outcome.Tools = tools
		span.SetAttributes(attribute.String("server.status", string(outcome.Status)))
		return outcome
	}

	outcome.Err = err
	if m.classifier.Classify(err) == KindAuth {
		outcome.Status = types.ServerStatusNeedsAuth
		outcome.LastError = AuthRequiredMessage
	} else {
		outcome.Status = types.ServerStatusUnhealthy
		outcome.LastError = err.Error()
	}
	if full {
		outcome.Tools = []types.ToolSchema{}
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome.LastError)
	span.SetAttributes(attribute.String("server.status", string(outcome.Status)))
	return outcome
}

// listOnce opens a connection, lists the catalog, and closes. For a plain
// health check the listing result is thrown away; it exists to prove the
// channel works end-to-end rather than just the TCP handshake.
func (m *Manager) listOnce(ctx context.Context, server *types.CapabilityServer, full bool) ([]types.ToolSchema, error) {
	headers, err := m.resolver.ResolveHeaders(ctx, server.StaticHeaders, server.CredentialRefID)
	if err != nil {
		return nil, fmt.Errorf("resolve credentials for %s: %w", server.ID, err)
	}

	conn, err := m.client.Connect(ctx, capability.TargetFor(server, headers))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	descriptors, err := conn.ListCatalog(ctx, nil, server.ToolSelection)
	if err != nil {
		return nil, err
	}
	if !full {
		return nil, nil
	}
	tools := make([]types.ToolSchema, 0, len(descriptors))
	for _, d := range descriptors {
		tools = append(tools, d.ToolSchema())
	}
	return tools, nil
}

// persist records the outcome last-writer-wins. The write runs on a
// context detached from the probe's so a check that timed out still gets
// recorded. Capability flags are only written on success; tools are the
// standing protocol feature, the remaining flags are reserved.
func (m *Manager) persist(ctx context.Context, server *types.CapabilityServer, outcome Outcome, full bool) {
	update := store.StatusUpdate{
		Status:    outcome.Status,
		LastError: outcome.LastError,
		CheckedAt: outcome.CheckedAt,
	}
	if outcome.Healthy() {
		update.Capabilities = &types.ServerCapabilities{Tools: true}
	}
	if full {
		tools := outcome.Tools
		if tools == nil {
			tools = []types.ToolSchema{}
		}
		update.Tools = tools
		syncedAt := outcome.CheckedAt
		update.ToolsSyncedAt = &syncedAt
	}

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := m.records.UpdateCapabilityServerStatus(persistCtx, server.Scope(), server.ID, update); err != nil {
		m.logger.Warn("record status update failed",
			zap.String("server_id", server.ID),
			zap.Error(err))
	}
}

func (m *Manager) log(server *types.CapabilityServer, outcome Outcome, op string) {
	if outcome.Healthy() {
		m.logger.Debug(op+" passed",
			zap.String("server_id", server.ID),
			zap.Duration("duration", outcome.Duration),
			zap.Int("tools", len(outcome.Tools)))
		return
	}
	m.logger.Warn(op+" failed",
		zap.String("server_id", server.ID),
		zap.String("status", string(outcome.Status)),
		zap.Duration("duration", outcome.Duration),
		zap.Error(outcome.Err))
}
