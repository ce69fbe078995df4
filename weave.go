// Package weave assembles the agent-orchestration runtime from one
// configuration: the scoped record store, conversation persistence, the
// credential resolver, the capability client, health checking, and the
// delegation action factory.
//
// Minimal use against an existing database:
//
//	cfg := config.DefaultConfig()
//	cfg.Database.Driver = "sqlite"
//	cfg.Database.Name = "weave.db"
//
//	rt, err := weave.New(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer rt.Close()
//
//	rel, err := rt.Records().GetAgentRelation(ctx, scope, "rel-reviewer")
//	if err != nil {
//		return err
//	}
//	action, err := rt.Delegation().BuildDelegateAction(rel)
//
// A process that hosts internal agents registers their executors on
// Dispatcher before actions against those agents fire.
package weave

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/weaverun/weave/capability"
	"github.com/weaverun/weave/config"
	"github.com/weaverun/weave/conversation"
	"github.com/weaverun/weave/credential"
	"github.com/weaverun/weave/delegation"
	"github.com/weaverun/weave/health"
	"github.com/weaverun/weave/internal/cache"
	"github.com/weaverun/weave/internal/database"
	"github.com/weaverun/weave/internal/metrics"
	"github.com/weaverun/weave/internal/server"
	"github.com/weaverun/weave/store"
	"github.com/weaverun/weave/types"
)

// Option adjusts how New assembles the runtime.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	collector  *metrics.Collector
	records    store.RecordStore
	messages   conversation.Store
	credStores map[string]credential.Store
}

// WithLogger sets the logger every component derives from. The default is
// a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCollector wires Prometheus metrics through every component.
// Collectors register on the default registry, so build at most one per
// process.
func WithCollector(c *metrics.Collector) Option {
	return func(o *options) { o.collector = c }
}

// WithRecordStore replaces the database-backed record store. The database
// section of the configuration is then ignored and no connection pool is
// opened.
func WithRecordStore(s store.RecordStore) Option {
	return func(o *options) { o.records = s }
}

// WithMessageStore replaces the configured conversation backend.
func WithMessageStore(s conversation.Store) Option {
	return func(o *options) { o.messages = s }
}

// WithCredentialStore registers an extra credential backend under id,
// next to the built-in static, env, and jwt stores.
func WithCredentialStore(id string, s credential.Store) Option {
	return func(o *options) {
		if o.credStores == nil {
			o.credStores = make(map[string]credential.Store)
		}
		o.credStores[id] = s
	}
}

// Runtime is the assembled orchestration runtime. Components are wired
// once at construction and safe for concurrent use.
type Runtime struct {
	cfg       *config.Config
	logger    *zap.Logger
	collector *metrics.Collector

	pool     *database.Pool
	cacheMgr *cache.Manager

	records  store.RecordStore
	messages conversation.Store

	registry   *credential.Registry
	resolver   *credential.Resolver
	capability *capability.Client
	health     *health.Manager
	scheduler  *health.Scheduler
	dispatcher *delegation.LocalDispatcher
	factory    *delegation.Factory

	closeOnce sync.Once
	closeErr  error
}

// New wires a Runtime from cfg. A nil cfg gets the defaults; ctx bounds
// the backend dials. Construction fails when a configured backend is
// unreachable, closing whatever was already opened.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}

	rt := &Runtime{cfg: cfg, logger: o.logger, collector: o.collector}

	// Records: an injected store wins over the configured database.
	if o.records != nil {
		rt.records = o.records
	} else {
		pool, err := database.Open(database.Config{
			Driver:          cfg.Database.Driver,
			DSN:             cfg.Database.DSN(),
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		}, o.logger)
		if err != nil {
			return nil, fmt.Errorf("open record store: %w", err)
		}
		rt.pool = pool
		var storeOpts []store.GormOption
		if o.collector != nil {
			storeOpts = append(storeOpts, store.WithMetrics(o.collector))
		}
		rt.records = store.NewGorm(pool.DB(), storeOpts...)
	}

	if o.messages != nil {
		rt.messages = o.messages
	} else {
		messages, err := openMessageStore(ctx, cfg)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("open message store: %w", err)
		}
		rt.messages = messages
	}

	// A redis conversation backend also provides the shared agent-card
	// cache; other backends leave card caching to the per-call clients.
	if cfg.Conversation.Backend == "redis" {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.Addr = cfg.Redis.Addr
		cacheCfg.Password = cfg.Redis.Password
		cacheCfg.DB = cfg.Redis.DB
		cacheCfg.PoolSize = cfg.Redis.PoolSize
		cacheCfg.MinIdleConns = cfg.Redis.MinIdleConns
		if cfg.Runtime.AgentCardTTL > 0 {
			cacheCfg.DefaultTTL = cfg.Runtime.AgentCardTTL
		}
		mgr, err := cache.NewManager(cacheCfg, o.logger)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("open card cache: %w", err)
		}
		rt.cacheMgr = mgr
	}

	rt.registry = credential.NewRegistry(o.logger)
	for id, st := range o.credStores {
		rt.registry.Register(id, st)
	}
	var resolverOpts []credential.ResolverOption
	if o.collector != nil {
		resolverOpts = append(resolverOpts, credential.WithMetrics(o.collector))
	}
	rt.resolver = credential.NewResolver(rt.registry, rt.records, o.logger, resolverOpts...)

	capOpts := []capability.Option{capability.WithLogger(o.logger)}
	if cfg.Runtime.ConnectTimeout > 0 {
		capOpts = append(capOpts, capability.WithConnectTimeout(cfg.Runtime.ConnectTimeout))
	}
	if cfg.Runtime.RequestTimeout > 0 {
		capOpts = append(capOpts, capability.WithRequestTimeout(cfg.Runtime.RequestTimeout))
	}
	if o.collector != nil {
		capOpts = append(capOpts, capability.WithMetrics(o.collector))
	}
	rt.capability = capability.NewClient(capOpts...)

	healthOpts := []health.ManagerOption{
		health.WithLogger(o.logger),
		health.WithCheckTimeout(cfg.Health.CheckTimeout),
	}
	if cfg.Health.Concurrency > 0 {
		healthOpts = append(healthOpts, health.WithConcurrency(cfg.Health.Concurrency))
	}
	if cfg.Health.RatePerSecond > 0 {
		burst := cfg.Health.RateBurst
		if burst < 1 {
			burst = 1
		}
		healthOpts = append(healthOpts,
			health.WithPacer(rate.NewLimiter(rate.Limit(cfg.Health.RatePerSecond), burst)))
	}
	if o.collector != nil {
		healthOpts = append(healthOpts, health.WithMetrics(o.collector))
	}
	rt.health = health.NewManager(rt.records, rt.resolver, rt.capability, healthOpts...)

	if cfg.Health.Enabled && len(cfg.Health.Scopes) > 0 {
		scopes, err := parseScopes(cfg.Health.Scopes)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.scheduler = health.NewScheduler(rt.health, rt.records, scopes, cfg.Health.Interval, o.logger)
	}

	rt.dispatcher = delegation.NewLocalDispatcher(o.logger)
	factoryOpts := []delegation.FactoryOption{
		delegation.WithDispatcher(rt.dispatcher),
		delegation.WithLogger(o.logger),
	}
	if cfg.Runtime.AgentCallTimeout > 0 {
		factoryOpts = append(factoryOpts, delegation.WithSendTimeout(cfg.Runtime.AgentCallTimeout))
	}
	if rt.cacheMgr != nil {
		factoryOpts = append(factoryOpts,
			delegation.WithCardCache(cache.NewCardCache(rt.cacheMgr, o.collector, o.logger)))
	}
	if o.collector != nil {
		factoryOpts = append(factoryOpts, delegation.WithMetrics(o.collector))
	}
	rt.factory = delegation.NewFactory(rt.records, rt.resolver, rt.messages, factoryOpts...)

	return rt, nil
}

// Records returns the scoped record store.
func (r *Runtime) Records() store.RecordStore { return r.records }

// Messages returns the conversation message store.
func (r *Runtime) Messages() conversation.Store { return r.messages }

// Credentials returns the credential store registry, for registering
// additional backends after construction.
func (r *Runtime) Credentials() *credential.Registry { return r.registry }

// Resolver returns the credential resolver.
func (r *Runtime) Resolver() *credential.Resolver { return r.resolver }

// Capability returns the capability server client.
func (r *Runtime) Capability() *capability.Client { return r.capability }

// Health returns the health and discovery manager.
func (r *Runtime) Health() *health.Manager { return r.health }

// Dispatcher returns the in-process dispatcher internal delegation
// targets are reached through.
func (r *Runtime) Dispatcher() *delegation.LocalDispatcher { return r.dispatcher }

// Delegation returns the action factory.
func (r *Runtime) Delegation() *delegation.Factory { return r.factory }

// StartHealthSweeps launches the periodic health scheduler. Without
// configured sweep scopes, or with health checking disabled, this is a
// no-op; one-shot checks through Health still work.
func (r *Runtime) StartHealthSweeps(ctx context.Context) {
	if r.scheduler == nil {
		r.logger.Info("health sweeps disabled; no scopes configured")
		return
	}
	r.scheduler.Start(ctx)
}

// OpsHandler returns the operational HTTP surface: Prometheus metrics,
// liveness and readiness probes over the wired backends, and build info.
func (r *Runtime) OpsHandler(build server.BuildInfo) http.Handler {
	h := server.NewHealth(r.logger)
	if r.pool != nil {
		h.Register(server.NewPingCheck("database", func(ctx context.Context) error {
			// Readiness probes arrive on a steady cadence, which keeps the
			// pool occupancy gauges current without a dedicated sampler.
			if r.collector != nil {
				stats := r.pool.Stats()
				r.collector.RecordDBConnections(r.cfg.Database.Driver, stats.OpenConnections, stats.Idle)
			}
			return r.pool.Ping(ctx)
		}))
	}
	if r.cacheMgr != nil {
		h.Register(server.NewPingCheck("redis", r.cacheMgr.Ping))
	}
	h.Register(server.NewPingCheck("messages", r.messages.Ping))
	return server.NewHandler(server.Options{
		Health:    h,
		Collector: r.collector,
		Build:     build,
	})
}

// Close stops the scheduler and releases every store the runtime holds,
// injected ones included. Safe to call more than once.
func (r *Runtime) Close() error {
	r.closeOnce.Do(func() {
		if r.scheduler != nil {
			r.scheduler.Stop()
		}
		var errs []error
		if r.messages != nil {
			errs = append(errs, r.messages.Close())
		}
		if r.cacheMgr != nil {
			errs = append(errs, r.cacheMgr.Close())
		}
		if r.pool != nil {
			errs = append(errs, r.pool.Close())
		}
		r.closeErr = errors.Join(errs...)
	})
	return r.closeErr
}

func openMessageStore(ctx context.Context, cfg *config.Config) (conversation.Store, error) {
	switch cfg.Conversation.Backend {
	case "redis":
		return conversation.NewRedisStore(conversation.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
	case "mongo":
		return conversation.NewMongoStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	default:
		return conversation.NewMemoryStore(), nil
	}
}

// parseScopes parses "tenant/project" pairs.
func parseScopes(raw []string) ([]types.Scope, error) {
	scopes := make([]types.Scope, 0, len(raw))
	for _, s := range raw {
		tenant, project, ok := strings.Cut(s, "/")
		if !ok || tenant == "" || project == "" {
			return nil, fmt.Errorf("invalid health scope %q, want tenant/project", s)
		}
		scopes = append(scopes, types.Scope{TenantID: tenant, ProjectID: project})
	}
	return scopes, nil
}
