// Package metrics provides Prometheus instrumentation for the runtime.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector registers and records the runtime's Prometheus metrics.
// All metrics share one namespace and are registered on the default
// registry via promauto, so construct at most one Collector per process.
type Collector struct {
	// Health probe metrics
	healthChecksTotal   *prometheus.CounterVec
	healthCheckDuration *prometheus.HistogramVec
	catalogSyncsTotal   *prometheus.CounterVec
	catalogTools        *prometheus.GaugeVec

	// Delegation metrics
	delegationsTotal   *prometheus.CounterVec
	delegationDuration *prometheus.HistogramVec

	// Tool invocation metrics
	toolInvocationsTotal   *prometheus.CounterVec
	toolInvocationDuration *prometheus.HistogramVec

	// Credential metrics
	credentialResolutionsTotal *prometheus.CounterVec

	// Cache metrics
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// Database metrics
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	// Ops HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector builds a Collector with every metric registered under the
// given namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// Health probe metrics
	c.healthChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_checks_total",
			Help:      "Total number of capability server health checks",
		},
		[]string{"status"},
	)

	c.healthCheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "health_check_duration_seconds",
			Help:      "Health check duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"status"},
	)

	c.catalogSyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_syncs_total",
			Help:      "Total number of tool catalog discovery runs",
		},
		[]string{"status"},
	)

	c.catalogTools = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_tools",
			Help:      "Number of tools in the last synced catalog per server",
		},
		[]string{"server_id"},
	)

	// Delegation metrics
	c.delegationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delegations_total",
			Help:      "Total number of delegation actions",
		},
		[]string{"action", "target_kind", "status"},
	)

	c.delegationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delegation_duration_seconds",
			Help:      "Delegation action duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"action", "target_kind"},
	)

	// Tool invocation metrics
	c.toolInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_invocations_total",
			Help:      "Total number of capability tool invocations",
		},
		[]string{"transport", "status"},
	)

	c.toolInvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_invocation_duration_seconds",
			Help:      "Capability tool invocation duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"transport"},
	)

	// Credential metrics
	c.credentialResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_resolutions_total",
			Help:      "Total number of credential reference resolutions",
		},
		[]string{"source", "status"},
	)

	// Cache metrics
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Database metrics
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
	)

	// Ops HTTP metrics
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordHealthCheck records one health check outcome. The status label is
// the resulting server status (healthy, unhealthy, needs_auth).
func (c *Collector) RecordHealthCheck(status string, duration time.Duration) {
	c.healthChecksTotal.WithLabelValues(status).Inc()
	c.healthCheckDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordCatalogSync records one discovery run and the size of the synced
// catalog for the server.
func (c *Collector) RecordCatalogSync(serverID, status string, toolCount int) {
	c.catalogSyncsTotal.WithLabelValues(status).Inc()
	c.catalogTools.WithLabelValues(serverID).Set(float64(toolCount))
}

// RecordDelegation records one delegation action. Action is transfer or
// delegate, targetKind is internal or external.
func (c *Collector) RecordDelegation(action, targetKind, status string, duration time.Duration) {
	c.delegationsTotal.WithLabelValues(action, targetKind, status).Inc()
	c.delegationDuration.WithLabelValues(action, targetKind).Observe(duration.Seconds())
}

// RecordToolInvocation records one capability tool invocation.
func (c *Collector) RecordToolInvocation(transport, status string, duration time.Duration) {
	c.toolInvocationsTotal.WithLabelValues(transport, status).Inc()
	c.toolInvocationDuration.WithLabelValues(transport).Observe(duration.Seconds())
}

// RecordCredentialResolution records one credential resolution. Source is
// static or reference.
func (c *Collector) RecordCredentialResolution(source, status string) {
	c.credentialResolutionsTotal.WithLabelValues(source, status).Inc()
}

// RecordCacheHit records a cache hit.
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss.
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordDBConnections records connection pool occupancy.
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery records one database query.
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// RecordHTTPRequest records one request against the ops HTTP server.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// statusClass folds HTTP status codes into their class to keep the label
// cardinality bounded.
func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
