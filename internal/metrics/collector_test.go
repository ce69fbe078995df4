package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// promauto registers on the default registry, so every test needs its own
// namespace to avoid duplicate registration panics.
var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("weavetest%d", seq)
}

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.healthChecksTotal)
	assert.NotNil(t, collector.healthCheckDuration)
	assert.NotNil(t, collector.catalogSyncsTotal)
	assert.NotNil(t, collector.delegationsTotal)
	assert.NotNil(t, collector.toolInvocationsTotal)
	assert.NotNil(t, collector.credentialResolutionsTotal)
}

func TestCollector_RecordHealthCheck(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHealthCheck("healthy", 120*time.Millisecond)
	collector.RecordHealthCheck("needs_auth", 80*time.Millisecond)
	collector.RecordHealthCheck("healthy", 95*time.Millisecond)

	count := testutil.CollectAndCount(collector.healthChecksTotal)
	assert.Equal(t, 2, count) // one series per status label

	healthy := testutil.ToFloat64(collector.healthChecksTotal.WithLabelValues("healthy"))
	assert.Equal(t, float64(2), healthy)
}

func TestCollector_RecordCatalogSync(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordCatalogSync("srv-1", "ok", 12)
	collector.RecordCatalogSync("srv-1", "ok", 9)

	// The gauge tracks the latest catalog size, not a running total.
	size := testutil.ToFloat64(collector.catalogTools.WithLabelValues("srv-1"))
	assert.Equal(t, float64(9), size)

	syncs := testutil.ToFloat64(collector.catalogSyncsTotal.WithLabelValues("ok"))
	assert.Equal(t, float64(2), syncs)
}

func TestCollector_RecordDelegation(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordDelegation("delegate", "external", "ok", 2*time.Second)
	collector.RecordDelegation("transfer", "internal", "error", 100*time.Millisecond)

	count := testutil.CollectAndCount(collector.delegationsTotal)
	assert.Equal(t, 2, count)
}

func TestCollector_RecordToolInvocation(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordToolInvocation("streamable_http", "ok", 300*time.Millisecond)
	collector.RecordToolInvocation("stdio", "error", 50*time.Millisecond)

	count := testutil.CollectAndCount(collector.toolInvocationsTotal)
	assert.Equal(t, 2, count)
}

func TestCollector_RecordCredentialResolution(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordCredentialResolution("reference", "ok")
	collector.RecordCredentialResolution("reference", "ok")
	collector.RecordCredentialResolution("static", "ok")

	ref := testutil.ToFloat64(collector.credentialResolutionsTotal.WithLabelValues("reference", "ok"))
	assert.Equal(t, float64(2), ref)
}

func TestCollector_RecordCacheOperation(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordCacheHit("agent_card")
	collector.RecordCacheHit("agent_card")
	collector.RecordCacheMiss("agent_card")

	hits := testutil.ToFloat64(collector.cacheHits.WithLabelValues("agent_card"))
	misses := testutil.ToFloat64(collector.cacheMisses.WithLabelValues("agent_card"))
	assert.Equal(t, float64(2), hits)
	assert.Equal(t, float64(1), misses)
}

func TestCollector_RecordDatabase(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordDBConnections("postgres", 10, 5)
	collector.RecordDBQuery("postgres", "select", 20*time.Millisecond)

	open := testutil.ToFloat64(collector.dbConnectionsOpen.WithLabelValues("postgres"))
	idle := testutil.ToFloat64(collector.dbConnectionsIdle.WithLabelValues("postgres"))
	assert.Equal(t, float64(10), open)
	assert.Equal(t, float64(5), idle)

	count := testutil.CollectAndCount(collector.dbQueryDuration)
	assert.Greater(t, count, 0)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("GET", "/healthz", 200, 5*time.Millisecond)
	collector.RecordHTTPRequest("GET", "/healthz", 200, 3*time.Millisecond)
	collector.RecordHTTPRequest("GET", "/metrics", 500, 8*time.Millisecond)

	ok := testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/healthz", "2xx"))
	assert.Equal(t, float64(2), ok)

	failed := testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/metrics", "5xx"))
	assert.Equal(t, float64(1), failed)
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			collector.RecordHealthCheck("healthy", 100*time.Millisecond)
			collector.RecordDelegation("delegate", "internal", "ok", 50*time.Millisecond)
			collector.RecordCacheHit("agent_card")
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	checks := testutil.ToFloat64(collector.healthChecksTotal.WithLabelValues("healthy"))
	assert.Equal(t, float64(10), checks)
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "3xx", statusClass(302))
	assert.Equal(t, "4xx", statusClass(404))
	assert.Equal(t, "5xx", statusClass(503))
	assert.Equal(t, "unknown", statusClass(42))
}
