package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.httpRequestDuration)
	assert.NotNil(t, collector.generationsTotal)
	assert.NotNil(t, collector.generationDuration)
	assert.NotNil(t, collector.assembliesTotal)
	assert.NotNil(t, collector.assemblyDuration)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("GET", "/api/v1/tasks", 200, 100*time.Millisecond, 1024, 2048)
	collector.RecordHTTPRequest("GET", "/api/v1/tasks", 204, 50*time.Millisecond, 512, 0)
	collector.RecordHTTPRequest("POST", "/api/v1/generations", 400, 5*time.Millisecond, 64, 128)

	assert.Equal(t, 2, testutil.CollectAndCount(collector.httpRequestsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/api/v1/tasks", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/api/v1/generations", "4xx")))
}

func TestCollector_RecordGeneration(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordGeneration("runway", "video", "completed", 42*time.Second)
	collector.RecordGeneration("runway", "video", "failed", 180*time.Second)
	collector.RecordGeneration("openai-tts", "speech", "completed", 2*time.Second)

	assert.Equal(t, 3, testutil.CollectAndCount(collector.generationsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.generationsTotal.WithLabelValues("runway", "video", "failed")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.generationDuration))
}

func TestCollector_RecordAssembly(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordAssembly("completed", 12*time.Second)
	collector.RecordAssembly("completed", 9*time.Second)
	collector.RecordAssembly("failed", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.assembliesTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.assembliesTotal.WithLabelValues("failed")))
}

func TestCollector_RecordDBConnections(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordDBConnections("postgres", 10, 5, 3)

	assert.Equal(t, 10.0, testutil.ToFloat64(collector.dbConnectionsOpen.WithLabelValues("postgres")))
	assert.Equal(t, 5.0, testutil.ToFloat64(collector.dbConnectionsIdle.WithLabelValues("postgres")))
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.dbWaitCount.WithLabelValues("postgres")))

	collector.RecordDBConnections("postgres", 4, 4, 3)
	assert.Equal(t, 4.0, testutil.ToFloat64(collector.dbConnectionsOpen.WithLabelValues("postgres")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordHTTPRequest("GET", "/health", 200, time.Millisecond, 0, 16)
			collector.RecordGeneration("suno", "music", "completed", time.Minute)
			collector.RecordAssembly("completed", time.Second)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/health", "2xx")))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.generationsTotal.WithLabelValues("suno", "music", "completed")))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.assembliesTotal.WithLabelValues("completed")))
}

func TestCollector_MetricsRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()

	// promauto 已注册到默认 registry，这里再注册到独立 registry
	collector := NewCollector(nextTestNamespace(), zap.NewNop())
	registry.MustRegister(collector.generationsTotal)

	collector.RecordGeneration("runway", "video", "completed", time.Second)

	n, err := testutil.GatherAndCount(registry)
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStatusCode(t *testing.T) {
	tests := map[int]string{200: "2xx", 302: "3xx", 409: "4xx", 503: "5xx", 100: "unknown"}
	for code, want := range tests {
		assert.Equal(t, want, statusCode(code), "code %d", code)
	}
}

func TestCollector_RecordMaterialization(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordMaterialization("video", "success", 12<<20)
	collector.RecordMaterialization("video", "failed", 0)
	collector.RecordMaterialization("music", "success", 3<<20)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.materializationsTotal.WithLabelValues("video", "failed")))
	assert.Equal(t, 3, testutil.CollectAndCount(collector.materializationsTotal))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.materializedBytes), "failures carry no size")
}

func TestCollector_FuncMetrics(t *testing.T) {
	ns := nextTestNamespace()
	collector := NewCollector(ns, zap.NewNop())

	var active atomic.Int64
	collector.GaugeFunc("generation_active_runs", "runs in flight", func() float64 { return float64(active.Load()) })
	collector.CounterFunc("progress_events_dropped_total", "dropped events", func() float64 { return 7 })
	active.Store(3)

	families, err := prometheus.DefaultGatherer.Gather()
	assert.NoError(t, err)
	got := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetGauge() != nil:
				got[mf.GetName()] = m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				got[mf.GetName()] = m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 3.0, got[ns+"_generation_active_runs"])
	assert.Equal(t, 7.0, got[ns+"_progress_events_dropped_total"])
}
