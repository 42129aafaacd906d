// Package metrics exposes Prometheus counters/gauges over a chi debug mux,
// grounded directly on Emibrown-HLS-Playlist-Orchestrator's
// internal/platform/metrics/metrics.go, retargeted from HTTP-request
// counters to the ingest pipeline's own cycle/segment/error counters.
package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry            *prometheus.Registry
	manifestRefreshes   prometheus.Counter
	segmentsFetched     prometheus.Counter
	segmentsEvicted     prometheus.Counter
	decryptFailures     prometheus.Counter
	cycleErrors         prometheus.Counter
	windowSize          prometheus.Gauge
	orchestratorState   *prometheus.GaugeVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	manifestRefreshes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dashhls_manifest_refreshes_total", Help: "Total number of manifest refresh cycles.",
	})
	segmentsFetched := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dashhls_segments_fetched_total", Help: "Total number of segments fetched.",
	})
	segmentsEvicted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dashhls_segments_evicted_total", Help: "Total number of segments evicted from the live window.",
	})
	decryptFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dashhls_decrypt_failures_total", Help: "Total number of decrypter sub-process failures.",
	})
	cycleErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dashhls_cycle_errors_total", Help: "Total number of saver cycle errors.",
	})
	windowSize := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dashhls_window_size", Help: "Current live window size in segments.",
	})
	orchestratorState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dashhls_orchestrator_state", Help: "Current orchestrator state (1 = active).",
	}, []string{"state"})

	registry.MustRegister(manifestRefreshes, segmentsFetched, segmentsEvicted, decryptFailures, cycleErrors, windowSize, orchestratorState)

	return &Metrics{
		registry: registry,
		manifestRefreshes: manifestRefreshes, segmentsFetched: segmentsFetched,
		segmentsEvicted: segmentsEvicted, decryptFailures: decryptFailures,
		cycleErrors: cycleErrors, windowSize: windowSize, orchestratorState: orchestratorState,
	}
}

func (m *Metrics) IncManifestRefresh()  { m.manifestRefreshes.Inc() }
func (m *Metrics) IncSegmentsFetched()  { m.segmentsFetched.Inc() }
func (m *Metrics) IncSegmentsEvicted()  { m.segmentsEvicted.Inc() }
func (m *Metrics) IncDecryptFailure()   { m.decryptFailures.Inc() }
func (m *Metrics) IncCycleError()       { m.cycleErrors.Inc() }
func (m *Metrics) SetWindowSize(n int)  { m.windowSize.Set(float64(n)) }
func (m *Metrics) SetState(state string) {
	m.orchestratorState.Reset()
	m.orchestratorState.WithLabelValues(state).Set(1)
}

// Mux returns a chi router serving /metrics and a liveness /healthz.
func (m *Metrics) Mux() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return r
}
