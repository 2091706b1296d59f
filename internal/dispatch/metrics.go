package dispatch

import "github.com/prometheus/client_golang/prometheus"

// Failure stages.
const (
	stageResolve = "resolve"
	stagePublish = "publish"
	stageHandler = "handler"
)

// Metrics groups the Prometheus instruments of the interceptor.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Dispatches *prometheus.CounterVec
	Failures   *prometheus.CounterVec
}

// NewMetrics registers the dispatch instruments with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duplex_dispatch_total",
			Help: "Handler invocations by dispatch path (direct or redirect).",
		}, []string{"handler", "path"}),

		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duplex_dispatch_failures_total",
			Help: "Failed handler invocations by stage (resolve, publish, handler).",
		}, []string{"handler", "stage"}),
	}

	reg.MustRegister(m.Dispatches, m.Failures)
	return m
}

func (m *Metrics) observe(handler, path string) {
	if m == nil {
		return
	}
	m.Dispatches.WithLabelValues(handler, path).Inc()
}

func (m *Metrics) fail(handler, stage string) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(handler, stage).Inc()
}
