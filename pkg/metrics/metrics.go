package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the push delivery collectors on a private registry.
type Metrics struct {
	registry   *prometheus.Registry
	consumed   prometheus.Counter
	requeued   prometheus.Counter
	suppressed prometheus.Counter
	sends      *prometheus.CounterVec
	transmit   prometheus.Histogram
}

// New returns a Metrics collector with all series registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		consumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "push_requests_consumed_total",
			Help: "Send requests read from the queue.",
		}),
		requeued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "push_requests_requeued_total",
			Help: "Send requests returned to the queue for another attempt.",
		}),
		suppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "push_tokens_suppressed_total",
			Help: "Sends skipped because the token is known to be invalid.",
		}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "push_sends_total",
			Help: "Push attempts by flow and outcome.",
		}, []string{"flow", "outcome"}),
		transmit: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "push_transmit_duration_seconds",
			Help:    "Latency of gateway calls.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(m.consumed, m.requeued, m.suppressed, m.sends, m.transmit)
	return m
}

func (m *Metrics) IncConsumed()   { m.consumed.Inc() }
func (m *Metrics) IncRequeued()   { m.requeued.Inc() }
func (m *Metrics) IncSuppressed() { m.suppressed.Inc() }

// ObserveSend counts one finished push attempt.
func (m *Metrics) ObserveSend(flow, outcome string) {
	m.sends.WithLabelValues(flow, outcome).Inc()
}

func (m *Metrics) ObserveTransmit(d time.Duration) {
	m.transmit.Observe(d.Seconds())
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
