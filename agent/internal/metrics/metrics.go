package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the agent's collectors.
type Metrics struct {
	gatherer prometheus.Gatherer

	fixes     *prometheus.CounterVec
	pending   prometheus.Gauge
	batches   *prometheus.CounterVec
	delivered prometheus.Counter
	duration  prometheus.Histogram
	certDays  prometheus.Gauge
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		gatherer: reg,
		fixes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trackrelay_fixes_total",
			Help: "Position fixes seen by the ingestor, by filter result.",
		}, []string{"result"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trackrelay_buffer_pending",
			Help: "Samples waiting for acknowledged delivery.",
		}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trackrelay_batches_total",
			Help: "Upload attempts, by outcome.",
		}, []string{"outcome"}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trackrelay_samples_delivered_total",
			Help: "Samples acknowledged by the collection endpoint.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trackrelay_upload_duration_seconds",
			Help:    "Wall time of upload requests.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		certDays: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trackrelay_endpoint_cert_days_left",
			Help: "Days until the collection endpoint's TLS certificate expires.",
		}),
	}
	reg.MustRegister(m.fixes, m.pending, m.batches, m.delivered, m.duration, m.certDays)

	// Pre-create label values so they are exported at zero.
	m.fixes.WithLabelValues("accepted")
	m.fixes.WithLabelValues("rejected")
	for _, o := range []string{"delivered", "failed", "superseded"} {
		m.batches.WithLabelValues(o)
	}
	return m
}

// SetCertDaysLeft records the endpoint certificate's remaining lifetime.
func (m *Metrics) SetCertDaysLeft(days float64) {
	if m == nil {
		return
	}
	m.certDays.Set(days)
}

// FixAccepted counts a fix that passed the accuracy filter.
func (m *Metrics) FixAccepted() {
	if m == nil {
		return
	}
	m.fixes.WithLabelValues("accepted").Inc()
}

// FixRejected counts a fix that failed the accuracy filter.
func (m *Metrics) FixRejected() {
	if m == nil {
		return
	}
	m.fixes.WithLabelValues("rejected").Inc()
}

// SetPending records the buffer depth.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

// ObserveBatch records one upload attempt. samples is the number delivered.
func (m *Metrics) ObserveBatch(outcome string, samples int, d time.Duration) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(outcome).Inc()
	if samples > 0 {
		m.delivered.Add(float64(samples))
	}
	if d > 0 {
		m.duration.Observe(d.Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
