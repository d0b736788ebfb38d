package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the anonymisation engine. All methods
// are nil-safe so wiring metrics stays optional.
type Metrics struct {
	RecordsAnonymised *prometheus.CounterVec
	AnonymiseFailures *prometheus.CounterVec
	CascadeFanout     prometheus.Histogram
	AnonymiseLatency  prometheus.Histogram
	ReplayActions     *prometheus.CounterVec
}

// New creates a Metrics instance with all engine metrics registered.
func New() *Metrics {
	return &Metrics{
		RecordsAnonymised: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veil_records_anonymised_total",
			Help: "Total records anonymised by record type",
		}, []string{"record_type"}),

		AnonymiseFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veil_anonymise_failures_total",
			Help: "Total anonymisation failures by reason",
		}, []string{"reason"}), // reason: "unsupported_field", "policy", "not_registered", "store"

		CascadeFanout: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "veil_cascade_fanout",
			Help:    "Related records anonymised per deleted record",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),

		AnonymiseLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "veil_anonymise_duration_seconds",
			Help:    "Duration of single-record anonymisation",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		ReplayActions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veil_replay_actions_total",
			Help: "Replay outcomes by action and result",
		}, []string{"action", "outcome"}), // outcome: "applied", "skipped"
	}
}

func (m *Metrics) IncAnonymised(recordType string) {
	if m != nil {
		m.RecordsAnonymised.WithLabelValues(recordType).Inc()
	}
}

func (m *Metrics) IncFailure(reason string) {
	if m != nil {
		m.AnonymiseFailures.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) ObserveCascadeFanout(n int) {
	if m != nil {
		m.CascadeFanout.Observe(float64(n))
	}
}

func (m *Metrics) ObserveAnonymiseLatency(d time.Duration) {
	if m != nil {
		m.AnonymiseLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncReplayAction(action, outcome string) {
	if m != nil {
		m.ReplayActions.WithLabelValues(action, outcome).Inc()
	}
}
