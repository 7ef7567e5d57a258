package limiter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric names passed to MetricsRecorder.
const (
	MetricCall    = "ratelimit.call"
	MetricDenied  = "ratelimit.denied"
	MetricError   = "ratelimit.error"
	MetricLatency = "ratelimit.latency"
)

// Values of the "reason" tag on MetricDenied.
const (
	ReasonNotUntil             = "not_until"
	ReasonInsufficientCapacity = "insufficient_capacity"
)

// MetricsRecorder is the seam between the limiter and a metrics backend.
type MetricsRecorder interface {
	// Add increments a counter.
	Add(name string, value float64, tags map[string]string)
	// Observe records a sample, such as a latency in seconds.
	Observe(name string, value float64, tags map[string]string)
}

// NoOpMetricsRecorder is a placeholder that does nothing.
// It ensures we never have to check 'if r.recorder != nil' in our hot path.
type NoOpMetricsRecorder struct{}

func (n *NoOpMetricsRecorder) Add(name string, value float64, tags map[string]string)     {}
func (n *NoOpMetricsRecorder) Observe(name string, value float64, tags map[string]string) {}

// PrometheusRecorder exports limiter metrics through client_golang.
type PrometheusRecorder struct {
	calls    prometheus.Counter
	denied   *prometheus.CounterVec
	errors   prometheus.Counter
	duration prometheus.Histogram
}

// NewPrometheusRecorder registers the limiter collectors with reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	return &PrometheusRecorder{
		calls: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "gcra",
				Name:      "calls_total",
				Help:      "Total number of rate limit decisions",
			},
		),
		denied: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gcra",
				Name:      "denied_total",
				Help:      "Total number of negative rate limit decisions",
			},
			[]string{"reason"},
		),
		errors: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "gcra",
				Name:      "errors_total",
				Help:      "Total number of decisions that failed in the state store",
			},
		),
		duration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "gcra",
				Name:      "decision_duration_seconds",
				Help:      "Time taken to reach a rate limit decision",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
		),
	}
}

func (p *PrometheusRecorder) Add(name string, value float64, tags map[string]string) {
	switch name {
	case MetricCall:
		p.calls.Add(value)
	case MetricDenied:
		p.denied.WithLabelValues(tags["reason"]).Add(value)
	case MetricError:
		p.errors.Add(value)
	}
}

func (p *PrometheusRecorder) Observe(name string, value float64, tags map[string]string) {
	if name == MetricLatency {
		p.duration.Observe(value)
	}
}

var (
	_ MetricsRecorder = (*NoOpMetricsRecorder)(nil)
	_ MetricsRecorder = (*PrometheusRecorder)(nil)
)
