package brevent

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "brevent").
	Namespace string

	// Subsystem is the metrics subsystem (default: "protocol").
	Subsystem string

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsConfigOption configures NewMetrics.
type MetricsConfigOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsConfigOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsConfigOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsConfigOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// Metrics records frame and probe activity. A nil *Metrics records nothing.
type Metrics struct {
	framesWritten *prometheus.CounterVec
	framesRead    *prometheus.CounterVec
	frameBytes    *prometheus.HistogramVec
	codecErrors   *prometheus.CounterVec
	probes        *prometheus.CounterVec
	probeDuration prometheus.Histogram
}

// NewMetrics creates and registers the protocol collectors.
// It panics if the collectors are already registered in the chosen registry.
func NewMetrics(opts ...MetricsConfigOption) *Metrics {
	config := MetricsConfig{
		Namespace: "brevent",
		Subsystem: "protocol",
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)

	return &Metrics{
		framesWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "frames_written_total",
			Help:      "Frames written, by action.",
		}, []string{"action"}),

		framesRead: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "frames_read_total",
			Help:      "Frames read, by action.",
		}, []string{"action"}),

		frameBytes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "frame_bytes",
			Help:      "Compressed frame payload size in bytes.",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 7),
		}, []string{"direction"}),

		codecErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "codec_errors_total",
			Help:      "Frame encode and decode failures, by kind.",
		}, []string{"kind"}),

		probes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "probes_total",
			Help:      "Liveness probes, by outcome.",
		}, []string{"outcome"}),

		probeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "probe_duration_seconds",
			Help:      "Liveness probe duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// frameLabel names the action of a possibly absent message.
func frameLabel(m Message) string {
	if isNilMessage(m) {
		return "empty"
	}
	return m.Action().String()
}

func (m *Metrics) frameWritten(msg Message, size int) {
	if m == nil {
		return
	}
	m.framesWritten.WithLabelValues(frameLabel(msg)).Inc()
	m.frameBytes.WithLabelValues("write").Observe(float64(size))
}

func (m *Metrics) frameRead(label string, size int) {
	if m == nil {
		return
	}
	m.framesRead.WithLabelValues(label).Inc()
	m.frameBytes.WithLabelValues("read").Observe(float64(size))
}

func (m *Metrics) codecError(kind string) {
	if m == nil {
		return
	}
	m.codecErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) probe(outcome ProbeOutcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(outcome.String()).Inc()
	m.probeDuration.Observe(elapsed.Seconds())
}
