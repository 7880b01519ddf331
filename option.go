package brevent

import (
	"net"
	"strconv"
	"time"
)

// Publisher delivers decoded replies to interested listeners.
type Publisher interface {
	Publish(Message)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(Message)

// Publish calls f(m).
func (f PublisherFunc) Publish(m Message) { f(m) }

// options holds the configuration shared by Client, Prober and Server.
type options struct {
	addr      string
	codec     Codec
	logger    Logger
	metrics   *Metrics
	publisher Publisher

	probeTimeout    time.Duration // upper bound of one liveness probe
	idleTimeout     time.Duration // read/write deadline of one exchange
	shutdownTimeout time.Duration // grace period before the listener closes
}

// Default configuration values.
const (
	defaultProbeTimeout = 5 * time.Second
	defaultIdleTimeout  = 30 * time.Second
)

// DefaultAddr is the loopback address of the service.
var DefaultAddr = net.JoinHostPort("127.0.0.1", strconv.Itoa(Port))

// Option is a function that configures options.
type Option func(*options)

// checkOptions sets default values for unset options.
func checkOptions(opts *options) {
	if opts.addr == "" {
		opts.addr = DefaultAddr
	}

	if opts.codec == nil {
		opts.codec = NewFrameCodec(CodecMetricsOption(opts.metrics))
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	if opts.probeTimeout <= 0 {
		opts.probeTimeout = defaultProbeTimeout
	}

	if opts.idleTimeout <= 0 {
		opts.idleTimeout = defaultIdleTimeout
	}
}

func newOptions(opt []Option) options {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)
	return opts
}

// AddrOption sets the address to dial or listen on. Defaults to DefaultAddr.
func AddrOption(addr string) Option {
	return func(o *options) {
		o.addr = addr
	}
}

// CustomCodecOption sets the message codec. Defaults to a FrameCodec.
func CustomCodecOption(codec Codec) Option {
	return func(o *options) {
		o.codec = codec
	}
}

// LoggerOption sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// MetricsOption sets the metrics to report to.
// The default codec reports to the same metrics.
func MetricsOption(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// PublisherOption sets where a Client delivers decoded replies.
func PublisherOption(p Publisher) Option {
	return func(o *options) {
		o.publisher = p
	}
}

// ProbeTimeoutOption sets the upper bound of one liveness probe.
func ProbeTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.probeTimeout = timeout
	}
}

// IdleTimeoutOption sets the read/write deadline applied to each exchange.
func IdleTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.idleTimeout = timeout
	}
}

// ShutdownTimeoutOption sets the graceful shutdown timeout of a Server.
// When the context is canceled, the server waits up to this duration
// before closing the listener. Default is 0 (immediate shutdown).
func ShutdownTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.shutdownTimeout = timeout
	}
}
