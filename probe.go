package brevent

import (
	"context"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// ErrProbeTimedOut is returned by Prober.Check when the probe does not finish within its bound.
var ErrProbeTimedOut = errors.New("brevent: probe timed out")

// ProbeOutcome is the terminal state of one liveness probe.
type ProbeOutcome int

const (
	// Reachable means a listener accepted the connection and completed the empty-frame round trip.
	Reachable ProbeOutcome = iota
	// Unreachable means the connection was refused or failed with an I/O error.
	Unreachable
	// TimedOut means the probe was cancelled after exceeding its bound.
	TimedOut
)

// String returns the outcome label used in logs and metrics.
func (o ProbeOutcome) String() string {
	switch o {
	case Reachable:
		return "reachable"
	case Unreachable:
		return "unreachable"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Prober checks whether the service is listening on its loopback port.
// Probes run on the given Executor, so concurrent checks sharing an executor are serialized.
type Prober struct {
	executor *Executor
	dialer   net.Dialer
	opts     options
}

// NewProber creates a prober that runs its probes on executor, which must not be nil.
// The caller owns the executor and shuts it down.
func NewProber(executor *Executor, opt ...Option) *Prober {
	return &Prober{
		executor: executor,
		opts:     newOptions(opt),
	}
}

// Check runs one probe and waits for it for at most the probe timeout.
//
// It reports true when the service answered and false, with a nil error, when the
// connection was refused or failed. If the bound elapses first the probe is
// cancelled and Check returns false with ErrProbeTimedOut. If ctx is done first,
// ctx.Err() is returned.
func (p *Prober) Check(ctx context.Context) (bool, error) {
	start := time.Now()
	outcome, err := p.check(ctx)
	p.opts.metrics.probe(outcome, time.Since(start))

	switch {
	case outcome == TimedOut:
		p.opts.logger.Debug("can't check port", "addr", p.opts.addr, "timeout", p.opts.probeTimeout)
	case err != nil:
		p.opts.logger.Debug("can't check port", "addr", p.opts.addr, "error", err)
	}
	return outcome == Reachable, err
}

func (p *Prober) check(ctx context.Context) (ProbeOutcome, error) {
	// Cancelling taskCtx interrupts the in-flight probe on every exit path.
	taskCtx, cancel := context.WithTimeout(ctx, p.opts.probeTimeout)
	defer cancel()

	result := make(chan error, 1)
	err := p.executor.Submit(taskCtx, func(ctx context.Context) {
		result <- p.probe(ctx)
	})
	if err != nil {
		return p.cancelled(ctx, err)
	}

	select {
	case err := <-result:
		if err == nil {
			p.opts.logger.Debug("connected to service", "addr", p.opts.addr)
			return Reachable, nil
		}
		if expired(taskCtx) {
			// The probe failed because its bound ran out, not because of the peer.
			// The socket deadline can fire before the context timer does.
			return p.cancelled(ctx, context.DeadlineExceeded)
		}
		if errors.Is(err, syscall.ECONNREFUSED) {
			p.opts.logger.Debug("cannot connect to service", "addr", p.opts.addr, "error", err)
		} else {
			p.opts.logger.Debug("io error to service", "addr", p.opts.addr, "error", err)
		}
		return Unreachable, nil
	case <-taskCtx.Done():
		return p.cancelled(ctx, taskCtx.Err())
	}
}

// cancelled maps a failure to submit or finish the probe onto an outcome.
func (p *Prober) cancelled(parent context.Context, err error) (ProbeOutcome, error) {
	if expired(parent) {
		if parent.Err() != nil {
			return Unreachable, parent.Err()
		}
		return Unreachable, context.DeadlineExceeded
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return TimedOut, ErrProbeTimedOut
	}
	return Unreachable, err
}

// probe performs one empty-frame round trip. A clean close by the peer after
// the request counts as an answer.
func (p *Prober) probe(ctx context.Context) error {
	conn, err := p.dialer.DialContext(ctx, "tcp", p.opts.addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Best-effort interruption of a blocked read or write.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := WriteEmptyFrame(conn); err != nil {
		return err
	}

	if _, err := p.opts.codec.Decode(conn); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// expired reports whether ctx is done or its deadline has passed.
func expired(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	deadline, ok := ctx.Deadline()
	return ok && !time.Now().Before(deadline)
}
