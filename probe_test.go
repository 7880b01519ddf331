package brevent

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// listenLoopback returns a listener on a free loopback port.
func listenLoopback(t *testing.T) *net.TCPListener {
	t.Helper()

	listener, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	return listener
}

// closedPort returns a loopback address nothing listens on.
func closedPort(t *testing.T) string {
	t.Helper()

	listener := listenLoopback(t)
	addr := listener.Addr().String()
	listener.Close()
	return addr
}

// silentPeer accepts connections and never answers until the test ends.
func silentPeer(t *testing.T) string {
	t.Helper()

	listener := listenLoopback(t)
	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		listener.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})
	return listener.Addr().String()
}

// scriptedPeer serves each connection with fn.
func scriptedPeer(t *testing.T, fn func(net.Conn)) string {
	t.Helper()

	listener := listenLoopback(t)
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				fn(conn)
			}()
		}
	}()
	t.Cleanup(func() { listener.Close() })
	return listener.Addr().String()
}

func newTestProber(t *testing.T, opts ...Option) *Prober {
	t.Helper()

	executor := NewExecutor(1)
	t.Cleanup(func() { shutdownExecutor(t, executor) })
	return NewProber(executor, append([]Option{LoggerOption(DiscardLogger())}, opts...)...)
}

func TestProber_Unreachable(t *testing.T) {
	prober := newTestProber(t, AddrOption(closedPort(t)))

	start := time.Now()
	ok, err := prober.Check(context.Background())
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("Check = true, want false")
	}
	if elapsed > time.Second {
		t.Errorf("refused connection took %v", elapsed)
	}
}

func TestProber_Reachable(t *testing.T) {
	_, addr := startTestServer(t, HandlerFunc(func(context.Context, Message) (Message, error) {
		t.Error("handler called for a probe")
		return nil, nil
	}))
	prober := newTestProber(t, AddrOption(addr))

	ok, err := prober.Check(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("Check = false, want true")
	}
}

func TestProber_ReachableWhenPeerCloses(t *testing.T) {
	addr := scriptedPeer(t, func(conn net.Conn) {
		var header [2]byte
		_, _ = io.ReadFull(conn, header[:])
	})
	prober := newTestProber(t, AddrOption(addr))

	ok, err := prober.Check(context.Background())
	if err != nil || !ok {
		t.Errorf("Check = %v, %v; want true, nil", ok, err)
	}
}

func TestProber_SendsEmptyFrame(t *testing.T) {
	received := make(chan []byte, 1)
	addr := scriptedPeer(t, func(conn net.Conn) {
		buf := make([]byte, 16)
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		n, _ := io.ReadAtLeast(conn, buf, 2)
		received <- buf[:n]
		_ = WriteEmptyFrame(conn)
	})
	prober := newTestProber(t, AddrOption(addr))

	if ok, err := prober.Check(context.Background()); err != nil || !ok {
		t.Fatalf("Check = %v, %v", ok, err)
	}

	got := <-received
	if len(got) != 2 || got[0] != 0 || got[1] != 0 {
		t.Errorf("probe sent % x, want 00 00", got)
	}
}

func TestProber_GarbageReplyIsUnreachable(t *testing.T) {
	addr := scriptedPeer(t, func(conn net.Conn) {
		var header [2]byte
		_, _ = io.ReadFull(conn, header[:])
		_, _ = conn.Write([]byte{0, 4, 'n', 'o', 'p', 'e'})
	})
	prober := newTestProber(t, AddrOption(addr))

	ok, err := prober.Check(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("Check = true, want false")
	}
}

func TestProber_TimedOut(t *testing.T) {
	const bound = 200 * time.Millisecond
	prober := newTestProber(t, AddrOption(silentPeer(t)), ProbeTimeoutOption(bound))

	start := time.Now()
	ok, err := prober.Check(context.Background())
	elapsed := time.Since(start)

	if !errors.Is(err, ErrProbeTimedOut) {
		t.Fatalf("expected ErrProbeTimedOut, got %v", err)
	}
	if ok {
		t.Error("Check = true on timeout")
	}
	if elapsed < bound {
		t.Errorf("timed out after %v, before the %v bound", elapsed, bound)
	}
	if elapsed > bound+2*time.Second {
		t.Errorf("timed out after %v, far beyond the %v bound", elapsed, bound)
	}
}

func TestProber_TimedOutIsStable(t *testing.T) {
	prober := newTestProber(t, AddrOption(silentPeer(t)), ProbeTimeoutOption(5*time.Millisecond))

	var unreachable, other int
	for i := 0; i < 300; i++ {
		ok, err := prober.Check(context.Background())
		switch {
		case errors.Is(err, ErrProbeTimedOut):
		case err == nil && !ok:
			unreachable++
		default:
			other++
		}
	}
	if unreachable != 0 || other != 0 {
		t.Errorf("silent peer: %d unreachable, %d other results; want all timed out", unreachable, other)
	}
}

func TestExpired(t *testing.T) {
	if expired(context.Background()) {
		t.Error("background context reported expired")
	}

	past, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	if !expired(past) {
		t.Error("context past its deadline not reported expired")
	}

	future, cancel := context.WithTimeout(context.Background(), time.Hour)
	if expired(future) {
		t.Error("context with a future deadline reported expired")
	}
	cancel()
	if !expired(future) {
		t.Error("cancelled context not reported expired")
	}
}

func TestProber_RecoversAfterTimeout(t *testing.T) {
	executor := NewExecutor(1)
	defer shutdownExecutor(t, executor)

	stuck := NewProber(executor, AddrOption(silentPeer(t)),
		ProbeTimeoutOption(100*time.Millisecond), LoggerOption(DiscardLogger()))
	if _, err := stuck.Check(context.Background()); !errors.Is(err, ErrProbeTimedOut) {
		t.Fatalf("expected ErrProbeTimedOut, got %v", err)
	}

	_, addr := startTestServer(t, HandlerFunc(func(context.Context, Message) (Message, error) { return nil, nil }))
	healthy := NewProber(executor, AddrOption(addr), LoggerOption(DiscardLogger()))
	if ok, err := healthy.Check(context.Background()); err != nil || !ok {
		t.Errorf("Check after timeout = %v, %v; want true, nil", ok, err)
	}
}

func TestProber_ContextCanceled(t *testing.T) {
	prober := newTestProber(t, AddrOption(silentPeer(t)), ProbeTimeoutOption(5*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	ok, err := prober.Check(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if ok {
		t.Error("Check = true after cancel")
	}
}

func TestProber_ExecutorClosed(t *testing.T) {
	executor := NewExecutor(1)
	shutdownExecutor(t, executor)

	prober := NewProber(executor, AddrOption(closedPort(t)), LoggerOption(DiscardLogger()))
	ok, err := prober.Check(context.Background())
	if !errors.Is(err, ErrExecutorClosed) {
		t.Errorf("expected ErrExecutorClosed, got %v", err)
	}
	if ok {
		t.Error("Check = true with closed executor")
	}
}

func TestProber_Metrics(t *testing.T) {
	metrics := NewMetrics(WithRegistry(prometheus.NewRegistry()))
	prober := newTestProber(t, AddrOption(closedPort(t)), MetricsOption(metrics))

	_, _ = prober.Check(context.Background())
	_, _ = prober.Check(context.Background())

	if got := testutil.ToFloat64(metrics.probes.WithLabelValues("unreachable")); got != 2 {
		t.Errorf("unreachable probes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.probes.WithLabelValues("reachable")); got != 0 {
		t.Errorf("reachable probes = %v, want 0", got)
	}
}

func TestProbeOutcome_String(t *testing.T) {
	tests := map[ProbeOutcome]string{
		Reachable:       "reachable",
		Unreachable:     "unreachable",
		TimedOut:        "timed_out",
		ProbeOutcome(9): "unknown",
	}
	for outcome, want := range tests {
		if got := outcome.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
