package brevent

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Server listens on the loopback port and serves one request per connection.
type Server struct {
	listener *net.TCPListener
	opts     options

	mu          sync.Mutex
	shutdown    bool
	shutdownNow chan struct{} // signals immediate shutdown, bypassing timeout
}

// NewServer creates a server bound to the configured address (DefaultAddr unless AddrOption is set).
// Returns an error if the address cannot be bound.
func NewServer(opt ...Option) (*Server, error) {
	opts := newOptions(opt)

	addr, err := net.ResolveTCPAddr("tcp", opts.addr)
	if err != nil {
		return nil, err
	}

	listener, err := net.ListenTCP(addr.Network(), addr)
	if err != nil {
		return nil, err
	}

	return &Server{
		listener:    listener,
		opts:        opts,
		shutdownNow: make(chan struct{}),
	}, nil
}

// Serve accepts connections and serves each on its own goroutine with handler.
// It blocks until the context is canceled or an unrecoverable error occurs, then
// waits for in-flight connections to finish. Canceling ctx also interrupts them.
// If ShutdownTimeoutOption is set, the server keeps accepting for up to that
// duration after ctx is canceled; Close bypasses the wait.
func (s *Server) Serve(ctx context.Context, handler Handler) error {
	logger := s.opts.logger
	logger.Info("server started", "addr", s.listener.Addr())

	var conns errgroup.Group
	defer func() { _ = conns.Wait() }()

	// Start a goroutine to handle context cancellation
	go func() {
		<-ctx.Done()

		// Wait for shutdown timeout if configured, but allow early exit via Close()
		if s.opts.shutdownTimeout > 0 {
			logger.Info("graceful shutdown initiated", "timeout", s.opts.shutdownTimeout)
			select {
			case <-time.After(s.opts.shutdownTimeout):
			case <-s.shutdownNow:
				logger.Debug("shutdown timeout bypassed via Close()")
			}
		}

		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		// Set a deadline to unblock Accept
		_ = s.listener.SetDeadline(time.Now())
	}()

	for {
		conn, err := s.listener.AcceptTCP()
		if err != nil {
			if s.isShutdown() {
				logger.Info("server stopped", "addr", s.listener.Addr())
				return ctx.Err()
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			logger.Error("accept error", "error", err)
			return err
		}

		logger.Debug("accepted connection", "remote_addr", conn.RemoteAddr())
		_ = conn.SetNoDelay(true)

		c := newConn(conn, s.opts)
		conns.Go(func() error {
			// Per-connection failures are logged by Conn and never stop the server.
			_ = c.Serve(ctx, handler)
			return nil
		})
	}
}

func (s *Server) isShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

// Close stops the server by closing the underlying listener.
// If a shutdown timeout is configured, Close bypasses the remaining timeout.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	select {
	case s.shutdownNow <- struct{}{}:
	default:
	}

	return s.listener.Close()
}

// Addr returns the listener's network address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
