package brevent

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// ErrConnectionClosed is returned when operating on a closed connection.
var ErrConnectionClosed = errors.New("brevent: connection closed")

// Handler serves decoded requests.
type Handler interface {
	// ServeMessage handles one request and returns the reply to write back.
	// A nil reply is acknowledged with the empty frame. An error closes the
	// connection without a reply.
	ServeMessage(ctx context.Context, m Message) (Message, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, m Message) (Message, error)

// ServeMessage calls f(ctx, m).
func (f HandlerFunc) ServeMessage(ctx context.Context, m Message) (Message, error) {
	return f(ctx, m)
}

// Conn is the service side of one accepted connection.
// It carries exactly one request and one reply, then closes.
type Conn struct {
	rawConn *net.TCPConn
	logger  Logger
	opts    options

	closed atomic.Bool
}

func newConn(c *net.TCPConn, opts options) *Conn {
	return &Conn{
		rawConn: c,
		logger:  opts.logger,
		opts:    opts,
	}
}

// Serve reads one request, dispatches it and writes the reply.
//
// The empty frame and unknown actions are acknowledged with the empty frame.
// A request from a different protocol version is acknowledged but not handed
// to the handler. The connection is closed when Serve returns.
func (c *Conn) Serve(ctx context.Context, handler Handler) error {
	defer c.Close()

	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	_ = c.rawConn.SetDeadline(time.Now().Add(c.opts.idleTimeout))

	request, err := c.opts.codec.Decode(c.rawConn)
	if err != nil {
		if errors.Is(err, io.EOF) {
			c.logger.Debug("connection closed before request", "addr", c.Addr())
			return nil
		}
		c.logger.Debug("read error", "addr", c.Addr(), "error", err)
		return err
	}

	var reply Message
	switch {
	case request == nil:
		c.logger.Debug("empty request", "addr", c.Addr())
	case request.VersionMismatched():
		c.logger.Warn("version mismatched, ignoring request", "addr", c.Addr(),
			"action", request.Action(), "version", request.Version(), "want", Version)
	default:
		c.logger.Debug("request received", "addr", c.Addr(), "action", request.Action())
		reply, err = handler.ServeMessage(ctx, request)
		if err != nil {
			c.logger.Error("handler error", "addr", c.Addr(), "action", request.Action(), "error", err)
			return err
		}
	}

	return c.write(reply)
}

// write encodes reply and sends it. A nil reply sends the empty frame.
func (c *Conn) write(reply Message) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	frame, err := c.opts.codec.Encode(reply)
	if err != nil {
		c.logger.Error("encode error", "addr", c.Addr(), "error", err)
		return err
	}

	if _, err := c.rawConn.Write(frame); err != nil {
		c.logger.Debug("write error", "addr", c.Addr(), "error", err)
		return err
	}
	return nil
}

// Close closes the underlying TCP connection. Safe to call multiple times.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.rawConn.Close()
}

// IsClosed returns true if the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Addr returns the remote address of the connection.
func (c *Conn) Addr() net.Addr {
	return c.rawConn.RemoteAddr()
}
