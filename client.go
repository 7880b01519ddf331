package brevent

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
)

// Client sends requests to the service, one connection per request.
type Client struct {
	dialer net.Dialer
	opts   options
}

// NewClient creates a client with the given options.
func NewClient(opt ...Option) *Client {
	return &Client{opts: newOptions(opt)}
}

// Send writes m on a fresh connection and reads one reply frame.
//
// A non-nil reply is also handed to the configured Publisher. The reply is nil
// when the service acknowledged with an empty frame, closed the connection, or
// answered with an action this build does not know. Errors are returned as is;
// the caller decides whether to retry.
func (c *Client) Send(ctx context.Context, m Message) (Message, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.opts.addr)
	if err != nil {
		return nil, errors.Wrap(err, "brevent: dial")
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	_ = conn.SetDeadline(c.deadline(ctx))

	frame, err := c.opts.codec.Encode(m)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(frame); err != nil {
		return nil, errors.Wrapf(err, "brevent: write %s", frameLabel(m))
	}
	c.opts.logger.Debug("request sent", "addr", c.opts.addr, "action", frameLabel(m))

	reply, err := c.opts.codec.Decode(conn)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "brevent: read reply")
	}
	if reply == nil {
		return nil, nil
	}

	if reply.VersionMismatched() {
		c.opts.logger.Warn("reply version mismatched", "addr", c.opts.addr,
			"version", reply.Version(), "want", Version)
	}
	if c.opts.publisher != nil {
		c.opts.publisher.Publish(reply)
	}
	return reply, nil
}

// deadline returns the earlier of the ctx deadline and the idle timeout.
func (c *Client) deadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(c.opts.idleTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}
