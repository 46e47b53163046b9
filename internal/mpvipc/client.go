package mpvipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Default timing, sized for a local socket on an embedded host.
const (
	defaultDialTimeout  = 500 * time.Millisecond
	defaultIdleTimeout  = 500 * time.Millisecond
	defaultReplyTimeout = time.Second
	defaultWriteTimeout = 500 * time.Millisecond
	defaultDialAttempts = 5
	defaultDialBackoff  = 50 * time.Millisecond
	readChunkSize       = 4096
)

// ErrUnavailable is returned when the socket cannot be reached within
// the configured number of dial attempts.
var ErrUnavailable = errors.New("mpvipc: control socket unavailable")

// Client sends commands to mpv over its JSON IPC unix socket.
//
// Each Send opens a fresh connection; there is no request multiplexing.
// Client is safe for concurrent use, though mpv may interleave replies
// from concurrent connections with events.
type Client struct {
	socketPath   string
	dialTimeout  time.Duration
	idleTimeout  time.Duration
	replyTimeout time.Duration
	dialAttempts int
	dialBackoff  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithIdleTimeout sets how long Send waits for more data before treating
// the reply as complete.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Client) { c.idleTimeout = d }
}

// WithReplyTimeout caps the whole reply read. A steady stream of event
// lines resets the idle window but cannot extend past this.
func WithReplyTimeout(d time.Duration) Option {
	return func(c *Client) { c.replyTimeout = d }
}

// WithDialRetry sets the number of dial attempts and the initial backoff
// between them. The backoff doubles after each refused attempt.
func WithDialRetry(attempts int, backoff time.Duration) Option {
	return func(c *Client) {
		c.dialAttempts = attempts
		c.dialBackoff = backoff
	}
}

// New creates a Client for the socket at socketPath.
func New(socketPath string, opts ...Option) *Client {
	c := &Client{
		socketPath:   socketPath,
		dialTimeout:  defaultDialTimeout,
		idleTimeout:  defaultIdleTimeout,
		replyTimeout: defaultReplyTimeout,
		dialAttempts: defaultDialAttempts,
		dialBackoff:  defaultDialBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialAttempts < 1 {
		c.dialAttempts = 1
	}
	return c
}

// SocketPath returns the socket this client dials.
func (c *Client) SocketPath() string {
	return c.socketPath
}

// Send delivers cmd and returns mpv's reply.
//
// A nil Response with a nil error means the command was delivered but no
// reply was recognised before the idle window elapsed. Many commands are
// fire-and-forget from the caller's point of view, so this is not an error.
//
// Returns:
//   - *Response: First reply found, or nil
//   - error: ErrUnavailable if the socket could not be reached, a write
//     error, or the context's error
func (c *Client) Send(ctx context.Context, cmd Command) (*Response, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("mpvipc: encoding %s: %w", cmd.Name(), err)
	}
	payload = append(payload, '\n')

	if err := conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
		return nil, fmt.Errorf("mpvipc: setting write deadline: %w", err)
	}
	if _, err := conn.Write(payload); err != nil {
		return nil, fmt.Errorf("mpvipc: writing %s: %w", cmd.Name(), err)
	}

	return c.readReply(ctx, conn), nil
}

// dial connects to the socket, retrying while mpv has not yet created or
// started listening on it.
func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.dialTimeout}
	backoff := c.dialBackoff

	var lastErr error
	for attempt := 1; attempt <= c.dialAttempts; attempt++ {
		conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if !isNotListening(err) || attempt == c.dialAttempts {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}

	return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, c.socketPath, lastErr)
}

// isNotListening reports whether err means the socket does not exist yet
// or has no listener.
func isNotListening(err error) bool {
	return errors.Is(err, unix.ECONNREFUSED) ||
		errors.Is(err, unix.ENOENT) ||
		errors.Is(err, os.ErrNotExist)
}

// readReply reads until a reply is recognised, the peer closes, no data
// arrives within the idle window, or the reply timeout elapses. Any read
// error, including a deadline, ends the exchange.
func (c *Client) readReply(ctx context.Context, conn net.Conn) *Response {
	var buf []byte
	chunk := make([]byte, readChunkSize)
	overall := time.Now().Add(c.replyTimeout)

	for {
		deadline := time.Now().Add(c.idleTimeout)
		if overall.Before(deadline) {
			deadline = overall
		}
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		if err := conn.SetReadDeadline(deadline); err != nil {
			break
		}

		n, err := conn.Read(chunk)
		buf = append(buf, chunk[:n]...)

		if resp, ok := FirstReply(buf); ok {
			return resp
		}
		if err != nil || ctx.Err() != nil {
			break
		}
	}

	return nil
}
