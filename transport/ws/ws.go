// Package ws provides a WebSocket implementation of transport.Conn.
//
// Dial connects to an MCP server as a client. Handler upgrades incoming
// HTTP requests and hands each server-side connection to a callback, which
// is how tests stand up a WebSocket MCP server.
package ws

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/localrivet/mcpcontent/transport"
)

// DefaultDialTimeout bounds the TCP connect and the upgrade handshake.
const DefaultDialTimeout = 30 * time.Second

// Option configures Dial.
type Option func(*dialOptions)

type dialOptions struct {
	timeout time.Duration
}

// WithDialTimeout overrides DefaultDialTimeout.
func WithDialTimeout(d time.Duration) Option {
	return func(o *dialOptions) { o.timeout = d }
}

// Conn is a WebSocket message connection.
type Conn struct {
	conn   net.Conn
	server bool

	writeMu  sync.Mutex
	incoming chan []byte
	done     chan struct{}

	closeOnce sync.Once
	errMu     sync.Mutex
	readErr   error
}

// Dial connects to endpoint, sending headers with the upgrade request.
// http and https endpoints are dialled as ws and wss.
func Dial(ctx context.Context, endpoint string, headers http.Header, opts ...Option) (*Conn, error) {
	o := dialOptions{timeout: DefaultDialTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	dialer := ws.Dialer{Timeout: o.timeout}
	if len(headers) > 0 {
		dialer.Header = ws.HandshakeHeaderHTTP(headers)
	}

	conn, br, _, err := dialer.Dial(ctx, websocketURL(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", endpoint, err)
	}
	if br != nil {
		// Frames the server sent right after the handshake are buffered in br.
		conn = &bufferedConn{Conn: conn, r: io.MultiReader(br, conn)}
	}
	return newConn(conn, false), nil
}

func websocketURL(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "http://"):
		return "ws://" + strings.TrimPrefix(endpoint, "http://")
	case strings.HasPrefix(endpoint, "https://"):
		return "wss://" + strings.TrimPrefix(endpoint, "https://")
	default:
		return endpoint
	}
}

type bufferedConn struct {
	net.Conn
	r io.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) { return c.r.Read(p) }

// Handler returns an http.Handler that upgrades each request and passes the
// resulting connection to serve. The connection is closed when serve returns.
func Handler(serve func(conn *Conn)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		c := newConn(raw, true)
		defer c.Close()
		serve(c)
	})
}

func newConn(conn net.Conn, server bool) *Conn {
	c := &Conn{
		conn:     conn,
		server:   server,
		incoming: make(chan []byte),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// readLoop delivers data frames in order until the connection fails.
func (c *Conn) readLoop() {
	defer close(c.incoming)
	for {
		var (
			msg []byte
			op  ws.OpCode
			err error
		)
		if c.server {
			msg, op, err = wsutil.ReadClientData(c.conn)
		} else {
			msg, op, err = wsutil.ReadServerData(c.conn)
		}
		if err != nil {
			c.setReadErr(err)
			return
		}
		if op != ws.OpText && op != ws.OpBinary {
			continue
		}
		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) setReadErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.readErr == nil {
		c.readErr = err
	}
}

func (c *Conn) closedErr() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.readErr != nil {
		return fmt.Errorf("%w: %v", transport.ErrClosed, c.readErr)
	}
	return transport.ErrClosed
}

// Send writes message as a single text frame.
func (c *Conn) Send(ctx context.Context, message []byte) error {
	select {
	case <-c.done:
		return transport.ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	var err error
	if c.server {
		err = wsutil.WriteServerMessage(c.conn, ws.OpText, message)
	} else {
		err = wsutil.WriteClientMessage(c.conn, ws.OpText, message)
	}
	if err != nil {
		return fmt.Errorf("failed to write websocket message: %w", err)
	}
	return nil
}

// Receive returns the next text or binary message.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg, ok := <-c.incoming:
		if !ok {
			return nil, c.closedErr()
		}
		return msg, nil
	case <-c.done:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close sends a close frame and closes the underlying connection.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
		if c.server {
			_ = wsutil.WriteServerMessage(c.conn, ws.OpClose, body)
		} else {
			_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, body)
		}
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

var _ transport.Conn = (*Conn)(nil)
