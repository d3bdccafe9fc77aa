// Package stdio provides a newline-delimited JSON implementation of
// transport.Conn over a pair of byte streams.
//
// NewConn wraps any reader/writer pair, Command starts an MCP server as a
// subprocess and talks to it over its stdin/stdout, and Pipe returns two
// connected in-memory ends.
package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/localrivet/mcpcontent/logx"
	"github.com/localrivet/mcpcontent/transport"
)

// maxMessageSize bounds a single line; tool results with inline media can be large.
const maxMessageSize = 64 << 20

// Option configures a Conn.
type Option func(*Conn)

// WithLogger sets the connection logger.
func WithLogger(logger logx.Logger) Option {
	return func(c *Conn) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Conn reads one JSON message per line and writes each message followed by
// a newline.
type Conn struct {
	reader io.Reader
	writer io.Writer
	logger logx.Logger

	writeMu  sync.Mutex
	incoming chan []byte
	done     chan struct{}

	closeOnce sync.Once
	onClose   func() error
	errMu     sync.Mutex
	readErr   error
}

// NewConn starts reading r and returns a Conn writing to w. Closing the Conn
// closes r and w when they implement io.Closer.
func NewConn(r io.Reader, w io.Writer, opts ...Option) *Conn {
	c := &Conn{
		reader:   r,
		writer:   w,
		logger:   logx.NewNopLogger(),
		incoming: make(chan []byte),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c
}

// Pipe returns two connected in-memory Conns.
func Pipe(opts ...Option) (*Conn, *Conn) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return NewConn(ar, aw, opts...), NewConn(br, bw, opts...)
}

func (c *Conn) readLoop() {
	defer close(c.incoming)

	reader := bufio.NewReaderSize(c.reader, 64*1024)
	for {
		line, err := readLine(reader)
		if len(line) > 0 {
			if !json.Valid(line) {
				c.logger.Warn("stdio: skipping non-JSON line: %.200s", line)
			} else {
				select {
				case c.incoming <- line:
				case <-c.done:
					return
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Error("stdio: read failed: %v", err)
			}
			c.setReadErr(err)
			return
		}
	}
}

// readLine returns the next line without its terminator, trimmed of
// surrounding whitespace.
func readLine(r *bufio.Reader) ([]byte, error) {
	var buf bytes.Buffer
	for {
		chunk, err := r.ReadSlice('\n')
		buf.Write(chunk)
		if buf.Len() > maxMessageSize {
			return nil, fmt.Errorf("message exceeds %d bytes", maxMessageSize)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return bytes.TrimSpace(buf.Bytes()), err
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
	if c.readErr != nil && !errors.Is(c.readErr, io.EOF) {
		return fmt.Errorf("%w: %v", transport.ErrClosed, c.readErr)
	}
	return transport.ErrClosed
}

// Send writes message followed by a single newline.
func (c *Conn) Send(_ context.Context, message []byte) error {
	select {
	case <-c.done:
		return transport.ErrClosed
	default:
	}
	message = bytes.TrimRight(message, "\r\n")
	if len(message) == 0 {
		return fmt.Errorf("cannot send empty message")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	line := make([]byte, 0, len(message)+1)
	line = append(append(line, message...), '\n')
	if _, err := c.writer.Write(line); err != nil {
		if errors.Is(err, io.ErrClosedPipe) {
			return fmt.Errorf("%w: %v", transport.ErrClosed, err)
		}
		return fmt.Errorf("failed to write message: %w", err)
	}
	if f, ok := c.writer.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("failed to flush message: %w", err)
		}
	}
	return nil
}

// Receive returns the next message.
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

// Close closes the underlying streams.
func (c *Conn) Close() error {
	var firstErr error
	c.closeOnce.Do(func() {
		close(c.done)
		if closer, ok := c.writer.(io.Closer); ok {
			if err := closer.Close(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
				firstErr = err
			}
		}
		if closer, ok := c.reader.(io.Closer); ok {
			if err := closer.Close(); err != nil && !errors.Is(err, io.ErrClosedPipe) && firstErr == nil {
				firstErr = err
			}
		}
		if c.onClose != nil {
			if err := c.onClose(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})
	return firstErr
}

var _ transport.Conn = (*Conn)(nil)
