// Package transport defines the message connection the MCP client runs over.
//
// A Conn moves whole JSON-RPC messages. Implementations live in the
// subpackages: ws for WebSocket endpoints and stdio for newline-delimited
// streams (subprocess servers and in-memory pipes).
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send and Receive once the connection is closed.
var ErrClosed = errors.New("transport closed")

// Conn is a bidirectional message connection.
type Conn interface {
	// Send writes one complete message.
	Send(ctx context.Context, message []byte) error
	// Receive blocks until the next message arrives, ctx is done, or the
	// connection fails. After the peer goes away it returns an error
	// wrapping ErrClosed.
	Receive(ctx context.Context) ([]byte, error)
	// Close releases the connection. It is safe to call more than once.
	Close() error
}
