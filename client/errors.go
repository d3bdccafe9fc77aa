package client

import (
	"errors"
	"fmt"
	"time"
)

// Standard error types that can be used with errors.Is()
var (
	ErrNotConnected     = errors.New("client is not connected")
	ErrRequestTimeout   = errors.New("request timed out")
	ErrVersionMismatch  = errors.New("protocol version mismatch")
	ErrTransportFailure = errors.New("transport failure")
	ErrInvalidResponse  = errors.New("invalid response from server")
	ErrServerError      = errors.New("server reported error")
	ErrToolError        = errors.New("tool reported error")
	ErrCancelled        = errors.New("operation was cancelled")
)

// ClientError is the base error type for client errors
type ClientError struct {
	Message string
	Code    int
	Cause   error
}

// Error implements the error interface
func (e *ClientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (code=%d): %v", e.Message, e.Code, e.Cause)
	}
	return fmt.Sprintf("%s (code=%d)", e.Message, e.Code)
}

// Unwrap returns the underlying cause
func (e *ClientError) Unwrap() error {
	return e.Cause
}

// TransportError indicates a problem moving messages over the connection.
type TransportError struct {
	ClientError
	Transport string
}

// Error implements the error interface
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error (%s): %s", e.Transport, e.ClientError.Error())
}

// ConnectionError indicates the session could not be established or is gone.
type ConnectionError struct {
	ClientError
	Endpoint string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error (%s): %s", e.Endpoint, e.ClientError.Error())
}

// TimeoutError indicates a request deadline expired.
type TimeoutError struct {
	ClientError
	Operation string
	Timeout   time.Duration
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %v during %s: %s", e.Timeout, e.Operation, e.ClientError.Error())
}

// ServerError represents a JSON-RPC error response.
type ServerError struct {
	ClientError
	Method string
	Data   interface{}
}

// Error implements the error interface
func (e *ServerError) Error() string {
	return fmt.Sprintf("server error during %s: %s", e.Method, e.ClientError.Error())
}

// ToolError is returned when a tool call succeeds at the protocol level but
// the tool flags its result with isError. Detail is the result's text content.
type ToolError struct {
	Tool   string
	Detail string
}

// Error implements the error interface
func (e *ToolError) Error() string {
	return fmt.Sprintf("tool error: %s", e.Detail)
}

// Is makes errors.Is(err, ErrToolError) hold for every ToolError.
func (e *ToolError) Is(target error) bool {
	return target == ErrToolError
}

// NewClientError creates a new ClientError
func NewClientError(message string, code int, cause error) error {
	return &ClientError{
		Message: message,
		Code:    code,
		Cause:   cause,
	}
}

// NewTransportError creates a new TransportError
func NewTransportError(transport, message string, cause error) error {
	return &TransportError{
		ClientError: ClientError{Message: message, Cause: cause},
		Transport:   transport,
	}
}

// NewConnectionError creates a new ConnectionError
func NewConnectionError(endpoint, message string, cause error) error {
	return &ConnectionError{
		ClientError: ClientError{Message: message, Cause: cause},
		Endpoint:    endpoint,
	}
}

// NewTimeoutError creates a new TimeoutError
func NewTimeoutError(operation string, timeout time.Duration, cause error) error {
	return &TimeoutError{
		ClientError: ClientError{
			Message: fmt.Sprintf("operation timed out after %v", timeout),
			Cause:   cause,
		},
		Operation: operation,
		Timeout:   timeout,
	}
}

// NewServerError creates a new ServerError
func NewServerError(method string, code int, message string, data interface{}) error {
	return &ServerError{
		ClientError: ClientError{Message: message, Code: code, Cause: ErrServerError},
		Method:      method,
		Data:        data,
	}
}

// NewToolError creates a new ToolError
func NewToolError(tool, detail string) error {
	return &ToolError{Tool: tool, Detail: detail}
}

// IsTimeoutError checks if an error is a timeout error
func IsTimeoutError(err error) bool {
	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr) || errors.Is(err, ErrRequestTimeout)
}

// IsTransportError checks if an error is a transport error
func IsTransportError(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr) || errors.Is(err, ErrTransportFailure)
}

// IsConnectionError checks if an error is a connection error
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr) || errors.Is(err, ErrNotConnected)
}

// IsServerError checks if an error is a server-reported error
func IsServerError(err error) bool {
	var serverErr *ServerError
	return errors.As(err, &serverErr) || errors.Is(err, ErrServerError)
}

// IsToolError checks if an error is a tool-reported error
func IsToolError(err error) bool {
	var toolErr *ToolError
	return errors.As(err, &toolErr)
}
