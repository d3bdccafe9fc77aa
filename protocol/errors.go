package protocol

import "fmt"

// MCPError wraps ErrorPayload to implement the error interface.
type MCPError struct {
	ErrorPayload
}

// Error implements the error interface for MCPError.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP Error: Code=%d, Message=%s", e.Code, e.Message)
}

// NewMCPError creates an MCPError from a response error payload.
func NewMCPError(payload ErrorPayload) *MCPError {
	return &MCPError{ErrorPayload: payload}
}

// BoolPtr is a helper function to return a pointer to a boolean value.
func BoolPtr(b bool) *bool {
	return &b
}

// StringPtr is a helper function to return a pointer to a string value.
func StringPtr(s string) *string {
	return &s
}

// Float64Ptr is a helper function to return a pointer to a float64 value.
func Float64Ptr(f float64) *float64 {
	return &f
}
