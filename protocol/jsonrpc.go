package protocol

import (
	"encoding/json"
	"fmt"
)

// ErrorPayload defines the structure for the 'error' object within a JSON-RPC response.
type ErrorPayload struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// JSONRPCRequest represents a standard JSON-RPC request object.
type JSONRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"` // MUST be "2.0"
	ID      interface{} `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// JSONRPCResponse represents a standard JSON-RPC response object.
// Result is kept raw so callers can decode it into loosely-typed maps
// without an intermediate struct round-trip.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorPayload   `json:"error,omitempty"`
}

// JSONRPCNotification represents a standard JSON-RPC notification object.
// Notifications MUST NOT have an 'id' field.
type JSONRPCNotification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Envelope is used to classify an inbound message before decoding it fully.
type Envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorPayload   `json:"error,omitempty"`
}

// IsResponse reports whether the envelope carries a response to an earlier request.
func (e *Envelope) IsResponse() bool {
	return e.ID != nil && e.Method == ""
}

// IsNotification reports whether the envelope is a notification.
func (e *Envelope) IsNotification() bool {
	return e.ID == nil && e.Method != ""
}

// NewRequest creates a new JSON-RPC request object.
func NewRequest(id interface{}, method string, params interface{}) *JSONRPCRequest {
	return &JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// NewNotification creates a new JSON-RPC notification object.
func NewNotification(method string, params interface{}) (*JSONRPCNotification, error) {
	n := &JSONRPCNotification{JSONRPC: "2.0", Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal notification params: %w", err)
		}
		n.Params = raw
	}
	return n, nil
}

// UnmarshalPayload decodes a raw params or result field into target.
func UnmarshalPayload(payload json.RawMessage, target interface{}) error {
	if len(payload) == 0 || string(payload) == "null" {
		return fmt.Errorf("payload is nil or empty, cannot unmarshal")
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("failed to unmarshal payload into target type %T: %w", target, err)
	}
	return nil
}

// IDKey normalises a JSON-RPC id so responses can be matched to requests
// regardless of whether the id came back as a string or a JSON number.
func IDKey(id interface{}) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return fmt.Sprintf("%v", int64(v))
	default:
		return fmt.Sprintf("%v", v)
	}
}
