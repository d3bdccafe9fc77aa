// Package protocol defines the wire structures and constants of the Model Context Protocol (MCP)
// consumed by this module.
package protocol

const (
	// CurrentProtocolVersion is the MCP revision requested during the initialize handshake.
	CurrentProtocolVersion = "2025-06-18"
	OldProtocolVersion     = "2025-03-26" // still accepted from servers

	// Initialization
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized" // Notification

	// Tools
	MethodListTools = "tools/list"
	MethodCallTool  = "tools/call"

	// Resources
	MethodListResources = "resources/list"
	MethodReadResource  = "resources/read"

	// Ping
	MethodPing = "ping"

	// Cancellation & Progress (Notifications)
	MethodCancelled = "notifications/cancelled"
	MethodProgress  = "notifications/progress"

	// Logging
	MethodNotificationMessage = "notifications/message"
)

// SupportedProtocolVersions lists the revisions accepted from a server's
// initialize response, newest first.
var SupportedProtocolVersions = []string{CurrentProtocolVersion, OldProtocolVersion, "2024-11-05"}

// IsSupportedProtocolVersion reports whether v is in SupportedProtocolVersions.
func IsSupportedProtocolVersion(v string) bool {
	for _, s := range SupportedProtocolVersions {
		if s == v {
			return true
		}
	}
	return false
}

// Keys of the raw tools/call result object. The parser reads these directly
// from the loosely-typed payload.
const (
	KeyContent           = "content"
	KeyStructuredContent = "structuredContent"
	KeyIsError           = "isError"
	KeyMeta              = "_meta"
	KeyProgressToken     = "progressToken"
)

// Content block discriminators.
const (
	ContentTypeText     = "text"
	ContentTypeImage    = "image"
	ContentTypeAudio    = "audio"
	ContentTypeResource = "resource"
)

// ErrorCode is a JSON-RPC error code.
type ErrorCode int

// Standard JSON-RPC error codes.
const (
	CodeParseError     ErrorCode = -32700
	CodeInvalidRequest ErrorCode = -32600
	CodeMethodNotFound ErrorCode = -32601
	CodeInvalidParams  ErrorCode = -32602
	CodeInternalError  ErrorCode = -32603

	// MCP specific
	ErrorCodeMCPAuthenticationFailed ErrorCode = -32020
	ErrorCodeMCPResourceNotFound     ErrorCode = -32002
)
