package pipeline

import (
	"context"

	"github.com/localrivet/mcpcontent/auth"
)

// MediaSink stores decoded media and returns a URL for it. An empty URL
// without an error is treated as a failed upload.
type MediaSink interface {
	Store(ctx context.Context, data []byte, mimeType string, metadata map[string]interface{}, principal auth.Principal) (string, error)
}

// MediaSinkFunc adapts a function to the MediaSink interface.
type MediaSinkFunc func(ctx context.Context, data []byte, mimeType string, metadata map[string]interface{}, principal auth.Principal) (string, error)

// Store implements MediaSink.
func (f MediaSinkFunc) Store(ctx context.Context, data []byte, mimeType string, metadata map[string]interface{}, principal auth.Principal) (string, error) {
	return f(ctx, data, mimeType, metadata, principal)
}

// Event is an envelope delivered to an EventSink.
type Event struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// Event types produced by this package.
const (
	EventFiles        = "files"
	EventToolProgress = "tool_progress"
	EventStatus       = "status"
)

// EventSink receives events about a tool call.
type EventSink interface {
	Emit(ctx context.Context, event Event) error
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(ctx context.Context, event Event) error

// Emit implements EventSink.
func (f EventSinkFunc) Emit(ctx context.Context, event Event) error { return f(ctx, event) }
