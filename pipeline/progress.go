package pipeline

import (
	"context"

	"github.com/localrivet/mcpcontent/progress"
)

// NewProgressCallback returns a progress callback that forwards every update
// for toolName to sink as an event of eventType (EventToolProgress when empty).
func NewProgressCallback(sink EventSink, toolName, eventType string) progress.Callback {
	if eventType == "" {
		eventType = EventToolProgress
	}
	return func(ctx context.Context, u progress.Update) error {
		if sink == nil {
			return nil
		}
		return sink.Emit(ctx, Event{
			Type: eventType,
			Data: map[string]interface{}{
				"tool":       toolName,
				"progress":   u.Progress,
				"total":      u.Total,
				"percentage": u.Percentage,
				"message":    u.Message,
			},
		})
	}
}
