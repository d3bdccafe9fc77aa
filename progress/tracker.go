// Package progress tracks progress notifications for in-flight tool calls.
//
// A Registry maps progress tokens to Trackers. The call that registers a
// token owns its entry and is the only party that removes it; notification
// delivery only ever updates existing entries.
package progress

import (
	"sync"
	"time"
)

// DefaultTotal is the total assumed until a notification supplies one.
const DefaultTotal = 1.0

// Update is one progress notification as recorded by a Tracker.
type Update struct {
	Token      string    `json:"token"`
	Progress   float64   `json:"progress"`
	Total      float64   `json:"total"`
	Percentage float64   `json:"percentage"`
	Message    string    `json:"message"`
	Time       time.Time `json:"time"`
}

// Tracker holds the progress state of one token.
type Tracker struct {
	token string

	mu       sync.Mutex
	progress float64
	total    float64
	message  string
	history  []Update
}

// NewTracker creates a tracker with progress 0 and total DefaultTotal.
func NewTracker(token string) *Tracker {
	return &Tracker{token: token, total: DefaultTotal}
}

// Token returns the tracker's progress token.
func (t *Tracker) Token() string { return t.token }

// Update records a notification. progress and message always overwrite the
// current values; total does so only when non-nil. The returned record is
// also appended to the history. Percentage is not clamped, since progress
// may exceed total.
func (t *Tracker) Update(progress float64, total *float64, message string) Update {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.progress = progress
	if total != nil {
		t.total = *total
	}
	t.message = message

	u := Update{
		Token:      t.token,
		Progress:   t.progress,
		Total:      t.total,
		Percentage: percentage(t.progress, t.total),
		Message:    t.message,
		Time:       time.Now(),
	}
	t.history = append(t.history, u)
	return u
}

// Progress returns the latest progress value.
func (t *Tracker) Progress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// Total returns the current total.
func (t *Tracker) Total() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Message returns the latest message.
func (t *Tracker) Message() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.message
}

// Percentage returns progress/total*100, or 0 when total is not positive.
func (t *Tracker) Percentage() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return percentage(t.progress, t.total)
}

// IsComplete reports whether progress has reached total.
func (t *Tracker) IsComplete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress >= t.total
}

// History returns a copy of all recorded updates, oldest first.
func (t *Tracker) History() []Update {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Update(nil), t.history...)
}

func percentage(progress, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return progress / total * 100
}
