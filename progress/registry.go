package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/localrivet/mcpcontent/logx"
)

// Callback receives every update recorded for a registered token. A returned
// error is logged by the Registry and otherwise ignored.
type Callback func(ctx context.Context, u Update) error

// ErrDuplicateToken is returned by Register when the token is already registered.
var ErrDuplicateToken = errors.New("progress token already registered")

type entry struct {
	tracker  *Tracker
	callback Callback
}

// Registry maps progress tokens to trackers. It is safe for concurrent use
// by many in-flight calls; each call only ever removes its own token.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  logx.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger logx.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
		logger:  logx.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle is the owning reference to a registered token. Release removes the
// entry; call it with defer right after Register.
type Handle struct {
	registry *Registry
	token    string
	entry    *entry
	once     sync.Once
}

// Token returns the registered token.
func (h *Handle) Token() string { return h.token }

// Tracker returns the tracker for the registered token.
func (h *Handle) Tracker() *Tracker { return h.entry.tracker }

// Release removes the entry from the registry. It is idempotent and never
// removes an entry registered by someone else under the same token.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.registry.remove(h.token, h.entry)
	})
}

// Register creates a tracker for token and associates cb with it. cb may be nil.
func (r *Registry) Register(token string, cb Callback) (*Handle, error) {
	if token == "" {
		return nil, fmt.Errorf("progress token must not be empty")
	}
	e := &entry{tracker: NewTracker(token), callback: cb}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[token]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateToken, token)
	}
	r.entries[token] = e
	r.logger.Debug("Registered progress token %s", token)
	return &Handle{registry: r, token: token, entry: e}, nil
}

func (r *Registry) remove(token string, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.entries[token]; ok && current == e {
		delete(r.entries, token)
		r.logger.Debug("Released progress token %s", token)
	}
}

// Lookup returns the tracker for token, if registered.
func (r *Registry) Lookup(token string) (*Tracker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[token]
	if !ok {
		return nil, false
	}
	return e.tracker, true
}

// Len returns the number of registered tokens.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Dispatch records a notification for token and forwards the resulting
// update to the token's callback. It reports whether the token was
// registered. Callback errors and panics are logged and swallowed.
func (r *Registry) Dispatch(ctx context.Context, token string, progress float64, total *float64, message string) bool {
	r.mu.RLock()
	e, ok := r.entries[token]
	r.mu.RUnlock()
	if !ok {
		r.logger.Debug("Progress notification for unknown token %s", token)
		return false
	}

	u := e.tracker.Update(progress, total, message)
	if e.callback != nil {
		r.invoke(ctx, e.callback, u)
	}
	return true
}

func (r *Registry) invoke(ctx context.Context, cb Callback, u Update) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Progress callback for token %s panicked: %v", u.Token, rec)
		}
	}()
	if err := cb(ctx, u); err != nil {
		r.logger.Error("Progress callback for token %s failed: %v", u.Token, err)
	}
}
