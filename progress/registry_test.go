package progress

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localrivet/mcpcontent/logx"
)

func TestRegistryLifecycle(t *testing.T) {
	reg := NewRegistry()
	var got []Update

	call := func() {
		h, err := reg.Register("tok", func(_ context.Context, u Update) error {
			got = append(got, u)
			return nil
		})
		require.NoError(t, err)
		defer h.Release()

		assert.True(t, reg.Dispatch(context.Background(), "tok", 1, float(5), "a"))
		assert.True(t, reg.Dispatch(context.Background(), "tok", 2, nil, "b"))
		assert.True(t, reg.Dispatch(context.Background(), "tok", 3, nil, "c"))

		tr, ok := reg.Lookup("tok")
		require.True(t, ok)
		assert.Len(t, tr.History(), 3)
	}
	call()

	require.Len(t, got, 3)
	assert.Equal(t, 60.0, got[2].Percentage)
	_, ok := reg.Lookup("tok")
	assert.False(t, ok)
	assert.Equal(t, 0, reg.Len())
}

func TestRegistryReleaseOnPanic(t *testing.T) {
	reg := NewRegistry()
	assert.Panics(t, func() {
		h, err := reg.Register("tok", nil)
		require.NoError(t, err)
		defer h.Release()
		panic("call failed")
	})
	assert.Equal(t, 0, reg.Len())
}

func TestRegistryDuplicateToken(t *testing.T) {
	reg := NewRegistry()
	h, err := reg.Register("tok", nil)
	require.NoError(t, err)
	defer h.Release()

	_, err = reg.Register("tok", nil)
	assert.True(t, errors.Is(err, ErrDuplicateToken))

	_, err = reg.Register("", nil)
	assert.Error(t, err)
}

func TestHandleReleaseIsIdempotentAndScoped(t *testing.T) {
	reg := NewRegistry()
	first, err := reg.Register("tok", nil)
	require.NoError(t, err)
	first.Release()

	second, err := reg.Register("tok", nil)
	require.NoError(t, err)

	// A stale handle must not remove the newer registration.
	first.Release()
	_, ok := reg.Lookup("tok")
	assert.True(t, ok)
	assert.Same(t, second.Tracker(), mustLookup(t, reg, "tok"))

	second.Release()
	second.Release()
	assert.Equal(t, 0, reg.Len())
}

func TestRejectedDuplicateLeavesOwnerRegistered(t *testing.T) {
	reg := NewRegistry()
	var delivered int
	owner, err := reg.Register("tok", func(context.Context, Update) error {
		delivered++
		return nil
	})
	require.NoError(t, err)

	// The losing caller only holds an error, so it has nothing to release.
	loser, err := reg.Register("tok", nil)
	require.ErrorIs(t, err, ErrDuplicateToken)
	assert.Nil(t, loser)

	assert.True(t, reg.Dispatch(context.Background(), "tok", 1, nil, ""))
	assert.Equal(t, 1, delivered)

	owner.Release()
	assert.False(t, reg.Dispatch(context.Background(), "tok", 2, nil, ""))
	assert.Equal(t, 0, reg.Len())
}

func TestDispatchUnknownToken(t *testing.T) {
	var buf bytes.Buffer
	logger := logx.NewLogger(&buf, "")
	logger.SetLevel("debug")
	reg := NewRegistry(WithLogger(logger))

	assert.False(t, reg.Dispatch(context.Background(), "missing", 1, nil, ""))
	assert.Contains(t, buf.String(), "unknown token missing")
}

func TestDispatchSwallowsCallbackFailures(t *testing.T) {
	var buf bytes.Buffer
	reg := NewRegistry(WithLogger(logx.NewLogger(&buf, "")))

	failing, err := reg.Register("fails", func(context.Context, Update) error { return fmt.Errorf("sink down") })
	require.NoError(t, err)
	defer failing.Release()
	panicking, err := reg.Register("panics", func(context.Context, Update) error { panic("bad callback") })
	require.NoError(t, err)
	defer panicking.Release()

	var delivered int
	healthy, err := reg.Register("ok", func(context.Context, Update) error {
		delivered++
		return nil
	})
	require.NoError(t, err)
	defer healthy.Release()

	assert.NotPanics(t, func() {
		assert.True(t, reg.Dispatch(context.Background(), "fails", 1, nil, ""))
		assert.True(t, reg.Dispatch(context.Background(), "panics", 1, nil, ""))
		assert.True(t, reg.Dispatch(context.Background(), "ok", 1, nil, ""))
	})
	assert.Equal(t, 1, delivered)
	assert.Contains(t, buf.String(), "sink down")
	assert.Contains(t, buf.String(), "bad callback")

	// The failing tokens still recorded their updates.
	assert.Len(t, mustLookup(t, reg, "fails").History(), 1)
}

func TestRegistryConcurrentCalls(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := reg.Register(NewToken(), nil)
			if !assert.NoError(t, err) {
				return
			}
			defer h.Release()
			for p := 1; p <= 10; p++ {
				reg.Dispatch(context.Background(), h.Token(), float64(p), float(10), "")
			}
			assert.True(t, h.Tracker().IsComplete())
			assert.Len(t, h.Tracker().History(), 10)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, reg.Len())
}

func mustLookup(t *testing.T, reg *Registry, token string) *Tracker {
	t.Helper()
	tr, ok := reg.Lookup(token)
	require.True(t, ok)
	return tr
}
