package xhub

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xclock"

	"github.com/trickstertwo/xhub/inject"
	"github.com/trickstertwo/xhub/reconcile"
)

func compileHandler(t *testing.T, fn any) *inject.Handler {
	t.Helper()
	h, err := inject.Compile(fn, DefaultExtractors(), reconcile.NewEngine(nil))
	require.NoError(t, err)
	return h
}

func TestThrottle_FirstWinsWithinWindow(t *testing.T) {
	bus := newTestBus(t)

	var count atomic.Int64
	_, err := bus.On("t", func(ev *Event) error {
		count.Add(1)
		return nil
	}, WithThrottle(time.Hour))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Dispatch("t", NewEvent("t", i)))
	}

	eventually(t, func() bool { return count.Load() == 1 }, "exactly one delivery in the window")
	eventually(t, func() bool { return bus.Stats().RateLimited == 4 }, "the rest must be dropped")

	metrics := bus.AllListenerMetrics()
	require.Len(t, metrics, 1)
	assert.Equal(t, uint64(4), metrics[0].RateLimited)
	assert.Equal(t, uint64(1), metrics[0].Invocations)
}

func TestThrottle_FiresAgainAfterWindow(t *testing.T) {
	bus := newTestBus(t)

	var count atomic.Int64
	_, err := bus.On("t", func(ev *Event) error {
		count.Add(1)
		return nil
	}, WithThrottle(40*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, bus.Dispatch("t", NewEvent("t", nil)))
	eventually(t, func() bool { return count.Load() == 1 }, "first delivery")

	time.Sleep(60 * time.Millisecond)
	require.NoError(t, bus.Dispatch("t", NewEvent("t", nil)))
	eventually(t, func() bool { return count.Load() == 2 }, "window elapsed, next event fires")
}

func TestDebounce_CoalescesBurstToLastEvent(t *testing.T) {
	bus := newTestBus(t)

	var count atomic.Int64
	var last atomic.Value
	_, err := bus.On("t", func(ev *Event) error {
		last.Store(ev.Payload)
		count.Add(1)
		return nil
	}, WithDebounce(80*time.Millisecond))
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.NoError(t, bus.Dispatch("t", NewEvent("t", i)))
		time.Sleep(10 * time.Millisecond)
	}

	eventually(t, func() bool { return count.Load() == 1 }, "burst must coalesce to one delivery")
	assert.Equal(t, 3, last.Load(), "the last event of the burst wins")

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, int64(1), count.Load(), "no trailing extra delivery")
}

func TestDebounce_SupersededEventsCountAsRateLimited(t *testing.T) {
	bus := newTestBus(t)

	var count atomic.Int64
	_, err := bus.On("t", func(ev *Event) error {
		count.Add(1)
		return nil
	}, WithDebounce(60*time.Millisecond))
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.NoError(t, bus.Dispatch("t", NewEvent("t", i)))
		time.Sleep(10 * time.Millisecond)
	}

	eventually(t, func() bool { return count.Load() == 1 }, "burst must coalesce to one delivery")
	eventually(t, func() bool { return bus.Stats().RateLimited == 2 }, "each replaced pending event counts as a drop")

	metrics := bus.AllListenerMetrics()
	require.Len(t, metrics, 1)
	assert.Equal(t, uint64(2), metrics[0].RateLimited)
	assert.Equal(t, uint64(1), metrics[0].Invocations)
}

func TestDebounce_SeparateBurstsEachFire(t *testing.T) {
	bus := newTestBus(t)

	var count atomic.Int64
	_, err := bus.On("t", func(ev *Event) error {
		count.Add(1)
		return nil
	}, WithDebounce(30*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, bus.Dispatch("t", NewEvent("t", 1)))
	eventually(t, func() bool { return count.Load() == 1 }, "first burst")

	require.NoError(t, bus.Dispatch("t", NewEvent("t", 2)))
	eventually(t, func() bool { return count.Load() == 2 }, "second burst")
}

func TestAdapter_StopCancelsPendingDebounce(t *testing.T) {
	var count atomic.Int64
	h := compileHandler(t, func(ev *Event) error {
		count.Add(1)
		return nil
	})
	a := newHandlerAdapter(h, nil, limitDebounce, 30*time.Millisecond, xclock.Default(), nil)

	a.Deliver(context.Background(), NewEvent("t", nil), func(ctx context.Context, ev *Event) {
		_ = a.invoke(ctx, ev)
	})
	a.Stop()

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int64(0), count.Load(), "stopped adapters never fire")

	// Scheduling after Stop is refused outright.
	delivered, _ := a.Deliver(context.Background(), NewEvent("t", nil), func(ctx context.Context, ev *Event) {
		_ = a.invoke(ctx, ev)
	})
	assert.False(t, delivered)
}

func TestAdapter_InvokeClassifiesErrors(t *testing.T) {
	sentinel := errors.New("boom")

	t.Run("handler error wraps into InvocationError", func(t *testing.T) {
		h := compileHandler(t, func(ev *Event) error { return sentinel })
		a := newHandlerAdapter(h, nil, limitNone, 0, xclock.Default(), nil)

		err := a.invoke(context.Background(), NewEvent("t", nil))
		var invErr *InvocationError
		require.ErrorAs(t, err, &invErr)
		assert.False(t, invErr.Panicked)
		assert.ErrorIs(t, err, sentinel)
	})

	t.Run("panic is recovered", func(t *testing.T) {
		h := compileHandler(t, func(ev *Event) error { panic("kaboom") })
		a := newHandlerAdapter(h, nil, limitNone, 0, xclock.Default(), nil)

		err := a.invoke(context.Background(), NewEvent("t", nil))
		var invErr *InvocationError
		require.ErrorAs(t, err, &invErr)
		assert.True(t, invErr.Panicked)
		assert.Contains(t, err.Error(), "kaboom")
	})

	t.Run("cancellation passes through unwrapped", func(t *testing.T) {
		h := compileHandler(t, func(ctx context.Context, ev *Event) error { return ctx.Err() })
		a := newHandlerAdapter(h, nil, limitNone, 0, xclock.Default(), nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := a.invoke(ctx, NewEvent("t", nil))
		assert.ErrorIs(t, err, context.Canceled)
		var invErr *InvocationError
		assert.False(t, errors.As(err, &invErr))
	})

	t.Run("injection errors pass through", func(t *testing.T) {
		h := compileHandler(t, func(n int) error { return nil })
		a := newHandlerAdapter(h, nil, limitNone, 0, xclock.Default(), nil)

		err := a.invoke(context.Background(), NewEvent("t", nil))
		var extErr *inject.ExtractionError
		require.ErrorAs(t, err, &extErr)
	})
}
