package xhub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/trickstertwo/xclock"

	"github.com/trickstertwo/xhub/inject"
)

type rateLimitMode uint8

const (
	limitNone rateLimitMode = iota
	limitDebounce
	limitThrottle
)

func (m rateLimitMode) String() string {
	switch m {
	case limitDebounce:
		return "debounce"
	case limitThrottle:
		return "throttle"
	default:
		return "direct"
	}
}

// handlerAdapter wraps a compiled handler with its kwargs and rate-limit
// policy into a uniform deliver capability. Internal state (pending
// debounce timer, last-fire timestamp) is the only mutable part of a
// listener after registration.
type handlerAdapter struct {
	handler  *inject.Handler
	kwargs   map[string]any
	mode     rateLimitMode
	interval time.Duration
	clock    xclock.Clock

	// track runs a timer-fired delivery under the bus's shutdown tracking.
	// nil means run inline (direct invocation, tests).
	track func(run func())

	mu        sync.Mutex
	pending   *time.Timer
	pendingEv *Event
	lastFire  time.Time
	fired     bool
	stopped   bool
}

func newHandlerAdapter(h *inject.Handler, kwargs map[string]any, mode rateLimitMode, interval time.Duration, clock xclock.Clock, track func(run func())) *handlerAdapter {
	return &handlerAdapter{
		handler:  h,
		kwargs:   kwargs,
		mode:     mode,
		interval: interval,
		clock:    clock,
		track:    track,
	}
}

// Deliver applies the rate-limit policy. run performs the actual
// (instrumented) invocation: immediately for direct mode, now-or-never for
// throttle, and after the quiet window for debounce. delivered is false when
// ev itself was dropped without run being scheduled; superseded carries the
// previously pending debounce event that ev replaced, so the caller can
// account its drop.
func (a *handlerAdapter) Deliver(ctx context.Context, ev *Event, run func(context.Context, *Event)) (delivered bool, superseded *Event) {
	switch a.mode {
	case limitThrottle:
		a.mu.Lock()
		now := a.clock.Now()
		if a.fired && now.Sub(a.lastFire) < a.interval {
			a.mu.Unlock()
			return false, nil
		}
		a.lastFire = now
		a.fired = true
		a.mu.Unlock()
		run(ctx, ev)
		return true, nil

	case limitDebounce:
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.stopped {
			return false, nil
		}
		// A newer event cancels and replaces the pending one; only the
		// last event of a quiet window is ever delivered.
		if a.pending != nil {
			a.pending.Stop()
			superseded = a.pendingEv
		}
		a.pendingEv = ev
		a.pending = time.AfterFunc(a.interval, func() {
			a.mu.Lock()
			a.pending = nil
			a.pendingEv = nil
			stopped := a.stopped
			a.mu.Unlock()
			if stopped {
				return
			}
			if a.track != nil {
				a.track(func() { run(ctx, ev) })
				return
			}
			run(ctx, ev)
		})
		return true, superseded

	default:
		run(ctx, ev)
		return true, nil
	}
}

// Stop cancels any pending debounce timer and refuses further scheduling.
func (a *handlerAdapter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	if a.pending != nil {
		a.pending.Stop()
		a.pending = nil
		a.pendingEv = nil
	}
}

// invoke runs the injection pipeline and the handler body. Handler failures
// come back as a single *InvocationError; injection errors and cancellation
// pass through untouched so the dispatcher can classify them.
func (a *handlerAdapter) invoke(ctx context.Context, ev *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &InvocationError{
				Handler:  a.handler.Name(),
				Panicked: true,
				Err:      fmt.Errorf("panic recovered: %v", r),
			}
		}
	}()

	err = a.handler.Call(ctx, ev, a.kwargs)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var (
		extErr  *inject.ExtractionError
		convErr *inject.ConversionError
	)
	if errors.As(err, &extErr) || errors.As(err, &convErr) {
		return err
	}
	return &InvocationError{Handler: a.handler.Name(), Err: err}
}
