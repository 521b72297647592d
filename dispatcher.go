package xhub

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/xhub/inject"
	"github.com/trickstertwo/xhub/reconcile"
)

// sysLogTopic is a known noisy internal event: its debug-level entries are
// suppressed unconditionally before routing.
const sysLogTopic = "hass.event.system_log_event"

// Bus is the central Facade: it indexes listeners, expands and routes
// inbound events, and fans delivery out concurrently.
type Bus struct {
	router     *Router
	exclusions *ExclusionFilter
	engine     *reconcile.Engine
	extractors *inject.Registry
	metrics    *metricsStore
	clock      xclock.Clock
	logger     *xlog.Logger

	observerPool *ObserverPool
	observersMu  sync.RWMutex
	observers    []Observer

	baseCtx      context.Context
	cancel       context.CancelFunc
	closeTimeout time.Duration

	nextID    atomic.Int64
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once

	// deferredMu orders trackDeferred's Add against Close marking the bus
	// closed, so the WaitGroup never gains work after Close starts waiting.
	deferredMu sync.Mutex

	sourcesMu sync.Mutex
	sources   []Source

	stats busStats
}

// busStats uses lock-free atomics for dispatch-path telemetry.
type busStats struct {
	dispatched   atomic.Uint64
	excluded     atomic.Uint64
	deliveries   atomic.Uint64
	succeeded    atomic.Uint64
	failed       atomic.Uint64
	injectFailed atomic.Uint64
	cancelled    atomic.Uint64
	rateLimited  atomic.Uint64
	processingNs atomic.Int64
}

// Engine exposes the type reconciliation engine (for converter registration).
func (b *Bus) Engine() *reconcile.Engine { return b.engine }

// Extractors exposes the parameter extractor registry.
func (b *Bus) Extractors() *inject.Registry { return b.extractors }

// Router exposes the subscription index.
func (b *Bus) Router() *Router { return b.router }

// On subscribes handler to topic. The handler's signature is inspected once
// here; invalid signatures fail this subscription attempt only.
func (b *Bus) On(topic string, handler any, opts ...SubscribeOption) (*Subscription, error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}
	if topic == "" {
		return nil, ErrInvalidTopic
	}
	if handler == nil {
		return nil, ErrNilHandler
	}

	cfg := defaultSubscribeConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.debounce > 0 && cfg.throttle > 0 {
		return nil, ErrRateLimitConflict
	}

	injectOpts := cfg.injectOpts
	if cfg.name != "" {
		injectOpts = append(injectOpts, inject.WithName(cfg.name))
	}
	h, err := inject.Compile(handler, b.extractors, b.engine, injectOpts...)
	if err != nil {
		return nil, err
	}

	mode := limitNone
	interval := time.Duration(0)
	switch {
	case cfg.debounce > 0:
		mode, interval = limitDebounce, cfg.debounce
	case cfg.throttle > 0:
		mode, interval = limitThrottle, cfg.throttle
	}

	var pred Predicate
	if len(cfg.predicates) == 1 {
		pred = cfg.predicates[0]
	} else if len(cfg.predicates) > 1 {
		pred = And(cfg.predicates...)
	}

	l := &Listener{
		id:        b.nextID.Add(1),
		owner:     cfg.owner,
		topic:     topic,
		priority:  cfg.priority,
		once:      cfg.once,
		predicate: pred,
		adapter:   newHandlerAdapter(h, cfg.kwargs, mode, interval, b.clock, b.trackDeferred),
	}
	b.router.Add(l)

	b.notifyAsync(BusEvent{
		Type:       EventListenerAdded,
		Topic:      topic,
		Owner:      l.owner,
		ListenerID: l.id,
		Handler:    l.Handler(),
	})
	return &Subscription{bus: b, l: l}, nil
}

// Dispatch routes one inbound (topic, event) pair: exclusion filter, route
// expansion, predicate evaluation and dedup, then concurrent fan-out.
// Non-blocking with respect to handler execution.
func (b *Bus) Dispatch(topic string, ev *Event) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	if topic == "" {
		return ErrInvalidTopic
	}
	if ev == nil {
		return ErrNilEvent
	}

	ev = b.normalize(topic, ev)
	b.stats.dispatched.Add(1)

	if b.excludes(topic, ev) {
		b.stats.excluded.Add(1)
		return nil
	}

	routes := expandRoutes(topic, ev)
	chosen := b.selectListeners(routes, ev)

	for i := range chosen {
		d := chosen[i]
		b.wg.Add(1)
		go b.deliver(d.route, d.listener, ev)
	}

	b.notifyAsync(BusEvent{Type: EventDispatchDone, Topic: topic, Matched: len(chosen)})
	return nil
}

// normalize fills in topic and timestamp on a copy; the caller's event is
// never mutated.
func (b *Bus) normalize(topic string, ev *Event) *Event {
	if ev.Topic == topic && !ev.Time.IsZero() {
		return ev
	}
	c := *ev
	c.Topic = topic
	if c.Time.IsZero() {
		c.Time = b.clock.Now()
	}
	return &c
}

// excludes applies the configured exclusion sets and the hard-coded
// suppression of noisy internal system-log debug entries.
func (b *Bus) excludes(topic string, ev *Event) bool {
	if topic == sysLogTopic {
		if st, ok := ev.Payload.(Status); ok && st.Level == "debug" {
			return true
		}
	}
	eb, ok := ev.Payload.(EntityBearer)
	if !ok {
		return false
	}
	if !b.exclusions.Excludes(eb.EntityRef()) {
		return false
	}
	b.logger.Debug().
		Str("topic", topic).
		Str("entity", eb.EntityRef().String()).
		Msg("xhub: event excluded")
	b.notifyAsync(BusEvent{Type: EventExcluded, Topic: topic})
	return true
}

// expandRoutes specializes an entity-bearing event into its sub-routes,
// most specific first: base.<entity>, base.<domain>.*, base. Anything else
// routes on the base topic alone.
func expandRoutes(topic string, ev *Event) []string {
	eb, ok := ev.Payload.(EntityBearer)
	if !ok {
		return []string{topic}
	}
	id := eb.EntityRef()
	if id.IsZero() {
		return []string{topic}
	}
	return []string{
		topic + "." + id.String(),
		topic + "." + id.Domain + ".*",
		topic,
	}
}

type chosenDelivery struct {
	route    string
	listener *Listener
}

// selectListeners walks routes in specificity order, keeping the first
// route each listener matches on. First match wins: a listener reachable
// via several routes is attributed to the most specific one and delivered
// exactly once per event.
func (b *Bus) selectListeners(routes []string, ev *Event) []chosenDelivery {
	var (
		out  []chosenDelivery
		seen map[int64]struct{}
	)
	for _, route := range routes {
		ls := b.router.TopicListeners(route)
		if len(ls) == 0 {
			continue
		}
		if seen == nil {
			seen = make(map[int64]struct{}, len(ls))
		}
		for _, l := range ls {
			if _, dup := seen[l.id]; dup {
				continue
			}
			seen[l.id] = struct{}{}
			if l.predicate != nil && !b.evalPredicate(l, ev) {
				continue
			}
			out = append(out, chosenDelivery{route: route, listener: l})
		}
	}
	return out
}

// evalPredicate guards against panicking predicates; a panic counts as
// no-match.
func (b *Bus) evalPredicate(l *Listener, ev *Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn().
				Str("topic", ev.Topic).
				Str("handler", l.Handler()).
				Msg("xhub: predicate panic (recovered), treating as no-match")
			ok = false
		}
	}()
	return l.predicate(ev)
}

// deliver is one independently scheduled unit of work: one listener, one
// event. Failures, slowness or cancellation here never affect any other
// listener.
func (b *Bus) deliver(route string, l *Listener, ev *Event) {
	defer b.wg.Done()

	delivered, superseded := l.adapter.Deliver(b.baseCtx, ev, func(ctx context.Context, ev *Event) {
		b.runListener(ctx, route, l, ev)
	})
	if !delivered {
		b.recordDropped(route, l, ev)
	}
	if superseded != nil {
		b.recordDropped(route, l, superseded)
	}
}

// recordDropped accounts one event dropped by the listener's rate-limit
// policy: a throttled arrival, or a pending debounce event that a newer
// arrival replaced.
func (b *Bus) recordDropped(route string, l *Listener, ev *Event) {
	b.stats.rateLimited.Add(1)
	b.metrics.recordFor(l).rateLimited()
	b.notifyAsync(BusEvent{
		Type:       EventDeliveryDropped,
		Topic:      ev.Topic,
		Route:      route,
		Owner:      l.owner,
		ListenerID: l.id,
		Handler:    l.Handler(),
	})
}

// trackDeferred runs a timer-fired delivery under the shutdown WaitGroup so
// Close waits for it. A fire that loses the race with Close is discarded.
func (b *Bus) trackDeferred(run func()) {
	b.deferredMu.Lock()
	if b.closed.Load() {
		b.deferredMu.Unlock()
		return
	}
	b.wg.Add(1)
	b.deferredMu.Unlock()
	defer b.wg.Done()
	run()
}

// runListener performs the instrumented invocation: time it, classify the
// outcome, update metrics, and honor once-removal after the attempt.
func (b *Bus) runListener(ctx context.Context, route string, l *Listener, ev *Event) {
	start := b.clock.Now()
	err := l.adapter.invoke(ctx, ev)
	dur := b.clock.Since(start)

	outcome := classifyOutcome(err)
	b.metrics.recordFor(l).observe(outcome, dur, err, b.clock.Now())
	b.recordOutcome(outcome, dur)

	switch outcome {
	case OutcomeSuccess:
	case OutcomeCancelled:
		b.logger.Debug().
			Str("topic", ev.Topic).
			Str("route", route).
			Str("handler", l.Handler()).
			Msg("xhub: delivery cancelled")
	default:
		b.logger.Warn().
			Str("topic", ev.Topic).
			Str("route", route).
			Str("handler", l.Handler()).
			Str("outcome", outcome.String()).
			Err(err).
			Msg("xhub: delivery failed")
	}

	b.notifyAsync(BusEvent{
		Type:       EventDeliveryDone,
		Topic:      ev.Topic,
		Route:      route,
		Owner:      l.owner,
		ListenerID: l.id,
		Handler:    l.Handler(),
		Outcome:    outcome,
		Duration:   dur,
		Err:        err,
	})

	if l.once {
		b.removeListener(l)
	}
}

func classifyOutcome(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return OutcomeCancelled
	}
	var (
		extErr  *inject.ExtractionError
		convErr *inject.ConversionError
	)
	if errors.As(err, &extErr) || errors.As(err, &convErr) {
		return OutcomeInjection
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr.Panicked {
		return OutcomePanic
	}
	return OutcomeError
}

func (b *Bus) recordOutcome(outcome Outcome, dur time.Duration) {
	b.stats.deliveries.Add(1)
	switch outcome {
	case OutcomeSuccess:
		b.stats.succeeded.Add(1)
	case OutcomeError, OutcomePanic:
		b.stats.failed.Add(1)
	case OutcomeInjection:
		b.stats.injectFailed.Add(1)
	case OutcomeCancelled:
		b.stats.cancelled.Add(1)
	}
	b.recordProcessingTime(dur.Nanoseconds())
}

// recordProcessingTime keeps an exponential moving average of delivery time.
func (b *Bus) recordProcessingTime(ns int64) {
	const alpha = 0.2
	current := b.stats.processingNs.Load()
	if current == 0 {
		b.stats.processingNs.Store(ns)
		return
	}
	b.stats.processingNs.Store(int64(float64(ns)*alpha + float64(current)*(1-alpha)))
}

// removeListener drops a listener from the index and releases its
// rate-limit state. Used by Subscription.Unsubscribe and once-removal.
func (b *Bus) removeListener(l *Listener) {
	removed := b.router.Remove(l.topic, l.id)
	if removed == nil {
		return
	}
	removed.adapter.Stop()
	b.notifyAsync(BusEvent{
		Type:       EventListenerRemoved,
		Topic:      l.topic,
		Owner:      l.owner,
		ListenerID: l.id,
		Handler:    l.Handler(),
	})
}

// RemoveListenersByOwner bulk-removes every listener registered under owner
// and returns how many were removed.
func (b *Bus) RemoveListenersByOwner(owner string) int {
	removed := b.router.RemoveByOwner(owner)
	for _, l := range removed {
		l.adapter.Stop()
		b.notifyAsync(BusEvent{
			Type:       EventListenerRemoved,
			Topic:      l.topic,
			Owner:      l.owner,
			ListenerID: l.id,
			Handler:    l.Handler(),
		})
	}
	return len(removed)
}

// AllListenerMetrics returns serializable snapshots for every listener ever
// delivered to, including removed ones.
func (b *Bus) AllListenerMetrics() []ListenerMetrics {
	return b.metrics.All()
}

// ListenerMetricsByOwner returns snapshots for one owner group.
func (b *Bus) ListenerMetricsByOwner(owner string) []ListenerMetrics {
	return b.metrics.ByOwner(owner)
}

// Attach runs src against this bus until the bus closes.
func (b *Bus) Attach(src Source) {
	if src == nil || b.closed.Load() {
		return
	}
	b.sourcesMu.Lock()
	b.sources = append(b.sources, src)
	b.sourcesMu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := src.Run(b.baseCtx, b); err != nil && !errors.Is(err, context.Canceled) {
			b.logger.Error().Err(err).Msg("xhub: source stopped")
			b.notifyAsync(BusEvent{Type: EventError, Err: err})
		}
	}()
}

// Stats returns current bus counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Dispatched:        b.stats.dispatched.Load(),
		Excluded:          b.stats.excluded.Load(),
		Deliveries:        b.stats.deliveries.Load(),
		Succeeded:         b.stats.succeeded.Load(),
		Failed:            b.stats.failed.Load(),
		InjectionFailures: b.stats.injectFailed.Load(),
		Cancelled:         b.stats.cancelled.Load(),
		RateLimited:       b.stats.rateLimited.Load(),
		ObserverDropped:   b.observerPool.Stats().Dropped,
		ActiveListeners:   b.router.Count(),
		AvgDeliveryMs:     float64(b.stats.processingNs.Load()) / 1e6,
	}
}

// Health reports bus health for probes; degraded when more than 5% of
// deliveries fail.
func (b *Bus) Health() HealthStatus {
	if b.closed.Load() {
		return HealthStatus{
			Status:    "unhealthy",
			Timestamp: time.Now(),
			Message:   "bus is closed",
		}
	}

	stats := b.Stats()
	status := "healthy"
	if stats.Failed > 0 && stats.Deliveries > 0 {
		if float64(stats.Failed)/float64(stats.Deliveries) > 0.05 {
			status = "degraded"
		}
	}
	return HealthStatus{Status: status, Stats: stats, Timestamp: time.Now()}
}

// Close gracefully shuts the bus down: stop accepting work, cancel
// in-flight deliveries and attached sources, wait for them within ctx,
// then drain the observer pool. Idempotent.
func (b *Bus) Close(ctx context.Context) error {
	var closeErr error

	b.closeOnce.Do(func() {
		b.deferredMu.Lock()
		b.closed.Store(true)
		b.deferredMu.Unlock()

		// 1. Stop pending rate-limit timers
		for _, l := range b.router.Listeners() {
			l.adapter.Stop()
		}

		// 2. Close attached sources
		b.sourcesMu.Lock()
		sources := b.sources
		b.sourcesMu.Unlock()
		for _, src := range sources {
			if err := src.Close(ctx); err != nil {
				b.logger.Warn().Err(err).Msg("xhub: source close failed")
				closeErr = err
			}
		}

		// 3. Cancel in-flight deliveries and wait
		b.cancel()
		done := make(chan struct{})
		go func() {
			b.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			b.logger.Warn().Msg("xhub: deliveries outlived close context")
			closeErr = ErrCloseTimeout
		}

		// 4. Drain observers
		if b.observerPool != nil {
			if err := b.observerPool.Close(5 * time.Second); err != nil {
				b.logger.Warn().Err(err).Msg("xhub: observer pool shutdown timeout")
				closeErr = err
			}
		}
	})

	return closeErr
}

// AddObserver registers an observer (thread-safe).
func (b *Bus) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	b.observersMu.Lock()
	b.observers = append(b.observers, obs)
	b.observersMu.Unlock()
}

// RemoveObserver removes an observer previously added as a comparable value
// (a pointer observer, typically). Func-typed observers cannot be removed.
func (b *Bus) RemoveObserver(obs Observer) {
	if obs == nil || !reflect.TypeOf(obs).Comparable() {
		return
	}
	b.observersMu.Lock()
	defer b.observersMu.Unlock()

	for i, o := range b.observers {
		if o == obs {
			b.observers = append(b.observers[:i], b.observers[i+1:]...)
			break
		}
	}
}

// notifyAsync dispatches bus events asynchronously (non-blocking).
func (b *Bus) notifyAsync(e BusEvent) {
	if b.observerPool == nil {
		return
	}

	b.observersMu.RLock()
	n := len(b.observers)
	if n == 0 {
		b.observersMu.RUnlock()
		return
	}
	if n == 1 {
		obs := b.observers[0]
		b.observersMu.RUnlock()
		b.observerPool.Notify(e, []Observer{obs})
		return
	}
	observers := make([]Observer, n)
	copy(observers, b.observers)
	b.observersMu.RUnlock()

	b.observerPool.Notify(e, observers)
}
