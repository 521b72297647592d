package xhub

import (
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xhub/inject"
)

// DefaultOwner groups listeners subscribed without an explicit owner.
const DefaultOwner = "default"

// Listener is a registered (topic, predicate, handler, policy) tuple with
// stable identity. Ids are assigned monotonically at subscription and used
// for dedup and removal.
type Listener struct {
	id        int64
	owner     string
	topic     string
	priority  int
	once      bool
	predicate Predicate
	adapter   *handlerAdapter
}

// ID returns the listener's stable identity.
func (l *Listener) ID() int64 { return l.id }

// Owner returns the listener's owner group.
func (l *Listener) Owner() string { return l.owner }

// Topic returns the subscription topic or pattern.
func (l *Listener) Topic() string { return l.topic }

// Priority returns the delivery priority; higher fires first per route.
func (l *Listener) Priority() int { return l.priority }

// Once reports whether the listener auto-removes after its first delivery
// attempt.
func (l *Listener) Once() bool { return l.once }

// Handler returns the compiled handler's name for log attribution.
func (l *Listener) Handler() string { return l.adapter.handler.Name() }

// Subscription is the handle returned by On. Cancellation is idempotent.
type Subscription struct {
	bus       *Bus
	l         *Listener
	cancelled atomic.Bool
}

// ListenerID returns the subscribed listener's id.
func (s *Subscription) ListenerID() int64 { return s.l.id }

// Topic returns the subscription topic or pattern.
func (s *Subscription) Topic() string { return s.l.topic }

// Unsubscribe removes the listener from the bus. Safe to call repeatedly
// and after a once-listener already fired.
func (s *Subscription) Unsubscribe() {
	if s.cancelled.Swap(true) {
		return
	}
	s.bus.removeListener(s.l)
}

// Cancel is an alias for Unsubscribe.
func (s *Subscription) Cancel() { s.Unsubscribe() }

type subscribeConfig struct {
	owner      string
	name       string
	predicates []Predicate
	kwargs     map[string]any
	once       bool
	debounce   time.Duration
	throttle   time.Duration
	priority   int
	injectOpts []inject.Option
}

func defaultSubscribeConfig() subscribeConfig {
	return subscribeConfig{owner: DefaultOwner}
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscribeConfig)

// WithOwner groups the listener under owner for bulk removal.
func WithOwner(owner string) SubscribeOption {
	return func(c *subscribeConfig) {
		if owner != "" {
			c.owner = owner
		}
	}
}

// Where filters delivery by the given predicates; sequences are
// AND-combined.
func Where(preds ...Predicate) SubscribeOption {
	return func(c *subscribeConfig) { c.predicates = append(c.predicates, preds...) }
}

// WithKwargs supplies static keyword arguments delivered through a Kwargs
// handler parameter on every invocation.
func WithKwargs(kwargs map[string]any) SubscribeOption {
	return func(c *subscribeConfig) { c.kwargs = kwargs }
}

// Once removes the listener after its first delivery attempt, success or
// failure.
func Once() SubscribeOption {
	return func(c *subscribeConfig) { c.once = true }
}

// WithDebounce delivers only after a quiet window of d with no newer
// matching event; each new event resets the window. Mutually exclusive
// with WithThrottle.
func WithDebounce(d time.Duration) SubscribeOption {
	return func(c *subscribeConfig) { c.debounce = d }
}

// WithThrottle delivers at most once per d, dropping intervening events.
// Mutually exclusive with WithDebounce.
func WithThrottle(d time.Duration) SubscribeOption {
	return func(c *subscribeConfig) { c.throttle = d }
}

// WithPriority orders delivery within a route; higher fires first.
// Equal priorities keep registration order.
func WithPriority(p int) SubscribeOption {
	return func(c *subscribeConfig) { c.priority = p }
}

// WithHandlerName overrides the handler name derived from the function
// symbol in logs, metrics and errors.
func WithHandlerName(name string) SubscribeOption {
	return func(c *subscribeConfig) { c.name = name }
}

// WithInjection forwards per-parameter injection options (extractor, spec
// or converter overrides) to the compile step.
func WithInjection(opts ...inject.Option) SubscribeOption {
	return func(c *subscribeConfig) { c.injectOpts = append(c.injectOpts, opts...) }
}
