package xhub

import (
	"time"

	"github.com/trickstertwo/xlog"
)

// BusEventType enumerates internal lifecycle events for the Observer pattern.
type BusEventType string

const (
	EventDispatchDone    BusEventType = "dispatch_done"
	EventDeliveryDone    BusEventType = "delivery_done"
	EventDeliveryDropped BusEventType = "delivery_dropped"
	EventExcluded        BusEventType = "excluded"
	EventListenerAdded   BusEventType = "listener_added"
	EventListenerRemoved BusEventType = "listener_removed"
	EventError           BusEventType = "error"
)

// BusEvent carries dispatch/delivery telemetry for observers.
type BusEvent struct {
	Type       BusEventType
	Topic      string
	Route      string
	Owner      string
	ListenerID int64
	Handler    string
	Outcome    Outcome
	Matched    int // listeners chosen by a dispatch
	Duration   time.Duration
	Err        error

	// Internal: attached for async dispatch
	observers []Observer
}

// Observer receives bus lifecycle events. Implementations should be
// non-blocking; slow observers only cost dropped telemetry, never delivery.
type Observer interface {
	OnBusEvent(e BusEvent)
}

// ObserverFunc is an Adapter that lets a plain function satisfy Observer.
type ObserverFunc func(e BusEvent)

func (f ObserverFunc) OnBusEvent(e BusEvent) { f(e) }

// LoggingObserver is an Adapter that emits bus events via xlog.
type LoggingObserver struct {
	Logger *xlog.Logger
}

func (o LoggingObserver) OnBusEvent(e BusEvent) {
	if o.Logger == nil {
		return
	}
	ev := o.Logger.With(
		xlog.Str("type", string(e.Type)),
		xlog.Str("topic", e.Topic),
	)
	if e.Route != "" {
		ev = ev.With(xlog.Str("route", e.Route))
	}
	if e.Handler != "" {
		ev = ev.With(xlog.Str("handler", e.Handler))
	}
	if e.Duration > 0 {
		ev = ev.With(xlog.Dur("duration", e.Duration))
	}

	switch {
	case e.Type == EventError, e.Err != nil:
		ev.Warn().Err(e.Err).Msg("xhub event")
	case e.Type == EventDeliveryDone && (e.Outcome == OutcomeError || e.Outcome == OutcomePanic || e.Outcome == OutcomeInjection):
		ev.Warn().Msg("xhub event")
	default:
		ev.Debug().Msg("xhub event")
	}
}
