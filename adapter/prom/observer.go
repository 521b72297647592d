// Package prom exposes bus delivery telemetry in Prometheus format.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/trickstertwo/xhub"
)

// Observer converts bus lifecycle events into Prometheus metrics. Attach it
// with BusBuilder.WithObserver; it is safe for the concurrent observer pool.
type Observer struct {
	dispatches  prometheus.Counter
	excluded    prometheus.Counter
	deliveries  *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	listeners   prometheus.Gauge
	poolDropped prometheus.Counter
}

// NewObserver registers the bus metric set on reg (nil uses the default
// registerer).
func NewObserver(reg prometheus.Registerer) *Observer {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Observer{
		dispatches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "xhub",
			Name:      "dispatches_total",
			Help:      "Total number of events dispatched into the bus",
		}),
		excluded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "xhub",
			Name:      "excluded_total",
			Help:      "Total number of events dropped by exclusion filters",
		}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xhub",
			Name:      "deliveries_total",
			Help:      "Total listener deliveries by topic and outcome",
		}, []string{"topic", "outcome"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xhub",
			Name:      "deliveries_dropped_total",
			Help:      "Deliveries dropped by debounce or throttle, by topic",
		}, []string{"topic"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "xhub",
			Name:      "delivery_duration_seconds",
			Help:      "Listener execution time in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"topic"}),
		listeners: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "xhub",
			Name:      "listeners",
			Help:      "Number of registered listeners",
		}),
		poolDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "xhub",
			Name:      "observer_events_dropped_total",
			Help:      "Observer-pool events dropped because the buffer was full",
		}),
	}
}

// OnBusEvent implements xhub.Observer.
func (o *Observer) OnBusEvent(e xhub.BusEvent) {
	switch e.Type {
	case xhub.EventDispatchDone:
		o.dispatches.Inc()
	case xhub.EventExcluded:
		o.excluded.Inc()
	case xhub.EventDeliveryDone:
		o.deliveries.WithLabelValues(e.Topic, e.Outcome.String()).Inc()
		o.duration.WithLabelValues(e.Topic).Observe(e.Duration.Seconds())
	case xhub.EventDeliveryDropped:
		o.dropped.WithLabelValues(e.Topic).Inc()
	case xhub.EventListenerAdded:
		o.listeners.Inc()
	case xhub.EventListenerRemoved:
		o.listeners.Dec()
	}
}
