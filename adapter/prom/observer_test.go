package prom

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/xhub"
)

func TestObserver_CountsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewObserver(reg)

	o.OnBusEvent(xhub.BusEvent{Type: xhub.EventDispatchDone, Topic: "hass.state"})
	o.OnBusEvent(xhub.BusEvent{
		Type:     xhub.EventDeliveryDone,
		Topic:    "hass.state",
		Outcome:  xhub.OutcomeSuccess,
		Duration: 3 * time.Millisecond,
	})
	o.OnBusEvent(xhub.BusEvent{
		Type:    xhub.EventDeliveryDone,
		Topic:   "hass.state",
		Outcome: xhub.OutcomeError,
	})
	o.OnBusEvent(xhub.BusEvent{Type: xhub.EventDeliveryDropped, Topic: "hass.state"})
	o.OnBusEvent(xhub.BusEvent{Type: xhub.EventExcluded, Topic: "hass.state"})

	assert.Equal(t, float64(1), testutil.ToFloat64(o.dispatches))
	assert.Equal(t, float64(1), testutil.ToFloat64(o.excluded))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(o.deliveries.WithLabelValues("hass.state", "success")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(o.deliveries.WithLabelValues("hass.state", "error")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(o.dropped.WithLabelValues("hass.state")))
}

func TestObserver_ListenerGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewObserver(reg)

	o.OnBusEvent(xhub.BusEvent{Type: xhub.EventListenerAdded})
	o.OnBusEvent(xhub.BusEvent{Type: xhub.EventListenerAdded})
	o.OnBusEvent(xhub.BusEvent{Type: xhub.EventListenerRemoved})

	assert.Equal(t, float64(1), testutil.ToFloat64(o.listeners))
}

func TestCollector_ExportsListenerSnapshots(t *testing.T) {
	bus, err := xhub.NewBusBuilder().Build()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = bus.Close(ctx)
	})

	_, err = bus.On("t", func(ev *xhub.Event) error { return nil },
		xhub.WithHandlerName("exported"))
	require.NoError(t, err)

	require.NoError(t, bus.Dispatch("t", xhub.NewEvent("t", nil)))
	require.Eventually(t, func() bool {
		return bus.Stats().Deliveries == 1
	}, 2*time.Second, 5*time.Millisecond)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewCollector(bus)))

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["xhub_listener_invocations_total"])
	assert.True(t, names["xhub_listener_failures_total"])
	assert.True(t, names["xhub_listener_busy_seconds_total"])
}

func TestCollector_PanicCountsAsOneFailure(t *testing.T) {
	bus, err := xhub.NewBusBuilder().Build()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = bus.Close(ctx)
	})

	_, err = bus.On("t", func(ev *xhub.Event) error { panic("kaboom") },
		xhub.WithHandlerName("panicker"))
	require.NoError(t, err)

	require.NoError(t, bus.Dispatch("t", xhub.NewEvent("t", nil)))
	require.Eventually(t, func() bool {
		return bus.Stats().Deliveries == 1
	}, 2*time.Second, 5*time.Millisecond)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewCollector(bus)))

	families, err := reg.Gather()
	require.NoError(t, err)

	var failures float64
	for _, f := range families {
		if f.GetName() != "xhub_listener_failures_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			failures += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), failures, "a panicking delivery is one failure, not two")
}
