package xhub

import (
	"fmt"
	"sync"
)

var (
	defaultBus   *Bus
	defaultBusMu sync.Mutex
)

// Default returns the process-wide singleton Bus.
func Default() *Bus {
	defaultBusMu.Lock()
	defer defaultBusMu.Unlock()

	if defaultBus != nil {
		return defaultBus
	}

	bus, err := NewBusBuilder().Build()
	if err != nil {
		panic(fmt.Sprintf("xhub: failed to initialize default bus: %v", err))
	}
	defaultBus = bus
	return defaultBus
}

// SetDefault replaces the process-wide default Bus.
func SetDefault(b *Bus) {
	if b == nil {
		panic("xhub: SetDefault called with nil Bus")
	}
	defaultBusMu.Lock()
	defaultBus = b
	defaultBusMu.Unlock()
}

// On is the Facade using the default bus.
func On(topic string, handler any, opts ...SubscribeOption) (*Subscription, error) {
	return Default().On(topic, handler, opts...)
}

// Dispatch is the Facade using the default bus.
func Dispatch(topic string, ev *Event) error {
	return Default().Dispatch(topic, ev)
}

// RemoveListenersByOwner is the Facade using the default bus.
func RemoveListenersByOwner(owner string) int {
	return Default().RemoveListenersByOwner(owner)
}
