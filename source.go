package xhub

import "context"

// Sink accepts routed events. *Bus satisfies Sink.
type Sink interface {
	Dispatch(topic string, ev *Event) error
}

// Source is an inbound event feed (Strategy). Run blocks until ctx is
// cancelled or the feed fails; Close releases any connection state.
type Source interface {
	Run(ctx context.Context, sink Sink) error
	Close(ctx context.Context) error
}
