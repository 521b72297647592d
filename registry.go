package xhub

import (
	"errors"
	"sync"
)

// SourceFactory constructs sources from a config blob.
type SourceFactory func(cfg map[string]any) (Source, error)

var (
	sourceRegistryMu sync.RWMutex
	sourceRegistry   = map[string]SourceFactory{}
)

// RegisterSource registers an inbound feed adapter. Adapters typically call
// this from an init func so importing the package is enough to enable them.
func RegisterSource(name string, factory SourceFactory) error {
	if name == "" {
		return errors.New("source name must not be empty")
	}
	if factory == nil {
		return errors.New("source factory must not be nil")
	}
	sourceRegistryMu.Lock()
	sourceRegistry[name] = factory
	sourceRegistryMu.Unlock()
	return nil
}

// NewSource constructs a source by name with config.
func NewSource(name string, cfg map[string]any) (Source, error) {
	sourceRegistryMu.RLock()
	f, ok := sourceRegistry[name]
	sourceRegistryMu.RUnlock()
	if !ok {
		return nil, ErrUnknownSource{name: name}
	}
	return f(cfg)
}
