package redisstream

import (
	"fmt"

	"github.com/trickstertwo/xhub"
)

// Adapter: Redis Streams inbound Source (Strategy + Adapter patterns)

const SourceName = "redis-streams"

func init() {
	if err := xhub.RegisterSource(SourceName, func(cfg map[string]any) (xhub.Source, error) {
		return NewSource(ConfigFromMap(cfg))
	}); err != nil {
		panic(fmt.Errorf("xhub: failed to register source %q: %w", SourceName, err))
	}
}

// Use builds a Source from cfg and attaches it to bus.
// Mirrors xlog/xclock "Use" behavior: explicit construction and install.
func Use(bus *xhub.Bus, cfg Config, opts ...Option) (*Source, error) {
	src, err := NewSource(cfg, opts...)
	if err != nil {
		return nil, err
	}
	bus.Attach(src)
	return src, nil
}
