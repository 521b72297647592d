package xhub

import (
	"context"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/xhub/inject"
	"github.com/trickstertwo/xhub/reconcile"
)

// BusBuilder constructs Bus instances (Builder pattern).
type BusBuilder struct {
	cfg        Config
	cfgSet     bool
	logger     *xlog.Logger
	clock      xclock.Clock
	converters *reconcile.Registry
	extractors *inject.Registry
	observers  []Observer
	exclusions *ExclusionConfig
}

// NewBusBuilder returns a new builder with sensible defaults.
func NewBusBuilder() *BusBuilder {
	return &BusBuilder{}
}

// WithConfig supplies a full config, typically from LoadConfig.
func (bb *BusBuilder) WithConfig(cfg Config) *BusBuilder {
	bb.cfg = cfg
	bb.cfgSet = true
	return bb
}

func (bb *BusBuilder) WithLogger(l *xlog.Logger) *BusBuilder {
	bb.logger = l
	return bb
}

func (bb *BusBuilder) WithClock(c xclock.Clock) *BusBuilder {
	bb.clock = c
	return bb
}

// WithConverters replaces the default conversion registry.
func (bb *BusBuilder) WithConverters(reg *reconcile.Registry) *BusBuilder {
	bb.converters = reg
	return bb
}

// WithExtractors replaces the default parameter extractor registry.
func (bb *BusBuilder) WithExtractors(reg *inject.Registry) *BusBuilder {
	bb.extractors = reg
	return bb
}

// WithExclusions overrides the exclusion sets from config.
func (bb *BusBuilder) WithExclusions(cfg ExclusionConfig) *BusBuilder {
	bb.exclusions = &cfg
	return bb
}

func (bb *BusBuilder) WithObserver(obs ...Observer) *BusBuilder {
	for _, o := range obs {
		if o != nil {
			bb.observers = append(bb.observers, o)
		}
	}
	return bb
}

func (bb *BusBuilder) Build() (*Bus, error) {
	cfg := bb.cfg
	if !bb.cfgSet {
		cfg = DefaultConfig()
	}

	clk := bb.clock
	if clk == nil {
		clk = xclock.Default()
	}
	lg := bb.logger
	if lg == nil {
		lg = xlog.Default()
	}

	converters := bb.converters
	if converters == nil {
		converters = reconcile.DefaultRegistry()
	}
	extractors := bb.extractors
	if extractors == nil {
		extractors = DefaultExtractors()
	}

	exclCfg := cfg.Exclusions
	if bb.exclusions != nil {
		exclCfg = *bb.exclusions
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		router:       NewRouter(),
		exclusions:   NewExclusionFilter(exclCfg),
		engine:       reconcile.NewEngine(converters),
		extractors:   extractors,
		metrics:      newMetricsStore(),
		clock:        clk,
		logger:       lg,
		observerPool: NewObserverPool(context.Background(), cfg.ObserverWorkers, cfg.ObserverBuffer),
		baseCtx:      ctx,
		cancel:       cancel,
		closeTimeout: cfg.CloseTimeout.Std(),
	}

	// Attach logging observer first for dependable telemetry unless already supplied externally.
	hasLoggingObserver := false
	for _, o := range bb.observers {
		if _, ok := o.(LoggingObserver); ok {
			hasLoggingObserver = true
			break
		}
	}
	if !hasLoggingObserver {
		b.AddObserver(LoggingObserver{Logger: lg})
	}
	for _, o := range bb.observers {
		b.AddObserver(o)
	}

	if cfg.Source.Name != "" {
		src, err := NewSource(cfg.Source.Name, cfg.Source.Options)
		if err != nil {
			cancel()
			return nil, err
		}
		b.Attach(src)
	}

	return b, nil
}

// New constructs a Bus via Builder and returns a close func for convenience.
func New(init func(b *BusBuilder)) (*Bus, func() error, error) {
	bb := NewBusBuilder()
	if init != nil {
		init(bb)
	}
	bus, err := bb.Build()
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() error {
		ctx := context.Background()
		if bus.closeTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, bus.closeTimeout)
			defer cancel()
		}
		return bus.Close(ctx)
	}
	return bus, closeFn, nil
}

// DefaultExtractors returns the extractor registry used when none is
// supplied: handlers can request the event itself, well-known payload
// types, or the bearing entity id; anything else binds to the raw payload.
func DefaultExtractors() *inject.Registry {
	reg := inject.NewRegistry()
	inject.RegisterFor[*Event](reg, func(event any) (any, bool) {
		return event, true
	})
	inject.RegisterFor[EntityID](reg, func(event any) (any, bool) {
		ev, ok := event.(*Event)
		if !ok {
			return nil, false
		}
		eb, ok := ev.Payload.(EntityBearer)
		if !ok {
			return nil, false
		}
		return eb.EntityRef(), true
	})
	reg.SetFallback(func(event any) (any, bool) {
		ev, ok := event.(*Event)
		if !ok {
			return nil, false
		}
		if ev.Payload == nil {
			return nil, false
		}
		return ev.Payload, true
	})
	return reg
}
