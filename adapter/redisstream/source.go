package redisstream

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/xhub"
)

// Source reads a Redis Stream through a consumer group and dispatches each
// decoded entry into a bus. Entries are XACKed only after a successful
// dispatch; crashed consumers leave them pending for redelivery.
type Source struct {
	cfg    Config
	client *redis.Client
	logger *xlog.Logger

	metrics sourceMetrics
}

type sourceMetrics struct {
	consumed     atomic.Uint64
	acked        atomic.Uint64
	decodeErrors atomic.Uint64
	readErrors   atomic.Uint64
}

// NewSource connects to Redis and returns a runnable source.
func NewSource(cfg Config, opts ...Option) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ro := &redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 5,
	}
	if cfg.TLS {
		ro.TLSConfig = &tls.Config{
			MinVersion:    tls.VersionTLS12,
			ServerName:    cfg.TLSServerName,
			Renegotiation: tls.RenegotiateNever,
		}
	}

	client := redis.NewClient(ro)
	pctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	s := &Source{cfg: cfg, client: client, logger: xlog.Default()}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	return s, nil
}

// Option configures a Source.
type Option func(*Source)

// WithLogger injects a custom xlog logger.
func WithLogger(l *xlog.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// Run blocks reading the stream until ctx is cancelled.
func (s *Source) Run(ctx context.Context, sink xhub.Sink) error {
	if s.cfg.AutoCreate {
		err := s.client.XGroupCreateMkStream(ctx, s.cfg.Stream, s.cfg.Group, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return err
		}
	}

	args := &redis.XReadGroupArgs{
		Group:    s.cfg.Group,
		Consumer: s.cfg.Consumer,
		Streams:  []string{s.cfg.Stream, ">"},
		Count:    int64(s.cfg.BatchSize),
		Block:    s.cfg.Block,
		NoAck:    false,
	}

	backoff := 100 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		res, err := s.client.XReadGroup(ctx, args).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, redis.Nil) {
				// Block timeout (expected), continue polling
				backoff = 100 * time.Millisecond
				continue
			}

			// Transient error: exponential backoff
			s.metrics.readErrors.Add(1)
			s.logger.Warn().Err(err).Msg("redisstream: read failed, backing off")
			select {
			case <-time.After(backoff):
				backoff = min(backoff*2, maxBackoff)
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		backoff = 100 * time.Millisecond

		for _, stream := range res {
			for _, msg := range stream.Messages {
				s.metrics.consumed.Add(1)
				s.handle(ctx, sink, msg)
			}
		}
	}
}

// handle decodes and dispatches one entry. Undecodable entries are acked
// away immediately so they cannot poison the group.
func (s *Source) handle(ctx context.Context, sink xhub.Sink, msg redis.XMessage) {
	topic, ev, err := decodeEntry(msg.Values)
	if err != nil {
		s.metrics.decodeErrors.Add(1)
		s.logger.Warn().
			Str("stream", s.cfg.Stream).
			Str("entry", msg.ID).
			Err(err).
			Msg("redisstream: dropping undecodable entry")
		s.ack(ctx, msg.ID)
		return
	}

	if err := sink.Dispatch(topic, ev); err != nil {
		s.logger.Warn().
			Str("topic", topic).
			Str("entry", msg.ID).
			Err(err).
			Msg("redisstream: dispatch rejected")
		return
	}
	s.ack(ctx, msg.ID)
}

func (s *Source) ack(ctx context.Context, id string) {
	if err := s.client.XAck(ctx, s.cfg.Stream, s.cfg.Group, id).Err(); err != nil {
		s.logger.Warn().Str("entry", id).Err(err).Msg("redisstream: ack failed")
		return
	}
	s.metrics.acked.Add(1)
	if s.cfg.AutoDeleteOnAck {
		_ = s.client.XDel(ctx, s.cfg.Stream, id).Err()
	}
}

// Close releases the Redis connection.
func (s *Source) Close(ctx context.Context) error {
	return s.client.Close()
}

// Stats returns source telemetry counters.
func (s *Source) Stats() (consumed, acked, decodeErrors, readErrors uint64) {
	return s.metrics.consumed.Load(),
		s.metrics.acked.Load(),
		s.metrics.decodeErrors.Load(),
		s.metrics.readErrors.Load()
}
