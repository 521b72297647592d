package xhub

import (
	"sort"
	"sync"
	"time"
)

// Outcome classifies a single delivery attempt.
type Outcome uint8

const (
	// OutcomeSuccess: the handler ran and returned nil.
	OutcomeSuccess Outcome = iota
	// OutcomeError: the handler body returned an error.
	OutcomeError
	// OutcomePanic: the handler body panicked (recovered).
	OutcomePanic
	// OutcomeInjection: extraction or conversion failed before the handler ran.
	OutcomeInjection
	// OutcomeCancelled: the delivery observed context cancellation. Never
	// counted as failure.
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeError:
		return "error"
	case OutcomePanic:
		return "panic"
	case OutcomeInjection:
		return "injection_failure"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ListenerMetrics is the serializable per-listener snapshot exposed to
// monitoring surfaces.
type ListenerMetrics struct {
	ListenerID int64  `json:"listener_id"`
	Owner      string `json:"owner"`
	Topic      string `json:"topic"`
	Handler    string `json:"handler"`

	Invocations       uint64 `json:"invocations"`
	Successes         uint64 `json:"successes"`
	Failures          uint64 `json:"failures"`
	Panics            uint64 `json:"panics"`
	InjectionFailures uint64 `json:"injection_failures"`
	Cancellations     uint64 `json:"cancellations"`
	RateLimited       uint64 `json:"rate_limited"`

	MinDuration   time.Duration `json:"min_duration_ns"`
	MaxDuration   time.Duration `json:"max_duration_ns"`
	TotalDuration time.Duration `json:"total_duration_ns"`

	LastOutcome string    `json:"last_outcome,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	LastAt      time.Time `json:"last_at,omitempty"`
}

type listenerRecord struct {
	mu sync.Mutex
	m  ListenerMetrics
}

func (r *listenerRecord) observe(outcome Outcome, d time.Duration, err error, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.m.Invocations++
	switch outcome {
	case OutcomeSuccess:
		r.m.Successes++
	case OutcomeError, OutcomePanic:
		r.m.Failures++
		if outcome == OutcomePanic {
			r.m.Panics++
		}
	case OutcomeInjection:
		r.m.InjectionFailures++
	case OutcomeCancelled:
		r.m.Cancellations++
	}

	if r.m.Invocations == 1 || d < r.m.MinDuration {
		r.m.MinDuration = d
	}
	if d > r.m.MaxDuration {
		r.m.MaxDuration = d
	}
	r.m.TotalDuration += d

	r.m.LastOutcome = outcome.String()
	r.m.LastAt = at
	if err != nil {
		r.m.LastError = err.Error()
	}
}

func (r *listenerRecord) rateLimited() {
	r.mu.Lock()
	r.m.RateLimited++
	r.mu.Unlock()
}

func (r *listenerRecord) snapshot() ListenerMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m
}

// metricsStore holds per-listener metrics, created lazily on first delivery
// and retained after the listener is removed so historical data survives
// reconfiguration. Growth is bounded by the listener-id space.
type metricsStore struct {
	mu   sync.RWMutex
	byID map[int64]*listenerRecord
}

func newMetricsStore() *metricsStore {
	return &metricsStore{byID: make(map[int64]*listenerRecord)}
}

func (s *metricsStore) recordFor(l *Listener) *listenerRecord {
	s.mu.RLock()
	rec, ok := s.byID[l.id]
	s.mu.RUnlock()
	if ok {
		return rec
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok = s.byID[l.id]; ok {
		return rec
	}
	rec = &listenerRecord{m: ListenerMetrics{
		ListenerID: l.id,
		Owner:      l.owner,
		Topic:      l.topic,
		Handler:    l.Handler(),
	}}
	s.byID[l.id] = rec
	return rec
}

// All returns snapshots for every listener ever delivered to, ordered by id.
func (s *metricsStore) All() []ListenerMetrics {
	s.mu.RLock()
	recs := make([]*listenerRecord, 0, len(s.byID))
	for _, rec := range s.byID {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	out := make([]ListenerMetrics, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ListenerID < out[j].ListenerID })
	return out
}

// ByOwner returns snapshots for listeners registered under owner.
func (s *metricsStore) ByOwner(owner string) []ListenerMetrics {
	all := s.All()
	out := all[:0]
	for _, m := range all {
		if m.Owner == owner {
			out = append(out, m)
		}
	}
	return out
}

// Stats is the bus-wide counter snapshot.
type Stats struct {
	Dispatched        uint64  `json:"dispatched"`
	Excluded          uint64  `json:"excluded"`
	Deliveries        uint64  `json:"deliveries"`
	Succeeded         uint64  `json:"succeeded"`
	Failed            uint64  `json:"failed"`
	InjectionFailures uint64  `json:"injection_failures"`
	Cancelled         uint64  `json:"cancelled"`
	RateLimited       uint64  `json:"rate_limited"`
	ObserverDropped   uint64  `json:"observer_dropped"`
	ActiveListeners   int     `json:"active_listeners"`
	AvgDeliveryMs     float64 `json:"avg_delivery_ms"`
}

// HealthStatus reports bus health for probes.
type HealthStatus struct {
	Status    string    `json:"status"` // "healthy", "degraded", "unhealthy"
	Stats     Stats     `json:"stats"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`
}
