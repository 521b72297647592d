package xhub

import (
	"sort"
	"sync"
)

// Router owns the subscription index: exact-topic and glob-pattern buckets
// plus a secondary owner index for bulk removal. Every listener lives in
// exactly one of exact/globs (keyed by its own topic) and in exactly one
// owner entry; all three stay consistent under any mutation.
//
// A single mutex guards mutation and lookup so waiters are served in
// arrival order under contention.
type Router struct {
	mu     sync.Mutex
	exact  map[string][]*Listener
	globs  map[string][]*Listener
	owners map[string][]*Listener
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{
		exact:  make(map[string][]*Listener),
		globs:  make(map[string][]*Listener),
		owners: make(map[string][]*Listener),
	}
}

// Add indexes l under its topic and owner.
func (r *Router) Add(l *Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if hasGlobMeta(l.topic) {
		r.globs[l.topic] = append(r.globs[l.topic], l)
	} else {
		r.exact[l.topic] = append(r.exact[l.topic], l)
	}
	r.owners[l.owner] = append(r.owners[l.owner], l)
}

// Remove drops the listener with the given id from its topic bucket and the
// owner index. Returns the removed listener, or nil if it was not indexed.
func (r *Router) Remove(topic string, id int64) *Listener {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := r.exact
	if hasGlobMeta(topic) {
		bucket = r.globs
	}
	removed := removeFromBucket(bucket, topic, id)
	if removed != nil {
		removeFromBucket(r.owners, removed.owner, id)
	}
	return removed
}

// RemoveByOwner drops every listener registered under owner and returns
// them so callers can release their rate-limit state.
func (r *Router) RemoveByOwner(owner string) []*Listener {
	r.mu.Lock()
	defer r.mu.Unlock()

	owned := r.owners[owner]
	if len(owned) == 0 {
		return nil
	}
	delete(r.owners, owner)

	for _, l := range owned {
		bucket := r.exact
		if hasGlobMeta(l.topic) {
			bucket = r.globs
		}
		removeFromBucket(bucket, l.topic, l.id)
	}
	return owned
}

// TopicListeners returns every listener whose exact topic equals topic or
// whose glob pattern matches it, each exactly once, ordered by priority
// descending. Equal priorities keep registration order (listener ids are
// monotonic, so the id tie-break is exactly that).
func (r *Router) TopicListeners(topic string) []*Listener {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Listener
	out = append(out, r.exact[topic]...)
	for pattern, ls := range r.globs {
		if matchPattern(pattern, topic) {
			out = append(out, ls...)
		}
	}
	if len(out) == 0 {
		return nil
	}

	seen := make(map[int64]struct{}, len(out))
	dedup := out[:0]
	for _, l := range out {
		if _, dup := seen[l.id]; dup {
			continue
		}
		seen[l.id] = struct{}{}
		dedup = append(dedup, l)
	}

	sort.SliceStable(dedup, func(i, j int) bool {
		if dedup[i].priority != dedup[j].priority {
			return dedup[i].priority > dedup[j].priority
		}
		return dedup[i].id < dedup[j].id
	})
	return dedup
}

// Listeners snapshots every indexed listener (used on shutdown to stop
// pending rate-limit timers).
func (r *Router) Listeners() []*Listener {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Listener
	for _, ls := range r.owners {
		out = append(out, ls...)
	}
	return out
}

// Count returns the number of indexed listeners.
func (r *Router) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, ls := range r.owners {
		n += len(ls)
	}
	return n
}

func removeFromBucket(bucket map[string][]*Listener, key string, id int64) *Listener {
	ls := bucket[key]
	for i, l := range ls {
		if l.id == id {
			ls = append(ls[:i], ls[i+1:]...)
			if len(ls) == 0 {
				delete(bucket, key)
			} else {
				bucket[key] = ls
			}
			return l
		}
	}
	return nil
}
