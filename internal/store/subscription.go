package store

import (
	"sort"
	"sync"
	"sync/atomic"

	"futurehub/internal/hub"
)

// subscription delivers snapshots of one collection to one listener.
// Pushes are serialized and a push older than the last delivered revision is
// dropped, so a listener never sees a collection go back in time.
//
// Listeners run without mu held. A push that arrives while a listener is
// running, including one caused by a write the listener itself issued, is
// parked in pending and delivered by the running call once the listener
// returns. Only the newest parked snapshot is kept.
type subscription struct {
	onSnapshot func([]hub.Document)
	onError    func(error)

	// done is checked without mu so a listener may release its own
	// subscription from inside a callback.
	done atomic.Bool

	mu         sync.Mutex
	delivered  bool
	version    uint64
	delivering bool
	hasPending bool
	pending    []hub.Document
	failure    error
}

// push delivers docs tagged with version. It reports whether the snapshot was
// accepted; an accepted snapshot may be delivered by a push already in progress.
func (s *subscription) push(version uint64, docs []hub.Document) bool {
	s.mu.Lock()
	if s.done.Load() || (s.delivered && version <= s.version) {
		s.mu.Unlock()
		return false
	}
	s.delivered = true
	s.version = version
	if s.delivering {
		s.pending = docs
		s.hasPending = true
		s.mu.Unlock()
		return true
	}

	s.delivering = true
	for {
		s.mu.Unlock()
		s.onSnapshot(docs)
		s.mu.Lock()

		if s.failure != nil {
			err := s.failure
			s.failure = nil
			s.finishLocked()
			s.mu.Unlock()
			if s.onError != nil {
				s.onError(err)
			}
			return true
		}
		if !s.hasPending || s.done.Load() {
			s.finishLocked()
			s.mu.Unlock()
			return true
		}
		docs = s.pending
		s.pending = nil
		s.hasPending = false
	}
}

func (s *subscription) finishLocked() {
	s.delivering = false
	s.hasPending = false
	s.pending = nil
}

// fail ends the subscription with err. No pushes follow. When a snapshot is
// being delivered, err is reported after the listener returns.
func (s *subscription) fail(err error) {
	s.mu.Lock()
	if s.done.Swap(true) {
		s.mu.Unlock()
		return
	}
	if s.delivering {
		s.failure = err
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if s.onError != nil {
		s.onError(err)
	}
}

// registry tracks live subscriptions by collection path.
type registry struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]*subscription
}

func newRegistry() *registry {
	return &registry{subs: make(map[string]map[int]*subscription)}
}

// add registers a listener on path. The returned function releases it and is
// idempotent.
func (r *registry) add(path string, onSnapshot func([]hub.Document), onError func(error)) (*subscription, func()) {
	sub := &subscription{onSnapshot: onSnapshot, onError: onError}

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	if r.subs[path] == nil {
		r.subs[path] = make(map[int]*subscription)
	}
	r.subs[path][id] = sub
	r.mu.Unlock()

	var once sync.Once
	return sub, func() {
		once.Do(func() {
			sub.done.Store(true)
			r.remove(path, id)
		})
	}
}

func (r *registry) remove(path string, id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs[path], id)
	if len(r.subs[path]) == 0 {
		delete(r.subs, path)
	}
}

// forPath returns the live subscriptions on path.
func (r *registry) forPath(path string) []*subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*subscription, 0, len(r.subs[path]))
	for _, s := range r.subs[path] {
		out = append(out, s)
	}
	return out
}

// paths returns every path with at least one subscription, sorted.
func (r *registry) paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.subs))
	for p := range r.subs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// fail ends every subscription on path with err.
func (r *registry) fail(path string, err error) {
	r.mu.Lock()
	subs := r.subs[path]
	delete(r.subs, path)
	r.mu.Unlock()

	for _, s := range subs {
		s.fail(err)
	}
}

// closeAll silently releases every subscription.
func (r *registry) closeAll() {
	r.mu.Lock()
	all := r.subs
	r.subs = make(map[string]map[int]*subscription)
	r.mu.Unlock()

	for _, subs := range all {
		for _, s := range subs {
			s.done.Store(true)
		}
	}
}
