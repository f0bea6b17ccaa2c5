package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"futurehub/internal/hub"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// MemoryStore is an in-process RemoteStore. Snapshots are pushed synchronously
// by the goroutine that performed the write.
//
// Besides serving the memory backend it carries hooks for tests: Pause holds
// back pushes so mirrors go stale, Disconnect fails subscriptions and
// FailWrites makes every write return an error.
type MemoryStore struct {
	clock hub.Clock
	ids   hub.IDGenerator
	subs  *registry

	mu          sync.Mutex
	collections map[string]*memCollection
	seq         uint64
	paused      bool
	writeErr    error
	closed      bool
}

type memCollection struct {
	revision uint64
	docs     map[string]*memDoc
}

type memDoc struct {
	seq    uint64
	fields map[string]any
}

// NewMemoryStore creates an empty store. Nil arguments select the real clock
// and ULID ids.
func NewMemoryStore(clock hub.Clock, ids hub.IDGenerator) *MemoryStore {
	if clock == nil {
		clock = hub.RealClock{}
	}
	if ids == nil {
		ids = ULIDGenerator{}
	}
	return &MemoryStore{
		clock:       clock,
		ids:         ids,
		subs:        newRegistry(),
		collections: make(map[string]*memCollection),
	}
}

// Subscribe implements hub.RemoteStore. The initial snapshot is pushed before
// Subscribe returns unless the store is paused.
func (s *MemoryStore) Subscribe(ctx context.Context, path string, onSnapshot func([]hub.Document), onError func(error)) (func(), error) {
	if path == "" {
		return nil, fmt.Errorf("subscribe: empty path")
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.mu.Unlock()

	sub, unsub := s.subs.add(path, onSnapshot, onError)
	stop := context.AfterFunc(ctx, unsub)

	s.mu.Lock()
	paused := s.paused
	rev, docs := s.snapshotLocked(path)
	s.mu.Unlock()
	if !paused {
		sub.push(rev, docs)
	}

	return func() {
		stop()
		unsub()
	}, nil
}

// Create implements hub.RemoteStore.
func (s *MemoryStore) Create(ctx context.Context, path string, fields map[string]any) (string, error) {
	id := s.ids.New()
	if err := s.Set(ctx, path, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

// Set creates or replaces the document id at path.
func (s *MemoryStore) Set(ctx context.Context, path, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := make(map[string]any, len(fields))
	if err := hub.ApplyFields(doc, fields, s.clock.Now().UTC()); err != nil {
		return err
	}

	s.mu.Lock()
	if err := s.writableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	coll := s.collectionLocked(path)
	seq := s.nextSeqLocked()
	if existing, ok := coll.docs[id]; ok {
		seq = existing.seq
	}
	coll.docs[id] = &memDoc{seq: seq, fields: doc}
	coll.revision++
	s.mu.Unlock()

	s.publish(path)
	return nil
}

// Update implements hub.RemoteStore.
func (s *MemoryStore) Update(ctx context.Context, path, id string, fields map[string]any, conds ...hub.Condition) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if err := s.writableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	coll := s.collections[path]
	if coll == nil || coll.docs[id] == nil {
		s.mu.Unlock()
		return hub.ErrNotFound
	}
	current := coll.docs[id]
	if err := hub.CheckConditions(current.fields, conds); err != nil {
		s.mu.Unlock()
		return err
	}
	next := hub.CloneFields(current.fields)
	if err := hub.ApplyFields(next, fields, s.clock.Now().UTC()); err != nil {
		s.mu.Unlock()
		return err
	}
	current.fields = next
	coll.revision++
	s.mu.Unlock()

	s.publish(path)
	return nil
}

// Delete implements hub.RemoteStore.
func (s *MemoryStore) Delete(ctx context.Context, path, id string, conds ...hub.Condition) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if err := s.writableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	coll := s.collections[path]
	if coll == nil || coll.docs[id] == nil {
		s.mu.Unlock()
		return hub.ErrNotFound
	}
	if err := hub.CheckConditions(coll.docs[id].fields, conds); err != nil {
		s.mu.Unlock()
		return err
	}
	delete(coll.docs, id)
	coll.revision++
	s.mu.Unlock()

	s.publish(path)
	return nil
}

// Get returns a copy of one stored document.
func (s *MemoryStore) Get(path, id string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.collections[path]
	if coll == nil || coll.docs[id] == nil {
		return nil, hub.ErrNotFound
	}
	return hub.CloneFields(coll.docs[id].fields), nil
}

// Close implements hub.RemoteStore.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.subs.closeAll()
	return nil
}

// Pause holds back snapshot pushes. Writes still apply.
func (s *MemoryStore) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// Resume pushes the latest snapshot of every subscribed collection and
// resumes live delivery.
func (s *MemoryStore) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	for _, p := range s.subs.paths() {
		s.publish(p)
	}
}

// Disconnect fails every subscription on path with err.
func (s *MemoryStore) Disconnect(path string, err error) {
	s.subs.fail(path, err)
}

// FailWrites makes every subsequent write return err. Nil restores writes.
func (s *MemoryStore) FailWrites(err error) {
	s.mu.Lock()
	s.writeErr = err
	s.mu.Unlock()
}

func (s *MemoryStore) publish(path string) {
	subs := s.subs.forPath(path)
	if len(subs) == 0 {
		return
	}

	s.mu.Lock()
	if s.paused {
		s.mu.Unlock()
		return
	}
	rev, docs := s.snapshotLocked(path)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.push(rev, docs)
	}
}

func (s *MemoryStore) writableLocked() error {
	if s.closed {
		return ErrClosed
	}
	return s.writeErr
}

func (s *MemoryStore) collectionLocked(path string) *memCollection {
	coll := s.collections[path]
	if coll == nil {
		coll = &memCollection{docs: make(map[string]*memDoc)}
		s.collections[path] = coll
	}
	return coll
}

func (s *MemoryStore) nextSeqLocked() uint64 {
	s.seq++
	return s.seq
}

// snapshotLocked copies the collection in insertion order.
func (s *MemoryStore) snapshotLocked(path string) (uint64, []hub.Document) {
	coll := s.collections[path]
	if coll == nil {
		return 0, []hub.Document{}
	}
	type entry struct {
		id  string
		doc *memDoc
	}
	entries := make([]entry, 0, len(coll.docs))
	for id, d := range coll.docs {
		entries = append(entries, entry{id, d})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].doc.seq < entries[j].doc.seq })

	docs := make([]hub.Document, len(entries))
	for i, e := range entries {
		docs[i] = hub.Document{ID: e.id, Fields: hub.CloneFields(e.doc.fields)}
	}
	return coll.revision, docs
}

var _ hub.RemoteStore = (*MemoryStore)(nil)
