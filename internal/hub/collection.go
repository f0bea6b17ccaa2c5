package hub

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// CollectionState is a read-only view of a mirror.
type CollectionState[T any] struct {
	Items   []T
	Loading bool
	Err     error
}

// CollectionConfig describes how a Collection materializes one kind of entity.
type CollectionConfig[T any] struct {
	// Name is used in log records.
	Name string

	// Decode turns a raw document into an entity. Documents it rejects are
	// dropped from the mirror.
	Decode func(Document) (T, error)

	// Compare orders the mirror. Nil keeps store order.
	Compare func(a, b T) int

	// Validate checks fields before Create. Nil accepts everything.
	Validate func(fields map[string]any) error
}

// Collection mirrors one remote collection. It owns the subscription and the
// in-memory snapshot; writes are forwarded to the store and only become visible
// when the store pushes the next snapshot.
type Collection[T any] struct {
	store  RemoteStore
	cfg    CollectionConfig[T]
	logger Logger

	mu        sync.Mutex
	path      string
	gen       uint64
	items     []T
	loading   bool
	err       error
	unsub     func()
	ready     chan struct{}
	watchers  map[int]func(CollectionState[T])
	nextWatch int
}

// NewCollection creates a closed Collection.
func NewCollection[T any](store RemoteStore, cfg CollectionConfig[T], logger Logger) *Collection[T] {
	if logger == nil {
		logger = NewNopLogger()
	}
	ready := make(chan struct{})
	close(ready)
	return &Collection[T]{
		store:    store,
		cfg:      cfg,
		logger:   logger,
		ready:    ready,
		watchers: make(map[int]func(CollectionState[T])),
	}
}

// Open points the mirror at path. An empty path clears the mirror and leaves
// it without a subscription. Any subscription to a different path is released
// before the new one is established. Reopening the current path is a no-op
// while its subscription is live; after a subscription error it resubscribes
// and the mirror keeps the last good snapshot until the first new one arrives.
//
// ctx bounds the lifetime of the subscription, not just the call.
func (c *Collection[T]) Open(ctx context.Context, path string) error {
	c.mu.Lock()
	if path != "" && path == c.path && c.unsub != nil {
		c.mu.Unlock()
		return nil
	}

	prev := c.unsub
	c.unsub = nil
	c.gen++
	gen := c.gen
	if path != c.path {
		c.items = nil
	}
	c.path = path
	c.err = nil

	if path == "" {
		c.loading = false
		c.closeReadyLocked()
		state := c.stateLocked()
		c.mu.Unlock()
		if prev != nil {
			prev()
		}
		c.notify(state)
		return nil
	}

	c.loading = true
	c.ready = make(chan struct{})
	state := c.stateLocked()
	c.mu.Unlock()

	if prev != nil {
		prev()
	}
	c.notify(state)

	unsub, err := c.store.Subscribe(ctx, path,
		func(docs []Document) { c.applySnapshot(gen, docs) },
		func(err error) { c.applyError(gen, err) },
	)
	if err != nil {
		c.applyError(gen, err)
		return fmt.Errorf("subscribing to %s: %w", path, err)
	}

	c.mu.Lock()
	if c.gen != gen || c.err != nil {
		// Superseded by a concurrent Open or Close, or already failed.
		c.mu.Unlock()
		unsub()
		return nil
	}
	c.unsub = unsub
	c.mu.Unlock()

	c.logger.Debug("collection opened", "collection", c.cfg.Name, "path", path)
	return nil
}

// Close releases the subscription and clears the mirror.
// It is safe to call on every exit path, including more than once.
func (c *Collection[T]) Close() {
	_ = c.Open(context.Background(), "")
}

// Path returns the open path, or "" when closed.
func (c *Collection[T]) Path() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path
}

// State returns a copy of the current mirror state.
func (c *Collection[T]) State() CollectionState[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Items returns a copy of the mirror.
func (c *Collection[T]) Items() []T {
	return c.State().Items
}

// Loading reports whether the first snapshot for the open path is still pending.
func (c *Collection[T]) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// LastError returns the last subscription error for the open path.
func (c *Collection[T]) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Ready returns a channel that is closed once loading finishes for the current path.
func (c *Collection[T]) Ready() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Watch registers fn to be called with the new state after every change.
// The returned function removes it.
func (c *Collection[T]) Watch(fn func(CollectionState[T])) func() {
	c.mu.Lock()
	id := c.nextWatch
	c.nextWatch++
	c.watchers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
	}
}

// ApplySnapshot replaces the mirror with docs, as if the store had pushed them
// on the open subscription.
func (c *Collection[T]) ApplySnapshot(docs []Document) {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	c.applySnapshot(gen, docs)
}

// ApplyError records a subscription failure on the open subscription.
func (c *Collection[T]) ApplyError(err error) {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	c.applyError(gen, err)
}

func (c *Collection[T]) applySnapshot(gen uint64, docs []Document) {
	items := make([]T, 0, len(docs))
	for _, doc := range docs {
		item, err := c.cfg.Decode(doc)
		if err != nil {
			c.logger.Debug("dropping document", "collection", c.cfg.Name, "id", doc.ID, "error", err)
			continue
		}
		items = append(items, item)
	}
	if c.cfg.Compare != nil {
		slices.SortStableFunc(items, c.cfg.Compare)
	}

	c.mu.Lock()
	if gen != c.gen || c.path == "" {
		c.mu.Unlock()
		return
	}
	c.items = items
	if c.loading {
		c.loading = false
		c.closeReadyLocked()
	}
	state := c.stateLocked()
	c.mu.Unlock()

	c.notify(state)
}

func (c *Collection[T]) applyError(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen || c.path == "" {
		c.mu.Unlock()
		return
	}
	// The mirror keeps its last good state. No pushes follow an error, so the
	// subscription is released and the next Open of this path resubscribes.
	c.err = err
	if c.loading {
		c.loading = false
		c.closeReadyLocked()
	}
	unsub := c.unsub
	c.unsub = nil
	path := c.path
	state := c.stateLocked()
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	c.logger.Error("subscription failed", "collection", c.cfg.Name, "path", path, "error", err)
	c.notify(state)
}

// Create validates fields and asks the store to add a document tagged with a
// server timestamp. The mirror is not touched.
func (c *Collection[T]) Create(ctx context.Context, fields map[string]any) (string, error) {
	path := c.Path()
	if path == "" {
		return "", ErrUnavailable
	}
	if c.cfg.Validate != nil {
		if err := c.cfg.Validate(fields); err != nil {
			return "", err
		}
	}

	data := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		data[k] = v
	}
	data["createdAt"] = ServerTimestamp

	id, err := c.store.Create(ctx, path, data)
	if err != nil {
		return "", fmt.Errorf("creating %s document: %w", c.cfg.Name, err)
	}
	c.logger.Info("document created", "collection", c.cfg.Name, "id", id)
	return id, nil
}

// Update forwards a conditional update. The mirror is not touched.
func (c *Collection[T]) Update(ctx context.Context, id string, fields map[string]any, conds ...Condition) error {
	path := c.Path()
	if path == "" {
		return ErrUnavailable
	}
	if err := c.store.Update(ctx, path, id, fields, conds...); err != nil {
		return fmt.Errorf("updating %s document %s: %w", c.cfg.Name, id, err)
	}
	c.logger.Info("document updated", "collection", c.cfg.Name, "id", id)
	return nil
}

// Delete forwards a delete. The document disappears from the mirror with the next snapshot.
func (c *Collection[T]) Delete(ctx context.Context, id string, conds ...Condition) error {
	path := c.Path()
	if path == "" {
		return ErrUnavailable
	}
	if err := c.store.Delete(ctx, path, id, conds...); err != nil {
		return fmt.Errorf("deleting %s document %s: %w", c.cfg.Name, id, err)
	}
	c.logger.Info("document deleted", "collection", c.cfg.Name, "id", id)
	return nil
}

func (c *Collection[T]) stateLocked() CollectionState[T] {
	return CollectionState[T]{
		Items:   slices.Clone(c.items),
		Loading: c.loading,
		Err:     c.err,
	}
}

func (c *Collection[T]) closeReadyLocked() {
	select {
	case <-c.ready:
	default:
		close(c.ready)
	}
}

func (c *Collection[T]) notify(state CollectionState[T]) {
	c.mu.Lock()
	fns := make([]func(CollectionState[T]), 0, len(c.watchers))
	for _, fn := range c.watchers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}
