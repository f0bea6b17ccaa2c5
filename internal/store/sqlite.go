package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"futurehub/internal/hub"
)

// SQLiteStore is a RemoteStore backed by the documents table.
//
// Every write bumps the collection's revision in the same transaction; the
// revision orders the snapshots pushed to subscribers. Writes made by this
// process are pushed right after commit. Writes made by other processes are
// picked up by polling when a poll interval is configured.
type SQLiteStore struct {
	db     *sql.DB
	clock  hub.Clock
	ids    hub.IDGenerator
	logger hub.Logger
	subs   *registry

	mu        sync.Mutex
	published map[string]uint64
	closed    bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// SQLiteOptions configures a SQLiteStore. Zero values select defaults.
type SQLiteOptions struct {
	Clock        hub.Clock
	IDs          hub.IDGenerator
	Logger       hub.Logger
	PollInterval time.Duration
}

// NewSQLiteStore wraps a migrated database. The store owns db and closes it on Close.
func NewSQLiteStore(db *sql.DB, opts SQLiteOptions) *SQLiteStore {
	if opts.Clock == nil {
		opts.Clock = hub.RealClock{}
	}
	if opts.IDs == nil {
		opts.IDs = ULIDGenerator{}
	}
	if opts.Logger == nil {
		opts.Logger = hub.NewNopLogger()
	}
	s := &SQLiteStore{
		db:        db,
		clock:     opts.Clock,
		ids:       opts.IDs,
		logger:    opts.Logger,
		subs:      newRegistry(),
		published: make(map[string]uint64),
		stop:      make(chan struct{}),
	}
	if opts.PollInterval > 0 {
		s.wg.Add(1)
		go s.poll(opts.PollInterval)
	}
	return s
}

// Subscribe implements hub.RemoteStore. The initial snapshot is pushed before
// Subscribe returns.
func (s *SQLiteStore) Subscribe(ctx context.Context, path string, onSnapshot func([]hub.Document), onError func(error)) (func(), error) {
	if path == "" {
		return nil, fmt.Errorf("subscribe: empty path")
	}
	if s.isClosed() {
		return nil, ErrClosed
	}

	sub, unsub := s.subs.add(path, onSnapshot, onError)
	rev, docs, err := s.load(ctx, path)
	if err != nil {
		unsub()
		return nil, err
	}
	s.markPublished(path, rev)
	sub.push(rev, docs)

	stop := context.AfterFunc(ctx, unsub)
	return func() {
		stop()
		unsub()
	}, nil
}

// Create implements hub.RemoteStore.
func (s *SQLiteStore) Create(ctx context.Context, path string, fields map[string]any) (string, error) {
	doc := make(map[string]any, len(fields))
	now := s.clock.Now().UTC()
	if err := hub.ApplyFields(doc, fields, now); err != nil {
		return "", err
	}
	data, err := encodeFields(doc)
	if err != nil {
		return "", err
	}

	id := s.ids.New()
	err = s.write(ctx, path, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO documents (path, id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			path, id, string(data), now, now)
		if err != nil {
			return fmt.Errorf("inserting document: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Update implements hub.RemoteStore.
func (s *SQLiteStore) Update(ctx context.Context, path, id string, fields map[string]any, conds ...hub.Condition) error {
	return s.write(ctx, path, func(tx *sql.Tx) error {
		current, err := s.get(ctx, tx, path, id)
		if err != nil {
			return err
		}
		if err := hub.CheckConditions(current, conds); err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		if err := hub.ApplyFields(current, fields, now); err != nil {
			return err
		}
		data, err := encodeFields(current)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE documents SET data = ?, updated_at = ? WHERE path = ? AND id = ?",
			string(data), now, path, id)
		if err != nil {
			return fmt.Errorf("updating document: %w", err)
		}
		return nil
	})
}

// Delete implements hub.RemoteStore.
func (s *SQLiteStore) Delete(ctx context.Context, path, id string, conds ...hub.Condition) error {
	return s.write(ctx, path, func(tx *sql.Tx) error {
		current, err := s.get(ctx, tx, path, id)
		if err != nil {
			return err
		}
		if err := hub.CheckConditions(current, conds); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE path = ? AND id = ?", path, id); err != nil {
			return fmt.Errorf("deleting document: %w", err)
		}
		return nil
	})
}

// Close stops polling, releases subscriptions and closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stop)
	s.wg.Wait()
	s.subs.closeAll()
	return s.db.Close()
}

// write runs fn in a transaction that also bumps the collection revision,
// then pushes the new snapshot.
func (s *SQLiteStore) write(ctx context.Context, path string, fn func(tx *sql.Tx) error) error {
	if path == "" {
		return fmt.Errorf("write: empty path")
	}
	if s.isClosed() {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO collections (path, revision) VALUES (?, 0) ON CONFLICT(path) DO NOTHING", path)
	if err != nil {
		return fmt.Errorf("registering collection: %w", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE collections SET revision = revision + 1 WHERE path = ?", path); err != nil {
		return fmt.Errorf("bumping revision: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	s.publish(context.WithoutCancel(ctx), path)
	return nil
}

func (s *SQLiteStore) get(ctx context.Context, tx *sql.Tx, path, id string) (map[string]any, error) {
	var data string
	err := tx.QueryRowContext(ctx, "SELECT data FROM documents WHERE path = ? AND id = ?", path, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, hub.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	return decodeFields([]byte(data))
}

// load reads the revision and documents of path in one transaction.
func (s *SQLiteStore) load(ctx context.Context, path string) (uint64, []hub.Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("starting read: %w", err)
	}
	defer tx.Rollback()

	var rev uint64
	err = tx.QueryRowContext(ctx, "SELECT revision FROM collections WHERE path = ?", path).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, []hub.Document{}, nil
	}
	if err != nil {
		return 0, nil, fmt.Errorf("reading revision: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		"SELECT id, data FROM documents WHERE path = ? ORDER BY created_at, id", path)
	if err != nil {
		return 0, nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	docs := []hub.Document{}
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return 0, nil, fmt.Errorf("scanning document: %w", err)
		}
		fields, err := decodeFields([]byte(data))
		if err != nil {
			s.logger.Warn("skipping unreadable document", "path", path, "id", id, "error", err)
			continue
		}
		docs = append(docs, hub.Document{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("listing documents: %w", err)
	}
	return rev, docs, nil
}

func (s *SQLiteStore) publish(ctx context.Context, path string) {
	subs := s.subs.forPath(path)
	if len(subs) == 0 {
		return
	}
	rev, docs, err := s.load(ctx, path)
	if err != nil {
		s.logger.Error("loading snapshot", "path", path, "error", err)
		for _, sub := range subs {
			sub.fail(fmt.Errorf("%w: %v", hub.ErrUnavailable, err))
		}
		return
	}
	s.markPublished(path, rev)
	for _, sub := range subs {
		sub.push(rev, docs)
	}
}

func (s *SQLiteStore) markPublished(path string, rev uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rev > s.published[path] {
		s.published[path] = rev
	}
}

// poll pushes snapshots for collections changed by other processes.
func (s *SQLiteStore) poll(every time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		for _, path := range s.subs.paths() {
			var rev uint64
			err := s.db.QueryRow("SELECT revision FROM collections WHERE path = ?", path).Scan(&rev)
			if err != nil {
				if !errors.Is(err, sql.ErrNoRows) {
					s.logger.Warn("polling revision", "path", path, "error", err)
				}
				continue
			}
			s.mu.Lock()
			seen := s.published[path]
			s.mu.Unlock()
			if rev > seen {
				s.logger.Debug("external change", "path", path, "revision", rev)
				s.publish(context.Background(), path)
			}
		}
	}
}

func (s *SQLiteStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ hub.RemoteStore = (*SQLiteStore)(nil)
