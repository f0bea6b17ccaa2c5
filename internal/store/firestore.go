package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"futurehub/internal/hub"
)

// FirestoreStore is a RemoteStore backed by Cloud Firestore. Collection paths
// map one to one onto Firestore collection paths.
//
// Conditional writes run in a transaction: the document is read, conditions
// and transforms are evaluated locally and the result is written back, so the
// same rules apply as with the local backends. Firestore retries the
// transaction when the document changes underneath it.
type FirestoreStore struct {
	client *firestore.Client
	logger hub.Logger
	subs   *registry

	mu      sync.Mutex
	cancels map[*subscription]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

// NewFirestoreStore connects through the Firebase Admin SDK. An empty
// credentialsFile uses application default credentials; FIRESTORE_EMULATOR_HOST
// is honored by the client.
func NewFirestoreStore(ctx context.Context, projectID, credentialsFile string, logger hub.Logger) (*FirestoreStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	var cfg *firebase.Config
	if projectID != "" {
		cfg = &firebase.Config{ProjectID: projectID}
	}
	app, err := firebase.NewApp(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing firebase app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to firestore: %w", err)
	}
	return NewFirestoreStoreFromClient(client, logger), nil
}

// NewFirestoreStoreFromClient wraps an existing client. The store closes it on Close.
func NewFirestoreStoreFromClient(client *firestore.Client, logger hub.Logger) *FirestoreStore {
	if logger == nil {
		logger = hub.NewNopLogger()
	}
	return &FirestoreStore{
		client:  client,
		logger:  logger,
		subs:    newRegistry(),
		cancels: make(map[*subscription]context.CancelFunc),
	}
}

// Subscribe implements hub.RemoteStore. Snapshots are pushed from a
// background goroutine.
func (s *FirestoreStore) Subscribe(ctx context.Context, path string, onSnapshot func([]hub.Document), onError func(error)) (func(), error) {
	ref, err := s.collection(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	sub, unsub := s.subs.add(path, onSnapshot, onError)
	listenCtx, cancel := context.WithCancel(ctx)
	s.cancels[sub] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go s.listen(listenCtx, ref, path, sub)

	return func() {
		unsub()
		s.mu.Lock()
		delete(s.cancels, sub)
		s.mu.Unlock()
		cancel()
	}, nil
}

func (s *FirestoreStore) listen(ctx context.Context, ref *firestore.CollectionRef, path string, sub *subscription) {
	defer s.wg.Done()

	it := ref.Snapshots(ctx)
	defer it.Stop()

	var version uint64
	for {
		qs, err := it.Next()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
				return
			}
			s.logger.Error("snapshot listener failed", "path", path, "error", err)
			sub.fail(mapError(err))
			return
		}

		snaps, err := qs.Documents.GetAll()
		if err != nil {
			s.logger.Error("reading snapshot", "path", path, "error", err)
			sub.fail(mapError(err))
			return
		}
		docs := make([]hub.Document, 0, len(snaps))
		for _, snap := range snaps {
			docs = append(docs, toDocument(snap))
		}
		version++
		sub.push(version, docs)
	}
}

// Create implements hub.RemoteStore.
func (s *FirestoreStore) Create(ctx context.Context, path string, fields map[string]any) (string, error) {
	ref, err := s.collection(path)
	if err != nil {
		return "", err
	}
	data := make(map[string]any, len(fields))
	if err := hub.ApplyFields(data, fields, firestore.ServerTimestamp); err != nil {
		return "", err
	}
	doc, _, err := ref.Add(ctx, data)
	if err != nil {
		return "", mapError(err)
	}
	return doc.ID, nil
}

// Update implements hub.RemoteStore.
func (s *FirestoreStore) Update(ctx context.Context, path, id string, fields map[string]any, conds ...hub.Condition) error {
	ref, err := s.collection(path)
	if err != nil {
		return err
	}
	doc := ref.Doc(id)
	return s.transact(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		current, err := readForWrite(tx, doc, conds)
		if err != nil {
			return err
		}
		if err := hub.ApplyFields(current, fields, firestore.ServerTimestamp); err != nil {
			return err
		}
		return tx.Set(doc, current)
	})
}

// Delete implements hub.RemoteStore.
func (s *FirestoreStore) Delete(ctx context.Context, path, id string, conds ...hub.Condition) error {
	ref, err := s.collection(path)
	if err != nil {
		return err
	}
	doc := ref.Doc(id)
	return s.transact(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := readForWrite(tx, doc, conds); err != nil {
			return err
		}
		return tx.Delete(doc)
	})
}

// Close stops every listener and closes the client.
func (s *FirestoreStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancels := s.cancels
	s.cancels = make(map[*subscription]context.CancelFunc)
	s.mu.Unlock()

	s.subs.closeAll()
	for _, cancel := range cancels {
		cancel()
	}
	s.wg.Wait()
	return s.client.Close()
}

func (s *FirestoreStore) transact(ctx context.Context, fn func(context.Context, *firestore.Transaction) error) error {
	err := s.client.RunTransaction(ctx, fn)
	if err == nil {
		return nil
	}
	var condErr *hub.ConditionError
	if errors.As(err, &condErr) || errors.Is(err, hub.ErrNotFound) {
		return err
	}
	return mapError(err)
}

// readForWrite loads the document inside tx and checks conds against it.
func readForWrite(tx *firestore.Transaction, doc *firestore.DocumentRef, conds []hub.Condition) (map[string]any, error) {
	snap, err := tx.Get(doc)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, hub.ErrNotFound
		}
		return nil, err
	}
	current, _ := hub.Normalize(snap.Data()).(map[string]any)
	if current == nil {
		current = map[string]any{}
	}
	if err := hub.CheckConditions(current, conds); err != nil {
		return nil, err
	}
	return current, nil
}

func (s *FirestoreStore) collection(path string) (*firestore.CollectionRef, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, fmt.Errorf("empty collection path")
	}
	ref := s.client.Collection(trimmed)
	if ref == nil {
		return nil, fmt.Errorf("invalid collection path %q", path)
	}
	return ref, nil
}

func toDocument(snap *firestore.DocumentSnapshot) hub.Document {
	fields, _ := hub.Normalize(snap.Data()).(map[string]any)
	if fields == nil {
		fields = map[string]any{}
	}
	return hub.Document{ID: snap.Ref.ID, Fields: fields}
}

// mapError translates gRPC status codes into store errors.
func mapError(err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return hub.ErrNotFound
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %v", hub.ErrUnavailable, err)
	case codes.PermissionDenied, codes.Unauthenticated:
		return fmt.Errorf("permission denied: %w", err)
	}
	return err
}

var _ hub.RemoteStore = (*FirestoreStore)(nil)
