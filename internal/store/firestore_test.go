package store_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"futurehub/internal/hub"
	"futurehub/internal/store"
)

// These tests run against the Firestore emulator and are skipped unless
// FIRESTORE_EMULATOR_HOST is set.
func newEmulatorStore(t *testing.T) (*store.FirestoreStore, string) {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx := context.Background()
	s, err := store.NewFirestoreStore(ctx, "futurehub-test", "", nil)
	if err != nil {
		t.Fatalf("NewFirestoreStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	path := fmt.Sprintf("/artifacts/test-%d/public/data/polls", time.Now().UnixNano())
	return s, path
}

func TestFirestoreStore_VoteRoundTrip(t *testing.T) {
	s, path := newEmulatorStore(t)
	ctx := context.Background()

	got := make(chan []hub.Document, 16)
	unsub, err := s.Subscribe(ctx, path, func(docs []hub.Document) { got <- docs }, func(error) {})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer unsub()

	id, err := s.Create(ctx, path, pollFields(t))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	vote := map[string]any{
		"options.0.votes": hub.Increment(1),
		"totalVotes":      hub.Increment(1),
		"votedBy":         hub.ArrayUnion("u1"),
	}
	if err := s.Update(ctx, path, id, vote, hub.NotContains("votedBy", "u1")); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := s.Update(ctx, path, id, vote, hub.NotContains("votedBy", "u1")); !errors.Is(err, hub.ErrConditionFailed) {
		t.Fatalf("second Update() error = %v, want ErrConditionFailed", err)
	}

	timeout := time.After(5 * time.Second)
	for {
		select {
		case docs := <-got:
			if len(docs) == 1 && docs[0].Fields["totalVotes"] == int64(1) {
				return
			}
		case <-timeout:
			t.Fatal("listener never delivered the voted poll")
		}
	}
}

func TestFirestoreStore_MissingDocument(t *testing.T) {
	s, path := newEmulatorStore(t)
	if err := s.Delete(context.Background(), path, "missing"); !errors.Is(err, hub.ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
}
