package hub_test

import (
	"context"
	"fmt"
	"testing"

	"futurehub/internal/hub"
	"futurehub/internal/model"
	"futurehub/internal/store"
	"futurehub/internal/testutil"
)

const testAppID = "test-app"

var (
	ana  = &model.User{UID: "uid-ana", Email: "ana@example.com"}
	beto = &model.User{UID: "uid-beto", Email: "beto@example.com"}
)

// newTestHub starts a Hub on a fresh memory store with nobody signed in.
func newTestHub(t *testing.T, scope hub.Scope) (*hub.Hub, *store.MemoryStore, *testutil.StubIdentity) {
	t.Helper()
	st := testutil.NewTestStore(t)
	ident := testutil.NewStubIdentity()
	h := hub.NewHub(ident, st, hub.Config{AppID: testAppID, ArticleScope: scope}, nil)
	h.Start(context.Background())
	t.Cleanup(h.Close)
	return h, st, ident
}

func pollsPath() string {
	return hub.PublicCollectionPath(testAppID, hub.PollsCollection)
}

// seedPoll stores a poll with options o1..oN and zero votes.
func seedPoll(t *testing.T, st *store.MemoryStore, id, question string, texts ...string) {
	t.Helper()
	opts := make([]model.PollOption, len(texts))
	for i, text := range texts {
		opts[i] = model.PollOption{ID: fmt.Sprintf("o%d", i+1), Text: text}
	}
	fields, err := hub.NewPollFields(question, opts)
	if err != nil {
		t.Fatalf("NewPollFields() error = %v", err)
	}
	if err := st.Set(context.Background(), pollsPath(), id, fields); err != nil {
		t.Fatalf("seeding poll: %v", err)
	}
}
