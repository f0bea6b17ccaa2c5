package hub_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"futurehub/internal/hub"
	"futurehub/internal/model"
	"futurehub/internal/testutil"
)

func TestHub_SignedOutView(t *testing.T) {
	h, _, _ := newTestHub(t, hub.ScopeUser)

	v := h.View()
	if v.User != nil || v.Loading || v.LastError != "" {
		t.Errorf("View() = %+v, want idle and signed out", v)
	}
	if len(v.Articles)+len(v.Polls)+len(v.Resources) != 0 {
		t.Errorf("View() has data while signed out: %+v", v)
	}
	if err := h.WaitReady(context.Background()); err != nil {
		t.Errorf("WaitReady() error = %v", err)
	}
}

func TestHub_FollowsIdentity(t *testing.T) {
	h, st, ident := newTestHub(t, hub.ScopeUser)
	seedPoll(t, st, "p1", "Best language?", "Go", "Rust")
	ctx := context.Background()

	ident.SetUser(ana)
	if h.User() != ana {
		t.Fatalf("User() = %+v, want ana", h.User())
	}
	if _, err := h.SaveArticle(ctx, "Go", "", "IA", "https://go.dev"); err != nil {
		t.Fatal(err)
	}
	v := h.View()
	if len(v.Articles) != 1 || len(v.Polls) != 1 {
		t.Errorf("View() = %d articles, %d polls, want 1 and 1", len(v.Articles), len(v.Polls))
	}

	if err := ident.Logout(ctx); err != nil {
		t.Fatal(err)
	}
	v = h.View()
	if v.User != nil || len(v.Articles) != 0 || len(v.Polls) != 0 {
		t.Errorf("View() after logout = %+v, want everything cleared", v)
	}
}

func TestHub_LoginAndSignupDelegate(t *testing.T) {
	h, _, _ := newTestHub(t, hub.ScopeUser)
	ctx := context.Background()

	if err := h.Signup(ctx, "ana@example.com", "secret1"); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	if u := h.User(); u == nil || u.Email != "ana@example.com" {
		t.Errorf("User() after signup = %+v", u)
	}
	if err := h.Logout(ctx); err != nil {
		t.Fatal(err)
	}
	var authErr *hub.AuthError
	if err := h.Login(ctx, "", "x"); !errors.As(err, &authErr) {
		t.Errorf("Login() error = %v, want AuthError", err)
	}
	if h.User() != nil {
		t.Error("User() set after a failed login")
	}
}

func TestHub_Stats(t *testing.T) {
	h, st, ident := newTestHub(t, hub.ScopePublic)
	seedPoll(t, st, "p1", "Best language?", "Go", "Rust")
	seedPoll(t, st, "p2", "Tabs or spaces?", "Tabs", "Spaces")
	ctx := context.Background()

	ident.SetUser(beto)
	if _, err := h.SaveArticle(ctx, "beto's", "", "", "https://example.com/b"); err != nil {
		t.Fatal(err)
	}

	ident.SetUser(ana)
	if _, err := h.SaveArticle(ctx, "ana's", "", "", "https://example.com/a"); err != nil {
		t.Fatal(err)
	}
	if got := h.Stats(); got != (hub.Stats{TotalArticles: 2, MyArticles: 1, TotalPolls: 2}) {
		t.Errorf("Stats() = %+v", got)
	}

	if err := h.VotePoll(ctx, "p2", "o1"); err != nil {
		t.Fatal(err)
	}
	if !h.Stats().HasVoted {
		t.Error("Stats().HasVoted = false after voting")
	}
}

func TestHub_WatchAndErrors(t *testing.T) {
	h, st, ident := newTestHub(t, hub.ScopeUser)

	var mu sync.Mutex
	var views []hub.View
	unwatch := h.Watch(func(v hub.View) {
		mu.Lock()
		views = append(views, v)
		mu.Unlock()
	})
	defer unwatch()

	ident.SetUser(ana)
	st.Disconnect(hub.PublicCollectionPath(testAppID, hub.PollsCollection), errors.New("permission denied"))

	mu.Lock()
	defer mu.Unlock()
	if len(views) == 0 {
		t.Fatal("watcher never called")
	}
	last := views[len(views)-1]
	if !strings.Contains(last.LastError, "permission denied") {
		t.Errorf("LastError = %q, want the polls failure", last.LastError)
	}
	if last.User == nil || last.User.UID != ana.UID {
		t.Errorf("User = %+v, want ana", last.User)
	}
}

func TestHub_WaitReadyTimesOut(t *testing.T) {
	h, st, ident := newTestHub(t, hub.ScopeUser)
	st.Pause()
	ident.SetUser(ana)

	if !h.View().Loading {
		t.Error("View().Loading = false before any snapshot")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := h.WaitReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitReady() error = %v, want deadline exceeded", err)
	}

	st.Resume()
	if err := h.WaitReady(context.Background()); err != nil {
		t.Errorf("WaitReady() after resume error = %v", err)
	}
}

func TestHub_CloseReleasesSubscriptions(t *testing.T) {
	st := testutil.NewTestStore(t)
	ident := testutil.NewStubIdentity()
	ident.SetUser(ana)
	h := hub.NewHub(ident, st, hub.Config{AppID: testAppID}, nil)
	h.Start(context.Background())

	h.Close()
	h.Close()

	seedPoll(t, st, "p1", "Best language?", "Go", "Rust")
	if n := len(h.Polls().Polls()); n != 0 {
		t.Errorf("Polls() after Close = %d, want 0", n)
	}

	// Identity changes after Close must not reopen anything.
	ident.SetUser(&model.User{UID: "uid-late"})
	if p := h.Articles().Collection().Path(); p != "" {
		t.Errorf("articles path after Close = %q, want empty", p)
	}
}

func TestHub_VoteFromWatcher(t *testing.T) {
	backends := map[string]func(*testing.T) hub.RemoteStore{
		"memory": func(t *testing.T) hub.RemoteStore { return testutil.NewTestStore(t) },
		"sqlite": func(t *testing.T) hub.RemoteStore { return testutil.NewTestSQLiteStore(t) },
	}
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			st := newStore(t)
			ident := testutil.NewStubIdentity()
			h := hub.NewHub(ident, st, hub.Config{AppID: testAppID}, nil)
			ctx := context.Background()
			h.Start(ctx)
			t.Cleanup(h.Close)
			ident.SetUser(ana)

			voted := make(chan error, 1)
			var once sync.Once
			unwatch := h.Polls().Collection().Watch(func(s hub.CollectionState[model.Poll]) {
				for _, p := range s.Items {
					once.Do(func() { voted <- h.VotePoll(ctx, p.ID, "o1") })
				}
			})
			defer unwatch()

			done := make(chan error, 1)
			go func() {
				_, err := h.Polls().CreatePoll(ctx, "Best language?", []model.PollOption{
					{ID: "o1", Text: "Go"},
					{ID: "o2", Text: "Rust"},
				})
				done <- err
			}()
			select {
			case err := <-done:
				if err != nil {
					t.Fatalf("CreatePoll() error = %v", err)
				}
			case <-time.After(3 * time.Second):
				t.Fatal("write issued from a snapshot watcher never returned")
			}
			if err := <-voted; err != nil {
				t.Fatalf("VotePoll() from watcher error = %v", err)
			}

			polls := h.Polls().Polls()
			if len(polls) != 1 || polls[0].TotalVotes != 1 || !polls[0].HasVoted(ana.UID) {
				t.Errorf("Polls() = %+v, want one poll with ana's vote", polls)
			}
		})
	}
}

func TestHub_ReopenAfterSubscriptionError(t *testing.T) {
	h, st, ident := newTestHub(t, hub.ScopeUser)
	seedPoll(t, st, "p1", "Best language?", "Go", "Rust")
	ident.SetUser(ana)

	st.Disconnect(pollsPath(), errors.New("transient"))
	seedPoll(t, st, "p2", "Tabs or spaces?", "Tabs", "Spaces")
	if n := len(h.Polls().Polls()); n != 1 {
		t.Fatalf("Polls() after the error = %d, want 1", n)
	}

	if err := h.Polls().Open(context.Background(), ana.UID); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if n := len(h.Polls().Polls()); n != 2 {
		t.Errorf("Polls() after reopen = %d, want 2", n)
	}
	if v := h.View(); v.LastError != "" {
		t.Errorf("LastError = %q, want cleared after resubscribing", v.LastError)
	}
}
