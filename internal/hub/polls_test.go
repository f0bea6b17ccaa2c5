package hub_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"futurehub/internal/hub"
	"futurehub/internal/model"
	"futurehub/internal/testutil"
)

func TestVote(t *testing.T) {
	h, st, ident := newTestHub(t, hub.ScopeUser)
	seedPoll(t, st, "p1", "Best language?", "Go", "Rust", "Zig")
	ident.SetUser(ana)
	ctx := context.Background()

	if got := h.VoteState("p1"); got != hub.NotVoted {
		t.Errorf("VoteState() before voting = %v, want not-voted", got)
	}
	if err := h.VotePoll(ctx, "p1", "o2"); err != nil {
		t.Fatalf("VotePoll() error = %v", err)
	}

	p, ok := h.Polls().Poll("p1")
	if !ok {
		t.Fatal("poll missing from mirror")
	}
	if p.Options[1].Votes != 1 || p.Options[0].Votes != 0 || p.Options[2].Votes != 0 {
		t.Errorf("option votes = %+v, want only o2 counted", p.Options)
	}
	if p.TotalVotes != 1 {
		t.Errorf("TotalVotes = %d, want 1", p.TotalVotes)
	}
	if !p.HasVoted(ana.UID) {
		t.Errorf("VotedBy = %v, want %s", p.VotedBy, ana.UID)
	}
	if !p.Consistent() {
		t.Errorf("poll tallies are inconsistent: %+v", p)
	}
	if got := h.VoteState("p1"); got != hub.Voted {
		t.Errorf("VoteState() = %v, want voted", got)
	}
}

func TestVote_Rejections(t *testing.T) {
	h, st, ident := newTestHub(t, hub.ScopeUser)
	seedPoll(t, st, "p1", "Best language?", "Go", "Rust")
	ctx := context.Background()

	if err := h.VotePoll(ctx, "p1", "o1"); !errors.Is(err, hub.ErrUnauthenticated) {
		t.Errorf("VotePoll() signed out error = %v, want ErrUnauthenticated", err)
	}

	ident.SetUser(ana)
	if err := h.VotePoll(ctx, "missing", "o1"); !errors.Is(err, hub.ErrPollNotFound) {
		t.Errorf("VotePoll() unknown poll error = %v, want ErrPollNotFound", err)
	}
	if err := h.VotePoll(ctx, "p1", "o9"); !errors.Is(err, hub.ErrOptionNotFound) {
		t.Errorf("VotePoll() unknown option error = %v, want ErrOptionNotFound", err)
	}
	if err := h.VotePoll(ctx, "p1", "o1"); err != nil {
		t.Fatalf("VotePoll() error = %v", err)
	}
	if err := h.VotePoll(ctx, "p1", "o2"); !errors.Is(err, hub.ErrAlreadyVoted) {
		t.Errorf("second VotePoll() error = %v, want ErrAlreadyVoted", err)
	}

	p, _ := h.Polls().Poll("p1")
	if p.TotalVotes != 1 || p.Options[1].Votes != 0 {
		t.Errorf("poll = %+v, want a single vote on o1", p)
	}
}

func TestVote_StaleMirrorCannotDoubleVote(t *testing.T) {
	h, st, ident := newTestHub(t, hub.ScopeUser)
	seedPoll(t, st, "p1", "Best language?", "Go", "Rust")
	ident.SetUser(ana)
	ctx := context.Background()

	// The mirror keeps showing the poll without ana's vote.
	st.Pause()
	if err := h.VotePoll(ctx, "p1", "o1"); err != nil {
		t.Fatalf("first VotePoll() error = %v", err)
	}
	if p, _ := h.Polls().Poll("p1"); p.HasVoted(ana.UID) {
		t.Fatal("mirror updated while the store was paused")
	}
	if err := h.VotePoll(ctx, "p1", "o2"); !errors.Is(err, hub.ErrAlreadyVoted) {
		t.Errorf("second VotePoll() error = %v, want ErrAlreadyVoted", err)
	}
	if got := h.VoteState("p1"); got != hub.Voted {
		t.Errorf("VoteState() = %v, want voted from the confirmed write", got)
	}

	st.Resume()
	p, _ := h.Polls().Poll("p1")
	if p.TotalVotes != 1 || p.Options[0].Votes != 1 || p.Options[1].Votes != 0 {
		t.Errorf("poll = %+v, want exactly one vote on o1", p)
	}
}

func TestVote_ConcurrentSessionsCountOnce(t *testing.T) {
	st := testutil.NewTestStore(t)
	seedPoll(t, st, "p1", "Best language?", "Go", "Rust")
	ctx := context.Background()

	const sessions = 8
	engines := make([]*hub.PollEngine, sessions)
	for i := range engines {
		engines[i] = hub.NewPollEngine(st, testAppID, nil)
		if err := engines[i].Open(ctx, ana.UID); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(engines[i].Close)
	}
	st.Pause()

	var wg sync.WaitGroup
	errs := make([]error, sessions)
	for i, e := range engines {
		i, e := i, e
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = e.Vote(ctx, "p1", "o1", ana.UID)
		}()
	}
	wg.Wait()
	st.Resume()

	var ok int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, hub.ErrAlreadyVoted):
			t.Errorf("Vote() error = %v, want nil or ErrAlreadyVoted", err)
		}
	}
	if ok != 1 {
		t.Errorf("%d votes succeeded, want exactly 1", ok)
	}

	p, _ := engines[0].Poll("p1")
	if p.TotalVotes != 1 || len(p.VotedBy) != 1 || !p.Consistent() {
		t.Errorf("poll = %+v, want one consistent vote", p)
	}
}

func TestVote_ManyUsers(t *testing.T) {
	st := testutil.NewTestStore(t)
	seedPoll(t, st, "p1", "Best language?", "Go", "Rust")
	ctx := context.Background()

	e := hub.NewPollEngine(st, testAppID, nil)
	if err := e.Open(ctx, "viewer"); err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	votes := map[string]string{"u1": "o1", "u2": "o1", "u3": "o2"}
	for uid, opt := range votes {
		if err := e.Vote(ctx, "p1", opt, uid); err != nil {
			t.Fatalf("Vote(%s) error = %v", uid, err)
		}
	}

	p, _ := e.Poll("p1")
	if p.Options[0].Votes != 2 || p.Options[1].Votes != 1 || p.TotalVotes != 3 {
		t.Errorf("poll = %+v, want 2/1 split", p)
	}
	if got := p.Share(p.Options[0]); got < 66.6 || got > 66.7 {
		t.Errorf("Share(o1) = %.2f, want about 66.67", got)
	}
	if e.HasVotedAny("viewer") {
		t.Error("HasVotedAny(viewer) = true, want false")
	}
}

func TestVote_OptionsReorderedBehindMirror(t *testing.T) {
	h, st, ident := newTestHub(t, hub.ScopeUser)
	seedPoll(t, st, "p1", "Best language?", "Go", "Rust")
	ident.SetUser(ana)
	ctx := context.Background()

	st.Pause()
	err := st.Update(ctx, pollsPath(), "p1", map[string]any{
		"options": []any{
			map[string]any{"id": "o2", "text": "Rust", "votes": int64(0)},
			map[string]any{"id": "o1", "text": "Go", "votes": int64(0)},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := h.VotePoll(ctx, "p1", "o1"); !errors.Is(err, hub.ErrOptionNotFound) {
		t.Errorf("VotePoll() error = %v, want ErrOptionNotFound", err)
	}
	stored, _ := st.Get(pollsPath(), "p1")
	if stored["totalVotes"] != int64(0) {
		t.Errorf("totalVotes = %v, want 0 after the rejected vote", stored["totalVotes"])
	}
}

func TestVote_PollDeletedBehindMirror(t *testing.T) {
	h, st, ident := newTestHub(t, hub.ScopeUser)
	seedPoll(t, st, "p1", "Best language?", "Go", "Rust")
	ident.SetUser(ana)
	ctx := context.Background()

	st.Pause()
	if err := st.Delete(ctx, pollsPath(), "p1"); err != nil {
		t.Fatal(err)
	}
	if err := h.VotePoll(ctx, "p1", "o1"); !errors.Is(err, hub.ErrPollNotFound) {
		t.Errorf("VotePoll() error = %v, want ErrPollNotFound", err)
	}
}

func TestVote_WriteFailureLeavesNotVoted(t *testing.T) {
	h, st, ident := newTestHub(t, hub.ScopeUser)
	seedPoll(t, st, "p1", "Best language?", "Go", "Rust")
	ident.SetUser(ana)

	down := errors.New("network down")
	st.FailWrites(down)
	if err := h.VotePoll(context.Background(), "p1", "o1"); !errors.Is(err, down) {
		t.Errorf("VotePoll() error = %v, want network down", err)
	}
	if got := h.VoteState("p1"); got != hub.NotVoted {
		t.Errorf("VoteState() = %v, want not-voted", got)
	}
	if p, _ := h.Polls().Poll("p1"); p.TotalVotes != 0 {
		t.Errorf("TotalVotes = %d, want 0", p.TotalVotes)
	}
}

func TestCreatePoll(t *testing.T) {
	h, _, ident := newTestHub(t, hub.ScopeUser)
	ident.SetUser(ana)

	id, err := h.Polls().CreatePoll(context.Background(), " Remote or office? ", []model.PollOption{
		{ID: "remote", Text: "Remote"},
		{ID: "office", Text: "Office"},
	})
	if err != nil {
		t.Fatalf("CreatePoll() error = %v", err)
	}

	p, ok := h.Polls().Poll(id)
	if !ok {
		t.Fatal("created poll missing from mirror")
	}
	if p.Question != "Remote or office?" || len(p.Options) != 2 || p.TotalVotes != 0 || len(p.VotedBy) != 0 {
		t.Errorf("poll = %+v, want a fresh two-option poll", p)
	}
	if p.CreatedAt.IsZero() {
		t.Error("CreatedAt not stamped")
	}
}

func TestNewPollFields_Validation(t *testing.T) {
	tests := []struct {
		name     string
		question string
		options  []model.PollOption
	}{
		{"empty question", " ", []model.PollOption{{ID: "a", Text: "A"}, {ID: "b", Text: "B"}}},
		{"one option", "Q?", []model.PollOption{{ID: "a", Text: "A"}}},
		{"duplicate id", "Q?", []model.PollOption{{ID: "a", Text: "A"}, {ID: "a", Text: "B"}}},
		{"missing text", "Q?", []model.PollOption{{ID: "a", Text: "A"}, {ID: "b"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := hub.NewPollFields(tt.question, tt.options)
			var verr *hub.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("NewPollFields() error = %v, want ValidationError", err)
			}
		})
	}
}

func TestPolls_OldestFirst(t *testing.T) {
	h, st, ident := newTestHub(t, hub.ScopeUser)
	seedPoll(t, st, "p-b", "Second?", "x", "y")
	seedPoll(t, st, "p-a", "Third?", "x", "y")
	ident.SetUser(ana)

	polls := h.Polls().Polls()
	if len(polls) != 2 || polls[0].ID != "p-b" || polls[1].ID != "p-a" {
		t.Errorf("Polls() = %+v, want creation order", polls)
	}
}

func TestVoteState_String(t *testing.T) {
	tests := map[hub.VoteState]string{
		hub.NotVoted:      "not-voted",
		hub.Pending:       "pending",
		hub.Voted:         "voted",
		hub.VoteState(42): "VoteState(42)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
