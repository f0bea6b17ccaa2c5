package hub

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"futurehub/internal/model"
)

// VoteState is one user's voting progress on one poll.
type VoteState int

const (
	NotVoted VoteState = iota
	Pending
	Voted
)

func (s VoteState) String() string {
	switch s {
	case NotVoted:
		return "not-voted"
	case Pending:
		return "pending"
	case Voted:
		return "voted"
	default:
		return fmt.Sprintf("VoteState(%d)", int(s))
	}
}

// PollEngine mirrors the shared poll collection and casts votes.
//
// A user votes at most once per poll. The membership check against the mirror
// only spares a round trip; the store enforces the rule with a conditional
// update so concurrent sessions of the same user cannot both succeed.
type PollEngine struct {
	polls  *Collection[model.Poll]
	appID  string
	logger Logger

	mu        sync.Mutex
	pending   map[voteKey]int
	confirmed map[voteKey]bool
}

type voteKey struct {
	pollID string
	userID string
}

// NewPollEngine creates an engine for the polls of appID.
func NewPollEngine(store RemoteStore, appID string, logger Logger) *PollEngine {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &PollEngine{
		polls: NewCollection(store, CollectionConfig[model.Poll]{
			Name:    PollsCollection,
			Decode:  decodePoll,
			Compare: comparePolls,
		}, logger),
		appID:     appID,
		logger:    logger,
		pending:   make(map[voteKey]int),
		confirmed: make(map[voteKey]bool),
	}
}

// Open subscribes to the shared poll collection once userID is known.
// An empty userID closes the mirror.
func (e *PollEngine) Open(ctx context.Context, userID string) error {
	return e.polls.Open(ctx, ScopedPath(ScopePublic, e.appID, userID, PollsCollection))
}

// Close releases the subscription.
func (e *PollEngine) Close() {
	e.polls.Close()
}

// Collection exposes the underlying mirror.
func (e *PollEngine) Collection() *Collection[model.Poll] {
	return e.polls
}

// Polls returns the current mirror, oldest first.
func (e *PollEngine) Polls() []model.Poll {
	return e.polls.Items()
}

// Poll returns the mirrored poll with the given id.
func (e *PollEngine) Poll(id string) (model.Poll, bool) {
	for _, p := range e.polls.Items() {
		if p.ID == id {
			return p, true
		}
	}
	return model.Poll{}, false
}

// Vote casts userID's vote for optionID on pollID.
//
// The write increments the option, increments totalVotes and adds userID to
// votedBy in one conditional update. The mirror is not bumped locally; new
// tallies arrive with the next snapshot.
func (e *PollEngine) Vote(ctx context.Context, pollID, optionID, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrUnauthenticated
	}

	poll, ok := e.Poll(pollID)
	if !ok {
		return ErrPollNotFound
	}
	if poll.HasVoted(userID) {
		return ErrAlreadyVoted
	}
	idx := poll.OptionIndex(optionID)
	if idx < 0 {
		return ErrOptionNotFound
	}

	key := voteKey{pollID: pollID, userID: userID}
	e.mu.Lock()
	e.pending[key]++
	e.mu.Unlock()

	err := e.polls.Update(ctx, pollID,
		map[string]any{
			fmt.Sprintf("options.%d.votes", idx): Increment(1),
			"totalVotes":                         Increment(1),
			"votedBy":                            ArrayUnion(userID),
		},
		NotContains("votedBy", userID),
		Equals(fmt.Sprintf("options.%d.id", idx), optionID),
	)

	e.mu.Lock()
	if e.pending[key]--; e.pending[key] <= 0 {
		delete(e.pending, key)
	}
	if err == nil {
		e.confirmed[key] = true
	}
	e.mu.Unlock()

	if err != nil {
		err = voteError(err)
		e.logger.Warn("vote rejected", "poll", pollID, "option", optionID, "error", err)
		return err
	}
	e.logger.Info("vote recorded", "poll", pollID, "option", optionID)
	return nil
}

// VoteState reports where userID stands on pollID. A rejected vote leaves
// the user NotVoted unless the mirror shows them in votedBy.
func (e *PollEngine) VoteState(pollID, userID string) VoteState {
	if poll, ok := e.Poll(pollID); ok && poll.HasVoted(userID) {
		return Voted
	}

	key := voteKey{pollID: pollID, userID: userID}
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.confirmed[key]:
		return Voted
	case e.pending[key] > 0:
		return Pending
	default:
		return NotVoted
	}
}

// HasVotedAny reports whether userID has voted on any mirrored poll.
func (e *PollEngine) HasVotedAny(userID string) bool {
	for _, p := range e.polls.Items() {
		if p.HasVoted(userID) {
			return true
		}
	}
	return false
}

// voteError maps store failures onto the vote taxonomy.
func voteError(err error) error {
	var condErr *ConditionError
	switch {
	case errors.As(err, &condErr):
		if condErr.Condition.Op == OpEquals {
			return ErrOptionNotFound
		}
		return ErrAlreadyVoted
	case errors.Is(err, ErrNotFound):
		return ErrPollNotFound
	}
	return err
}

func decodePoll(doc Document) (model.Poll, error) {
	var p model.Poll
	if err := requireString(doc.Fields, "question"); err != nil {
		return p, err
	}
	if err := decodeFields(doc.Fields, &p); err != nil {
		return p, err
	}
	for _, o := range p.Options {
		if o.ID == "" {
			return p, fmt.Errorf("option without id")
		}
	}
	p.ID = doc.ID
	return p, nil
}

func comparePolls(a, b model.Poll) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// CreatePoll publishes a new poll to the shared collection and returns its id.
func (e *PollEngine) CreatePoll(ctx context.Context, question string, options []model.PollOption) (string, error) {
	fields, err := NewPollFields(question, options)
	if err != nil {
		return "", err
	}
	return e.polls.Create(ctx, fields)
}

// NewPollFields builds the document for a fresh poll with zero tallies.
// Polls are created by operators, not by the engine.
func NewPollFields(question string, options []model.PollOption) (map[string]any, error) {
	if strings.TrimSpace(question) == "" {
		return nil, &ValidationError{Field: "question", Reason: "question is required"}
	}
	if len(options) < 2 {
		return nil, &ValidationError{Field: "options", Reason: "at least 2 options are required"}
	}
	seen := make(map[string]bool, len(options))
	opts := make([]any, 0, len(options))
	for _, o := range options {
		if o.ID == "" || strings.TrimSpace(o.Text) == "" {
			return nil, &ValidationError{Field: "options", Reason: "every option needs an id and text"}
		}
		if seen[o.ID] {
			return nil, &ValidationError{Field: "options", Reason: fmt.Sprintf("duplicate option id %q", o.ID)}
		}
		seen[o.ID] = true
		opts = append(opts, map[string]any{"id": o.ID, "text": o.Text, "votes": int64(0)})
	}
	return map[string]any{
		"question":   strings.TrimSpace(question),
		"options":    opts,
		"totalVotes": int64(0),
		"votedBy":    []any{},
		"createdAt":  ServerTimestamp,
	}, nil
}
