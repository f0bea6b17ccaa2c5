package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"futurehub/internal/config"
	"futurehub/internal/hub"
	"futurehub/internal/identity"
	"futurehub/internal/model"
	"futurehub/internal/store"
)

// HubApp is the application layer between the CLI and the Hub.
// It constructs all dependencies from config, resumes the saved session and
// releases everything on Close.
type HubApp struct {
	cfg      *config.Config
	store    hub.RemoteStore
	identity *identity.Local
	hub      *hub.Hub
	op       *Operation
	logger   hub.Logger
	logFile  *os.File
	clock    hub.Clock
}

// NewHubApp creates a fully wired HubApp from the given config.
// operation identifies the CLI command being run (e.g. "polls vote").
// stderr receives warnings and errors; nil keeps them in the log file only.
// The caller must call Close when done.
func NewHubApp(ctx context.Context, cfg *config.Config, operation string, stderr io.Writer) (*HubApp, error) {
	if cfg.AppID == "" {
		return nil, fmt.Errorf("app_id is required")
	}
	scope := hub.Scope(cfg.Articles.Scope)
	switch scope {
	case "", hub.ScopeUser, hub.ScopePublic:
	default:
		return nil, fmt.Errorf("unknown articles scope: %s", cfg.Articles.Scope)
	}
	level, err := ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	clock := hub.RealClock{}
	op := NewOperation(operation, clock)
	slogger, logFile, err := newLogger(cfg.LogDir, op.ID, level, stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	st, err := store.NewStoreFromConfig(ctx, cfg.Store, logger)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating store: %w", err)
	}

	id, err := identity.NewFromConfig(cfg.Identity, logger)
	if err != nil {
		st.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating identity source: %w", err)
	}

	if err := id.Resume(ctx); err != nil {
		var authErr *hub.AuthError
		if !errors.As(err, &authErr) {
			id.Close()
			st.Close()
			logFile.Close()
			return nil, fmt.Errorf("resuming session: %w", err)
		}
		logger.Warn("saved session rejected", "error", err)
	}

	h := hub.NewHub(id, st, hub.Config{AppID: cfg.AppID, ArticleScope: scope}, logger)
	h.Start(ctx)

	logger.Debug("operation started", "operation", op.Name)
	return &HubApp{
		cfg:      cfg,
		store:    st,
		identity: id,
		hub:      h,
		op:       op,
		logger:   logger,
		logFile:  logFile,
		clock:    clock,
	}, nil
}

// Hub returns the wired Hub.
func (a *HubApp) Hub() *hub.Hub {
	return a.hub
}

// User returns the signed-in user, or nil.
func (a *HubApp) User() *model.User {
	return a.identity.Current()
}

// Ready waits until every mirror has loaded.
func (a *HubApp) Ready(ctx context.Context) error {
	return a.hub.WaitReady(ctx)
}

// Signup creates an account and signs it in.
func (a *HubApp) Signup(ctx context.Context, email, password string) error {
	return a.track(a.hub.Signup(ctx, email, password))
}

// Login signs in with email and password.
func (a *HubApp) Login(ctx context.Context, email, password string) error {
	return a.track(a.hub.Login(ctx, email, password))
}

// LoginAnonymously signs in without credentials.
func (a *HubApp) LoginAnonymously(ctx context.Context) error {
	return a.track(a.identity.SignInAnonymously(ctx))
}

// Logout signs out and forgets the saved session.
func (a *HubApp) Logout(ctx context.Context) error {
	return a.track(a.hub.Logout(ctx))
}

// SaveArticle saves an article for the signed-in user.
func (a *HubApp) SaveArticle(ctx context.Context, title, summary, category, url string) (string, error) {
	id, err := a.hub.SaveArticle(ctx, title, summary, category, url)
	return id, a.track(err)
}

// DeleteArticle deletes one of the signed-in user's articles.
func (a *HubApp) DeleteArticle(ctx context.Context, id string) error {
	return a.track(a.hub.DeleteArticle(ctx, id))
}

// Vote casts the signed-in user's vote.
func (a *HubApp) Vote(ctx context.Context, pollID, optionID string) error {
	return a.track(a.hub.VotePoll(ctx, pollID, optionID))
}

// CreatePoll publishes a poll. options are option texts; ids are assigned
// as o1, o2, ... in order.
func (a *HubApp) CreatePoll(ctx context.Context, question string, options []string) (string, error) {
	opts := make([]model.PollOption, 0, len(options))
	for i, text := range options {
		opts = append(opts, model.PollOption{ID: fmt.Sprintf("o%d", i+1), Text: strings.TrimSpace(text)})
	}
	if a.User() == nil {
		return "", a.track(hub.ErrUnauthenticated)
	}
	id, err := a.hub.Polls().CreatePoll(ctx, question, opts)
	return id, a.track(err)
}

// AddResource adds an inventory item.
func (a *HubApp) AddResource(ctx context.Context, name, description string, quantity int64) (string, error) {
	if a.User() == nil {
		return "", a.track(hub.ErrUnauthenticated)
	}
	id, err := a.hub.Resources().Create(ctx, name, description, quantity)
	return id, a.track(err)
}

// UpdateResource replaces an inventory item.
func (a *HubApp) UpdateResource(ctx context.Context, id, name, description string, quantity int64) error {
	if a.User() == nil {
		return a.track(hub.ErrUnauthenticated)
	}
	return a.track(a.hub.Resources().Update(ctx, id, name, description, quantity))
}

// DeleteResource removes an inventory item.
func (a *HubApp) DeleteResource(ctx context.Context, id string) error {
	if a.User() == nil {
		return a.track(hub.ErrUnauthenticated)
	}
	return a.track(a.hub.Resources().Delete(ctx, id))
}

// track marks the operation failed when err is not nil and returns err.
func (a *HubApp) track(err error) error {
	if err != nil {
		a.op.Fail()
	}
	return err
}

// Close stops the hub and releases the identity source, the store and the log file.
func (a *HubApp) Close() error {
	var firstErr error

	a.hub.Close()
	if err := a.identity.Close(); err != nil {
		firstErr = fmt.Errorf("closing identity source: %w", err)
	}
	if err := a.store.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing store: %w", err)
	}

	a.logger.Info("operation finished", "operation", a.op.Name, "status", a.op.Status, "elapsed", a.op.Elapsed(a.clock))
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
