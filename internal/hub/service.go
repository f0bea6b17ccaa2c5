package hub

import (
	"context"
	"errors"
	"sync"

	"futurehub/internal/model"
)

// Config selects the app namespace and article visibility.
type Config struct {
	AppID        string
	ArticleScope Scope
}

// View is the read-only state screens render.
type View struct {
	User      *model.User
	Articles  []model.Article
	Polls     []model.Poll
	Resources []model.Resource
	Loading   bool
	LastError string
}

// Stats summarizes the dashboard.
type Stats struct {
	TotalArticles int
	MyArticles    int
	TotalPolls    int
	HasVoted      bool
}

// Hub binds the identity source to the article, poll and resource mirrors and
// exposes the actions screens call. Every identity change releases the
// current subscriptions before opening the ones for the new user.
type Hub struct {
	identity  IdentitySource
	articles  *ArticleRepository
	polls     *PollEngine
	resources *ResourceRepository
	logger    Logger

	mu            sync.Mutex
	ctx           context.Context
	cancel        context.CancelFunc
	user          *model.User
	unsubIdentity func()
}

// NewHub wires the repositories to store. Call Start to begin following identity.
func NewHub(identity IdentitySource, store RemoteStore, cfg Config, logger Logger) *Hub {
	if logger == nil {
		logger = NewNopLogger()
	}
	scope := cfg.ArticleScope
	if scope == "" {
		scope = ScopeUser
	}
	return &Hub{
		identity:  identity,
		articles:  NewArticleRepository(store, cfg.AppID, scope, logger),
		polls:     NewPollEngine(store, cfg.AppID, logger),
		resources: NewResourceRepository(store, cfg.AppID, logger),
		logger:    logger,
	}
}

// Start subscribes to the identity source. Subscriptions opened for a user
// live until the identity changes, Close is called or ctx is cancelled.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	if h.unsubIdentity != nil {
		h.mu.Unlock()
		return
	}
	h.ctx, h.cancel = context.WithCancel(ctx)
	h.mu.Unlock()

	unsub := h.identity.Subscribe(h.onIdentity)

	h.mu.Lock()
	h.unsubIdentity = unsub
	h.mu.Unlock()
}

// Close stops following identity and releases every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	unsub := h.unsubIdentity
	cancel := h.cancel
	h.unsubIdentity = nil
	h.user = nil
	h.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	h.articles.Close()
	h.polls.Close()
	h.resources.Close()
	if cancel != nil {
		cancel()
	}
}

func (h *Hub) onIdentity(user *model.User) {
	h.mu.Lock()
	ctx := h.ctx
	h.user = user
	h.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	uid := ""
	if user != nil {
		uid = user.UID
	}
	h.logger.Debug("identity changed", "uid", uid)

	// Open errors are also recorded in each collection's state.
	if err := h.articles.Open(ctx, uid); err != nil {
		h.logger.Error("opening articles", "error", err)
	}
	if err := h.polls.Open(ctx, uid); err != nil {
		h.logger.Error("opening polls", "error", err)
	}
	if err := h.resources.Open(ctx, uid); err != nil {
		h.logger.Error("opening resources", "error", err)
	}
}

// User returns the user the mirrors are bound to.
func (h *Hub) User() *model.User {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.user
}

func (h *Hub) uid() string {
	if u := h.User(); u != nil {
		return u.UID
	}
	return ""
}

// Articles returns the article repository.
func (h *Hub) Articles() *ArticleRepository { return h.articles }

// Polls returns the poll engine.
func (h *Hub) Polls() *PollEngine { return h.polls }

// Resources returns the resource repository.
func (h *Hub) Resources() *ResourceRepository { return h.resources }

// View returns the current state of every mirror.
func (h *Hub) View() View {
	a := h.articles.Collection().State()
	p := h.polls.Collection().State()
	r := h.resources.Collection().State()

	v := View{
		User:      h.User(),
		Articles:  a.Items,
		Polls:     p.Items,
		Resources: r.Items,
		Loading:   a.Loading || p.Loading || r.Loading,
	}
	if err := errors.Join(a.Err, p.Err, r.Err); err != nil {
		v.LastError = err.Error()
	}
	return v
}

// Watch calls fn with a fresh View after any mirror changes.
func (h *Hub) Watch(fn func(View)) func() {
	unsubs := []func(){
		h.articles.Collection().Watch(func(CollectionState[model.Article]) { fn(h.View()) }),
		h.polls.Collection().Watch(func(CollectionState[model.Poll]) { fn(h.View()) }),
		h.resources.Collection().Watch(func(CollectionState[model.Resource]) { fn(h.View()) }),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// WaitReady blocks until every mirror finished loading or ctx is done.
func (h *Hub) WaitReady(ctx context.Context) error {
	for _, ch := range []<-chan struct{}{
		h.articles.Collection().Ready(),
		h.polls.Collection().Ready(),
		h.resources.Collection().Ready(),
	} {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Stats computes the dashboard counters from the mirrors.
func (h *Hub) Stats() Stats {
	uid := h.uid()
	return Stats{
		TotalArticles: len(h.articles.Articles()),
		MyArticles:    len(h.articles.OwnedBy(uid)),
		TotalPolls:    len(h.polls.Polls()),
		HasVoted:      uid != "" && h.polls.HasVotedAny(uid),
	}
}

// SaveArticle saves an article for the current user.
func (h *Hub) SaveArticle(ctx context.Context, title, summary, category, url string) (string, error) {
	return h.articles.SaveArticle(ctx, title, summary, category, url)
}

// DeleteArticle deletes one of the current user's articles.
func (h *Hub) DeleteArticle(ctx context.Context, id string) error {
	return h.articles.DeleteArticle(ctx, id)
}

// FilterArticles returns the mirrored articles in category ("Todos" for all).
func (h *Hub) FilterArticles(category model.Category) []model.Article {
	return h.articles.FilterByCategory(category)
}

// VotePoll casts the current user's vote.
func (h *Hub) VotePoll(ctx context.Context, pollID, optionID string) error {
	return h.polls.Vote(ctx, pollID, optionID, h.uid())
}

// VoteState reports the current user's state on pollID.
func (h *Hub) VoteState(pollID string) VoteState {
	return h.polls.VoteState(pollID, h.uid())
}

// Login signs in through the identity source.
func (h *Hub) Login(ctx context.Context, email, password string) error {
	return h.identity.Login(ctx, email, password)
}

// Signup creates an account through the identity source.
func (h *Hub) Signup(ctx context.Context, email, password string) error {
	return h.identity.Signup(ctx, email, password)
}

// Logout signs out; the identity change closes the mirrors.
func (h *Hub) Logout(ctx context.Context) error {
	return h.identity.Logout(ctx)
}
