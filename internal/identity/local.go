package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"futurehub/internal/hub"
	"futurehub/internal/model"
)

// MinPasswordLength is the shortest password Signup accepts.
const MinPasswordLength = 6

// Local is an IdentitySource backed by a local account store. A successful
// sign-in issues a session token that is saved so the next run can resume it.
type Local struct {
	accounts AccountStore
	tokens   *TokenIssuer
	session  SessionStore
	clock    hub.Clock
	ids      hub.IDGenerator
	logger   hub.Logger
	cost     int

	mu        sync.Mutex
	user      *model.User
	token     string
	listeners map[int]func(*model.User)
	next      int
}

// Options configures Local. Nil fields select defaults.
type Options struct {
	Session    SessionStore
	Clock      hub.Clock
	IDs        hub.IDGenerator
	Logger     hub.Logger
	BcryptCost int
}

// NewLocal creates a signed-out identity source.
func NewLocal(accounts AccountStore, tokens *TokenIssuer, opts Options) *Local {
	if opts.Session == nil {
		opts.Session = &MemorySession{}
	}
	if opts.Clock == nil {
		opts.Clock = hub.RealClock{}
	}
	if opts.IDs == nil {
		opts.IDs = hub.UUIDGenerator{}
	}
	if opts.Logger == nil {
		opts.Logger = hub.NewNopLogger()
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &Local{
		accounts:  accounts,
		tokens:    tokens,
		session:   opts.Session,
		clock:     opts.Clock,
		ids:       opts.IDs,
		logger:    opts.Logger,
		cost:      opts.BcryptCost,
		listeners: make(map[int]func(*model.User)),
	}
}

// Subscribe implements hub.IdentitySource.
func (l *Local) Subscribe(onChange func(*model.User)) func() {
	l.mu.Lock()
	id := l.next
	l.next++
	l.listeners[id] = onChange
	u := l.user
	l.mu.Unlock()

	onChange(u)

	return func() {
		l.mu.Lock()
		delete(l.listeners, id)
		l.mu.Unlock()
	}
}

// Current implements hub.IdentitySource.
func (l *Local) Current() *model.User {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.user
}

// Token returns the session token of the signed-in user, or "".
func (l *Local) Token() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.token
}

// Login implements hub.IdentitySource.
func (l *Local) Login(ctx context.Context, email, password string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	acct, err := l.accounts.ByEmail(ctx, email)
	if errors.Is(err, ErrAccountNotFound) {
		return hub.NewAuthError(hub.AuthInvalidCredential)
	}
	if err != nil {
		return fmt.Errorf("looking up account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		l.logger.Info("login rejected", "email", email)
		return hub.NewAuthError(hub.AuthInvalidCredential)
	}

	return l.signIn(&model.User{UID: acct.UID, Email: acct.Email})
}

// Signup implements hub.IdentitySource.
func (l *Local) Signup(ctx context.Context, email, password string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if len(password) < MinPasswordLength {
		return hub.NewAuthError(hub.AuthWeakPassword)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.cost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	acct := Account{
		UID:          l.ids.New(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    l.clock.Now(),
	}
	if err := l.accounts.Create(ctx, acct); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return hub.NewAuthError(hub.AuthEmailInUse)
		}
		return fmt.Errorf("creating account: %w", err)
	}
	l.logger.Info("account created", "uid", acct.UID)

	return l.signIn(&model.User{UID: acct.UID, Email: acct.Email})
}

// SignInAnonymously creates an account without credentials and signs it in.
func (l *Local) SignInAnonymously(ctx context.Context) error {
	acct := Account{
		UID:       l.ids.New(),
		Anonymous: true,
		CreatedAt: l.clock.Now(),
	}
	if err := l.accounts.Create(ctx, acct); err != nil {
		return fmt.Errorf("creating anonymous account: %w", err)
	}
	return l.signIn(&model.User{UID: acct.UID})
}

// Resume signs in with the saved session token. It returns nil and stays
// signed out when no token is saved.
func (l *Local) Resume(ctx context.Context) error {
	token, err := l.session.Load()
	if err != nil {
		return err
	}
	if token == "" {
		return nil
	}

	user, err := l.tokens.Verify(token)
	if err != nil {
		l.logger.Info("discarding saved session", "error", err)
		_ = l.session.Clear()
		return hub.NewAuthError(hub.AuthInvalidSession)
	}
	acct, err := l.accounts.ByUID(ctx, user.UID)
	if errors.Is(err, ErrAccountNotFound) {
		_ = l.session.Clear()
		return hub.NewAuthError(hub.AuthInvalidSession)
	}
	if err != nil {
		return fmt.Errorf("looking up account: %w", err)
	}

	l.setUser(&model.User{UID: acct.UID, Email: acct.Email}, token)
	return nil
}

// Logout implements hub.IdentitySource.
func (l *Local) Logout(context.Context) error {
	if err := l.session.Clear(); err != nil {
		return err
	}
	l.setUser(nil, "")
	return nil
}

// Close releases the account store.
func (l *Local) Close() error {
	return l.accounts.Close()
}

func (l *Local) signIn(user *model.User) error {
	token, err := l.tokens.Issue(user)
	if err != nil {
		return err
	}
	if err := l.session.Save(token); err != nil {
		return err
	}
	l.logger.Info("signed in", "uid", user.UID, "anonymous", user.Anonymous())
	l.setUser(user, token)
	return nil
}

func (l *Local) setUser(user *model.User, token string) {
	l.mu.Lock()
	l.user = user
	l.token = token
	fns := make([]func(*model.User), 0, len(l.listeners))
	for _, fn := range l.listeners {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(user)
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", hub.NewAuthError(hub.AuthInvalidEmail)
	}
	return email, nil
}

var _ hub.IdentitySource = (*Local)(nil)
