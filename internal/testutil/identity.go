package testutil

import (
	"context"
	"strings"
	"sync"

	"futurehub/internal/hub"
	"futurehub/internal/model"
)

// StubIdentity is an IdentitySource whose user is set directly by tests.
// Login and Signup accept any non-empty email and derive the uid from it.
type StubIdentity struct {
	mu        sync.Mutex
	user      *model.User
	listeners map[int]func(*model.User)
	next      int
}

// NewStubIdentity creates a signed-out identity source.
func NewStubIdentity() *StubIdentity {
	return &StubIdentity{listeners: make(map[int]func(*model.User))}
}

// SetUser switches the current user and notifies listeners. Nil signs out.
func (s *StubIdentity) SetUser(u *model.User) {
	s.mu.Lock()
	s.user = u
	fns := make([]func(*model.User), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(u)
	}
}

func (s *StubIdentity) Subscribe(onChange func(*model.User)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.listeners[id] = onChange
	u := s.user
	s.mu.Unlock()

	onChange(u)
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *StubIdentity) Current() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *StubIdentity) Login(_ context.Context, email, _ string) error {
	if strings.TrimSpace(email) == "" {
		return hub.NewAuthError(hub.AuthInvalidCredential)
	}
	s.SetUser(&model.User{UID: "uid-" + email, Email: email})
	return nil
}

func (s *StubIdentity) Signup(ctx context.Context, email, password string) error {
	return s.Login(ctx, email, password)
}

func (s *StubIdentity) Logout(context.Context) error {
	s.SetUser(nil)
	return nil
}

var _ hub.IdentitySource = (*StubIdentity)(nil)
