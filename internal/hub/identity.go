package hub

import (
	"context"

	"futurehub/internal/model"
)

// IdentitySource supplies the current user and notifies on change.
type IdentitySource interface {
	// Subscribe registers onChange and immediately calls it with the current
	// user (nil when logged out). The returned function removes the listener.
	Subscribe(onChange func(*model.User)) func()

	// Current returns the signed-in user, or nil.
	Current() *model.User

	// Login signs in with email and password. Failures are *AuthError.
	Login(ctx context.Context, email, password string) error

	// Signup creates an account and signs it in. Failures are *AuthError.
	Signup(ctx context.Context, email, password string) error

	// Logout signs out the current user.
	Logout(ctx context.Context) error
}
