// Package identity is the authentication provider: account creation,
// sign-in and sign-out, and the identity-change feed.
//
// Accounts live in the "accounts" collection of the document service with
// bcrypt password hashes. A Client is per client session and remembers
// which identity is signed in; the account data and the sign-in limiter
// are shared.
//
// Failures are reported as *Error values carrying provider codes such as
// "auth/user-not-found"; translating them into user-facing text is the
// registration package's job.
package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/juntos/internal/domain/models"
)

// Provider error codes.
const (
	CodeUserNotFound    = "auth/user-not-found"
	CodeWrongPassword   = "auth/wrong-password"
	CodeTooManyRequests = "auth/too-many-requests"
	CodeEmailInUse      = "auth/email-already-in-use"
	CodeWeakPassword    = "auth/weak-password"
	CodeInvalidEmail    = "auth/invalid-email"
	CodeNotSignedIn     = "auth/no-current-user"
	CodeInternal        = "auth/internal-error"
)

// MinPasswordLen is the shortest accepted password.
const MinPasswordLen = 6

// Error is a provider failure with a machine-readable code.
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Err.Error()
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the provider code carried by err, or "" when err is not
// a provider error.
func CodeOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// Provider is the authentication service used by the session layer.
type Provider interface {
	// CreateAccount registers a new account and signs it in.
	CreateAccount(ctx context.Context, email, password string) (*models.Identity, error)
	// SignIn verifies credentials and makes the account current.
	SignIn(ctx context.Context, email, password string) (*models.Identity, error)
	// SignOut clears the current identity.
	SignOut(ctx context.Context) error
	// Current returns the signed-in identity, or nil.
	Current() *models.Identity
	// OnIdentityChange registers fn to be called after every sign-in and
	// sign-out. The returned func removes the registration.
	OnIdentityChange(fn func(*models.Identity)) (unsubscribe func())
	// UpdateDisplayName changes the current account's display name.
	UpdateDisplayName(ctx context.Context, displayName string) error
	// DeleteAccount removes the current account and signs out.
	DeleteAccount(ctx context.Context) error
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\n")
}
