// Package registration creates accounts together with their profiles and
// signs users in, translating provider failures into user-facing messages.
package registration

import (
	"context"
	"errors"
	"strings"
	"time"

	profilestore "github.com/dalemusser/juntos/internal/app/store/profiles"
	"github.com/dalemusser/juntos/internal/app/system/apperr"
	"github.com/dalemusser/juntos/internal/app/system/identity"
	"github.com/dalemusser/juntos/internal/app/system/normalize"
	"github.com/dalemusser/juntos/internal/app/system/timeouts"
	"github.com/dalemusser/juntos/internal/domain/models"
	"go.uber.org/zap"
)

// User-facing messages.
const (
	MsgRegisterFailed  = "Unable to register. Please try again."
	MsgUserNotFound    = "User not found. Please check your email."
	MsgWrongPassword   = "Incorrect password. Please try again."
	MsgTooManyRequests = "Too many failed login attempts. Please try again later."
	MsgUnexpected      = "An unexpected error occurred. Please try again."
)

// Form is the registration input.
type Form struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// Service registers and signs in users of one client session.
type Service struct {
	provider identity.Provider
	profiles *profilestore.Store
	log      *zap.Logger
}

func New(provider identity.Provider, profiles *profilestore.Store, logger *zap.Logger) *Service {
	return &Service{provider: provider, profiles: profiles, log: logger}
}

// Register creates the account, sets its display name and writes the
// initial profile (member role, no communities, unverified). The account
// is signed in on success. If any step after account creation fails, the
// account and any partial profile are deleted and the provider is signed
// out, so the email can be registered again.
func (s *Service) Register(ctx context.Context, f Form) (*models.Identity, error) {
	first, last := normalize.Name(f.FirstName), normalize.Name(f.LastName)
	username := normalize.Username(f.Username)
	if first == "" || username == "" || strings.TrimSpace(f.Email) == "" || f.Password == "" {
		return nil, apperr.Validation("First name, username, email and password are required.")
	}

	id, err := s.provider.CreateAccount(ctx, f.Email, f.Password)
	if err != nil {
		s.log.Warn("registration failed", zap.String("code", identity.CodeOf(err)), zap.Error(err))
		return nil, apperr.Wrap(apperr.CodeRemoteOperationFailed, MsgRegisterFailed, err)
	}

	fullName := normalize.FullName(first, last)
	if err := s.provider.UpdateDisplayName(ctx, fullName); err != nil {
		s.log.Error("set display name failed", zap.String("user_id", id.ID), zap.Error(err))
		s.rollback(ctx, id.ID)
		return nil, apperr.Wrap(apperr.CodeRemoteOperationFailed, MsgRegisterFailed, err)
	}
	id.DisplayName = fullName

	now := time.Now().UTC()
	p := &models.Profile{
		UserID:       id.ID,
		Username:     username,
		FullName:     fullName,
		Email:        id.Email,
		Role:         models.RoleMember,
		CommunityIDs: []string{},
		IsVerified:   false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.profiles.Create(ctx, p); err != nil {
		s.log.Error("create profile failed", zap.String("user_id", id.ID), zap.Error(err))
		s.rollback(ctx, id.ID)
		return nil, apperr.Wrap(apperr.CodeRemoteOperationFailed, MsgRegisterFailed, err)
	}

	s.log.Info("user registered", zap.String("user_id", id.ID), zap.String("username", username))
	return id, nil
}

// rollback undoes a partial registration. It runs even when ctx has been
// cancelled.
func (s *Service) rollback(ctx context.Context, userID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.Short())
	defer cancel()

	log := s.log.With(zap.String("user_id", userID))
	if err := s.profiles.Delete(ctx, userID); err != nil {
		log.Error("rollback: delete profile failed", zap.Error(err))
	}
	if err := s.provider.DeleteAccount(ctx); err != nil {
		log.Error("rollback: delete account failed", zap.Error(err))
		if err := s.provider.SignOut(ctx); err != nil {
			log.Error("rollback: sign out failed", zap.Error(err))
		}
		return
	}
	log.Warn("registration rolled back")
}

// Login signs the user in. Failures carry a message chosen by MessageFor.
func (s *Service) Login(ctx context.Context, email, password string) (*models.Identity, error) {
	id, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		s.log.Info("login failed", zap.String("code", identity.CodeOf(err)))
		code := apperr.CodeUnauthorized
		if !isCredentialFailure(err) {
			code = apperr.CodeRemoteOperationFailed
		}
		return nil, apperr.Wrap(code, MessageFor(err), err)
	}
	return id, nil
}

// MessageFor maps a provider failure to the message shown at login.
func MessageFor(err error) string {
	switch identity.CodeOf(err) {
	case identity.CodeUserNotFound:
		return MsgUserNotFound
	case identity.CodeWrongPassword:
		return MsgWrongPassword
	case identity.CodeTooManyRequests:
		return MsgTooManyRequests
	default:
		return MsgUnexpected
	}
}

func isCredentialFailure(err error) bool {
	var pe *identity.Error
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Code {
	case identity.CodeUserNotFound, identity.CodeWrongPassword, identity.CodeTooManyRequests, identity.CodeInvalidEmail:
		return true
	}
	return false
}
