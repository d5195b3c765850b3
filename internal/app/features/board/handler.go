// Package board serves the content of the signed-in user's active
// community: entries, comments, votes, gratitude and check-ins. Every
// request is checked against the active community's membership first.
package board

import (
	"context"
	"net/http"

	"github.com/dalemusser/juntos/internal/app/policy/membershippolicy"
	"github.com/dalemusser/juntos/internal/app/system/apperr"
	"github.com/dalemusser/juntos/internal/app/system/auth"
	"github.com/dalemusser/juntos/internal/app/system/clientsession"
	"github.com/dalemusser/juntos/internal/domain/models"
	"go.uber.org/zap"
)

var (
	errNoActiveCommunity = apperr.Validation("Select a community first.")
	errEntryNotFound     = apperr.New(apperr.CodeNotFound, "Entry not found.")
	errLeadersOnly       = apperr.New(apperr.CodeNotMember, "Only community leaders can view this board.")
)

type Handler struct {
	Log *zap.Logger
}

func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{Log: logger}
}

// scope is the validated context of one board request.
type scope struct {
	cs          *clientsession.Session
	profile     *models.Profile
	communityID string
}

func (sc scope) userID() string { return sc.profile.UserID }

func scopeOf(r *http.Request) (scope, error) {
	cs, ok := auth.ClientSession(r)
	if !ok {
		return scope{}, apperr.ErrUnauthorized
	}
	p := cs.Manager.Profile()
	if p == nil {
		return scope{}, apperr.ErrUnauthorized
	}
	if p.CurrentCommunityID == "" {
		return scope{}, errNoActiveCommunity
	}
	if err := membershippolicy.ValidateMembership(p, p.CurrentCommunityID); err != nil {
		return scope{}, err
	}
	return scope{cs: cs, profile: p, communityID: p.CurrentCommunityID}, nil
}

// role is the user's role in the active community.
func (sc scope) role(ctx context.Context) (models.Role, error) {
	return sc.cs.Membership.RoleIn(ctx, sc.cs.Manager, sc.communityID)
}

// entry loads entryID and checks that the user may see it: it must belong
// to the active community, and members only see visible entries that pass
// the awareness privacy rule.
func (sc scope) entry(ctx context.Context, entryID string) (*models.Entry, error) {
	e, err := sc.cs.Entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if e.CommunityID != sc.communityID {
		return nil, errEntryNotFound
	}
	role, err := sc.role(ctx)
	if err != nil {
		return nil, err
	}
	if role != models.RoleLeader && (e.Status != models.EntryStatusVisible || !e.VisibleToMember()) {
		return nil, errEntryNotFound
	}
	return e, nil
}
