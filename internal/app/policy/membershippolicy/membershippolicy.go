// Package membershippolicy gates and performs community membership changes
// for the signed-in user.
//
// Membership rules:
//   - A community id is usable only if it is in the profile's community_ids
//   - Switching validates first, writes remotely second, mirrors locally last
//   - Community names are unique after case folding
//   - Creators join as leader, everyone else joins as member
//   - There are no capacity limits, invitations, or approvals
package membershippolicy

import (
	"context"
	"errors"
	"slices"

	communitystore "github.com/dalemusser/juntos/internal/app/store/communities"
	profilestore "github.com/dalemusser/juntos/internal/app/store/profiles"
	"github.com/dalemusser/juntos/internal/app/system/apperr"
	"github.com/dalemusser/juntos/internal/app/system/docstore"
	"github.com/dalemusser/juntos/internal/app/system/idgen"
	"github.com/dalemusser/juntos/internal/app/system/normalize"
	"github.com/dalemusser/juntos/internal/domain/models"
	"go.uber.org/zap"
)

// maxIDAttempts bounds id regeneration when a generated id is taken.
const maxIDAttempts = 5

// ProfileHolder is the session state the policy reads and updates.
type ProfileHolder interface {
	Identity() *models.Identity
	Profile() *models.Profile
	ApplyProfile(ctx context.Context, p *models.Profile)
}

// Service performs membership operations against the document service.
type Service struct {
	communities *communitystore.Store
	profiles    *profilestore.Store
	log         *zap.Logger
	newID       func(name string) string
}

// Option configures a Service.
type Option func(*Service)

// WithIDFunc replaces the community id generator.
func WithIDFunc(fn func(name string) string) Option {
	return func(s *Service) { s.newID = fn }
}

func New(communities *communitystore.Store, profiles *profilestore.Store, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		communities: communities,
		profiles:    profiles,
		log:         logger,
		newID:       idgen.CommunityID,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ValidateMembership fails with NotMember when communityID is not one of
// the profile's communities and with Unauthorized when there is no profile.
func ValidateMembership(p *models.Profile, communityID string) error {
	if p == nil {
		return apperr.ErrUnauthorized
	}
	if !p.IsMemberOf(communityID) {
		return apperr.ErrNotMember
	}
	return nil
}

// SelectCommunity checks that the user may act inside communityID without
// changing the active community.
func (s *Service) SelectCommunity(h ProfileHolder, communityID string) error {
	return ValidateMembership(h.Profile(), communityID)
}

// SwitchActiveCommunity makes communityID the active community. Nothing is
// written when the membership check fails.
func (s *Service) SwitchActiveCommunity(ctx context.Context, h ProfileHolder, communityID string) error {
	p := h.Profile()
	if err := ValidateMembership(p, communityID); err != nil {
		return err
	}

	if err := s.profiles.SetActiveCommunity(ctx, p.UserID, communityID); err != nil {
		s.log.Error("switch active community failed",
			zap.String("user_id", p.UserID),
			zap.String("community_id", communityID),
			zap.Error(err))
		return apperr.Wrap(apperr.CodeSwitchFailed, apperr.ErrSwitchFailed.Message, err)
	}

	p = p.Clone()
	p.CurrentCommunityID = communityID
	h.ApplyProfile(ctx, p)
	return nil
}

// CreateCommunity creates a community led by the signed-in user, adds it to
// their communities and makes it active.
func (s *Service) CreateCommunity(ctx context.Context, h ProfileHolder, name string) (*models.Community, error) {
	p := h.Profile()
	if p == nil {
		return nil, apperr.ErrUnauthorized
	}
	name = normalize.CommunityName(name)
	if name == "" {
		return nil, apperr.Validation("Community name is required.")
	}

	taken, err := s.communities.ExistsByName(ctx, name)
	if err != nil {
		s.log.Error("community name check failed", zap.String("name", name), zap.Error(err))
		return nil, apperr.Remote("", err)
	}
	if taken {
		return nil, apperr.ErrDuplicateName
	}

	id, err := s.freeID(ctx, name)
	if err != nil {
		return nil, err
	}

	c := &models.Community{
		ID:        id,
		Name:      name,
		CreatedBy: p.UserID,
		Members:   []models.CommunityMember{{UserID: p.UserID, Role: models.RoleLeader}},
	}
	if err := s.communities.Create(ctx, c); err != nil {
		if errors.Is(err, communitystore.ErrDuplicateCommunity) {
			return nil, apperr.ErrDuplicateName
		}
		s.log.Error("create community failed", zap.String("community_id", id), zap.Error(err))
		return nil, apperr.Remote("", err)
	}

	if err := s.profiles.AddCommunity(ctx, p.UserID, id); err != nil {
		s.log.Error("add community to profile failed",
			zap.String("user_id", p.UserID),
			zap.String("community_id", id),
			zap.Error(err))
		if derr := s.communities.Delete(ctx, id); derr != nil {
			s.log.Warn("orphaned community left behind", zap.String("community_id", id), zap.Error(derr))
		}
		return nil, apperr.Remote("", err)
	}

	h.ApplyProfile(ctx, withCommunity(p, id))
	s.log.Info("community created",
		zap.String("community_id", id),
		zap.String("name", name),
		zap.String("user_id", p.UserID))
	return c, nil
}

// JoinCommunity adds the signed-in user to communityID as a member and
// makes it active.
func (s *Service) JoinCommunity(ctx context.Context, h ProfileHolder, communityID string) error {
	p := h.Profile()
	if p == nil {
		return apperr.ErrUnauthorized
	}
	if communityID == "" {
		return apperr.Validation("Community ID is required.")
	}

	c, err := s.communities.Get(ctx, communityID)
	if errors.Is(err, docstore.ErrNotFound) {
		return apperr.ErrCommunityNotFound
	}
	if err != nil {
		s.log.Error("load community failed", zap.String("community_id", communityID), zap.Error(err))
		return apperr.Remote("", err)
	}

	if _, listed := c.RoleOf(p.UserID); !listed {
		m := models.CommunityMember{UserID: p.UserID, Role: models.RoleMember}
		if err := s.communities.AddMember(ctx, communityID, m); err != nil {
			s.log.Error("add community member failed",
				zap.String("community_id", communityID),
				zap.String("user_id", p.UserID),
				zap.Error(err))
			return apperr.Remote("", err)
		}
	}

	if err := s.profiles.AddCommunity(ctx, p.UserID, communityID); err != nil {
		s.log.Error("add community to profile failed",
			zap.String("user_id", p.UserID),
			zap.String("community_id", communityID),
			zap.Error(err))
		return apperr.Remote("", err)
	}

	h.ApplyProfile(ctx, withCommunity(p, communityID))
	return nil
}

// ListCommunities returns the communities in the user's membership set.
func (s *Service) ListCommunities(ctx context.Context, h ProfileHolder) ([]models.Community, error) {
	p := h.Profile()
	if p == nil {
		return nil, apperr.ErrUnauthorized
	}
	out, err := s.communities.GetMany(ctx, p.CommunityIDs)
	if err != nil {
		s.log.Error("list communities failed", zap.String("user_id", p.UserID), zap.Error(err))
		return nil, apperr.Remote("", err)
	}
	return out, nil
}

// RoleIn returns the user's role inside communityID. The community's member
// list decides; the profile role is used when the user is not listed.
func (s *Service) RoleIn(ctx context.Context, h ProfileHolder, communityID string) (models.Role, error) {
	p := h.Profile()
	if err := ValidateMembership(p, communityID); err != nil {
		return "", err
	}
	c, err := s.communities.Get(ctx, communityID)
	if errors.Is(err, docstore.ErrNotFound) {
		return "", apperr.ErrCommunityNotFound
	}
	if err != nil {
		return "", apperr.Remote("", err)
	}
	if role, ok := c.RoleOf(p.UserID); ok {
		return role, nil
	}
	return p.Role, nil
}

func (s *Service) freeID(ctx context.Context, name string) (string, error) {
	for range maxIDAttempts {
		id := s.newID(name)
		exists, err := s.communities.Exists(ctx, id)
		if err != nil {
			s.log.Error("community id check failed", zap.String("community_id", id), zap.Error(err))
			return "", apperr.Remote("", err)
		}
		if !exists {
			return id, nil
		}
		s.log.Debug("community id taken; regenerating", zap.String("community_id", id))
	}
	return "", apperr.Remote("", errors.New("could not allocate a free community id"))
}

func withCommunity(p *models.Profile, id string) *models.Profile {
	p = p.Clone()
	if !slices.Contains(p.CommunityIDs, id) {
		p.CommunityIDs = append(p.CommunityIDs, id)
	}
	p.CurrentCommunityID = id
	return p
}
