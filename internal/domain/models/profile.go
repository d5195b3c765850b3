// internal/domain/models/profile.go
package models

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Role is a user's role, either globally on the profile or within one
// community's member list.
type Role string

const (
	RoleMember Role = "member"
	RoleLeader Role = "leader"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleMember || r == RoleLeader
}

// Identity is the authenticated principal as the identity provider sees it.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// Profile is the application-side user record, keyed by user id.
//
// CurrentCommunityID, when set, must be an element of CommunityIDs.
type Profile struct {
	UserID             string    `mapstructure:"user_id" json:"user_id"`
	Username           string    `mapstructure:"username" json:"username"`
	FullName           string    `mapstructure:"full_name" json:"full_name"`
	Email              string    `mapstructure:"email" json:"email"`
	Role               Role      `mapstructure:"role" json:"role"`
	CommunityIDs       []string  `mapstructure:"community_ids" json:"community_ids"`
	CurrentCommunityID string    `mapstructure:"current_community_id" json:"current_community_id,omitempty"`
	IsVerified         bool      `mapstructure:"is_verified" json:"is_verified"`
	CreatedAt          time.Time `mapstructure:"created_at" json:"created_at"`
	UpdatedAt          time.Time `mapstructure:"updated_at" json:"updated_at"`
}

// ErrActiveCommunityNotMember reports a profile whose active community is
// not in its membership set.
var ErrActiveCommunityNotMember = errors.New("current community is not in community_ids")

// Validate checks the fields every stored profile must have.
func (p *Profile) Validate() error {
	if p.UserID == "" {
		return errors.New("profile: user_id is required")
	}
	if p.Role != "" && !p.Role.Valid() {
		return fmt.Errorf("profile: unknown role %q", p.Role)
	}
	return nil
}

// CheckInvariant reports ErrActiveCommunityNotMember if the active
// community is set but not a member community.
func (p *Profile) CheckInvariant() error {
	if p.CurrentCommunityID == "" {
		return nil
	}
	if !p.IsMemberOf(p.CurrentCommunityID) {
		return ErrActiveCommunityNotMember
	}
	return nil
}

// IsMemberOf reports whether communityID is in the profile's membership set.
func (p *Profile) IsMemberOf(communityID string) bool {
	return slices.Contains(p.CommunityIDs, communityID)
}

// HasActiveCommunity reports whether an active community is selected.
func (p *Profile) HasActiveCommunity() bool {
	return p.CurrentCommunityID != ""
}

// Clone returns a deep copy.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	cp.CommunityIDs = slices.Clone(p.CommunityIDs)
	return &cp
}

// ToDocument encodes the profile for storage. A missing active community
// is stored as null.
func (p *Profile) ToDocument() map[string]any {
	ids := p.CommunityIDs
	if ids == nil {
		ids = []string{}
	}
	var current any
	if p.CurrentCommunityID != "" {
		current = p.CurrentCommunityID
	}
	return map[string]any{
		"user_id":              p.UserID,
		"username":             p.Username,
		"full_name":            p.FullName,
		"email":                p.Email,
		"role":                 string(p.Role),
		"community_ids":        ids,
		"current_community_id": current,
		"is_verified":          p.IsVerified,
		"created_at":           p.CreatedAt,
		"updated_at":           p.UpdatedAt,
	}
}

// PublicProfile is the read-only subset of a profile visible to other users.
type PublicProfile struct {
	UserID   string `mapstructure:"user_id" json:"user_id"`
	Username string `mapstructure:"username" json:"username"`
	FullName string `mapstructure:"full_name" json:"full_name"`
	Role     Role   `mapstructure:"role" json:"role"`
}
