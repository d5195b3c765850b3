// internal/domain/models/community.go
package models

import (
	"errors"
	"time"
)

// CommunityMember is one entry of a community's member list.
type CommunityMember struct {
	UserID string `mapstructure:"user_id" json:"user_id"`
	Role   Role   `mapstructure:"role" json:"role"`
}

// ToDocument encodes the member as an embedded document.
func (m CommunityMember) ToDocument() map[string]any {
	return map[string]any{"user_id": m.UserID, "role": string(m.Role)}
}

// Community is keyed by its generated id. NameCI is the case-folded name
// used for the uniqueness check.
type Community struct {
	ID        string            `mapstructure:"-" json:"id"`
	Name      string            `mapstructure:"name" json:"name"`
	NameCI    string            `mapstructure:"name_ci" json:"-"`
	CreatedBy string            `mapstructure:"created_by" json:"created_by"`
	Members   []CommunityMember `mapstructure:"members" json:"members"`
	CreatedAt time.Time         `mapstructure:"created_at" json:"created_at"`
	UpdatedAt time.Time         `mapstructure:"updated_at" json:"updated_at"`
}

// Validate checks required fields.
func (c *Community) Validate() error {
	if c.Name == "" {
		return errors.New("community: name is required")
	}
	return nil
}

// RoleOf returns the member's role and whether the user is listed.
func (c *Community) RoleOf(userID string) (Role, bool) {
	for _, m := range c.Members {
		if m.UserID == userID {
			return m.Role, true
		}
	}
	return "", false
}

// ToDocument encodes the community for storage.
func (c *Community) ToDocument() map[string]any {
	members := make([]any, 0, len(c.Members))
	for _, m := range c.Members {
		members = append(members, m.ToDocument())
	}
	return map[string]any{
		"name":       c.Name,
		"name_ci":    c.NameCI,
		"created_by": c.CreatedBy,
		"members":    members,
		"created_at": c.CreatedAt,
		"updated_at": c.UpdatedAt,
	}
}
