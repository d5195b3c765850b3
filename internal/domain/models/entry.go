// internal/domain/models/entry.go
package models

import (
	"errors"
	"fmt"
	"time"
)

// Entry statuses.
const (
	EntryStatusVisible  = "visible"
	EntryStatusArchived = "archived"
)

// Entry visibilities.
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// StageAwareness is the stage whose private observations are hidden from
// members.
const StageAwareness = "awareness"

// Entry is a journal-style post inside a community. Fields the application
// does not interpret are kept in Payload and written back unchanged.
type Entry struct {
	ID                 string         `mapstructure:"-" json:"id"`
	CommunityID        string         `mapstructure:"community_id" json:"community_id"`
	UserID             string         `mapstructure:"user_id" json:"user_id"`
	StageID            string         `mapstructure:"stage_id" json:"stage_id"`
	Visibility         string         `mapstructure:"visibility" json:"visibility"`
	Status             string         `mapstructure:"status" json:"status"`
	ObservationPrivate bool           `mapstructure:"observation_private" json:"observation_private"`
	CreatedAt          time.Time      `mapstructure:"created_at" json:"created_at"`
	Payload            map[string]any `mapstructure:",remain" json:"payload,omitempty"`
}

// Validate checks required fields and enumerations.
func (e *Entry) Validate() error {
	if e.CommunityID == "" {
		return errors.New("entry: community_id is required")
	}
	switch e.Status {
	case EntryStatusVisible, EntryStatusArchived:
	default:
		return fmt.Errorf("entry: unknown status %q", e.Status)
	}
	switch e.Visibility {
	case "", VisibilityPublic, VisibilityPrivate:
	default:
		return fmt.Errorf("entry: unknown visibility %q", e.Visibility)
	}
	return nil
}

// VisibleToMember reports whether a plain member may see the entry.
// An entry is hidden only when it is non-public, in the awareness stage
// and marks its observation private.
func (e *Entry) VisibleToMember() bool {
	return e.Visibility == VisibilityPublic || e.StageID != StageAwareness || !e.ObservationPrivate
}

// ToDocument encodes the entry for storage, payload first so that typed
// fields win on key collisions.
func (e *Entry) ToDocument() map[string]any {
	doc := make(map[string]any, len(e.Payload)+7)
	for k, v := range e.Payload {
		doc[k] = v
	}
	doc["community_id"] = e.CommunityID
	doc["user_id"] = e.UserID
	doc["stage_id"] = e.StageID
	doc["visibility"] = e.Visibility
	doc["status"] = e.Status
	doc["observation_private"] = e.ObservationPrivate
	doc["created_at"] = e.CreatedAt
	return doc
}
