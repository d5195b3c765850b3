// internal/domain/models/reactions.go
package models

import (
	"errors"
	"fmt"
	"time"
)

// VoteType is a consent-style vote on an entry.
type VoteType string

const (
	VoteNoObjection VoteType = "no-objection"
	VoteConcern     VoteType = "concern"
	VoteObjection   VoteType = "objection"
)

// VoteTypes lists every vote type in display order.
var VoteTypes = []VoteType{VoteNoObjection, VoteConcern, VoteObjection}

// Valid reports whether v is a known vote type.
func (v VoteType) Valid() bool {
	switch v {
	case VoteNoObjection, VoteConcern, VoteObjection:
		return true
	}
	return false
}

// Vote is one user's vote on one entry.
type Vote struct {
	ID        string    `mapstructure:"-" json:"id"`
	EntryID   string    `mapstructure:"entry_id" json:"entry_id"`
	UserID    string    `mapstructure:"user_id" json:"user_id"`
	VoteType  VoteType  `mapstructure:"vote_type" json:"vote_type"`
	CreatedAt time.Time `mapstructure:"created_at" json:"created_at"`
}

// Validate checks required fields and the vote type.
func (v *Vote) Validate() error {
	if v.EntryID == "" || v.UserID == "" {
		return errors.New("vote: entry_id and user_id are required")
	}
	if !v.VoteType.Valid() {
		return fmt.Errorf("vote: unknown vote type %q", v.VoteType)
	}
	return nil
}

func (v *Vote) ToDocument() map[string]any {
	return map[string]any{
		"entry_id":   v.EntryID,
		"user_id":    v.UserID,
		"vote_type":  string(v.VoteType),
		"created_at": v.CreatedAt,
	}
}

// GratitudeVote is a once-per-interval reaction to an entry. Its id is
// derived from (entry, user, interval start), so a second reaction in the
// same interval overwrites the first.
type GratitudeVote struct {
	ID            string    `mapstructure:"-" json:"id"`
	EntryID       string    `mapstructure:"entry_id" json:"entry_id"`
	UserID        string    `mapstructure:"user_id" json:"user_id"`
	CommunityID   string    `mapstructure:"community_id" json:"community_id"`
	IntervalStart time.Time `mapstructure:"interval_start" json:"interval_start"`
	IntervalEnd   time.Time `mapstructure:"interval_end" json:"interval_end"`
	CreatedAt     time.Time `mapstructure:"created_at" json:"created_at"`
}

// GratitudeKey builds the document id of a gratitude vote.
func GratitudeKey(entryID, userID string, intervalStart time.Time) string {
	return fmt.Sprintf("%s_%s_%d", entryID, userID, intervalStart.Unix())
}

func (g *GratitudeVote) ToDocument() map[string]any {
	return map[string]any{
		"entry_id":       g.EntryID,
		"user_id":        g.UserID,
		"community_id":   g.CommunityID,
		"interval_start": g.IntervalStart,
		"interval_end":   g.IntervalEnd,
		"created_at":     g.CreatedAt,
	}
}

// Check-in constants.
const (
	CheckInStatusConfirmed = "confirmed"
	CheckInDateLayout      = "2006-01-02"
)

// CheckIn records a user's attendance against an entry.
type CheckIn struct {
	ID          string `mapstructure:"-" json:"id"`
	UserID      string `mapstructure:"user_id" json:"user_id"`
	EntryID     string `mapstructure:"entry_id" json:"entry_id"`
	CommunityID string `mapstructure:"community_id" json:"community_id"`
	CheckInDate string `mapstructure:"check_in_date" json:"check_in_date"`
	Status      string `mapstructure:"status" json:"status"`
	Score       int    `mapstructure:"score" json:"score"`
}

func (c *CheckIn) Validate() error {
	if c.EntryID == "" || c.CommunityID == "" || c.UserID == "" {
		return errors.New("check-in: entry_id, community_id and user_id are required")
	}
	return nil
}

func (c *CheckIn) ToDocument() map[string]any {
	return map[string]any{
		"user_id":       c.UserID,
		"entry_id":      c.EntryID,
		"community_id":  c.CommunityID,
		"check_in_date": c.CheckInDate,
		"status":        c.Status,
		"score":         c.Score,
	}
}
