package models

import "time"

// FeedItem is an entry or comment in the combined latest-activity feed.
type FeedItem struct {
	ID              string    `json:"id"`
	ContentCategory string    `json:"content_category"`
	StageID         string    `json:"stage_id"`
	CreatedAt       time.Time `json:"created_at"`
	Entry           *Entry    `json:"entry,omitempty"`
	Comment         *Comment  `json:"comment,omitempty"`
}

// Feed item categories.
const (
	ContentEntry   = "entry"
	ContentComment = "comment"
)
