// internal/domain/models/comment.go
package models

import (
	"errors"
	"time"
)

// UnknownAuthorName is shown when a comment author's profile cannot be
// resolved.
const UnknownAuthorName = "Unknown User"

// Comment belongs to an entry. ParentCommentID is empty for top-level
// comments. FullName and AuthorRole are display-only enrichment and are
// never stored.
type Comment struct {
	ID              string    `mapstructure:"-" json:"id"`
	EntryID         string    `mapstructure:"entry_id" json:"entry_id"`
	UserID          string    `mapstructure:"user_id" json:"user_id"`
	Username        string    `mapstructure:"username" json:"username"`
	Text            string    `mapstructure:"text" json:"text"`
	ParentCommentID string    `mapstructure:"parent_comment_id" json:"parent_comment_id,omitempty"`
	CreatedAt       time.Time `mapstructure:"created_at" json:"created_at"`

	FullName   string `mapstructure:"-" json:"full_name"`
	AuthorRole Role   `mapstructure:"-" json:"role"`
}

// Validate checks required fields.
func (c *Comment) Validate() error {
	if c.EntryID == "" {
		return errors.New("comment: entry_id is required")
	}
	if c.UserID == "" {
		return errors.New("comment: user_id is required")
	}
	return nil
}

// IsTopLevel reports whether the comment has no parent.
func (c *Comment) IsTopLevel() bool {
	return c.ParentCommentID == ""
}

// ToDocument encodes the comment for storage, without enrichment fields.
func (c *Comment) ToDocument() map[string]any {
	var parent any
	if c.ParentCommentID != "" {
		parent = c.ParentCommentID
	}
	return map[string]any{
		"entry_id":          c.EntryID,
		"user_id":           c.UserID,
		"username":          c.Username,
		"text":              c.Text,
		"parent_comment_id": parent,
		"created_at":        c.CreatedAt,
	}
}

// CommentThread is a comment together with its replies, recursively.
type CommentThread struct {
	Comment
	Replies []CommentThread `json:"replies"`
}
