package model

import "time"

type Post struct {
	ID           int64      `json:"id"`
	AuthorID     int64      `json:"author_id"`
	AuthorName   string     `json:"author_name,omitempty"`
	Title        string     `json:"title"`
	Slug         string     `json:"slug"`
	Body         string     `json:"body"` // rich-text document JSON
	Excerpt      string     `json:"excerpt"`
	Published    bool       `json:"published"`
	HiddenAt     *time.Time `json:"hidden_at,omitempty"`
	CommentCount int        `json:"comment_count,omitempty"`
	ShareCount   int        `json:"share_count,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Hidden reports whether a moderator has hidden the post.
func (p *Post) Hidden() bool {
	return p.HiddenAt != nil
}

type Comment struct {
	ID         int64      `json:"id"`
	PostID     int64      `json:"post_id"`
	AuthorID   int64      `json:"author_id"`
	AuthorName string     `json:"author_name,omitempty"`
	ParentID   *int64     `json:"parent_id,omitempty"`
	Body       string     `json:"body"`
	HiddenAt   *time.Time `json:"hidden_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Hidden reports whether a moderator has hidden the comment.
func (c *Comment) Hidden() bool {
	return c.HiddenAt != nil
}

// Reaction kinds. One reaction per (user, post); re-reacting with the same
// kind removes it, a different kind replaces it.
const (
	ReactionLike  = "like"
	ReactionLove  = "love"
	ReactionLaugh = "laugh"
	ReactionSad   = "sad"
)

type Reaction struct {
	ID        int64     `json:"id"`
	PostID    int64     `json:"post_id"`
	UserID    int64     `json:"user_id"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// ReactionCounts is the per-kind tally for one post.
type ReactionCounts struct {
	PostID int64          `json:"post_id"`
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

// Share channels.
const (
	ShareCopyLink = "copy-link"
	ShareTwitter  = "twitter"
	ShareFacebook = "facebook"
)

type Share struct {
	ID        int64     `json:"id"`
	PostID    int64     `json:"post_id"`
	UserID    *int64    `json:"user_id,omitempty"`
	Channel   string    `json:"channel"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}
