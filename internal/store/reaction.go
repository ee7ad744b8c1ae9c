package store

import (
	"database/sql"
	"fmt"

	"github.com/parlorhq/parlor/internal/model"
)

type ReactionStore struct {
	db *sql.DB
}

func NewReactionStore(db *sql.DB) *ReactionStore {
	return &ReactionStore{db: db}
}

const reactionCols = `id, post_id, user_id, kind, created_at`

func scanReaction(scanner interface{ Scan(...any) error }) (*model.Reaction, error) {
	var r model.Reaction
	err := scanner.Scan(&r.ID, &r.PostID, &r.UserID, &r.Kind, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Get returns the user's reaction on a post, or nil.
func (s *ReactionStore) Get(postID, userID int64) (*model.Reaction, error) {
	row := s.db.QueryRow(
		`SELECT `+reactionCols+` FROM reactions WHERE post_id = ? AND user_id = ?`,
		postID, userID,
	)
	r, err := scanReaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reaction: %w", err)
	}
	return r, nil
}

// Toggle applies the one-reaction-per-(user, post) rule: reacting with the
// current kind removes it, any other kind replaces it. Returns the resulting
// reaction, or nil when the toggle removed it.
func (s *ReactionStore) Toggle(postID, userID int64, kind string) (*model.Reaction, error) {
	existing, err := s.Get(postID, userID)
	if err != nil {
		return nil, err
	}

	if existing != nil && existing.Kind == kind {
		if _, err := s.db.Exec(`DELETE FROM reactions WHERE id = ?`, existing.ID); err != nil {
			return nil, fmt.Errorf("delete reaction: %w", err)
		}
		return nil, nil
	}

	_, err = s.db.Exec(
		`INSERT INTO reactions (post_id, user_id, kind) VALUES (?, ?, ?)
		 ON CONFLICT(post_id, user_id) DO UPDATE SET kind = excluded.kind, created_at = datetime('now')`,
		postID, userID, kind,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert reaction: %w", err)
	}
	return s.Get(postID, userID)
}

// Counts tallies reactions per kind for one post.
func (s *ReactionStore) Counts(postID int64) (*model.ReactionCounts, error) {
	rows, err := s.db.Query(
		`SELECT kind, COUNT(*) FROM reactions WHERE post_id = ? GROUP BY kind`,
		postID,
	)
	if err != nil {
		return nil, fmt.Errorf("count reactions: %w", err)
	}
	defer rows.Close()

	rc := &model.ReactionCounts{PostID: postID, Counts: make(map[string]int)}
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan reaction count: %w", err)
		}
		rc.Counts[kind] = n
		rc.Total += n
	}
	return rc, rows.Err()
}
