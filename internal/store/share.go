package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/parlorhq/parlor/internal/model"
)

type ShareStore struct {
	db *sql.DB
}

func NewShareStore(db *sql.DB) *ShareStore {
	return &ShareStore{db: db}
}

func scanShare(scanner interface{ Scan(...any) error }) (*model.Share, error) {
	var sh model.Share
	var userID sql.NullInt64

	err := scanner.Scan(&sh.ID, &sh.PostID, &userID, &sh.Channel, &sh.Slug, &sh.CreatedAt)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		sh.UserID = &userID.Int64
	}
	return &sh, nil
}

const shareCols = `id, post_id, user_id, channel, slug, created_at`

// Create records a share and mints its public slug. userID is nil for
// anonymous shares.
func (s *ShareStore) Create(postID int64, userID *int64, channel string) (*model.Share, error) {
	var uID sql.NullInt64
	if userID != nil {
		uID = sql.NullInt64{Int64: *userID, Valid: true}
	}
	slug := uuid.NewString()

	result, err := s.db.Exec(
		`INSERT INTO shares (post_id, user_id, channel, slug) VALUES (?, ?, ?, ?)`,
		postID, uID, channel, slug,
	)
	if err != nil {
		return nil, fmt.Errorf("insert share: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRow(`SELECT `+shareCols+` FROM shares WHERE id = ?`, id)
	return scanShare(row)
}

// GetBySlug resolves a public share slug.
func (s *ShareStore) GetBySlug(slug string) (*model.Share, error) {
	row := s.db.QueryRow(`SELECT `+shareCols+` FROM shares WHERE slug = ?`, slug)
	sh, err := scanShare(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get share by slug: %w", err)
	}
	return sh, nil
}

// CountByPost returns how many times a post has been shared.
func (s *ShareStore) CountByPost(postID int64) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM shares WHERE post_id = ?`, postID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count shares: %w", err)
	}
	return count, nil
}
