package store

import (
	"database/sql"
	"fmt"

	"github.com/parlorhq/parlor/internal/model"
)

type CommentStore struct {
	db *sql.DB
}

func NewCommentStore(db *sql.DB) *CommentStore {
	return &CommentStore{db: db}
}

func scanComment(scanner interface{ Scan(...any) error }) (*model.Comment, error) {
	var c model.Comment
	var parentID sql.NullInt64
	var hiddenAt sql.NullTime

	err := scanner.Scan(
		&c.ID, &c.PostID, &c.AuthorID, &c.AuthorName, &parentID,
		&c.Body, &hiddenAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		c.ParentID = &parentID.Int64
	}
	if hiddenAt.Valid {
		c.HiddenAt = &hiddenAt.Time
	}
	return &c, nil
}

const commentCols = `c.id, c.post_id, c.author_id, u.username, c.parent_id, c.body, c.hidden_at, c.created_at`
const commentFrom = ` FROM comments c JOIN users u ON u.id = c.author_id `

func (s *CommentStore) Create(postID, authorID int64, parentID *int64, body string) (*model.Comment, error) {
	var pID sql.NullInt64
	if parentID != nil {
		pID = sql.NullInt64{Int64: *parentID, Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO comments (post_id, author_id, parent_id, body) VALUES (?, ?, ?, ?)`,
		postID, authorID, pID, body,
	)
	if err != nil {
		return nil, fmt.Errorf("insert comment: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *CommentStore) GetByID(id int64) (*model.Comment, error) {
	row := s.db.QueryRow(`SELECT `+commentCols+commentFrom+`WHERE c.id = ?`, id)
	c, err := scanComment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return c, nil
}

// ListByPost returns a post's visible comments, oldest first so threads read
// top to bottom.
func (s *CommentStore) ListByPost(postID int64) ([]model.Comment, error) {
	rows, err := s.db.Query(
		`SELECT `+commentCols+commentFrom+`WHERE c.post_id = ? AND c.hidden_at IS NULL ORDER BY c.created_at ASC, c.id ASC`,
		postID,
	)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var comments []model.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, *c)
	}
	return comments, rows.Err()
}

// SetHidden hides or unhides a comment (moderation).
func (s *CommentStore) SetHidden(id int64, hidden bool) error {
	var err error
	if hidden {
		_, err = s.db.Exec(`UPDATE comments SET hidden_at = datetime('now') WHERE id = ?`, id)
	} else {
		_, err = s.db.Exec(`UPDATE comments SET hidden_at = NULL WHERE id = ?`, id)
	}
	if err != nil {
		return fmt.Errorf("set comment hidden: %w", err)
	}
	return nil
}

func (s *CommentStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM comments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}
