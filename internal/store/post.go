package store

import (
	"database/sql"
	"fmt"

	"github.com/parlorhq/parlor/internal/model"
)

type PostStore struct {
	db *sql.DB
}

func NewPostStore(db *sql.DB) *PostStore {
	return &PostStore{db: db}
}

func scanPost(scanner interface{ Scan(...any) error }) (*model.Post, error) {
	var p model.Post
	var published int
	var hiddenAt sql.NullTime

	err := scanner.Scan(
		&p.ID, &p.AuthorID, &p.AuthorName, &p.Title, &p.Slug, &p.Body,
		&p.Excerpt, &published, &hiddenAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Published = published != 0
	if hiddenAt.Valid {
		p.HiddenAt = &hiddenAt.Time
	}
	return &p, nil
}

const postCols = `p.id, p.author_id, u.username, p.title, p.slug, p.body, p.excerpt, p.published, p.hidden_at, p.created_at, p.updated_at`
const postFrom = ` FROM posts p JOIN users u ON u.id = p.author_id `

func (s *PostStore) Create(authorID int64, title, slug, body, excerpt string, published bool) (*model.Post, error) {
	var pub int
	if published {
		pub = 1
	}

	result, err := s.db.Exec(
		`INSERT INTO posts (author_id, title, slug, body, excerpt, published) VALUES (?, ?, ?, ?, ?, ?)`,
		authorID, title, slug, body, excerpt, pub,
	)
	if err != nil {
		return nil, fmt.Errorf("insert post: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *PostStore) GetByID(id int64) (*model.Post, error) {
	row := s.db.QueryRow(`SELECT `+postCols+postFrom+`WHERE p.id = ?`, id)
	p, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	return p, nil
}

func (s *PostStore) GetBySlug(slug string) (*model.Post, error) {
	row := s.db.QueryRow(`SELECT `+postCols+postFrom+`WHERE p.slug = ?`, slug)
	p, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get post by slug: %w", err)
	}
	return p, nil
}

// ListPublished returns visible published posts, newest first, with comment
// and share counts attached.
func (s *PostStore) ListPublished(limit, offset int) ([]model.Post, error) {
	rows, err := s.db.Query(
		`SELECT `+postCols+`,
		   (SELECT COUNT(*) FROM comments c WHERE c.post_id = p.id AND c.hidden_at IS NULL),
		   (SELECT COUNT(*) FROM shares sh WHERE sh.post_id = p.id)
		 `+postFrom+`
		 WHERE p.published = 1 AND p.hidden_at IS NULL
		 ORDER BY p.created_at DESC, p.id DESC
		 LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list published posts: %w", err)
	}
	defer rows.Close()

	var posts []model.Post
	for rows.Next() {
		var p model.Post
		var published int
		var hiddenAt sql.NullTime
		err := rows.Scan(
			&p.ID, &p.AuthorID, &p.AuthorName, &p.Title, &p.Slug, &p.Body,
			&p.Excerpt, &published, &hiddenAt, &p.CreatedAt, &p.UpdatedAt,
			&p.CommentCount, &p.ShareCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		p.Published = published != 0
		if hiddenAt.Valid {
			p.HiddenAt = &hiddenAt.Time
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// ListByAuthor returns all of one author's posts including drafts,
// newest first.
func (s *PostStore) ListByAuthor(authorID int64) ([]model.Post, error) {
	rows, err := s.db.Query(
		`SELECT `+postCols+postFrom+`WHERE p.author_id = ? ORDER BY p.created_at DESC, p.id DESC`,
		authorID,
	)
	if err != nil {
		return nil, fmt.Errorf("list posts by author: %w", err)
	}
	defer rows.Close()

	var posts []model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

// ListAll returns every post including hidden and drafts, for moderation.
func (s *PostStore) ListAll(limit, offset int) ([]model.Post, error) {
	rows, err := s.db.Query(
		`SELECT `+postCols+postFrom+`ORDER BY p.created_at DESC, p.id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list all posts: %w", err)
	}
	defer rows.Close()

	var posts []model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

func (s *PostStore) Update(id int64, title, body, excerpt string, published bool) (*model.Post, error) {
	var pub int
	if published {
		pub = 1
	}

	_, err := s.db.Exec(
		`UPDATE posts SET title = ?, body = ?, excerpt = ?, published = ?, updated_at = datetime('now') WHERE id = ?`,
		title, body, excerpt, pub, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update post: %w", err)
	}
	return s.GetByID(id)
}

// SetHidden hides or unhides a post (moderation).
func (s *PostStore) SetHidden(id int64, hidden bool) error {
	var err error
	if hidden {
		_, err = s.db.Exec(`UPDATE posts SET hidden_at = datetime('now'), updated_at = datetime('now') WHERE id = ?`, id)
	} else {
		_, err = s.db.Exec(`UPDATE posts SET hidden_at = NULL, updated_at = datetime('now') WHERE id = ?`, id)
	}
	if err != nil {
		return fmt.Errorf("set post hidden: %w", err)
	}
	return nil
}

func (s *PostStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}
