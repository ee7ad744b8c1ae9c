package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/parlorhq/parlor/internal/model"
)

type BannerStore struct {
	db *sql.DB
}

func NewBannerStore(db *sql.DB) *BannerStore {
	return &BannerStore{db: db}
}

func scanBanner(scanner interface{ Scan(...any) error }) (*model.SponsorBanner, error) {
	var b model.SponsorBanner
	var startsAt, endsAt sql.NullTime
	var active int

	err := scanner.Scan(
		&b.ID, &b.Title, &b.ImageURL, &b.TargetURL, &b.Placement,
		&startsAt, &endsAt, &active, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if startsAt.Valid {
		b.StartsAt = &startsAt.Time
	}
	if endsAt.Valid {
		b.EndsAt = &endsAt.Time
	}
	b.Active = active != 0
	return &b, nil
}

const bannerCols = `id, title, image_url, target_url, placement, starts_at, ends_at, active, created_at, updated_at`

func (s *BannerStore) Create(title, imageURL, targetURL, placement string, startsAt, endsAt *time.Time, active bool) (*model.SponsorBanner, error) {
	var a int
	if active {
		a = 1
	}

	result, err := s.db.Exec(
		`INSERT INTO sponsor_banners (title, image_url, target_url, placement, starts_at, ends_at, active) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		title, imageURL, targetURL, placement, nullTime(startsAt), nullTime(endsAt), a,
	)
	if err != nil {
		return nil, fmt.Errorf("insert banner: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (s *BannerStore) GetByID(id int64) (*model.SponsorBanner, error) {
	row := s.db.QueryRow(`SELECT `+bannerCols+` FROM sponsor_banners WHERE id = ?`, id)
	b, err := scanBanner(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get banner: %w", err)
	}
	return b, nil
}

// List returns all banners for the admin panel, newest first.
func (s *BannerStore) List() ([]model.SponsorBanner, error) {
	rows, err := s.db.Query(`SELECT ` + bannerCols + ` FROM sponsor_banners ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list banners: %w", err)
	}
	defer rows.Close()

	var banners []model.SponsorBanner
	for rows.Next() {
		b, err := scanBanner(rows)
		if err != nil {
			return nil, fmt.Errorf("scan banner: %w", err)
		}
		banners = append(banners, *b)
	}
	return banners, rows.Err()
}

// ListActive returns banners currently live on a placement: active flag set
// and now inside the [starts_at, ends_at] window where bounds are set.
func (s *BannerStore) ListActive(placement string, now time.Time) ([]model.SponsorBanner, error) {
	rows, err := s.db.Query(
		`SELECT `+bannerCols+` FROM sponsor_banners
		 WHERE placement = ? AND active = 1
		   AND (starts_at IS NULL OR starts_at <= ?)
		   AND (ends_at IS NULL OR ends_at >= ?)
		 ORDER BY created_at DESC, id DESC`,
		placement, now.UTC(), now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list active banners: %w", err)
	}
	defer rows.Close()

	var banners []model.SponsorBanner
	for rows.Next() {
		b, err := scanBanner(rows)
		if err != nil {
			return nil, fmt.Errorf("scan banner: %w", err)
		}
		banners = append(banners, *b)
	}
	return banners, rows.Err()
}

func (s *BannerStore) Update(id int64, title, imageURL, targetURL, placement string, startsAt, endsAt *time.Time, active bool) (*model.SponsorBanner, error) {
	var a int
	if active {
		a = 1
	}

	_, err := s.db.Exec(
		`UPDATE sponsor_banners SET title = ?, image_url = ?, target_url = ?, placement = ?, starts_at = ?, ends_at = ?, active = ?, updated_at = datetime('now') WHERE id = ?`,
		title, imageURL, targetURL, placement, nullTime(startsAt), nullTime(endsAt), a, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update banner: %w", err)
	}
	return s.GetByID(id)
}

func (s *BannerStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM sponsor_banners WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete banner: %w", err)
	}
	return nil
}
