package store

import (
	"database/sql"
	"fmt"

	"github.com/parlorhq/parlor/internal/model"
)

type PuzzleStore struct {
	db *sql.DB
}

func NewPuzzleStore(db *sql.DB) *PuzzleStore {
	return &PuzzleStore{db: db}
}

// --- Level methods ---

func scanLevel(scanner interface{ Scan(...any) error }) (*model.PuzzleLevel, error) {
	var l model.PuzzleLevel
	var active int

	err := scanner.Scan(&l.ID, &l.Name, &l.Difficulty, &active, &l.CreatedAt)
	if err != nil {
		return nil, err
	}

	l.Active = active != 0
	return &l, nil
}

const levelCols = `id, name, difficulty, active, created_at`

func (s *PuzzleStore) GetLevel(id int64) (*model.PuzzleLevel, error) {
	row := s.db.QueryRow(`SELECT `+levelCols+` FROM puzzle_levels WHERE id = ?`, id)
	l, err := scanLevel(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get level: %w", err)
	}
	return l, nil
}

func (s *PuzzleStore) ListLevels() ([]model.PuzzleLevel, error) {
	rows, err := s.db.Query(`SELECT ` + levelCols + ` FROM puzzle_levels WHERE active = 1 ORDER BY difficulty ASC`)
	if err != nil {
		return nil, fmt.Errorf("list levels: %w", err)
	}
	defer rows.Close()

	var levels []model.PuzzleLevel
	for rows.Next() {
		l, err := scanLevel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan level: %w", err)
		}
		levels = append(levels, *l)
	}
	return levels, rows.Err()
}

// --- Session methods ---

func scanPuzzleSession(scanner interface{ Scan(...any) error }) (*model.PuzzleSession, error) {
	var ps model.PuzzleSession
	err := scanner.Scan(
		&ps.ID, &ps.UserID, &ps.PlayDate, &ps.LevelID, &ps.GridState,
		&ps.PowersState, &ps.ElapsedSeconds, &ps.Status, &ps.CreatedAt, &ps.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ps, nil
}

const puzzleSessionCols = `id, user_id, play_date, level_id, grid_state, powers_state, elapsed_seconds, status, created_at, updated_at`

// GetSession returns the session for (user, date), or nil if none exists.
func (s *PuzzleStore) GetSession(userID int64, playDate string) (*model.PuzzleSession, error) {
	row := s.db.QueryRow(
		`SELECT `+puzzleSessionCols+` FROM puzzle_sessions WHERE user_id = ? AND play_date = ?`,
		userID, playDate,
	)
	ps, err := scanPuzzleSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get puzzle session: %w", err)
	}
	return ps, nil
}

// CreateSession inserts a new playing session with zero elapsed time. The
// (user_id, play_date) unique index rejects duplicates; on a concurrent
// insert race the loser re-reads and returns the winner's row.
func (s *PuzzleStore) CreateSession(userID int64, playDate string, levelID int64, gridState, powersState string) (*model.PuzzleSession, error) {
	result, err := s.db.Exec(
		`INSERT INTO puzzle_sessions (user_id, play_date, level_id, grid_state, powers_state) VALUES (?, ?, ?, ?, ?)`,
		userID, playDate, levelID, gridState, powersState,
	)
	if err != nil {
		existing, getErr := s.GetSession(userID, playDate)
		if getErr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("insert puzzle session: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRow(`SELECT `+puzzleSessionCols+` FROM puzzle_sessions WHERE id = ?`, id)
	return scanPuzzleSession(row)
}

// SaveProgress overwrites grid, power, and elapsed state for the playing
// session on (user, date). The WHERE clause pins status = playing so a stale
// client can never touch a completed session; zero rows affected is reported
// as updated=false, not an error.
func (s *PuzzleStore) SaveProgress(userID int64, playDate, gridState, powersState string, elapsedSeconds int) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE puzzle_sessions
		 SET grid_state = ?, powers_state = ?, elapsed_seconds = ?, updated_at = datetime('now')
		 WHERE user_id = ? AND play_date = ? AND status = ?`,
		gridState, powersState, elapsedSeconds, userID, playDate, model.PuzzleStatusPlaying,
	)
	if err != nil {
		return false, fmt.Errorf("save puzzle progress: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// --- Score methods ---

func scanScore(scanner interface{ Scan(...any) error }) (*model.PuzzleScore, error) {
	var sc model.PuzzleScore
	err := scanner.Scan(
		&sc.ID, &sc.UserID, &sc.PlayDate, &sc.LevelID,
		&sc.CompletionSeconds, &sc.CreatedAt, &sc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

const scoreCols = `id, user_id, play_date, level_id, completion_seconds, created_at, updated_at`

// GetScore returns the score for (user, date), or nil if none exists.
func (s *PuzzleStore) GetScore(userID int64, playDate string) (*model.PuzzleScore, error) {
	row := s.db.QueryRow(
		`SELECT `+scoreCols+` FROM puzzle_scores WHERE user_id = ? AND play_date = ?`,
		userID, playDate,
	)
	sc, err := scanScore(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get puzzle score: %w", err)
	}
	return sc, nil
}

// Complete records a finished game: it upserts the score row keyed by
// (user, play_date) and marks the matching playing session completed with
// the submitted time, inside one transaction so the two tables cannot drift.
func (s *PuzzleStore) Complete(userID int64, playDate string, levelID int64, completionSeconds int) (*model.PuzzleScore, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin complete tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO puzzle_scores (user_id, play_date, level_id, completion_seconds)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, play_date) DO UPDATE SET
		   level_id = excluded.level_id,
		   completion_seconds = excluded.completion_seconds,
		   updated_at = datetime('now')`,
		userID, playDate, levelID, completionSeconds,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert puzzle score: %w", err)
	}

	_, err = tx.Exec(
		`UPDATE puzzle_sessions
		 SET status = ?, elapsed_seconds = ?, updated_at = datetime('now')
		 WHERE user_id = ? AND play_date = ? AND status = ?`,
		model.PuzzleStatusCompleted, completionSeconds, userID, playDate, model.PuzzleStatusPlaying,
	)
	if err != nil {
		return nil, fmt.Errorf("complete puzzle session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit complete tx: %w", err)
	}

	return s.GetScore(userID, playDate)
}

// --- Leaderboard methods ---

func (s *PuzzleStore) scanLeaderboard(rows *sql.Rows) ([]model.LeaderboardEntry, error) {
	defer rows.Close()

	var entries []model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Username, &e.BestSeconds, &e.DaysPlayed, &e.AvgSeconds); err != nil {
			return nil, fmt.Errorf("scan leaderboard entry: %w", err)
		}
		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MonthlyLeaderboard ranks users by best completion time within the given
// calendar month.
func (s *PuzzleStore) MonthlyLeaderboard(year, month int) ([]model.LeaderboardEntry, error) {
	start := fmt.Sprintf("%04d-%02d-01", year, month)
	endYear, endMonth := year, month+1
	if endMonth > 12 {
		endYear, endMonth = year+1, 1
	}
	end := fmt.Sprintf("%04d-%02d-01", endYear, endMonth)

	rows, err := s.db.Query(
		`SELECT sc.user_id, u.username, MIN(sc.completion_seconds), COUNT(*), CAST(AVG(sc.completion_seconds) AS INTEGER)
		 FROM puzzle_scores sc
		 JOIN users u ON u.id = sc.user_id
		 WHERE sc.play_date >= ? AND sc.play_date < ?
		 GROUP BY sc.user_id, u.username
		 ORDER BY MIN(sc.completion_seconds) ASC, COUNT(*) DESC, u.username ASC
		 LIMIT 100`,
		start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("monthly leaderboard: %w", err)
	}
	return s.scanLeaderboard(rows)
}

// AllTimeLeaderboard ranks users by total completed days, then average time.
func (s *PuzzleStore) AllTimeLeaderboard() ([]model.LeaderboardEntry, error) {
	rows, err := s.db.Query(
		`SELECT sc.user_id, u.username, MIN(sc.completion_seconds), COUNT(*), CAST(AVG(sc.completion_seconds) AS INTEGER)
		 FROM puzzle_scores sc
		 JOIN users u ON u.id = sc.user_id
		 GROUP BY sc.user_id, u.username
		 ORDER BY COUNT(*) DESC, AVG(sc.completion_seconds) ASC, u.username ASC
		 LIMIT 100`,
	)
	if err != nil {
		return nil, fmt.Errorf("all-time leaderboard: %w", err)
	}
	return s.scanLeaderboard(rows)
}

// LatestPlayDate returns the most recent play_date carrying any score, or ""
// when no scores exist. Used for the empty-month leaderboard fallback.
func (s *PuzzleStore) LatestPlayDate() (string, error) {
	var date sql.NullString
	err := s.db.QueryRow(`SELECT MAX(play_date) FROM puzzle_scores`).Scan(&date)
	if err != nil {
		return "", fmt.Errorf("latest play date: %w", err)
	}
	if !date.Valid {
		return "", nil
	}
	return date.String, nil
}
