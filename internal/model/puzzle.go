package model

import "time"

// Puzzle session status values. A session is created as playing and
// transitions exactly once to completed; it is never deleted.
const (
	PuzzleStatusPlaying   = "playing"
	PuzzleStatusCompleted = "completed"
)

type PuzzleLevel struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Difficulty int       `json:"difficulty"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// PuzzleSession is one user's attempt at one day's puzzle. At most one row
// exists per (user_id, play_date).
type PuzzleSession struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	PlayDate       string    `json:"play_date"` // YYYY-MM-DD
	LevelID        int64     `json:"level_id"`
	GridState      string    `json:"grid_state"`   // opaque JSON blob
	PowersState    string    `json:"powers_state"` // opaque JSON blob
	ElapsedSeconds int       `json:"elapsed_seconds"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PuzzleScore is the denormalized completion record used for leaderboards,
// upserted once per (user_id, play_date) when a session completes. Kept as
// its own table so historical scores survive independently of session rows.
type PuzzleScore struct {
	ID                int64     `json:"id"`
	UserID            int64     `json:"user_id"`
	Username          string    `json:"username,omitempty"`
	PlayDate          string    `json:"play_date"`
	LevelID           int64     `json:"level_id"`
	CompletionSeconds int       `json:"completion_seconds"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// LeaderboardEntry is one ranked row of a monthly or all-time board.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	BestSeconds int    `json:"best_seconds"`
	DaysPlayed  int    `json:"days_played"`
	AvgSeconds  int    `json:"avg_seconds,omitempty"`
}
