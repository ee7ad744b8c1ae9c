package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/parlorhq/parlor/internal/apperr"
	"github.com/parlorhq/parlor/internal/auth"
	"github.com/parlorhq/parlor/internal/model"
	"github.com/parlorhq/parlor/internal/store"
)

type PuzzleHandler struct {
	puzzleStore *store.PuzzleStore
	logger      *slog.Logger
}

func NewPuzzleHandler(ps *store.PuzzleStore, logger *slog.Logger) *PuzzleHandler {
	return &PuzzleHandler{puzzleStore: ps, logger: logger}
}

// today returns the server's current date in UTC, the only date scores and
// sessions may be written against.
func today() string {
	return time.Now().UTC().Format("2006-01-02")
}

func validPlayDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// CheckPlayed handles GET /api/puzzle/check-played. Anonymous callers always
// get "new": the puzzle is playable without an account, just not saved.
func (h *PuzzleHandler) CheckPlayed(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"status": "new"})
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		date = today()
	}
	if !validPlayDate(date) {
		writeError(w, h.logger, r, apperr.Validation("date must be YYYY-MM-DD"))
		return
	}

	// The score row is authoritative: a completed score counts as played
	// even if the session row is missing or stuck in playing.
	score, err := h.puzzleStore.GetScore(ac.UserID, date)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if score != nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "completed", "score": score})
		return
	}

	session, err := h.puzzleStore.GetSession(ac.UserID, date)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	switch {
	case session == nil:
		writeJSON(w, http.StatusOK, map[string]any{"status": "new"})
	case session.Status == model.PuzzleStatusCompleted:
		writeJSON(w, http.StatusOK, map[string]any{"status": "completed", "session": session})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"status": "playing", "session": session})
	}
}

type startGameRequest struct {
	LevelID     int64           `json:"level_id"`
	GridState   json.RawMessage `json:"grid_state"`
	PowersState json.RawMessage `json:"powers_state"`
}

// Start handles POST /api/puzzle/start.
func (h *PuzzleHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req startGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, r, apperr.Validation("invalid JSON body"))
		return
	}
	if req.LevelID <= 0 {
		writeError(w, h.logger, r, apperr.Validation("level_id must be a positive integer"))
		return
	}

	level, err := h.puzzleStore.GetLevel(req.LevelID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if level == nil || !level.Active {
		writeError(w, h.logger, r, apperr.Validation("unknown level %d", req.LevelID))
		return
	}

	date := today()

	score, err := h.puzzleStore.GetScore(userID, date)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if score != nil {
		writeError(w, h.logger, r, apperr.ErrAlreadyPlayed)
		return
	}

	existing, err := h.puzzleStore.GetSession(userID, date)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if existing != nil {
		if existing.Status == model.PuzzleStatusCompleted {
			writeError(w, h.logger, r, apperr.ErrAlreadyPlayed)
			return
		}
		// Repeated start for the same day returns the session unchanged.
		writeJSON(w, http.StatusOK, map[string]any{"session": existing})
		return
	}

	session, err := h.puzzleStore.CreateSession(userID, date, req.LevelID, string(req.GridState), string(req.PowersState))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	// A concurrent start may have won the insert race and completed already.
	if session.Status == model.PuzzleStatusCompleted {
		writeError(w, h.logger, r, apperr.ErrAlreadyPlayed)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"session": session})
}

type saveProgressRequest struct {
	GridState      json.RawMessage `json:"grid_state"`
	PowersState    json.RawMessage `json:"powers_state"`
	ElapsedSeconds int             `json:"elapsed_seconds"`
}

// Progress handles POST /api/puzzle/progress. A write that matches no
// playing session is still a success: the stale client simply has nothing
// left to save into.
func (h *PuzzleHandler) Progress(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req saveProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, r, apperr.Validation("invalid JSON body"))
		return
	}
	if req.ElapsedSeconds < 0 {
		writeError(w, h.logger, r, apperr.Validation("elapsed_seconds must be non-negative"))
		return
	}

	_, err := h.puzzleStore.SaveProgress(userID, today(), string(req.GridState), string(req.PowersState), req.ElapsedSeconds)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type saveScoreRequest struct {
	LevelID           json.Number `json:"level_id"`
	CompletionSeconds json.Number `json:"completion_seconds"`
	PlayDate          string      `json:"play_date"`
}

// Score handles POST /api/puzzle/score. Validation order is fixed: date
// first, then time, then level.
func (h *PuzzleHandler) Score(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	// json.Number fields keep 3.5 and -1 distinguishable from real ints.
	var req saveScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, r, apperr.Validation("invalid JSON body"))
		return
	}

	if req.PlayDate != today() {
		writeError(w, h.logger, r, apperr.Validation("play_date must be today's date"))
		return
	}

	seconds, err := strconv.Atoi(req.CompletionSeconds.String())
	if err != nil || seconds < 0 {
		writeError(w, h.logger, r, apperr.Validation("completion_seconds must be a non-negative integer"))
		return
	}

	levelID, err := strconv.ParseInt(req.LevelID.String(), 10, 64)
	if err != nil || levelID <= 0 {
		writeError(w, h.logger, r, apperr.Validation("level_id must be a positive integer"))
		return
	}
	level, err := h.puzzleStore.GetLevel(levelID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if level == nil || !level.Active {
		writeError(w, h.logger, r, apperr.Validation("unknown level %d", levelID))
		return
	}

	score, err := h.puzzleStore.Complete(userID, req.PlayDate, levelID, seconds)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeData(w, http.StatusOK, score)
}

// Leaderboard handles GET /api/puzzle/leaderboard.
func (h *PuzzleHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	boardType := r.URL.Query().Get("type")
	if boardType == "" {
		boardType = "monthly"
	}

	switch boardType {
	case "all-time":
		entries, err := h.puzzleStore.AllTimeLeaderboard()
		if err != nil {
			writeError(w, h.logger, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": entries})

	case "monthly":
		now := time.Now().UTC()
		year, month := now.Year(), int(now.Month())
		if y := r.URL.Query().Get("year"); y != "" {
			parsed, err := strconv.Atoi(y)
			if err != nil {
				writeError(w, h.logger, r, apperr.Validation("year must be an integer"))
				return
			}
			year = parsed
		}
		if m := r.URL.Query().Get("month"); m != "" {
			parsed, err := strconv.Atoi(m)
			if err != nil || parsed < 1 || parsed > 12 {
				writeError(w, h.logger, r, apperr.Validation("month must be 1-12"))
				return
			}
			month = parsed
		}

		entries, err := h.puzzleStore.MonthlyLeaderboard(year, month)
		if err != nil {
			writeError(w, h.logger, r, err)
			return
		}

		// Empty month falls back to the most recent month with any score,
		// reporting the month actually served.
		if len(entries) == 0 {
			latest, err := h.puzzleStore.LatestPlayDate()
			if err != nil {
				writeError(w, h.logger, r, err)
				return
			}
			if latest != "" {
				t, err := time.Parse("2006-01-02", latest)
				if err == nil && (t.Year() != year || int(t.Month()) != month) {
					year, month = t.Year(), int(t.Month())
					entries, err = h.puzzleStore.MonthlyLeaderboard(year, month)
					if err != nil {
						writeError(w, h.logger, r, err)
						return
					}
				}
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": entries, "year": year, "month": month})

	default:
		writeError(w, h.logger, r, apperr.Validation("type must be monthly or all-time"))
	}
}

// Levels handles GET /api/puzzle/levels.
func (h *PuzzleHandler) Levels(w http.ResponseWriter, r *http.Request) {
	levels, err := h.puzzleStore.ListLevels()
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": levels})
}
