package store

import (
	"testing"

	"github.com/parlorhq/parlor/internal/database"
	"github.com/parlorhq/parlor/internal/model"
)

func setupPuzzleTestDB(t *testing.T) (*PuzzleStore, *UserStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPuzzleStore(db), NewUserStore(db)
}

func puzzleTestUser(t *testing.T, us *UserStore, email, username string) *model.User {
	t.Helper()
	u, err := us.Create(email, username, "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestCreateSession(t *testing.T) {
	ps, us := setupPuzzleTestDB(t)
	u := puzzleTestUser(t, us, "alice@example.com", "alice")

	sess, err := ps.CreateSession(u.ID, "2024-06-01", 3, `{"cells":[]}`, `{"hints":2}`)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if sess.Status != model.PuzzleStatusPlaying {
		t.Errorf("status = %q, want playing", sess.Status)
	}
	if sess.ElapsedSeconds != 0 {
		t.Errorf("elapsed = %d, want 0", sess.ElapsedSeconds)
	}
	if sess.LevelID != 3 {
		t.Errorf("level = %d, want 3", sess.LevelID)
	}
}

func TestCreateSessionDuplicateReturnsExisting(t *testing.T) {
	ps, us := setupPuzzleTestDB(t)
	u := puzzleTestUser(t, us, "alice@example.com", "alice")

	first, err := ps.CreateSession(u.ID, "2024-06-01", 1, `{"a":1}`, `{}`)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	// Second create for the same (user, date) must not insert a new row.
	second, err := ps.CreateSession(u.ID, "2024-06-01", 2, `{"b":2}`, `{}`)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second id = %d, want %d", second.ID, first.ID)
	}
	if second.LevelID != 1 {
		t.Errorf("level = %d, want original 1", second.LevelID)
	}
	if second.GridState != `{"a":1}` {
		t.Errorf("grid = %q, want original", second.GridState)
	}
}

func TestSaveProgress(t *testing.T) {
	ps, us := setupPuzzleTestDB(t)
	u := puzzleTestUser(t, us, "alice@example.com", "alice")

	ps.CreateSession(u.ID, "2024-06-01", 1, `{}`, `{}`)

	updated, err := ps.SaveProgress(u.ID, "2024-06-01", `{"filled":5}`, `{"hints":1}`, 42)
	if err != nil {
		t.Fatalf("save progress: %v", err)
	}
	if !updated {
		t.Fatal("expected progress to apply")
	}

	sess, _ := ps.GetSession(u.ID, "2024-06-01")
	if sess.ElapsedSeconds != 42 {
		t.Errorf("elapsed = %d, want 42", sess.ElapsedSeconds)
	}
	if sess.Status != model.PuzzleStatusPlaying {
		t.Errorf("status = %q, want playing", sess.Status)
	}
	if sess.GridState != `{"filled":5}` {
		t.Errorf("grid = %q", sess.GridState)
	}
}

func TestSaveProgressIgnoresCompletedSession(t *testing.T) {
	ps, us := setupPuzzleTestDB(t)
	u := puzzleTestUser(t, us, "alice@example.com", "alice")

	ps.CreateSession(u.ID, "2024-06-01", 1, `{"done":true}`, `{}`)
	if _, err := ps.Complete(u.ID, "2024-06-01", 1, 87); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// A stale client write must not touch the finished session.
	updated, err := ps.SaveProgress(u.ID, "2024-06-01", `{"stale":1}`, `{}`, 999)
	if err != nil {
		t.Fatalf("save progress: %v", err)
	}
	if updated {
		t.Error("progress applied to a completed session")
	}

	sess, _ := ps.GetSession(u.ID, "2024-06-01")
	if sess.ElapsedSeconds != 87 {
		t.Errorf("elapsed = %d, want 87", sess.ElapsedSeconds)
	}
	if sess.GridState != `{"done":true}` {
		t.Errorf("grid = %q, want untouched", sess.GridState)
	}
}

func TestSaveProgressMissingSession(t *testing.T) {
	ps, us := setupPuzzleTestDB(t)
	u := puzzleTestUser(t, us, "alice@example.com", "alice")

	// No session row: the conditional update is not an upsert.
	updated, err := ps.SaveProgress(u.ID, "2024-06-01", `{}`, `{}`, 10)
	if err != nil {
		t.Fatalf("save progress: %v", err)
	}
	if updated {
		t.Error("expected no rows affected")
	}
	if sess, _ := ps.GetSession(u.ID, "2024-06-01"); sess != nil {
		t.Error("progress write created a session")
	}
}

func TestCompleteFinalizesSessionAndScore(t *testing.T) {
	ps, us := setupPuzzleTestDB(t)
	u := puzzleTestUser(t, us, "alice@example.com", "alice")

	ps.CreateSession(u.ID, "2024-06-01", 3, `{}`, `{}`)
	ps.SaveProgress(u.ID, "2024-06-01", `{}`, `{}`, 42)

	score, err := ps.Complete(u.ID, "2024-06-01", 3, 87)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if score.CompletionSeconds != 87 || score.LevelID != 3 || score.PlayDate != "2024-06-01" {
		t.Errorf("score = %+v", score)
	}

	sess, _ := ps.GetSession(u.ID, "2024-06-01")
	if sess.Status != model.PuzzleStatusCompleted {
		t.Errorf("status = %q, want completed", sess.Status)
	}
	if sess.ElapsedSeconds != 87 {
		t.Errorf("elapsed = %d, want 87", sess.ElapsedSeconds)
	}
}

func TestCompleteUpsertsScore(t *testing.T) {
	ps, us := setupPuzzleTestDB(t)
	u := puzzleTestUser(t, us, "alice@example.com", "alice")

	ps.CreateSession(u.ID, "2024-06-01", 1, `{}`, `{}`)
	if _, err := ps.Complete(u.ID, "2024-06-01", 1, 120); err != nil {
		t.Fatalf("first complete: %v", err)
	}
	score, err := ps.Complete(u.ID, "2024-06-01", 1, 95)
	if err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if score.CompletionSeconds != 95 {
		t.Errorf("completion = %d, want second value 95", score.CompletionSeconds)
	}

	// Exactly one row must exist for (user, date).
	entries, err := ps.MonthlyLeaderboard(2024, 6)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(entries) != 1 || entries[0].DaysPlayed != 1 {
		t.Errorf("entries = %+v, want single row with one day", entries)
	}
}

func TestCompleteWithZeroSeconds(t *testing.T) {
	ps, us := setupPuzzleTestDB(t)
	u := puzzleTestUser(t, us, "alice@example.com", "alice")

	ps.CreateSession(u.ID, "2024-06-01", 1, `{}`, `{}`)
	score, err := ps.Complete(u.ID, "2024-06-01", 1, 0)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if score.CompletionSeconds != 0 {
		t.Errorf("completion = %d, want 0", score.CompletionSeconds)
	}
}

func TestMonthlyLeaderboardRanksByBestTime(t *testing.T) {
	ps, us := setupPuzzleTestDB(t)
	alice := puzzleTestUser(t, us, "alice@example.com", "alice")
	bob := puzzleTestUser(t, us, "bob@example.com", "bob")

	ps.CreateSession(alice.ID, "2024-06-01", 1, `{}`, `{}`)
	ps.Complete(alice.ID, "2024-06-01", 1, 120)
	ps.CreateSession(bob.ID, "2024-06-01", 1, `{}`, `{}`)
	ps.Complete(bob.ID, "2024-06-01", 1, 60)

	entries, err := ps.MonthlyLeaderboard(2024, 6)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	if entries[0].Username != "bob" || entries[0].Rank != 1 || entries[0].BestSeconds != 60 {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[1].Username != "alice" || entries[1].Rank != 2 {
		t.Errorf("second entry = %+v", entries[1])
	}
}

func TestMonthlyLeaderboardEmptyMonth(t *testing.T) {
	ps, us := setupPuzzleTestDB(t)
	u := puzzleTestUser(t, us, "alice@example.com", "alice")

	ps.CreateSession(u.ID, "2024-06-15", 1, `{}`, `{}`)
	ps.Complete(u.ID, "2024-06-15", 1, 77)

	entries, err := ps.MonthlyLeaderboard(2024, 7)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("len = %d, want 0 for empty month", len(entries))
	}

	latest, err := ps.LatestPlayDate()
	if err != nil {
		t.Fatalf("latest play date: %v", err)
	}
	if latest != "2024-06-15" {
		t.Errorf("latest = %q, want 2024-06-15", latest)
	}
}

func TestLatestPlayDateNoScores(t *testing.T) {
	ps, _ := setupPuzzleTestDB(t)

	latest, err := ps.LatestPlayDate()
	if err != nil {
		t.Fatalf("latest play date: %v", err)
	}
	if latest != "" {
		t.Errorf("latest = %q, want empty", latest)
	}
}

func TestAllTimeLeaderboard(t *testing.T) {
	ps, us := setupPuzzleTestDB(t)
	alice := puzzleTestUser(t, us, "alice@example.com", "alice")
	bob := puzzleTestUser(t, us, "bob@example.com", "bob")

	// Alice played two days, bob one faster day. All-time ranks days first.
	ps.CreateSession(alice.ID, "2024-06-01", 1, `{}`, `{}`)
	ps.Complete(alice.ID, "2024-06-01", 1, 100)
	ps.CreateSession(alice.ID, "2024-06-02", 1, `{}`, `{}`)
	ps.Complete(alice.ID, "2024-06-02", 1, 110)
	ps.CreateSession(bob.ID, "2024-06-01", 1, `{}`, `{}`)
	ps.Complete(bob.ID, "2024-06-01", 1, 50)

	entries, err := ps.AllTimeLeaderboard()
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	if entries[0].Username != "alice" || entries[0].DaysPlayed != 2 {
		t.Errorf("first = %+v, want alice with 2 days", entries[0])
	}
}

func TestLevels(t *testing.T) {
	ps, _ := setupPuzzleTestDB(t)

	levels, err := ps.ListLevels()
	if err != nil {
		t.Fatalf("list levels: %v", err)
	}
	if len(levels) != 3 {
		t.Fatalf("len = %d, want 3 seeded levels", len(levels))
	}

	l, err := ps.GetLevel(levels[0].ID)
	if err != nil {
		t.Fatalf("get level: %v", err)
	}
	if l == nil || !l.Active {
		t.Errorf("level = %+v, want active", l)
	}

	missing, err := ps.GetLevel(9999)
	if err != nil {
		t.Fatalf("get missing level: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown level")
	}
}
