package store

import (
	"testing"

	"github.com/parlorhq/parlor/internal/database"
)

func setupVerificationTestDB(t *testing.T) *VerificationStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewVerificationStore(db)
}

func TestVerificationCreate(t *testing.T) {
	vs := setupVerificationTestDB(t)

	vc, err := vs.Create("alice@example.com", "register")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(vc.Code) != 6 {
		t.Errorf("code length = %d, want 6", len(vc.Code))
	}
	if vc.Attempts != 0 {
		t.Errorf("attempts = %d, want 0", vc.Attempts)
	}
}

func TestVerificationNewCodeInvalidatesPrevious(t *testing.T) {
	vs := setupVerificationTestDB(t)

	first, _ := vs.Create("alice@example.com", "register")
	second, _ := vs.Create("alice@example.com", "register")

	got, err := vs.GetByEmailAndCode("alice@example.com", first.Code)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	// Unless the two random codes collided, the first must now be dead.
	if got != nil && first.Code != second.Code {
		t.Error("expected first code to be invalidated")
	}

	got, _ = vs.GetByEmailAndCode("alice@example.com", second.Code)
	if got == nil {
		t.Fatal("expected second code to be valid")
	}
}

func TestVerificationMarkUsed(t *testing.T) {
	vs := setupVerificationTestDB(t)

	vc, _ := vs.Create("alice@example.com", "reset")
	if err := vs.MarkUsed(vc.ID); err != nil {
		t.Fatalf("mark used: %v", err)
	}

	got, _ := vs.GetByEmailAndCode("alice@example.com", vc.Code)
	if got != nil {
		t.Error("expected used code to be invalid")
	}
}

func TestVerificationAttempts(t *testing.T) {
	vs := setupVerificationTestDB(t)

	vc, _ := vs.Create("alice@example.com", "register")

	for want := 1; want <= 3; want++ {
		got, err := vs.IncrementAttempts(vc.ID)
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if got != want {
			t.Errorf("attempts = %d, want %d", got, want)
		}
	}

	latest, _ := vs.GetLatestByEmail("alice@example.com")
	if latest == nil || latest.Attempts != 3 {
		t.Errorf("latest = %+v, want 3 attempts", latest)
	}
}
