package handler

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/parlorhq/parlor/internal/auth"
	"github.com/parlorhq/parlor/internal/database"
	"github.com/parlorhq/parlor/internal/model"
	"github.com/parlorhq/parlor/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, us *store.UserStore, email, username string) *model.User {
	t.Helper()
	u, err := us.Create(email, username, "hash")
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

// asUser attaches an auth context for the user with its role's permissions
// resolved, the same shape the auth middleware produces.
func asUser(t *testing.T, us *store.UserStore, r *http.Request, u *model.User) *http.Request {
	t.Helper()
	fresh, err := us.GetByID(u.ID)
	if err != nil || fresh == nil {
		t.Fatalf("reload user %d: %v", u.ID, err)
	}
	perms, err := us.Permissions(fresh.Role)
	if err != nil {
		t.Fatalf("load permissions: %v", err)
	}
	ac := auth.AuthContext{UserID: fresh.ID, Role: fresh.Role, Permissions: perms}
	return r.WithContext(auth.WithAuth(r.Context(), ac))
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(data)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

const validDoc = `{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"hello world"}]}]}`
