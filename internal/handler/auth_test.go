package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/parlorhq/parlor/internal/email"
	"github.com/parlorhq/parlor/internal/kvstore"
	"github.com/parlorhq/parlor/internal/middleware"
	"github.com/parlorhq/parlor/internal/model"
	"github.com/parlorhq/parlor/internal/store"
)

type authFixture struct {
	h  *AuthHandler
	us *store.UserStore
	ss *store.SessionStore
	vs *store.VerificationStore
	kv kvstore.Store
}

func setupAuth(t *testing.T) *authFixture {
	t.Helper()
	db := newTestDB(t)
	us := store.NewUserStore(db)
	ss := store.NewSessionStore(db)
	vs := store.NewVerificationStore(db)
	kv := kvstore.NewDBStore(db)
	// Unconfigured email client: sends fail and are logged, never fatal.
	ec := email.NewClient("", "noreply@parlor.test", "http://parlor.test")
	return &authFixture{
		h:  NewAuthHandler(us, ss, vs, ec, kv, testLogger()),
		us: us,
		ss: ss,
		vs: vs,
		kv: kv,
	}
}

// verifiedUser registers through the store with a known password and marks
// the email verified.
func (f *authFixture) verifiedUser(t *testing.T, emailAddr, username, password string) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u, err := f.us.Create(emailAddr, username, string(hash))
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := f.us.MarkVerified(u.ID); err != nil {
		t.Fatalf("mark verified: %v", err)
	}
	return u
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestRegisterVerifyLoginFlow(t *testing.T) {
	f := setupAuth(t)

	rec := httptest.NewRecorder()
	f.h.Register(rec, httptest.NewRequest("POST", "/api/auth/register",
		jsonBody(t, map[string]any{"email": "new@example.com", "username": "newbie", "password": "hunter2hunter2"})))
	if rec.Code != http.StatusOK {
		t.Fatalf("register status = %d: %s", rec.Code, rec.Body.String())
	}

	// Login before verification is rejected.
	rec = httptest.NewRecorder()
	f.h.Login(rec, httptest.NewRequest("POST", "/api/auth/login",
		jsonBody(t, map[string]any{"email": "new@example.com", "password": "hunter2hunter2"})))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unverified login status = %d, want 400", rec.Code)
	}

	vc, err := f.vs.GetLatestByEmail("new@example.com")
	if err != nil || vc == nil {
		t.Fatalf("no verification code created: %v", err)
	}

	rec = httptest.NewRecorder()
	f.h.Verify(rec, httptest.NewRequest("POST", "/api/auth/verify",
		jsonBody(t, map[string]any{"email": "new@example.com", "code": vc.Code})))
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d: %s", rec.Code, rec.Body.String())
	}
	if cookieNamed(rec, middleware.SessionCookieName) == nil {
		t.Fatal("verify did not set a session cookie")
	}

	rec = httptest.NewRecorder()
	f.h.Login(rec, httptest.NewRequest("POST", "/api/auth/login",
		jsonBody(t, map[string]any{"email": "new@example.com", "password": "hunter2hunter2"})))
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRegisterDuplicateEmailSilent(t *testing.T) {
	f := setupAuth(t)
	f.verifiedUser(t, "taken@example.com", "taken", "password123")

	rec := httptest.NewRecorder()
	f.h.Register(rec, httptest.NewRequest("POST", "/api/auth/register",
		jsonBody(t, map[string]any{"email": "taken@example.com", "username": "other", "password": "password123"})))

	// Identical response to a fresh registration, to block enumeration.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	f := setupAuth(t)
	f.verifiedUser(t, "sue@example.com", "sue", "correct-horse")

	for _, body := range []map[string]any{
		{"email": "sue@example.com", "password": "wrong"},
		{"email": "nobody@example.com", "password": "wrong"},
	} {
		rec := httptest.NewRecorder()
		f.h.Login(rec, httptest.NewRequest("POST", "/api/auth/login", jsonBody(t, body)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		msg, _ := decodeBody(t, rec)["message"].(string)
		if !strings.Contains(msg, "invalid email or password") {
			t.Errorf("message = %q, want identical for unknown email and bad password", msg)
		}
	}
}

func TestLoginSuspended(t *testing.T) {
	f := setupAuth(t)
	u := f.verifiedUser(t, "bad@example.com", "bad", "password123")
	if err := f.us.SetSuspended(u.ID, true); err != nil {
		t.Fatalf("suspend: %v", err)
	}

	rec := httptest.NewRecorder()
	f.h.Login(rec, httptest.NewRequest("POST", "/api/auth/login",
		jsonBody(t, map[string]any{"email": "bad@example.com", "password": "password123"})))
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestVerifyCodeAttemptLimit(t *testing.T) {
	f := setupAuth(t)
	f.verifiedUser(t, "amy@example.com", "amy", "password123")
	vc, err := f.vs.Create("amy@example.com", "reset")
	if err != nil {
		t.Fatalf("create code: %v", err)
	}

	wrong := "000000"
	if vc.Code == wrong {
		wrong = "000001"
	}
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		f.h.Verify(rec, httptest.NewRequest("POST", "/api/auth/verify",
			jsonBody(t, map[string]any{"email": "amy@example.com", "code": wrong})))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("attempt %d status = %d, want 400", i, rec.Code)
		}
	}

	// Correct code is burned after five failures.
	rec := httptest.NewRecorder()
	f.h.Verify(rec, httptest.NewRequest("POST", "/api/auth/verify",
		jsonBody(t, map[string]any{"email": "amy@example.com", "code": vc.Code})))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("burned code status = %d, want 400", rec.Code)
	}
}

func TestRememberRefreshRotates(t *testing.T) {
	f := setupAuth(t)
	f.verifiedUser(t, "rob@example.com", "rob", "password123")

	rec := httptest.NewRecorder()
	f.h.Login(rec, httptest.NewRequest("POST", "/api/auth/login",
		jsonBody(t, map[string]any{"email": "rob@example.com", "password": "password123", "remember": true})))
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d", rec.Code)
	}
	remember := cookieNamed(rec, rememberCookieName)
	if remember == nil || remember.Value == "" {
		t.Fatal("login with remember did not set a remember cookie")
	}

	refresh := func(token string) (*httptest.ResponseRecorder, *http.Cookie) {
		req := httptest.NewRequest("POST", "/api/auth/refresh", nil)
		req.AddCookie(&http.Cookie{Name: rememberCookieName, Value: token})
		rec := httptest.NewRecorder()
		f.h.Refresh(rec, req)
		return rec, cookieNamed(rec, rememberCookieName)
	}

	rec2, rotated := refresh(remember.Value)
	if rec2.Code != http.StatusOK {
		t.Fatalf("refresh status = %d", rec2.Code)
	}
	if rotated == nil || rotated.Value == remember.Value {
		t.Fatal("refresh did not rotate the remember token")
	}

	// The consumed token cannot be replayed.
	rec3, _ := refresh(remember.Value)
	if rec3.Code != http.StatusUnauthorized {
		t.Errorf("replayed token status = %d, want 401", rec3.Code)
	}

	rec4, _ := refresh(rotated.Value)
	if rec4.Code != http.StatusOK {
		t.Errorf("rotated token status = %d, want 200", rec4.Code)
	}
}

func TestResetPasswordFlow(t *testing.T) {
	f := setupAuth(t)
	u := f.verifiedUser(t, "meg@example.com", "meg", "old-password")

	// Live session that must die with the old password.
	if _, err := f.ss.Create(u.ID); err != nil {
		t.Fatalf("create session: %v", err)
	}

	rec := httptest.NewRecorder()
	f.h.RequestPasswordReset(rec, httptest.NewRequest("POST", "/api/auth/reset-request",
		jsonBody(t, map[string]any{"email": "meg@example.com"})))
	if rec.Code != http.StatusOK {
		t.Fatalf("reset-request status = %d", rec.Code)
	}

	vc, err := f.vs.GetLatestByEmail("meg@example.com")
	if err != nil || vc == nil {
		t.Fatalf("no reset code: %v", err)
	}

	rec = httptest.NewRecorder()
	f.h.ResetPassword(rec, httptest.NewRequest("POST", "/api/auth/reset",
		jsonBody(t, map[string]any{"email": "meg@example.com", "code": vc.Code, "password": "new-password"})))
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	f.h.Login(rec, httptest.NewRequest("POST", "/api/auth/login",
		jsonBody(t, map[string]any{"email": "meg@example.com", "password": "new-password"})))
	if rec.Code != http.StatusOK {
		t.Errorf("login with new password status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	f.h.Login(rec, httptest.NewRequest("POST", "/api/auth/login",
		jsonBody(t, map[string]any{"email": "meg@example.com", "password": "old-password"})))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("login with old password status = %d, want 400", rec.Code)
	}
}

func TestResetUnknownEmailSilent(t *testing.T) {
	f := setupAuth(t)

	rec := httptest.NewRecorder()
	f.h.RequestPasswordReset(rec, httptest.NewRequest("POST", "/api/auth/reset-request",
		jsonBody(t, map[string]any{"email": "ghost@example.com"})))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 regardless of account existence", rec.Code)
	}
}

func TestMeRequiresExistingUser(t *testing.T) {
	f := setupAuth(t)
	u := f.verifiedUser(t, "ann@example.com", "ann", "password123")

	req := httptest.NewRequest("GET", "/api/auth/me", nil)
	req = asUser(t, f.us, req, u)
	rec := httptest.NewRecorder()
	f.h.Me(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	data := body["data"].(map[string]any)
	if data["username"] != "ann" {
		t.Errorf("username = %v, want ann", data["username"])
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("response leaks password hash")
	}
}
