package handler

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/parlorhq/parlor/internal/apperr"
	"github.com/parlorhq/parlor/internal/auth"
	"github.com/parlorhq/parlor/internal/email"
	"github.com/parlorhq/parlor/internal/kvstore"
	"github.com/parlorhq/parlor/internal/middleware"
	"github.com/parlorhq/parlor/internal/store"
)

const (
	maxCodeAttempts    = 5
	rememberCookieName = "parlor_remember"
	rememberTTL        = 90 * 24 * time.Hour
)

type AuthHandler struct {
	userStore         *store.UserStore
	sessionStore      *store.SessionStore
	verificationStore *store.VerificationStore
	emailClient       *email.Client
	kv                kvstore.Store
	logger            *slog.Logger
}

func NewAuthHandler(
	us *store.UserStore,
	ss *store.SessionStore,
	vs *store.VerificationStore,
	ec *email.Client,
	kv kvstore.Store,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		userStore:         us,
		sessionStore:      ss,
		verificationStore: vs,
		emailClient:       ec,
		kv:                kv,
		logger:            logger,
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register handles POST /api/auth/register. The account starts unverified;
// a 6-digit code goes out by email and login is blocked until it is used.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, r, apperr.Validation("invalid JSON body"))
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Username = strings.TrimSpace(req.Username)

	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, h.logger, r, apperr.Validation("invalid email address"))
		return
	}
	if len(req.Username) < 3 || len(req.Username) > 32 {
		writeError(w, h.logger, r, apperr.Validation("username must be 3-32 characters"))
		return
	}
	if len(req.Password) < 8 {
		writeError(w, h.logger, r, apperr.Validation("password must be at least 8 characters"))
		return
	}

	// The same "check your email" response goes out whether or not the
	// address is taken, to prevent enumeration.
	respond := func() {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "check your email for a verification code"})
	}

	if existing, err := h.userStore.GetByEmail(req.Email); err != nil {
		writeError(w, h.logger, r, err)
		return
	} else if existing != nil {
		respond()
		return
	}

	if existing, err := h.userStore.GetByUsername(req.Username); err != nil {
		writeError(w, h.logger, r, err)
		return
	} else if existing != nil {
		writeError(w, h.logger, r, apperr.Validation("username is taken"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	if _, err := h.userStore.Create(req.Email, req.Username, string(hash)); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	vc, err := h.verificationStore.Create(req.Email, "register")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if err := h.emailClient.SendVerificationCode(req.Email, vc.Code, "register"); err != nil {
		h.logger.Error("send verification code", "error", err)
	}

	respond()
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// checkCode validates a pending code for an email, counting attempts and
// burning the code on success or on too many failures.
func (h *AuthHandler) checkCode(emailAddr, code string) error {
	latest, err := h.verificationStore.GetLatestByEmail(emailAddr)
	if err != nil {
		return err
	}
	if latest == nil {
		return apperr.Validation("code has expired or was already used")
	}

	if latest.Attempts >= maxCodeAttempts {
		h.verificationStore.MarkUsed(latest.ID)
		return apperr.Validation("too many incorrect attempts, request a new code")
	}

	if latest.Code != code {
		attempts, err := h.verificationStore.IncrementAttempts(latest.ID)
		if err != nil {
			h.logger.Error("increment code attempts", "error", err)
		}
		if attempts >= maxCodeAttempts {
			h.verificationStore.MarkUsed(latest.ID)
			return apperr.Validation("too many incorrect attempts, request a new code")
		}
		return apperr.Validation("incorrect code")
	}

	return h.verificationStore.MarkUsed(latest.ID)
}

// Verify handles POST /api/auth/verify. A correct code marks the account
// verified and signs the user in.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, r, apperr.Validation("invalid JSON body"))
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Code = strings.TrimSpace(req.Code)
	if req.Email == "" || req.Code == "" {
		writeError(w, h.logger, r, apperr.Validation("email and code are required"))
		return
	}

	if err := h.checkCode(req.Email, req.Code); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	user, err := h.userStore.GetByEmail(req.Email)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if user == nil {
		writeError(w, h.logger, r, apperr.NotFound("user"))
		return
	}

	if err := h.userStore.MarkVerified(user.ID); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	if err := h.startSession(w, r, user.ID); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeData(w, http.StatusOK, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, r, apperr.Validation("invalid JSON body"))
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	user, err := h.userStore.GetByEmail(req.Email)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	// Same message for unknown email and wrong password.
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, h.logger, r, apperr.Validation("invalid email or password"))
		return
	}
	if user.Suspended() {
		writeError(w, h.logger, r, apperr.ErrForbidden)
		return
	}
	if !user.Verified() {
		writeError(w, h.logger, r, apperr.Validation("email not verified"))
		return
	}

	if err := h.startSession(w, r, user.ID); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	if req.Remember {
		if err := h.issueRememberToken(w, r, user.ID); err != nil {
			h.logger.Error("issue remember token", "error", err)
		}
	}

	writeData(w, http.StatusOK, user)
}

// Refresh handles POST /api/auth/refresh: exchanges a remember-me cookie
// for a fresh session. The token rotates on every use.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(rememberCookieName)
	if err != nil || cookie.Value == "" {
		writeError(w, h.logger, r, apperr.ErrAuthRequired)
		return
	}

	key := "remember:" + cookie.Value
	value, ok, err := h.kv.Get(key)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if !ok {
		writeError(w, h.logger, r, apperr.ErrAuthRequired)
		return
	}
	h.kv.Delete(key)

	userID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		writeError(w, h.logger, r, apperr.ErrAuthRequired)
		return
	}

	user, err := h.userStore.GetByID(userID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if user == nil || user.Suspended() {
		writeError(w, h.logger, r, apperr.ErrAuthRequired)
		return
	}

	if err := h.startSession(w, r, user.ID); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if err := h.issueRememberToken(w, r, user.ID); err != nil {
		h.logger.Error("rotate remember token", "error", err)
	}

	writeData(w, http.StatusOK, user)
}

type resetRequestBody struct {
	Email string `json:"email"`
}

// RequestPasswordReset handles POST /api/auth/reset-request.
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, r, apperr.Validation("invalid JSON body"))
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	// Whether or not the account exists, the response is identical.
	user, err := h.userStore.GetByEmail(req.Email)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if user != nil {
		vc, err := h.verificationStore.Create(req.Email, "reset")
		if err != nil {
			writeError(w, h.logger, r, err)
			return
		}
		if err := h.emailClient.SendVerificationCode(req.Email, vc.Code, "reset"); err != nil {
			h.logger.Error("send reset code", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "check your email for a reset code"})
}

type resetBody struct {
	Email    string `json:"email"`
	Code     string `json:"code"`
	Password string `json:"password"`
}

// ResetPassword handles POST /api/auth/reset.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, r, apperr.Validation("invalid JSON body"))
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	if len(req.Password) < 8 {
		writeError(w, h.logger, r, apperr.Validation("password must be at least 8 characters"))
		return
	}

	if err := h.checkCode(req.Email, strings.TrimSpace(req.Code)); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	user, err := h.userStore.GetByEmail(req.Email)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if user == nil {
		writeError(w, h.logger, r, apperr.NotFound("user"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if err := h.userStore.UpdatePassword(user.ID, string(hash)); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	// All existing sessions die with the old password.
	if err := h.sessionStore.DeleteByUserID(user.ID); err != nil {
		h.logger.Error("delete sessions after reset", "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "password updated"})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if ac, ok := auth.FromContext(r.Context()); ok {
		if err := h.sessionStore.Delete(ac.SessionID); err != nil {
			h.logger.Error("delete session", "error", err)
		}
	}

	if cookie, err := r.Cookie(rememberCookieName); err == nil && cookie.Value != "" {
		h.kv.Delete("remember:" + cookie.Value)
	}

	clearCookie(w, r, middleware.SessionCookieName)
	clearCookie(w, r, rememberCookieName)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	user, err := h.userStore.GetByID(userID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if user == nil {
		writeError(w, h.logger, r, apperr.ErrAuthRequired)
		return
	}
	writeData(w, http.StatusOK, user)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, userID int64) error {
	sess, err := h.sessionStore.Create(userID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   30 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
	return nil
}

func (h *AuthHandler) issueRememberToken(w http.ResponseWriter, r *http.Request, userID int64) error {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return err
	}
	token := hex.EncodeToString(raw)

	if err := h.kv.Put("remember:"+token, strconv.FormatInt(userID, 10), rememberTTL); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     rememberCookieName,
		Value:    token,
		Path:     "/api/auth",
		MaxAge:   int(rememberTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
	return nil
}

func clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	path := "/"
	if name == rememberCookieName {
		path = "/api/auth"
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
	})
}
