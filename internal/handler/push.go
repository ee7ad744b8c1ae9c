package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/parlorhq/parlor/internal/apperr"
	"github.com/parlorhq/parlor/internal/auth"
	"github.com/parlorhq/parlor/internal/model"
	"github.com/parlorhq/parlor/internal/push"
	"github.com/parlorhq/parlor/internal/store"
)

var validNotifTypes = map[string]struct{}{
	model.NotifTypeCommentReply:  {},
	model.NotifTypePostPublished: {},
	model.NotifTypeModeration:    {},
}

type PushHandler struct {
	pushStore *store.PushStore
	service   *push.Service
	jwtSecret []byte
	baseURL   string
	logger    *slog.Logger
}

func NewPushHandler(ps *store.PushStore, svc *push.Service, jwtSecret []byte, baseURL string, logger *slog.Logger) *PushHandler {
	return &PushHandler{pushStore: ps, service: svc, jwtSecret: jwtSecret, baseURL: baseURL, logger: logger}
}

type subscribeRequest struct {
	Endpoint   string `json:"endpoint"`
	P256dh     string `json:"p256dh"`
	Auth       string `json:"auth"`
	DeviceName string `json:"device_name"`
}

// Subscribe handles POST /api/push/subscribe.
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, r, apperr.Validation("invalid JSON body"))
		return
	}
	if req.Endpoint == "" || req.P256dh == "" || req.Auth == "" {
		writeError(w, h.logger, r, apperr.Validation("endpoint, p256dh, and auth are required"))
		return
	}

	sub, err := h.pushStore.CreateSubscription(userID, req.Endpoint, req.P256dh, req.Auth, req.DeviceName)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeData(w, http.StatusCreated, sub)
}

// Unsubscribe handles DELETE /api/push/subscriptions/{id}.
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, r, apperr.Validation("invalid subscription id"))
		return
	}

	sub, err := h.pushStore.GetByID(id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if sub == nil || sub.UserID != userID {
		writeError(w, h.logger, r, apperr.NotFound("subscription"))
		return
	}

	if err := h.pushStore.DeleteSubscription(id); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSubscriptions handles GET /api/push/subscriptions.
func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	subs, err := h.pushStore.ListByUser(userID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if subs == nil {
		subs = []model.PushSubscription{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": subs})
}

// VAPIDKey handles GET /api/push/vapid-key.
func (h *PushHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.service.VAPIDPublicKey()})
}

// Preferences handles GET /api/push/preferences.
func (h *PushHandler) Preferences(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	prefs, err := h.pushStore.GetPreferences(userID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if prefs == nil {
		prefs = []model.NotificationPreference{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": prefs})
}

type updatePreferencesRequest struct {
	Preferences []prefItem `json:"preferences"`
}

type prefItem struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

// UpdatePreferences handles PUT /api/push/preferences.
func (h *PushHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req updatePreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, r, apperr.Validation("invalid JSON body"))
		return
	}

	for _, p := range req.Preferences {
		if _, ok := validNotifTypes[p.Type]; !ok {
			writeError(w, h.logger, r, apperr.Validation("unknown notification type %q", p.Type))
			return
		}
	}
	for _, p := range req.Preferences {
		if err := h.pushStore.SetPreference(userID, p.Type, p.Enabled); err != nil {
			writeError(w, h.logger, r, err)
			return
		}
	}

	prefs, err := h.pushStore.GetPreferences(userID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": prefs})
}

type unsubscribeClaims struct {
	NotifType string `json:"notif_type"`
	jwt.RegisteredClaims
}

// UnsubscribeLink returns a signed URL that disables one notification type
// for one user without requiring login. Embedded in notification emails.
func (h *PushHandler) UnsubscribeLink(userID int64, notifType string) (string, error) {
	claims := unsubscribeClaims{
		NotifType: notifType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(30 * 24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign unsubscribe token: %w", err)
	}
	return fmt.Sprintf("%s/api/push/unsubscribe?token=%s", h.baseURL, url.QueryEscape(token)), nil
}

// UnsubscribeByToken handles GET /api/push/unsubscribe?token=..., the
// one-click link target. The token carries everything; no session needed.
func (h *PushHandler) UnsubscribeByToken(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		writeError(w, h.logger, r, apperr.Validation("token is required"))
		return
	}

	var claims unsubscribeClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return h.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		writeError(w, h.logger, r, apperr.Validation("invalid or expired token"))
		return
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		writeError(w, h.logger, r, apperr.Validation("invalid token subject"))
		return
	}
	if _, ok := validNotifTypes[claims.NotifType]; !ok {
		writeError(w, h.logger, r, apperr.Validation("invalid notification type"))
		return
	}

	if err := h.pushStore.SetPreference(userID, claims.NotifType, false); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "notifications disabled"})
}
