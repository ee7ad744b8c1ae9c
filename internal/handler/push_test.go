package handler

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/parlorhq/parlor/internal/model"
	"github.com/parlorhq/parlor/internal/push"
	"github.com/parlorhq/parlor/internal/store"
)

// subscriptionKeys generates a valid browser-side key pair so the webpush
// library can encrypt payloads for a test endpoint.
func subscriptionKeys(t *testing.T) (p256dh, auth string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate subscription key: %v", err)
	}
	point := elliptic.Marshal(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y)
	secret := make([]byte, 16)
	if _, err := rand.Read(secret); err != nil {
		t.Fatalf("generate auth secret: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(point), base64.RawURLEncoding.EncodeToString(secret)
}

type pushFixture struct {
	h  *PushHandler
	ps *store.PushStore
	us *store.UserStore
}

func setupPush(t *testing.T) *pushFixture {
	t.Helper()
	db := newTestDB(t)
	ps := store.NewPushStore(db)
	us := store.NewUserStore(db)
	svc := push.NewService("test-public-key", "test-private-key")
	return &pushFixture{
		h:  NewPushHandler(ps, svc, []byte("test-jwt-secret"), "https://parlor.test", testLogger()),
		ps: ps,
		us: us,
	}
}

func TestSubscribe(t *testing.T) {
	f := setupPush(t)
	u := createTestUser(t, f.us, "pam@example.com", "pam")

	req := httptest.NewRequest("POST", "/api/push/subscribe", jsonBody(t, map[string]any{
		"endpoint":    "https://push.example.com/send/abc",
		"p256dh":      "key-material",
		"auth":        "auth-secret",
		"device_name": "phone",
	}))
	req = asUser(t, f.us, req, u)
	rec := httptest.NewRecorder()
	f.h.Subscribe(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	subs, err := f.ps.ListByUser(u.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 || subs[0].Endpoint != "https://push.example.com/send/abc" {
		t.Errorf("subscriptions = %+v", subs)
	}
}

func TestSubscribeMissingKeys(t *testing.T) {
	f := setupPush(t)
	u := createTestUser(t, f.us, "pam@example.com", "pam")

	req := httptest.NewRequest("POST", "/api/push/subscribe", jsonBody(t, map[string]any{
		"endpoint": "https://push.example.com/send/abc",
	}))
	req = asUser(t, f.us, req, u)
	rec := httptest.NewRecorder()
	f.h.Subscribe(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUnsubscribeOwnershipCheck(t *testing.T) {
	f := setupPush(t)
	owner := createTestUser(t, f.us, "owner@example.com", "owner")
	other := createTestUser(t, f.us, "other@example.com", "other")

	sub, err := f.ps.CreateSubscription(owner.ID, "https://push.example.com/x", "p", "a", "phone")
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	del := func(as *model.User) int {
		id := strconv.FormatInt(sub.ID, 10)
		req := httptest.NewRequest("DELETE", "/api/push/subscriptions/"+id, nil)
		req.SetPathValue("id", id)
		req = asUser(t, f.us, req, as)
		rec := httptest.NewRecorder()
		f.h.Unsubscribe(rec, req)
		return rec.Code
	}

	if got := del(other); got != http.StatusNotFound {
		t.Errorf("foreign unsubscribe = %d, want 404", got)
	}
	if got := del(owner); got != http.StatusNoContent {
		t.Errorf("own unsubscribe = %d, want 204", got)
	}
}

func TestVAPIDKey(t *testing.T) {
	f := setupPush(t)

	rec := httptest.NewRecorder()
	f.h.VAPIDKey(rec, httptest.NewRequest("GET", "/api/push/vapid-key", nil))

	body := decodeBody(t, rec)
	if body["public_key"] != "test-public-key" {
		t.Errorf("public_key = %v", body["public_key"])
	}
}

func TestUpdatePreferences(t *testing.T) {
	f := setupPush(t)
	u := createTestUser(t, f.us, "pam@example.com", "pam")

	req := httptest.NewRequest("PUT", "/api/push/preferences", jsonBody(t, map[string]any{
		"preferences": []map[string]any{
			{"type": model.NotifTypeCommentReply, "enabled": false},
		},
	}))
	req = asUser(t, f.us, req, u)
	rec := httptest.NewRecorder()
	f.h.UpdatePreferences(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	enabled, err := f.ps.IsPreferenceEnabled(u.ID, model.NotifTypeCommentReply)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if enabled {
		t.Error("preference still enabled")
	}

	// Unknown types reject the whole batch before any write.
	req = httptest.NewRequest("PUT", "/api/push/preferences", jsonBody(t, map[string]any{
		"preferences": []map[string]any{
			{"type": model.NotifTypePostPublished, "enabled": false},
			{"type": "carrier-pigeon", "enabled": false},
		},
	}))
	req = asUser(t, f.us, req, u)
	rec = httptest.NewRecorder()
	f.h.UpdatePreferences(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	enabled, err = f.ps.IsPreferenceEnabled(u.ID, model.NotifTypePostPublished)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !enabled {
		t.Error("rejected batch still wrote a preference")
	}
}

func TestUnsubscribeLinkRoundTrip(t *testing.T) {
	f := setupPush(t)
	u := createTestUser(t, f.us, "pam@example.com", "pam")

	link, err := f.h.UnsubscribeLink(u.ID, model.NotifTypeModeration)
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if !strings.HasPrefix(link, "https://parlor.test/api/push/unsubscribe?token=") {
		t.Fatalf("link = %q", link)
	}

	parsed, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}

	// The link works with no session attached.
	req := httptest.NewRequest("GET", "/api/push/unsubscribe?token="+url.QueryEscape(parsed.Query().Get("token")), nil)
	rec := httptest.NewRecorder()
	f.h.UnsubscribeByToken(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	enabled, err := f.ps.IsPreferenceEnabled(u.ID, model.NotifTypeModeration)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if enabled {
		t.Error("unsubscribe link did not disable the preference")
	}
}

func TestUnsubscribeTokenTampered(t *testing.T) {
	f := setupPush(t)
	u := createTestUser(t, f.us, "pam@example.com", "pam")

	link, err := f.h.UnsubscribeLink(u.ID, model.NotifTypeCommentReply)
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	parsed, _ := url.Parse(link)
	token := parsed.Query().Get("token")

	// Flip the last signature byte.
	var mutated string
	if strings.HasSuffix(token, "A") {
		mutated = token[:len(token)-1] + "B"
	} else {
		mutated = token[:len(token)-1] + "A"
	}

	for _, tok := range []string{"", "not-a-jwt", mutated} {
		req := httptest.NewRequest("GET", "/api/push/unsubscribe?token="+url.QueryEscape(tok), nil)
		rec := httptest.NewRecorder()
		f.h.UnsubscribeByToken(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("token %q: status = %d, want 400", tok, rec.Code)
		}
	}
}
