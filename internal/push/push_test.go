package push

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/parlorhq/parlor/internal/database"
	"github.com/parlorhq/parlor/internal/model"
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

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}

	// Public key is a base64url-encoded uncompressed P-256 point (65 bytes).
	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(pubBytes) != 65 {
		t.Errorf("public key length = %d, want 65", len(pubBytes))
	}

	// Private key is a base64url-encoded P-256 scalar (32 bytes).
	privBytes, err := base64.RawURLEncoding.DecodeString(priv)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}
	if len(privBytes) != 32 {
		t.Errorf("private key length = %d, want 32", len(privBytes))
	}

	pub2, _, _ := GenerateVAPIDKeys()
	if pub == pub2 {
		t.Error("expected different keys on second generation")
	}
}

func TestNotifierSkipsDisabledPreference(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	defer db.Close()

	userStore := store.NewUserStore(db)
	pushStore := store.NewPushStore(db)

	user, err := userStore.Create("alice@example.com", "alice", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	// Endpoint that fails the test if the notifier actually sends.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("push endpoint hit despite disabled preference")
	}))
	defer server.Close()

	if _, err := pushStore.CreateSubscription(user.ID, server.URL, "p256dh", "auth", "phone"); err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if err := pushStore.SetPreference(user.ID, model.NotifTypeCommentReply, false); err != nil {
		t.Fatalf("set preference: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pub, priv, _ := GenerateVAPIDKeys()
	notifier := NewNotifier(NewService(pub, priv), pushStore, logger)

	notifier.NotifyCommentReply(user.ID, "A Post", "a-post")
}

func TestNotifyPostPublishedFanout(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	defer db.Close()

	userStore := store.NewUserStore(db)
	pushStore := store.NewPushStore(db)

	author, err := userStore.Create("author@example.com", "author", "hash")
	if err != nil {
		t.Fatalf("create author: %v", err)
	}
	reader, err := userStore.Create("reader@example.com", "reader", "hash")
	if err != nil {
		t.Fatalf("create reader: %v", err)
	}
	muted, err := userStore.Create("muted@example.com", "muted", "hash")
	if err != nil {
		t.Fatalf("create muted: %v", err)
	}

	var readerHits atomic.Int32
	readerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		readerHits.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer readerSrv.Close()
	authorSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("author notified about their own post")
	}))
	defer authorSrv.Close()
	mutedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("push endpoint hit despite disabled preference")
	}))
	defer mutedSrv.Close()

	for _, s := range []struct {
		userID   int64
		endpoint string
	}{
		{author.ID, authorSrv.URL},
		{reader.ID, readerSrv.URL},
		{muted.ID, mutedSrv.URL},
	} {
		p256dh, auth := subscriptionKeys(t)
		if _, err := pushStore.CreateSubscription(s.userID, s.endpoint, p256dh, auth, "phone"); err != nil {
			t.Fatalf("create subscription: %v", err)
		}
	}
	if err := pushStore.SetPreference(muted.ID, model.NotifTypePostPublished, false); err != nil {
		t.Fatalf("set preference: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pub, priv, _ := GenerateVAPIDKeys()
	notifier := NewNotifier(NewService(pub, priv), pushStore, logger)

	notifier.NotifyPostPublished(author.ID, "Launch Day", "launch-day-1a2b3c4d")

	if got := readerHits.Load(); got != 1 {
		t.Errorf("reader endpoint hits = %d, want 1", got)
	}
}
