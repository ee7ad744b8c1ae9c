package handler

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/parlorhq/parlor/internal/model"
	"github.com/parlorhq/parlor/internal/push"
	"github.com/parlorhq/parlor/internal/store"
	"github.com/parlorhq/parlor/internal/websocket"
)

type postFixture struct {
	h  *PostHandler
	ps *store.PostStore
	us *store.UserStore
}

func setupPosts(t *testing.T) *postFixture {
	t.Helper()
	db := newTestDB(t)
	ps := store.NewPostStore(db)
	us := store.NewUserStore(db)
	hub := websocket.NewHub(testLogger())
	return &postFixture{
		h:  NewPostHandler(ps, us, hub, nil, testLogger()),
		ps: ps,
		us: us,
	}
}

func TestCreatePost(t *testing.T) {
	f := setupPosts(t)
	author := createTestUser(t, f.us, "author@example.com", "author")

	req := httptest.NewRequest("POST", "/api/posts",
		strings.NewReader(`{"title":"Hello, Parlor!","body":`+validDoc+`,"published":true}`))
	req = asUser(t, f.us, req, author)
	rec := httptest.NewRecorder()
	f.h.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	data := decodeBody(t, rec)["data"].(map[string]any)
	slug, _ := data["slug"].(string)
	if !strings.HasPrefix(slug, "hello-parlor-") {
		t.Errorf("slug = %q, want hello-parlor- prefix", slug)
	}
	if data["excerpt"] != "hello world" {
		t.Errorf("excerpt = %v, want text stripped from body", data["excerpt"])
	}
}

func TestCreatePostInvalidDocument(t *testing.T) {
	f := setupPosts(t)
	author := createTestUser(t, f.us, "author@example.com", "author")

	tests := []struct {
		name string
		body string
	}{
		{"unknown node", `{"type":"doc","content":[{"type":"marquee"}]}`},
		{"bad rating", `{"type":"doc","content":[{"type":"rating","attrs":{"stars":6}}]}`},
		{"bad youtube id", `{"type":"doc","content":[{"type":"youtube","attrs":{"video_id":"nope"}}]}`},
		{"not a doc", `{"type":"paragraph"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/posts",
				strings.NewReader(`{"title":"t","body":`+tt.body+`}`))
			req = asUser(t, f.us, req, author)
			rec := httptest.NewRecorder()
			f.h.Create(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestDraftVisibility(t *testing.T) {
	f := setupPosts(t)
	author := createTestUser(t, f.us, "author@example.com", "author")
	reader := createTestUser(t, f.us, "reader@example.com", "reader")
	mod := createTestUser(t, f.us, "mod@example.com", "mod")
	if err := f.us.SetRole(mod.ID, model.RoleModerator); err != nil {
		t.Fatalf("set role: %v", err)
	}

	draft, err := f.ps.Create(author.ID, "Draft", "draft-1", validDoc, "hello", false)
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}

	get := func(as *model.User) int {
		req := httptest.NewRequest("GET", "/api/posts/1", nil)
		req.SetPathValue("id", "1")
		if as != nil {
			req = asUser(t, f.us, req, as)
		}
		rec := httptest.NewRecorder()
		f.h.Get(rec, req)
		return rec.Code
	}
	_ = draft

	if got := get(nil); got != http.StatusNotFound {
		t.Errorf("anonymous draft read = %d, want 404", got)
	}
	if got := get(reader); got != http.StatusNotFound {
		t.Errorf("other user draft read = %d, want 404", got)
	}
	if got := get(author); got != http.StatusOK {
		t.Errorf("author draft read = %d, want 200", got)
	}
	if got := get(mod); got != http.StatusOK {
		t.Errorf("moderator draft read = %d, want 200", got)
	}
}

func TestUpdatePostPermissions(t *testing.T) {
	f := setupPosts(t)
	author := createTestUser(t, f.us, "author@example.com", "author")
	other := createTestUser(t, f.us, "other@example.com", "other")

	if _, err := f.ps.Create(author.ID, "Mine", "mine-1", validDoc, "hello", true); err != nil {
		t.Fatalf("create post: %v", err)
	}

	update := func(as *model.User) *httptest.ResponseRecorder {
		req := httptest.NewRequest("PUT", "/api/posts/1",
			strings.NewReader(`{"title":"Edited","body":`+validDoc+`,"published":true}`))
		req.SetPathValue("id", "1")
		req = asUser(t, f.us, req, as)
		rec := httptest.NewRecorder()
		f.h.Update(rec, req)
		return rec
	}

	if rec := update(other); rec.Code != http.StatusForbidden {
		t.Errorf("non-author update = %d, want 403", rec.Code)
	}
	rec := update(author)
	if rec.Code != http.StatusOK {
		t.Fatalf("author update = %d: %s", rec.Code, rec.Body.String())
	}
	data := decodeBody(t, rec)["data"].(map[string]any)
	if data["title"] != "Edited" {
		t.Errorf("title = %v, want Edited", data["title"])
	}
}

func TestDeletePost(t *testing.T) {
	f := setupPosts(t)
	author := createTestUser(t, f.us, "author@example.com", "author")

	if _, err := f.ps.Create(author.ID, "Doomed", "doomed-1", validDoc, "hello", true); err != nil {
		t.Fatalf("create post: %v", err)
	}

	req := httptest.NewRequest("DELETE", "/api/posts/1", nil)
	req.SetPathValue("id", "1")
	req = asUser(t, f.us, req, author)
	rec := httptest.NewRecorder()
	f.h.Delete(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	post, err := f.ps.GetByID(1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if post != nil {
		t.Error("post still present after delete")
	}
}

func TestListPublishedOnly(t *testing.T) {
	f := setupPosts(t)
	author := createTestUser(t, f.us, "author@example.com", "author")

	if _, err := f.ps.Create(author.ID, "Live", "live-1", validDoc, "hello", true); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.ps.Create(author.ID, "Draft", "draft-1", validDoc, "hello", false); err != nil {
		t.Fatalf("create: %v", err)
	}

	rec := httptest.NewRecorder()
	f.h.List(rec, httptest.NewRequest("GET", "/api/posts", nil))

	body := decodeBody(t, rec)
	posts := body["data"].([]any)
	if len(posts) != 1 {
		t.Fatalf("listed %d posts, want 1 published", len(posts))
	}
	if posts[0].(map[string]any)["title"] != "Live" {
		t.Errorf("listed %v, want Live", posts[0])
	}

	// ?mine=1 needs auth and includes drafts.
	req := httptest.NewRequest("GET", "/api/posts?mine=1", nil)
	rec = httptest.NewRecorder()
	f.h.List(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous mine=1 = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest("GET", "/api/posts?mine=1", nil)
	req = asUser(t, f.us, req, author)
	rec = httptest.NewRecorder()
	f.h.List(rec, req)
	if got := len(decodeBody(t, rec)["data"].([]any)); got != 2 {
		t.Errorf("mine=1 listed %d, want 2 including draft", got)
	}
}

func TestPublishSendsPushNotifications(t *testing.T) {
	db := newTestDB(t)
	ps := store.NewPostStore(db)
	us := store.NewUserStore(db)
	pushStore := store.NewPushStore(db)
	hub := websocket.NewHub(testLogger())

	pub, priv, err := push.GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}
	notifier := push.NewNotifier(push.NewService(pub, priv), pushStore, testLogger())
	h := NewPostHandler(ps, us, hub, notifier, testLogger())

	author := createTestUser(t, us, "author@example.com", "author")
	reader := createTestUser(t, us, "reader@example.com", "reader")

	notified := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		notified <- struct{}{}
	}))
	defer srv.Close()

	p256dh, auth := subscriptionKeys(t)
	if _, err := pushStore.CreateSubscription(reader.ID, srv.URL, p256dh, auth, "phone"); err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	post, err := ps.Create(author.ID, "Draft", "draft-1a2b3c4d", validDoc, "hello world", false)
	if err != nil {
		t.Fatalf("create post: %v", err)
	}

	req := httptest.NewRequest("PUT", "/api/posts/1",
		strings.NewReader(`{"title":"Draft","body":`+validDoc+`,"published":true}`))
	req.SetPathValue("id", strconv.FormatInt(post.ID, 10))
	req = asUser(t, us, req, author)
	rec := httptest.NewRecorder()
	h.Update(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	select {
	case <-notified:
	case <-time.After(2 * time.Second):
		t.Fatal("publishing a draft sent no push notification")
	}
}
