package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/parlorhq/parlor/internal/apperr"
	"github.com/parlorhq/parlor/internal/auth"
	"github.com/parlorhq/parlor/internal/model"
	"github.com/parlorhq/parlor/internal/push"
	"github.com/parlorhq/parlor/internal/richtext"
	"github.com/parlorhq/parlor/internal/store"
	"github.com/parlorhq/parlor/internal/websocket"
)

const (
	excerptLen      = 200
	defaultPageSize = 20
	maxPageSize     = 100
)

type PostHandler struct {
	postStore *store.PostStore
	userStore *store.UserStore
	hub       *websocket.Hub
	notifier  *push.Notifier
	logger    *slog.Logger
}

func NewPostHandler(ps *store.PostStore, us *store.UserStore, hub *websocket.Hub, notifier *push.Notifier, logger *slog.Logger) *PostHandler {
	return &PostHandler{postStore: ps, userStore: us, hub: hub, notifier: notifier, logger: logger}
}

// slugify turns a title into a URL slug, suffixed for uniqueness.
func slugify(title string) string {
	var b strings.Builder
	prevHyphen := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevHyphen = false
		default:
			if !prevHyphen {
				b.WriteByte('-')
				prevHyphen = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > 60 {
		slug = slug[:60]
	}
	if slug == "" {
		slug = "post"
	}
	return slug + "-" + uuid.NewString()[:8]
}

type postRequest struct {
	Title     string          `json:"title"`
	Body      json.RawMessage `json:"body"`
	Published bool            `json:"published"`
}

func (h *PostHandler) validateBody(raw json.RawMessage) (*richtext.Node, error) {
	doc, err := richtext.Parse(string(raw))
	if err != nil {
		return nil, apperr.Validation("invalid post body: %v", err)
	}
	return doc, nil
}

// Create handles POST /api/posts.
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, r, apperr.Validation("invalid JSON body"))
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || len(req.Title) > 200 {
		writeError(w, h.logger, r, apperr.Validation("title must be 1-200 characters"))
		return
	}

	doc, err := h.validateBody(req.Body)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	post, err := h.postStore.Create(userID, req.Title, slugify(req.Title), string(req.Body), richtext.Excerpt(doc, excerptLen), req.Published)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	if post.Published {
		h.hub.Broadcast(websocket.NewMessage(websocket.EntityPost, websocket.ActionPublished, post.ID, nil))
		go h.notifier.NotifyPostPublished(post.AuthorID, post.Title, post.Slug)
	}
	writeData(w, http.StatusCreated, post)
}

// List handles GET /api/posts. Anonymous and regular callers see published,
// unhidden posts; authors can request their own drafts with ?mine=1.
func (h *PostHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	if r.URL.Query().Get("mine") == "1" {
		ac, ok := auth.FromContext(r.Context())
		if !ok {
			writeError(w, h.logger, r, apperr.ErrAuthRequired)
			return
		}
		posts, err := h.postStore.ListByAuthor(ac.UserID)
		if err != nil {
			writeError(w, h.logger, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": posts})
		return
	}

	posts, err := h.postStore.ListPublished(limit, offset)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": posts, "limit": limit, "offset": offset})
}

func pagination(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= maxPageSize {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// Get handles GET /api/posts/{id}.
func (h *PostHandler) Get(w http.ResponseWriter, r *http.Request) {
	post, err := h.loadVisible(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": post})
}

// loadVisible fetches the post in {id} and applies visibility: hidden or
// draft posts are only visible to their author and to moderators.
func (h *PostHandler) loadVisible(r *http.Request) (*model.Post, error) {
	id, err := parseIDParam(r)
	if err != nil {
		return nil, apperr.Validation("invalid post id")
	}

	post, err := h.postStore.GetByID(id)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, apperr.NotFound("post")
	}

	if post.Hidden() || !post.Published {
		ac, ok := auth.FromContext(r.Context())
		if !ok || (ac.UserID != post.AuthorID && !auth.Can(r.Context(), model.PermModerateContent)) {
			return nil, apperr.NotFound("post")
		}
	}
	return post, nil
}

// Update handles PUT /api/posts/{id}. Only the author or a moderator may
// edit a post.
func (h *PostHandler) Update(w http.ResponseWriter, r *http.Request) {
	post, err := h.loadVisible(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	ac, _ := auth.FromContext(r.Context())
	if post.AuthorID != ac.UserID && !auth.Can(r.Context(), model.PermModerateContent) {
		writeError(w, h.logger, r, apperr.ErrForbidden)
		return
	}

	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, r, apperr.Validation("invalid JSON body"))
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || len(req.Title) > 200 {
		writeError(w, h.logger, r, apperr.Validation("title must be 1-200 characters"))
		return
	}

	doc, err := h.validateBody(req.Body)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	wasPublished := post.Published
	updated, err := h.postStore.Update(post.ID, req.Title, string(req.Body), richtext.Excerpt(doc, excerptLen), req.Published)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	if !wasPublished && updated.Published {
		h.hub.Broadcast(websocket.NewMessage(websocket.EntityPost, websocket.ActionPublished, updated.ID, nil))
		go h.notifier.NotifyPostPublished(updated.AuthorID, updated.Title, updated.Slug)
	} else {
		h.hub.Broadcast(websocket.NewMessage(websocket.EntityPost, websocket.ActionUpdated, updated.ID, nil))
	}
	writeData(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/posts/{id}.
func (h *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	post, err := h.loadVisible(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	ac, _ := auth.FromContext(r.Context())
	if post.AuthorID != ac.UserID && !auth.Can(r.Context(), model.PermModerateContent) {
		writeError(w, h.logger, r, apperr.ErrForbidden)
		return
	}

	if err := h.postStore.Delete(post.ID); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	h.hub.Broadcast(websocket.NewMessage(websocket.EntityPost, websocket.ActionDeleted, post.ID, nil))
	w.WriteHeader(http.StatusNoContent)
}
