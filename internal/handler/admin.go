package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/parlorhq/parlor/internal/apperr"
	"github.com/parlorhq/parlor/internal/auth"
	"github.com/parlorhq/parlor/internal/email"
	"github.com/parlorhq/parlor/internal/model"
	"github.com/parlorhq/parlor/internal/push"
	"github.com/parlorhq/parlor/internal/store"
	"github.com/parlorhq/parlor/internal/websocket"
)

var validRoles = map[string]struct{}{
	model.RoleMember:    {},
	model.RoleModerator: {},
	model.RoleAdmin:     {},
}

// AdminHandler backs the moderation panel: content visibility, user roles,
// suspensions.
type AdminHandler struct {
	postStore    *store.PostStore
	commentStore *store.CommentStore
	userStore    *store.UserStore
	sessionStore *store.SessionStore
	emailClient  *email.Client
	notifier     *push.Notifier
	hub          *websocket.Hub
	logger       *slog.Logger
}

func NewAdminHandler(
	ps *store.PostStore,
	cs *store.CommentStore,
	us *store.UserStore,
	ss *store.SessionStore,
	ec *email.Client,
	notifier *push.Notifier,
	hub *websocket.Hub,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		postStore:    ps,
		commentStore: cs,
		userStore:    us,
		sessionStore: ss,
		emailClient:  ec,
		notifier:     notifier,
		hub:          hub,
		logger:       logger,
	}
}

// ListPosts handles GET /api/admin/posts: everything, drafts and hidden
// included.
func (h *AdminHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	posts, err := h.postStore.ListAll(limit, offset)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": posts, "limit": limit, "offset": offset})
}

// notifyAuthor sends the moderation email and push for a hide/unhide.
func (h *AdminHandler) notifyAuthor(authorID int64, contentKind, action string) {
	author, err := h.userStore.GetByID(authorID)
	if err != nil || author == nil {
		return
	}
	if err := h.emailClient.SendModerationNotice(author.Email, contentKind, action); err != nil {
		h.logger.Error("send moderation notice", "error", err)
	}
	h.notifier.NotifyModeration(authorID, contentKind, action)
}

func (h *AdminHandler) setPostHidden(w http.ResponseWriter, r *http.Request, hidden bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, r, apperr.Validation("invalid post id"))
		return
	}

	post, err := h.postStore.GetByID(id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if post == nil {
		writeError(w, h.logger, r, apperr.NotFound("post"))
		return
	}

	if err := h.postStore.SetHidden(id, hidden); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	action := "hidden"
	if !hidden {
		action = "restored"
	}
	go h.notifyAuthor(post.AuthorID, "post", action)
	h.hub.Broadcast(websocket.NewMessage(websocket.EntityPost, websocket.ActionHidden, id, map[string]any{"hidden": hidden}))
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// HidePost handles POST /api/admin/posts/{id}/hide.
func (h *AdminHandler) HidePost(w http.ResponseWriter, r *http.Request) {
	h.setPostHidden(w, r, true)
}

// UnhidePost handles POST /api/admin/posts/{id}/unhide.
func (h *AdminHandler) UnhidePost(w http.ResponseWriter, r *http.Request) {
	h.setPostHidden(w, r, false)
}

func (h *AdminHandler) setCommentHidden(w http.ResponseWriter, r *http.Request, hidden bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, r, apperr.Validation("invalid comment id"))
		return
	}

	comment, err := h.commentStore.GetByID(id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if comment == nil {
		writeError(w, h.logger, r, apperr.NotFound("comment"))
		return
	}

	if err := h.commentStore.SetHidden(id, hidden); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	action := "hidden"
	if !hidden {
		action = "restored"
	}
	go h.notifyAuthor(comment.AuthorID, "comment", action)
	h.hub.Broadcast(websocket.NewMessage(websocket.EntityComment, websocket.ActionHidden, id, map[string]any{"post_id": comment.PostID, "hidden": hidden}))
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// HideComment handles POST /api/admin/comments/{id}/hide.
func (h *AdminHandler) HideComment(w http.ResponseWriter, r *http.Request) {
	h.setCommentHidden(w, r, true)
}

// UnhideComment handles POST /api/admin/comments/{id}/unhide.
func (h *AdminHandler) UnhideComment(w http.ResponseWriter, r *http.Request) {
	h.setCommentHidden(w, r, false)
}

// ListUsers handles GET /api/admin/users.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userStore.List()
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": users})
}

type setRoleRequest struct {
	Role string `json:"role"`
}

// SetRole handles PUT /api/admin/users/{id}/role.
func (h *AdminHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, r, apperr.Validation("invalid user id"))
		return
	}

	var req setRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, r, apperr.Validation("invalid JSON body"))
		return
	}
	if _, ok := validRoles[req.Role]; !ok {
		writeError(w, h.logger, r, apperr.Validation("unknown role %q", req.Role))
		return
	}

	user, err := h.userStore.GetByID(id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if user == nil {
		writeError(w, h.logger, r, apperr.NotFound("user"))
		return
	}

	if err := h.userStore.SetRole(id, req.Role); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *AdminHandler) setSuspended(w http.ResponseWriter, r *http.Request, suspended bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, r, apperr.Validation("invalid user id"))
		return
	}

	// Admins cannot suspend themselves.
	if suspended && id == auth.UserID(r.Context()) {
		writeError(w, h.logger, r, apperr.Validation("cannot suspend your own account"))
		return
	}

	user, err := h.userStore.GetByID(id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if user == nil {
		writeError(w, h.logger, r, apperr.NotFound("user"))
		return
	}

	if err := h.userStore.SetSuspended(id, suspended); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	// Suspension kills all live sessions immediately.
	if suspended {
		if err := h.sessionStore.DeleteByUserID(id); err != nil {
			h.logger.Error("delete suspended user sessions", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Suspend handles POST /api/admin/users/{id}/suspend.
func (h *AdminHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	h.setSuspended(w, r, true)
}

// Unsuspend handles POST /api/admin/users/{id}/unsuspend.
func (h *AdminHandler) Unsuspend(w http.ResponseWriter, r *http.Request) {
	h.setSuspended(w, r, false)
}
