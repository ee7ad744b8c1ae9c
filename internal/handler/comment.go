package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/parlorhq/parlor/internal/apperr"
	"github.com/parlorhq/parlor/internal/auth"
	"github.com/parlorhq/parlor/internal/model"
	"github.com/parlorhq/parlor/internal/push"
	"github.com/parlorhq/parlor/internal/store"
	"github.com/parlorhq/parlor/internal/websocket"
)

const maxCommentLen = 4000

type CommentHandler struct {
	commentStore *store.CommentStore
	postStore    *store.PostStore
	hub          *websocket.Hub
	notifier     *push.Notifier
	logger       *slog.Logger
}

func NewCommentHandler(cs *store.CommentStore, ps *store.PostStore, hub *websocket.Hub, notifier *push.Notifier, logger *slog.Logger) *CommentHandler {
	return &CommentHandler{commentStore: cs, postStore: ps, hub: hub, notifier: notifier, logger: logger}
}

func (h *CommentHandler) visiblePost(r *http.Request) (*model.Post, error) {
	id, err := parseIDParam(r)
	if err != nil {
		return nil, apperr.Validation("invalid post id")
	}
	post, err := h.postStore.GetByID(id)
	if err != nil {
		return nil, err
	}
	if post == nil || post.Hidden() || !post.Published {
		return nil, apperr.NotFound("post")
	}
	return post, nil
}

// List handles GET /api/posts/{id}/comments.
func (h *CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	post, err := h.visiblePost(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	comments, err := h.commentStore.ListByPost(post.ID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": comments})
}

type commentRequest struct {
	Body     string `json:"body"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

// Create handles POST /api/posts/{id}/comments. Replies nest one level:
// a reply to a reply attaches to the original parent.
func (h *CommentHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	post, err := h.visiblePost(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, r, apperr.Validation("invalid JSON body"))
		return
	}
	req.Body = strings.TrimSpace(req.Body)
	if req.Body == "" || len(req.Body) > maxCommentLen {
		writeError(w, h.logger, r, apperr.Validation("comment must be 1-%d characters", maxCommentLen))
		return
	}

	var parentAuthor int64
	if req.ParentID != nil {
		parent, err := h.commentStore.GetByID(*req.ParentID)
		if err != nil {
			writeError(w, h.logger, r, err)
			return
		}
		if parent == nil || parent.PostID != post.ID {
			writeError(w, h.logger, r, apperr.Validation("parent comment not found on this post"))
			return
		}
		if parent.ParentID != nil {
			req.ParentID = parent.ParentID
		}
		parentAuthor = parent.AuthorID
	}

	comment, err := h.commentStore.Create(post.ID, userID, req.ParentID, req.Body)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	h.hub.Broadcast(websocket.NewMessage(websocket.EntityComment, websocket.ActionCreated, comment.ID, map[string]any{"post_id": post.ID}))
	if parentAuthor != 0 && parentAuthor != userID {
		go h.notifier.NotifyCommentReply(parentAuthor, post.Title, post.Slug)
	}

	writeData(w, http.StatusCreated, comment)
}

// Delete handles DELETE /api/comments/{id}. Authors delete their own
// comments; moderators delete anyone's.
func (h *CommentHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

	ac, _ := auth.FromContext(r.Context())
	if comment.AuthorID != ac.UserID && !auth.Can(r.Context(), model.PermModerateContent) {
		writeError(w, h.logger, r, apperr.ErrForbidden)
		return
	}

	if err := h.commentStore.Delete(id); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	h.hub.Broadcast(websocket.NewMessage(websocket.EntityComment, websocket.ActionDeleted, id, map[string]any{"post_id": comment.PostID}))
	w.WriteHeader(http.StatusNoContent)
}
