package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/parlorhq/parlor/internal/apperr"
	"github.com/parlorhq/parlor/internal/auth"
	"github.com/parlorhq/parlor/internal/model"
	"github.com/parlorhq/parlor/internal/store"
	"github.com/parlorhq/parlor/internal/websocket"
)

var reactionKinds = map[string]struct{}{
	model.ReactionLike:  {},
	model.ReactionLove:  {},
	model.ReactionLaugh: {},
	model.ReactionSad:   {},
}

var shareChannels = map[string]struct{}{
	model.ShareCopyLink: {},
	model.ShareTwitter:  {},
	model.ShareFacebook: {},
}

// SocialHandler covers reactions and shares.
type SocialHandler struct {
	reactionStore *store.ReactionStore
	shareStore    *store.ShareStore
	postStore     *store.PostStore
	hub           *websocket.Hub
	baseURL       string
	logger        *slog.Logger
}

func NewSocialHandler(rs *store.ReactionStore, ss *store.ShareStore, ps *store.PostStore, hub *websocket.Hub, baseURL string, logger *slog.Logger) *SocialHandler {
	return &SocialHandler{reactionStore: rs, shareStore: ss, postStore: ps, hub: hub, baseURL: baseURL, logger: logger}
}

func (h *SocialHandler) visiblePost(r *http.Request) (*model.Post, error) {
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

type reactRequest struct {
	Kind string `json:"kind"`
}

// React handles POST /api/posts/{id}/reactions. Reacting with the current
// kind removes it; any other kind replaces it.
func (h *SocialHandler) React(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	post, err := h.visiblePost(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	var req reactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, r, apperr.Validation("invalid JSON body"))
		return
	}
	if _, ok := reactionKinds[req.Kind]; !ok {
		writeError(w, h.logger, r, apperr.Validation("unknown reaction kind %q", req.Kind))
		return
	}

	reaction, err := h.reactionStore.Toggle(post.ID, userID, req.Kind)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	counts, err := h.reactionStore.Counts(post.ID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	h.hub.Broadcast(websocket.NewMessage(websocket.EntityReaction, websocket.ActionUpdated, post.ID, map[string]any{"total": counts.Total}))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "reaction": reaction, "counts": counts})
}

// ReactionCounts handles GET /api/posts/{id}/reactions.
func (h *SocialHandler) ReactionCounts(w http.ResponseWriter, r *http.Request) {
	post, err := h.visiblePost(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	counts, err := h.reactionStore.Counts(post.ID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": counts})
}

type shareRequest struct {
	Channel string `json:"channel"`
}

// Share handles POST /api/posts/{id}/shares. Works for anonymous callers
// too; the share row just carries no user.
func (h *SocialHandler) Share(w http.ResponseWriter, r *http.Request) {
	post, err := h.visiblePost(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	var req shareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, r, apperr.Validation("invalid JSON body"))
		return
	}
	if _, ok := shareChannels[req.Channel]; !ok {
		writeError(w, h.logger, r, apperr.Validation("unknown share channel %q", req.Channel))
		return
	}

	var userID *int64
	if ac, ok := auth.FromContext(r.Context()); ok {
		userID = &ac.UserID
	}

	share, err := h.shareStore.Create(post.ID, userID, req.Channel)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	writeData(w, http.StatusCreated, map[string]any{
		"share": share,
		"url":   h.baseURL + "/s/" + share.Slug,
	})
}
