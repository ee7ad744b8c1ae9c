package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/parlorhq/parlor/internal/apperr"
	"github.com/parlorhq/parlor/internal/model"
	"github.com/parlorhq/parlor/internal/store"
	"github.com/parlorhq/parlor/internal/websocket"
)

var bannerPlacements = map[string]struct{}{
	model.PlacementHome:    {},
	model.PlacementSidebar: {},
	model.PlacementPuzzle:  {},
}

type BannerHandler struct {
	bannerStore *store.BannerStore
	hub         *websocket.Hub
	logger      *slog.Logger
}

func NewBannerHandler(bs *store.BannerStore, hub *websocket.Hub, logger *slog.Logger) *BannerHandler {
	return &BannerHandler{bannerStore: bs, hub: hub, logger: logger}
}

// Active handles GET /api/banners?placement=home, the public endpoint.
func (h *BannerHandler) Active(w http.ResponseWriter, r *http.Request) {
	placement := r.URL.Query().Get("placement")
	if _, ok := bannerPlacements[placement]; !ok {
		writeError(w, h.logger, r, apperr.Validation("unknown placement %q", placement))
		return
	}

	banners, err := h.bannerStore.ListActive(placement, time.Now().UTC())
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": banners})
}

type bannerRequest struct {
	Title     string     `json:"title"`
	ImageURL  string     `json:"image_url"`
	TargetURL string     `json:"target_url"`
	Placement string     `json:"placement"`
	StartsAt  *time.Time `json:"starts_at,omitempty"`
	EndsAt    *time.Time `json:"ends_at,omitempty"`
	Active    bool       `json:"active"`
}

func (req *bannerRequest) validate() error {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return apperr.Validation("title is required")
	}
	if _, ok := bannerPlacements[req.Placement]; !ok {
		return apperr.Validation("unknown placement %q", req.Placement)
	}
	for name, raw := range map[string]string{"image_url": req.ImageURL, "target_url": req.TargetURL} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return apperr.Validation("%s must be an http(s) URL", name)
		}
	}
	if req.StartsAt != nil && req.EndsAt != nil && !req.EndsAt.After(*req.StartsAt) {
		return apperr.Validation("ends_at must be after starts_at")
	}
	return nil
}

// List handles GET /api/admin/banners.
func (h *BannerHandler) List(w http.ResponseWriter, r *http.Request) {
	banners, err := h.bannerStore.List()
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": banners})
}

// Create handles POST /api/admin/banners.
func (h *BannerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req bannerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, r, apperr.Validation("invalid JSON body"))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	banner, err := h.bannerStore.Create(req.Title, req.ImageURL, req.TargetURL, req.Placement, req.StartsAt, req.EndsAt, req.Active)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	h.hub.Broadcast(websocket.NewMessage(websocket.EntityBanner, websocket.ActionUpdated, banner.ID, nil))
	writeData(w, http.StatusCreated, banner)
}

// Update handles PUT /api/admin/banners/{id}.
func (h *BannerHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, r, apperr.Validation("invalid banner id"))
		return
	}

	existing, err := h.bannerStore.GetByID(id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if existing == nil {
		writeError(w, h.logger, r, apperr.NotFound("banner"))
		return
	}

	var req bannerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, r, apperr.Validation("invalid JSON body"))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	banner, err := h.bannerStore.Update(id, req.Title, req.ImageURL, req.TargetURL, req.Placement, req.StartsAt, req.EndsAt, req.Active)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	h.hub.Broadcast(websocket.NewMessage(websocket.EntityBanner, websocket.ActionUpdated, banner.ID, nil))
	writeData(w, http.StatusOK, banner)
}

// Delete handles DELETE /api/admin/banners/{id}.
func (h *BannerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, r, apperr.Validation("invalid banner id"))
		return
	}

	if err := h.bannerStore.Delete(id); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	h.hub.Broadcast(websocket.NewMessage(websocket.EntityBanner, websocket.ActionDeleted, id, nil))
	w.WriteHeader(http.StatusNoContent)
}
