package handler

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/parlorhq/parlor/internal/apperr"
	"github.com/parlorhq/parlor/internal/backup"
	"github.com/parlorhq/parlor/internal/store"
)

type BackupHandler struct {
	manager     *backup.Manager
	backupStore *store.BackupStore
	logger      *slog.Logger
}

func NewBackupHandler(m *backup.Manager, bs *store.BackupStore, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{manager: m, backupStore: bs, logger: logger}
}

// List handles GET /api/admin/backups.
func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	backups, err := h.backupStore.List(limit)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": backups, "status": h.manager.Status()})
}

// Run handles POST /api/admin/backups.
func (h *BackupHandler) Run(w http.ResponseWriter, r *http.Request) {
	if !h.manager.Enabled() {
		writeError(w, h.logger, r, apperr.Validation("backups are not configured"))
		return
	}

	id, err := h.manager.RunNow(r.Context())
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	record, err := h.backupStore.GetByID(id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeData(w, http.StatusCreated, record)
}

// Restore handles POST /api/admin/backups/{id}/restore. The process must
// be restarted afterwards to pick up the replaced database file.
func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, r, apperr.Validation("invalid backup id"))
		return
	}

	if err := h.manager.Restore(r.Context(), id); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "restore complete, restart the server"})
}

// Download handles GET /api/admin/backups/{id}/download, streaming the
// encrypted snapshot.
func (h *BackupHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, r, apperr.Validation("invalid backup id"))
		return
	}

	record, err := h.backupStore.GetByID(id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if record == nil {
		writeError(w, h.logger, r, apperr.NotFound("backup"))
		return
	}

	body, size, err := h.manager.Download(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", record.Filename))
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	io.Copy(w, body)
}
