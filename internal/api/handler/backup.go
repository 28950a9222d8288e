package handler

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/edvin/backhaul/internal/api/request"
	"github.com/edvin/backhaul/internal/api/response"
	"github.com/edvin/backhaul/internal/core"
)

type Backup struct {
	backup  *core.BackupService
	history *core.HistoryService
	restore *core.RestoreService
}

func NewBackup(backup *core.BackupService, history *core.HistoryService, restore *core.RestoreService) *Backup {
	return &Backup{backup: backup, history: history, restore: restore}
}

// Run starts an on-demand backup run. A run already in flight yields 409.
func (h *Backup) Run(w http.ResponseWriter, r *http.Request) {
	runID, err := h.backup.RunNow(r.Context())
	if err != nil {
		if errors.Is(err, core.ErrRunInProgress) {
			response.WriteError(w, http.StatusConflict, err.Error())
			return
		}
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusAccepted, map[string]string{
		"workflow_id": core.BackupWorkflowID,
		"run_id":      runID,
	})
}

func (h *Backup) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.backup.Status(r.Context())
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, status)
}

func (h *Backup) List(w http.ResponseWriter, r *http.Request) {
	pg := request.ParsePagination(r)

	runs, hasMore, err := h.history.List(r.Context(), pg.Limit, pg.Cursor)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var nextCursor string
	if hasMore && len(runs) > 0 {
		nextCursor = runs[len(runs)-1].ID
	}
	response.WritePaginated(w, http.StatusOK, runs, nextCursor, hasMore)
}

func (h *Backup) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := h.history.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.WriteError(w, http.StatusNotFound, "backup run not found")
			return
		}
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, run)
}

// Download streams the artifact of a successful run as a zip attachment.
func (h *Backup) Download(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	path, cleanup, err := h.restore.ResolveDownload(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			response.WriteError(w, http.StatusNotFound, "backup run not found")
		case errors.Is(err, core.ErrArtifactGone):
			response.WriteError(w, http.StatusNotFound, err.Error())
		default:
			// Packaging or I/O failures get the directory contents so an
			// operator can see what is actually on disk. The whole API sits
			// behind key auth, so the listing leaks nothing.
			response.WriteJSON(w, http.StatusInternalServerError, map[string]any{
				"error":              err.Error(),
				"backup_dir_listing": h.restore.BackupDirListing(),
			})
		}
		return
	}
	if cleanup != nil {
		defer cleanup()
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}
