package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/api/request"
	"github.com/edvin/backhaul/internal/api/response"
	"github.com/edvin/backhaul/internal/core"
	"github.com/edvin/backhaul/internal/storage"
)

// Storage validates backend credentials without saving them.
type Storage struct {
	logger    zerolog.Logger
	settings  *core.SettingsService
	backupDir string
}

func NewStorage(logger zerolog.Logger, settings *core.SettingsService, backupDir string) *Storage {
	return &Storage{logger: logger, settings: settings, backupDir: backupDir}
}

// Test builds the requested backend and performs a non-destructive
// connection check. Masked secrets in the payload resolve to the stored
// values, so "test what I have saved" works without re-entering keys.
func (h *Storage) Test(w http.ResponseWriter, r *http.Request) {
	var req request.TestStorageConnection
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg := req.StorageConfig
	if err := h.settings.ResolveSubmittedConfig(r.Context(), &cfg); err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	backend, err := storage.Resolve(r.Context(), h.logger, req.StorageType, &cfg, h.backupDir)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := backend.TestConnection(r.Context())
	if err != nil {
		response.WriteJSON(w, testFailureStatus(err), map[string]string{
			"status": "failed",
			"error":  err.Error(),
		})
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"label":  info.Label,
	})
}

// testFailureStatus distinguishes operator-correctable failures from
// transport errors.
func testFailureStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrInvalidCredentials),
		errors.Is(err, storage.ErrTargetNotFound),
		errors.Is(err, storage.ErrInsufficientPermission):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}
