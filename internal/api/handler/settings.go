package handler

import (
	"errors"
	"net/http"

	"github.com/edvin/backhaul/internal/api/request"
	"github.com/edvin/backhaul/internal/api/response"
	"github.com/edvin/backhaul/internal/core"
	"github.com/edvin/backhaul/internal/model"
)

type Settings struct {
	svc *core.SettingsService
}

func NewSettings(svc *core.SettingsService) *Settings {
	return &Settings{svc: svc}
}

// Get serves the settings with all secrets masked.
func (h *Settings) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetMasked(r.Context())
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, view)
}

// Update replaces the settings. The payload is a full replacement, not a
// patch; masked secrets resolve to the stored values.
func (h *Settings) Update(w http.ResponseWriter, r *http.Request) {
	var req request.SaveBackupSettings
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	settings := &model.BackupSettings{
		HostingType:    req.HostingType,
		StorageType:    req.StorageType,
		AutoBackup:     req.AutoBackup,
		Frequency:      req.Frequency,
		BackupTime:     req.BackupTime,
		EmailNotify:    req.EmailNotify,
		NotifyEmail:    req.NotifyEmail,
		BackupDatabase: req.BackupDatabase,
		BackupUploads:  req.BackupUploads,
		KeepBackups:    req.KeepBackups,
	}
	if settings.HostingType == "" {
		settings.HostingType = model.HostingSelfHosted
	}

	cfg := req.StorageConfig
	if _, err := h.svc.Save(r.Context(), settings, &cfg); err != nil {
		if errors.Is(err, core.ErrInvalidBackupTime) {
			response.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	view, err := h.svc.GetMasked(r.Context())
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, view)
}
