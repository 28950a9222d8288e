package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/backhaul/internal/api/response"
	"github.com/edvin/backhaul/internal/core"
	"github.com/edvin/backhaul/internal/model"
)

func TestBackupGet_MissingID(t *testing.T) {
	h := NewBackup(nil, nil, nil)
	rec := httptest.NewRecorder()
	r := withChiURLParam(newRequest(http.MethodGet, "/backups/", nil), "id", "")

	h.Get(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBackupList_PaginatedNewestFirst(t *testing.T) {
	newest := model.BackupRun{ID: "run-2", Status: model.RunSuccess, CreatedAt: time.Date(2025, 3, 14, 2, 0, 0, 0, time.UTC)}
	older := model.BackupRun{ID: "run-1", Status: model.RunFailed, CreatedAt: time.Date(2025, 3, 13, 2, 0, 0, 0, time.UTC)}

	db := &mockDB{}
	db.On("Query", mock.Anything, mock.Anything, mock.Anything).
		Return(newHistoryRows(newest, older), nil)

	h := NewBackup(nil, core.NewHistoryService(db), nil)
	rec := httptest.NewRecorder()
	h.List(rec, newRequest(http.MethodGet, "/backups?limit=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body response.PaginatedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.HasMore)
	assert.Equal(t, "run-2", body.NextCursor)
}

func TestBackupDownload_ServesZipAttachment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backup_2025-03-14_02-00-00.zip")
	require.NoError(t, os.WriteFile(path, []byte("zip-bytes"), 0o640))

	run := model.BackupRun{ID: "run-1", Status: model.RunSuccess, FilePath: path}
	db := &mockDB{}
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&mockRow{scanFunc: historyScan(run)})

	history := core.NewHistoryService(db)
	restore := core.NewRestoreService(zerolog.Nop(), history, dir)

	h := NewBackup(nil, history, restore)
	rec := httptest.NewRecorder()
	r := withChiURLParam(newRequest(http.MethodGet, "/backups/run-1/download", nil), "id", "run-1")

	h.Download(rec, r)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "backup_2025-03-14_02-00-00.zip")
	assert.Equal(t, "zip-bytes", rec.Body.String())
}

func TestBackupDownload_UnexpectedFailureListsBackupDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "backup_2025-03-14_02-00-00.zip"), []byte("zip"), 0o640))

	db := &mockDB{}
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&mockRow{scanFunc: func(dest ...any) error {
			return errors.New("connection reset")
		}})

	history := core.NewHistoryService(db)
	restore := core.NewRestoreService(zerolog.Nop(), history, dir)

	h := NewBackup(nil, history, restore)
	rec := httptest.NewRecorder()
	r := withChiURLParam(newRequest(http.MethodGet, "/backups/run-1/download", nil), "id", "run-1")

	h.Download(rec, r)

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "connection reset")
	listing, ok := body["backup_dir_listing"].([]any)
	require.True(t, ok)
	assert.Contains(t, listing, "backup_2025-03-14_02-00-00.zip")
}

func TestBackupDownload_PrunedArtifact(t *testing.T) {
	dir := t.TempDir()
	run := model.BackupRun{
		ID: "run-1", Status: model.RunSuccess,
		FilePath: filepath.Join(dir, "backup_2025-01-01_02-00-00.zip"),
	}
	db := &mockDB{}
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&mockRow{scanFunc: historyScan(run)})

	history := core.NewHistoryService(db)
	restore := core.NewRestoreService(zerolog.Nop(), history, dir)

	h := NewBackup(nil, history, restore)
	rec := httptest.NewRecorder()
	r := withChiURLParam(newRequest(http.MethodGet, "/backups/run-1/download", nil), "id", "run-1")

	h.Download(rec, r)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decodeErrorResponse(rec)["error"], "no longer on disk")
}
