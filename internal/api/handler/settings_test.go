package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/backhaul/internal/core"
	"github.com/edvin/backhaul/internal/crypto"
)

func newSettingsHandler(t *testing.T, db *mockDB) *Settings {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return NewSettings(core.NewSettingsService(db, key))
}

func validSettingsPayload() map[string]any {
	return map[string]any{
		"storage_type":    "local",
		"auto_backup":     false,
		"frequency":       "daily",
		"backup_time":     "02:00",
		"backup_database": true,
		"backup_uploads":  true,
		"keep_backups":    5,
	}
}

func TestSettingsUpdate_InvalidJSON(t *testing.T) {
	h := newSettingsHandler(t, &mockDB{})
	rec := httptest.NewRecorder()

	h.Update(rec, newRequestRaw(http.MethodPut, "/backup/settings", "{bad json"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeErrorResponse(rec)["error"], "invalid JSON")
}

func TestSettingsUpdate_UnknownStorageType(t *testing.T) {
	h := newSettingsHandler(t, &mockDB{})
	rec := httptest.NewRecorder()

	payload := validSettingsPayload()
	payload["storage_type"] = "dropbox"
	h.Update(rec, newRequest(http.MethodPut, "/backup/settings", payload))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeErrorResponse(rec)["error"], "validation error")
}

func TestSettingsUpdate_MalformedBackupTime(t *testing.T) {
	h := newSettingsHandler(t, &mockDB{})
	rec := httptest.NewRecorder()

	payload := validSettingsPayload()
	payload["backup_time"] = "2am"
	h.Update(rec, newRequest(http.MethodPut, "/backup/settings", payload))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettingsUpdate_ZeroRetentionRejected(t *testing.T) {
	h := newSettingsHandler(t, &mockDB{})
	rec := httptest.NewRecorder()

	// keep_backups 0 would prune every artifact, including the one the run
	// just uploaded.
	payload := validSettingsPayload()
	payload["keep_backups"] = 0
	h.Update(rec, newRequest(http.MethodPut, "/backup/settings", payload))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeErrorResponse(rec)["error"], "validation error")
}

func TestSettingsUpdate_BadNotifyEmail(t *testing.T) {
	h := newSettingsHandler(t, &mockDB{})
	rec := httptest.NewRecorder()

	payload := validSettingsPayload()
	payload["email_notify"] = true
	payload["notify_email"] = "not-an-address"
	h.Update(rec, newRequest(http.MethodPut, "/backup/settings", payload))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettingsGet_ServesDefaultsOnFreshInstall(t *testing.T) {
	db := &mockDB{}
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }})

	h := newSettingsHandler(t, db)
	rec := httptest.NewRecorder()
	h.Get(rec, newRequest(http.MethodGet, "/backup/settings", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"storage_type":"local"`)
	assert.Contains(t, rec.Body.String(), `"keep_backups":5`)
}
