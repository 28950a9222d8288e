package core

import (
	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"
)

type Services struct {
	Settings *SettingsService
	History  *HistoryService
	Backup   *BackupService
	Restore  *RestoreService
	APIKey   *APIKeyService
}

func NewServices(logger zerolog.Logger, db DB, tc temporalclient.Client, secretsKey []byte, backupDir string) *Services {
	settings := NewSettingsService(db, secretsKey)
	history := NewHistoryService(db)
	return &Services{
		Settings: settings,
		History:  history,
		Backup:   NewBackupService(db, tc, settings, history),
		Restore:  NewRestoreService(logger, history, backupDir),
		APIKey:   NewAPIKeyService(db),
	}
}
