package request

import (
	"github.com/edvin/backhaul/internal/storage"
)

// SaveBackupSettings is the full-replace settings payload. Secrets inside
// StorageConfig may be masked placeholders, which resolve to the stored
// values on save.
type SaveBackupSettings struct {
	HostingType    string         `json:"hosting_type" validate:"omitempty,oneof=self-hosted platform-hosted"`
	StorageType    string         `json:"storage_type" validate:"required,oneof=local google-drive backblaze-b2 s3"`
	AutoBackup     bool           `json:"auto_backup"`
	Frequency      string         `json:"frequency" validate:"required,oneof=daily weekly"`
	BackupTime     string         `json:"backup_time" validate:"required,hhmm"`
	EmailNotify    bool           `json:"email_notify"`
	NotifyEmail    string         `json:"notify_email" validate:"omitempty,email"`
	BackupDatabase bool           `json:"backup_database"`
	BackupUploads  bool           `json:"backup_uploads"`
	KeepBackups    int            `json:"keep_backups" validate:"min=1,max=365"`
	StorageConfig  storage.Config `json:"storage_config"`
}

// TestStorageConnection validates a backend configuration without saving it.
type TestStorageConnection struct {
	StorageType   string         `json:"storage_type" validate:"required,oneof=local google-drive backblaze-b2 s3"`
	StorageConfig storage.Config `json:"storage_config"`
}

// CreateAPIKey names a new API key.
type CreateAPIKey struct {
	Name string `json:"name" validate:"required,min=1,max=64"`
}
