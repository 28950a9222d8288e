package model

import "time"

const (
	HostingSelfHosted     = "self-hosted"
	HostingPlatformHosted = "platform-hosted"
)

const (
	StorageLocal       = "local"
	StorageGoogleDrive = "google-drive"
	StorageBackblazeB2 = "backblaze-b2"
	StorageS3          = "s3"
)

const (
	FrequencyDaily  = "daily"
	FrequencyWeekly = "weekly"
)

// BackupSettings is the singleton per-installation configuration row.
type BackupSettings struct {
	HostingType    string `json:"hosting_type"`
	StorageType    string `json:"storage_type"`
	AutoBackup     bool   `json:"auto_backup"`
	Frequency      string `json:"frequency"`
	BackupTime     string `json:"backup_time"`
	EmailNotify    bool   `json:"email_notify"`
	NotifyEmail    string `json:"notify_email,omitempty"`
	BackupDatabase bool   `json:"backup_database"`
	BackupUploads  bool   `json:"backup_uploads"`
	KeepBackups    int    `json:"keep_backups"`

	// StorageConfigEnc holds the encrypted backend credential blob. It is
	// never serialized; reads go through the masked view.
	StorageConfigEnc string `json:"-"`

	NextRunAt *time.Time `json:"next_run_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
