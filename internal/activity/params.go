package activity

// BackupPlan is the run plan the workflow carries between activities. It
// deliberately holds no credentials; those stay sealed in the database and
// are resolved inside the activity that needs them, so they never enter
// workflow history.
type BackupPlan struct {
	StorageType     string `json:"storage_type"`
	IncludeDatabase bool   `json:"include_database"`
	IncludeUploads  bool   `json:"include_uploads"`
	KeepBackups     int    `json:"keep_backups"`
	EmailNotify     bool   `json:"email_notify"`
	NotifyEmail     string `json:"notify_email,omitempty"`
}

// BuildResult describes the artifact BuildArchive produced on local disk.
type BuildResult struct {
	Path      string `json:"path"`
	Directory bool   `json:"directory"`
	SizeBytes int64  `json:"size_bytes"`
}

type UploadArtifactParams struct {
	Path      string `json:"path"`
	Directory bool   `json:"directory"`
}

type UploadArtifactResult struct {
	RemoteID   string `json:"remote_id"`
	RemoteName string `json:"remote_name"`
	URL        string `json:"url,omitempty"`
}

type PruneBackupsParams struct {
	Keep int `json:"keep"`
}

type PruneBackupsResult struct {
	Deleted  int `json:"deleted"`
	Failures int `json:"failures"`
}

type RecordBackupHistoryParams struct {
	Status     string  `json:"status"`
	SizeBytes  int64   `json:"size_bytes"`
	DurationMs int64   `json:"duration_ms"`
	FilePath   string  `json:"file_path,omitempty"`
	Message    *string `json:"message,omitempty"`
}

type SendBackupNotificationParams struct {
	To         string `json:"to"`
	Status     string `json:"status"`
	SizeBytes  int64  `json:"size_bytes"`
	DurationMs int64  `json:"duration_ms"`
	Message    string `json:"message,omitempty"`
}
