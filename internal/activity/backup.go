package activity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/archive"
	"github.com/edvin/backhaul/internal/core"
	"github.com/edvin/backhaul/internal/mail"
	"github.com/edvin/backhaul/internal/metrics"
	"github.com/edvin/backhaul/internal/model"
	"github.com/edvin/backhaul/internal/platform"
	"github.com/edvin/backhaul/internal/storage"
)

// BackupActivities owns all I/O of an orchestration run: building the
// artifact, talking to the storage backend, and recording history. The
// workflow only sequences these.
type BackupActivities struct {
	logger    zerolog.Logger
	builder   *archive.Builder
	settings  *core.SettingsService
	history   *core.HistoryService
	mailer    *mail.Mailer
	backupDir string

	// resolveFn overrides backend resolution in tests.
	resolveFn func(context.Context) (storage.Backend, error)
}

func NewBackupActivities(logger zerolog.Logger, builder *archive.Builder, settings *core.SettingsService, history *core.HistoryService, mailer *mail.Mailer, backupDir string) *BackupActivities {
	return &BackupActivities{
		logger:    logger.With().Str("component", "backup-activities").Logger(),
		builder:   builder,
		settings:  settings,
		history:   history,
		mailer:    mailer,
		backupDir: backupDir,
	}
}

// GetBackupPlan snapshots the settings into the non-secret plan the workflow
// carries for the rest of the run. Later settings edits do not affect a run
// already in flight.
func (a *BackupActivities) GetBackupPlan(ctx context.Context) (*BackupPlan, error) {
	st, err := a.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	return &BackupPlan{
		StorageType:     st.StorageType,
		IncludeDatabase: st.BackupDatabase,
		IncludeUploads:  st.BackupUploads,
		KeepBackups:     st.KeepBackups,
		EmailNotify:     st.EmailNotify,
		NotifyEmail:     st.NotifyEmail,
	}, nil
}

func (a *BackupActivities) BuildArchive(ctx context.Context, plan BackupPlan) (*BuildResult, error) {
	artifact, err := a.builder.Build(ctx, archive.BuildOptions{
		IncludeDatabase: plan.IncludeDatabase,
		IncludeUploads:  plan.IncludeUploads,
	})
	if err != nil {
		return nil, err
	}

	metrics.ArtifactSize.Observe(float64(artifact.SizeBytes))
	return &BuildResult{
		Path:      artifact.Path,
		Directory: artifact.Directory,
		SizeBytes: artifact.SizeBytes,
	}, nil
}

// UploadArtifact sends the artifact to the configured backend. Directory
// artifacts are packaged into a temp zip for remote backends; the local
// backend takes them as-is.
func (a *BackupActivities) UploadArtifact(ctx context.Context, params UploadArtifactParams) (*UploadArtifactResult, error) {
	backend, err := a.resolveBackend(ctx)
	if err != nil {
		return nil, err
	}

	artifact := archive.Artifact{Path: params.Path, Directory: params.Directory}
	path := params.Path
	name := artifact.Name()

	if params.Directory && backend.Name() != "local" {
		dest := filepath.Join(os.TempDir(), "backhaul-upload-"+platform.NewID()+".zip")
		zipped, temp, err := artifact.MaterializeZip(dest)
		if err != nil {
			return nil, err
		}
		if temp {
			defer os.Remove(zipped)
		}
		path = zipped
		name += ".zip"
	}

	res, err := backend.Upload(ctx, path, name)
	if err != nil {
		return nil, &storage.UploadError{Backend: backend.Name(), Err: err}
	}

	a.logger.Info().Str("backend", backend.Name()).Str("name", name).Msg("artifact uploaded")
	return &UploadArtifactResult{RemoteID: res.ID, RemoteName: name, URL: res.URL}, nil
}

// PruneBackups applies the retention limit on the configured backend. Delete
// failures are reported but do not error the activity; the next run retries
// them naturally.
func (a *BackupActivities) PruneBackups(ctx context.Context, params PruneBackupsParams) (*PruneBackupsResult, error) {
	backend, err := a.resolveBackend(ctx)
	if err != nil {
		return nil, err
	}

	deleted, pruneErr := storage.Prune(ctx, a.logger, backend, params.Keep)
	metrics.PrunedBackups.Add(float64(deleted))

	result := &PruneBackupsResult{Deleted: deleted}
	if pruneErr != nil {
		var pe *storage.PruneError
		if !errors.As(pruneErr, &pe) {
			// Listing failed outright; nothing was pruned.
			return nil, pruneErr
		}
		result.Failures = pe.Failures
		a.logger.Warn().Err(pe.Last).Int("failures", pe.Failures).Msg("pruning finished with failures")
	}
	return result, nil
}

// RecordBackupHistory appends the run outcome. The workflow calls this
// exactly once per run, success or failure.
func (a *BackupActivities) RecordBackupHistory(ctx context.Context, params RecordBackupHistoryParams) error {
	run := &model.BackupRun{
		Status:     params.Status,
		SizeBytes:  params.SizeBytes,
		DurationMs: params.DurationMs,
		FilePath:   params.FilePath,
		Message:    params.Message,
	}
	if err := a.history.Record(ctx, run); err != nil {
		return err
	}

	metrics.BackupRuns.WithLabelValues(params.Status).Inc()
	metrics.BackupDuration.Observe(float64(params.DurationMs) / 1000)
	return nil
}

func (a *BackupActivities) SendBackupNotification(ctx context.Context, params SendBackupNotificationParams) error {
	if !a.mailer.Enabled() {
		a.logger.Debug().Msg("smtp not configured, skipping run report")
		return nil
	}

	st, err := a.settings.Get(ctx)
	if err != nil {
		return err
	}

	return a.mailer.SendRunReport(ctx, params.To, mail.RunReport{
		Status:      params.Status,
		StorageType: st.StorageType,
		SizeBytes:   params.SizeBytes,
		Duration:    time.Duration(params.DurationMs) * time.Millisecond,
		Message:     params.Message,
		FinishedAt:  time.Now(),
	})
}

// resolveBackend reads the current settings, unseals the credentials, and
// builds the selected backend.
func (a *BackupActivities) resolveBackend(ctx context.Context) (storage.Backend, error) {
	if a.resolveFn != nil {
		return a.resolveFn(ctx)
	}
	st, err := a.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := a.settings.StorageConfig(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("resolve storage credentials: %w", err)
	}
	return storage.Resolve(ctx, a.logger, st.StorageType, cfg, a.backupDir)
}
