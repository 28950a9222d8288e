package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/backhaul/internal/activity"
	"github.com/edvin/backhaul/internal/model"
)

// RunBackupWorkflow orchestrates one backup run: build the artifact, upload
// it, prune old backups, record the outcome, notify. Exactly one history row
// is written per run, whatever happens after the plan was read. Pruning and
// notification failures never fail the run.
func RunBackupWorkflow(ctx workflow.Context) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    3,
			InitialInterval:    5 * time.Second,
			MaximumInterval:    1 * time.Minute,
			BackoffCoefficient: 2.0,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	// Build and upload fail the run on first error instead of retrying: a
	// second pg_dump doubles the load on the live database, and a second
	// upload of a multi-gigabyte artifact against bad credentials just burns
	// bandwidth. The operator re-triggers once the cause is fixed.
	singleAttemptCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	logger := workflow.GetLogger(ctx)

	startedAt := workflow.Now(ctx)

	var plan activity.BackupPlan
	if err := workflow.ExecuteActivity(ctx, "GetBackupPlan").Get(ctx, &plan); err != nil {
		return err
	}

	var build activity.BuildResult
	if err := workflow.ExecuteActivity(singleAttemptCtx, "BuildArchive", plan).Get(ctx, &build); err != nil {
		recordFailure(ctx, plan, startedAt, 0, err)
		return err
	}

	var upload activity.UploadArtifactResult
	err := workflow.ExecuteActivity(singleAttemptCtx, "UploadArtifact", activity.UploadArtifactParams{
		Path:      build.Path,
		Directory: build.Directory,
	}).Get(ctx, &upload)
	if err != nil {
		// The artifact stays on disk; a later manual upload can still use it.
		recordFailure(ctx, plan, startedAt, build.SizeBytes, err)
		return err
	}

	var prune activity.PruneBackupsResult
	err = workflow.ExecuteActivity(ctx, "PruneBackups", activity.PruneBackupsParams{
		Keep: plan.KeepBackups,
	}).Get(ctx, &prune)
	if err != nil {
		logger.Warn("pruning failed, run continues", "error", err)
	}

	durationMs := workflow.Now(ctx).Sub(startedAt).Milliseconds()
	err = workflow.ExecuteActivity(ctx, "RecordBackupHistory", activity.RecordBackupHistoryParams{
		Status:     model.RunSuccess,
		SizeBytes:  build.SizeBytes,
		DurationMs: durationMs,
		FilePath:   build.Path,
	}).Get(ctx, nil)
	if err != nil {
		return err
	}

	// An empty NotifyEmail falls through to the worker's admin address.
	if plan.EmailNotify {
		err = workflow.ExecuteActivity(ctx, "SendBackupNotification", activity.SendBackupNotificationParams{
			To:         plan.NotifyEmail,
			Status:     model.RunSuccess,
			SizeBytes:  build.SizeBytes,
			DurationMs: durationMs,
		}).Get(ctx, nil)
		if err != nil {
			logger.Warn("run report mail failed", "error", err)
		}
	}

	return nil
}

// recordFailure writes the failed history row and tells the operator. Its
// own errors are swallowed; the build or upload error matters more.
func recordFailure(ctx workflow.Context, plan activity.BackupPlan, startedAt time.Time, sizeBytes int64, cause error) {
	logger := workflow.GetLogger(ctx)
	msg := cause.Error()
	durationMs := workflow.Now(ctx).Sub(startedAt).Milliseconds()

	err := workflow.ExecuteActivity(ctx, "RecordBackupHistory", activity.RecordBackupHistoryParams{
		Status:     model.RunFailed,
		SizeBytes:  sizeBytes,
		DurationMs: durationMs,
		Message:    &msg,
	}).Get(ctx, nil)
	if err != nil {
		logger.Error("failed run could not be recorded", "error", err)
	}

	if plan.EmailNotify {
		err = workflow.ExecuteActivity(ctx, "SendBackupNotification", activity.SendBackupNotificationParams{
			To:         plan.NotifyEmail,
			Status:     model.RunFailed,
			SizeBytes:  sizeBytes,
			DurationMs: durationMs,
			Message:    msg,
		}).Get(ctx, nil)
		if err != nil {
			logger.Warn("run report mail failed", "error", err)
		}
	}
}
