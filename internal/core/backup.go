package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	enums "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalclient "go.temporal.io/sdk/client"
	"golang.org/x/sync/singleflight"

	"github.com/edvin/backhaul/internal/model"
)

// BackupWorkflowID is the fixed workflow id for orchestration runs. Reusing
// one id makes Temporal itself the cross-process mutex: a second start while
// a run is open is rejected.
const BackupWorkflowID = "backup-run"

// BackupTaskQueue is the queue the worker polls.
const BackupTaskQueue = "backhaul-tasks"

// ErrRunInProgress is returned when a run is requested while one is active.
var ErrRunInProgress = errors.New("a backup run is already in progress")

// BackupService starts runs and reports their status. It never performs
// backup I/O itself; the workflow worker owns that.
type BackupService struct {
	db       DB
	tc       temporalclient.Client
	settings *SettingsService
	history  *HistoryService

	starts singleflight.Group
}

func NewBackupService(db DB, tc temporalclient.Client, settings *SettingsService, history *HistoryService) *BackupService {
	return &BackupService{db: db, tc: tc, settings: settings, history: history}
}

// RunNow starts an orchestration run. Concurrent callers inside this process
// collapse onto one start via singleflight; across processes the fixed
// workflow id rejects the duplicate.
func (s *BackupService) RunNow(ctx context.Context) (string, error) {
	runID, err, _ := s.starts.Do(BackupWorkflowID, func() (any, error) {
		opts := temporalclient.StartWorkflowOptions{
			ID:                                       BackupWorkflowID,
			TaskQueue:                                BackupTaskQueue,
			WorkflowExecutionErrorWhenAlreadyStarted: true,
		}
		run, err := s.tc.ExecuteWorkflow(ctx, opts, "RunBackupWorkflow")
		if err != nil {
			var already *serviceerror.WorkflowExecutionAlreadyStarted
			if errors.As(err, &already) {
				return "", ErrRunInProgress
			}
			return "", fmt.Errorf("start backup workflow: %w", err)
		}
		return run.GetRunID(), nil
	})
	if err != nil {
		return "", err
	}
	return runID.(string), nil
}

// BackupStatus aggregates what an operator dashboard shows: whether a run is
// active, the most recent run, the next scheduled run, and lifetime counts.
type BackupStatus struct {
	Running       bool             `json:"running"`
	StorageType   string           `json:"storage_type"`
	Configured    bool             `json:"configured"`
	Settings      *SettingsView    `json:"settings"`
	LastRun       *model.BackupRun `json:"last_run,omitempty"`
	LatestSuccess *model.BackupRun `json:"latest_success,omitempty"`
	NextRunAt     *time.Time       `json:"next_run_at,omitempty"`
	Counts        RunCounts        `json:"counts"`
}

func (s *BackupService) Status(ctx context.Context) (*BackupStatus, error) {
	status := &BackupStatus{}

	running, err := s.workflowRunning(ctx)
	if err != nil {
		return nil, err
	}
	status.Running = running

	runs, _, err := s.history.List(ctx, 1, "")
	if err != nil {
		return nil, err
	}
	if len(runs) > 0 {
		status.LastRun = &runs[0]
	}

	if status.LatestSuccess, err = s.history.LatestSuccess(ctx); err != nil {
		return nil, err
	}

	counts, err := s.history.Counts(ctx)
	if err != nil {
		return nil, err
	}
	status.Counts = *counts

	view, err := s.settings.GetMasked(ctx)
	if err != nil {
		return nil, err
	}
	status.Settings = view
	status.NextRunAt = view.NextRunAt
	status.StorageType = view.StorageType
	// Local storage needs no credentials; remote backends count as configured
	// once a credential blob has been saved.
	status.Configured = view.StorageType == model.StorageLocal || view.StorageConfigEnc != ""

	return status, nil
}

func (s *BackupService) workflowRunning(ctx context.Context) (bool, error) {
	desc, err := s.tc.DescribeWorkflowExecution(ctx, BackupWorkflowID, "")
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("describe backup workflow: %w", err)
	}
	info := desc.GetWorkflowExecutionInfo()
	return info.GetStatus() == enums.WORKFLOW_EXECUTION_STATUS_RUNNING, nil
}
