package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/backhaul/internal/model"
	"github.com/edvin/backhaul/internal/platform"
)

// HistoryService records and reads the append-only backup run log. History
// rows are never updated or deleted; retention pruning applies to artifacts
// only.
type HistoryService struct {
	db DB
}

func NewHistoryService(db DB) *HistoryService {
	return &HistoryService{db: db}
}

const historyColumns = `id, status, size_bytes, duration_ms, file_path, message, created_at`

// Record appends one run to the history. An empty ID is assigned.
func (s *HistoryService) Record(ctx context.Context, run *model.BackupRun) error {
	if run.ID == "" {
		run.ID = platform.NewID()
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO backup_history (id, status, size_bytes, duration_ms, file_path, message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 RETURNING created_at`,
		run.ID, run.Status, run.SizeBytes, run.DurationMs, run.FilePath, run.Message,
	).Scan(&run.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert backup run: %w", err)
	}
	return nil
}

func (s *HistoryService) GetByID(ctx context.Context, id string) (*model.BackupRun, error) {
	var run model.BackupRun
	err := s.db.QueryRow(ctx,
		`SELECT `+historyColumns+` FROM backup_history WHERE id = $1`, id,
	).Scan(&run.ID, &run.Status, &run.SizeBytes, &run.DurationMs, &run.FilePath, &run.Message, &run.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get backup run %s: %w", id, err)
	}
	return &run, nil
}

// List returns runs newest-first. The cursor is the id of the last row of
// the previous page.
func (s *HistoryService) List(ctx context.Context, limit int, cursor string) ([]model.BackupRun, bool, error) {
	query := `SELECT ` + historyColumns + ` FROM backup_history`
	args := []any{}
	argIdx := 1

	if cursor != "" {
		query += fmt.Sprintf(` WHERE (created_at, id) < (SELECT created_at, id FROM backup_history WHERE id = $%d)`, argIdx)
		args = append(args, cursor)
		argIdx++
	}

	query += ` ORDER BY created_at DESC, id DESC`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list backup runs: %w", err)
	}
	defer rows.Close()

	var runs []model.BackupRun
	for rows.Next() {
		var run model.BackupRun
		if err := rows.Scan(&run.ID, &run.Status, &run.SizeBytes, &run.DurationMs,
			&run.FilePath, &run.Message, &run.CreatedAt); err != nil {
			return nil, false, fmt.Errorf("scan backup run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate backup runs: %w", err)
	}

	hasMore := len(runs) > limit
	if hasMore {
		runs = runs[:limit]
	}
	return runs, hasMore, nil
}

// LatestSuccess returns the newest successful run, or nil if none exists.
func (s *HistoryService) LatestSuccess(ctx context.Context) (*model.BackupRun, error) {
	var run model.BackupRun
	err := s.db.QueryRow(ctx,
		`SELECT `+historyColumns+` FROM backup_history
		 WHERE status = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		model.RunSuccess,
	).Scan(&run.ID, &run.Status, &run.SizeBytes, &run.DurationMs, &run.FilePath, &run.Message, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest successful run: %w", err)
	}
	return &run, nil
}

// RunCounts is the lifetime tally of recorded runs.
type RunCounts struct {
	Total     int64 `json:"total"`
	Successes int64 `json:"successes"`
	Failures  int64 `json:"failures"`
}

func (s *HistoryService) Counts(ctx context.Context) (*RunCounts, error) {
	var c RunCounts
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = $1),
		        COUNT(*) FILTER (WHERE status = $2)
		 FROM backup_history`,
		model.RunSuccess, model.RunFailed,
	).Scan(&c.Total, &c.Successes, &c.Failures)
	if err != nil {
		return nil, fmt.Errorf("count backup runs: %w", err)
	}
	return &c, nil
}
