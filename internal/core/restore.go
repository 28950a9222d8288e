package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/archive"
	"github.com/edvin/backhaul/internal/model"
	"github.com/edvin/backhaul/internal/platform"
)

// ErrArtifactGone means the history row exists but its artifact no longer
// does, typically because retention pruning removed it.
var ErrArtifactGone = errors.New("backup artifact is no longer on disk")

const restoreTempPrefix = "backhaul-restore-"

// RestoreService resolves history rows to downloadable zip files. Directory
// artifacts are packaged on the fly into the system temp directory.
type RestoreService struct {
	logger    zerolog.Logger
	history   *HistoryService
	backupDir string
}

func NewRestoreService(logger zerolog.Logger, history *HistoryService, backupDir string) *RestoreService {
	return &RestoreService{
		logger:    logger.With().Str("component", "restore").Logger(),
		history:   history,
		backupDir: backupDir,
	}
}

// ResolveDownload locates the artifact for a recorded run and returns a zip
// path to serve. cleanup removes any temp file produced for a directory
// artifact; it is non-nil only in that case and safe to defer.
func (s *RestoreService) ResolveDownload(ctx context.Context, id string) (string, func(), error) {
	run, err := s.history.GetByID(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if run.Status != model.RunSuccess || run.FilePath == "" {
		return "", nil, fmt.Errorf("%w: run %s has no artifact", ErrArtifactGone, id)
	}

	artifact, err := s.locateArtifact(run)
	if err != nil {
		return "", nil, err
	}

	dest := filepath.Join(os.TempDir(), restoreTempPrefix+platform.NewID()+".zip")
	path, temp, err := artifact.MaterializeZip(dest)
	if err != nil {
		return "", nil, err
	}

	var cleanup func()
	if temp {
		cleanup = func() {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				s.logger.Warn().Err(err).Str("path", path).Msg("failed to remove restore temp file")
			}
		}
	}
	return path, cleanup, nil
}

// locateArtifact tries the recorded path and then the same base name under
// the current backups directory, covering installations whose backup
// directory moved since the run. A missing .zip also checks for the
// directory artifact of the same stem.
func (s *RestoreService) locateArtifact(run *model.BackupRun) (*archive.Artifact, error) {
	roots := []string{run.FilePath}
	if base := filepath.Base(run.FilePath); base != run.FilePath {
		roots = append(roots, filepath.Join(s.backupDir, base))
	}
	var candidates []string
	for _, path := range roots {
		candidates = append(candidates, path)
		if stem := strings.TrimSuffix(path, ".zip"); stem != path {
			candidates = append(candidates, stem)
		}
	}

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		return &archive.Artifact{
			Path:      path,
			Directory: info.IsDir(),
			SizeBytes: run.SizeBytes,
		}, nil
	}

	s.logger.Warn().Strs("entries", s.BackupDirListing()).Str("dir", s.backupDir).
		Str("recorded_path", run.FilePath).Msg("artifact missing from backup directory")
	return nil, fmt.Errorf("%w: %s", ErrArtifactGone, run.FilePath)
}

// BackupDirListing names what is actually in the backups directory. Download
// failure responses carry it, because "file not found" alone is useless in a
// support ticket. An unreadable directory yields an empty list.
func (s *RestoreService) BackupDirListing() []string {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		s.logger.Warn().Err(err).Str("dir", s.backupDir).Msg("backup directory unreadable")
		return []string{}
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// SweepRestoreTemp removes restore temp files older than maxAge. The worker
// runs this at startup and periodically, catching files orphaned by a crash
// mid-download.
func SweepRestoreTemp(logger zerolog.Logger, maxAge time.Duration) {
	entries, err := os.ReadDir(os.TempDir())
	if err != nil {
		logger.Warn().Err(err).Msg("temp directory unreadable during sweep")
		return
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), restoreTempPrefix) || !strings.HasSuffix(entry.Name(), ".zip") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(os.TempDir(), entry.Name())
		if err := os.Remove(path); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("failed to sweep restore temp file")
			continue
		}
		logger.Info().Str("path", path).Msg("swept orphaned restore temp file")
	}
}
