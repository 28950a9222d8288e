package archive

import (
	"errors"
	"fmt"
	"path/filepath"
)

var (
	// ErrDatabaseDumpFailed marks a failed database dump. The run aborts.
	ErrDatabaseDumpFailed = errors.New("database dump failed")
	// ErrFileCopyFailed marks a failed uploads tree copy. The run aborts.
	ErrFileCopyFailed = errors.New("file copy failed")
	// ErrPackagingFailed marks a failed on-demand zip of a directory artifact.
	ErrPackagingFailed = errors.New("packaging failed")
)

// Artifact is one backup payload on local disk: either a single zip file or
// a directory of the same stem, when compression was unavailable at build
// time.
type Artifact struct {
	Path      string `json:"path"`
	Directory bool   `json:"directory"`
	SizeBytes int64  `json:"size_bytes"`
}

// Name returns the artifact's base name, zip suffix included for archives.
func (a Artifact) Name() string {
	return filepath.Base(a.Path)
}

// MaterializeZip resolves the artifact to a zip file on disk. Archives
// resolve to themselves; directory artifacts are packaged into destPath.
// The second return value reports whether the caller owns a temporary file
// it must clean up.
func (a Artifact) MaterializeZip(destPath string) (string, bool, error) {
	if !a.Directory {
		return a.Path, false, nil
	}
	if err := ZipDir(a.Path, destPath); err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrPackagingFailed, err)
	}
	return destPath, true, nil
}
