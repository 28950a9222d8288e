package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials means the backend rejected the configured
	// credential material itself.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTargetNotFound means the configured folder or bucket does not exist.
	ErrTargetNotFound = errors.New("storage target not found")
	// ErrInsufficientPermission means the credentials are valid but not
	// allowed to reach the configured target.
	ErrInsufficientPermission = errors.New("insufficient permission")
)

// ArtifactPrefix filters remote listings down to backup artifacts.
const ArtifactPrefix = "backup_"

// Object is one stored artifact as reported by a backend listing.
type Object struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// UploadResult identifies an uploaded artifact on the backend.
type UploadResult struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

// ConnectionInfo is the human-readable result of a connection test.
type ConnectionInfo struct {
	Label string `json:"label"`
}

// Backend is the uniform storage contract. Implementations keep their
// backend-specific quirks (Drive ownership transfer, B2 session caching and
// SHA-1 precompute) to themselves; the orchestrator only sees this interface.
//
// Upload must be safe to retry with the same remoteName: Local and S3
// overwrite, B2 collapses to the newest version. Google Drive can create
// duplicate-named files; that platform behavior is documented and accepted.
// List returns artifacts newest-first.
type Backend interface {
	Name() string
	Upload(ctx context.Context, localPath, remoteName string) (*UploadResult, error)
	List(ctx context.Context, prefix string) ([]Object, error)
	Delete(ctx context.Context, id, name string) error
	TestConnection(ctx context.Context) (*ConnectionInfo, error)
}

// UploadError wraps an upload failure with the backend that produced it.
type UploadError struct {
	Backend string
	Err     error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload to %s failed: %v", e.Backend, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
