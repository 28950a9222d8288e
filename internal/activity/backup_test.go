package activity

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/backhaul/internal/storage"
)

// retentionBackend is an in-memory storage.Backend for activity tests.
type retentionBackend struct {
	objects []storage.Object
	deleted []string
	failOn  map[string]error
	listErr error
}

func (b *retentionBackend) Name() string { return "fake" }

func (b *retentionBackend) Upload(ctx context.Context, localPath, remoteName string) (*storage.UploadResult, error) {
	return &storage.UploadResult{ID: remoteName}, nil
}

func (b *retentionBackend) List(ctx context.Context, prefix string) ([]storage.Object, error) {
	if b.listErr != nil {
		return nil, b.listErr
	}
	return b.objects, nil
}

func (b *retentionBackend) Delete(ctx context.Context, id, name string) error {
	if err, ok := b.failOn[name]; ok {
		return err
	}
	b.deleted = append(b.deleted, name)
	return nil
}

func (b *retentionBackend) TestConnection(ctx context.Context) (*storage.ConnectionInfo, error) {
	return &storage.ConnectionInfo{Label: "fake"}, nil
}

func activitiesWithBackend(backend storage.Backend) *BackupActivities {
	a := NewBackupActivities(zerolog.Nop(), nil, nil, nil, nil, "")
	a.resolveFn = func(context.Context) (storage.Backend, error) {
		return backend, nil
	}
	return a
}

func retentionArtifacts(n int) []storage.Object {
	base := time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC)
	objs := make([]storage.Object, 0, n)
	// Newest first, matching the List contract.
	for i := n - 1; i >= 0; i-- {
		created := base.AddDate(0, 0, i)
		name := fmt.Sprintf("backup_%s.zip", created.Format("2006-01-02_15-04-05"))
		objs = append(objs, storage.Object{ID: name, Name: name, CreatedAt: created})
	}
	return objs
}

func TestPruneBackups_DeletesExcess(t *testing.T) {
	backend := &retentionBackend{objects: retentionArtifacts(5)}
	a := activitiesWithBackend(backend)

	result, err := a.PruneBackups(context.Background(), PruneBackupsParams{Keep: 3})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Deleted)
	assert.Zero(t, result.Failures)
	assert.Len(t, backend.deleted, 2)
}

func TestPruneBackups_DeleteFailureDoesNotErrorActivity(t *testing.T) {
	objects := retentionArtifacts(4)
	oldest := objects[len(objects)-1].Name
	backend := &retentionBackend{
		objects: objects,
		failOn:  map[string]error{oldest: errors.New("remote delete refused")},
	}
	a := activitiesWithBackend(backend)

	result, err := a.PruneBackups(context.Background(), PruneBackupsParams{Keep: 2})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 1, result.Failures)
}

func TestPruneBackups_ListFailureErrors(t *testing.T) {
	backend := &retentionBackend{listErr: errors.New("backend unreachable")}
	a := activitiesWithBackend(backend)

	result, err := a.PruneBackups(context.Background(), PruneBackupsParams{Keep: 2})
	require.Error(t, err)
	assert.Nil(t, result)
}
