package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

type fakeDriveFile struct {
	id, name, createdTime string
	size                  int64
}

// fakeDrive serves the handful of Drive v3 endpoints the backend calls.
type fakeDrive struct {
	srv             *httptest.Server
	folderID        string
	folderName      string
	files           []fakeDriveFile
	permissionGrant []string // file ids ownership transfer was requested for
	folderStatus    int      // non-zero forces folder lookups to fail
	nextID          int
}

func newFakeDrive(t *testing.T) *fakeDrive {
	f := &fakeDrive{folderID: "folder-1", folderName: "Site Backups"}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeDrive) backend(t *testing.T, ownerEmail string) *DriveBackend {
	svc, err := drive.NewService(context.Background(),
		option.WithEndpoint(f.srv.URL+"/"),
		option.WithoutAuthentication())
	require.NoError(t, err)
	return newDriveWithService(zerolog.Nop(), svc, f.folderID, ownerEmail)
}

func (f *fakeDrive) handle(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	switch {
	// Media uploads go through the separate /upload/drive/v3/files path.
	case (path == "files" || strings.HasSuffix(path, "/files")) && r.Method == http.MethodPost:
		f.nextID++
		file := fakeDriveFile{
			id:          fmt.Sprintf("file-%d", f.nextID),
			name:        r.URL.Query().Get("uploadType"), // placeholder, replaced below
			createdTime: fmt.Sprintf("2025-03-%02dT02:00:00Z", f.nextID),
			size:        9,
		}
		// The multipart body carries the metadata part first; pull the name
		// out without fully modelling the encoding.
		body, _ := io.ReadAll(r.Body)
		if i := strings.Index(string(body), `"name":"`); i >= 0 {
			rest := string(body[i+len(`"name":"`):])
			file.name = rest[:strings.Index(rest, `"`)]
		}
		f.files = append(f.files, file)
		json.NewEncoder(w).Encode(map[string]string{
			"id":          file.id,
			"webViewLink": "https://drive.google.com/file/d/" + file.id,
		})

	case path == "files" && r.Method == http.MethodGet:
		files := []map[string]string{}
		for _, file := range f.files {
			files = append(files, map[string]string{
				"id":          file.id,
				"name":        file.name,
				"size":        fmt.Sprintf("%d", file.size),
				"createdTime": file.createdTime,
			})
		}
		json.NewEncoder(w).Encode(map[string]any{"files": files})

	case path == "files/"+f.folderID && r.Method == http.MethodGet:
		if f.folderStatus != 0 {
			f.writeError(w, f.folderStatus)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": f.folderID, "name": f.folderName})

	case strings.HasPrefix(path, "files/") && strings.HasSuffix(path, "/permissions") && r.Method == http.MethodPost:
		id := strings.TrimSuffix(strings.TrimPrefix(path, "files/"), "/permissions")
		f.permissionGrant = append(f.permissionGrant, id)
		json.NewEncoder(w).Encode(map[string]string{"id": "perm-1"})

	case strings.HasPrefix(path, "files/") && r.Method == http.MethodDelete:
		id := strings.TrimPrefix(path, "files/")
		kept := f.files[:0]
		for _, file := range f.files {
			if file.id != id {
				kept = append(kept, file)
			}
		}
		f.files = kept
		w.WriteHeader(http.StatusNoContent)

	default:
		f.writeError(w, http.StatusNotFound)
	}
}

func (f *fakeDrive) writeError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": status, "message": http.StatusText(status)},
	})
}

func driveTestArtifact(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "backup_2025-03-14_02-00-00.zip")
	require.NoError(t, os.WriteFile(path, []byte("zip-bytes"), 0o640))
	return path
}

func TestDrive_UploadTransfersOwnership(t *testing.T) {
	fake := newFakeDrive(t)
	backend := fake.backend(t, "owner@example.com")

	res, err := backend.Upload(context.Background(), driveTestArtifact(t), "backup_2025-03-14_02-00-00.zip")
	require.NoError(t, err)
	assert.Equal(t, "file-1", res.ID)
	assert.Contains(t, res.URL, "file-1")
	assert.Equal(t, []string{"file-1"}, fake.permissionGrant)
}

func TestDrive_UploadWithoutOwnerSkipsTransfer(t *testing.T) {
	fake := newFakeDrive(t)
	backend := fake.backend(t, "")

	_, err := backend.Upload(context.Background(), driveTestArtifact(t), "backup_2025-03-14_02-00-00.zip")
	require.NoError(t, err)
	assert.Empty(t, fake.permissionGrant)
}

func TestDrive_RepeatedUploadsCreateSiblings(t *testing.T) {
	fake := newFakeDrive(t)
	backend := fake.backend(t, "")
	ctx := context.Background()
	src := driveTestArtifact(t)

	_, err := backend.Upload(ctx, src, "backup_2025-03-14_02-00-00.zip")
	require.NoError(t, err)
	_, err = backend.Upload(ctx, src, "backup_2025-03-14_02-00-00.zip")
	require.NoError(t, err)

	objects, err := backend.List(ctx, ArtifactPrefix)
	require.NoError(t, err)
	assert.Len(t, objects, 2, "Drive keeps same-name files as separate siblings")
}

func TestDrive_ListNewestFirst(t *testing.T) {
	fake := newFakeDrive(t)
	fake.files = []fakeDriveFile{
		{id: "f-old", name: "backup_2025-03-01_02-00-00.zip", createdTime: "2025-03-01T02:00:00Z", size: 10},
		{id: "f-new", name: "backup_2025-03-14_02-00-00.zip", createdTime: "2025-03-14T02:00:00Z", size: 20},
	}
	backend := fake.backend(t, "")

	objects, err := backend.List(context.Background(), ArtifactPrefix)
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "f-new", objects[0].ID)
	assert.Equal(t, int64(20), objects[0].SizeBytes)
	assert.Equal(t, "f-old", objects[1].ID)
}

func TestDrive_DeleteRemovesFile(t *testing.T) {
	fake := newFakeDrive(t)
	fake.files = []fakeDriveFile{
		{id: "f-1", name: "backup_2025-03-01_02-00-00.zip", createdTime: "2025-03-01T02:00:00Z"},
	}
	backend := fake.backend(t, "")

	require.NoError(t, backend.Delete(context.Background(), "f-1", "backup_2025-03-01_02-00-00.zip"))
	assert.Empty(t, fake.files)
}

func TestDrive_TestConnection(t *testing.T) {
	fake := newFakeDrive(t)
	info, err := fake.backend(t, "").TestConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `Google Drive folder "Site Backups"`, info.Label)
}

func TestDrive_FolderMissingClassified(t *testing.T) {
	fake := newFakeDrive(t)
	fake.folderStatus = http.StatusNotFound

	_, err := fake.backend(t, "").TestConnection(context.Background())
	require.ErrorIs(t, err, ErrTargetNotFound)
}

func TestDrive_FolderNotSharedClassified(t *testing.T) {
	fake := newFakeDrive(t)
	fake.folderStatus = http.StatusForbidden

	_, err := fake.backend(t, "").TestConnection(context.Background())
	require.ErrorIs(t, err, ErrInsufficientPermission)
}

func TestDrive_OAuthFailureClassified(t *testing.T) {
	backend := &DriveBackend{}
	err := backend.classify(fmt.Errorf("oauth2: cannot fetch token: invalid_grant"))
	require.ErrorIs(t, err, ErrInvalidCredentials)
}
