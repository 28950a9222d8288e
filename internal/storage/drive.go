package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/edvin/backhaul/internal/platform"
)

const driveOwnershipTimeout = 30 * time.Second

// DriveBackend uploads into a Drive folder as a service account. The folder
// is usually shared with the service account rather than owned by it, so
// every call passes the all-drives flags.
type DriveBackend struct {
	logger     zerolog.Logger
	svc        *drive.Service
	folderID   string
	ownerEmail string
}

// NewDrive authenticates with the service account key pair and returns a
// Drive backend. Credential problems surface on the first API call, not
// here, because the OAuth token exchange is lazy.
func NewDrive(ctx context.Context, logger zerolog.Logger, creds DriveCredentials) (*DriveBackend, error) {
	conf := &jwt.Config{
		Email:      creds.ServiceAccountEmail,
		PrivateKey: []byte(creds.PrivateKey),
		Scopes:     []string{drive.DriveScope},
		TokenURL:   google.JWTTokenURL,
	}

	svc, err := drive.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create drive client: %w", err)
	}

	return newDriveWithService(logger, svc, creds.FolderID, creds.OwnerEmail), nil
}

// newDriveWithService wires an existing Drive service; tests use it with a
// fake HTTP backend.
func newDriveWithService(logger zerolog.Logger, svc *drive.Service, folderID, ownerEmail string) *DriveBackend {
	return &DriveBackend{
		logger:     logger.With().Str("component", "drive-backend").Logger(),
		svc:        svc,
		folderID:   folderID,
		ownerEmail: ownerEmail,
	}
}

func (d *DriveBackend) Name() string { return "google-drive" }

// Upload creates the file in the configured folder and then attempts a
// best-effort ownership transfer to the configured owner, so the artifact
// counts against the organization's quota rather than the service
// account's. Drive allows several files with the same name; repeated
// uploads of one remoteName create siblings, which is accepted platform
// behavior.
func (d *DriveBackend) Upload(ctx context.Context, localPath, remoteName string) (*UploadResult, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	created, err := d.svc.Files.Create(&drive.File{
		Name:    remoteName,
		Parents: []string{d.folderID},
	}).Media(f).SupportsAllDrives(true).Fields("id, webViewLink").Context(ctx).Do()
	if err != nil {
		return nil, d.classify(err)
	}

	if d.ownerEmail != "" {
		fileID := created.Id
		platform.BestEffort(d.logger, "drive-ownership-transfer", driveOwnershipTimeout, func(ctx context.Context) error {
			_, err := d.svc.Permissions.Create(fileID, &drive.Permission{
				Type:         "user",
				Role:         "owner",
				EmailAddress: d.ownerEmail,
			}).TransferOwnership(true).SupportsAllDrives(true).Context(ctx).Do()
			return err
		})
	}

	return &UploadResult{ID: created.Id, URL: created.WebViewLink}, nil
}

func (d *DriveBackend) List(ctx context.Context, prefix string) ([]Object, error) {
	query := fmt.Sprintf("'%s' in parents and trashed = false", d.folderID)
	if prefix != "" {
		query += fmt.Sprintf(" and name contains '%s'", prefix)
	}

	resp, err := d.svc.Files.List().
		Q(query).
		Fields("files(id, name, size, createdTime)").
		OrderBy("createdTime desc").
		PageSize(1000).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).Do()
	if err != nil {
		return nil, d.classify(err)
	}

	objects := make([]Object, 0, len(resp.Files))
	for _, f := range resp.Files {
		createdAt, _ := time.Parse(time.RFC3339, f.CreatedTime)
		objects = append(objects, Object{
			ID:        f.Id,
			Name:      f.Name,
			SizeBytes: f.Size,
			CreatedAt: createdAt,
		})
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].CreatedAt.After(objects[j].CreatedAt)
	})
	return objects, nil
}

func (d *DriveBackend) Delete(ctx context.Context, id, name string) error {
	if err := d.svc.Files.Delete(id).SupportsAllDrives(true).Context(ctx).Do(); err != nil {
		return d.classify(err)
	}
	return nil
}

// TestConnection fetches the configured folder's metadata. The three
// failure classes an operator can self-correct get distinct messages.
func (d *DriveBackend) TestConnection(ctx context.Context) (*ConnectionInfo, error) {
	folder, err := d.svc.Files.Get(d.folderID).
		Fields("id, name").
		SupportsAllDrives(true).
		Context(ctx).Do()
	if err != nil {
		return nil, d.classify(err)
	}
	return &ConnectionInfo{Label: fmt.Sprintf("Google Drive folder %q", folder.Name)}, nil
}

// classify maps Drive API failures onto the backend error taxonomy so the
// API layer can tell an operator exactly what to fix.
func (d *DriveBackend) classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return fmt.Errorf("%w: backup folder not found", ErrTargetNotFound)
		case http.StatusForbidden:
			return fmt.Errorf("%w: folder is not shared with the service account", ErrInsufficientPermission)
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: service account key rejected", ErrInvalidCredentials)
		}
		return err
	}

	// Token exchange failures (malformed private key, revoked account) never
	// reach the Drive API and surface as oauth errors instead.
	msg := err.Error()
	if strings.Contains(msg, "oauth2") || strings.Contains(msg, "private key") || strings.Contains(msg, "invalid_grant") {
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	return err
}
