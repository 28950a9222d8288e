package storage

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	b2DefaultAPIBase = "https://api.backblazeb2.com"
	// Authorization tokens are valid for 24 hours; refresh a little early.
	b2SessionTTL = 23 * time.Hour
)

// B2Backend talks to the native Backblaze B2 JSON API. The authorization
// session is explicit state with an expiry, refreshed on demand instead of
// per call.
type B2Backend struct {
	logger zerolog.Logger
	client *http.Client
	// apiBase is overridable for tests.
	apiBase string
	creds   B2Credentials

	mu      sync.Mutex
	session *b2Session
	now     func() time.Time
}

type b2Session struct {
	Token     string
	APIURL    string
	AccountID string
	ExpiresAt time.Time
}

type b2ErrorBody struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewB2(logger zerolog.Logger, creds B2Credentials) *B2Backend {
	return &B2Backend{
		logger:  logger.With().Str("component", "b2-backend").Logger(),
		client:  &http.Client{Timeout: 5 * time.Minute},
		apiBase: b2DefaultAPIBase,
		creds:   creds,
		now:     time.Now,
	}
}

func (b *B2Backend) Name() string { return "backblaze-b2" }

// authorize exchanges the application key for a session token, reusing the
// cached session until it expires.
func (b *B2Backend) authorize(ctx context.Context) (*b2Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session != nil && b.now().Before(b.session.ExpiresAt) {
		return b.session, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.apiBase+"/b2api/v2/b2_authorize_account", nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(b.creds.KeyID, b.creds.ApplicationKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authorize account: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, b.classifyStatus(resp)
	}

	var body struct {
		AccountID          string `json:"accountId"`
		AuthorizationToken string `json:"authorizationToken"`
		APIURL             string `json:"apiUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode authorize response: %w", err)
	}

	b.session = &b2Session{
		Token:     body.AuthorizationToken,
		APIURL:    body.APIURL,
		AccountID: body.AccountID,
		ExpiresAt: b.now().Add(b2SessionTTL),
	}
	return b.session, nil
}

// call posts a JSON request to a b2api operation using the cached session.
// An expired token (401 on an authorized call) invalidates the session and
// the call is retried once with a fresh one.
func (b *B2Backend) call(ctx context.Context, op string, payload, out any) error {
	for attempt := 0; attempt < 2; attempt++ {
		session, err := b.authorize(ctx)
		if err != nil {
			return err
		}

		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, session.APIURL+"/b2api/v2/"+op, bytes.NewReader(data))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", session.Token)

		resp, err := b.client.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			resp.Body.Close()
			b.mu.Lock()
			b.session = nil
			b.mu.Unlock()
			continue
		}

		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return b.classifyStatus(resp)
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return fmt.Errorf("%s: session could not be refreshed", op)
}

// Upload streams the file to a B2 upload URL. B2's integrity contract
// requires the SHA-1 of the full content in X-Bz-Content-Sha1, so the file
// is hashed before the transfer. Re-uploading a name adds a newer version
// that shadows the old one, so retries are safe.
func (b *B2Backend) Upload(ctx context.Context, localPath, remoteName string) (*UploadResult, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	h := sha1.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return nil, fmt.Errorf("hash %s: %w", localPath, err)
	}
	contentSha1 := hex.EncodeToString(h.Sum(nil))

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind %s: %w", localPath, err)
	}

	var uploadTarget struct {
		UploadURL          string `json:"uploadUrl"`
		AuthorizationToken string `json:"authorizationToken"`
	}
	if err := b.call(ctx, "b2_get_upload_url", map[string]string{"bucketId": b.creds.BucketID}, &uploadTarget); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadTarget.UploadURL, f)
	if err != nil {
		return nil, err
	}
	req.ContentLength = size
	req.Header.Set("Authorization", uploadTarget.AuthorizationToken)
	req.Header.Set("X-Bz-File-Name", url.PathEscape(remoteName))
	req.Header.Set("Content-Type", "b2/x-auto")
	req.Header.Set("X-Bz-Content-Sha1", contentSha1)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", remoteName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, b.classifyStatus(resp)
	}

	var uploaded struct {
		FileID   string `json:"fileId"`
		FileName string `json:"fileName"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}

	return &UploadResult{ID: uploaded.FileID}, nil
}

func (b *B2Backend) List(ctx context.Context, prefix string) ([]Object, error) {
	var body struct {
		Files []struct {
			FileID          string `json:"fileId"`
			FileName        string `json:"fileName"`
			ContentLength   int64  `json:"contentLength"`
			UploadTimestamp int64  `json:"uploadTimestamp"`
		} `json:"files"`
	}
	err := b.call(ctx, "b2_list_file_names", map[string]any{
		"bucketId":     b.creds.BucketID,
		"prefix":       prefix,
		"maxFileCount": 1000,
	}, &body)
	if err != nil {
		return nil, err
	}

	objects := make([]Object, 0, len(body.Files))
	for _, f := range body.Files {
		objects = append(objects, Object{
			ID:        f.FileID,
			Name:      f.FileName,
			SizeBytes: f.ContentLength,
			CreatedAt: time.UnixMilli(f.UploadTimestamp).UTC(),
		})
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].CreatedAt.After(objects[j].CreatedAt)
	})
	return objects, nil
}

func (b *B2Backend) Delete(ctx context.Context, id, name string) error {
	var out struct{}
	return b.call(ctx, "b2_delete_file_version", map[string]string{
		"fileId":   id,
		"fileName": name,
	}, &out)
}

// TestConnection enumerates the account's buckets and confirms the
// configured bucket id is among them, without transferring any data.
func (b *B2Backend) TestConnection(ctx context.Context) (*ConnectionInfo, error) {
	session, err := b.authorize(ctx)
	if err != nil {
		return nil, err
	}

	var body struct {
		Buckets []struct {
			BucketID   string `json:"bucketId"`
			BucketName string `json:"bucketName"`
		} `json:"buckets"`
	}
	if err := b.call(ctx, "b2_list_buckets", map[string]string{"accountId": session.AccountID}, &body); err != nil {
		return nil, err
	}

	for _, bucket := range body.Buckets {
		if bucket.BucketID == b.creds.BucketID {
			return &ConnectionInfo{Label: fmt.Sprintf("B2 bucket %q", bucket.BucketName)}, nil
		}
	}
	return nil, fmt.Errorf("%w: bucket %s not visible to this application key", ErrTargetNotFound, b.creds.BucketID)
}

// classifyStatus drains an error response and maps it onto the taxonomy:
// 401 is a bad application key, 403 a key without the needed capabilities.
func (b *B2Backend) classifyStatus(resp *http.Response) error {
	var body b2ErrorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &body)
	if body.Message == "" {
		body.Message = string(raw)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: application key rejected: %s", ErrInvalidCredentials, body.Message)
	case http.StatusForbidden:
		return fmt.Errorf("%w: application key lacks required capabilities: %s", ErrInsufficientPermission, body.Message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrTargetNotFound, body.Message)
	}
	return fmt.Errorf("b2 request failed: %d %s: %s", resp.StatusCode, body.Code, body.Message)
}
