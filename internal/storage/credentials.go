package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/model"
)

// DriveCredentials configure the Google Drive backend. The service account
// authenticates with its email and private key; uploads land in FolderID.
// OwnerEmail, when set, receives best-effort ownership of uploaded files so
// they count against the organization's quota instead of the service
// account's.
type DriveCredentials struct {
	ServiceAccountEmail string `json:"service_account_email"`
	PrivateKey          string `json:"private_key"`
	FolderID            string `json:"folder_id"`
	OwnerEmail          string `json:"owner_email,omitempty"`
}

// B2Credentials configure the Backblaze B2 backend.
type B2Credentials struct {
	KeyID          string `json:"key_id"`
	ApplicationKey string `json:"application_key"`
	BucketID       string `json:"bucket_id"`
	BucketName     string `json:"bucket_name"`
}

// S3Credentials configure the S3-compatible backend. Endpoint is optional
// and enables R2/MinIO style targets.
type S3Credentials struct {
	Endpoint        string `json:"endpoint,omitempty"`
	Region          string `json:"region"`
	Bucket          string `json:"bucket"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

// Config is the decrypted storage credential blob. Exactly one member is set
// for remote backends; Local needs none.
type Config struct {
	Drive *DriveCredentials `json:"drive,omitempty"`
	B2    *B2Credentials    `json:"b2,omitempty"`
	S3    *S3Credentials    `json:"s3,omitempty"`
}

// ParseConfig decodes a decrypted credential blob.
func ParseConfig(raw []byte) (*Config, error) {
	cfg := &Config{}
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse storage config: %w", err)
	}
	return cfg, nil
}

// Resolve builds the Backend selected by storageType from the credential
// blob. localDir is the canonical backups directory used by the Local
// backend.
func Resolve(ctx context.Context, logger zerolog.Logger, storageType string, cfg *Config, localDir string) (Backend, error) {
	switch storageType {
	case model.StorageLocal:
		return NewLocal(localDir), nil
	case model.StorageGoogleDrive:
		if cfg.Drive == nil {
			return nil, fmt.Errorf("google-drive storage selected but not configured")
		}
		return NewDrive(ctx, logger, *cfg.Drive)
	case model.StorageBackblazeB2:
		if cfg.B2 == nil {
			return nil, fmt.Errorf("backblaze-b2 storage selected but not configured")
		}
		return NewB2(logger, *cfg.B2), nil
	case model.StorageS3:
		if cfg.S3 == nil {
			return nil, fmt.Errorf("s3 storage selected but not configured")
		}
		return NewS3(*cfg.S3), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", storageType)
	}
}
