package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Backend stores artifacts in an S3-compatible bucket. A custom endpoint
// switches the client to path-style addressing for R2/MinIO-style targets.
type S3Backend struct {
	client *s3.Client
	bucket string
}

func NewS3(creds S3Credentials) *S3Backend {
	cfg := aws.Config{
		Region:      creds.Region,
		Credentials: credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, ""),
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if creds.Endpoint != "" {
			o.BaseEndpoint = aws.String(creds.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Backend{client: client, bucket: creds.Bucket}
}

func (s *S3Backend) Name() string { return "s3" }

// Upload puts the object under remoteName. S3 puts are last-writer-wins, so
// retrying the same name overwrites cleanly.
func (s *S3Backend) Upload(ctx context.Context, localPath, remoteName string) (*UploadResult, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(remoteName),
		Body:   f,
	})
	if err != nil {
		return nil, s.classify(err)
	}

	return &UploadResult{ID: remoteName}, nil
}

func (s *S3Backend) List(ctx context.Context, prefix string) ([]Object, error) {
	resp, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, s.classify(err)
	}

	objects := make([]Object, 0, len(resp.Contents))
	for _, obj := range resp.Contents {
		var createdAt time.Time
		if obj.LastModified != nil {
			createdAt = obj.LastModified.UTC()
		}
		objects = append(objects, Object{
			ID:        aws.ToString(obj.Key),
			Name:      aws.ToString(obj.Key),
			SizeBytes: aws.ToInt64(obj.Size),
			CreatedAt: createdAt,
		})
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].CreatedAt.After(objects[j].CreatedAt)
	})
	return objects, nil
}

func (s *S3Backend) Delete(ctx context.Context, id, name string) error {
	if name == "" {
		name = id
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return s.classify(err)
	}
	return nil
}

func (s *S3Backend) TestConnection(ctx context.Context) (*ConnectionInfo, error) {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return nil, s.classify(err)
	}
	return &ConnectionInfo{Label: fmt.Sprintf("S3 bucket %q", s.bucket)}, nil
}

func (s *S3Backend) classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket", "NotFound":
			return fmt.Errorf("%w: bucket %s", ErrTargetNotFound, s.bucket)
		case "AccessDenied", "Forbidden":
			return fmt.Errorf("%w: access to bucket %s denied", ErrInsufficientPermission, s.bucket)
		case "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%w: %s", ErrInvalidCredentials, apiErr.ErrorCode())
		}
	}
	if strings.Contains(err.Error(), "InvalidAccessKeyId") {
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	return err
}
