// Package storage fetches raw image bytes from object storage given the
// logical path recorded in the catalog. Decoding is the caller's concern.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kozaktomas/photo-quality/internal/config"
)

// ErrSourceNotFound is returned when no object exists at the given path.
var ErrSourceNotFound = errors.New("source image not found")

// Source provides the raw bytes of an image by its logical path.
type Source interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// MinioSource reads image objects from a MinIO/S3 bucket.
type MinioSource struct {
	client *minio.Client
	bucket string
}

// NewMinioSource connects to the configured object store.
func NewMinioSource(cfg *config.StorageConfig) (*MinioSource, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio connection: %w", err)
	}
	return &MinioSource{client: client, bucket: cfg.Bucket}, nil
}

// Fetch downloads the object at path and returns its bytes. A missing
// object maps to ErrSourceNotFound so callers can treat it as a per-image
// failure rather than an infrastructure error.
func (s *MinioSource) Fetch(ctx context.Context, path string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", path, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return nil, fmt.Errorf("read object %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrSourceNotFound, path)
	}
	return data, nil
}
