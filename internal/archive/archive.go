// Package archive stores raw uploads in S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kiranshivaraju/threatlens/internal/config"
	"github.com/kiranshivaraju/threatlens/pkg/models"
)

// Archiver writes one object.
type Archiver interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Store is a MinIO-backed Archiver.
type Store struct {
	client *minio.Client
	bucket string
}

// New connects to the endpoint and creates the bucket when it does not exist.
func New(ctx context.Context, cfg config.ArchiveConfig) (*Store, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", cfg.Bucket, err)
		}
	}

	return &Store{client: cli, bucket: cfg.Bucket}, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}
	return nil
}

// Ping checks that the bucket is reachable.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

// ObjectKey builds <type>/<yyyy>/<mm>/<dd>/<uuid><ext> for an upload.
func ObjectKey(t models.DetectionType, at time.Time, fileName string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(fileName)))
	if strings.ContainsAny(ext, "/\\ ") || len(ext) > 10 {
		ext = ""
	}
	at = at.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s%s", t, at.Year(), at.Month(), at.Day(), uuid.NewString(), ext)
}
