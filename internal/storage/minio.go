// Package storage copies uploaded spreadsheets to S3-compatible object
// storage so the raw file survives the local staging directory.
package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/agrifield/backend/internal/config"
)

// MinioUploader stores objects in a single bucket, created on startup
// if missing.
type MinioUploader struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

// NewMinioUploader connects to the configured endpoint and ensures the
// bucket exists.
func NewMinioUploader(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*MinioUploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %q: %w", cfg.Bucket, err)
		}
	}

	return &MinioUploader{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.With(zap.String("component", "object_storage")),
	}, nil
}

// Upload writes data under objectName in the configured bucket.
func (u *MinioUploader) Upload(ctx context.Context, objectName string, data []byte, contentType string) error {
	_, err := u.client.PutObject(ctx, u.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to store object %q: %w", objectName, err)
	}
	u.logger.Info("object stored",
		zap.String("bucket", u.bucket),
		zap.String("object", objectName),
		zap.Int("bytes", len(data)),
	)
	return nil
}
