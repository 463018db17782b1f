package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"nstbot/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

// MinioArchiver copies finished results into a bucket, one prefix per user.
type MinioArchiver struct {
	client *minio.Client
	bucket string
}

// NewMinioArchiver connects to the configured endpoint and creates the bucket if it does not exist yet.
func NewMinioArchiver(ctx context.Context, cfg config.Minio) (*MinioArchiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}

	if !exists {
		log.Info().Str("bucket", cfg.Bucket).Msg("creating archive bucket")
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &MinioArchiver{client: client, bucket: cfg.Bucket}, nil
}

// Archive uploads the file at path and returns its object key.
func (a *MinioArchiver) Archive(ctx context.Context, userID int64, path string) (string, error) {
	key := objectKey(userID, path)

	info, err := a.client.FPutObject(ctx, a.bucket, key, path, minio.PutObjectOptions{
		ContentType: contentType(path),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", path, err)
	}

	log.Debug().Str("bucket", a.bucket).Str("key", key).Int64("bytes", info.Size).Msg("archived result")

	return key, nil
}

func objectKey(userID int64, path string) string {
	return strconv.FormatInt(userID, 10) + "/" + filepath.Base(path)
}

func contentType(path string) string {
	switch filepath.Ext(path) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
