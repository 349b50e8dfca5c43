package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	apperrors "github.com/artl-app/artl-service/internal/errors"
	"github.com/artl-app/artl-service/internal/models"
)

// PresignedURLExpiry is how long image links stay valid
const PresignedURLExpiry = 24 * time.Hour

// Store keeps source images in a MinIO bucket
type Store struct {
	client *minio.Client
	bucket string
}

// New connects to MinIO and verifies the bucket exists
func New(ctx context.Context, cfg models.StorageConfig) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", cfg.Bucket)
	}

	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// Bucket returns the bucket name
func (s *Store) Bucket() string { return s.bucket }

// Ping checks the bucket is reachable
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

// UploadImage stores an image under {source}/YYYY/MM/{id}{ext} and returns
// the bucket-qualified path.
func (s *Store) UploadImage(ctx context.Context, id, source string, data []byte, contentType string) (string, error) {
	objectName := ObjectName(source, id, contentType, time.Now())

	_, err := s.client.PutObject(ctx, s.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", apperrors.NewStorageFailedError(objectName, err)
	}

	return fmt.Sprintf("%s/%s", s.bucket, objectName), nil
}

// GetPresignedURL generates a presigned URL for viewing an image
func (s *Store) GetPresignedURL(ctx context.Context, objectPath string) (string, error) {
	objectName := s.trimBucket(objectPath)

	url, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, PresignedURLExpiry, nil)
	if err != nil {
		return "", apperrors.NewStorageFailedError(objectName, err)
	}

	return url.String(), nil
}

// DeleteImage removes an image from storage
func (s *Store) DeleteImage(ctx context.Context, objectPath string) error {
	return s.client.RemoveObject(ctx, s.bucket, s.trimBucket(objectPath), minio.RemoveObjectOptions{})
}

func (s *Store) trimBucket(objectPath string) string {
	return strings.TrimPrefix(objectPath, s.bucket+"/")
}

// ObjectName builds the object key for an image
func ObjectName(source, id, contentType string, at time.Time) string {
	if source == "" {
		source = "import"
	}
	return fmt.Sprintf("%s/%d/%02d/%s%s",
		source,
		at.Year(),
		at.Month(),
		id,
		GetFileExtension(contentType),
	)
}

// GetFileExtension extracts file extension from content type
func GetFileExtension(contentType string) string {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	case "image/tiff":
		return ".tiff"
	default:
		return ".bin"
	}
}
