// Package imagestore keeps generated images in S3 compatible object storage.
package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/LeventeLantos/royal-studio/internal/model"
)

var tracer = otel.Tracer("studio-imagestore")

const defaultRegion = "us-east-1"

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type MinioStore struct {
	client   *minio.Client
	endpoint string
	bucket   string
	scheme   string

	mu          sync.Mutex
	bucketReady bool
}

func NewMinioStore(opts Options) (*MinioStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: defaultRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	scheme := "http"
	if opts.UseSSL {
		scheme = "https"
	}
	return &MinioStore{
		client:   client,
		endpoint: opts.Endpoint,
		bucket:   opts.Bucket,
		scheme:   scheme,
	}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "imagestore_ensure_bucket")
	defer span.End()
	span.SetAttributes(attribute.String("minio.bucket", s.bucket))

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: defaultRegion}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *MinioStore) ensureBucketOnce(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bucketReady {
		return nil
	}
	if err := s.EnsureBucket(ctx); err != nil {
		return err
	}
	s.bucketReady = true
	return nil
}

// Put uploads img under key and returns its object URL.
func (s *MinioStore) Put(ctx context.Context, key string, img *model.Image) (string, error) {
	ctx, span := tracer.Start(ctx, "imagestore_put")
	defer span.End()
	span.SetAttributes(
		attribute.String("minio.bucket", s.bucket),
		attribute.String("minio.key", key),
		attribute.Int("minio.size", len(img.Data)),
	)

	if err := s.ensureBucketOnce(ctx); err != nil {
		return "", err
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(img.Data), int64(len(img.Data)), minio.PutObjectOptions{
		ContentType: img.ContentType,
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	return fmt.Sprintf("%s://%s/%s/%s", s.scheme, s.endpoint, s.bucket, key), nil
}

// ObjectKey names the object for a generation id and image content type.
func ObjectKey(id, contentType string) string {
	ext := "bin"
	switch contentType {
	case "image/png":
		ext = "png"
	case "image/jpeg":
		ext = "jpg"
	case "image/webp":
		ext = "webp"
	}
	return fmt.Sprintf("generations/%s.%s", id, ext)
}
