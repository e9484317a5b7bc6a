package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/kirillkom/docvault/internal/core/domain"
)

// Storage keeps uploads in a Google Cloud Storage bucket under an optional prefix.
type Storage struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
}

func New(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*Storage, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("gcs bucket is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &Storage{
		client: client,
		bucket: client.Bucket(bucket),
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

func (s *Storage) Close() error {
	return s.client.Close()
}

func (s *Storage) Save(ctx context.Context, key string, data io.Reader) error {
	writer := s.bucket.Object(s.objectName(key)).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if _, err := io.Copy(writer, data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("write gcs object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize gcs object: %w", err)
	}
	return nil
}

func (s *Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	reader, err := s.bucket.Object(s.objectName(key)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, domain.WrapError(domain.ErrFileNotFound, "open object", err)
		}
		return nil, fmt.Errorf("open gcs object: %w", err)
	}
	return reader, nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	err := s.bucket.Object(s.objectName(key)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete gcs object: %w", err)
	}
	return nil
}

func (s *Storage) objectName(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}
