// Package objstore stores uploaded files in a Google Cloud Storage bucket.
package objstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
)

// Store wraps a GCS bucket for uploads and signed download URLs.
type Store struct {
	client *storage.Client
	bucket string
}

// New creates a Store for bucket. Credentials come from the ambient
// environment (ADC).
func New(ctx context.Context, bucket string) (*Store, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	return &Store{client: client, bucket: bucket}, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Bucket returns the configured bucket name.
func (s *Store) Bucket() string {
	return s.bucket
}

// Upload streams r into the bucket under the given object name.
func (s *Store) Upload(ctx context.Context, object, contentType string, r io.Reader) error {
	w := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("writing object %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing object %s: %w", object, err)
	}
	return nil
}

// SignedURL returns a V4 signed GET URL for the object, valid for ttl.
func (s *Store) SignedURL(object string, ttl time.Duration) (string, error) {
	url, err := s.client.Bucket(s.bucket).SignedURL(object, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("signing URL for %s: %w", object, err)
	}
	return url, nil
}
