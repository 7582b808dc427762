package config

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSSplitSource keeps the split document ({"P": 70}) in a Cloud Storage object so every gateway
// instance reads the same value.
type GCSSplitSource struct {
	client *storage.Client
	bucket string
	object string
}

func NewGCSSplitSource(client *storage.Client, bucket, object string) *GCSSplitSource {
	return &GCSSplitSource{client: client, bucket: bucket, object: object}
}

func (s *GCSSplitSource) SplitPercent(ctx context.Context) (int, error) {
	reader, err := s.client.Bucket(s.bucket).Object(s.object).NewReader(ctx)
	if err != nil {
		return 0, fmt.Errorf("open gs://%s/%s: %w", s.bucket, s.object, err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return 0, fmt.Errorf("read gs://%s/%s: %w", s.bucket, s.object, err)
	}
	return parseSplitDocument(raw)
}

func (s *GCSSplitSource) SetSplitPercent(ctx context.Context, percent int) error {
	if !ValidSplit(percent) {
		return ErrSplitOutOfRange
	}
	body, err := json.Marshal(splitDocument{P: &percent})
	if err != nil {
		return err
	}

	writer := s.client.Bucket(s.bucket).Object(s.object).NewWriter(ctx)
	writer.ContentType = "application/json"
	writer.CacheControl = "no-store"

	if _, err := writer.Write(body); err != nil {
		_ = writer.Close()
		return fmt.Errorf("write gs://%s/%s: %w", s.bucket, s.object, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close gs://%s/%s: %w", s.bucket, s.object, err)
	}
	return nil
}
