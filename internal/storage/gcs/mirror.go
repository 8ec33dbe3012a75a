// Package gcs mirrors written section files to a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"fmt"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	Prefix string
}

// Mirror implements storage.Provider against a GCS bucket.
type Mirror struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed mirror.
func New(client *storage.Client, cfg Config) (*Mirror, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Mirror{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// ObjectName returns the object key used for a local relative path.
func (m *Mirror) ObjectName(name string) string {
	name = strings.TrimLeft(name, "/")
	if m.prefix == "" {
		return name
	}
	return path.Join(m.prefix, name)
}

// Save uploads data to the bucket.
func (m *Mirror) Save(ctx context.Context, name string, data []byte) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("object name is required")
	}
	objectName := m.ObjectName(name)
	wc := m.client.Bucket(m.bucket).Object(objectName).NewWriter(ctx)
	wc.ContentType = "application/json"

	if _, err := wc.Write(data); err != nil {
		if closeErr := wc.Close(); closeErr != nil {
			return fmt.Errorf("write gcs object %s: %w (close writer: %v)", objectName, err, closeErr)
		}
		return fmt.Errorf("write gcs object %s: %w", objectName, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close gcs writer for %s: %w", objectName, err)
	}
	return nil
}
