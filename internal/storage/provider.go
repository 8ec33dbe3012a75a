// Package storage defines the interfaces for a blob storage provider.
// This abstraction lets the section writer mirror its output to remote
// stores (e.g., Google Cloud Storage) without depending on them.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Provider defines the common interface for a blob storage provider.
// It abstracts the operation of saving data.
type Provider interface {
	// Save uploads data to a specified object path/key in the blob store.
	Save(ctx context.Context, objectName string, data []byte) error
}

// EncodeJSON renders v as indented JSON without HTML escaping, so section
// markup stays readable on disk. The output ends with a newline.
func EncodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return buf.Bytes(), nil
}
