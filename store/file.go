package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore - One JSON file per key in a directory.
type FileStore struct {
	directory string
	mutex     sync.Mutex
}

// NewFileStore - Create the directory if needed.
func NewFileStore(directory string) (*FileStore, error) {
	if directory == "" {
		directory = "."
	}
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileStore{directory: directory}, nil
}

func (store *FileStore) path(key string) string {
	// Keys are used as file names
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(key)
	return filepath.Join(store.directory, safe+".json")
}

// Load - Read and decode the document for the key.
func (store *FileStore) Load(_ context.Context, key string, destination interface{}) (bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	content, err := os.ReadFile(store.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %q: %w", key, err)
	}
	envelope := struct {
		Version int             `json:"version"`
		Data    json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(content, &envelope); err != nil {
		return false, fmt.Errorf("failed to parse %q: %w", key, err)
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(envelope.Data, destination); err != nil {
		return false, fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return true, nil
}

// Save - Write the document through a temporary file and rename it into place.
func (store *FileStore) Save(_ context.Context, key string, data interface{}) error {
	content, err := json.MarshalIndent(document{Version: Version, Key: key, Data: data}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}

	store.mutex.Lock()
	defer store.mutex.Unlock()
	path := store.path(key)
	temporary := path + ".tmp"
	if err := os.WriteFile(temporary, content, 0o600); err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	if err := os.Rename(temporary, path); err != nil {
		return fmt.Errorf("failed to replace %q: %w", key, err)
	}
	return nil
}

// Remove - Delete the document. Missing documents are not an error.
func (store *FileStore) Remove(_ context.Context, key string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if err := os.Remove(store.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %q: %w", key, err)
	}
	return nil
}

// Close - Nothing to release.
func (store *FileStore) Close() error {
	return nil
}
