// Package store persists small JSON documents by key, for the presence cache and the entry options.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Version - Version of the persisted document layout.
const Version = 1

// Storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// ErrUnknownBackend - The configured storage backend does not exist.
var ErrUnknownBackend = errors.New("unknown storage backend")

// Store - Key-value persistence of JSON-encodable documents.
type Store interface {
	// Load - Decode the stored document into the destination. Returns false if nothing is stored under the key.
	Load(ctx context.Context, key string, destination interface{}) (bool, error)
	Save(ctx context.Context, key string, data interface{}) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Config - Storage backend selection.
type Config struct {
	// "file" (default), "sqlite" or "memory".
	Backend string `json:"backend" toml:"backend"`
	// Directory for the file backend, database file for sqlite.
	Path string `json:"path" toml:"path"`
}

// Open - Open the configured backend.
func Open(config Config) (Store, error) {
	switch strings.ToLower(config.Backend) {
	case "", BackendFile:
		return NewFileStore(config.Path)
	case BackendSQLite:
		return NewSQLiteStore(config.Path)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, config.Backend)
	}
}

// document - Envelope written for every key.
type document struct {
	Version int         `json:"version"`
	Key     string      `json:"key"`
	Data    interface{} `json:"data"`
}
