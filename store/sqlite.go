package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const operationTimeout = 5 * time.Second

const createTableSQL = `
CREATE TABLE IF NOT EXISTS kv (
    key        TEXT PRIMARY KEY,
    version    INTEGER NOT NULL,
    data       TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

// SQLiteStore - Documents as rows of a single table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore - Open the database file and create the table if missing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "pfbridge.db"
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load - Read and decode the row for the key.
func (store *SQLiteStore) Load(ctx context.Context, key string, destination interface{}) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	var data string
	err := store.db.QueryRowContext(ctx, "SELECT data FROM kv WHERE key = ?", key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query %q: %w", key, err)
	}
	if data == "null" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(data), destination); err != nil {
		return false, fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return true, nil
}

// Save - Upsert the row for the key.
func (store *SQLiteStore) Save(ctx context.Context, key string, data interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	content, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}
	const query = `
        INSERT INTO kv (key, version, data, updated_at) VALUES (?, ?, ?, ?)
        ON CONFLICT(key) DO UPDATE SET version = excluded.version, data = excluded.data, updated_at = excluded.updated_at
    `
	if _, err := store.db.ExecContext(ctx, query, key, Version, string(content), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save %q: %w", key, err)
	}
	return nil
}

// Remove - Delete the row for the key.
func (store *SQLiteStore) Remove(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	if _, err := store.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to remove %q: %w", key, err)
	}
	return nil
}

// Close - Close the database.
func (store *SQLiteStore) Close() error {
	return store.db.Close()
}
