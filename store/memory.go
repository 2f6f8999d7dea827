package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore - Non-persistent store, documents are kept JSON-encoded in memory.
type MemoryStore struct {
	mutex     sync.Mutex
	documents map[string][]byte
	saves     int
}

// NewMemoryStore - Create an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{documents: make(map[string][]byte)}
}

// Load - Decode the document for the key.
func (store *MemoryStore) Load(_ context.Context, key string, destination interface{}) (bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	content, found := store.documents[key]
	if !found {
		return false, nil
	}
	if err := json.Unmarshal(content, destination); err != nil {
		return false, fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return true, nil
}

// Save - Encode and keep the document.
func (store *MemoryStore) Save(_ context.Context, key string, data interface{}) error {
	content, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.documents[key] = content
	store.saves++
	return nil
}

// Remove - Forget the document.
func (store *MemoryStore) Remove(_ context.Context, key string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	delete(store.documents, key)
	return nil
}

// Close - Nothing to release.
func (store *MemoryStore) Close() error {
	return nil
}

// Saves - Number of writes so far.
func (store *MemoryStore) Saves() int {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.saves
}

// Has - Whether a document is stored under the key.
func (store *MemoryStore) Has(key string) bool {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	_, found := store.documents[key]
	return found
}
