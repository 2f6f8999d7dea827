package entity

import (
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"dev.hon.one/pfbridge/store"
)

// ErrMissingUniqueID - A candidate entity has no unique ID. This is a programming error and is not retried.
var ErrMissingUniqueID = errors.New("unique ID is missing from entity")

// Builder - Builds the candidate entities from the latest snapshot.
// The cache payload is only used by caching managers and may be nil.
type Builder func() (entities []Entity, cache interface{})

// AddFunc - Registers a new entity with the platform.
type AddFunc func(entities []Entity)

// Subscribable - Source of "new snapshot" notifications.
type Subscribable interface {
	AddListener(listener func()) func()
}

// Manager - Adds each candidate entity exactly once, however often reconciliation runs.
type Manager struct {
	name    string
	builder Builder
	add     AddFunc
	saver   *store.DelayedSaver

	mutex      sync.Mutex
	registered map[string]bool
	cache      interface{}
	failed     error
}

// NewManager - Create a manager. With a saver, every pass schedules a save of the builder's cache payload.
func NewManager(name string, builder Builder, add AddFunc, saver *store.DelayedSaver) *Manager {
	return &Manager{
		name:       name,
		builder:    builder,
		add:        add,
		saver:      saver,
		registered: make(map[string]bool),
	}
}

// Subscribe - Run a reconciliation pass after every successful refresh of the source.
// Returns a function detaching the manager again.
func (manager *Manager) Subscribe(source Subscribable) func() {
	return source.AddListener(func() {
		if err := manager.ProcessEntities(); err != nil {
			log.WithError(err).WithField("platform", manager.name).Error("Failed to process entities")
		}
	})
}

// ProcessEntities - One reconciliation pass.
func (manager *Manager) ProcessEntities() error {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	if manager.failed != nil {
		return manager.failed
	}

	entities, cache := manager.builder()
	if manager.saver != nil {
		manager.cache = cache
		manager.saver.Schedule(manager.cacheData)
	}

	added := 0
	for _, entity := range entities {
		uniqueID := entity.UniqueID()
		if uniqueID == "" {
			manager.failed = fmt.Errorf("%w: %s %q", ErrMissingUniqueID, entity.Platform(), entity.Name())
			return manager.failed
		}
		if manager.registered[uniqueID] {
			continue
		}
		manager.add([]Entity{entity})
		manager.registered[uniqueID] = true
		added++
	}

	if added > 0 {
		log.WithFields(log.Fields{
			"platform": manager.name,
			"added":    added,
			"total":    len(manager.registered),
		}).Debug("Registered entities")
	}
	return nil
}

// cacheData - The payload of the latest pass, evaluated when the save happens.
func (manager *Manager) cacheData() interface{} {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	return manager.cache
}

// IsRegistered - Whether an entity with the unique ID has been added.
func (manager *Manager) IsRegistered(uniqueID string) bool {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	return manager.registered[uniqueID]
}

// RegisteredCount - Number of entities added so far.
func (manager *Manager) RegisteredCount() int {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	return len(manager.registered)
}
