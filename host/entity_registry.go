package host

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"dev.hon.one/pfbridge/store"
	"dev.hon.one/pfbridge/util"
)

// Reasons for an entity being disabled.
const (
	DisabledByIntegration = "integration"
	DisabledByUser        = "user"
)

// RegistryEntry - Registration of an entity, independent of whether it is loaded.
type RegistryEntry struct {
	EntityID      string `json:"entity_id"`
	UniqueID      string `json:"unique_id"`
	Platform      string `json:"platform"`
	ConfigEntryID string `json:"config_entry_id"`
	DeviceID      string `json:"device_id,omitempty"`
	OriginalName  string `json:"original_name"`
	DisabledBy    string `json:"disabled_by,omitempty"`
}

// Disabled - Whether the entity is disabled for any reason.
func (entry RegistryEntry) Disabled() bool {
	return entry.DisabledBy != ""
}

// EntityRegistry - Entity registrations keyed by entity ID, looked up by platform and unique ID.
type EntityRegistry struct {
	mutex      sync.RWMutex
	entries    map[string]*RegistryEntry
	byUniqueID map[string]string
	saver      *store.DelayedSaver
}

// NewEntityRegistry - Create an empty, non-persistent registry.
func NewEntityRegistry() *EntityRegistry {
	return &EntityRegistry{
		entries:    make(map[string]*RegistryEntry),
		byUniqueID: make(map[string]string),
	}
}

func uniqueKey(platform string, uniqueID string) string {
	return platform + "/" + uniqueID
}

// Persist - Load registrations from the store and save changes back to it.
func (registry *EntityRegistry) Persist(ctx context.Context, backend store.Store, key string, delay time.Duration) error {
	var entries []RegistryEntry
	if _, err := backend.Load(ctx, key, &entries); err != nil {
		return fmt.Errorf("failed to load entity registry: %w", err)
	}

	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	for i := range entries {
		entry := entries[i]
		registry.entries[entry.EntityID] = &entry
		registry.byUniqueID[uniqueKey(entry.Platform, entry.UniqueID)] = entry.EntityID
	}
	registry.saver = store.NewDelayedSaver(backend, key, delay)
	log.WithField("entries", len(entries)).Debug("Loaded entity registry")
	return nil
}

// Flush - Write pending changes, if persisted.
func (registry *EntityRegistry) Flush() error {
	registry.mutex.RLock()
	saver := registry.saver
	registry.mutex.RUnlock()
	if saver == nil {
		return nil
	}
	return saver.Flush()
}

func (registry *EntityRegistry) changedLocked() {
	if registry.saver != nil {
		registry.saver.Schedule(func() interface{} { return registry.Entries() })
	}
}

// GetOrCreate - The registration for the platform and unique ID, created if missing.
// New registrations of entities not enabled by default are disabled by the integration.
func (registry *EntityRegistry) GetOrCreate(platform string, uniqueID string, configEntryID string, name string, enabledDefault bool) RegistryEntry {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	if entityID, found := registry.byUniqueID[uniqueKey(platform, uniqueID)]; found {
		return *registry.entries[entityID]
	}

	entry := &RegistryEntry{
		EntityID:      registry.generateEntityIDLocked(platform, name, uniqueID),
		UniqueID:      uniqueID,
		Platform:      platform,
		ConfigEntryID: configEntryID,
		OriginalName:  name,
	}
	if !enabledDefault {
		entry.DisabledBy = DisabledByIntegration
	}
	registry.entries[entry.EntityID] = entry
	registry.byUniqueID[uniqueKey(platform, uniqueID)] = entry.EntityID
	registry.changedLocked()
	return *entry
}

func (registry *EntityRegistry) generateEntityIDLocked(platform string, name string, uniqueID string) string {
	slug := util.Slugify(name)
	if slug == "" {
		slug = util.Slugify(uniqueID)
	}
	base := platform + "." + slug
	entityID := base
	for i := 2; registry.entries[entityID] != nil; i++ {
		entityID = base + "_" + strconv.Itoa(i)
	}
	return entityID
}

// LookupEntityID - Entity ID for the platform and unique ID.
func (registry *EntityRegistry) LookupEntityID(platform string, uniqueID string) (string, bool) {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	entityID, found := registry.byUniqueID[uniqueKey(platform, uniqueID)]
	return entityID, found
}

// Get - Registration by entity ID.
func (registry *EntityRegistry) Get(entityID string) (RegistryEntry, bool) {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	entry, found := registry.entries[entityID]
	if !found {
		return RegistryEntry{}, false
	}
	return *entry, true
}

// SetDevice - Attach the entity to a device.
func (registry *EntityRegistry) SetDevice(entityID string, deviceID string) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	if entry, found := registry.entries[entityID]; found && entry.DeviceID != deviceID {
		entry.DeviceID = deviceID
		registry.changedLocked()
	}
}

// Enable - Clear the disabled reason. Takes effect when the entity is next loaded.
func (registry *EntityRegistry) Enable(entityID string) error {
	return registry.setDisabledBy(entityID, "")
}

// Disable - Disable the entity for the given reason.
func (registry *EntityRegistry) Disable(entityID string, by string) error {
	return registry.setDisabledBy(entityID, by)
}

func (registry *EntityRegistry) setDisabledBy(entityID string, by string) error {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	entry, found := registry.entries[entityID]
	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, entityID)
	}
	if entry.DisabledBy != by {
		entry.DisabledBy = by
		registry.changedLocked()
	}
	return nil
}

// RemoveForDevice - Remove all registrations attached to the device, returning their entity IDs.
func (registry *EntityRegistry) RemoveForDevice(deviceID string) []string {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	var removed []string
	for entityID, entry := range registry.entries {
		if entry.DeviceID != deviceID {
			continue
		}
		delete(registry.entries, entityID)
		delete(registry.byUniqueID, uniqueKey(entry.Platform, entry.UniqueID))
		removed = append(removed, entityID)
	}
	if len(removed) > 0 {
		sort.Strings(removed)
		registry.changedLocked()
	}
	return removed
}

// Entries - All registrations, sorted by entity ID.
func (registry *EntityRegistry) Entries() []RegistryEntry {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	entries := make([]RegistryEntry, 0, len(registry.entries))
	for _, entry := range registry.entries {
		entries = append(entries, *entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].EntityID < entries[j].EntityID })
	return entries
}
