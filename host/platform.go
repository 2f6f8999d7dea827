package host

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"dev.hon.one/pfbridge/entity"
)

// LoadedEntity - An entity added to a platform together with its registration.
type LoadedEntity struct {
	EntityID string
	Entity   entity.Entity
}

// Platform - The loaded entities of one kind for one config entry.
type Platform struct {
	host          *Host
	configEntryID string
	kind          string

	mutex    sync.RWMutex
	entities []LoadedEntity
	hooks    []func(LoadedEntity)
}

// NewPlatform - Create an empty platform of the kind (sensor, binary_sensor, device_tracker).
func (host *Host) NewPlatform(configEntryID string, kind string) *Platform {
	return &Platform{
		host:          host,
		configEntryID: configEntryID,
		kind:          kind,
	}
}

// Kind - The entity platform kind.
func (platform *Platform) Kind() string {
	return platform.kind
}

// OnAdd - Call the hook for every entity loaded from now on.
func (platform *Platform) OnAdd(hook func(LoadedEntity)) {
	platform.mutex.Lock()
	defer platform.mutex.Unlock()
	platform.hooks = append(platform.hooks, hook)
}

// AddEntities - Register the entities and their devices. Enabled ones are loaded, disabled ones only registered.
func (platform *Platform) AddEntities(entities []entity.Entity) {
	for _, candidate := range entities {
		registration := platform.host.Entities.GetOrCreate(platform.kind, candidate.UniqueID(), platform.configEntryID, candidate.Name(), candidate.EnabledDefault())
		if info := entity.DeviceInfoOf(candidate); info != nil && (len(info.Identifiers) > 0 || len(info.Connections) > 0) {
			device := platform.host.Devices.GetOrCreate(platform.configEntryID, *info)
			platform.host.Entities.SetDevice(registration.EntityID, device.ID)
		}
		if registration.Disabled() {
			log.WithFields(log.Fields{
				"entity":      registration.EntityID,
				"disabled_by": registration.DisabledBy,
			}).Trace("Registered disabled entity")
			continue
		}

		loaded := LoadedEntity{EntityID: registration.EntityID, Entity: candidate}
		platform.mutex.Lock()
		platform.entities = append(platform.entities, loaded)
		hooks := append([]func(LoadedEntity){}, platform.hooks...)
		platform.mutex.Unlock()
		for _, hook := range hooks {
			hook(loaded)
		}
	}
}

// Entities - Loaded entities whose registration still exists, in load order.
func (platform *Platform) Entities() []LoadedEntity {
	platform.mutex.RLock()
	defer platform.mutex.RUnlock()
	entities := make([]LoadedEntity, 0, len(platform.entities))
	for _, loaded := range platform.entities {
		if _, found := platform.host.Entities.Get(loaded.EntityID); found {
			entities = append(entities, loaded)
		}
	}
	return entities
}

// Entity - A loaded entity by entity ID.
func (platform *Platform) Entity(entityID string) (entity.Entity, bool) {
	for _, loaded := range platform.Entities() {
		if loaded.EntityID == entityID {
			return loaded.Entity, true
		}
	}
	return nil, false
}

// Unload - Drop all loaded entities and hooks. Registrations are kept.
func (platform *Platform) Unload() {
	platform.mutex.Lock()
	defer platform.mutex.Unlock()
	platform.entities = nil
	platform.hooks = nil
}
