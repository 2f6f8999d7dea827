package host

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.hon.one/pfbridge/entity"
	"dev.hon.one/pfbridge/store"
)

type trackedEntity struct {
	mac     string
	enabled bool
}

func (tracked trackedEntity) UniqueID() string                   { return "fw_mac_" + tracked.mac }
func (tracked trackedEntity) Platform() string                   { return entity.PlatformDeviceTracker }
func (tracked trackedEntity) Name() string                       { return "pfSense: " + tracked.mac }
func (tracked trackedEntity) EnabledDefault() bool               { return tracked.enabled }
func (tracked trackedEntity) Available() bool                    { return true }
func (tracked trackedEntity) State() interface{}                 { return "home" }
func (tracked trackedEntity) Attributes() map[string]interface{} { return nil }
func (tracked trackedEntity) DeviceInfo() *entity.DeviceInfo {
	return &entity.DeviceInfo{
		Connections: []entity.Connection{{Type: entity.ConnectionMAC, Value: tracked.mac}},
		Name:        tracked.mac,
	}
}

func TestPlatformAddEntities(t *testing.T) {
	host := New()
	platform := host.NewPlatform("entry", entity.PlatformDeviceTracker)
	var hooked []string
	platform.OnAdd(func(loaded LoadedEntity) { hooked = append(hooked, loaded.EntityID) })

	platform.AddEntities([]entity.Entity{
		trackedEntity{mac: "aa:bb:cc:dd:ee:ff", enabled: true},
		trackedEntity{mac: "11:22:33:44:55:66", enabled: false},
	})

	loaded := platform.Entities()
	require.Len(t, loaded, 1)
	assert.Equal(t, "device_tracker.pfsense_aa_bb_cc_dd_ee_ff", loaded[0].EntityID)
	assert.Equal(t, []string{loaded[0].EntityID}, hooked)

	entityID, found := host.Entities.LookupEntityID(entity.PlatformDeviceTracker, "fw_mac_11:22:33:44:55:66")
	require.True(t, found)
	registration, _ := host.Entities.Get(entityID)
	assert.Equal(t, DisabledByIntegration, registration.DisabledBy)
	assert.NotEmpty(t, registration.DeviceID)

	assert.Len(t, host.Devices.Devices(), 2)
}

func TestRemoveDevice(t *testing.T) {
	host := New()
	platform := host.NewPlatform("entry", entity.PlatformDeviceTracker)
	platform.AddEntities([]entity.Entity{trackedEntity{mac: "aa:bb:cc:dd:ee:ff", enabled: true}})

	device, found := host.Devices.GetByConnection(entity.ConnectionMAC, "aa:bb:cc:dd:ee:ff")
	require.True(t, found)
	assert.True(t, host.RemoveDevice(device.ID))
	assert.False(t, host.RemoveDevice(device.ID))

	_, found = host.Devices.GetByConnection(entity.ConnectionMAC, "aa:bb:cc:dd:ee:ff")
	assert.False(t, found)
	assert.Empty(t, host.Entities.Entries())
	assert.Empty(t, platform.Entities())
}

func TestEntityRegistry(t *testing.T) {
	registry := NewEntityRegistry()
	first := registry.GetOrCreate("sensor", "id1", "entry", "CPU usage", true)
	second := registry.GetOrCreate("sensor", "id2", "entry", "CPU usage", false)
	again := registry.GetOrCreate("sensor", "id1", "entry", "renamed", false)

	assert.Equal(t, "sensor.cpu_usage", first.EntityID)
	assert.Equal(t, "sensor.cpu_usage_2", second.EntityID)
	assert.Equal(t, first, again)
	assert.True(t, second.Disabled())

	require.NoError(t, registry.Enable(second.EntityID))
	entry, _ := registry.Get(second.EntityID)
	assert.False(t, entry.Disabled())
	assert.ErrorIs(t, registry.Enable("sensor.missing"), ErrUnknownEntity)
}

func TestEntityRegistryPersist(t *testing.T) {
	backend := store.NewMemoryStore()
	ctx := context.Background()

	registry := NewEntityRegistry()
	require.NoError(t, registry.Persist(ctx, backend, "entity_registry", time.Hour))
	registry.GetOrCreate("device_tracker", "fw_mac_aa", "entry", "laptop", false)
	require.NoError(t, registry.Flush())

	reloaded := NewEntityRegistry()
	require.NoError(t, reloaded.Persist(ctx, backend, "entity_registry", time.Hour))
	entityID, found := reloaded.LookupEntityID("device_tracker", "fw_mac_aa")
	require.True(t, found)
	entry, _ := reloaded.Get(entityID)
	assert.Equal(t, DisabledByIntegration, entry.DisabledBy)
}

func TestBus(t *testing.T) {
	bus := NewBus()
	var received []Event
	unsubscribe := bus.Subscribe("pfsense_entry_remove_devices", func(event Event) {
		received = append(received, event)
	})
	assert.True(t, bus.HasSubscribers("pfsense_entry_remove_devices"))

	bus.Fire("pfsense_entry_remove_devices", map[string]interface{}{"macs": []string{"aa"}})
	bus.Fire("other", nil)
	require.Len(t, received, 1)
	assert.Equal(t, []string{"aa"}, received[0].Data["macs"])

	unsubscribe()
	bus.Fire("pfsense_entry_remove_devices", nil)
	assert.Len(t, received, 1)
	assert.False(t, bus.HasSubscribers("pfsense_entry_remove_devices"))
}
