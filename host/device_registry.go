package host

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"dev.hon.one/pfbridge/entity"
)

// Device - A registered device.
type Device struct {
	ID            string            `json:"id"`
	ConfigEntryID string            `json:"config_entry_id"`
	Info          entity.DeviceInfo `json:"info"`
}

// HasConnection - Whether the device has the connection.
func (device Device) HasConnection(connectionType string, value string) bool {
	for _, connection := range device.Info.Connections {
		if connection.Type == connectionType && connection.Value == value {
			return true
		}
	}
	return false
}

// HasIdentifier - Whether the device has the identifier.
func (device Device) HasIdentifier(domain string, id string) bool {
	for _, identifier := range device.Info.Identifiers {
		if identifier.Domain == domain && identifier.ID == id {
			return true
		}
	}
	return false
}

// DeviceRegistry - Devices matched by identifiers or connections.
type DeviceRegistry struct {
	mutex   sync.RWMutex
	devices map[string]*Device
}

// NewDeviceRegistry - Create an empty registry.
func NewDeviceRegistry() *DeviceRegistry {
	return &DeviceRegistry{devices: make(map[string]*Device)}
}

// GetOrCreate - The device matching any of the identifiers or connections, created if missing.
// Descriptive fields of an existing device are updated when set.
func (registry *DeviceRegistry) GetOrCreate(configEntryID string, info entity.DeviceInfo) Device {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	for _, device := range registry.devices {
		if !registry.matches(device, info) {
			continue
		}
		mergeDeviceInfo(&device.Info, info)
		return *device
	}

	device := &Device{
		ID:            uuid.NewString(),
		ConfigEntryID: configEntryID,
		Info:          info,
	}
	registry.devices[device.ID] = device
	return *device
}

func (registry *DeviceRegistry) matches(device *Device, info entity.DeviceInfo) bool {
	for _, identifier := range info.Identifiers {
		if device.HasIdentifier(identifier.Domain, identifier.ID) {
			return true
		}
	}
	for _, connection := range info.Connections {
		if device.HasConnection(connection.Type, connection.Value) {
			return true
		}
	}
	return false
}

func mergeDeviceInfo(target *entity.DeviceInfo, update entity.DeviceInfo) {
	if update.Name != "" {
		target.Name = update.Name
	}
	if update.Manufacturer != "" {
		target.Manufacturer = update.Manufacturer
	}
	if update.Model != "" {
		target.Model = update.Model
	}
	if update.SWVersion != "" {
		target.SWVersion = update.SWVersion
	}
	if update.ConfigurationURL != "" {
		target.ConfigurationURL = update.ConfigurationURL
	}
	if update.ViaDevice != nil {
		target.ViaDevice = update.ViaDevice
	}
}

// GetByConnection - The device with the connection, such as a MAC address.
func (registry *DeviceRegistry) GetByConnection(connectionType string, value string) (Device, bool) {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	for _, device := range registry.devices {
		if device.HasConnection(connectionType, value) {
			return *device, true
		}
	}
	return Device{}, false
}

// GetByIdentifier - The device with the identifier.
func (registry *DeviceRegistry) GetByIdentifier(domain string, id string) (Device, bool) {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	for _, device := range registry.devices {
		if device.HasIdentifier(domain, id) {
			return *device, true
		}
	}
	return Device{}, false
}

// Remove - Remove a device by ID.
func (registry *DeviceRegistry) Remove(deviceID string) bool {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	if _, found := registry.devices[deviceID]; !found {
		return false
	}
	delete(registry.devices, deviceID)
	return true
}

// Devices - All devices, sorted by name then ID.
func (registry *DeviceRegistry) Devices() []Device {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	devices := make([]Device, 0, len(registry.devices))
	for _, device := range registry.devices {
		devices = append(devices, *device)
	}
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Info.Name != devices[j].Info.Name {
			return devices[i].Info.Name < devices[j].Info.Name
		}
		return devices[i].ID < devices[j].ID
	})
	return devices
}
