// Package host provides the platform primitives entities live in: entity and device registries, an event bus and per-platform entity lists.
package host

import (
	"errors"

	log "github.com/sirupsen/logrus"
)

// ErrUnknownEntity - No registry entry with the entity ID.
var ErrUnknownEntity = errors.New("unknown entity")

// Host - The registries and bus shared by all config entries.
type Host struct {
	Entities *EntityRegistry
	Devices  *DeviceRegistry
	Bus      *Bus
}

// New - Create a host with empty, non-persistent registries.
func New() *Host {
	return &Host{
		Entities: NewEntityRegistry(),
		Devices:  NewDeviceRegistry(),
		Bus:      NewBus(),
	}
}

// RemoveDevice - Remove a device and the registry entries of its entities.
func (host *Host) RemoveDevice(deviceID string) bool {
	if !host.Devices.Remove(deviceID) {
		return false
	}
	removed := host.Entities.RemoveForDevice(deviceID)
	log.WithFields(log.Fields{
		"device":   deviceID,
		"entities": removed,
	}).Debug("Removed device")
	return true
}
