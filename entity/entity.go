// Package entity defines the entities exposed to the automation platform and reconciles them against fresh snapshots.
package entity

import "dev.hon.one/pfbridge/util"

// Domain - Identifier domain of the integration, also the prefix of its event topics.
const Domain = "pfsense"

// StateUnknown - State of an entity whose value can't be determined.
const StateUnknown = "unknown"

// StateUnavailable - State of an entity which isn't available.
const StateUnavailable = "unavailable"

// Platform kinds.
const (
	PlatformSensor        = "sensor"
	PlatformBinarySensor  = "binary_sensor"
	PlatformDeviceTracker = "device_tracker"
)

// Entity - Something with a stable unique ID and a state derived from the latest snapshot.
type Entity interface {
	UniqueID() string
	Platform() string
	Name() string
	EnabledDefault() bool
	Available() bool
	State() interface{}
	Attributes() map[string]interface{}
}

// Identifier - A device identifier scoped to a domain.
type Identifier struct {
	Domain string `json:"domain"`
	ID     string `json:"id"`
}

// Connection - A device connection such as a MAC address.
type Connection struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ConnectionMAC - Connection type for network MAC addresses.
const ConnectionMAC = "mac"

// DeviceInfo - Describes the device an entity belongs to.
type DeviceInfo struct {
	Identifiers      []Identifier `json:"identifiers,omitempty"`
	Connections      []Connection `json:"connections,omitempty"`
	Name             string       `json:"name,omitempty"`
	Manufacturer     string       `json:"manufacturer,omitempty"`
	Model            string       `json:"model,omitempty"`
	SWVersion        string       `json:"sw_version,omitempty"`
	ConfigurationURL string       `json:"configuration_url,omitempty"`
	ViaDevice        *Identifier  `json:"via_device,omitempty"`
}

// WithDevice - Entities belonging to a device.
type WithDevice interface {
	DeviceInfo() *DeviceInfo
}

// Description - Presentation hints passed through to the platform.
type Description struct {
	Unit        string `json:"unit_of_measurement,omitempty"`
	DeviceClass string `json:"device_class,omitempty"`
	StateClass  string `json:"state_class,omitempty"`
	Icon        string `json:"icon,omitempty"`
}

// Described - Entities with presentation hints.
type Described interface {
	Description() Description
}

// DeviceInfoOf - Device info of the entity, nil if it has none.
func DeviceInfoOf(entity Entity) *DeviceInfo {
	if withDevice, ok := entity.(WithDevice); ok {
		return withDevice.DeviceInfo()
	}
	return nil
}

// DescriptionOf - Presentation hints of the entity, empty if it has none.
func DescriptionOf(entity Entity) Description {
	if described, ok := entity.(Described); ok {
		return described.Description()
	}
	return Description{}
}

// StateString - The state as text, "unavailable" or "unknown" when there is no value.
func StateString(entity Entity) string {
	if !entity.Available() {
		return StateUnavailable
	}
	value := entity.State()
	if value == nil {
		return StateUnknown
	}
	return util.ToString(value)
}
