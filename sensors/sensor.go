// Package sensors builds the sensor and binary sensor entities of the firewall from the default snapshot.
package sensors

import (
	"fmt"
	"strings"

	"dev.hon.one/pfbridge/entity"
	"dev.hon.one/pfbridge/state"
	"dev.hon.one/pfbridge/util"
)

// Icons.
const (
	iconCheckNetwork = "mdi:check-network-outline"
	iconCloseNetwork = "mdi:close-network-outline"
	iconServer       = "mdi:server-network"
	iconGauge        = "mdi:gauge"
	iconMemory       = "mdi:memory"
	iconRouter       = "mdi:router-network"
	iconIPNetwork    = "mdi:ip-network-outline"
)

// Source - The default coordinator.
type Source interface {
	Data() *state.Snapshot
	LastUpdateSuccess() bool
	AddListener(listener func()) func()
}

// DeviceName - Display name of the firewall: the entry title, else "hostname.domain".
func DeviceName(snapshot *state.Snapshot, title string) string {
	if title != "" {
		return title
	}
	return fmt.Sprintf("%v.%v", snapshot.Lookup("system_info.hostname", nil), snapshot.Lookup("system_info.domain", nil))
}

// FirewallDeviceInfo - Device info of the firewall itself.
func FirewallDeviceInfo(snapshot *state.Snapshot, title string) *entity.DeviceInfo {
	info := &entity.DeviceInfo{
		Identifiers:  []entity.Identifier{{Domain: entity.Domain, ID: snapshot.DeviceID()}},
		Name:         DeviceName(snapshot, title),
		Manufacturer: "netgate",
	}
	if snapshot != nil && snapshot.HostFirmwareVersion != nil {
		info.Model = snapshot.HostFirmwareVersion.Platform
		info.SWVersion = snapshot.HostFirmwareVersion.Firmware.Version
	}
	return info
}

// sensor - Shared parts of all firewall entities. The unique ID and name are fixed when built.
type sensor struct {
	source         Source
	title          string
	platform       string
	key            string
	uniqueID       string
	name           string
	enabledDefault bool
	description    entity.Description
}

func newSensor(source Source, title string, platform string, key string, name string, enabledDefault bool, description entity.Description) sensor {
	snapshot := source.Data()
	return sensor{
		source:         source,
		title:          title,
		platform:       platform,
		key:            key,
		uniqueID:       util.Slugify(snapshot.DeviceID() + "_" + key),
		name:           DeviceName(snapshot, title) + " " + name,
		enabledDefault: enabledDefault,
		description:    description,
	}
}

func (sensor *sensor) UniqueID() string {
	return sensor.uniqueID
}

func (sensor *sensor) Platform() string {
	return sensor.platform
}

func (sensor *sensor) Name() string {
	return sensor.name
}

// Key - The snapshot path the entity reads.
func (sensor *sensor) Key() string {
	return sensor.key
}

func (sensor *sensor) EnabledDefault() bool {
	return sensor.enabledDefault
}

func (sensor *sensor) Description() entity.Description {
	return sensor.description
}

func (sensor *sensor) DeviceInfo() *entity.DeviceInfo {
	return FirewallDeviceInfo(sensor.source.Data(), sensor.title)
}

func (sensor *sensor) Attributes() map[string]interface{} {
	return nil
}

// available - Base availability: the last refresh succeeded.
func (sensor *sensor) available() bool {
	return sensor.source.LastUpdateSuccess() && sensor.source.Data() != nil
}

func (sensor *sensor) lookup(path string) interface{} {
	return sensor.source.Data().Lookup(path, nil)
}

// keyPart - The n-th dot separated part of the key.
func (sensor *sensor) keyPart(n int) string {
	parts := strings.Split(sensor.key, ".")
	if n >= len(parts) {
		return ""
	}
	return parts[n]
}
