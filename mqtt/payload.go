package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	"dev.hon.one/pfbridge/entity"
	"dev.hon.one/pfbridge/host"
	"dev.hon.one/pfbridge/tracker"
)

// BaseTopic - Prefix of the state and command topics.
const BaseTopic = "pfbridge"

// DiscoveryTopic - Retained discovery config topic of an entity.
func DiscoveryTopic(prefix string, platform string, uniqueID string) string {
	return fmt.Sprintf("%s/%s/%s/config", prefix, platform, uniqueID)
}

// StateTopic - Topic the entity's state is published to.
func StateTopic(entryID string, platform string, uniqueID string) string {
	return fmt.Sprintf("%s/%s/%s/%s/state", BaseTopic, entryID, platform, uniqueID)
}

// AttributesTopic - Topic the entity's attributes are published to, as a JSON object.
func AttributesTopic(entryID string, platform string, uniqueID string) string {
	return fmt.Sprintf("%s/%s/%s/%s/attributes", BaseTopic, entryID, platform, uniqueID)
}

// RemoveDevicesCommandTopic - Topic accepting device removal commands for the entry.
func RemoveDevicesCommandTopic(entryID string) string {
	return fmt.Sprintf("%s/%s/remove_devices", BaseTopic, entryID)
}

// DiscoveryPayload - Discovery config of a loaded entity.
func DiscoveryPayload(entryID string, loaded host.LoadedEntity) map[string]interface{} {
	candidate := loaded.Entity
	platform := candidate.Platform()
	uniqueID := candidate.UniqueID()
	payload := map[string]interface{}{
		"name":                  candidate.Name(),
		"unique_id":             uniqueID,
		"object_id":             strings.TrimPrefix(loaded.EntityID, platform+"."),
		"state_topic":           StateTopic(entryID, platform, uniqueID),
		"json_attributes_topic": AttributesTopic(entryID, platform, uniqueID),
		"enabled_by_default":    candidate.EnabledDefault(),
	}

	description := entity.DescriptionOf(candidate)
	setIfPresent(payload, "unit_of_measurement", description.Unit)
	setIfPresent(payload, "device_class", description.DeviceClass)
	setIfPresent(payload, "state_class", description.StateClass)
	setIfPresent(payload, "icon", description.Icon)

	switch platform {
	case entity.PlatformBinarySensor:
		payload["payload_on"] = "on"
		payload["payload_off"] = "off"
	case entity.PlatformDeviceTracker:
		payload["source_type"] = tracker.SourceTypeRouter
		payload["payload_home"] = tracker.StateHome
		payload["payload_not_home"] = tracker.StateNotHome
	}

	if info := entity.DeviceInfoOf(candidate); info != nil {
		payload["device"] = devicePayload(info)
	}
	return payload
}

func setIfPresent(payload map[string]interface{}, key string, value string) {
	if value != "" {
		payload[key] = value
	}
}

func devicePayload(info *entity.DeviceInfo) map[string]interface{} {
	device := make(map[string]interface{})
	if len(info.Identifiers) > 0 {
		identifiers := make([]string, 0, len(info.Identifiers))
		for _, identifier := range info.Identifiers {
			identifiers = append(identifiers, identifier.Domain+"_"+identifier.ID)
		}
		device["identifiers"] = identifiers
	}
	if len(info.Connections) > 0 {
		connections := make([][]string, 0, len(info.Connections))
		for _, connection := range info.Connections {
			connections = append(connections, []string{connection.Type, connection.Value})
		}
		device["connections"] = connections
	}
	setIfPresent(device, "name", info.Name)
	setIfPresent(device, "manufacturer", info.Manufacturer)
	setIfPresent(device, "model", info.Model)
	setIfPresent(device, "sw_version", info.SWVersion)
	setIfPresent(device, "configuration_url", info.ConfigurationURL)
	if info.ViaDevice != nil {
		device["via_device"] = info.ViaDevice.Domain + "_" + info.ViaDevice.ID
	}
	return device
}

// StatePayload - State as published.
func StatePayload(candidate entity.Entity) string {
	return entity.StateString(candidate)
}

// ParseRemoveDevicesCommand - MACs of a removal command, either {"macs": [...]} or a bare list.
func ParseRemoveDevicesCommand(payload []byte) ([]string, error) {
	var object map[string]interface{}
	if err := json.Unmarshal(payload, &object); err == nil {
		return tracker.MACsFromEvent(object), nil
	}
	var macs []string
	if err := json.Unmarshal(payload, &macs); err != nil {
		return nil, fmt.Errorf("failed to parse remove devices command: %w", err)
	}
	return macs, nil
}
