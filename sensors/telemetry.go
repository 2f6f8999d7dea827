package sensors

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"dev.hon.one/pfbridge/entity"
	"dev.hon.one/pfbridge/firewall"
	"dev.hon.one/pfbridge/util"
)

var nonNumericPattern = regexp.MustCompile(`[^0-9.]*`)

// InterfaceProperties - Interface values exposed as sensors. Rates are computed by the poller.
var InterfaceProperties = []string{
	"status",
	"inerrs",
	"outerrs",
	"collisions",
	"inbytespass",
	"inbytespass_kilobytes_per_second",
	"outbytespass",
	"outbytespass_kilobytes_per_second",
	"inpktspass",
	"inpktspass_packets_per_second",
	"outpktspass",
	"outpktspass_packets_per_second",
	"inbytesblock",
	"inbytesblock_kilobytes_per_second",
	"outbytesblock",
	"outbytesblock_kilobytes_per_second",
	"inpktsblock",
	"inpktsblock_packets_per_second",
	"outpktsblock",
	"outpktsblock_packets_per_second",
	"inbytes",
	"inbytes_kilobytes_per_second",
	"outbytes",
	"outbytes_kilobytes_per_second",
	"inpkts",
	"inpkts_packets_per_second",
	"outpkts",
	"outpkts_packets_per_second",
}

var interfacePropertiesEnabled = map[string]bool{
	"status":                        true,
	"inbytes_kilobytes_per_second":  true,
	"outbytes_kilobytes_per_second": true,
	"inpkts_packets_per_second":     true,
	"outpkts_packets_per_second":    true,
}

// GatewayProperties - Gateway values exposed as sensors.
var GatewayProperties = []string{"status", "delay", "stddev", "loss"}

// OpenVPNServerProperties - OpenVPN server values exposed as sensors.
var OpenVPNServerProperties = []string{"connected_client_count", "total_bytes_recv", "total_bytes_sent"}

// NormalizeFilesystemName - Filesystem device or mountpoint usable in a key.
func NormalizeFilesystemName(name string) string {
	return strings.Trim(strings.ReplaceAll(name, "/", "_slash_"), "_")
}

// FilesystemSensor - Used percentage of a filesystem.
type FilesystemSensor struct {
	sensor
	device string
}

func newFilesystemSensor(source Source, title string, device string, mountpoint string) *FilesystemSensor {
	deviceClean := NormalizeFilesystemName(device)
	return &FilesystemSensor{
		sensor: newSensor(source, title, entity.PlatformSensor,
			"telemetry.filesystems."+deviceClean,
			"Filesystem Used Percentage "+NormalizeFilesystemName(mountpoint),
			true,
			entity.Description{Unit: unitPercent, Icon: "mdi:harddisk", StateClass: stateClassMeasure}),
		device: deviceClean,
	}
}

func (sensor *FilesystemSensor) filesystem() map[string]interface{} {
	filesystems, _ := sensor.lookup("telemetry.filesystems").([]interface{})
	for _, raw := range filesystems {
		filesystem, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if NormalizeFilesystemName(util.ToString(filesystem["device"])) == sensor.device {
			return filesystem
		}
	}
	return nil
}

func (sensor *FilesystemSensor) Available() bool {
	return sensor.filesystem() != nil && sensor.available()
}

func (sensor *FilesystemSensor) State() interface{} {
	filesystem := sensor.filesystem()
	if filesystem == nil {
		return entity.StateUnknown
	}
	return filesystem["percent_used"]
}

func (sensor *FilesystemSensor) Attributes() map[string]interface{} {
	filesystem := sensor.filesystem()
	if filesystem == nil {
		return nil
	}
	return pick(filesystem, "device", "type", "total_size", "mountpoint")
}

// InterfaceSensor - A counter, rate or status of an interface.
type InterfaceSensor struct {
	sensor
	interfaceName string
	property      string
}

func interfaceDescription(property string) entity.Description {
	description := entity.Description{}
	switch {
	case strings.Contains(property, "_packets_per_second"):
		description.StateClass = stateClassMeasure
		description.Unit = "packets/s"
	case strings.Contains(property, "_kilobytes_per_second"):
		description.StateClass = stateClassMeasure
		description.Unit = "kB/s"
	case strings.Contains(property, "bytes"):
		description.Unit = unitBytes
	case strings.Contains(property, "pkts"):
		description.Unit = "packets"
	}
	if property == "inerrs" || property == "outerrs" || property == "collisions" {
		description.Unit = unitCount
	}
	switch {
	case property == "status":
		description.Icon = iconCheckNetwork
	case strings.Contains(property, "pkts") || strings.Contains(property, "bytes"):
		description.Icon = iconServer
	default:
		description.Icon = iconGauge
	}
	return description
}

func newInterfaceSensor(source Source, title string, iface *firewall.InterfaceTelemetry, property string) *InterfaceSensor {
	return &InterfaceSensor{
		sensor: newSensor(source, title, entity.PlatformSensor,
			fmt.Sprintf("telemetry.interface.%s.%s", iface.IfName, property),
			fmt.Sprintf("Interface %s %s", iface.Descr, property),
			interfacePropertiesEnabled[property],
			interfaceDescription(property)),
		interfaceName: iface.Name,
		property:      property,
	}
}

func (sensor *InterfaceSensor) value() (interface{}, bool) {
	iface := sensor.source.Data().Interface(sensor.interfaceName)
	if iface == nil {
		return nil, false
	}
	return iface.Value(sensor.property)
}

func (sensor *InterfaceSensor) Available() bool {
	_, found := sensor.value()
	return found && sensor.available()
}

func (sensor *InterfaceSensor) State() interface{} {
	value, found := sensor.value()
	if !found {
		return entity.StateUnknown
	}
	return value
}

func (sensor *InterfaceSensor) Attributes() map[string]interface{} {
	raw, _ := sensor.lookup("telemetry.interfaces." + sensor.interfaceName).(map[string]interface{})
	if raw == nil {
		return nil
	}
	return pick(raw, "hwif", "enable", "if", "macaddr", "mtu")
}

func (sensor *InterfaceSensor) Description() entity.Description {
	description := sensor.description
	if sensor.property == "status" && sensor.State() != "up" {
		description.Icon = iconCloseNetwork
	}
	return description
}

// CARPInterfaceSensor - Status of a CARP virtual IP.
type CARPInterfaceSensor struct {
	sensor
	carpID string
}

func newCARPInterfaceSensor(source Source, title string, carp firewall.CARPInterface) *CARPInterfaceSensor {
	return &CARPInterfaceSensor{
		sensor: newSensor(source, title, entity.PlatformSensor,
			"carp.interface."+carp.UniqID,
			fmt.Sprintf("CARP Interface Status %s (%s)", carp.UniqID, carp.Descr),
			true,
			entity.Description{Icon: iconCheckNetwork}),
		carpID: carp.UniqID,
	}
}

func (sensor *CARPInterfaceSensor) carpInterface() *firewall.CARPInterface {
	snapshot := sensor.source.Data()
	if snapshot == nil {
		return nil
	}
	for i := range snapshot.CARPInterfaces {
		if snapshot.CARPInterfaces[i].UniqID == sensor.carpID {
			return &snapshot.CARPInterfaces[i]
		}
	}
	return nil
}

func (sensor *CARPInterfaceSensor) Available() bool {
	return sensor.carpInterface() != nil && sensor.available()
}

func (sensor *CARPInterfaceSensor) State() interface{} {
	carp := sensor.carpInterface()
	if carp == nil || carp.Status == "" {
		return entity.StateUnknown
	}
	return carp.Status
}

func (sensor *CARPInterfaceSensor) Attributes() map[string]interface{} {
	carp := sensor.carpInterface()
	if carp == nil {
		return nil
	}
	return map[string]interface{}{
		"interface": carp.Interface,
		"subnet":    carp.Subnet,
		"mode":      carp.Mode,
		"descr":     carp.Descr,
	}
}

func (sensor *CARPInterfaceSensor) Description() entity.Description {
	description := sensor.description
	if sensor.State() != "MASTER" {
		description.Icon = iconCloseNetwork
	}
	return description
}

// GatewaySensor - Status, delay, deviation or loss of a gateway.
type GatewaySensor struct {
	sensor
	gateway  string
	property string
}

func newGatewaySensor(source Source, title string, gateway string, property string) *GatewaySensor {
	description := entity.Description{Icon: iconRouter}
	switch property {
	case "loss":
		description.Unit = unitPercent
	case "delay", "stddev":
		description.Unit = "ms"
	case "status":
		description.Icon = iconCheckNetwork
	}
	return &GatewaySensor{
		sensor: newSensor(source, title, entity.PlatformSensor,
			fmt.Sprintf("telemetry.gateway.%s.%s", gateway, property),
			fmt.Sprintf("Gateway %s %s", gateway, property),
			true,
			description),
		gateway:  gateway,
		property: property,
	}
}

func (sensor *GatewaySensor) raw() map[string]interface{} {
	gateway, _ := sensor.lookup("telemetry.gateways." + sensor.gateway).(map[string]interface{})
	return gateway
}

func (sensor *GatewaySensor) Available() bool {
	gateway := sensor.raw()
	if gateway == nil {
		return false
	}
	_, found := gateway[sensor.property]
	return found && sensor.available()
}

// State - Delay, deviation and loss come with units attached, which are stripped.
func (sensor *GatewaySensor) State() interface{} {
	gateway := sensor.raw()
	if gateway == nil {
		return entity.StateUnknown
	}
	value, found := gateway[sensor.property]
	if !found {
		return entity.StateUnknown
	}
	switch sensor.property {
	case "delay", "stddev", "loss":
		return nonNumericPattern.ReplaceAllString(util.ToString(value), "")
	}
	return value
}

func (sensor *GatewaySensor) Attributes() map[string]interface{} {
	gateway := sensor.raw()
	if gateway == nil {
		return nil
	}
	attributes := pick(gateway, "monitorip", "srcip", "substatus")
	if attributes["substatus"] == "none" {
		attributes["substatus"] = nil
	}
	return attributes
}

func (sensor *GatewaySensor) Description() entity.Description {
	description := sensor.description
	if sensor.property == "status" && sensor.State() != "online" {
		description.Icon = iconCloseNetwork
	}
	return description
}

// OpenVPNServerSensor - Client count or traffic of an OpenVPN server.
type OpenVPNServerSensor struct {
	sensor
	vpnID    string
	property string
}

func newOpenVPNServerSensor(source Source, title string, vpnID string, serverName string, property string) *OpenVPNServerSensor {
	description := entity.Description{Icon: iconServer, Unit: unitBytes}
	if property == "connected_client_count" {
		description = entity.Description{Icon: iconIPNetwork, Unit: unitClients, StateClass: stateClassMeasure}
	}
	return &OpenVPNServerSensor{
		sensor: newSensor(source, title, entity.PlatformSensor,
			fmt.Sprintf("telemetry.openvpn.servers.%s.%s", vpnID, property),
			fmt.Sprintf("OpenVPN Server %s (%s) %s", vpnID, serverName, property),
			false,
			description),
		vpnID:    vpnID,
		property: property,
	}
}

func (sensor *OpenVPNServerSensor) raw() map[string]interface{} {
	server, _ := sensor.lookup("telemetry.openvpn.servers." + sensor.vpnID).(map[string]interface{})
	return server
}

func (sensor *OpenVPNServerSensor) Available() bool {
	server := sensor.raw()
	if server == nil {
		return false
	}
	_, found := server[sensor.property]
	return found && sensor.available()
}

func (sensor *OpenVPNServerSensor) State() interface{} {
	server := sensor.raw()
	if server == nil {
		return entity.StateUnknown
	}
	value, found := server[sensor.property]
	if !found {
		return entity.StateUnknown
	}
	return value
}

func (sensor *OpenVPNServerSensor) Attributes() map[string]interface{} {
	server := sensor.raw()
	if server == nil {
		return map[string]interface{}{}
	}
	return pick(server, "vpnid", "name")
}

// pick - The listed keys of a raw map, nil where missing.
func pick(raw map[string]interface{}, keys ...string) map[string]interface{} {
	picked := make(map[string]interface{}, len(keys))
	for _, key := range keys {
		picked[key] = raw[key]
	}
	return picked
}

// sortedKeys - Keys of a raw map, sorted.
func sortedKeys(raw map[string]interface{}) []string {
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
