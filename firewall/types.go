package firewall

import (
	"encoding/json"
	"strings"

	"dev.hon.one/pfbridge/util"
)

// Byte and packet counters which get rates computed for them.
var CounterFields = []string{
	"inbytes",
	"outbytes",
	"inbytespass",
	"outbytespass",
	"inbytesblock",
	"outbytesblock",
	"inpkts",
	"outpkts",
	"inpktspass",
	"outpktspass",
	"inpktsblock",
	"outpktsblock",
}

// SystemInfo - Identity of the firewall.
type SystemInfo struct {
	Hostname        string `json:"hostname"`
	Domain          string `json:"domain"`
	Serial          string `json:"serial"`
	NetgateDeviceID string `json:"netgate_device_id"`
	Platform        string `json:"platform"`
}

// FirmwareVersion - Output of the host firmware version call.
type FirmwareVersion struct {
	Platform string `json:"platform"`
	Firmware struct {
		Version string `json:"version"`
	} `json:"firmware"`
	Kernel struct {
		Version string `json:"version"`
	} `json:"kernel"`
}

// InterfaceTelemetry - Counters for a single interface, plus the rates computed from them.
type InterfaceTelemetry struct {
	Name     string
	Descr    string
	IfName   string
	Status   string
	Counters map[string]float64
	// Keyed "<counter>_packets_per_second" or "<counter>_kilobytes_per_second".
	Rates map[string]int64
}

// Value - Look up a counter, computed rate or descriptive field by name.
func (iface *InterfaceTelemetry) Value(property string) (interface{}, bool) {
	switch property {
	case "status":
		return iface.Status, iface.Status != ""
	case "descr":
		return iface.Descr, true
	case "ifname":
		return iface.IfName, true
	}
	if rate, found := iface.Rates[property]; found {
		return rate, true
	}
	if counter, found := iface.Counters[property]; found {
		return counter, true
	}
	return nil, false
}

// Telemetry - Telemetry with typed interface counters. Raw keeps the full decoded tree for path lookups.
type Telemetry struct {
	Interfaces map[string]*InterfaceTelemetry
	Raw        map[string]interface{}
}

// NewTelemetry - Build telemetry from the decoded tree.
func NewTelemetry(raw map[string]interface{}) *Telemetry {
	telemetry := &Telemetry{
		Interfaces: make(map[string]*InterfaceTelemetry),
		Raw:        raw,
	}
	if raw == nil {
		telemetry.Raw = make(map[string]interface{})
	}
	interfaces, _ := raw["interfaces"].(map[string]interface{})
	for name, rawInterface := range interfaces {
		fields, ok := rawInterface.(map[string]interface{})
		if !ok {
			continue
		}
		telemetry.Interfaces[name] = NewInterfaceTelemetry(name, fields)
	}
	return telemetry
}

// NewInterfaceTelemetry - Build interface telemetry from its decoded fields. Non-numeric fields other than the descriptive ones are dropped.
func NewInterfaceTelemetry(name string, fields map[string]interface{}) *InterfaceTelemetry {
	iface := &InterfaceTelemetry{
		Name:     name,
		Counters: make(map[string]float64),
		Rates:    make(map[string]int64),
	}
	for key, value := range fields {
		switch key {
		case "descr":
			iface.Descr = util.ToString(value)
		case "ifname":
			iface.IfName = util.ToString(value)
		case "status":
			iface.Status = util.ToString(value)
		default:
			if number, ok := util.ToFloat(value); ok {
				iface.Counters[key] = number
			}
		}
	}
	if iface.IfName == "" {
		iface.IfName = name
	}
	return iface
}

// Lease - A DHCP lease.
type Lease struct {
	IP       string `json:"ip"`
	MAC      string `json:"mac"`
	Hostname string `json:"hostname"`
	If       string `json:"if"`
	Type     string `json:"type"`
	Starts   string `json:"starts"`
	Ends     string `json:"ends"`
	Act      string `json:"act"`
	Online   string `json:"online"`
	Descr    string `json:"descr"`
}

// ARPEntry - A row of the firewall ARP table.
type ARPEntry struct {
	MACAddress string      `json:"mac-address"`
	IPAddress  string      `json:"ip-address"`
	Hostname   string      `json:"hostname"`
	Interface  string      `json:"interface"`
	Expires    interface{} `json:"expires"`
	Type       string      `json:"type"`
}

// NormalizedMAC - Lowercased MAC address, the identity of a tracked device.
func (entry ARPEntry) NormalizedMAC() string {
	return NormalizeMAC(entry.MACAddress)
}

// NormalizeMAC - Lowercase and trim a MAC address.
func NormalizeMAC(mac string) string {
	return strings.ToLower(strings.TrimSpace(mac))
}

// CARPInterface - A CARP virtual IP with its status.
type CARPInterface struct {
	UniqID    string `json:"uniqid"`
	Descr     string `json:"descr"`
	Interface string `json:"interface"`
	Subnet    string `json:"subnet"`
	Mode      string `json:"mode"`
	Status    string `json:"status"`
}

// Service - A firewall service and whether it runs.
type Service struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
	Status      bool   `json:"status"`
}

// UnmarshalJSON - Services may omit enabled/status or report them as strings.
func (service *Service) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	service.Name = util.ToString(raw["name"])
	service.Description = util.ToString(raw["description"])
	if enabled, ok := util.ToFloat(raw["enabled"]); ok {
		service.Enabled = enabled != 0
	}
	if status, ok := util.ToFloat(raw["status"]); ok {
		service.Status = status != 0
	}
	return nil
}
