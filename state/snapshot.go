// Package state holds the poll snapshots and the metrics derived from them.
package state

import (
	"strings"

	"dev.hon.one/pfbridge/firewall"
	"dev.hon.one/pfbridge/util"
)

// LeaseStats - Aggregated DHCP lease counts.
type LeaseStats struct {
	Total   int `json:"total"`
	Online  int `json:"online"`
	Offline int `json:"offline"`
}

// DHCPStats - Derived DHCP statistics.
type DHCPStats struct {
	Leases LeaseStats `json:"leases"`
}

// Snapshot - One poll cycle's fetched and derived state. Not modified after it is published.
type Snapshot struct {
	SystemInfo          *firewall.SystemInfo
	HostFirmwareVersion *firewall.FirmwareVersion
	Telemetry           *firewall.Telemetry
	Config              map[string]interface{}
	Interfaces          map[string]interface{}
	Services            []firewall.Service
	CARPInterfaces      []firewall.CARPInterface
	CARPStatus          bool
	DHCPLeases          []firewall.Lease
	DHCPStats           DHCPStats
	ARPTable            []firewall.ARPEntry
	// Seconds since epoch.
	UpdateTime float64
	// Never carries a previous snapshot of its own.
	Previous *Snapshot
}

// withoutPrevious - Shallow copy with the history stripped.
func (snapshot *Snapshot) withoutPrevious() *Snapshot {
	if snapshot == nil {
		return nil
	}
	copied := *snapshot
	copied.Previous = nil
	return &copied
}

// DeviceID - The firewall's unique device ID, empty if unknown.
func (snapshot *Snapshot) DeviceID() string {
	if snapshot == nil || snapshot.SystemInfo == nil {
		return ""
	}
	return snapshot.SystemInfo.NetgateDeviceID
}

// Interface - Interface telemetry by name, nil if missing.
func (snapshot *Snapshot) Interface(name string) *firewall.InterfaceTelemetry {
	if snapshot == nil || snapshot.Telemetry == nil {
		return nil
	}
	return snapshot.Telemetry.Interfaces[name]
}

// ARPEntry - The first ARP entry with the given normalized MAC address.
func (snapshot *Snapshot) ARPEntry(mac string) (firewall.ARPEntry, bool) {
	if snapshot == nil {
		return firewall.ARPEntry{}, false
	}
	for _, entry := range snapshot.ARPTable {
		if entry.NormalizedMAC() == mac {
			return entry, true
		}
	}
	return firewall.ARPEntry{}, false
}

// Lookup - Resolve a dotted path such as "telemetry.cpu.used_percent" or "dhcp_stats.leases.online".
// Any missing segment yields the default.
func (snapshot *Snapshot) Lookup(path string, def interface{}) interface{} {
	if snapshot == nil {
		return def
	}
	head, rest, _ := strings.Cut(path, ".")
	switch head {
	case "telemetry":
		if snapshot.Telemetry == nil {
			return def
		}
		return util.DictGet(snapshot.Telemetry.Raw, rest, def)
	case "config":
		return util.DictGet(snapshot.Config, rest, def)
	case "interfaces":
		return util.DictGet(snapshot.Interfaces, rest, def)
	case "carp_status":
		if rest != "" {
			return def
		}
		return snapshot.CARPStatus
	case "update_time":
		if rest != "" || snapshot.UpdateTime == 0 {
			return def
		}
		return snapshot.UpdateTime
	case "dhcp_stats":
		switch rest {
		case "leases.total":
			return snapshot.DHCPStats.Leases.Total
		case "leases.online":
			return snapshot.DHCPStats.Leases.Online
		case "leases.offline":
			return snapshot.DHCPStats.Leases.Offline
		}
	case "system_info":
		if snapshot.SystemInfo == nil {
			return def
		}
		switch rest {
		case "hostname":
			return snapshot.SystemInfo.Hostname
		case "domain":
			return snapshot.SystemInfo.Domain
		case "serial":
			return snapshot.SystemInfo.Serial
		case "netgate_device_id":
			return snapshot.SystemInfo.NetgateDeviceID
		case "platform":
			return snapshot.SystemInfo.Platform
		}
	case "host_firmware_version":
		if snapshot.HostFirmwareVersion == nil {
			return def
		}
		switch rest {
		case "platform":
			return snapshot.HostFirmwareVersion.Platform
		case "firmware.version":
			return snapshot.HostFirmwareVersion.Firmware.Version
		case "kernel.version":
			return snapshot.HostFirmwareVersion.Kernel.Version
		}
	}
	return def
}
