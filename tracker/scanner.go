package tracker

import (
	"strings"
	"sync"

	"dev.hon.one/pfbridge/entity"
	"dev.hon.one/pfbridge/firewall"
	"dev.hon.one/pfbridge/util"
)

// Presence states of a scanner entity.
const (
	StateHome    = "home"
	StateNotHome = "not_home"
)

// SourceTypeRouter - Presence is detected by the router.
const SourceTypeRouter = "router"

// ScannerEntity - Presence of one MAC address. Attributes come from the live ARP entry, or from the cache while the device is away.
type ScannerEntity struct {
	tracker        *Tracker
	mac            string
	uniqueID       string
	enabledDefault bool

	vendorMutex sync.Mutex
	vendor      string
}

func newScannerEntity(tracker *Tracker, deviceID string, mac string, enabledDefault bool) *ScannerEntity {
	return &ScannerEntity{
		tracker:        tracker,
		mac:            mac,
		uniqueID:       ScannerUniqueID(deviceID, mac),
		enabledDefault: enabledDefault,
	}
}

// ScannerUniqueID - Unique ID of the scanner for a MAC address on a firewall.
func ScannerUniqueID(deviceID string, mac string) string {
	return util.Slugify(deviceID + "_mac_" + mac)
}

// cleanHostname - ARP hostnames use "?" for unknown.
func cleanHostname(hostname string) string {
	return strings.Trim(hostname, "?")
}

func (scanner *ScannerEntity) UniqueID() string {
	return scanner.uniqueID
}

func (scanner *ScannerEntity) Platform() string {
	return entity.PlatformDeviceTracker
}

func (scanner *ScannerEntity) EnabledDefault() bool {
	return scanner.enabledDefault
}

// MACAddress - The tracked MAC address.
func (scanner *ScannerEntity) MACAddress() string {
	return scanner.mac
}

// SourceType - Always the router.
func (scanner *ScannerEntity) SourceType() string {
	return SourceTypeRouter
}

func (scanner *ScannerEntity) arpEntry() (firewall.ARPEntry, bool) {
	return scanner.tracker.source.Data().ARPEntry(scanner.mac)
}

// IsConnected - Connected if and only if the current ARP table has the MAC.
func (scanner *ScannerEntity) IsConnected() bool {
	_, found := scanner.arpEntry()
	return found
}

// IPAddress - From the live entry, else from the cache, else empty.
func (scanner *ScannerEntity) IPAddress() string {
	if entry, found := scanner.arpEntry(); found {
		return entry.IPAddress
	}
	if cached, found := scanner.tracker.cacheEntry(scanner.mac); found {
		return cached.IPAddress
	}
	return ""
}

// Hostname - From the live entry, else from the cache. Empty if unknown.
func (scanner *ScannerEntity) Hostname() string {
	if entry, found := scanner.arpEntry(); found {
		return cleanHostname(entry.Hostname)
	}
	if cached, found := scanner.tracker.cacheEntry(scanner.mac); found {
		return cached.Hostname
	}
	return ""
}

// ExtraAttributes - Interface, expiry and type of the live entry, else of the cache. Nil if neither exists.
func (scanner *ScannerEntity) ExtraAttributes() *CacheAttributes {
	if entry, found := scanner.arpEntry(); found {
		attributes := cacheEntryFromARP(entry).ExtraStateAttributes
		return &attributes
	}
	if cached, found := scanner.tracker.cacheEntry(scanner.mac); found {
		attributes := cached.ExtraStateAttributes
		return &attributes
	}
	return nil
}

// Vendor - Vendor of the MAC prefix, kept once found. Empty if unknown or the registry is still loading.
func (scanner *ScannerEntity) Vendor() string {
	scanner.vendorMutex.Lock()
	defer scanner.vendorMutex.Unlock()
	if scanner.vendor == "" && scanner.tracker.vendors != nil {
		scanner.vendor = scanner.tracker.vendors.Lookup(scanner.mac)
	}
	return scanner.vendor
}

func (scanner *ScannerEntity) Name() string {
	if hostname := scanner.Hostname(); hostname != "" {
		return hostname
	}
	return "pfSense: " + scanner.mac
}

func (scanner *ScannerEntity) Available() bool {
	return scanner.tracker.source.Data() != nil
}

func (scanner *ScannerEntity) State() interface{} {
	if scanner.IsConnected() {
		return StateHome
	}
	return StateNotHome
}

func (scanner *ScannerEntity) Attributes() map[string]interface{} {
	attributes := map[string]interface{}{
		"source_type": SourceTypeRouter,
		"mac":         scanner.mac,
	}
	if ip := scanner.IPAddress(); ip != "" {
		attributes["ip"] = ip
	}
	if hostname := scanner.Hostname(); hostname != "" {
		attributes["host_name"] = hostname
	}
	if vendor := scanner.Vendor(); vendor != "" {
		attributes["vendor"] = vendor
	}
	if extra := scanner.ExtraAttributes(); extra != nil {
		attributes["interface"] = extra.Interface
		attributes["expires"] = extra.Expires
		attributes["type"] = extra.Type
	}
	return attributes
}

func (scanner *ScannerEntity) DeviceInfo() *entity.DeviceInfo {
	info := &entity.DeviceInfo{
		Connections:  []entity.Connection{{Type: entity.ConnectionMAC, Value: scanner.mac}},
		Name:         scanner.Name(),
		Model:        "pfSense tracked device",
		Manufacturer: scanner.Vendor(),
	}
	if deviceID := scanner.tracker.source.Data().DeviceID(); deviceID != "" {
		info.ViaDevice = &entity.Identifier{Domain: entity.Domain, ID: deviceID}
	}
	return info
}
