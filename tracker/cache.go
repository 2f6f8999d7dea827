package tracker

import (
	"sort"

	"dev.hon.one/pfbridge/firewall"
)

// CacheAttributes - The extra state attributes remembered for a device.
type CacheAttributes struct {
	Interface string      `json:"interface"`
	Expires   interface{} `json:"expires"`
	Type      string      `json:"type"`
}

// CacheEntry - What is remembered about a device after it drops out of the ARP table.
type CacheEntry struct {
	ExtraStateAttributes CacheAttributes `json:"extra_state_attributes"`
	IPAddress            string          `json:"ip_address"`
	Hostname             string          `json:"hostname"`
}

// Cache - Remembered devices by lowercased MAC address.
type Cache map[string]CacheEntry

// cacheEntryFromARP - Cache entry for a live ARP entry.
func cacheEntryFromARP(entry firewall.ARPEntry) CacheEntry {
	return CacheEntry{
		ExtraStateAttributes: CacheAttributes{
			Interface: entry.Interface,
			Expires:   entry.Expires,
			Type:      entry.Type,
		},
		IPAddress: entry.IPAddress,
		Hostname:  cleanHostname(entry.Hostname),
	}
}

// copy - Shallow copy safe to hand to a background save.
func (cache Cache) copy() Cache {
	copied := make(Cache, len(cache))
	for mac, entry := range cache {
		copied[mac] = entry
	}
	return copied
}

// sortedMACs - MACs in the cache, sorted.
func (cache Cache) sortedMACs() []string {
	macs := make([]string, 0, len(cache))
	for mac := range cache {
		macs = append(macs, mac)
	}
	sort.Strings(macs)
	return macs
}
