package integration

import (
	"context"
	"fmt"
	"time"

	"dev.hon.one/pfbridge/entity"
	"dev.hon.one/pfbridge/firewall"
	"dev.hon.one/pfbridge/store"
)

// Defaults for the entry options, in seconds.
const (
	DefaultScanInterval              = 30
	DefaultDeviceTrackerScanInterval = 150
)

// Options - User settings of an entry.
type Options struct {
	ScanInterval              int      `json:"scan_interval" toml:"scan_interval"`
	DeviceTrackerEnabled      bool     `json:"device_tracker_enabled" toml:"device_tracker_enabled"`
	DeviceTrackerScanInterval int      `json:"device_tracker_scan_interval" toml:"device_tracker_scan_interval"`
	Devices                   []string `json:"devices" toml:"devices"`
	// The whitelist as of the last removal event.
	PreviousDevices []string `json:"previous_devices,omitempty" toml:"previous_devices"`
}

// WithDefaults - Fill in unset intervals and normalize MAC addresses.
func (options Options) WithDefaults() Options {
	if options.ScanInterval <= 0 {
		options.ScanInterval = DefaultScanInterval
	}
	if options.DeviceTrackerScanInterval <= 0 {
		options.DeviceTrackerScanInterval = DefaultDeviceTrackerScanInterval
	}
	options.Devices = normalizeMACs(options.Devices)
	options.PreviousDevices = normalizeMACs(options.PreviousDevices)
	return options
}

func (options Options) scanInterval() time.Duration {
	return time.Duration(options.ScanInterval) * time.Second
}

func (options Options) deviceTrackerScanInterval() time.Duration {
	return time.Duration(options.DeviceTrackerScanInterval) * time.Second
}

func normalizeMACs(macs []string) []string {
	if macs == nil {
		return nil
	}
	normalized := make([]string, 0, len(macs))
	for _, mac := range macs {
		if mac = firewall.NormalizeMAC(mac); mac != "" {
			normalized = append(normalized, mac)
		}
	}
	return normalized
}

// Entry - A configured firewall.
type Entry struct {
	ID      string
	Title   string
	Options Options
}

// OptionsKey - Store key of the entry's persisted options.
func OptionsKey(entryID string) string {
	return entity.Domain + "." + entryID + ".options"
}

// persistedOptions - The option state owned by the integration rather than the user.
type persistedOptions struct {
	PreviousDevices []string `json:"previous_devices"`
}

// LoadPersistedOptions - Merge options persisted by earlier runs into the configured ones.
func LoadPersistedOptions(ctx context.Context, backend store.Store, entry Entry) (Entry, error) {
	var persisted persistedOptions
	found, err := backend.Load(ctx, OptionsKey(entry.ID), &persisted)
	if err != nil {
		return entry, fmt.Errorf("failed to load options: %w", err)
	}
	if found && len(entry.Options.PreviousDevices) == 0 {
		entry.Options.PreviousDevices = persisted.PreviousDevices
	}
	return entry, nil
}

func savePersistedOptions(ctx context.Context, backend store.Store, entry Entry) error {
	return backend.Save(ctx, OptionsKey(entry.ID), persistedOptions{PreviousDevices: entry.Options.PreviousDevices})
}

// macsToRemove - Devices dropped from the whitelist since the last removal, or without history the live devices not whitelisted.
func macsToRemove(options Options, arpTable []firewall.ARPEntry) []string {
	whitelisted := make(map[string]bool)
	for _, mac := range options.Devices {
		whitelisted[mac] = true
	}

	var candidates []string
	switch {
	case len(options.PreviousDevices) > 0:
		candidates = options.PreviousDevices
	case len(options.Devices) > 0:
		for _, entry := range arpTable {
			candidates = append(candidates, entry.NormalizedMAC())
		}
	}

	seen := make(map[string]bool)
	var macs []string
	for _, mac := range candidates {
		if mac == "" || whitelisted[mac] || seen[mac] {
			continue
		}
		seen[mac] = true
		macs = append(macs, mac)
	}
	return macs
}
