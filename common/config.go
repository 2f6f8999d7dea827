package common

import (
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"dev.hon.one/pfbridge/db"
	"dev.hon.one/pfbridge/firewall"
	"dev.hon.one/pfbridge/integration"
	"dev.hon.one/pfbridge/mqtt"
	"dev.hon.one/pfbridge/oui"
	"dev.hon.one/pfbridge/store"
	"dev.hon.one/pfbridge/util"
)

// AppName - App name.
const AppName = "pfbridge"

// AppAuthor - App author.
const AppAuthor = "HON95"

// AppVersion - App version.
const AppVersion = "0.1.0"

// PrometheusNamespace - Prometheus metrics namespace.
const PrometheusNamespace = "pfbridge"

// Config - The config.
type Config struct {
	HTTPEndpoint string `json:"http_endpoint" toml:"http_endpoint"`
	// Derived from the firewall address if empty.
	EntryID                   string          `json:"entry_id" toml:"entry_id"`
	Title                     string          `json:"title" toml:"title"`
	Firewall                  firewall.Config `json:"firewall" toml:"firewall"`
	ScanInterval              int             `json:"scan_interval" toml:"scan_interval"`
	DeviceTrackerEnabled      bool            `json:"device_tracker_enabled" toml:"device_tracker_enabled"`
	DeviceTrackerScanInterval int             `json:"device_tracker_scan_interval" toml:"device_tracker_scan_interval"`
	Devices                   []string        `json:"devices" toml:"devices"`
	Storage                   store.Config    `json:"storage" toml:"storage"`
	SaveDelaySeconds          float64         `json:"save_delay" toml:"save_delay"`
	InfluxDB                  db.Config       `json:"influxdb" toml:"influxdb"`
	MQTT                      mqtt.Config     `json:"mqtt" toml:"mqtt"`
	OUI                       oui.Config      `json:"oui" toml:"oui"`
}

// LoadConfig - Load configuration file (JSON, or TOML by extension). Defaults to defaults if the path is empty.
func LoadConfig(path string) bool {
	if path != "" {
		log.WithFields(log.Fields{
			"config_path": path,
		}).Info("Loading config")

		// Load
		if !util.ParseConfigFile(&GlobalConfig, path) {
			return false
		}
	}

	if !GlobalConfig.Validate() {
		return false
	}
	if GlobalConfig.EntryID == "" {
		GlobalConfig.EntryID = DeriveEntryID(GlobalConfig.Firewall)
		log.WithField("entry_id", GlobalConfig.EntryID).Info("No entry ID configured, derived one from the firewall address")
	}
	return true
}

// Validate - Check the config, logging every problem found.
func (config *Config) Validate() bool {
	valid := true
	if config.Firewall.Address == "" {
		log.Error("Firewall address missing")
		valid = false
	}
	if config.Firewall.Username == "" {
		log.Error("Firewall username missing")
		valid = false
	}
	if config.ScanInterval < 0 || config.DeviceTrackerScanInterval < 0 {
		log.Error("Negative scan interval not allowed")
		valid = false
	}
	if config.SaveDelaySeconds < 0 {
		log.Error("Negative save delay not allowed")
		valid = false
	}
	switch strings.ToLower(config.Storage.Backend) {
	case "", store.BackendFile, store.BackendSQLite, store.BackendMemory:
	default:
		log.WithField("backend", config.Storage.Backend).Error("Unknown storage backend")
		valid = false
	}
	return valid
}

// DeriveEntryID - Stable entry ID for a firewall, so restarts find the same persisted state.
func DeriveEntryID(firewallConfig firewall.Config) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("ssh://"+firewallConfig.Address)).String()
}

// SaveDelay - Debounce delay of persisted state.
func (config *Config) SaveDelay() time.Duration {
	return time.Duration(config.SaveDelaySeconds * float64(time.Second))
}

// Entry - The configured entry.
func (config *Config) Entry() integration.Entry {
	return integration.Entry{
		ID:    config.EntryID,
		Title: config.Title,
		Options: integration.Options{
			ScanInterval:              config.ScanInterval,
			DeviceTrackerEnabled:      config.DeviceTrackerEnabled,
			DeviceTrackerScanInterval: config.DeviceTrackerScanInterval,
			Devices:                   config.Devices,
		},
	}
}
