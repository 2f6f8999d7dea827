// Package tracker reconciles ARP table snapshots into device tracker entities, remembering devices in a persisted cache.
package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"dev.hon.one/pfbridge/entity"
	"dev.hon.one/pfbridge/firewall"
	"dev.hon.one/pfbridge/host"
	"dev.hon.one/pfbridge/state"
	"dev.hon.one/pfbridge/store"
)

const (
	arpDeleteTimeout = 5 * time.Second
	// ARP deletes running at once, the rest wait their turn.
	maxARPDeletes = 4
)

// Source - The device tracker coordinator.
type Source interface {
	Data() *state.Snapshot
	AddListener(listener func()) func()
}

// VendorResolver - MAC prefix vendor lookup.
type VendorResolver interface {
	Lookup(mac string) string
}

// ReloadRequester - Flags the owning entry for reload, enabling the given entities during it.
type ReloadRequester interface {
	RequestReload(entityIDs ...string)
}

// Config - Per-entry tracker settings.
type Config struct {
	EntryID string
	// Whitelisted MACs are enabled by default. Empty means every scanner is disabled by default.
	Devices   []string
	SaveDelay time.Duration
}

// CacheKey - Store key of the entry's presence cache.
func CacheKey(entryID string) string {
	return entity.Domain + "." + entryID + ".devices"
}

// RemoveDevicesTopic - Bus topic of the entry's device removal event.
func RemoveDevicesTopic(entryID string) string {
	return fmt.Sprintf("%s_%s_remove_devices", entity.Domain, entryID)
}

// Tracker - Device tracker platform of one entry.
type Tracker struct {
	config    Config
	client    firewall.Client
	source    Source
	host      *host.Host
	backend   store.Store
	saver     *store.DelayedSaver
	vendors   VendorResolver
	reload    ReloadRequester
	whitelist map[string]bool

	mutex   sync.RWMutex
	cache   Cache
	manager *entity.Manager
	undo    []func()

	// Deletes run off the reconciliation path. IPs with a delete in flight are not queued again.
	deleteCtx    context.Context
	deleteCancel context.CancelFunc
	deleteSlots  chan struct{}
	deleteGroup  sync.WaitGroup
	deleteMutex  sync.Mutex
	deleting     map[string]bool
}

// New - Create the tracker. Call LoadCache and Setup before use.
func New(config Config, client firewall.Client, source Source, host *host.Host, backend store.Store, vendors VendorResolver, reload ReloadRequester) *Tracker {
	whitelist := make(map[string]bool)
	for _, mac := range config.Devices {
		whitelist[firewall.NormalizeMAC(mac)] = true
	}
	deleteCtx, deleteCancel := context.WithCancel(context.Background())
	return &Tracker{
		config:    config,
		client:    client,
		source:    source,
		host:      host,
		backend:   backend,
		saver:     store.NewDelayedSaver(backend, CacheKey(config.EntryID), config.SaveDelay),
		vendors:   vendors,
		reload:    reload,
		whitelist: whitelist,
		cache:     make(Cache),

		deleteCtx:    deleteCtx,
		deleteCancel: deleteCancel,
		deleteSlots:  make(chan struct{}, maxARPDeletes),
		deleting:     make(map[string]bool),
	}
}

// LoadCache - Load the persisted cache. A missing cache is empty.
func (tracker *Tracker) LoadCache(ctx context.Context) error {
	cache := make(Cache)
	if _, err := tracker.backend.Load(ctx, CacheKey(tracker.config.EntryID), &cache); err != nil {
		return fmt.Errorf("failed to load device cache: %w", err)
	}
	normalized := make(Cache, len(cache))
	for mac, entry := range cache {
		normalized[firewall.NormalizeMAC(mac)] = entry
	}
	tracker.mutex.Lock()
	tracker.cache = normalized
	tracker.mutex.Unlock()
	log.WithFields(log.Fields{
		"entry":   tracker.config.EntryID,
		"devices": len(normalized),
	}).Debug("Loaded device cache")
	return nil
}

// Setup - Run the first reconciliation into the platform and follow the source and the removal event from then on.
func (tracker *Tracker) Setup(platform *host.Platform) error {
	tracker.mutex.Lock()
	tracker.manager = entity.NewManager(entity.PlatformDeviceTracker, tracker.build, platform.AddEntities, tracker.saver)
	manager := tracker.manager
	tracker.mutex.Unlock()

	if err := manager.ProcessEntities(); err != nil {
		return err
	}
	undoListener := manager.Subscribe(tracker.source)
	undoRemoval := tracker.host.Bus.Subscribe(RemoveDevicesTopic(tracker.config.EntryID), tracker.handleRemoveDevices)

	tracker.mutex.Lock()
	tracker.undo = append(tracker.undo, undoListener, undoRemoval)
	tracker.mutex.Unlock()
	return nil
}

// Unload - Detach from the source and the bus, abort queued ARP deletes and write any pending cache save.
func (tracker *Tracker) Unload() error {
	tracker.mutex.Lock()
	undo := tracker.undo
	tracker.undo = nil
	tracker.mutex.Unlock()
	for _, detach := range undo {
		detach()
	}
	tracker.deleteCancel()
	tracker.waitDeletes()
	return tracker.saver.Flush()
}

// Manager - The reconciler, nil before setup.
func (tracker *Tracker) Manager() *entity.Manager {
	tracker.mutex.RLock()
	defer tracker.mutex.RUnlock()
	return tracker.manager
}

// Cache - Copy of the current cache.
func (tracker *Tracker) Cache() Cache {
	tracker.mutex.RLock()
	defer tracker.mutex.RUnlock()
	return tracker.cache.copy()
}

func (tracker *Tracker) cacheEntry(mac string) (CacheEntry, bool) {
	tracker.mutex.RLock()
	defer tracker.mutex.RUnlock()
	entry, found := tracker.cache[mac]
	return entry, found
}

// build - Candidate scanners for the latest snapshot: live MACs in ARP order, then cached MACs missing from the ARP table.
func (tracker *Tracker) build() ([]entity.Entity, interface{}) {
	snapshot := tracker.source.Data()
	deviceID := snapshot.DeviceID()

	var liveMACs []string
	live := make(map[string]firewall.ARPEntry)
	if snapshot != nil {
		for _, entry := range snapshot.ARPTable {
			mac := entry.NormalizedMAC()
			if mac == "" {
				continue
			}
			if _, found := live[mac]; found {
				continue
			}
			live[mac] = entry
			liveMACs = append(liveMACs, mac)
		}
	}

	tracker.mutex.Lock()
	for _, mac := range liveMACs {
		tracker.cache[mac] = cacheEntryFromARP(live[mac])
	}
	var missingMACs []string
	for _, mac := range tracker.cache.sortedMACs() {
		if _, found := live[mac]; !found {
			missingMACs = append(missingMACs, mac)
		}
	}
	cache := tracker.cache.copy()
	tracker.mutex.Unlock()

	for _, mac := range liveMACs {
		if ip := live[mac].IPAddress; ip != "" {
			tracker.queueARPDelete(mac, ip)
		}
	}

	var entities []entity.Entity
	var enableOnReload []string
	for _, mac := range append(liveMACs, missingMACs...) {
		scanner := newScannerEntity(tracker, deviceID, mac, tracker.whitelist[mac])
		if scanner.enabledDefault {
			if entityID := tracker.disabledByIntegration(scanner.uniqueID); entityID != "" {
				enableOnReload = append(enableOnReload, entityID)
			}
		}
		entities = append(entities, scanner)
	}

	if len(enableOnReload) > 0 && tracker.reload != nil {
		log.WithFields(log.Fields{
			"entry":    tracker.config.EntryID,
			"entities": enableOnReload,
		}).Info("Whitelisted devices were disabled, requesting reload")
		tracker.reload.RequestReload(enableOnReload...)
	}

	log.WithFields(log.Fields{
		"entry":   tracker.config.EntryID,
		"live":    len(liveMACs),
		"cached":  len(missingMACs),
		"entries": len(entities),
	}).Trace("Built device tracker candidates")
	return entities, cache
}

// disabledByIntegration - Entity ID of the scanner's registration if the integration disabled it, else empty.
func (tracker *Tracker) disabledByIntegration(uniqueID string) string {
	entityID, found := tracker.host.Entities.LookupEntityID(entity.PlatformDeviceTracker, uniqueID)
	if !found {
		return ""
	}
	registration, found := tracker.host.Entities.Get(entityID)
	if !found || registration.DisabledBy != host.DisabledByIntegration {
		return ""
	}
	return entityID
}

// queueARPDelete - Make the firewall re-learn the entry, in the background. Failures are ignored.
func (tracker *Tracker) queueARPDelete(mac string, ip string) {
	tracker.deleteMutex.Lock()
	if tracker.deleting[ip] || tracker.deleteCtx.Err() != nil {
		tracker.deleteMutex.Unlock()
		return
	}
	tracker.deleting[ip] = true
	tracker.deleteGroup.Add(1)
	tracker.deleteMutex.Unlock()

	go func() {
		defer tracker.deleteGroup.Done()
		defer func() {
			tracker.deleteMutex.Lock()
			delete(tracker.deleting, ip)
			tracker.deleteMutex.Unlock()
		}()
		select {
		case tracker.deleteSlots <- struct{}{}:
		case <-tracker.deleteCtx.Done():
			return
		}
		defer func() { <-tracker.deleteSlots }()
		tracker.deleteARPEntry(mac, ip)
	}()
}

func (tracker *Tracker) deleteARPEntry(mac string, ip string) {
	ctx, cancel := context.WithTimeout(tracker.deleteCtx, arpDeleteTimeout)
	defer cancel()
	if err := tracker.client.DeleteARPEntry(ctx, ip); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"mac": mac,
			"ip":  ip,
		}).Debug("Failed to delete ARP entry")
	}
}

// waitDeletes - Wait for queued ARP deletes to finish.
func (tracker *Tracker) waitDeletes() {
	tracker.deleteGroup.Wait()
}

// RemoveDevices - Remove the devices from the device registry and the cache, saving the cache immediately.
func (tracker *Tracker) RemoveDevices(macs []string) error {
	tracker.mutex.Lock()
	for _, mac := range macs {
		mac = firewall.NormalizeMAC(mac)
		if device, found := tracker.host.Devices.GetByConnection(entity.ConnectionMAC, mac); found {
			tracker.host.RemoveDevice(device.ID)
		}
		delete(tracker.cache, mac)
	}
	cache := tracker.cache.copy()
	tracker.mutex.Unlock()

	log.WithFields(log.Fields{
		"entry": tracker.config.EntryID,
		"macs":  macs,
	}).Info("Removing devices")
	if err := tracker.saver.SaveNow(cache); err != nil {
		return fmt.Errorf("failed to save device cache: %w", err)
	}
	return nil
}

func (tracker *Tracker) handleRemoveDevices(event host.Event) {
	macs := MACsFromEvent(event.Data)
	if len(macs) == 0 {
		return
	}
	if err := tracker.RemoveDevices(macs); err != nil {
		log.WithError(err).WithField("entry", tracker.config.EntryID).Warn("Failed to remove devices")
	}
}

// MACsFromEvent - The "macs" list of a removal event payload.
func MACsFromEvent(data map[string]interface{}) []string {
	switch macs := data["macs"].(type) {
	case []string:
		return macs
	case []interface{}:
		result := make([]string, 0, len(macs))
		for _, mac := range macs {
			if text, ok := mac.(string); ok {
				result = append(result, text)
			}
		}
		return result
	}
	return nil
}
