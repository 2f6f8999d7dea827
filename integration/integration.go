// Package integration sets up, reloads and removes a configured firewall entry.
package integration

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"dev.hon.one/pfbridge/coordinator"
	"dev.hon.one/pfbridge/entity"
	"dev.hon.one/pfbridge/firewall"
	"dev.hon.one/pfbridge/host"
	"dev.hon.one/pfbridge/sensors"
	"dev.hon.one/pfbridge/state"
	"dev.hon.one/pfbridge/store"
	"dev.hon.one/pfbridge/tracker"
	"dev.hon.one/pfbridge/util"
)

// Coordinator names.
const (
	CoordinatorDefault       = "pfSense state"
	CoordinatorDeviceTracker = "pfSense device tracker state"
)

// Dependencies - What an entry is set up against.
type Dependencies struct {
	Client    firewall.Client
	Host      *host.Host
	Store     store.Store
	Vendors   tracker.VendorResolver
	SaveDelay time.Duration
	Shutdown  *util.ShutdownChannelDistributor
}

// Loaded - A set up entry.
type Loaded struct {
	Entry                    Entry
	Coordinator              *coordinator.Coordinator
	DeviceTrackerCoordinator *coordinator.Coordinator
	Platforms                map[string]*host.Platform
	Tracker                  *tracker.Tracker

	deps      Dependencies
	waitGroup sync.WaitGroup
	undo      []func()

	mutex          sync.Mutex
	setupDone      bool
	shouldReload   bool
	enableOnReload []string
	reloadHook     func(entityIDs []string)
}

// RequestReload - Flag the entry for reload. During setup the reload happens once setup completes, afterwards the runner is told directly.
func (loaded *Loaded) RequestReload(entityIDs ...string) {
	loaded.mutex.Lock()
	loaded.shouldReload = true
	loaded.enableOnReload = append(loaded.enableOnReload, entityIDs...)
	hook := loaded.reloadHook
	setupDone := loaded.setupDone
	loaded.mutex.Unlock()
	if setupDone && hook != nil {
		hook(entityIDs)
	}
}

// ShouldReload - Whether a reload was requested, and the entities to enable during it.
func (loaded *Loaded) ShouldReload() (bool, []string) {
	loaded.mutex.Lock()
	defer loaded.mutex.Unlock()
	return loaded.shouldReload, append([]string{}, loaded.enableOnReload...)
}

func (loaded *Loaded) setReloadHook(hook func(entityIDs []string)) {
	loaded.mutex.Lock()
	defer loaded.mutex.Unlock()
	loaded.reloadHook = hook
}

// Coordinators - The running coordinators.
func (loaded *Loaded) Coordinators() []*coordinator.Coordinator {
	coordinators := []*coordinator.Coordinator{loaded.Coordinator}
	if loaded.DeviceTrackerCoordinator != nil {
		coordinators = append(coordinators, loaded.DeviceTrackerCoordinator)
	}
	return coordinators
}

// Setup - Set up an entry: first refreshes, platforms, the previous devices removal event, then the polling loops.
func Setup(ctx context.Context, entry Entry, deps Dependencies) (*Loaded, error) {
	entry.Options = entry.Options.WithDefaults()
	options := entry.Options
	loaded := &Loaded{
		Entry:     entry,
		Platforms: make(map[string]*host.Platform),
		deps:      deps,
	}

	data := state.NewData(deps.Client)
	loaded.Coordinator = coordinator.New(CoordinatorDefault, options.scanInterval(), coordinator.DataUpdater(data, state.ScopeDefault))
	if options.DeviceTrackerEnabled {
		trackerData := state.NewData(deps.Client)
		loaded.DeviceTrackerCoordinator = coordinator.New(CoordinatorDeviceTracker, options.deviceTrackerScanInterval(), coordinator.DataUpdater(trackerData, state.ScopeDeviceTracker))
	}

	for _, current := range loaded.Coordinators() {
		if err := current.FirstRefresh(ctx); err != nil {
			return nil, err
		}
	}

	if err := loaded.setupPlatforms(ctx); err != nil {
		loaded.detach()
		return nil, err
	}

	if err := loaded.removePreviousDevices(ctx); err != nil {
		log.WithError(err).WithField("entry", entry.ID).Warn("Failed to persist options")
	}

	shutdown := deps.Shutdown
	if shutdown == nil {
		shutdown = util.NewShutdownChannelDistributor(nil)
	}
	for _, current := range loaded.Coordinators() {
		current.Start(&loaded.waitGroup, shutdown)
	}

	loaded.mutex.Lock()
	loaded.setupDone = true
	loaded.mutex.Unlock()

	log.WithFields(log.Fields{
		"entry":          entry.ID,
		"device_tracker": options.DeviceTrackerEnabled,
		"platforms":      len(loaded.Platforms),
	}).Info("Entry set up")
	return loaded, nil
}

func (loaded *Loaded) setupPlatforms(ctx context.Context) error {
	entryID := loaded.Entry.ID
	sensorPlatform := loaded.deps.Host.NewPlatform(entryID, entity.PlatformSensor)
	binaryPlatform := loaded.deps.Host.NewPlatform(entryID, entity.PlatformBinarySensor)
	loaded.Platforms[entity.PlatformSensor] = sensorPlatform
	loaded.Platforms[entity.PlatformBinarySensor] = binaryPlatform

	undoSensors, err := sensors.Setup(loaded.Coordinator, loaded.Entry.Title, sensorPlatform.AddEntities, binaryPlatform.AddEntities)
	if err != nil {
		return fmt.Errorf("failed to set up sensors: %w", err)
	}
	loaded.undo = append(loaded.undo, undoSensors)

	if loaded.DeviceTrackerCoordinator == nil {
		return nil
	}
	trackerPlatform := loaded.deps.Host.NewPlatform(entryID, entity.PlatformDeviceTracker)
	loaded.Platforms[entity.PlatformDeviceTracker] = trackerPlatform
	loaded.Tracker = tracker.New(tracker.Config{
		EntryID:   entryID,
		Devices:   loaded.Entry.Options.Devices,
		SaveDelay: loaded.deps.SaveDelay,
	}, loaded.deps.Client, loaded.DeviceTrackerCoordinator, loaded.deps.Host, loaded.deps.Store, loaded.deps.Vendors, loaded)
	if err := loaded.Tracker.LoadCache(ctx); err != nil {
		return err
	}
	if err := loaded.Tracker.Setup(trackerPlatform); err != nil {
		return fmt.Errorf("failed to set up device tracker: %w", err)
	}
	return nil
}

// removePreviousDevices - Fire the removal event for devices no longer whitelisted and remember the whitelist.
func (loaded *Loaded) removePreviousDevices(ctx context.Context) error {
	var arpTable []firewall.ARPEntry
	if loaded.DeviceTrackerCoordinator != nil {
		arpTable = loaded.DeviceTrackerCoordinator.Data().ARPTable
	}
	macs := macsToRemove(loaded.Entry.Options, arpTable)
	if len(macs) == 0 {
		return nil
	}

	log.WithFields(log.Fields{
		"entry": loaded.Entry.ID,
		"macs":  macs,
	}).Info("Removing devices no longer whitelisted")
	loaded.deps.Host.Bus.Fire(tracker.RemoveDevicesTopic(loaded.Entry.ID), map[string]interface{}{"macs": macs})

	loaded.Entry.Options.PreviousDevices = append([]string{}, loaded.Entry.Options.Devices...)
	return savePersistedOptions(ctx, loaded.deps.Store, loaded.Entry)
}

func (loaded *Loaded) detach() {
	for _, undo := range loaded.undo {
		undo()
	}
	loaded.undo = nil
	if loaded.Tracker != nil {
		if err := loaded.Tracker.Unload(); err != nil {
			log.WithError(err).WithField("entry", loaded.Entry.ID).Warn("Failed to save device cache")
		}
	}
	for _, platform := range loaded.Platforms {
		platform.Unload()
	}
}

// Unload - Stop polling, detach listeners and unload the platforms.
func (loaded *Loaded) Unload() {
	for _, current := range loaded.Coordinators() {
		current.Stop()
	}
	loaded.waitGroup.Wait()
	loaded.detach()
	log.WithField("entry", loaded.Entry.ID).Info("Entry unloaded")
}

// Remove - Delete everything persisted for the entry.
func Remove(ctx context.Context, backend store.Store, entryID string) error {
	for _, key := range []string{tracker.CacheKey(entryID), OptionsKey(entryID)} {
		if err := backend.Remove(ctx, key); err != nil {
			return fmt.Errorf("failed to remove %s: %w", key, err)
		}
	}
	log.WithField("entry", entryID).Info("Entry removed")
	return nil
}
