package integration

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"dev.hon.one/pfbridge/coordinator"
	"dev.hon.one/pfbridge/util"
)

// maxChainedReloads - Reloads requested by the setup of a reload are followed at most this many times in a row.
const maxChainedReloads = 3

// Runner - Owns the live entry and serializes its reloads.
type Runner struct {
	deps    Dependencies
	reloads chan []string

	// Zero retries setup on the scan interval.
	retryInterval time.Duration

	mutex   sync.Mutex
	entry   Entry
	current *Loaded
	hooks   []func(*Loaded)
}

// NewRunner - Create a runner for the entry. Start loads it.
func NewRunner(entry Entry, deps Dependencies) *Runner {
	return &Runner{
		deps:    deps,
		entry:   entry,
		reloads: make(chan []string, 16),
	}
}

// OnSetup - Call the hook after every successful setup, including reloads.
func (runner *Runner) OnSetup(hook func(*Loaded)) {
	runner.mutex.Lock()
	defer runner.mutex.Unlock()
	runner.hooks = append(runner.hooks, hook)
}

// Current - The loaded entry, or nil.
func (runner *Runner) Current() *Loaded {
	runner.mutex.Lock()
	defer runner.mutex.Unlock()
	return runner.current
}

// Entry - The entry as last set up.
func (runner *Runner) Entry() Entry {
	runner.mutex.Lock()
	defer runner.mutex.Unlock()
	return runner.entry
}

// Start - Merge persisted options and set up the entry.
func (runner *Runner) Start(ctx context.Context) error {
	entry, err := LoadPersistedOptions(ctx, runner.deps.Store, runner.Entry())
	if err != nil {
		return err
	}
	runner.mutex.Lock()
	runner.entry = entry
	runner.mutex.Unlock()
	return runner.setup(ctx)
}

// WaitForSetup - Start the entry, retrying on the scan interval while the firewall isn't ready.
// Returns false if shut down first or if setup failed for any other reason.
func (runner *Runner) WaitForSetup(ctx context.Context, shutdown *util.ShutdownChannelDistributor) bool {
	shutdownChannel := make(chan bool, 1)
	if !shutdown.AddListener(shutdownChannel) {
		return false
	}
	start := func() (done bool, ok bool) {
		err := runner.Start(ctx)
		if err == nil {
			return true, true
		}
		if !errors.Is(err, coordinator.ErrNotReady) {
			log.WithError(err).WithField("entry", runner.Entry().ID).Error("Failed to set up entry")
			return true, false
		}
		log.WithError(err).WithField("entry", runner.Entry().ID).Debug("Firewall not ready")
		return false, false
	}
	if done, ok := start(); done {
		return ok
	}

	interval := runner.retryInterval
	if interval <= 0 {
		interval = runner.Entry().Options.WithDefaults().scanInterval()
	}
	log.WithFields(log.Fields{
		"entry":    runner.Entry().ID,
		"interval": interval,
	}).Warn("Waiting for firewall")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if done, ok := start(); done {
				return ok
			}
		case <-shutdownChannel:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

func (runner *Runner) setup(ctx context.Context) error {
	loaded, err := Setup(ctx, runner.Entry(), runner.deps)
	if err != nil {
		return err
	}
	loaded.setReloadHook(runner.RequestReload)

	runner.mutex.Lock()
	runner.current = loaded
	runner.entry = loaded.Entry
	hooks := append([]func(*Loaded){}, runner.hooks...)
	runner.mutex.Unlock()

	for _, hook := range hooks {
		hook(loaded)
	}
	if shouldReload, entityIDs := loaded.ShouldReload(); shouldReload {
		runner.RequestReload(entityIDs)
	}
	return nil
}

// RequestReload - Queue a reload which enables the given entities first.
func (runner *Runner) RequestReload(entityIDs []string) {
	select {
	case runner.reloads <- entityIDs:
	default:
		log.Warn("Reload queue full, dropping request")
	}
}

// Reload - Unload the entry, enable the given entities and set it up again.
func (runner *Runner) Reload(ctx context.Context, entityIDs ...string) error {
	runner.mutex.Lock()
	current := runner.current
	runner.current = nil
	runner.mutex.Unlock()
	if current != nil {
		current.Unload()
	}

	for _, entityID := range entityIDs {
		if err := runner.deps.Host.Entities.Enable(entityID); err != nil {
			log.WithError(err).WithField("entity", entityID).Warn("Failed to enable entity")
		}
	}

	log.WithFields(log.Fields{
		"entry":  runner.Entry().ID,
		"enable": entityIDs,
	}).Info("Reloading entry")
	return runner.setup(ctx)
}

// Run - Process reload requests in the background until shut down, then unload the entry.
func (runner *Runner) Run(waitGroup *sync.WaitGroup, shutdown *util.ShutdownChannelDistributor) {
	// Setup shutdown signal and waitgroup
	shutdownChannel := make(chan bool, 1)
	shutdown.AddListener(shutdownChannel)
	waitGroup.Add(1)

	go func() {
		defer waitGroup.Done()
		defer log.Info("Runner stopped")

		chained := 0
		for {
			select {
			case entityIDs := <-runner.reloads:
				entityIDs = append(entityIDs, runner.drain()...)
				chained++
				if chained > maxChainedReloads {
					log.WithField("entry", runner.Entry().ID).Error("Entry keeps requesting reloads, ignoring")
					chained = 0
					continue
				}
				if err := runner.Reload(context.Background(), entityIDs...); err != nil {
					log.WithError(err).WithField("entry", runner.Entry().ID).Error("Failed to reload entry")
				}
				if shouldReload, _ := runner.currentShouldReload(); !shouldReload {
					chained = 0
				}
			case <-shutdownChannel:
				if current := runner.Current(); current != nil {
					current.Unload()
				}
				return
			}
		}
	}()
}

func (runner *Runner) currentShouldReload() (bool, []string) {
	current := runner.Current()
	if current == nil {
		return false, nil
	}
	return current.ShouldReload()
}

// drain - Merge queued requests into one reload.
func (runner *Runner) drain() []string {
	var entityIDs []string
	for {
		select {
		case more := <-runner.reloads:
			entityIDs = append(entityIDs, more...)
		default:
			return entityIDs
		}
	}
}

// Remove - Unload the entry and delete everything persisted for it.
func (runner *Runner) Remove(ctx context.Context) error {
	runner.mutex.Lock()
	current := runner.current
	runner.current = nil
	runner.mutex.Unlock()
	if current != nil {
		current.Unload()
	}
	return Remove(ctx, runner.deps.Store, runner.Entry().ID)
}
