// Package coordinator polls a data source on an interval and notifies listeners of fresh snapshots.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"dev.hon.one/pfbridge/state"
	"dev.hon.one/pfbridge/util"
)

// UpdateTimeout - Upper bound for a single update.
const UpdateTimeout = 10 * time.Second

var (
	// ErrUpdateFailed - The update failed or timed out. The previous snapshot is retained.
	ErrUpdateFailed = errors.New("update failed")
	// ErrNotReady - The first refresh failed, the entry can't be set up yet.
	ErrNotReady = errors.New("first refresh failed")
	// ErrRefreshInProgress - Another refresh is running, this one was skipped.
	ErrRefreshInProgress = errors.New("refresh already in progress")
)

// UpdateFunc - Produces a fresh snapshot.
type UpdateFunc func(ctx context.Context) (*state.Snapshot, error)

// DataUpdater - Update function for a data object and scope.
func DataUpdater(data *state.Data, scope state.Scope) UpdateFunc {
	return func(ctx context.Context) (*state.Snapshot, error) {
		return data.Update(ctx, scope)
	}
}

// PollResult - Outcome of one refresh, for observers.
type PollResult struct {
	Coordinator string
	Time        time.Time
	Duration    time.Duration
	Success     bool
	Error       error
}

// Coordinator - Runs refreshes on an interval, at most one at a time, and retains the last good snapshot.
type Coordinator struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	update   UpdateFunc

	refreshMutex sync.Mutex

	mutex          sync.RWMutex
	snapshot       *state.Snapshot
	lastSuccess    bool
	lastResult     *PollResult
	listeners      map[int]func()
	nextListenerID int
	observers      []func(PollResult)
	stopChannel    chan bool
}

// New - Create a coordinator. It does nothing until refreshed or started.
func New(name string, interval time.Duration, update UpdateFunc) *Coordinator {
	return &Coordinator{
		name:      name,
		interval:  interval,
		timeout:   UpdateTimeout,
		update:    update,
		listeners: make(map[int]func()),
	}
}

// Name - Coordinator name, used in logs and metrics.
func (coordinator *Coordinator) Name() string {
	return coordinator.name
}

// Interval - Time between scheduled refreshes.
func (coordinator *Coordinator) Interval() time.Duration {
	return coordinator.interval
}

// Data - The last successful snapshot, nil if there was none.
func (coordinator *Coordinator) Data() *state.Snapshot {
	coordinator.mutex.RLock()
	defer coordinator.mutex.RUnlock()
	return coordinator.snapshot
}

// LastUpdateSuccess - Whether the most recent refresh succeeded.
func (coordinator *Coordinator) LastUpdateSuccess() bool {
	coordinator.mutex.RLock()
	defer coordinator.mutex.RUnlock()
	return coordinator.lastSuccess
}

// LastResult - The most recent poll result, nil before the first refresh.
func (coordinator *Coordinator) LastResult() *PollResult {
	coordinator.mutex.RLock()
	defer coordinator.mutex.RUnlock()
	return coordinator.lastResult
}

// AddListener - Register a callback for successful refreshes. Returns a function removing it again.
func (coordinator *Coordinator) AddListener(listener func()) func() {
	coordinator.mutex.Lock()
	defer coordinator.mutex.Unlock()
	id := coordinator.nextListenerID
	coordinator.nextListenerID++
	coordinator.listeners[id] = listener
	return func() {
		coordinator.mutex.Lock()
		defer coordinator.mutex.Unlock()
		delete(coordinator.listeners, id)
	}
}

// ListenerCount - Number of registered listeners.
func (coordinator *Coordinator) ListenerCount() int {
	coordinator.mutex.RLock()
	defer coordinator.mutex.RUnlock()
	return len(coordinator.listeners)
}

// OnPoll - Register an observer called after every refresh, successful or not.
func (coordinator *Coordinator) OnPoll(observer func(PollResult)) {
	coordinator.mutex.Lock()
	defer coordinator.mutex.Unlock()
	coordinator.observers = append(coordinator.observers, observer)
}

// FirstRefresh - Refresh once during setup. Failure means the entry is not ready.
func (coordinator *Coordinator) FirstRefresh(ctx context.Context) error {
	if err := coordinator.Refresh(ctx); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNotReady, coordinator.name, err)
	}
	return nil
}

// Refresh - Run one update. Overlapping calls are skipped with ErrRefreshInProgress.
func (coordinator *Coordinator) Refresh(ctx context.Context) error {
	if !coordinator.refreshMutex.TryLock() {
		log.WithField("coordinator", coordinator.name).Debug("Refresh already in progress, skipping")
		return ErrRefreshInProgress
	}
	defer coordinator.refreshMutex.Unlock()

	startTime := time.Now()
	snapshot, err := coordinator.runUpdate(ctx)
	result := PollResult{
		Coordinator: coordinator.name,
		Time:        startTime,
		Duration:    time.Since(startTime),
		Success:     err == nil,
		Error:       err,
	}

	coordinator.mutex.Lock()
	hadResult := coordinator.lastResult != nil
	wasSuccess := coordinator.lastSuccess
	coordinator.lastResult = &result
	coordinator.lastSuccess = err == nil
	if err == nil {
		coordinator.snapshot = snapshot
	}
	listeners := coordinator.sortedListeners()
	observers := append([]func(PollResult){}, coordinator.observers...)
	coordinator.mutex.Unlock()

	for _, observer := range observers {
		observer(result)
	}

	if err != nil {
		if wasSuccess || !hadResult {
			log.WithError(err).WithField("coordinator", coordinator.name).Warn("Failed to update")
		}
		return fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}
	if hadResult && !wasSuccess {
		log.WithField("coordinator", coordinator.name).Info("Update recovered")
	}
	log.WithFields(log.Fields{
		"coordinator": coordinator.name,
		"duration":    result.Duration,
	}).Debug("Updated")

	for _, listener := range listeners {
		listener()
	}
	return nil
}

// runUpdate - Run the update in its own goroutine, bounded by the timeout.
func (coordinator *Coordinator) runUpdate(ctx context.Context) (*state.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, coordinator.timeout)
	defer cancel()

	type outcome struct {
		snapshot *state.Snapshot
		err      error
	}
	done := make(chan outcome, 1)
	go func() {
		snapshot, err := coordinator.update(ctx)
		done <- outcome{snapshot, err}
	}()

	select {
	case result := <-done:
		return result.snapshot, result.err
	case <-ctx.Done():
		return nil, fmt.Errorf("timed out after %v: %w", coordinator.timeout, ctx.Err())
	}
}

func (coordinator *Coordinator) sortedListeners() []func() {
	ids := make([]int, 0, len(coordinator.listeners))
	for id := range coordinator.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]func(), 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, coordinator.listeners[id])
	}
	return listeners
}

// Start - Refresh on the interval in the background until stopped or shut down.
func (coordinator *Coordinator) Start(waitGroup *sync.WaitGroup, shutdown *util.ShutdownChannelDistributor) {
	// Setup shutdown signal and waitgroup
	shutdownChannel := make(chan bool, 1)
	shutdown.AddListener(shutdownChannel)
	stopChannel := make(chan bool, 1)
	coordinator.mutex.Lock()
	coordinator.stopChannel = stopChannel
	coordinator.mutex.Unlock()
	waitGroup.Add(1)

	go func() {
		defer waitGroup.Done()
		defer log.WithField("coordinator", coordinator.name).Info("Coordinator stopped")

		ticker := time.NewTicker(coordinator.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				coordinator.Refresh(context.Background())
			case <-shutdownChannel:
				return
			case <-stopChannel:
				return
			}
		}
	}()

	log.WithFields(log.Fields{
		"coordinator": coordinator.name,
		"interval":    coordinator.interval,
	}).Info("Coordinator started")
}

// Stop - Stop the background loop started by Start.
func (coordinator *Coordinator) Stop() {
	coordinator.mutex.Lock()
	defer coordinator.mutex.Unlock()
	if coordinator.stopChannel == nil {
		return
	}
	select {
	case coordinator.stopChannel <- true:
	default:
	}
	coordinator.stopChannel = nil
}
