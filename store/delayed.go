package store

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultSaveDelay - Delay used when none is configured.
const DefaultSaveDelay = time.Second

// DelayedSaver - Coalesces save requests for one key. Only the most recently scheduled payload is written.
type DelayedSaver struct {
	store Store
	key   string
	delay time.Duration

	mutex   sync.Mutex
	timer   *time.Timer
	payload func() interface{}
	// Bumped whenever a pending payload is superseded, so an older write in flight skips its save.
	generation uint64

	// Held across evaluating and writing a payload, so writes land in the order they were taken.
	writeMutex sync.Mutex
}

// NewDelayedSaver - Create a saver for the key. A non-positive delay uses the default.
func NewDelayedSaver(store Store, key string, delay time.Duration) *DelayedSaver {
	if delay <= 0 {
		delay = DefaultSaveDelay
	}
	return &DelayedSaver{
		store: store,
		key:   key,
		delay: delay,
	}
}

// Key - The key written to.
func (saver *DelayedSaver) Key() string {
	return saver.key
}

// Schedule - Request a save after the delay. The payload is evaluated when the save happens.
// Calls within the delay replace the pending payload without restarting the timer.
func (saver *DelayedSaver) Schedule(payload func() interface{}) {
	saver.mutex.Lock()
	defer saver.mutex.Unlock()
	saver.payload = payload
	if saver.timer == nil {
		saver.timer = time.AfterFunc(saver.delay, saver.fire)
	}
}

// Pending - Whether a save is scheduled.
func (saver *DelayedSaver) Pending() bool {
	saver.mutex.Lock()
	defer saver.mutex.Unlock()
	return saver.payload != nil
}

func (saver *DelayedSaver) fire() {
	saver.mutex.Lock()
	saver.timer = nil
	payload, generation := saver.takeLocked()
	saver.mutex.Unlock()
	if payload == nil {
		return
	}
	if err := saver.writeIfCurrent(generation, payload); err != nil {
		log.WithError(err).WithField("key", saver.key).Warn("Delayed save failed")
	}
}

// Flush - Write the pending payload now, if any.
func (saver *DelayedSaver) Flush() error {
	saver.mutex.Lock()
	saver.timer = stopTimer(saver.timer)
	payload, generation := saver.takeLocked()
	saver.mutex.Unlock()
	if payload == nil {
		return nil
	}
	return saver.writeIfCurrent(generation, payload)
}

// SaveNow - Cancel any pending save and write the data immediately.
// Returns after any delayed write already in flight, and the data is written last.
func (saver *DelayedSaver) SaveNow(data interface{}) error {
	saver.writeMutex.Lock()
	defer saver.writeMutex.Unlock()
	saver.Cancel()
	return saver.write(data)
}

// Cancel - Drop the pending save without writing it.
func (saver *DelayedSaver) Cancel() {
	saver.mutex.Lock()
	defer saver.mutex.Unlock()
	saver.cancelLocked()
}

func (saver *DelayedSaver) cancelLocked() {
	saver.timer = stopTimer(saver.timer)
	saver.payload = nil
	saver.generation++
}

// takeLocked - Take the pending payload. Writes of payloads taken earlier are superseded by it.
func (saver *DelayedSaver) takeLocked() (func() interface{}, uint64) {
	payload := saver.payload
	if payload == nil {
		return nil, saver.generation
	}
	saver.payload = nil
	saver.generation++
	return payload, saver.generation
}

func stopTimer(timer *time.Timer) *time.Timer {
	if timer != nil {
		timer.Stop()
	}
	return nil
}

// writeIfCurrent - Evaluate and write the payload unless it was superseded since it was taken.
func (saver *DelayedSaver) writeIfCurrent(generation uint64, payload func() interface{}) error {
	saver.writeMutex.Lock()
	defer saver.writeMutex.Unlock()
	saver.mutex.Lock()
	superseded := saver.generation != generation
	saver.mutex.Unlock()
	if superseded {
		log.WithField("key", saver.key).Trace("Skipping superseded save")
		return nil
	}
	return saver.write(payload())
}

func (saver *DelayedSaver) write(data interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()
	log.WithField("key", saver.key).Trace("Saving")
	return saver.store.Save(ctx, saver.key, data)
}
