package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.hon.one/pfbridge/state"
	"dev.hon.one/pfbridge/util"
)

func TestRefreshNotifiesListenersOnSuccess(t *testing.T) {
	results := []error{nil, errors.New("transport down"), nil}
	calls := 0
	coordinator := New("default", time.Minute, func(ctx context.Context) (*state.Snapshot, error) {
		err := results[calls]
		calls++
		if err != nil {
			return nil, err
		}
		return &state.Snapshot{UpdateTime: float64(calls)}, nil
	})

	notified := 0
	remove := coordinator.AddListener(func() { notified++ })
	var polls []PollResult
	coordinator.OnPoll(func(result PollResult) { polls = append(polls, result) })

	require.NoError(t, coordinator.FirstRefresh(context.Background()))
	assert.Equal(t, 1, notified)
	assert.Equal(t, 1.0, coordinator.Data().UpdateTime)

	err := coordinator.Refresh(context.Background())
	require.ErrorIs(t, err, ErrUpdateFailed)
	assert.Equal(t, 1, notified)
	assert.False(t, coordinator.LastUpdateSuccess())
	assert.Equal(t, 1.0, coordinator.Data().UpdateTime, "failed refresh keeps the snapshot")

	require.NoError(t, coordinator.Refresh(context.Background()))
	assert.Equal(t, 2, notified)
	assert.True(t, coordinator.LastUpdateSuccess())

	remove()
	assert.Zero(t, coordinator.ListenerCount())
	require.Len(t, polls, 3)
	assert.False(t, polls[1].Success)
	assert.Equal(t, "default", polls[0].Coordinator)
}

func TestFirstRefreshFailureIsNotReady(t *testing.T) {
	coordinator := New("device_tracker", time.Minute, func(ctx context.Context) (*state.Snapshot, error) {
		return nil, state.ErrEmptyResult
	})
	err := coordinator.FirstRefresh(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, err, state.ErrEmptyResult)
	assert.Nil(t, coordinator.Data())
}

func TestRefreshTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	coordinator := New("default", time.Minute, func(ctx context.Context) (*state.Snapshot, error) {
		<-release
		return &state.Snapshot{}, nil
	})
	coordinator.timeout = 10 * time.Millisecond

	err := coordinator.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrUpdateFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRefreshSkipsOverlap(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	coordinator := New("default", time.Minute, func(ctx context.Context) (*state.Snapshot, error) {
		calls.Add(1)
		close(started)
		<-release
		return &state.Snapshot{}, nil
	})

	done := make(chan error, 1)
	go func() { done <- coordinator.Refresh(context.Background()) }()
	<-started

	assert.ErrorIs(t, coordinator.Refresh(context.Background()), ErrRefreshInProgress)
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), calls.Load())
}

func TestStartAndStop(t *testing.T) {
	var calls atomic.Int32
	coordinator := New("default", 5*time.Millisecond, func(ctx context.Context) (*state.Snapshot, error) {
		calls.Add(1)
		return &state.Snapshot{}, nil
	})

	var waitGroup sync.WaitGroup
	shutdown := util.NewShutdownChannelDistributor(nil)
	coordinator.Start(&waitGroup, shutdown)
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)

	coordinator.Stop()
	waitGroup.Wait()
	stopped := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load())
}

func TestStartStopsOnShutdown(t *testing.T) {
	coordinator := New("default", time.Hour, func(ctx context.Context) (*state.Snapshot, error) {
		return &state.Snapshot{}, nil
	})
	var waitGroup sync.WaitGroup
	shutdown := util.NewShutdownChannelDistributor(nil)
	coordinator.Start(&waitGroup, shutdown)
	shutdown.Shutdown()
	waitGroup.Wait()
}
