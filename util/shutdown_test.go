package util

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShutdownChannelDistributor(t *testing.T) {
	input := make(chan os.Signal, 1)
	shutdown := NewShutdownChannelDistributor(input)
	first := make(chan bool, 1)
	second := make(chan bool, 1)
	assert.True(t, shutdown.AddListener(first))
	assert.True(t, shutdown.AddListener(second))

	input <- syscall.SIGTERM
	select {
	case <-first:
	case <-time.After(time.Second):
		t.Fatal("first listener not signalled")
	}
	<-second

	assert.True(t, shutdown.HasShutdown())
	assert.False(t, shutdown.AddListener(make(chan bool, 1)))
	shutdown.Shutdown()
}
