// Package db writes poll results and derived metrics to InfluxDB.
package db

import (
	"context"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2api "github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"dev.hon.one/pfbridge/coordinator"
	"dev.hon.one/pfbridge/state"
	"dev.hon.one/pfbridge/util"
)

// DefaultBucket - InfluxDB bucket if none is configured.
const DefaultBucket = "pfbridge"

// Config - InfluxDB connection. An empty URL disables the client.
type Config struct {
	URL    string `json:"url" toml:"url"`
	Token  string `json:"token" toml:"token"`
	Org    string `json:"org" toml:"org"`
	Bucket string `json:"bucket" toml:"bucket"`
}

var clientMutex sync.RWMutex
var client influxdb2.Client
var clientWriteAPI influxdb2api.WriteAPI

// StartClient - Start DB client.
func StartClient(waitGroup *sync.WaitGroup, shutdown *util.ShutdownChannelDistributor, config Config) {
	if config.URL == "" {
		log.Info("DB client disabled")
		return
	}
	if config.Bucket == "" {
		config.Bucket = DefaultBucket
	}

	// Setup shutdown signal and waitgroup
	shutdownChannel := make(chan bool, 1)
	if !shutdown.AddListener(shutdownChannel) {
		return
	}
	waitGroup.Add(1)

	newClient := influxdb2.NewClient(config.URL, config.Token)

	cleanup := func() {
		clientMutex.Lock()
		localWriteAPI := clientWriteAPI
		clientWriteAPI = nil
		client = nil
		clientMutex.Unlock()
		if localWriteAPI != nil {
			localWriteAPI.Flush()
		}
		newClient.Close()
		log.Info("DB client stopped")
		waitGroup.Done()
	}

	go func() {
		// Wait for DB connection (true) to come up or for shutdown signal (false)
		if !waitForDBUp(newClient, shutdownChannel) {
			cleanup()
			return
		}

		// Setup async write API and error logging
		writeAPI := newClient.WriteAPI(config.Org, config.Bucket)
		writeAPIErrors := writeAPI.Errors()
		go func() {
			for err := range writeAPIErrors {
				log.WithError(err).Error("Failed to write to database")
			}
		}()
		clientMutex.Lock()
		client = newClient
		clientWriteAPI = writeAPI
		clientMutex.Unlock()
		log.WithFields(log.Fields{
			"url":    config.URL,
			"bucket": config.Bucket,
		}).Info("DB client started")

		<-shutdownChannel
		cleanup()
	}()
}

func waitForDBUp(dbClient influxdb2.Client, shutdownChannel <-chan bool) bool {
	checkHealth := func() bool {
		_, err := dbClient.Health(context.Background())
		if err != nil {
			log.WithError(err).Tracef("Database connection error")
			return false
		}
		return true
	}
	if checkHealth() {
		return true
	}
	log.Info("Waiting for database")
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if checkHealth() {
				return true
			}
		case <-shutdownChannel:
			return false
		}
	}
}

func writePoints(points ...*write.Point) {
	clientMutex.RLock()
	defer clientMutex.RUnlock()
	if clientWriteAPI == nil {
		return
	}
	for _, point := range points {
		clientWriteAPI.WritePoint(point)
	}
}

// Attach - Store the coordinator's poll results and the metrics of every new snapshot.
// Returns a function detaching the snapshot listener.
func Attach(entryID string, source *coordinator.Coordinator) func() {
	source.OnPoll(func(result coordinator.PollResult) {
		StorePollEntry(entryID, result)
	})
	return source.AddListener(func() {
		StoreSnapshot(entryID, source.Data())
	})
}

// StorePollEntry - Attempt to store a poll entry in the DB.
func StorePollEntry(entryID string, result coordinator.PollResult) {
	log.WithFields(log.Fields{
		"entry":       entryID,
		"coordinator": result.Coordinator,
		"time":        result.Time,
		"duration":    result.Duration,
		"success":     result.Success,
	}).Trace("Poll entry")

	writePoints(NewPollPoint(entryID, result))
}

// StoreSnapshot - Attempt to store the interface rates and lease stats of a snapshot in the DB.
func StoreSnapshot(entryID string, snapshot *state.Snapshot) {
	if snapshot == nil {
		return
	}
	points := NewInterfacePoints(entryID, snapshot)
	if snapshot.Telemetry != nil {
		points = append(points, NewLeasePoint(entryID, snapshot))
	}
	log.WithFields(log.Fields{
		"entry":  entryID,
		"points": len(points),
	}).Trace("Snapshot entry")

	writePoints(points...)
}

// NewPollPoint - Point for one coordinator refresh.
func NewPollPoint(entryID string, result coordinator.PollResult) *write.Point {
	return influxdb2.NewPointWithMeasurement("poll").
		AddTag("entry", entryID).
		AddTag("coordinator", result.Coordinator).
		AddField("duration_seconds", float64(result.Duration)/float64(time.Second)).
		AddField("success", result.Success).
		SetTime(result.Time)
}

// NewInterfacePoints - One point per interface with computed rates, fields sorted by name.
func NewInterfacePoints(entryID string, snapshot *state.Snapshot) []*write.Point {
	if snapshot.Telemetry == nil {
		return nil
	}
	names := make([]string, 0, len(snapshot.Telemetry.Interfaces))
	for name := range snapshot.Telemetry.Interfaces {
		names = append(names, name)
	}
	var points []*write.Point
	for _, name := range util.SortedStrings(names) {
		iface := snapshot.Telemetry.Interfaces[name]
		if iface == nil || len(iface.Rates) == 0 {
			continue
		}
		point := influxdb2.NewPointWithMeasurement("interface").
			AddTag("entry", entryID).
			AddTag("interface", name).
			AddTag("description", iface.Descr).
			SetTime(snapshotTime(snapshot))
		rates := make([]string, 0, len(iface.Rates))
		for rate := range iface.Rates {
			rates = append(rates, rate)
		}
		sort.Strings(rates)
		for _, rate := range rates {
			point.AddField(rate, iface.Rates[rate])
		}
		points = append(points, point)
	}
	return points
}

// NewLeasePoint - Point with the DHCP lease stats.
func NewLeasePoint(entryID string, snapshot *state.Snapshot) *write.Point {
	leases := snapshot.DHCPStats.Leases
	return influxdb2.NewPointWithMeasurement("dhcp_leases").
		AddTag("entry", entryID).
		AddField("total", leases.Total).
		AddField("online", leases.Online).
		AddField("offline", leases.Offline).
		SetTime(snapshotTime(snapshot))
}

func snapshotTime(snapshot *state.Snapshot) time.Time {
	return time.Unix(0, int64(snapshot.UpdateTime*float64(time.Second)))
}
