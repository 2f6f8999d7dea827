package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	log "github.com/sirupsen/logrus"

	"dev.hon.one/pfbridge/common"
	"dev.hon.one/pfbridge/db"
	"dev.hon.one/pfbridge/firewall"
	"dev.hon.one/pfbridge/host"
	"dev.hon.one/pfbridge/http"
	"dev.hon.one/pfbridge/integration"
	"dev.hon.one/pfbridge/mqtt"
	"dev.hon.one/pfbridge/oui"
	"dev.hon.one/pfbridge/store"
	"dev.hon.one/pfbridge/tracker"
	"dev.hon.one/pfbridge/util"
)

// Store key of the entity registry.
const entityRegistryKey = "core.entity_registry"

func main() {
	log.Infof("Starting %v version %v by %v", common.AppName, common.AppVersion, common.AppAuthor)

	// Parse CLI args (may exit)
	debug := false
	configPath := ""
	remove := false
	flag.BoolVar(&debug, "debug", debug, "Show debug messages.")
	flag.StringVar(&configPath, "config", configPath, "Config file path (JSON, or TOML by extension).")
	flag.BoolVar(&remove, "remove", remove, "Delete all persisted state of the entry and exit.")
	flag.Parse()
	if debug {
		log.SetLevel(log.TraceLevel)
		log.Info("Debug mode enabled")
	}

	// Load config
	if !common.LoadConfig(configPath) {
		return
	}
	config := common.GlobalConfig

	// Open persisted state
	backend, err := store.Open(config.Storage)
	if err != nil {
		log.WithError(err).Fatal("Failed to open storage")
	}
	defer backend.Close()
	if remove {
		if err := integration.Remove(context.Background(), backend, config.EntryID); err != nil {
			log.WithError(err).Fatal("Failed to remove entry")
		}
		return
	}

	bridgeHost := host.New()
	if err := bridgeHost.Entities.Persist(context.Background(), backend, entityRegistryKey, config.SaveDelay()); err != nil {
		log.WithError(err).Fatal("Failed to load entity registry")
	}
	defer func() {
		if err := bridgeHost.Entities.Flush(); err != nil {
			log.WithError(err).Error("Failed to save entity registry")
		}
	}()

	client, err := firewall.NewSSHClient(config.Firewall)
	if err != nil {
		log.WithError(err).Fatal("Failed to create firewall client")
	}

	var vendors tracker.VendorResolver
	if config.DeviceTrackerEnabled {
		vendors = oui.NewResolver(config.OUI)
	}

	// Setup internal shutdown mechanism
	shutdownChannel := make(chan os.Signal, 1)
	signal.Notify(shutdownChannel, syscall.SIGINT, syscall.SIGTERM)
	shutdown := util.NewShutdownChannelDistributor(shutdownChannel)

	runner := integration.NewRunner(config.Entry(), integration.Dependencies{
		Client:    client,
		Host:      bridgeHost,
		Store:     backend,
		Vendors:   vendors,
		SaveDelay: config.SaveDelay(),
		Shutdown:  shutdown,
	})
	runner.OnSetup(func(loaded *integration.Loaded) {
		for _, source := range loaded.Coordinators() {
			db.Attach(loaded.Entry.ID, source)
		}
	})

	// Run internal services in background and wait for all to finish
	var waitGroup sync.WaitGroup
	db.StartClient(&waitGroup, shutdown, config.InfluxDB)
	if !runner.WaitForSetup(context.Background(), shutdown) {
		shutdown.Shutdown()
		waitGroup.Wait()
		return
	}
	runner.Run(&waitGroup, shutdown)
	mqtt.StartBridge(&waitGroup, shutdown, config.MQTT, runner, bridgeHost.Bus)
	http.StartServer(&waitGroup, shutdown, config.HTTPEndpoint, http.NewServer(runner, bridgeHost))

	// Wait for internal services to finish
	waitGroup.Wait()
}
