// Package mqtt publishes entities to an MQTT broker and accepts device removal commands.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"dev.hon.one/pfbridge/coordinator"
	"dev.hon.one/pfbridge/entity"
	"dev.hon.one/pfbridge/host"
	"dev.hon.one/pfbridge/integration"
	"dev.hon.one/pfbridge/tracker"
	"dev.hon.one/pfbridge/util"
)

// DefaultDiscoveryPrefix - Discovery prefix if none is configured.
const DefaultDiscoveryPrefix = "homeassistant"

const publishTimeout = 5 * time.Second

const connectTimeout = 10 * time.Second

// ErrNotConnected - The broker connection is down.
var ErrNotConnected = errors.New("not connected to broker")

// Config - Broker connection. An empty broker disables publishing.
type Config struct {
	Broker          string `json:"broker" toml:"broker"`
	ClientID        string `json:"client_id" toml:"client_id"`
	Username        string `json:"username" toml:"username"`
	Password        string `json:"password" toml:"password"`
	DiscoveryPrefix string `json:"discovery_prefix" toml:"discovery_prefix"`
}

// Transport - Minimal broker operations.
type Transport interface {
	Publish(topic string, retained bool, payload []byte) error
	Subscribe(topic string, handler func(topic string, payload []byte)) error
	Close()
}

type pahoTransport struct {
	client paho.Client
	mutex  sync.Mutex
	routes map[string]func(topic string, payload []byte)
}

// Connect - Connect to the broker. Subscriptions are restored after reconnects.
func Connect(config Config, availabilityTopic string) (Transport, error) {
	transport := &pahoTransport{routes: make(map[string]func(string, []byte))}

	options := paho.NewClientOptions()
	options.AddBroker(config.Broker)
	options.SetClientID(config.ClientID)
	if config.Username != "" {
		options.SetUsername(config.Username)
		options.SetPassword(config.Password)
	}
	options.SetKeepAlive(60 * time.Second)
	options.SetPingTimeout(10 * time.Second)
	options.SetAutoReconnect(true)
	options.SetConnectRetry(true)
	options.SetConnectRetryInterval(5 * time.Second)
	options.SetWill(availabilityTopic, "offline", 1, true)
	options.SetOnConnectHandler(func(client paho.Client) {
		log.WithField("broker", config.Broker).Info("MQTT connected")
		client.Publish(availabilityTopic, 1, true, "online")
		transport.mutex.Lock()
		routes := make(map[string]func(string, []byte), len(transport.routes))
		for topic, handler := range transport.routes {
			routes[topic] = handler
		}
		transport.mutex.Unlock()
		for topic, handler := range routes {
			transport.subscribe(client, topic, handler)
		}
	})
	options.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.WithError(err).Warn("MQTT connection lost")
	})

	transport.client = paho.NewClient(options)
	token := transport.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.WithField("broker", config.Broker).Warn("MQTT broker not reachable yet, retrying in the background")
		return transport, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	return transport, nil
}

func (transport *pahoTransport) Publish(topic string, retained bool, payload []byte) error {
	if !transport.client.IsConnected() {
		return ErrNotConnected
	}
	token := transport.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

func (transport *pahoTransport) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	transport.mutex.Lock()
	transport.routes[topic] = handler
	transport.mutex.Unlock()
	if !transport.client.IsConnected() {
		// Subscribed by the connect handler
		return nil
	}
	return transport.subscribe(transport.client, topic, handler)
}

func (transport *pahoTransport) subscribe(client paho.Client, topic string, handler func(topic string, payload []byte)) error {
	token := client.Subscribe(topic, 1, func(_ paho.Client, message paho.Message) {
		handler(message.Topic(), message.Payload())
	})
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		log.WithError(err).WithField("topic", topic).Warn("Failed to subscribe")
		return err
	}
	return nil
}

func (transport *pahoTransport) Close() {
	transport.client.Disconnect(250)
}

// AvailabilityTopic - Retained online/offline topic of the bridge.
func AvailabilityTopic(entryID string) string {
	return fmt.Sprintf("%s/%s/availability", BaseTopic, entryID)
}

// Bridge - Publishes one entry's entities and relays removal commands to its bus.
type Bridge struct {
	transport Transport
	prefix    string
	entryID   string
	bus       *host.Bus

	mutex      sync.Mutex
	discovered map[string]bool
}

// NewBridge - Create a bridge and subscribe to the entry's removal command topic.
func NewBridge(transport Transport, config Config, entryID string, bus *host.Bus) (*Bridge, error) {
	prefix := config.DiscoveryPrefix
	if prefix == "" {
		prefix = DefaultDiscoveryPrefix
	}
	bridge := &Bridge{
		transport:  transport,
		prefix:     prefix,
		entryID:    entryID,
		bus:        bus,
		discovered: make(map[string]bool),
	}
	if err := transport.Subscribe(RemoveDevicesCommandTopic(entryID), bridge.handleRemoveDevices); err != nil {
		return nil, err
	}
	return bridge, nil
}

// Attach - Publish the loaded entry's entities now, new ones as they are added and states after every update.
func (bridge *Bridge) Attach(loaded *integration.Loaded) {
	platformsOf := func(source *coordinator.Coordinator) []*host.Platform {
		var platforms []*host.Platform
		for kind, platform := range loaded.Platforms {
			tracking := kind == entity.PlatformDeviceTracker
			if tracking == (source == loaded.DeviceTrackerCoordinator) {
				platforms = append(platforms, platform)
			}
		}
		return platforms
	}

	for _, platform := range loaded.Platforms {
		platform.OnAdd(bridge.publishEntity)
		for _, current := range platform.Entities() {
			bridge.publishEntity(current)
		}
	}
	for _, source := range loaded.Coordinators() {
		platforms := platformsOf(source)
		source.AddListener(func() {
			for _, platform := range platforms {
				for _, current := range platform.Entities() {
					bridge.publishState(current)
				}
			}
		})
	}
}

func (bridge *Bridge) publishEntity(loaded host.LoadedEntity) {
	platform := loaded.Entity.Platform()
	uniqueID := loaded.Entity.UniqueID()
	key := platform + "/" + uniqueID

	bridge.mutex.Lock()
	discovered := bridge.discovered[key]
	bridge.discovered[key] = true
	bridge.mutex.Unlock()

	if !discovered {
		config, err := json.Marshal(DiscoveryPayload(bridge.entryID, loaded))
		if err != nil {
			log.WithError(err).WithField("entity", loaded.EntityID).Error("Failed to encode discovery config")
			return
		}
		if err := bridge.transport.Publish(DiscoveryTopic(bridge.prefix, platform, uniqueID), true, config); err != nil {
			log.WithError(err).WithField("entity", loaded.EntityID).Debug("Failed to publish discovery config")
			bridge.mutex.Lock()
			delete(bridge.discovered, key)
			bridge.mutex.Unlock()
		}
	}
	bridge.publishState(loaded)
}

func (bridge *Bridge) publishState(loaded host.LoadedEntity) {
	platform := loaded.Entity.Platform()
	uniqueID := loaded.Entity.UniqueID()
	if err := bridge.transport.Publish(StateTopic(bridge.entryID, platform, uniqueID), true, []byte(StatePayload(loaded.Entity))); err != nil {
		log.WithError(err).WithField("entity", loaded.EntityID).Debug("Failed to publish state")
		return
	}
	attributes, err := json.Marshal(loaded.Entity.Attributes())
	if err != nil {
		log.WithError(err).WithField("entity", loaded.EntityID).Debug("Failed to encode attributes")
		return
	}
	if err := bridge.transport.Publish(AttributesTopic(bridge.entryID, platform, uniqueID), true, attributes); err != nil {
		log.WithError(err).WithField("entity", loaded.EntityID).Debug("Failed to publish attributes")
	}
}

func (bridge *Bridge) handleRemoveDevices(topic string, payload []byte) {
	macs, err := ParseRemoveDevicesCommand(payload)
	if err != nil {
		log.WithError(err).WithField("topic", topic).Warn("Invalid remove devices command")
		return
	}
	if len(macs) == 0 {
		return
	}
	log.WithFields(log.Fields{
		"entry": bridge.entryID,
		"macs":  macs,
	}).Info("Received remove devices command")
	bridge.bus.Fire(tracker.RemoveDevicesTopic(bridge.entryID), map[string]interface{}{"macs": macs})
}

// StartBridge - Connect to the broker and attach the bridge to every setup of the runner until shut down.
func StartBridge(waitGroup *sync.WaitGroup, shutdown *util.ShutdownChannelDistributor, config Config, runner *integration.Runner, bus *host.Bus) {
	if config.Broker == "" {
		log.Info("MQTT bridge disabled")
		return
	}
	entryID := runner.Entry().ID
	if config.ClientID == "" {
		config.ClientID = BaseTopic + "-" + entryID
	}

	// Setup shutdown signal and waitgroup
	shutdownChannel := make(chan bool, 1)
	if !shutdown.AddListener(shutdownChannel) {
		return
	}

	transport, err := Connect(config, AvailabilityTopic(entryID))
	if err != nil {
		log.WithError(err).Error("MQTT bridge failed to start")
		return
	}
	bridge, err := NewBridge(transport, config, entryID, bus)
	if err != nil {
		log.WithError(err).Error("MQTT bridge failed to subscribe")
		transport.Close()
		return
	}
	runner.OnSetup(bridge.Attach)
	if current := runner.Current(); current != nil {
		bridge.Attach(current)
	}
	waitGroup.Add(1)

	go func() {
		<-shutdownChannel
		transport.Publish(AvailabilityTopic(entryID), true, []byte("offline"))
		transport.Close()
		log.Info("MQTT bridge stopped")
		waitGroup.Done()
	}()

	log.WithField("broker", config.Broker).Info("MQTT bridge started")
}
