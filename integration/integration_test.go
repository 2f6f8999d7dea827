package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"dev.hon.one/pfbridge/coordinator"
	"dev.hon.one/pfbridge/entity"
	"dev.hon.one/pfbridge/firewall"
	"dev.hon.one/pfbridge/host"
	"dev.hon.one/pfbridge/store"
	"dev.hon.one/pfbridge/tracker"
	"dev.hon.one/pfbridge/util"
)

const (
	laptopMAC = "aa:bb:cc:dd:ee:ff"
	phoneMAC  = "11:22:33:44:55:66"
)

// expectFirewall answers every poll with a small firewall.
func expectFirewall(client *firewall.MockClient, arp []firewall.ARPEntry) {
	client.EXPECT().GetSystemInfo(gomock.Any()).Return(&firewall.SystemInfo{Hostname: "fw", NetgateDeviceID: "abc123"}, nil).AnyTimes()
	client.EXPECT().GetHostFirmwareVersion(gomock.Any()).Return(&firewall.FirmwareVersion{Platform: "pfSense"}, nil).AnyTimes()
	client.EXPECT().GetTelemetry(gomock.Any()).Return(firewall.NewTelemetry(nil), nil).AnyTimes()
	client.EXPECT().GetConfig(gomock.Any()).Return(map[string]interface{}{}, nil).AnyTimes()
	client.EXPECT().GetInterfaces(gomock.Any()).Return(map[string]interface{}{}, nil).AnyTimes()
	client.EXPECT().GetServices(gomock.Any()).Return(nil, nil).AnyTimes()
	client.EXPECT().GetCARPInterfaces(gomock.Any()).Return(nil, nil).AnyTimes()
	client.EXPECT().GetCARPStatus(gomock.Any()).Return(false, nil).AnyTimes()
	client.EXPECT().GetDHCPLeases(gomock.Any()).Return(nil, nil).AnyTimes()
	client.EXPECT().GetARPTable(gomock.Any(), true).Return(arp, nil).AnyTimes()
	client.EXPECT().DeleteARPEntry(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
}

func newDependencies(t *testing.T, arp []firewall.ARPEntry) (Dependencies, *store.MemoryStore) {
	client := firewall.NewMockClient(gomock.NewController(t))
	expectFirewall(client, arp)
	backend := store.NewMemoryStore()
	return Dependencies{
		Client: client,
		Host:   host.New(),
		Store:  backend,
	}, backend
}

func arpEntry(mac string, ip string) firewall.ARPEntry {
	return firewall.ARPEntry{MACAddress: mac, IPAddress: ip, Interface: "lan", Type: "ethernet"}
}

func TestMACsToRemove(t *testing.T) {
	arp := []firewall.ARPEntry{arpEntry(laptopMAC, "10.0.0.2"), arpEntry(phoneMAC, "10.0.0.3"), arpEntry(phoneMAC, "10.0.0.4")}

	t.Run("previous devices minus devices", func(t *testing.T) {
		options := Options{Devices: []string{laptopMAC}, PreviousDevices: []string{laptopMAC, phoneMAC}}
		assert.Equal(t, []string{phoneMAC}, macsToRemove(options, arp))
	})
	t.Run("without history the live devices not whitelisted", func(t *testing.T) {
		options := Options{Devices: []string{laptopMAC}}
		assert.Equal(t, []string{phoneMAC}, macsToRemove(options, arp))
	})
	t.Run("nothing without a whitelist", func(t *testing.T) {
		assert.Empty(t, macsToRemove(Options{}, arp))
	})
}

func TestOptionsWithDefaults(t *testing.T) {
	options := Options{Devices: []string{" AA:BB:CC:DD:EE:FF ", ""}}.WithDefaults()
	assert.Equal(t, DefaultScanInterval, options.ScanInterval)
	assert.Equal(t, DefaultDeviceTrackerScanInterval, options.DeviceTrackerScanInterval)
	assert.Equal(t, []string{laptopMAC}, options.Devices)
}

func TestSetupWithoutDeviceTracker(t *testing.T) {
	deps, backend := newDependencies(t, nil)
	loaded, err := Setup(context.Background(), Entry{ID: "entry", Title: "fw"}, deps)
	require.NoError(t, err)

	assert.Nil(t, loaded.DeviceTrackerCoordinator)
	assert.Nil(t, loaded.Tracker)
	assert.Len(t, loaded.Coordinators(), 1)
	assert.Equal(t, CoordinatorDefault, loaded.Coordinator.Name())
	assert.Contains(t, loaded.Platforms, entity.PlatformSensor)
	assert.Contains(t, loaded.Platforms, entity.PlatformBinarySensor)
	assert.NotEmpty(t, deps.Host.Entities.Entries())
	assert.False(t, backend.Has(OptionsKey("entry")))

	loaded.Unload()
	assert.Zero(t, loaded.Coordinator.ListenerCount())
	assert.Empty(t, loaded.Platforms[entity.PlatformSensor].Entities())
}

func TestSetupFirstRefreshFailure(t *testing.T) {
	client := firewall.NewMockClient(gomock.NewController(t))
	client.EXPECT().GetSystemInfo(gomock.Any()).Return(nil, errors.New("connection refused"))
	deps := Dependencies{Client: client, Host: host.New(), Store: store.NewMemoryStore()}

	_, err := Setup(context.Background(), Entry{ID: "entry"}, deps)
	assert.ErrorIs(t, err, coordinator.ErrNotReady)
}

func TestSetupFiresRemovalOfPreviousDevices(t *testing.T) {
	deps, backend := newDependencies(t, []firewall.ARPEntry{arpEntry(laptopMAC, "10.0.0.2")})
	ctx := context.Background()
	require.NoError(t, backend.Save(ctx, tracker.CacheKey("entry"), tracker.Cache{
		phoneMAC: {IPAddress: "10.0.0.3"},
	}))

	var fired []string
	deps.Host.Bus.Subscribe(tracker.RemoveDevicesTopic("entry"), func(event host.Event) {
		fired = tracker.MACsFromEvent(event.Data)
	})

	entry := Entry{ID: "entry", Options: Options{
		DeviceTrackerEnabled: true,
		Devices:              []string{laptopMAC},
		PreviousDevices:      []string{laptopMAC, phoneMAC},
	}}
	loaded, err := Setup(ctx, entry, deps)
	require.NoError(t, err)
	defer loaded.Unload()

	assert.Equal(t, []string{phoneMAC}, fired)
	assert.NotContains(t, loaded.Tracker.Cache(), phoneMAC)
	assert.Contains(t, loaded.Tracker.Cache(), laptopMAC)
	assert.Equal(t, []string{laptopMAC}, loaded.Entry.Options.PreviousDevices)

	persisted, err := LoadPersistedOptions(ctx, backend, Entry{ID: "entry"})
	require.NoError(t, err)
	assert.Equal(t, []string{laptopMAC}, persisted.Options.PreviousDevices)
}

func TestRemoveDeletesPersistedState(t *testing.T) {
	backend := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, backend.Save(ctx, tracker.CacheKey("entry"), tracker.Cache{}))
	require.NoError(t, backend.Save(ctx, OptionsKey("entry"), persistedOptions{}))

	require.NoError(t, Remove(ctx, backend, "entry"))
	assert.False(t, backend.Has(tracker.CacheKey("entry")))
	assert.False(t, backend.Has(OptionsKey("entry")))
}

func TestRunnerReloadEnablesWhitelistedDevice(t *testing.T) {
	deps, _ := newDependencies(t, []firewall.ARPEntry{arpEntry(laptopMAC, "10.0.0.2")})
	uniqueID := tracker.ScannerUniqueID("abc123", laptopMAC)
	registration := deps.Host.Entities.GetOrCreate(entity.PlatformDeviceTracker, uniqueID, "entry", "laptop", false)
	require.True(t, registration.Disabled())

	runner := NewRunner(Entry{ID: "entry", Options: Options{
		DeviceTrackerEnabled: true,
		Devices:              []string{laptopMAC},
	}}, deps)
	var setups int
	runner.OnSetup(func(*Loaded) { setups++ })
	ctx := context.Background()
	require.NoError(t, runner.Start(ctx))

	shouldReload, entityIDs := runner.Current().ShouldReload()
	assert.True(t, shouldReload)
	assert.Equal(t, []string{registration.EntityID}, entityIDs)
	queued := <-runner.reloads
	assert.Equal(t, []string{registration.EntityID}, queued)

	require.NoError(t, runner.Reload(ctx, queued...))
	defer runner.Current().Unload()

	enabled, found := deps.Host.Entities.Get(registration.EntityID)
	require.True(t, found)
	assert.False(t, enabled.Disabled())
	shouldReload, _ = runner.Current().ShouldReload()
	assert.False(t, shouldReload)
	assert.Equal(t, 2, setups)
	_, loaded := runner.Current().Platforms[entity.PlatformDeviceTracker].Entity(registration.EntityID)
	assert.True(t, loaded)
}

func TestRunnerRemove(t *testing.T) {
	deps, backend := newDependencies(t, nil)
	runner := NewRunner(Entry{ID: "entry"}, deps)
	ctx := context.Background()
	require.NoError(t, runner.Start(ctx))
	require.NoError(t, backend.Save(ctx, OptionsKey("entry"), persistedOptions{}))

	require.NoError(t, runner.Remove(ctx))
	assert.Nil(t, runner.Current())
	assert.False(t, backend.Has(OptionsKey("entry")))
}

func TestRunnerWaitForSetupRetriesUntilReady(t *testing.T) {
	client := firewall.NewMockClient(gomock.NewController(t))
	client.EXPECT().GetSystemInfo(gomock.Any()).Return(nil, errors.New("connection refused")).Times(1)
	expectFirewall(client, nil)
	deps := Dependencies{Client: client, Host: host.New(), Store: store.NewMemoryStore()}

	runner := NewRunner(Entry{ID: "entry"}, deps)
	runner.retryInterval = 10 * time.Millisecond
	shutdown := util.NewShutdownChannelDistributor(nil)
	defer shutdown.Shutdown()

	require.True(t, runner.WaitForSetup(context.Background(), shutdown))
	require.NotNil(t, runner.Current())
	defer runner.Current().Unload()
	assert.True(t, runner.Current().Coordinator.LastUpdateSuccess())
}

func TestRunnerWaitForSetupStopsOnShutdown(t *testing.T) {
	client := firewall.NewMockClient(gomock.NewController(t))
	client.EXPECT().GetSystemInfo(gomock.Any()).Return(nil, errors.New("connection refused")).MinTimes(1)
	deps := Dependencies{Client: client, Host: host.New(), Store: store.NewMemoryStore()}

	runner := NewRunner(Entry{ID: "entry"}, deps)
	runner.retryInterval = 10 * time.Millisecond
	shutdown := util.NewShutdownChannelDistributor(nil)
	time.AfterFunc(50*time.Millisecond, shutdown.Shutdown)

	assert.False(t, runner.WaitForSetup(context.Background(), shutdown))
	assert.Nil(t, runner.Current())
}
