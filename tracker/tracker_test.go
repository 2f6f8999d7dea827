package tracker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"dev.hon.one/pfbridge/entity"
	"dev.hon.one/pfbridge/firewall"
	"dev.hon.one/pfbridge/host"
	"dev.hon.one/pfbridge/state"
	"dev.hon.one/pfbridge/store"
)

const (
	laptopMAC = "aa:bb:cc:dd:ee:ff"
	phoneMAC  = "11:22:33:44:55:66"
)

type fakeSource struct {
	snapshot  *state.Snapshot
	listeners []func()
}

func (source *fakeSource) Data() *state.Snapshot {
	return source.snapshot
}

func (source *fakeSource) AddListener(listener func()) func() {
	source.listeners = append(source.listeners, listener)
	return func() { source.listeners = nil }
}

func (source *fakeSource) publish(arp ...firewall.ARPEntry) {
	source.snapshot = &state.Snapshot{
		SystemInfo: &firewall.SystemInfo{NetgateDeviceID: "abc123"},
		ARPTable:   arp,
	}
	for _, listener := range source.listeners {
		listener()
	}
}

type fakeReload struct {
	entityIDs []string
}

func (reload *fakeReload) RequestReload(entityIDs ...string) {
	reload.entityIDs = append(reload.entityIDs, entityIDs...)
}

type fakeVendors map[string]string

func (vendors fakeVendors) Lookup(mac string) string {
	return vendors[mac]
}

type fixture struct {
	client  *firewall.MockClient
	source  *fakeSource
	host    *host.Host
	backend *store.MemoryStore
	reload  *fakeReload
	tracker *Tracker
}

func newFixture(t *testing.T, devices ...string) *fixture {
	ctrl := gomock.NewController(t)
	fixture := &fixture{
		client:  firewall.NewMockClient(ctrl),
		source:  &fakeSource{},
		host:    host.New(),
		backend: store.NewMemoryStore(),
		reload:  &fakeReload{},
	}
	fixture.tracker = New(Config{
		EntryID:   "entry",
		Devices:   devices,
		SaveDelay: time.Hour,
	}, fixture.client, fixture.source, fixture.host, fixture.backend, fakeVendors{laptopMAC: "Intel Corporate"}, fixture.reload)
	t.Cleanup(fixture.tracker.waitDeletes)
	return fixture
}

func laptopEntry() firewall.ARPEntry {
	return firewall.ARPEntry{
		MACAddress: "AA:BB:CC:DD:EE:FF",
		IPAddress:  "10.0.0.2",
		Hostname:   "laptop?",
		Interface:  "lan",
		Expires:    1200.0,
		Type:       "ethernet",
	}
}

func uniqueIDs(entities []entity.Entity) []string {
	ids := make([]string, 0, len(entities))
	for _, candidate := range entities {
		ids = append(ids, candidate.UniqueID())
	}
	return ids
}

func TestCachedDeviceIsNotConnected(t *testing.T) {
	fixture := newFixture(t, laptopMAC)
	fixture.client.EXPECT().DeleteARPEntry(gomock.Any(), "10.0.0.2").Return(nil)
	fixture.source.publish(laptopEntry())

	platform := fixture.host.NewPlatform("entry", entity.PlatformDeviceTracker)
	require.NoError(t, fixture.tracker.Setup(platform))
	loaded := platform.Entities()
	require.Len(t, loaded, 1)
	scanner := loaded[0].Entity.(*ScannerEntity)
	assert.Equal(t, "abc123_mac_aa_bb_cc_dd_ee_ff", scanner.UniqueID())
	assert.True(t, scanner.IsConnected())
	assert.Equal(t, StateHome, scanner.State())
	assert.Equal(t, "laptop", scanner.Name())

	fixture.source.publish()

	assert.False(t, scanner.IsConnected())
	assert.Equal(t, StateNotHome, scanner.State())
	assert.Equal(t, "10.0.0.2", scanner.IPAddress())
	assert.Equal(t, "laptop", scanner.Hostname())
	assert.Equal(t, &CacheAttributes{Interface: "lan", Expires: 1200.0, Type: "ethernet"}, scanner.ExtraAttributes())
	assert.Equal(t, "Intel Corporate", scanner.Attributes()["vendor"])
	assert.Len(t, platform.Entities(), 1)
}

func TestBuildOrdersLiveThenCached(t *testing.T) {
	fixture := newFixture(t)
	fixture.tracker.cache["de:ad:be:ef:00:01"] = CacheEntry{IPAddress: "10.0.0.9"}
	fixture.tracker.cache[laptopMAC] = CacheEntry{IPAddress: "10.0.0.1"}

	fixture.client.EXPECT().DeleteARPEntry(gomock.Any(), "10.0.0.3").Return(nil)
	fixture.client.EXPECT().DeleteARPEntry(gomock.Any(), "10.0.0.2").Return(nil)
	fixture.source.publish(
		firewall.ARPEntry{MACAddress: phoneMAC, IPAddress: "10.0.0.3"},
		laptopEntry(),
		firewall.ARPEntry{MACAddress: "11:22:33:44:55:66", IPAddress: "10.0.0.3"},
		firewall.ARPEntry{MACAddress: ""},
	)

	entities, payload := fixture.tracker.build()
	assert.Equal(t, []string{
		"abc123_mac_11_22_33_44_55_66",
		"abc123_mac_aa_bb_cc_dd_ee_ff",
		"abc123_mac_de_ad_be_ef_00_01",
	}, uniqueIDs(entities))
	for _, candidate := range entities {
		assert.False(t, candidate.EnabledDefault())
	}

	cache := payload.(Cache)
	assert.Equal(t, "10.0.0.2", cache[laptopMAC].IPAddress, "live entries refresh the cache")
	assert.Equal(t, "laptop", cache[laptopMAC].Hostname)
	assert.Equal(t, "10.0.0.9", cache["de:ad:be:ef:00:01"].IPAddress)
}

func TestARPDeleteIsBestEffort(t *testing.T) {
	fixture := newFixture(t, laptopMAC)
	fixture.client.EXPECT().DeleteARPEntry(gomock.Any(), "10.0.0.2").Return(errors.New("permission denied"))
	// No delete for an entry without an IP address
	fixture.source.publish(laptopEntry(), firewall.ARPEntry{MACAddress: phoneMAC})

	entities, _ := fixture.tracker.build()
	assert.Len(t, entities, 2)
}

func TestSlowARPDeleteDoesNotBlockReconciliation(t *testing.T) {
	fixture := newFixture(t, laptopMAC)
	release := make(chan struct{})
	started := make(chan struct{})
	fixture.client.EXPECT().DeleteARPEntry(gomock.Any(), "10.0.0.2").DoAndReturn(func(ctx context.Context, ip string) error {
		close(started)
		<-release
		return nil
	}).Times(1)
	fixture.client.EXPECT().DeleteARPEntry(gomock.Any(), "10.0.0.3").Return(nil).Times(1)
	fixture.source.publish(laptopEntry())

	built := make(chan int, 1)
	go func() {
		entities, _ := fixture.tracker.build()
		built <- len(entities)
	}()
	select {
	case count := <-built:
		assert.Equal(t, 1, count)
	case <-time.After(time.Second):
		t.Fatal("build waited for the ARP delete")
	}
	<-started

	// The IP still being deleted is not queued again
	fixture.source.publish(laptopEntry(), firewall.ARPEntry{MACAddress: phoneMAC, IPAddress: "10.0.0.3"})
	entities, _ := fixture.tracker.build()
	assert.Len(t, entities, 2)

	close(release)
	fixture.tracker.waitDeletes()
}

func TestUnloadAbortsQueuedARPDeletes(t *testing.T) {
	fixture := newFixture(t)
	fixture.client.EXPECT().DeleteARPEntry(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, ip string) error {
		<-ctx.Done()
		return ctx.Err()
	}).MaxTimes(maxARPDeletes)
	var arp []firewall.ARPEntry
	for i := 0; i < maxARPDeletes*2; i++ {
		arp = append(arp, firewall.ARPEntry{MACAddress: fmt.Sprintf("de:ad:be:ef:00:%02x", i), IPAddress: fmt.Sprintf("10.0.1.%d", i)})
	}
	fixture.source.publish(arp...)
	fixture.tracker.build()

	done := make(chan error, 1)
	go func() { done <- fixture.tracker.Unload() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Unload waited for the ARP delete timeout")
	}
}

func TestRemoveDevicesEvent(t *testing.T) {
	fixture := newFixture(t, laptopMAC)
	fixture.client.EXPECT().DeleteARPEntry(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	fixture.source.publish(laptopEntry(), firewall.ARPEntry{MACAddress: phoneMAC, IPAddress: "10.0.0.3"})

	platform := fixture.host.NewPlatform("entry", entity.PlatformDeviceTracker)
	require.NoError(t, fixture.tracker.Setup(platform))
	_, found := fixture.host.Devices.GetByConnection(entity.ConnectionMAC, laptopMAC)
	require.True(t, found)
	require.Zero(t, fixture.backend.Saves())

	fixture.host.Bus.Fire(RemoveDevicesTopic("entry"), map[string]interface{}{"macs": []interface{}{"AA:BB:CC:DD:EE:FF"}})

	assert.Equal(t, 1, fixture.backend.Saves(), "removal saves immediately")
	_, found = fixture.host.Devices.GetByConnection(entity.ConnectionMAC, laptopMAC)
	assert.False(t, found)

	var persisted Cache
	_, err := fixture.backend.Load(context.Background(), CacheKey("entry"), &persisted)
	require.NoError(t, err)
	assert.NotContains(t, persisted, laptopMAC)
	assert.Contains(t, persisted, phoneMAC)
	assert.NotContains(t, fixture.tracker.Cache(), laptopMAC)
}

func TestWhitelistedDisabledDeviceRequestsReload(t *testing.T) {
	fixture := newFixture(t, laptopMAC)
	registration := fixture.host.Entities.GetOrCreate(entity.PlatformDeviceTracker, "abc123_mac_aa_bb_cc_dd_ee_ff", "entry", "laptop", false)
	require.Equal(t, host.DisabledByIntegration, registration.DisabledBy)

	fixture.client.EXPECT().DeleteARPEntry(gomock.Any(), "10.0.0.2").Return(nil)
	fixture.source.publish(laptopEntry())
	entities, _ := fixture.tracker.build()

	require.Len(t, entities, 1)
	assert.True(t, entities[0].EnabledDefault())
	assert.Equal(t, []string{registration.EntityID}, fixture.reload.entityIDs)
	unchanged, _ := fixture.host.Entities.Get(registration.EntityID)
	assert.Equal(t, host.DisabledByIntegration, unchanged.DisabledBy)
}

func TestUserDisabledDeviceDoesNotRequestReload(t *testing.T) {
	fixture := newFixture(t, laptopMAC)
	registration := fixture.host.Entities.GetOrCreate(entity.PlatformDeviceTracker, "abc123_mac_aa_bb_cc_dd_ee_ff", "entry", "laptop", true)
	require.NoError(t, fixture.host.Entities.Disable(registration.EntityID, host.DisabledByUser))

	fixture.client.EXPECT().DeleteARPEntry(gomock.Any(), "10.0.0.2").Return(nil)
	fixture.source.publish(laptopEntry())
	fixture.tracker.build()
	assert.Empty(t, fixture.reload.entityIDs)
}

func TestLoadCacheNormalizesMACs(t *testing.T) {
	fixture := newFixture(t)
	require.NoError(t, fixture.backend.Save(context.Background(), CacheKey("entry"), Cache{
		"AA:BB:CC:DD:EE:FF": {IPAddress: "10.0.0.2", Hostname: "laptop"},
	}))

	require.NoError(t, fixture.tracker.LoadCache(context.Background()))
	cached, found := fixture.tracker.cacheEntry(laptopMAC)
	require.True(t, found)
	assert.Equal(t, "laptop", cached.Hostname)
}

func TestUnloadFlushesPendingSave(t *testing.T) {
	fixture := newFixture(t, laptopMAC)
	fixture.client.EXPECT().DeleteARPEntry(gomock.Any(), "10.0.0.2").Return(nil)
	fixture.source.publish(laptopEntry())

	platform := fixture.host.NewPlatform("entry", entity.PlatformDeviceTracker)
	require.NoError(t, fixture.tracker.Setup(platform))
	fixture.tracker.waitDeletes()
	require.NoError(t, fixture.tracker.Unload())
	assert.Equal(t, 1, fixture.backend.Saves())
	assert.Empty(t, fixture.source.listeners)
	assert.False(t, fixture.host.Bus.HasSubscribers(RemoveDevicesTopic("entry")))
}

func TestMACsFromEvent(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, MACsFromEvent(map[string]interface{}{"macs": []string{"a", "b"}}))
	assert.Equal(t, []string{"a"}, MACsFromEvent(map[string]interface{}{"macs": []interface{}{"a", 3}}))
	assert.Nil(t, MACsFromEvent(map[string]interface{}{}))
}
