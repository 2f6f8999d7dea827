package sensors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.hon.one/pfbridge/entity"
	"dev.hon.one/pfbridge/firewall"
	"dev.hon.one/pfbridge/state"
)

type fakeSource struct {
	snapshot  *state.Snapshot
	success   bool
	listeners []func()
}

func (source *fakeSource) Data() *state.Snapshot              { return source.snapshot }
func (source *fakeSource) LastUpdateSuccess() bool            { return source.success }
func (source *fakeSource) AddListener(listener func()) func() {
	source.listeners = append(source.listeners, listener)
	return func() { source.listeners = nil }
}

func (source *fakeSource) refresh() {
	for _, listener := range source.listeners {
		listener()
	}
}

func testSnapshot(cpuFrequency float64) *state.Snapshot {
	telemetry := firewall.NewTelemetry(map[string]interface{}{
		"cpu": map[string]interface{}{
			"used_percent": 12.5,
			"frequency":    map[string]interface{}{"current": cpuFrequency, "max": 2400.0},
		},
		"system": map[string]interface{}{"temp": 0.0, "boottime": 1700000000.0},
		"filesystems": []interface{}{
			map[string]interface{}{"device": "/dev/ada0p2", "mountpoint": "/", "percent_used": 41.0, "type": "ufs", "total_size": "20G"},
		},
		"interfaces": map[string]interface{}{
			"wan": map[string]interface{}{"descr": "WAN", "ifname": "igb0", "status": "up", "inbytes": 1000.0, "macaddr": "00:11:22:33:44:55", "mtu": 1500.0},
		},
		"gateways": map[string]interface{}{
			"WAN_DHCP": map[string]interface{}{"name": "WAN_DHCP", "status": "online", "delay": "1.2ms", "stddev": "0.3ms", "loss": "0.0%", "monitorip": "1.1.1.1", "srcip": "203.0.113.2", "substatus": "none"},
		},
		"openvpn": map[string]interface{}{
			"servers": map[string]interface{}{
				"1": map[string]interface{}{"vpnid": "1", "name": "roadwarrior", "connected_client_count": 2.0},
			},
		},
	})
	telemetry.Interfaces["wan"].Rates["inbytes_kilobytes_per_second"] = 42
	return &state.Snapshot{
		SystemInfo:          &firewall.SystemInfo{Hostname: "fw", Domain: "home.arpa", NetgateDeviceID: "abc123"},
		HostFirmwareVersion: &firewall.FirmwareVersion{Platform: "pfSense"},
		Telemetry:           telemetry,
		CARPInterfaces:      []firewall.CARPInterface{{UniqID: "5f1a", Descr: "vip", Status: "BACKUP"}},
		CARPStatus:          true,
		DHCPStats:           state.DHCPStats{Leases: state.LeaseStats{Total: 2, Online: 1, Offline: 1}},
	}
}

func byUniqueID(entities []entity.Entity) map[string]entity.Entity {
	result := make(map[string]entity.Entity)
	for _, candidate := range entities {
		result[candidate.UniqueID()] = candidate
	}
	return result
}

func TestBuildSensors(t *testing.T) {
	source := &fakeSource{snapshot: testSnapshot(1800), success: true}
	entities := BuildSensors(source, "")
	expected := len(StaticKeys) + 1 + 1 + len(InterfaceProperties) + len(GatewayProperties) + len(OpenVPNServerProperties)
	require.Len(t, entities, expected)

	sensors := byUniqueID(entities)
	require.Len(t, sensors, expected, "unique IDs are unique")

	cpu := sensors["abc123_telemetry_cpu_used_percent"]
	require.NotNil(t, cpu)
	assert.Equal(t, "fw.home.arpa CPU Usage", cpu.Name())
	assert.Equal(t, 12.5, cpu.State())
	assert.True(t, cpu.EnabledDefault())
	assert.Equal(t, "%", entity.DescriptionOf(cpu).Unit)

	leases := sensors["abc123_dhcp_stats_leases_online"]
	assert.Equal(t, 1, leases.State())

	temperature := sensors["abc123_telemetry_system_temp"]
	assert.False(t, temperature.Available())
	assert.Equal(t, entity.StateUnknown, temperature.State())

	boottime := sensors["abc123_telemetry_system_boottime"]
	assert.Equal(t, "2023-11-14T22:13:20Z", boottime.State())

	filesystem := sensors["abc123_telemetry_filesystems_dev_slash_ada0p2"]
	require.NotNil(t, filesystem)
	assert.Equal(t, 41.0, filesystem.State())
	assert.Equal(t, "ufs", filesystem.Attributes()["type"])

	rate := sensors["abc123_telemetry_interface_igb0_inbytes_kilobytes_per_second"]
	require.NotNil(t, rate)
	assert.Equal(t, int64(42), rate.State())
	assert.Equal(t, "kB/s", entity.DescriptionOf(rate).Unit)
	assert.Equal(t, "00:11:22:33:44:55", rate.Attributes()["macaddr"])

	missingRate := sensors["abc123_telemetry_interface_igb0_outpkts_packets_per_second"]
	assert.False(t, missingRate.Available())

	status := sensors["abc123_telemetry_interface_igb0_status"]
	assert.Equal(t, "up", status.State())
	assert.Equal(t, iconCheckNetwork, entity.DescriptionOf(status).Icon)

	delay := sensors["abc123_telemetry_gateway_wan_dhcp_delay"]
	require.NotNil(t, delay)
	assert.Equal(t, "1.2", delay.State())
	assert.Nil(t, delay.Attributes()["substatus"])

	vpn := sensors["abc123_telemetry_openvpn_servers_1_connected_client_count"]
	require.NotNil(t, vpn)
	assert.Equal(t, 2.0, vpn.State())
	assert.Equal(t, "roadwarrior", vpn.Attributes()["name"])
	assert.False(t, sensors["abc123_telemetry_openvpn_servers_1_total_bytes_recv"].Available())

	carp := sensors["abc123_carp_interface_5f1a"]
	assert.Equal(t, "BACKUP", carp.State())
	assert.Equal(t, iconCloseNetwork, entity.DescriptionOf(carp).Icon)

	info := entity.DeviceInfoOf(cpu)
	assert.Equal(t, []entity.Identifier{{Domain: "pfsense", ID: "abc123"}}, info.Identifiers)
	assert.Equal(t, "netgate", info.Manufacturer)
}

func TestCPUFrequencyKeepsLastValue(t *testing.T) {
	source := &fakeSource{snapshot: testSnapshot(0), success: true}
	frequency := newStaticKeySensor(source, "Firewall", StaticKey{Key: keyCPUFrequencyCurr, Name: "CPU Frequency Current"})
	assert.Equal(t, "Firewall CPU Frequency Current", frequency.Name())

	assert.False(t, frequency.Available())
	assert.Equal(t, entity.StateUnknown, frequency.State())

	source.snapshot = testSnapshot(1800)
	assert.Equal(t, 1800.0, frequency.State())

	source.snapshot = testSnapshot(0)
	assert.True(t, frequency.Available())
	assert.Equal(t, 1800.0, frequency.State())
}

func TestAvailabilityFollowsRefresh(t *testing.T) {
	source := &fakeSource{snapshot: testSnapshot(1800), success: true}
	cpu := byUniqueID(BuildSensors(source, ""))["abc123_telemetry_cpu_used_percent"]
	assert.True(t, cpu.Available())
	source.success = false
	assert.False(t, cpu.Available())
}

func TestCARPStatusBinarySensor(t *testing.T) {
	source := &fakeSource{snapshot: testSnapshot(1800), success: true}
	entities := BuildBinarySensors(source, "")
	require.Len(t, entities, 1)
	binary := entities[0]
	assert.Equal(t, "abc123_carp_status", binary.UniqueID())
	assert.Equal(t, entity.PlatformBinarySensor, binary.Platform())
	assert.False(t, binary.EnabledDefault())
	assert.Equal(t, StateOn, binary.State())

	source.snapshot.CARPStatus = false
	assert.Equal(t, StateOff, binary.State())
}

func TestSetupRegistersOnce(t *testing.T) {
	source := &fakeSource{snapshot: testSnapshot(1800), success: true}
	var sensors, binarySensors int
	undo, err := Setup(source, "", func(entities []entity.Entity) {
		sensors += len(entities)
	}, func(entities []entity.Entity) {
		binarySensors += len(entities)
	})
	require.NoError(t, err)

	source.refresh()
	source.refresh()
	assert.Equal(t, len(BuildSensors(source, "")), sensors)
	assert.Equal(t, 1, binarySensors)

	undo()
	assert.Empty(t, source.listeners)
}

func TestNormalizeFilesystemName(t *testing.T) {
	assert.Equal(t, "dev_slash_ada0p2", NormalizeFilesystemName("/dev/ada0p2"))
	assert.Equal(t, "slash", NormalizeFilesystemName("/"))
}
