package sensors

import (
	"sync"
	"time"

	"dev.hon.one/pfbridge/entity"
	"dev.hon.one/pfbridge/util"
)

const (
	keySystemTemp       = "telemetry.system.temp"
	keySystemBoottime   = "telemetry.system.boottime"
	keyCPUFrequencyCurr = "telemetry.cpu.frequency.current"
	stateClassMeasure   = "measurement"
	unitPercent         = "%"
	unitBytes           = "B"
	unitCount           = "count"
	unitClients         = "clients"
)

// StaticKey - A sensor read from a fixed snapshot path.
type StaticKey struct {
	Key            string
	Name           string
	EnabledDefault bool
	Description    entity.Description
}

// StaticKeys - The fixed path sensors, in registration order.
var StaticKeys = []StaticKey{
	{"telemetry.pfstate.used", "pf State Table Used", false, entity.Description{Unit: unitCount, Icon: "mdi:table-network", StateClass: stateClassMeasure}},
	{"telemetry.pfstate.total", "pf State Table Total", false, entity.Description{Unit: unitCount, Icon: "mdi:table-network"}},
	{"telemetry.pfstate.used_percent", "pf State Table Used Percentage", true, entity.Description{Unit: unitPercent, Icon: "mdi:table-network", StateClass: stateClassMeasure}},
	{"telemetry.mbuf.used", "Memory Buffers Used", false, entity.Description{Unit: unitBytes, Icon: iconMemory, StateClass: stateClassMeasure}},
	{"telemetry.mbuf.total", "Memory Buffers Total", false, entity.Description{Unit: unitBytes, Icon: iconMemory}},
	{"telemetry.mbuf.used_percent", "Memory Buffers Used Percentage", true, entity.Description{Unit: unitPercent, Icon: iconMemory, StateClass: stateClassMeasure}},
	{"telemetry.memory.usermem", "Memory Usermem", false, entity.Description{Unit: unitBytes, Icon: iconMemory, StateClass: stateClassMeasure}},
	{"telemetry.memory.swap_reserved", "Memory Swap Reserved", false, entity.Description{Unit: unitBytes, Icon: iconMemory, StateClass: stateClassMeasure}},
	{"telemetry.memory.physmem", "Memory Physmem", false, entity.Description{Unit: unitBytes, Icon: iconMemory}},
	{"telemetry.memory.realmem", "Memory Realmem", false, entity.Description{Unit: unitBytes, Icon: iconMemory}},
	{"telemetry.memory.swap_total", "Memory Swap Total", false, entity.Description{Unit: unitBytes, Icon: iconMemory}},
	{"telemetry.memory.swap_used_percent", "Memory Swap Used Percentage", true, entity.Description{Unit: unitPercent, Icon: iconMemory, StateClass: stateClassMeasure}},
	{"telemetry.memory.used_percent", "Memory Used Percentage", true, entity.Description{Unit: unitPercent, Icon: iconMemory, StateClass: stateClassMeasure}},
	{"telemetry.cpu.used_percent", "CPU Usage", true, entity.Description{Unit: unitPercent, Icon: "mdi:speedometer-medium", StateClass: stateClassMeasure}},
	{keyCPUFrequencyCurr, "CPU Frequency Current", true, entity.Description{Unit: "Hz", Icon: "mdi:speedometer-medium", StateClass: stateClassMeasure}},
	{"telemetry.cpu.frequency.max", "CPU Frequency Max", false, entity.Description{Unit: "Hz", Icon: "mdi:speedometer"}},
	{"telemetry.cpu.count", "CPU Count", false, entity.Description{Unit: unitCount, Icon: "mdi:speedometer-medium"}},
	{"telemetry.cpu.load_average.one_minute", "CPU Load Average One Minute", true, entity.Description{Unit: unitPercent, Icon: "mdi:speedometer-slow", StateClass: stateClassMeasure}},
	{"telemetry.cpu.load_average.five_minute", "CPU Load Average Five Minute", true, entity.Description{Unit: unitPercent, Icon: "mdi:speedometer-slow", StateClass: stateClassMeasure}},
	{"telemetry.cpu.load_average.fifteen_minute", "CPU Load Average Fifteen Minute", true, entity.Description{Unit: unitPercent, Icon: "mdi:speedometer-slow", StateClass: stateClassMeasure}},
	{keySystemTemp, "System Temperature", true, entity.Description{Unit: "°C", DeviceClass: "temperature", Icon: "mdi:thermometer", StateClass: stateClassMeasure}},
	{keySystemBoottime, "System Boottime", true, entity.Description{DeviceClass: "timestamp", Icon: "mdi:clock-outline"}},
	{"dhcp_stats.leases.total", "DHCP Leases Total", false, entity.Description{Unit: unitClients, Icon: iconIPNetwork, StateClass: stateClassMeasure}},
	{"dhcp_stats.leases.online", "DHCP Leases Online", true, entity.Description{Unit: unitClients, Icon: iconIPNetwork, StateClass: stateClassMeasure}},
	{"dhcp_stats.leases.offline", "DHCP Leases Offline", false, entity.Description{Unit: unitClients, Icon: iconIPNetwork, StateClass: stateClassMeasure}},
}

// StaticKeySensor - Value at a fixed snapshot path.
type StaticKeySensor struct {
	sensor
	mutex         sync.Mutex
	previousValue interface{}
}

func newStaticKeySensor(source Source, title string, key StaticKey) *StaticKeySensor {
	return &StaticKeySensor{sensor: newSensor(source, title, entity.PlatformSensor, key.Key, key.Name, key.EnabledDefault, key.Description)}
}

func isZero(value interface{}) bool {
	number, ok := util.ToFloat(value)
	return ok && number == 0
}

// Available - A zero temperature means no sensor. A zero CPU frequency is only tolerated once a real value was seen.
func (sensor *StaticKeySensor) Available() bool {
	value := sensor.lookup(sensor.key)
	if value == nil {
		return false
	}
	if isZero(value) && sensor.key == keySystemTemp {
		return false
	}
	if isZero(value) && sensor.key == keyCPUFrequencyCurr && sensor.previous() == nil {
		return false
	}
	return sensor.available()
}

func (sensor *StaticKeySensor) previous() interface{} {
	sensor.mutex.Lock()
	defer sensor.mutex.Unlock()
	return sensor.previousValue
}

func (sensor *StaticKeySensor) State() interface{} {
	sensor.mutex.Lock()
	defer sensor.mutex.Unlock()
	value := sensor.lookup(sensor.key)
	if value == nil {
		if sensor.key == keySystemBoottime {
			return nil
		}
		return entity.StateUnknown
	}
	switch sensor.key {
	case keySystemTemp:
		if isZero(value) {
			return entity.StateUnknown
		}
	case keySystemBoottime:
		if seconds, ok := util.ToFloat(value); ok {
			return time.Unix(int64(seconds), 0).UTC().Format(time.RFC3339)
		}
	case keyCPUFrequencyCurr:
		if isZero(value) {
			if sensor.previousValue == nil {
				return entity.StateUnknown
			}
			return sensor.previousValue
		}
	}
	sensor.previousValue = value
	return value
}
