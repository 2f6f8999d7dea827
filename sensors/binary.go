package sensors

import (
	"dev.hon.one/pfbridge/entity"
)

// Binary sensor states.
const (
	StateOn  = "on"
	StateOff = "off"
)

// CARPStatusBinarySensor - Whether CARP is enabled on the firewall.
type CARPStatusBinarySensor struct {
	sensor
}

func newCARPStatusBinarySensor(source Source, title string) *CARPStatusBinarySensor {
	return &CARPStatusBinarySensor{
		sensor: newSensor(source, title, entity.PlatformBinarySensor, "carp.status", "CARP Status", false, entity.Description{Icon: iconGauge}),
	}
}

// IsOn - The CARP status of the latest snapshot.
func (sensor *CARPStatusBinarySensor) IsOn() bool {
	snapshot := sensor.source.Data()
	return snapshot != nil && snapshot.CARPStatus
}

func (sensor *CARPStatusBinarySensor) Available() bool {
	return sensor.available()
}

func (sensor *CARPStatusBinarySensor) State() interface{} {
	if sensor.source.Data() == nil {
		return entity.StateUnknown
	}
	if sensor.IsOn() {
		return StateOn
	}
	return StateOff
}
