package sensors

import (
	"dev.hon.one/pfbridge/entity"
	"dev.hon.one/pfbridge/util"
)

// BuildSensors - Sensor candidates for the latest snapshot.
func BuildSensors(source Source, title string) []entity.Entity {
	snapshot := source.Data()
	if snapshot == nil {
		return nil
	}

	var entities []entity.Entity
	for _, key := range StaticKeys {
		entities = append(entities, newStaticKeySensor(source, title, key))
	}

	filesystems, _ := snapshot.Lookup("telemetry.filesystems", nil).([]interface{})
	for _, raw := range filesystems {
		filesystem, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		entities = append(entities, newFilesystemSensor(source, title, util.ToString(filesystem["device"]), util.ToString(filesystem["mountpoint"])))
	}

	for _, carp := range snapshot.CARPInterfaces {
		entities = append(entities, newCARPInterfaceSensor(source, title, carp))
	}

	if snapshot.Telemetry != nil {
		names := make([]string, 0, len(snapshot.Telemetry.Interfaces))
		for name := range snapshot.Telemetry.Interfaces {
			names = append(names, name)
		}
		for _, name := range util.SortedStrings(names) {
			iface := snapshot.Telemetry.Interfaces[name]
			for _, property := range InterfaceProperties {
				entities = append(entities, newInterfaceSensor(source, title, iface, property))
			}
		}
	}

	gateways, _ := snapshot.Lookup("telemetry.gateways", nil).(map[string]interface{})
	for _, key := range sortedKeys(gateways) {
		gateway, _ := gateways[key].(map[string]interface{})
		name := util.ToString(gateway["name"])
		if name == "" {
			name = key
		}
		for _, property := range GatewayProperties {
			entities = append(entities, newGatewaySensor(source, title, name, property))
		}
	}

	servers, _ := snapshot.Lookup("telemetry.openvpn.servers", nil).(map[string]interface{})
	for _, vpnID := range sortedKeys(servers) {
		server, _ := servers[vpnID].(map[string]interface{})
		for _, property := range OpenVPNServerProperties {
			entities = append(entities, newOpenVPNServerSensor(source, title, vpnID, util.ToString(server["name"]), property))
		}
	}
	return entities
}

// BuildBinarySensors - Binary sensor candidates for the latest snapshot.
func BuildBinarySensors(source Source, title string) []entity.Entity {
	if source.Data() == nil {
		return nil
	}
	return []entity.Entity{newCARPStatusBinarySensor(source, title)}
}

// Setup - Reconcile both platforms now and after every refresh of the source.
// Returns a function detaching them again.
func Setup(source Source, title string, sensorPlatform entity.AddFunc, binarySensorPlatform entity.AddFunc) (func(), error) {
	sensorManager := entity.NewManager(entity.PlatformSensor, func() ([]entity.Entity, interface{}) {
		return BuildSensors(source, title), nil
	}, sensorPlatform, nil)
	binaryManager := entity.NewManager(entity.PlatformBinarySensor, func() ([]entity.Entity, interface{}) {
		return BuildBinarySensors(source, title), nil
	}, binarySensorPlatform, nil)

	if err := sensorManager.ProcessEntities(); err != nil {
		return nil, err
	}
	if err := binaryManager.ProcessEntities(); err != nil {
		return nil, err
	}
	undoSensors := sensorManager.Subscribe(source)
	undoBinary := binaryManager.Subscribe(source)
	return func() {
		undoSensors()
		undoBinary()
	}, nil
}
