package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/berfenger/sdm220mqtt/pkg/sdm220_modbus"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE            = "bridge"
	BUTTON_ID_REFRESH                 = "refresh"
	STATE_CLASS_MEASUREMENT           = "measurement"
	STATE_CLASS_TOTAL_INCREASING      = "total_increasing"
	DEVICE_CLASS_APPARENT_POWER       = "apparent_power"
	DEVICE_CLASS_CURRENT              = "current"
	DEVICE_CLASS_ENERGY               = "energy"
	DEVICE_CLASS_FREQUENCY            = "frequency"
	DEVICE_CLASS_POWER                = "power"
	DEVICE_CLASS_POWER_FACTOR         = "power_factor"
	DEVICE_CLASS_REACTIVE_POWER       = "reactive_power"
	DEVICE_CLASS_VOLTAGE              = "voltage"
	DEVICE_CLASS_CONNECTIVITY         = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC           = "diagnostic"
	ENTITY_CLASS_CONFIG               = "config"
	SENSOR_TYPE_SENSOR                = "sensor"
	SENSOR_TYPE_BINARY                = "binary_sensor"
	DEFAULT_MEASUREMENT_DECIMALS uint = 2
)

type unitClass struct {
	deviceClass string
	stateClass  string
	haUnit      string
	decimals    uint
	icon        string
}

// Home Assistant classes per SDM220 unit label.
var unitClasses = map[string]unitClass{
	"V":     {DEVICE_CLASS_VOLTAGE, STATE_CLASS_MEASUREMENT, "V", 1, ""},
	"A":     {DEVICE_CLASS_CURRENT, STATE_CLASS_MEASUREMENT, "A", 2, ""},
	"W":     {DEVICE_CLASS_POWER, STATE_CLASS_MEASUREMENT, "W", 1, ""},
	"VA":    {DEVICE_CLASS_APPARENT_POWER, STATE_CLASS_MEASUREMENT, "VA", 1, ""},
	"VAr":   {DEVICE_CLASS_REACTIVE_POWER, STATE_CLASS_MEASUREMENT, "var", 1, ""},
	"-":     {DEVICE_CLASS_POWER_FACTOR, STATE_CLASS_MEASUREMENT, "", 3, ""},
	"Deg":   {"", STATE_CLASS_MEASUREMENT, "°", 1, "mdi:angle-acute"},
	"Hz":    {DEVICE_CLASS_FREQUENCY, STATE_CLASS_MEASUREMENT, "Hz", 2, ""},
	"kWh":   {DEVICE_CLASS_ENERGY, STATE_CLASS_TOTAL_INCREASING, "kWh", 3, ""},
	"kVArh": {"", STATE_CLASS_TOTAL_INCREASING, "kvarh", 3, "mdi:flash-outline"},
}

func MeasurementDecimals(unit string) uint {
	if uc, ok := unitClasses[unit]; ok {
		return uc.decimals
	}
	return DEFAULT_MEASUREMENT_DECIMALS
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("sdm220_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "SDM220 MQTT bridge",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("SDM220 bridge %s", md5HashShort(baseTopic)),
	}
}

func MeterDevice(info *sdm220_modbus.MeterInfo) Device {
	serial := fmt.Sprintf("%s:%d", info.Port, info.SlaveAddress)
	return Device{
		Id:           fmt.Sprintf("sdm220_meter_%s", md5HashShort(serial)),
		Manufacturer: info.Manufacturer,
		Model:        info.Model,
		Name:         fmt.Sprintf("%s %s %d", info.Manufacturer, info.Model, info.SlaveAddress),
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func MeterSensors(meterDevice Device, definitions []sdm220_modbus.MeasurementDefinition) []GenericSensor {

	var sensors []GenericSensor

	for _, def := range definitions {
		uc := unitClasses[def.Unit]
		sensors = append(sensors, GenericSensor{
			Device:            meterDevice,
			Id:                def.Key,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              def.Name,
			StateClass:        uc.stateClass,
			DeviceClass:       uc.deviceClass,
			UnitOfMeasurement: uc.haUnit,
			Icon:              uc.icon,
			Decimals:          MeasurementDecimals(def.Unit),
			UniqueId:          uniqueId(meterDevice.Id, def.Key),
		})
	}

	return sensors
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {
	return []GenericSensor{{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	}}
}

func MeterButtons(meterDevice Device) []GenericButton {
	return []GenericButton{{
		Device:         meterDevice,
		Id:             BUTTON_ID_REFRESH,
		Name:           "Refresh",
		Icon:           "mdi:refresh",
		EntityCategory: ENTITY_CLASS_CONFIG,
		UniqueId:       uniqueId(meterDevice.Id, BUTTON_ID_REFRESH),
	}}
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}
