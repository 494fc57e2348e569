package port

import (
	"github.com/berfenger/sdm220mqtt/pkg/sdm220_modbus"
)

// MeterService is what the modbus actor needs from a meter. Both reads
// refresh the device and return the values that refresh produced.
type MeterService interface {
	Open() error
	Close() error
	Info() sdm220_modbus.MeterInfo
	Registers() *sdm220_modbus.RegisterMap
	ReadMeasurement(name string) (sdm220_modbus.MeasurementReading, bool, error)
	ReadAll() ([]sdm220_modbus.MeasurementReading, error)
}

var _ MeterService = (*sdm220_modbus.Meter)(nil)
