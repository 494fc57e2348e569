package sdm220_modbus

import (
	"time"

	"github.com/simonvetter/modbus"
)

// RegisterTransport is the part of *modbus.ModbusClient the device reader needs.
// The client must be set to big endian, high word first.
type RegisterTransport interface {
	Open() error
	Close() error
	ReadFloat32(addr uint16, regType modbus.RegType) (float32, error)
}

type ModbusClient struct {
	client     RegisterTransport
	instrument []ModbusInstrument
}

type ModbusInstrument struct {
	RecordTime func(fnName string, readTime time.Duration)
}

// readFloat32 reads two input registers (function code 4) as one IEEE-754 float.
func (reader ModbusClient) readFloat32(addr uint16) (float32, error) {
	defer RecordTimer("ReadFloat32", reader.instrument)()
	return reader.client.ReadFloat32(addr, modbus.INPUT_REGISTER)
}

func RecordTimer(name string, instrument []ModbusInstrument) func() {
	if instrument == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(name, duration)
		}
	}
}
