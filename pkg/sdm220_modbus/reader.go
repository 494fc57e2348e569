package sdm220_modbus

import "sync"

const (
	READER_MODE_DEVICE = "device"
	READER_MODE_FAKE   = "fake"
)

type MeterInfo struct {
	Manufacturer string
	Model        string
	Mode         string
	Port         string
	SlaveAddress uint8
}

// Reader refreshes the values held in its RegisterMap. Refreshing an unknown
// measurement is a no-op. Values are read back through Registers().
type Reader interface {
	Open() error
	Close() error
	Info() MeterInfo
	Registers() *RegisterMap
	RefreshOne(name string) error
	RefreshAll() error
}

// UnimplementedReader can be embedded by readers under construction.
// Its refresh operations fail with ErrNotImplemented.
type UnimplementedReader struct {
	once      sync.Once
	registers *RegisterMap
}

func (r *UnimplementedReader) Open() error {
	return nil
}

func (r *UnimplementedReader) Close() error {
	return nil
}

func (r *UnimplementedReader) Info() MeterInfo {
	return MeterInfo{Manufacturer: "Eastron", Model: "SDM220"}
}

func (r *UnimplementedReader) Registers() *RegisterMap {
	r.once.Do(func() {
		r.registers = NewRegisterMap()
	})
	return r.registers
}

func (r *UnimplementedReader) RefreshOne(name string) error {
	return ErrNotImplemented
}

func (r *UnimplementedReader) RefreshAll() error {
	return ErrNotImplemented
}

// ensure interface compliance
var (
	_ Reader = (*UnimplementedReader)(nil)
	_ Reader = (*DeviceReader)(nil)
	_ Reader = (*FakeReader)(nil)
)
