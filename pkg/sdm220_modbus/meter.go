package sdm220_modbus

import (
	"sync"
)

// Meter is the query API over a Reader.
//
// GetSingleValue and GetAllValues refresh and then read the register map in
// two steps. ReadMeasurement and ReadAll do both under one lock, so a caller
// always gets the value its own refresh produced.
type Meter struct {
	mu     sync.Mutex
	reader Reader
}

func NewMeter(reader Reader) *Meter {
	return &Meter{reader: reader}
}

func (m *Meter) Open() error {
	return m.reader.Open()
}

func (m *Meter) Close() error {
	return m.reader.Close()
}

func (m *Meter) Info() MeterInfo {
	return m.reader.Info()
}

func (m *Meter) Reader() Reader {
	return m.reader
}

func (m *Meter) Registers() *RegisterMap {
	return m.reader.Registers()
}

// GetSingleValue returns false for unknown names without touching the device.
func (m *Meter) GetSingleValue(name string) (float64, bool, error) {
	if _, ok := m.reader.Registers().GetDefinition(name); !ok {
		return 0, false, nil
	}
	if err := m.reader.RefreshOne(name); err != nil {
		return 0, true, err
	}
	value, ok := m.reader.Registers().Value(name)
	return value, ok, nil
}

func (m *Meter) GetAllValues() ([]MeasurementReading, error) {
	started := m.reader.Registers().Now()
	if err := m.reader.RefreshAll(); err != nil {
		return nil, err
	}
	return m.reader.Registers().ReadingsAt(started), nil
}

func (m *Meter) ReadMeasurement(name string) (MeasurementReading, bool, error) {
	registers := m.reader.Registers()
	if _, ok := registers.GetDefinition(name); !ok {
		return MeasurementReading{}, false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	started := registers.Now()
	if err := m.reader.RefreshOne(name); err != nil {
		return MeasurementReading{}, true, err
	}
	reading, ok := registers.ReadingAt(name, started)
	return reading, ok, nil
}

// ReadAll reports staleness as of the start of the refresh, so every value
// this call read is fresh however long the bus took.
func (m *Meter) ReadAll() ([]MeasurementReading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	started := m.reader.Registers().Now()
	if err := m.reader.RefreshAll(); err != nil {
		return nil, err
	}
	return m.reader.Registers().ReadingsAt(started), nil
}
