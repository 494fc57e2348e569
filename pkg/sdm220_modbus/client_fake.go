package sdm220_modbus

import (
	"math/rand"
	"time"
)

const (
	FAKE_SINGLE_MIN = 101
	FAKE_SINGLE_MAX = 200
	FAKE_ALL_MIN    = 1
	FAKE_ALL_MAX    = 100
)

// FakeReader fills the register map with random integers so the rest of the
// pipeline can run without a meter. Single and bulk refreshes draw from
// disjoint ranges.
type FakeReader struct {
	registers *RegisterMap
}

func CreateFakeReader() *FakeReader {
	return CreateFakeReaderWithValidity(DEFAULT_VALID_FOR)
}

// CreateFakeReaderWithValidity sets the staleness window of every measurement.
func CreateFakeReaderWithValidity(validFor time.Duration) *FakeReader {
	return &FakeReader{
		registers: NewRegisterMapWithValidity(validFor),
	}
}

func (reader *FakeReader) Open() error {
	return nil
}

func (reader *FakeReader) Close() error {
	return nil
}

func (reader *FakeReader) Info() MeterInfo {
	return MeterInfo{
		Manufacturer: "Eastron",
		Model:        "SDM220 (fake)",
		Mode:         READER_MODE_FAKE,
	}
}

func (reader *FakeReader) Registers() *RegisterMap {
	return reader.registers
}

func (reader *FakeReader) RefreshOne(name string) error {
	reader.registers.set(name, randInt(FAKE_SINGLE_MIN, FAKE_SINGLE_MAX))
	return nil
}

func (reader *FakeReader) RefreshAll() error {
	for _, name := range reader.registers.ListNames() {
		reader.registers.set(name, randInt(FAKE_ALL_MIN, FAKE_ALL_MAX))
	}
	return nil
}

// randInt returns an integer in [min, max].
func randInt(min, max int) float64 {
	return float64(min + rand.Intn(max-min+1))
}
