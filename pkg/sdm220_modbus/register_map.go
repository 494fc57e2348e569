package sdm220_modbus

import (
	"sync"
	"time"
)

const (
	DEFAULT_VALID_FOR = 1000 * time.Millisecond
)

// MeasurementDefinition describes one SDM220 input register pair.
type MeasurementDefinition struct {
	Name    string
	Key     string
	Address uint16
	Unit    string
	// Max age before a value is reported as stale. Not used to skip reads.
	ValidFor time.Duration
}

type MeasurementReading struct {
	MeasurementDefinition
	Value  float64
	ReadAt time.Time
	Stale  bool
}

// Eastron SDM220 register table, in datasheet order.
var sdm220Definitions = []MeasurementDefinition{
	{Name: "Voltage", Key: "voltage", Address: 0x0000, Unit: "V"},
	{Name: "Current", Key: "current", Address: 0x0006, Unit: "A"},
	{Name: "Active power", Key: "active_power", Address: 0x000C, Unit: "W"},
	{Name: "Apparent power", Key: "apparent_power", Address: 0x0012, Unit: "VA"},
	{Name: "Reactive power", Key: "reactive_power", Address: 0x0018, Unit: "VAr"},
	{Name: "Power factor", Key: "power_factor", Address: 0x001E, Unit: "-"},
	{Name: "Phase angle", Key: "phase_angle", Address: 0x0024, Unit: "Deg"},
	{Name: "Frequency", Key: "frequency", Address: 0x0046, Unit: "Hz"},
	{Name: "Import active energy", Key: "import_active_energy", Address: 0x0048, Unit: "kWh"},
	{Name: "Export active energy", Key: "export_active_energy", Address: 0x004A, Unit: "kWh"},
	{Name: "Import reactive energy", Key: "import_reactive_energy", Address: 0x004C, Unit: "kVArh"},
	{Name: "Export reactive energy", Key: "export_reactive_energy", Address: 0x004E, Unit: "kVArh"},
	{Name: "Total active energy", Key: "total_active_energy", Address: 0x0156, Unit: "kWh"},
	{Name: "Total reactive energy", Key: "total_reactive_energy", Address: 0x0158, Unit: "kVArh"},
}

type measurementSlot struct {
	mu     sync.RWMutex
	def    MeasurementDefinition
	value  float64
	readAt time.Time
}

func (s *measurementSlot) set(value float64, at time.Time) {
	s.mu.Lock()
	s.value = value
	s.readAt = at
	s.mu.Unlock()
}

func (s *measurementSlot) reading(at time.Time) MeasurementReading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return MeasurementReading{
		MeasurementDefinition: s.def,
		Value:                 s.value,
		ReadAt:                s.readAt,
		Stale:                 s.readAt.IsZero() || at.Sub(s.readAt) > s.def.ValidFor,
	}
}

// RegisterMap holds the current value of every SDM220 measurement.
// The set of measurements is fixed when the map is created. Each slot is
// guarded by its own lock.
type RegisterMap struct {
	slots  []*measurementSlot
	byName map[string]*measurementSlot
	byKey  map[string]*measurementSlot
	now    func() time.Time
}

func NewRegisterMap() *RegisterMap {
	return NewRegisterMapWithValidity(DEFAULT_VALID_FOR)
}

// NewRegisterMapWithValidity overrides the staleness window of every measurement.
func NewRegisterMapWithValidity(validFor time.Duration) *RegisterMap {
	if validFor <= 0 {
		validFor = DEFAULT_VALID_FOR
	}
	m := &RegisterMap{
		slots:  make([]*measurementSlot, 0, len(sdm220Definitions)),
		byName: make(map[string]*measurementSlot, len(sdm220Definitions)),
		byKey:  make(map[string]*measurementSlot, len(sdm220Definitions)),
		now:    time.Now,
	}
	for _, def := range sdm220Definitions {
		def.ValidFor = validFor
		slot := &measurementSlot{def: def}
		m.slots = append(m.slots, slot)
		m.byName[def.Name] = slot
		m.byKey[def.Key] = slot
	}
	return m
}

func (m *RegisterMap) GetDefinition(name string) (MeasurementDefinition, bool) {
	slot, ok := m.byName[name]
	if !ok {
		return MeasurementDefinition{}, false
	}
	return slot.def, true
}

func (m *RegisterMap) DefinitionByKey(key string) (MeasurementDefinition, bool) {
	slot, ok := m.byKey[key]
	if !ok {
		return MeasurementDefinition{}, false
	}
	return slot.def, true
}

func (m *RegisterMap) ListNames() []string {
	names := make([]string, len(m.slots))
	for i, slot := range m.slots {
		names[i] = slot.def.Name
	}
	return names
}

func (m *RegisterMap) Definitions() []MeasurementDefinition {
	defs := make([]MeasurementDefinition, len(m.slots))
	for i, slot := range m.slots {
		defs[i] = slot.def
	}
	return defs
}

func (m *RegisterMap) Len() int {
	return len(m.slots)
}

// Value returns the last stored value for name.
func (m *RegisterMap) Value(name string) (float64, bool) {
	slot, ok := m.byName[name]
	if !ok {
		return 0, false
	}
	slot.mu.RLock()
	defer slot.mu.RUnlock()
	return slot.value, true
}

func (m *RegisterMap) Reading(name string) (MeasurementReading, bool) {
	return m.ReadingAt(name, m.now())
}

// ReadingAt reports staleness as seen at t. Values stored at or after t are
// never stale.
func (m *RegisterMap) ReadingAt(name string, t time.Time) (MeasurementReading, bool) {
	slot, ok := m.byName[name]
	if !ok {
		return MeasurementReading{}, false
	}
	return slot.reading(t), true
}

func (m *RegisterMap) Readings() []MeasurementReading {
	return m.ReadingsAt(m.now())
}

// ReadingsAt snapshots every measurement with staleness measured at t.
// Callers pass the time a refresh started so a slow bulk read does not age
// its own first values.
func (m *RegisterMap) ReadingsAt(t time.Time) []MeasurementReading {
	readings := make([]MeasurementReading, len(m.slots))
	for i, slot := range m.slots {
		readings[i] = slot.reading(t)
	}
	return readings
}

// Now is the clock the map stamps values with.
func (m *RegisterMap) Now() time.Time {
	return m.now()
}

func (m *RegisterMap) set(name string, value float64) bool {
	slot, ok := m.byName[name]
	if !ok {
		return false
	}
	slot.set(value, m.now())
	return true
}
