package events

import (
	"testing"
	"time"

	"github.com/berfenger/sdm220mqtt/internal/core/domain"
	"github.com/berfenger/sdm220mqtt/pkg/sdm220_modbus"

	"github.com/stretchr/testify/assert"
)

func TestReadingToUpdateEvent(t *testing.T) {

	assert := assert.New(t)

	readAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	def, _ := sdm220_modbus.NewRegisterMap().GetDefinition("Import active energy")
	ev := ReadingToUpdateEvent(sdm220_modbus.MeasurementReading{
		MeasurementDefinition: def,
		Value:                 1234.5678,
		ReadAt:                readAt,
	})

	assert.Equal("import_active_energy", ev.SensorId())
	assert.Equal("Import active energy", ev.Name)
	assert.Equal("kWh", ev.Unit)
	assert.Equal(1234.5678, ev.Value)
	assert.Equal(uint(3), ev.Decimals)
	assert.Equal(readAt, ev.ReadAt)
}

func TestBridgeStateUpdateEvents(t *testing.T) {

	evs := BridgeStateUpdateEvents(false)

	assert.Len(t, evs, 1)
	ev, ok := evs[0].(domain.BridgeStateUpdateEvent)
	assert.True(t, ok)
	assert.Equal(t, domain.SENSOR_ID_BRIDGE_STATE, ev.SensorId())
	assert.False(t, ev.Value)
}
