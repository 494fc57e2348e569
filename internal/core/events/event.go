package events

import (
	. "github.com/berfenger/sdm220mqtt/internal/core/domain"
	"github.com/berfenger/sdm220mqtt/pkg/sdm220_modbus"
)

func ReadingToUpdateEvent(r sdm220_modbus.MeasurementReading) FloatSensorUpdateEvent {
	return FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: r.Key,
		},
		Name:     r.Name,
		Unit:     r.Unit,
		Value:    r.Value,
		Decimals: MeasurementDecimals(r.Unit),
		ReadAt:   r.ReadAt,
	}
}

func BridgeStateUpdateEvents(online bool) []any {
	return []any{
		BridgeStateUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_BRIDGE_STATE,
			},
			Value: online,
		},
	}
}
