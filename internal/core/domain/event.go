package domain

import (
	"fmt"
	"time"
)

type SensorUpdateEventMixIn struct {
	Id string `json:"id"`
}

type SensorUpdateEvent interface {
	SensorUpdateEvent() string
	SensorId() string
}

func (e SensorUpdateEventMixIn) SensorUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e SensorUpdateEventMixIn) SensorId() string {
	return e.Id
}

type FloatSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Name     string    `json:"name,omitempty"`
	Unit     string    `json:"unit,omitempty"`
	Value    float64   `json:"value"`
	Decimals uint      `json:"-"`
	ReadAt   time.Time `json:"read_at"`
}

type BridgeStateUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool `json:"value"`
}
