package domain

import (
	"github.com/berfenger/sdm220mqtt/pkg/sdm220_modbus"

	"github.com/asynkron/protoactor-go/actor"
)

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_MODBUS       = "modbus"
	ACTOR_ID_POLLER       = "poller"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

type ActorRef actor.PID

type ActorRequestMixIn struct {
	ReplyToRef *ActorRef
}

type ActorRequest interface {
	ReplyTo() *ActorRef
}

func (r ActorRequestMixIn) ReplyTo() *ActorRef {
	return r.ReplyToRef
}

type ActorResponseMixIn struct {
	ResponseError error
}

func (r ActorResponseMixIn) GetResponseError() error {
	return r.ResponseError
}

func (r ActorResponseMixIn) HasResponseError() bool {
	return r.ResponseError != nil
}

type ActorResponse interface {
	GetResponseError() error
	HasResponseError() bool
}

// Meter

type GetMeterInfoRequest struct {
	ActorRequestMixIn
}

type GetMeterInfoResponse struct {
	ActorResponseMixIn
	Info         *sdm220_modbus.MeterInfo
	Measurements []sdm220_modbus.MeasurementDefinition
}

type GetMeterValuesRequest struct {
	ActorRequestMixIn
}

type GetMeterValuesResponse struct {
	ActorResponseMixIn
	Readings []sdm220_modbus.MeasurementReading
}

type GetMeterValueRequest struct {
	ActorRequestMixIn
	Name string
}

type GetMeterValueResponse struct {
	ActorResponseMixIn
	Found   bool
	Reading *sdm220_modbus.MeasurementReading
}

// RefreshMeasurementRequest asks the poller to read and publish one
// measurement by key, or every measurement for BUTTON_ID_REFRESH.
type RefreshMeasurementRequest struct {
	ActorRequestMixIn
	Key string
}

// MQTT

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors []GenericSensor
	Buttons []GenericButton
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

// Health

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
