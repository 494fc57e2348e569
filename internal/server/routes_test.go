package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/berfenger/sdm220mqtt/internal/core/domain"
	"github.com/berfenger/sdm220mqtt/internal/util"
	"github.com/berfenger/sdm220mqtt/pkg/sdm220_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/gorilla/websocket"
	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var voltageReading = sdm220_modbus.MeasurementReading{
	MeasurementDefinition: sdm220_modbus.MeasurementDefinition{
		Name: "Voltage", Key: "voltage", Address: 0x0000, Unit: "V", ValidFor: time.Second,
	},
	Value:  230.5,
	ReadAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
}

func stubMaster(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_MASTER, Healthy: true})
	case domain.GetMeterInfoRequest:
		ctx.Respond(domain.GetMeterInfoResponse{
			Info:         &sdm220_modbus.MeterInfo{Manufacturer: "Eastron", Model: "SDM220", Mode: sdm220_modbus.READER_MODE_FAKE},
			Measurements: sdm220_modbus.NewRegisterMap().Definitions(),
		})
	case domain.GetMeterValuesRequest:
		ctx.Respond(domain.GetMeterValuesResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: &sdm220_modbus.DeviceCommunicationError{Name: "Current", Address: 0x0006, Err: modbus.ErrRequestTimedOut},
			},
			Readings: []sdm220_modbus.MeasurementReading{voltageReading},
		})
	case domain.GetMeterValueRequest:
		if msg.Name == "voltage" {
			reading := voltageReading
			ctx.Respond(domain.GetMeterValueResponse{Found: true, Reading: &reading})
		} else {
			ctx.Respond(domain.GetMeterValueResponse{Found: false})
		}
	}
}

func testServer(t *testing.T) (*Server, *eventstream.EventStream) {
	cfg := util.LoadTestConfig()
	as := actor.NewActorSystem()
	pid := as.Root.Spawn(actor.PropsFromFunc(stubMaster))
	es := &eventstream.EventStream{}
	t.Cleanup(func() {
		as.Root.Stop(pid)
		as.Shutdown()
	})
	return &Server{
		port:        cfg.Port,
		rootContext: as.Root,
		masterActor: pid,
		eventStream: es,
		logger:      zap.NewNop(),
	}, es
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.RegisterRoutes().ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	s, _ := testServer(t)
	rec := get(t, s, "/healthcheck")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "health_check: OK", rec.Body.String())
}

func TestMeasurements(t *testing.T) {

	assert := assert.New(t)

	s, _ := testServer(t)
	rec := get(t, s, "/api/measurements")
	assert.Equal(http.StatusOK, rec.Code)

	var meter meterResponse
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &meter))
	assert.Equal("Eastron", meter.Manufacturer)
	assert.Len(meter.Measurements, 14)
	assert.Equal("voltage", meter.Measurements[0].Key)
	assert.Equal(uint16(0x0158), meter.Measurements[13].Address)
	assert.Equal(int64(1000), meter.Measurements[0].ValidForMs)
}

func TestValue(t *testing.T) {

	assert := assert.New(t)

	s, _ := testServer(t)
	rec := get(t, s, "/api/values/voltage")
	assert.Equal(http.StatusOK, rec.Code)

	var reading readingResponse
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &reading))
	assert.Equal("Voltage", reading.Name)
	assert.Equal(230.5, reading.Value)
	assert.NotNil(reading.ReadAt)

	rec = get(t, s, "/api/values/bogus")
	assert.Equal(http.StatusNotFound, rec.Code)
	assert.Contains(rec.Body.String(), "bogus")
}

func TestValuesDeviceError(t *testing.T) {

	assert := assert.New(t)

	s, _ := testServer(t)
	rec := get(t, s, "/api/values")
	assert.Equal(http.StatusBadGateway, rec.Code)

	var resp errorResponse
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(resp.Error, "Current")
	assert.Len(resp.Readings, 1, "partial readings are kept")
}

func TestWebSocketStream(t *testing.T) {

	assert := assert.New(t)

	s, es := testServer(t)
	ts := httptest.NewServer(s.RegisterRoutes())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	event := domain.FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: "voltage"},
		Name:                   "Voltage",
		Unit:                   "V",
		Value:                  231.2,
	}
	// the handler subscribes after the upgrade completes
	assert.Eventually(func() bool {
		return es.Length() == 1
	}, 3*time.Second, 20*time.Millisecond)

	es.Publish("not an update")
	es.Publish(event)

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	assert.NoError(json.Unmarshal(data, &got))
	assert.Equal("voltage", got["id"])
	assert.Equal(231.2, got["value"])
	assert.Equal("V", got["unit"])

	conn.Close()
	assert.Eventually(func() bool {
		return es.Length() == 0
	}, 3*time.Second, 20*time.Millisecond, "handler unsubscribes on disconnect")
}
