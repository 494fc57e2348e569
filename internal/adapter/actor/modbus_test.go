package actor

import (
	"errors"
	"testing"
	"time"

	"github.com/berfenger/sdm220mqtt/internal/core/domain"
	"github.com/berfenger/sdm220mqtt/internal/util/actorutil"
	"github.com/berfenger/sdm220mqtt/pkg/sdm220_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func spawnModbusActor(t *testing.T, reader sdm220_modbus.Reader) (*actor.ActorSystem, *actor.PID) {
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	meter := sdm220_modbus.NewMeter(reader)
	props := actor.PropsFromProducer(func() actor.Actor { return NewModbusActor(meter, time.Second, logger) })
	pid := as.Root.Spawn(props)
	t.Cleanup(func() {
		as.Root.Stop(pid)
		as.Shutdown()
	})
	return as, pid
}

func TestGetMeterInfoModbusActor(t *testing.T) {

	assert := assert.New(t)

	as, pid := spawnModbusActor(t, sdm220_modbus.CreateFakeReader())

	result, err := as.Root.RequestFuture(pid, domain.GetMeterInfoRequest{}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.GetMeterInfoResponse)

	assert.False(resp.HasResponseError())
	assert.Equal("Eastron", resp.Info.Manufacturer, "Meter manufacturer")
	assert.Equal(sdm220_modbus.READER_MODE_FAKE, resp.Info.Mode, "Meter mode")
	assert.Len(resp.Measurements, 14, "Measurement count")
	assert.Equal("Voltage", resp.Measurements[0].Name)
}

func TestGetMeterValuesModbusActor(t *testing.T) {

	assert := assert.New(t)

	as, pid := spawnModbusActor(t, sdm220_modbus.CreateFakeReader())

	result, err := as.Root.RequestFuture(pid, domain.GetMeterValuesRequest{}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.GetMeterValuesResponse)

	assert.False(resp.HasResponseError())
	assert.Len(resp.Readings, 14)
	for _, r := range resp.Readings {
		assert.GreaterOrEqual(r.Value, float64(sdm220_modbus.FAKE_ALL_MIN), r.Name)
		assert.LessOrEqual(r.Value, float64(sdm220_modbus.FAKE_ALL_MAX), r.Name)
		assert.False(r.Stale, r.Name)
	}
}

func TestGetMeterValueModbusActor(t *testing.T) {

	assert := assert.New(t)

	as, pid := spawnModbusActor(t, sdm220_modbus.CreateFakeReader())

	// by name
	result, err := as.Root.RequestFuture(pid, domain.GetMeterValueRequest{Name: "Frequency"}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.GetMeterValueResponse)
	assert.True(resp.Found)
	assert.Equal("Frequency", resp.Reading.Name)
	assert.GreaterOrEqual(resp.Reading.Value, float64(sdm220_modbus.FAKE_SINGLE_MIN))

	// by key
	result, err = as.Root.RequestFuture(pid, domain.GetMeterValueRequest{Name: "voltage"}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp = result.(domain.GetMeterValueResponse)
	assert.True(resp.Found)
	assert.Equal("Voltage", resp.Reading.Name)

	// unknown
	result, err = as.Root.RequestFuture(pid, domain.GetMeterValueRequest{Name: "Bogus"}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp = result.(domain.GetMeterValueResponse)
	assert.False(resp.Found)
	assert.Nil(resp.Reading)
	assert.False(resp.HasResponseError())
}

func TestReadErrorModbusActor(t *testing.T) {

	assert := assert.New(t)

	as, pid := spawnModbusActor(t, &sdm220_modbus.UnimplementedReader{})

	result, err := as.Root.RequestFuture(pid, domain.GetMeterValuesRequest{}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.GetMeterValuesResponse)
	assert.True(errors.Is(resp.GetResponseError(), sdm220_modbus.ErrNotImplemented))

	// actor keeps serving after a failed read
	result, err = as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	health := result.(domain.ActorHealthResponse)
	assert.True(health.Healthy)
	assert.Equal(MODBUS_ACTOR_ID, health.Id)
}

func TestConcurrentRequestsModbusActor(t *testing.T) {

	assert := assert.New(t)

	as, pid := spawnModbusActor(t, sdm220_modbus.CreateFakeReader())

	futures := make([]*actor.Future, 10)
	for i := range futures {
		futures[i] = as.Root.RequestFuture(pid, domain.GetMeterValuesRequest{}, 5*time.Second)
	}
	for _, f := range futures {
		result, err := f.Result()
		if !assert.NoError(err) {
			continue
		}
		assert.Len(result.(domain.GetMeterValuesResponse).Readings, 14)
	}
}
