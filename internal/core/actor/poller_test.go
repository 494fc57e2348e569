package actor

import (
	"sync"
	"testing"
	"time"

	adactor "github.com/berfenger/sdm220mqtt/internal/adapter/actor"
	"github.com/berfenger/sdm220mqtt/internal/core/domain"
	"github.com/berfenger/sdm220mqtt/internal/util"
	"github.com/berfenger/sdm220mqtt/internal/util/actorutil"
	"github.com/berfenger/sdm220mqtt/pkg/sdm220_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []any
}

func (r *eventRecorder) record(evt any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) floats() []domain.FloatSensorUpdateEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.FloatSensorUpdateEvent
	for _, e := range r.events {
		if f, ok := e.(domain.FloatSensorUpdateEvent); ok {
			out = append(out, f)
		}
	}
	return out
}

func (r *eventRecorder) bridgeStates() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []bool
	for _, e := range r.events {
		if b, ok := e.(domain.BridgeStateUpdateEvent); ok {
			out = append(out, b.Value)
		}
	}
	return out
}

func spawnPoller(t *testing.T, reader sdm220_modbus.Reader, pollMillis uint32) (*actor.ActorSystem, *actor.PID, *eventRecorder) {
	cfg := util.LoadTestConfig()
	cfg.MonitorConfig.PollIntervalMillis = pollMillis
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)

	es := &eventstream.EventStream{}
	recorder := &eventRecorder{}
	es.Subscribe(recorder.record)

	meter := sdm220_modbus.NewMeter(reader)
	modbusPID := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewModbusActor(meter, cfg.MonitorConfig.ReadTimeout(), logger)
	}))
	pollerPID := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewPollerActor(&cfg, modbusPID, es, logger)
	}))
	t.Cleanup(func() {
		as.Root.Stop(pollerPID)
		as.Root.Stop(modbusPID)
		as.Shutdown()
	})
	return as, pollerPID, recorder
}

func TestPollerPublishesReadings(t *testing.T) {

	assert := assert.New(t)

	_, _, recorder := spawnPoller(t, sdm220_modbus.CreateFakeReader(), 60000)

	assert.Eventually(func() bool {
		return len(recorder.floats()) >= 14
	}, 5*time.Second, 50*time.Millisecond, "first poll publishes every measurement")

	floats := recorder.floats()
	assert.Equal("voltage", floats[0].Id)
	assert.Equal("V", floats[0].Unit)
	assert.Equal(uint(1), floats[0].Decimals)
	assert.Equal("total_reactive_energy", floats[13].Id)
	for _, f := range floats[:14] {
		assert.GreaterOrEqual(f.Value, float64(sdm220_modbus.FAKE_ALL_MIN), f.Id)
		assert.LessOrEqual(f.Value, float64(sdm220_modbus.FAKE_ALL_MAX), f.Id)
	}
	assert.Empty(recorder.bridgeStates(), "meter stays online")
}

func TestPollerRefreshSingleMeasurement(t *testing.T) {

	assert := assert.New(t)

	as, pid, recorder := spawnPoller(t, sdm220_modbus.CreateFakeReader(), 60000)

	assert.Eventually(func() bool {
		return len(recorder.floats()) >= 14
	}, 5*time.Second, 50*time.Millisecond)

	as.Root.Send(pid, domain.RefreshMeasurementRequest{Key: "frequency"})

	assert.Eventually(func() bool {
		return len(recorder.floats()) == 15
	}, 5*time.Second, 50*time.Millisecond)

	last := recorder.floats()[14]
	assert.Equal("frequency", last.Id)
	assert.GreaterOrEqual(last.Value, float64(sdm220_modbus.FAKE_SINGLE_MIN))
	assert.LessOrEqual(last.Value, float64(sdm220_modbus.FAKE_SINGLE_MAX))

	// unknown keys publish nothing
	as.Root.Send(pid, domain.RefreshMeasurementRequest{Key: "bogus"})
	as.Root.Send(pid, domain.RefreshMeasurementRequest{Key: domain.BUTTON_ID_REFRESH})

	assert.Eventually(func() bool {
		return len(recorder.floats()) == 29
	}, 5*time.Second, 50*time.Millisecond)
}

func TestPollerMeterOffline(t *testing.T) {

	assert := assert.New(t)

	as, pid, recorder := spawnPoller(t, &sdm220_modbus.UnimplementedReader{}, 60000)

	assert.Eventually(func() bool {
		return len(recorder.bridgeStates()) == 1
	}, 5*time.Second, 50*time.Millisecond)

	assert.Equal([]bool{false}, recorder.bridgeStates())
	assert.Empty(recorder.floats())

	result, err := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	health := result.(domain.ActorHealthResponse)
	assert.True(health.Healthy)
	assert.Equal("meter offline", health.State)
}
