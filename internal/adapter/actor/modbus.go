package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/sdm220mqtt/internal/core/domain"
	"github.com/berfenger/sdm220mqtt/internal/core/port"
	"github.com/berfenger/sdm220mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const (
	MODBUS_ACTOR_ID             = domain.ACTOR_ID_MODBUS
	MODBUS_STASH_LIMIT          = 64
	DEFAULT_MODBUS_READ_TIMEOUT = 3 * time.Second
)

// ModbusActor owns the meter. Reads run one at a time in a background task,
// requests arriving meanwhile are stashed.
type ModbusActor struct {
	behavior    actor.Behavior
	stash       *actorutil.Stash
	meter       port.MeterService
	readTimeout time.Duration
	logger      *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewModbusActor(meter port.MeterService, readTimeout time.Duration, logger *zap.Logger) *ModbusActor {
	if readTimeout <= 0 {
		readTimeout = DEFAULT_MODBUS_READ_TIMEOUT
	}
	act := &ModbusActor{
		meter:       meter,
		readTimeout: readTimeout,
		behavior:    actor.NewBehavior(),
		stash:       actorutil.NewStash(MODBUS_STASH_LIMIT),
		logger:      actorutil.ActorLogger(MODBUS_ACTOR_ID, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *ModbusActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *ModbusActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("modbus@starting started")
		err := state.meter.Open()
		if err != nil {
			state.logger.Error("could not open meter", zap.Error(err))
			panic(err)
		}
		info := state.meter.Info()
		state.logger.Info("meter open",
			zap.String("mode", info.Mode), zap.String("port", info.Port), zap.Uint8("slave", info.SlaveAddress))
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.meter.Close()
	case *actor.Stopping:
		state.meter.Close()
	default:
		state.logger.Debug("modbus@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ModbusActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("modbus@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      MODBUS_ACTOR_ID,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetMeterInfoRequest:
		state.logger.Debug("modbus@default: GetMeterInfoRequest")
		info := state.meter.Info()
		actorutil.ForRequest(msg).Respond(ctx, domain.GetMeterInfoResponse{
			Info:         &info,
			Measurements: state.meter.Registers().Definitions(),
		})
	case domain.GetMeterValuesRequest:
		state.logger.Debug("modbus@default: GetMeterValuesRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTaskNoError(ctx, state.readAll),
			mapTaskResult[domain.GetMeterValuesResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetMeterValuesResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(state.readTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.GetMeterValueRequest:
		state.logger.Debug("modbus@default: GetMeterValueRequest", zap.String("name", msg.Name))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		name, known := state.resolveName(msg.Name)
		if !known {
			ctx.Send(sender, domain.GetMeterValueResponse{Found: false})
			return
		}
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTaskNoError(ctx, func() *domain.GetMeterValueResponse {
			return state.readOne(name)
		}), mapTaskResult[domain.GetMeterValueResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetMeterValueResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
					Found: true,
				},
				replyTo: sender,
			}
		}).WithTimeout(state.readTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case *actor.Stopping:
		state.meter.Close()
	case *actor.Restarting:
		state.meter.Close()
	default:
		state.logger.Debug("modbus@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *ModbusActor) WaitingModbus(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("modbus@WaitingModbus backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      MODBUS_ACTOR_ID,
			Healthy: true,
			State:   "reading",
		})
	case *actor.Stopping:
		state.meter.Close()
	case *actor.Restarting:
		state.meter.Close()
	default:
		state.logger.Debug("modbus@WaitingModbus stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// resolveName accepts a measurement name or its key.
func (state *ModbusActor) resolveName(nameOrKey string) (string, bool) {
	registers := state.meter.Registers()
	if def, ok := registers.GetDefinition(nameOrKey); ok {
		return def.Name, true
	}
	if def, ok := registers.DefinitionByKey(nameOrKey); ok {
		return def.Name, true
	}
	return "", false
}

func (state *ModbusActor) readAll() *domain.GetMeterValuesResponse {
	started := state.meter.Registers().Now()
	readings, err := state.meter.ReadAll()
	if err != nil {
		state.logger.Warn("meter read failed", zap.Error(err))
		// measurements read before the failure are still fresh
		readings = state.meter.Registers().ReadingsAt(started)
	}
	return &domain.GetMeterValuesResponse{
		ActorResponseMixIn: domain.ActorResponseMixIn{
			ResponseError: err,
		},
		Readings: readings,
	}
}

func (state *ModbusActor) readOne(name string) *domain.GetMeterValueResponse {
	reading, found, err := state.meter.ReadMeasurement(name)
	if err != nil {
		state.logger.Warn("meter read failed", zap.String("name", name), zap.Error(err))
		return &domain.GetMeterValueResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
			Found: found,
		}
	}
	return &domain.GetMeterValueResponse{
		Found:   found,
		Reading: &reading,
	}
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
