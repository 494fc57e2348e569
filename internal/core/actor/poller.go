package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/sdm220mqtt/internal/config"
	"github.com/berfenger/sdm220mqtt/internal/core/domain"
	"github.com/berfenger/sdm220mqtt/internal/core/events"
	. "github.com/berfenger/sdm220mqtt/internal/util/actorutil"
	"github.com/berfenger/sdm220mqtt/pkg/sdm220_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const POLLER_STASH_LIMIT = 16

// PollerActor reads the meter periodically and on demand, and publishes the
// fresh readings to the event stream.
type PollerActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	modbusActor *actor.PID
	config      *config.Config
	eventStream *eventstream.EventStream
	meterOnline bool

	logger *zap.Logger
}

type pollTick struct {
}

func NewPollerActor(config *config.Config, modbusActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *PollerActor {
	act := &PollerActor{
		config:      config,
		modbusActor: modbusActor,
		behavior:    actor.NewBehavior(),
		stash:       NewStash(POLLER_STASH_LIMIT),
		logger:      ActorLogger(domain.ACTOR_ID_POLLER, logger),
		eventStream: eventStream,
		meterOnline: true,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *PollerActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *PollerActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("poller@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		if state.config.MonitorConfig.PollInterval() > 0 {
			// first read right away
			ctx.Send(ctx.Self(), pollTick{})
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("poller@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PollerActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("poller@default: ActorHealthRequest")
		ctx.Respond(state.health("idle"))
	case pollTick:
		state.logger.Debug("poller@default tick")
		state.requestAll(ctx)
		// schedule next tick
		state.scheduler.RequestOnce(state.config.MonitorConfig.PollInterval(), ctx.Self(), pollTick{})
		state.behavior.BecomeStacked(state.WaitingReadReceive)
	case domain.RefreshMeasurementRequest:
		state.logger.Debug("poller@default RefreshMeasurementRequest", zap.String("key", msg.Key))
		if msg.Key == "" || msg.Key == domain.BUTTON_ID_REFRESH {
			state.requestAll(ctx)
		} else {
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.GetMeterValueRequest{Name: msg.Key}, state.requestTimeout()), func(err error) any {
				return domain.GetMeterValueResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				}
			})
		}
		state.behavior.BecomeStacked(state.WaitingReadReceive)
	case *actor.Stopping:
	default:
		state.logger.Debug("poller@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *PollerActor) WaitingReadReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(state.health("reading"))
	case domain.GetMeterValuesResponse:
		if msg.HasResponseError() {
			state.logReadError(msg.GetResponseError())
		}
		fresh := state.publishFresh(msg.Readings)
		state.setMeterOnline(!msg.HasResponseError() || fresh > 0)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	case domain.GetMeterValueResponse:
		switch {
		case msg.HasResponseError():
			state.logReadError(msg.GetResponseError())
			state.setMeterOnline(false)
		case !msg.Found:
			state.logger.Warn("poller@waiting unknown measurement")
		case msg.Reading != nil:
			state.publishFresh([]sdm220_modbus.MeasurementReading{*msg.Reading})
			state.setMeterOnline(true)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	case *actor.Stopping:
	default:
		state.logger.Debug("poller@waiting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PollerActor) requestAll(ctx actor.Context) {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.GetMeterValuesRequest{}, state.requestTimeout()), func(err error) any {
		return domain.GetMeterValuesResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
		}
	})
}

// the modbus actor may be busy with another read
func (state *PollerActor) requestTimeout() time.Duration {
	return 2*state.config.MonitorConfig.ReadTimeout() + time.Second
}

// publishFresh publishes the readings that are not stale and returns how many.
func (state *PollerActor) publishFresh(readings []sdm220_modbus.MeasurementReading) int {
	count := 0
	for i := range readings {
		if readings[i].Stale {
			continue
		}
		state.eventStream.Publish(events.ReadingToUpdateEvent(readings[i]))
		count++
	}
	return count
}

func (state *PollerActor) setMeterOnline(online bool) {
	if state.meterOnline == online {
		return
	}
	state.meterOnline = online
	state.logger.Info("meter availability changed", zap.Bool("online", online))
	for _, ev := range events.BridgeStateUpdateEvents(online) {
		state.eventStream.Publish(ev)
	}
}

func (state *PollerActor) logReadError(err error) {
	var devErr *sdm220_modbus.DeviceCommunicationError
	if errors.As(err, &devErr) {
		state.logger.Error("poller@waiting meter communication error",
			zap.String("measurement", devErr.Name), zap.Uint16("address", devErr.Address), zap.Error(devErr.Err))
	} else {
		state.logger.Error("poller@waiting meter read error", zap.Error(err))
	}
}

func (state *PollerActor) health(s string) domain.ActorHealthResponse {
	if !state.meterOnline {
		s = "meter offline"
	}
	return domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_POLLER,
		Healthy: true,
		State:   s,
	}
}
