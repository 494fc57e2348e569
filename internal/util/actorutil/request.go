package actorutil

import (
	"github.com/berfenger/sdm220mqtt/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
)

// ExtendedRequest answers a request either to its explicit ReplyTo ref or,
// when none is set, to the sender of the current message.
type ExtendedRequest interface {
	Respond(ctx actor.Context, resp domain.ActorResponse)
	ReplyTo(ctx actor.Context) *actor.PID
}

type forRequest struct {
	req domain.ActorRequest
}

func ForRequest(r domain.ActorRequest) ExtendedRequest {
	return forRequest{req: r}
}

func (r forRequest) Respond(ctx actor.Context, resp domain.ActorResponse) {
	if pid := r.ReplyTo(ctx); pid != nil {
		ctx.Send(pid, resp)
	}
}

func (r forRequest) ReplyTo(ctx actor.Context) *actor.PID {
	if ref := r.req.ReplyTo(); ref != nil {
		return (*actor.PID)(ref)
	}
	return ctx.Sender()
}

// ReplyVia builds the request mixin that routes the answer to pid.
func ReplyVia(pid *actor.PID) domain.ActorRequestMixIn {
	return domain.ActorRequestMixIn{
		ReplyToRef: (*domain.ActorRef)(pid),
	}
}

// ExplicitReplyTo returns the ReplyTo ref of r, or nil for fire and forget.
func ExplicitReplyTo(r domain.ActorRequest) *actor.PID {
	return (*actor.PID)(r.ReplyTo())
}
