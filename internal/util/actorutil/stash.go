package actorutil

import (
	"github.com/asynkron/protoactor-go/actor"
)

// Stash holds messages an actor cannot process in its current state.
// Replayed messages keep their original sender so responses reach the caller.
type Stash struct {
	pending []stashedMessage
	limit   int
}

type stashedMessage struct {
	msg    any
	sender *actor.PID
}

// NewStash returns a stash that drops the oldest message once limit is
// reached. A limit of 0 means unbounded.
func NewStash(limit int) *Stash {
	return &Stash{limit: limit}
}

func (s *Stash) Stash(ctx actor.Context, msg any) {
	if s.limit > 0 && len(s.pending) >= s.limit {
		s.pending = s.pending[1:]
	}
	s.pending = append(s.pending, stashedMessage{
		msg:    msg,
		sender: ctx.Sender(),
	})
}

func (s *Stash) Len() int {
	return len(s.pending)
}

func (s *Stash) UnstashAll(ctx actor.Context) {
	pending := s.pending
	s.pending = nil
	for _, elem := range pending {
		ctx.RequestWithCustomSender(ctx.Self(), elem.msg, elem.sender)
	}
}

func (s *Stash) UnstashOldest(ctx actor.Context) {
	if len(s.pending) > 0 {
		first := s.pending[0]
		s.pending = s.pending[1:]
		ctx.RequestWithCustomSender(ctx.Self(), first.msg, first.sender)
	}
}
