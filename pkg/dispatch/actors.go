package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/modashop/pkg/messenger"
	"go.uber.org/zap"
)

// envelope carries one inbound event to the actor of its chat.
type envelope struct {
	ID       string
	ChatKey  string
	Event    messenger.Event
	Received time.Time
}

// drain asks the router to stop every chat actor once its mailbox is empty.
type drain struct{}

type drained struct {
	Chats int
}

// routerActor owns one child actor per chat and forwards envelopes to it.
type routerActor struct {
	ctx     context.Context
	handler EventHandler
	logger  *zap.Logger
	chats   map[string]*actor.PID
}

func (a *routerActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		a.chats = make(map[string]*actor.PID)
		a.logger.Debug("Router actor started")

	case *envelope:
		pid, ok := a.chats[msg.ChatKey]
		if !ok {
			pid = ctx.Spawn(actor.PropsFromProducer(func() actor.Actor {
				return &chatActor{
					ctx:     a.ctx,
					handler: a.handler,
					logger:  a.logger.With(zap.String("chat", msg.ChatKey)),
				}
			}))
			a.chats[msg.ChatKey] = pid
		}
		ctx.Send(pid, msg)

	case *actor.Terminated:
		for key, pid := range a.chats {
			if pid.Id == msg.Who.Id {
				delete(a.chats, key)
				break
			}
		}

	case *drain:
		futures := make([]actor.Future, 0, len(a.chats))
		for _, pid := range a.chats {
			futures = append(futures, ctx.PoisonFuture(pid))
		}
		for _, f := range futures {
			if err := f.Wait(); err != nil {
				a.logger.Warn("Chat actor did not stop cleanly", zap.Error(err))
			}
		}
		n := len(a.chats)
		a.chats = make(map[string]*actor.PID)
		ctx.Respond(&drained{Chats: n})

	case *actor.Stopping:
		a.logger.Debug("Router actor stopping")
	}
}

// chatActor handles the events of a single chat in arrival order.
type chatActor struct {
	ctx     context.Context
	handler EventHandler
	logger  *zap.Logger
}

func (a *chatActor) Receive(ctx actor.Context) {
	if msg, ok := ctx.Message().(*envelope); ok {
		a.handle(msg)
	}
}

func (a *chatActor) handle(msg *envelope) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Event handler panicked",
				zap.String("event_id", msg.ID),
				zap.String("event_type", fmt.Sprintf("%T", msg.Event)),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()

	start := time.Now()
	a.handler.Handle(a.ctx, msg.Event)
	a.logger.Debug("Event handled",
		zap.String("event_id", msg.ID),
		zap.String("event_type", fmt.Sprintf("%T", msg.Event)),
		zap.Duration("queued", start.Sub(msg.Received)),
		zap.Duration("took", time.Since(start)))
}
