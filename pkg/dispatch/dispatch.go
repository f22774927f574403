// Package dispatch runs chat events on protoactor actors: events of one chat
// are handled one at a time in arrival order, different chats run
// concurrently.
package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/modashop/pkg/messenger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventHandler processes one event; bot.Handler implements it.
type EventHandler interface {
	Handle(ctx context.Context, ev messenger.Event)
}

type Dispatcher struct {
	system  *actor.ActorSystem
	router  *actor.PID
	cancel  context.CancelFunc
	stopped atomic.Bool
	logger  *zap.Logger
}

// NewDispatcher starts the actor system. Handlers run with a context that is
// cancelled by Stop after pending events are drained.
func NewDispatcher(handler EventHandler, logger *zap.Logger) (*Dispatcher, error) {
	ctx, cancel := context.WithCancel(context.Background())
	system := actor.NewActorSystem()

	props := actor.PropsFromProducer(func() actor.Actor {
		return &routerActor{
			ctx:     ctx,
			handler: handler,
			logger:  logger,
		}
	})
	router, err := system.Root.SpawnNamed(props, "chat-router")
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to spawn router actor: %w", err)
	}

	logger.Info("Dispatcher started", zap.String("router", router.Id))
	return &Dispatcher{
		system: system,
		router: router,
		cancel: cancel,
		logger: logger,
	}, nil
}

// Dispatch queues ev for the actor of its chat. Events dispatched after Stop
// are dropped.
func (d *Dispatcher) Dispatch(ev messenger.Event) {
	if d.stopped.Load() {
		d.logger.Warn("Dropping event after stop", zap.String("event_type", fmt.Sprintf("%T", ev)))
		return
	}
	d.system.Root.Send(d.router, &envelope{
		ID:       uuid.NewString(),
		ChatKey:  strconv.FormatInt(ev.Source().ChatID, 10),
		Event:    ev,
		Received: time.Now(),
	})
}

// Stop waits up to timeout for queued events to finish, then stops the
// actors and cancels in-flight handlers.
func (d *Dispatcher) Stop(timeout time.Duration) {
	if !d.stopped.CompareAndSwap(false, true) {
		return
	}
	defer d.cancel()

	res, err := d.system.Root.RequestFuture(d.router, &drain{}, timeout).Result()
	if err != nil {
		d.logger.Warn("Dispatcher drain timed out", zap.Error(err))
	} else if r, ok := res.(*drained); ok {
		d.logger.Info("Dispatcher drained", zap.Int("chats", r.Chats))
	}

	if err := d.system.Root.PoisonFuture(d.router).Wait(); err != nil {
		d.logger.Warn("Router actor did not stop cleanly", zap.Error(err))
	}
}
