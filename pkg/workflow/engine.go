package workflow

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/example/modashop/pkg/messenger"
	"github.com/example/modashop/pkg/models"
	"github.com/example/modashop/pkg/repository"
	"go.uber.org/zap"
)

const auditService = "order-workflow"

type Options struct {
	AdminChatID     int64
	SupportUsername string
}

// Engine runs order intake and status transitions. Each step writes or sends
// independently; a failed step leaves earlier steps in place.
type Engine struct {
	store     repository.DocumentStore
	messenger messenger.Messenger
	opts      Options
	logger    *zap.Logger
}

func NewEngine(store repository.DocumentStore, msgr messenger.Messenger, opts Options, logger *zap.Logger) *Engine {
	return &Engine{
		store:     store,
		messenger: msgr,
		opts:      opts,
		logger:    logger,
	}
}

func (e *Engine) IsAdmin(actorID int64) bool {
	return actorID == e.opts.AdminChatID
}

func (e *Engine) adminChat() string {
	return strconv.FormatInt(e.opts.AdminChatID, 10)
}

// SubmitOrder handles a storefront payload. It returns a nil order and a nil
// error when the payload is not an order submission.
func (e *Engine) SubmitOrder(ctx context.Context, ev messenger.PayloadReceived) (*models.Order, error) {
	sub, ok, err := DecodePayload([]byte(ev.Data))
	if err != nil {
		return nil, err
	}
	if !ok {
		e.logger.Debug("Ignoring web app payload", zap.Int64("chat_id", ev.ChatID))
		return nil, nil
	}

	order := sub.Order(models.UserKey(ev.Actor.ID))
	if math.Abs(order.ItemsTotal()-order.TotalPrice) > 0.005 {
		e.logger.Warn("Order total differs from item subtotals",
			zap.String("order_id", order.ID),
			zap.Float64("total_price", order.TotalPrice),
			zap.Float64("items_total", order.ItemsTotal()))
	}

	if err := e.saveOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to save order %s: %w", order.ID, err)
	}

	if err := e.messenger.SendText(ctx, e.adminChat(), adminOrderText(order), adminOrderControls(order)); err != nil {
		return nil, fmt.Errorf("failed to notify admin about order %s: %w", order.ID, err)
	}

	chatID := strconv.FormatInt(ev.ChatID, 10)
	if err := e.messenger.SendText(ctx, chatID, confirmationText(order, e.opts.SupportUsername), nil); err != nil {
		return nil, fmt.Errorf("failed to confirm order %s: %w", order.ID, err)
	}

	e.audit(ctx, "create_order", order.ID, order.UserID, map[string]interface{}{
		"user_id":     order.UserID,
		"total_price": order.TotalPrice,
		"item_count":  len(order.Items),
	})

	e.logger.Info("Order received",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.Int("item_count", len(order.Items)))

	return order, nil
}

// saveOrder overwrites any order with the same id.
func (e *Engine) saveOrder(ctx context.Context, order *models.Order) error {
	doc, err := repository.ToDocument(order)
	if err != nil {
		return err
	}
	doc["status"] = string(models.StatusNew)
	doc["createdAt"] = repository.ServerTimestamp
	return e.store.SetDocument(ctx, models.OrdersCollection, order.ID, doc, false)
}

// Transition sets the status of an existing order on behalf of actorID and
// notifies the shopper. The write is unconditional, so repeating a transition
// succeeds and notifies the shopper again.
func (e *Engine) Transition(ctx context.Context, actorID int64, orderID string, target models.OrderStatus) (*models.Order, error) {
	if !e.IsAdmin(actorID) {
		return nil, ErrUnauthorized
	}
	if target != models.StatusAccepted && target != models.StatusRejected {
		return nil, fmt.Errorf("unsupported target status %q", target)
	}

	order, err := e.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	err = e.store.UpdateDocument(ctx, models.OrdersCollection, orderID, repository.Document{
		"status": string(target),
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update order %s: %w", orderID, err)
	}
	previous := order.CurrentStatus()
	order.Status = target

	e.audit(ctx, "update_order_status", orderID, models.UserKey(actorID), map[string]interface{}{
		"from": string(previous),
		"to":   string(target),
	})

	e.logger.Info("Order status changed",
		zap.String("order_id", orderID),
		zap.String("from", string(previous)),
		zap.String("to", string(target)))

	if order.UserID == "" {
		return order, nil
	}
	if err := e.messenger.SendText(ctx, order.UserID, statusChangedText(orderID, target), nil); err != nil {
		return order, fmt.Errorf("failed to notify user %s about order %s: %w", order.UserID, orderID, err)
	}
	return order, nil
}

func (e *Engine) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	snap, err := e.store.GetDocument(ctx, models.OrdersCollection, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", orderID, err)
	}

	var order models.Order
	if err := snap.Decode(&order); err != nil {
		return nil, err
	}
	order.ID = snap.ID
	return &order, nil
}

func (e *Engine) audit(ctx context.Context, action, entityID, actorID string, data map[string]interface{}) {
	err := repository.CreateAuditLog(ctx, e.store, &models.AuditLog{
		Service:  auditService,
		Action:   action,
		EntityID: entityID,
		ActorID:  actorID,
		Data:     data,
	})
	if err != nil {
		e.logger.Warn("Failed to write audit log",
			zap.String("action", action),
			zap.String("entity_id", entityID),
			zap.Error(err))
	}
}
