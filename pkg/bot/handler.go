// Package bot routes inbound chat events to the order workflow, the profile
// tracker and the reports, and turns their errors into replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/example/modashop/pkg/messenger"
	"github.com/example/modashop/pkg/models"
	"github.com/example/modashop/pkg/profile"
	"github.com/example/modashop/pkg/report"
	"github.com/example/modashop/pkg/workflow"
	"go.uber.org/zap"
)

// Menu callbacks sent by the shopper main menu.
const (
	CallbackMyOrders = "my_orders"
	CallbackProfile  = "profile"
	CallbackHelp     = "help"
)

const (
	unauthorizedText   = "❌ Bu funksiya faqat admin uchun!"
	orderNotFoundText  = "❌ Buyurtma topilmadi!"
	genericFailureText = "❌ Xatolik yuz berdi!"
	orderFailureText   = "❌ Buyurtma berishda xatolik yuz berdi. Iltimos, qaytadan urinib ko'ring."
	myOrdersFailure    = "❌ Buyurtmalarni yuklashda xatolik yuz berdi."
	profileNotFound    = "❌ Profil ma'lumotlari topilmadi!"
	profileFailure     = "❌ Profil yuklashda xatolik yuz berdi."
	customerNotFound   = "❌ Mijoz ma'lumotlari topilmadi!"
	adminPanelFailure  = "❌ Admin panelida xatolik yuz berdi!"
	statsFailure       = "❌ Statistika hisoblashda xatolik!"
	ordersFailure      = "❌ Buyurtmalarni olishda xatolik!"
)

type Handler struct {
	engine    *workflow.Engine
	tracker   *profile.Tracker
	reporter  *report.Reporter
	messenger messenger.Messenger
	logger    *zap.Logger
}

func NewHandler(engine *workflow.Engine, tracker *profile.Tracker, reporter *report.Reporter, msgr messenger.Messenger, logger *zap.Logger) *Handler {
	return &Handler{
		engine:    engine,
		tracker:   tracker,
		reporter:  reporter,
		messenger: msgr,
		logger:    logger,
	}
}

// Handle processes one event. Failures are logged and answered; none are
// returned to the caller.
func (h *Handler) Handle(ctx context.Context, ev messenger.Event) {
	switch e := ev.(type) {
	case messenger.Started:
		h.handleStart(ctx, e)
	case messenger.ContactShared:
		h.handleContact(ctx, e)
	case messenger.PayloadReceived:
		h.handlePayload(ctx, e)
	case messenger.CommandReceived:
		h.handleCommand(ctx, e)
	case messenger.ControlPressed:
		h.handleControl(ctx, e)
	default:
		h.logger.Debug("Unhandled event", zap.String("type", fmt.Sprintf("%T", ev)))
	}
}

func (h *Handler) handleStart(ctx context.Context, ev messenger.Started) {
	if err := h.tracker.Start(ctx, ev); err != nil {
		h.fail(ctx, ev.Origin, "start", err, genericFailureText)
	}
}

func (h *Handler) handleContact(ctx context.Context, ev messenger.ContactShared) {
	err := h.tracker.ShareContact(ctx, ev)
	switch {
	case err == nil:
	case errors.Is(err, profile.ErrForeignContact):
		h.logger.Info("Foreign contact rejected",
			zap.Int64("user_id", ev.Actor.ID),
			zap.Int64("contact_user_id", ev.ContactUserID))
		h.reply(ctx, ev.Origin, profile.ForeignContactText, nil)
	default:
		h.fail(ctx, ev.Origin, "share_contact", err, genericFailureText)
	}
}

func (h *Handler) handlePayload(ctx context.Context, ev messenger.PayloadReceived) {
	if _, err := h.engine.SubmitOrder(ctx, ev); err != nil {
		h.fail(ctx, ev.Origin, "submit_order", err, orderFailureText)
	}
}

func (h *Handler) handleCommand(ctx context.Context, ev messenger.CommandReceived) {
	switch ev.Command {
	case "help":
		h.reply(ctx, ev.Origin, h.reporter.Help(), nil)
		return
	case "admin", "stats", "orders", "buyurtmalar":
	default:
		h.logger.Debug("Unknown command", zap.String("command", ev.Command), zap.Int64("chat_id", ev.ChatID))
		return
	}

	if !h.engine.IsAdmin(ev.Actor.ID) {
		h.logger.Info("Unauthorized admin command",
			zap.String("command", ev.Command),
			zap.Int64("user_id", ev.Actor.ID))
		h.reply(ctx, ev.Origin, unauthorizedText, nil)
		return
	}

	var (
		text    string
		err     error
		failure string
	)
	switch ev.Command {
	case "admin":
		text, err = h.reporter.AdminPanel(ctx)
		failure = adminPanelFailure
	case "stats":
		text, err = h.reporter.Stats(ctx)
		failure = statsFailure
	case "orders":
		text, err = h.reporter.RecentOrders(ctx)
		failure = ordersFailure
	case "buyurtmalar":
		text, err = h.reporter.AllOrders(ctx, pageArg(ev.Args))
		failure = ordersFailure
	}
	if err != nil {
		h.fail(ctx, ev.Origin, ev.Command, err, failure)
		return
	}
	h.reply(ctx, ev.Origin, text, nil)
}

func pageArg(args string) int {
	page, err := strconv.Atoi(args)
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func (h *Handler) handleControl(ctx context.Context, ev messenger.ControlPressed) {
	switch ev.Data {
	case CallbackMyOrders:
		h.answer(ctx, ev, "", false)
		text, err := h.reporter.MyOrders(ctx, models.UserKey(ev.Actor.ID))
		if err != nil {
			h.fail(ctx, ev.Origin, "my_orders", err, myOrdersFailure)
			return
		}
		h.reply(ctx, ev.Origin, text, nil)
		return
	case CallbackProfile:
		h.answer(ctx, ev, "", false)
		text, err := h.reporter.Profile(ctx, models.UserKey(ev.Actor.ID))
		switch {
		case errors.Is(err, profile.ErrUserNotFound):
			h.reply(ctx, ev.Origin, profileNotFound, nil)
		case err != nil:
			h.fail(ctx, ev.Origin, "profile", err, profileFailure)
		default:
			h.reply(ctx, ev.Origin, text, nil)
		}
		return
	case CallbackHelp:
		h.answer(ctx, ev, "", false)
		h.reply(ctx, ev.Origin, h.reporter.Help(), nil)
		return
	}

	control, ok := workflow.ParseControl(ev.Data)
	if !ok {
		h.logger.Debug("Unknown control", zap.String("data", ev.Data))
		h.answer(ctx, ev, "", false)
		return
	}
	if control.Action == workflow.ActionContact {
		h.handleContactCard(ctx, ev, control.Arg)
		return
	}
	h.handleTransition(ctx, ev, control)
}

func (h *Handler) handleTransition(ctx context.Context, ev messenger.ControlPressed, control workflow.Control) {
	target, _ := control.TargetStatus()
	_, err := h.engine.Transition(ctx, ev.Actor.ID, control.Arg, target)
	switch {
	case err == nil:
		h.answer(ctx, ev, workflow.TransitionAck(target), false)
	case errors.Is(err, workflow.ErrUnauthorized):
		h.logger.Info("Unauthorized order control",
			zap.Int64("user_id", ev.Actor.ID),
			zap.String("order_id", control.Arg))
		h.answer(ctx, ev, unauthorizedText, true)
	case errors.Is(err, workflow.ErrOrderNotFound):
		h.logger.Info("Order control for unknown order", zap.String("order_id", control.Arg))
		h.answer(ctx, ev, orderNotFoundText, false)
	default:
		h.logger.Error("Order transition failed",
			zap.String("operation", "transition"),
			zap.String("order_id", control.Arg),
			zap.String("target", string(target)),
			zap.Error(err))
		h.answer(ctx, ev, genericFailureText, false)
	}
}

func (h *Handler) handleContactCard(ctx context.Context, ev messenger.ControlPressed, userID string) {
	if !h.engine.IsAdmin(ev.Actor.ID) {
		h.logger.Info("Unauthorized contact control", zap.Int64("user_id", ev.Actor.ID))
		h.answer(ctx, ev, unauthorizedText, true)
		return
	}
	h.answer(ctx, ev, "", false)

	text, err := h.reporter.CustomerContact(ctx, userID)
	switch {
	case errors.Is(err, profile.ErrUserNotFound):
		h.reply(ctx, ev.Origin, customerNotFound, nil)
	case err != nil:
		h.fail(ctx, ev.Origin, "contact_user", err, genericFailureText)
	default:
		h.reply(ctx, ev.Origin, text, nil)
	}
}

func (h *Handler) reply(ctx context.Context, origin messenger.Origin, text string, markup messenger.Markup) {
	chatID := strconv.FormatInt(origin.ChatID, 10)
	if err := h.messenger.SendText(ctx, chatID, text, markup); err != nil {
		h.logger.Error("Failed to send reply", zap.String("chat_id", chatID), zap.Error(err))
	}
}

func (h *Handler) answer(ctx context.Context, ev messenger.ControlPressed, text string, alert bool) {
	if err := h.messenger.AnswerControl(ctx, ev.QueryID, text, alert); err != nil {
		h.logger.Warn("Failed to answer control", zap.String("query_id", ev.QueryID), zap.Error(err))
	}
}

func (h *Handler) fail(ctx context.Context, origin messenger.Origin, operation string, err error, text string) {
	h.logger.Error("Event handling failed",
		zap.String("operation", operation),
		zap.Int64("chat_id", origin.ChatID),
		zap.Int64("user_id", origin.Actor.ID),
		zap.Error(err))
	h.reply(ctx, origin, text, nil)
}
