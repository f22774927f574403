package messenger

import (
	"context"
	"fmt"
	"net/http"

	"github.com/example/modashop/pkg/config"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Telegram implements Messenger over the Bot API and turns incoming updates
// into Events.
type Telegram struct {
	bot     *bot.Bot
	config  *config.TelegramConfig
	limiter *rate.Limiter
	logger  *zap.Logger
	sink    func(Event)
}

func NewTelegram(cfg *config.TelegramConfig, logger *zap.Logger) (*Telegram, error) {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	t := &Telegram{
		config:  cfg,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}

	opts := []bot.Option{bot.WithDefaultHandler(t.onUpdate)}
	if cfg.WebhookSecret != "" {
		opts = append(opts, bot.WithWebhookSecretToken(cfg.WebhookSecret))
	}

	b, err := bot.New(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	t.bot = b
	return t, nil
}

// StartPolling delivers updates to sink until ctx is done.
func (t *Telegram) StartPolling(ctx context.Context, sink func(Event)) error {
	t.sink = sink
	if _, err := t.bot.DeleteWebhook(ctx, &bot.DeleteWebhookParams{}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	t.logger.Info("Telegram long polling started")
	t.bot.Start(ctx)
	return nil
}

// StartWebhook registers the webhook (when a public URL is configured) and
// processes updates received by WebhookHandler until ctx is done.
func (t *Telegram) StartWebhook(ctx context.Context, sink func(Event)) error {
	t.sink = sink
	if t.config.WebhookURL != "" {
		_, err := t.bot.SetWebhook(ctx, &bot.SetWebhookParams{
			URL:         t.config.WebhookURL,
			SecretToken: t.config.WebhookSecret,
		})
		if err != nil {
			return fmt.Errorf("failed to set webhook: %w", err)
		}
	}
	t.logger.Info("Telegram webhook processing started", zap.String("url", t.config.WebhookURL))
	t.bot.StartWebhook(ctx)
	return nil
}

func (t *Telegram) WebhookHandler() http.HandlerFunc {
	return t.bot.WebhookHandler()
}

func (t *Telegram) SendText(ctx context.Context, chatID string, text string, markup Markup) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if rm := replyMarkup(markup); rm != nil {
		params.ReplyMarkup = rm
	}

	if _, err := t.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", chatID, err)
	}
	return nil
}

func (t *Telegram) AnswerControl(ctx context.Context, queryID string, text string, alert bool) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := t.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: queryID,
		Text:            text,
		ShowAlert:       alert,
	})
	if err != nil {
		return fmt.Errorf("failed to answer callback query: %w", err)
	}
	return nil
}

func (t *Telegram) onUpdate(_ context.Context, _ *bot.Bot, update *models.Update) {
	ev, ok := ToEvent(update)
	if !ok {
		t.logger.Debug("Ignoring update", zap.Int64("update_id", update.ID))
		return
	}
	if t.sink != nil {
		t.sink(ev)
	}
}

// ToEvent converts a Bot API update. Updates the bot does not react to
// return false.
func ToEvent(update *models.Update) (Event, bool) {
	if update == nil {
		return nil, false
	}

	if cq := update.CallbackQuery; cq != nil {
		origin := Origin{Actor: actorFrom(&cq.From), ChatID: cq.From.ID}
		switch {
		case cq.Message.Message != nil:
			origin.ChatID = cq.Message.Message.Chat.ID
		case cq.Message.InaccessibleMessage != nil:
			origin.ChatID = cq.Message.InaccessibleMessage.Chat.ID
		}
		return ControlPressed{Origin: origin, QueryID: cq.ID, Data: cq.Data}, true
	}

	msg := update.Message
	if msg == nil || msg.From == nil {
		return nil, false
	}
	origin := Origin{Actor: actorFrom(msg.From), ChatID: msg.Chat.ID}

	switch {
	case msg.WebAppData != nil:
		return PayloadReceived{Origin: origin, Data: msg.WebAppData.Data}, true
	case msg.Contact != nil:
		return ContactShared{
			Origin:        origin,
			ContactUserID: msg.Contact.UserID,
			PhoneNumber:   msg.Contact.PhoneNumber,
		}, true
	}

	cmd, args, ok := ParseCommand(msg.Text)
	if !ok {
		return nil, false
	}
	if cmd == "start" {
		return Started{Origin: origin}, true
	}
	return CommandReceived{Origin: origin, Command: cmd, Args: args}, true
}

func actorFrom(u *models.User) Actor {
	return Actor{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
	}
}

func replyMarkup(markup Markup) models.ReplyMarkup {
	switch m := markup.(type) {
	case InlineKeyboard:
		rows := make([][]models.InlineKeyboardButton, 0, len(m))
		for _, row := range m {
			buttons := make([]models.InlineKeyboardButton, 0, len(row))
			for _, b := range row {
				button := models.InlineKeyboardButton{Text: b.Text, CallbackData: b.CallbackData}
				if b.WebAppURL != "" {
					button.WebApp = &models.WebAppInfo{URL: b.WebAppURL}
				}
				buttons = append(buttons, button)
			}
			rows = append(rows, buttons)
		}
		return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
	case ContactKeyboard:
		return &models.ReplyKeyboardMarkup{
			Keyboard: [][]models.KeyboardButton{
				{{Text: m.Text, RequestContact: true}},
			},
			ResizeKeyboard:  true,
			OneTimeKeyboard: true,
		}
	}
	return nil
}
