package profile

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/example/modashop/pkg/format"
	"github.com/example/modashop/pkg/messenger"
	"github.com/example/modashop/pkg/models"
	"github.com/example/modashop/pkg/repository"
	"go.uber.org/zap"
)

var (
	ErrForeignContact = errors.New("contact does not belong to the sender")
	ErrUserNotFound   = errors.New("user not found")
)

// UserCache is a read-through cache for user documents. RedisRepository
// implements it.
type UserCache interface {
	CacheUser(ctx context.Context, user *models.User) error
	GetUserCache(ctx context.Context, userID string) (*models.User, error)
	InvalidateUser(ctx context.Context, userID string) error
}

// Tracker keeps shopper profiles up to date. Profile writes are merges and
// never remove fields.
type Tracker struct {
	store     repository.DocumentStore
	cache     UserCache
	messenger messenger.Messenger
	webAppURL string
	logger    *zap.Logger
}

// NewTracker builds a Tracker; cache may be nil.
func NewTracker(store repository.DocumentStore, cache UserCache, msgr messenger.Messenger, webAppURL string, logger *zap.Logger) *Tracker {
	return &Tracker{
		store:     store,
		cache:     cache,
		messenger: msgr,
		webAppURL: webAppURL,
		logger:    logger,
	}
}

// Start records the shopper and asks for their phone number.
func (t *Tracker) Start(ctx context.Context, ev messenger.Started) error {
	id := models.UserKey(ev.Actor.ID)
	err := t.store.SetDocument(ctx, models.UsersCollection, id, repository.Document{
		"id":            id,
		"first_name":    ev.Actor.FirstName,
		"last_name":     ev.Actor.LastName,
		"username":      ev.Actor.Username,
		"chat_id":       ev.Actor.ID,
		"last_activity": repository.ServerTimestamp,
	}, true)
	if err != nil {
		return fmt.Errorf("failed to save user %s: %w", id, err)
	}
	t.invalidate(ctx, id)

	return t.messenger.SendText(ctx, chatKey(ev.ChatID), welcomeText(ev.Actor), messenger.ContactKeyboard{
		Text: "📞 Telefon raqamni yuborish",
	})
}

// ShareContact stores the sender's own phone number and shows the main menu.
func (t *Tracker) ShareContact(ctx context.Context, ev messenger.ContactShared) error {
	if ev.ContactUserID != ev.Actor.ID {
		return ErrForeignContact
	}

	id := models.UserKey(ev.Actor.ID)
	err := t.store.SetDocument(ctx, models.UsersCollection, id, repository.Document{
		"phone_number":   ev.PhoneNumber,
		"contact_shared": true,
	}, true)
	if err != nil {
		return fmt.Errorf("failed to save contact of user %s: %w", id, err)
	}
	t.invalidate(ctx, id)

	return t.messenger.SendText(ctx, chatKey(ev.ChatID), contactAcceptedText, MainMenu(t.webAppURL))
}

// Lookup returns the stored user, consulting the cache first.
func (t *Tracker) Lookup(ctx context.Context, userID string) (*models.User, error) {
	if t.cache != nil {
		if user, err := t.cache.GetUserCache(ctx, userID); err == nil {
			return user, nil
		} else if !errors.Is(err, repository.ErrCacheMiss) {
			t.logger.Warn("User cache read failed", zap.String("user_id", userID), zap.Error(err))
		}
	}

	snap, err := t.store.GetDocument(ctx, models.UsersCollection, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}

	var user models.User
	if err := snap.Decode(&user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		user.ID = snap.ID
	}

	if t.cache != nil {
		if err := t.cache.CacheUser(ctx, &user); err != nil {
			t.logger.Warn("User cache write failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return &user, nil
}

func (t *Tracker) invalidate(ctx context.Context, userID string) {
	if t.cache == nil {
		return
	}
	if err := t.cache.InvalidateUser(ctx, userID); err != nil {
		t.logger.Warn("User cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// MainMenu is the shopper navigation keyboard.
func MainMenu(webAppURL string) messenger.InlineKeyboard {
	return messenger.InlineKeyboard{
		{messenger.WebAppButton("🛍️ Do'konni ochish", webAppURL)},
		{messenger.CallbackButton("📦 Buyurtmalarim", "my_orders")},
		{messenger.CallbackButton("👤 Profilim", "profile")},
		{messenger.CallbackButton("ℹ️ Yordam", "help")},
	}
}

func chatKey(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

func welcomeText(actor messenger.Actor) string {
	return fmt.Sprintf("Assalomu alaykum, %s! 👋\n\n", format.HTML(actor.FullName())) +
		"🎉 Moda Markazi onlayn do'koniga xush kelibsiz!\n\n" +
		"📞 Davom etish uchun telefon raqamingizni yuboring:"
}

const contactAcceptedText = "✅ Telefon raqamingiz qabul qilindi!\n\n" +
	"🎉 Endi do'konimizdan foydalanishingiz mumkin.\n\n" +
	"Quyidagi tugmalardan birini tanlang:"

// ForeignContactText is shown when someone shares another person's contact.
const ForeignContactText = "❌ Faqat o'zingizning telefon raqamingizni yuborishingiz mumkin!"
