package profile

import (
	"context"
	"testing"

	"github.com/example/modashop/pkg/messenger"
	"github.com/example/modashop/pkg/models"
	"github.com/example/modashop/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sentMessage struct {
	ChatID string
	Text   string
	Markup messenger.Markup
}

type fakeMessenger struct {
	sent []sentMessage
}

func (f *fakeMessenger) SendText(_ context.Context, chatID, text string, markup messenger.Markup) error {
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text, Markup: markup})
	return nil
}

func (f *fakeMessenger) AnswerControl(context.Context, string, string, bool) error { return nil }

type mapCache struct {
	users       map[string]*models.User
	reads       int
	invalidated []string
}

func newMapCache() *mapCache {
	return &mapCache{users: map[string]*models.User{}}
}

func (c *mapCache) CacheUser(_ context.Context, user *models.User) error {
	u := *user
	c.users[user.ID] = &u
	return nil
}

func (c *mapCache) GetUserCache(_ context.Context, userID string) (*models.User, error) {
	c.reads++
	u, ok := c.users[userID]
	if !ok {
		return nil, repository.ErrCacheMiss
	}
	return u, nil
}

func (c *mapCache) InvalidateUser(_ context.Context, userID string) error {
	delete(c.users, userID)
	c.invalidated = append(c.invalidated, userID)
	return nil
}

var aziz = messenger.Actor{ID: 111, FirstName: "Aziz", LastName: "Karimov", Username: "aziz"}

func newTestTracker() (*Tracker, *repository.MemoryRepository, *mapCache, *fakeMessenger) {
	store := repository.NewMemoryRepository()
	cache := newMapCache()
	msgr := &fakeMessenger{}
	return NewTracker(store, cache, msgr, "https://shop.example.com", zap.NewNop()), store, cache, msgr
}

func TestStart_UpsertsUserAndAsksForContact(t *testing.T) {
	ctx := context.Background()
	tracker, _, _, msgr := newTestTracker()

	require.NoError(t, tracker.Start(ctx, messenger.Started{Origin: messenger.Origin{Actor: aziz, ChatID: 111}}))

	user, err := tracker.Lookup(ctx, "111")
	require.NoError(t, err)
	assert.Equal(t, "Aziz", user.FirstName)
	assert.Equal(t, "aziz", user.Username)
	assert.Equal(t, int64(111), user.ChatID)
	assert.False(t, user.LastActivity.IsZero())

	require.Len(t, msgr.sent, 1)
	assert.Contains(t, msgr.sent[0].Text, "Aziz Karimov")
	assert.IsType(t, messenger.ContactKeyboard{}, msgr.sent[0].Markup)
}

func TestStart_TwiceKeepsContactFields(t *testing.T) {
	ctx := context.Background()
	tracker, _, _, _ := newTestTracker()
	origin := messenger.Origin{Actor: aziz, ChatID: 111}

	require.NoError(t, tracker.Start(ctx, messenger.Started{Origin: origin}))
	require.NoError(t, tracker.ShareContact(ctx, messenger.ContactShared{
		Origin:        origin,
		ContactUserID: 111,
		PhoneNumber:   "+998901234567",
	}))
	require.NoError(t, tracker.Start(ctx, messenger.Started{Origin: origin}))

	user, err := tracker.Lookup(ctx, "111")
	require.NoError(t, err)
	assert.Equal(t, "+998901234567", user.PhoneNumber)
	assert.True(t, user.ContactShared)
}

func TestShareContact_ShowsMainMenu(t *testing.T) {
	ctx := context.Background()
	tracker, _, cache, msgr := newTestTracker()
	origin := messenger.Origin{Actor: aziz, ChatID: 111}

	require.NoError(t, tracker.ShareContact(ctx, messenger.ContactShared{Origin: origin, ContactUserID: 111, PhoneNumber: "+998"}))

	require.Len(t, msgr.sent, 1)
	kb, ok := msgr.sent[0].Markup.(messenger.InlineKeyboard)
	require.True(t, ok)
	require.Len(t, kb, 4)
	assert.Equal(t, "https://shop.example.com", kb[0][0].WebAppURL)
	assert.Equal(t, "my_orders", kb[1][0].CallbackData)
	assert.Equal(t, "profile", kb[2][0].CallbackData)
	assert.Equal(t, "help", kb[3][0].CallbackData)
	assert.Contains(t, cache.invalidated, "111")
}

func TestShareContact_RejectsForeignContact(t *testing.T) {
	ctx := context.Background()
	tracker, store, _, msgr := newTestTracker()

	err := tracker.ShareContact(ctx, messenger.ContactShared{
		Origin:        messenger.Origin{Actor: aziz, ChatID: 111},
		ContactUserID: 222,
		PhoneNumber:   "+998000000000",
	})
	assert.ErrorIs(t, err, ErrForeignContact)

	_, err = store.GetDocument(ctx, models.UsersCollection, "111")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Empty(t, msgr.sent)
}

func TestLookup_UsesCache(t *testing.T) {
	ctx := context.Background()
	tracker, store, cache, _ := newTestTracker()
	require.NoError(t, store.SetDocument(ctx, models.UsersCollection, "111", repository.Document{
		"id":         "111",
		"first_name": "Aziz",
	}, false))

	_, err := tracker.Lookup(ctx, "111")
	require.NoError(t, err)
	require.Contains(t, cache.users, "111")

	// a cached entry wins over the store until invalidated
	cache.users["111"].FirstName = "Cached"
	user, err := tracker.Lookup(ctx, "111")
	require.NoError(t, err)
	assert.Equal(t, "Cached", user.FirstName)
	assert.Equal(t, 2, cache.reads)
}

func TestLookup_NotFound(t *testing.T) {
	tracker, _, _, _ := newTestTracker()
	_, err := tracker.Lookup(context.Background(), "404")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestLookup_WithoutCache(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryRepository()
	tracker := NewTracker(store, nil, &fakeMessenger{}, "", zap.NewNop())
	require.NoError(t, tracker.Start(ctx, messenger.Started{Origin: messenger.Origin{Actor: aziz, ChatID: 111}}))

	user, err := tracker.Lookup(ctx, "111")
	require.NoError(t, err)
	assert.Equal(t, "Karimov", user.LastName)
}
