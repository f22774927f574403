package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/example/modashop/pkg/messenger"
	"github.com/example/modashop/pkg/models"
	"github.com/example/modashop/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	adminID   int64 = 42
	shopperID int64 = 111
)

type sentMessage struct {
	ChatID string
	Text   string
	Markup messenger.Markup
}

type fakeMessenger struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor map[string]error
}

func (f *fakeMessenger) SendText(_ context.Context, chatID, text string, markup messenger.Markup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[chatID]; err != nil {
		return err
	}
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text, Markup: markup})
	return nil
}

func (f *fakeMessenger) AnswerControl(context.Context, string, string, bool) error {
	return nil
}

func (f *fakeMessenger) to(chatID string) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, m := range f.sent {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

func newTestEngine(t *testing.T) (*Engine, *repository.MemoryRepository, *fakeMessenger) {
	t.Helper()
	store := repository.NewMemoryRepository()
	msgr := &fakeMessenger{failFor: map[string]error{}}
	engine := NewEngine(store, msgr, Options{AdminChatID: adminID, SupportUsername: "moda_admin"}, zap.NewNop())
	return engine, store, msgr
}

func payload(data string) messenger.PayloadReceived {
	return messenger.PayloadReceived{
		Origin: messenger.Origin{Actor: messenger.Actor{ID: shopperID, FirstName: "Aziz"}, ChatID: shopperID},
		Data:   data,
	}
}

const scenarioA = `{"type":"new_order","orderId":"O1","userInfo":{"id":"111","first_name":"Aziz"},"items":[{"name":"Shirt","size":"M","quantity":2,"price":50000}],"totalPrice":100000}`

func TestSubmitOrder_ScenarioA(t *testing.T) {
	ctx := context.Background()
	engine, store, msgr := newTestEngine(t)

	order, err := engine.SubmitOrder(ctx, payload(scenarioA))
	require.NoError(t, err)
	require.NotNil(t, order)

	stored, err := engine.GetOrder(ctx, "O1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, stored.CurrentStatus())
	assert.Equal(t, 100000.0, stored.TotalPrice)
	assert.Equal(t, "111", stored.UserID)
	assert.False(t, stored.CreatedAt.IsZero())

	adminMsgs := msgr.to("42")
	require.Len(t, adminMsgs, 1)
	text := adminMsgs[0].Text
	assert.Contains(t, text, "O1")
	assert.Contains(t, text, "Aziz")
	assert.Contains(t, text, "Shirt (M) - 2 dona x 50,000 so'm = 100,000 so'm")
	assert.Contains(t, text, "<b>💰 Jami summa:</b> 100,000 so'm")

	kb, ok := adminMsgs[0].Markup.(messenger.InlineKeyboard)
	require.True(t, ok)
	require.Len(t, kb, 2)
	assert.Equal(t, "order_accept_O1", kb[0][0].CallbackData)
	assert.Equal(t, "order_reject_O1", kb[0][1].CallbackData)
	assert.Equal(t, "contact_user_111", kb[1][0].CallbackData)

	shopperMsgs := msgr.to("111")
	require.Len(t, shopperMsgs, 1)
	assert.Contains(t, shopperMsgs[0].Text, "O1")
	assert.Contains(t, shopperMsgs[0].Text, "100,000 so'm")
	assert.Contains(t, shopperMsgs[0].Text, "@moda_admin")

	logs, err := repository.GetAuditLogs(ctx, store, "O1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "create_order", logs[0].Action)
}

func TestSubmitOrder_PlaceholdersInAdminMessage(t *testing.T) {
	engine, _, msgr := newTestEngine(t)

	_, err := engine.SubmitOrder(context.Background(), payload(
		`{"type":"new_order","orderId":"O2","userInfo":{},"items":[{"name":"Cap","size":"L","quantity":1,"price":1000}],"totalPrice":1000}`))
	require.NoError(t, err)

	text := msgr.to("42")[0].Text
	assert.Contains(t, text, "Noma'lum")
	assert.Contains(t, text, "@Mavjud emas")
	// the snapshot id falls back to the sender
	assert.Contains(t, text, "<code>111</code>")
}

func TestSubmitOrder_EscapesUserText(t *testing.T) {
	engine, _, msgr := newTestEngine(t)

	_, err := engine.SubmitOrder(context.Background(), payload(
		`{"type":"new_order","orderId":"O3","userInfo":{"first_name":"<b>x</b>"},"items":[{"name":"T&C","size":"M","quantity":1,"price":1}],"totalPrice":1}`))
	require.NoError(t, err)

	text := msgr.to("42")[0].Text
	assert.Contains(t, text, "&lt;b&gt;x&lt;/b&gt;")
	assert.Contains(t, text, "T&amp;C (M)")
}

func TestSubmitOrder_UnrecognizedPayloadIsIgnored(t *testing.T) {
	ctx := context.Background()
	engine, store, msgr := newTestEngine(t)

	order, err := engine.SubmitOrder(ctx, payload(`{"type":"feedback","orderId":"O1"}`))
	require.NoError(t, err)
	assert.Nil(t, order)

	count, err := store.CountDocuments(ctx, models.OrdersCollection)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, msgr.sent)
}

func TestSubmitOrder_MalformedItemWritesNothing(t *testing.T) {
	ctx := context.Background()
	engine, store, msgr := newTestEngine(t)

	_, err := engine.SubmitOrder(ctx, payload(`{"type":"new_order","orderId":"O1","items":[{"name":"Shirt"}]}`))
	assert.ErrorIs(t, err, ErrInvalidOrder)

	_, err = store.GetDocument(ctx, models.OrdersCollection, "O1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Empty(t, msgr.sent)
}

func TestSubmitOrder_OversizedOrderIDWritesNothing(t *testing.T) {
	ctx := context.Background()
	engine, store, msgr := newTestEngine(t)
	id := strings.Repeat("🛍", 20)

	_, err := engine.SubmitOrder(ctx, payload(`{"type":"new_order","orderId":"`+id+`","items":[{"name":"Shirt","size":"M","quantity":1,"price":1}]}`))
	assert.ErrorIs(t, err, ErrInvalidOrder)

	_, err = store.GetDocument(ctx, models.OrdersCollection, id)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Empty(t, msgr.sent)
}

func TestSubmitOrder_WithoutItemsStillNotifies(t *testing.T) {
	ctx := context.Background()
	engine, _, msgr := newTestEngine(t)

	order, err := engine.SubmitOrder(ctx, payload(`{"type":"new_order","orderId":"O7","totalPrice":0}`))
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Empty(t, order.Items)

	stored, err := engine.GetOrder(ctx, "O7")
	require.NoError(t, err)
	assert.Empty(t, stored.Items)

	adminMsgs := msgr.to("42")
	require.Len(t, adminMsgs, 1)
	assert.Contains(t, adminMsgs[0].Text, "<b>🛒 Mahsulotlar:</b>")
	assert.Len(t, msgr.to("111"), 1)
}

func TestSubmitOrder_NonStringTypeIsIgnored(t *testing.T) {
	engine, store, msgr := newTestEngine(t)

	order, err := engine.SubmitOrder(context.Background(), payload(`{"type":5,"orderId":"O8"}`))
	assert.NoError(t, err)
	assert.Nil(t, order)

	_, err = store.GetDocument(context.Background(), models.OrdersCollection, "O8")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Empty(t, msgr.sent)
}

func TestSubmitOrder_DuplicateIDOverwrites(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t)

	_, err := engine.SubmitOrder(ctx, payload(scenarioA))
	require.NoError(t, err)
	_, err = engine.Transition(ctx, adminID, "O1", models.StatusAccepted)
	require.NoError(t, err)

	_, err = engine.SubmitOrder(ctx, payload(
		`{"type":"new_order","orderId":"O1","userInfo":{"id":"111"},"items":[{"name":"Jeans","size":"32","quantity":1,"price":250000}],"totalPrice":250000}`))
	require.NoError(t, err)

	order, err := engine.GetOrder(ctx, "O1")
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Jeans", order.Items[0].Name)
	assert.Equal(t, 250000.0, order.TotalPrice)
	assert.Equal(t, models.StatusNew, order.CurrentStatus())
}

func TestSubmitOrder_AdminNotificationFailureKeepsOrder(t *testing.T) {
	ctx := context.Background()
	engine, _, msgr := newTestEngine(t)
	msgr.failFor["42"] = errors.New("gateway down")

	_, err := engine.SubmitOrder(ctx, payload(scenarioA))
	require.Error(t, err)

	_, err = engine.GetOrder(ctx, "O1")
	assert.NoError(t, err)
	assert.Empty(t, msgr.to("111"))
}

func TestTransition_ScenarioB(t *testing.T) {
	ctx := context.Background()
	engine, store, msgr := newTestEngine(t)
	_, err := engine.SubmitOrder(ctx, payload(scenarioA))
	require.NoError(t, err)

	order, err := engine.Transition(ctx, adminID, "O1", models.StatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, order.Status)

	stored, err := engine.GetOrder(ctx, "O1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, stored.Status)

	shopperMsgs := msgr.to("111")
	require.Len(t, shopperMsgs, 2)
	assert.Contains(t, shopperMsgs[1].Text, "O1")
	assert.Contains(t, shopperMsgs[1].Text, "Qabul qilindi")
	assert.Contains(t, shopperMsgs[1].Text, "✅")

	logs, err := repository.GetAuditLogs(ctx, store, "O1", 10)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestTransition_RejectUsesRejectIcon(t *testing.T) {
	ctx := context.Background()
	engine, _, msgr := newTestEngine(t)
	_, err := engine.SubmitOrder(ctx, payload(scenarioA))
	require.NoError(t, err)

	_, err = engine.Transition(ctx, adminID, "O1", models.StatusRejected)
	require.NoError(t, err)

	last := msgr.to("111")[1].Text
	assert.Contains(t, last, "❌")
	assert.Contains(t, last, "Bekor qilindi")
}

func TestTransition_ScenarioC_Unauthorized(t *testing.T) {
	ctx := context.Background()
	engine, _, msgr := newTestEngine(t)
	_, err := engine.SubmitOrder(ctx, payload(scenarioA))
	require.NoError(t, err)
	before := len(msgr.sent)

	_, err = engine.Transition(ctx, shopperID, "O1", models.StatusAccepted)
	assert.ErrorIs(t, err, ErrUnauthorized)

	order, err := engine.GetOrder(ctx, "O1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, order.CurrentStatus())
	assert.Len(t, msgr.sent, before)
}

func TestTransition_ScenarioD_NotFound(t *testing.T) {
	ctx := context.Background()
	engine, store, msgr := newTestEngine(t)

	_, err := engine.Transition(ctx, adminID, "O999", models.StatusAccepted)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = store.GetDocument(ctx, models.OrdersCollection, "O999")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Empty(t, msgr.sent)
}

func TestTransition_ReplayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	engine, _, msgr := newTestEngine(t)
	_, err := engine.SubmitOrder(ctx, payload(scenarioA))
	require.NoError(t, err)

	_, err = engine.Transition(ctx, adminID, "O1", models.StatusAccepted)
	require.NoError(t, err)
	_, err = engine.Transition(ctx, adminID, "O1", models.StatusAccepted)
	require.NoError(t, err)

	order, err := engine.GetOrder(ctx, "O1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, order.Status)
	// confirmation plus two redundant status notifications
	assert.Len(t, msgr.to("111"), 3)
}

func TestTransition_KeepsItemsAndTotal(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t)
	submitted, err := engine.SubmitOrder(ctx, payload(scenarioA))
	require.NoError(t, err)

	_, err = engine.Transition(ctx, adminID, "O1", models.StatusRejected)
	require.NoError(t, err)
	_, err = engine.Transition(ctx, adminID, "O1", models.StatusAccepted)
	require.NoError(t, err)

	order, err := engine.GetOrder(ctx, "O1")
	require.NoError(t, err)
	assert.Equal(t, submitted.Items, order.Items)
	assert.Equal(t, submitted.TotalPrice, order.TotalPrice)
	assert.Equal(t, submitted.UserInfo, order.UserInfo)
}

func TestTransition_WithoutOwnerSkipsNotification(t *testing.T) {
	ctx := context.Background()
	engine, store, msgr := newTestEngine(t)
	require.NoError(t, store.SetDocument(ctx, models.OrdersCollection, "legacy", repository.Document{
		"items":      []repository.Document{},
		"totalPrice": 10,
	}, false))

	_, err := engine.Transition(ctx, adminID, "legacy", models.StatusAccepted)
	require.NoError(t, err)
	assert.Empty(t, msgr.sent)
}

func TestTransition_RejectsNewAsTarget(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	_, err := engine.Transition(context.Background(), adminID, "O1", models.StatusNew)
	assert.Error(t, err)
}
