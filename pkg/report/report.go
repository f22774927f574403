// Package report renders stored users and orders as chat messages.
package report

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/example/modashop/pkg/format"
	"github.com/example/modashop/pkg/models"
	"github.com/example/modashop/pkg/repository"
	"github.com/example/modashop/pkg/workflow"
)

const (
	RecentOrdersLimit = 10
	OrdersPageSize    = 5
)

// UserLookup resolves users by id; profile.Tracker implements it.
type UserLookup interface {
	Lookup(ctx context.Context, userID string) (*models.User, error)
}

type Reporter struct {
	store           repository.DocumentStore
	users           UserLookup
	loc             *time.Location
	supportUsername string
	now             func() time.Time
}

func NewReporter(store repository.DocumentStore, users UserLookup, loc *time.Location, supportUsername string) *Reporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Reporter{
		store:           store,
		users:           users,
		loc:             loc,
		supportUsername: supportUsername,
		now:             time.Now,
	}
}

// WithClock replaces the clock used for the trailing 24 hour window.
func (r *Reporter) WithClock(now func() time.Time) *Reporter {
	r.now = now
	return r
}

func (r *Reporter) orders(ctx context.Context, q repository.Query) ([]*models.Order, error) {
	snaps, err := r.store.QueryDocuments(ctx, models.OrdersCollection, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	out := make([]*models.Order, 0, len(snaps))
	for _, snap := range snaps {
		var o models.Order
		if err := snap.Decode(&o); err != nil {
			return nil, err
		}
		o.ID = snap.ID
		out = append(out, &o)
	}
	return out, nil
}

func (r *Reporter) count(ctx context.Context, collection string, filters ...repository.Filter) (int64, error) {
	n, err := r.store.CountDocuments(ctx, collection, filters...)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", collection, err)
	}
	return n, nil
}

// MyOrders lists a shopper's orders, newest first. Only accepted orders are
// listed as completed; every other status, rejected included, is listed
// under new orders.
func (r *Reporter) MyOrders(ctx context.Context, userID string) (string, error) {
	orders, err := r.orders(ctx, repository.Query{
		Filters:    []repository.Filter{repository.Where("userId", repository.OpEq, userID)},
		OrderBy:    "createdAt",
		Descending: true,
	})
	if err != nil {
		return "", err
	}
	if len(orders) == 0 {
		return "📦 Hozircha buyurtmalaringiz yo'q.", nil
	}

	pending, completed := PartitionOrders(orders)

	var b strings.Builder
	b.WriteString("<b>📦 Mening buyurtmalarim:</b>\n\n")
	if len(pending) > 0 {
		b.WriteString("<b>🆕 Yangi buyurtmalar:</b>\n")
		for _, o := range pending {
			writeOrderLine(&b, o)
		}
	}
	if len(completed) > 0 {
		b.WriteString("\n<b>✅ Tugatilgan/yetkazilgan:</b>\n")
		for _, o := range completed {
			writeOrderLine(&b, o)
		}
	}
	return b.String(), nil
}

// PartitionOrders splits orders into pending and completed, keeping order.
func PartitionOrders(orders []*models.Order) (pending, completed []*models.Order) {
	for _, o := range orders {
		if o.Status == models.StatusAccepted {
			completed = append(completed, o)
		} else {
			pending = append(pending, o)
		}
	}
	return pending, completed
}

func writeOrderLine(b *strings.Builder, o *models.Order) {
	fmt.Fprintf(b, "🆔 <code>%s</code> | %s | %s\n", format.HTML(o.ID), format.Sum(o.TotalPrice), o.CurrentStatus())
}

// Profile renders the shopper's own profile. It returns an error wrapping
// profile.ErrUserNotFound for shoppers who never started the bot.
func (r *Reporter) Profile(ctx context.Context, userID string) (string, error) {
	user, err := r.users.Lookup(ctx, userID)
	if err != nil {
		return "", err
	}
	count, err := r.count(ctx, models.OrdersCollection, repository.Where("userId", repository.OpEq, userID))
	if err != nil {
		return "", err
	}

	name := user.FullName()
	if user.FirstName == "" {
		name = strings.TrimSpace("N/A " + user.LastName)
	}

	var b strings.Builder
	b.WriteString("<b>👤 Mening profilim</b>\n\n")
	fmt.Fprintf(&b, "👤 <b>Ism:</b> %s\n", format.HTML(name))
	fmt.Fprintf(&b, "🆔 <b>Foydalanuvchi ID:</b> <code>%s</code>\n", format.HTML(userID))
	if user.Username != "" {
		fmt.Fprintf(&b, "✳️ <b>Username:</b> @%s\n", format.HTML(user.Username))
	}
	if user.PhoneNumber != "" {
		fmt.Fprintf(&b, "📞 <b>Telefon:</b> %s\n", format.HTML(user.PhoneNumber))
	}
	fmt.Fprintf(&b, "📦 <b>Buyurtmalar soni:</b> %d ta\n", count)
	return b.String(), nil
}

// CustomerContact renders a shopper's contact card for the administrator.
func (r *Reporter) CustomerContact(ctx context.Context, userID string) (string, error) {
	user, err := r.users.Lookup(ctx, userID)
	if err != nil {
		return "", err
	}

	first := user.FirstName
	if first == "" {
		first = workflow.UnknownName
	}
	username := user.Username
	if username == "" {
		username = workflow.UnavailableHandle
	}
	chatID := workflow.UnknownName
	if user.ChatID != 0 {
		chatID = fmt.Sprint(user.ChatID)
	}

	var b strings.Builder
	b.WriteString("👤 <b>Mijoz ma'lumotlari:</b>\n\n")
	fmt.Fprintf(&b, "📝 Ism: %s\n", format.HTML(strings.TrimSpace(first+" "+user.LastName)))
	fmt.Fprintf(&b, "🆔 Foydalanuvchi ID: <code>%s</code>\n", format.HTML(userID))
	fmt.Fprintf(&b, "✳️ Username: @%s\n", format.HTML(username))
	if user.PhoneNumber != "" {
		fmt.Fprintf(&b, "📱 Telefon: %s\n", format.HTML(user.PhoneNumber))
	}
	fmt.Fprintf(&b, "📞 Chat ID: <code>%s</code>", chatID)
	return b.String(), nil
}

func (r *Reporter) Help() string {
	return "<b>ℹ️ Yordam</b>\n\n" +
		"🛍️ <b>Buyurtma berish:</b>\n" +
		"1. 'Do'konni ochish' tugmasini bosing\n" +
		"2. O'zingizga mos mahsulotni tanlang\n" +
		"3. O'lchamni belgilang\n" +
		"4. Savatga qo'shing va buyurtma bering\n\n" +
		"📞 <b>Bog'lanish:</b>\n" +
		fmt.Sprintf("Savollaringiz bo'lsa @%s ga yozing\n\n", r.supportUsername) +
		"💳 <b>To'lov:</b>\n" +
		"Buyurtma tasdiqlangandan so'ng to'lov ma'lumotlari yuboriladi"
}

func (r *Reporter) AdminPanel(ctx context.Context) (string, error) {
	users, err := r.count(ctx, models.UsersCollection)
	if err != nil {
		return "", err
	}
	orders, err := r.count(ctx, models.OrdersCollection)
	if err != nil {
		return "", err
	}
	products, err := r.count(ctx, models.ProductsCollection)
	if err != nil {
		return "", err
	}
	since := r.now().Add(-24 * time.Hour)
	recent, err := r.count(ctx, models.OrdersCollection, repository.Where("createdAt", repository.OpGte, since))
	if err != nil {
		return "", err
	}

	return "<b>🔧 Admin Paneli</b>\n\n" +
		"📊 <b>Statistika:</b>\n" +
		fmt.Sprintf("👥 Foydalanuvchilar: <b>%d</b>\n", users) +
		fmt.Sprintf("📦 Jami buyurtmalar: <b>%d</b>\n", orders) +
		fmt.Sprintf("🛍️ Mahsulotlar: <b>%d</b>\n", products) +
		fmt.Sprintf("📈 Oxirgi 24 soat: <b>%d</b> buyurtma\n\n", recent) +
		"<b>📋 Buyruqlar:</b>\n" +
		"/stats - Batafsil statistika\n" +
		"/orders - Oxirgi buyurtmalar\n" +
		"/buyurtmalar - Barcha buyurtmalar", nil
}

func (r *Reporter) Stats(ctx context.Context) (string, error) {
	users, err := r.count(ctx, models.UsersCollection)
	if err != nil {
		return "", err
	}
	orders, err := r.orders(ctx, repository.Query{})
	if err != nil {
		return "", err
	}

	var revenue float64
	completed := 0
	for _, o := range orders {
		revenue += o.TotalPrice
		if o.Status == models.StatusAccepted {
			completed++
		}
	}
	var average float64
	if len(orders) > 0 {
		average = math.Floor(revenue / float64(len(orders)))
	}

	return "<b>📊 Batafsil Statistika</b>\n\n" +
		fmt.Sprintf("💰 Jami daromad: <b>%s</b>\n", format.Sum(revenue)) +
		fmt.Sprintf("✅ Bajarilgan buyurtmalar: <b>%d</b>\n", completed) +
		fmt.Sprintf("📦 Jami buyurtmalar: <b>%d</b>\n", len(orders)) +
		fmt.Sprintf("👥 Faol foydalanuvchilar: <b>%d</b>\n\n", users) +
		fmt.Sprintf("📈 O'rtacha buyurtma: <b>%s</b>", format.Sum(average)), nil
}

func (r *Reporter) RecentOrders(ctx context.Context) (string, error) {
	orders, err := r.orders(ctx, repository.Query{
		OrderBy:    "createdAt",
		Descending: true,
		Limit:      RecentOrdersLimit,
	})
	if err != nil {
		return "", err
	}
	if len(orders) == 0 {
		return "📦 Hozircha buyurtmalar yo'q.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>📦 Oxirgi %d ta buyurtma:</b>\n\n", RecentOrdersLimit)
	for i, o := range orders {
		first := o.UserInfo.FirstName
		if first == "" {
			first = "N/A"
		}
		fmt.Fprintf(&b, "%d. <code>%s</code>\n", i+1, format.HTML(o.ID))
		fmt.Fprintf(&b, "   👤 %s\n", format.HTML(first))
		fmt.Fprintf(&b, "   💰 %s\n", format.Sum(o.TotalPrice))
		fmt.Fprintf(&b, "   📅 %s\n", format.ShortDate(o.CreatedAt, r.loc))
		fmt.Fprintf(&b, "   📊 %s\n\n", o.CurrentStatus())
	}
	return b.String(), nil
}

// AllOrders renders one page of all orders, newest first. page is clamped to
// the available pages.
func (r *Reporter) AllOrders(ctx context.Context, page int) (string, error) {
	total, err := r.count(ctx, models.OrdersCollection)
	if err != nil {
		return "", err
	}
	if total == 0 {
		return "📦 Hozircha buyurtmalar yo'q.", nil
	}

	totalPages := int((total + OrdersPageSize - 1) / OrdersPageSize)
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}
	start := (page - 1) * OrdersPageSize

	orders, err := r.orders(ctx, repository.Query{
		OrderBy:    "createdAt",
		Descending: true,
		Limit:      int64(start + OrdersPageSize),
	})
	if err != nil {
		return "", err
	}
	if start > len(orders) {
		start = len(orders)
	}
	pageOrders := orders[start:]

	var b strings.Builder
	fmt.Fprintf(&b, "<b>📦 Barcha buyurtmalar (%d ta)</b>\n\n", total)
	for i, o := range pageOrders {
		name := strings.TrimSpace(workflow.DisplayFirstName(o.UserInfo) + " " + o.UserInfo.LastName)
		fmt.Fprintf(&b, "<b>%d.</b> <code>%s</code>\n", start+i+1, format.HTML(o.ID))
		fmt.Fprintf(&b, "👤 %s\n", format.HTML(name))
		fmt.Fprintf(&b, "📞 %s\n", format.HTML(workflow.DisplayHandle(o.UserInfo)))
		fmt.Fprintf(&b, "💰 %s\n", format.Sum(o.TotalPrice))
		fmt.Fprintf(&b, "📅 %s\n", format.LongDate(o.CreatedAt, r.loc))
		fmt.Fprintf(&b, "📊 %s\n\n", o.CurrentStatus())
	}
	fmt.Fprintf(&b, "📄 Sahifa %d/%d", page, totalPages)
	return b.String(), nil
}
