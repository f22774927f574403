package workflow

import (
	"fmt"
	"strings"

	"github.com/example/modashop/pkg/format"
	"github.com/example/modashop/pkg/messenger"
	"github.com/example/modashop/pkg/models"
)

const (
	UnknownName       = "Noma'lum"
	UnavailableHandle = "Mavjud emas"
)

// DisplayFirstName returns the snapshot first name or the unknown placeholder.
func DisplayFirstName(info models.UserInfo) string {
	if info.FirstName == "" {
		return UnknownName
	}
	return info.FirstName
}

// DisplayHandle returns "@username" or "@" followed by the unavailable
// placeholder.
func DisplayHandle(info models.UserInfo) string {
	if info.Username == "" {
		return "@" + UnavailableHandle
	}
	return "@" + info.Username
}

func adminOrderText(order *models.Order) string {
	name := strings.TrimSpace(DisplayFirstName(order.UserInfo) + " " + order.UserInfo.LastName)

	lines := []string{
		"<b>✨ Yangi buyurtma!</b>\n",
		fmt.Sprintf("<b>🆔 Buyurtma ID:</b> <code>%s</code>", format.HTML(order.ID)),
		fmt.Sprintf("<b>👤 Mijoz:</b> %s", format.HTML(name)),
		fmt.Sprintf("<b>🆔 Foydalanuvchi ID:</b> <code>%s</code>", format.HTML(order.UserInfo.ID)),
		fmt.Sprintf("<b>✳️ Username:</b> %s\n", format.HTML(DisplayHandle(order.UserInfo))),
		"<b>🛒 Mahsulotlar:</b>",
	}
	for i, item := range order.Items {
		lines = append(lines, fmt.Sprintf("%d. %s (%s) - %d dona x %s = %s",
			i+1,
			format.HTML(item.Name),
			format.HTML(item.Size),
			item.Quantity,
			format.Sum(item.Price),
			format.Sum(item.Subtotal()),
		))
	}
	lines = append(lines, fmt.Sprintf("\n<b>💰 Jami summa:</b> %s", format.Sum(order.TotalPrice)))
	return strings.Join(lines, "\n")
}

func adminOrderControls(order *models.Order) messenger.InlineKeyboard {
	return messenger.InlineKeyboard{
		{
			messenger.CallbackButton("✅ Qabul qilindi", AcceptControl(order.ID)),
			messenger.CallbackButton("❌ Bekor qilindi", RejectControl(order.ID)),
		},
		{
			messenger.CallbackButton("📞 Mijoz bilan bog'lanish", ContactControl(order.UserID)),
		},
	}
}

func confirmationText(order *models.Order, supportUsername string) string {
	return "✅ Buyurtmangiz muvaffaqiyatli qabul qilindi!\n\n" +
		fmt.Sprintf("🆔 Buyurtma ID: <code>%s</code>\n", format.HTML(order.ID)) +
		fmt.Sprintf("💰 Jami summa: %s\n\n", format.Sum(order.TotalPrice)) +
		fmt.Sprintf("📞 Buyurtma holati haqida ma'lumot olish uchun @%s ga murojaat qiling.", supportUsername)
}

func statusChangedText(orderID string, status models.OrderStatus) string {
	icon := "❌"
	if status == models.StatusAccepted {
		icon = "✅"
	}
	return fmt.Sprintf("%s Buyurtmangiz holati yangilandi!\n\n", icon) +
		fmt.Sprintf("🆔 Buyurtma ID: <code>%s</code>\n", format.HTML(orderID)) +
		fmt.Sprintf("📊 Yangi holat: %s", status)
}

// TransitionAck is the administrator's acknowledgment after a transition.
func TransitionAck(status models.OrderStatus) string {
	return fmt.Sprintf("✅ Buyurtma holati '%s' ga o'zgartirildi!", status)
}
