package dispatch

import (
	"fmt"
	"strconv"
	"strings"

	"sellerbot/internal/marketplace"
)

const (
	defaultAuthor = "Пользователь"
	defaultBuyer  = "Покупатель"

	maxMessageRunes = 1000
	maxProductRunes = 60
	maxCommentRunes = 300
)

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeHTML(s string) string { return htmlEscaper.Replace(s) }

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// FormatMessage renders a chat message notification.
func FormatMessage(m marketplace.Message) string {
	return "💬 <b>" + escapeHTML(orDefault(m.Author, defaultAuthor)) + "</b>\n\n" +
		escapeHTML(truncate(m.Content, maxMessageRunes))
}

// FormatPrice renders minor units as rubles, or a dash when unknown.
func FormatPrice(minor int64, ok bool) string {
	if !ok {
		return "—"
	}
	return fmt.Sprintf("%.2f ₽", float64(minor)/100)
}

// FormatOrder renders a new order notification. The quantity line only
// appears for multi-item orders.
func FormatOrder(o marketplace.Order) string {
	var b strings.Builder
	b.WriteString("🛒 <b>Новый заказ:</b> ")
	b.WriteString(escapeHTML(truncate(orDefault(o.Product, marketplace.DefaultProductName), maxProductRunes)))
	b.WriteString("\n👤 Покупатель: ")
	b.WriteString(escapeHTML(orDefault(o.Buyer, defaultBuyer)))
	b.WriteString("\n")
	if o.Quantity > 1 {
		b.WriteString("🔢 Количество: ×" + strconv.Itoa(o.Quantity) + "\n")
	}
	b.WriteString("💰 Сумма заказа: " + FormatPrice(o.Price, o.PriceOK))
	return b.String()
}

// Stars renders rating as stars, clamped to 1..5.
func Stars(rating int) string {
	switch {
	case rating < 1:
		rating = 1
	case rating > 5:
		rating = 5
	}
	return strings.Repeat("⭐", rating)
}

// FormatReview renders a new review notification.
func FormatReview(r marketplace.Review) string {
	var b strings.Builder
	b.WriteString("📝 <b>Новый отзыв</b> " + Stars(r.Rating) + "\n")
	b.WriteString("👤 От: " + escapeHTML(orDefault(r.Author, defaultBuyer)) + "\n")
	if r.Comment != "" {
		b.WriteString("\n<i>«" + escapeHTML(truncate(r.Comment, maxCommentRunes)) + "»</i>")
	}
	return b.String()
}
