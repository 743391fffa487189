// Package status is the compiled-in operator plugin: bot health and stock
// management commands.
package status

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"unicode/utf8"

	"sellerbot/internal/dispatch"
	"sellerbot/internal/notifier"
	"sellerbot/internal/plugin"
	"sellerbot/internal/stock"
	"sellerbot/internal/storage"
	"sellerbot/pkg/pluginapi"
)

const Key = "status"

// Source reports dispatcher counters.
type Source interface {
	Stats() dispatch.StatsSnapshot
}

// Inventory is the slice of the stock queue the commands use.
type Inventory interface {
	BulkImport(ctx context.Context, product string, values []string) (int, error)
	Count(ctx context.Context, product string) (int, error)
	ListProducts(ctx context.Context) ([]storage.ProductCount, error)
	DeleteAll(ctx context.Context, product string) (int, error)
}

// History is the notifier's record of recently delivered notifications.
type History interface {
	Snapshot() []notifier.HistoryItem
}

const (
	recentDefault = 10
	recentMax     = 50
)

type Plugin struct {
	src  Source
	inv  Inventory
	hist History
}

// Module wires the plugin as an Attach entry point. hist may be nil; /recent
// then reports that no history is kept.
func Module(src Source, inv Inventory, hist History) plugin.Module {
	p := &Plugin{src: src, inv: inv, hist: hist}
	return plugin.Module{
		Key: Key,
		Info: pluginapi.Info{
			Name:        "Статус",
			Version:     "1.0.0",
			Description: "Состояние бота и управление складом",
		},
		Attach: p.attach,
	}
}

func (p *Plugin) attach(r pluginapi.Router, _ pluginapi.Bot, _ *pluginapi.Context) error {
	r.Command("status", "Состояние бота", p.cmdStatus)
	r.Command("recent", "Последние уведомления: /recent [N]", p.cmdRecent)
	r.Command("stock", "Остатки склада", p.cmdStock)
	r.Command("stock_add", "Добавить товары: /stock_add <товар> и значения построчно", p.cmdStockAdd)
	r.Command("stock_clear", "Очистить товар", p.cmdStockClear)
	r.Callback("stock:count:", p.cbCount)
	return nil
}

func (p *Plugin) cmdStatus(ctx context.Context, _ pluginapi.Request) (string, error) {
	s := p.src.Stats()
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var b strings.Builder
	b.WriteString("📊 Статус\n")
	b.WriteString("━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&b, "⏱ Аптайм: %s\n", dispatch.FormatUptime(s.Uptime))
	fmt.Fprintf(&b, "🛒 Заказов: %d\n", s.OrdersProcessed)
	fmt.Fprintf(&b, "💬 Сообщений: %d\n", s.MessagesNotified)
	fmt.Fprintf(&b, "📝 Отзывов: %d\n", s.ReviewsProcessed)
	fmt.Fprintf(&b, "🤖 Автоответов: %d\n", s.AutoRepliesSent)
	fmt.Fprintf(&b, "📦 Выдач: %d\n", s.Deliveries)
	fmt.Fprintf(&b, "🔁 Дубликатов: %d, подавлено при старте: %d\n", s.Duplicates, s.Suppressed)

	items, err := p.inv.ListProducts(ctx)
	if err != nil {
		fmt.Fprintf(&b, "🗄 Склад: недоступен (%v)\n", err)
	} else {
		total := 0
		for _, it := range items {
			total += it.Count
		}
		fmt.Fprintf(&b, "🗄 Склад: %d шт. в %d товарах\n", total, len(items))
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "goroutines: %d\n", runtime.NumGoroutine())
	fmt.Fprintf(&b, "heap: %s, sys: %s, gc: %d", fmtBytes(m.HeapAlloc), fmtBytes(m.Sys), m.NumGC)
	return b.String(), nil
}

var tagStripper = strings.NewReplacer("<b>", "", "</b>", "", "<i>", "", "</i>", "", "&lt;", "<", "&gt;", ">", "&amp;", "&")

// cmdRecent lists the newest delivered notifications, newest first.
func (p *Plugin) cmdRecent(_ context.Context, req pluginapi.Request) (string, error) {
	if p.hist == nil {
		return "История уведомлений не ведётся", nil
	}
	n := recentDefault
	if len(req.Args) > 0 {
		v, err := strconv.Atoi(req.Args[0])
		if err != nil || v <= 0 {
			return "Использование: /recent [N]", nil
		}
		n = min(v, recentMax)
	}
	items := p.hist.Snapshot()
	if len(items) == 0 {
		return "Уведомлений пока не было", nil
	}
	var b strings.Builder
	b.WriteString("🕘 Последние уведомления:")
	for i := len(items) - 1; i >= 0 && len(items)-i <= n; i-- {
		it := items[i]
		kind := it.Kind
		if kind == "" {
			kind = "report"
		}
		line, _, _ := strings.Cut(tagStripper.Replace(it.Text), "\n")
		fmt.Fprintf(&b, "\n%s [%s] %s", it.At.Format("02.01 15:04"), kind, clip(line, 80))
	}
	return b.String(), nil
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}

func (p *Plugin) cmdStock(ctx context.Context, req pluginapi.Request) (string, error) {
	if len(req.Args) > 0 {
		product := strings.Join(req.Args, " ")
		n, err := p.inv.Count(ctx, product)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("📦 %s: %d шт.", product, n), nil
	}

	items, err := p.inv.ListProducts(ctx)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "🗄 Склад пуст", nil
	}
	var b strings.Builder
	b.WriteString("🗄 Склад:")
	for _, it := range items {
		fmt.Fprintf(&b, "\n• %s: %d шт.", it.Product, it.Count)
	}
	return b.String(), nil
}

// cmdStockAdd takes the product from the command line and one value per
// following line. "value:count" lines expand like a file import.
func (p *Plugin) cmdStockAdd(ctx context.Context, req pluginapi.Request) (string, error) {
	head, body, _ := strings.Cut(req.Text, "\n")
	fields := strings.Fields(head)
	if len(fields) < 2 {
		return "Использование: /stock_add <товар>, затем значения с новой строки", nil
	}
	product := strings.Join(fields[1:], " ")
	values := stock.ParseImportString(body)
	if len(values) == 0 {
		return "Нет значений для добавления", nil
	}
	n, err := p.inv.BulkImport(ctx, product, values)
	if err != nil {
		return "", err
	}
	total, err := p.inv.Count(ctx, product)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ %s: добавлено %d, всего %d шт.", product, n, total), nil
}

func (p *Plugin) cmdStockClear(ctx context.Context, req pluginapi.Request) (string, error) {
	if len(req.Args) == 0 {
		return "Использование: /stock_clear <товар>", nil
	}
	product := strings.Join(req.Args, " ")
	n, err := p.inv.DeleteAll(ctx, product)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("🗑 %s: удалено %d шт.", product, n), nil
}

func (p *Plugin) cbCount(ctx context.Context, req pluginapi.CallbackRequest) (string, error) {
	n, err := p.inv.Count(ctx, req.Arg)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s: %d шт.", req.Arg, n), nil
}

func fmtBytes(n uint64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case n >= GB:
		return fmt.Sprintf("%.1fGB", float64(n)/GB)
	case n >= MB:
		return fmt.Sprintf("%.1fMB", float64(n)/MB)
	case n >= KB:
		return fmt.Sprintf("%.1fKB", float64(n)/KB)
	default:
		return fmt.Sprintf("%dB", n)
	}
}
