package status

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sellerbot/internal/dispatch"
	"sellerbot/internal/notifier"
	"sellerbot/internal/plugin"
	"sellerbot/internal/stock"
	"sellerbot/internal/storage"
	kit "sellerbot/internal/transport"
	logx "sellerbot/pkg/logx"
)

type fixedStats struct{ s dispatch.StatsSnapshot }

type fixedHistory []notifier.HistoryItem

func (h fixedHistory) Snapshot() []notifier.HistoryItem { return h }

func (f fixedStats) Stats() dispatch.StatsSnapshot { return f.s }

type recorder struct {
	texts   []string
	answers []string
}

func (r *recorder) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	r.texts = append(r.texts, text)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (r *recorder) AnswerCallback(_ context.Context, _ string, text string) error {
	r.answers = append(r.answers, text)
	return nil
}

func setup(t *testing.T, hist ...History) (*plugin.Runtime, *stock.Queue, *recorder) {
	t.Helper()
	q := stock.NewQueue(storage.NewMemory())
	src := fixedStats{dispatch.StatsSnapshot{Uptime: 3*time.Hour + 7*time.Minute, OrdersProcessed: 4, Duplicates: 2}}
	var h History
	if len(hist) > 0 {
		h = hist[0]
	}
	rt := plugin.New(plugin.Deps{Admins: []int64{1}, Log: logx.Nop()}, plugin.WithModules(Module(src, q, h)))
	n, err := rt.Load(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	return rt, q, &recorder{}
}

func run(rt *plugin.Runtime, out *recorder, text string) string {
	rt.HandleUpdate(context.Background(), kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 1, FromID: 1, Text: text}}, out)
	if len(out.texts) == 0 {
		return ""
	}
	return out.texts[len(out.texts)-1]
}

func TestStatusReport(t *testing.T) {
	rt, q, out := setup(t)
	_, err := q.BulkImport(context.Background(), "keys", []string{"a", "b"})
	require.NoError(t, err)

	got := run(rt, out, "/status")
	require.Contains(t, got, "⏱ Аптайм: 3ч 7м")
	require.Contains(t, got, "🛒 Заказов: 4")
	require.Contains(t, got, "🔁 Дубликатов: 2")
	require.Contains(t, got, "🗄 Склад: 2 шт. в 1 товарах")
	require.Contains(t, got, "goroutines: ")
}

func TestStockCommands(t *testing.T) {
	rt, q, out := setup(t)
	ctx := context.Background()

	require.Equal(t, "🗄 Склад пуст", run(rt, out, "/stock"))
	require.Equal(t, "✅ Gift card: добавлено 4, всего 4 шт.", run(rt, out, "/stock_add Gift card\nA\nB:3\n\n"))
	require.Equal(t, "📦 Gift card: 4 шт.", run(rt, out, "/stock Gift card"))
	require.True(t, strings.HasPrefix(run(rt, out, "/stock_add"), "Использование"))

	v, ok, err := q.Pop(ctx, "Gift card")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "A", v)

	require.Equal(t, "🗄 Склад:\n• Gift card: 3 шт.", run(rt, out, "/stock"))
	require.Equal(t, "🗑 Gift card: удалено 3 шт.", run(rt, out, "/stock_clear Gift card"))

	rt.HandleUpdate(ctx, kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "x", FromID: 1, Data: "stock:count:Gift card"}}, out)
	require.Equal(t, []string{"Gift card: 0 шт."}, out.answers)
}

func TestRecentNotifications(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	hist := fixedHistory{
		{At: at, Kind: "message", Text: "💬 <b>ann</b>\n\nhello"},
		{At: at.Add(time.Minute), Kind: "order", Text: "🛒 <b>Новый заказ:</b> Key &amp; Co\n👤 Покупатель: bob"},
		{At: at.Add(2 * time.Minute), Text: "⚠️ Автовыдача: товар «Key» закончился (заказ #o2)."},
	}
	rt, _, out := setup(t, hist)

	got := run(rt, out, "/recent")
	require.Equal(t, "🕘 Последние уведомления:"+
		"\n01.03 12:32 [report] ⚠️ Автовыдача: товар «Key» закончился (заказ #o2)."+
		"\n01.03 12:31 [order] 🛒 Новый заказ: Key & Co"+
		"\n01.03 12:30 [message] 💬 ann", got)

	got = run(rt, out, "/recent 1")
	require.NotContains(t, got, "[order]")
	require.Contains(t, got, "[report]")
	require.Equal(t, "Использование: /recent [N]", run(rt, out, "/recent x"))

	rt, _, out = setup(t)
	require.Equal(t, "История уведомлений не ведётся", run(rt, out, "/recent"))
}
