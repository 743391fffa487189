package digest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"sellerbot/internal/dispatch"
	"sellerbot/internal/storage"
	logx "sellerbot/pkg/logx"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stats struct{}

func (stats) Stats() dispatch.StatsSnapshot {
	return dispatch.StatsSnapshot{Uptime: 90 * time.Minute, OrdersProcessed: 3, MessagesNotified: 10, AutoRepliesSent: 2}
}

type inventory struct {
	items []storage.ProductCount
	err   error
}

func (i inventory) ListProducts(context.Context) ([]storage.ProductCount, error) {
	return i.items, i.err
}

type reports struct {
	mu   sync.Mutex
	text []string
}

func (r *reports) Report(_ context.Context, text string) {
	r.mu.Lock()
	r.text = append(r.text, text)
	r.mu.Unlock()
}

func (r *reports) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.text)
}

func TestCompose(t *testing.T) {
	inv := inventory{items: []storage.ProductCount{{Product: "Gift card", Count: 2}, {Product: "Keys", Count: 40}}}
	s := New(Config{}, stats{}, inv, &reports{}, logx.Nop())
	want := "📈 Сводка\n" +
		"⏱ Аптайм: 1ч 30м\n" +
		"🛒 Заказов: 3\n" +
		"💬 Сообщений: 10\n" +
		"📝 Отзывов: 0\n" +
		"🤖 Автоответов: 2\n" +
		"📦 Выдач: 0\n" +
		"🗄 Склад:\n• Gift card: 2 ⚠️\n• Keys: 40"
	require.Equal(t, want, s.Compose(context.Background()))

	s = New(Config{}, stats{}, inventory{err: errors.New("db down")}, &reports{}, logx.Nop())
	require.Contains(t, s.Compose(context.Background()), "🗄 Склад: недоступен")
}

func TestValidateSpec(t *testing.T) {
	for _, ok := range []string{"0 9 * * *", "*/30 * * * * *", "@daily", "@every 1h"} {
		require.NoError(t, ValidateSpec(ok), ok)
	}
	for _, bad := range []string{"", "61 * * * *", "every day"} {
		require.Error(t, ValidateSpec(bad), bad)
	}
}

func TestScheduleRunsAndApply(t *testing.T) {
	out := &reports{}
	s := New(Config{Enabled: true, Schedule: "* * * * * *", Location: time.UTC}, stats{}, inventory{}, out, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	require.False(t, s.Next().IsZero())

	require.Eventually(t, func() bool { return out.count() > 0 }, 3*time.Second, 20*time.Millisecond)

	require.Error(t, s.Apply(Config{Enabled: true, Schedule: "nope"}))
	require.False(t, s.Next().IsZero())

	require.NoError(t, s.Apply(Config{Enabled: false}))
	require.True(t, s.Next().IsZero())

	s.Stop(context.Background())
}
