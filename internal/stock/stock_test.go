package stock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"sellerbot/internal/eventbus"
	"sellerbot/internal/marketplace"
	"sellerbot/internal/storage"
	logx "sellerbot/pkg/logx"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestQueueFIFO(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(storage.NewMemory())

	n, err := q.BulkImport(ctx, "k", []string{"A", "B"})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	for _, want := range []string{"A", "B"} {
		v, ok, err := q.Pop(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, v)
	}
	_, ok, err := q.Pop(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestQueueEmptyImportAndBlankProduct(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(storage.NewMemory())
	n, err := q.BulkImport(ctx, "k", nil)
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = q.BulkImport(ctx, "  ", []string{"x"})
	require.True(t, errors.Is(err, ErrEmptyProduct))
	_, _, err = q.Pop(ctx, "")
	require.ErrorIs(t, err, ErrEmptyProduct)
}

func TestQueueConcurrentPopAtMostOnce(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.New()
	events, unsubscribe := bus.Subscribe(64)
	defer unsubscribe()

	q := NewQueue(storage.NewMemory(), WithBus(bus))
	_, err := q.BulkImport(ctx, "k", []string{"X"})
	require.NoError(t, err)

	var got atomic.Int32
	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			v, ok, err := q.Pop(ctx, "k")
			if ok {
				if v != "X" {
					return errors.New("unexpected value " + v)
				}
				got.Add(1)
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	require.EqualValues(t, 1, got.Load())

	var popped, empty int
	for len(events) > 0 {
		switch (<-events).Type {
		case eventbus.TopicStockPopped:
			popped++
		case eventbus.TopicStockEmpty:
			empty++
		}
	}
	require.Equal(t, 1, popped)
	require.Equal(t, 1, empty)
}

func TestQueueListAndDelete(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(storage.NewMemory())
	_, _ = q.BulkImport(ctx, "b", []string{"1", "2"})
	_, _ = q.BulkImport(ctx, "a", []string{"x"})

	list, err := q.ListProducts(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff([]storage.ProductCount{{Product: "a", Count: 1}, {Product: "b", Count: 2}}, list); diff != "" {
		t.Fatalf("ListProducts mismatch (-want +got):\n%s", diff)
	}
	n, err := q.DeleteAll(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	c, _ := q.Count(ctx, "b")
	require.Zero(t, c)
}

func TestParseImport(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"plain lines", "A\n  B  \n\nC", []string{"A", "B", "C"}},
		{"count expands", "key:3", []string{"key", "key", "key"}},
		{"zero count", "key:0\nother", []string{"other"}},
		{"negative count", "key:-2", nil},
		{"login password stays whole", "user:secret", []string{"user:secret"}},
		{"last colon decides", "host:port:2", []string{"host:port", "host:port"}},
		{"empty value keeps line", ":5", []string{":5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseImport(strings.NewReader(tt.in))
			if err != nil {
				t.Fatalf("ParseImport: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

type fakeSender struct {
	mu   sync.Mutex
	sent map[string][]string
	err  error
}

func (f *fakeSender) SendMessage(_ context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.sent == nil {
		f.sent = map[string][]string{}
	}
	f.sent[chatID] = append(f.sent[chatID], text)
	return nil
}

type fakeReporter struct{ reports []string }

func (f *fakeReporter) Report(_ context.Context, text string) { f.reports = append(f.reports, text) }

func TestDelivererSendsPoppedValues(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(storage.NewMemory())
	_, _ = q.BulkImport(ctx, "Key", []string{"K1", "K2", "K3"})
	s := &fakeSender{}
	r := &fakeReporter{}
	d := NewDeliverer(q, s, r, logx.Nop())

	out := d.Deliver(ctx, marketplace.Order{ID: "o1", ChatID: "c1", Product: "Key", Quantity: 2})
	require.True(t, out.Delivered)
	require.False(t, out.Short)
	require.Equal(t, []string{"K1", "K2"}, out.Values)
	require.Len(t, s.sent["c1"], 1)
	require.Contains(t, s.sent["c1"][0], "K1\nK2")
	require.Empty(t, r.reports)
}

func TestDelivererShortageAndFailures(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(storage.NewMemory())
	_, _ = q.BulkImport(ctx, "Key", []string{"K1"})
	r := &fakeReporter{}

	// No chat: nothing is popped.
	d := NewDeliverer(q, &fakeSender{}, r, logx.Nop())
	out := d.Deliver(ctx, marketplace.Order{ID: "o0", Product: "Key", Quantity: 1})
	require.Empty(t, out.Values)
	c, _ := q.Count(ctx, "Key")
	require.Equal(t, 1, c)

	// Shortage: one of two delivered, operators told.
	out = d.Deliver(ctx, marketplace.Order{ID: "o1", ChatID: "c", Product: "Key", Quantity: 2})
	require.True(t, out.Delivered)
	require.True(t, out.Short)
	require.Len(t, r.reports, 1)

	// Send failure: popped value appears in the report.
	_, _ = q.BulkImport(ctx, "Key", []string{"K2"})
	d = NewDeliverer(q, &fakeSender{err: errors.New("offline")}, r, logx.Nop())
	out = d.Deliver(ctx, marketplace.Order{ID: "o2", ChatID: "c", Product: "Key"})
	require.False(t, out.Delivered)
	require.Contains(t, r.reports[len(r.reports)-1], "K2")

	// Unknown product: not an auto-delivery item, no report.
	before := len(r.reports)
	d.Deliver(ctx, marketplace.Order{ID: "o3", ChatID: "c", Product: "Other"})
	require.Len(t, r.reports, before)
}

func TestDelivererReportsSoldOutProduct(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(storage.NewMemory())
	_, _ = q.BulkImport(ctx, "Key", []string{"K1"})
	r := &fakeReporter{}
	d := NewDeliverer(q, &fakeSender{}, r, logx.Nop())

	require.True(t, d.Deliver(ctx, marketplace.Order{ID: "o1", ChatID: "c", Product: "Key"}).Delivered)
	require.Empty(t, r.reports)

	out := d.Deliver(ctx, marketplace.Order{ID: "o2", ChatID: "c", Product: "Key"})
	require.False(t, out.Delivered)
	require.True(t, out.Short)
	require.Empty(t, out.Values)
	require.Len(t, r.reports, 1)
	require.Contains(t, r.reports[0], "закончился")
	require.Contains(t, r.reports[0], "#o2")

	// Clearing a product forgets it: later orders are not auto-delivery items.
	_, err := q.DeleteAll(ctx, "Key")
	require.NoError(t, err)
	known, err := q.Known(ctx, "Key")
	require.NoError(t, err)
	require.False(t, known)
	d.Deliver(ctx, marketplace.Order{ID: "o3", ChatID: "c", Product: "Key"})
	require.Len(t, r.reports, 1)
}
