// Package stock holds the per-product auto-delivery queue.
package stock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"sellerbot/internal/eventbus"
	"sellerbot/internal/storage"
	logx "sellerbot/pkg/logx"
)

var ErrEmptyProduct = errors.New("stock: product key is empty")

// knownSet is the ledger key set listing every product that was ever
// imported and not cleared since.
const knownSet = "stock_products"

// Queue is a FIFO of deliverable values per product.
//
// Every operation runs inside one mutex section spanning the ledger's
// read-modify-write, so concurrent Pop calls in this process never hand out
// the same value. Across processes the ledger driver is responsible
// (postgres uses SKIP LOCKED).
type Queue struct {
	ledger storage.Ledger
	bus    eventbus.Bus
	log    logx.Logger
	now    func() time.Time

	mu sync.Mutex
}

type Option func(*Queue)

func WithBus(b eventbus.Bus) Option { return func(q *Queue) { q.bus = b } }

func WithLogger(l logx.Logger) Option { return func(q *Queue) { q.log = l } }

func WithClock(now func() time.Time) Option { return func(q *Queue) { q.now = now } }

func NewQueue(ledger storage.Ledger, opts ...Option) *Queue {
	q := &Queue{ledger: ledger, bus: eventbus.Nop{}, now: time.Now}
	for _, o := range opts {
		o(q)
	}
	q.log = q.log.With(logx.String("comp", "stock"))
	return q
}

func normProduct(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", ErrEmptyProduct
	}
	return p, nil
}

// BulkImport appends values in order. Empty input adds nothing and returns 0.
func (q *Queue) BulkImport(ctx context.Context, product string, values []string) (int, error) {
	product, err := normProduct(product)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	n, err := q.ledger.AppendStock(ctx, product, values, q.now())
	if err != nil {
		return 0, err
	}
	if err := q.rememberLocked(ctx, product, true); err != nil {
		q.log.Warn("known products update failed", logx.String("product", product), logx.Err(err))
	}
	q.log.Info("stock imported", logx.String("product", product), logx.Int("count", n))
	return n, nil
}

// Known reports whether product was ever imported and not cleared since. A
// known product with zero count is sold out rather than not for auto-delivery.
func (q *Queue) Known(ctx context.Context, product string) (bool, error) {
	product, err := normProduct(product)
	if err != nil {
		return false, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	keys, err := q.ledger.LoadKeys(ctx, knownSet)
	if err != nil {
		return false, err
	}
	for _, k := range keys {
		if k == product {
			return true, nil
		}
	}
	return false, nil
}

func (q *Queue) rememberLocked(ctx context.Context, product string, known bool) error {
	keys, err := q.ledger.LoadKeys(ctx, knownSet)
	if err != nil {
		return err
	}
	out := make([]string, 0, len(keys)+1)
	found := false
	for _, k := range keys {
		if k == product {
			found = true
			if !known {
				continue
			}
		}
		out = append(out, k)
	}
	if found == known {
		return nil
	}
	if known {
		out = append(out, product)
	}
	return q.ledger.ReplaceKeys(ctx, knownSet, out)
}

// Pop removes and returns the oldest value for product. ok is false when
// nothing is left.
func (q *Queue) Pop(ctx context.Context, product string) (value string, ok bool, err error) {
	product, err = normProduct(product)
	if err != nil {
		return "", false, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	value, ok, err = q.ledger.PopStock(ctx, product)
	if err != nil {
		return "", false, err
	}
	if ok {
		q.bus.Publish(eventbus.Event{Type: eventbus.TopicStockPopped, Kind: product})
	} else {
		q.bus.Publish(eventbus.Event{Type: eventbus.TopicStockEmpty, Kind: product})
	}
	return value, ok, nil
}

func (q *Queue) Count(ctx context.Context, product string) (int, error) {
	product, err := normProduct(product)
	if err != nil {
		return 0, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ledger.CountStock(ctx, product)
}

// ListProducts returns remaining counts grouped by product, ordered by name.
func (q *Queue) ListProducts(ctx context.Context) ([]storage.ProductCount, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ledger.ListStock(ctx)
}

func (q *Queue) DeleteAll(ctx context.Context, product string) (int, error) {
	product, err := normProduct(product)
	if err != nil {
		return 0, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	n, err := q.ledger.DeleteStock(ctx, product)
	if err != nil {
		return 0, err
	}
	if err := q.rememberLocked(ctx, product, false); err != nil {
		q.log.Warn("known products update failed", logx.String("product", product), logx.Err(err))
	}
	if n > 0 {
		q.log.Info("stock cleared", logx.String("product", product), logx.Int("removed", n))
	}
	return n, nil
}
