package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

type stockRow struct {
	ID        int64     `json:"id"`
	Product   string    `json:"product"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// stockTable is the in-memory form of the autodelivery table.
// Rows stay sorted by ID, which is the arrival order.
type stockTable struct {
	NextID int64      `json:"next_id"`
	Rows   []stockRow `json:"rows"`
}

func (t *stockTable) append(product string, values []string, at time.Time) []stockRow {
	added := make([]stockRow, 0, len(values))
	for _, v := range values {
		t.NextID++
		r := stockRow{ID: t.NextID, Product: product, Value: v, CreatedAt: at}
		t.Rows = append(t.Rows, r)
		added = append(added, r)
	}
	return added
}

func (t *stockTable) oldest(product string) (stockRow, bool) {
	for _, r := range t.Rows {
		if r.Product == product {
			return r, true
		}
	}
	return stockRow{}, false
}

func (t *stockTable) remove(id int64) {
	for i, r := range t.Rows {
		if r.ID == id {
			t.Rows = append(t.Rows[:i], t.Rows[i+1:]...)
			return
		}
	}
}

func (t *stockTable) removeProduct(product string) int {
	kept := t.Rows[:0]
	n := 0
	for _, r := range t.Rows {
		if r.Product == product {
			n++
			continue
		}
		kept = append(kept, r)
	}
	t.Rows = kept
	return n
}

// removeProductUpTo removes rows of product with ID <= maxID.
func (t *stockTable) removeProductUpTo(product string, maxID int64) {
	kept := t.Rows[:0]
	for _, r := range t.Rows {
		if r.Product == product && r.ID <= maxID {
			continue
		}
		kept = append(kept, r)
	}
	t.Rows = kept
}

func (t *stockTable) count(product string) int {
	n := 0
	for _, r := range t.Rows {
		if r.Product == product {
			n++
		}
	}
	return n
}

func (t *stockTable) list() []ProductCount {
	counts := map[string]int{}
	for _, r := range t.Rows {
		counts[r.Product]++
	}
	out := make([]ProductCount, 0, len(counts))
	for p, n := range counts {
		out = append(out, ProductCount{Product: p, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Product < out[j].Product })
	return out
}

// Memory is a process-local ledger. Nothing survives a restart.
type Memory struct {
	mu     sync.Mutex
	keys   map[string][]string
	stock  stockTable
	closed bool
}

func NewMemory() *Memory {
	return &Memory{keys: map[string][]string{}}
}

func (m *Memory) LoadKeys(_ context.Context, set string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	keys, ok := m.keys[set]
	if !ok {
		return nil, nil
	}
	return append([]string(nil), keys...), nil
}

func (m *Memory) ReplaceKeys(_ context.Context, set string, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.keys[set] = append([]string(nil), keys...)
	return nil
}

func (m *Memory) AppendStock(_ context.Context, product string, values []string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	return len(m.stock.append(product, values, at)), nil
}

func (m *Memory) PopStock(_ context.Context, product string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", false, ErrClosed
	}
	r, ok := m.stock.oldest(product)
	if !ok {
		return "", false, nil
	}
	m.stock.remove(r.ID)
	return r.Value, true, nil
}

func (m *Memory) CountStock(_ context.Context, product string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	return m.stock.count(product), nil
}

func (m *Memory) ListStock(context.Context) ([]ProductCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.stock.list(), nil
}

func (m *Memory) DeleteStock(_ context.Context, product string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	return m.stock.removeProduct(product), nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
