package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	logx "sellerbot/pkg/logx"

	"github.com/cockroachdb/pebble"
)

// Key layout:
//
//	k/<set>                      key set, JSON array
//	s/<product>\x00<seq:020d>    one stock row, JSON {value, created_at}
//	m/seq                        last allocated stock sequence
const (
	pebbleKeySetPrefix = "k/"
	pebbleStockPrefix  = "s/"
	pebbleSeqKey       = "m/seq"
)

type pebbleRow struct {
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

type pebbleStore struct {
	log logx.Logger

	mu     sync.Mutex
	db     *pebble.DB
	seq    int64
	closed bool
}

func openPebble(cfg Config, log logx.Logger) (Ledger, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for pebble driver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	st := &pebbleStore{db: db, log: log}
	seq, err := st.get([]byte(pebbleSeqKey))
	if err != nil && !errors.Is(err, pebble.ErrNotFound) {
		_ = db.Close()
		return nil, err
	}
	if len(seq) > 0 {
		n, perr := strconv.ParseInt(string(seq), 10, 64)
		if perr != nil {
			log.Warn("stock sequence unreadable; rescanning", logx.Err(perr))
		}
		st.seq = n
	}
	if st.seq == 0 {
		st.seq = st.maxSeqLocked()
	}
	return st, nil
}

func (s *pebbleStore) get(key []byte) ([]byte, error) {
	v, closer, err := s.db.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *pebbleStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *pebbleStore) LoadKeys(_ context.Context, set string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	b, err := s.get([]byte(pebbleKeySetPrefix + set))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var keys []string
	if err := json.Unmarshal(b, &keys); err != nil {
		return nil, fmt.Errorf("decode key set %q: %w", set, err)
	}
	return keys, nil
}

func (s *pebbleStore) ReplaceKeys(_ context.Context, set string, keys []string) error {
	if keys == nil {
		keys = []string{}
	}
	b, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.Set([]byte(pebbleKeySetPrefix+set), b, pebble.Sync)
}

func (s *pebbleStore) AppendStock(_ context.Context, product string, values []string, at time.Time) (int, error) {
	if len(values) == 0 {
		return 0, nil
	}
	if strings.ContainsRune(product, 0) {
		return 0, errors.New("product key contains NUL")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	seq := s.seq
	for _, v := range values {
		seq++
		b, err := json.Marshal(pebbleRow{Value: v, CreatedAt: at.UTC()})
		if err != nil {
			return 0, err
		}
		if err := batch.Set(stockKey(product, seq), b, nil); err != nil {
			return 0, err
		}
	}
	if err := batch.Set([]byte(pebbleSeqKey), []byte(strconv.FormatInt(seq, 10)), nil); err != nil {
		return 0, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, err
	}
	s.seq = seq
	return len(values), nil
}

func (s *pebbleStore) PopStock(_ context.Context, product string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false, ErrClosed
	}
	lower, upper := productBounds(product)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return "", false, err
	}
	if !it.First() {
		return "", false, it.Close()
	}
	key := append([]byte(nil), it.Key()...)
	var row pebbleRow
	derr := json.Unmarshal(it.Value(), &row)
	if err := it.Close(); err != nil {
		return "", false, err
	}
	if derr != nil {
		return "", false, fmt.Errorf("decode stock row: %w", derr)
	}
	if err := s.db.Delete(key, pebble.Sync); err != nil {
		return "", false, err
	}
	return row.Value, true, nil
}

func (s *pebbleStore) CountStock(_ context.Context, product string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	lower, upper := productBounds(product)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return 0, err
	}
	n := 0
	for ok := it.First(); ok; ok = it.Next() {
		n++
	}
	return n, it.Close()
}

func (s *pebbleStore) ListStock(context.Context) ([]ProductCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(pebbleStockPrefix),
		UpperBound: prefixEnd([]byte(pebbleStockPrefix)),
	})
	if err != nil {
		return nil, err
	}
	// Keys sort by product first, so equal products are adjacent.
	out := []ProductCount{}
	for ok := it.First(); ok; ok = it.Next() {
		product, _, perr := splitStockKey(it.Key())
		if perr != nil {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Product == product {
			out[n-1].Count++
			continue
		}
		out = append(out, ProductCount{Product: product, Count: 1})
	}
	return out, it.Close()
}

func (s *pebbleStore) DeleteStock(_ context.Context, product string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	lower, upper := productBounds(product)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return 0, err
	}
	n := 0
	for ok := it.First(); ok; ok = it.Next() {
		n++
	}
	if err := it.Close(); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.db.DeleteRange(lower, upper, pebble.Sync); err != nil {
		return 0, err
	}
	return n, nil
}

// maxSeqLocked recovers the sequence from stored rows when m/seq is missing.
func (s *pebbleStore) maxSeqLocked() int64 {
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(pebbleStockPrefix),
		UpperBound: prefixEnd([]byte(pebbleStockPrefix)),
	})
	if err != nil {
		return 0
	}
	defer it.Close()
	var top int64
	for ok := it.First(); ok; ok = it.Next() {
		if _, seq, err := splitStockKey(it.Key()); err == nil && seq > top {
			top = seq
		}
	}
	return top
}

func stockKey(product string, seq int64) []byte {
	return []byte(fmt.Sprintf("%s%s\x00%020d", pebbleStockPrefix, product, seq))
}

func productBounds(product string) (lower, upper []byte) {
	lower = []byte(pebbleStockPrefix + product + "\x00")
	return lower, prefixEnd(lower)
}

func splitStockKey(k []byte) (string, int64, error) {
	rest := strings.TrimPrefix(string(k), pebbleStockPrefix)
	i := strings.LastIndexByte(rest, 0)
	if i < 0 {
		return "", 0, fmt.Errorf("malformed stock key %q", k)
	}
	seq, err := strconv.ParseInt(rest[i+1:], 10, 64)
	if err != nil {
		return "", 0, err
	}
	return rest[:i], seq, nil
}

// prefixEnd returns the smallest key greater than every key with prefix p.
func prefixEnd(p []byte) []byte {
	end := append([]byte(nil), p...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
