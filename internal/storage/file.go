package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	logx "sellerbot/pkg/logx"
)

// fileStore is a dependency-free ledger.
//
// Files:
//   - <prefix>.<set>.json             (key set, JSON array, replaced atomically)
//   - <prefix>.stock.snapshot.json    (periodic snapshot of the stock table)
//   - <prefix>.stock.journal.jsonl    (append-only journal, fsynced per call)
//   - <prefix>.lock                   (exclusive flock held until Close)
//
// The journal is compacted into the snapshot every compactEvery records.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	prefix       string
	snapshotPath string
	journal      *os.File
	lock         *os.File
	stock        stockTable
	writes       int
	compactEvery int
}

type journalRecord struct {
	Op      string     `json:"op"` // add | pop | del
	Rows    []stockRow `json:"rows,omitempty"`
	ID      int64      `json:"id,omitempty"`
	Product string     `json:"product,omitempty"`
}

var setNameRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

func openFile(cfg Config, log logx.Logger) (Ledger, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	lock, err := lockFile(prefix + ".lock")
	if err != nil {
		return nil, err
	}

	snapPath := prefix + ".stock.snapshot.json"
	journalPath := prefix + ".stock.journal.jsonl"

	var table stockTable
	if err := loadSnapshot(snapPath, &table); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("stock snapshot unreadable; starting from journal only", logx.String("path", snapPath), logx.Err(err))
		table = stockTable{}
	}
	if err := replayJournal(journalPath, &table); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("stock journal replay stopped early", logx.String("path", journalPath), logx.Err(err))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = lock.Close()
		return nil, err
	}
	return &fileStore{
		log:          log,
		prefix:       prefix,
		snapshotPath: snapPath,
		journal:      jf,
		lock:         lock,
		stock:        table,
		compactEvery: 500,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.journal.Close()
	s.journal = nil
	if lerr := s.lock.Close(); err == nil {
		err = lerr
	}
	s.lock = nil
	return err
}

func (s *fileStore) keySetPath(set string) (string, error) {
	if !setNameRe.MatchString(set) {
		return "", fmt.Errorf("invalid key set name %q", set)
	}
	return s.prefix + "." + set + ".json", nil
}

func (s *fileStore) LoadKeys(_ context.Context, set string) ([]string, error) {
	path, err := s.keySetPath(set)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var keys []string
	if err := json.Unmarshal(b, &keys); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return keys, nil
}

func (s *fileStore) ReplaceKeys(_ context.Context, set string, keys []string) error {
	path, err := s.keySetPath(set)
	if err != nil {
		return err
	}
	if keys == nil {
		keys = []string{}
	}
	b, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	return writeFileAtomic(path, b)
}

func (s *fileStore) AppendStock(_ context.Context, product string, values []string, at time.Time) (int, error) {
	if len(values) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return 0, ErrClosed
	}
	next := s.stock
	next.Rows = append([]stockRow(nil), s.stock.Rows...)
	added := next.append(product, values, at)
	if err := s.appendJournalLocked(journalRecord{Op: "add", Rows: added}); err != nil {
		return 0, err
	}
	s.stock = next
	s.maybeCompactLocked()
	return len(added), nil
}

func (s *fileStore) PopStock(_ context.Context, product string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return "", false, ErrClosed
	}
	r, ok := s.stock.oldest(product)
	if !ok {
		return "", false, nil
	}
	// The pop is durable before the value leaves this call.
	if err := s.appendJournalLocked(journalRecord{Op: "pop", ID: r.ID}); err != nil {
		return "", false, err
	}
	s.stock.remove(r.ID)
	s.maybeCompactLocked()
	return r.Value, true, nil
}

func (s *fileStore) CountStock(_ context.Context, product string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock.count(product), nil
}

func (s *fileStore) ListStock(context.Context) ([]ProductCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock.list(), nil
}

func (s *fileStore) DeleteStock(_ context.Context, product string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return 0, ErrClosed
	}
	n := s.stock.count(product)
	if n == 0 {
		return 0, nil
	}
	if err := s.appendJournalLocked(journalRecord{Op: "del", Product: product, ID: s.stock.NextID}); err != nil {
		return 0, err
	}
	s.stock.removeProduct(product)
	s.maybeCompactLocked()
	return n, nil
}

func (s *fileStore) appendJournalLocked(rec journalRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if _, err := s.journal.Write(b); err != nil {
		return err
	}
	return s.journal.Sync()
}

func (s *fileStore) maybeCompactLocked() {
	s.writes++
	if s.compactEvery <= 0 || s.writes%s.compactEvery != 0 {
		return
	}
	if err := s.compactLocked(); err != nil {
		s.log.Warn("stock compaction failed", logx.Err(err))
	}
}

func (s *fileStore) compactLocked() error {
	b, err := json.Marshal(s.stock)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.snapshotPath, b); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func loadSnapshot(path string, out *stockTable) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// replayJournal applies records on top of the snapshot. Adds whose IDs the
// snapshot already allocated are skipped, so a crash between snapshot and
// truncation replays cleanly.
func replayJournal(path string, t *stockTable) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		var rec journalRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			// A torn trailing line is the only expected corruption.
			continue
		}
		switch rec.Op {
		case "add":
			for _, r := range rec.Rows {
				if r.ID <= t.NextID {
					continue
				}
				t.Rows = append(t.Rows, r)
				t.NextID = r.ID
			}
		case "pop":
			t.remove(rec.ID)
		case "del":
			t.removeProductUpTo(rec.Product, rec.ID)
		}
	}
	return sc.Err()
}

func writeFileAtomic(path string, b []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
