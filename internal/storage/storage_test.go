package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	logx "sellerbot/pkg/logx"
)

type driverCase struct {
	name string
	open func(t *testing.T) Ledger
}

func drivers(t *testing.T) []driverCase {
	t.Helper()
	cases := []driverCase{
		{"memory", func(t *testing.T) Ledger { return NewMemory() }},
		{"file", func(t *testing.T) Ledger {
			return mustOpen(t, Config{Driver: "file", Path: filepath.Join(t.TempDir(), "ledger.json")})
		}},
		{"sqlite", func(t *testing.T) Ledger {
			return mustOpen(t, Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "ledger.db"), BusyTimeout: time.Second})
		}},
		{"pebble", func(t *testing.T) Ledger {
			return mustOpen(t, Config{Driver: "pebble", Path: filepath.Join(t.TempDir(), "pebble")})
		}},
	}
	if dsn := os.Getenv("SELLERBOT_TEST_POSTGRES_DSN"); dsn != "" {
		cases = append(cases, driverCase{"postgres", func(t *testing.T) Ledger {
			l := mustOpen(t, Config{Driver: "postgres", DSN: dsn})
			ctx := context.Background()
			for _, p := range []string{"k", "a", "b", "empty"} {
				if _, err := l.DeleteStock(ctx, p); err != nil {
					t.Fatalf("reset %s: %v", p, err)
				}
			}
			return l
		}})
	}
	return cases
}

func mustOpen(t *testing.T, cfg Config) Ledger {
	t.Helper()
	l, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s): %v", cfg.Driver, err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLedgerStockFIFO(t *testing.T) {
	for _, d := range drivers(t) {
		t.Run(d.name, func(t *testing.T) {
			l := d.open(t)
			ctx := context.Background()

			n, err := l.AppendStock(ctx, "k", []string{"A", "B"}, time.Now())
			if err != nil || n != 2 {
				t.Fatalf("AppendStock = %d, %v", n, err)
			}
			for _, want := range []string{"A", "B"} {
				got, ok, err := l.PopStock(ctx, "k")
				if err != nil || !ok || got != want {
					t.Fatalf("PopStock = %q,%v,%v want %q", got, ok, err, want)
				}
			}
			if got, ok, err := l.PopStock(ctx, "k"); err != nil || ok {
				t.Fatalf("PopStock on empty = %q,%v,%v", got, ok, err)
			}
		})
	}
}

func TestLedgerEmptyAppendIsNoop(t *testing.T) {
	for _, d := range drivers(t) {
		t.Run(d.name, func(t *testing.T) {
			l := d.open(t)
			n, err := l.AppendStock(context.Background(), "empty", nil, time.Now())
			if err != nil || n != 0 {
				t.Fatalf("AppendStock(nil) = %d, %v", n, err)
			}
			if c, _ := l.CountStock(context.Background(), "empty"); c != 0 {
				t.Fatalf("count = %d", c)
			}
		})
	}
}

func TestLedgerListCountDelete(t *testing.T) {
	for _, d := range drivers(t) {
		t.Run(d.name, func(t *testing.T) {
			l := d.open(t)
			ctx := context.Background()
			now := time.Now()
			if _, err := l.AppendStock(ctx, "b", []string{"1", "2", "3"}, now); err != nil {
				t.Fatal(err)
			}
			if _, err := l.AppendStock(ctx, "a", []string{"x"}, now); err != nil {
				t.Fatal(err)
			}

			list, err := l.ListStock(ctx)
			if err != nil {
				t.Fatalf("ListStock: %v", err)
			}
			want := []ProductCount{{"a", 1}, {"b", 3}}
			if diff := cmp.Diff(want, list); diff != "" {
				t.Fatalf("ListStock mismatch (-want +got):\n%s", diff)
			}

			removed, err := l.DeleteStock(ctx, "b")
			if err != nil || removed != 3 {
				t.Fatalf("DeleteStock = %d, %v", removed, err)
			}
			if c, _ := l.CountStock(ctx, "b"); c != 0 {
				t.Fatalf("count after delete = %d", c)
			}
			if c, _ := l.CountStock(ctx, "a"); c != 1 {
				t.Fatalf("count of untouched product = %d", c)
			}
		})
	}
}

func TestLedgerConcurrentPopIsAtMostOnce(t *testing.T) {
	for _, d := range drivers(t) {
		t.Run(d.name, func(t *testing.T) {
			l := d.open(t)
			ctx := context.Background()
			if _, err := l.AppendStock(ctx, "k", []string{"X"}, time.Now()); err != nil {
				t.Fatal(err)
			}

			var (
				mu   sync.Mutex
				hits []string
			)
			var g errgroup.Group
			for i := 0; i < 8; i++ {
				g.Go(func() error {
					v, ok, err := l.PopStock(ctx, "k")
					if err != nil {
						return err
					}
					if ok {
						mu.Lock()
						hits = append(hits, v)
						mu.Unlock()
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				t.Fatalf("PopStock: %v", err)
			}
			if len(hits) != 1 || hits[0] != "X" {
				t.Fatalf("hits = %v, want exactly one X", hits)
			}
		})
	}
}

func TestLedgerKeySets(t *testing.T) {
	for _, d := range drivers(t) {
		t.Run(d.name, func(t *testing.T) {
			l := d.open(t)
			ctx := context.Background()
			keys, err := l.LoadKeys(ctx, "seen")
			if err != nil || keys != nil {
				t.Fatalf("LoadKeys on fresh ledger = %v, %v", keys, err)
			}
			if err := l.ReplaceKeys(ctx, "seen", []string{"order:1", "c:2"}); err != nil {
				t.Fatalf("ReplaceKeys: %v", err)
			}
			if err := l.ReplaceKeys(ctx, "seen", []string{"c:2", "review:3"}); err != nil {
				t.Fatalf("ReplaceKeys: %v", err)
			}
			keys, err = l.LoadKeys(ctx, "seen")
			if err != nil {
				t.Fatalf("LoadKeys: %v", err)
			}
			if diff := cmp.Diff([]string{"c:2", "review:3"}, keys); diff != "" {
				t.Fatalf("keys mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFileLedgerSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	ctx := context.Background()

	l, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.AppendStock(ctx, "k", []string{"A", "B", "C"}, time.Now()); err != nil {
		t.Fatal(err)
	}
	if _, _, err := l.PopStock(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.AppendStock(ctx, "other", []string{"Z"}, time.Now()); err != nil {
		t.Fatal(err)
	}
	if _, err := l.DeleteStock(ctx, "other"); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	l2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer l2.Close()
	got, ok, err := l2.PopStock(ctx, "k")
	if err != nil || !ok || got != "B" {
		t.Fatalf("PopStock after reopen = %q,%v,%v want B", got, ok, err)
	}
	if c, _ := l2.CountStock(ctx, "other"); c != 0 {
		t.Fatalf("deleted product came back: %d", c)
	}
}

func TestFileLedgerCompactionKeepsState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	ctx := context.Background()

	l, err := openFile(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	fs := l.(*fileStore)
	fs.compactEvery = 3
	for i := 0; i < 4; i++ {
		if _, err := l.AppendStock(ctx, "k", []string{string(rune('a' + i))}, time.Now()); err != nil {
			t.Fatal(err)
		}
	}
	if _, _, err := l.PopStock(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	_ = l.Close()

	l2, err := openFile(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer l2.Close()
	if c, _ := l2.CountStock(ctx, "k"); c != 3 {
		t.Fatalf("count after compaction+reopen = %d, want 3", c)
	}
	if v, _, _ := l2.PopStock(ctx, "k"); v != "b" {
		t.Fatalf("oldest after reopen = %q, want b", v)
	}
}

func TestPebbleLedgerSequenceSurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pebble")
	ctx := context.Background()

	l, err := Open(Config{Driver: "pebble", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.AppendStock(ctx, "k", []string{"A"}, time.Now()); err != nil {
		t.Fatal(err)
	}
	_ = l.Close()

	l2, err := Open(Config{Driver: "pebble", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer l2.Close()
	if _, err := l2.AppendStock(ctx, "k", []string{"B"}, time.Now()); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"A", "B"} {
		if v, _, _ := l2.PopStock(ctx, "k"); v != want {
			t.Fatalf("PopStock = %q, want %q", v, want)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "mongo"}, logx.Nop())
	if !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("expected ErrUnknownDriver, got %v", err)
	}
}

func TestClosedMemoryLedger(t *testing.T) {
	m := NewMemory()
	_ = m.Close()
	if _, _, err := m.PopStock(context.Background(), "k"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
