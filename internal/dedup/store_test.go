package dedup

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"sellerbot/internal/storage"
	logx "sellerbot/pkg/logx"
)

func TestAddContainsPersistRoundTrip(t *testing.T) {
	ctx := context.Background()
	ledger := storage.NewMemory()

	s := New(ledger, "seen", 10, logx.Nop())
	if !s.Add("order:1") || s.Add("order:1") {
		t.Fatal("Add should report newness once")
	}
	if !s.Contains("order:1") || s.Contains("order:2") {
		t.Fatal("Contains mismatch")
	}
	if err := s.Persist(ctx); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	s2 := New(ledger, "seen", 10, logx.Nop())
	s2.Load(ctx)
	if !s2.Contains("order:1") {
		t.Fatal("persisted key missing after Load")
	}
}

func TestPersistKeepsTrailingWindow(t *testing.T) {
	ctx := context.Background()
	ledger := storage.NewMemory()
	s := New(ledger, "seen", 3, logx.Nop())
	for i := 1; i <= 5; i++ {
		s.Add(fmt.Sprintf("review:%d", i))
	}
	if s.Len() != 5 {
		t.Fatalf("window truncated before persist: %d", s.Len())
	}
	if err := s.Persist(ctx); err != nil {
		t.Fatal(err)
	}
	keys, _ := ledger.LoadKeys(ctx, "seen")
	want := []string{"review:3", "review:4", "review:5"}
	if fmt.Sprint(keys) != fmt.Sprint(want) {
		t.Fatalf("persisted = %v, want %v", keys, want)
	}
	if s.Contains("review:1") {
		t.Fatal("oldest key should age out")
	}
	// Aged-out keys are treated as new again.
	if !s.Add("review:1") {
		t.Fatal("aged-out key should be addable")
	}
}

type brokenLedger struct{ storage.Ledger }

func (brokenLedger) LoadKeys(context.Context, string) ([]string, error) {
	return nil, errors.New("disk on fire")
}

func TestLoadFallsBackToEmpty(t *testing.T) {
	s := New(brokenLedger{storage.NewMemory()}, "seen", 10, logx.Nop())
	s.Add("x")
	s.Load(context.Background())
	if s.Len() != 0 {
		t.Fatalf("Len = %d, want 0", s.Len())
	}
}

func TestFileLedgerFormatIsJSONArray(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	l, err := storage.Open(storage.Config{Driver: "file", Path: dir + "/ledger.json"}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	s := New(l, "processed_events", 0, logx.Nop())
	s.Add("c1:42")
	if err := s.Persist(ctx); err != nil {
		t.Fatal(err)
	}
	keys, err := l.LoadKeys(ctx, "processed_events")
	if err != nil || len(keys) != 1 || keys[0] != "c1:42" {
		t.Fatalf("keys = %v, %v", keys, err)
	}
}
