//go:build unix

package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	logx "sellerbot/pkg/logx"
)

func TestFileLedgerRejectsSecondOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	ctx := context.Background()

	bot, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := bot.AppendStock(ctx, "k", []string{"X"}, time.Now()); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(Config{Driver: "file", Path: path}, logx.Nop()); !errors.Is(err, ErrLocked) {
		t.Fatalf("second Open err = %v, want ErrLocked", err)
	}
	if v, ok, err := bot.PopStock(ctx, "k"); err != nil || !ok || v != "X" {
		t.Fatalf("PopStock = %q,%v,%v want X", v, ok, err)
	}
	if err := bot.Close(); err != nil {
		t.Fatal(err)
	}

	cli, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open after Close: %v", err)
	}
	defer cli.Close()
	if _, ok, _ := cli.PopStock(ctx, "k"); ok {
		t.Fatal("value handed out twice")
	}
}
