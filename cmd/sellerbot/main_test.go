package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sellerbot/internal/config"
)

func writeTestConfig(t *testing.T, edit ...func(*config.Config)) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		Ledger:       config.LedgerConfig{Driver: "sqlite", Path: filepath.Join(dir, "sellerbot.db")},
		AutoResponse: config.AutoResponseConfig{Path: filepath.Join(dir, "auto_response.json")},
		Plugins:      config.PluginsConfig{Dir: filepath.Join("..", "..", "internal", "plugin", "testdata", "plugins"), Disabled: []string{"orders_log"}},
	}
	for _, fn := range edit {
		fn(&cfg)
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.String()
}

func TestStockCommands(t *testing.T) {
	cfg := writeTestConfig(t)

	if got := execute(t, "A\nB:2\n\n", "stock", "import", "Gift card", "--config", cfg); got != "Gift card: +3, total 3\n" {
		t.Fatalf("import = %q", got)
	}
	if got := execute(t, "C\n", "stock", "import", "Gift card", "--config", cfg); got != "Gift card: +1, total 4\n" {
		t.Fatalf("second import = %q", got)
	}
	if got := execute(t, "", "stock", "count", "Gift card", "--config", cfg); got != "4\n" {
		t.Fatalf("count = %q", got)
	}
	if got := execute(t, "", "stock", "pop", "Gift card", "--config", cfg); got != "A\n" {
		t.Fatalf("pop = %q", got)
	}
	list := execute(t, "", "stock", "list", "--config", cfg)
	if !strings.Contains(list, "PRODUCT") || !strings.Contains(list, "Gift card  3") {
		t.Fatalf("list = %q", list)
	}
	if got := execute(t, "", "stock", "clear", "Gift card", "--config", cfg); got != "Gift card: removed 3\n" {
		t.Fatalf("clear = %q", got)
	}

	rootCmd.SetArgs([]string{"stock", "pop", "Gift card", "--config", cfg})
	rootCmd.SetOut(&bytes.Buffer{})
	if err := rootCmd.Execute(); err == nil || !strings.Contains(err.Error(), "out of stock") {
		t.Fatalf("pop on empty stock: %v", err)
	}
}

func TestPluginsListAndDedup(t *testing.T) {
	cfg := writeTestConfig(t)

	list := execute(t, "", "plugins", "list", "--config", cfg)
	for _, want := range []string{"greeter", "Greeter", "review_tracker", "orders_log"} {
		if !strings.Contains(list, want) {
			t.Fatalf("plugins list misses %q:\n%s", want, list)
		}
	}
	if strings.Contains(list, "broken") {
		t.Fatalf("broken plugin listed:\n%s", list)
	}

	if got := execute(t, "", "dedup", "--config", cfg); got != "" {
		t.Fatalf("dedup on fresh ledger = %q", got)
	}
}

func TestStockRefusesMemoryLedger(t *testing.T) {
	cfg := writeTestConfig(t, func(c *config.Config) {
		c.Ledger = config.LedgerConfig{Driver: "memory"}
	})
	rootCmd.SetArgs([]string{"stock", "import", "Gift card", "--config", cfg})
	rootCmd.SetIn(strings.NewReader("A\n"))
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	if err := rootCmd.Execute(); err == nil || !strings.Contains(err.Error(), "memory") {
		t.Fatalf("import into memory ledger: %v", err)
	}
}
