package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "sellerbot/pkg/logx"
)

const sampleJSON = `{
  "account": {"username": "shop", "timeout": "5s"},
  "telegram": {"token": "file-token", "admin_ids": [1, 2]},
  "logging": {"level": "info", "console": true},
  "ledger": {"driver": "sqlite", "path": "./data/bot.db"},
  "dispatch": {"warmup": "2s"},
  "notify": {"orders": false, "link_base": "https://example.org"},
  "blacklist": ["Spammer"]
}`

func TestDecodeStrictJSON(t *testing.T) {
	cfg, err := Decode("config.json", []byte(sampleJSON))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Account.Username != "shop" || len(cfg.Telegram.AdminIDs) != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if got := cfg.Dispatch.WarmupDuration(); got != 2*time.Second {
		t.Fatalf("warmup = %v", got)
	}
	if cfg.Notify.KindEnabled("order") || !cfg.Notify.KindEnabled("message") {
		t.Fatalf("toggles: orders=%v messages=%v", cfg.Notify.KindEnabled("order"), cfg.Notify.KindEnabled("message"))
	}
	if !cfg.Blacklisted("spammer") || cfg.Blacklisted("buyer") {
		t.Fatalf("blacklist matching is wrong")
	}

	if _, err := Decode("config.json", []byte(`{"bogus": 1}`)); err == nil {
		t.Fatal("expected unknown field error")
	}
	if _, err := Decode("config.json", []byte(`{} {}`)); err == nil {
		t.Fatal("expected trailing data error")
	}
}

func TestDecodeYAML(t *testing.T) {
	src := `
account:
  username: shop
telegram:
  token: abc
  admin_ids: [10]
ledger:
  driver: file
  path: ./data/ledger.json
dispatch:
  warmup: 0s
`
	cfg, err := Decode("config.yaml", []byte(src))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Telegram.AdminIDs[0] != 10 || cfg.Ledger.Driver != "file" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if got := cfg.Dispatch.WarmupDuration(); got != 0 {
		t.Fatalf("explicit 0s warmup = %v, want 0", got)
	}
}

func TestDefaults(t *testing.T) {
	var cfg Config
	if cfg.Dispatch.WarmupDuration() != DefaultWarmup {
		t.Fatal("warmup default")
	}
	if cfg.Dispatch.Capacity() != DefaultDedupCapacity || cfg.Dispatch.SetName() != DefaultDedupSet {
		t.Fatal("dedup defaults")
	}
	if cfg.Ops.ListenAddr() != DefaultOpsAddr || cfg.Digest.Spec() != DefaultDigestSpec {
		t.Fatal("ops/digest defaults")
	}
}

func TestApplyEnvOverridesSecrets(t *testing.T) {
	cfg, err := Decode("config.json", []byte(sampleJSON))
	if err != nil {
		t.Fatal(err)
	}
	env := map[string]string{EnvTelegramToken: "env-token", EnvLedgerDSN: "postgres://x"}
	ApplyEnv(cfg, func(k string) string { return env[k] })
	if cfg.Telegram.Token != "env-token" || cfg.Ledger.DSN != "postgres://x" {
		t.Fatalf("env overlay not applied: %+v", cfg.Telegram)
	}
	if cfg.Account.Token != "" {
		t.Fatalf("unset env var overwrote value")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("SELLERBOT_TEST_DOTENV=hello\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SELLERBOT_TEST_DOTENV", "")
	os.Unsetenv("SELLERBOT_TEST_DOTENV")
	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("SELLERBOT_TEST_DOTENV"); got != "hello" {
		t.Fatalf("env = %q", got)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{"ok", Config{}, ""},
		{"bad duration", Config{Dispatch: DispatchConfig{Warmup: "soon"}}, "dispatch.warmup"},
		{"bad driver", Config{Ledger: LedgerConfig{Driver: "mongo"}}, "unknown driver"},
		{"none is not a driver", Config{Ledger: LedgerConfig{Driver: "none"}}, "unknown driver"},
		{"file without path", Config{Ledger: LedgerConfig{Driver: "file"}}, ""},
		{"sqlite without path", Config{Ledger: LedgerConfig{Driver: "sqlite"}}, "ledger.path"},
		{"postgres without dsn", Config{Ledger: LedgerConfig{Driver: "postgres"}}, "ledger.dsn"},
		{"token without admins", Config{Telegram: TelegramConfig{Token: "x"}}, "admin_ids"},
		{"pprof without ops", Config{Ops: OpsConfig{Pprof: true}}, "ops.pprof"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(&tc.cfg)
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error = %v, want substring %q", err, tc.want)
			}
		})
	}
}

func TestLedgerDefaultsToFile(t *testing.T) {
	var l LedgerConfig
	if l.DriverName() != "file" || l.FilePath() != DefaultLedgerPath {
		t.Fatalf("defaults = %q %q", l.DriverName(), l.FilePath())
	}
	l = LedgerConfig{Driver: " SQLite "}
	if l.DriverName() != "sqlite" || l.FilePath() != "" {
		t.Fatalf("sqlite = %q %q", l.DriverName(), l.FilePath())
	}
	l = LedgerConfig{Driver: "memory"}
	if l.DriverName() != "memory" {
		t.Fatalf("memory = %q", l.DriverName())
	}
}

func TestSummarizeChangeHidesSecrets(t *testing.T) {
	oldCfg := &Config{Telegram: TelegramConfig{Token: "a", AdminIDs: []int64{1}}}
	newCfg := &Config{Telegram: TelegramConfig{Token: "b", AdminIDs: []int64{1}}, Delivery: DeliveryConfig{Enabled: true}}
	changed, fields := SummarizeChange(oldCfg, newCfg)
	if strings.Join(changed, ",") != "telegram,delivery" {
		t.Fatalf("changed = %v", changed)
	}
	var buf bytes.Buffer
	logx.NewWriter(&buf, "debug").Info("config reloaded", fields...)
	if strings.Contains(buf.String(), `"b"`) {
		t.Fatalf("token leaked: %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"telegram.token_set":true`) {
		t.Fatalf("missing token_set flag: %s", buf.String())
	}
	if got := RestartRequired(changed); len(got) != 1 || got[0] != "telegram" {
		t.Fatalf("RestartRequired = %v", got)
	}
}

func TestManagerWatchPublishesChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"delivery":{"enabled":false}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	m := NewManager(path)
	m.debounce = 20 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		if err := os.WriteFile(path, []byte(`{"delivery":{"enabled":true}}`), 0o600); err != nil {
			t.Fatal(err)
		}
		select {
		case cfg := <-sub:
			if !cfg.Delivery.Enabled {
				t.Fatalf("published stale config")
			}
			if !m.Get().Delivery.Enabled {
				t.Fatalf("Get() not updated")
			}
			return
		case <-tick.C:
		case <-deadline:
			t.Fatal("no config published")
		}
	}
}
