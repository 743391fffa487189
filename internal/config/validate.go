package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultWarmup        = 5 * time.Second
	DefaultDedupCapacity = 1000
	DefaultDedupSet      = "processed_events"
	DefaultQueueSize     = 256
	DefaultOpsAddr       = "127.0.0.1:8089"
	DefaultDigestSpec    = "0 9 * * *"
	DefaultLedgerDriver  = "file"
	DefaultLedgerPath    = "./data/sellerbot.json"
)

var knownDrivers = map[string]bool{
	"memory": true, "file": true,
	"sqlite": true, "sqlite3": true,
	"postgres": true, "postgresql": true, "pg": true,
	"pebble": true,
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault returns def for empty or zero values.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// WarmupDuration returns the startup grace window. An explicit "0s" disables it.
func (d DispatchConfig) WarmupDuration() time.Duration {
	s := strings.TrimSpace(d.Warmup)
	if s == "" {
		return DefaultWarmup
	}
	v, err := ParseDurationField("dispatch.warmup", s)
	if err != nil {
		return DefaultWarmup
	}
	return v
}

// DriverName is the lowercased driver, "file" when unset. The in-memory
// driver keeps nothing across restarts and must be named explicitly.
func (l LedgerConfig) DriverName() string {
	if s := strings.ToLower(strings.TrimSpace(l.Driver)); s != "" {
		return s
	}
	return DefaultLedgerDriver
}

// FilePath is the configured path, or DefaultLedgerPath for the file driver.
func (l LedgerConfig) FilePath() string {
	if s := strings.TrimSpace(l.Path); s != "" {
		return s
	}
	if l.DriverName() == "file" {
		return DefaultLedgerPath
	}
	return ""
}

func (d DispatchConfig) Capacity() int {
	if d.DedupCapacity <= 0 {
		return DefaultDedupCapacity
	}
	return d.DedupCapacity
}

func (d DispatchConfig) SetName() string {
	if s := strings.TrimSpace(d.DedupSet); s != "" {
		return s
	}
	return DefaultDedupSet
}

func (d DispatchConfig) Queue() int {
	if d.QueueSize <= 0 {
		return DefaultQueueSize
	}
	return d.QueueSize
}

func (o OpsConfig) ListenAddr() string {
	if s := strings.TrimSpace(o.Addr); s != "" {
		return s
	}
	return DefaultOpsAddr
}

func (d DigestConfig) Spec() string {
	if s := strings.TrimSpace(d.Schedule); s != "" {
		return s
	}
	return DefaultDigestSpec
}

// Location resolves the digest timezone, defaulting to local time.
func (d DigestConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(d.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("digest.timezone: %w", err)
	}
	return loc, nil
}

// Validate checks values that would otherwise fail late, at first use.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	durations := []struct{ path, raw string }{
		{"account.timeout", cfg.Account.Timeout},
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"ledger.busy_timeout", cfg.Ledger.BusyTimeout},
		{"dispatch.warmup", cfg.Dispatch.Warmup},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			errs = append(errs, err)
		}
	}

	driver := cfg.Ledger.DriverName()
	if !knownDrivers[driver] {
		errs = append(errs, fmt.Errorf("ledger.driver: unknown driver %q", cfg.Ledger.Driver))
	}
	switch driver {
	case "sqlite", "sqlite3", "pebble":
		if cfg.Ledger.FilePath() == "" {
			errs = append(errs, fmt.Errorf("ledger.path is required for driver %q", driver))
		}
	case "postgres", "postgresql", "pg":
		if strings.TrimSpace(cfg.Ledger.DSN) == "" {
			errs = append(errs, errors.New("ledger.dsn is required for postgres"))
		}
	}

	if strings.TrimSpace(cfg.Telegram.Token) != "" && len(cfg.Telegram.AdminIDs) == 0 {
		errs = append(errs, errors.New("telegram.admin_ids: at least one operator id is required"))
	}
	if cfg.Notify.Workers < 0 || cfg.Notify.QueueSize < 0 || cfg.Notify.RatePerSec < 0 {
		errs = append(errs, errors.New("notify: workers, queue_size and rate_per_sec must be >= 0"))
	}
	if cfg.Dispatch.DedupCapacity < 0 {
		errs = append(errs, errors.New("dispatch.dedup_capacity must be >= 0"))
	}
	if cfg.Digest.Enabled {
		if _, err := cfg.Digest.Location(); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.Ops.Pprof && !cfg.Ops.Enabled {
		errs = append(errs, errors.New("ops.pprof requires ops.enabled"))
	}
	return errors.Join(errs...)
}
