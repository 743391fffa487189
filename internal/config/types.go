package config

import "strings"

// Config is the process configuration. Durations are Go duration strings
// ("500ms", "10s", "1m"). Secrets may be left empty in the file and supplied
// through the environment (see ApplyEnv).
type Config struct {
	Account      AccountConfig      `json:"account"`
	Telegram     TelegramConfig     `json:"telegram"`
	Logging      LoggingConfig      `json:"logging"`
	Ledger       LedgerConfig       `json:"ledger"`
	Dispatch     DispatchConfig     `json:"dispatch"`
	AutoResponse AutoResponseConfig `json:"auto_response"`
	Notify       NotifyConfig       `json:"notify"`
	Delivery     DeliveryConfig     `json:"delivery"`
	Plugins      PluginsConfig      `json:"plugins"`
	Ops          OpsConfig          `json:"ops"`
	Digest       DigestConfig       `json:"digest"`

	// Blacklist holds marketplace usernames that never get auto-responses
	// or auto-delivery. Matching is case-insensitive.
	Blacklist []string `json:"blacklist,omitempty"`
}

// AccountConfig describes the seller account. When GatewayURL is empty the
// bot runs in dry-run mode and only logs outgoing account commands.
type AccountConfig struct {
	Username   string `json:"username"`
	GatewayURL string `json:"gateway_url,omitempty"`
	Token      string `json:"token,omitempty"` // do not log
	Timeout    string `json:"timeout,omitempty"`
}

type TelegramConfig struct {
	Token       string  `json:"token"` // do not log
	AdminIDs    []int64 `json:"admin_ids"`
	PollTimeout string  `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram mirrors warnings and errors to the operator chats.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// LedgerConfig selects the persistence driver.
//
// Defaults:
//   - driver: "file"
//   - path: "./data/sellerbot.json" (file driver only)
//
// Example:
//
//	"ledger": { "driver": "sqlite", "path": "./data/sellerbot.db" }
type LedgerConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"` // postgres; do not log
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// DispatchConfig tunes the event loop.
//
// Defaults:
//   - warmup: "5s"
//   - dedup_capacity: 1000
//   - dedup_set: "processed_events"
//   - queue_size: 256
type DispatchConfig struct {
	Warmup        string `json:"warmup,omitempty"`
	DedupCapacity int    `json:"dedup_capacity,omitempty"`
	DedupSet      string `json:"dedup_set,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
}

// AutoResponseConfig points at the operator-edited auto-response file. It is
// re-read before every decision, so it is not part of hot reload.
type AutoResponseConfig struct {
	Path string `json:"path"`
}

// NotifyConfig controls operator notifications. The per-kind toggles are
// pointers so an omitted toggle means "on".
type NotifyConfig struct {
	Messages   *bool  `json:"messages,omitempty"`
	Orders     *bool  `json:"orders,omitempty"`
	Reviews    *bool  `json:"reviews,omitempty"`
	Workers    int    `json:"workers,omitempty"`
	QueueSize  int    `json:"queue_size,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	LinkBase   string `json:"link_base,omitempty"`
}

// KindEnabled reports whether notifications for kind ("message", "order",
// "review") are on.
func (n NotifyConfig) KindEnabled(kind string) bool {
	var p *bool
	switch kind {
	case "message":
		p = n.Messages
	case "order":
		p = n.Orders
	case "review":
		p = n.Reviews
	}
	return p == nil || *p
}

type DeliveryConfig struct {
	Enabled bool `json:"enabled"`
}

// PluginsConfig points at the interpreted plugin directory. Settings holds
// one free-form section per plugin key, handed to the plugin as its Config.
type PluginsConfig struct {
	Dir      string                    `json:"dir,omitempty"`
	Disabled []string                  `json:"disabled,omitempty"`
	Settings map[string]map[string]any `json:"settings,omitempty"`
}

// OpsConfig controls the HTTP ops listener.
//
// Prefer binding to localhost. The token guards POST /events and pprof.
type OpsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8089"
	Token   string `json:"token,omitempty"`
	Pprof   bool   `json:"pprof,omitempty"`
}

// DigestConfig schedules the periodic operator summary.
type DigestConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"` // cron spec, default "0 9 * * *"
	Timezone string `json:"timezone,omitempty"`
}

// Blacklisted reports whether username is on the blacklist.
func (c *Config) Blacklisted(username string) bool {
	u := strings.TrimSpace(username)
	if c == nil || u == "" {
		return false
	}
	for _, b := range c.Blacklist {
		if strings.EqualFold(strings.TrimSpace(b), u) {
			return true
		}
	}
	return false
}
