package config

import (
	"reflect"
	"strings"

	logx "sellerbot/pkg/logx"
)

// SummarizeChange lists the sections that differ between two configs, with
// log fields that are safe to print. Tokens and DSNs are reported only as
// "set" flags.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		fields  []logx.Field
	)
	mark := func(section string, fs ...logx.Field) {
		changed = append(changed, section)
		fields = append(fields, fs...)
	}

	oa, na := oldCfg.Account, newCfg.Account
	if oa.Username != na.Username || oa.GatewayURL != na.GatewayURL || oa.Timeout != na.Timeout || oa.Token != na.Token {
		mark("account",
			logx.String("account.username", na.Username),
			logx.Bool("account.gateway_set", strings.TrimSpace(na.GatewayURL) != ""),
			logx.Bool("account.token_set", na.Token != ""),
		)
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token || ot.PollTimeout != nt.PollTimeout || !reflect.DeepEqual(ot.AdminIDs, nt.AdminIDs) {
		mark("telegram",
			logx.Int("telegram.admin_count", len(nt.AdminIDs)),
			logx.Bool("telegram.token_set", nt.Token != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		mark("logging",
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
		)
	}

	ol, nl := oldCfg.Ledger, newCfg.Ledger
	if ol != nl {
		mark("ledger", logx.String("ledger.driver", nl.Driver), logx.String("ledger.path", nl.Path))
	}

	if oldCfg.Dispatch != newCfg.Dispatch {
		mark("dispatch",
			logx.Duration("dispatch.warmup", newCfg.Dispatch.WarmupDuration()),
			logx.Int("dispatch.dedup_capacity", newCfg.Dispatch.Capacity()),
		)
	}

	if oldCfg.AutoResponse != newCfg.AutoResponse {
		mark("auto_response", logx.String("auto_response.path", newCfg.AutoResponse.Path))
	}

	on, nn := oldCfg.Notify, newCfg.Notify
	if !reflect.DeepEqual(on, nn) {
		mark("notify",
			logx.Bool("notify.messages", nn.KindEnabled("message")),
			logx.Bool("notify.orders", nn.KindEnabled("order")),
			logx.Bool("notify.reviews", nn.KindEnabled("review")),
			logx.Int("notify.rate_per_sec", nn.RatePerSec),
		)
	}

	if oldCfg.Delivery != newCfg.Delivery {
		mark("delivery", logx.Bool("delivery.enabled", newCfg.Delivery.Enabled))
	}

	if !reflect.DeepEqual(oldCfg.Plugins, newCfg.Plugins) {
		mark("plugins",
			logx.String("plugins.dir", newCfg.Plugins.Dir),
			logx.Int("plugins.disabled", len(newCfg.Plugins.Disabled)),
		)
	}

	if oldCfg.Ops != newCfg.Ops {
		mark("ops",
			logx.Bool("ops.enabled", newCfg.Ops.Enabled),
			logx.String("ops.addr", newCfg.Ops.ListenAddr()),
			logx.Bool("ops.pprof", newCfg.Ops.Pprof),
			logx.Bool("ops.token_set", newCfg.Ops.Token != ""),
		)
	}

	if oldCfg.Digest != newCfg.Digest {
		mark("digest",
			logx.Bool("digest.enabled", newCfg.Digest.Enabled),
			logx.String("digest.schedule", newCfg.Digest.Spec()),
		)
	}

	if !reflect.DeepEqual(oldCfg.Blacklist, newCfg.Blacklist) {
		mark("blacklist", logx.Int("blacklist.size", len(newCfg.Blacklist)))
	}
	return changed, fields
}

// RestartRequired reports sections that cannot be hot-applied.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "account", "telegram", "ledger", "dispatch", "plugins", "auto_response":
			out = append(out, s)
		}
	}
	return out
}
