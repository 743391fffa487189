package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sellerbot/internal/config"
	"sellerbot/internal/digest"
	"sellerbot/internal/dispatch"
	"sellerbot/internal/notifier"
	"sellerbot/internal/ops"
	logx "sellerbot/pkg/logx"
)

// linkBase is used for "open" buttons when notify.link_base is not set.
const linkBase = "https://starvell.com"

func mapLogConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    lc.Telegram.Enabled,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	nc := cfg.Notify
	base := strings.TrimSpace(nc.LinkBase)
	if base == "" {
		base = linkBase
	}
	return notifier.Config{
		AdminIDs:   append([]int64(nil), cfg.Telegram.AdminIDs...),
		Workers:    nc.Workers,
		QueueSize:  nc.QueueSize,
		RatePerSec: nc.RatePerSec,
		LinkBase:   base,
	}
}

func mapPolicy(cfg *config.Config) dispatch.Policy {
	return dispatch.Policy{
		NotifyMessages: cfg.Notify.KindEnabled("message"),
		NotifyOrders:   cfg.Notify.KindEnabled("order"),
		NotifyReviews:  cfg.Notify.KindEnabled("review"),
		Delivery:       cfg.Delivery.Enabled,
		Blacklist:      append([]string(nil), cfg.Blacklist...),
	}
}

func mapOpsConfig(cfg *config.Config) ops.Config {
	oc := cfg.Ops
	return ops.Config{
		Enabled:      oc.Enabled,
		Addr:         oc.ListenAddr(),
		Token:        oc.Token,
		Pprof:        oc.Pprof,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second, // pprof profile runs for 30s by default
		IdleTimeout:  time.Minute,
	}
}

func mapDigestConfig(cfg *config.Config) (digest.Config, error) {
	dc := cfg.Digest
	out := digest.Config{Enabled: dc.Enabled, Schedule: dc.Spec()}
	if !dc.Enabled {
		return out, nil
	}
	loc, err := dc.Location()
	if err != nil {
		return digest.Config{}, err
	}
	out.Location = loc
	if err := digest.ValidateSpec(out.Schedule); err != nil {
		return digest.Config{}, err
	}
	return out, nil
}

// validateReload rejects a reloaded config before it is committed. Checks
// here cover what config.Validate cannot see from inside its package.
func validateReload(_ context.Context, cfg *config.Config) error {
	if _, err := mapDigestConfig(cfg); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.AutoResponse.Path) == "" {
		return fmt.Errorf("auto_response.path is required")
	}
	return nil
}
