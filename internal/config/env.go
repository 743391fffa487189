package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override secrets from the config file.
const (
	EnvTelegramToken = "SELLERBOT_TELEGRAM_TOKEN"
	EnvLedgerDSN     = "SELLERBOT_LEDGER_DSN"
	EnvAccountToken  = "SELLERBOT_ACCOUNT_TOKEN"
	EnvOpsToken      = "SELLERBOT_OPS_TOKEN"
)

// LoadDotEnv loads KEY=VALUE files into the process environment. Missing
// files are skipped and variables already set are left alone.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if strings.TrimSpace(f) == "" {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// ApplyEnv overlays non-empty environment values onto cfg.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if cfg == nil {
		return
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Telegram.Token, EnvTelegramToken)
	set(&cfg.Ledger.DSN, EnvLedgerDSN)
	set(&cfg.Account.Token, EnvAccountToken)
	set(&cfg.Ops.Token, EnvOpsToken)
}
