package app

import (
	"errors"
	"time"

	"sellerbot/internal/config"
	"sellerbot/internal/storage"
	logx "sellerbot/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	lc := cfg.Ledger
	driver := lc.DriverName()
	sc := storage.Config{Driver: driver, Path: lc.FilePath(), DSN: lc.DSN}
	if driver == "sqlite" || driver == "sqlite3" {
		busy, err := config.ParseDurationOrDefault("ledger.busy_timeout", lc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		sc.BusyTimeout = busy
	}
	return sc, nil
}

// OpenLedger opens the ledger configured in cfg for offline stock and dedup
// maintenance from the CLI. The memory driver is refused: edits would vanish
// when the command exits.
func OpenLedger(cfg *config.Config, log logx.Logger) (storage.Ledger, error) {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if sc.Driver == "memory" {
		return nil, errors.New("ledger.driver \"memory\" keeps nothing after exit; configure a persistent driver")
	}
	return storage.Open(sc, log)
}
