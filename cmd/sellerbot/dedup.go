package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sellerbot/internal/app"
	"sellerbot/internal/dedup"
	logx "sellerbot/pkg/logx"
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Show the persisted dedup window, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logx.NewConsole("warn")
		ledger, err := app.OpenLedger(cfg, log)
		if err != nil {
			return err
		}
		defer ledger.Close()
		s := dedup.New(ledger, cfg.Dispatch.SetName(), cfg.Dispatch.Capacity(), log)
		s.Load(cmd.Context())
		for _, k := range s.Keys() {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%d keys in %q\n", s.Len(), cfg.Dispatch.SetName())
		return nil
	},
}
