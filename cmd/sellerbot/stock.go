package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sellerbot/internal/app"
	"sellerbot/internal/config"
	"sellerbot/internal/stock"
	logx "sellerbot/pkg/logx"
)

var stockCmd = &cobra.Command{
	Use:   "stock",
	Short: "Inspect and edit the auto-delivery stock",
	Long: `Offline stock maintenance against the configured ledger.

A file or pebble ledger is locked while the bot runs; stop the bot first.
The memory driver is refused.`,
}

var stockImportCmd = &cobra.Command{
	Use:   "import <product> [file]",
	Short: "Append values to a product, one per line (stdin without file)",
	Long: `Append values to a product's stock. Each non-empty line is one value;
"value:N" adds N copies. Lines like "login:password" stay whole.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = cmd.InOrStdin()
		if len(args) == 2 {
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		values, err := stock.ParseImport(r)
		if err != nil {
			return err
		}
		return withQueue(cmd.Context(), func(ctx context.Context, q *stock.Queue) error {
			added, err := q.BulkImport(ctx, args[0], values)
			if err != nil {
				return err
			}
			total, err := q.Count(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: +%d, total %d\n", args[0], added, total)
			return nil
		})
	},
}

var stockListCmd = &cobra.Command{
	Use:   "list",
	Short: "List products with stock",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withQueue(cmd.Context(), func(ctx context.Context, q *stock.Queue) error {
			items, err := q.ListProducts(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PRODUCT\tCOUNT")
			for _, it := range items {
				fmt.Fprintf(w, "%s\t%d\n", it.Product, it.Count)
			}
			return w.Flush()
		})
	},
}

var stockCountCmd = &cobra.Command{
	Use:   "count <product>",
	Short: "Print how many values a product has",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQueue(cmd.Context(), func(ctx context.Context, q *stock.Queue) error {
			n, err := q.Count(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		})
	},
}

var stockPopCmd = &cobra.Command{
	Use:   "pop <product>",
	Short: "Remove and print the oldest value of a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQueue(cmd.Context(), func(ctx context.Context, q *stock.Queue) error {
			v, ok, err := q.Pop(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s: out of stock", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		})
	},
}

var stockClearCmd = &cobra.Command{
	Use:   "clear <product>",
	Short: "Delete every value of a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQueue(cmd.Context(), func(ctx context.Context, q *stock.Queue) error {
			n, err := q.DeleteAll(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: removed %d\n", args[0], n)
			return nil
		})
	},
}

func init() {
	stockCmd.AddCommand(stockImportCmd, stockListCmd, stockCountCmd, stockPopCmd, stockClearCmd)
}

func loadConfig() (*config.Config, error) {
	return config.NewManager(cfgPath).Load()
}

func withQueue(ctx context.Context, fn func(context.Context, *stock.Queue) error) error {
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
	return fn(ctx, stock.NewQueue(ledger, stock.WithLogger(log)))
}
