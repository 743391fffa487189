package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sellerbot/internal/plugin"
	logx "sellerbot/pkg/logx"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "Inspect interpreted plugins",
}

var pluginsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Discover the plugin directory without activating anything",
	Long: `Load every plugin file from plugins.dir through the interpreter and print
its key, entry point and metadata. Files that fail to load are reported in
the log and left out.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rt := plugin.New(plugin.Deps{Log: logx.NewConsole("warn")})
		found, err := rt.Discover(cmd.Context(), cfg.Plugins.Dir)
		if err != nil {
			return err
		}
		disabled := map[string]bool{}
		for _, k := range cfg.Plugins.Disabled {
			disabled[strings.TrimSpace(k)] = true
		}
		keys := make([]string, 0, len(found))
		for k := range found {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tNAME\tVERSION\tMODE\tDISABLED")
		for _, k := range keys {
			h := found[k]
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", h.Key, h.Info.Name, h.Info.Version, h.Mode, disabled[k])
		}
		return w.Flush()
	},
}

func init() {
	pluginsCmd.AddCommand(pluginsListCmd)
}
