package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sellerbot/internal/app"
	"sellerbot/internal/config"
)

var (
	cfgPath  string
	envFiles []string
)

var rootCmd = &cobra.Command{
	Use:           "sellerbot",
	Short:         "Marketplace seller bot",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadDotEnv(envFiles...)
	},
}

var eventsPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot until SIGINT or SIGTERM",
	Long: `Run the bot: operator notifications, auto-responses, auto-delivery,
plugins, the ops listener and the scheduled digest.

Events arrive as JSON lines from --events ("-" for stdin) and, when
ops.enabled is set, through POST /events.`,
	RunE: runBot,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.json", "path to config json or yaml")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env", []string{".env"}, "dotenv files loaded before the config")
	runCmd.Flags().StringVar(&eventsPath, "events", "", `JSON lines event file ("-" for stdin)`)

	rootCmd.AddCommand(runCmd, stockCmd, pluginsCmd, dedupCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func runBot(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var events io.Reader
	switch eventsPath {
	case "":
	case "-":
		events = os.Stdin
	default:
		f, err := os.Open(eventsPath)
		if err != nil {
			return err
		}
		defer f.Close()
		events = f
	}

	a, err := app.New(app.Options{ConfigPath: cfgPath, Events: events})
	if err != nil {
		return err
	}

	stop := func(reason app.StopReason) {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer stopCancel()
		_ = a.Stop(stopCtx, reason)
	}

	if err := a.Start(ctx); err != nil {
		stop(app.StopFatalError)
		return fmt.Errorf("start: %w", err)
	}

	select {
	case <-ctx.Done():
		stop(app.StopSignal)
		return nil
	case <-a.Done():
	}
	// The app context ended without a signal: a supervised loop failed.
	err = a.Err()
	stop(app.StopFatalError)
	if err == nil {
		err = errors.New("app stopped unexpectedly")
	}
	return err
}
