package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/json420/couch.go/contrib/couchwatch"
)

var (
	configPath string
	overrides  = couchwatch.NewConfig()
)

var rootCmd = &cobra.Command{
	Use:           "couchwatch",
	Short:         "Follow a CouchDB database's change feed",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Log every change made by other writers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logData, err := cfg.Logger()
		if err != nil {
			return err
		}
		defer logData.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return couchwatch.Watch(ctx, cfg, logData.Logger)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Relay changes to WebSocket clients at /changes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logData, err := cfg.Logger()
		if err != nil {
			return err
		}
		defer logData.Close()

		ln, err := net.Listen("tcp", cfg.Listen)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return couchwatch.Serve(ctx, cfg, logData.Logger, ln)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "YAML config file")
	flags.StringVar(&overrides.URL, "url", overrides.URL, "server URL (env COUCH_URL)")
	flags.StringVarP(&overrides.Database, "database", "d", "", "database to watch")
	flags.DurationVar(&overrides.PollTimeout, "poll-timeout", overrides.PollTimeout, "upper bound for one long-poll request")
	flags.BoolVar(&overrides.Retry.Enabled, "retry", false, "retry failed polls with exponential backoff")
	flags.StringVar(&overrides.Log.Level, "log-level", overrides.Log.Level, "trace, debug, info, warn or error")
	flags.BoolVar(&overrides.Log.Pretty, "pretty", false, "human readable logs")
	serveCmd.Flags().StringVarP(&overrides.Listen, "listen", "l", overrides.Listen, "address to serve WebSocket clients on")

	rootCmd.AddCommand(watchCmd, serveCmd)
}

// loadConfig reads --config, if given, and applies the flags set on the
// command line over it.
func loadConfig(cmd *cobra.Command) (*couchwatch.Config, error) {
	cfg := couchwatch.NewConfig()
	if configPath != "" {
		var err error
		if cfg, err = couchwatch.LoadConfig(configPath); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("url") {
		cfg.URL = overrides.URL
	}
	if flags.Changed("database") {
		cfg.Database = overrides.Database
	}
	if flags.Changed("poll-timeout") {
		cfg.PollTimeout = overrides.PollTimeout
	}
	if flags.Changed("retry") {
		cfg.Retry.Enabled = overrides.Retry.Enabled
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = overrides.Log.Level
	}
	if flags.Changed("pretty") {
		cfg.Log.Pretty = overrides.Log.Pretty
	}
	if flags.Lookup("listen") != nil && flags.Changed("listen") {
		cfg.Listen = overrides.Listen
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
