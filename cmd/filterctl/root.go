package main

import (
	"os"

	"github.com/danmuck/edgefilter/internal/config"
	"github.com/danmuck/edgefilter/internal/logging"
	"github.com/danmuck/edgefilter/internal/observability"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "filterctl",
		Short:         "Connect to a protocol endpoint and route its messages through a filter",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "TOML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (trace, debug, info, warn, error)")

	cmd.AddCommand(newListenCmd(opts), newReplayCmd(opts))
	return cmd
}

// load resolves the config file, falling back to defaults without one,
// and installs the runtime logger.
func (o *rootOptions) load() (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return config.Config{}, err
		}
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	observability.InitLogger("filterctl")

	// flag, then environment, then file
	level := cfg.LogLevel
	if o.logLevel == "" && os.Getenv(logging.EnvLogLevel) != "" {
		level = ""
	}
	if lvl, ok := logging.ParseLevel(level); ok {
		logging.SetLevel(lvl)
	}
	return cfg, nil
}
