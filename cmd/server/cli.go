package main

import (
	"os"
	"path/filepath"

	"github.com/pjw7536/react-timeline2/internal/config"
	"github.com/pjw7536/react-timeline2/internal/logging"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Options holds the flags shared by every command.
type Options struct {
	ConfigPath string
	LogLevel   string

	// import
	ImportKind string
	ImportFile string
}

// NewRootCommand builds the command tree. Running the root command serves.
func NewRootCommand(opts *Options, version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "timeline-server",
		Short:         "Equipment timeline server - drilldown, log normalization and view sync",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, version)
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, version)
		},
	}

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Load JSON or JSONL rows into the configured SQL store",
		Example: "  timeline-server import --kind EQUIPMENT_STATE --file eqp_state.jsonl\n" +
			"  timeline-server import --kind equipment --file equipments.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, opts)
		},
	}
	importCmd.Flags().StringVar(&opts.ImportKind, "kind", "", "Log kind (EQUIPMENT_STATE, INTERLOCK, RECIPE_CHANGE, ALARM, ISSUE) or equipment")
	importCmd.Flags().StringVar(&opts.ImportFile, "file", "", "Path to a JSON array or JSON lines file")
	_ = importCmd.MarkFlagRequired("kind")
	_ = importCmd.MarkFlagRequired("file")

	rootCmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "Path to config file (default: "+config.FileName+" next to the executable)")
	rootCmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)

	return rootCmd
}

// loadConfig resolves the config path, loads it and reinitializes logging
// from its advanced settings.
func loadConfig(opts *Options) (*config.AppConfig, string, error) {
	path := opts.ConfigPath
	if path == "" {
		exePath, err := os.Executable()
		if err != nil {
			return nil, "", errors.Wrap(err, "get executable path")
		}
		path = filepath.Join(filepath.Dir(exePath), config.FileName)
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, "", errors.Wrap(err, "load configuration")
	}
	if opts.LogLevel != "" {
		cfg.Advanced.LogLevel = opts.LogLevel
	}

	logging.Init(os.Stderr, cfg.Advanced.LogLevel, logging.Format(cfg.Advanced.LogFormat))
	log.Debug().Str("config", path).Msg("configuration loaded")

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}
