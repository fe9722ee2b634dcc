package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/rezoningwatch/rezoningwatch/internal/config"
)

type cliOptions struct {
	configPath string
	dbPath     string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

func newRootCommand() *cobra.Command {
	return newRootCommandIO(os.Stdout, os.Stderr)
}

// newRootCommandIO writes command output to stdout and logs to stderr.
func newRootCommandIO(stdout, stderr io.Writer) *cobra.Command {
	opts := cliOptions{
		configPath: "rezoningwatch.yaml",
		stdout:     stdout,
		stderr:     stderr,
	}

	root := &cobra.Command{
		Use:           "rezoningwatch",
		Short:         "Track new and changed rezoning projects on Shape Your City",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadOptions(cmd, &opts)
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", opts.configPath, "path to config file (defaults are used when it does not exist)")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "snapshot database path (overrides storage.path)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug|info|warn|error (overrides log.level)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format: text|json (overrides log.format)")

	root.AddCommand(
		newRunCmd(&opts),
		newWatchCmd(&opts),
		newListCmd(&opts),
		newTokenCmd(&opts),
	)

	return root
}

// loadOptions reads the config file and applies flags the user set
// explicitly on top of it.
func loadOptions(cmd *cobra.Command, opts *cliOptions) error {
	cfg, err := config.LoadOrDefault(opts.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "db":
			cfg.Storage.Path = strings.TrimSpace(opts.dbPath)
		case "log-level":
			cfg.Log.Level = strings.ToLower(opts.logLevel)
		case "log-format":
			cfg.Log.Format = strings.ToLower(opts.logFormat)
		}
	})
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := newLogger(opts.stderr, cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	opts.cfg = cfg
	opts.logger = logger
	return nil
}

func newLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("log format: unknown format %q", cfg.Format)
	}
}
