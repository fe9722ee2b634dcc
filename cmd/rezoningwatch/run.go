package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/rezoningwatch/rezoningwatch/internal/config"
)

func addRunFlags(flags *pflag.FlagSet, rf *runFlags) {
	flags.BoolVar(&rf.useCache, "use-cache", false, "serve token and page fetches from the response cache when possible")
	flags.BoolVar(&rf.save, "save", true, "commit the run to the snapshot database")
	flags.StringVar(&rf.webhookURL, "webhook-url", "", "additional Slack webhook URL to notify")
}

func newRunCmd(opts *cliOptions) *cobra.Command {
	var rf runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch all projects once and report what is new or changed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(opts.cfg, rf, opts.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.runner.Run(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(opts.stdout, "%d fetched, %d new, %d changed, %d stored\n",
				res.Fetched, len(res.Report.New), len(res.Report.Changed), res.Stored)
			return nil
		},
	}
	addRunFlags(cmd.Flags(), &rf)
	return cmd
}

func newWatchCmd(opts *cliOptions) *cobra.Command {
	var (
		rf            runFlags
		interval      time.Duration
		metricsListen string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run on a schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			if cmd.Flags().Changed("interval") {
				if interval <= 0 {
					return errors.New("--interval must be positive")
				}
				cfg.Schedule.Interval = interval
			}
			if cmd.Flags().Changed("metrics-listen") {
				cfg.Metrics.Listen = metricsListen
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(cfg, rf, opts.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if cfg.Metrics.Listen != "" {
				srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: metricsMux(a), ReadHeaderTimeout: 5 * time.Second}
				go func() {
					opts.logger.Info("metrics: listening", "addr", cfg.Metrics.Listen)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						opts.logger.Error("metrics: server stopped", "err", err)
					}
				}()
				defer func() {
					shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
					defer done()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			go func() {
				err := config.Watch(ctx, opts.configPath, opts.logger, func(updated *config.Config) {
					n, err := newNotifier(updated.Notify, rf.webhookURL, opts.logger)
					if err != nil {
						opts.logger.Error("config: notifier rebuild failed, keeping previous", "err", err)
						return
					}
					a.runner.SetNotifier(n)
					if !cmd.Flags().Changed("interval") {
						a.runner.SetInterval(updated.Schedule.Interval)
					}
				})
				if err != nil {
					opts.logger.Warn("config: hot reload disabled", "path", opts.configPath, "err", err)
				}
			}()

			opts.logger.Info("rezoningwatch: watching", "interval", cfg.Schedule.Interval, "db", cfg.Storage.Path)
			return a.runner.Watch(ctx, cfg.Schedule.Interval)
		},
	}
	addRunFlags(cmd.Flags(), &rf)
	cmd.Flags().DurationVar(&interval, "interval", config.DefaultInterval, "time between runs (overrides schedule.interval)")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "address to serve /metrics on, e.g. :9120")
	return cmd
}

func metricsMux(a *app) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
