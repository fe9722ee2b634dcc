package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rezoningwatch/rezoningwatch/internal/cache"
	"github.com/rezoningwatch/rezoningwatch/internal/catalog"
	"github.com/rezoningwatch/rezoningwatch/internal/config"
	"github.com/rezoningwatch/rezoningwatch/internal/diff"
	"github.com/rezoningwatch/rezoningwatch/internal/metrics"
	"github.com/rezoningwatch/rezoningwatch/internal/notify"
	"github.com/rezoningwatch/rezoningwatch/internal/pipeline"
	"github.com/rezoningwatch/rezoningwatch/internal/retry"
	"github.com/rezoningwatch/rezoningwatch/internal/snapshot"
	"github.com/rezoningwatch/rezoningwatch/internal/token"
	"github.com/rezoningwatch/rezoningwatch/internal/upstream"
	"github.com/rezoningwatch/rezoningwatch/pkg/types"
)

// runFlags are shared by run and watch.
type runFlags struct {
	useCache   bool
	save       bool
	webhookURL string
}

// app is every component of one process, wired from config.
type app struct {
	store    *snapshot.Store
	client   *http.Client
	metrics  *metrics.Metrics
	provider *token.Provider
	runner   *pipeline.Runner
}

func (a *app) Close() error {
	return a.store.Close()
}

func newApp(cfg *config.Config, rf runFlags, logger *slog.Logger) (*app, error) {
	store, err := snapshot.Open(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	client := upstream.NewClient(upstream.Options{
		Timeout:            cfg.Upstream.Timeout,
		UserAgent:          cfg.Upstream.UserAgent,
		InsecureSkipVerify: cfg.Upstream.TLS.InsecureSkipVerify,
	})
	policy := retry.Policy{Attempts: cfg.Retry.Attempts, Delay: cfg.Retry.Delay}
	cacheOpts := []cache.Option{
		cache.WithLogger(logger),
		cache.WithFaultFunc(m.CacheFault),
	}

	provider := token.NewProvider(token.Config{
		PageURL:  cfg.Upstream.TokenPageURL,
		Path:     strings.Split(cfg.Upstream.TokenPath, "."),
		Skew:     cfg.Token.ExpirySkew,
		CacheTTL: cfg.Cache.TokenTTL,
		Retry:    policy,
	}, store, client, cache.New[types.Token](store, cacheOpts...), logger)

	fetcher := catalog.NewFetcher(catalog.Config{
		BaseURL:  cfg.Upstream.BaseURL,
		PageSize: cfg.Upstream.PageSize,
		CacheTTL: cfg.Cache.PageTTL,
		Retry:    policy,
	}, client, cache.New[json.RawMessage](store, cacheOpts...), m, logger)

	n, err := newNotifier(cfg.Notify, rf.webhookURL, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	runner := pipeline.New(store, provider, fetcher, diff.New(), n, m, pipeline.Options{
		UseCache:            rf.useCache,
		Save:                rf.save,
		FailOnNotifyError:   cfg.Notify.FailOnError,
		MaxDeliveryAttempts: cfg.Notify.MaxAttempts,
		MetricsTextfile:     cfg.Metrics.Textfile,
	}, logger)

	return &app{
		store:    store,
		client:   client,
		metrics:  m,
		provider: provider,
		runner:   runner,
	}, nil
}

// newNotifier always logs a summary and adds one webhook per configured
// target whose URL resolves. extraURL is a Slack webhook from the command
// line.
func newNotifier(cfg config.NotifyConfig, extraURL string, logger *slog.Logger) (notify.Notifier, error) {
	notifiers := notify.Multi{notify.Log{Logger: logger}}
	for _, wh := range cfg.Webhooks {
		url := wh.URL()
		if url == "" {
			logger.Warn("notify: webhook url not set, skipping", "type", wh.Type, "url_env", wh.URLEnv)
			continue
		}
		w, err := notify.NewWebhook(wh.Type, url, nil, logger)
		if err != nil {
			return nil, fmt.Errorf("notify: %w", err)
		}
		notifiers = append(notifiers, w)
	}
	if extraURL != "" {
		w, err := notify.NewWebhook(notify.TypeSlack, extraURL, nil, logger)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, w)
	}
	return notifiers, nil
}
