package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/rezoningwatch/rezoningwatch/internal/catalog"
	"github.com/rezoningwatch/rezoningwatch/internal/diff"
	"github.com/rezoningwatch/rezoningwatch/internal/metrics"
	"github.com/rezoningwatch/rezoningwatch/internal/notify"
	"github.com/rezoningwatch/rezoningwatch/internal/snapshot"
	"github.com/rezoningwatch/rezoningwatch/pkg/types"
)

// TokenSource hands out API tokens. *token.Provider satisfies it.
type TokenSource interface {
	Token(ctx context.Context, useCache bool) (types.Token, error)
}

// RecordSource streams the upstream catalog. *catalog.Fetcher satisfies it.
type RecordSource interface {
	FetchAll(ctx context.Context, tok types.Token, useCache bool) iter.Seq2[types.Record, error]
}

// DefaultMaxDeliveryAttempts is used when Options.MaxDeliveryAttempts is unset.
const DefaultMaxDeliveryAttempts = 5

// Options tune a Runner.
type Options struct {
	// UseCache lets token and page fetches be served from the response cache.
	UseCache bool
	// Save commits the run to the snapshot store. When false the run is a
	// dry run: nothing is written and the outbox is left alone.
	Save bool
	// FailOnNotifyError turns a failed delivery into a failed run.
	FailOnNotifyError bool
	// MaxDeliveryAttempts caps deliveries of a queued report before it is
	// dead-lettered.
	MaxDeliveryAttempts int
	// MetricsTextfile, when set, is rewritten after every run.
	MetricsTextfile string
}

// Result describes a finished run.
type Result struct {
	Report   types.Report
	Fetched  int
	Stored   int
	Token    types.Token
	Duration time.Duration
	// Queued is the outbox id of the report when its delivery failed.
	Queued uint64
	// Redelivered counts outbox entries delivered at the start of the run.
	Redelivered int
}

// Runner executes pipeline runs. It is safe to call SetNotifier and
// SetInterval while Watch is running.
type Runner struct {
	store   *snapshot.Store
	tokens  TokenSource
	records RecordSource
	diff    *diff.Engine
	metrics *metrics.Metrics
	opts    Options
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	notifier notify.Notifier
	interval time.Duration
}

// New returns a Runner. engine, m and n may be nil: a nil engine compares
// diff.DefaultFields, a nil m disables metrics and a nil n discards reports.
func New(store *snapshot.Store, tokens TokenSource, records RecordSource, engine *diff.Engine, n notify.Notifier, m *metrics.Metrics, opts Options, logger *slog.Logger) *Runner {
	if engine == nil {
		engine = diff.New()
	}
	if opts.MaxDeliveryAttempts <= 0 {
		opts.MaxDeliveryAttempts = DefaultMaxDeliveryAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:    store,
		tokens:   tokens,
		records:  records,
		diff:     engine,
		metrics:  m,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		notifier: n,
	}
}

// SetNotifier replaces the notifier used by subsequent runs.
func (r *Runner) SetNotifier(n notify.Notifier) {
	r.mu.Lock()
	r.notifier = n
	r.mu.Unlock()
}

func (r *Runner) currentNotifier() notify.Notifier {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notifier
}

// Run executes one cycle.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	start := r.now()
	res, err := r.run(ctx, start)
	res.Duration = r.now().Sub(start)

	if err != nil {
		r.logger.Error("pipeline: run failed", "err", err, "duration", res.Duration)
		if r.metrics != nil {
			r.metrics.ObserveFailure(res.Duration)
		}
		r.writeTextfile()
		return res, err
	}

	r.logger.Info("pipeline: run complete",
		"fetched", res.Fetched,
		"new", len(res.Report.New),
		"changed", len(res.Report.Changed),
		"stored", res.Stored,
		"duration", res.Duration,
	)
	if r.metrics != nil {
		stats := metrics.RunStats{
			Duration:    res.Duration,
			New:         len(res.Report.New),
			Changed:     len(res.Report.Changed),
			Stored:      res.Stored,
			TokenExpiry: res.Token.Expiration,
		}
		if pending, err := r.store.Pending(); err == nil {
			stats.Pending = len(pending)
		}
		if dead, err := r.store.DeadLetters(); err == nil {
			stats.DeadLetters = len(dead)
		}
		r.metrics.ObserveRun(stats, r.now())
	}
	r.writeTextfile()
	return res, nil
}

func (r *Runner) run(ctx context.Context, start time.Time) (Result, error) {
	var res Result

	if r.opts.Save {
		n, err := r.redeliver(ctx)
		if err != nil {
			return res, err
		}
		res.Redelivered = n
	}

	tok, err := r.tokens.Token(ctx, r.opts.UseCache)
	if err != nil {
		return res, fmt.Errorf("pipeline: token: %w", err)
	}
	res.Token = tok

	// The whole stream is read before the store is opened for writing, so a
	// fetch failure leaves the snapshot untouched.
	records, err := catalog.Collect(r.records.FetchAll(ctx, tok, r.opts.UseCache))
	if err != nil {
		return res, fmt.Errorf("pipeline: fetch: %w", err)
	}
	res.Fetched = len(records)
	records = dedupe(records)

	if err := ctx.Err(); err != nil {
		return res, err
	}

	report := types.Report{RunAt: start.UTC()}
	apply := func(tx *snapshot.Tx) error {
		for _, rec := range records {
			if !tx.Contains(rec.ID) {
				report.New = append(report.New, rec)
				continue
			}
			prev, err := tx.Get(rec.ID)
			if err != nil {
				return err
			}
			if changed, cs := r.diff.Diff(prev, rec); changed {
				report.Changed = append(report.Changed, types.ChangedRecord{Previous: prev, Current: rec, Changes: cs})
			}
		}
		if r.opts.Save {
			for _, rec := range records {
				if err := tx.Upsert(rec); err != nil {
					return err
				}
			}
		}
		res.Stored = tx.Count()
		return nil
	}

	if r.opts.Save {
		err = r.store.Update(apply)
	} else {
		err = r.store.View(apply)
	}
	if err != nil {
		return res, fmt.Errorf("pipeline: update snapshot: %w", err)
	}
	res.Report = report

	if report.Empty() {
		return res, nil
	}
	if err := r.deliver(ctx, report, &res); err != nil {
		return res, err
	}
	return res, nil
}

// deliver notifies and, on failure, queues the report for the next run.
func (r *Runner) deliver(ctx context.Context, report types.Report, res *Result) error {
	n := r.currentNotifier()
	if n == nil {
		return nil
	}
	err := n.Notify(ctx, report)
	if err == nil {
		return nil
	}

	r.logger.Warn("pipeline: notification failed", "err", err)
	if r.opts.Save {
		id, qerr := r.store.Enqueue(report, err)
		if qerr != nil {
			return errors.Join(fmt.Errorf("pipeline: notify: %w", err), fmt.Errorf("pipeline: queue report: %w", qerr))
		}
		res.Queued = id
		r.logger.Info("pipeline: report queued for redelivery", "outbox_id", id)
	}
	if r.opts.FailOnNotifyError {
		return fmt.Errorf("pipeline: notify: %w", err)
	}
	return nil
}

// redeliver retries every queued report once. Entries that fail again stay
// queued until they reach the attempt cap.
func (r *Runner) redeliver(ctx context.Context) (int, error) {
	n := r.currentNotifier()
	if n == nil {
		return 0, nil
	}
	pending, err := r.store.Pending()
	if err != nil {
		return 0, fmt.Errorf("pipeline: read outbox: %w", err)
	}

	delivered := 0
	for _, e := range pending {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		err := n.Notify(ctx, e.Report)
		if err == nil {
			if err := r.store.Ack(e.ID); err != nil {
				return delivered, fmt.Errorf("pipeline: ack outbox entry %d: %w", e.ID, err)
			}
			delivered++
			r.logger.Info("pipeline: redelivered queued report", "outbox_id", e.ID, "attempts", e.Attempts+1)
			continue
		}

		updated, rerr := r.store.Retry(e.ID, err)
		if rerr != nil {
			return delivered, fmt.Errorf("pipeline: record outbox attempt %d: %w", e.ID, rerr)
		}
		if updated.Attempts >= r.opts.MaxDeliveryAttempts {
			if derr := r.store.DeadLetter(e.ID, err); derr != nil {
				return delivered, fmt.Errorf("pipeline: dead-letter %d: %w", e.ID, derr)
			}
			r.logger.Error("pipeline: report dead-lettered", "outbox_id", e.ID, "attempts", updated.Attempts, "err", err)
			continue
		}
		r.logger.Warn("pipeline: redelivery failed", "outbox_id", e.ID, "attempts", updated.Attempts, "err", err)
	}
	return delivered, nil
}

func (r *Runner) writeTextfile() {
	if r.metrics == nil || r.opts.MetricsTextfile == "" {
		return
	}
	if err := r.metrics.WriteTextfile(r.opts.MetricsTextfile); err != nil {
		r.logger.Warn("pipeline: write metrics textfile", "path", r.opts.MetricsTextfile, "err", err)
	}
}

// dedupe keeps one record per id. The last occurrence wins, in the position
// of the first.
func dedupe(records []types.Record) []types.Record {
	index := make(map[string]int, len(records))
	out := records[:0:0]
	for _, rec := range records {
		if i, ok := index[rec.ID]; ok {
			out[i] = rec
			continue
		}
		index[rec.ID] = len(out)
		out = append(out, rec)
	}
	return out
}
