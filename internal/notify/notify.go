package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rezoningwatch/rezoningwatch/pkg/types"
)

// Notifier delivers a report.
type Notifier interface {
	Notify(ctx context.Context, r types.Report) error
}

// Multi delivers to every notifier in order. All notifiers are attempted even
// when an earlier one fails; the failures are joined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, r types.Report) error {
	if r.Empty() {
		return nil
	}
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes a human-readable summary of the report to a logger.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(_ context.Context, r types.Report) error {
	if r.Empty() {
		return nil
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for _, rec := range r.New {
		logger.Info("notify: new record",
			"id", rec.ID,
			"name", rec.Attributes.Name,
			"state", rec.Attributes.State,
			"tags", joinTags(rec.Attributes.ProjectTagList, ","),
			"url", rec.Links.Self,
		)
	}
	for _, c := range r.Changed {
		for _, name := range changeNames(c.Changes) {
			ch := c.Changes[name]
			logger.Info("notify: changed record",
				"id", c.Current.ID,
				"name", c.Current.Attributes.Name,
				"field", name,
				"old", ch.Old,
				"new", ch.New,
			)
		}
	}
	logger.Info("notify: run summary", "new", len(r.New), "changed", len(r.Changed))
	return nil
}
