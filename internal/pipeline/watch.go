package pipeline

import (
	"context"
	"time"
)

// SetInterval changes the delay before the next scheduled run.
func (r *Runner) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	r.interval = d
	r.mu.Unlock()
}

func (r *Runner) currentInterval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interval
}

// Watch runs immediately and then once per interval until ctx is done.
// Failed runs are logged and do not stop the loop.
func (r *Runner) Watch(ctx context.Context, interval time.Duration) error {
	r.SetInterval(interval)
	if r.currentInterval() <= 0 {
		r.SetInterval(time.Hour)
	}

	for {
		_, _ = r.Run(ctx)

		next := r.currentInterval()
		r.logger.Debug("pipeline: next run scheduled", "in", next)
		timer := time.NewTimer(next)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.Info("pipeline: watch stopped")
			return nil
		case <-timer.C:
		}
	}
}
