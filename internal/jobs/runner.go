package jobs

import (
	"context"
	"log/slog"
	"time"
)

// Job is one periodic scan.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Runner executes jobs on a fixed interval until its context is cancelled.
type Runner struct {
	interval time.Duration
	jobs     []Job
	metrics  *Metrics
	logger   *slog.Logger
}

// NewRunner creates a runner. Metrics may be nil.
func NewRunner(interval time.Duration, metrics *Metrics, logger *slog.Logger, jobs ...Job) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		interval: interval,
		jobs:     jobs,
		metrics:  metrics,
		logger:   logger,
	}
}

// Start runs one pass immediately, then on every interval tick. It blocks
// until ctx is cancelled; callers run it in a goroutine.
func (r *Runner) Start(ctx context.Context) {
	r.runAll(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("background job runner stopped")
			return
		case <-ticker.C:
			r.runAll(ctx)
		}
	}
}

func (r *Runner) runAll(ctx context.Context) {
	for _, j := range r.jobs {
		start := time.Now()
		err := j.Run(ctx)
		elapsed := time.Since(start)

		if r.metrics != nil {
			r.metrics.ObserveRun(j.Name(), err, elapsed.Seconds())
		}
		if err != nil {
			r.logger.ErrorContext(ctx, "background job failed",
				"job", j.Name(),
				"error", err,
				"duration_ms", elapsed.Milliseconds(),
			)
			continue
		}
		r.logger.DebugContext(ctx, "background job completed",
			"job", j.Name(),
			"duration_ms", elapsed.Milliseconds(),
		)
	}
}
