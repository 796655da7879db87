// Package scheduler runs the recurring background jobs: the automation
// lifecycle scan, the delivery driver and the reply poller.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/goyalvivek7/salesh-auto/internal/metrics"
)

// Scheduler wraps a cron runner with job metrics and logging.
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New builds a scheduler whose jobs inherit ctx; cancelling it makes
// in-flight jobs wind down.
func New(ctx context.Context, logger *slog.Logger, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		ctx:     ctx,
		logger:  logger.With("component", "scheduler"),
		metrics: m,
	}
}

// AddJob schedules fn to run every interval. Job errors are logged and
// counted, never fatal.
func (s *Scheduler) AddJob(name string, interval time.Duration, fn func(ctx context.Context) error) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		start := time.Now()
		err := fn(s.ctx)
		s.metrics.JobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

		outcome := "ok"
		if err != nil {
			outcome = "error"
			s.logger.Error("job failed", "job", name, "error", err)
		}
		s.metrics.JobRuns.WithLabelValues(name, outcome).Inc()
	})
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", name, err)
	}
	s.logger.Info("job scheduled", "job", name, "interval", interval)
	return nil
}

// Start begins running scheduled jobs in their own goroutines.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and returns a context that completes when
// running jobs have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
