package outreach

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goyalvivek7/salesh-auto/internal/metrics"
	"github.com/goyalvivek7/salesh-auto/internal/store"
)

// LifecycleStore is the persistence surface the automation lifecycle needs.
type LifecycleStore interface {
	ListRunningConfigs(ctx context.Context) ([]store.AutomationConfig, error)
	SetAutomationStatus(ctx context.Context, id int64, status store.AutomationStatus, active bool) error
	MarkConfigRun(ctx context.Context, id int64, ranAt time.Time, companiesFetched, messagesCreated int) error
}

// CampaignRunner executes one daily cycle for a config: fetch fresh
// companies and materialize their message sequences.
type CampaignRunner interface {
	RunDaily(ctx context.Context, cfg store.AutomationConfig) (companiesFetched, messagesCreated int, err error)
}

// Lifecycle drives running automation configs: it retires configs past
// their end date, enforces the once-per-business-day gate, and fires
// the daily campaign cycle when a config's send time arrives.
type Lifecycle struct {
	store    LifecycleStore
	runner   CampaignRunner
	timezone *time.Location
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewLifecycle(s LifecycleStore, runner CampaignRunner, tz *time.Location, logger *slog.Logger, m *metrics.Metrics) *Lifecycle {
	return &Lifecycle{
		store:    s,
		runner:   runner,
		timezone: tz,
		logger:   logger.With("component", "lifecycle"),
		metrics:  m,
		now:      time.Now,
	}
}

// RunDue scans running configs and executes the ones that are due.
// Configs are isolated from each other: a failure in one is logged and
// the scan continues.
func (l *Lifecycle) RunDue(ctx context.Context) error {
	configs, err := l.store.ListRunningConfigs(ctx)
	if err != nil {
		return fmt.Errorf("lifecycle scan: %w", err)
	}

	for _, cfg := range configs {
		if err := l.runOne(ctx, cfg); err != nil {
			l.logger.Error("automation cycle failed", "config_id", cfg.ID, "name", cfg.Label(), "error", err)
			l.metrics.Errors.WithLabelValues("lifecycle").Inc()
		}
	}
	return nil
}

func (l *Lifecycle) runOne(ctx context.Context, cfg store.AutomationConfig) error {
	now := l.now().In(l.timezone)

	if cfg.EndDate != nil && !now.Before(cfg.EndDate.In(l.timezone)) {
		l.logger.Info("automation reached end date", "config_id", cfg.ID, "name", cfg.Label())
		return l.store.SetAutomationStatus(ctx, cfg.ID, store.AutomationCompleted, false)
	}

	// At most one cycle per business day.
	if cfg.LastRunAt != nil && sameOrLaterDay(cfg.LastRunAt.In(l.timezone), now) {
		return nil
	}

	due := time.Date(now.Year(), now.Month(), now.Day(), cfg.SendTimeHour, cfg.SendTimeMinute, 0, 0, l.timezone)
	if now.Before(due) {
		return nil
	}

	fetched, created, err := l.runner.RunDaily(ctx, cfg)
	if err != nil {
		return fmt.Errorf("daily cycle: %w", err)
	}
	if err := l.store.MarkConfigRun(ctx, cfg.ID, l.now(), fetched, created); err != nil {
		return fmt.Errorf("mark config run: %w", err)
	}

	l.logger.Info("automation cycle complete",
		"config_id", cfg.ID,
		"name", cfg.Label(),
		"companies_fetched", fetched,
		"messages_created", created)
	return nil
}

func sameOrLaterDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay > by
	}
	if am != bm {
		return am > bm
	}
	return ad >= bd
}
