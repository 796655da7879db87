package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const automationColumns = `
id, name, industry, country, daily_limit, is_active, status,
send_time_hour, send_time_minute, followup_day_1, followup_day_2,
run_duration_days, start_date, end_date, total_companies_fetched,
total_messages_sent, total_replies, days_completed, last_run_at, created_at`

// ListRunningConfigs returns active automation configs in the running state.
func (s *Store) ListRunningConfigs(ctx context.Context) ([]AutomationConfig, error) {
	const q = `
SELECT ` + automationColumns + `
FROM automation_configs
WHERE is_active = TRUE AND status = 'running'
ORDER BY id;
`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list running configs: %w", err)
	}
	defer rows.Close()

	var configs []AutomationConfig
	for rows.Next() {
		var c AutomationConfig
		if err := scanAutomation(rows, &c); err != nil {
			return nil, fmt.Errorf("scan automation config: %w", err)
		}
		configs = append(configs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate automation configs: %w", err)
	}
	return configs, nil
}

// AutomationConfigByID fetches a single automation config.
func (s *Store) AutomationConfigByID(ctx context.Context, id int64) (*AutomationConfig, error) {
	const q = `SELECT ` + automationColumns + ` FROM automation_configs WHERE id = $1;`
	var c AutomationConfig
	if err := scanAutomation(s.pool.QueryRow(ctx, q, id), &c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get automation config %d: %w", id, err)
	}
	return &c, nil
}

// SetAutomationStatus transitions a config's lifecycle state. Starting a
// config stamps its start and end dates from the configured run duration.
func (s *Store) SetAutomationStatus(ctx context.Context, id int64, status AutomationStatus, active bool) error {
	if status == AutomationRunning {
		const q = `
UPDATE automation_configs
SET status = $2, is_active = $3,
    start_date = COALESCE(start_date, NOW()),
    end_date = COALESCE(end_date, NOW() + make_interval(days => run_duration_days))
WHERE id = $1;
`
		ct, err := s.pool.Exec(ctx, q, id, status, active)
		if err != nil {
			return fmt.Errorf("set automation status: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return fmt.Errorf("automation config not found: %d", id)
		}
		return nil
	}

	const q = `UPDATE automation_configs SET status = $2, is_active = $3 WHERE id = $1;`
	ct, err := s.pool.Exec(ctx, q, id, status, active)
	if err != nil {
		return fmt.Errorf("set automation status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("automation config not found: %d", id)
	}
	return nil
}

// MarkConfigRun records a completed daily cycle: watermark plus counters.
func (s *Store) MarkConfigRun(ctx context.Context, id int64, ranAt time.Time, companiesFetched, messagesCreated int) error {
	const q = `
UPDATE automation_configs
SET last_run_at = $2,
    total_companies_fetched = total_companies_fetched + $3,
    total_messages_sent = total_messages_sent + $4,
    days_completed = days_completed + 1
WHERE id = $1;
`
	ct, err := s.pool.Exec(ctx, q, id, ranAt, companiesFetched, messagesCreated)
	if err != nil {
		return fmt.Errorf("mark config run: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("automation config not found: %d", id)
	}
	return nil
}

func scanAutomation(row rowScanner, c *AutomationConfig) error {
	return row.Scan(
		&c.ID,
		&c.Name,
		&c.Industry,
		&c.Country,
		&c.DailyLimit,
		&c.IsActive,
		&c.Status,
		&c.SendTimeHour,
		&c.SendTimeMinute,
		&c.FollowupDay1,
		&c.FollowupDay2,
		&c.RunDurationDays,
		&c.StartDate,
		&c.EndDate,
		&c.TotalCompaniesFetched,
		&c.TotalMessagesSent,
		&c.TotalReplies,
		&c.DaysCompleted,
		&c.LastRunAt,
		&c.CreatedAt,
	)
}
