package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const messageColumns = `
id, company_id, campaign_id, channel, stage, content, subject, status, error,
scheduled_for, unsubscribe_token, provider_message_id, sent_at, created_at`

// InsertMessages stores planned messages in bulk. The unique
// (campaign, company, channel, stage) constraint makes re-materialization
// idempotent: conflicting rows are silently skipped. Returns the number of
// rows actually inserted.
func (s *Store) InsertMessages(ctx context.Context, messages []Message) (int64, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	var inserted int64
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		const q = `
INSERT INTO messages (company_id, campaign_id, channel, stage, content, subject, status, scheduled_for, unsubscribe_token)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (campaign_id, company_id, channel, stage) DO NOTHING;
`
		for _, m := range messages {
			status := m.Status
			if status == "" {
				status = StatusDraft
			}
			ct, err := tx.Exec(ctx, q,
				m.CompanyID,
				m.CampaignID,
				m.Channel,
				m.Stage,
				m.Content,
				m.Subject,
				status,
				m.ScheduledFor,
				m.UnsubscribeToken,
			)
			if err != nil {
				return fmt.Errorf("insert message: %w", err)
			}
			inserted += ct.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// DueMessages returns DRAFT messages whose due time has passed, oldest due
// first, bounded to limit rows so a single cycle never does unbounded work.
func (s *Store) DueMessages(ctx context.Context, now time.Time, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT ` + messageColumns + `
FROM messages
WHERE status = 'DRAFT' AND scheduled_for <= $1
ORDER BY scheduled_for ASC, id ASC
LIMIT $2;
`
	rows, err := s.pool.Query(ctx, q, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// MessageByID fetches a single message.
func (s *Store) MessageByID(ctx context.Context, id int64) (*Message, error) {
	const q = `SELECT ` + messageColumns + ` FROM messages WHERE id = $1;`
	var m Message
	if err := scanMessage(s.pool.QueryRow(ctx, q, id), &m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get message %d: %w", id, err)
	}
	return &m, nil
}

// MessageByUnsubscribeToken resolves the message an unsubscribe link points at.
func (s *Store) MessageByUnsubscribeToken(ctx context.Context, token string) (*Message, error) {
	const q = `SELECT ` + messageColumns + ` FROM messages WHERE unsubscribe_token = $1;`
	var m Message
	if err := scanMessage(s.pool.QueryRow(ctx, q, token), &m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get message by token: %w", err)
	}
	return &m, nil
}

// MarkMessageSent transitions a message to SENT and stamps the delivery time.
func (s *Store) MarkMessageSent(ctx context.Context, id int64, sentAt time.Time, providerMessageID string) error {
	const q = `
UPDATE messages
SET status = 'SENT', sent_at = $2, provider_message_id = NULLIF($3, ''), error = NULL
WHERE id = $1;
`
	ct, err := s.pool.Exec(ctx, q, id, sentAt, providerMessageID)
	if err != nil {
		return fmt.Errorf("mark message sent: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("message not found: %d", id)
	}
	return nil
}

// MarkMessageFailed transitions a message to FAILED with a reason for triage.
func (s *Store) MarkMessageFailed(ctx context.Context, id int64, reason string) error {
	const q = `UPDATE messages SET status = 'FAILED', error = $2 WHERE id = $1;`
	ct, err := s.pool.Exec(ctx, q, id, reason)
	if err != nil {
		return fmt.Errorf("mark message failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("message not found: %d", id)
	}
	return nil
}

// RetryFailedMessages resets the given FAILED messages back to DRAFT so the
// driver picks them up on its next cycle. Only FAILED rows are touched.
func (s *Store) RetryFailedMessages(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const q = `
UPDATE messages
SET status = 'DRAFT', error = NULL
WHERE id = ANY($1) AND status = 'FAILED';
`
	ct, err := s.pool.Exec(ctx, q, ids)
	if err != nil {
		return 0, fmt.Errorf("retry failed messages: %w", err)
	}
	return ct.RowsAffected(), nil
}

// UpdateDeliveryStatus records a provider delivery receipt (DELIVERED or
// READ) against the message carrying the given provider id. Receipts only
// ever upgrade a SENT message; they never resurrect terminal states.
func (s *Store) UpdateDeliveryStatus(ctx context.Context, providerMessageID string, status Status) error {
	if status != StatusDelivered && status != StatusRead {
		return fmt.Errorf("invalid delivery status: %s", status)
	}
	const q = `
UPDATE messages
SET status = $2
WHERE provider_message_id = $1 AND status IN ('SENT', 'DELIVERED');
`
	if _, err := s.pool.Exec(ctx, q, providerMessageID, status); err != nil {
		return fmt.Errorf("update delivery status: %w", err)
	}
	return nil
}

func collectMessages(rows pgx.Rows) ([]Message, error) {
	var messages []Message
	for rows.Next() {
		var m Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

func scanMessage(row rowScanner, m *Message) error {
	return row.Scan(
		&m.ID,
		&m.CompanyID,
		&m.CampaignID,
		&m.Channel,
		&m.Stage,
		&m.Content,
		&m.Subject,
		&m.Status,
		&m.Error,
		&m.ScheduledFor,
		&m.UnsubscribeToken,
		&m.ProviderMessageID,
		&m.SentAt,
		&m.CreatedAt,
	)
}
