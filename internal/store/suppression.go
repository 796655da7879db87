package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

const replyColumns = `
id, company_id, campaign_id, message_id, from_identity, subject, content, replied_at`

// IsUnsubscribed reports whether the address is on the unsubscribe list.
// Addresses are normalized to lower case.
func (s *Store) IsUnsubscribed(ctx context.Context, email string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM unsubscribe_list WHERE email = LOWER($1));`
	var exists bool
	if err := s.pool.QueryRow(ctx, q, strings.TrimSpace(email)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check unsubscribed: %w", err)
	}
	return exists, nil
}

// HasReplied reports whether any reply has ever been recorded for the company.
func (s *Store) HasReplied(ctx context.Context, companyID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM reply_tracking WHERE company_id = $1);`
	var exists bool
	if err := s.pool.QueryRow(ctx, q, companyID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check replied: %w", err)
	}
	return exists, nil
}

// UpsertUnsubscribe adds an address to the unsubscribe list. The address is
// unique; a second call for the same address returns the existing entry
// unchanged rather than erroring.
func (s *Store) UpsertUnsubscribe(ctx context.Context, entry UnsubscribeEntry) (*UnsubscribeEntry, error) {
	const q = `
INSERT INTO unsubscribe_list (email, company_id, reason)
VALUES (LOWER($1), $2, $3)
ON CONFLICT (email) DO NOTHING
RETURNING id, email, company_id, reason, unsubscribed_at;
`
	var out UnsubscribeEntry
	err := s.pool.QueryRow(ctx, q, strings.TrimSpace(entry.Email), entry.CompanyID, entry.Reason).
		Scan(&out.ID, &out.Email, &out.CompanyID, &out.Reason, &out.UnsubscribedAt)
	if err == nil {
		return &out, nil
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("insert unsubscribe: %w", err)
	}

	// Conflict path: first writer won, return the existing entry.
	const sel = `
SELECT id, email, company_id, reason, unsubscribed_at
FROM unsubscribe_list
WHERE email = LOWER($1);
`
	err = s.pool.QueryRow(ctx, sel, strings.TrimSpace(entry.Email)).
		Scan(&out.ID, &out.Email, &out.CompanyID, &out.Reason, &out.UnsubscribedAt)
	if err != nil {
		return nil, fmt.Errorf("get unsubscribe: %w", err)
	}
	return &out, nil
}

// UpsertReply records that a company responded. Idempotent on
// (company, normalized from identity): the first writer wins and later
// calls return the existing record.
func (s *Store) UpsertReply(ctx context.Context, record ReplyRecord) (*ReplyRecord, error) {
	var out ReplyRecord
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		return upsertReplyTx(ctx, tx, record, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RecordReplyCancelling records a reply and cancels every DRAFT message for
// the company in the same transaction, so a concurrently running delivery
// cycle cannot pick one up after the reply is known. Returns the reply
// record and the number of messages cancelled.
func (s *Store) RecordReplyCancelling(ctx context.Context, record ReplyRecord, cancelNote string) (*ReplyRecord, int64, error) {
	var (
		out       ReplyRecord
		cancelled int64
	)
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		if err := upsertReplyTx(ctx, tx, record, &out); err != nil {
			return err
		}

		const cancel = `
UPDATE messages
SET status = 'CANCELLED', error = $2
WHERE company_id = $1 AND status = 'DRAFT';
`
		ct, err := tx.Exec(ctx, cancel, record.CompanyID, cancelNote)
		if err != nil {
			return fmt.Errorf("cancel draft messages: %w", err)
		}
		cancelled = ct.RowsAffected()
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return &out, cancelled, nil
}

func upsertReplyTx(ctx context.Context, tx pgx.Tx, record ReplyRecord, out *ReplyRecord) error {
	const q = `
INSERT INTO reply_tracking (company_id, campaign_id, message_id, from_identity, subject, content)
VALUES ($1, $2, $3, LOWER($4), $5, $6)
ON CONFLICT (company_id, from_identity) DO NOTHING
RETURNING ` + replyColumns + `;
`
	err := tx.QueryRow(ctx, q,
		record.CompanyID,
		record.CampaignID,
		record.MessageID,
		strings.TrimSpace(record.FromIdentity),
		record.Subject,
		record.Content,
	).Scan(&out.ID, &out.CompanyID, &out.CampaignID, &out.MessageID, &out.FromIdentity, &out.Subject, &out.Content, &out.RepliedAt)
	if err == nil {
		return nil
	}
	if err != pgx.ErrNoRows {
		return fmt.Errorf("insert reply: %w", err)
	}

	const sel = `
SELECT ` + replyColumns + `
FROM reply_tracking
WHERE company_id = $1 AND from_identity = LOWER($2);
`
	err = tx.QueryRow(ctx, sel, record.CompanyID, strings.TrimSpace(record.FromIdentity)).
		Scan(&out.ID, &out.CompanyID, &out.CampaignID, &out.MessageID, &out.FromIdentity, &out.Subject, &out.Content, &out.RepliedAt)
	if err != nil {
		return fmt.Errorf("get reply: %w", err)
	}
	return nil
}
