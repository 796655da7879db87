package outreach

import (
	"context"
	"fmt"
	"strings"

	"github.com/goyalvivek7/salesh-auto/internal/store"
)

// OracleStore is the persistence surface the suppression oracle needs.
type OracleStore interface {
	IsUnsubscribed(ctx context.Context, email string) (bool, error)
	HasReplied(ctx context.Context, companyID int64) (bool, error)
	UpsertUnsubscribe(ctx context.Context, entry store.UnsubscribeEntry) (*store.UnsubscribeEntry, error)
	UpsertReply(ctx context.Context, record store.ReplyRecord) (*store.ReplyRecord, error)
}

// Oracle answers "may this message go out" just before every send. A
// reply on any channel suppresses all channels; the unsubscribe list
// suppresses email only.
type Oracle struct {
	store OracleStore
}

func NewOracle(s OracleStore) *Oracle {
	return &Oracle{store: s}
}

// IsSuppressed reports whether a message on the given channel to the
// given company and address must not be sent, along with a
// human-readable reason for the message's error field.
func (o *Oracle) IsSuppressed(ctx context.Context, channel store.Channel, companyID int64, email string) (bool, string, error) {
	if channel == store.ChannelEmail && email != "" {
		unsubscribed, err := o.store.IsUnsubscribed(ctx, email)
		if err != nil {
			return false, "", fmt.Errorf("suppression check: %w", err)
		}
		if unsubscribed {
			return true, "recipient unsubscribed", nil
		}
	}

	replied, err := o.store.HasReplied(ctx, companyID)
	if err != nil {
		return false, "", fmt.Errorf("suppression check: %w", err)
	}
	if replied {
		return true, "company already replied", nil
	}
	return false, "", nil
}

// Unsubscribe adds an address to the suppression list. Idempotent.
func (o *Oracle) Unsubscribe(ctx context.Context, email string, companyID *int64, reason string) (*store.UnsubscribeEntry, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("unsubscribe: empty email")
	}
	entry := store.UnsubscribeEntry{Email: email, CompanyID: companyID}
	if reason != "" {
		entry.Reason = &reason
	}
	return o.store.UpsertUnsubscribe(ctx, entry)
}

// RecordReply stores reply evidence without touching pending messages.
// Ingestion uses the combined cancel path instead; this is the building
// block for callers that only need the suppression fact.
func (o *Oracle) RecordReply(ctx context.Context, record store.ReplyRecord) (*store.ReplyRecord, error) {
	return o.store.UpsertReply(ctx, record)
}
