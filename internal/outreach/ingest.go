package outreach

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/goyalvivek7/salesh-auto/internal/metrics"
	"github.com/goyalvivek7/salesh-auto/internal/store"
)

// replyExcerptLimit bounds how much reply text is persisted.
const replyExcerptLimit = 500

// IngestStore is the persistence surface reply and event ingestion needs.
type IngestStore interface {
	CompanyByEmail(ctx context.Context, email string) (*store.Company, error)
	CompanyByPhone(ctx context.Context, phone string) (*store.Company, error)
	CompanyByID(ctx context.Context, id int64) (*store.Company, error)
	MessageByUnsubscribeToken(ctx context.Context, token string) (*store.Message, error)
	RecordReplyCancelling(ctx context.Context, record store.ReplyRecord, cancelNote string) (*store.ReplyRecord, int64, error)
	UpsertUnsubscribe(ctx context.Context, entry store.UnsubscribeEntry) (*store.UnsubscribeEntry, error)
	InsertOpen(ctx context.Context, event store.OpenEvent) error
}

// InboundReply is a raw reply from any channel before it is matched to
// a company.
type InboundReply struct {
	Channel store.Channel
	From    string
	Subject string
	Content string
}

// ReplyOutcome reports what ingestion did with one inbound reply.
type ReplyOutcome struct {
	Company        *store.Company
	Reply          *store.ReplyRecord
	Cancelled      int64
	Classification Classification
	Unsubscribed   bool
}

// Ingestor turns inbound replies and tracking events into state: reply
// evidence, cancelled drafts, unsubscribes and open records.
type Ingestor struct {
	store      IngestStore
	classifier *Classifier
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

func NewIngestor(s IngestStore, classifier *Classifier, logger *slog.Logger, m *metrics.Metrics) *Ingestor {
	return &Ingestor{
		store:      s,
		classifier: classifier,
		logger:     logger.With("component", "ingest"),
		metrics:    m,
	}
}

// HandleReply matches the sender to a company, records the reply and
// cancels the company's pending drafts in one transaction, then
// classifies intent. An opt-out additionally lands the company's email
// on the unsubscribe list. Returns store.ErrNotFound when no company
// matches the sender.
func (in *Ingestor) HandleReply(ctx context.Context, reply InboundReply) (*ReplyOutcome, error) {
	var (
		company *store.Company
		err     error
	)
	switch reply.Channel {
	case store.ChannelWhatsApp:
		company, err = in.store.CompanyByPhone(ctx, reply.From)
	default:
		company, err = in.store.CompanyByEmail(ctx, reply.From)
	}
	if err != nil {
		return nil, fmt.Errorf("match reply sender %q: %w", reply.From, err)
	}

	record := store.ReplyRecord{
		CompanyID:    company.ID,
		FromIdentity: replyIdentity(reply),
	}
	if reply.Subject != "" {
		subject := reply.Subject
		record.Subject = &subject
	}
	if reply.Content != "" {
		content := truncate(reply.Content, replyExcerptLimit)
		record.Content = &content
	}

	note := fmt.Sprintf("cancelled after reply from %s", reply.From)
	saved, cancelled, err := in.store.RecordReplyCancelling(ctx, record, note)
	if err != nil {
		return nil, fmt.Errorf("record reply: %w", err)
	}

	outcome := &ReplyOutcome{
		Company:        company,
		Reply:          saved,
		Cancelled:      cancelled,
		Classification: in.classifier.Classify(ctx, reply.Content),
	}
	in.metrics.RepliesIngested.WithLabelValues(string(reply.Channel)).Inc()

	if outcome.Classification.Intent == IntentOptOut {
		email := reply.From
		if reply.Channel == store.ChannelWhatsApp {
			email = company.PrimaryEmail()
		}
		if email != "" {
			reason := "reply opt-out"
			_, err := in.store.UpsertUnsubscribe(ctx, store.UnsubscribeEntry{
				Email:     email,
				CompanyID: &company.ID,
				Reason:    &reason,
			})
			if err != nil {
				return nil, fmt.Errorf("opt-out unsubscribe: %w", err)
			}
			outcome.Unsubscribed = true
			in.metrics.Unsubscribes.WithLabelValues("reply").Inc()
		}
	}

	in.logger.Info("reply ingested",
		"company_id", company.ID,
		"channel", reply.Channel,
		"cancelled", cancelled,
		"intent", outcome.Classification.Intent,
		"unsubscribed", outcome.Unsubscribed)
	return outcome, nil
}

// HandleOpen records a tracking pixel hit.
func (in *Ingestor) HandleOpen(ctx context.Context, messageID int64, ipAddress, userAgent string) error {
	event := store.OpenEvent{MessageID: messageID}
	if ipAddress != "" {
		event.IPAddress = &ipAddress
	}
	if userAgent != "" {
		event.UserAgent = &userAgent
	}
	if err := in.store.InsertOpen(ctx, event); err != nil {
		return err
	}
	in.metrics.OpenEvents.Inc()
	return nil
}

// HandleUnsubscribeToken resolves an unsubscribe link click to the
// company behind the message and suppresses its email address.
func (in *Ingestor) HandleUnsubscribeToken(ctx context.Context, token string) (*store.UnsubscribeEntry, error) {
	msg, err := in.store.MessageByUnsubscribeToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("resolve unsubscribe token: %w", err)
	}
	company, err := in.store.CompanyByID(ctx, msg.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("resolve unsubscribe company: %w", err)
	}
	email := company.PrimaryEmail()
	if email == "" {
		return nil, fmt.Errorf("company %d has no email to unsubscribe", company.ID)
	}

	reason := "unsubscribe link"
	entry, err := in.store.UpsertUnsubscribe(ctx, store.UnsubscribeEntry{
		Email:     email,
		CompanyID: &company.ID,
		Reason:    &reason,
	})
	if err != nil {
		return nil, fmt.Errorf("link unsubscribe: %w", err)
	}
	in.metrics.Unsubscribes.WithLabelValues("link").Inc()
	in.logger.Info("unsubscribe via link", "company_id", company.ID)
	return entry, nil
}

func replyIdentity(reply InboundReply) string {
	from := strings.TrimSpace(reply.From)
	if reply.Channel == store.ChannelWhatsApp {
		return "whatsapp:" + digitsOnly(from)
	}
	return strings.ToLower(from)
}
