package outreach

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goyalvivek7/salesh-auto/internal/metrics"
	"github.com/goyalvivek7/salesh-auto/internal/store"
)

// DriverStore is the persistence surface the delivery driver needs.
type DriverStore interface {
	DueMessages(ctx context.Context, now time.Time, limit int) ([]store.Message, error)
	CompanyByID(ctx context.Context, id int64) (*store.Company, error)
	MarkMessageSent(ctx context.Context, id int64, sentAt time.Time, providerMessageID string) error
	MarkMessageFailed(ctx context.Context, id int64, reason string) error
}

// Suppressor answers the last-moment "may this go out" question.
type Suppressor interface {
	IsSuppressed(ctx context.Context, channel store.Channel, companyID int64, email string) (bool, string, error)
}

// CycleStats summarizes one delivery cycle.
type CycleStats struct {
	Processed  int
	Sent       int
	Failed     int
	Suppressed int
	Skipped    int
}

// Driver executes due DRAFT messages in bounded batches. Each message
// is finalized independently; one bad recipient never blocks the rest
// of the batch.
type Driver struct {
	store      DriverStore
	oracle     Suppressor
	transports map[store.Channel]Transport
	batchSize  int
	baseURL    string
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewDriver(s DriverStore, oracle Suppressor, transports map[store.Channel]Transport, batchSize int, baseURL string, logger *slog.Logger, m *metrics.Metrics) *Driver {
	return &Driver{
		store:      s,
		oracle:     oracle,
		transports: transports,
		batchSize:  batchSize,
		baseURL:    baseURL,
		logger:     logger.With("component", "driver"),
		metrics:    m,
		now:        time.Now,
	}
}

// RunCycle picks up one batch of due messages and executes them.
func (d *Driver) RunCycle(ctx context.Context) (CycleStats, error) {
	var stats CycleStats

	due, err := d.store.DueMessages(ctx, d.now(), d.batchSize)
	if err != nil {
		return stats, fmt.Errorf("delivery cycle: %w", err)
	}

	for _, msg := range due {
		stats.Processed++
		d.execute(ctx, msg, &stats)
	}

	if stats.Processed > 0 {
		d.logger.Info("delivery cycle finished",
			"processed", stats.Processed,
			"sent", stats.Sent,
			"failed", stats.Failed,
			"suppressed", stats.Suppressed,
			"skipped", stats.Skipped)
	}
	return stats, nil
}

func (d *Driver) execute(ctx context.Context, msg store.Message, stats *CycleStats) {
	company, err := d.store.CompanyByID(ctx, msg.CompanyID)
	if err != nil {
		d.fail(ctx, msg, fmt.Sprintf("resolve company: %v", err), stats)
		return
	}

	var to string
	switch msg.Channel {
	case store.ChannelEmail:
		to = company.PrimaryEmail()
		if to == "" {
			d.fail(ctx, msg, "no email address on file", stats)
			return
		}
	case store.ChannelWhatsApp:
		to = company.PrimaryPhone()
		if to == "" {
			d.fail(ctx, msg, "no phone number on file", stats)
			return
		}
	default:
		d.fail(ctx, msg, fmt.Sprintf("unsupported channel %s", msg.Channel), stats)
		return
	}

	email := ""
	if msg.Channel == store.ChannelEmail {
		email = to
	}
	suppressed, reason, err := d.oracle.IsSuppressed(ctx, msg.Channel, msg.CompanyID, email)
	if err != nil {
		// Fail closed: a broken suppression check must not let a
		// message through.
		d.fail(ctx, msg, fmt.Sprintf("suppression check: %v", err), stats)
		return
	}
	if suppressed {
		if err := d.store.MarkMessageFailed(ctx, msg.ID, reason); err != nil {
			d.logger.Error("mark suppressed message", "message_id", msg.ID, "error", err)
			d.metrics.Errors.WithLabelValues("driver").Inc()
		}
		stats.Suppressed++
		d.metrics.OutboundMessages.WithLabelValues(string(msg.Channel), "suppressed").Inc()
		return
	}

	transport, ok := d.transports[msg.Channel]
	if !ok {
		d.fail(ctx, msg, fmt.Sprintf("no transport configured for %s", msg.Channel), stats)
		return
	}

	out := Outbound{
		MessageID: msg.ID,
		To:        to,
		Body:      msg.Content,
	}
	if msg.Subject != nil {
		out.Subject = *msg.Subject
	}
	if d.baseURL != "" {
		if msg.UnsubscribeToken != nil {
			out.UnsubscribeURL = fmt.Sprintf("%s/unsubscribe/%s", d.baseURL, *msg.UnsubscribeToken)
		}
		out.TrackingURL = fmt.Sprintf("%s/track/open/%d", d.baseURL, msg.ID)
	}

	result := transport.Send(ctx, out)
	switch result.Status {
	case SendSent:
		if err := d.store.MarkMessageSent(ctx, msg.ID, d.now(), result.ProviderMessageID); err != nil {
			d.logger.Error("mark message sent", "message_id", msg.ID, "error", err)
			d.metrics.Errors.WithLabelValues("driver").Inc()
			return
		}
		stats.Sent++
		d.metrics.OutboundMessages.WithLabelValues(string(msg.Channel), "sent").Inc()
	case SendSkipped:
		reason := "transport skipped send"
		if result.Err != nil {
			reason = result.Err.Error()
		}
		if err := d.store.MarkMessageFailed(ctx, msg.ID, reason); err != nil {
			d.logger.Error("mark skipped message", "message_id", msg.ID, "error", err)
			d.metrics.Errors.WithLabelValues("driver").Inc()
			return
		}
		stats.Skipped++
		d.metrics.OutboundMessages.WithLabelValues(string(msg.Channel), "skipped").Inc()
	default:
		reason := "send failed"
		if result.Err != nil {
			reason = result.Err.Error()
		}
		d.fail(ctx, msg, reason, stats)
	}
}

func (d *Driver) fail(ctx context.Context, msg store.Message, reason string, stats *CycleStats) {
	if err := d.store.MarkMessageFailed(ctx, msg.ID, reason); err != nil {
		d.logger.Error("mark message failed", "message_id", msg.ID, "error", err)
		d.metrics.Errors.WithLabelValues("driver").Inc()
		return
	}
	stats.Failed++
	d.metrics.OutboundMessages.WithLabelValues(string(msg.Channel), "failed").Inc()
	d.logger.Warn("message failed", "message_id", msg.ID, "channel", msg.Channel, "reason", reason)
}
