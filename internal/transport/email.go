// Package transport holds the delivery channel implementations: email
// via SendGrid and WhatsApp via a paired device session.
package transport

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/goyalvivek7/salesh-auto/internal/outreach"
)

// Email sends campaign mail through SendGrid. An unconfigured instance
// reports skipped sends instead of erroring, so the rest of the
// pipeline keeps working in development.
type Email struct {
	client    *sendgrid.Client
	fromName  string
	fromEmail string
	logger    *slog.Logger
}

func NewEmail(apiKey, fromName, fromEmail string, logger *slog.Logger) *Email {
	e := &Email{
		fromName:  fromName,
		fromEmail: fromEmail,
		logger:    logger.With("component", "email"),
	}
	if apiKey != "" {
		e.client = sendgrid.NewSendClient(apiKey)
	}
	return e
}

// Send implements outreach.Transport.
func (e *Email) Send(ctx context.Context, out outreach.Outbound) outreach.SendResult {
	if e.client == nil || e.fromEmail == "" {
		return outreach.SendResult{
			Status: outreach.SendSkipped,
			Err:    errors.New("email transport not configured"),
		}
	}

	from := mail.NewEmail(e.fromName, e.fromEmail)
	to := mail.NewEmail("", out.To)
	htmlBody := renderHTML(out.Body, out.UnsubscribeURL, out.TrackingURL)
	message := mail.NewSingleEmail(from, out.Subject, to, out.Body, htmlBody)

	resp, err := e.client.SendWithContext(ctx, message)
	if err != nil {
		return outreach.SendResult{Status: outreach.SendFailed, Err: fmt.Errorf("sendgrid send: %w", err)}
	}
	if resp.StatusCode >= 300 {
		return outreach.SendResult{
			Status: outreach.SendFailed,
			Err:    fmt.Errorf("sendgrid status %d: %s", resp.StatusCode, strings.TrimSpace(resp.Body)),
		}
	}

	result := outreach.SendResult{Status: outreach.SendSent}
	if ids := resp.Headers["X-Message-Id"]; len(ids) > 0 {
		result.ProviderMessageID = ids[0]
	}
	e.logger.Debug("email sent", "to", out.To, "message_id", out.MessageID)
	return result
}

// renderHTML turns the plain-text body into minimal HTML with the
// tracking pixel and the legally required unsubscribe footer.
func renderHTML(body, unsubscribeURL, trackingURL string) string {
	var b strings.Builder
	b.WriteString("<div>")
	b.WriteString(strings.ReplaceAll(html.EscapeString(body), "\n", "<br>\n"))
	b.WriteString("</div>\n")
	if unsubscribeURL != "" {
		fmt.Fprintf(&b, `<p style="font-size:12px;color:#888">If you'd rather not hear from us, <a href="%s">unsubscribe here</a>.</p>`+"\n", unsubscribeURL)
	}
	if trackingURL != "" {
		fmt.Fprintf(&b, `<img src="%s" width="1" height="1" alt="">`+"\n", trackingURL)
	}
	return b.String()
}
