// Package outreach implements the campaign state machine: sequence
// planning, suppression, delivery, reply ingestion and the automation
// lifecycle. Persistence and transports are supplied through narrow
// interfaces so each piece is testable in isolation.
package outreach

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goyalvivek7/salesh-auto/internal/store"
)

// SendStatus is the outcome a transport reports for one send attempt.
type SendStatus string

const (
	SendSent    SendStatus = "sent"
	SendFailed  SendStatus = "failed"
	SendSkipped SendStatus = "skipped"
)

// SendResult is what a transport returns for one outbound message.
type SendResult struct {
	Status SendStatus
	// ProviderMessageID is the transport-side id, used to correlate
	// later delivery receipts. Empty when the provider issues none.
	ProviderMessageID string
	Err               error
}

// Outbound is everything a transport needs to deliver one message.
type Outbound struct {
	MessageID      int64
	To             string
	Subject        string
	Body           string
	UnsubscribeURL string
	TrackingURL    string
}

// Transport delivers a single message on one channel.
type Transport interface {
	Send(ctx context.Context, out Outbound) SendResult
}

// ContentResolver produces the subject and body for one message slot.
type ContentResolver interface {
	Compose(ctx context.Context, company *store.Company, channel store.Channel, stage store.Stage) (subject, body string, err error)
}

// demoNumbers are placeholder contacts that search providers hand back
// when they have no real data. Any phone containing one of these digit
// runs is never messaged.
var demoNumbers = []string{"987654321", "9876543210", "1234567890", "0000000000"}

// IsDemoNumber reports whether the phone looks like placeholder data.
func IsDemoNumber(phone string) bool {
	digits := digitsOnly(phone)
	if digits == "" {
		return true
	}
	for _, demo := range demoNumbers {
		if strings.Contains(digits, demo) {
			return true
		}
	}
	return false
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SendTimeFrom returns the next occurrence of hour:minute in loc: today
// if that moment is still ahead, otherwise tomorrow.
func SendTimeFrom(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	at := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !at.After(local) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

// truncate cuts s to at most n bytes without splitting a rune, so the
// result is always valid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
