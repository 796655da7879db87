package outreach

import (
	"context"
	"fmt"

	"github.com/nyaruka/phonenumbers"
)

// OnlineChecker checks reachability of phone numbers with the messaging
// provider, e.g. a WhatsApp account lookup. Optional.
type OnlineChecker interface {
	OnWhatsApp(ctx context.Context, phones []string) (map[string]bool, error)
}

// Verifier decides whether a phone number is worth messaging: it must
// not be placeholder data, must parse as a valid number, and, when an
// online checker is configured, must have an account on the provider.
type Verifier struct {
	defaultRegion string
	checker       OnlineChecker
}

// NewVerifier builds a verifier. defaultRegion is the ISO 3166-1 region
// used for numbers without a country prefix; checker may be nil.
func NewVerifier(defaultRegion string, checker OnlineChecker) *Verifier {
	if defaultRegion == "" {
		defaultRegion = "IN"
	}
	return &Verifier{defaultRegion: defaultRegion, checker: checker}
}

// VerifyPhone normalizes the number to E.164 and returns it, or an
// error explaining why the number is unusable.
func (v *Verifier) VerifyPhone(ctx context.Context, phone string) (string, error) {
	if IsDemoNumber(phone) {
		return "", fmt.Errorf("phone %q is placeholder data", phone)
	}

	parsed, err := phonenumbers.Parse(phone, v.defaultRegion)
	if err != nil {
		return "", fmt.Errorf("parse phone %q: %w", phone, err)
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", fmt.Errorf("phone %q is not a valid number", phone)
	}
	e164 := phonenumbers.Format(parsed, phonenumbers.E164)

	if v.checker != nil {
		on, err := v.checker.OnWhatsApp(ctx, []string{e164})
		if err != nil {
			return "", fmt.Errorf("check provider account for %s: %w", e164, err)
		}
		if !on[e164] {
			return "", fmt.Errorf("phone %s has no provider account", e164)
		}
	}
	return e164, nil
}
