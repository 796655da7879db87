package outreach

import (
	"context"
	"fmt"
	"strings"
)

// Intent labels the disposition of an inbound reply.
type Intent string

const (
	IntentInterested Intent = "INTERESTED"
	IntentNeutral    Intent = "NEUTRAL"
	IntentDecline    Intent = "DECLINE"
	IntentOptOut     Intent = "OPT_OUT"
)

// Classification is an intent with a confidence and supporting reasons.
// Only OPT_OUT carries a side effect downstream; the rest are labels
// for triage.
type Classification struct {
	Intent     Intent
	Confidence float64
	Reasons    []string
}

// LLMClassifier classifies free-text replies with a language model.
type LLMClassifier interface {
	ClassifyIntent(ctx context.Context, text string) (*Classification, error)
}

var (
	interestedKeywords = []string{
		"interested", "demo", "demonstration", "price", "pricing", "cost",
		"quote", "meeting", "call", "schedule", "discuss", "learn more",
		"tell me more", "send details", "brochure", "proposal", "yes",
		"let's talk", "available", "book", "appointment", "consultation",
	}
	neutralKeywords = []string{
		"maybe", "perhaps", "later", "next month", "next quarter", "not now",
		"busy", "contact me later", "follow up", "check back", "remind me",
		"think about", "consider", "need time", "reviewing", "evaluating",
	}
	declineKeywords = []string{
		"no thanks", "not interested", "wrong person", "wrong company",
		"already have", "not looking", "not a fit", "decline", "pass",
		"no need", "we're good", "not relevant",
	}
	optOutKeywords = []string{
		"stop", "unsubscribe", "remove", "opt out", "don't contact",
		"do not contact", "never contact", "spam", "block", "report",
		"harassment", "stop messaging", "remove me", "take me off",
	}
)

// Classifier labels reply text. It tries the LLM first when one is
// configured and falls back to keyword matching, so classification
// never fails outright.
type Classifier struct {
	llm LLMClassifier
}

// NewClassifier builds a classifier. llm may be nil.
func NewClassifier(llm LLMClassifier) *Classifier {
	return &Classifier{llm: llm}
}

// Classify returns the intent of the reply text.
func (c *Classifier) Classify(ctx context.Context, text string) Classification {
	if strings.TrimSpace(text) == "" {
		return Classification{
			Intent:     IntentDecline,
			Confidence: 0.5,
			Reasons:    []string{"empty reply text"},
		}
	}

	if c.llm != nil {
		if result, err := c.llm.ClassifyIntent(ctx, text); err == nil && result != nil {
			return *result
		}
	}
	return classifyByKeywords(text)
}

// classifyByKeywords is the deterministic fallback. Opt-out always wins;
// interest beats decline at equal match counts.
func classifyByKeywords(text string) Classification {
	lower := strings.ToLower(text)

	interested := countMatches(lower, interestedKeywords)
	neutral := countMatches(lower, neutralKeywords)
	decline := countMatches(lower, declineKeywords)
	optOut := countMatches(lower, optOutKeywords)

	switch {
	case optOut > 0:
		return Classification{
			Intent:     IntentOptOut,
			Confidence: capConfidence(0.5+float64(optOut)*0.15, 0.95),
			Reasons:    []string{fmt.Sprintf("matched opt-out keywords: %d", optOut)},
		}
	case interested > 0 && interested >= decline:
		return Classification{
			Intent:     IntentInterested,
			Confidence: capConfidence(0.5+float64(interested)*0.1, 0.9),
			Reasons:    []string{fmt.Sprintf("matched interest keywords: %d", interested)},
		}
	case neutral > 0 && neutral > decline:
		return Classification{
			Intent:     IntentNeutral,
			Confidence: capConfidence(0.5+float64(neutral)*0.1, 0.85),
			Reasons:    []string{fmt.Sprintf("matched neutral keywords: %d", neutral)},
		}
	case decline > 0:
		return Classification{
			Intent:     IntentDecline,
			Confidence: capConfidence(0.5+float64(decline)*0.1, 0.85),
			Reasons:    []string{fmt.Sprintf("matched decline keywords: %d", decline)},
		}
	default:
		return Classification{
			Intent:     IntentDecline,
			Confidence: 0.4,
			Reasons:    []string{"no clear intent indicators"},
		}
	}
}

func countMatches(text string, keywords []string) int {
	count := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			count++
		}
	}
	return count
}

func capConfidence(v, cap float64) float64 {
	if v > cap {
		return cap
	}
	return v
}
