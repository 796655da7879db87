package outreach

import (
	"context"
	"testing"
)

func TestClassifyOptOutTakesPriority(t *testing.T) {
	c := NewClassifier(nil)
	got := c.Classify(context.Background(), "I am interested but please unsubscribe me and stop messaging")
	if got.Intent != IntentOptOut {
		t.Fatalf("intent = %s, want %s", got.Intent, IntentOptOut)
	}
	if got.Confidence <= 0.5 {
		t.Fatalf("confidence = %v, want > 0.5", got.Confidence)
	}
}

func TestClassifyConfidenceCaps(t *testing.T) {
	c := NewClassifier(nil)
	// Pack enough opt-out keywords to exceed the cap.
	got := c.Classify(context.Background(), "stop unsubscribe remove opt out spam block report harassment")
	if got.Intent != IntentOptOut {
		t.Fatalf("intent = %s, want %s", got.Intent, IntentOptOut)
	}
	if got.Confidence != 0.95 {
		t.Fatalf("confidence = %v, want capped at 0.95", got.Confidence)
	}
}

func TestClassifyInterested(t *testing.T) {
	c := NewClassifier(nil)
	got := c.Classify(context.Background(), "Sounds good, can you send pricing and schedule a demo?")
	if got.Intent != IntentInterested {
		t.Fatalf("intent = %s, want %s", got.Intent, IntentInterested)
	}
}

func TestClassifyNeutral(t *testing.T) {
	c := NewClassifier(nil)
	got := c.Classify(context.Background(), "We are busy right now, maybe check back next quarter")
	if got.Intent != IntentNeutral {
		t.Fatalf("intent = %s, want %s", got.Intent, IntentNeutral)
	}
}

func TestClassifyDecline(t *testing.T) {
	c := NewClassifier(nil)
	got := c.Classify(context.Background(), "No thanks, we already have a vendor and are not looking")
	if got.Intent != IntentDecline {
		t.Fatalf("intent = %s, want %s", got.Intent, IntentDecline)
	}
}

func TestClassifyEmptyText(t *testing.T) {
	c := NewClassifier(nil)
	got := c.Classify(context.Background(), "   ")
	if got.Intent != IntentDecline {
		t.Fatalf("intent = %s, want %s", got.Intent, IntentDecline)
	}
	if got.Confidence != 0.5 {
		t.Fatalf("confidence = %v, want 0.5", got.Confidence)
	}
}

func TestClassifyNoIndicators(t *testing.T) {
	c := NewClassifier(nil)
	got := c.Classify(context.Background(), "The quarterly weather in Hamburg was unusual")
	if got.Intent != IntentDecline {
		t.Fatalf("intent = %s, want %s", got.Intent, IntentDecline)
	}
	if got.Confidence != 0.4 {
		t.Fatalf("confidence = %v, want 0.4", got.Confidence)
	}
}

type stubLLM struct {
	result *Classification
	err    error
	calls  int
}

func (s *stubLLM) ClassifyIntent(ctx context.Context, text string) (*Classification, error) {
	s.calls++
	return s.result, s.err
}

func TestClassifyPrefersLLM(t *testing.T) {
	llm := &stubLLM{result: &Classification{Intent: IntentInterested, Confidence: 0.92}}
	c := NewClassifier(llm)
	got := c.Classify(context.Background(), "completely neutral text")
	if llm.calls != 1 {
		t.Fatalf("llm calls = %d, want 1", llm.calls)
	}
	if got.Intent != IntentInterested || got.Confidence != 0.92 {
		t.Fatalf("got %+v, want llm result", got)
	}
}

func TestClassifyFallsBackWhenLLMFails(t *testing.T) {
	llm := &stubLLM{err: context.DeadlineExceeded}
	c := NewClassifier(llm)
	got := c.Classify(context.Background(), "please unsubscribe")
	if got.Intent != IntentOptOut {
		t.Fatalf("intent = %s, want keyword fallback %s", got.Intent, IntentOptOut)
	}
}
