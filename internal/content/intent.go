package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/goyalvivek7/salesh-auto/internal/metrics"
	"github.com/goyalvivek7/salesh-auto/internal/outreach"
)

// IntentClassifier implements outreach.LLMClassifier with a chat
// completion. Errors are returned to the caller, which falls back to
// keyword matching.
type IntentClassifier struct {
	llm     *openai.Client
	model   string
	metrics *metrics.Metrics
}

// NewIntentClassifier returns nil when no API key is configured so
// callers can pass the result straight to outreach.NewClassifier.
func NewIntentClassifier(apiKey, model string, m *metrics.Metrics) *IntentClassifier {
	if apiKey == "" {
		return nil
	}
	return &IntentClassifier{
		llm:     openai.NewClient(apiKey),
		model:   model,
		metrics: m,
	}
}

// ClassifyIntent labels a reply as INTERESTED, NEUTRAL, DECLINE or
// OPT_OUT.
func (c *IntentClassifier) ClassifyIntent(ctx context.Context, text string) (*outreach.Classification, error) {
	prompt := fmt.Sprintf(`Classify this reply to a B2B sales outreach message into exactly one intent:

- INTERESTED: wants a demo, pricing, a call, or asks to learn more
- NEUTRAL: undecided, asks to be contacted later, needs time
- DECLINE: not interested, wrong person, already covered
- OPT_OUT: asks to stop contact, unsubscribe, or mentions spam

Reply text:
"""
%s
"""

Return ONLY a JSON object with these fields:
- intent: one of INTERESTED, NEUTRAL, DECLINE, OPT_OUT
- confidence: a number between 0 and 1
- reasons: short list of strings explaining the choice`, text)

	start := time.Now()
	resp, err := c.llm.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You classify sales reply intent. Always respond with valid JSON format.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0,
		MaxTokens:   200,
	})
	elapsed := time.Since(start).Seconds()
	if err != nil {
		c.metrics.LLMRequests.WithLabelValues("error").Inc()
		c.metrics.LLMLatency.WithLabelValues("error").Observe(elapsed)
		return nil, fmt.Errorf("classify completion: %w", err)
	}
	c.metrics.LLMRequests.WithLabelValues("ok").Inc()
	c.metrics.LLMLatency.WithLabelValues("ok").Observe(elapsed)

	if len(resp.Choices) == 0 {
		return nil, errors.New("classify: empty completion")
	}
	return parseClassification(resp.Choices[0].Message.Content)
}

func parseClassification(content string) (*outreach.Classification, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, errors.New("no JSON object in completion")
	}
	payload := trailingCommaPattern.ReplaceAllString(content[start:end+1], "$1")

	var parsed struct {
		Intent     string   `json:"intent"`
		Confidence float64  `json:"confidence"`
		Reasons    []string `json:"reasons"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, fmt.Errorf("parse classification: %w", err)
	}

	intent := outreach.Intent(strings.ToUpper(strings.TrimSpace(parsed.Intent)))
	switch intent {
	case outreach.IntentInterested, outreach.IntentNeutral, outreach.IntentDecline, outreach.IntentOptOut:
	default:
		return nil, fmt.Errorf("unknown intent %q", parsed.Intent)
	}
	if parsed.Confidence < 0 || parsed.Confidence > 1 {
		return nil, fmt.Errorf("confidence %v out of range", parsed.Confidence)
	}
	return &outreach.Classification{
		Intent:     intent,
		Confidence: parsed.Confidence,
		Reasons:    parsed.Reasons,
	}, nil
}
