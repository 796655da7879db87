// Package content composes outreach copy per company, channel and
// sequence stage. It prefers an LLM and always has a deterministic
// template fallback, so message planning never blocks on the API.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/goyalvivek7/salesh-auto/internal/metrics"
	"github.com/goyalvivek7/salesh-auto/internal/store"
)

// SenderProfile describes who the outreach comes from. It is embedded
// verbatim in prompts so the LLM never invents placeholder signatures.
type SenderProfile struct {
	Name        string
	Company     string
	Email       string
	Description string
}

// Generator produces subject lines and message bodies.
type Generator struct {
	llm     *openai.Client
	model   string
	sender  SenderProfile
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewGenerator(apiKey, model string, sender SenderProfile, logger *slog.Logger, m *metrics.Metrics) *Generator {
	g := &Generator{
		model:   model,
		sender:  sender,
		logger:  logger.With("component", "content"),
		metrics: m,
	}
	if apiKey != "" {
		g.llm = openai.NewClient(apiKey)
	}
	return g
}

var trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)

// Compose implements outreach.ContentResolver. LLM failures degrade to
// the template fallback rather than erroring.
func (g *Generator) Compose(ctx context.Context, company *store.Company, channel store.Channel, stage store.Stage) (string, string, error) {
	if g.llm != nil {
		subject, body, err := g.composeLLM(ctx, company, channel, stage)
		if err == nil {
			return subject, body, nil
		}
		g.logger.Warn("llm compose failed, using template", "company", company.Name, "error", err)
	}
	subject, body := g.composeTemplate(company, channel, stage)
	return subject, body, nil
}

func (g *Generator) composeLLM(ctx context.Context, company *store.Company, channel store.Channel, stage store.Stage) (string, string, error) {
	prompt := fmt.Sprintf(`Generate a personalized %s %s message for %s, a company in the %s industry located in %s.

Your Details (use these in the message, never placeholders):
- Your Name: %s
- Your Company: %s
- Your Email: %s
- What You Offer: %s

Context:
- Platform: %s (WhatsApp must be very concise and conversational; email can be more detailed but still brief.)
- Stage: %s
  - INITIAL: Introduction, brief value proposition, soft call to action.
  - FOLLOWUP_1: Polite reminder, asking if they received the previous message. Mention a benefit.
  - FOLLOWUP_2: Final check-in, ask if there's a better contact person or if timing is wrong.

Rules:
1. Use the actual sender details above, never placeholders like [Your Name].
2. Keep it concise, 2-3 short paragraphs max.
3. Professional but friendly, culturally appropriate for %s.

Return ONLY a JSON object with these fields:
- subject: (required for EMAIL, null for WhatsApp) brief subject line, 5-8 words max
- content: the message body`,
		stage, channel, company.Name, company.Industry, company.Country,
		g.sender.Name, g.sender.Company, g.sender.Email, g.sender.Description,
		channel, stage, company.Country)

	start := time.Now()
	resp, err := g.llm.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are an expert sales copywriter. Always respond with valid JSON format. Never use placeholders; use the actual sender details provided.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0.7,
		MaxTokens:   500,
	})
	elapsed := time.Since(start).Seconds()
	if err != nil {
		g.metrics.LLMRequests.WithLabelValues("error").Inc()
		g.metrics.LLMLatency.WithLabelValues("error").Observe(elapsed)
		return "", "", fmt.Errorf("compose completion: %w", err)
	}
	g.metrics.LLMRequests.WithLabelValues("ok").Inc()
	g.metrics.LLMLatency.WithLabelValues("ok").Observe(elapsed)

	if len(resp.Choices) == 0 {
		return "", "", errors.New("compose: empty completion")
	}
	return parseCopy(resp.Choices[0].Message.Content)
}

// parseCopy extracts the JSON object and repairs trailing commas, a
// common completion defect.
func parseCopy(content string) (string, string, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return "", "", errors.New("no JSON object in completion")
	}
	payload := trailingCommaPattern.ReplaceAllString(content[start:end+1], "$1")

	var parsed struct {
		Subject *string `json:"subject"`
		Content string  `json:"content"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return "", "", fmt.Errorf("parse copy: %w", err)
	}
	if strings.TrimSpace(parsed.Content) == "" {
		return "", "", errors.New("completion has empty content")
	}
	subject := ""
	if parsed.Subject != nil {
		subject = strings.TrimSpace(*parsed.Subject)
	}
	return subject, strings.TrimSpace(parsed.Content), nil
}

func (g *Generator) composeTemplate(company *store.Company, channel store.Channel, stage store.Stage) (string, string) {
	industry := strings.ToLower(company.Industry)
	country := strings.ToLower(company.Country)

	if channel == store.ChannelWhatsApp {
		var body string
		switch stage {
		case store.StageFollowup1:
			body = fmt.Sprintf("Hi! %s from %s here, just checking you saw my earlier message. We've helped other %s companies and would love to do the same for %s. Quick call this week?",
				g.sender.Name, g.sender.Company, industry, company.Name)
		case store.StageFollowup2:
			body = fmt.Sprintf("Hi, %s from %s again. If now isn't the right time or I should reach someone else at %s, just let me know. Happy to reconnect whenever suits.",
				g.sender.Name, g.sender.Company, company.Name)
		default:
			body = fmt.Sprintf("Hi! I'm %s from %s. We specialize in %s for %s companies.\n\nWould love to share how we've helped similar companies in %s. Quick call this week?",
				g.sender.Name, g.sender.Company, g.sender.Description, industry, country)
		}
		return "", body
	}

	subject := fmt.Sprintf("Partnership opportunity with %s", company.Name)
	var body string
	switch stage {
	case store.StageFollowup1:
		body = fmt.Sprintf("Hi %s team,\n\nJust following up on my earlier note. We've helped companies in the %s sector cut manual work with %s, and I'd be glad to show you what that could look like for you.\n\nWould a short call this week work?\n\nBest regards,\n%s\n%s",
			company.Name, industry, g.sender.Description, g.sender.Name, g.sender.Company)
	case store.StageFollowup2:
		body = fmt.Sprintf("Hi %s team,\n\nThis is my last note for now. If there's a better person to speak with at %s, or the timing is simply wrong, I'd appreciate a quick pointer.\n\nThanks either way!\n\nBest regards,\n%s\n%s",
			company.Name, company.Name, g.sender.Name, g.sender.Company)
	default:
		body = fmt.Sprintf("Hi %s team,\n\nI'm %s from %s. We'd love to discuss how we can help your %s business in %s.\n\nInterested in a quick call?\n\nBest regards,\n%s\n%s",
			company.Name, g.sender.Name, g.sender.Company, industry, country, g.sender.Name, g.sender.Company)
	}
	return subject, body
}
