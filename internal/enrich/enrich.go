// Package enrich discovers outreach targets: an LLM proposes companies
// for an industry and country, and web search fills in verified
// contact details before anything is persisted.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/goyalvivek7/salesh-auto/internal/metrics"
	"github.com/goyalvivek7/salesh-auto/internal/store"
)

// EnrichStore is the persistence surface enrichment needs.
type EnrichStore interface {
	CreateCompany(ctx context.Context, company store.Company) (*store.Company, bool, error)
}

// Enricher turns an (industry, country) pair into stored companies.
type Enricher struct {
	llm     *openai.Client
	model   string
	search  *SearchClient
	store   EnrichStore
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewEnricher(apiKey, model string, search *SearchClient, s EnrichStore, logger *slog.Logger, m *metrics.Metrics) *Enricher {
	e := &Enricher{
		model:   model,
		search:  search,
		store:   s,
		logger:  logger.With("component", "enrich"),
		metrics: m,
	}
	if apiKey != "" {
		e.llm = openai.NewClient(apiKey)
	}
	return e
}

type candidate struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Website string `json:"website"`
}

// DiscoverCompanies proposes up to limit companies and persists the
// ones not already known. Only newly created companies are returned,
// so callers never re-message an existing contact.
func (e *Enricher) DiscoverCompanies(ctx context.Context, industry, country string, limit int) ([]*store.Company, error) {
	if e.llm == nil {
		return nil, errors.New("company discovery requires an OpenAI API key")
	}
	if limit <= 0 {
		limit = 10
	}

	candidates, err := e.fetchCandidates(ctx, industry, country, limit)
	if err != nil {
		return nil, err
	}

	var created []*store.Company
	for _, cand := range candidates {
		if strings.TrimSpace(cand.Name) == "" {
			continue
		}
		company := e.buildCompany(ctx, cand, industry, country)

		saved, isNew, err := e.store.CreateCompany(ctx, company)
		if err != nil {
			e.logger.Warn("persist company failed", "name", cand.Name, "error", err)
			e.metrics.Errors.WithLabelValues("enrich").Inc()
			continue
		}
		if isNew {
			created = append(created, saved)
		}
	}

	e.logger.Info("company discovery finished",
		"industry", industry,
		"country", country,
		"candidates", len(candidates),
		"created", len(created))
	return created, nil
}

// buildCompany merges the LLM's guess with search-verified contacts.
// Search results win: the LLM routinely fabricates addresses.
func (e *Enricher) buildCompany(ctx context.Context, cand candidate, industry, country string) store.Company {
	company := store.Company{
		Name:     strings.TrimSpace(cand.Name),
		Industry: industry,
		Country:  country,
	}

	emails := []string{}
	phones := []string{}
	website := strings.TrimSpace(cand.Website)

	if e.search != nil && e.search.Configured() {
		info, err := e.search.FindContact(ctx, company.Name, industry, country)
		if err != nil {
			e.logger.Warn("contact search failed", "name", company.Name, "error", err)
		} else {
			emails = info.Emails
			phones = info.Phones
			if info.Website != "" {
				website = info.Website
			}
		}
	}
	if len(emails) == 0 && strings.TrimSpace(cand.Email) != "" {
		emails = []string{strings.ToLower(strings.TrimSpace(cand.Email))}
	}
	if len(phones) == 0 && strings.TrimSpace(cand.Phone) != "" {
		phones = []string{strings.TrimSpace(cand.Phone)}
	}

	for i, email := range emails {
		company.Emails = append(company.Emails, store.CompanyEmail{Email: email, IsPrimary: i == 0})
	}
	for i, phone := range phones {
		company.Phones = append(company.Phones, store.CompanyPhone{Phone: phone, IsPrimary: i == 0})
	}
	if len(emails) > 0 {
		company.Email = &emails[0]
	}
	if len(phones) > 0 {
		company.Phone = &phones[0]
	}
	if website != "" {
		company.Website = &website
	}
	return company
}

func (e *Enricher) fetchCandidates(ctx context.Context, industry, country string, limit int) ([]candidate, error) {
	prompt := fmt.Sprintf(`Generate a list of %d real companies in the %s industry located in %s.

For each company, provide:
- name: The company name
- email: A realistic contact email (use company domain if possible)
- phone: A phone number with proper %s country code format
- website: The company website URL

Return the data as a JSON array of objects. Each object should have these exact fields: name, email, phone, website.
Make the companies realistic and diverse. Include a mix of large and small companies in %s.`,
		limit, industry, country, country, industry)

	start := time.Now()
	resp, err := e.llm.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a helpful assistant that generates realistic company data. Always respond with valid JSON format.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0.7,
		MaxTokens:   2000,
	})
	elapsed := time.Since(start).Seconds()
	if err != nil {
		e.metrics.LLMRequests.WithLabelValues("error").Inc()
		e.metrics.LLMLatency.WithLabelValues("error").Observe(elapsed)
		return nil, fmt.Errorf("fetch companies: %w", err)
	}
	e.metrics.LLMRequests.WithLabelValues("ok").Inc()
	e.metrics.LLMLatency.WithLabelValues("ok").Observe(elapsed)

	if len(resp.Choices) == 0 {
		return nil, errors.New("fetch companies: empty completion")
	}

	candidates, err := parseCandidates(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// parseCandidates tolerates prose around the JSON payload and a bare
// object instead of an array.
func parseCandidates(content string) ([]candidate, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	var payload string
	if start >= 0 && end > start {
		payload = content[start : end+1]
	} else {
		objStart := strings.Index(content, "{")
		objEnd := strings.LastIndex(content, "}")
		if objStart < 0 || objEnd <= objStart {
			return nil, errors.New("no JSON payload in completion")
		}
		payload = "[" + content[objStart:objEnd+1] + "]"
	}

	var candidates []candidate
	if err := json.Unmarshal([]byte(payload), &candidates); err != nil {
		return nil, fmt.Errorf("parse company list: %w", err)
	}
	return candidates, nil
}
