package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/goyalvivek7/salesh-auto/internal/cache"
	"github.com/goyalvivek7/salesh-auto/internal/metrics"
)

const (
	searchBaseURL          = "https://www.googleapis.com/customsearch/v1"
	defaultContactCacheTTL = 24 * time.Hour
	maxContactsPerKind     = 5
)

var (
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\+\d{1,3}[-.\s]?\(?\d{1,4}\)?[-.\s]?\d{1,4}[-.\s]?\d{1,9}`),
		regexp.MustCompile(`\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`),
		regexp.MustCompile(`\b\d{10,15}\b`),
	}
	tagPattern    = regexp.MustCompile(`<[^>]*>`)
	scriptPattern = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)

	// Addresses on these domains are boilerplate or assets, never real
	// company contacts.
	emailSkipList = []string{
		"example.com", "domain.com", "email.com", ".png", ".jpg",
		"sentry.io", "schema.org", "w3.org", "google.com", "facebook.com",
		"twitter.com", "linkedin.com", "youtube.com", "@2x", "wixpress.com",
	}
)

// ContactInfo is what a search pass turns up for one company.
type ContactInfo struct {
	Emails  []string `json:"emails"`
	Phones  []string `json:"phones"`
	Website string   `json:"website"`
}

// SearchConfig holds Google Custom Search credentials.
type SearchConfig struct {
	APIKey         string
	SearchEngineID string
	Timeout        time.Duration
}

// SearchClient finds company contact details through Google Custom
// Search: it locates the official website, scrapes it for contact
// strings, and falls back to direct email/phone queries. Results are
// cached in Redis since the same company keeps coming back across
// automation cycles.
type SearchClient struct {
	cfg     SearchConfig
	http    *http.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
	cache   *cache.Redis
	ttl     time.Duration
}

func NewSearchClient(cfg SearchConfig, logger *slog.Logger, m *metrics.Metrics, redis *cache.Redis) *SearchClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &SearchClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("component", "search"),
		metrics: m,
		cache:   redis,
		ttl:     defaultContactCacheTTL,
	}
}

// Configured reports whether the client has credentials to search with.
func (c *SearchClient) Configured() bool {
	return c.cfg.APIKey != "" && c.cfg.SearchEngineID != ""
}

// FindContact looks up emails, phones and the website for a company.
func (c *SearchClient) FindContact(ctx context.Context, companyName, industry, country string) (*ContactInfo, error) {
	if !c.Configured() {
		return &ContactInfo{}, nil
	}

	cacheKey := fmt.Sprintf("search:contact:%s:%s", strings.ToLower(country), strings.ToLower(companyName))
	if c.cache != nil {
		var cached ContactInfo
		ok, err := c.cache.GetJSON(ctx, cacheKey, &cached)
		if err != nil {
			c.logger.Warn("read contact cache failed", "error", err)
		} else if ok {
			return &cached, nil
		}
	}

	info := &ContactInfo{}
	emails := map[string]bool{}
	phones := map[string]bool{}

	website, err := c.findWebsite(ctx, companyName, industry, country)
	if err != nil {
		c.logger.Warn("website search failed", "company", companyName, "error", err)
	}
	if website != "" {
		info.Website = website
		siteEmails, sitePhones := c.scrapeContacts(ctx, website)
		for _, e := range siteEmails {
			emails[e] = true
		}
		for _, p := range sitePhones {
			phones[p] = true
		}
	}

	if len(emails) < 2 {
		for _, e := range c.searchDirect(ctx, companyName, country, "email") {
			emails[e] = true
		}
	}
	if len(phones) < 2 {
		for _, p := range c.searchDirect(ctx, companyName, country, "phone") {
			phones[p] = true
		}
	}

	for e := range emails {
		info.Emails = append(info.Emails, e)
		if len(info.Emails) >= maxContactsPerKind {
			break
		}
	}
	for p := range phones {
		info.Phones = append(info.Phones, p)
		if len(info.Phones) >= maxContactsPerKind {
			break
		}
	}

	if c.cache != nil {
		if err := c.cache.SetJSON(ctx, cacheKey, info, c.ttl); err != nil {
			c.logger.Warn("set contact cache failed", "error", err)
		}
	}
	return info, nil
}

type searchResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

func (c *SearchClient) findWebsite(ctx context.Context, companyName, industry, country string) (string, error) {
	query := fmt.Sprintf("%q %s %s official website", companyName, industry, country)
	resp, err := c.search(ctx, query, 3)
	if err != nil {
		return "", err
	}
	for _, item := range resp.Items {
		link := strings.ToLower(item.Link)
		if strings.Contains(link, "support.") || strings.Contains(link, "help.") ||
			strings.Contains(link, "/support/") || strings.Contains(link, "/help/") {
			continue
		}
		return item.Link, nil
	}
	if len(resp.Items) > 0 {
		return resp.Items[0].Link, nil
	}
	return "", nil
}

func (c *SearchClient) searchDirect(ctx context.Context, companyName, country, kind string) []string {
	query := fmt.Sprintf("%q %s contact %s address", companyName, country, kind)
	if kind == "phone" {
		query = fmt.Sprintf("%q %s contact phone number", companyName, country)
	}
	resp, err := c.search(ctx, query, 5)
	if err != nil {
		c.logger.Warn("direct contact search failed", "company", companyName, "kind", kind, "error", err)
		return nil
	}

	var text strings.Builder
	for _, item := range resp.Items {
		text.WriteString(item.Snippet)
		text.WriteString(" ")
		text.WriteString(item.Title)
		text.WriteString(" ")
	}
	if kind == "email" {
		return extractEmails(text.String(), 3)
	}
	return extractPhones(text.String(), 3)
}

func (c *SearchClient) search(ctx context.Context, query string, num int) (*searchResponse, error) {
	params := url.Values{}
	params.Set("key", c.cfg.APIKey)
	params.Set("cx", c.cfg.SearchEngineID)
	params.Set("q", query)
	params.Set("num", fmt.Sprintf("%d", num))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchBaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("new search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		c.metrics.SearchRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer res.Body.Close()

	c.metrics.SearchRequests.WithLabelValues(fmt.Sprintf("%d", res.StatusCode)).Inc()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("search error: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &parsed, nil
}

// scrapeContacts fetches the website and pulls contact strings out of
// the visible text. Fetch failures yield empty results, not errors;
// the direct search strategies still run.
func (c *SearchClient) scrapeContacts(ctx context.Context, websiteURL string) ([]string, []string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, websiteURL, nil)
	if err != nil {
		return nil, nil
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; salesh-auto/1.0)")

	res, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("website fetch failed", "url", websiteURL, "error", err)
		return nil, nil
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, nil
	}

	text := scriptPattern.ReplaceAllString(string(body), " ")
	text = tagPattern.ReplaceAllString(text, " ")

	return extractEmails(text, maxContactsPerKind), extractPhones(text, maxContactsPerKind)
}

func extractEmails(text string, limit int) []string {
	var out []string
	seen := map[string]bool{}
	for _, match := range emailPattern.FindAllString(text, -1) {
		email := strings.ToLower(match)
		if seen[email] || skipEmail(email) {
			continue
		}
		seen[email] = true
		out = append(out, email)
		if len(out) >= limit {
			break
		}
	}
	return out
}

func skipEmail(email string) bool {
	for _, skip := range emailSkipList {
		if strings.Contains(email, skip) {
			return true
		}
	}
	return false
}

func extractPhones(text string, limit int) []string {
	var out []string
	seen := map[string]bool{}
	for _, pattern := range phonePatterns {
		for _, match := range pattern.FindAllString(text, -1) {
			phone := strings.TrimSpace(match)
			digits := countDigits(phone)
			// Short digit runs are dates and zip codes, not phones.
			if digits < 10 || seen[phone] {
				continue
			}
			seen[phone] = true
			out = append(out, phone)
			if len(out) >= limit {
				return out
			}
		}
	}
	return out
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
