package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goyalvivek7/salesh-auto/internal/metrics"
	"github.com/goyalvivek7/salesh-auto/internal/outreach"
	"github.com/goyalvivek7/salesh-auto/internal/store"
)

// webhookDedupTTL bounds how long a provider message id is remembered
// for replay protection.
const webhookDedupTTL = 24 * time.Hour

// IngestAPI is the slice of reply/event ingestion the handlers need.
type IngestAPI interface {
	HandleReply(ctx context.Context, reply outreach.InboundReply) (*outreach.ReplyOutcome, error)
	HandleOpen(ctx context.Context, messageID int64, ipAddress, userAgent string) error
	HandleUnsubscribeToken(ctx context.Context, token string) (*store.UnsubscribeEntry, error)
}

// AdminStore is the slice of the store the admin endpoints need.
type AdminStore interface {
	RetryFailedMessages(ctx context.Context, ids []int64) (int64, error)
	SetAutomationStatus(ctx context.Context, id int64, status store.AutomationStatus, active bool) error
}

// Deduper suppresses replayed webhook deliveries.
type Deduper interface {
	Once(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Dependencies exposes core dependencies to handlers.
type Dependencies struct {
	Ingest IngestAPI
	Store  AdminStore
	Dedup  Deduper
}

// Server wraps an http.Server with the service's routes.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	metrics    *metrics.Metrics
	deps       Dependencies
	basePath   string
}

// New creates the HTTP server listening on addr.
func New(addr string, logger *slog.Logger, metricRegistry *metrics.Metrics, deps Dependencies, basePath string) *Server {
	server := &Server{
		logger:   logger.With("component", "http"),
		metrics:  metricRegistry,
		deps:     deps,
		basePath: normaliseBasePath(basePath),
	}

	server.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mountWithBasePath(server.basePath, server.routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if server.basePath != "" {
		server.logger.Info("http server configured with base path", "base_path", server.basePath)
	}
	return server
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/webhook/whatsapp", s.handleWhatsAppWebhook)
	mux.HandleFunc("/track/open/", s.handleTrackOpen)
	mux.HandleFunc("/unsubscribe/", s.handleUnsubscribe)
	mux.HandleFunc("/admin/messages/retry", s.handleRetryMessages)
	mux.HandleFunc("/admin/automations/", s.handleAutomationAction)
	return mux
}

// Start begins listening for incoming HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

type whatsappWebhookPayload struct {
	MessageID string `json:"message_id"`
	From      string `json:"from"`
	Text      string `json:"text"`
}

// handleWhatsAppWebhook accepts inbound WhatsApp messages relayed by an
// external gateway. Deliveries are deduplicated by provider message id
// since gateways retry on slow responses.
func (s *Server) handleWhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload whatsappWebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if payload.From == "" {
		http.Error(w, "missing from", http.StatusBadRequest)
		return
	}

	if s.deps.Dedup != nil && payload.MessageID != "" {
		first, err := s.deps.Dedup.Once(r.Context(), "webhook:whatsapp:"+payload.MessageID, webhookDedupTTL)
		if err != nil {
			s.logger.Warn("webhook dedup check failed", "error", err)
		} else if !first {
			writeJSON(w, map[string]string{"status": "duplicate"})
			return
		}
	}

	outcome, err := s.deps.Ingest.HandleReply(r.Context(), outreach.InboundReply{
		Channel: store.ChannelWhatsApp,
		From:    payload.From,
		Content: payload.Text,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Unknown senders are normal noise; acknowledge so the
			// gateway stops retrying.
			s.logger.Info("webhook from unknown sender", "from", payload.From)
			writeJSON(w, map[string]string{"status": "ignored"})
			return
		}
		s.logger.Error("webhook reply ingestion failed", "error", err)
		s.metrics.Errors.WithLabelValues("http").Inc()
		http.Error(w, "ingestion failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"status":    "ok",
		"intent":    outcome.Classification.Intent,
		"cancelled": outcome.Cancelled,
	})
}

// pixelGIF is a 1x1 transparent GIF.
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// handleTrackOpen records the open event and always answers with the
// pixel; a broken tracker must never show up in a recipient's mail
// client as a missing image.
func (s *Server) handleTrackOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/track/open/")
	if id, err := strconv.ParseInt(idStr, 10, 64); err == nil {
		ip := clientIP(r)
		if err := s.deps.Ingest.HandleOpen(r.Context(), id, ip, r.UserAgent()); err != nil {
			s.logger.Warn("record open failed", "message_id", id, "error", err)
		}
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.WriteHeader(http.StatusOK)
	w.Write(pixelGIF)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token := strings.TrimPrefix(r.URL.Path, "/unsubscribe/")
	if token == "" {
		http.Error(w, "missing token", http.StatusBadRequest)
		return
	}

	if _, err := s.deps.Ingest.HandleUnsubscribeToken(r.Context(), token); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "unknown unsubscribe link", http.StatusNotFound)
			return
		}
		s.logger.Error("unsubscribe failed", "error", err)
		s.metrics.Errors.WithLabelValues("http").Inc()
		http.Error(w, "unsubscribe failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><p>You have been unsubscribed and will not receive further messages from us.</p></body></html>")
}

type retryRequest struct {
	IDs []int64 `json:"ids"`
}

func (s *Server) handleRetryMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req retryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if len(req.IDs) == 0 {
		http.Error(w, "ids required", http.StatusBadRequest)
		return
	}

	retried, err := s.deps.Store.RetryFailedMessages(r.Context(), req.IDs)
	if err != nil {
		s.logger.Error("retry messages failed", "error", err)
		s.metrics.Errors.WithLabelValues("http").Inc()
		http.Error(w, "retry failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{"status": "ok", "retried": retried})
}

// handleAutomationAction serves /admin/automations/{id}/{start|pause|resume}.
func (s *Server) handleAutomationAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/admin/automations/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		http.Error(w, "invalid automation id", http.StatusBadRequest)
		return
	}

	var (
		status store.AutomationStatus
		active bool
	)
	switch parts[1] {
	case "start", "resume":
		status, active = store.AutomationRunning, true
	case "pause":
		status, active = store.AutomationPaused, false
	default:
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	if err := s.deps.Store.SetAutomationStatus(r.Context(), id, status, active); err != nil {
		s.logger.Error("automation status change failed", "id", id, "error", err)
		s.metrics.Errors.WithLabelValues("http").Inc()
		http.Error(w, "status change failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{"status": "ok", "automation_status": status})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode json", http.StatusInternalServerError)
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx > 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func mountWithBasePath(basePath string, handler http.Handler) http.Handler {
	if basePath == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, basePath) {
			http.NotFound(w, r)
			return
		}
		if len(r.URL.Path) > len(basePath) && r.URL.Path[len(basePath)] != '/' {
			http.NotFound(w, r)
			return
		}
		trimmed := strings.TrimPrefix(r.URL.Path, basePath)
		if trimmed == "" {
			trimmed = "/"
		}
		r.URL.Path = trimmed
		if r.URL.RawPath != "" {
			rawTrimmed := strings.TrimPrefix(r.URL.RawPath, basePath)
			if rawTrimmed == "" {
				rawTrimmed = "/"
			}
			r.URL.RawPath = rawTrimmed
		}
		handler.ServeHTTP(w, r)
	})
}

func normaliseBasePath(base string) string {
	base = strings.TrimSpace(base)
	if base == "" || base == "/" {
		return ""
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return strings.TrimSuffix(base, "/")
}
