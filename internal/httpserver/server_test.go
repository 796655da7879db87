package httpserver

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goyalvivek7/salesh-auto/internal/metrics"
	"github.com/goyalvivek7/salesh-auto/internal/outreach"
	"github.com/goyalvivek7/salesh-auto/internal/store"
)

type fakeIngest struct {
	replies  []outreach.InboundReply
	replyErr error
	opens    []int64
	tokens   []string
	tokenErr error
}

func (f *fakeIngest) HandleReply(ctx context.Context, reply outreach.InboundReply) (*outreach.ReplyOutcome, error) {
	if f.replyErr != nil {
		return nil, f.replyErr
	}
	f.replies = append(f.replies, reply)
	return &outreach.ReplyOutcome{
		Cancelled:      1,
		Classification: outreach.Classification{Intent: outreach.IntentNeutral},
	}, nil
}

func (f *fakeIngest) HandleOpen(ctx context.Context, messageID int64, ip, ua string) error {
	f.opens = append(f.opens, messageID)
	return nil
}

func (f *fakeIngest) HandleUnsubscribeToken(ctx context.Context, token string) (*store.UnsubscribeEntry, error) {
	if f.tokenErr != nil {
		return nil, f.tokenErr
	}
	f.tokens = append(f.tokens, token)
	return &store.UnsubscribeEntry{Email: "ops@acme.example"}, nil
}

type fakeAdminStore struct {
	retried  [][]int64
	statuses map[int64]store.AutomationStatus
}

func (f *fakeAdminStore) RetryFailedMessages(ctx context.Context, ids []int64) (int64, error) {
	f.retried = append(f.retried, ids)
	return int64(len(ids)), nil
}

func (f *fakeAdminStore) SetAutomationStatus(ctx context.Context, id int64, status store.AutomationStatus, active bool) error {
	if f.statuses == nil {
		f.statuses = map[int64]store.AutomationStatus{}
	}
	f.statuses[id] = status
	return nil
}

type fakeDedup struct {
	seen map[string]bool
}

func (f *fakeDedup) Once(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func newTestServer(deps Dependencies) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(":0", logger, metrics.Registry(""), deps, "")
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(Dependencies{})
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestWhatsAppWebhookDedup(t *testing.T) {
	ingest := &fakeIngest{}
	srv := newTestServer(Dependencies{Ingest: ingest, Dedup: &fakeDedup{}})

	body := `{"message_id":"m1","from":"+918527419630","text":"tell me more"}`
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", bytes.NewBufferString(body))
		srv.routes().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: status = %d", i, rec.Code)
		}
	}
	if len(ingest.replies) != 1 {
		t.Fatalf("replies ingested = %d, want 1 after dedup", len(ingest.replies))
	}
	if ingest.replies[0].Channel != store.ChannelWhatsApp {
		t.Fatalf("channel = %s", ingest.replies[0].Channel)
	}
}

func TestWhatsAppWebhookUnknownSenderAcknowledged(t *testing.T) {
	ingest := &fakeIngest{replyErr: store.ErrNotFound}
	srv := newTestServer(Dependencies{Ingest: ingest})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", bytes.NewBufferString(`{"from":"+10000000001","text":"hi"}`))
	srv.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 so the gateway stops retrying", rec.Code)
	}
}

func TestTrackOpenServesPixel(t *testing.T) {
	ingest := &fakeIngest{}
	srv := newTestServer(Dependencies{Ingest: ingest})

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/track/open/42", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/gif" {
		t.Fatalf("content type = %q", ct)
	}
	if len(ingest.opens) != 1 || ingest.opens[0] != 42 {
		t.Fatalf("opens = %v", ingest.opens)
	}
}

func TestTrackOpenBadIDStillServesPixel(t *testing.T) {
	ingest := &fakeIngest{}
	srv := newTestServer(Dependencies{Ingest: ingest})

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/track/open/not-a-number", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(ingest.opens) != 0 {
		t.Fatalf("opens recorded for bad id: %v", ingest.opens)
	}
}

func TestUnsubscribe(t *testing.T) {
	ingest := &fakeIngest{}
	srv := newTestServer(Dependencies{Ingest: ingest})

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/unsubscribe/tok-abc", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(ingest.tokens) != 1 || ingest.tokens[0] != "tok-abc" {
		t.Fatalf("tokens = %v", ingest.tokens)
	}
}

func TestUnsubscribeUnknownToken(t *testing.T) {
	ingest := &fakeIngest{tokenErr: store.ErrNotFound}
	srv := newTestServer(Dependencies{Ingest: ingest})

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/unsubscribe/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestRetryMessages(t *testing.T) {
	admin := &fakeAdminStore{}
	srv := newTestServer(Dependencies{Store: admin})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/messages/retry", bytes.NewBufferString(`{"ids":[1,2,3]}`))
	srv.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(admin.retried) != 1 || len(admin.retried[0]) != 3 {
		t.Fatalf("retried = %v", admin.retried)
	}
}

func TestRetryMessagesEmptyIDs(t *testing.T) {
	srv := newTestServer(Dependencies{Store: &fakeAdminStore{}})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/messages/retry", bytes.NewBufferString(`{"ids":[]}`))
	srv.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAutomationActions(t *testing.T) {
	cases := []struct {
		action string
		want   store.AutomationStatus
	}{
		{"start", store.AutomationRunning},
		{"pause", store.AutomationPaused},
		{"resume", store.AutomationRunning},
	}
	for _, tc := range cases {
		admin := &fakeAdminStore{}
		srv := newTestServer(Dependencies{Store: admin})

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/admin/automations/7/"+tc.action, nil)
		srv.routes().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", tc.action, rec.Code)
		}
		if admin.statuses[7] != tc.want {
			t.Fatalf("%s: status = %s, want %s", tc.action, admin.statuses[7], tc.want)
		}
	}
}

func TestAutomationUnknownAction(t *testing.T) {
	srv := newTestServer(Dependencies{Store: &fakeAdminStore{}})
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/automations/7/explode", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
