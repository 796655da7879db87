package outreach

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goyalvivek7/salesh-auto/internal/metrics"
	"github.com/goyalvivek7/salesh-auto/internal/store"
)

type fakeDriverStore struct {
	due       []store.Message
	companies map[int64]*store.Company
	sent      map[int64]string
	failed    map[int64]string
}

func newFakeDriverStore() *fakeDriverStore {
	return &fakeDriverStore{
		companies: map[int64]*store.Company{},
		sent:      map[int64]string{},
		failed:    map[int64]string{},
	}
}

func (f *fakeDriverStore) DueMessages(ctx context.Context, now time.Time, limit int) ([]store.Message, error) {
	if len(f.due) > limit {
		return f.due[:limit], nil
	}
	return f.due, nil
}

func (f *fakeDriverStore) CompanyByID(ctx context.Context, id int64) (*store.Company, error) {
	c, ok := f.companies[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeDriverStore) MarkMessageSent(ctx context.Context, id int64, sentAt time.Time, providerID string) error {
	f.sent[id] = providerID
	return nil
}

func (f *fakeDriverStore) MarkMessageFailed(ctx context.Context, id int64, reason string) error {
	f.failed[id] = reason
	return nil
}

type fakeSuppressor struct {
	reasons map[int64]string
}

func (f *fakeSuppressor) IsSuppressed(ctx context.Context, channel store.Channel, companyID int64, email string) (bool, string, error) {
	if reason, ok := f.reasons[companyID]; ok {
		return true, reason, nil
	}
	return false, "", nil
}

type fakeTransport struct {
	result SendResult
	calls  int
	sent   []Outbound
}

func (f *fakeTransport) Send(ctx context.Context, out Outbound) SendResult {
	f.calls++
	f.sent = append(f.sent, out)
	return f.result
}

func newTestDriver(s DriverStore, sup Suppressor, transports map[store.Channel]Transport) *Driver {
	d := NewDriver(s, sup, transports, 100, "https://out.example.com", testLogger(), metrics.Registry(""))
	d.now = func() time.Time { return time.Date(2026, 3, 12, 11, 0, 0, 0, time.UTC) }
	return d
}

func TestRunCycleSendsDueMessages(t *testing.T) {
	fs := newFakeDriverStore()
	fs.companies[7] = testCompany("ops@acme.example", "")
	token := "tok-abc"
	fs.due = []store.Message{{
		ID: 1, CompanyID: 7, Channel: store.ChannelEmail, Stage: store.StageInitial,
		Content: "hello", Subject: strPtr("Intro"), UnsubscribeToken: &token,
	}}

	transport := &fakeTransport{result: SendResult{Status: SendSent, ProviderMessageID: "prov-1"}}
	d := newTestDriver(fs, &fakeSuppressor{}, map[store.Channel]Transport{store.ChannelEmail: transport})

	stats, err := d.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Sent != 1 || stats.Failed != 0 {
		t.Fatalf("stats = %+v, want 1 sent", stats)
	}
	if fs.sent[1] != "prov-1" {
		t.Fatalf("provider id = %q, want prov-1", fs.sent[1])
	}
	out := transport.sent[0]
	if out.To != "ops@acme.example" {
		t.Fatalf("to = %q", out.To)
	}
	if out.UnsubscribeURL != "https://out.example.com/unsubscribe/tok-abc" {
		t.Fatalf("unsubscribe url = %q", out.UnsubscribeURL)
	}
	if out.TrackingURL != "https://out.example.com/track/open/1" {
		t.Fatalf("tracking url = %q", out.TrackingURL)
	}
}

func TestRunCycleSuppressedNeverReachesTransport(t *testing.T) {
	fs := newFakeDriverStore()
	fs.companies[7] = testCompany("ops@acme.example", "")
	fs.due = []store.Message{{ID: 1, CompanyID: 7, Channel: store.ChannelEmail, Content: "hello"}}

	transport := &fakeTransport{result: SendResult{Status: SendSent}}
	sup := &fakeSuppressor{reasons: map[int64]string{7: "company already replied"}}
	d := newTestDriver(fs, sup, map[store.Channel]Transport{store.ChannelEmail: transport})

	stats, err := d.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if transport.calls != 0 {
		t.Fatalf("transport called %d times for suppressed message", transport.calls)
	}
	if stats.Suppressed != 1 {
		t.Fatalf("stats = %+v, want 1 suppressed", stats)
	}
	if fs.failed[1] != "company already replied" {
		t.Fatalf("failure reason = %q", fs.failed[1])
	}
}

func TestRunCycleFailureIsolation(t *testing.T) {
	fs := newFakeDriverStore()
	fs.companies[7] = testCompany("ops@acme.example", "")
	fs.companies[8] = testCompany("", "")
	fs.companies[9] = testCompany("sales@other.example", "")
	fs.due = []store.Message{
		{ID: 1, CompanyID: 7, Channel: store.ChannelEmail, Content: "a"},
		{ID: 2, CompanyID: 8, Channel: store.ChannelEmail, Content: "b"},
		{ID: 3, CompanyID: 9, Channel: store.ChannelEmail, Content: "c"},
	}

	transport := &fakeTransport{result: SendResult{Status: SendSent}}
	d := newTestDriver(fs, &fakeSuppressor{}, map[store.Channel]Transport{store.ChannelEmail: transport})

	stats, err := d.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Sent != 2 || stats.Failed != 1 {
		t.Fatalf("stats = %+v, want 2 sent 1 failed", stats)
	}
	if fs.failed[2] != "no email address on file" {
		t.Fatalf("failure reason = %q", fs.failed[2])
	}
}

func TestRunCycleTransportFailureRecordsReason(t *testing.T) {
	fs := newFakeDriverStore()
	fs.companies[7] = testCompany("ops@acme.example", "")
	fs.due = []store.Message{{ID: 1, CompanyID: 7, Channel: store.ChannelEmail, Content: "a"}}

	transport := &fakeTransport{result: SendResult{Status: SendFailed, Err: errors.New("smtp 550 rejected")}}
	d := newTestDriver(fs, &fakeSuppressor{}, map[store.Channel]Transport{store.ChannelEmail: transport})

	stats, err := d.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Failed != 1 {
		t.Fatalf("stats = %+v, want 1 failed", stats)
	}
	if fs.failed[1] != "smtp 550 rejected" {
		t.Fatalf("failure reason = %q", fs.failed[1])
	}
}

func TestRunCycleWhatsAppUsesPhone(t *testing.T) {
	fs := newFakeDriverStore()
	fs.companies[7] = testCompany("", "+918527419630")
	fs.due = []store.Message{{ID: 1, CompanyID: 7, Channel: store.ChannelWhatsApp, Content: "hi"}}

	transport := &fakeTransport{result: SendResult{Status: SendSent}}
	d := newTestDriver(fs, &fakeSuppressor{}, map[store.Channel]Transport{store.ChannelWhatsApp: transport})

	if _, err := d.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if transport.sent[0].To != "+918527419630" {
		t.Fatalf("to = %q", transport.sent[0].To)
	}
}
