package outreach

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/goyalvivek7/salesh-auto/internal/metrics"
	"github.com/goyalvivek7/salesh-auto/internal/store"
)

type fakeIngestStore struct {
	byEmail map[string]*store.Company
	byPhone map[string]*store.Company
	byID    map[int64]*store.Company
	byToken map[string]*store.Message

	replies      []store.ReplyRecord
	cancelNotes  []string
	cancelReturn int64
	unsubscribes []store.UnsubscribeEntry
	opens        []store.OpenEvent
}

func newFakeIngestStore() *fakeIngestStore {
	return &fakeIngestStore{
		byEmail: map[string]*store.Company{},
		byPhone: map[string]*store.Company{},
		byID:    map[int64]*store.Company{},
		byToken: map[string]*store.Message{},
	}
}

func (f *fakeIngestStore) CompanyByEmail(ctx context.Context, email string) (*store.Company, error) {
	c, ok := f.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeIngestStore) CompanyByPhone(ctx context.Context, phone string) (*store.Company, error) {
	c, ok := f.byPhone[phone]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeIngestStore) CompanyByID(ctx context.Context, id int64) (*store.Company, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeIngestStore) MessageByUnsubscribeToken(ctx context.Context, token string) (*store.Message, error) {
	m, ok := f.byToken[token]
	if !ok {
		return nil, store.ErrNotFound
	}
	return m, nil
}

func (f *fakeIngestStore) RecordReplyCancelling(ctx context.Context, record store.ReplyRecord, note string) (*store.ReplyRecord, int64, error) {
	f.replies = append(f.replies, record)
	f.cancelNotes = append(f.cancelNotes, note)
	return &record, f.cancelReturn, nil
}

func (f *fakeIngestStore) UpsertUnsubscribe(ctx context.Context, entry store.UnsubscribeEntry) (*store.UnsubscribeEntry, error) {
	f.unsubscribes = append(f.unsubscribes, entry)
	return &entry, nil
}

func (f *fakeIngestStore) InsertOpen(ctx context.Context, event store.OpenEvent) error {
	f.opens = append(f.opens, event)
	return nil
}

func newTestIngestor(fs *fakeIngestStore) *Ingestor {
	return NewIngestor(fs, NewClassifier(nil), testLogger(), metrics.Registry(""))
}

func TestHandleReplyCancelsDrafts(t *testing.T) {
	fs := newFakeIngestStore()
	fs.byEmail["ops@acme.example"] = testCompany("ops@acme.example", "")
	fs.cancelReturn = 2

	in := newTestIngestor(fs)
	outcome, err := in.HandleReply(context.Background(), InboundReply{
		Channel: store.ChannelEmail,
		From:    "Ops@Acme.example",
		Subject: "Re: Intro",
		Content: "maybe later, check back next quarter",
	})
	if err != nil {
		t.Fatalf("HandleReply: %v", err)
	}
	if outcome.Cancelled != 2 {
		t.Fatalf("cancelled = %d, want 2", outcome.Cancelled)
	}
	if len(fs.replies) != 1 {
		t.Fatalf("replies recorded = %d", len(fs.replies))
	}
	if got := fs.replies[0].FromIdentity; got != "ops@acme.example" {
		t.Fatalf("from identity = %q", got)
	}
	if outcome.Classification.Intent != IntentNeutral {
		t.Fatalf("intent = %s", outcome.Classification.Intent)
	}
	if outcome.Unsubscribed {
		t.Fatal("neutral reply unsubscribed")
	}
}

func TestHandleReplyOptOutUnsubscribes(t *testing.T) {
	fs := newFakeIngestStore()
	fs.byEmail["ops@acme.example"] = testCompany("ops@acme.example", "")

	in := newTestIngestor(fs)
	outcome, err := in.HandleReply(context.Background(), InboundReply{
		Channel: store.ChannelEmail,
		From:    "ops@acme.example",
		Content: "please remove me and stop emailing",
	})
	if err != nil {
		t.Fatalf("HandleReply: %v", err)
	}
	if !outcome.Unsubscribed {
		t.Fatal("opt-out reply did not unsubscribe")
	}
	if len(fs.unsubscribes) != 1 || fs.unsubscribes[0].Email != "ops@acme.example" {
		t.Fatalf("unsubscribes = %+v", fs.unsubscribes)
	}
}

func TestHandleReplyWhatsAppIdentity(t *testing.T) {
	fs := newFakeIngestStore()
	company := testCompany("ops@acme.example", "+918527419630")
	fs.byPhone["+918527419630"] = company

	in := newTestIngestor(fs)
	outcome, err := in.HandleReply(context.Background(), InboundReply{
		Channel: store.ChannelWhatsApp,
		From:    "+918527419630",
		Content: "tell me more about pricing",
	})
	if err != nil {
		t.Fatalf("HandleReply: %v", err)
	}
	if got := fs.replies[0].FromIdentity; got != "whatsapp:918527419630" {
		t.Fatalf("from identity = %q", got)
	}
	if outcome.Classification.Intent != IntentInterested {
		t.Fatalf("intent = %s", outcome.Classification.Intent)
	}
}

func TestHandleReplyWhatsAppOptOutSuppressesCompanyEmail(t *testing.T) {
	fs := newFakeIngestStore()
	fs.byPhone["+918527419630"] = testCompany("ops@acme.example", "+918527419630")

	in := newTestIngestor(fs)
	outcome, err := in.HandleReply(context.Background(), InboundReply{
		Channel: store.ChannelWhatsApp,
		From:    "+918527419630",
		Content: "stop messaging me",
	})
	if err != nil {
		t.Fatalf("HandleReply: %v", err)
	}
	if !outcome.Unsubscribed {
		t.Fatal("whatsapp opt-out did not unsubscribe")
	}
	if fs.unsubscribes[0].Email != "ops@acme.example" {
		t.Fatalf("unsubscribed email = %q", fs.unsubscribes[0].Email)
	}
}

func TestHandleReplyUnknownSender(t *testing.T) {
	in := newTestIngestor(newFakeIngestStore())
	_, err := in.HandleReply(context.Background(), InboundReply{
		Channel: store.ChannelEmail,
		From:    "stranger@nowhere.example",
		Content: "hello",
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestHandleReplyTruncatesContent(t *testing.T) {
	fs := newFakeIngestStore()
	fs.byEmail["ops@acme.example"] = testCompany("ops@acme.example", "")

	in := newTestIngestor(fs)
	long := strings.Repeat("x", 1200)
	if _, err := in.HandleReply(context.Background(), InboundReply{
		Channel: store.ChannelEmail,
		From:    "ops@acme.example",
		Content: long,
	}); err != nil {
		t.Fatalf("HandleReply: %v", err)
	}
	if got := len(*fs.replies[0].Content); got != replyExcerptLimit {
		t.Fatalf("stored content length = %d, want %d", got, replyExcerptLimit)
	}
}

func TestHandleReplyTruncationKeepsValidUTF8(t *testing.T) {
	fs := newFakeIngestStore()
	fs.byEmail["ops@acme.example"] = testCompany("ops@acme.example", "")

	// The multibyte tail straddles the excerpt limit; a byte-index cut
	// would store invalid UTF-8, which Postgres rejects.
	content := strings.Repeat("a", replyExcerptLimit-1) + "日本語の返信です"
	in := newTestIngestor(fs)
	if _, err := in.HandleReply(context.Background(), InboundReply{
		Channel: store.ChannelEmail,
		From:    "ops@acme.example",
		Content: content,
	}); err != nil {
		t.Fatalf("HandleReply: %v", err)
	}

	stored := *fs.replies[0].Content
	if !utf8.ValidString(stored) {
		t.Fatalf("stored excerpt is invalid UTF-8 (len=%d, tail=%q)", len(stored), stored[len(stored)-4:])
	}
	if len(stored) > replyExcerptLimit {
		t.Fatalf("stored excerpt length = %d, want <= %d", len(stored), replyExcerptLimit)
	}
}

func TestHandleOpen(t *testing.T) {
	fs := newFakeIngestStore()
	in := newTestIngestor(fs)
	if err := in.HandleOpen(context.Background(), 42, "203.0.113.9", "Mozilla/5.0"); err != nil {
		t.Fatalf("HandleOpen: %v", err)
	}
	if len(fs.opens) != 1 || fs.opens[0].MessageID != 42 {
		t.Fatalf("opens = %+v", fs.opens)
	}
}

func TestHandleUnsubscribeToken(t *testing.T) {
	fs := newFakeIngestStore()
	fs.byToken["tok-abc"] = &store.Message{ID: 1, CompanyID: 7}
	fs.byID[7] = testCompany("ops@acme.example", "")

	in := newTestIngestor(fs)
	entry, err := in.HandleUnsubscribeToken(context.Background(), "tok-abc")
	if err != nil {
		t.Fatalf("HandleUnsubscribeToken: %v", err)
	}
	if entry.Email != "ops@acme.example" {
		t.Fatalf("email = %q", entry.Email)
	}
}

func TestHandleUnsubscribeTokenUnknown(t *testing.T) {
	in := newTestIngestor(newFakeIngestStore())
	if _, err := in.HandleUnsubscribeToken(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
