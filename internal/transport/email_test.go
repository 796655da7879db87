package transport

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/goyalvivek7/salesh-auto/internal/outreach"
)

func TestEmailUnconfiguredSkips(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := NewEmail("", "Sales", "sales@example.com", logger)

	result := e.Send(context.Background(), outreach.Outbound{To: "ops@acme.example", Body: "hi"})
	if result.Status != outreach.SendSkipped {
		t.Fatalf("status = %s, want skipped", result.Status)
	}
	if result.Err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestRenderHTML(t *testing.T) {
	got := renderHTML("Hello <Acme>\nsecond line", "https://x.example/unsubscribe/tok", "https://x.example/track/open/5")

	if !strings.Contains(got, "Hello &lt;Acme&gt;<br>") {
		t.Fatalf("body not escaped or line breaks missing: %q", got)
	}
	if !strings.Contains(got, `href="https://x.example/unsubscribe/tok"`) {
		t.Fatalf("unsubscribe link missing: %q", got)
	}
	if !strings.Contains(got, `img src="https://x.example/track/open/5"`) {
		t.Fatalf("tracking pixel missing: %q", got)
	}
}

func TestRenderHTMLWithoutLinks(t *testing.T) {
	got := renderHTML("plain", "", "")
	if strings.Contains(got, "unsubscribe") || strings.Contains(got, "<img") {
		t.Fatalf("unexpected footer content: %q", got)
	}
}
