package enrich

import (
	"testing"
)

func TestParseCandidatesArray(t *testing.T) {
	content := `Here are the companies:
[
  {"name": "Acme Forge", "email": "contact@acmeforge.example", "phone": "+91-98765-11111", "website": "https://acmeforge.example"},
  {"name": "Steel Works", "email": "", "phone": "", "website": ""}
]
Hope this helps!`

	got, err := parseCandidates(content)
	if err != nil {
		t.Fatalf("parseCandidates: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("candidates = %d, want 2", len(got))
	}
	if got[0].Name != "Acme Forge" || got[0].Email != "contact@acmeforge.example" {
		t.Fatalf("first candidate = %+v", got[0])
	}
}

func TestParseCandidatesSingleObject(t *testing.T) {
	got, err := parseCandidates(`{"name": "Solo Corp", "email": "hi@solo.example"}`)
	if err != nil {
		t.Fatalf("parseCandidates: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Solo Corp" {
		t.Fatalf("candidates = %+v", got)
	}
}

func TestParseCandidatesNoJSON(t *testing.T) {
	if _, err := parseCandidates("I cannot help with that."); err == nil {
		t.Fatal("expected error for prose-only completion")
	}
}

func TestExtractEmails(t *testing.T) {
	text := "Reach us at Sales@AcmeForge.example or admin@example.com, also logo@2x.png"
	got := extractEmails(text, 5)
	if len(got) != 1 || got[0] != "sales@acmeforge.example" {
		t.Fatalf("emails = %v", got)
	}
}

func TestExtractPhones(t *testing.T) {
	text := "Call +91 98765 43210 or (415) 555-2671. Founded 2004, PIN 110001."
	got := extractPhones(text, 5)
	if len(got) == 0 {
		t.Fatalf("no phones extracted from %q", text)
	}
	for _, p := range got {
		if countDigits(p) < 10 {
			t.Fatalf("short match leaked through: %q", p)
		}
	}
}
