package store

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/goyalvivek7/salesh-auto/migrations"
)

// newTestStore connects to the database named by TEST_DATABASE_URL,
// applies migrations and empties every table so each test starts clean.
// Tests that need it are skipped when the variable is unset.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := New(ctx, databaseURL, os.Getenv("TEST_DATABASE_SCHEMA"), logger)
	if err != nil {
		t.Fatalf("connect test database: %v", err)
	}
	t.Cleanup(s.Close)

	if err := s.RunMigrations(ctx, migrations.Files); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	const truncate = `
TRUNCATE open_tracking, reply_tracking, unsubscribe_list, messages,
campaigns, company_phones, company_emails, companies, automation_configs
RESTART IDENTITY CASCADE;
`
	if _, err := s.pool.Exec(ctx, truncate); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return s
}

func mustCreateCompany(t *testing.T, s *Store, name, email string) *Company {
	t.Helper()
	company, _, err := s.CreateCompany(context.Background(), Company{
		Name:     name,
		Industry: "MANUFACTURING",
		Country:  "INDIA",
		Email:    &email,
		Emails:   []CompanyEmail{{Email: email, IsPrimary: true}},
	})
	if err != nil {
		t.Fatalf("create company: %v", err)
	}
	return company
}

func mustCreateCampaign(t *testing.T, s *Store, name string) *Campaign {
	t.Helper()
	campaign, err := s.CreateCampaign(context.Background(), Campaign{
		Name:     name,
		Industry: "MANUFACTURING",
	})
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	return campaign
}

func countRows(t *testing.T, s *Store, table string) int {
	t.Helper()
	var n int
	if err := s.pool.QueryRow(context.Background(), "SELECT COUNT(*) FROM "+table+";").Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
