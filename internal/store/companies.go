package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// CreateCompany inserts a company with its contact records in one
// transaction. Companies are deduplicated by case-insensitive name; the
// existing row is returned with created=false when a duplicate is found.
func (s *Store) CreateCompany(ctx context.Context, company Company) (*Company, bool, error) {
	existing, err := s.CompanyByName(ctx, company.Name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	var created Company
	err = s.WithTx(ctx, func(tx pgx.Tx) error {
		const q = `
INSERT INTO companies (name, industry, country, email, phone, website)
VALUES ($1, UPPER($2), UPPER($3), $4, $5, $6)
RETURNING id, name, industry, country, email, phone, website, created_at;
`
		row := tx.QueryRow(ctx, q,
			strings.TrimSpace(company.Name),
			strings.TrimSpace(company.Industry),
			strings.TrimSpace(company.Country),
			company.Email,
			company.Phone,
			company.Website,
		)
		if err := scanCompany(row, &created); err != nil {
			return fmt.Errorf("insert company: %w", err)
		}

		for _, email := range company.Emails {
			if _, err := tx.Exec(ctx, `
INSERT INTO company_emails (company_id, email, is_primary, is_verified)
VALUES ($1, $2, $3, $4);
`, created.ID, email.Email, email.IsPrimary, email.IsVerified); err != nil {
				return fmt.Errorf("insert company email: %w", err)
			}
		}
		for _, phone := range company.Phones {
			if _, err := tx.Exec(ctx, `
INSERT INTO company_phones (company_id, phone, is_primary, is_verified)
VALUES ($1, $2, $3, $4);
`, created.ID, phone.Phone, phone.IsPrimary, phone.IsVerified); err != nil {
				return fmt.Errorf("insert company phone: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if err := s.loadContacts(ctx, &created); err != nil {
		return nil, false, err
	}
	return &created, true, nil
}

// CompanyByID fetches a company with its contact records.
func (s *Store) CompanyByID(ctx context.Context, id int64) (*Company, error) {
	const q = `
SELECT id, name, industry, country, email, phone, website, created_at
FROM companies
WHERE id = $1;
`
	var c Company
	if err := scanCompany(s.pool.QueryRow(ctx, q, id), &c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get company %d: %w", id, err)
	}
	if err := s.loadContacts(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// CompanyByName fetches a company by case-insensitive name.
func (s *Store) CompanyByName(ctx context.Context, name string) (*Company, error) {
	const q = `
SELECT id, name, industry, country, email, phone, website, created_at
FROM companies
WHERE LOWER(name) = LOWER($1);
`
	var c Company
	if err := scanCompany(s.pool.QueryRow(ctx, q, strings.TrimSpace(name)), &c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get company by name: %w", err)
	}
	if err := s.loadContacts(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// CompanyByEmail matches a company by address, checking both the legacy
// column and the contact table. Addresses are compared case-insensitively.
func (s *Store) CompanyByEmail(ctx context.Context, email string) (*Company, error) {
	const q = `
SELECT c.id, c.name, c.industry, c.country, c.email, c.phone, c.website, c.created_at
FROM companies c
LEFT JOIN company_emails ce ON ce.company_id = c.id
WHERE LOWER(c.email) = LOWER($1) OR LOWER(ce.email) = LOWER($1)
ORDER BY c.id
LIMIT 1;
`
	var c Company
	if err := scanCompany(s.pool.QueryRow(ctx, q, strings.TrimSpace(email)), &c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get company by email: %w", err)
	}
	if err := s.loadContacts(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// CompanyByPhone matches a company by phone number: exact value, then the
// value with a leading +, then last-10-digit containment against both the
// legacy column and the contact table. First match wins; ambiguity is not
// disambiguated further.
func (s *Store) CompanyByPhone(ctx context.Context, phone string) (*Company, error) {
	digits := digitsOnly(phone)
	suffix := digits
	if len(suffix) > 10 {
		suffix = suffix[len(suffix)-10:]
	}

	const q = `
SELECT c.id, c.name, c.industry, c.country, c.email, c.phone, c.website, c.created_at
FROM companies c
LEFT JOIN company_phones cp ON cp.company_id = c.id
WHERE c.phone = $1
   OR c.phone = '+' || $1
   OR ($2 <> '' AND c.phone LIKE '%' || $2 || '%')
   OR ($2 <> '' AND cp.phone LIKE '%' || $2 || '%')
ORDER BY c.id
LIMIT 1;
`
	var c Company
	if err := scanCompany(s.pool.QueryRow(ctx, q, strings.TrimSpace(phone), suffix), &c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get company by phone: %w", err)
	}
	if err := s.loadContacts(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCompaniesCreatedSince returns companies for an industry/country cohort
// created at or after the given time, oldest first.
func (s *Store) ListCompaniesCreatedSince(ctx context.Context, industry, country string, since time.Time) ([]Company, error) {
	const q = `
SELECT id, name, industry, country, email, phone, website, created_at
FROM companies
WHERE industry = UPPER($1) AND country = UPPER($2) AND created_at >= $3
ORDER BY created_at ASC;
`
	rows, err := s.pool.Query(ctx, q, industry, country, since)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()

	var companies []Company
	for rows.Next() {
		var c Company
		if err := scanCompany(rows, &c); err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate companies: %w", err)
	}

	for i := range companies {
		if err := s.loadContacts(ctx, &companies[i]); err != nil {
			return nil, err
		}
	}
	return companies, nil
}

func (s *Store) loadContacts(ctx context.Context, c *Company) error {
	emailRows, err := s.pool.Query(ctx, `
SELECT id, company_id, email, is_primary, is_verified, created_at
FROM company_emails
WHERE company_id = $1
ORDER BY id;
`, c.ID)
	if err != nil {
		return fmt.Errorf("list company emails: %w", err)
	}
	defer emailRows.Close()

	c.Emails = nil
	for emailRows.Next() {
		var e CompanyEmail
		if err := emailRows.Scan(&e.ID, &e.CompanyID, &e.Email, &e.IsPrimary, &e.IsVerified, &e.CreatedAt); err != nil {
			return fmt.Errorf("scan company email: %w", err)
		}
		c.Emails = append(c.Emails, e)
	}
	if err := emailRows.Err(); err != nil {
		return fmt.Errorf("iterate company emails: %w", err)
	}

	phoneRows, err := s.pool.Query(ctx, `
SELECT id, company_id, phone, is_primary, is_verified, created_at
FROM company_phones
WHERE company_id = $1
ORDER BY id;
`, c.ID)
	if err != nil {
		return fmt.Errorf("list company phones: %w", err)
	}
	defer phoneRows.Close()

	c.Phones = nil
	for phoneRows.Next() {
		var p CompanyPhone
		if err := phoneRows.Scan(&p.ID, &p.CompanyID, &p.Phone, &p.IsPrimary, &p.IsVerified, &p.CreatedAt); err != nil {
			return fmt.Errorf("scan company phone: %w", err)
		}
		c.Phones = append(c.Phones, p)
	}
	if err := phoneRows.Err(); err != nil {
		return fmt.Errorf("iterate company phones: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompany(row rowScanner, c *Company) error {
	return row.Scan(&c.ID, &c.Name, &c.Industry, &c.Country, &c.Email, &c.Phone, &c.Website, &c.CreatedAt)
}

func digitsOnly(val string) string {
	var b strings.Builder
	for _, r := range val {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
