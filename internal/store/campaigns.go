package store

import (
	"context"
	"fmt"
)

// CreateCampaign inserts a campaign row and returns it.
func (s *Store) CreateCampaign(ctx context.Context, campaign Campaign) (*Campaign, error) {
	const q = `
INSERT INTO campaigns (name, industry)
VALUES ($1, UPPER($2))
RETURNING id, name, industry, created_at;
`
	var c Campaign
	err := s.pool.QueryRow(ctx, q, campaign.Name, campaign.Industry).
		Scan(&c.ID, &c.Name, &c.Industry, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert campaign: %w", err)
	}
	return &c, nil
}
