// Package campaign executes the daily automation cycle: discover fresh
// companies for a config and materialize their message sequences.
package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goyalvivek7/salesh-auto/internal/outreach"
	"github.com/goyalvivek7/salesh-auto/internal/store"
)

// Store is the persistence surface the runner needs.
type Store interface {
	CreateCampaign(ctx context.Context, campaign store.Campaign) (*store.Campaign, error)
	InsertMessages(ctx context.Context, messages []store.Message) (int64, error)
}

// Discoverer supplies new companies for an industry and country.
type Discoverer interface {
	DiscoverCompanies(ctx context.Context, industry, country string, limit int) ([]*store.Company, error)
}

// Runner implements outreach.CampaignRunner.
type Runner struct {
	store     Store
	discover  Discoverer
	sequencer *outreach.Sequencer
	timezone  *time.Location
	logger    *slog.Logger
	now       func() time.Time
}

func NewRunner(s Store, discover Discoverer, sequencer *outreach.Sequencer, tz *time.Location, logger *slog.Logger) *Runner {
	return &Runner{
		store:     s,
		discover:  discover,
		sequencer: sequencer,
		timezone:  tz,
		logger:    logger.With("component", "campaign"),
		now:       time.Now,
	}
}

// RunDaily discovers up to the config's daily limit of new companies,
// opens a campaign for them and plans every message up front. A
// company whose plan cannot be built is skipped, not fatal.
func (r *Runner) RunDaily(ctx context.Context, cfg store.AutomationConfig) (int, int, error) {
	companies, err := r.discover.DiscoverCompanies(ctx, cfg.Industry, cfg.Country, cfg.DailyLimit)
	if err != nil {
		return 0, 0, fmt.Errorf("discover companies: %w", err)
	}
	if len(companies) == 0 {
		r.logger.Info("no new companies discovered", "config_id", cfg.ID)
		return 0, 0, nil
	}

	now := r.now().In(r.timezone)
	campaign, err := r.store.CreateCampaign(ctx, store.Campaign{
		Name:     fmt.Sprintf("%s %s", cfg.Label(), now.Format("2006-01-02")),
		Industry: cfg.Industry,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("create campaign: %w", err)
	}

	start := outreach.SendTimeFrom(r.now(), cfg.SendTimeHour, cfg.SendTimeMinute, r.timezone)

	var created int64
	for _, company := range companies {
		plan, err := r.sequencer.Plan(ctx, outreach.PlanInput{
			Campaign:     campaign,
			Company:      company,
			Start:        start,
			FollowupDay1: cfg.FollowupDay1,
			FollowupDay2: cfg.FollowupDay2,
		})
		if err != nil {
			r.logger.Warn("plan sequence failed", "company_id", company.ID, "error", err)
			continue
		}
		if len(plan) == 0 {
			r.logger.Debug("company has no reachable contacts", "company_id", company.ID)
			continue
		}

		inserted, err := r.store.InsertMessages(ctx, plan)
		if err != nil {
			r.logger.Warn("insert plan failed", "company_id", company.ID, "error", err)
			continue
		}
		created += inserted
	}

	r.logger.Info("daily campaign materialized",
		"config_id", cfg.ID,
		"campaign_id", campaign.ID,
		"companies", len(companies),
		"messages", created)
	return len(companies), int(created), nil
}
