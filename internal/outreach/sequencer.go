package outreach

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/goyalvivek7/salesh-auto/internal/store"
)

// PlanInput describes one company's slot in a campaign.
type PlanInput struct {
	Campaign *store.Campaign
	Company  *store.Company

	// Start is when the initial touch goes out. Followups land at
	// Start plus the configured day offsets.
	Start        time.Time
	FollowupDay1 int
	FollowupDay2 int
}

// Sequencer materializes the full three-touch sequence for a company
// up front. Every planned message starts as DRAFT; the driver and the
// oracle decide later what actually goes out.
type Sequencer struct {
	resolver ContentResolver
	verifier *Verifier
	logger   *slog.Logger
}

func NewSequencer(resolver ContentResolver, verifier *Verifier, logger *slog.Logger) *Sequencer {
	return &Sequencer{
		resolver: resolver,
		verifier: verifier,
		logger:   logger.With("component", "sequencer"),
	}
}

// Plan builds the DRAFT messages for one company: an email leg when the
// company has an address, a WhatsApp leg when its phone survives
// verification. A company with neither yields an empty plan, not an
// error.
func (s *Sequencer) Plan(ctx context.Context, in PlanInput) ([]store.Message, error) {
	if in.FollowupDay1 <= 0 {
		in.FollowupDay1 = 3
	}
	if in.FollowupDay2 <= in.FollowupDay1 {
		in.FollowupDay2 = in.FollowupDay1 + 4
	}

	stages := []struct {
		stage store.Stage
		at    time.Time
	}{
		{store.StageInitial, in.Start},
		{store.StageFollowup1, in.Start.AddDate(0, 0, in.FollowupDay1)},
		{store.StageFollowup2, in.Start.AddDate(0, 0, in.FollowupDay2)},
	}

	var plan []store.Message

	if email := in.Company.PrimaryEmail(); email != "" {
		initialSubject := ""
		for _, slot := range stages {
			subject, body, err := s.resolver.Compose(ctx, in.Company, store.ChannelEmail, slot.stage)
			if err != nil {
				return nil, fmt.Errorf("compose email %s for company %d: %w", slot.stage, in.Company.ID, err)
			}
			if slot.stage == store.StageInitial {
				initialSubject = subject
			} else {
				// Followups thread under the first email.
				subject = "Re: " + initialSubject
			}
			token := uuid.NewString()
			plan = append(plan, store.Message{
				CompanyID:        in.Company.ID,
				CampaignID:       in.Campaign.ID,
				Channel:          store.ChannelEmail,
				Stage:            slot.stage,
				Content:          body,
				Subject:          &subject,
				Status:           store.StatusDraft,
				ScheduledFor:     slot.at,
				UnsubscribeToken: &token,
			})
		}
	}

	if phone := in.Company.PrimaryPhone(); phone != "" {
		if _, err := s.verifier.VerifyPhone(ctx, phone); err != nil {
			s.logger.Debug("skipping whatsapp leg", "company_id", in.Company.ID, "reason", err)
		} else {
			for _, slot := range stages {
				_, body, err := s.resolver.Compose(ctx, in.Company, store.ChannelWhatsApp, slot.stage)
				if err != nil {
					return nil, fmt.Errorf("compose whatsapp %s for company %d: %w", slot.stage, in.Company.ID, err)
				}
				plan = append(plan, store.Message{
					CompanyID:    in.Company.ID,
					CampaignID:   in.Campaign.ID,
					Channel:      store.ChannelWhatsApp,
					Stage:        slot.stage,
					Content:      body,
					Status:       store.StatusDraft,
					ScheduledFor: slot.at,
				})
			}
		}
	}

	return plan, nil
}
