package store

import "time"

// Channel identifies the delivery channel of an outbound message.
type Channel string

const (
	ChannelEmail    Channel = "EMAIL"
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelRCS      Channel = "RCS"
)

// Stage is the position of a message in the outreach sequence.
type Stage string

const (
	StageInitial   Stage = "INITIAL"
	StageFollowup1 Stage = "FOLLOWUP_1"
	StageFollowup2 Stage = "FOLLOWUP_2"
)

// Status is the delivery state of a message. DRAFT is the only state the
// delivery driver picks up; SENT, CANCELLED and SKIPPED are terminal.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSent      Status = "SENT"
	StatusDelivered Status = "DELIVERED"
	StatusRead      Status = "READ"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
	StatusSkipped   Status = "SKIPPED"
)

// AutomationStatus is the coarse lifecycle state of an automation config.
type AutomationStatus string

const (
	AutomationDraft     AutomationStatus = "draft"
	AutomationScheduled AutomationStatus = "scheduled"
	AutomationRunning   AutomationStatus = "running"
	AutomationPaused    AutomationStatus = "paused"
	AutomationCompleted AutomationStatus = "completed"
)

// Company is an outreach target discovered by enrichment.
type Company struct {
	ID        int64
	Name      string
	Industry  string
	Country   string
	Email     *string
	Phone     *string
	Website   *string
	CreatedAt time.Time

	Emails []CompanyEmail
	Phones []CompanyPhone
}

// CompanyEmail is one of possibly several email addresses for a company.
type CompanyEmail struct {
	ID         int64
	CompanyID  int64
	Email      string
	IsPrimary  bool
	IsVerified bool
	CreatedAt  time.Time
}

// CompanyPhone is one of possibly several phone numbers for a company.
type CompanyPhone struct {
	ID         int64
	CompanyID  int64
	Phone      string
	IsPrimary  bool
	IsVerified bool
	CreatedAt  time.Time
}

// PrimaryEmail resolves the company's email: the record flagged primary,
// else the first record, else the legacy single-value column.
func (c *Company) PrimaryEmail() string {
	for _, e := range c.Emails {
		if e.IsPrimary {
			return e.Email
		}
	}
	if len(c.Emails) > 0 {
		return c.Emails[0].Email
	}
	if c.Email != nil {
		return *c.Email
	}
	return ""
}

// PrimaryPhone resolves the company's phone with the same fallback chain
// as PrimaryEmail.
func (c *Company) PrimaryPhone() string {
	for _, p := range c.Phones {
		if p.IsPrimary {
			return p.Phone
		}
	}
	if len(c.Phones) > 0 {
		return c.Phones[0].Phone
	}
	if c.Phone != nil {
		return *c.Phone
	}
	return ""
}

// Campaign groups the messages spawned by one generation run.
type Campaign struct {
	ID        int64
	Name      string
	Industry  string
	CreatedAt time.Time
}

// Message is one planned or executed communication unit. Exactly one
// message exists per (campaign, company, channel, stage) tuple.
type Message struct {
	ID                int64
	CompanyID         int64
	CampaignID        int64
	Channel           Channel
	Stage             Stage
	Content           string
	Subject           *string
	Status            Status
	Error             *string
	ScheduledFor      time.Time
	UnsubscribeToken  *string
	ProviderMessageID *string
	SentAt            *time.Time
	CreatedAt         time.Time
}

// ReplyRecord is evidence that a company responded on any channel.
// At most one record exists per (company, from identity) pair.
type ReplyRecord struct {
	ID           int64
	CompanyID    int64
	CampaignID   *int64
	MessageID    *int64
	FromIdentity string
	Subject      *string
	Content      *string
	RepliedAt    time.Time
}

// UnsubscribeEntry is a suppressed email address. Unique per address.
type UnsubscribeEntry struct {
	ID             int64
	Email          string
	CompanyID      *int64
	Reason         *string
	UnsubscribedAt time.Time
}

// OpenEvent records a tracking pixel hit for a message.
type OpenEvent struct {
	ID        int64
	MessageID int64
	IPAddress *string
	UserAgent *string
	OpenedAt  time.Time
}

// AutomationConfig defines a recurring daily fetch-and-campaign cycle.
type AutomationConfig struct {
	ID                    int64
	Name                  *string
	Industry              string
	Country               string
	DailyLimit            int
	IsActive              bool
	Status                AutomationStatus
	SendTimeHour          int
	SendTimeMinute        int
	FollowupDay1          int
	FollowupDay2          int
	RunDurationDays       int
	StartDate             *time.Time
	EndDate               *time.Time
	TotalCompaniesFetched int
	TotalMessagesSent     int
	TotalReplies          int
	DaysCompleted         int
	LastRunAt             *time.Time
	CreatedAt             time.Time
}

// Label returns the config's display name, falling back to its industry.
func (c *AutomationConfig) Label() string {
	if c.Name != nil && *c.Name != "" {
		return *c.Name
	}
	return c.Industry
}
