package domain

import (
	"fmt"
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignRunning   CampaignStatus = "running"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignCancelled CampaignStatus = "cancelled"
)

// Campaign represents a batch-messaging job targeting a fixed recipient list.
type Campaign struct {
	ID         string         `json:"id" db:"id"`
	Name       string         `json:"name" db:"name"`
	TemplateID string         `json:"template_id" db:"template_id"`
	Config     SendingConfig  `json:"config"`
	Status     CampaignStatus `json:"status" db:"status"`

	// Stats are the sole observable signal of per-recipient outcomes.
	// They are maintained under the same transaction as the recipient
	// row they describe, never as a detached in-memory counter.
	Stats CampaignStats `json:"stats"`

	ScheduledAt *time.Time `json:"scheduled_at" db:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
// No batch processing occurs for terminal campaigns.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignCompleted || c.Status == CampaignCancelled
}

// CampaignStats aggregates per-recipient outcomes for a campaign.
// Invariant: Total == number of attached recipients, and
// Sent + Failed + pending == Total at any observation point.
type CampaignStats struct {
	Total     int `json:"total" db:"total_count"`
	Sent      int `json:"sent" db:"sent_count"`
	Delivered int `json:"delivered" db:"delivered_count"`
	Read      int `json:"read" db:"read_count"`
	Responses int `json:"responses" db:"response_count"`
	Failed    int `json:"failed" db:"failed_count"`
}

// Pending returns the number of recipients not yet attempted.
func (s CampaignStats) Pending() int {
	return s.Total - s.Sent - s.Failed
}

// SendingConfig controls pacing for a campaign. It is immutable per campaign
// unless explicitly updated while the campaign is in draft.
type SendingConfig struct {
	// Bounds for the randomized delay between consecutive sends.
	MinIntervalMs int `json:"min_interval_ms" yaml:"min_interval_ms"`
	MaxIntervalMs int `json:"max_interval_ms" yaml:"max_interval_ms"`

	// BatchSize is the maximum number of recipients processed per
	// scheduler tick.
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// PauseBetweenBatchesMs is informational; spacing between ticks is
	// governed by the scheduler's tick interval, not enforced inside a
	// batch.
	PauseBetweenBatchesMs int `json:"pause_between_batches_ms" yaml:"pause_between_batches_ms"`

	// Business-hours window, evaluated in the scheduling process's local
	// time. Campaigns outside the window simply wait for the next
	// eligible tick.
	RespectBusinessHours bool `json:"respect_business_hours" yaml:"respect_business_hours"`
	BusinessHoursStart   int  `json:"business_hours_start" yaml:"business_hours_start"`
	BusinessHoursEnd     int  `json:"business_hours_end" yaml:"business_hours_end"`

	// Typing simulation is presentation-only; it is passed through to the
	// gateway as a hint and has no effect on delivery semantics.
	SimulateTyping   bool `json:"simulate_typing" yaml:"simulate_typing"`
	TypingDurationMs int  `json:"typing_duration_ms" yaml:"typing_duration_ms"`
}

// DefaultSendingConfig returns the pacing defaults applied to campaigns
// created without an explicit config.
func DefaultSendingConfig() SendingConfig {
	return SendingConfig{
		MinIntervalMs:         3000,
		MaxIntervalMs:         8000,
		BatchSize:             25,
		PauseBetweenBatchesMs: 30000,
		RespectBusinessHours:  false,
		BusinessHoursStart:    9,
		BusinessHoursEnd:      18,
	}
}

// Validate checks the config bounds. A zero-value config is not valid;
// callers should start from DefaultSendingConfig.
func (c SendingConfig) Validate() error {
	if c.MinIntervalMs <= 0 {
		return fmt.Errorf("min_interval_ms must be > 0, got %d", c.MinIntervalMs)
	}
	if c.MaxIntervalMs < c.MinIntervalMs {
		return fmt.Errorf("max_interval_ms (%d) must be >= min_interval_ms (%d)", c.MaxIntervalMs, c.MinIntervalMs)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be >= 1, got %d", c.BatchSize)
	}
	if c.RespectBusinessHours {
		if c.BusinessHoursStart < 0 || c.BusinessHoursStart > 23 {
			return fmt.Errorf("business_hours_start must be in [0,24), got %d", c.BusinessHoursStart)
		}
		if c.BusinessHoursEnd < 0 || c.BusinessHoursEnd > 23 {
			return fmt.Errorf("business_hours_end must be in [0,24), got %d", c.BusinessHoursEnd)
		}
		if c.BusinessHoursStart >= c.BusinessHoursEnd {
			return fmt.Errorf("business hours window is empty: start %d >= end %d", c.BusinessHoursStart, c.BusinessHoursEnd)
		}
	}
	return nil
}

// Template is a reusable message body with Liquid placeholders.
type Template struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Body      string    `json:"body" db:"body"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
