package campaign

import (
	"context"
	"time"

	"github.com/textflare/dispatch/internal/domain"
)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign with up-to-date stats.
	// Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Campaign, error)

	// List returns campaigns ordered by created_at DESC.
	List(ctx context.Context, filter ListFilter) ([]domain.Campaign, error)

	// ListByStatus returns all campaigns in any of the given statuses.
	// Used by the scheduler to find work on each tick.
	ListByStatus(ctx context.Context, statuses ...domain.CampaignStatus) ([]domain.Campaign, error)

	// Create inserts a new campaign.
	Create(ctx context.Context, c *domain.Campaign) error

	// UpdateConfig replaces the pacing config. Draft campaigns only;
	// the service enforces that.
	UpdateConfig(ctx context.Context, id string, cfg domain.SendingConfig) error

	// UpdateStatus transitions a campaign's status and maintains the
	// started_at / completed_at timestamps.
	UpdateStatus(ctx context.Context, id string, status domain.CampaignStatus) error

	// SetScheduledAt records the future start time for a scheduled campaign.
	SetScheduledAt(ctx context.Context, id string, at time.Time) error

	// Delete removes a campaign and its recipients.
	// Only draft or terminal campaigns can be deleted.
	Delete(ctx context.Context, id string) error
}

// RecipientRepository manages per-recipient delivery state. The Mark*
// methods update the recipient row and the owning campaign's stats
// counters atomically, so a crash never leaves the two disagreeing.
type RecipientRepository interface {
	// Attach inserts recipients for a campaign, preserving slice order as
	// Position, and sets the campaign's total count.
	Attach(ctx context.Context, campaignID string, recipients []domain.Recipient) error

	// ListPending returns up to limit pending recipients in Position order.
	ListPending(ctx context.Context, campaignID string, limit int) ([]domain.Recipient, error)

	// CountPending returns the number of recipients not yet attempted.
	CountPending(ctx context.Context, campaignID string) (int, error)

	// List returns recipients for a campaign, optionally filtered by status,
	// in Position order.
	List(ctx context.Context, campaignID string, filter RecipientFilter) ([]domain.Recipient, error)

	// MarkSent records a successful send: status, message id, sent_at, and
	// the campaign's sent counter, in one transaction.
	MarkSent(ctx context.Context, recipientID, messageID string, at time.Time) error

	// MarkFailed records a send failure. Failed is terminal; the recipient
	// is never retried.
	MarkFailed(ctx context.Context, recipientID string, at time.Time) error

	// FindByMessageID looks up a recipient by its gateway message id.
	// Returns ErrRecipientNotFound if no recipient carries the id.
	FindByMessageID(ctx context.Context, messageID string) (*domain.Recipient, error)

	// MarkDelivered advances sent → delivered.
	MarkDelivered(ctx context.Context, recipientID string, at time.Time) error

	// MarkRead advances delivered → read.
	MarkRead(ctx context.Context, recipientID string, at time.Time) error

	// MarkResponse increments the campaign's response counter. A response
	// does not change the recipient's delivery status.
	MarkResponse(ctx context.Context, recipientID string) error
}

// TemplateRepository manages reusable message templates.
type TemplateRepository interface {
	// Get returns a template. Returns ErrTemplateNotFound if absent.
	Get(ctx context.Context, id string) (*domain.Template, error)

	// List returns all templates ordered by created_at DESC.
	List(ctx context.Context) ([]domain.Template, error)

	// Create inserts a new template.
	Create(ctx context.Context, t *domain.Template) error

	// Update replaces a template's name and body.
	Update(ctx context.Context, t *domain.Template) error

	// Delete removes a template. Campaigns referencing it keep the id;
	// a missing template makes their batches a no-op.
	Delete(ctx context.Context, id string) error
}

// ListFilter controls filtering and pagination for campaign lists.
type ListFilter struct {
	Status domain.CampaignStatus
	Limit  int
	Offset int
}

// RecipientFilter narrows recipient listings.
type RecipientFilter struct {
	Status domain.RecipientStatus
	Limit  int
	Offset int
}
