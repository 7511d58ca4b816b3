package campaign

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/textflare/dispatch/internal/domain"
)

// Service implements campaign business logic. It coordinates between the
// repository layer and the lifecycle rules; the actual sending is done by
// the worker package, which shares the same repositories.
// All public methods are safe for concurrent use if the underlying
// repositories are concurrency-safe.
// TransportPinger is the health-check slice of the outbound transport,
// used by Start to refuse campaigns that cannot send.
type TransportPinger interface {
	Ping(ctx context.Context) error
}

type Service struct {
	repo       Repository
	recipients RecipientRepository
	templates  TemplateRepository
	transport  TransportPinger
	defaults   domain.SendingConfig
}

// NewService creates a campaign service backed by the given repositories.
func NewService(repo Repository, recipients RecipientRepository, templates TemplateRepository) *Service {
	return &Service{
		repo:       repo,
		recipients: recipients,
		templates:  templates,
		defaults:   domain.DefaultSendingConfig(),
	}
}

// SetDefaultConfig overrides the pacing defaults applied to campaigns
// created without an explicit config. Call before serving traffic.
func (s *Service) SetDefaultConfig(cfg domain.SendingConfig) {
	s.defaults = cfg
}

// SetTransport enables the reachability gate on Start. Without it, Start
// skips the health check (dev mode, console sender).
func (s *Service) SetTransport(t TransportPinger) {
	s.transport = t
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, id)
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Campaign, error) {
	return s.repo.List(ctx, f)
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Name       string                `json:"name"`
	TemplateID string                `json:"template_id"`
	Config     *domain.SendingConfig `json:"config,omitempty"`
}

// Create validates and persists a new campaign in draft status. The pacing
// config defaults when omitted.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Campaign, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if input.TemplateID == "" {
		return nil, fmt.Errorf("template_id is required")
	}
	if _, err := s.templates.Get(ctx, input.TemplateID); err != nil {
		return nil, err
	}

	cfg := s.defaults
	if input.Config != nil {
		cfg = *input.Config
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sending config: %w", err)
	}

	c := &domain.Campaign{
		ID:         uuid.New().String(),
		Name:       input.Name,
		TemplateID: input.TemplateID,
		Config:     cfg,
		Status:     domain.CampaignDraft,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateConfig replaces a draft campaign's pacing config.
func (s *Service) UpdateConfig(ctx context.Context, id string, cfg domain.SendingConfig) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignDraft {
		return ErrNotDraft
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid sending config: %w", err)
	}
	return s.repo.UpdateConfig(ctx, id, cfg)
}

// RecipientInput is one recipient to attach to a campaign.
type RecipientInput struct {
	Phone     string            `json:"phone"`
	Variables map[string]string `json:"variables,omitempty"`
}

// AttachRecipients adds recipients to a draft campaign. Input order is
// preserved; batches are later served in this order. May be called more
// than once; positions continue where the previous attach left off.
func (s *Service) AttachRecipients(ctx context.Context, campaignID string, inputs []RecipientInput) (int, error) {
	c, err := s.repo.Get(ctx, campaignID)
	if err != nil {
		return 0, err
	}
	if c.Status != domain.CampaignDraft {
		return 0, ErrNotDraft
	}
	if len(inputs) == 0 {
		return 0, fmt.Errorf("no recipients given")
	}

	now := time.Now()
	recipients := make([]domain.Recipient, 0, len(inputs))
	for i, in := range inputs {
		if in.Phone == "" {
			return 0, fmt.Errorf("recipient %d: phone is required", i)
		}
		recipients = append(recipients, domain.Recipient{
			ID:         uuid.New().String(),
			CampaignID: campaignID,
			Phone:      in.Phone,
			Variables:  in.Variables,
			Status:     domain.RecipientPending,
			Position:   c.Stats.Total + i,
			CreatedAt:  now,
		})
	}

	if err := s.recipients.Attach(ctx, campaignID, recipients); err != nil {
		return 0, err
	}
	log.Printf("[campaign.Service] Campaign %s: attached %d recipients", campaignID, len(recipients))
	return len(recipients), nil
}

// Start moves a draft campaign into running, or into scheduled when a
// future start time is given. A scheduled campaign may be started early.
// The campaign must have recipients, its template must still exist, and
// the transport must pass its health check.
func (s *Service) Start(ctx context.Context, id string, at *time.Time) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignDraft && c.Status != domain.CampaignScheduled {
		return ErrInvalidTransition
	}
	if c.Stats.Total == 0 {
		return ErrNoRecipients
	}
	if _, err := s.templates.Get(ctx, c.TemplateID); err != nil {
		return err
	}
	if s.transport != nil {
		if err := s.transport.Ping(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrTransportUnreachable, err)
		}
	}

	if at != nil && at.After(time.Now()) {
		if err := s.repo.SetScheduledAt(ctx, id, *at); err != nil {
			return err
		}
		if err := s.repo.UpdateStatus(ctx, id, domain.CampaignScheduled); err != nil {
			return err
		}
		log.Printf("[campaign.Service] Campaign %s scheduled for %s", id, at.Format(time.RFC3339))
		return nil
	}

	if err := s.repo.UpdateStatus(ctx, id, domain.CampaignRunning); err != nil {
		return err
	}
	log.Printf("[campaign.Service] Campaign %s started", id)
	return nil
}

// Pause suspends a running campaign. In-flight sends finish; no new send
// begins after the pause is observed.
func (s *Service) Pause(ctx context.Context, id string) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignRunning {
		return ErrInvalidTransition
	}
	if err := s.repo.UpdateStatus(ctx, id, domain.CampaignPaused); err != nil {
		return err
	}
	log.Printf("[campaign.Service] Campaign %s paused", id)
	return nil
}

// Resume continues a paused campaign from where it left off.
func (s *Service) Resume(ctx context.Context, id string) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignPaused {
		return ErrInvalidTransition
	}
	if err := s.repo.UpdateStatus(ctx, id, domain.CampaignRunning); err != nil {
		return err
	}
	log.Printf("[campaign.Service] Campaign %s resumed", id)
	return nil
}

// Cancel permanently stops a campaign. Pending recipients stay pending and
// are never sent; the campaign cannot be restarted.
func (s *Service) Cancel(ctx context.Context, id string) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.IsTerminal() {
		return ErrInvalidTransition
	}
	if err := s.repo.UpdateStatus(ctx, id, domain.CampaignCancelled); err != nil {
		return err
	}
	log.Printf("[campaign.Service] Campaign %s cancelled", id)
	return nil
}

// Delete removes a campaign and its recipients. Allowed for draft and
// terminal campaigns only.
func (s *Service) Delete(ctx context.Context, id string) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignDraft && !c.IsTerminal() {
		return ErrInvalidTransition
	}
	return s.repo.Delete(ctx, id)
}

// Stats returns the campaign's aggregate counters.
func (s *Service) Stats(ctx context.Context, id string) (*domain.CampaignStats, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &c.Stats, nil
}

// Recipients lists a campaign's recipients.
func (s *Service) Recipients(ctx context.Context, campaignID string, f RecipientFilter) ([]domain.Recipient, error) {
	if _, err := s.repo.Get(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.recipients.List(ctx, campaignID, f)
}

// Receipt event types accepted by HandleReceipt.
const (
	ReceiptDelivered = "delivered"
	ReceiptRead      = "read"
	ReceiptResponse  = "response"
)

// HandleReceipt applies a gateway status receipt to the recipient that owns
// the message id. Receipts that would move a recipient backwards, repeat a
// state, or reference a failed recipient are dropped; gateways redeliver
// and reorder receipts, so this is normal traffic, not an error.
func (s *Service) HandleReceipt(ctx context.Context, messageID, event string, at time.Time) error {
	r, err := s.recipients.FindByMessageID(ctx, messageID)
	if err != nil {
		return err
	}

	switch event {
	case ReceiptDelivered:
		if !r.Status.CanTransitionTo(domain.RecipientDelivered) {
			log.Printf("[campaign.Service] Dropping delivered receipt for %s (status %s)", messageID, r.Status)
			return nil
		}
		return s.recipients.MarkDelivered(ctx, r.ID, at)
	case ReceiptRead:
		if !r.Status.CanTransitionTo(domain.RecipientRead) {
			log.Printf("[campaign.Service] Dropping read receipt for %s (status %s)", messageID, r.Status)
			return nil
		}
		return s.recipients.MarkRead(ctx, r.ID, at)
	case ReceiptResponse:
		if r.Status == domain.RecipientPending || r.Status == domain.RecipientFailed {
			log.Printf("[campaign.Service] Dropping response receipt for %s (status %s)", messageID, r.Status)
			return nil
		}
		return s.recipients.MarkResponse(ctx, r.ID)
	default:
		return fmt.Errorf("unknown receipt event %q", event)
	}
}
