// Package memory provides in-memory implementations of the campaign
// repositories. Used in dev mode when no database is configured, and as
// the backing store for handler and worker tests.
//
// All stores are safe for concurrent use. Data does not survive a restart;
// production deployments use repository/postgres.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/textflare/dispatch/internal/domain"
	"github.com/textflare/dispatch/internal/service/campaign"
)

// Store holds campaigns, recipients, and templates behind one mutex so the
// Mark* operations can update a recipient row and its campaign's counters
// as a single atomic step, matching the transactional postgres behavior.
type Store struct {
	mu         sync.Mutex
	campaigns  map[string]*domain.Campaign
	recipients map[string]*domain.Recipient // keyed by recipient id
	byMessage  map[string]string            // message id -> recipient id
	templates  map[string]*domain.Template
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		campaigns:  make(map[string]*domain.Campaign),
		recipients: make(map[string]*domain.Recipient),
		byMessage:  make(map[string]string),
		templates:  make(map[string]*domain.Template),
	}
}

// Campaigns returns the store's campaign.Repository view.
func (s *Store) Campaigns() campaign.Repository { return (*campaignStore)(s) }

// Recipients returns the store's campaign.RecipientRepository view.
func (s *Store) Recipients() campaign.RecipientRepository { return (*recipientStore)(s) }

// Templates returns the store's campaign.TemplateRepository view.
func (s *Store) Templates() campaign.TemplateRepository { return (*templateStore)(s) }

// =============================================================================
// Campaigns
// =============================================================================

type campaignStore Store

func (m *campaignStore) Get(_ context.Context, id string) (*domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *campaignStore) List(_ context.Context, f campaign.ListFilter) ([]domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Campaign
	for _, c := range m.campaigns {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *campaignStore) ListByStatus(_ context.Context, statuses ...domain.CampaignStatus) ([]domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[domain.CampaignStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []domain.Campaign
	for _, c := range m.campaigns {
		if want[c.Status] {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *campaignStore) Create(_ context.Context, c *domain.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	cp := *c
	cp.CreatedAt = now
	cp.UpdatedAt = now
	m.campaigns[cp.ID] = &cp
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

func (m *campaignStore) UpdateConfig(_ context.Context, id string, cfg domain.SendingConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	c.Config = cfg
	c.UpdatedAt = time.Now()
	return nil
}

func (m *campaignStore) UpdateStatus(_ context.Context, id string, status domain.CampaignStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	now := time.Now()
	if status == domain.CampaignRunning && c.StartedAt == nil {
		c.StartedAt = &now
	}
	if status == domain.CampaignCompleted || status == domain.CampaignCancelled {
		c.CompletedAt = &now
	}
	c.Status = status
	c.UpdatedAt = now
	return nil
}

func (m *campaignStore) SetScheduledAt(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	c.ScheduledAt = &at
	c.UpdatedAt = time.Now()
	return nil
}

func (m *campaignStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.campaigns[id]; !ok {
		return campaign.ErrNotFound
	}
	delete(m.campaigns, id)
	for rid, r := range m.recipients {
		if r.CampaignID == id {
			if r.MessageID != "" {
				delete(m.byMessage, r.MessageID)
			}
			delete(m.recipients, rid)
		}
	}
	return nil
}

// =============================================================================
// Recipients
// =============================================================================

type recipientStore Store

func (m *recipientStore) Attach(_ context.Context, campaignID string, recipients []domain.Recipient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[campaignID]
	if !ok {
		return campaign.ErrNotFound
	}
	for i := range recipients {
		cp := recipients[i]
		m.recipients[cp.ID] = &cp
	}
	c.Stats.Total += len(recipients)
	c.UpdatedAt = time.Now()
	return nil
}

func (m *recipientStore) forCampaign(campaignID string) []*domain.Recipient {
	var out []*domain.Recipient
	for _, r := range m.recipients {
		if r.CampaignID == campaignID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (m *recipientStore) ListPending(_ context.Context, campaignID string, limit int) ([]domain.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Recipient
	for _, r := range m.forCampaign(campaignID) {
		if r.Status != domain.RecipientPending {
			continue
		}
		out = append(out, *r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *recipientStore) CountPending(_ context.Context, campaignID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.recipients {
		if r.CampaignID == campaignID && r.Status == domain.RecipientPending {
			n++
		}
	}
	return n, nil
}

func (m *recipientStore) List(_ context.Context, campaignID string, f campaign.RecipientFilter) ([]domain.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Recipient
	for _, r := range m.forCampaign(campaignID) {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, *r)
	}
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *recipientStore) MarkSent(_ context.Context, recipientID, messageID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipients[recipientID]
	if !ok {
		return campaign.ErrRecipientNotFound
	}
	r.Status = domain.RecipientSent
	r.MessageID = messageID
	r.SentAt = &at
	m.byMessage[messageID] = recipientID
	if c, ok := m.campaigns[r.CampaignID]; ok {
		c.Stats.Sent++
		c.UpdatedAt = at
	}
	return nil
}

func (m *recipientStore) MarkFailed(_ context.Context, recipientID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipients[recipientID]
	if !ok {
		return campaign.ErrRecipientNotFound
	}
	r.Status = domain.RecipientFailed
	if c, ok := m.campaigns[r.CampaignID]; ok {
		c.Stats.Failed++
		c.UpdatedAt = at
	}
	return nil
}

func (m *recipientStore) FindByMessageID(_ context.Context, messageID string) (*domain.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byMessage[messageID]
	if !ok {
		return nil, campaign.ErrRecipientNotFound
	}
	cp := *m.recipients[id]
	return &cp, nil
}

func (m *recipientStore) MarkDelivered(_ context.Context, recipientID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipients[recipientID]
	if !ok {
		return campaign.ErrRecipientNotFound
	}
	r.Status = domain.RecipientDelivered
	r.DeliveredAt = &at
	if c, ok := m.campaigns[r.CampaignID]; ok {
		c.Stats.Delivered++
		c.UpdatedAt = at
	}
	return nil
}

func (m *recipientStore) MarkRead(_ context.Context, recipientID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipients[recipientID]
	if !ok {
		return campaign.ErrRecipientNotFound
	}
	r.Status = domain.RecipientRead
	r.ReadAt = &at
	if c, ok := m.campaigns[r.CampaignID]; ok {
		c.Stats.Read++
		c.UpdatedAt = at
	}
	return nil
}

func (m *recipientStore) MarkResponse(_ context.Context, recipientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipients[recipientID]
	if !ok {
		return campaign.ErrRecipientNotFound
	}
	if c, ok := m.campaigns[r.CampaignID]; ok {
		c.Stats.Responses++
		c.UpdatedAt = time.Now()
	}
	return nil
}

// =============================================================================
// Templates
// =============================================================================

type templateStore Store

func (m *templateStore) Get(_ context.Context, id string) (*domain.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return nil, campaign.ErrTemplateNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *templateStore) List(_ context.Context) ([]domain.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Template
	for _, t := range m.templates {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *templateStore) Create(_ context.Context, t *domain.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	cp := *t
	cp.CreatedAt = now
	cp.UpdatedAt = now
	m.templates[cp.ID] = &cp
	t.CreatedAt = now
	t.UpdatedAt = now
	return nil
}

func (m *templateStore) Update(_ context.Context, t *domain.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.templates[t.ID]
	if !ok {
		return campaign.ErrTemplateNotFound
	}
	cur.Name = t.Name
	cur.Body = t.Body
	cur.UpdatedAt = time.Now()
	return nil
}

func (m *templateStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[id]; !ok {
		return campaign.ErrTemplateNotFound
	}
	delete(m.templates, id)
	return nil
}
