package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/textflare/dispatch/internal/domain"
	"github.com/textflare/dispatch/internal/pacing"
	"github.com/textflare/dispatch/internal/pkg/logger"
	"github.com/textflare/dispatch/internal/service/campaign"
	"github.com/textflare/dispatch/internal/template"
	"github.com/textflare/dispatch/internal/transport"
)

// =============================================================================
// BATCH PROCESSOR
// =============================================================================
// ProcessBatch takes one pass over a running campaign: it selects up to
// batch_size pending recipients in position order and sends them one at a
// time, waiting a randomized pacing delay between consecutive sends.
//
// Each outcome is persisted before the next send starts, so a crash mid-batch
// loses at most the message in flight; already-marked recipients are never
// sent again. Pause and cancel are observed between sends — the longest a
// campaign keeps sending after either is one pacing delay plus the message
// in flight.

// BatchProcessor sends one batch of a campaign per call.
type BatchProcessor struct {
	campaigns  campaign.Repository
	recipients campaign.RecipientRepository
	templates  campaign.TemplateRepository
	sender     transport.Sender
	engine     *template.Engine

	// Injection points for tests.
	now   func() time.Time
	delay func(domain.SendingConfig) time.Duration
}

// NewBatchProcessor creates a batch processor over the given stores and sender.
func NewBatchProcessor(
	campaigns campaign.Repository,
	recipients campaign.RecipientRepository,
	templates campaign.TemplateRepository,
	sender transport.Sender,
	engine *template.Engine,
) *BatchProcessor {
	return &BatchProcessor{
		campaigns:  campaigns,
		recipients: recipients,
		templates:  templates,
		sender:     sender,
		engine:     engine,
		now:        time.Now,
		delay:      pacing.NextDelay,
	}
}

// ProcessBatch runs one batch pass for the campaign. Returns how many
// recipients were sent and how many failed in this pass. A pass that sends
// nothing (not running, outside business hours, template missing, nothing
// pending) returns zeros and no error.
func (p *BatchProcessor) ProcessBatch(ctx context.Context, campaignID string) (sent, failed int, err error) {
	c, err := p.campaigns.Get(ctx, campaignID)
	if err != nil {
		return 0, 0, err
	}
	if c.Status != domain.CampaignRunning {
		return 0, 0, nil
	}

	if !pacing.CanSendNow(c.Config, p.now()) {
		log.Printf("[BatchProcessor] Campaign %s outside business hours (%02d-%02d), waiting",
			c.ID, c.Config.BusinessHoursStart, c.Config.BusinessHoursEnd)
		return 0, 0, nil
	}

	tmpl, err := p.templates.Get(ctx, c.TemplateID)
	if err != nil {
		if errors.Is(err, campaign.ErrTemplateNotFound) {
			// A deleted template stops the campaign's progress without
			// failing recipients; restoring the template resumes it.
			log.Printf("[BatchProcessor] Campaign %s template %s missing, skipping batch", c.ID, c.TemplateID)
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("load template: %w", err)
	}

	batch, err := p.recipients.ListPending(ctx, campaignID, c.Config.BatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("list pending: %w", err)
	}
	if len(batch) == 0 {
		return 0, 0, p.maybeComplete(ctx, c)
	}

	for i, rec := range batch {
		// Wait the pacing delay before every send but the first. The
		// wait is cancellable so shutdown doesn't hang on long delays.
		if i > 0 {
			if !p.wait(ctx, p.delay(c.Config)) {
				return sent, failed, ctx.Err()
			}
		}

		// Re-read status so pause/cancel lands between sends.
		cur, err := p.campaigns.Get(ctx, campaignID)
		if err != nil {
			return sent, failed, err
		}
		if cur.Status != domain.CampaignRunning {
			log.Printf("[BatchProcessor] Campaign %s is %s, stopping batch after %d sends",
				campaignID, cur.Status, sent)
			return sent, failed, nil
		}

		body, err := p.engine.Render(tmpl.ID, tmpl.Body, rec.Variables)
		if err != nil {
			// Render errors are template-level and deterministic; marking
			// recipients failed would burn the whole list on a typo.
			log.Printf("[BatchProcessor] Campaign %s template render error: %v", campaignID, err)
			return sent, failed, nil
		}

		messageID, sendErr := p.sender.Send(ctx, transport.Message{
			To:               rec.Phone,
			Body:             body,
			SimulateTyping:   c.Config.SimulateTyping,
			TypingDurationMs: c.Config.TypingDurationMs,
		})
		if sendErr != nil {
			logger.Warn("send failed",
				"campaign", campaignID,
				"recipient", rec.ID,
				"phone", rec.Phone,
				"error", sendErr.Error())
			if err := p.recipients.MarkFailed(ctx, rec.ID, p.now()); err != nil {
				return sent, failed, fmt.Errorf("mark failed: %w", err)
			}
			failed++
			continue
		}

		if err := p.recipients.MarkSent(ctx, rec.ID, messageID, p.now()); err != nil {
			return sent, failed, fmt.Errorf("mark sent: %w", err)
		}
		logger.Info("message sent",
			"campaign", campaignID,
			"recipient", rec.ID,
			"phone", rec.Phone,
			"message_id", messageID,
			"position", rec.Position)
		sent++
	}

	if err := p.maybeComplete(ctx, c); err != nil {
		return sent, failed, err
	}
	return sent, failed, nil
}

// maybeComplete moves a running campaign to completed once no recipient is
// pending. Failed recipients count as attempted; a campaign whose every
// recipient failed still completes.
func (p *BatchProcessor) maybeComplete(ctx context.Context, c *domain.Campaign) error {
	pending, err := p.recipients.CountPending(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("count pending: %w", err)
	}
	if pending > 0 {
		return nil
	}

	// Status may have changed during the batch; only running campaigns
	// complete themselves.
	cur, err := p.campaigns.Get(ctx, c.ID)
	if err != nil {
		return err
	}
	if cur.Status != domain.CampaignRunning {
		return nil
	}

	if err := p.campaigns.UpdateStatus(ctx, c.ID, domain.CampaignCompleted); err != nil {
		return fmt.Errorf("complete campaign: %w", err)
	}
	log.Printf("[BatchProcessor] Campaign %s completed (sent: %d, failed: %d)",
		c.ID, cur.Stats.Sent, cur.Stats.Failed)
	return nil
}

// wait sleeps for d or until ctx is done. Returns false if ctx ended first.
func (p *BatchProcessor) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
