package worker

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/textflare/dispatch/internal/domain"
	"github.com/textflare/dispatch/internal/pkg/distlock"
	"github.com/textflare/dispatch/internal/service/campaign"
)

// =============================================================================
// DISPATCH SCHEDULER WORKER
// =============================================================================
// This worker polls for campaigns that need attention:
// - scheduled campaigns whose scheduled_at has arrived are promoted to running
// - running campaigns get one batch pass per tick via the BatchProcessor
//
// Campaigns are processed sequentially within a tick. A per-campaign lease
// (Redis, with PG advisory fallback) guards against a second scheduler
// process double-sending the same campaign.

const (
	// DefaultPollInterval is how often the scheduler looks for work.
	DefaultPollInterval = 5 * time.Second

	// campaignLeaseTTL bounds how long a dead scheduler can hold a
	// campaign. A live scheduler renews it while a batch is in flight,
	// so large batches with long pacing delays never outlive the lease.
	campaignLeaseTTL = 10 * time.Minute

	// leaseExtendInterval is how often an in-flight batch renews its
	// lease. Half the TTL leaves a full renewal miss of headroom.
	leaseExtendInterval = campaignLeaseTTL / 2
)

// Scheduler drives all campaigns forward on a fixed tick.
type Scheduler struct {
	campaigns   campaign.Repository
	processor   *BatchProcessor
	redisClient *redis.Client // optional; nil falls back to PG advisory locks
	db          *sql.DB       // optional; nil with nil redis disables leasing

	pollInterval time.Duration

	// Stats
	batchesProcessed int64
	messagesSent     int64
	messagesFailed   int64
	errors           int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewScheduler creates a scheduler over the given campaign store and processor.
func NewScheduler(campaigns campaign.Repository, processor *BatchProcessor) *Scheduler {
	return &Scheduler{
		campaigns:    campaigns,
		processor:    processor,
		pollInterval: DefaultPollInterval,
	}
}

// SetRedisClient sets the Redis client for campaign leasing.
func (s *Scheduler) SetRedisClient(client *redis.Client) {
	s.redisClient = client
}

// SetDB sets the database handle used for PG advisory lock fallback.
func (s *Scheduler) SetDB(db *sql.DB) {
	s.db = db
}

// SetPollInterval overrides the tick interval. Call before Start.
func (s *Scheduler) SetPollInterval(d time.Duration) {
	s.pollInterval = d
}

// Start begins the scheduler polling loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	log.Printf("[Scheduler] Starting with poll interval: %v", s.pollInterval)

	s.wg.Add(1)
	go s.loop()
	return nil
}

// Stop gracefully stops the scheduler, waiting for the in-flight tick.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	log.Printf("[Scheduler] Stopping...")
	s.cancel()
	s.wg.Wait()
	log.Printf("[Scheduler] Stopped. Batches: %d, Sent: %d, Failed: %d, Errors: %d",
		atomic.LoadInt64(&s.batchesProcessed), atomic.LoadInt64(&s.messagesSent),
		atomic.LoadInt64(&s.messagesFailed), atomic.LoadInt64(&s.errors))
}

// Stats is a snapshot of the scheduler's counters.
type Stats struct {
	BatchesProcessed int64 `json:"batches_processed"`
	MessagesSent     int64 `json:"messages_sent"`
	MessagesFailed   int64 `json:"messages_failed"`
	Errors           int64 `json:"errors"`
}

// Stats returns the current counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		BatchesProcessed: atomic.LoadInt64(&s.batchesProcessed),
		MessagesSent:     atomic.LoadInt64(&s.messagesSent),
		MessagesFailed:   atomic.LoadInt64(&s.messagesFailed),
		Errors:           atomic.LoadInt64(&s.errors),
	}
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick is one scheduler pass: promote due campaigns, then run one batch
// for every running campaign.
func (s *Scheduler) tick() {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	s.promoteDueCampaigns(ctx)
	s.processRunningCampaigns(ctx)
}

// promoteDueCampaigns moves scheduled campaigns whose time has arrived
// into running.
func (s *Scheduler) promoteDueCampaigns(ctx context.Context) {
	due, err := s.campaigns.ListByStatus(ctx, domain.CampaignScheduled)
	if err != nil {
		log.Printf("[Scheduler] Error listing scheduled campaigns: %v", err)
		atomic.AddInt64(&s.errors, 1)
		return
	}

	now := time.Now()
	for _, c := range due {
		if c.ScheduledAt == nil || c.ScheduledAt.After(now) {
			continue
		}
		if err := s.campaigns.UpdateStatus(ctx, c.ID, domain.CampaignRunning); err != nil {
			log.Printf("[Scheduler] Error promoting campaign %s: %v", c.ID, err)
			atomic.AddInt64(&s.errors, 1)
			continue
		}
		log.Printf("[Scheduler] Campaign %s (%s) promoted to running", c.ID, c.Name)
	}
}

// processRunningCampaigns runs one batch pass per running campaign,
// sequentially, each under its campaign lease.
func (s *Scheduler) processRunningCampaigns(ctx context.Context) {
	active, err := s.campaigns.ListByStatus(ctx, domain.CampaignRunning)
	if err != nil {
		log.Printf("[Scheduler] Error listing running campaigns: %v", err)
		atomic.AddInt64(&s.errors, 1)
		return
	}

	for _, c := range active {
		if ctx.Err() != nil {
			return
		}
		s.processCampaign(ctx, c.ID)
	}
}

func (s *Scheduler) processCampaign(ctx context.Context, campaignID string) {
	if lock := s.leaseFor(campaignID); lock != nil {
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			log.Printf("[Scheduler] Error acquiring lease for campaign %s: %v", campaignID, err)
			atomic.AddInt64(&s.errors, 1)
			return
		}
		if !acquired {
			log.Printf("[Scheduler] Campaign %s held by another scheduler, skipping", campaignID)
			return
		}
		defer lock.Release(ctx)

		// Keep the lease alive for as long as the batch runs; pacing
		// delays on a big batch can exceed the initial TTL.
		extendCtx, stopExtend := context.WithCancel(ctx)
		defer stopExtend()
		go s.keepLeaseAlive(extendCtx, lock, campaignID, leaseExtendInterval, campaignLeaseTTL)
	}

	sent, failed, err := s.processor.ProcessBatch(ctx, campaignID)
	if err != nil {
		log.Printf("[Scheduler] Error processing campaign %s: %v", campaignID, err)
		atomic.AddInt64(&s.errors, 1)
	}

	atomic.AddInt64(&s.batchesProcessed, 1)
	atomic.AddInt64(&s.messagesSent, int64(sent))
	atomic.AddInt64(&s.messagesFailed, int64(failed))
}

// keepLeaseAlive renews the campaign lease every interval until ctx ends.
// A failed renewal means the lease is lost (or Redis is down); the batch
// already in flight finishes, renewal simply stops.
func (s *Scheduler) keepLeaseAlive(ctx context.Context, lock distlock.DistLock, campaignID string, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lock.Extend(ctx, ttl); err != nil {
				log.Printf("[Scheduler] Error extending lease for campaign %s: %v", campaignID, err)
				atomic.AddInt64(&s.errors, 1)
				return
			}
		}
	}
}

// leaseFor builds the per-campaign lease, or nil when neither Redis nor a
// database is configured (single-process dev mode).
func (s *Scheduler) leaseFor(campaignID string) distlock.DistLock {
	if s.redisClient == nil && s.db == nil {
		return nil
	}
	return distlock.NewLock(s.redisClient, s.db, fmt.Sprintf("campaign:%s", campaignID), campaignLeaseTTL)
}
