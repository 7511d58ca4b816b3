package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/textflare/dispatch/internal/domain"
	"github.com/textflare/dispatch/internal/repository/memory"
	"github.com/textflare/dispatch/internal/service/campaign"
	"github.com/textflare/dispatch/internal/template"
	"github.com/textflare/dispatch/internal/transport"
)

// fakeSender records sends and can fail specific phones or run a hook
// after each send (to flip campaign status mid-batch).
type fakeSender struct {
	mu         sync.Mutex
	sent       []transport.Message
	failPhones map[string]bool
	afterSend  func(n int)
}

func (f *fakeSender) Send(_ context.Context, msg transport.Message) (string, error) {
	f.mu.Lock()
	fail := f.failPhones[msg.To]
	if !fail {
		f.sent = append(f.sent, msg)
	}
	n := len(f.sent)
	hook := f.afterSend
	f.mu.Unlock()

	if fail {
		return "", fmt.Errorf("gateway rejected %s", msg.To)
	}
	if hook != nil {
		hook(n)
	}
	return uuid.New().String(), nil
}

func (f *fakeSender) Ping(context.Context) error { return nil }

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type testEnv struct {
	store  *memory.Store
	sender *fakeSender
	proc   *BatchProcessor
	svc    *campaign.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewStore()
	sender := &fakeSender{failPhones: map[string]bool{}}
	proc := NewBatchProcessor(store.Campaigns(), store.Recipients(), store.Templates(), sender, template.NewEngine())
	proc.delay = func(domain.SendingConfig) time.Duration { return 0 }
	return &testEnv{
		store:  store,
		sender: sender,
		proc:   proc,
		svc:    campaign.NewService(store.Campaigns(), store.Recipients(), store.Templates()),
	}
}

// startCampaign creates a running campaign with n recipients.
func (e *testEnv) startCampaign(t *testing.T, n int, cfg domain.SendingConfig) *domain.Campaign {
	t.Helper()
	ctx := context.Background()
	tmpl := &domain.Template{ID: uuid.New().String(), Name: "T", Body: "Hi {{ name }}"}
	if err := e.store.Templates().Create(ctx, tmpl); err != nil {
		t.Fatalf("create template: %v", err)
	}
	c, err := e.svc.Create(ctx, campaign.CreateInput{Name: "Camp", TemplateID: tmpl.ID, Config: &cfg})
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	inputs := make([]campaign.RecipientInput, n)
	for i := range inputs {
		inputs[i] = campaign.RecipientInput{
			Phone:     fmt.Sprintf("+1555123%04d", i),
			Variables: map[string]string{"name": fmt.Sprintf("User%d", i)},
		}
	}
	if _, err := e.svc.AttachRecipients(ctx, c.ID, inputs); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := e.svc.Start(ctx, c.ID, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	return c
}

func fastConfig(batchSize int) domain.SendingConfig {
	cfg := domain.DefaultSendingConfig()
	cfg.MinIntervalMs = 1
	cfg.MaxIntervalMs = 1
	cfg.BatchSize = batchSize
	return cfg
}

func TestProcessBatch_SendsOneBatchThenStops(t *testing.T) {
	env := newTestEnv(t)
	c := env.startCampaign(t, 25, fastConfig(10))
	ctx := context.Background()

	sent, failed, err := env.proc.ProcessBatch(ctx, c.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if sent != 10 || failed != 0 {
		t.Fatalf("sent=%d failed=%d, want 10/0", sent, failed)
	}

	got, _ := env.store.Campaigns().Get(ctx, c.ID)
	if got.Status != domain.CampaignRunning {
		t.Fatalf("status = %s, want running with pending left", got.Status)
	}
	if got.Stats.Sent != 10 || got.Stats.Pending() != 15 {
		t.Fatalf("stats = %+v", got.Stats)
	}

	// First batch serves the lowest positions.
	rs, _ := env.store.Recipients().List(ctx, c.ID, campaign.RecipientFilter{Status: domain.RecipientSent})
	for i, r := range rs {
		if r.Position != i {
			t.Fatalf("sent recipient %d has position %d, want FIFO order", i, r.Position)
		}
	}
}

func TestProcessBatch_CompletesWhenAllSent(t *testing.T) {
	env := newTestEnv(t)
	c := env.startCampaign(t, 5, fastConfig(10))
	ctx := context.Background()

	sent, _, err := env.proc.ProcessBatch(ctx, c.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if sent != 5 {
		t.Fatalf("sent = %d, want 5", sent)
	}

	got, _ := env.store.Campaigns().Get(ctx, c.ID)
	if got.Status != domain.CampaignCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
}

func TestProcessBatch_PersonalizesPerRecipient(t *testing.T) {
	env := newTestEnv(t)
	c := env.startCampaign(t, 3, fastConfig(10))

	if _, _, err := env.proc.ProcessBatch(context.Background(), c.ID); err != nil {
		t.Fatalf("process: %v", err)
	}

	env.sender.mu.Lock()
	defer env.sender.mu.Unlock()
	for i, msg := range env.sender.sent {
		want := fmt.Sprintf("Hi User%d", i)
		if msg.Body != want {
			t.Errorf("message %d body = %q, want %q", i, msg.Body, want)
		}
	}
	_ = c
}

func TestProcessBatch_FailureIsTerminalNoRetry(t *testing.T) {
	env := newTestEnv(t)
	c := env.startCampaign(t, 5, fastConfig(10))
	ctx := context.Background()

	env.sender.failPhones["+15551230002"] = true

	sent, failed, err := env.proc.ProcessBatch(ctx, c.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if sent != 4 || failed != 1 {
		t.Fatalf("sent=%d failed=%d, want 4/1", sent, failed)
	}

	got, _ := env.store.Campaigns().Get(ctx, c.ID)
	if got.Status != domain.CampaignCompleted {
		t.Fatalf("status = %s, want completed despite failure", got.Status)
	}
	if got.Stats.Sent != 4 || got.Stats.Failed != 1 {
		t.Fatalf("stats = %+v", got.Stats)
	}

	// A second pass finds nothing pending and never retries the failure.
	before := env.sender.sentCount()
	env.proc.ProcessBatch(ctx, c.ID)
	if env.sender.sentCount() != before {
		t.Fatal("failed recipient was retried")
	}
}

func TestProcessBatch_PauseLandsBetweenSends(t *testing.T) {
	env := newTestEnv(t)
	c := env.startCampaign(t, 10, fastConfig(10))
	ctx := context.Background()

	env.sender.afterSend = func(n int) {
		if n == 3 {
			if err := env.svc.Pause(ctx, c.ID); err != nil {
				t.Errorf("pause: %v", err)
			}
		}
	}

	sent, failed, err := env.proc.ProcessBatch(ctx, c.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if sent != 3 || failed != 0 {
		t.Fatalf("sent=%d failed=%d, want 3/0", sent, failed)
	}

	got, _ := env.store.Campaigns().Get(ctx, c.ID)
	if got.Status != domain.CampaignPaused {
		t.Fatalf("status = %s, want paused", got.Status)
	}
	if got.Stats.Pending() != 7 {
		t.Fatalf("pending = %d, want 7", got.Stats.Pending())
	}

	// Resume picks up exactly where the pause left off.
	if err := env.svc.Resume(ctx, c.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	sent, _, err = env.proc.ProcessBatch(ctx, c.ID)
	if err != nil {
		t.Fatalf("process after resume: %v", err)
	}
	if sent != 7 {
		t.Fatalf("sent after resume = %d, want 7", sent)
	}
	got, _ = env.store.Campaigns().Get(ctx, c.ID)
	if got.Status != domain.CampaignCompleted || got.Stats.Sent != 10 {
		t.Fatalf("after resume: status=%s stats=%+v", got.Status, got.Stats)
	}
}

func TestProcessBatch_CancelStopsForGood(t *testing.T) {
	env := newTestEnv(t)
	c := env.startCampaign(t, 10, fastConfig(10))
	ctx := context.Background()

	env.sender.afterSend = func(n int) {
		if n == 2 {
			env.svc.Cancel(ctx, c.ID)
		}
	}

	sent, _, err := env.proc.ProcessBatch(ctx, c.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if sent != 2 {
		t.Fatalf("sent = %d, want 2", sent)
	}

	// Cancelled campaigns never send again; pending stays pending.
	env.sender.afterSend = nil
	sent, _, _ = env.proc.ProcessBatch(ctx, c.ID)
	if sent != 0 {
		t.Fatalf("cancelled campaign sent %d messages", sent)
	}
	got, _ := env.store.Campaigns().Get(ctx, c.ID)
	if got.Status != domain.CampaignCancelled || got.Stats.Pending() != 8 {
		t.Fatalf("status=%s pending=%d", got.Status, got.Stats.Pending())
	}
}

func TestProcessBatch_BusinessHoursGate(t *testing.T) {
	env := newTestEnv(t)
	cfg := fastConfig(10)
	cfg.RespectBusinessHours = true
	cfg.BusinessHoursStart = 9
	cfg.BusinessHoursEnd = 18
	c := env.startCampaign(t, 5, cfg)
	ctx := context.Background()

	env.proc.now = func() time.Time {
		return time.Date(2025, 6, 2, 7, 30, 0, 0, time.Local)
	}
	sent, _, err := env.proc.ProcessBatch(ctx, c.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if sent != 0 {
		t.Fatalf("sent %d messages outside business hours", sent)
	}
	got, _ := env.store.Campaigns().Get(ctx, c.ID)
	if got.Status != domain.CampaignRunning {
		t.Fatalf("status = %s, campaign should keep waiting", got.Status)
	}

	// Same campaign sends once the window opens.
	env.proc.now = func() time.Time {
		return time.Date(2025, 6, 2, 9, 0, 0, 0, time.Local)
	}
	sent, _, err = env.proc.ProcessBatch(ctx, c.ID)
	if err != nil {
		t.Fatalf("process in hours: %v", err)
	}
	if sent != 5 {
		t.Fatalf("sent = %d, want 5 inside business hours", sent)
	}
}

func TestProcessBatch_MissingTemplateIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	c := env.startCampaign(t, 3, fastConfig(10))
	ctx := context.Background()

	env.store.Templates().Delete(ctx, c.TemplateID)

	sent, failed, err := env.proc.ProcessBatch(ctx, c.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if sent != 0 || failed != 0 {
		t.Fatalf("sent=%d failed=%d, want no-op", sent, failed)
	}
	got, _ := env.store.Campaigns().Get(ctx, c.ID)
	if got.Status != domain.CampaignRunning || got.Stats.Pending() != 3 {
		t.Fatalf("status=%s pending=%d, recipients must stay untouched", got.Status, got.Stats.Pending())
	}
}

func TestProcessBatch_NonRunningIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tmpl := &domain.Template{ID: "tpl", Name: "T", Body: "hi"}
	env.store.Templates().Create(ctx, tmpl)
	c, _ := env.svc.Create(ctx, campaign.CreateInput{Name: "Draft", TemplateID: "tpl"})
	env.svc.AttachRecipients(ctx, c.ID, []campaign.RecipientInput{{Phone: "+15551230001"}})

	sent, _, err := env.proc.ProcessBatch(ctx, c.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if sent != 0 || env.sender.sentCount() != 0 {
		t.Fatal("draft campaign must not send")
	}
}

func TestProcessBatch_DelayBetweenConsecutiveSends(t *testing.T) {
	env := newTestEnv(t)
	c := env.startCampaign(t, 4, fastConfig(10))

	delays := 0
	env.proc.delay = func(cfg domain.SendingConfig) time.Duration {
		delays++
		return 0
	}

	if _, _, err := env.proc.ProcessBatch(context.Background(), c.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	// n sends wait n-1 delays; no delay before the first.
	if delays != 3 {
		t.Fatalf("delay invoked %d times, want 3", delays)
	}
}

func TestProcessBatch_CancelledContextStopsWait(t *testing.T) {
	env := newTestEnv(t)
	c := env.startCampaign(t, 5, fastConfig(10))

	env.proc.delay = func(domain.SendingConfig) time.Duration { return time.Hour }
	ctx, cancel := context.WithCancel(context.Background())
	env.sender.afterSend = func(n int) {
		if n == 1 {
			cancel()
		}
	}

	done := make(chan struct{})
	var sent int
	go func() {
		sent, _, _ = env.proc.ProcessBatch(ctx, c.ID)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ProcessBatch did not return after context cancel")
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1 before shutdown", sent)
	}
}
