package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/textflare/dispatch/internal/api"
	"github.com/textflare/dispatch/internal/domain"
	"github.com/textflare/dispatch/internal/repository/memory"
	"github.com/textflare/dispatch/internal/service/campaign"
	"github.com/textflare/dispatch/internal/template"
)

func newTestServer(t *testing.T) (http.Handler, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	svc := campaign.NewService(store.Campaigns(), store.Recipients(), store.Templates())
	engine := template.NewEngine()

	router := api.SetupRoutes(
		api.NewCampaignAPI(svc),
		api.NewTemplateAPI(store.Templates(), engine),
		api.NewWebhookAPI(svc),
		nil,
	)
	return router, store
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func createTemplate(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/v1/templates", map[string]string{
		"name": "Welcome",
		"body": "Hi {{ name }}, welcome!",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create template: status %d body %s", rec.Code, rec.Body.String())
	}
	var tmpl domain.Template
	decodeBody(t, rec, &tmpl)
	return tmpl.ID
}

func createCampaign(t *testing.T, h http.Handler, templateID string) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/v1/campaigns", map[string]string{
		"name":        "Launch",
		"template_id": templateID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create campaign: status %d body %s", rec.Code, rec.Body.String())
	}
	var c domain.Campaign
	decodeBody(t, rec, &c)
	return c.ID
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestServer(t)
	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health: status %d", rec.Code)
	}
}

func TestTemplateValidation(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/templates", map[string]string{
		"name": "Broken",
		"body": "Hi {{ name ",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid template body: status %d, want 400", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/templates", map[string]string{"body": "hi"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing name: status %d, want 400", rec.Code)
	}
}

func TestTemplatePreviewKeepsMissingPlaceholders(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/templates/preview", map[string]interface{}{
		"body":      "Hi {{ name }}, your code is {{ code }}",
		"variables": map[string]string{"name": "Ada"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("preview: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Rendered  string   `json:"rendered"`
		Variables []string `json:"variables"`
	}
	decodeBody(t, rec, &resp)
	if resp.Rendered != "Hi Ada, your code is {{code}}" {
		t.Errorf("rendered = %q", resp.Rendered)
	}
	if len(resp.Variables) != 2 {
		t.Errorf("variables = %v", resp.Variables)
	}
}

func TestCampaignLifecycleOverHTTP(t *testing.T) {
	h, _ := newTestServer(t)
	tplID := createTemplate(t, h)
	campID := createCampaign(t, h, tplID)

	// Start without recipients is a 400.
	rec := doJSON(t, h, http.MethodPost, "/api/v1/campaigns/"+campID+"/start", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("start without recipients: status %d, want 400", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/campaigns/"+campID+"/recipients", map[string]interface{}{
		"recipients": []map[string]interface{}{
			{"phone": "+15551230001", "variables": map[string]string{"name": "Ada"}},
			{"phone": "+15551230002"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("attach: status %d body %s", rec.Code, rec.Body.String())
	}

	// Pause before start is a 409.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/campaigns/"+campID+"/pause", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("pause draft: status %d, want 409", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/campaigns/"+campID+"/start", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start: status %d body %s", rec.Code, rec.Body.String())
	}

	var got domain.Campaign
	rec = doJSON(t, h, http.MethodGet, "/api/v1/campaigns/"+campID, nil)
	decodeBody(t, rec, &got)
	if got.Status != domain.CampaignRunning {
		t.Fatalf("status = %s, want running", got.Status)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/campaigns/"+campID+"/pause", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pause: status %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodPost, "/api/v1/campaigns/"+campID+"/resume", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("resume: status %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodPost, "/api/v1/campaigns/"+campID+"/cancel", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: status %d", rec.Code)
	}

	// Attaching to a cancelled campaign conflicts.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/campaigns/"+campID+"/recipients", map[string]interface{}{
		"recipients": []map[string]interface{}{{"phone": "+15551239999"}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("attach after cancel: status %d, want 409", rec.Code)
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/campaigns/"+campID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d, want 204", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/api/v1/campaigns/"+campID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: status %d, want 404", rec.Code)
	}
}

func TestScheduledStartOverHTTP(t *testing.T) {
	h, _ := newTestServer(t)
	tplID := createTemplate(t, h)
	campID := createCampaign(t, h, tplID)

	doJSON(t, h, http.MethodPost, "/api/v1/campaigns/"+campID+"/recipients", map[string]interface{}{
		"recipients": []map[string]interface{}{{"phone": "+15551230001"}},
	})

	at := time.Now().Add(2 * time.Hour).UTC().Format(time.RFC3339)
	rec := doJSON(t, h, http.MethodPost, "/api/v1/campaigns/"+campID+"/start", map[string]string{
		"scheduled_at": at,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("scheduled start: status %d body %s", rec.Code, rec.Body.String())
	}

	var got domain.Campaign
	rec = doJSON(t, h, http.MethodGet, "/api/v1/campaigns/"+campID, nil)
	decodeBody(t, rec, &got)
	if got.Status != domain.CampaignScheduled {
		t.Fatalf("status = %s, want scheduled", got.Status)
	}
}

func TestWebhookReceipts(t *testing.T) {
	h, store := newTestServer(t)
	tplID := createTemplate(t, h)
	campID := createCampaign(t, h, tplID)

	doJSON(t, h, http.MethodPost, "/api/v1/campaigns/"+campID+"/recipients", map[string]interface{}{
		"recipients": []map[string]interface{}{{"phone": "+15551230001"}},
	})
	doJSON(t, h, http.MethodPost, "/api/v1/campaigns/"+campID+"/start", nil)

	ctx := context.Background()
	rs, _ := store.Recipients().List(ctx, campID, campaign.RecipientFilter{})
	store.Recipients().MarkSent(ctx, rs[0].ID, "msg-42", time.Now())

	// Unknown message id is acknowledged and ignored.
	rec := doJSON(t, h, http.MethodPost, "/api/v1/webhooks/status", map[string]string{
		"message_id": "nope", "event": "delivered",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("unknown message: status %d", rec.Code)
	}
	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["status"] != "ignored" {
		t.Fatalf("unknown message status = %q, want ignored", resp["status"])
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/webhooks/status", map[string]string{
		"message_id": "msg-42", "event": "delivered",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("delivered receipt: status %d", rec.Code)
	}

	// Bad event name is a 400.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/webhooks/status", map[string]string{
		"message_id": "msg-42", "event": "exploded",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad event: status %d, want 400", rec.Code)
	}

	var stats domain.CampaignStats
	rec = doJSON(t, h, http.MethodGet, "/api/v1/campaigns/"+campID+"/stats", nil)
	decodeBody(t, rec, &stats)
	if stats.Delivered != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestListCampaignsFilter(t *testing.T) {
	h, _ := newTestServer(t)
	tplID := createTemplate(t, h)
	for i := 0; i < 3; i++ {
		createCampaign(t, h, tplID)
	}

	rec := doJSON(t, h, http.MethodGet, "/api/v1/campaigns/?status=draft", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var resp struct {
		Campaigns []domain.Campaign `json:"campaigns"`
		Total     int               `json:"total"`
	}
	decodeBody(t, rec, &resp)
	if resp.Total != 3 {
		t.Fatalf("total = %d, want 3", resp.Total)
	}

	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/v1/campaigns/?status=%s", domain.CampaignRunning), nil)
	decodeBody(t, rec, &resp)
	if resp.Total != 0 {
		t.Fatalf("running total = %d, want 0", resp.Total)
	}
}
