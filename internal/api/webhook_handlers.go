package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/textflare/dispatch/internal/pkg/httputil"
	"github.com/textflare/dispatch/internal/service/campaign"
)

// WebhookAPI receives gateway status receipts (delivered, read, response).
type WebhookAPI struct {
	svc *campaign.Service
}

// NewWebhookAPI creates a new webhook handler.
func NewWebhookAPI(svc *campaign.Service) *WebhookAPI {
	return &WebhookAPI{svc: svc}
}

// RegisterRoutes registers webhook routes.
func (api *WebhookAPI) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/status", api.HandleStatusReceipt)
}

type statusReceipt struct {
	MessageID string     `json:"message_id"`
	Event     string     `json:"event"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// HandleStatusReceipt applies one receipt. Unknown message ids are
// acknowledged and dropped so the gateway stops redelivering them.
// POST /api/v1/webhooks/status
func (api *WebhookAPI) HandleStatusReceipt(w http.ResponseWriter, r *http.Request) {
	var req statusReceipt
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.MessageID == "" || req.Event == "" {
		httputil.BadRequest(w, "message_id and event are required")
		return
	}
	at := time.Now()
	if req.Timestamp != nil {
		at = *req.Timestamp
	}

	err := api.svc.HandleReceipt(r.Context(), req.MessageID, req.Event, at)
	if err != nil {
		if errors.Is(err, campaign.ErrRecipientNotFound) {
			log.Printf("[WebhookAPI] Receipt for unknown message %s, ignoring", req.MessageID)
			httputil.OK(w, map[string]string{"status": "ignored"})
			return
		}
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.OK(w, map[string]string{"status": "applied"})
}
