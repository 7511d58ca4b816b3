package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/textflare/dispatch/internal/pkg/httputil"
	"github.com/textflare/dispatch/internal/service/campaign"

	"github.com/textflare/dispatch/internal/domain"
)

// =============================================================================
// CAMPAIGN HANDLERS
// =============================================================================
// HTTP handlers for the campaign lifecycle:
// - CRUD plus recipient attachment while in draft
// - start / pause / resume / cancel transitions
// - stats and recipient listings for progress monitoring

// CampaignAPI provides HTTP handlers for campaigns.
type CampaignAPI struct {
	svc *campaign.Service
}

// NewCampaignAPI creates a new campaign API handler.
func NewCampaignAPI(svc *campaign.Service) *CampaignAPI {
	return &CampaignAPI{svc: svc}
}

// RegisterRoutes registers campaign routes.
func (api *CampaignAPI) RegisterRoutes(r chi.Router) {
	r.Route("/campaigns", func(r chi.Router) {
		r.Get("/", api.HandleList)
		r.Post("/", api.HandleCreate)
		r.Get("/{campaignId}", api.HandleGet)
		r.Delete("/{campaignId}", api.HandleDelete)
		r.Put("/{campaignId}/config", api.HandleUpdateConfig)

		r.Post("/{campaignId}/recipients", api.HandleAttachRecipients)
		r.Get("/{campaignId}/recipients", api.HandleListRecipients)

		r.Post("/{campaignId}/start", api.HandleStart)
		r.Post("/{campaignId}/pause", api.HandlePause)
		r.Post("/{campaignId}/resume", api.HandleResume)
		r.Post("/{campaignId}/cancel", api.HandleCancel)

		r.Get("/{campaignId}/stats", api.HandleStats)
	})
}

// serviceError maps service-layer sentinels onto HTTP statuses.
func serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, campaign.ErrNotFound),
		errors.Is(err, campaign.ErrTemplateNotFound),
		errors.Is(err, campaign.ErrRecipientNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, campaign.ErrInvalidTransition),
		errors.Is(err, campaign.ErrNotDraft):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, campaign.ErrNoRecipients):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, campaign.ErrTransportUnreachable):
		httputil.ServiceUnavailable(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}

// HandleCreate creates a draft campaign.
// POST /api/v1/campaigns
func (api *CampaignAPI) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var input campaign.CreateInput
	if !httputil.Decode(w, r, &input) {
		return
	}
	c, err := api.svc.Create(r.Context(), input)
	if err != nil {
		if errors.Is(err, campaign.ErrTemplateNotFound) {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.Created(w, c)
}

// HandleList lists campaigns.
// GET /api/v1/campaigns?status=&limit=&offset=
func (api *CampaignAPI) HandleList(w http.ResponseWriter, r *http.Request) {
	f := campaign.ListFilter{
		Status: domain.CampaignStatus(r.URL.Query().Get("status")),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}
	list, err := api.svc.List(r.Context(), f)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if list == nil {
		list = []domain.Campaign{}
	}
	httputil.OK(w, map[string]interface{}{
		"campaigns": list,
		"total":     len(list),
	})
}

// HandleGet returns one campaign with its stats.
// GET /api/v1/campaigns/{campaignId}
func (api *CampaignAPI) HandleGet(w http.ResponseWriter, r *http.Request) {
	c, err := api.svc.Get(r.Context(), chi.URLParam(r, "campaignId"))
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, c)
}

// HandleDelete removes a draft or finished campaign.
// DELETE /api/v1/campaigns/{campaignId}
func (api *CampaignAPI) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := api.svc.Delete(r.Context(), chi.URLParam(r, "campaignId")); err != nil {
		serviceError(w, err)
		return
	}
	httputil.NoContent(w)
}

// HandleUpdateConfig replaces a draft campaign's pacing config.
// PUT /api/v1/campaigns/{campaignId}/config
func (api *CampaignAPI) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg domain.SendingConfig
	if !httputil.Decode(w, r, &cfg) {
		return
	}
	if err := api.svc.UpdateConfig(r.Context(), chi.URLParam(r, "campaignId"), cfg); err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "updated"})
}

// HandleAttachRecipients adds recipients to a draft campaign.
// POST /api/v1/campaigns/{campaignId}/recipients
func (api *CampaignAPI) HandleAttachRecipients(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Recipients []campaign.RecipientInput `json:"recipients"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	n, err := api.svc.AttachRecipients(r.Context(), chi.URLParam(r, "campaignId"), req.Recipients)
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"attached": n})
}

// HandleListRecipients lists a campaign's recipients.
// GET /api/v1/campaigns/{campaignId}/recipients?status=&limit=&offset=
func (api *CampaignAPI) HandleListRecipients(w http.ResponseWriter, r *http.Request) {
	f := campaign.RecipientFilter{
		Status: domain.RecipientStatus(r.URL.Query().Get("status")),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}
	list, err := api.svc.Recipients(r.Context(), chi.URLParam(r, "campaignId"), f)
	if err != nil {
		serviceError(w, err)
		return
	}
	if list == nil {
		list = []domain.Recipient{}
	}
	httputil.OK(w, map[string]interface{}{
		"recipients": list,
		"total":      len(list),
	})
}

// HandleStart starts a campaign, optionally at a future time.
// POST /api/v1/campaigns/{campaignId}/start
func (api *CampaignAPI) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	}
	// An empty body means start now.
	if r.ContentLength > 0 && !httputil.Decode(w, r, &req) {
		return
	}
	if err := api.svc.Start(r.Context(), chi.URLParam(r, "campaignId"), req.ScheduledAt); err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "started"})
}

// HandlePause suspends a running campaign.
// POST /api/v1/campaigns/{campaignId}/pause
func (api *CampaignAPI) HandlePause(w http.ResponseWriter, r *http.Request) {
	if err := api.svc.Pause(r.Context(), chi.URLParam(r, "campaignId")); err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "paused"})
}

// HandleResume continues a paused campaign.
// POST /api/v1/campaigns/{campaignId}/resume
func (api *CampaignAPI) HandleResume(w http.ResponseWriter, r *http.Request) {
	if err := api.svc.Resume(r.Context(), chi.URLParam(r, "campaignId")); err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "resumed"})
}

// HandleCancel permanently stops a campaign.
// POST /api/v1/campaigns/{campaignId}/cancel
func (api *CampaignAPI) HandleCancel(w http.ResponseWriter, r *http.Request) {
	if err := api.svc.Cancel(r.Context(), chi.URLParam(r, "campaignId")); err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "cancelled"})
}

// HandleStats returns the campaign's aggregate counters.
// GET /api/v1/campaigns/{campaignId}/stats
func (api *CampaignAPI) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := api.svc.Stats(r.Context(), chi.URLParam(r, "campaignId"))
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, stats)
}
