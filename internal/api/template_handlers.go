package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/textflare/dispatch/internal/domain"
	"github.com/textflare/dispatch/internal/pkg/httputil"
	"github.com/textflare/dispatch/internal/service/campaign"
	"github.com/textflare/dispatch/internal/template"
)

// TemplateAPI provides HTTP handlers for message templates.
type TemplateAPI struct {
	repo   campaign.TemplateRepository
	engine *template.Engine
}

// NewTemplateAPI creates a new template API handler.
func NewTemplateAPI(repo campaign.TemplateRepository, engine *template.Engine) *TemplateAPI {
	return &TemplateAPI{repo: repo, engine: engine}
}

// RegisterRoutes registers template routes.
func (api *TemplateAPI) RegisterRoutes(r chi.Router) {
	r.Route("/templates", func(r chi.Router) {
		r.Get("/", api.HandleList)
		r.Post("/", api.HandleCreate)
		r.Get("/{templateId}", api.HandleGet)
		r.Put("/{templateId}", api.HandleUpdate)
		r.Delete("/{templateId}", api.HandleDelete)

		r.Post("/preview", api.HandlePreview)
	})
}

type templateRequest struct {
	Name string `json:"name"`
	Body string `json:"body"`
}

func (req templateRequest) validate(engine *template.Engine) (string, bool) {
	if req.Name == "" {
		return "name is required", false
	}
	if req.Body == "" {
		return "body is required", false
	}
	if err := engine.Parse(req.Body); err != nil {
		return "invalid template body: " + err.Error(), false
	}
	return "", true
}

// HandleCreate creates a template. The body must parse.
// POST /api/v1/templates
func (api *TemplateAPI) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if msg, ok := req.validate(api.engine); !ok {
		httputil.BadRequest(w, msg)
		return
	}

	t := &domain.Template{
		ID:   uuid.New().String(),
		Name: req.Name,
		Body: req.Body,
	}
	if err := api.repo.Create(r.Context(), t); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, t)
}

// HandleList lists all templates.
// GET /api/v1/templates
func (api *TemplateAPI) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := api.repo.List(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if list == nil {
		list = []domain.Template{}
	}
	httputil.OK(w, map[string]interface{}{
		"templates": list,
		"total":     len(list),
	})
}

// HandleGet returns one template plus the variables its body references.
// GET /api/v1/templates/{templateId}
func (api *TemplateAPI) HandleGet(w http.ResponseWriter, r *http.Request) {
	t, err := api.repo.Get(r.Context(), chi.URLParam(r, "templateId"))
	if err != nil {
		serviceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"template":  t,
		"variables": template.Variables(t.Body),
	})
}

// HandleUpdate replaces a template's name and body.
// PUT /api/v1/templates/{templateId}
func (api *TemplateAPI) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if msg, ok := req.validate(api.engine); !ok {
		httputil.BadRequest(w, msg)
		return
	}

	t := &domain.Template{
		ID:   chi.URLParam(r, "templateId"),
		Name: req.Name,
		Body: req.Body,
	}
	if err := api.repo.Update(r.Context(), t); err != nil {
		serviceError(w, err)
		return
	}
	// Cached compilations of the old body are stale now.
	api.engine.ClearCache()
	httputil.OK(w, t)
}

// HandleDelete removes a template.
// DELETE /api/v1/templates/{templateId}
func (api *TemplateAPI) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := api.repo.Delete(r.Context(), chi.URLParam(r, "templateId")); err != nil {
		serviceError(w, err)
		return
	}
	httputil.NoContent(w)
}

// HandlePreview renders a template body against sample variables without
// persisting anything.
// POST /api/v1/templates/preview
func (api *TemplateAPI) HandlePreview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Body      string            `json:"body"`
		Variables map[string]string `json:"variables"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Body == "" {
		httputil.BadRequest(w, "body is required")
		return
	}

	// Previews are one-shot arbitrary bodies; caching them would grow
	// the parsed-template cache without bound.
	rendered, err := api.engine.Render("", req.Body, req.Variables)
	if err != nil {
		httputil.BadRequest(w, "render failed: "+err.Error())
		return
	}
	httputil.OK(w, map[string]interface{}{
		"rendered":  rendered,
		"variables": template.Variables(req.Body),
	})
}

// queryInt parses an integer query parameter, returning 0 when absent or
// malformed.
func queryInt(r *http.Request, key string) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
