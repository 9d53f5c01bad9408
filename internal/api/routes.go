// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"database/sql"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"

	"github.com/joeblew999/plat-polygons/internal/db"
	"github.com/joeblew999/plat-polygons/internal/directory"
	"github.com/joeblew999/plat-polygons/internal/fetch"
	"github.com/joeblew999/plat-polygons/internal/i18n"
	"github.com/joeblew999/plat-polygons/internal/identity"
	"github.com/joeblew999/plat-polygons/internal/overlay"
	"github.com/joeblew999/plat-polygons/internal/pipeline"
	"github.com/joeblew999/plat-polygons/internal/render"
	"github.com/joeblew999/plat-polygons/internal/settings"
)

// Services holds the dependencies for API handlers.
type Services struct {
	Controller *pipeline.Controller
	Layer      *overlay.Layer
	Mirror     *db.Mirror // nil when the SQL mirror is disabled
	DataDir    string
	Projection string
	Lang       string
	Version    string
}

// RegisterRoutes registers every REST route.
func RegisterRoutes(api huma.API, svc *Services) {
	huma.AutoRegister(api, NewAPIHandler(svc))
	NewInfoHandler(svc).RegisterRoutes(api)

	var conn *sql.DB
	if svc.Mirror != nil {
		conn = svc.Mirror.DB()
	}
	NewDBHandler(conn).RegisterRoutes(api)
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Polygon identity" example:"-1589170311"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

type LoadBody struct {
	LoadID     string        `json:"loadId" doc:"Load identifier"`
	Generation uint64        `json:"generation" doc:"Load generation"`
	Records    int           `json:"records" doc:"Records in the directory"`
	Rendered   int           `json:"rendered" doc:"Features drawn"`
	Skipped    []render.Skip `json:"skipped" doc:"Records whose geometry did not decode"`
}

type PolygonBody struct {
	ID       string `json:"id" doc:"Polygon identity"`
	Name     string `json:"name" doc:"Polygon name"`
	Comments string `json:"comments" doc:"Polygon comments"`
	Status   string `json:"status" doc:"Directory status"`
	Color    string `json:"color" doc:"Polygon color"`
	Checked  bool   `json:"checked" doc:"Checkbox state"`
	Rendered bool   `json:"rendered" doc:"Whether a feature exists for the polygon"`
}

type VisibilityBody struct {
	Visible bool `json:"visible" doc:"Show or hide the polygon"`
}

type VisibilityResult struct {
	ID      string `json:"id" doc:"Polygon identity"`
	Visible bool   `json:"visible" doc:"Requested state"`
	Found   bool   `json:"found" doc:"Whether a feature was changed"`
}

type OptionInput struct {
	Name string `path:"name" doc:"Option name" enum:"showLayer,showPolygonName,loadPolygonsOnStart,fillPolygons"`
	Body struct {
		Value bool `json:"value" doc:"New value"`
	}
}

type FeaturesInput struct {
	Tolerance float64 `query:"tolerance" minimum:"0" doc:"Douglas-Peucker tolerance in display projection units; 0 keeps every vertex"`
}

type FeaturesOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

type TranslationInput struct {
	Lang           string `query:"lang" doc:"Language tag (en, uk, ru)"`
	AcceptLanguage string `header:"Accept-Language"`
}

type TranslationBody struct {
	Lang      string        `json:"lang" doc:"Matched language"`
	Languages []string      `json:"languages" doc:"Supported languages"`
	Messages  i18n.Messages `json:"messages" doc:"Panel strings"`
}

// APIHandler holds the REST handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterPolygons registers load and polygon routes.
func (h *APIHandler) RegisterPolygons(api huma.API) {
	huma.Post(api, "/api/v1/reload", h.Reload, huma.OperationTags("polygons"))
	huma.Get(api, "/api/v1/snapshot", h.GetSnapshot, huma.OperationTags("polygons"))
	huma.Get(api, "/api/v1/polygons", h.GetPolygons, huma.OperationTags("polygons"))
	huma.Get(api, "/api/v1/polygons/{id}", h.GetPolygon, huma.OperationTags("polygons"))
	huma.Put(api, "/api/v1/polygons/{id}/visibility", h.PutVisibility, huma.OperationTags("polygons"))
	huma.Get(api, "/api/v1/features", h.GetFeatures, huma.OperationTags("polygons"))
}

// RegisterOptions registers global option routes.
func (h *APIHandler) RegisterOptions(api huma.API) {
	huma.Get(api, "/api/v1/options", h.GetOptions, huma.OperationTags("options"))
	huma.Put(api, "/api/v1/options/{name}", h.PutOption, huma.OperationTags("options"))
}

// RegisterTranslations registers translation routes.
func (h *APIHandler) RegisterTranslations(api huma.API) {
	huma.Get(api, "/api/v1/translations", h.GetTranslations, huma.OperationTags("options"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: h.svc.Version}}, nil
}

func (h *APIHandler) Reload(ctx context.Context, input *struct{}) (*struct{ Body LoadBody }, error) {
	snap, err := h.svc.Controller.Load(ctx)
	if err != nil {
		return nil, loadError(err)
	}
	skipped := snap.Skipped
	if skipped == nil {
		skipped = []render.Skip{}
	}
	return &struct{ Body LoadBody }{Body: LoadBody{
		LoadID:     snap.LoadID,
		Generation: snap.Generation,
		Records:    len(snap.Records),
		Rendered:   len(snap.Rendered),
		Skipped:    skipped,
	}}, nil
}

func loadError(err error) error {
	var fe *pipeline.FetchError
	switch {
	case errors.Is(err, pipeline.ErrStale):
		return huma.Error409Conflict("Load superseded by a newer one")
	case errors.As(err, &fe):
		if fe.Outcome.Kind == fetch.AuthRequired {
			return huma.Error401Unauthorized("Authorization required: " + fe.Outcome.RedirectURL)
		}
		if fe.Outcome.Kind == fetch.Timeout {
			return huma.Error504GatewayTimeout("Directory request timed out")
		}
		return huma.Error502BadGateway(err.Error())
	case errors.Is(err, directory.ErrInvalidJSON), errors.Is(err, directory.ErrMalformedEnvelope):
		return huma.Error502BadGateway("Error getting polygons from spreadsheet", err)
	}
	return huma.Error500InternalServerError("Load failed", err)
}

func (h *APIHandler) GetSnapshot(ctx context.Context, input *struct{}) (*struct{ Body *pipeline.Snapshot }, error) {
	snap := h.svc.Controller.Current()
	if snap == nil {
		return nil, huma.Error404NotFound("no polygons loaded")
	}
	return &struct{ Body *pipeline.Snapshot }{Body: snap}, nil
}

func (h *APIHandler) polygons() []PolygonBody {
	snap := h.svc.Controller.Current()
	if snap == nil {
		return []PolygonBody{}
	}
	checked := make(map[identity.ID]bool)
	for _, e := range h.svc.Controller.Entries() {
		checked[e.ID] = e.Checked
	}
	rendered := make(map[identity.ID]bool, len(snap.Rendered))
	for _, id := range snap.Rendered {
		rendered[id] = true
	}

	out := make([]PolygonBody, 0, len(snap.Records))
	for _, rec := range snap.Records {
		id := identity.Hash(rec.Polygon)
		out = append(out, PolygonBody{
			ID:       id.String(),
			Name:     rec.Name,
			Comments: rec.Comments,
			Status:   string(rec.Status),
			Color:    rec.Color,
			Checked:  checked[id],
			Rendered: rendered[id],
		})
	}
	return out
}

func (h *APIHandler) GetPolygons(ctx context.Context, input *struct{}) (*struct{ Body []PolygonBody }, error) {
	return &struct{ Body []PolygonBody }{Body: h.polygons()}, nil
}

func (h *APIHandler) GetPolygon(ctx context.Context, input *IDInput) (*struct{ Body PolygonBody }, error) {
	for _, p := range h.polygons() {
		if p.ID == input.ID {
			return &struct{ Body PolygonBody }{Body: p}, nil
		}
	}
	return nil, huma.Error404NotFound("polygon not found")
}

func (h *APIHandler) PutVisibility(ctx context.Context, input *struct {
	IDInput
	Body VisibilityBody
}) (*struct{ Body VisibilityResult }, error) {
	id, err := identity.Parse(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid polygon id: " + input.ID)
	}
	found := h.svc.Controller.Toggle(id, input.Body.Visible)
	return &struct{ Body VisibilityResult }{Body: VisibilityResult{
		ID: id.String(), Visible: input.Body.Visible, Found: found,
	}}, nil
}

func (h *APIHandler) GetFeatures(ctx context.Context, input *FeaturesInput) (*FeaturesOutput, error) {
	fc := h.svc.Layer.FeatureCollection()
	if input.Tolerance > 0 {
		s := simplify.DouglasPeucker(input.Tolerance)
		for _, f := range fc.Features {
			f.Geometry = s.Simplify(orb.Clone(f.Geometry))
		}
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to encode features", err)
	}
	return &FeaturesOutput{ContentType: "application/geo+json", Body: data}, nil
}

func (h *APIHandler) GetOptions(ctx context.Context, input *struct{}) (*struct{ Body settings.Options }, error) {
	return &struct{ Body settings.Options }{Body: h.svc.Controller.Options()}, nil
}

func (h *APIHandler) PutOption(ctx context.Context, input *OptionInput) (*struct{ Body settings.Options }, error) {
	if err := h.svc.Controller.SetOption(input.Name, input.Body.Value); err != nil {
		if errors.Is(err, settings.ErrUnknownOption) {
			return nil, huma.Error404NotFound(err.Error())
		}
		return nil, huma.Error500InternalServerError("Failed to set option", err)
	}
	return &struct{ Body settings.Options }{Body: h.svc.Controller.Options()}, nil
}

func (h *APIHandler) GetTranslations(ctx context.Context, input *TranslationInput) (*struct{ Body TranslationBody }, error) {
	tag := i18n.Match(input.Lang, input.AcceptLanguage, h.svc.Lang)
	return &struct{ Body TranslationBody }{Body: TranslationBody{
		Lang:      tag.String(),
		Languages: i18n.Languages(),
		Messages:  i18n.For(tag.String()),
	}}, nil
}
