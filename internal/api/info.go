package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

type InfoHandler struct {
	svc *Services
}

func NewInfoHandler(svc *Services) *InfoHandler {
	return &InfoHandler{svc: svc}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name       string   `json:"name" doc:"Service name"`
	Version    string   `json:"version" doc:"Service version"`
	DataDir    string   `json:"data_dir" doc:"Data directory path"`
	Directory  string   `json:"directory" doc:"Polygon directory URL"`
	Projection string   `json:"projection" doc:"Display projection"`
	Layer      string   `json:"layer" doc:"Overlay layer name"`
	TimeoutMs  int64    `json:"timeout_ms" doc:"Directory request timeout in milliseconds"`
	DB         bool     `json:"db" doc:"Whether the SQL mirror is available"`
	Loaded     bool     `json:"loaded" doc:"Whether polygons have been loaded"`
	Features   []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:       "plat-polygons",
		Version:    h.svc.Version,
		DataDir:    h.svc.DataDir,
		Directory:  h.svc.Controller.URL(),
		Projection: h.svc.Projection,
		Layer:      h.svc.Layer.Name(),
		TimeoutMs:  h.svc.Controller.Timeout().Milliseconds(),
		DB:         h.svc.Mirror != nil,
		Loaded:     h.svc.Controller.Current() != nil,
		Features:   []string{"wkt", "geojson", "panel", "duckdb", "i18n"},
	}}, nil
}
