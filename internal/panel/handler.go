package panel

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-polygons/internal/events"
	"github.com/joeblew999/plat-polygons/internal/i18n"
	"github.com/joeblew999/plat-polygons/internal/identity"
	"github.com/joeblew999/plat-polygons/internal/pipeline"
	"github.com/joeblew999/plat-polygons/internal/settings"
	"github.com/joeblew999/plat-polygons/internal/templates"
)

// Selectors patched by the handlers.
const (
	PanelSelector    = "#mapraid-polygons-panel"
	ListSelector     = "#mapraid-polygons-list"
	SettingsSelector = "#mapraid-polygons-settings"
	SwitcherSelector = "#layer-switcher-mapraid-polygons"
)

// Handler serves the side panel.
type Handler struct {
	ctrl     *pipeline.Controller
	fieldset *Fieldset
	renderer *templates.Renderer
	bus      *events.Bus
	lang     string
	version  string
	logger   *zap.Logger
}

// Config wires a Handler.
type Config struct {
	Controller *pipeline.Controller
	Fieldset   *Fieldset
	Renderer   *templates.Renderer
	Bus        *events.Bus
	Lang       string // fallback when the request states no preference
	Version    string
	Logger     *zap.Logger
}

// NewHandler creates a panel handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		ctrl:     cfg.Controller,
		fieldset: cfg.Fieldset,
		renderer: cfg.Renderer,
		bus:      cfg.Bus,
		lang:     cfg.Lang,
		version:  cfg.Version,
		logger:   logger,
	}
}

func (h *Handler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/panel", h.GetPanel, huma.OperationTags("panel"))
	huma.Post(api, "/api/v1/panel/reload", h.Reload, huma.OperationTags("panel"))
	huma.Post(api, "/api/v1/panel/polygons/{id}", h.TogglePolygon, huma.OperationTags("panel"))
	huma.Post(api, "/api/v1/panel/options/{name}", h.SetOption, huma.OperationTags("panel"))
	huma.Post(api, "/api/v1/panel/switcher", h.ToggleSwitcher, huma.OperationTags("panel"))
	huma.Get(api, "/api/v1/panel/events", h.Events, huma.OperationTags("panel"))
}

// LangInput carries the caller's language preference.
type LangInput struct {
	Lang           string `query:"lang" doc:"Language tag (en, uk, ru)"`
	AcceptLanguage string `header:"Accept-Language"`
}

func (i *LangInput) messages(fallback string) i18n.Messages {
	return i18n.For(i.Lang, i.AcceptLanguage, fallback)
}

func (h *Handler) GetPanel(ctx context.Context, input *LangInput) (*huma.StreamResponse, error) {
	m := input.messages(h.lang)
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := NewSSE(humaCtx)
			sse.Patch(h.renderPanel(m), PanelSelector)
			sse.Replace(h.renderSwitcher(m), SwitcherSelector)
		},
	}, nil
}

func (h *Handler) Reload(ctx context.Context, input *LangInput) (*huma.StreamResponse, error) {
	m := input.messages(h.lang)
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := NewSSE(humaCtx)

			// The load outlives the request so a closed tab does not abort it.
			snap, err := h.ctrl.Reload(context.WithoutCancel(ctx)).Wait()
			switch {
			case errors.Is(err, pipeline.ErrStale):
				return
			case err != nil:
				sse.Error(err.Error())
				return
			}

			sse.Patch(h.renderPolygons(m), ListSelector)
			sse.Success(fmt.Sprintf("%d polygons loaded", len(snap.Records)))
		},
	}, nil
}

type TogglePolygonInput struct {
	ID string `path:"id" doc:"Polygon identity" example:"-1589170311"`
	SignalsInput
}

func (h *Handler) TogglePolygon(ctx context.Context, input *TogglePolygonInput) (*huma.StreamResponse, error) {
	id, err := identity.Parse(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid polygon id: " + input.ID)
	}
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	checked := signals.Bool("checked")
	found := h.ctrl.Toggle(id, checked)

	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			NewSSE(humaCtx).Signals(map[string]any{
				"polygon": id.String(),
				"checked": checked,
				"found":   found,
			})
		},
	}, nil
}

type SetOptionInput struct {
	Name string `path:"name" doc:"Option name" enum:"showLayer,showPolygonName,loadPolygonsOnStart,fillPolygons"`
	LangInput
	SignalsInput
}

func (h *Handler) SetOption(ctx context.Context, input *SetOptionInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	if err := h.ctrl.SetOption(input.Name, signals.Bool("checked")); err != nil {
		if errors.Is(err, settings.ErrUnknownOption) {
			return nil, huma.Error404NotFound(err.Error())
		}
		return nil, huma.Error500InternalServerError("Failed to set option", err)
	}
	m := input.messages(h.lang)

	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := NewSSE(humaCtx)
			sse.Patch(h.renderSettings(m), SettingsSelector)
			sse.Replace(h.renderSwitcher(m), SwitcherSelector)
		},
	}, nil
}

func (h *Handler) ToggleSwitcher(ctx context.Context, input *LangInput) (*huma.StreamResponse, error) {
	h.ctrl.ToggleLayer()
	m := input.messages(h.lang)

	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := NewSSE(humaCtx)
			sse.Patch(h.renderSettings(m), SettingsSelector)
			sse.Replace(h.renderSwitcher(m), SwitcherSelector)
		},
	}, nil
}

// Events streams panel changes, alerts and pages to open.
func (h *Handler) Events(ctx context.Context, input *LangInput) (*huma.StreamResponse, error) {
	m := input.messages(h.lang)
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := NewSSE(humaCtx)
			ch := h.bus.Subscribe()
			defer h.bus.Unsubscribe(ch)

			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-ch:
					h.forward(sse, m, ev)
				}
			}
		},
	}, nil
}

func (h *Handler) forward(sse SSE, m i18n.Messages, ev events.Event) {
	switch ev.Kind {
	case events.KindPanel:
		sse.Patch(h.renderPolygons(m), ListSelector)
	case events.KindOption:
		sse.Patch(h.renderSettings(m), SettingsSelector)
		sse.Replace(h.renderSwitcher(m), SwitcherSelector)
	case events.KindAlert:
		sse.Signals(map[string]any{"alert": ev.Message})
		sse.DispatchCustomEvent("polygons-alert", map[string]any{"message": ev.Message})
		return
	case events.KindPage:
		sse.DispatchCustomEvent("polygons-open-page", map[string]any{"url": ev.URL, "body": ev.Body})
		return
	}
	sse.DispatchCustomEvent("polygons-changed", map[string]any{
		"kind":   ev.Kind,
		"action": ev.Action,
		"id":     ev.ID,
	})
}

type fieldsetData struct {
	Legend string
	Items  []PolygonItem
}

type optionItem struct {
	Name    string
	Label   string
	Checked bool
}

type settingsData struct {
	Legend string
	Items  []optionItem
}

type panelData struct {
	Messages i18n.Messages
	Version  string
	Polygons fieldsetData
	Settings settingsData
}

func (h *Handler) polygonData(m i18n.Messages) fieldsetData {
	entries := h.ctrl.Entries()
	state := make(map[identity.ID]bool, len(entries))
	for _, e := range entries {
		state[e.ID] = e.Checked
	}
	return fieldsetData{
		Legend: m.Polygons,
		Items: h.fieldset.Items(func(id identity.ID) bool {
			return state[id]
		}),
	}
}

func (h *Handler) settingsData(m i18n.Messages) settingsData {
	opts := h.ctrl.Options()
	values := map[string]bool{
		settings.ShowLayer:           opts.ShowLayer,
		settings.ShowPolygonName:     opts.ShowPolygonName,
		settings.LoadPolygonsOnStart: opts.LoadPolygonsOnStart,
		settings.FillPolygons:        opts.FillPolygons,
	}
	data := settingsData{Legend: m.Settings}
	for _, name := range settings.Names() {
		data.Items = append(data.Items, optionItem{Name: name, Label: m.Option(name), Checked: values[name]})
	}
	return data
}

func (h *Handler) renderPanel(m i18n.Messages) string {
	return h.render("panel", panelData{
		Messages: m,
		Version:  h.version,
		Polygons: h.polygonData(m),
		Settings: h.settingsData(m),
	})
}

func (h *Handler) renderPolygons(m i18n.Messages) string {
	return h.render("polygon-fieldset", h.polygonData(m))
}

func (h *Handler) renderSettings(m i18n.Messages) string {
	return h.render("settings-fieldset", h.settingsData(m))
}

func (h *Handler) renderSwitcher(m i18n.Messages) string {
	return h.render("layer-switcher", map[string]any{
		"Title":   m.Title,
		"Checked": h.ctrl.Options().ShowLayer,
	})
}

func (h *Handler) render(name string, data any) string {
	var buf bytes.Buffer
	if err := h.renderer.Execute(&buf, name, data); err != nil {
		h.logger.Error("template render failed", zap.String("template", name), zap.Error(err))
	}
	return buf.String()
}
