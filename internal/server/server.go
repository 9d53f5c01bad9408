package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-polygons/internal/api"
	"github.com/joeblew999/plat-polygons/internal/controls"
	"github.com/joeblew999/plat-polygons/internal/db"
	"github.com/joeblew999/plat-polygons/internal/directory"
	"github.com/joeblew999/plat-polygons/internal/events"
	"github.com/joeblew999/plat-polygons/internal/fetch"
	"github.com/joeblew999/plat-polygons/internal/i18n"
	"github.com/joeblew999/plat-polygons/internal/metrics"
	"github.com/joeblew999/plat-polygons/internal/overlay"
	"github.com/joeblew999/plat-polygons/internal/panel"
	"github.com/joeblew999/plat-polygons/internal/pipeline"
	"github.com/joeblew999/plat-polygons/internal/projection"
	"github.com/joeblew999/plat-polygons/internal/render"
	"github.com/joeblew999/plat-polygons/internal/settings"
	"github.com/joeblew999/plat-polygons/internal/templates"
)

// Config holds the server configuration.
type Config struct {
	Host       string
	Port       string
	DataDir    string
	Endpoint   string // directory script base URL
	RequestID  string
	Timeout    time.Duration
	Projection string // display projection of the overlay
	Lang       string
	Version    string
	Mirror     bool   // keep an in-memory DuckDB copy of the snapshot
	Templates  string // panel fragment directory; empty uses the embedded set

	Logger   *zap.Logger
	Notifier fetch.Notifier // defaults to the panel event stream
}

// Server is the polygons HTTP server.
type Server struct {
	config  Config
	mux     *http.ServeMux
	humaAPI huma.API
	bus     *events.Bus
	layer   *overlay.Layer
	ctrl    *pipeline.Controller
	mirror  *db.Mirror
	logger  *zap.Logger
}

// New wires the pipeline and registers every route.
func New(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = directory.DefaultBase
	}
	if cfg.RequestID == "" {
		cfg.RequestID = directory.DefaultRequestID
	}
	if cfg.Projection == "" {
		cfg.Projection = projection.GoogleMercator
	}

	mux := http.NewServeMux()

	humaConfig := huma.DefaultConfig("plat-polygons API", cfg.Version)
	humaConfig.Info.Description = "Loads named polygons from the MapRaid directory, renders them as a styled overlay and serves the side panel."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())

	humaAPI := humago.New(mux, humaConfig)

	store := settings.NewFileStore(cfg.DataDir, settings.Defaults())
	if err := store.Load(); err != nil {
		logger.Warn("settings unreadable, using defaults", zap.String("path", store.Path()), zap.Error(err))
	}
	opts := settings.NewService(store)

	bus := events.NewBus()
	msgs := i18n.For(cfg.Lang)
	layer := overlay.New(msgs.Title, opts.Options().ShowLayer, bus)

	renderer, err := render.New(layer, cfg.Projection, render.WithLogger(logger.Named("render")))
	if err != nil {
		return nil, err
	}

	notifier := cfg.Notifier
	if notifier == nil {
		notifier = panel.NewNotifier(bus, logger.Named("panel"))
	}

	fieldset := panel.NewFieldset(bus)

	var mirror *db.Mirror
	var pipeMirror pipeline.Mirror
	if cfg.Mirror {
		mirror, err = db.Open(context.Background())
		if err != nil {
			logger.Warn("sql mirror disabled", zap.Error(err))
			mirror = nil
		} else {
			pipeMirror = mirror
		}
	}

	client := fetch.New(
		fetch.WithTimeout(cfg.Timeout),
		fetch.WithNotifier(notifier),
		fetch.WithLogger(logger.Named("fetch")),
		fetch.WithTitle(msgs.Title),
	)

	ctrl, err := pipeline.New(pipeline.Config{
		Client:     client,
		URL:        directory.URL(cfg.Endpoint, cfg.RequestID),
		Renderer:   renderer,
		Layer:      layer,
		List:       controls.NewList(layer, fieldset),
		Settings:   opts,
		Notifier:   notifier,
		Bus:        bus,
		Mirror:     pipeMirror,
		Logger:     logger.Named("pipeline"),
		ParseAlert: msgs.Title + ": Error getting polygons from spreadsheet!",
	})
	if err != nil {
		return nil, err
	}

	tmpl, err := templates.New(cfg.Templates)
	if err != nil {
		return nil, fmt.Errorf("loading panel templates: %w", err)
	}

	s := &Server{
		config:  cfg,
		mux:     mux,
		humaAPI: humaAPI,
		bus:     bus,
		layer:   layer,
		ctrl:    ctrl,
		mirror:  mirror,
		logger:  logger,
	}
	s.routes(fieldset, tmpl)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Controller returns the load controller.
func (s *Server) Controller() *pipeline.Controller {
	return s.ctrl
}

// Layer returns the overlay layer.
func (s *Server) Layer() *overlay.Layer {
	return s.layer
}

// Start applies persisted options and performs the startup load if enabled.
func (s *Server) Start(ctx context.Context) error {
	return s.ctrl.Start(ctx)
}

// Close flushes settings and closes server resources.
func (s *Server) Close() error {
	err := s.ctrl.Close()
	if s.mirror != nil {
		err = errors.Join(err, s.mirror.Close())
	}
	return err
}

func (s *Server) routes(fieldset *panel.Fieldset, tmpl *templates.Renderer) {
	// Register Huma REST API routes (OpenAPI-documented JSON endpoints)
	api.RegisterRoutes(s.humaAPI, &api.Services{
		Controller: s.ctrl,
		Layer:      s.layer,
		Mirror:     s.mirror,
		DataDir:    s.config.DataDir,
		Projection: s.config.Projection,
		Lang:       s.config.Lang,
		Version:    s.config.Version,
	})

	// Side panel SSE routes using Huma + Datastar SDK
	panel.NewHandler(panel.Config{
		Controller: s.ctrl,
		Fieldset:   fieldset,
		Renderer:   tmpl,
		Bus:        s.bus,
		Lang:       s.config.Lang,
		Version:    s.config.Version,
		Logger:     s.logger.Named("panel"),
	}).RegisterRoutes(s.humaAPI)

	s.mux.Handle("/metrics", metrics.Handler())
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-polygons",
		"status":  "running",
	})
}
