// Package pipeline runs the fetch, parse, render and list-rebuild sequence
// and applies option changes to the overlay.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-polygons/internal/controls"
	"github.com/joeblew999/plat-polygons/internal/directory"
	"github.com/joeblew999/plat-polygons/internal/events"
	"github.com/joeblew999/plat-polygons/internal/fetch"
	"github.com/joeblew999/plat-polygons/internal/identity"
	"github.com/joeblew999/plat-polygons/internal/metrics"
	"github.com/joeblew999/plat-polygons/internal/render"
	"github.com/joeblew999/plat-polygons/internal/settings"
)

var (
	// ErrStale is returned by a load that was superseded before it could
	// apply its result.
	ErrStale = errors.New("pipeline: load superseded")
	// ErrInvalidConfig is returned by New when a required collaborator is missing.
	ErrInvalidConfig = errors.New("pipeline: invalid config")
)

// FetchError reports a load that stopped at the fetch step.
type FetchError struct {
	URL     string
	Outcome fetch.Outcome
}

func (e *FetchError) Error() string {
	switch e.Outcome.Kind {
	case fetch.HTTPError:
		return fmt.Sprintf("fetch %s: unsupported status code %d", e.URL, e.Outcome.Status)
	case fetch.AuthRequired:
		return fmt.Sprintf("fetch %s: authorization required at %s", e.URL, e.Outcome.RedirectURL)
	}
	if e.Outcome.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Outcome.Kind, e.Outcome.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Outcome.Kind)
}

func (e *FetchError) Unwrap() error {
	return e.Outcome.Err
}

// Mirror receives every applied snapshot.
type Mirror interface {
	Replace(ctx context.Context, snap *Snapshot) error
}

// Snapshot is the result of one applied load. It is never modified.
type Snapshot struct {
	Generation uint64             `json:"generation"`
	LoadID     string             `json:"loadId"`
	LoadedAt   time.Time          `json:"loadedAt"`
	Records    []directory.Record `json:"records"`
	Rendered   []identity.ID      `json:"rendered"`
	Skipped    []render.Skip      `json:"skipped"`
}

// Config wires a Controller.
type Config struct {
	Client   *fetch.Client
	URL      string
	Renderer *render.Renderer
	Layer    render.Layer
	List     *controls.List
	Settings *settings.Service
	Notifier fetch.Notifier // parse failure alerts
	Bus      *events.Bus    // optional
	Mirror   Mirror         // optional
	Logger   *zap.Logger    // optional

	// ParseAlert is shown when the directory body cannot be used.
	ParseAlert string
}

// Controller owns the single logical load and the option side effects.
type Controller struct {
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex // guards gen and cancel
	gen    uint64
	cancel context.CancelFunc

	apply   sync.Mutex // serializes layer and list mutation
	current atomic.Pointer[Snapshot]
}

// New validates cfg and returns a controller.
func New(cfg Config) (*Controller, error) {
	switch {
	case cfg.Client == nil:
		return nil, fmt.Errorf("%w: fetch client required", ErrInvalidConfig)
	case cfg.URL == "":
		return nil, fmt.Errorf("%w: directory url required", ErrInvalidConfig)
	case cfg.Renderer == nil:
		return nil, fmt.Errorf("%w: renderer required", ErrInvalidConfig)
	case cfg.Layer == nil:
		return nil, fmt.Errorf("%w: layer required", ErrInvalidConfig)
	case cfg.List == nil:
		return nil, fmt.Errorf("%w: control list required", ErrInvalidConfig)
	case cfg.Settings == nil:
		return nil, fmt.Errorf("%w: settings required", ErrInvalidConfig)
	}
	if cfg.ParseAlert == "" {
		cfg.ParseAlert = "MapRaid Polygons: Error getting polygons from spreadsheet!"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{cfg: cfg, logger: logger}, nil
}

// URL returns the directory request URL.
func (c *Controller) URL() string {
	return c.cfg.URL
}

// Timeout returns the directory request timeout.
func (c *Controller) Timeout() time.Duration {
	return c.cfg.Client.Timeout()
}

// Start applies the persisted layer visibility and loads when the
// loadPolygonsOnStart option is set.
func (c *Controller) Start(ctx context.Context) error {
	opts := c.cfg.Settings.Options()
	c.cfg.Layer.SetVisibility(opts.ShowLayer)
	if !opts.LoadPolygonsOnStart {
		return nil
	}
	_, err := c.Load(ctx)
	return err
}

// Load fetches the directory and replaces the overlay and the control list.
// Starting a load cancels any load still in flight; a load overtaken by a
// newer one returns ErrStale and leaves everything untouched.
func (c *Controller) Load(ctx context.Context) (*Snapshot, error) {
	ctx, gen, done := c.begin(ctx)
	defer done()

	log := c.logger.With(zap.Uint64("generation", gen))

	out := c.cfg.Client.Fetch(ctx, c.cfg.URL)
	if !out.OK() {
		if !c.isCurrent(gen) {
			return c.stale(log)
		}
		metrics.LoadsTotal.WithLabelValues("fetch_error").Inc()
		log.Info("load stopped at fetch", zap.Stringer("outcome", out.Kind))
		return nil, &FetchError{URL: c.cfg.URL, Outcome: out}
	}

	records, err := directory.Parse(out.Body)
	if err != nil {
		if !c.isCurrent(gen) {
			return c.stale(log)
		}
		metrics.LoadsTotal.WithLabelValues("parse_error").Inc()
		log.Warn("directory rejected", zap.Error(err))
		if c.cfg.Notifier != nil {
			c.cfg.Notifier.Alert(c.cfg.ParseAlert)
		}
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	c.apply.Lock()
	defer c.apply.Unlock()

	if !c.isCurrent(gen) {
		return c.stale(log)
	}

	res := c.cfg.Renderer.Render(records, c.cfg.Settings.Options())
	c.cfg.List.Replace(records)

	snap := &Snapshot{
		Generation: gen,
		LoadID:     uuid.NewString(),
		LoadedAt:   time.Now().UTC(),
		Records:    append([]directory.Record(nil), records...),
		Rendered:   make([]identity.ID, 0, len(res.Features)),
		Skipped:    res.Skipped,
	}
	for _, f := range res.Features {
		snap.Rendered = append(snap.Rendered, f.ID)
	}
	c.current.Store(snap)

	metrics.LoadsTotal.WithLabelValues("ok").Inc()
	metrics.RenderedFeatures.Set(float64(len(snap.Rendered)))
	metrics.SkippedRecordsTotal.Add(float64(len(snap.Skipped)))
	log.Info("polygons loaded",
		zap.String("load_id", snap.LoadID),
		zap.Int("records", len(snap.Records)),
		zap.Int("rendered", len(snap.Rendered)),
		zap.Int("skipped", len(snap.Skipped)),
	)
	c.cfg.Bus.Publish(events.Event{Kind: events.KindPanel, Action: "loaded", ID: snap.LoadID})

	if c.cfg.Mirror != nil {
		if err := c.cfg.Mirror.Replace(context.WithoutCancel(ctx), snap); err != nil {
			log.Warn("mirror update failed", zap.Error(err))
		}
	}
	return snap, nil
}

func (c *Controller) begin(ctx context.Context) (context.Context, uint64, func()) {
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	gen := c.gen
	c.cancel = cancel
	c.mu.Unlock()

	return ctx, gen, func() {
		cancel()
		c.mu.Lock()
		if c.gen == gen {
			c.cancel = nil
		}
		c.mu.Unlock()
	}
}

func (c *Controller) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

func (c *Controller) stale(log *zap.Logger) (*Snapshot, error) {
	metrics.LoadsTotal.WithLabelValues("stale").Inc()
	log.Debug("load superseded")
	return nil, ErrStale
}

// Pending is a load running in the background.
type Pending struct {
	done   chan struct{}
	snap   *Snapshot
	err    error
	cancel context.CancelFunc
}

// Reload starts Load in the background.
func (c *Controller) Reload(ctx context.Context) *Pending {
	ctx, cancel := context.WithCancel(ctx)
	p := &Pending{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer close(p.done)
		defer cancel()
		p.snap, p.err = c.Load(ctx)
	}()
	return p
}

// Done is closed when the load has finished.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the load has finished.
func (p *Pending) Wait() (*Snapshot, error) {
	<-p.done
	return p.snap, p.err
}

// Cancel aborts the load.
func (p *Pending) Cancel() {
	p.cancel()
}

// Current returns the last applied snapshot, or nil before the first load.
func (c *Controller) Current() *Snapshot {
	return c.current.Load()
}

// Options returns the in-memory options.
func (c *Controller) Options() settings.Options {
	return c.cfg.Settings.Options()
}

// SetOption changes a global option in memory and applies it: showLayer
// switches the layer, showPolygonName and fillPolygons re-render the current
// records. Persistence happens on Close.
func (c *Controller) SetOption(name string, value bool) error {
	if err := c.cfg.Settings.Set(name, value); err != nil {
		return err
	}

	switch name {
	case settings.ShowLayer:
		c.cfg.Layer.SetVisibility(value)
	case settings.ShowPolygonName, settings.FillPolygons:
		c.Rerender()
	}

	c.logger.Debug("option changed", zap.String("name", name), zap.Bool("value", value))
	c.cfg.Bus.Publish(events.Event{
		Kind:    events.KindOption,
		Action:  "changed",
		ID:      name,
		Message: strconv.FormatBool(value),
	})
	return nil
}

// ToggleLayer flips layer visibility the way the layer switcher does and
// keeps the showLayer option in step. It returns the new state.
func (c *Controller) ToggleLayer() bool {
	visible := !c.cfg.Layer.Visibility()
	// ShowLayer is always a known option.
	_ = c.SetOption(settings.ShowLayer, visible)
	return visible
}

// Rerender redraws the current records with the current options, then puts
// back the checkbox states the user chose.
func (c *Controller) Rerender() {
	c.apply.Lock()
	defer c.apply.Unlock()

	var records []directory.Record
	if snap := c.current.Load(); snap != nil {
		records = snap.Records
	}
	res := c.cfg.Renderer.Render(records, c.cfg.Settings.Options())
	c.cfg.List.Reapply()
	metrics.RenderedFeatures.Set(float64(len(res.Features)))
}

// Toggle shows or hides one polygon. It reports whether a feature with that
// identity exists; toggling a polygon that failed to decode is a no-op.
func (c *Controller) Toggle(id identity.ID, visible bool) bool {
	c.apply.Lock()
	found := c.cfg.List.Toggle(id, visible)
	c.apply.Unlock()

	metrics.TogglesTotal.WithLabelValues(strconv.FormatBool(found)).Inc()
	c.cfg.Bus.Publish(events.Event{
		Kind:    events.KindPanel,
		Action:  "toggled",
		ID:      id.String(),
		Message: strconv.FormatBool(visible),
	})
	return found
}

// Entries returns the current checkbox list.
func (c *Controller) Entries() []controls.Entry {
	return c.cfg.List.Entries()
}

// Close cancels any load in flight and flushes settings.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()

	if err := c.cfg.Settings.Save(); err != nil {
		return fmt.Errorf("pipeline: saving settings: %w", err)
	}
	return nil
}
