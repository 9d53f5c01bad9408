// Package render turns directory records into styled overlay features in the
// host map's display projection.
package render

import (
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-polygons/internal/directory"
	"github.com/joeblew999/plat-polygons/internal/identity"
	"github.com/joeblew999/plat-polygons/internal/projection"
	"github.com/joeblew999/plat-polygons/internal/settings"
	"github.com/joeblew999/plat-polygons/internal/style"
)

// ErrEmptyGeometry is returned by Decode for blank geometry text.
var ErrEmptyGeometry = errors.New("empty geometry text")

// Feature is a rendered polygon. The layer owns it once added.
type Feature struct {
	ID       identity.ID
	Source   string       // raw geometry text the ID was derived from
	Name     string
	Geometry orb.Geometry // in the target projection
	Anchor   orb.Point    // label position
	Style    style.Descriptor
}

// Key returns the identity paired with its source text.
func (f *Feature) Key() identity.Key {
	return identity.Key{ID: f.ID, Text: f.Source}
}

// Layer is the vector overlay on the host map.
type Layer interface {
	DestroyFeatures()
	AddFeatures(features []*Feature)
	Redraw()
	// SetFeatureVisible reports false when no feature has the identity.
	SetFeatureVisible(id identity.ID, visible bool) bool
	SetVisibility(visible bool)
	Visibility() bool
}

// Skip describes a record that produced no feature.
type Skip struct {
	Index int         `json:"index" doc:"Position in the directory"`
	ID    identity.ID `json:"id" doc:"Polygon identity"`
	Name  string      `json:"name" doc:"Polygon name"`
	Err   string      `json:"error" doc:"Decode error"`
}

// Result is the outcome of one render pass.
type Result struct {
	Features []*Feature
	Skipped  []Skip
}

// Renderer draws records onto a layer.
type Renderer struct {
	layer  Layer
	source string
	target string
	proj   orb.Projection
	logger *zap.Logger
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithSourceProjection sets the projection of the incoming geometry text.
func WithSourceProjection(code string) Option {
	return func(r *Renderer) { r.source = code }
}

// WithLogger sets the logger used for skip diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(r *Renderer) { r.logger = l }
}

// New creates a renderer targeting the given display projection.
func New(layer Layer, target string, opts ...Option) (*Renderer, error) {
	r := &Renderer{
		layer:  layer,
		source: projection.WGS84,
		target: target,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	proj, err := projection.Transform(r.source, r.target)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	r.proj = proj
	return r, nil
}

// Target returns the display projection code.
func (r *Renderer) Target() string {
	return r.target
}

// Render clears the layer and repopulates it from records. Records whose
// geometry fails to decode are skipped without surfacing an error.
func (r *Renderer) Render(records []directory.Record, opts settings.Options) Result {
	r.layer.DestroyFeatures()

	var res Result
	for i, rec := range records {
		id := identity.Hash(rec.Polygon)
		geom, err := Decode(rec.Polygon, r.proj)
		if err != nil {
			res.Skipped = append(res.Skipped, Skip{Index: i, ID: id, Name: rec.Name, Err: err.Error()})
			r.logger.Debug("polygon skipped",
				zap.Int("index", i),
				zap.String("name", rec.Name),
				zap.Error(err),
			)
			continue
		}
		res.Features = append(res.Features, &Feature{
			ID:       id,
			Source:   rec.Polygon,
			Name:     rec.Name,
			Geometry: geom,
			Anchor:   anchor(geom),
			Style:    style.Resolve(rec, opts),
		})
	}

	if len(res.Features) > 0 {
		r.layer.AddFeatures(res.Features)
	}
	r.layer.Redraw()
	return res
}

// Decode parses well-known text and applies proj to every coordinate. A nil
// proj leaves coordinates untouched.
func Decode(text string, proj orb.Projection) (orb.Geometry, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyGeometry
	}
	geom, err := wkt.Unmarshal(text)
	if err != nil {
		return nil, fmt.Errorf("decoding wkt: %w", err)
	}
	if proj != nil {
		geom = project.Geometry(geom, proj)
	}
	return geom, nil
}

func anchor(g orb.Geometry) orb.Point {
	switch geom := g.(type) {
	case orb.Point:
		return geom
	case orb.Polygon, orb.MultiPolygon, orb.Ring, orb.Bound:
		if c, area := planar.CentroidArea(geom); area != 0 {
			return c
		}
	}
	return g.Bound().Center()
}
