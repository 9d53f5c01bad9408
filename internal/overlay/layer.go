// Package overlay is an in-process vector layer: the feature set the host map
// draws, keyed by polygon identity.
package overlay

import (
	"sync"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-polygons/internal/events"
	"github.com/joeblew999/plat-polygons/internal/identity"
	"github.com/joeblew999/plat-polygons/internal/render"
)

// Layer holds rendered features in insertion order.
type Layer struct {
	name     string
	bus      *events.Bus
	features map[identity.ID]*render.Feature
	order    []identity.ID
	visible  bool
	redraws  int
	mu       sync.RWMutex
}

// New creates an empty layer. bus may be nil.
func New(name string, visible bool, bus *events.Bus) *Layer {
	return &Layer{
		name:     name,
		bus:      bus,
		features: make(map[identity.ID]*render.Feature),
		visible:  visible,
	}
}

// Name returns the layer name shown in the layer switcher.
func (l *Layer) Name() string {
	return l.name
}

// DestroyFeatures removes every feature.
func (l *Layer) DestroyFeatures() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.features = make(map[identity.ID]*render.Feature)
	l.order = nil
}

// AddFeatures appends features. A feature whose identity is already present
// replaces the earlier one in place.
func (l *Layer) AddFeatures(features []*render.Feature) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, f := range features {
		if _, exists := l.features[f.ID]; !exists {
			l.order = append(l.order, f.ID)
		}
		l.features[f.ID] = f
	}
}

// Redraw notifies subscribers that the layer changed.
func (l *Layer) Redraw() {
	l.mu.Lock()
	l.redraws++
	l.mu.Unlock()

	l.bus.Publish(events.Event{Kind: events.KindLayer, Action: "redrawn"})
}

// Redraws returns how many times the layer was redrawn.
func (l *Layer) Redraws() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.redraws
}

// SetFeatureVisible sets the display flag of one feature.
func (l *Layer) SetFeatureVisible(id identity.ID, visible bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, ok := l.features[id]
	if !ok {
		return false
	}
	f.Style.Visible = visible
	return true
}

// SetVisibility shows or hides the whole layer.
func (l *Layer) SetVisibility(visible bool) {
	l.mu.Lock()
	changed := l.visible != visible
	l.visible = visible
	l.mu.Unlock()

	if changed {
		action := "hidden"
		if visible {
			action = "shown"
		}
		l.bus.Publish(events.Event{Kind: events.KindLayer, Action: action})
	}
}

// Visibility reports whether the layer is shown.
func (l *Layer) Visibility() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.visible
}

// Feature returns a copy of the feature with the given identity.
func (l *Layer) Feature(id identity.ID) (render.Feature, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	f, ok := l.features[id]
	if !ok {
		return render.Feature{}, false
	}
	return *f, true
}

// Features returns copies of all features in insertion order.
func (l *Layer) Features() []render.Feature {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]render.Feature, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.features[id])
	}
	return out
}

// Len returns the number of features.
func (l *Layer) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

// FeatureCollection exports the layer as GeoJSON. Hidden features are
// included with visible=false so clients can restore them without a reload.
func (l *Layer) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range l.Features() {
		gf := geojson.NewFeature(f.Geometry)
		gf.ID = int64(f.ID)
		for k, v := range f.Style.Properties() {
			gf.Properties[k] = v
		}
		gf.Properties["name"] = f.Name
		gf.Properties["anchor"] = []float64{f.Anchor[0], f.Anchor[1]}
		fc.Append(gf)
	}
	return fc
}

var _ render.Layer = (*Layer)(nil)
