package panel

import (
	"sync"

	"github.com/joeblew999/plat-polygons/internal/controls"
	"github.com/joeblew999/plat-polygons/internal/events"
	"github.com/joeblew999/plat-polygons/internal/identity"
)

// Fieldset is the polygon fieldset as the browser last received it. Label
// colors are applied in a second pass, once the fieldset is in place.
type Fieldset struct {
	bus     *events.Bus
	entries []controls.Entry
	colors  map[string]string
	mu      sync.RWMutex
}

// NewFieldset creates an empty fieldset. bus may be nil.
func NewFieldset(bus *events.Bus) *Fieldset {
	return &Fieldset{bus: bus, colors: make(map[string]string)}
}

// ReplaceFieldset swaps in a new set of checkboxes, uncolored.
func (f *Fieldset) ReplaceFieldset(entries []controls.Entry) {
	f.mu.Lock()
	f.entries = entries
	f.colors = make(map[string]string, len(entries))
	f.mu.Unlock()

	f.bus.Publish(events.Event{Kind: events.KindPanel, Action: "replaced"})
}

// ColorLabel sets the background of the label bound to controlID. It reports
// false when no such control exists.
func (f *Fieldset) ColorLabel(controlID, color string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, e := range f.entries {
		if e.ControlID() == controlID {
			f.colors[controlID] = color
			return true
		}
	}
	return false
}

// PolygonItem is one rendered checkbox.
type PolygonItem struct {
	ID        identity.ID
	ControlID string
	Label     string
	Tooltip   string
	Checked   bool
	Color     string
}

// Items returns the checkboxes in order. checked supplies the live state;
// nil keeps the state the fieldset was built with.
func (f *Fieldset) Items(checked func(identity.ID) bool) []PolygonItem {
	f.mu.RLock()
	defer f.mu.RUnlock()

	items := make([]PolygonItem, 0, len(f.entries))
	for _, e := range f.entries {
		item := PolygonItem{
			ID:        e.ID,
			ControlID: e.ControlID(),
			Label:     e.Label,
			Tooltip:   e.Tooltip,
			Checked:   e.Checked,
			Color:     f.colors[e.ControlID()],
		}
		if checked != nil {
			item.Checked = checked(e.ID)
		}
		items = append(items, item)
	}
	return items
}

var _ controls.Panel = (*Fieldset)(nil)
