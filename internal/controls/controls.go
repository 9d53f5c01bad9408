// Package controls keeps the per-polygon checkbox list in step with the
// rendered features.
package controls

import (
	"sync"

	"github.com/joeblew999/plat-polygons/internal/directory"
	"github.com/joeblew999/plat-polygons/internal/identity"
)

// ControlPrefix namespaces checkbox identifiers in the side panel.
const ControlPrefix = "mapraid-polygons-"

// Entry is one checkbox.
type Entry struct {
	ID      identity.ID `json:"id" doc:"Polygon identity"`
	Label   string      `json:"label" doc:"Polygon name"`
	Tooltip string      `json:"tooltip" doc:"Polygon comments"`
	Checked bool        `json:"checked" doc:"Whether the polygon is shown"`
	Color   string      `json:"color" doc:"Label background color"`
}

// ControlID is the checkbox element identifier.
func (e Entry) ControlID() string {
	return ControlPrefix + e.ID.String()
}

// Build creates one entry per record, in order, regardless of whether the
// record's geometry decodes. Checked mirrors the active status.
func Build(records []directory.Record) []Entry {
	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, Entry{
			ID:      identity.Hash(rec.Polygon),
			Label:   rec.Name,
			Tooltip: rec.Comments,
			Checked: rec.Active(),
			Color:   rec.Color,
		})
	}
	return entries
}

// Toggler is the part of the overlay layer a checkbox drives.
type Toggler interface {
	SetFeatureVisible(id identity.ID, visible bool) bool
	Redraw()
}

// Panel is the side-panel fieldset the list is attached to. Labels can only
// be colored once the fieldset is in place.
type Panel interface {
	ReplaceFieldset(entries []Entry)
	ColorLabel(controlID, color string) bool
}

// List is the live checkbox list.
type List struct {
	layer   Toggler
	panel   Panel
	entries []Entry
	index   map[identity.ID]int
	mu      sync.RWMutex
}

// NewList binds a list to a layer and a panel. panel may be nil.
func NewList(layer Toggler, panel Panel) *List {
	return &List{
		layer: layer,
		panel: panel,
		index: make(map[identity.ID]int),
	}
}

// Replace rebuilds the list from records, swaps the panel fieldset, then
// colors each label.
func (l *List) Replace(records []directory.Record) []Entry {
	entries := Build(records)
	index := make(map[identity.ID]int, len(entries))
	for i, e := range entries {
		if _, dup := index[e.ID]; !dup {
			index[e.ID] = i
		}
	}

	l.mu.Lock()
	l.entries = entries
	l.index = index
	l.mu.Unlock()

	if l.panel != nil {
		l.panel.ReplaceFieldset(copyEntries(entries))
		for _, e := range entries {
			l.panel.ColorLabel(e.ControlID(), e.Color)
		}
	}
	return copyEntries(entries)
}

// Toggle records the checkbox state and applies it to the feature. It
// reports whether a feature was found; a missing feature is not an error.
func (l *List) Toggle(id identity.ID, checked bool) bool {
	l.mu.Lock()
	for i := range l.entries {
		if l.entries[i].ID == id {
			l.entries[i].Checked = checked
		}
	}
	l.mu.Unlock()

	if !l.layer.SetFeatureVisible(id, checked) {
		return false
	}
	l.layer.Redraw()
	return true
}

// Reapply pushes every checkbox state onto the layer, e.g. after a re-render
// reset features to their status defaults. It redraws once.
func (l *List) Reapply() {
	l.mu.RLock()
	entries := copyEntries(l.entries)
	l.mu.RUnlock()

	changed := false
	for _, e := range entries {
		if l.layer.SetFeatureVisible(e.ID, e.Checked) {
			changed = true
		}
	}
	if changed {
		l.layer.Redraw()
	}
}

// Entries returns a copy of the current entries.
func (l *List) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return copyEntries(l.entries)
}

// Entry returns the entry for id.
func (l *List) Entry(id identity.ID) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i, ok := l.index[id]
	if !ok {
		return Entry{}, false
	}
	return l.entries[i], true
}

// Checked reports the checkbox state for id.
func (l *List) Checked(id identity.ID) bool {
	e, ok := l.Entry(id)
	return ok && e.Checked
}

func copyEntries(in []Entry) []Entry {
	if in == nil {
		return nil
	}
	out := make([]Entry, len(in))
	copy(out, in)
	return out
}
