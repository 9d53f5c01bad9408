package controls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-polygons/internal/directory"
	"github.com/joeblew999/plat-polygons/internal/identity"
)

type fakeLayer struct {
	visible map[identity.ID]bool
	redraws int
}

func (l *fakeLayer) SetFeatureVisible(id identity.ID, v bool) bool {
	if _, ok := l.visible[id]; !ok {
		return false
	}
	l.visible[id] = v
	return true
}

func (l *fakeLayer) Redraw() { l.redraws++ }

type fakePanel struct {
	calls    []string
	fieldset []Entry
	colors   map[string]string
}

func (p *fakePanel) ReplaceFieldset(entries []Entry) {
	p.calls = append(p.calls, "replace")
	p.fieldset = entries
	p.colors = map[string]string{}
}

func (p *fakePanel) ColorLabel(id, color string) bool {
	p.calls = append(p.calls, "color")
	p.colors[id] = color
	return true
}

const (
	good = "POLYGON((0 0,0 1,1 1,1 0,0 0))"
	bad  = "POLYGON((garbage"
)

var records = []directory.Record{
	{Polygon: good, Name: "Zone A", Comments: "north", Status: directory.StatusActive, Color: "#ff0000"},
	{Polygon: bad, Name: "Zone B", Status: directory.StatusInactive, Color: "#00ff00"},
}

func TestBuild(t *testing.T) {
	entries := Build(records)
	require.Len(t, entries, 2)

	assert.Equal(t, identity.Hash(good), entries[0].ID)
	assert.Equal(t, "Zone A", entries[0].Label)
	assert.Equal(t, "north", entries[0].Tooltip)
	assert.True(t, entries[0].Checked)
	assert.False(t, entries[1].Checked)
	assert.Equal(t, "mapraid-polygons-"+identity.Hash(good).String(), entries[0].ControlID())
}

func TestReplaceColorsAfterFieldset(t *testing.T) {
	panel := &fakePanel{}
	l := NewList(&fakeLayer{visible: map[identity.ID]bool{}}, panel)

	l.Replace(records)
	assert.Equal(t, []string{"replace", "color", "color"}, panel.calls)
	assert.Len(t, panel.fieldset, 2)
	assert.Equal(t, "#00ff00", panel.colors[ControlPrefix+identity.Hash(bad).String()])
}

func TestToggleHidesExactlyOne(t *testing.T) {
	other := "POLYGON((5 5,5 6,6 6,6 5,5 5))"
	layer := &fakeLayer{visible: map[identity.ID]bool{
		identity.Hash(good):  true,
		identity.Hash(other): true,
	}}
	l := NewList(layer, nil)
	l.Replace([]directory.Record{
		{Polygon: good, Status: directory.StatusActive},
		{Polygon: other, Status: directory.StatusActive},
	})

	assert.True(t, l.Toggle(identity.Hash(good), false))
	assert.False(t, layer.visible[identity.Hash(good)])
	assert.True(t, layer.visible[identity.Hash(other)])
	assert.Equal(t, 1, layer.redraws)

	e, ok := l.Entry(identity.Hash(good))
	require.True(t, ok)
	assert.False(t, e.Checked)
}

func TestToggleWithoutFeatureIsNoop(t *testing.T) {
	layer := &fakeLayer{visible: map[identity.ID]bool{identity.Hash(good): true}}
	l := NewList(layer, nil)
	l.Replace(records)

	assert.False(t, l.Toggle(identity.Hash(bad), true))
	assert.Zero(t, layer.redraws)

	e, ok := l.Entry(identity.Hash(bad))
	require.True(t, ok)
	assert.True(t, e.Checked, "checkbox keeps the user's state")
}

func TestReapply(t *testing.T) {
	layer := &fakeLayer{visible: map[identity.ID]bool{identity.Hash(good): true}}
	l := NewList(layer, nil)
	l.Replace(records)
	l.Toggle(identity.Hash(good), false)

	layer.visible[identity.Hash(good)] = true // re-render reset
	l.Reapply()
	assert.False(t, layer.visible[identity.Hash(good)])
	assert.Equal(t, 2, layer.redraws)
}

func TestEntriesAreCopies(t *testing.T) {
	l := NewList(&fakeLayer{visible: map[identity.ID]bool{}}, nil)
	l.Replace(records)

	entries := l.Entries()
	entries[0].Label = "changed"
	assert.Equal(t, "Zone A", l.Entries()[0].Label)
}
