package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/joeblew999/plat-polygons/internal/controls"
	"github.com/joeblew999/plat-polygons/internal/directory"
	"github.com/joeblew999/plat-polygons/internal/fetch"
	"github.com/joeblew999/plat-polygons/internal/identity"
	"github.com/joeblew999/plat-polygons/internal/overlay"
	"github.com/joeblew999/plat-polygons/internal/projection"
	"github.com/joeblew999/plat-polygons/internal/render"
	"github.com/joeblew999/plat-polygons/internal/settings"
)

const (
	square  = "POLYGON((0 0,0 1,1 1,1 0,0 0))"
	square2 = "POLYGON((2 2,2 3,3 3,3 2,2 2))"
)

type notifier struct {
	mu     sync.Mutex
	alerts []string
	pages  []fetch.Page
}

func (n *notifier) Alert(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, msg)
}

func (n *notifier) OpenPage(p fetch.Page) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pages = append(n.pages, p)
}

func (n *notifier) Alerts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.alerts...)
}

type panel struct {
	mu       sync.Mutex
	replaced int
	colors   map[string]string
}

func (p *panel) ReplaceFieldset([]controls.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replaced++
	p.colors = make(map[string]string)
}

func (p *panel) ColorLabel(controlID, color string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.colors[controlID] = color
	return true
}

type mirror struct {
	mu    sync.Mutex
	snaps []*Snapshot
}

func (m *mirror) Replace(_ context.Context, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps = append(m.snaps, snap)
	return nil
}

// directoryServer serves a configurable response and counts requests.
type directoryServer struct {
	mu          sync.Mutex
	contentType string
	body        string
	status      int
	hits        int
	hold        chan struct{} // when set, the next request waits on it
	arrived     chan struct{}
}

func (d *directoryServer) set(status int, contentType, body string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status, d.contentType, d.body = status, contentType, body
}

func (d *directoryServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	d.hits++
	hold, arrived := d.hold, d.arrived
	d.hold, d.arrived = nil, nil
	status, ct, body := d.status, d.contentType, d.body
	d.mu.Unlock()

	if hold != nil {
		close(arrived)
		select {
		case <-hold:
		case <-r.Context().Done():
			return
		}
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (d *directoryServer) Hits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hits
}

func envelope(polygons string) string {
	return `{"result":"success","data":{"polygons":[` + polygons + `]}}`
}

type harness struct {
	ctrl   *Controller
	layer  *overlay.Layer
	list   *controls.List
	panel  *panel
	notify *notifier
	mirror *mirror
	server *directoryServer
	store  *settings.FileStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	srv := &directoryServer{status: http.StatusOK, contentType: "application/json", body: envelope("")}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	h := &harness{
		layer:  overlay.New("MapRaid Polygons", true, nil),
		panel:  &panel{colors: map[string]string{}},
		notify: &notifier{},
		mirror: &mirror{},
		server: srv,
		store:  settings.NewFileStore(t.TempDir(), settings.Defaults()),
	}
	h.list = controls.NewList(h.layer, h.panel)

	logger := zaptest.NewLogger(t)
	renderer, err := render.New(h.layer, projection.WGS84, render.WithLogger(logger))
	require.NoError(t, err)

	h.ctrl, err = New(Config{
		Client:   fetch.New(fetch.WithNotifier(h.notify), fetch.WithLogger(logger), fetch.WithTimeout(5*time.Second)),
		URL:      ts.URL + "/exec?func=getAllPolygons",
		Renderer: renderer,
		Layer:    h.layer,
		List:     h.list,
		Settings: settings.NewService(h.store),
		Notifier: h.notify,
		Mirror:   h.mirror,
		Logger:   logger,
	})
	require.NoError(t, err)
	return h
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadZoneA(t *testing.T) {
	h := newHarness(t)
	h.server.set(200, "application/json", envelope(
		`{"polygon":"`+square+`","name":"Zone A","comments":"","status":"active","color":"#ff0000"}`))

	snap, err := h.ctrl.Load(context.Background())
	require.NoError(t, err)

	id := identity.Hash(square)
	require.Equal(t, 1, h.layer.Len())
	f, ok := h.layer.Feature(id)
	require.True(t, ok)
	assert.True(t, f.Style.Visible)
	assert.Equal(t, "#ff0000", f.Style.StrokeColor)
	assert.Equal(t, "#ff0000", f.Style.FillColor)
	assert.Equal(t, "Zone A", f.Style.Label)

	entries := h.list.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "Zone A", entries[0].Label)
	assert.True(t, entries[0].Checked)
	assert.Equal(t, "#ff0000", h.panel.colors[entries[0].ControlID()])

	assert.Equal(t, []identity.ID{id}, snap.Rendered)
	assert.NotEmpty(t, snap.LoadID)
	assert.Same(t, snap, h.ctrl.Current())
	assert.Len(t, h.mirror.snaps, 1)
	assert.Empty(t, h.notify.Alerts())
}

func TestLoadInactive(t *testing.T) {
	h := newHarness(t)
	h.server.set(200, "application/json", envelope(
		`{"polygon":"`+square+`","name":"Zone A","status":"inactive","color":"#ff0000"}`))

	_, err := h.ctrl.Load(context.Background())
	require.NoError(t, err)

	f, ok := h.layer.Feature(identity.Hash(square))
	require.True(t, ok)
	assert.False(t, f.Style.Visible)
	assert.False(t, h.list.Checked(identity.Hash(square)))
}

func TestLoadSkipsMalformedGeometry(t *testing.T) {
	h := newHarness(t)
	h.server.set(200, "application/json", envelope(
		`{"polygon":"POLYGON((broken","name":"Bad","status":"active","color":"#00ff00"},`+
			`{"polygon":"`+square+`","name":"Good","status":"active","color":"#ff0000"}`))

	snap, err := h.ctrl.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, h.layer.Len())
	assert.Len(t, h.list.Entries(), 2)
	require.Len(t, snap.Skipped, 1)
	assert.Equal(t, "Bad", snap.Skipped[0].Name)

	redraws := h.layer.Redraws()
	assert.False(t, h.ctrl.Toggle(identity.Hash("POLYGON((broken"), false))
	assert.Equal(t, redraws, h.layer.Redraws())
	assert.Empty(t, h.notify.Alerts())
}

func TestToggleHidesExactlyOne(t *testing.T) {
	h := newHarness(t)
	h.server.set(200, "application/json", envelope(
		`{"polygon":"`+square+`","name":"A","status":"active","color":"#f00"},`+
			`{"polygon":"`+square2+`","name":"B","status":"active","color":"#0f0"}`))
	_, err := h.ctrl.Load(context.Background())
	require.NoError(t, err)

	require.True(t, h.ctrl.Toggle(identity.Hash(square), false))

	a, _ := h.layer.Feature(identity.Hash(square))
	b, _ := h.layer.Feature(identity.Hash(square2))
	assert.False(t, a.Style.Visible)
	assert.True(t, b.Style.Visible)
	assert.False(t, h.list.Checked(identity.Hash(square)))
}

func TestUnsuccessfulEnvelopeKeepsState(t *testing.T) {
	h := newHarness(t)
	h.server.set(200, "application/json", envelope(
		`{"polygon":"`+square+`","name":"Zone A","status":"active","color":"#ff0000"}`))
	first, err := h.ctrl.Load(context.Background())
	require.NoError(t, err)
	redraws := h.layer.Redraws()
	replaced := h.panel.replaced

	h.server.set(200, "application/json", `{"result":"error","data":{"polygons":[]}}`)
	_, err = h.ctrl.Load(context.Background())

	assert.ErrorIs(t, err, directory.ErrMalformedEnvelope)
	assert.Equal(t, 1, h.layer.Len())
	assert.Equal(t, redraws, h.layer.Redraws())
	assert.Equal(t, replaced, h.panel.replaced)
	assert.Len(t, h.list.Entries(), 1)
	assert.Same(t, first, h.ctrl.Current())
	assert.Equal(t, []string{"MapRaid Polygons: Error getting polygons from spreadsheet!"}, h.notify.Alerts())
}

func TestAuthorizationPage(t *testing.T) {
	h := newHarness(t)
	h.server.set(200, "text/html; charset=utf-8", "<html><body>Authorization needed</body></html>")

	_, err := h.ctrl.Load(context.Background())

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, fetch.AuthRequired, fe.Outcome.Kind)
	alerts := h.notify.Alerts()
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0], "Authorization is required")
	assert.Len(t, h.notify.pages, 1)
	assert.Nil(t, h.ctrl.Current())
	assert.Zero(t, h.panel.replaced)
}

func TestFillOptionRerenders(t *testing.T) {
	h := newHarness(t)
	h.server.set(200, "application/json", envelope(
		`{"polygon":"`+square+`","name":"A","status":"active","color":"#f00"},`+
			`{"polygon":"`+square2+`","name":"B","status":"active","color":"#0f0"}`))
	_, err := h.ctrl.Load(context.Background())
	require.NoError(t, err)
	require.True(t, h.ctrl.Toggle(identity.Hash(square2), false))
	redraws := h.layer.Redraws()

	require.NoError(t, h.ctrl.SetOption(settings.FillPolygons, true))

	assert.Greater(t, h.layer.Redraws(), redraws)
	for _, f := range h.layer.Features() {
		assert.True(t, f.Style.Fill, f.Name)
	}
	b, _ := h.layer.Feature(identity.Hash(square2))
	assert.False(t, b.Style.Visible, "checkbox state survives re-render")
	assert.Equal(t, 1, h.server.Hits(), "re-render does not refetch")
}

func TestHidingNamesKeepsStroke(t *testing.T) {
	h := newHarness(t)
	h.server.set(200, "application/json", envelope(
		`{"polygon":"`+square+`","name":"A","status":"active","color":"#f00"}`))
	_, err := h.ctrl.Load(context.Background())
	require.NoError(t, err)
	before, _ := h.layer.Feature(identity.Hash(square))

	require.NoError(t, h.ctrl.SetOption(settings.ShowPolygonName, false))

	after, _ := h.layer.Feature(identity.Hash(square))
	assert.Empty(t, after.Style.Label)
	assert.Equal(t, before.Style.StrokeColor, after.Style.StrokeColor)
	assert.Equal(t, before.Style.Fill, after.Style.Fill)
	assert.Equal(t, before.Style.StrokeWidth, after.Style.StrokeWidth)
}

func TestShowLayerOption(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.ctrl.SetOption(settings.ShowLayer, false))
	assert.False(t, h.layer.Visibility())
	assert.False(t, h.ctrl.Options().ShowLayer)

	assert.True(t, h.ctrl.ToggleLayer())
	assert.True(t, h.layer.Visibility())
	assert.True(t, h.ctrl.Options().ShowLayer)

	assert.ErrorIs(t, h.ctrl.SetOption("bogus", true), settings.ErrUnknownOption)
}

func TestStartHonorsLoadOnStart(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.SetOption(settings.LoadPolygonsOnStart, false))
	h.store.Set([]string{"options", settings.ShowLayer}, false)

	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.Zero(t, h.server.Hits())
	assert.False(t, h.layer.Visibility())

	require.NoError(t, h.ctrl.SetOption(settings.LoadPolygonsOnStart, true))
	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.Equal(t, 1, h.server.Hits())
}

func TestNewerLoadSupersedesOlder(t *testing.T) {
	h := newHarness(t)
	h.server.set(200, "application/json", envelope(
		`{"polygon":"`+square+`","name":"A","status":"active","color":"#f00"}`))

	hold := make(chan struct{})
	defer close(hold)
	arrived := make(chan struct{})
	h.server.mu.Lock()
	h.server.hold, h.server.arrived = hold, arrived
	h.server.mu.Unlock()

	first := h.ctrl.Reload(context.Background())
	<-arrived

	snap, err := h.ctrl.Load(context.Background())
	require.NoError(t, err)

	_, err = first.Wait()
	assert.ErrorIs(t, err, ErrStale)
	assert.Same(t, snap, h.ctrl.Current())
	assert.Equal(t, uint64(2), snap.Generation)
	assert.Empty(t, h.notify.Alerts())
}

func TestCloseSavesSettings(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.SetOption(settings.FillPolygons, true))

	_, err := os.Stat(h.store.Path())
	assert.True(t, os.IsNotExist(err), "options are not written before close")

	require.NoError(t, h.ctrl.Close())

	reopened := settings.NewFileStore(filepath.Dir(h.store.Path()), settings.Defaults())
	require.NoError(t, reopened.Load())
	assert.True(t, settings.NewService(reopened).Options().FillPolygons)
}
