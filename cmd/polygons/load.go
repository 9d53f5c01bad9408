package main

import (
	"fmt"
	"io"

	"github.com/joeblew999/plat-polygons/internal/controls"
	"github.com/joeblew999/plat-polygons/internal/fetch"
	"github.com/joeblew999/plat-polygons/internal/identity"
	"github.com/joeblew999/plat-polygons/internal/pipeline"
)

type loadSummary struct {
	LoadID   string           `json:"loadId" yaml:"loadId"`
	Records  int              `json:"records" yaml:"records"`
	Rendered int              `json:"rendered" yaml:"rendered"`
	Polygons []polygonSummary `json:"polygons" yaml:"polygons"`
}

type polygonSummary struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Status   string `json:"status" yaml:"status"`
	Color    string `json:"color" yaml:"color"`
	Checked  bool   `json:"checked" yaml:"checked"`
	Rendered bool   `json:"rendered" yaml:"rendered"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

func summarize(snap *pipeline.Snapshot, entries []controls.Entry) loadSummary {
	rendered := make(map[identity.ID]bool, len(snap.Rendered))
	for _, id := range snap.Rendered {
		rendered[id] = true
	}
	skipped := make(map[int]string, len(snap.Skipped))
	for _, s := range snap.Skipped {
		skipped[s.Index] = s.Err
	}

	out := loadSummary{
		LoadID:   snap.LoadID,
		Records:  len(snap.Records),
		Rendered: len(snap.Rendered),
		Polygons: make([]polygonSummary, 0, len(snap.Records)),
	}
	for i, rec := range snap.Records {
		id := identity.Hash(rec.Polygon)
		p := polygonSummary{
			ID:       id.String(),
			Name:     rec.Name,
			Status:   string(rec.Status),
			Color:    rec.Color,
			Rendered: rendered[id],
			Error:    skipped[i],
		}
		if i < len(entries) {
			p.Checked = entries[i].Checked
		}
		out.Polygons = append(out.Polygons, p)
	}
	return out
}

// terminalNotifier prints alerts for the one-shot commands.
type terminalNotifier struct {
	out io.Writer
}

func (n *terminalNotifier) Alert(message string) {
	fmt.Fprintf(n.out, "!! %s\n", message)
}

func (n *terminalNotifier) OpenPage(page fetch.Page) {
	if page.URL != "" {
		fmt.Fprintf(n.out, "Open in a browser: %s\n", page.URL)
		return
	}
	fmt.Fprintf(n.out, "Received page (%d bytes) instead of polygon data\n", len(page.Body))
}
