// Package style resolves how a polygon is drawn from its record and the
// current global options.
package style

import (
	"github.com/joeblew999/plat-polygons/internal/directory"
	"github.com/joeblew999/plat-polygons/internal/settings"
)

// Fixed presentation constants.
const (
	FillOpacity       = 0.4
	StrokeOpacity     = 1.0
	StrokeWidth       = 3
	StrokeLinecap     = "round"
	StrokeDashstyle   = "longdash"
	LabelOutlineColor = "black"
	LabelOutlineWidth = 1
	FontSize          = 20
	FontOpacity       = 1.0
	FontWeight        = "bold"
)

// Descriptor is derived per render and never persisted.
type Descriptor struct {
	Fill              bool    `json:"fill"`
	FillColor         string  `json:"fillColor"`
	FillOpacity       float64 `json:"fillOpacity"`
	Stroke            bool    `json:"stroke"`
	StrokeColor       string  `json:"strokeColor"`
	StrokeOpacity     float64 `json:"strokeOpacity"`
	StrokeWidth       int     `json:"strokeWidth"`
	StrokeLinecap     string  `json:"strokeLinecap"`
	StrokeDashstyle   string  `json:"strokeDashstyle"`
	Label             string  `json:"label,omitempty"`
	LabelOutlineColor string  `json:"labelOutlineColor"`
	LabelOutlineWidth int     `json:"labelOutlineWidth"`
	FontSize          int     `json:"fontSize"`
	FontColor         string  `json:"fontColor"`
	FontOpacity       float64 `json:"fontOpacity"`
	FontWeight        string  `json:"fontWeight"`
	Visible           bool    `json:"visible"`
}

// Resolve computes the style for rec. Visible starts from the record status;
// visibility toggles override it later without re-resolving. An empty color
// is passed through as is.
func Resolve(rec directory.Record, opts settings.Options) Descriptor {
	d := Descriptor{
		Fill:              opts.FillPolygons,
		FillColor:         rec.Color,
		FillOpacity:       FillOpacity,
		Stroke:            true,
		StrokeColor:       rec.Color,
		StrokeOpacity:     StrokeOpacity,
		StrokeWidth:       StrokeWidth,
		StrokeLinecap:     StrokeLinecap,
		StrokeDashstyle:   StrokeDashstyle,
		LabelOutlineColor: LabelOutlineColor,
		LabelOutlineWidth: LabelOutlineWidth,
		FontSize:          FontSize,
		FontColor:         rec.Color,
		FontOpacity:       FontOpacity,
		FontWeight:        FontWeight,
		Visible:           rec.Active(),
	}
	if opts.ShowPolygonName {
		d.Label = rec.Name
	}
	return d
}

// Properties flattens the descriptor into feature properties. The label key
// is omitted when there is no label.
func (d Descriptor) Properties() map[string]any {
	props := map[string]any{
		"fill":              d.Fill,
		"fillColor":         d.FillColor,
		"fillOpacity":       d.FillOpacity,
		"stroke":            d.Stroke,
		"strokeColor":       d.StrokeColor,
		"strokeOpacity":     d.StrokeOpacity,
		"strokeWidth":       d.StrokeWidth,
		"strokeLinecap":     d.StrokeLinecap,
		"strokeDashstyle":   d.StrokeDashstyle,
		"labelOutlineColor": d.LabelOutlineColor,
		"labelOutlineWidth": d.LabelOutlineWidth,
		"fontSize":          d.FontSize,
		"fontColor":         d.FontColor,
		"fontOpacity":       d.FontOpacity,
		"fontWeight":        d.FontWeight,
		"visible":           d.Visible,
	}
	if d.Label != "" {
		props["label"] = d.Label
	}
	return props
}
