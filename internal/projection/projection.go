// Package projection resolves EPSG codes to coordinate transforms.
package projection

import (
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Well-known codes.
const (
	WGS84             = "EPSG:4326"
	WebMercator       = "EPSG:3857"
	GoogleMercator    = "EPSG:900913"
	EsriWebMercator   = "EPSG:102100"
	EsriMercatorAlias = "EPSG:102113"
)

// ErrUnknownProjection is returned for codes outside the registry.
var ErrUnknownProjection = errors.New("unknown projection")

type crs int

const (
	geographic crs = iota + 1
	sphericalMercator
)

var registry = map[string]crs{
	WGS84:             geographic,
	"CRS:84":          geographic,
	WebMercator:       sphericalMercator,
	GoogleMercator:    sphericalMercator,
	EsriWebMercator:   sphericalMercator,
	EsriMercatorAlias: sphericalMercator,
}

func lookup(code string) (crs, error) {
	c, ok := registry[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownProjection, code)
	}
	return c, nil
}

// Known reports whether code is in the registry.
func Known(code string) bool {
	_, err := lookup(code)
	return err == nil
}

// Transform returns the point transform from one code to another. A nil
// projection means the two codes share a coordinate space.
func Transform(from, to string) (orb.Projection, error) {
	src, err := lookup(from)
	if err != nil {
		return nil, err
	}
	dst, err := lookup(to)
	if err != nil {
		return nil, err
	}

	switch {
	case src == dst:
		return nil, nil
	case src == geographic && dst == sphericalMercator:
		return project.WGS84.ToMercator, nil
	case src == sphericalMercator && dst == geographic:
		return project.Mercator.ToWGS84, nil
	}
	return nil, fmt.Errorf("%w: no transform %s -> %s", ErrUnknownProjection, from, to)
}
