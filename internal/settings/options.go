package settings

import (
	"errors"
	"fmt"
)

// Option names, in panel order.
const (
	ShowLayer           = "showLayer"
	ShowPolygonName     = "showPolygonName"
	LoadPolygonsOnStart = "loadPolygonsOnStart"
	FillPolygons        = "fillPolygons"
)

const optionsKey = "options"

// ErrUnknownOption is returned for names other than the four global options.
var ErrUnknownOption = errors.New("unknown option")

// Options are the global display options. Style resolution and layer
// visibility read them at call time.
type Options struct {
	ShowLayer           bool `json:"showLayer" yaml:"showLayer" doc:"Show the polygons layer"`
	ShowPolygonName     bool `json:"showPolygonName" yaml:"showPolygonName" doc:"Label polygons with their name"`
	LoadPolygonsOnStart bool `json:"loadPolygonsOnStart" yaml:"loadPolygonsOnStart" doc:"Load polygons at startup"`
	FillPolygons        bool `json:"fillPolygons" yaml:"fillPolygons" doc:"Fill polygons with their color"`
}

// DefaultOptions returns the options used before anything is persisted.
func DefaultOptions() Options {
	return Options{
		ShowLayer:           true,
		ShowPolygonName:     true,
		LoadPolygonsOnStart: true,
		FillPolygons:        false,
	}
}

// Names returns the option names in display order.
func Names() []string {
	return []string{ShowLayer, ShowPolygonName, LoadPolygonsOnStart, FillPolygons}
}

// Defaults returns the default settings tree: {"options": {...}}.
func Defaults() map[string]any {
	d := DefaultOptions()
	return map[string]any{
		optionsKey: map[string]any{
			ShowLayer:           d.ShowLayer,
			ShowPolygonName:     d.ShowPolygonName,
			LoadPolygonsOnStart: d.LoadPolygonsOnStart,
			FillPolygons:        d.FillPolygons,
		},
	}
}

func (o Options) get(name string) bool {
	switch name {
	case ShowLayer:
		return o.ShowLayer
	case ShowPolygonName:
		return o.ShowPolygonName
	case LoadPolygonsOnStart:
		return o.LoadPolygonsOnStart
	case FillPolygons:
		return o.FillPolygons
	}
	return false
}

func (o *Options) set(name string, v bool) {
	switch name {
	case ShowLayer:
		o.ShowLayer = v
	case ShowPolygonName:
		o.ShowPolygonName = v
	case LoadPolygonsOnStart:
		o.LoadPolygonsOnStart = v
	case FillPolygons:
		o.FillPolygons = v
	}
}

func valid(name string) bool {
	for _, n := range Names() {
		if n == name {
			return true
		}
	}
	return false
}

// Service reads and writes the global options through a Store.
type Service struct {
	store Store
}

// NewService wraps store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Options returns the current in-memory options; values missing from the
// store or of the wrong type fall back to their defaults.
func (s *Service) Options() Options {
	opts := DefaultOptions()
	for _, name := range Names() {
		if v, ok := s.store.Get(optionsKey, name); ok {
			if b, ok := v.(bool); ok {
				opts.set(name, b)
			}
		}
	}
	return opts
}

// Option returns a single option value.
func (s *Service) Option(name string) (bool, error) {
	if !valid(name) {
		return false, fmt.Errorf("%w: %q", ErrUnknownOption, name)
	}
	return s.Options().get(name), nil
}

// Set changes an option in memory. It becomes durable on the next Save.
func (s *Service) Set(name string, value bool) error {
	if !valid(name) {
		return fmt.Errorf("%w: %q", ErrUnknownOption, name)
	}
	s.store.Set([]string{optionsKey, name}, value)
	return nil
}

// Save flushes the store.
func (s *Service) Save() error {
	return s.store.Save()
}
