// Package directory parses the polygon directory envelope returned by the
// remote spreadsheet service.
package directory

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	// SuccessMarker is the only accepted value of the envelope's result field.
	SuccessMarker = "success"

	// DefaultBase is the script endpoint the directory is served from.
	DefaultBase = "https://script.google.com/macros/s"

	// DefaultRequestID identifies the published directory script.
	DefaultRequestID = "AKfycbzxG8NJKkIUXaSIDGuSooG9dmNrQzHbgWMwx4kScv0b"
)

var (
	// ErrInvalidJSON is returned when the body is not valid JSON.
	ErrInvalidJSON = errors.New("directory: invalid json")
	// ErrMalformedEnvelope is returned when the envelope does not report
	// success or lacks the polygon list.
	ErrMalformedEnvelope = errors.New("directory: malformed envelope")
)

// Status is the lifecycle state of a polygon as reported by the directory.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Record is one polygon entry. Records are never modified after parsing.
type Record struct {
	Polygon  string `json:"polygon" yaml:"polygon" doc:"Geometry as well-known text"`
	Name     string `json:"name" yaml:"name" doc:"Display name"`
	Comments string `json:"comments" yaml:"comments" doc:"Free-form comments, shown as tooltip"`
	Status   Status `json:"status" yaml:"status" doc:"Polygon status" example:"active"`
	Color    string `json:"color" yaml:"color" doc:"Stroke and fill color (CSS)" example:"#ff0000"`
}

// Active reports whether the record is visible by default.
func (r Record) Active() bool {
	return r.Status == StatusActive
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Data   json.RawMessage `json:"data"`
}

type payload struct {
	Polygons json.RawMessage `json:"polygons"`
}

// Parse validates the envelope and returns its polygons in source order.
// Only a syntax failure is ErrInvalidJSON; well-formed JSON of the wrong
// shape is ErrMalformedEnvelope.
func Parse(body []byte) ([]Record, error) {
	if !json.Valid(body) {
		var v any
		err := json.Unmarshal(body, &v)
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	var result string
	if err := json.Unmarshal(env.Result, &result); err != nil || result != SuccessMarker {
		return nil, fmt.Errorf("%w: result %s", ErrMalformedEnvelope, orMissing(env.Result))
	}

	var data payload
	if err := json.Unmarshal(env.Data, &data); err != nil || isNull(data.Polygons) {
		return nil, fmt.Errorf("%w: missing data.polygons", ErrMalformedEnvelope)
	}
	var records []Record
	if err := json.Unmarshal(data.Polygons, &records); err != nil {
		return nil, fmt.Errorf("%w: data.polygons: %v", ErrMalformedEnvelope, err)
	}
	return records, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func orMissing(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "missing"
	}
	return string(raw)
}

// URL returns the directory request URL for a script deployment.
func URL(base, requestID string) string {
	return strings.TrimRight(base, "/") + "/" + requestID + "/exec?func=getAllPolygons"
}
