// Package shard loads and validates per-tile GeoJSON feature collections.
package shard

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb/geojson"

	"github.com/woozymasta/geoshard/internal/geo"
)

// ErrMalformed marks a shard that failed structural validation.
// Such shards are skipped; they never abort a merge run.
var ErrMalformed = errors.New("malformed shard")

// ShardError records why a single file was skipped.
type ShardError struct {
	Path string
	Err  error
}

func (e *ShardError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Path, ErrMalformed, e.Err)
}

// Unwrap exposes both ErrMalformed and the underlying cause.
func (e *ShardError) Unwrap() []error {
	return []error{ErrMalformed, e.Err}
}

// Shard is one file's worth of features.
type Shard struct {
	Path     string
	Name     string
	CRS      *geo.CRS
	Features []*geojson.Feature
}

// Parse decodes and validates a shard document.
// The declared type must be "FeatureCollection" and the features member must be present.
func Parse(path string, data []byte) (*Shard, error) {
	var probe struct {
		Type     string          `json:"type"`
		Features json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, &ShardError{Path: path, Err: err}
	}
	if probe.Type != geo.FeatureCollectionType {
		return nil, &ShardError{Path: path, Err: fmt.Errorf("type %q is not %s", probe.Type, geo.FeatureCollectionType)}
	}
	if len(probe.Features) == 0 || string(probe.Features) == "null" {
		return nil, &ShardError{Path: path, Err: errors.New("features member is missing")}
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, &ShardError{Path: path, Err: err}
	}

	s := &Shard{
		Path:     path,
		Features: fc.Features,
	}

	for i, f := range fc.Features {
		if f == nil {
			return nil, &ShardError{Path: path, Err: fmt.Errorf("feature %d is null", i)}
		}
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
	}

	if name, ok := fc.ExtraMembers["name"].(string); ok {
		s.Name = name
	}
	if raw, ok := fc.ExtraMembers["crs"]; ok && raw != nil {
		crs, err := decodeCRS(raw)
		if err != nil {
			return nil, &ShardError{Path: path, Err: fmt.Errorf("crs: %w", err)}
		}
		s.CRS = crs
	}

	return s, nil
}

// decodeCRS converts the generic foreign member back into a typed CRS.
func decodeCRS(raw any) (*geo.CRS, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}

	var crs geo.CRS
	if err := json.Unmarshal(b, &crs); err != nil {
		return nil, err
	}
	if crs.Properties.Name == "" {
		return nil, errors.New("missing properties.name")
	}

	return &crs, nil
}
