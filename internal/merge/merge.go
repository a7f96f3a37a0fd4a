// Package merge concatenates validated shards into one collection and
// persists it as a single artifact.
package merge

import (
	"errors"
	"iter"
	"path/filepath"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoshard/internal/geo"
	"github.com/woozymasta/geoshard/internal/shard"
)

// ErrEmptyInput is returned when no valid shard was found.
// It aborts the merge run; no artifact is written.
var ErrEmptyInput = errors.New("no valid shards to merge")

// Stats reports what a merge run consumed.
type Stats struct {
	Shards   int `json:"shards" yaml:"shards"`
	Skipped  int `json:"skipped" yaml:"skipped"`
	Features int `json:"features" yaml:"features"`
}

// Merger concatenates shard features into a single collection.
type Merger struct {
	// Name is the dataset name written to the artifact.
	Name string
	// DefaultCRS is used when no shard declares a reference system.
	DefaultCRS string
}

// Merge consumes results in order and concatenates every feature of every valid shard.
// The CRS is inherited from the first shard that declares one; mismatches are
// reported but not reconciled.
func (m Merger) Merge(results iter.Seq[shard.Result]) (*geo.Collection, Stats, error) {
	var (
		stats    Stats
		crs      *geo.CRS
		features []*geojson.Feature
	)

	for res := range results {
		file := filepath.Base(res.Path)

		if res.Err != nil {
			stats.Skipped++
			log.Warn().Err(res.Err).Str("file", file).Msg("Skipping shard")
			continue
		}

		s := res.Shard
		stats.Shards++
		stats.Features += len(s.Features)
		features = append(features, s.Features...)

		switch {
		case s.CRS == nil:
		case crs == nil:
			crs = s.CRS
		case crs.Identifier() != s.CRS.Identifier():
			log.Warn().
				Str("file", file).
				Str("crs", s.CRS.Identifier()).
				Str("expected", crs.Identifier()).
				Msg("Shard declares a different CRS, keeping the first one")
		}

		log.Info().
			Str("file", file).
			Int("features", len(s.Features)).
			Msg("Added features from shard")
	}

	if stats.Shards == 0 {
		return nil, stats, ErrEmptyInput
	}

	if crs == nil && m.DefaultCRS != "" {
		crs = geo.NamedCRS(m.DefaultCRS)
	}
	if features == nil {
		features = []*geojson.Feature{}
	}

	return &geo.Collection{
		Name:     m.Name,
		CRS:      crs,
		Features: features,
	}, stats, nil
}
