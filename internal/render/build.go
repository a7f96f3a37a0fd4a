package render

import (
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoshard/internal/geo"
)

// BuildStats summarizes one filter and simplify pass.
type BuildStats struct {
	Input          int `json:"input" yaml:"input"`
	Matched        int `json:"matched" yaml:"matched"`
	Passthrough    int `json:"passthrough" yaml:"passthrough"`
	VerticesBefore int `json:"vertices_before" yaml:"vertices_before"`
	VerticesAfter  int `json:"vertices_after" yaml:"vertices_after"`
}

// Build filters c by p and simplifies every surviving geometry.
// Simplification is best effort: a feature that cannot be simplified is
// passed through with its source geometry, never dropped.
func Build(c *geo.Collection, p Predicate, tolerance float64) (*geo.Collection, BuildStats) {
	filtered := Filter(c, p)
	stats := BuildStats{
		Input:   len(c.Features),
		Matched: len(filtered.Features),
	}

	for i, f := range filtered.Features {
		before := VertexCount(f.Geometry)
		stats.VerticesBefore += before

		g, err := Simplify(f.Geometry, tolerance)
		if err != nil {
			stats.Passthrough++
			stats.VerticesAfter += before
			log.Debug().
				Err(err).
				Interface("id", f.ID).
				Msg("Simplification failed, keeping source geometry")
			continue
		}

		stats.VerticesAfter += VertexCount(g)
		filtered.Features[i] = &geojson.Feature{
			ID:         f.ID,
			Type:       f.Type,
			Geometry:   g,
			Properties: f.Properties.Clone(),
		}
		if f.ExtraMembers != nil {
			filtered.Features[i].ExtraMembers = f.ExtraMembers.Clone()
		}
	}

	log.Debug().
		Int("input", stats.Input).
		Int("matched", stats.Matched).
		Int("passthrough", stats.Passthrough).
		Int("vertices_before", stats.VerticesBefore).
		Int("vertices_after", stats.VerticesAfter).
		Float64("tolerance", tolerance).
		Msg("Renderable collection built")

	return filtered, stats
}
