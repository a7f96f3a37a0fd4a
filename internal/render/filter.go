// Package render derives renderable collections from a merged collection
// by classification filtering and geometry simplification.
package render

import (
	"slices"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/woozymasta/geoshard/internal/geo"
)

// Predicate decides whether a feature survives filtering.
type Predicate interface {
	Match(f *geojson.Feature) bool
	// Key identifies the predicate for memoization.
	Key() string
}

type propertyIn struct {
	name   string
	values []string
}

// PropertyEquals matches features whose property name holds exactly value.
// Features missing the property, or holding a non-string value, never match.
func PropertyEquals(name, value string) Predicate {
	return propertyIn{name: name, values: []string{value}}
}

// PropertyIn matches features whose property name holds any of values.
func PropertyIn(name string, values ...string) Predicate {
	v := slices.Clone(values)
	slices.Sort(v)
	return propertyIn{name: name, values: slices.Compact(v)}
}

func (p propertyIn) Match(f *geojson.Feature) bool {
	if f == nil || f.Properties == nil {
		return false
	}

	raw, ok := f.Properties[p.name]
	if !ok {
		return false
	}
	s, ok := raw.(string)
	if !ok {
		return false
	}

	return slices.Contains(p.values, s)
}

func (p propertyIn) Key() string {
	return p.name + "=" + strings.Join(p.values, "|")
}

// Filter returns the features of c matching p, preserving their relative order.
// Features are shared with the source, not copied.
func Filter(c *geo.Collection, p Predicate) *geo.Collection {
	out := &geo.Collection{
		Name:     c.Name,
		CRS:      c.CRS,
		Features: make([]*geojson.Feature, 0),
	}

	for _, f := range c.Features {
		if p.Match(f) {
			out.Features = append(out.Features, f)
		}
	}

	return out
}
