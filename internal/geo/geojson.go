// Package geo handles the collection model shared by the merge and render stages.
package geo

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/zeebo/xxh3"
)

// FeatureCollectionType is the only document type accepted as a shard or artifact.
const FeatureCollectionType = "FeatureCollection"

// CRS is a named coordinate reference system declaration.
// It follows the legacy GeoJSON "crs" member structure.
type CRS struct {
	Type       string        `json:"type" yaml:"type"`
	Properties CRSProperties `json:"properties" yaml:"properties"`
}

// CRSProperties holds the identifier of a named CRS (e.g. "EPSG:2326").
type CRSProperties struct {
	Name string `json:"name" yaml:"name"`
}

// NamedCRS returns a CRS declaration for the given identifier.
func NamedCRS(name string) *CRS {
	return &CRS{Type: "name", Properties: CRSProperties{Name: name}}
}

// Identifier returns the CRS name or an empty string for a nil CRS.
func (c *CRS) Identifier() string {
	if c == nil {
		return ""
	}
	return c.Properties.Name
}

// Collection is an ordered set of features sharing one coordinate reference.
// It is the in-memory form of both the merged artifact and the renderable output.
type Collection struct {
	// ID identifies the collection content; empty means identity by reference.
	ID       string
	Name     string
	CRS      *CRS
	Features []*geojson.Feature
}

type wireCollection struct {
	Type     string             `json:"type"`
	Name     string             `json:"name,omitempty"`
	CRS      *CRS               `json:"crs,omitempty"`
	Features []*geojson.Feature `json:"features"`
}

// MarshalJSON encodes the collection as a GeoJSON FeatureCollection
// carrying the optional name and crs members.
func (c *Collection) MarshalJSON() ([]byte, error) {
	features := c.Features
	if features == nil {
		features = []*geojson.Feature{}
	}

	return json.Marshal(wireCollection{
		Type:     FeatureCollectionType,
		Name:     c.Name,
		CRS:      c.CRS,
		Features: features,
	})
}

// UnmarshalJSON decodes a FeatureCollection document.
// Any other declared type is rejected.
func (c *Collection) UnmarshalJSON(data []byte) error {
	var w wireCollection
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Type != FeatureCollectionType {
		return fmt.Errorf("not a feature collection: type=%q", w.Type)
	}

	c.Name = w.Name
	c.CRS = w.CRS
	c.Features = w.Features
	return nil
}

// Identity returns the key that distinguishes this collection from others
// in memoizing consumers. Content fingerprints are preferred; without one
// the pointer identity is used.
func (c *Collection) Identity() string {
	if c.ID != "" {
		return c.ID
	}
	return fmt.Sprintf("ref:%p", c)
}

// Bound returns the bounding box of all feature geometries.
func (c *Collection) Bound() orb.Bound {
	var (
		bound orb.Bound
		first = true
	)
	for _, f := range c.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		b := f.Geometry.Bound()
		if first {
			bound = b
			first = false
			continue
		}
		bound = bound.Union(b)
	}

	return bound
}

// Fingerprint returns a stable content hash for serialized collection data.
func Fingerprint(data []byte) string {
	return "xxh3:" + strconv.FormatUint(xxh3.Hash(data), 16)
}
