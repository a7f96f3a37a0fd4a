// Package config handles configuration loading and shared data structures.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"
)

// Config represents the root configuration file structure.
type Config struct {
	Merge     Merge             `yaml:"merge" json:"merge"`
	Render    Render            `yaml:"render" json:"render"`
	Animation Animation         `yaml:"animation" json:"animation"`
	Markers   map[string]Marker `yaml:"markers,omitempty" json:"markers,omitempty"`
}

// Merge configures the shard reader and the merged artifact.
type Merge struct {
	InputDir   string   `yaml:"input" json:"input"`
	Output     string   `yaml:"output" json:"output"`
	Name       string   `yaml:"name,omitempty" json:"name,omitempty"`
	CRS        string   `yaml:"crs,omitempty" json:"crs,omitempty"` // used when no shard declares one
	Extensions []string `yaml:"extensions,omitempty" json:"extensions,omitempty"`
	Workers    int      `yaml:"workers,omitempty" json:"workers,omitempty"`
	Indent     bool     `yaml:"indent" json:"indent"`
	Minify     bool     `yaml:"minify,omitempty" json:"minify,omitempty"`
}

// Render configures the classification filter and simplification.
type Render struct {
	Property  string   `yaml:"property" json:"property"`
	Values    []string `yaml:"values" json:"values"`
	Tolerance float64  `yaml:"tolerance" json:"tolerance"`
}

// Animation configures the marker route animation.
type Animation struct {
	Route     []orb.Point   `yaml:"route" json:"route"` // [lon, lat]
	Tick      time.Duration `yaml:"tick" json:"tick"`
	Duration  time.Duration `yaml:"duration" json:"duration"`
	Frames    int           `yaml:"frames" json:"frames"`
	Mode      string        `yaml:"mode" json:"mode"`
	Easing    string        `yaml:"easing,omitempty" json:"easing,omitempty"`
	Autostart bool          `yaml:"autostart,omitempty" json:"autostart,omitempty"`
}

// Marker is an icon definition handed to the renderer.
// Icons are explicit configuration, never process-wide defaults.
type Marker struct {
	Icon        string `yaml:"icon" json:"icon"`
	Size        [2]int `yaml:"size" json:"size"`
	Anchor      [2]int `yaml:"anchor" json:"anchor"`
	PopupAnchor [2]int `yaml:"popup_anchor" json:"popup_anchor"`
}

// Default returns the built-in configuration.
func Default() *Config {
	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}

	return &Config{
		Merge: Merge{
			InputDir:   "public/HK-2d-Map/150000_GEOJSON",
			Output:     "merged.json",
			Name:       "HK_Combined_Map",
			CRS:        "EPSG:2326",
			Extensions: []string{".json", ".geojson"},
			Workers:    workers,
			Indent:     true,
		},
		Render: Render{
			Property:  "CLASS",
			Values:    []string{"BDRY"},
			Tolerance: 0.0001,
		},
		Animation: Animation{
			Route: []orb.Point{
				{114.1455, 22.2758},
				{114.1585, 22.2823},
				{114.1722, 22.2975},
				{114.1694, 22.3193},
			},
			Tick:     3 * time.Second,
			Duration: 2 * time.Second,
			Frames:   20,
			Mode:     "interpolate",
			Easing:   "linear",
		},
		Markers: map[string]Marker{
			"default":  {Icon: "/maps-and-flags.png", Size: [2]int{41, 41}, Anchor: [2]int{12, 41}, PopupAnchor: [2]int{1, -34}},
			"building": {Icon: "/a-tall-building-background.png", Size: [2]int{100, 100}, Anchor: [2]int{16, 32}, PopupAnchor: [2]int{0, -32}},
			"vehicle":  {Icon: "/car.png", Size: [2]int{41, 41}, Anchor: [2]int{12, 41}, PopupAnchor: [2]int{1, -34}},
		},
	}
}

// Load reads and parses the YAML configuration file from the specified path.
// Values missing from the file keep their defaults; a markers section
// replaces the default icons as a whole. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// a markers section replaces the default icon set instead of extending it
	var probe struct {
		Markers map[string]Marker `yaml:"markers"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if probe.Markers != nil {
		cfg.Markers = nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks values that cannot be corrected by defaults.
func (c *Config) Validate() error {
	if c.Render.Tolerance < 0 {
		return fmt.Errorf("render.tolerance must be >= 0, got %v", c.Render.Tolerance)
	}
	if c.Render.Property == "" {
		return fmt.Errorf("render.property is required")
	}
	if c.Merge.Workers < 0 {
		return fmt.Errorf("merge.workers must be >= 0, got %d", c.Merge.Workers)
	}
	switch c.Animation.Mode {
	case "", "jump", "interpolate":
	default:
		return fmt.Errorf("animation.mode must be jump or interpolate, got %q", c.Animation.Mode)
	}

	return nil
}
