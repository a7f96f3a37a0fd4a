package merge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/woozymasta/geoshard/internal/geo"
	"github.com/woozymasta/geoshard/internal/render"
	"github.com/woozymasta/geoshard/internal/shard"
)

// shardJSON builds a FeatureCollection with n wiggly polygons; the first one
// is classified as a boundary.
func shardJSON(t *testing.T, prefix string, n int, crs string) []byte {
	t.Helper()

	fc := geojson.NewFeatureCollection()
	for i := 0; i < n; i++ {
		ring := orb.Ring{}
		for j := 0; j < 20; j++ {
			x := float64(i) + float64(j)*0.01
			ring = append(ring, orb.Point{x, 0.00001 * float64(j%2)})
		}
		ring = append(ring, orb.Point{float64(i) + 0.19, 1}, orb.Point{float64(i), 1}, ring[0])

		f := geojson.NewFeature(orb.Polygon{ring})
		f.Properties["id"] = fmt.Sprintf("%s-%d", prefix, i)
		if i == 0 {
			f.Properties["CLASS"] = "BDRY"
		} else {
			f.Properties["CLASS"] = "ROAD"
		}
		fc.Append(f)
	}
	if crs != "" {
		fc.ExtraMembers = geojson.Properties{
			"crs": map[string]any{"type": "name", "properties": map[string]any{"name": crs}},
		}
	}

	data, err := json.Marshal(fc)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func fixtureDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	files := map[string][]byte{
		"00_broken.json": []byte(`{"type": "FeatureCollection", "features": [`),
		"01_tile.json":   shardJSON(t, "a", 5, "EPSG:2326"),
		"02_tile.json":   shardJSON(t, "b", 7, ""),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestRunEndToEnd(t *testing.T) {
	dir := fixtureDir(t)
	out := filepath.Join(t.TempDir(), "merged.json")

	stats, err := Run(context.Background(), Options{
		InputDir:   dir,
		Output:     out,
		Name:       "HK_Combined_Map",
		DefaultCRS: "EPSG:4326",
		Workers:    2,
		Write:      WriteOptions{Indent: true},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Shards != 2 || stats.Skipped != 1 || stats.Features != 12 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	merged, err := ReadArtifact(out)
	if err != nil {
		t.Fatalf("ReadArtifact: %v", err)
	}
	if len(merged.Features) != 12 {
		t.Fatalf("expected 12 features, got %d", len(merged.Features))
	}
	if merged.Name != "HK_Combined_Map" {
		t.Errorf("Name = %q", merged.Name)
	}
	if merged.CRS.Identifier() != "EPSG:2326" {
		t.Errorf("CRS = %q, want the first shard's EPSG:2326", merged.CRS.Identifier())
	}

	// shard order then feature order
	for i, f := range merged.Features {
		want := fmt.Sprintf("a-%d", i)
		if i >= 5 {
			want = fmt.Sprintf("b-%d", i-5)
		}
		if got := f.Properties.MustString("id", ""); got != want {
			t.Errorf("feature %d id = %q, want %q", i, got, want)
		}
	}

	rc, _ := render.Build(merged, render.PropertyEquals("CLASS", "BDRY"), 0.001)
	if len(rc.Features) != 2 {
		t.Fatalf("expected 2 boundary features, got %d", len(rc.Features))
	}
	for i, f := range rc.Features {
		src := merged.Features[i*5]
		if render.VertexCount(f.Geometry) > render.VertexCount(src.Geometry) {
			t.Errorf("feature %d gained vertices", i)
		}
	}
}

func TestRunIdempotent(t *testing.T) {
	dir := fixtureDir(t)
	outDir := t.TempDir()

	var outputs [][]byte
	for i := 0; i < 2; i++ {
		out := filepath.Join(outDir, fmt.Sprintf("run%d.json", i))
		if _, err := Run(context.Background(), Options{InputDir: dir, Output: out, Workers: 4}); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
		data, err := os.ReadFile(out)
		if err != nil {
			t.Fatal(err)
		}
		outputs = append(outputs, data)
	}

	if !bytes.Equal(outputs[0], outputs[1]) {
		t.Error("two runs over the same directory produced different artifacts")
	}
}

func TestRunEmptyInput(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{"type":"Feature"}`), 0644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "merged.json")

	stats, err := Run(context.Background(), Options{InputDir: dir, Output: out})
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
	if stats.Skipped != 1 {
		t.Errorf("expected 1 skipped shard, got %d", stats.Skipped)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("artifact must not be written for empty input")
	}
}

func TestRunUnwritableOutput(t *testing.T) {
	dir := fixtureDir(t)
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}

	// parent of the output is a regular file
	_, err := Run(context.Background(), Options{InputDir: dir, Output: filepath.Join(blocker, "merged.json")})
	if err == nil {
		t.Fatal("expected error for unwritable output")
	}
	if errors.Is(err, ErrEmptyInput) {
		t.Errorf("write failure reported as empty input: %v", err)
	}
}

func TestMergeDefaultCRS(t *testing.T) {
	results := func(yield func(shard.Result) bool) {
		yield(shard.Result{Path: "x.json", Shard: &shard.Shard{Path: "x.json", Features: []*geojson.Feature{geojson.NewFeature(orb.Point{1, 2})}}})
	}

	c, stats, err := Merger{Name: "n", DefaultCRS: "EPSG:2326"}.Merge(results)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if stats.Features != 1 || c.CRS.Identifier() != "EPSG:2326" {
		t.Errorf("unexpected result: stats=%+v crs=%q", stats, c.CRS.Identifier())
	}
}

func TestMergeKeepsFirstCRS(t *testing.T) {
	results := func(yield func(shard.Result) bool) {
		for _, crs := range []string{"EPSG:2326", "EPSG:4326"} {
			s := &shard.Shard{Path: crs, CRS: geo.NamedCRS(crs), Features: []*geojson.Feature{}}
			if !yield(shard.Result{Path: crs, Shard: s}) {
				return
			}
		}
	}

	c, _, err := Merger{}.Merge(results)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if c.CRS.Identifier() != "EPSG:2326" {
		t.Errorf("CRS = %q, want EPSG:2326", c.CRS.Identifier())
	}
	if c.Features == nil {
		t.Error("features must encode as an empty array, not null")
	}
}

func TestWriteArtifactFormats(t *testing.T) {
	dir := t.TempDir()
	c := &geo.Collection{
		Name: "demo",
		CRS:  geo.NamedCRS("EPSG:2326"),
		Features: []*geojson.Feature{
			geojson.NewFeature(orb.LineString{{0, 0}, {1.5, 2.25}}),
		},
	}

	indented := filepath.Join(dir, "indented.json")
	minified := filepath.Join(dir, "minified.json")
	if err := WriteArtifact(indented, c, WriteOptions{Indent: true}); err != nil {
		t.Fatal(err)
	}
	if err := WriteArtifact(minified, c, WriteOptions{Minify: true}); err != nil {
		t.Fatal(err)
	}
	if c.ID == "" {
		t.Error("WriteArtifact should set the collection ID")
	}

	rawIndented, _ := os.ReadFile(indented)
	rawMinified, _ := os.ReadFile(minified)
	if !strings.Contains(string(rawIndented), "\n  \"") {
		t.Error("indented artifact is not pretty-printed")
	}
	if len(rawMinified) >= len(rawIndented) {
		t.Error("minified artifact is not smaller than indented one")
	}

	a, err := ReadArtifact(indented)
	if err != nil {
		t.Fatal(err)
	}
	b, err := ReadArtifact(minified)
	if err != nil {
		t.Fatal(err)
	}
	if a.Name != b.Name || a.CRS.Identifier() != b.CRS.Identifier() || len(a.Features) != len(b.Features) {
		t.Fatal("indented and minified artifacts decode differently")
	}
	if !orb.Equal(a.Features[0].Geometry, b.Features[0].Geometry) {
		t.Error("geometry differs between formats")
	}

	// no temporary files left behind
	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("expected 2 files in output dir, got %d", len(entries))
	}
}

func TestWriteArtifactReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "merged.json")
	if err := os.WriteFile(path, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	c := &geo.Collection{Features: []*geojson.Feature{}}
	if err := WriteArtifact(path, c, WriteOptions{}); err != nil {
		t.Fatal(err)
	}

	got, err := ReadArtifact(path)
	if err != nil {
		t.Fatalf("replaced artifact is unreadable: %v", err)
	}
	if got.ID != c.ID {
		t.Errorf("ID mismatch after read back: %s != %s", got.ID, c.ID)
	}
}
