package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/woozymasta/geoshard/internal/animator"
	"github.com/woozymasta/geoshard/internal/config"
	"github.com/woozymasta/geoshard/internal/geo"
	"github.com/woozymasta/geoshard/internal/merge"
)

func testServer(t *testing.T, withArtifact bool) *ServerContext {
	t.Helper()

	cfg := config.Default()
	cfg.Merge.Output = filepath.Join(t.TempDir(), "merged.json")
	cfg.Animation.Route = []orb.Point{{0, 0}, {1, 1}, {2, 2}}

	if withArtifact {
		boundary := geojson.NewFeature(orb.Polygon{{{0, 0}, {1, 0.00001}, {2, 0}, {2, 2}, {0, 2}, {0, 0}}})
		boundary.Properties["CLASS"] = "BDRY"
		road := geojson.NewFeature(orb.LineString{{0, 0}, {2, 2}})
		road.Properties["CLASS"] = "ROAD"

		c := &geo.Collection{Name: "test", CRS: geo.NamedCRS("EPSG:2326"), Features: []*geojson.Feature{boundary, road}}
		if err := merge.WriteArtifact(cfg.Merge.Output, c, merge.WriteOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	// an hour-long tick keeps the run advancing for the whole test
	anim := animator.New(animator.Options{Tick: time.Hour, Mode: animator.ModeJump}, nil)
	t.Cleanup(anim.Stop)

	return NewServerContext(cfg, anim)
}

func do(t *testing.T, h http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleCollection(t *testing.T) {
	s := testServer(t, true)
	h := RequestLogger(s.Routes())

	rec := do(t, h, http.MethodGet, "/api/collection", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var c geo.Collection
	if err := json.Unmarshal(rec.Body.Bytes(), &c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(c.Features) != 1 || c.Features[0].Properties["CLASS"] != "BDRY" {
		t.Errorf("expected only the boundary feature, got %d features", len(c.Features))
	}
	if c.CRS.Identifier() != "EPSG:2326" {
		t.Errorf("CRS = %q", c.CRS.Identifier())
	}

	// same key twice hits the cache
	do(t, h, http.MethodGet, "/api/collection", nil)
	if stats := s.Cache.Stats(); stats.Builds != 1 || stats.Hits != 1 {
		t.Errorf("unexpected cache stats: %+v", stats)
	}

	do(t, h, http.MethodGet, "/api/collection?tolerance=0.5", nil)
	if stats := s.Cache.Stats(); stats.Builds != 2 {
		t.Errorf("tolerance override should build a new entry: %+v", stats)
	}
}

func TestHandleCollectionErrors(t *testing.T) {
	s := testServer(t, false)
	h := s.Routes()

	if rec := do(t, h, http.MethodGet, "/api/collection", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("missing artifact: status = %d", rec.Code)
	}

	for _, q := range []string{"abc", "-1", "NaN", "Inf"} {
		if rec := do(t, h, http.MethodGet, "/api/collection?tolerance="+q, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("tolerance=%s: status = %d", q, rec.Code)
		}
	}

	if rec := do(t, h, http.MethodPost, "/api/collection", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST collection: status = %d", rec.Code)
	}
}

func TestCollectionReload(t *testing.T) {
	s := testServer(t, true)

	first, err := s.Collection()
	if err != nil {
		t.Fatal(err)
	}

	c := &geo.Collection{Features: []*geojson.Feature{geojson.NewFeature(orb.Point{5, 5})}}
	if err := merge.WriteArtifact(s.ArtifactPath, c, merge.WriteOptions{Indent: true}); err != nil {
		t.Fatal(err)
	}

	second, err := s.Collection()
	if err != nil {
		t.Fatal(err)
	}
	if second.ID == first.ID || len(second.Features) != 1 {
		t.Error("replaced artifact was not reloaded")
	}
}

func TestRouteLifecycle(t *testing.T) {
	s := testServer(t, false)
	h := s.Routes()

	rec := do(t, h, http.MethodPost, "/api/route/start", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var snap struct {
		State string      `json:"state"`
		Trace []orb.Point `json:"trace"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.State != "advancing" || len(snap.Trace) != 1 {
		t.Errorf("unexpected snapshot after start: %+v", snap)
	}

	if rec := do(t, h, http.MethodPost, "/api/route/start", nil); rec.Code != http.StatusConflict {
		t.Errorf("second start: status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/route/start?trace=sideways", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad trace mode: status = %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/api/route/stop", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop: status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.State != "stopped" {
		t.Errorf("state after stop = %s", snap.State)
	}

	rec = do(t, h, http.MethodGet, "/api/trace", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("trace: status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Trace) != 1 || !snap.Trace[0].Equal(orb.Point{0, 0}) {
		t.Errorf("trace = %v", snap.Trace)
	}

	if rec := do(t, h, http.MethodPost, "/api/route/start?trace=continue", nil); rec.Code != http.StatusAccepted {
		t.Errorf("restart: status = %d", rec.Code)
	}
}

func TestRouteStartInvalidRoute(t *testing.T) {
	s := testServer(t, false)
	s.Config.Animation.Route = nil

	if rec := do(t, s.Routes(), http.MethodPost, "/api/route/start", nil); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHandleMarkers(t *testing.T) {
	s := testServer(t, false)

	rec := do(t, s.Routes(), http.MethodGet, "/api/markers", nil)
	var markers map[string]config.Marker
	if err := json.Unmarshal(rec.Body.Bytes(), &markers); err != nil {
		t.Fatal(err)
	}
	if markers["default"].Icon == "" || markers["vehicle"].Size != [2]int{41, 41} {
		t.Errorf("unexpected markers: %+v", markers)
	}
}

func TestHandlePreview(t *testing.T) {
	s := testServer(t, true)

	rec := do(t, s.Routes(), http.MethodGet, "/api/preview.webp", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/webp" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rec.Body.Bytes()
	if len(body) < 12 || string(body[:4]) != "RIFF" || string(body[8:12]) != "WEBP" {
		t.Error("response is not a WebP image")
	}
}

func TestHandleArtifactETag(t *testing.T) {
	s := testServer(t, true)
	h := s.Routes()

	rec := do(t, h, http.MethodGet, "/merged.json", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	etag := rec.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	rec = do(t, h, http.MethodGet, "/merged.json", http.Header{"If-None-Match": {etag}})
	if rec.Code != http.StatusNotModified {
		t.Errorf("conditional request: status = %d", rec.Code)
	}

	missing := testServer(t, false)
	if rec := do(t, missing.Routes(), http.MethodGet, "/merged.json", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing artifact: status = %d", rec.Code)
	}
}
