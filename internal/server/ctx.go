package server

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoshard/internal/animator"
	"github.com/woozymasta/geoshard/internal/cache"
	"github.com/woozymasta/geoshard/internal/config"
	"github.com/woozymasta/geoshard/internal/geo"
	"github.com/woozymasta/geoshard/internal/merge"
	"github.com/woozymasta/geoshard/internal/render"
)

// ServerContext holds dependencies for request handlers.
type ServerContext struct {
	Config    *config.Config
	Cache     *cache.Cache
	Animator  *animator.Animator
	Predicate render.Predicate

	// ArtifactPath is the merged artifact served to renderers.
	ArtifactPath string

	mu         sync.Mutex
	collection *geo.Collection
	modTime    time.Time
	size       int64
}

// NewServerContext initializes the context from configuration.
// The artifact is loaded lazily and reloaded whenever the file changes.
func NewServerContext(cfg *config.Config, anim *animator.Animator) *ServerContext {
	log.Info().
		Str("artifact", cfg.Merge.Output).
		Str("property", cfg.Render.Property).
		Strs("values", cfg.Render.Values).
		Float64("tolerance", cfg.Render.Tolerance).
		Msg("Initializing server context")

	return &ServerContext{
		Config:       cfg,
		Cache:        cache.New(nil),
		Animator:     anim,
		Predicate:    render.PropertyIn(cfg.Render.Property, cfg.Render.Values...),
		ArtifactPath: cfg.Merge.Output,
	}
}

// Collection returns the merged collection, reloading it when the artifact
// on disk has been replaced. A reloaded artifact has a new identity, so
// render cache entries for the old one are simply no longer requested.
func (s *ServerContext) Collection() (*geo.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.ArtifactPath)
	if err != nil {
		if s.collection != nil {
			log.Warn().Err(err).Str("path", s.ArtifactPath).Msg("Artifact unavailable, serving last loaded collection")
			return s.collection, nil
		}
		return nil, err
	}

	if s.collection != nil && info.ModTime().Equal(s.modTime) && info.Size() == s.size {
		return s.collection, nil
	}

	c, err := merge.ReadArtifact(s.ArtifactPath)
	if err != nil {
		return nil, err
	}

	s.collection = c
	s.modTime = info.ModTime()
	s.size = info.Size()

	log.Info().
		Str("path", s.ArtifactPath).
		Str("id", c.ID).
		Int("features", len(c.Features)).
		Msg("Artifact loaded")

	return c, nil
}

// Renderable returns the cached filtered and simplified collection.
func (s *ServerContext) Renderable(ctx context.Context, tolerance float64) (*geo.Collection, error) {
	c, err := s.Collection()
	if err != nil {
		return nil, err
	}

	return s.Cache.Get(ctx, c, s.Predicate, tolerance)
}
