package merge

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoshard/internal/shard"
)

// Options configures a complete merge run.
type Options struct {
	InputDir   string
	Output     string
	Name       string
	DefaultCRS string
	Extensions []string
	Workers    int
	Write      WriteOptions
}

// Run reads every shard in InputDir, merges them and writes the artifact to Output.
// An empty input aborts before anything is written.
func Run(ctx context.Context, opts Options) (Stats, error) {
	reader := shard.Reader{Extensions: opts.Extensions, Workers: opts.Workers}

	results, err := reader.Read(ctx, opts.InputDir)
	if err != nil {
		return Stats{}, fmt.Errorf("read input directory: %w", err)
	}

	merger := Merger{Name: opts.Name, DefaultCRS: opts.DefaultCRS}
	collection, stats, err := merger.Merge(results)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return stats, ctxErr
	}
	if err != nil {
		return stats, fmt.Errorf("%s: %w", opts.InputDir, err)
	}

	if err := WriteArtifact(opts.Output, collection, opts.Write); err != nil {
		return stats, fmt.Errorf("write artifact: %w", err)
	}

	log.Info().
		Int("shards", stats.Shards).
		Int("skipped", stats.Skipped).
		Int("features", stats.Features).
		Str("crs", collection.CRS.Identifier()).
		Str("output", opts.Output).
		Msg("Merged features saved")

	return stats, nil
}
