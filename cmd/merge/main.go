package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/woozymasta/geoshard/internal/config"
	"github.com/woozymasta/geoshard/internal/logger"
	"github.com/woozymasta/geoshard/internal/merge"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string   `short:"c" long:"config"     env:"CONFIG_FILE"   description:"Path to configuration file"`
	InputDir   string   `short:"i" long:"input"      env:"INPUT_DIR"     description:"Directory containing shard files"`
	Output     string   `short:"o" long:"output"     env:"OUTPUT_FILE"   description:"Merged artifact path"`
	Name       string   `short:"n" long:"name"       env:"DATASET_NAME"  description:"Dataset name written to the artifact"`
	CRS        string   `long:"crs"                  env:"DEFAULT_CRS"   description:"CRS used when no shard declares one"`
	Extensions []string `short:"e" long:"ext"        env:"EXTENSIONS" env-delim:"," description:"Recognized shard file extensions"`
	Workers    int      `short:"p" long:"workers"    env:"WORKERS"       description:"Parallel shard parsers"`
	Minify     bool     `short:"m" long:"minify"     description:"Write minified JSON"`
	Compact    bool     `long:"compact"              description:"Write compact JSON without indentation"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Flags override the configuration file
	if opts.InputDir != "" {
		cfg.Merge.InputDir = opts.InputDir
	}
	if opts.Output != "" {
		cfg.Merge.Output = opts.Output
	}
	if opts.Name != "" {
		cfg.Merge.Name = opts.Name
	}
	if opts.CRS != "" {
		cfg.Merge.CRS = opts.CRS
	}
	if len(opts.Extensions) > 0 {
		cfg.Merge.Extensions = opts.Extensions
	}
	if opts.Workers > 0 {
		cfg.Merge.Workers = opts.Workers
	}
	if opts.Minify {
		cfg.Merge.Minify = true
	}
	if opts.Compact {
		cfg.Merge.Indent = false
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("input", cfg.Merge.InputDir).
		Str("output", cfg.Merge.Output).
		Int("workers", cfg.Merge.Workers).
		Msg("Starting merge")

	stats, err := merge.Run(ctx, merge.Options{
		InputDir:   cfg.Merge.InputDir,
		Output:     cfg.Merge.Output,
		Name:       cfg.Merge.Name,
		DefaultCRS: cfg.Merge.CRS,
		Extensions: cfg.Merge.Extensions,
		Workers:    cfg.Merge.Workers,
		Write: merge.WriteOptions{
			Indent: cfg.Merge.Indent,
			Minify: cfg.Merge.Minify,
		},
	})
	if err != nil {
		event := log.Error().Err(err).Int("skipped", stats.Skipped)
		if errors.Is(err, merge.ErrEmptyInput) {
			event.Msg("Nothing to merge, artifact not written")
		} else {
			event.Msg("Merge failed")
		}
		os.Exit(1)
	}

	log.Info().
		Int("shards", stats.Shards).
		Int("features", stats.Features).
		Msg("Merge finished successfully")
}
