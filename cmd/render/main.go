package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/woozymasta/geoshard/internal/config"
	"github.com/woozymasta/geoshard/internal/merge"
	"github.com/woozymasta/geoshard/internal/render"

	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"
)

type Options struct {
	ConfigFile string   `short:"c" long:"config" description:"Path to configuration file"`
	Input      string   `short:"i" long:"in" description:"Merged artifact path (defaults to merge.output from config)"`
	Output     string   `short:"o" long:"out" description:"Output file path. Writes to stdout if empty"`
	Format     string   `short:"f" long:"format" description:"Output format" choice:"json" choice:"yaml" default:"json"`
	Property   string   `short:"k" long:"property" description:"Classification property name"`
	Values     []string `short:"v" long:"value" description:"Accepted classification values"`
	Tolerance  *float64 `short:"t" long:"tolerance" description:"Simplification tolerance"`
	Stats      bool     `short:"s" long:"stats" description:"Print build statistics to stderr"`
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

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	input := opts.Input
	if input == "" {
		input = cfg.Merge.Output
	}
	property := cfg.Render.Property
	if opts.Property != "" {
		property = opts.Property
	}
	values := cfg.Render.Values
	if len(opts.Values) > 0 {
		values = opts.Values
	}
	tolerance := cfg.Render.Tolerance
	if opts.Tolerance != nil {
		tolerance = *opts.Tolerance
	}
	if tolerance < 0 {
		fmt.Fprintln(os.Stderr, "Error: --tolerance must be >= 0")
		os.Exit(1)
	}

	collection, err := merge.ReadArtifact(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading artifact: %v\n", err)
		os.Exit(1)
	}

	renderable, stats := render.Build(collection, render.PropertyIn(property, values...), tolerance)

	// marshal
	var outputData []byte
	if opts.Format == "yaml" {
		outputData, err = toYAML(renderable)
	} else {
		outputData, err = json.MarshalIndent(renderable, "", "  ")
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling data: %v\n", err)
		os.Exit(1)
	}

	if opts.Stats {
		statsData, _ := yaml.Marshal(stats)
		fmt.Fprint(os.Stderr, string(statsData))
	}

	if opts.Output != "" {
		err = os.WriteFile(opts.Output, outputData, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output file: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Successfully rendered %d of %d features to %s (format: %s)\n",
			stats.Matched, stats.Input, opts.Output, opts.Format)
	} else {
		fmt.Println(string(outputData))
	}
}

// toYAML re-encodes the GeoJSON document as YAML, keeping its member names.
func toYAML(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	return yaml.Marshal(doc)
}
