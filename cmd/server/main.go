package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/woozymasta/geoshard/internal/animator"
	"github.com/woozymasta/geoshard/internal/config"
	"github.com/woozymasta/geoshard/internal/geo"
	"github.com/woozymasta/geoshard/internal/logger"
	"github.com/woozymasta/geoshard/internal/server"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string  `short:"c" long:"config"    env:"CONFIG_FILE"    description:"Path to configuration file"`
	Artifact   string  `short:"m" long:"merged"    env:"MERGED_FILE"    description:"Merged artifact path (defaults to merge.output from config)"`
	Addr       string  `short:"a" long:"addr"      env:"LISTEN_ADDRESS" description:"Address to listen on"       default:"0.0.0.0"`
	Port       int     `short:"p" long:"port"      env:"LISTEN_PORT"    description:"Port to listen on"          default:"8080"`
	Tolerance  float64 `short:"t" long:"tolerance" env:"TOLERANCE"      description:"Default simplification tolerance (0 keeps config)"`
	Autostart  bool    `short:"s" long:"autostart" env:"AUTOSTART"      description:"Start the route animation on launch"`
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

	// Setup Logging
	opts.Logger.Setup()

	// Load Config
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if opts.Artifact != "" {
		cfg.Merge.Output = opts.Artifact
	}
	if opts.Tolerance > 0 {
		cfg.Render.Tolerance = opts.Tolerance
	}
	if opts.Autostart {
		cfg.Animation.Autostart = true
	}

	mode, err := animator.ParseMode(cfg.Animation.Mode)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid animation mode")
	}

	anim := animator.New(animator.Options{
		Tick:     cfg.Animation.Tick,
		Duration: cfg.Animation.Duration,
		Frames:   cfg.Animation.Frames,
		Mode:     mode,
		Easing:   geo.EasingByName(cfg.Animation.Easing),
	}, func(f animator.Frame) {
		log.Trace().
			Floats64("position", f.Position[:]).
			Int("waypoint", f.Waypoint).
			Bool("arrived", f.Arrived).
			Msg("Marker moved")
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Animation.Autostart {
		if err := anim.Start(ctx, cfg.Animation.Route, animator.TraceFresh); err != nil {
			log.Fatal().Err(err).Msg("Failed to start route animation")
		}
		log.Info().
			Int("waypoints", len(cfg.Animation.Route)).
			Float64("length_m", geo.RouteLength(cfg.Animation.Route)).
			Msg("Route animation started")
	}

	srvCtx := server.NewServerContext(cfg, anim)
	handler := server.RequestLogger(srvCtx.Routes())

	listenAddr := fmt.Sprintf("%s:%d", opts.Addr, opts.Port)
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		anim.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown failed")
		}
	}()

	log.Info().
		Str("addr", listenAddr).
		Str("artifact", cfg.Merge.Output).
		Float64("tolerance", cfg.Render.Tolerance).
		Msg("Web server started")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
