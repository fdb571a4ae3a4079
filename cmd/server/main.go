// Package main provides the tracehook server entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/tracehook/internal/config"
	"github.com/thebtf/tracehook/internal/journal"
	"github.com/thebtf/tracehook/internal/langfuse"
	"github.com/thebtf/tracehook/internal/registry"
	"github.com/thebtf/tracehook/internal/server"
	"github.com/thebtf/tracehook/internal/tracing"
	"github.com/thebtf/tracehook/internal/watcher"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	port := flag.Int("port", 0, "Listen port (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tracehook %s\n", Version)
		return
	}

	// Log to stderr so stdout stays clean for tooling.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := config.EnsureAll(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure data directories")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}
	if *port > 0 {
		cfg.Port = *port
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		log.Warn().Str("level", cfg.LogLevel).Msg("Unknown log level, staying on info")
	}

	for _, warning := range cfg.Validate() {
		log.Warn().Msg(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := registry.New(cfg.TokenSecret, cfg.TokensFile)

	// Reload the registry cache whenever the CLI rewrites the token file.
	tokenWatcher, err := watcher.New(cfg.TokensFile, reg.Invalidate)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create token file watcher")
	} else if err := tokenWatcher.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start token file watcher")
	} else {
		log.Info().Str("path", cfg.TokensFile).Msg("Token file watcher started")
	}

	sink := langfuse.New(cfg.LangfuseHost, cfg.LangfusePublicKey, cfg.LangfuseSecretKey)

	jrnl, err := journal.New(journal.Config{Path: cfg.JournalDB})
	if err != nil {
		log.Warn().Err(err).Msg("Report journal unavailable, reports will not be recorded")
		jrnl = nil
	}

	svc := server.New(cfg, reg, tracing.NewReporter(sink), jrnl, Version)

	log.Info().
		Str("addr", cfg.Addr()).
		Str("version", Version).
		Bool("langfuse", cfg.LangfuseConfigured()).
		Msg("Starting tracehook server")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Start(gctx)
	})
	if tokenWatcher != nil {
		g.Go(func() error {
			<-gctx.Done()
			return tokenWatcher.Stop()
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server exited with error")
	}

	// One last flush so a report accepted during shutdown is not lost.
	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.FlushTimeout())
	defer cancel()
	if err := sink.Flush(flushCtx); err != nil {
		log.Warn().Err(err).Msg("Final Langfuse flush failed")
	}
	if jrnl != nil {
		if err := jrnl.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close report journal")
		}
	}
	log.Info().Msg("Server stopped")
}
