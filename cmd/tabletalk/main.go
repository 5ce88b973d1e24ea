// Package main provides the tabletalk worker entry point.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm/logger"

	"github.com/thebtf/tabletalk/internal/agent"
	"github.com/thebtf/tabletalk/internal/config"
	"github.com/thebtf/tabletalk/internal/datastore"
	"github.com/thebtf/tabletalk/internal/db"
	"github.com/thebtf/tabletalk/internal/intent"
	"github.com/thebtf/tabletalk/internal/provider"
	"github.com/thebtf/tabletalk/internal/session"
	"github.com/thebtf/tabletalk/internal/tools"
	"github.com/thebtf/tabletalk/internal/watcher"
	"github.com/thebtf/tabletalk/internal/worker"
	"github.com/thebtf/tabletalk/internal/worker/sse"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	dbPath := flag.String("db", "", "SQLite database path (default: ~/.tabletalk/tabletalk.db)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	// A local .env overrides nothing already exported.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}

	if err := config.EnsureDataDir(); err != nil {
		log.Fatal().Err(err).Msg("Failed to create data directory")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := db.NewStore(db.Config{
		Path:     cfg.DBPath,
		MaxConns: cfg.MaxConns,
		LogLevel: logger.Silent,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer store.Close()

	sessionStore := db.NewSessionStore(store)
	auditStore := db.NewAuditStore(store)
	dataStore := datastore.NewGormStore(store)
	tracker := session.NewTracker(sessionStore, cfg.RecentHistoryWindow)
	broadcaster := sse.NewBroadcaster()

	llm, err := provider.New(ctx, provider.Options{
		Provider:          cfg.Provider,
		Model:             cfg.Model,
		Credentials:       cfg.Credentials,
		TimeoutSeconds:    cfg.TimeoutSeconds,
		MaxRetries:        cfg.MaxRetries,
		RetryDelaySeconds: cfg.RetryDelaySeconds,
	})
	if err != nil {
		log.Fatal().Err(err).Str("provider", cfg.Provider).Msg("Failed to initialize provider")
	}
	log.Info().Str("provider", llm.Name()).Str("model", cfg.Model).Msg("Provider ready")

	client := agent.NewClient(cfg, llm, intent.NewAnalyzer(), tracker,
		tools.NewDispatcher(dataStore, auditStore), broadcaster)

	svc := worker.NewService(worker.Options{
		Version:      Version,
		Config:       cfg,
		Store:        store,
		SessionStore: sessionStore,
		AuditStore:   auditStore,
		DataStore:    dataStore,
		Tracker:      tracker,
		Client:       client,
		Broadcaster:  broadcaster,
	})

	settingsWatcher, err := watcher.New(config.SettingsPath(), config.Reload)
	if err != nil {
		log.Warn().Err(err).Msg("Settings watcher unavailable")
	} else if err := settingsWatcher.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start settings watcher")
	} else {
		defer settingsWatcher.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svc.Start()
	})

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("Shutting down")
		case <-gctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return svc.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Worker service failed")
	}
	log.Info().Msg("Shutdown complete")
}
