package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/feedlens/relay/internal/api"
	"github.com/feedlens/relay/internal/background"
	"github.com/feedlens/relay/internal/bus"
	"github.com/feedlens/relay/internal/infrastructure/config"
	"github.com/feedlens/relay/internal/infrastructure/logging"
	"github.com/feedlens/relay/internal/infrastructure/monitoring"
	"github.com/feedlens/relay/internal/inject"
	"github.com/feedlens/relay/internal/popup"
	"github.com/feedlens/relay/internal/session"
	"github.com/feedlens/relay/internal/sharing"
	"github.com/feedlens/relay/internal/store"
)

func main() {
	addr := flag.String("addr", "", "Bus endpoint address (overrides config)")
	storeDir := flag.String("store", "", "State store directory (overrides config)")
	flag.Parse()

	cfg := config.LoadOrDefault()
	if *addr != "" {
		cfg.Bus.Addr = *addr
	}
	if *storeDir != "" {
		cfg.Store.Dir = *storeDir
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	metrics := monitoring.NewMetrics()

	st, err := store.Open(cfg.Store.Dir, logger)
	if err != nil {
		logger.Fatal("failed to open state store", zap.Error(err))
	}

	// The persisted apiUrl wins over the built-in default once seeded.
	baseURL := cfg.API.BaseURL
	if stored, ok, err := st.Get(store.ScopeSync, store.KeyAPIURL); err == nil && ok && stored != "" {
		baseURL = stored
	}

	client := api.New(baseURL, logger,
		api.WithTimeout(cfg.API.Timeout),
		api.WithMetrics(metrics),
	)

	dispatcher := bus.NewDispatcher(logger, metrics)

	coordinator := background.New(st, dispatcher, client, cfg.API.BaseURL, logger, metrics)
	coordinator.Register()

	sess := session.NewManager(client, st, logger, metrics)
	shr := sharing.NewManager(client, sess, logger)
	controller := popup.NewController(sess, shr, client, dispatcher, logger, metrics)

	page, err := inject.LoadPageString("<html><body></body></html>")
	if err != nil {
		logger.Fatal("failed to initialize page", zap.Error(err))
	}
	injector := inject.New(page, inject.Config{
		PollInterval:    cfg.Injector.PollInterval,
		MaxPollAttempts: cfg.Injector.MaxPollAttempts,
	}, logger, metrics)
	pageCtx := inject.NewPageContext(dispatcher, injector, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := coordinator.Install(ctx); err != nil {
		logger.Fatal("first-install setup failed", zap.Error(err))
	}
	coordinator.ValidateStoredToken(ctx)

	go pageCtx.Run(ctx)

	// Warm the popup from persisted state so its first open is instant.
	if _, ok := sess.Token(); ok {
		controller.RefreshLists(ctx)
	}

	logger.Info("relay starting",
		zap.String("addr", cfg.Bus.Addr),
		zap.String("api", baseURL),
		zap.String("store", cfg.Store.Dir))

	if err := coordinator.Serve(ctx, cfg.Bus.Addr); err != nil {
		logger.Fatal("bus endpoint failed", zap.Error(err))
	}
	logger.Info("relay stopped")
}
