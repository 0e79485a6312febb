package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/joho/godotenv"

	"variantree/internal/config"
	"variantree/internal/repository"
	serviceBranching "variantree/internal/service/branching"
)

// storeOpts are the persistent flags that override environment config
type storeOpts struct {
	driver          string
	pebblePath      string
	databaseURL     string
	branchingConfig string
}

// loadConfig reads .env and the environment, then applies flag overrides
func (o *storeOpts) loadConfig() *config.Config {
	_ = godotenv.Load()

	cfg := config.Load()
	if o.driver != "" {
		cfg.StoreDriver = o.driver
	}
	if o.pebblePath != "" {
		cfg.PebblePath = o.pebblePath
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.branchingConfig != "" {
		cfg.BranchingConfigPath = o.branchingConfig
	}
	// Schema changes are explicit from the CLI
	cfg.AutoMigrate = false
	return cfg
}

// session is an open store plus the services wired onto it
type session struct {
	store    repository.Store
	services *serviceBranching.Services
}

func (s *session) Close() error {
	return s.store.Close()
}

// open connects to the configured store. Logs go to stderr at warn level so
// command output stays parseable.
func (o *storeOpts) open(ctx context.Context, stderr io.Writer) (*session, error) {
	cfg := o.loadConfig()

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	limits, err := config.LoadBranching(cfg.BranchingConfigPath)
	if err != nil {
		return nil, err
	}

	store, err := repository.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}

	return &session{
		store:    store,
		services: serviceBranching.SetupServices(store, *limits, nil, logger),
	}, nil
}
