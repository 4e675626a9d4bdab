// TagCore - Bilingual Content Tagging and Trend Ranking
// Copyright 2026 Minbar Media Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/minbar/tagcore

// Package main is the entry point for the TagCore server.
//
// TagCore is the tagging and trend-ranking engine for a bilingual
// (Arabic/English) publishing platform. It extracts marker-prefixed tags
// from content text, maintains the content-tag association store with
// usage counters, and serves trending and popular tag rankings over HTTP.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered settings (defaults, YAML, TAGCORE_ env)
//  2. Logging: global zerolog logger
//  3. Database: DuckDB association store with schema bootstrap
//  4. Engine: normalizer, extractor, trend scorer, ranking cache, reprocessor
//  5. HTTP server: chi router under a suture supervision tree
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the listener
// stops accepting connections, in-flight requests get 10 seconds to
// finish, and the store is closed last.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/minbar/tagcore/internal/api"
	"github.com/minbar/tagcore/internal/cache"
	"github.com/minbar/tagcore/internal/config"
	"github.com/minbar/tagcore/internal/database"
	"github.com/minbar/tagcore/internal/extract"
	"github.com/minbar/tagcore/internal/logging"
	"github.com/minbar/tagcore/internal/normalize"
	"github.com/minbar/tagcore/internal/reprocess"
	"github.com/minbar/tagcore/internal/supervisor"
	"github.com/minbar/tagcore/internal/trending"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("marker", cfg.Tagging.Marker).
		Dur("trending_window", cfg.Trending.Window).
		Dur("half_life", cfg.Trending.HalfLife).
		Msg("Starting TagCore")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize association store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing association store")
		}
	}()

	// Engine components. The normalizer takes the first rune of the
	// configured marker; config validation guarantees it is non-empty.
	norm := normalize.New(normalize.Options{
		Marker:    []rune(cfg.Tagging.Marker)[0],
		MinLength: cfg.Tagging.MinLength,
		MaxLength: cfg.Tagging.MaxLength,
	})
	extractor := extract.New(norm)
	scorer := trending.NewScorer(db, cfg.Trending.HalfLife)
	rankingCache := cache.New()
	runner := reprocess.NewRunner(
		reprocess.StoreSource{Store: db},
		db,
		extractor,
		&cfg.Tagging,
		float64(cfg.Reprocess.RatePerSecond),
	)

	handler := api.NewHandler(cfg, db, scorer, rankingCache, extractor, runner)
	router := api.NewRouter(handler, &cfg.Security)
	server := api.NewServer(router.Setup(), &cfg.Server)

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}
	tree.AddEngineService(rankingCache)
	tree.AddAPIService(server)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := tree.ServeBackground(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Shutting down")
		cancel()
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree exited with error")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Fatal().Err(err).Msg("Supervisor tree failed")
		}
	}

	logging.Info().Msg("TagCore stopped")
}
