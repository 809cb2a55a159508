// FuzzyPrice - Land price estimation with fuzzy inference.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/fuzzyprice/internal/api"
	"github.com/opensource-finance/fuzzyprice/internal/appraisal"
	"github.com/opensource-finance/fuzzyprice/internal/bus"
	"github.com/opensource-finance/fuzzyprice/internal/cache"
	"github.com/opensource-finance/fuzzyprice/internal/domain"
	"github.com/opensource-finance/fuzzyprice/internal/landpricing"
	"github.com/opensource-finance/fuzzyprice/internal/metrics"
	"github.com/opensource-finance/fuzzyprice/internal/modelfile"
	"github.com/opensource-finance/fuzzyprice/internal/repository"
	"github.com/opensource-finance/fuzzyprice/internal/rules"
	"github.com/opensource-finance/fuzzyprice/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fuzzyprice:", err)
		os.Exit(2)
	}
	slog.SetDefault(newLogger(cfg.Logging))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("fuzzyprice stopped", "error", err)
		os.Exit(1)
	}
}

// run wires the components, serves until ctx is cancelled and tears
// everything down in reverse order.
func run(ctx context.Context, cfg *domain.Config) error {
	slog.Info("starting fuzzyprice",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("repository: %w", err)
	}
	defer repo.Close()

	estimateCache, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer estimateCache.Close()

	eventBus, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("event bus: %w", err)
	}
	defer eventBus.Close()

	engine, err := rules.NewEngine(cfg.Engine.MaxWorkers)
	if err != nil {
		return fmt.Errorf("inference engine: %w", err)
	}
	defer engine.Close()

	compiled, err := loadModel(ctx, cfg.Engine.ModelFile, repo, engine)
	metrics.ModelReload(err)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	slog.Info("model active", "model", compiled.Key(), "rules_count", len(compiled.Spec.Rules))

	processor := appraisal.NewProcessor()

	if cfg.Worker.Enabled {
		w := worker.NewWorker(eventBus, repo, engine, processor)
		if err := w.Start(worker.Config{TenantIDs: cfg.Worker.Tenants}); err != nil {
			return fmt.Errorf("async worker: %w", err)
		}
		defer func() {
			if err := w.Stop(); err != nil {
				slog.Error("failed to stop async worker", "error", err)
			}
		}()
		slog.Info("async worker started", "tenants", cfg.Worker.Tenants)
	}

	srv := api.NewServer(cfg, repo, estimateCache, eventBus, engine, processor, Version)
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	printBanner(cfg, compiled, Version)

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	return nil
}

// loadConfig starts from the tier defaults named by FUZZYPRICE_TIER, then
// applies the FUZZYPRICE_CONFIG file and the FUZZYPRICE_* overrides.
func loadConfig() (*domain.Config, error) {
	cfg := domain.DefaultConfig()
	if os.Getenv("FUZZYPRICE_TIER") == string(domain.TierPro) {
		cfg = domain.ProConfig()
	}

	if path := os.Getenv("FUZZYPRICE_CONFIG"); path != "" {
		var err error
		if cfg, err = domain.LoadConfig(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := domain.ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func newLogger(lc domain.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// loadModel activates the first model found, in order: the configured model
// file, the newest enabled spec in the database, the built-in land pricing
// model.
// A model coming from outside the database is stored so that reloads and
// other instances see it.
func loadModel(ctx context.Context, path string, repo domain.Repository, engine *rules.Engine) (*rules.CompiledModel, error) {
	if path != "" {
		spec, err := modelfile.Load(path)
		if err != nil {
			return nil, err
		}
		slog.Info("loading model from file", "path", path, "model", spec.ModelKey())
		return storeAndLoad(ctx, repo, engine, spec)
	}

	specs, err := repo.ListModelSpecs(ctx, domain.GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list models from database", "error", err)
	}
	if len(specs) > 0 {
		slog.Info("loading model from database", "count", len(specs))
		return engine.ReloadModels(specs)
	}

	slog.Info("no model in database - storing built-in land pricing model")
	return storeAndLoad(ctx, repo, engine, landpricing.DefaultSpec())
}

// storeAndLoad stores spec and activates it. A version already stored with
// other content is refused, so replicas reloading from the database never
// run different rules under one key.
func storeAndLoad(ctx context.Context, repo domain.Repository, engine *rules.Engine, spec *domain.ModelSpec) (*rules.CompiledModel, error) {
	if err := engine.ValidateModel(spec); err != nil {
		return nil, err
	}

	err := repo.SaveModelSpec(ctx, domain.GlobalTenantID, spec)
	switch {
	case errors.Is(err, repository.ErrConflict):
		stored, lookupErr := storedVersion(ctx, repo, spec)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if stored != nil && !sameContent(stored, spec) {
			return nil, fmt.Errorf("model %s is already stored with other content; give the file a new version", spec.ModelKey())
		}
	case err != nil:
		slog.Warn("failed to store model", "model", spec.ModelKey(), "error", err)
	}
	return engine.LoadModel(spec)
}

func storedVersion(ctx context.Context, repo domain.Repository, spec *domain.ModelSpec) (*domain.ModelSpec, error) {
	specs, err := repo.ListModelSpecs(ctx, domain.GlobalTenantID)
	if err != nil {
		return nil, fmt.Errorf("look up stored %s: %w", spec.ModelKey(), err)
	}
	for _, s := range specs {
		if s.ID == spec.ID && s.Version == spec.Version {
			return s, nil
		}
	}
	return nil, nil
}

// sameContent compares what inference depends on.
func sameContent(a, b *domain.ModelSpec) bool {
	type content struct {
		Variables  []domain.VariableSpec
		Rules      []domain.RuleSpec
		ClipInputs bool
	}
	x, errX := json.Marshal(content{a.Variables, a.Rules, a.ClipInputs})
	y, errY := json.Marshal(content{b.Variables, b.Rules, b.ClipInputs})
	return errX == nil && errY == nil && bytes.Equal(x, y)
}

func printBanner(cfg *domain.Config, compiled *rules.CompiledModel, version string) {
	fmt.Println()
	fmt.Println("  +-------------------------------------------+")
	fmt.Println("  |               FUZZYPRICE                  |")
	fmt.Println("  |      Fuzzy Land Price Estimation          |")
	fmt.Println("  +-------------------------------------------+")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Model:    %s (%d rules)\n", compiled.Key(), len(compiled.Spec.Rules))
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /estimate                         - Estimate a plot price")
	fmt.Println("    POST /estimate/batch                   - Estimate many plots")
	fmt.Println("    POST /estimate/async                   - Queue an estimate")
	fmt.Println("    GET  /estimates/{id}                   - Get estimate by ID")
	fmt.Println("    GET  /estimates                        - List recent estimates")
	fmt.Println("    GET  /model                            - Active model")
	fmt.Println("    GET  /model/variables                  - Variables and categories")
	fmt.Println("    GET  /model/variables/{name}/samples   - Sampled membership curve")
	fmt.Println("    POST /model                            - Store a model")
	fmt.Println("    POST /model/reload                     - Hot-reload the model")
	fmt.Println("    GET  /health                           - Health check")
	fmt.Println()
}
