package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/openshelf/openshelf-go/internal/appstate"
	"github.com/openshelf/openshelf-go/internal/config"
	"github.com/openshelf/openshelf-go/internal/debug"
	"github.com/openshelf/openshelf-go/internal/library"
	"github.com/openshelf/openshelf-go/internal/logging"
	"github.com/openshelf/openshelf-go/internal/metrics"
	"github.com/openshelf/openshelf-go/internal/rest"
	"github.com/openshelf/openshelf-go/internal/restcache"
	"github.com/openshelf/openshelf-go/internal/session"
	"github.com/openshelf/openshelf-go/internal/store"
)

func main() {
	var (
		configFile = flag.String("config", "", "path to configuration file")
		envPrefix  = flag.String("env-prefix", "OPENSHELF", "environment variable prefix")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*envPrefix, *configFile)
	cfg, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}

	promRegistry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(promRegistry)

	cacheStore := buildResponseCache(logger, cfg.Cache)
	defer func() {
		if err := cacheStore.Close(context.Background()); err != nil {
			logger.Error("cache shutdown failed", slog.Any("error", err))
		}
	}()
	cacher := restcache.NewCacher(cacheStore, logger, recorder)

	tokenTable := rest.NewTokenTable(cfg.BypassTokens)
	if cfg.Tokens.File != "" || cfg.Tokens.Folder != "" {
		watcher, err := loader.WatchTokens(ctx, cfg.Tokens, func(bundle config.TokenBundle) {
			tokenTable.Replace(bundle.Tokens)
			logger.Info("bypass tokens reloaded", slog.Int("count", len(bundle.Tokens)))
		}, func(err error) {
			if err != nil {
				logger.Error("token watcher error", slog.Any("error", err))
			}
		})
		if err != nil {
			logger.Error("token watcher setup failed", slog.Any("error", err))
		} else {
			defer watcher.Stop()
		}
	}

	client := rest.NewClient(rest.Config{
		BaseURL:       cfg.Client.BaseURL,
		ProductionURL: cfg.Client.ProductionURL,
		Timeout:       cfg.Client.Timeout(),
		MaxRetries:    cfg.Client.MaxRetries,
	}, cacher, tokenTable, logger, rest.WithMetrics(recorder))

	storage, err := store.NewFileStorage(cfg.Store.Dir)
	if err != nil {
		logger.Error("durable storage setup failed", slog.Any("error", err))
		os.Exit(1)
	}
	stores := appstate.New(storage, logger)

	users := library.NewUsers(client, stores, logger)

	// Gates and prompt templates are configuration; a bad expression should
	// stop startup, not surface on the first blocked request.
	gates, err := session.NewGateSet(cfg.Session.Gates)
	if err != nil {
		logger.Error("access gate setup failed", slog.Any("error", err))
		os.Exit(1)
	}
	prompts, err := session.NewPromptRenderer(cfg.Session.Prompts)
	if err != nil {
		logger.Error("prompt template setup failed", slog.Any("error", err))
		os.Exit(1)
	}

	revalidator := session.NewRevalidator(
		stores.Auth,
		users.FetchRemote,
		cfg.Session.RevalidateInterval(),
		logger,
		func() {
			decision := session.Evaluate(stores.Auth.Get(), time.Now())
			prompt, err := prompts.Render(decision, "", "", "")
			if err != nil {
				logger.Warn("prompt rendering failed", slog.Any("error", err))
			}
			logger.Info("session terminated", slog.String("prompt", prompt))
		},
	)
	revalidator.Start(ctx)
	defer revalidator.Stop()

	srv := debug.New(cfg.Debug, logger, debug.Options{
		Cache:        cacheStore,
		CacheBackend: cacheBackendName(cfg.Cache.Backend),
		Metrics:      recorder,
		Health: func() debug.Health {
			return debug.Health{
				Status:        "ok",
				TokenSources:  cfg.TokenSources,
				SkippedTokens: cfg.SkippedTokens,
				Gates:         gates.Names(),
			}
		},
	})

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("debug server terminated unexpectedly", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func buildResponseCache(logger *slog.Logger, cfg config.CacheConfig) restcache.Store {
	ttl := cfg.TTL()
	switch cacheBackendName(cfg.Backend) {
	case "memory":
		logger.Info("using memory response cache", slog.Duration("ttl", ttl))
		return restcache.NewMemory(ttl)
	case "valkey":
		valkeyStore, err := restcache.NewValkey(restcache.ValkeyConfig{
			Address:  cfg.Valkey.Address,
			Username: cfg.Valkey.Username,
			Password: cfg.Valkey.Password,
			DB:       cfg.Valkey.DB,
			TLS: restcache.ValkeyTLSConfig{
				Enabled: cfg.Valkey.TLS.Enabled,
				CAFile:  cfg.Valkey.TLS.CAFile,
			},
		}, ttl)
		if err != nil {
			logger.Error("valkey cache initialization failed", slog.Any("error", err))
			logger.Info("falling back to memory cache")
			return restcache.NewMemory(ttl)
		}
		logger.Info("using valkey response cache", slog.String("address", cfg.Valkey.Address))
		return valkeyStore
	default:
		logger.Warn("unsupported cache backend, defaulting to memory", slog.String("backend", cfg.Backend))
		return restcache.NewMemory(ttl)
	}
}

func cacheBackendName(raw string) string {
	backend := strings.TrimSpace(strings.ToLower(raw))
	if backend == "" {
		return "memory"
	}
	return backend
}
