package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/l0p7/authgate/internal/admin"
	"github.com/l0p7/authgate/internal/config"
	"github.com/l0p7/authgate/internal/gateway"
	"github.com/l0p7/authgate/internal/logging"
	"github.com/l0p7/authgate/internal/metrics"
	"github.com/l0p7/authgate/internal/rules"
	"github.com/l0p7/authgate/internal/server"
	"github.com/l0p7/authgate/internal/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}

	store, pgStore, err := buildRuleStore(ctx, logger, cfg)
	if err != nil {
		logger.Error("rule store initialization failed", slog.Any("error", err))
		os.Exit(1)
	}
	if pgStore != nil {
		defer pgStore.Close()
	}

	manager := rules.NewManager(store, logger)
	if err := manager.Reload(ctx); err != nil {
		logger.Error("initial configuration load failed", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.ConfigBackend == config.BackendJSON {
		watcher, err := manager.Watch(ctx, cfg.ConfigPath, func(err error) {
			logger.Error("config watcher error", slog.Any("error", err))
		})
		if err != nil {
			logger.Warn("config watcher setup failed", slog.Any("error", err))
		} else {
			defer watcher.Stop()
		}
	}

	promRegistry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(promRegistry)

	sessionCache := buildSessionCache(logger, cfg)
	resolver := session.NewResolver(sessionCache, session.NewClient(), logger, recorder)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := resolver.Close(shutdownCtx); err != nil {
			logger.Error("session cache shutdown failed", slog.Any("error", err))
		}
	}()

	pipe := gateway.New(logger, gateway.Options{
		Manager:        manager,
		Resolver:       resolver,
		Metrics:        recorder,
		CallbackDomain: cfg.CallbackDomain,
	})

	guard := admin.NewGuard(logger, resolver, admin.GuardConfig{
		Token:          cfg.AdminToken,
		AllowTestToken: cfg.AdminAllowTestToken,
		SessionCookie:  cfg.SessionCookie,
		SessionURL:     cfg.SessionURL,
		SessionRoles:   cfg.AdminSessionRoles,
	})
	var adminStore admin.Store
	if pgStore != nil {
		adminStore = pgStore
	}
	adminAPI := admin.New(logger, guard, adminStore, manager.Reload, cfg.EnableAdminAPI)

	handler := server.NewRouter(pipe, adminAPI, recorder.Handler())

	srv, err := server.New(cfg.Port, logger, handler)
	if err != nil {
		logger.Error("unable to construct server", slog.Any("error", err))
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated unexpectedly", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}

// buildRuleStore selects the backend. The postgres store is returned
// separately so the admin surface can drive its CRUD operations.
func buildRuleStore(ctx context.Context, logger *slog.Logger, cfg config.Settings) (rules.Store, *rules.PostgresStore, error) {
	switch cfg.ConfigBackend {
	case config.BackendPostgres:
		logger.Info("using postgres rule store")
		store, err := rules.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		if err := store.Bootstrap(ctx, rules.BootstrapSeed{
			SessionURL:    cfg.Bootstrap.SessionURL,
			LoginRedirect: cfg.Bootstrap.LoginRedirect,
			CookieName:    cfg.Bootstrap.CookieName,
			RouteHost:     cfg.Bootstrap.RouteHost,
			RoutePath:     cfg.Bootstrap.RoutePath,
			RouteRoles:    cfg.Bootstrap.RouteRoles,
		}); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, store, nil
	default:
		logger.Info("using json rule store", slog.String("path", cfg.ConfigPath))
		return rules.NewJSONStore(cfg.ConfigPath), nil, nil
	}
}

// buildSessionCache selects the cache backend; a redis failure falls back to
// memory rather than refusing to start.
func buildSessionCache(logger *slog.Logger, cfg config.Settings) session.Cache {
	if !cfg.CacheEnabled {
		logger.Info("session caching is disabled")
		return session.Disabled{}
	}
	switch cfg.CacheBackend {
	case config.CacheRedis:
		redisCache, err := session.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.Error("redis cache initialization failed", slog.Any("error", err))
			logger.Info("falling back to memory cache")
			return session.NewMemory()
		}
		logger.Info("using redis session cache", slog.String("url", cfg.RedisURL))
		return redisCache
	default:
		logger.Info("using memory session cache")
		return session.NewMemory()
	}
}
