// Command aegisd runs the access-control engine as a daemon: background
// sweeps on cron schedules plus an HTTP surface for health, metrics, and
// system stats.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/meridianhq/aegis/pkg/activity"
	"github.com/meridianhq/aegis/pkg/config"
	"github.com/meridianhq/aegis/pkg/engine"
	"github.com/meridianhq/aegis/pkg/observability"
	"github.com/meridianhq/aegis/pkg/scheduler"
	"github.com/meridianhq/aegis/pkg/session"
)

const (
	jobSessionSweep    = "session-sweep"
	jobSecuritySweep   = "security-sweep"
	jobActivityCleanup = "activity-cleanup"
)

func main() {
	cfg := config.Load()
	logger := observability.NewLogger(observability.ParseLevel(cfg.LogLevel), os.Stdout)

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Error("invalid configuration")
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("daemon exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	activities, err := buildActivityStore(cfg)
	if err != nil {
		return err
	}
	defer activities.Close()

	sessionStore, err := buildSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer sessionStore.Close()

	eng := engine.New(engine.Config{
		Activities:          activities,
		SessionStore:        sessionStore,
		Logger:              logger,
		Metrics:             metrics,
		SessionTTL:          cfg.SessionTTL,
		BulkDelay:           cfg.BulkDelay,
		LockoutThreshold:    cfg.LockoutThreshold,
		LockoutWindow:       cfg.LockoutWindow,
		LockoutDuration:     cfg.LockoutDuration,
		PermissionCacheSize: cfg.PermissionCacheSize,
		PermissionCacheTTL:  cfg.PermissionCacheTTL,
	})

	if cfg.SeedFile != "" {
		seed, err := config.LoadSeed(cfg.SeedFile)
		if err != nil {
			return err
		}
		created, err := seed.Apply(ctx, eng)
		if err != nil {
			return err
		}
		logger.WithFields(map[string]interface{}{
			"path":    cfg.SeedFile,
			"created": created,
		}).Info("seed applied")
	}

	sched := scheduler.New(logger, metrics)
	if err := registerJobs(sched, cfg, eng, logger); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	router := mux.NewRouter()
	health := observability.NewHealthChecker()
	health.Register("activity_store", func(ctx context.Context) error {
		_, err := eng.GetActivities(ctx, activity.Filter{Limit: 1})
		return err
	})
	health.Register("session_store", func(ctx context.Context) error {
		_, err := eng.GetSession(ctx, "healthcheck")
		return err
	})
	router.HandleFunc("/healthz", health.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/readyz", health.Readiness).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/stats", statsHandler(eng, logger)).Methods(http.MethodGet)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, server, 15*time.Second)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		cancel()
		return nil
	})

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.WithField("addr", cfg.HTTPAddr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	if cfg.WatchSeed && cfg.SeedFile != "" {
		group.Go(func() error {
			err := config.WatchSeed(groupCtx, cfg.SeedFile, logger, func(seed *config.Seed) {
				created, err := seed.Apply(groupCtx, eng)
				if err != nil {
					logger.WithError(err).Warn("failed to apply reloaded seed")
					return
				}
				if created > 0 {
					logger.WithField("created", created).Info("reloaded seed applied")
				}
			})
			if err == context.Canceled {
				return nil
			}
			return err
		})
	}
	group.Go(func() error {
		return shutdown.WaitForShutdown()
	})

	return group.Wait()
}

func buildActivityStore(cfg *config.Config) (activity.Store, error) {
	if cfg.ActivityBackend == config.BackendSQLite {
		return activity.NewSQLiteStore(cfg.SQLitePath)
	}
	return activity.NewMemoryStore(), nil
}

func buildSessionStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	if cfg.SessionBackend == config.BackendRedis {
		return session.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	}
	return session.NewMemoryStore(), nil
}

func registerJobs(sched *scheduler.Scheduler, cfg *config.Config, eng *engine.Engine, logger *observability.Logger) error {
	if err := sched.Register(jobSessionSweep, cfg.SessionSweepSchedule, func(ctx context.Context) error {
		n, err := eng.RunSessionSweep(ctx)
		if n > 0 {
			logger.WithField("expired", n).Info("session sweep finished")
		}
		return err
	}); err != nil {
		return err
	}
	if err := sched.Register(jobSecuritySweep, cfg.SecuritySweepSchedule, func(ctx context.Context) error {
		result, err := eng.RunSecuritySweep(ctx)
		if result.Suspended > 0 {
			logger.WithField("suspended", result.Suspended).Warn("security sweep locked accounts")
		}
		return err
	}); err != nil {
		return err
	}
	return sched.Register(jobActivityCleanup, cfg.CleanupSchedule, func(ctx context.Context) error {
		n, err := eng.RunActivityCleanup(ctx, cfg.ActivityRetentionDays)
		if n > 0 {
			logger.WithField("deleted", n).Info("activity cleanup finished")
		}
		return err
	})
}

func statsHandler(eng *engine.Engine, logger *observability.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := eng.GetSystemStats(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to build system stats")
			http.Error(w, "stats unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			logger.WithError(err).Warn("failed to write stats response")
		}
	}
}
