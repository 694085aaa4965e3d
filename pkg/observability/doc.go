// Package observability provides structured logging, Prometheus metrics,
// health checks, and graceful shutdown.
//
// # Structured Logging
//
// Create a logger and chain context fields:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("user_id", id).Info("user suspended")
//
// # Prometheus Metrics
//
// Initialize and record metrics:
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.SessionsActive.Set(float64(count))
//	metrics.LockoutsTotal.Inc()
//
// # Health Checks
//
// Register component probes and serve them:
//
//	checker := observability.NewHealthChecker()
//	checker.Register("activity-store", storeCheck)
//	mux.HandleFunc("/readyz", checker.Readiness)
//
// # Graceful Shutdown
//
// Wire shutdown hooks and block on signals:
//
//	sm := observability.NewShutdownManager(logger, server, 30*time.Second)
//	sm.RegisterShutdownFunc(func(ctx context.Context) error { return store.Close() })
//	sm.WaitForShutdown()
package observability
