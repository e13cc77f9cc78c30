// Command appserver boots the ECS persistence service: it opens the
// storage driver, bootstraps the schema, seals the component registry,
// wires the query engine, cache, hook dispatcher, and scheduler, and
// drives the whole sequence through the Lifecycle Coordinator's phases.
// The HTTP surface stays minimal (health, metrics, task status); mutation
// endpoints live in whatever external API layer embeds this module.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yaaruu/bunsane-sub005/internal/cache"
	"github.com/yaaruu/bunsane-sub005/internal/config"
	"github.com/yaaruu/bunsane-sub005/internal/ecs"
	"github.com/yaaruu/bunsane-sub005/internal/hooks"
	"github.com/yaaruu/bunsane-sub005/internal/lifecycle"
	"github.com/yaaruu/bunsane-sub005/internal/obs/logging"
	"github.com/yaaruu/bunsane-sub005/internal/obs/metrics"
	"github.com/yaaruu/bunsane-sub005/internal/query"
	"github.com/yaaruu/bunsane-sub005/internal/scheduler"
	"github.com/yaaruu/bunsane-sub005/internal/storage"
	"github.com/yaaruu/bunsane-sub005/internal/store"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address for health/metrics (overrides APP_PORT/config)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides DATABASE_URL)")
	configPath := flag.String("config", "", "path to a YAML configuration overlay")
	flag.Parse()

	if trimmed := strings.TrimSpace(*configPath); trimmed != "" {
		os.Setenv("BUNSANE_CONFIG_FILE", trimmed)
	}
	if trimmed := strings.TrimSpace(*dsn); trimmed != "" {
		os.Setenv("DATABASE_URL", trimmed)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	logger := logging.New("appserver", cfg.LogLevel, "json")
	m := metrics.New()
	coordinator := lifecycle.New()

	registry := ecs.NewRegistry()
	registerComponents(registry)

	coordinator.On(lifecycle.DBInit, func(c *lifecycle.Coordinator, p lifecycle.Phase) {
		logger.With(nil).Info("opening storage driver")
	})

	driver, err := storage.Open(cfg.DatabaseURL, cfg.DatabasePoolSize, m)
	if err != nil {
		log.Fatalf("open storage driver: %v", err)
	}
	defer driver.Close()

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer bootCancel()
	if err := driver.Bootstrap(bootCtx, cfg.PartitionStrategy); err != nil {
		log.Fatalf("bootstrap schema: %v", err)
	}
	for _, ct := range registry.All() {
		if err := driver.EnsurePartition(bootCtx, ct.Name, cfg.PartitionStrategy); err != nil {
			log.Fatalf("ensure partition for %s: %v", ct.Name, err)
		}
	}
	coordinator.Advance(lifecycle.DBReady)

	registry.Seal()
	coordinator.Advance(lifecycle.ComponentsReady)

	coordinator.Advance(lifecycle.SystemRegistering)

	dispatcher := hooks.NewDispatcher(logger, m)
	cacheLayer := buildCache(cfg, m)
	entityStore := store.New(driver, registry, cacheLayer, dispatcher, m)
	executor := query.NewExecutor(driver, registry, m)

	sched := scheduler.New(executor, scheduler.DefaultConfig(), logger, m)
	if _, err := sched.Register(reminderSweepTask(entityStore, logger)); err != nil {
		log.Fatalf("register reminder sweep task: %v", err)
	}

	coordinator.Advance(lifecycle.SystemReady)
	coordinator.Advance(lifecycle.AppReady)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched.Start(ctx)

	listenAddr := resolveAddr(*addr, cfg)
	server := &http.Server{
		Addr:              listenAddr,
		Handler:           buildMux(coordinator, sched),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.With(nil).Infof("appserver listening on %s", listenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.With(nil).Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("http server shutdown error")
	}
	sched.Stop()
}

func buildCache(cfg *config.Config, m *metrics.Metrics) *cache.MultiLevel {
	local := cache.NewLocal(cache.DefaultLocalConfig())
	var remote *cache.Remote
	if cfg.CacheProvider == config.CacheProviderRemote || cfg.CacheProvider == config.CacheProviderMultilevel {
		remote = cache.NewRemote(cfg.RedisURL, "", 0)
	}
	strategy := cache.WriteInvalidate
	if cfg.CacheStrategy == config.CacheStrategyWriteThrough {
		strategy = cache.WriteThrough
	}
	return cache.New(local, remote, strategy, config.CacheCategoryConfig{Enabled: cfg.CacheEnabled, TTL: cfg.CacheDefaultTTL}, m)
}

func buildMux(coordinator *lifecycle.Coordinator, sched *scheduler.Scheduler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if coordinator.Phase() < lifecycle.AppReady {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(coordinator.Phase().String()))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if metrics.Enabled() {
		mux.Handle("/metrics", promhttp.Handler())
	}
	mux.HandleFunc("/tasks", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sched.GetMetrics())
	})
	return mux
}

func resolveAddr(flagAddr string, cfg *config.Config) string {
	if trimmed := strings.TrimSpace(flagAddr); trimmed != "" {
		return trimmed
	}
	if cfg.AppPort > 0 {
		return fmt.Sprintf(":%d", cfg.AppPort)
	}
	return ":8080"
}

// reminderSweepTask queries every Reminder entity each minute (the query has
// no filter on dueAt) and, for the batch it finds, loads their Profile components alongside them through a
// single LoadMultiple call rather than one Get per entity.
func reminderSweepTask(entityStore *store.Store, logger *logging.Logger) scheduler.Task {
	return scheduler.Task{
		Name:     "reminder-sweep",
		Interval: scheduler.IntervalMinute,
		Query:    query.New().With("Reminder"),
		Handler: func(ctx context.Context, results []query.Result) error {
			if len(results) == 0 {
				return nil
			}
			ids := make([]ecs.EntityID, len(results))
			for i, r := range results {
				ids[i] = r.Entity.ID
			}
			loaded, err := entityStore.LoadMultiple(ctx, ids, []string{"Profile"})
			if err != nil {
				return err
			}
			logger.With(nil).Infof("reminder sweep hydrated %d of %d reminder entities", len(loaded), len(ids))
			return nil
		},
	}
}

// registerComponents is the application's static component type catalog.
// A real deployment would load this from a manifest; this module seeds a
// minimal example schema to exercise the full boot sequence.
func registerComponents(registry *ecs.Registry) {
	must := func(err error) {
		if err != nil {
			log.Fatalf("register component type: %v", err)
		}
	}
	must(registry.Register(ecs.ComponentType{
		Name: "Profile",
		Fields: []ecs.FieldDef{
			{Name: "displayName", Kind: ecs.FieldString},
			{Name: "email", Kind: ecs.FieldString},
		},
	}))
	must(registry.Register(ecs.ComponentType{
		Name: "Reminder",
		Fields: []ecs.FieldDef{
			{Name: "dueAt", Kind: ecs.FieldTimestamp},
			{Name: "message", Kind: ecs.FieldString},
		},
	}))
}
