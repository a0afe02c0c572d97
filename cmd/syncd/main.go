package main

import (
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

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	notificationhandler "edusync/internal/notification/handler"
	"edusync/internal/notification/roster"
	"edusync/internal/platform/config"
	"edusync/internal/platform/httpserver"
	"edusync/internal/platform/logger"
	platformredis "edusync/internal/platform/redis"
	profilehandler "edusync/internal/profile/handler"
	profilestore "edusync/internal/profile/store"
	"edusync/internal/sync/audit"
	"edusync/internal/sync/bus"
	"edusync/internal/sync/dedup"
	"edusync/internal/sync/event"
	"edusync/internal/sync/registry"
)

// main wires config, the Redis broker, per-service handlers, and the bus,
// then runs the listener alongside a small ops HTTP server. Business logic
// lives in the internal packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "syncd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	service := event.Service(cfg.Service)
	if !service.Known() {
		return fmt.Errorf("unknown service %q", cfg.Service)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rc, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rc.Close()

	reg, cleanup, err := buildRegistry(ctx, cfg, service, log)
	if err != nil {
		return err
	}
	defer cleanup()

	b := bus.New(bus.Config{
		Service:          service,
		ReconnectBackoff: cfg.ReconnectBackoff,
	}, bus.NewRedisBroker(rc.Client), reg, dedup.New(cfg.DedupMaxEntries), audit.NewRedis(rc.Client), log)

	srv := httpserver.New(cfg.OpsAddr, opsRouter(b, rc))

	log.Info("starting syncd",
		"service", string(service),
		"channel", service.Channel(),
		"ops_addr", cfg.OpsAddr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.Run(gctx)
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("syncd stopped")
	return nil
}

// buildRegistry assembles the handler set for the service this process runs
// as. Services without local sync state get an empty registry: their events
// are still deduplicated and audited.
func buildRegistry(ctx context.Context, cfg config.Config, service event.Service, log *slog.Logger) (*registry.Registry, func(), error) {
	noop := func() {}

	switch service {
	case event.UserService:
		if cfg.DatabaseURL == "" {
			log.Warn("no database configured, using in-memory profile store")
			return profilehandler.New(profilestore.NewMemory(), log), noop, nil
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("open postgres pool: %w", err)
		}
		store := profilestore.NewPostgres(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, noop, fmt.Errorf("ensure schema: %w", err)
		}
		return profilehandler.New(store, log), pool.Close, nil

	case event.NotificationService:
		return notificationhandler.New(roster.NewMemory(), log), noop, nil

	default:
		return registry.New(service, log), noop, nil
	}
}

func opsRouter(b *bus.Bus, rc *platformredis.Client) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		state := b.State()
		redisErr := rc.Health(req.Context())

		status := http.StatusOK
		if state != bus.StateListening || redisErr != nil {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"bus":   state.String(),
			"redis": redisErr == nil,
		})
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}
