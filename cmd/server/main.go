package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"media-pool/internal/mediapool"
	"media-pool/internal/mediapool/stats"
	"media-pool/internal/platform/config"
	"media-pool/internal/platform/logger"
	"media-pool/internal/platform/metrics"
	"media-pool/internal/platform/ratelimit"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

const (
	shutdownTimeout  = 10 * time.Second
	redisPingTimeout = 3 * time.Second
	janitorInterval  = time.Minute
)

func main() {
	_ = config.Load()

	cfg, err := config.Parse()
	if err != nil {
		logger.New("info", "json").Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	met := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	statsRec, closeStats, err := newStatsRecorder(ctx, cfg)
	if err != nil {
		log.Error("stats backend unavailable", "backend", cfg.StatsBackend, "error", err)
		os.Exit(1)
	}
	defer closeStats()

	recorders := []mediapool.Recorder{mediapool.NewMetricsRecorder(met)}
	if statsRec != nil {
		recorders = append(recorders, statsRec)
	}

	registry := mediapool.NewRegistry(
		mediapool.WithCapacity(map[mediapool.MediaType]int{
			mediapool.Audio: cfg.AudioCapacity,
			mediapool.Video: cfg.VideoCapacity,
		}),
		mediapool.WithFactory(&mediapool.MemoryFactory{AutoReady: cfg.AutoReady}),
		mediapool.WithLogger(log),
		mediapool.WithRecorder(mediapool.MultiRecorder(recorders...)),
	)
	svc := mediapool.NewService(registry, mediapool.NewInMemoryStore(), log)
	var handlerOpts []mediapool.HandlerOption
	if statsRec != nil {
		handlerOpts = append(handlerOpts, mediapool.WithEventCounters(statsRec))
	}
	h := mediapool.NewHandler(svc, log, met, handlerOpts...)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met, "/metrics"))
	r.Get("/metrics", met.Handler(h.RefreshGauges).ServeHTTP)

	r.Group(func(r chi.Router) {
		if cfg.RateEnabled {
			limiter := ratelimit.NewStore(cfg.RateRPS, cfg.RateBurst)
			limiter.StartJanitor(ctx, janitorInterval)
			r.Use(ratelimit.Middleware(limiter, time.Second))
		}
		h.Routes(r)
	})

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"audio_capacity", cfg.AudioCapacity,
		"video_capacity", cfg.VideoCapacity,
		"auto_ready", cfg.AutoReady,
		"stats_backend", cfg.StatsBackend,
		"rate_limit", cfg.RateEnabled,
		"log_level", cfg.LogLevel,
	)

	<-ctx.Done()

	log.Info("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	for _, id := range registry.Containers() {
		registry.Teardown(id)
	}

	log.Info("server stopped")
}

// statsStore records pool events and reads the counters back.
type statsStore interface {
	mediapool.Recorder
	mediapool.EventCounters
}

// newStatsRecorder builds the event store selected by STATS_BACKEND. The
// returned store is nil for "none".
func newStatsRecorder(ctx context.Context, cfg config.Config) (statsStore, func(), error) {
	switch strings.ToLower(cfg.StatsBackend) {
	case "none":
		return nil, func() {}, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.StatsRedisAddr,
			Password: cfg.StatsRedisPassword,
			DB:       cfg.StatsRedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		store := stats.NewRedisStore(rdb,
			stats.WithPrefix(cfg.StatsPrefix),
			stats.WithTTL(cfg.StatsTTL),
		)
		return store, func() { _ = rdb.Close() }, nil
	default:
		return stats.NewMemoryStore(), func() {}, nil
	}
}
