package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/technosupport/roomview/internal/api"
	"github.com/technosupport/roomview/internal/config"
	"github.com/technosupport/roomview/internal/discovery"
	"github.com/technosupport/roomview/internal/events"
	"github.com/technosupport/roomview/internal/live"
	"github.com/technosupport/roomview/internal/middleware"
	"github.com/technosupport/roomview/internal/placeos"
	"github.com/technosupport/roomview/internal/ptz"
	"github.com/technosupport/roomview/internal/ratelimit"
)

func main() {
	// 1. Config
	cfg, err := config.Load(config.DefaultPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Logger
	level := zap.NewAtomicLevelAt(parseLevel(cfg.LogLevel))
	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	logger, err := zcfg.Build()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Components
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		// limiter and preview cache both degrade without Redis
		logger.Warn("Redis unreachable, continuing without shared cache", zap.Error(err))
	}

	publisher, err := events.Open(cfg.Events, logger)
	if err != nil {
		logger.Warn("Event publisher unavailable, events disabled", zap.Error(err))
		publisher = events.Nop{}
	}
	defer publisher.Close()

	platform := placeos.NewClient(cfg.Platform.BaseURL, cfg.Platform.Token, cfg.Platform.RequestTimeout, logger)
	bindings, err := placeos.NewRealtime(cfg.Platform.WebsocketURL, cfg.Platform.Token, logger)
	if err != nil {
		logger.Fatal("Invalid platform websocket url", zap.Error(err))
	}
	defer bindings.Close()

	cache := discovery.NewPreviewCache(cfg.Discovery.CacheSize, cfg.Discovery.CacheTTL, rdb, logger)
	discoverySvc := discovery.NewService(cfg.Discovery, bindings, cache, publisher, logger)

	limiter := ratelimit.NewLimiter(rdb, cfg.RateLimit.Salt)
	telemetry := live.NewTelemetryService(limiter, cfg.Live.TelemetryLimit, publisher, logger)

	ptzOpts := ptz.Options{
		RepeatInterval: cfg.PTZ.RepeatInterval,
		MaxRadius:      cfg.PTZ.MaxRadius,
		Deadzone:       cfg.PTZ.Deadzone,
		CommandTimeout: cfg.PTZ.CommandTimeout,
		Publisher:      publisher,
		Logger:         logger,
	}
	homes := ptz.NewHomeGuard(platform, publisher, logger)

	systems := api.NewSystemsHandler(platform, discoverySvc, cfg.Platform.PageSize, logger)
	systems.Latency = live.LatencyPolicy{
		IntervalMs: cfg.Live.LatencyInterval.Milliseconds(),
		MaxBuffer:  cfg.Live.MaxBuffer,
		SeekBack:   live.DefaultLatencyPolicy().SeekBack,
	}
	systems.Refresh = cfg.Live.PreviewRefresh
	telemetry.Policy = systems.Latency

	handlers := api.Handlers{
		Systems:   systems,
		PTZ:       api.NewPTZHandler(platform, homes, ptzOpts, cfg.Server.AllowedOrigins, logger),
		Telemetry: api.NewTelemetryHandler(telemetry),
	}

	// Discovery settings and log level follow the config file.
	config.Watch(ctx, config.DefaultPath, time.Minute, logger, func(next *config.Config) {
		discoverySvc.Reconfigure(next.Discovery)
		level.SetLevel(parseLevel(next.LogLevel))
	})

	// 4. Routing
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(middleware.Metrics)
	if cfg.RateLimit.Enabled {
		rl := middleware.NewRateLimitMiddleware(limiter, cfg.RateLimit.GlobalIP, logger)
		r.Use(rl.GlobalLimiter)
	}

	// Health & Metrics
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	handlers.Register(r)

	// 5. Start Server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.Int("port", cfg.Server.Port), zap.String("strategy", cfg.Discovery.Strategy))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", zap.Error(err))
			cancel()
		}
	}()

	// 6. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	cancel()
}

func parseLevel(s string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(s)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}
