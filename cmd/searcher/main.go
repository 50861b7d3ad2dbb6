package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/webindex/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/searcher/reload"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/store"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/webindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/webindex/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "index_dir", cfg.Search.IndexDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	norm := tokenizer.New(tokenizer.WithStopwords(cfg.Search.Stopwords))
	engine, err := executor.Open(cfg.Search, parser.New(norm, true))
	if err != nil {
		slog.Error("failed to load index", "dir", cfg.Search.IndexDir, "error", err, "code", apperrors.Code(err))
		os.Exit(apperrors.ExitCode(err))
	}
	defer engine.Close()
	manifest := engine.Manifest()
	m.IndexTerms.Set(float64(manifest.Terms))
	m.IndexDocuments.Set(float64(manifest.Documents))

	checker := health.NewChecker()
	checker.Register("index", engine.HealthCheck)

	var queryCache *cache.QueryCache
	if cfg.Redis.Addr != "" {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			breaker := resilience.NewBreaker("redis", resilience.BreakerConfig{
				OnStateChange: func(name string, to resilience.State) {
					m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				},
			})
			queryCache = cache.New(redisClient, cfg.Redis, breaker, m)
			checker.Register("redis", redisClient.HealthCheck, health.Optional())
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var collector *analytics.Collector
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, kafka.ProducerOptions{})
		defer producer.Close()
		collector = analytics.NewCollector(producer, analytics.CollectorOptions{BufferSize: 10000})
		collector.Start(ctx)
		defer func() {
			collector.Close()
			slog.Info("analytics collector stopped", "dropped_events", collector.Dropped())
		}()

		var invalidator reload.Invalidator
		if queryCache != nil {
			invalidator = queryCache
		}
		onComplete := reload.HandleMessage(engine, invalidator, reload.Options{
			Dir:   cfg.Search.IndexDir,
			Grace: 2 * cfg.Search.QueryTimeout,
			OnReload: func(manifest store.Manifest) {
				m.IndexTerms.Set(float64(manifest.Terms))
				m.IndexDocuments.Set(float64(manifest.Documents))
			},
		})
		reloader := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete, onComplete)
		defer reloader.Close()
		go func() {
			if err := reloader.Start(ctx); err != nil {
				slog.Error("index reload consumer stopped", "error", err)
			}
		}()
		slog.Info("kafka wiring enabled",
			"analytics_topic", cfg.Kafka.Topics.AnalyticsEvents,
			"reload_topic", cfg.Kafka.Topics.IndexComplete,
		)
	}

	h := handler.New(engine, queryCache, collector, m)
	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	mws := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.Metrics(m, append(handler.Routes(), "/health/live", "/health/ready", "/metrics")...),
		middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins)),
	}
	if cfg.Server.RateLimit > 0 {
		limiter := ratelimit.New(cfg.Server.RateLimit, cfg.Server.RateWindow)
		defer limiter.Close()
		mws = append(mws, middleware.RateLimit(limiter))
	}
	mws = append(mws, middleware.Timeout(cfg.Server.WriteTimeout))
	chain := middleware.Chain(mux, mws...)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}
