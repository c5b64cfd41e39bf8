package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/eaedk/rule-engine/internal/cache"
	"github.com/eaedk/rule-engine/internal/config"
	"github.com/eaedk/rule-engine/internal/database"
	"github.com/eaedk/rule-engine/internal/engine"
	"github.com/eaedk/rule-engine/internal/events"
	"github.com/eaedk/rule-engine/internal/features"
	"github.com/eaedk/rule-engine/internal/handler"
	"github.com/eaedk/rule-engine/internal/metrics"
	"github.com/eaedk/rule-engine/internal/middleware"
	"github.com/eaedk/rule-engine/internal/service"
	"github.com/eaedk/rule-engine/internal/tracing"
)

func main() {
	configFile := flag.String("config", "", "Path to JSON config file")
	port := flag.String("port", "", "Server port (overrides config)")
	dbPath := flag.String("db", "", "Database file path (overrides config)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize tracing
	if _, err := tracing.InitTracing(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: "rule-engine-api",
		Environment: cfg.Tracing.Environment,
	}); err != nil {
		logger.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize database and seed default rules
	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to initialize database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	if err := db.SeedRules(database.DefaultRules); err != nil {
		logger.Error("failed to seed default rules", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Feature flags
	flags := features.NewManager()
	flags.Register(features.FeatureCacheEnabled, cfg.Cache.Enabled, "Cache the active rule set between checks")
	flags.Register(features.FeatureEventHooksEnabled, cfg.Features.EventHooks, "Publish domain events")
	flags.Register(features.FeatureParallelEvaluation, cfg.Features.ParallelEvaluation, "Evaluate rules concurrently")

	// Rule set cache: Redis when configured, in-memory otherwise
	var ruleCache cache.Cache
	if cfg.Cache.RedisAddr != "" {
		redisCache, err := cache.NewRedisCache(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			logger.Error("failed to connect to Redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer redisCache.Close()
		ruleCache = redisCache
	} else {
		ruleCache = cache.NewInMemoryCache()
	}

	// Event bus with a logging sink
	bus := events.NewBus(logger)
	for _, t := range []events.EventType{
		events.EventRuleCreated,
		events.EventRuleUpdated,
		events.EventRuleDeleted,
		events.EventTransactionChecked,
		events.EventTransactionSaved,
	} {
		bus.Subscribe(t, func(ctx context.Context, event events.Event) error {
			logger.InfoContext(ctx, "event", slog.String("type", string(event.Type)))
			return nil
		})
	}
	defer bus.Shutdown()

	// Metrics, engine, service, handlers
	collector := metrics.NewCollector()

	eng := engine.New(logger,
		engine.WithMetrics(collector),
		engine.WithParallel(flags.IsEnabled(features.FeatureParallelEvaluation)),
	)

	svc := service.NewService(db, eng, service.Options{
		Cache:      ruleCache,
		Bus:        bus,
		Flags:      flags,
		Collector:  collector,
		Logger:     logger,
		RuleSetTTL: time.Duration(cfg.Cache.RuleSetTTL) * time.Second,
	})

	h := handler.NewHandlerWithOptions(svc, handler.NewHandlerOptions{
		MaxBodySize: cfg.Security.MaxRequestBodySize,
	})

	// Rate limiter
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Rate, time.Duration(cfg.RateLimit.Window)*time.Second)
	defer rateLimiter.Stop()

	// Setup router
	r := chi.NewRouter()

	// Middleware (order matters)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.MetricsMiddleware(collector))
	if cfg.Tracing.Enabled {
		r.Use(middleware.TracingMiddleware())
	}
	if cfg.RateLimit.Enabled {
		r.Use(middleware.RateLimitMiddleware(rateLimiter))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.Security.AllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Routes
	r.Route("/rules", func(r chi.Router) {
		r.Post("/", h.CreateRules)
		r.Get("/", h.ListRules)
		r.Get("/{id}", h.GetRule)
		r.Put("/{id}", h.UpdateRule)
		r.Delete("/{id}", h.DeleteRule)
	})

	r.Route("/transactions", func(r chi.Router) {
		r.Post("/check-transaction", h.CheckTransaction)
		r.Post("/save-transaction", h.SaveTransaction)
	})

	r.Handle("/metrics", collector.Handler())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Info("starting server",
		slog.String("addr", addr),
		slog.String("database", cfg.Database.Path))

	server := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("error shutting down server", slog.String("error", err.Error()))
		}
		if err := tracing.Shutdown(ctx); err != nil {
			logger.Error("error shutting down tracing", slog.String("error", err.Error()))
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
