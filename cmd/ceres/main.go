package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	_ "github.com/verdealab/ceres/internal/adapter/anthropic"
	_ "github.com/verdealab/ceres/internal/adapter/discord"
	_ "github.com/verdealab/ceres/internal/adapter/elevenlabs"
	"github.com/verdealab/ceres/internal/adapter/gemini"
	ceshttp "github.com/verdealab/ceres/internal/adapter/http"
	"github.com/verdealab/ceres/internal/adapter/lrucache"
	"github.com/verdealab/ceres/internal/adapter/memstore"
	cesnats "github.com/verdealab/ceres/internal/adapter/nats"
	_ "github.com/verdealab/ceres/internal/adapter/openai"
	cotel "github.com/verdealab/ceres/internal/adapter/otel"
	"github.com/verdealab/ceres/internal/adapter/postgres"
	"github.com/verdealab/ceres/internal/adapter/ws"
	"github.com/verdealab/ceres/internal/config"
	"github.com/verdealab/ceres/internal/domain/routing"
	"github.com/verdealab/ceres/internal/logger"
	"github.com/verdealab/ceres/internal/port/broadcast"
	"github.com/verdealab/ceres/internal/port/database"
	"github.com/verdealab/ceres/internal/port/genprovider"
	"github.com/verdealab/ceres/internal/port/notifier"
	"github.com/verdealab/ceres/internal/resilience"
	"github.com/verdealab/ceres/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLogger := logger.New(cfg.Logging)
	defer closeLogger.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"providers", genprovider.Available(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Telemetry ---

	shutdownOtel, err := cotel.Init(ctx, cfg.Logging.Service, cfg.Otel.Endpoint)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		if err := shutdownOtel(context.Background()); err != nil {
			slog.Warn("otel shutdown failed", "error", err)
		}
	}()

	metrics, err := cotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---

	// Persistence: PostgreSQL when a DSN is configured, in-memory otherwise.
	var store database.Store = memstore.New()
	if cfg.Postgres.DSN != "" {
		pool, poolErr := postgres.NewPool(ctx, cfg.Postgres)
		if poolErr != nil {
			return fmt.Errorf("postgres: %w", poolErr)
		}
		defer pool.Close()

		if migErr := postgres.RunMigrations(ctx, cfg.Postgres.DSN); migErr != nil {
			return fmt.Errorf("migrations: %w", migErr)
		}
		store = postgres.NewStore(pool)
		slog.Info("postgres connected, migrations applied")
	} else {
		slog.Info("no postgres DSN, using in-memory store")
	}

	// Eventing: WebSocket hub always, NATS JetStream when configured.
	hub := ws.NewHub()
	broadcasters := broadcast.Multi{hub}
	if cfg.NATS.URL != "" {
		queue, natsErr := cesnats.Connect(ctx, cfg.NATS.URL)
		if natsErr != nil {
			return fmt.Errorf("nats: %w", natsErr)
		}
		defer func() { _ = queue.Close() }()
		broadcasters = append(broadcasters, queue)
	}

	// --- Provider backends ---

	backends, err := buildBackends(cfg)
	if err != nil {
		return fmt.Errorf("backends: %w", err)
	}

	// --- Services ---

	recorder := service.NewRecorder(cfg.Executor.HistoryLimit, store)
	recorder.Restore(ctx)

	router := service.NewRouter(backends, recorder, broadcasters, cfg.Router)
	router.RefreshAvailability()
	router.Repair()
	router.StartOptimizer(ctx)

	responseCache, err := lrucache.New(cfg.Cache.MaxEntries)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	executor := service.NewExecutor(router, recorder, responseCache, cfg.Cache.TTL, cfg.Executor)
	executor.SetMetrics(metrics)

	var sink notifier.Notifier
	if cfg.Notify.DiscordWebhook != "" {
		sink, err = notifier.New("discord", map[string]string{
			"webhook_url": cfg.Notify.DiscordWebhook,
		})
		if err != nil {
			return fmt.Errorf("notifier: %w", err)
		}
	}

	engine := service.NewEngine(executor, service.NewInterpreter(), store, sink, broadcasters, cfg.Engine)
	engine.SetMetrics(metrics)
	engine.Restore(ctx)

	// --- HTTP ---

	handlers := &ceshttp.Handlers{
		Classifier: service.NewClassifier(),
		Executor:   executor,
		Engine:     engine,
		Router:     router,
		Recorder:   recorder,
	}

	r := chi.NewRouter()
	r.Use(ceshttp.CORS(cfg.Server.CORSOrigin))
	r.Use(cotel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(ceshttp.RequestID)
	r.Use(ceshttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/health", healthHandler(router, hub))
	r.Get("/ws", hub.HandleWS)
	ceshttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// buildBackends instantiates every registered provider backend from its
// config section. Backends with no API key stay registered but
// unreachable, so the router can route around them.
func buildBackends(cfg *config.Config) (map[routing.Provider]genprovider.Backend, error) {
	sections := map[routing.Provider]config.Provider{
		routing.ProviderOpenAI:     cfg.Providers.OpenAI,
		routing.ProviderClaude:     cfg.Providers.Claude,
		routing.ProviderGemini:     cfg.Providers.Gemini,
		routing.ProviderElevenLabs: cfg.Providers.ElevenLabs,
	}

	backends := make(map[routing.Provider]genprovider.Backend, len(sections))
	for name, section := range sections {
		b, err := genprovider.New(name, genprovider.Config{
			APIKey:      section.APIKey,
			BaseURL:     section.BaseURL,
			Model:       section.Model,
			MaxTokens:   section.MaxTokens,
			Temperature: section.Temperature,
			VoiceID:     section.VoiceID,
		})
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		backends[name] = b
	}

	// The raw-HTTP backends get circuit breakers.
	if g, ok := backends[routing.ProviderGemini].(*gemini.Backend); ok {
		g.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
	}
	if e, ok := backends[routing.ProviderElevenLabs].(interface {
		SetBreaker(*resilience.Breaker)
	}); ok {
		e.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
	}

	return backends, nil
}

// healthHandler reports service status, provider reachability and the
// number of connected WebSocket clients.
func healthHandler(router *service.Router, hub *ws.Hub) http.HandlerFunc {
	type healthStatus struct {
		Status    string                    `json:"status"`
		WSClients int                       `json:"ws_clients"`
		Providers map[routing.Provider]bool `json:"providers"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		reachable := make(map[routing.Provider]bool, len(routing.Providers()))
		for _, p := range routing.Providers() {
			reachable[p] = router.Reachable(p)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(healthStatus{
			Status:    "ok",
			WSClients: hub.ConnectionCount(),
			Providers: reachable,
		})
	}
}
