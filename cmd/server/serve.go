package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/severalx/site/internal/api"
	"github.com/severalx/site/internal/chat"
	"github.com/severalx/site/internal/chatws"
	"github.com/severalx/site/internal/config"
	"github.com/severalx/site/internal/content"
	"github.com/severalx/site/internal/ghost"
	"github.com/severalx/site/internal/identity"
	"github.com/severalx/site/internal/mail"
	"github.com/severalx/site/internal/metrics"
	"github.com/severalx/site/internal/middleware"
	"github.com/severalx/site/internal/ratelimit"
	"github.com/severalx/site/internal/store"
	"github.com/severalx/site/web"
)

const rateLimitPrefix = "site:ratelimit:"

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

// server holds everything the router needs.
type server struct {
	cfg     *config.Config
	repo    store.Repository
	metrics *metrics.Metrics
	limiter ratelimit.Limiter
	mailer  mail.Mailer
	chat    *chat.Client
	ghost   *ghost.Client
	sockets *chatws.SessionManager
}

// newServer builds the upstream clients for cfg. The caller owns repo and limiter.
func newServer(cfg *config.Config, repo store.Repository, limiter ratelimit.Limiter, reg *prometheus.Registry) *server {
	m := metrics.New(reg)
	return &server{
		cfg:     cfg,
		repo:    repo,
		metrics: m,
		limiter: limiter,
		mailer:  mail.New(cfg.SMTP),
		chat: chat.NewClient(cfg.Chat.BaseURL, cfg.Chat.Timeout,
			chat.WithAskURL(cfg.Chat.AskURL),
			chat.WithAPIKey(cfg.Chat.APIKey),
			chat.WithMetrics(m),
		),
		ghost:   ghost.NewClient(cfg.Ghost.URL, cfg.Ghost.Key, ghost.WithMetrics(m)),
		sockets: chatws.NewSessionManager(),
	}
}

// routes wires middleware and handlers.
func (s *server) routes() http.Handler {
	isDev := s.cfg.IsDevelopment()

	relay := content.NewClient(s.cfg.SiteURL, content.WithMetrics(s.metrics))
	showcase := content.NewAggregator(relay, content.DefaultDisplayLimit)

	base := api.NewHandler(s.repo, s.limiter, s.metrics)
	publications := api.NewPublicationsHandler(base, s.ghost, showcase)
	auth := api.NewAuthHandler(base, s.chat, s.mailer, s.cfg.SMTP.FromEmail)
	contact := api.NewContactHandler(base, s.mailer, s.cfg)
	assistant := api.NewAssistantHandler(base, s.chat)
	ws := chatws.NewHandler(s.chat, s.sockets, s.cfg.AllowedOrigins, isDev, s.metrics)

	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(s.cfg.AllowedOrigins))
	r.Use(identity.Middleware(isDev))

	base.RegisterRoutes(r)
	publications.RegisterRoutes(r)
	auth.RegisterRoutes(r)
	contact.RegisterRoutes(r)
	assistant.RegisterRoutes(r)

	r.Handle("/metrics", s.metrics.Handler())

	// WebSocket endpoint.
	r.Get("/ws/chat", ws.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	return r
}

// newLimiter returns a Redis limiter when REDIS_ADDR is set, an in-process
// one otherwise. The returned func releases it.
func newLimiter(ctx context.Context, cfg *config.Config) (ratelimit.Limiter, func(), error) {
	if cfg.Redis.Addr == "" {
		l := ratelimit.NewMemory(cfg.RateLimit.Requests, cfg.RateLimit.Window)
		return l, l.Stop, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			slog.Error("Failed to close redis client", "error", err)
		}
	}
	return ratelimit.NewRedis(client, rateLimitPrefix, cfg.RateLimit.Requests, cfg.RateLimit.Window), closeFn, nil
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return err
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "version", version)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(parent); err != nil {
		slog.Error("Database health check failed", "error", err)
		return err
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	limiter, releaseLimiter, err := newLimiter(parent, cfg)
	if err != nil {
		slog.Error("Failed to initialize rate limiter", "error", err)
		return err
	}
	defer releaseLimiter()

	if missing := cfg.MissingSMTP(); len(missing) > 0 {
		slog.Warn("Contact form disabled until SMTP is configured", "missing", missing)
	}
	if cfg.Chat.BaseURL == "" {
		slog.Warn("Chat base URL not configured; session routes will return 500")
	}
	if cfg.Ghost.URL == "" || cfg.Ghost.Key == "" {
		slog.Warn("Ghost credentials not configured; publications will return 503")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s := newServer(cfg, repo, limiter, reg)

	// Create server.
	// No WriteTimeout: /ws/chat and streamed assistant answers are long-lived.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or a listener failure.
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			slog.Error("Server failed", "error", err)
			return err
		}
	}
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.sockets.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return err
	}

	slog.Info("Server stopped successfully")
	return nil
}
