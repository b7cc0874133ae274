package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/edulive/session-knowledge/internal/app"
	"github.com/edulive/session-knowledge/internal/config"
	"github.com/edulive/session-knowledge/internal/database"
	"github.com/edulive/session-knowledge/internal/handler"
	"github.com/edulive/session-knowledge/internal/jobs"
	"github.com/edulive/session-knowledge/internal/mcpserver"
	"github.com/edulive/session-knowledge/internal/middleware"
	"github.com/edulive/session-knowledge/internal/redis"
)

var version = "dev"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	a := app.New(cfg, db, redisClient)
	defer a.Broker.Close()

	authMiddleware := middleware.NewAuthMiddleware(a.Users)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(
		middleware.NewRedisRateLimiter(redisClient.Client), cfg.QARateLimitPerMin,
	)
	webhookSignatureMiddleware := middleware.NewWebhookSignatureMiddleware(cfg.DailyWebhookSecret)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	webhookHandler := handler.NewWebhookHandler(a.WebhookRouter)
	sessionHandler := handler.NewSessionHandler(a.SessionService)
	askHandler := handler.NewAskHandler(a.Questions)
	eventsHandler := handler.NewEventsHandler(a.Broker, a.Questions)
	mcpHandler := mcpserver.Handler(mcpserver.New(a.Questions, version))

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeadersMiddleware.Handler)
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	// Sync mode runs the whole pipeline inside the webhook request, so this
	// route gets no request timeout of its own.
	r.Route("/webhooks", func(r chi.Router) {
		r.Use(webhookSignatureMiddleware.Handler)
		r.Post("/daily", webhookHandler.ServeHTTP)
	})

	r.Route("/v1/sessions/{id}", func(r chi.Router) {
		r.Use(authMiddleware.Handler)
		r.Get("/events", eventsHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
			r.Post("/start", sessionHandler.Start)
			r.Post("/end", sessionHandler.End)
			r.Get("/recording", askHandler.Recording)
			r.With(rateLimitMiddleware.Handler).Post("/ask", askHandler.Ask)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handler)
		r.Use(rateLimitMiddleware.Handler)
		r.Handle("/mcp", mcpHandler)
	})

	runner := jobs.NewRunner(a.Queue, config.JobPollInterval, config.JobClaimBatch, config.JobTimeout)
	a.RegisterJobs(runner)
	runner.Start()

	sweepJob := jobs.NewSessionSweepJob(a.SessionService, config.SessionSweepInterval)
	sweepJob.Start()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().
			Str("addr", cfg.Addr()).
			Str("pipelineMode", cfg.PipelineMode).
			Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	sweepJob.Stop()
	runner.Stop()

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
