package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/vikasavnish/savepad/internal/api"
	"github.com/vikasavnish/savepad/internal/billing"
	"github.com/vikasavnish/savepad/internal/config"
	"github.com/vikasavnish/savepad/internal/db"
	"github.com/vikasavnish/savepad/internal/logger"
	"github.com/vikasavnish/savepad/internal/notify"
	"github.com/vikasavnish/savepad/internal/services"
	"github.com/vikasavnish/savepad/internal/tasks"
	"github.com/vikasavnish/savepad/internal/telemetry"
	"github.com/vikasavnish/savepad/internal/websocket"
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	// Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	logger.Setup(cfg.Server.Env, cfg.Server.LogLevel)
	if envErr != nil {
		log.Debug().Msg("no .env file found, using environment variables")
	}
	telemetry.Init(prometheus.DefaultRegisterer)

	// Initialize database connection
	database, err := db.Connect(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("failed to connect to database")
	}

	// Verification codes live in Redis when it is reachable
	var codes services.CodeStore
	redisClient, err := db.ConnectRedis(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, verification codes stored in the database")
		codes = services.NewDBCodeStore(database)
	} else {
		defer redisClient.Close()
		codes = services.NewRedisCodeStore(redisClient)
	}

	var provider billing.Provider = billing.Unconfigured{}
	if mp, err := billing.NewMercadoPago(cfg.MercadoPago.AccessToken); err != nil {
		log.Warn().Err(err).Msg("payment provider disabled")
	} else {
		provider = mp
	}

	dispatcher := notify.NewDispatcher(notify.NewBotClient(notify.BotOptions{
		BaseURL:     cfg.Bot.URL,
		MessagePath: cfg.Bot.MessagePath,
		PaymentPath: cfg.Bot.PaymentPath,
		Token:       cfg.Bot.Token,
		Timeout:     cfg.Bot.Timeout,
	}), cfg.Bot.Timeout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize WebSocket hub
	wsHub := websocket.NewHub()
	go wsHub.Run(ctx)

	// Initialize scheduled tasks
	taskManager := tasks.NewManager(services.NewPlanService(database, provider, wsHub), cfg.Server.SweepEvery)
	taskManager.StartScheduledTasks()

	// Initialize router
	router := api.SetupRouter(api.Dependencies{
		DB:       database,
		Codes:    codes,
		Hub:      wsHub,
		Provider: provider,
		Notifier: dispatcher,
	}, cfg)
	if cfg.Server.PrintRoutes {
		api.PrintRoutes(os.Stdout, router)
	}

	// Set up CORS
	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: []string{"*"}, // Allow all origins for API access
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID", "X-Bot-Token"},
	})

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           corsMiddleware.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Str("env", cfg.Server.Env).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}

	taskManager.StopAllTasks()
	dispatcher.Wait()

	if sqlDB, err := database.DB(); err == nil {
		sqlDB.Close()
	}
	log.Info().Msg("server stopped")
}
