package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carebridge/cds-agent/internal/config"
	"github.com/carebridge/cds-agent/internal/dashboard"
	"github.com/carebridge/cds-agent/internal/domain/inference"
	"github.com/carebridge/cds-agent/internal/platform/gateway"
	"github.com/carebridge/cds-agent/internal/platform/middleware"
	"github.com/carebridge/cds-agent/internal/platform/notify"
	"github.com/carebridge/cds-agent/internal/platform/realtime"
	"github.com/carebridge/cds-agent/internal/platform/session"
	"github.com/carebridge/cds-agent/internal/platform/status"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cds-agent",
		Short: "Clinical decision support dashboard agent",
	}

	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent()
		},
	}
}

func runAgent() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Session
	sess := session.NewManager(cfg.AuthToken, logger)
	if cfg.AuthToken == "" {
		logger.Warn().Msg("AUTH_TOKEN not set; waiting for the shell to provide a session token")
	}

	// Gateway client
	gw := gateway.NewClient(cfg.GatewayURL, sess, logger)

	// Notifications and page hooks
	queue := notify.NewQueue(logger)
	hooks := notify.NewHookRegistry(logger)

	// Inference job service (store + polling reconciler)
	store := inference.NewStore()
	jobs := inference.NewService(store, gw, queue, logger)

	// Realtime transport, one manager per event category
	orders := realtime.NewManager(realtime.CategoryOrderChange, cfg.WSBaseURL, sess, logger)
	inferFeed := realtime.NewManager(realtime.CategoryInference, cfg.WSBaseURL, sess, logger)

	// Dashboard runtime
	rt := dashboard.New(sess, orders, inferFeed, jobs, queue, hooks, logger)
	rt.Start()
	defer rt.Stop()

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))

	statusHandler := status.NewHandler(rt, sess)
	statusHandler.RegisterRoutes(e.Group("/api/v1"))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting agent")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down agent")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("agent stopped")
	return nil
}
