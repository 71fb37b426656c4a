package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tachyonlabs/modelgate/app"
	"github.com/tachyonlabs/modelgate/config"
	"github.com/tachyonlabs/modelgate/routes"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	deps, err := app.NewDependencies(cfg)
	if err != nil {
		log.Fatalf("failed to initialize dependencies: %v", err)
	}
	defer deps.Cleanup()

	logger := deps.Logger

	if deps.DB != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := deps.DB.InitSchema(ctx); err != nil {
			cancel()
			logger.Fatal("failed to initialize audit schema", zap.Error(err))
		}
		cancel()
	}

	router := routes.New(routes.Dependencies{
		ChatHandler:     deps.ChatHandler,
		ProviderHandler: deps.ProviderHandler,
		FlagsHandler:    deps.FlagsHandler,
		HealthHandler:   deps.HealthHandler,
		SessionService:  deps.Session,
		Logger:          logger,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
	})

	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting server",
			zap.String("address", cfg.Server.Address()),
			zap.String("environment", cfg.Environment))

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
