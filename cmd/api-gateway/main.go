package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sanazindustrial/PROFGINE-sub004/app"
	"github.com/sanazindustrial/PROFGINE-sub004/config"
	"github.com/sanazindustrial/PROFGINE-sub004/internal/observability"
	"github.com/sanazindustrial/PROFGINE-sub004/routes"
	"go.uber.org/zap"
)

func main() {
	logger, err := initLogger()
	if err != nil {
		// No logger yet
		_, _ = os.Stderr.WriteString("failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger); err != nil {
		logger.Fatal("gateway stopped with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.New(ctx)
	if err != nil {
		return err
	}

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           routes.SetupRoutes(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("api-gateway listening",
			zap.String("addr", srv.Addr),
			zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			_ = deps.Close(context.Background())
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}
	return deps.Close(shutdownCtx)
}

// initLogger builds the process logger from LOG_LEVEL and LOG_FORMAT
func initLogger() (*zap.Logger, error) {
	return observability.NewLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}
