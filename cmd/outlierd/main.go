package main

import (
	"context"
	stderrors "errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"gooutlier/internal/config"
	"gooutlier/internal/container"
	"gooutlier/internal/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	detector, err := config.LoadDetector(cfg.Pipeline.DetectorFile)
	if err != nil {
		log.Fatalf("Failed to load detector config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := container.New(cfg, detector, logger)
	if err != nil {
		log.Fatalf("Failed to create container: %v", err)
	}
	if err := c.Init(ctx); err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	// workers outlive the signal context so queued points drain on shutdown
	if err := c.StartRunner(context.Background(), nil); err != nil {
		log.Fatalf("Failed to start workers: %v", err)
	}

	ingest, err := c.IngestRouter()
	if err != nil {
		log.Fatalf("Failed to build ingest router: %v", err)
	}

	servers := []*http.Server{
		{Addr: ":" + cfg.Server.Port, Handler: ingest, ReadHeaderTimeout: 10 * time.Second},
		{Addr: ":" + cfg.Server.OpsPort, Handler: c.OpsRouter(), ReadHeaderTimeout: 10 * time.Second},
	}
	for _, srv := range servers {
		srv := srv
		go func() {
			logger.Info("listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				logger.Error("server failed", zap.String("addr", srv.Addr), zap.Error(err))
				stop()
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.String("addr", srv.Addr), zap.Error(err))
		}
	}
	if err := c.Close(); err != nil {
		logger.Error("failed to drain pipeline", zap.Error(err))
	}
}
