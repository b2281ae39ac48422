package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	httpapi "github.com/taskboard/taskboard/internal/api/http"
	"github.com/taskboard/taskboard/internal/application/expiry"
	appLock "github.com/taskboard/taskboard/internal/application/lock"
	"github.com/taskboard/taskboard/internal/application/reorder"
	appTask "github.com/taskboard/taskboard/internal/application/task"
	"github.com/taskboard/taskboard/internal/config"
	"github.com/taskboard/taskboard/internal/infrastructure/postgres"
	"github.com/taskboard/taskboard/internal/infrastructure/sse"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool, "internal/migrations"); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	// repositories
	taskRepo := postgres.NewTaskRepository(pool)
	lockRepo := postgres.NewLockRepository(pool)

	// infrastructure
	sseHub := sse.NewHub()

	// services
	lockSvc := appLock.NewService(lockRepo, sseHub, logger)
	taskSvc := appTask.NewService(taskRepo, sseHub, logger)
	reorderSvc := reorder.NewCoordinator(taskRepo, lockSvc, sseHub, logger)

	sweeper := expiry.New(expiry.Config{
		Interval:   cfg.SweepInterval,
		TTL:        cfg.LockTTL,
		BatchLimit: cfg.SweepLimit,
	}, lockSvc, logger)
	sweeper.Start(ctx)

	// API server
	apiServer := httpapi.NewServer(taskSvc, lockSvc, reorderSvc, sseHub)

	httpServer := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     apiServer.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sweeper.Stop()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
	sseHub.Stop()
}
