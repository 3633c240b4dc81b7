package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	httpapi "github.com/delegation-hub/delegation-hub/internal/api/http"
	"github.com/delegation-hub/delegation-hub/internal/application/dispatch"
	"github.com/delegation-hub/delegation-hub/internal/application/orchestrator"
	appRobot "github.com/delegation-hub/delegation-hub/internal/application/robot"
	"github.com/delegation-hub/delegation-hub/internal/application/scoring"
	appTask "github.com/delegation-hub/delegation-hub/internal/application/task"
	"github.com/delegation-hub/delegation-hub/internal/config"
	"github.com/delegation-hub/delegation-hub/internal/domain/robot"
	"github.com/delegation-hub/delegation-hub/internal/domain/task"
	"github.com/delegation-hub/delegation-hub/internal/infrastructure/channel"
	"github.com/delegation-hub/delegation-hub/internal/infrastructure/memory"
	"github.com/delegation-hub/delegation-hub/internal/infrastructure/metrics"
	"github.com/delegation-hub/delegation-hub/internal/infrastructure/postgres"
	"github.com/delegation-hub/delegation-hub/internal/infrastructure/prediction"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()

	// repositories
	var taskRepo task.Repository
	var robotRepo robot.Repository
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db error: %v", err)
		}
		defer pool.Close()
		if err := postgres.RunMigrations(ctx, pool, "internal/migrations"); err != nil {
			log.Fatalf("migration error: %v", err)
		}
		taskRepo = postgres.NewTaskRepository(pool)
		robotRepo = postgres.NewRobotRepository(pool)
		logger.Info().Msg("using postgres store")
	} else {
		taskRepo = memory.NewTaskRepository()
		robotRepo = memory.NewRobotRepository()
		logger.Warn().Msg("DATABASE_URL not set; using in-memory store")
	}

	// infrastructure
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	hub := channel.NewHub(m, logger)

	var predictor scoring.Predictor
	if cfg.PredictionURL != "" {
		predictor = prediction.NewClient(cfg.PredictionURL)
	}

	// services
	robotSvc := appRobot.NewService(robotRepo, logger)
	scorer := scoring.NewScorer(robotSvc, predictor, cfg.PredictionTimeout, m, logger)
	dispatcher := dispatch.NewDispatcher(hub, cfg.DispatchTimeout, cfg.DispatchTimeouts, m, logger)
	orchestratorSvc := orchestrator.NewOrchestrator(taskRepo, scorer, dispatcher, m, cfg.MaxDispatchAttempts, cfg.RobotMaxConcurrent, logger)
	taskSvc := appTask.NewService(taskRepo, orchestratorSvc, m, true, logger)

	// API server
	apiServer := httpapi.NewServer(taskSvc, robotSvc, hub, registry, logger)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// start server
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
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}
