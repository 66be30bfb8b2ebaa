package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"crm-agent-pipeline/internal/config"
	"crm-agent-pipeline/internal/handlers"
	"crm-agent-pipeline/internal/models"
	"crm-agent-pipeline/internal/pkg/logger"
	"crm-agent-pipeline/internal/services"
	"crm-agent-pipeline/internal/storage"
	"crm-agent-pipeline/internal/vector"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := storage.Open(cfg.Database.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	index, err := vector.NewSQLiteIndex(store.DB())
	if err != nil {
		return fmt.Errorf("init vector index: %w", err)
	}

	openaiService := services.NewOpenAIService(cfg.OpenAI, log)

	// redis is best effort: without it the coordinator simply skips
	// progress publishing and workflow state lookups return 404
	var publisher services.WorkflowPublisher
	var stateReader handlers.WorkflowStateReader = unavailableStates{}
	pingers := map[string]handlers.Pinger{"openai": openaiService}

	redisService, err := services.NewRedisService(cfg.Redis, log)
	if err != nil {
		log.Warn("redis unavailable, workflow updates disabled", "error", err.Error())
	} else {
		defer redisService.Close()
		publisher = redisService
		stateReader = redisService
		pingers["redis"] = redisService
	}

	analytics := services.NewAnalyticsAgent(openaiService, store, log)
	research := services.NewResearchAgent(openaiService, openaiService, store, index, log)
	communication := services.NewCommunicationAgent(openaiService, research, analytics, log)
	coordinator := services.NewCoordinator(analytics, research, communication, publisher, log)
	registry := services.NewToolRegistry(coordinator)

	router := handlers.NewRouter(
		handlers.NewAgentsHandler(coordinator, registry, research, communication, stateReader, log),
		handlers.NewAnalyticsHandler(analytics, log),
		handlers.NewCRMHandler(store, log),
		handlers.NewHealthHandler(coordinator, pingers),
		log,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "port", cfg.HTTP.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err.Error())
	}
	if err := coordinator.Close(10 * time.Second); err != nil {
		log.Warn("coordinator drain", "error", err.Error())
	}

	log.Info("shutdown complete")
	return nil
}

// unavailableStates serves workflow lookups when redis is not configured.
type unavailableStates struct{}

func (unavailableStates) GetWorkflowState(context.Context, string) (*models.WorkflowState, error) {
	return nil, models.NewNotFoundError("WORKFLOW_STATE_UNAVAILABLE", "workflow state store is not configured")
}
