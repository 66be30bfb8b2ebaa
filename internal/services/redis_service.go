package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"crm-agent-pipeline/internal/config"
	"crm-agent-pipeline/internal/models"
	"crm-agent-pipeline/internal/pkg/logger"
)

const (
	agentUpdateStreamPrefix = "agent-updates:"
	workflowStatePrefix     = "workflow-state:"
	workflowStateTTL        = 24 * time.Hour
	agentUpdateStreamMaxLen = 1000
)

// WorkflowPublisher is the coordinator's view of the update/state store.
// Publishing is best effort; the coordinator logs failures and moves on.
type WorkflowPublisher interface {
	PublishAgentUpdate(ctx context.Context, update models.AgentUpdate) error
	StoreWorkflowState(ctx context.Context, state *models.WorkflowState) error
}

// RedisService publishes per-agent progress updates to a per-workflow
// stream and persists workflow state snapshots.
type RedisService struct {
	client *redis.Client
	logger *logger.Logger
}

func NewRedisService(cfg config.RedisConfig, log *logger.Logger) (*RedisService, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Info("redis connected", "pool_size", cfg.PoolSize)
	return &RedisService{client: client, logger: log}, nil
}

func (s *RedisService) PublishAgentUpdate(ctx context.Context, update models.AgentUpdate) error {
	start := time.Now()

	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal agent update: %w", err)
	}

	stream := agentUpdateStreamPrefix + update.WorkflowID
	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: agentUpdateStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data":      string(payload),
			"agent":     update.Agent,
			"status":    update.Status,
			"timestamp": update.Timestamp.Format(time.RFC3339),
		},
	}).Err()

	s.logger.LogService("redis", "publish_agent_update", time.Since(start), map[string]interface{}{
		"workflow_id": update.WorkflowID,
		"agent":       update.Agent,
		"status":      update.Status,
	}, err)

	return err
}

func (s *RedisService) StoreWorkflowState(ctx context.Context, state *models.WorkflowState) error {
	start := time.Now()

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal workflow state: %w", err)
	}

	err = s.client.Set(ctx, workflowStatePrefix+state.WorkflowID, payload, workflowStateTTL).Err()

	s.logger.LogService("redis", "store_workflow_state", time.Since(start), map[string]interface{}{
		"workflow_id": state.WorkflowID,
		"status":      state.Status,
	}, err)

	return err
}

func (s *RedisService) GetWorkflowState(ctx context.Context, workflowID string) (*models.WorkflowState, error) {
	payload, err := s.client.Get(ctx, workflowStatePrefix+workflowID).Bytes()
	if err == redis.Nil {
		return nil, models.NewNotFoundError("WORKFLOW_NOT_FOUND", fmt.Sprintf("workflow %s not found", workflowID))
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow state: %w", err)
	}

	var state models.WorkflowState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("unmarshal workflow state: %w", err)
	}
	return &state, nil
}

func (s *RedisService) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisService) Close() error {
	return s.client.Close()
}
