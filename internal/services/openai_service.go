package services

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sony/gobreaker"

	"crm-agent-pipeline/internal/config"
	"crm-agent-pipeline/internal/models"
	"crm-agent-pipeline/internal/pkg/logger"
	"crm-agent-pipeline/internal/pkg/retry"
)

// ChatMessage is the provider-neutral message shape agents build prompts
// with.
type ChatMessage struct {
	Role    string `json:"role"` // system | user | assistant
	Content string `json:"content"`
}

// ChatClient is the generative-text capability consumed by the agents.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, messages []ChatMessage) (string, error)
}

// EmbeddingClient is the embedding capability consumed by the research
// agent and the index manager.
type EmbeddingClient interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// OpenAIService wraps the OpenAI client with retries, a circuit breaker
// and a per-call timeout. It implements both ChatClient and
// EmbeddingClient.
type OpenAIService struct {
	client  openai.Client
	cfg     config.OpenAIConfig
	retries retry.Options
	breaker *gobreaker.CircuitBreaker
	logger  *logger.Logger
}

func NewOpenAIService(cfg config.OpenAIConfig, log *logger.Logger) *OpenAIService {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openai",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &OpenAIService{
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		cfg:    cfg,
		retries: retry.Options{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   cfg.RetryDelay,
			MaxDelay:    10 * cfg.RetryDelay,
			Exponential: true,
		},
		breaker: breaker,
		logger:  log,
	}
}

func (s *OpenAIService) CreateChatCompletion(ctx context.Context, messages []ChatMessage) (string, error) {
	start := time.Now()

	text, err := retry.Do(ctx, s.retries, func() (string, error) {
		result, err := s.breaker.Execute(func() (interface{}, error) {
			return s.chatOnce(ctx, messages)
		})
		if err != nil {
			return "", err
		}
		return result.(string), nil
	})

	s.logger.LogService("openai", "chat_completion", time.Since(start), map[string]interface{}{
		"model":    s.cfg.Model,
		"messages": len(messages),
	}, err)

	if err != nil {
		return "", models.WrapExternalError("OPENAI_CHAT_FAILED", "chat completion failed", err)
	}
	return text, nil
}

func (s *OpenAIService) chatOnce(ctx context.Context, messages []ChatMessage) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(s.cfg.Model),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			params.Messages = append(params.Messages, openai.SystemMessage(msg.Content))
		case "assistant":
			params.Messages = append(params.Messages, openai.AssistantMessage(msg.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(msg.Content))
		}
	}

	resp, err := s.client.Chat.Completions.New(callCtx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func (s *OpenAIService) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()

	embedding, err := retry.Do(ctx, s.retries, func() ([]float32, error) {
		result, err := s.breaker.Execute(func() (interface{}, error) {
			return s.embedOnce(ctx, text)
		})
		if err != nil {
			return nil, err
		}
		return result.([]float32), nil
	})

	s.logger.LogService("openai", "embedding", time.Since(start), map[string]interface{}{
		"model":       s.cfg.EmbeddingModel,
		"text_length": len(text),
	}, err)

	if err != nil {
		return nil, models.WrapExternalError("OPENAI_EMBED_FAILED", "embedding failed", err)
	}
	return embedding, nil
}

func (s *OpenAIService) embedOnce(ctx context.Context, text string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	resp, err := s.client.Embeddings.New(callCtx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(s.cfg.EmbeddingModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding data returned")
	}

	raw := resp.Data[0].Embedding
	embedding := make([]float32, len(raw))
	for i, v := range raw {
		embedding[i] = float32(v)
	}
	return embedding, nil
}

// HealthCheck issues a minimal completion to verify the upstream is
// reachable.
func (s *OpenAIService) HealthCheck(ctx context.Context) error {
	_, err := s.CreateChatCompletion(ctx, []ChatMessage{{Role: "user", Content: "ping"}})
	return err
}
