package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

// ErrGenerationFailed 叙事模型调用失败
var ErrGenerationFailed = errors.New("叙事生成失败")

// TurnGenerator 产出模型原始回复（未经清洗）
type TurnGenerator interface {
	GenerateTurn(ctx context.Context, req TurnRequest) (string, error)
}

// LLMService 基于 OpenAI 兼容接口的叙事生成
type LLMService struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

func NewLLMService(cfg models.LLMConfig, logger *zap.Logger) *LLMService {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIBase != "" {
		clientCfg.BaseURL = cfg.APIBase
	}
	return &LLMService{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger.Named("LLMService"),
	}
}

// GenerateTurn 请求下一回合的 JSON 回复
func (s *LLMService) GenerateTurn(ctx context.Context, req TurnRequest) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: BuildSystemPrompt(req.Scenario, req.Rules)},
		{Role: openai.ChatMessageRoleUser, Content: BuildTurnPrompt(req)},
	}

	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    messages,
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	duration := time.Since(start)
	llmRequestDuration.WithLabelValues(s.model).Observe(duration.Seconds())

	if err != nil {
		llmRequestsTotal.WithLabelValues(s.model, "error").Inc()
		s.logger.Error("叙事模型请求失败", zap.Error(err), zap.Duration("duration", duration))
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		llmRequestsTotal.WithLabelValues(s.model, "error_empty_response").Inc()
		return "", fmt.Errorf("%w: 收到空回复", ErrGenerationFailed)
	}

	llmRequestsTotal.WithLabelValues(s.model, "success").Inc()
	llmTotalTokens.WithLabelValues(s.model).Observe(float64(resp.Usage.TotalTokens))
	s.logger.Debug("叙事模型回复",
		zap.Duration("duration", duration),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return resp.Choices[0].Message.Content, nil
}
