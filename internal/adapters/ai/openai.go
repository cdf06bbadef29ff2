package ai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/apershukov/allocator/internal/adapters/config"
	"github.com/apershukov/allocator/pkg/logger"
	"github.com/apershukov/allocator/pkg/models"
)

const openaiDefaultModel = openai.GPT4oMini

// OpenAIProvider implements the second-opinion provider for the OpenAI API
type OpenAIProvider struct {
	client  *openai.Client
	model   string
	enabled bool
}

// NewOpenAIProvider creates new OpenAI provider
func NewOpenAIProvider(cfg *config.AIProviderConfig) *OpenAIProvider {
	model := cfg.Model
	if model == "" {
		model = openaiDefaultModel
	}

	return &OpenAIProvider{
		client:  openai.NewClient(cfg.APIKey),
		model:   model,
		enabled: cfg.Enabled && cfg.APIKey != "",
	}
}

func (o *OpenAIProvider) Name() string {
	return "openai"
}

func (o *OpenAIProvider) Enabled() bool {
	return o.enabled
}

func (o *OpenAIProvider) Analyze(ctx context.Context, snapshot string, ruleRegime models.RegimeColor) (*models.Opinion, error) {
	startTime := time.Now()

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.model,
		MaxTokens: 300,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(ruleRegime)},
			{Role: openai.ChatMessageRoleUser, Content: snapshot},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	content := resp.Choices[0].Message.Content

	logger.Debug("openai regime opinion",
		zap.Duration("latency", time.Since(startTime)),
		zap.String("response", content),
	)

	return parseResponse(content), nil
}
