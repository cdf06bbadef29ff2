package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/apershukov/allocator/internal/adapters/config"
	"github.com/apershukov/allocator/pkg/logger"
	"github.com/apershukov/allocator/pkg/models"
)

const (
	claudeAPIURL       = "https://api.anthropic.com/v1/messages"
	claudeDefaultModel = "claude-haiku-4-5"
)

// ClaudeProvider implements the second-opinion provider for the Anthropic API
type ClaudeProvider struct {
	apiKey  string
	model   string
	enabled bool
	client  *http.Client
}

// NewClaudeProvider creates new Claude provider
func NewClaudeProvider(cfg *config.AIProviderConfig) *ClaudeProvider {
	model := cfg.Model
	if model == "" {
		model = claudeDefaultModel
	}

	return &ClaudeProvider{
		apiKey:  cfg.APIKey,
		model:   model,
		enabled: cfg.Enabled && cfg.APIKey != "",
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *ClaudeProvider) Name() string {
	return "claude"
}

func (c *ClaudeProvider) Enabled() bool {
	return c.enabled
}

func (c *ClaudeProvider) Analyze(ctx context.Context, snapshot string, ruleRegime models.RegimeColor) (*models.Opinion, error) {
	reqBody := map[string]interface{}{
		"model":      c.model,
		"max_tokens": 300,
		"system":     systemPrompt(ruleRegime),
		"messages": []map[string]string{
			{"role": "user", "content": snapshot},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", claudeAPIURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	startTime := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	latency := time.Since(startTime)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Content) == 0 {
		return nil, fmt.Errorf("no content in response")
	}

	content := result.Content[0].Text

	logger.Debug("claude regime opinion",
		zap.Duration("latency", latency),
		zap.String("response", content),
	)

	return parseResponse(content), nil
}
