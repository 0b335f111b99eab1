package generators

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"nightloom/server/internal/config"
	"nightloom/server/internal/interfaces"
)

const (
	openaiMaxRetries = 3
	openaiRetryDelay = 1 * time.Second
)

// OpenAIClient is a text backend for any OpenAI-compatible endpoint.
// It only covers text generation; image, speech and video stay on the
// Gemini client regardless of the configured text provider.
type OpenAIClient struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAIClient creates a client for the configured endpoint.
func NewOpenAIClient(cfg config.OpenAIConfig, logger *zap.Logger) *OpenAIClient {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
		logger: logger,
	}
}

// GenerateText implements interfaces.TextGenerator. Structured output is
// requested through JSON mode; the schema itself rides along in the
// system message since compatible endpoints rarely support schema
// enforcement natively.
func (c *OpenAIClient) GenerateText(ctx context.Context, req *interfaces.TextRequest) (string, error) {
	instruction := req.Instruction
	if req.Schema != nil {
		instruction = instruction + "\n\nRespond with a single JSON object matching the agreed structure. No markdown fences, no commentary."
	}

	chatReq := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: instruction},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
	if req.Schema != nil {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var lastErr error
	for attempt := 0; attempt < openaiMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(openaiRetryDelay * time.Duration(attempt)):
			}
			c.logger.Debug("retrying chat completion", zap.Int("attempt", attempt))
		}

		resp, err := c.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			lastErr = err
			if !isRetryableOpenAI(err) {
				break
			}
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("no choices in response")
			continue
		}
		content := strings.TrimSpace(resp.Choices[0].Message.Content)
		if content == "" {
			lastErr = fmt.Errorf("empty completion")
			continue
		}
		return content, nil
	}
	return "", fmt.Errorf("chat completion failed after retries: %w", lastErr)
}

func isRetryableOpenAI(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "500") ||
		strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection")
}
