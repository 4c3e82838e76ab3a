package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/apt-chat/backend/internal/config"
	"github.com/zhouzirui/apt-chat/backend/internal/logging"
)

const retryBackoff = 500 * time.Millisecond

type openAICompleter struct {
	client *openai.Client
	cfg    config.AIConfig
}

func newOpenAICompleter(cfg config.AIConfig) *openAICompleter {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &openAICompleter{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
	}
}

func (c *openAICompleter) request(system, user string) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature:      float32(c.cfg.Temperature),
		MaxTokens:        c.cfg.MaxTokens,
		TopP:             float32(c.cfg.TopP),
		FrequencyPenalty: float32(c.cfg.FrequencyPenalty),
		PresencePenalty:  float32(c.cfg.PresencePenalty),
	}
}

// Complete issues one logical call. go-openai has no built-in retries, so the
// configured retry budget is spent here on transient failures only.
func (c *openAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	req := c.request(system, user)

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * retryBackoff):
			}
		}

		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", errors.New("response contained no choices")
			}
			return resp.Choices[0].Message.Content, nil
		}

		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
		logging.Component("ai").WithError(err).WithField("attempt", attempt+1).Warn("openai call failed, retrying")
	}
	return "", fmt.Errorf("openai chat completion: %w", lastErr)
}

func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
