package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixtape/internal/shared"
	"github.com/sashabaranov/go-openai"
)

const defaultBaseURL = "https://api.openai.com/v1"

// OpenAIClient implements [Completer] against an OpenAI-compatible chat completions API.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float64
	timeout     time.Duration
	retry       shared.RetryConfig
	logger      *log.Logger
}

// NewOpenAIClient builds a client from the [llm] config section.
//
// An empty API key is allowed so local OpenAI-compatible servers work; hosted
// endpoints will reject the first request instead.
func NewOpenAIClient(cfg shared.LLMConfig, httpClient *http.Client, logger *log.Logger) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("%w: llm.model is required", shared.ErrInvalidConfig)
	}
	if logger == nil {
		logger = log.Default()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if httpClient != nil {
		config.HTTPClient = httpClient
	}

	retry := shared.DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	retry.Retryable = IsTransient

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(config),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout(),
		retry:       retry,
		logger:      logger,
	}, nil
}

// SetRetry replaces the retry policy. The retryable predicate is always [IsTransient].
func (c *OpenAIClient) SetRetry(cfg shared.RetryConfig) {
	cfg.Retryable = IsTransient
	c.retry = cfg
}

// Complete sends req as a system + user message pair.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Response, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	temperature := c.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(temperature),
		MaxTokens:   req.MaxTokens,
	}
	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	var resp openai.ChatCompletionResponse
	start := time.Now()
	err := shared.Retry(ctx, c.retry, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		var err error
		resp, err = c.client.CreateChatCompletion(attemptCtx, chatReq)
		if err != nil {
			c.logger.Debug("chat completion failed", "model", c.model, "error", err)
			return classifyError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: chat completion: %w", shared.ErrAPIRequest, err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewFatalError(fmt.Errorf("%w: chat completion returned no choices", shared.ErrAPIRequest))
	}

	c.logger.Debug("chat completion", "model", resp.Model, "tokens", resp.Usage.TotalTokens, "elapsed", time.Since(start))

	choice := resp.Choices[0]
	return &Response{
		Content:      choice.Message.Content,
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}
