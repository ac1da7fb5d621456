package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/miradorstack/ids-eval/internal/metrics"
)

const systemPrompt = "You label network traffic windows and answer with strict JSON only."

// OpenAIClient labels windows through an OpenAI-compatible chat completion API.
type OpenAIClient struct {
	logger *slog.Logger
	client *openai.Client
	model  string
}

// NewOpenAIClient builds a chat client. baseURL may be empty to use the
// public endpoint.
func NewOpenAIClient(logger *slog.Logger, apiKey, baseURL, model string, timeout time.Duration) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai provider requires an API key")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &OpenAIClient{logger: logger, client: openai.NewClientWithConfig(cfg), model: model}, nil
}

// Generate implements ExternalLabelingService.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "OpenAIClient.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.model))

	start := time.Now()
	text, err := c.generate(ctx, prompt)
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("llm request failed", slog.String("model", c.model), slog.String("error", err.Error()))
	}
	metrics.ObserveLLMRequest(time.Since(start), outcome)
	return text, err
}

func (c *OpenAIClient) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0,
	})
	if err != nil {
		var apiErr *openai.APIError
		var reqErr *openai.RequestError
		switch {
		case errors.As(err, &apiErr):
			return "", &CallError{Kind: KindStatus, Msg: fmt.Sprintf("openai returned %d", apiErr.HTTPStatusCode), Err: err}
		case errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0:
			return "", &CallError{Kind: KindStatus, Msg: fmt.Sprintf("openai returned %d", reqErr.HTTPStatusCode), Err: err}
		default:
			return "", transportError("openai request", err)
		}
	}
	if len(resp.Choices) == 0 {
		return "", &CallError{Kind: KindDecode, Msg: "openai returned no choices"}
	}
	return resp.Choices[0].Message.Content, nil
}
