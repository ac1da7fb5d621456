package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/miradorstack/ids-eval/internal/metrics"
)

var tracer = otel.Tracer("ids-eval/llm")

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// OllamaClient calls a non-streaming /api/generate endpoint.
type OllamaClient struct {
	logger     *slog.Logger
	url        string
	model      string
	httpClient *http.Client
}

// NewOllamaClient returns a client posting to url. The timeout bounds the
// whole request including reading the body.
func NewOllamaClient(logger *slog.Logger, url, model string, timeout time.Duration) *OllamaClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaClient{
		logger:     logger,
		url:        url,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Generate implements ExternalLabelingService.
func (c *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "OllamaClient.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.model), attribute.Int("llm.prompt_chars", len(prompt)))

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

func (c *OllamaClient) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", &CallError{Kind: KindDecode, Msg: "marshal request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", &CallError{Kind: KindNetwork, Msg: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", transportError("ollama request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &CallError{Kind: KindStatus, Msg: fmt.Sprintf("ollama returned %s", resp.Status)}
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", transportOrDecode(err)
	}
	return out.Response, nil
}

// transportOrDecode distinguishes a body read cut short by the client timeout
// from a malformed envelope.
func transportOrDecode(err error) *CallError {
	if ce := transportError("read response", err); ce.Kind == KindTimeout {
		return ce
	}
	return &CallError{Kind: KindDecode, Msg: "decode response", Err: err}
}
