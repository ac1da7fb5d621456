package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/miradorstack/ids-eval/internal/config"
)

// ExternalLabelingService turns a prompt into raw model text. Implementations
// are synchronous and return a *CallError for every request-level failure.
type ExternalLabelingService interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ErrorKind classifies request-level failures.
type ErrorKind string

const (
	KindNetwork ErrorKind = "network"
	KindTimeout ErrorKind = "timeout"
	KindStatus  ErrorKind = "status"
	KindDecode  ErrorKind = "decode"
)

// CallError reports why a labeling request produced no usable text.
type CallError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *CallError) Error() string {
	if e.Err != nil && e.Msg == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *CallError) Unwrap() error { return e.Err }

// transportError wraps an error from http.Client.Do or an SDK call.
func transportError(msg string, err error) *CallError {
	kind := KindNetwork
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		kind = KindTimeout
	}
	return &CallError{Kind: kind, Msg: msg, Err: err}
}

// New builds the labeling service selected by cfg.Provider.
func New(cfg config.LLMConfig, logger *slog.Logger) (ExternalLabelingService, error) {
	switch cfg.Provider {
	case config.ProviderOllama, "":
		return NewOllamaClient(logger, cfg.URL, cfg.Model, cfg.Timeout), nil
	case config.ProviderOpenAI:
		return NewOpenAIClient(logger, cfg.APIKey, cfg.URL, cfg.Model, cfg.Timeout)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
