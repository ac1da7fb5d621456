package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/miradorstack/ids-eval/internal/governance"
	"github.com/miradorstack/ids-eval/internal/llm"
	"github.com/miradorstack/ids-eval/internal/metrics"
	"github.com/miradorstack/ids-eval/internal/models"
	"github.com/miradorstack/ids-eval/internal/retrieval"
	"github.com/miradorstack/ids-eval/internal/utils"
)

// Fixed rationales for verdicts that never reach the model.
const (
	DeniedRationale   = "Denied by policy gate."
	DisabledRationale = "LLM disabled; using z-score baseline."
	errorPrefix       = "LLM error: "
)

var tracer = otel.Tracer("ids-eval/agent")

// Gate is the governance surface the labeler needs.
type Gate interface {
	Check(action string, metadata map[string]any) bool
	Record(step, detail string)
}

// Options tunes the labeler.
type Options struct {
	TopK int
	// EnforceRetrievePolicy makes a retrieve_notes denial withhold the notes.
	// When false the decision is only audited.
	EnforceRetrievePolicy bool
	ExcerptLimit          int
}

// Labeler asks an external model for a label and rationale per window,
// grounding the prompt with retrieved notes. It never returns an error: every
// failure is folded into a label 0 verdict with an explanatory rationale.
type Labeler struct {
	logger  *slog.Logger
	gate    Gate
	index   retrieval.TextIndex
	service llm.ExternalLabelingService
	opts    Options
	latency *utils.LatencyTracker
}

// NewLabeler wires a labeler. latency may be nil.
func NewLabeler(logger *slog.Logger, gate Gate, index retrieval.TextIndex, service llm.ExternalLabelingService, opts Options, latency *utils.LatencyTracker) *Labeler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = 2
	}
	if opts.ExcerptLimit <= 0 {
		opts.ExcerptLimit = 160
	}
	return &Labeler{logger: logger, gate: gate, index: index, service: service, opts: opts, latency: latency}
}

// Label produces exactly one verdict for w.
func (l *Labeler) Label(ctx context.Context, w models.WindowRecord) models.AgentResult {
	ctx, span := tracer.Start(ctx, "Labeler.Label", trace.WithAttributes(attribute.Int64("window.id", w.WindowID)))
	defer span.End()

	res := l.label(ctx, w)
	span.SetAttributes(attribute.String("agent.outcome", string(res.Outcome)), attribute.Int("agent.label", res.Label))
	metrics.ObserveAgentOutcome(string(res.Outcome))
	return res
}

func (l *Labeler) label(ctx context.Context, w models.WindowRecord) models.AgentResult {
	result := models.AgentResult{WindowID: w.WindowID}

	if !l.gate.Check(governance.ActionProposeLabel, map[string]any{"window_id": w.WindowID}) {
		result.Rationale = DeniedRationale
		result.Outcome = models.OutcomeDenied
		return result
	}

	notes := l.notes(w)
	prompt := RenderPrompt(w, notes)
	l.gate.Record("prompt", prompt)

	start := time.Now()
	text, err := l.service.Generate(ctx, prompt)
	l.latency.Observe(time.Since(start))
	if err != nil {
		var ce *llm.CallError
		if errors.As(err, &ce) {
			l.logger.Warn("llm call failed", slog.Int64("window_id", w.WindowID), slog.String("kind", string(ce.Kind)), slog.String("error", ce.Error()))
		} else {
			l.logger.Warn("llm call failed", slog.Int64("window_id", w.WindowID), slog.String("error", err.Error()))
		}
		l.gate.Record("llm_error", err.Error())
		result.Rationale = errorPrefix + err.Error()
		result.Outcome = models.OutcomeError
		return result
	}

	text = strings.TrimSpace(text)
	l.gate.Record("llm_response", text)

	verdict, err := ParseVerdict(text)
	if err != nil {
		l.logger.Debug("llm response not strict json, using keyword fallback", slog.Int64("window_id", w.WindowID), slog.String("error", err.Error()))
		verdict = KeywordVerdict(text, l.opts.ExcerptLimit)
		result.Outcome = models.OutcomeFallback
	} else {
		result.Outcome = models.OutcomeParsed
	}
	result.Label = verdict.Label
	result.Rationale = verdict.Rationale
	return result
}

// notes retrieves grounding notes and audits the retrieve_notes decision.
// Retrieval failures leave the prompt without notes.
func (l *Labeler) notes(w models.WindowRecord) []string {
	if l.opts.EnforceRetrievePolicy {
		if !l.gate.Check(governance.ActionRetrieveNotes, map[string]any{"k": l.opts.TopK}) {
			l.logger.Info("note retrieval denied", slog.Int64("window_id", w.WindowID))
			return nil
		}
		return l.retrieve(w)
	}
	notes := l.retrieve(w)
	l.gate.Check(governance.ActionRetrieveNotes, map[string]any{"k": len(notes)})
	return notes
}

func (l *Labeler) retrieve(w models.WindowRecord) []string {
	if l.index == nil {
		return nil
	}
	notes, err := l.index.Retrieve(w, l.opts.TopK)
	if err != nil {
		l.logger.Warn("note retrieval failed", slog.Int64("window_id", w.WindowID), slog.String("error", err.Error()))
		return nil
	}
	return notes
}
