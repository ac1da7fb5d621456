package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/ids-eval/internal/agent"
	"github.com/miradorstack/ids-eval/internal/config"
	"github.com/miradorstack/ids-eval/internal/dataset"
	"github.com/miradorstack/ids-eval/internal/detectors"
	"github.com/miradorstack/ids-eval/internal/governance"
	"github.com/miradorstack/ids-eval/internal/metrics"
	"github.com/miradorstack/ids-eval/internal/models"
	"github.com/miradorstack/ids-eval/internal/results"
	"github.com/miradorstack/ids-eval/internal/scoring"
	"github.com/miradorstack/ids-eval/internal/utils"
)

// WindowLabeler produces one agent verdict per window and never fails.
type WindowLabeler interface {
	Label(ctx context.Context, w models.WindowRecord) models.AgentResult
}

// Loader reads the full dataset from path.
type Loader func(path string) ([]models.WindowRecord, error)

// Deps are the collaborators of a Harness. Forest and Labeler are only
// required when the matching detector is enabled in the configuration.
type Deps struct {
	Gate     agent.Gate
	Baseline detectors.AnomalyDetector
	Forest   detectors.AnomalyDetector
	Labeler  WindowLabeler
	Store    results.Store
	Latency  *utils.LatencyTracker
	Loader   Loader
}

type momentReporter interface {
	Moments(windows []models.WindowRecord) ([]detectors.FeatureMoments, error)
}

// Harness runs one reproducible evaluation: a fixed subset goes through the
// statistical baseline, the optional isolation forest and the agent, and the
// per-window outcomes are scored and appended to the results store.
type Harness struct {
	logger *slog.Logger
	cfg    config.Config
	deps   Deps
	now    func() time.Time
	runID  func() string
}

// NewHarness validates that deps cover the enabled components.
func NewHarness(logger *slog.Logger, cfg config.Config, deps Deps) (*Harness, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch {
	case deps.Gate == nil:
		return nil, fmt.Errorf("policy gate not configured")
	case deps.Baseline == nil:
		return nil, fmt.Errorf("statistical baseline not configured")
	case deps.Store == nil:
		return nil, fmt.Errorf("results store not configured")
	case cfg.IForest.Enabled && deps.Forest == nil:
		return nil, fmt.Errorf("isolation forest enabled but not configured")
	case cfg.Agent.Enabled && deps.Labeler == nil:
		return nil, fmt.Errorf("agent enabled but no labeler configured")
	}
	if deps.Loader == nil {
		deps.Loader = dataset.LoadCSV
	}
	return &Harness{
		logger: logger,
		cfg:    cfg,
		deps:   deps,
		now:    time.Now,
		runID:  uuid.NewString,
	}, nil
}

// Run executes the evaluation. Only dataset and configuration problems are
// returned as errors; agent failures are folded into per-window verdicts.
func (h *Harness) Run(ctx context.Context) (Summary, error) {
	cfg := h.cfg
	run := results.RunInfo{
		RunTS:         utils.FormatAuditTime(h.now()),
		RunID:         h.runID(),
		EvalN:         cfg.Evaluation.Size,
		EvalMode:      cfg.Evaluation.Mode,
		LLMEnabled:    cfg.Agent.Enabled,
		LLMModel:      cfg.ModelLabel(),
		LLMVersion:    cfg.LLM.Version,
		ZThreshold:    cfg.ZScore.Threshold,
		IForestContam: cfg.IForest.Contamination,
	}
	logger := h.logger.With(slog.String("run_id", run.RunID))

	// The read_data decision is audited but not enforced.
	h.deps.Gate.Check(governance.ActionReadData, map[string]any{"path": cfg.Evaluation.DatasetPath})

	all, err := h.deps.Loader(cfg.Evaluation.DatasetPath)
	if err != nil {
		return Summary{}, err
	}
	subset, err := dataset.Select(all, cfg.Evaluation.Size, cfg.Evaluation.Mode, cfg.Evaluation.SampleSeed)
	if err != nil {
		return Summary{}, err
	}
	logger.Info("evaluation subset selected",
		slog.Int("dataset_rows", len(all)),
		slog.Int("eval_n", len(subset)),
		slog.String("mode", cfg.Evaluation.Mode),
	)

	zPreds, err := h.deps.Baseline.Score(subset)
	if err != nil {
		return Summary{}, fmt.Errorf("%s baseline: %w", h.deps.Baseline.Name(), err)
	}
	h.logMoments(logger, subset)

	var forestPreds []models.Prediction
	if cfg.IForest.Enabled {
		forestPreds, err = h.deps.Forest.Score(subset)
		if err != nil {
			return Summary{}, fmt.Errorf("%s baseline: %w", h.deps.Forest.Name(), err)
		}
	}

	agentResults, err := h.label(ctx, logger, subset, zPreds)
	if err != nil {
		return Summary{}, err
	}

	summary, err := h.score(run, subset, zPreds, forestPreds, agentResults)
	if err != nil {
		return Summary{}, err
	}

	rows, err := results.BuildRows(run, subset, zPreds, forestPreds, agentResults)
	if err != nil {
		return Summary{}, err
	}
	summary.ResultsPath = h.deps.Store.Location()
	if h.deps.Gate.Check(governance.ActionWriteResults, map[string]any{"path": summary.ResultsPath, "rows": len(rows)}) {
		if err := h.deps.Store.Append(ctx, rows); err != nil {
			return Summary{}, utils.NewAppError("append results", utils.KindIO, "results store append failed", err)
		}
		summary.Persisted = true
	} else {
		logger.Warn("write_results denied; per-window results not persisted", slog.String("path", summary.ResultsPath))
	}

	h.deps.Gate.Record("run_complete", fmt.Sprintf("run_id=%s eval_n=%d persisted=%t", run.RunID, len(subset), summary.Persisted))
	logger.Info("evaluation complete",
		slog.Float64("zscore_f1", summary.ZScore.F1),
		slog.Float64("agent_f1", summary.Agent.F1),
		slog.Bool("persisted", summary.Persisted),
	)
	return summary, nil
}

// label runs the agent over the subset in order. With the agent disabled the
// statistical baseline's verdict stands in, paired by position.
func (h *Harness) label(ctx context.Context, logger *slog.Logger, subset []models.WindowRecord, zPreds []models.Prediction) ([]models.AgentResult, error) {
	out := make([]models.AgentResult, len(subset))
	if !h.cfg.Agent.Enabled {
		for i, w := range subset {
			out[i] = models.AgentResult{
				WindowID:  w.WindowID,
				Label:     zPreds[i].Label,
				Rationale: agent.DisabledRationale,
				Outcome:   models.OutcomeDisabled,
			}
			metrics.ObserveAgentOutcome(string(models.OutcomeDisabled))
		}
		return out, nil
	}

	for i, w := range subset {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("evaluation interrupted at window %d: %w", w.WindowID, err)
		}
		out[i] = h.deps.Labeler.Label(ctx, w)
		logger.Debug("window labeled",
			slog.Int64("window_id", w.WindowID),
			slog.Int("label", out[i].Label),
			slog.String("outcome", string(out[i].Outcome)),
		)
	}
	return out, nil
}

func (h *Harness) score(run results.RunInfo, subset []models.WindowRecord, zPreds, forestPreds []models.Prediction, agentResults []models.AgentResult) (Summary, error) {
	yTrue := models.Labels(subset)

	zMetrics, err := scoring.Evaluate(yTrue, models.PredictedLabels(zPreds), models.Scores(zPreds))
	if err != nil {
		return Summary{}, fmt.Errorf("score %s: %w", detectors.ZScoreName, err)
	}
	publish(detectors.ZScoreName, zMetrics)

	var forest *scoring.Metrics
	if forestPreds != nil {
		m, err := scoring.Evaluate(yTrue, models.PredictedLabels(forestPreds), models.Scores(forestPreds))
		if err != nil {
			return Summary{}, fmt.Errorf("score %s: %w", detectors.IForestName, err)
		}
		publish(detectors.IForestName, m)
		forest = &m
	}

	agentLabels := make([]int, len(agentResults))
	rationales := make([]string, len(agentResults))
	for i, r := range agentResults {
		agentLabels[i] = r.Label
		rationales[i] = r.Rationale
	}
	agentReport, err := scoring.Classify(yTrue, agentLabels)
	if err != nil {
		return Summary{}, fmt.Errorf("score agent: %w", err)
	}
	publish("agent", scoring.Metrics{Report: agentReport, AUROC: nanValue})

	explanation, err := scoring.ExplanationQuality(rationales, yTrue)
	if err != nil {
		return Summary{}, fmt.Errorf("score explanations: %w", err)
	}
	metrics.SetEvaluationScore("agent", "specificity_rate", explanation.SpecificityRate)
	metrics.SetEvaluationScore("agent", "consistency_rate", explanation.ConsistencyRate)

	return Summary{
		Run:          run,
		ZScore:       zMetrics,
		IForest:      forest,
		Agent:        agentReport,
		Explanation:  explanation,
		Latency:      h.deps.Latency.Stats(),
		AuditPath:    h.cfg.Governance.AuditLogPath,
		AgentResults: agentResults,
		Predictions:  zPreds,
	}, nil
}

func (h *Harness) logMoments(logger *slog.Logger, subset []models.WindowRecord) {
	mr, ok := h.deps.Baseline.(momentReporter)
	if !ok {
		return
	}
	moments, err := mr.Moments(subset)
	if err != nil {
		logger.Warn("baseline moments unavailable", slog.Any("error", err))
		return
	}
	for _, m := range moments {
		logger.Info("zscore reference",
			slog.String("feature", m.Feature),
			slog.Float64("mean", m.Mean),
			slog.Float64("std", m.Std),
		)
	}
}

func publish(detector string, m scoring.Metrics) {
	metrics.SetEvaluationScore(detector, "precision", m.Precision)
	metrics.SetEvaluationScore(detector, "recall", m.Recall)
	metrics.SetEvaluationScore(detector, "f1", m.F1)
	metrics.SetEvaluationScore(detector, "auroc", m.AUROC)
}
