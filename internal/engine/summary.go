package engine

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/miradorstack/ids-eval/internal/models"
	"github.com/miradorstack/ids-eval/internal/results"
	"github.com/miradorstack/ids-eval/internal/scoring"
	"github.com/miradorstack/ids-eval/internal/utils"
)

var nanValue = math.NaN()

// Summary is the aggregate outcome of one run.
type Summary struct {
	Run     results.RunInfo
	ZScore  scoring.Metrics
	IForest *scoring.Metrics
	Agent   scoring.Report

	Explanation scoring.ExplanationReport
	Latency     utils.LatencyStats

	ResultsPath string
	AuditPath   string
	Persisted   bool

	Predictions  []models.Prediction
	AgentResults []models.AgentResult
}

// Write renders the summary as human-readable text. Metrics are rounded to
// three decimals and undefined values print as nan.
func (s Summary) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	p := func(format string, args ...any) { fmt.Fprintf(bw, format, args...) }

	p("=== IDS Evaluation Summary ===\n")
	p("run_ts=%s run_id=%s eval_n=%d eval_mode=%s llm_enabled=%t llm_model=%q llm_version=%q\n",
		s.Run.RunTS, s.Run.RunID, s.Run.EvalN, s.Run.EvalMode, s.Run.LLMEnabled, s.Run.LLMModel, s.Run.LLMVersion)

	p("\n--- Baseline: Z-score ---\n")
	p("AUROC=%s precision=%s recall=%s f1=%s z_thresh=%s\n",
		round3(s.ZScore.AUROC), round3(s.ZScore.Precision), round3(s.ZScore.Recall), round3(s.ZScore.F1), formatNumber(s.Run.ZThreshold))

	if s.IForest != nil {
		p("\n--- Baseline: IsolationForest ---\n")
		p("AUROC=%s precision=%s recall=%s f1=%s contam=%s\n",
			round3(s.IForest.AUROC), round3(s.IForest.Precision), round3(s.IForest.Recall), round3(s.IForest.F1), formatNumber(s.Run.IForestContam))
	}

	p("\n--- Agent (LLM-assisted) ---\n")
	p("precision=%s recall=%s f1=%s\n", round3(s.Agent.Precision), round3(s.Agent.Recall), round3(s.Agent.F1))

	p("\n--- Explanation Usefulness (heuristic) ---\n")
	p("consistency_rate=%s specificity_rate=%s\n", round3(s.Explanation.ConsistencyRate), round3(s.Explanation.SpecificityRate))

	if s.Latency.Count > 0 {
		p("\n--- LLM latency ---\n")
		p("calls=%d p50=%s p95=%s max=%s\n", s.Latency.Count,
			s.Latency.P50.Round(time.Millisecond), s.Latency.P95.Round(time.Millisecond), s.Latency.Max.Round(time.Millisecond))
	}

	p("\n")
	if s.Persisted {
		p("Saved per-window results to: %s\n", s.ResultsPath)
	} else {
		p("Per-window results not saved (write_results denied): %s\n", s.ResultsPath)
	}
	p("Audit log: %s\n", s.AuditPath)
	return bw.Flush()
}

func round3(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return formatNumber(math.Round(v*1000) / 1000)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
