package results

import (
	"fmt"
	"strconv"

	"github.com/miradorstack/ids-eval/internal/models"
)

// Columns is the results schema. Isolation-forest columns are always present
// and left blank when that detector is disabled.
var Columns = []string{
	"window_id", "bytes_per_sec", "pkts_per_sec", "syn_rate", "failed_conn_rate", "label",
	"run_ts", "run_id", "eval_n", "eval_mode", "llm_enabled", "llm_model", "llm_version",
	"z_thresh", "z_pred", "z_score",
	"iforest_contam", "iforest_pred", "iforest_score",
	"agent_pred", "agent_rationale",
}

// RunInfo is the metadata shared by every row of one run.
type RunInfo struct {
	RunTS         string
	RunID         string
	EvalN         int
	EvalMode      string
	LLMEnabled    bool
	LLMModel      string
	LLMVersion    string
	ZThreshold    float64
	IForestContam float64
}

// Row is one evaluated window.
type Row struct {
	Window models.WindowRecord
	Run    RunInfo
	ZScore models.Prediction
	// IForest is nil when the isolation forest did not run.
	IForest *models.Prediction
	Agent   models.AgentResult
}

// BuildRows zips the per-window outputs of a run. iforest may be nil; every
// other slice must match windows in length and order.
func BuildRows(run RunInfo, windows []models.WindowRecord, z, iforest []models.Prediction, agent []models.AgentResult) ([]Row, error) {
	n := len(windows)
	if len(z) != n || len(agent) != n || (iforest != nil && len(iforest) != n) {
		return nil, fmt.Errorf("result length mismatch: %d windows, %d zscore, %d iforest, %d agent", n, len(z), len(iforest), len(agent))
	}
	rows := make([]Row, n)
	for i, w := range windows {
		if z[i].WindowID != w.WindowID || agent[i].WindowID != w.WindowID {
			return nil, fmt.Errorf("result order mismatch at position %d (window %d)", i, w.WindowID)
		}
		rows[i] = Row{Window: w, Run: run, ZScore: z[i], Agent: agent[i]}
		if iforest != nil {
			p := iforest[i]
			rows[i].IForest = &p
		}
	}
	return rows, nil
}

// Values renders the row in Columns order.
func (r Row) Values() []string {
	iContam, iPred, iScore := "", "", ""
	if r.IForest != nil {
		iContam = formatFloat(r.Run.IForestContam)
		iPred = strconv.Itoa(r.IForest.Label)
		iScore = formatFloat(r.IForest.Score)
	}
	llmEnabled := "0"
	if r.Run.LLMEnabled {
		llmEnabled = "1"
	}
	return []string{
		strconv.FormatInt(r.Window.WindowID, 10),
		formatFloat(r.Window.BytesPerSec),
		formatFloat(r.Window.PktsPerSec),
		formatFloat(r.Window.SynRate),
		formatFloat(r.Window.FailedConnRate),
		strconv.Itoa(r.Window.Label),
		r.Run.RunTS,
		r.Run.RunID,
		strconv.Itoa(r.Run.EvalN),
		r.Run.EvalMode,
		llmEnabled,
		r.Run.LLMModel,
		r.Run.LLMVersion,
		formatFloat(r.Run.ZThreshold),
		strconv.Itoa(r.ZScore.Label),
		formatFloat(r.ZScore.Score),
		iContam,
		iPred,
		iScore,
		strconv.Itoa(r.Agent.Label),
		r.Agent.Rationale,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
