package metrics

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	assert.NoError(t, Register(reg), "second register should be tolerated")
}

func TestObserveCounters(t *testing.T) {
	before := testutil.ToFloat64(gateDecisionsTotal.WithLabelValues("unit_test_action", "false"))
	ObserveGateDecision("unit_test_action", false)
	after := testutil.ToFloat64(gateDecisionsTotal.WithLabelValues("unit_test_action", "false"))
	assert.Equal(t, 1.0, after-before)

	beforeErr := testutil.ToFloat64(llmRequestsTotal.WithLabelValues(OutcomeError))
	ObserveLLMRequest(-time.Second, OutcomeError)
	assert.Equal(t, 1.0, testutil.ToFloat64(llmRequestsTotal.WithLabelValues(OutcomeError))-beforeErr)
}

func TestSetEvaluationScoreSkipsNaN(t *testing.T) {
	SetEvaluationScore("zscore", "auroc", 0.8)
	assert.Equal(t, 0.8, testutil.ToFloat64(evaluationScore.WithLabelValues("zscore", "auroc")))

	SetEvaluationScore("zscore", "auroc", math.NaN())
	assert.Zero(t, testutil.CollectAndCount(evaluationScore, "ids_eval_evaluation_score"), "NaN clears the series")
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	ObserveAgentOutcome("llm")

	path := filepath.Join(t.TempDir(), "ids_eval.prom")
	require.NoError(t, WriteTextfile(path, reg))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ids_eval_agent_outcomes_total")
}
