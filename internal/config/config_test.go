package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"IDS_EVAL_CONFIG", "MODEL", "OLLAMA_URL", "IDS_EVAL_SIZE", "IDS_EVAL_MODE", "IDS_EVAL_LLM_TIMEOUT"} {
		t.Setenv(key, "")
	}
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Evaluation.Size)
	assert.Equal(t, ModeHead, cfg.Evaluation.Mode)
	assert.Equal(t, 3.0, cfg.ZScore.Threshold)
	assert.True(t, cfg.ZScore.Weighted)
	assert.Equal(t, 1.6, cfg.ZScore.Weights["syn_rate"])
	assert.Equal(t, 1.6, cfg.ZScore.Weights["failed_conn_rate"])
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.NoError(t, cfg.Validate(), "defaults should validate")
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`evaluation:
  size: 80
  mode: sample
  sampleSeed: 7
iforest:
  enabled: true
  contamination: 0.05
llm:
  timeout: 5s
`), 0o644))
	t.Setenv("MODEL", "llama3")
	t.Setenv("OLLAMA_URL", "http://ollama:11434/api/generate")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 80, cfg.Evaluation.Size)
	assert.Equal(t, ModeSample, cfg.Evaluation.Mode)
	assert.Equal(t, uint64(7), cfg.Evaluation.SampleSeed)
	assert.True(t, cfg.IForest.Enabled)
	assert.Equal(t, 0.05, cfg.IForest.Contamination)
	assert.Equal(t, 200, cfg.IForest.Trees, "unset fields keep defaults")
	assert.Equal(t, "llama3", cfg.LLM.Model)
	assert.Equal(t, "http://ollama:11434/api/generate", cfg.LLM.URL)
	assert.Equal(t, 5*time.Second, cfg.LLM.Timeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := Default()
	cfg.Evaluation.Mode = "tail"
	cfg.Evaluation.Size = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evaluation.mode")
	assert.Contains(t, err.Error(), "evaluation.size")
}

func TestModelLabelEmptyWhenAgentDisabled(t *testing.T) {
	cfg := Default()
	cfg.Agent.Enabled = false
	assert.Empty(t, cfg.ModelLabel())
}
