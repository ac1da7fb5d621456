package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/ids-eval/internal/models"
)

// Evaluation modes for subset selection.
const (
	ModeHead   = "head"
	ModeSample = "sample"
)

// LLM providers understood by the agent.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Result store formats.
const (
	FormatCSV    = "csv"
	FormatSQLite = "sqlite"
)

// Config captures every setting for one evaluation run. It is loaded once
// and passed by value; nothing mutates it after Validate.
type Config struct {
	Evaluation EvaluationConfig `yaml:"evaluation"`
	ZScore     ZScoreConfig     `yaml:"zscore"`
	IForest    IForestConfig    `yaml:"iforest"`
	Agent      AgentConfig      `yaml:"agent"`
	LLM        LLMConfig        `yaml:"llm"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Governance GovernanceConfig `yaml:"governance"`
	Results    ResultsConfig    `yaml:"results"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

// EvaluationConfig fixes the evaluation subset.
type EvaluationConfig struct {
	DatasetPath string   `yaml:"datasetPath"`
	Size        int      `yaml:"size"`
	Mode        string   `yaml:"mode"`
	SampleSeed  uint64   `yaml:"sampleSeed"`
	Features    []string `yaml:"features"`
}

// ZScoreConfig tunes the statistical baseline.
type ZScoreConfig struct {
	Threshold float64            `yaml:"threshold"`
	Weighted  bool               `yaml:"weighted"`
	Weights   map[string]float64 `yaml:"weights"`
	Epsilon   float64            `yaml:"epsilon"`
}

// IForestConfig tunes the isolation-forest baseline.
type IForestConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Contamination float64 `yaml:"contamination"`
	Trees         int     `yaml:"trees"`
	MaxSamples    int     `yaml:"maxSamples"`
	Seed          uint64  `yaml:"seed"`
}

// AgentConfig controls the LLM-assisted labeler.
type AgentConfig struct {
	Enabled               bool `yaml:"enabled"`
	TopK                  int  `yaml:"topK"`
	EnforceRetrievePolicy bool `yaml:"enforceRetrievePolicy"`
	ExcerptLimit          int  `yaml:"excerptLimit"`
}

// LLMConfig configures the external labeling service.
type LLMConfig struct {
	Provider string        `yaml:"provider"`
	URL      string        `yaml:"url"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
	APIKey   string        `yaml:"apiKey"`
	Version  string        `yaml:"version"`
}

// RetrievalConfig locates the domain-note corpus.
type RetrievalConfig struct {
	CorpusPath string `yaml:"corpusPath"`
}

// GovernanceConfig controls the policy gate and audit trail.
type GovernanceConfig struct {
	AuditLogPath   string   `yaml:"auditLogPath"`
	DetailLimit    int      `yaml:"detailLimit"`
	AllowedActions []string `yaml:"allowedActions"`
}

// ResultsConfig controls the per-window results store.
type ResultsConfig struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	JSON       bool   `yaml:"json"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// MetricsConfig controls Prometheus exposition.
type MetricsConfig struct {
	Address      string `yaml:"address"`
	TextfilePath string `yaml:"textfilePath"`
}

// TracingConfig controls OpenTelemetry span export.
type TracingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load initialises Config from a YAML file and optional environment overrides.
// The result is not validated; callers apply flag overrides first and then
// call Validate.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv("IDS_EVAL_CONFIG")
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Default returns the paper-mode configuration.
func Default() Config {
	return Config{
		Evaluation: EvaluationConfig{
			DatasetPath: "data/netflow_windows.csv",
			Size:        50,
			Mode:        ModeHead,
			SampleSeed:  42,
			Features:    append([]string(nil), models.DefaultFeatures...),
		},
		ZScore: ZScoreConfig{
			Threshold: 3.0,
			Weighted:  true,
			Weights: map[string]float64{
				models.FeatureSynRate:        1.6,
				models.FeatureFailedConnRate: 1.6,
			},
			Epsilon: 1e-9,
		},
		IForest: IForestConfig{
			Enabled:       false,
			Contamination: 0.12,
			Trees:         200,
			MaxSamples:    256,
			Seed:          42,
		},
		Agent: AgentConfig{
			Enabled:      true,
			TopK:         2,
			ExcerptLimit: 160,
		},
		LLM: LLMConfig{
			Provider: ProviderOllama,
			URL:      "http://localhost:11434/api/generate",
			Model:    "mistral",
			Timeout:  60 * time.Second,
		},
		Retrieval:  RetrievalConfig{CorpusPath: "data/rag_corpus.txt"},
		Governance: GovernanceConfig{AuditLogPath: "audit_log_ids.txt", DetailLimit: 600},
		Results:    ResultsConfig{Path: "ids_results.csv", Format: FormatCSV},
		Logging:    LoggingConfig{Level: "info", MaxSizeMB: 50, MaxBackups: 5, MaxAgeDays: 30},
		Tracing:    TracingConfig{Path: "traces.jsonl"},
	}
}

// Validate rejects configurations that cannot produce a reproducible run.
func (c Config) Validate() error {
	var errs []error
	if c.Evaluation.Size <= 0 {
		errs = append(errs, fmt.Errorf("evaluation.size must be positive, got %d", c.Evaluation.Size))
	}
	if c.Evaluation.Mode != ModeHead && c.Evaluation.Mode != ModeSample {
		errs = append(errs, fmt.Errorf("evaluation.mode must be %q or %q, got %q", ModeHead, ModeSample, c.Evaluation.Mode))
	}
	if c.Evaluation.DatasetPath == "" {
		errs = append(errs, errors.New("evaluation.datasetPath is required"))
	}
	if len(c.Evaluation.Features) == 0 {
		errs = append(errs, errors.New("evaluation.features must not be empty"))
	}
	for _, f := range c.Evaluation.Features {
		if _, err := (models.WindowRecord{}).Feature(f); err != nil {
			errs = append(errs, fmt.Errorf("evaluation.features: %w", err))
		}
	}
	if c.ZScore.Epsilon <= 0 {
		errs = append(errs, errors.New("zscore.epsilon must be positive"))
	}
	if c.IForest.Enabled {
		if c.IForest.Contamination <= 0 || c.IForest.Contamination > 0.5 {
			errs = append(errs, fmt.Errorf("iforest.contamination must be in (0, 0.5], got %g", c.IForest.Contamination))
		}
		if c.IForest.Trees <= 0 {
			errs = append(errs, errors.New("iforest.trees must be positive"))
		}
	}
	if c.Agent.Enabled {
		if c.LLM.Provider != ProviderOllama && c.LLM.Provider != ProviderOpenAI {
			errs = append(errs, fmt.Errorf("llm.provider must be %q or %q, got %q", ProviderOllama, ProviderOpenAI, c.LLM.Provider))
		}
		if c.LLM.Timeout <= 0 {
			errs = append(errs, errors.New("llm.timeout must be positive"))
		}
		if c.Agent.TopK < 0 {
			errs = append(errs, errors.New("agent.topK must not be negative"))
		}
	}
	if c.Results.Format != FormatCSV && c.Results.Format != FormatSQLite {
		errs = append(errs, fmt.Errorf("results.format must be %q or %q, got %q", FormatCSV, FormatSQLite, c.Results.Format))
	}
	if c.Results.Path == "" {
		errs = append(errs, errors.New("results.path is required"))
	}
	if c.Governance.AuditLogPath == "" {
		errs = append(errs, errors.New("governance.auditLogPath is required"))
	}
	return errors.Join(errs...)
}

// ModelLabel is the model name recorded in results; empty when the agent is off.
func (c Config) ModelLabel() string {
	if !c.Agent.Enabled {
		return ""
	}
	return c.LLM.Model
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		cfg.LLM.URL = v
	}
	if v := os.Getenv("MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("OLLAMA_VER"); v != "" {
		cfg.LLM.Version = v
	}
	if v := os.Getenv("IDS_EVAL_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("IDS_EVAL_LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LLM.Timeout = d
		}
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("IDS_EVAL_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("IDS_EVAL_DATASET"); v != "" {
		cfg.Evaluation.DatasetPath = v
	}
	if v := os.Getenv("IDS_EVAL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Evaluation.Size = n
		}
	}
	if v := os.Getenv("IDS_EVAL_MODE"); v != "" {
		cfg.Evaluation.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("IDS_EVAL_CORPUS"); v != "" {
		cfg.Retrieval.CorpusPath = v
	}
	if v := os.Getenv("IDS_EVAL_AUDIT_LOG"); v != "" {
		cfg.Governance.AuditLogPath = v
	}
	if v := os.Getenv("IDS_EVAL_RESULTS"); v != "" {
		cfg.Results.Path = v
	}
	if v := os.Getenv("IDS_EVAL_RESULTS_FORMAT"); v != "" {
		cfg.Results.Format = strings.ToLower(v)
	}
	if v := os.Getenv("IDS_EVAL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("IDS_EVAL_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("IDS_EVAL_METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.TextfilePath = v
	}
	if v := os.Getenv("IDS_EVAL_TRACING"); strings.EqualFold(v, "true") || v == "1" {
		cfg.Tracing.Enabled = true
	}
}
