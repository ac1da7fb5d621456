package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/miradorstack/ids-eval/internal/agent"
	"github.com/miradorstack/ids-eval/internal/config"
	"github.com/miradorstack/ids-eval/internal/detectors"
	"github.com/miradorstack/ids-eval/internal/engine"
	"github.com/miradorstack/ids-eval/internal/governance"
	"github.com/miradorstack/ids-eval/internal/llm"
	"github.com/miradorstack/ids-eval/internal/metrics"
	"github.com/miradorstack/ids-eval/internal/results"
	"github.com/miradorstack/ids-eval/internal/retrieval"
	"github.com/miradorstack/ids-eval/internal/telemetry"
	"github.com/miradorstack/ids-eval/internal/utils"
)

type runOptions struct {
	configPath string
	noLLM      bool
	iforest    bool
	threshold  float64
	contam     float64
	size       int
	mode       string
}

func newRunCommand() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one evaluation over the fixed subset and append per-window results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runEvaluation(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return &usageError{err: err} })

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "Path to configuration file (defaults to $IDS_EVAL_CONFIG)")
	f.BoolVar(&opts.noLLM, "no-llm", false, "Disable the LLM agent and mirror the z-score baseline")
	f.BoolVar(&opts.iforest, "iforest", false, "Add the isolation-forest baseline")
	f.Float64Var(&opts.threshold, "thresh", 3.0, "Z-score threshold")
	f.Float64Var(&opts.contam, "contam", 0.12, "Isolation-forest contamination")
	f.IntVar(&opts.size, "size", 0, "Evaluation subset size (overrides config)")
	f.StringVar(&opts.mode, "mode", "", "Evaluation subset mode: head or sample (overrides config)")
	return cmd
}

// loadConfig applies explicitly set flags on top of file and environment
// settings and validates the result.
func loadConfig(cmd *cobra.Command, opts runOptions) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, utils.NewAppError("load config", utils.KindConfig, "configuration could not be loaded", err)
	}
	flags := cmd.Flags()
	if opts.noLLM {
		cfg.Agent.Enabled = false
	}
	if opts.iforest {
		cfg.IForest.Enabled = true
	}
	if flags.Changed("thresh") {
		cfg.ZScore.Threshold = opts.threshold
	}
	if flags.Changed("contam") {
		cfg.IForest.Contamination = opts.contam
	}
	if flags.Changed("size") {
		cfg.Evaluation.Size = opts.size
	}
	if flags.Changed("mode") {
		cfg.Evaluation.Mode = opts.mode
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, utils.NewAppError("validate config", utils.KindConfig, "invalid configuration", err)
	}
	return cfg, nil
}

func runEvaluation(ctx context.Context, cfg config.Config, out io.Writer) error {
	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON, utils.LogFile{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	logger.Info("starting ids-eval",
		slog.String("version", version),
		slog.Int("eval_n", cfg.Evaluation.Size),
		slog.String("mode", cfg.Evaluation.Mode),
		slog.Bool("agent", cfg.Agent.Enabled),
		slog.Bool("iforest", cfg.IForest.Enabled),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	shutdownTracing, err := telemetry.Setup(cfg.Tracing, version)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown", slog.Any("error", err))
		}
	}()
	if cfg.Metrics.Address != "" {
		stopMetrics := serveMetrics(logger, cfg.Metrics.Address)
		defer stopMetrics()
	}

	h, store, err := buildHarness(logger, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := h.Run(ctx)
	if err != nil {
		return err
	}
	if err := summary.Write(out); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	if cfg.Metrics.TextfilePath != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.TextfilePath, prometheus.DefaultGatherer); err != nil {
			logger.Warn("metrics textfile export failed", slog.String("path", cfg.Metrics.TextfilePath), slog.Any("error", err))
		}
	}
	return nil
}

func buildHarness(logger *slog.Logger, cfg config.Config) (*engine.Harness, results.Store, error) {
	gate, err := governance.NewPolicyGate(logger, governance.NewFileSink(cfg.Governance.AuditLogPath), cfg.Governance.AllowedActions, cfg.Governance.DetailLimit)
	if err != nil {
		return nil, nil, utils.NewAppError("policy gate", utils.KindConfig, "policy gate could not be built", err)
	}

	baseline, err := detectors.NewZScoreDetector(detectors.ZScoreOptions{
		Features:  cfg.Evaluation.Features,
		Threshold: cfg.ZScore.Threshold,
		Weighted:  cfg.ZScore.Weighted,
		Weights:   cfg.ZScore.Weights,
		Epsilon:   cfg.ZScore.Epsilon,
	})
	if err != nil {
		return nil, nil, utils.NewAppError("zscore", utils.KindConfig, "invalid z-score settings", err)
	}

	latency := utils.NewLatencyTracker(0)
	deps := engine.Deps{Gate: gate, Baseline: baseline, Latency: latency}

	if cfg.IForest.Enabled {
		deps.Forest, err = detectors.NewIsolationForest(logger, detectors.IForestOptions{
			Features:      cfg.Evaluation.Features,
			Trees:         cfg.IForest.Trees,
			MaxSamples:    cfg.IForest.MaxSamples,
			Contamination: cfg.IForest.Contamination,
			Seed:          cfg.IForest.Seed,
		})
		if err != nil {
			return nil, nil, utils.NewAppError("iforest", utils.KindConfig, "invalid isolation-forest settings", err)
		}
	}

	if cfg.Agent.Enabled {
		service, err := llm.New(cfg.LLM, logger)
		if err != nil {
			return nil, nil, utils.NewAppError("llm", utils.KindConfig, "labeling service could not be built", err)
		}
		index := retrieval.NewIndex(logger, cfg.Retrieval.CorpusPath)
		deps.Labeler = agent.NewLabeler(logger, gate, index, service, agent.Options{
			TopK:                  cfg.Agent.TopK,
			EnforceRetrievePolicy: cfg.Agent.EnforceRetrievePolicy,
			ExcerptLimit:          cfg.Agent.ExcerptLimit,
		}, latency)
	}

	store, err := results.Open(cfg.Results)
	if err != nil {
		return nil, nil, utils.NewAppError("results", utils.KindIO, "results store could not be opened", err)
	}
	deps.Store = store

	h, err := engine.NewHarness(logger, cfg, deps)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return h, store, nil
}

func serveMetrics(logger *slog.Logger, address string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         address,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		logger.Info("metrics server listening", slog.String("address", address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server exited", slog.Any("error", err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
	}
}
