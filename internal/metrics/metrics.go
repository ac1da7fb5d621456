package metrics

import (
	"math"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels LLM requests that returned a 2xx response.
	OutcomeSuccess = "success"
	// OutcomeError labels failed LLM requests (network, status, timeout, decode).
	OutcomeError = "error"
)

var (
	gateDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ids_eval",
			Name:      "gate_decisions_total",
			Help:      "Policy gate decisions, partitioned by action and outcome.",
		},
		[]string{"action", "allowed"},
	)

	agentOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ids_eval",
			Name:      "agent_outcomes_total",
			Help:      "Agent verdicts by the path that produced them.",
		},
		[]string{"outcome"},
	)

	llmRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ids_eval",
			Name:      "llm_requests_total",
			Help:      "External labeling service calls, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	llmRequestSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ids_eval",
			Name:      "llm_request_seconds",
			Help:      "External labeling service latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 45, 60},
		},
	)

	evaluationScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ids_eval",
			Name:      "evaluation_score",
			Help:      "Final evaluation metrics of the last run, by detector and metric.",
		},
		[]string{"detector", "metric"},
	)
)

// Register attaches ids-eval collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		gateDecisionsTotal,
		agentOutcomesTotal,
		llmRequestsTotal,
		llmRequestSeconds,
		evaluationScore,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveGateDecision counts one policy decision.
func ObserveGateDecision(action string, allowed bool) {
	gateDecisionsTotal.WithLabelValues(action, strconv.FormatBool(allowed)).Inc()
}

// ObserveAgentOutcome counts one agent verdict.
func ObserveAgentOutcome(outcome string) {
	agentOutcomesTotal.WithLabelValues(outcome).Inc()
}

// ObserveLLMRequest records an external call duration and outcome label.
func ObserveLLMRequest(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	llmRequestsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	llmRequestSeconds.Observe(duration.Seconds())
}

// SetEvaluationScore publishes a final metric. NaN values are skipped so an
// undefined AUROC does not masquerade as a number.
func SetEvaluationScore(detector, metric string, value float64) {
	if math.IsNaN(value) {
		evaluationScore.DeleteLabelValues(detector, metric)
		return
	}
	evaluationScore.WithLabelValues(detector, metric).Set(value)
}

// WriteTextfile dumps the gatherer in the node-exporter textfile format.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
