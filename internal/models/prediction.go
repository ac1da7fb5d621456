package models

// Prediction is a single detector verdict. Score grows with anomaly strength
// but is only comparable within one detector.
type Prediction struct {
	WindowID int64
	Label    int
	Score    float64
}

// AgentResult is the agent's verdict for one window. Rationale is never empty.
type AgentResult struct {
	WindowID  int64
	Label     int
	Rationale string
	Outcome   AgentOutcome
}

// AgentOutcome records which path produced an AgentResult.
type AgentOutcome string

const (
	OutcomeParsed   AgentOutcome = "llm"
	OutcomeFallback AgentOutcome = "fallback"
	OutcomeError    AgentOutcome = "error"
	OutcomeDenied   AgentOutcome = "denied"
	OutcomeDisabled AgentOutcome = "disabled"
)

// PredictedLabels extracts labels from predictions in order.
func PredictedLabels(preds []Prediction) []int {
	out := make([]int, len(preds))
	for i, p := range preds {
		out[i] = p.Label
	}
	return out
}

// Scores extracts anomaly scores from predictions in order.
func Scores(preds []Prediction) []float64 {
	out := make([]float64, len(preds))
	for i, p := range preds {
		out[i] = p.Score
	}
	return out
}
