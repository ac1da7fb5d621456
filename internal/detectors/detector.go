package detectors

import "github.com/miradorstack/ids-eval/internal/models"

// AnomalyDetector scores every window of a subset. Implementations return
// exactly one prediction per input window, in input order, with scores
// oriented so that larger means more anomalous.
type AnomalyDetector interface {
	Name() string
	Score(windows []models.WindowRecord) ([]models.Prediction, error)
}
