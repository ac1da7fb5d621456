package detectors

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/miradorstack/ids-eval/internal/models"
)

// ZScoreName identifies the statistical baseline in results and metrics.
const ZScoreName = "zscore"

// ZScoreOptions configures ZScoreDetector.
type ZScoreOptions struct {
	Features  []string
	Threshold float64
	Weighted  bool
	// Weights holds per-feature multipliers; features not listed weigh 1.
	Weights map[string]float64
	Epsilon float64
}

// FeatureMoments is the reference distribution of one feature over a subset.
type FeatureMoments struct {
	Feature string
	Mean    float64
	Std     float64
}

// ZScoreDetector flags windows whose mean absolute z-score across features
// reaches the threshold. Moments are recomputed from every subset it scores,
// so the threshold is relative to that subset.
type ZScoreDetector struct {
	opts ZScoreOptions
}

// NewZScoreDetector validates opts and returns a detector.
func NewZScoreDetector(opts ZScoreOptions) (*ZScoreDetector, error) {
	if len(opts.Features) == 0 {
		opts.Features = models.DefaultFeatures
	}
	if opts.Epsilon <= 0 {
		opts.Epsilon = 1e-9
	}
	if math.IsNaN(opts.Threshold) {
		return nil, fmt.Errorf("zscore threshold must be a number")
	}
	for name, w := range opts.Weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("zscore weight for %s must be finite and non-negative", name)
		}
	}
	opts.Features = append([]string(nil), opts.Features...)
	return &ZScoreDetector{opts: opts}, nil
}

// Name implements AnomalyDetector.
func (d *ZScoreDetector) Name() string { return ZScoreName }

// Threshold returns the decision threshold.
func (d *ZScoreDetector) Threshold() float64 { return d.opts.Threshold }

// Moments returns the per-feature population mean and epsilon-floored
// standard deviation over windows.
func (d *ZScoreDetector) Moments(windows []models.WindowRecord) ([]FeatureMoments, error) {
	x, err := models.Matrix(windows, d.opts.Features)
	if err != nil {
		return nil, err
	}
	return d.moments(x), nil
}

func (d *ZScoreDetector) moments(x [][]float64) []FeatureMoments {
	out := make([]FeatureMoments, len(d.opts.Features))
	col := make([]float64, len(x))
	for j, f := range d.opts.Features {
		for i := range x {
			col[i] = x[i][j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		out[j] = FeatureMoments{Feature: f, Mean: mean, Std: std + d.opts.Epsilon}
	}
	return out
}

func (d *ZScoreDetector) weight(feature string) float64 {
	if !d.opts.Weighted {
		return 1
	}
	if w, ok := d.opts.Weights[feature]; ok {
		return w
	}
	return 1
}

// Score implements AnomalyDetector.
func (d *ZScoreDetector) Score(windows []models.WindowRecord) ([]models.Prediction, error) {
	if len(windows) == 0 {
		return []models.Prediction{}, nil
	}
	x, err := models.Matrix(windows, d.opts.Features)
	if err != nil {
		return nil, err
	}
	moments := d.moments(x)

	weights := make([]float64, len(d.opts.Features))
	for j, f := range d.opts.Features {
		weights[j] = d.weight(f)
	}

	preds := make([]models.Prediction, len(windows))
	for i, w := range windows {
		sum := 0.0
		for j, m := range moments {
			sum += math.Abs((x[i][j]-m.Mean)/m.Std) * weights[j]
		}
		score := sum / float64(len(moments))
		label := 0
		if score >= d.opts.Threshold {
			label = 1
		}
		preds[i] = models.Prediction{WindowID: w.WindowID, Label: label, Score: score}
	}
	return preds, nil
}
