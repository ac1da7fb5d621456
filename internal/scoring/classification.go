package scoring

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// Report holds binary classification metrics for the positive class.
type Report struct {
	Precision float64
	Recall    float64
	F1        float64
}

// Metrics bundles a detector's classification report and AUROC.
type Metrics struct {
	Report
	// AUROC is NaN when the ground truth holds a single class.
	AUROC float64
}

// Evaluate scores hard predictions and continuous scores against yTrue.
func Evaluate(yTrue, yPred []int, scores []float64) (Metrics, error) {
	rep, err := Classify(yTrue, yPred)
	if err != nil {
		return Metrics{}, err
	}
	auc, err := AUROC(yTrue, scores)
	if err != nil {
		return Metrics{}, err
	}
	return Metrics{Report: rep, AUROC: auc}, nil
}

// Classify computes precision, recall and F1 for label 1. A zero denominator
// yields 0 for that metric.
func Classify(yTrue, yPred []int) (Report, error) {
	if len(yTrue) != len(yPred) {
		return Report{}, fmt.Errorf("label length mismatch: %d truth, %d predicted", len(yTrue), len(yPred))
	}
	var tp, fp, fn float64
	for i, t := range yTrue {
		p := yPred[i]
		switch {
		case t == 1 && p == 1:
			tp++
		case t != 1 && p == 1:
			fp++
		case t == 1 && p != 1:
			fn++
		}
	}
	rep := Report{
		Precision: safeDiv(tp, tp+fp),
		Recall:    safeDiv(tp, tp+fn),
	}
	rep.F1 = safeDiv(2*tp, 2*tp+fp+fn)
	return rep, nil
}

// AUROC returns the area under the ROC curve of scores against yTrue, or NaN
// when yTrue does not contain both classes.
func AUROC(yTrue []int, scores []float64) (float64, error) {
	if len(yTrue) != len(scores) {
		return 0, fmt.Errorf("score length mismatch: %d truth, %d scores", len(yTrue), len(scores))
	}
	var pos, neg int
	for _, t := range yTrue {
		if t == 1 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return math.NaN(), nil
	}

	y := append([]float64(nil), scores...)
	classes := make([]bool, len(yTrue))
	for i, t := range yTrue {
		classes[i] = t == 1
	}
	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
