package scoring

import (
	"fmt"
	"strings"

	"github.com/miradorstack/ids-eval/internal/models"
)

var (
	affirmingTerms  = []string{"spike", "elevat", "surge", "high", "anomal"}
	overstatedTerms = []string{"spike", "surge", "massive"}
)

// ExplanationReport holds lexical proxies for rationale usefulness. They are
// heuristics over vocabulary, not a semantic judgement of the explanation.
type ExplanationReport struct {
	// SpecificityRate is the share of rationales naming a feature literally.
	SpecificityRate float64
	// ConsistencyRate is the share of rationales whose vocabulary agrees with
	// the ground truth: affirming terms for anomalies, no overstated terms for
	// normal windows.
	ConsistencyRate float64
}

// ExplanationQuality scores rationales against ground truth. Both rates are 0
// for empty input.
func ExplanationQuality(rationales []string, yTrue []int) (ExplanationReport, error) {
	if len(rationales) != len(yTrue) {
		return ExplanationReport{}, fmt.Errorf("rationale length mismatch: %d rationales, %d labels", len(rationales), len(yTrue))
	}
	if len(rationales) == 0 {
		return ExplanationReport{}, nil
	}

	var specific, consistent int
	for i, r := range rationales {
		lower := strings.ToLower(r)
		if containsAny(lower, models.DefaultFeatures) {
			specific++
		}
		if yTrue[i] == 1 {
			if containsAny(lower, affirmingTerms) {
				consistent++
			}
		} else if !containsAny(lower, overstatedTerms) {
			consistent++
		}
	}
	n := float64(len(rationales))
	return ExplanationReport{
		SpecificityRate: float64(specific) / n,
		ConsistencyRate: float64(consistent) / n,
	}, nil
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
