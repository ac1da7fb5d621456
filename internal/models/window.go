package models

import "fmt"

// Feature names as they appear in the dataset header.
const (
	FeatureBytesPerSec    = "bytes_per_sec"
	FeaturePktsPerSec     = "pkts_per_sec"
	FeatureSynRate        = "syn_rate"
	FeatureFailedConnRate = "failed_conn_rate"
)

// DefaultFeatures is the canonical feature order used by detectors and prompts.
var DefaultFeatures = []string{
	FeatureBytesPerSec,
	FeaturePktsPerSec,
	FeatureSynRate,
	FeatureFailedConnRate,
}

// WindowRecord is one fixed-size traffic window with its ground-truth label.
type WindowRecord struct {
	WindowID       int64
	BytesPerSec    float64
	PktsPerSec     float64
	SynRate        float64
	FailedConnRate float64
	Label          int
}

// Feature returns the value of the named feature.
func (w WindowRecord) Feature(name string) (float64, error) {
	switch name {
	case FeatureBytesPerSec:
		return w.BytesPerSec, nil
	case FeaturePktsPerSec:
		return w.PktsPerSec, nil
	case FeatureSynRate:
		return w.SynRate, nil
	case FeatureFailedConnRate:
		return w.FailedConnRate, nil
	default:
		return 0, fmt.Errorf("unknown feature %q", name)
	}
}

// Matrix projects windows onto the given feature columns.
func Matrix(windows []WindowRecord, features []string) ([][]float64, error) {
	out := make([][]float64, len(windows))
	for i, w := range windows {
		row := make([]float64, len(features))
		for j, f := range features {
			v, err := w.Feature(f)
			if err != nil {
				return nil, err
			}
			row[j] = v
		}
		out[i] = row
	}
	return out, nil
}

// Labels returns the ground-truth labels of windows in order.
func Labels(windows []WindowRecord) []int {
	out := make([]int, len(windows))
	for i, w := range windows {
		out[i] = w.Label
	}
	return out
}
