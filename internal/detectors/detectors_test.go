package detectors

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/ids-eval/internal/models"
	"github.com/miradorstack/ids-eval/internal/utils"
)

// burstSubset returns n quiet windows with a volumetric burst at index burst.
func burstSubset(n, burst int) []models.WindowRecord {
	out := make([]models.WindowRecord, n)
	for i := range out {
		out[i] = models.WindowRecord{
			WindowID:       int64(i),
			BytesPerSec:    500000 + 1000*float64(i%7),
			PktsPerSec:     1200 + 5*float64(i%5),
			SynRate:        40 + float64(i%3),
			FailedConnRate: 0.02 + 0.001*float64(i%4),
		}
	}
	out[burst].BytesPerSec = 5e7
	out[burst].PktsPerSec = 90000
	out[burst].Label = 1
	return out
}

func defaultZScore(t *testing.T) *ZScoreDetector {
	t.Helper()
	d, err := NewZScoreDetector(ZScoreOptions{
		Features:  models.DefaultFeatures,
		Threshold: 3.0,
		Weighted:  true,
		Weights:   map[string]float64{models.FeatureSynRate: 1.6, models.FeatureFailedConnRate: 1.6},
		Epsilon:   1e-9,
	})
	require.NoError(t, err)
	return d
}

func TestZScoreFlagsVolumetricBurst(t *testing.T) {
	windows := burstSubset(50, 17)
	preds, err := defaultZScore(t).Score(windows)
	require.NoError(t, err)
	require.Len(t, preds, 50)

	for i, p := range preds {
		assert.Equal(t, windows[i].WindowID, p.WindowID)
		if i == 17 {
			assert.Equal(t, 1, p.Label)
			assert.GreaterOrEqual(t, p.Score, 3.0)
			continue
		}
		assert.Equal(t, 0, p.Label, "window %d", i)
		assert.Less(t, p.Score, preds[17].Score)
	}
}

func TestZScoreWeightingRaisesWeightedFeatures(t *testing.T) {
	windows := burstSubset(20, 3)
	windows[5].SynRate = 400

	plain, err := NewZScoreDetector(ZScoreOptions{Threshold: 3})
	require.NoError(t, err)
	weighted, err := NewZScoreDetector(ZScoreOptions{
		Threshold: 3,
		Weighted:  true,
		Weights:   map[string]float64{models.FeatureSynRate: 1.6},
	})
	require.NoError(t, err)

	p, err := plain.Score(windows)
	require.NoError(t, err)
	w, err := weighted.Score(windows)
	require.NoError(t, err)
	assert.Greater(t, w[5].Score, p[5].Score)
	assert.InDelta(t, p[3].Score, w[3].Score, 0.5)
}

func TestZScoreConstantFeatureIsFinite(t *testing.T) {
	windows := []models.WindowRecord{
		{WindowID: 1, BytesPerSec: 10, PktsPerSec: 1, SynRate: 1, FailedConnRate: 0.1},
		{WindowID: 2, BytesPerSec: 10, PktsPerSec: 1, SynRate: 1, FailedConnRate: 0.1},
	}
	preds, err := defaultZScore(t).Score(windows)
	require.NoError(t, err)
	for _, p := range preds {
		assert.False(t, math.IsNaN(p.Score))
		assert.Zero(t, p.Score)
		assert.Zero(t, p.Label)
	}
}

func TestZScoreMoments(t *testing.T) {
	windows := []models.WindowRecord{
		{WindowID: 1, BytesPerSec: 2},
		{WindowID: 2, BytesPerSec: 4},
	}
	m, err := defaultZScore(t).Moments(windows)
	require.NoError(t, err)
	require.Len(t, m, 4)
	assert.Equal(t, models.FeatureBytesPerSec, m[0].Feature)
	assert.InDelta(t, 3.0, m[0].Mean, 1e-12)
	assert.InDelta(t, 1.0, m[0].Std, 1e-6)
	assert.InDelta(t, 1e-9, m[1].Std, 1e-15)
}

func TestZScoreUnknownFeature(t *testing.T) {
	d, err := NewZScoreDetector(ZScoreOptions{Features: []string{"latency"}, Threshold: 3})
	require.NoError(t, err)
	_, err = d.Score(burstSubset(5, 0))
	assert.Error(t, err)
}

func TestIsolationForestFlagsOutlier(t *testing.T) {
	windows := burstSubset(50, 17)
	f, err := NewIsolationForest(utils.DiscardLogger(), IForestOptions{Trees: 200, MaxSamples: 256, Contamination: 0.12, Seed: 42})
	require.NoError(t, err)

	preds, err := f.Score(windows)
	require.NoError(t, err)
	require.Len(t, preds, 50)

	assert.Equal(t, 1, preds[17].Label)
	flagged := 0
	for i, p := range preds {
		assert.Equal(t, windows[i].WindowID, p.WindowID)
		assert.Equal(t, p.Score > 0, p.Label == 1, "label follows score sign for window %d", i)
		if i != 17 {
			assert.Less(t, p.Score, preds[17].Score)
		}
		flagged += p.Label
	}
	assert.LessOrEqual(t, flagged, 6)
}

func TestIsolationForestDeterministic(t *testing.T) {
	windows := burstSubset(40, 9)
	opts := IForestOptions{Trees: 50, MaxSamples: 32, Contamination: 0.1, Seed: 7}

	a, err := NewIsolationForest(nil, opts)
	require.NoError(t, err)
	b, err := NewIsolationForest(nil, opts)
	require.NoError(t, err)

	pa, err := a.Score(windows)
	require.NoError(t, err)
	pb, err := b.Score(windows)
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
}

func TestIsolationForestRejectsContamination(t *testing.T) {
	for _, c := range []float64{0, -0.1, 0.6, math.NaN()} {
		_, err := NewIsolationForest(nil, IForestOptions{Contamination: c})
		assert.Error(t, err, "contamination %v", c)
	}
}

func TestIsolationForestIdenticalPoints(t *testing.T) {
	windows := make([]models.WindowRecord, 8)
	for i := range windows {
		windows[i] = models.WindowRecord{WindowID: int64(i), BytesPerSec: 1, PktsPerSec: 1}
	}
	f, err := NewIsolationForest(nil, IForestOptions{Trees: 10, Contamination: 0.1, Seed: 1})
	require.NoError(t, err)
	preds, err := f.Score(windows)
	require.NoError(t, err)
	for _, p := range preds {
		assert.Zero(t, p.Label)
		assert.InDelta(t, 0, p.Score, 1e-12)
	}
}

func TestAveragePathLength(t *testing.T) {
	assert.Zero(t, averagePathLength(1))
	assert.Equal(t, 1.0, averagePathLength(2))
	assert.InDelta(t, 10.2448, averagePathLength(256), 1e-3)
}

func TestPercentileMatchesLinearInterpolation(t *testing.T) {
	v := []float64{4, 1, 3, 2}
	assert.InDelta(t, 2.5, percentile(v, 50), 1e-12)
	assert.InDelta(t, 3.7, percentile(v, 90), 1e-12)
	assert.Equal(t, 1.0, percentile(v, 0))
	assert.Equal(t, 4.0, percentile(v, 100))
}

func TestStandardScaler(t *testing.T) {
	s := fitStandardScaler([][]float64{{1, 5}, {3, 5}})
	out := s.transform([][]float64{{1, 5}, {3, 5}})
	assert.Equal(t, [][]float64{{-1, 0}, {1, 0}}, out)
}
