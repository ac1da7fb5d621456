package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	rep, err := Classify([]int{1, 1, 0, 0, 1}, []int{1, 0, 1, 0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3, rep.Precision, 1e-12)
	assert.InDelta(t, 2.0/3, rep.Recall, 1e-12)
	assert.InDelta(t, 2.0/3, rep.F1, 1e-12)
}

func TestClassifyZeroDivision(t *testing.T) {
	rep, err := Classify([]int{0, 0, 1}, []int{0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, Report{}, rep)

	rep, err = Classify([]int{0, 0}, []int{1, 1})
	require.NoError(t, err)
	assert.Equal(t, Report{}, rep)

	_, err = Classify([]int{1}, []int{1, 0})
	assert.Error(t, err)
}

func TestAUROC(t *testing.T) {
	cases := []struct {
		name   string
		y      []int
		scores []float64
		want   float64
	}{
		{name: "perfect", y: []int{0, 0, 1, 1}, scores: []float64{0.1, 0.2, 0.8, 0.9}, want: 1},
		{name: "inverted", y: []int{0, 0, 1, 1}, scores: []float64{0.9, 0.8, 0.2, 0.1}, want: 0},
		{name: "partial", y: []int{0, 0, 1, 1}, scores: []float64{0.1, 0.4, 0.35, 0.8}, want: 0.75},
		{name: "all tied", y: []int{0, 1, 0, 1}, scores: []float64{1, 1, 1, 1}, want: 0.5},
		{name: "unsorted input", y: []int{1, 0, 1, 0, 0}, scores: []float64{3, -1, 2.5, 0, 2.6}, want: 5.0 / 6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := AUROC(tc.y, tc.scores)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestAUROCSingleClassIsNaN(t *testing.T) {
	got, err := AUROC([]int{0, 0, 0}, []float64{1, 2, 3})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got))

	m, err := Evaluate([]int{1, 1}, []int{1, 0}, []float64{2, 1})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(m.AUROC))
	assert.Equal(t, 1.0, m.Precision)
	assert.Equal(t, 0.5, m.Recall)
}

func TestExplanationQuality(t *testing.T) {
	rep, err := ExplanationQuality(
		[]string{
			"Sharp bytes_per_sec spike",
			"pkts_per_sec steady",
			"Massive surge",
			"nothing notable",
		},
		[]int{1, 0, 0, 1},
	)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, rep.SpecificityRate, 1e-12)
	assert.InDelta(t, 0.5, rep.ConsistencyRate, 1e-12)
}

func TestExplanationQualityAllSpecific(t *testing.T) {
	rep, err := ExplanationQuality([]string{"SYN_RATE up", "failed_conn_rate flat", "bytes_per_sec"}, []int{0, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, 1.0, rep.SpecificityRate)
}

func TestExplanationQualityEmpty(t *testing.T) {
	rep, err := ExplanationQuality(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ExplanationReport{}, rep)

	_, err = ExplanationQuality([]string{"x"}, nil)
	assert.Error(t, err)
}
