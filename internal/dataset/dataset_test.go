package dataset

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/ids-eval/internal/models"
	"github.com/miradorstack/ids-eval/internal/utils"
)

const sampleCSV = `window_id,bytes_per_sec,pkts_per_sec,syn_rate,failed_conn_rate,label
0,500000.5,1200,40.1,0.02,0
1,1500000,2600,41.5,0.01,1
2,510000,1180.0,39.0,0.03,0
`

func TestReadCSV(t *testing.T) {
	windows, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, windows, 3)

	assert.Equal(t, int64(1), windows[1].WindowID)
	assert.Equal(t, 1500000.0, windows[1].BytesPerSec)
	assert.Equal(t, 1, windows[1].Label)
	assert.Equal(t, 0.03, windows[2].FailedConnRate)
}

func TestReadCSVValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing column", "window_id,bytes_per_sec,pkts_per_sec,syn_rate,label\n0,1,1,1,0\n"},
		{"duplicate id", "window_id,bytes_per_sec,pkts_per_sec,syn_rate,failed_conn_rate,label\n0,1,1,1,0,0\n0,1,1,1,0,0\n"},
		{"negative feature", "window_id,bytes_per_sec,pkts_per_sec,syn_rate,failed_conn_rate,label\n0,-1,1,1,0,0\n"},
		{"rate above one", "window_id,bytes_per_sec,pkts_per_sec,syn_rate,failed_conn_rate,label\n0,1,1,1,1.5,0\n"},
		{"bad label", "window_id,bytes_per_sec,pkts_per_sec,syn_rate,failed_conn_rate,label\n0,1,1,1,0,2\n"},
		{"empty", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tc.body))
			require.Error(t, err)
			assert.True(t, utils.IsKind(err, utils.KindData), "expected data error, got %v", err)
		})
	}
}

func TestLoadCSVMissingFile(t *testing.T) {
	_, err := LoadCSV(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindIO))
}

func TestLoadCSVFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "windows.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))
	windows, err := LoadCSV(path)
	require.NoError(t, err)
	assert.Len(t, windows, 3)
}

func makeWindows(n int) []models.WindowRecord {
	out := make([]models.WindowRecord, n)
	for i := range out {
		// Reverse file order so sample mode has something to sort.
		out[i] = models.WindowRecord{WindowID: int64(n - 1 - i), BytesPerSec: float64(i)}
	}
	return out
}

func TestSelectHead(t *testing.T) {
	all := makeWindows(100)
	first, err := Select(all, 50, ModeHead, 0)
	require.NoError(t, err)
	second, err := Select(all, 50, ModeHead, 99)
	require.NoError(t, err)

	require.Len(t, first, 50)
	assert.Equal(t, all[:50], first)
	assert.Equal(t, first, second)
}

func TestSelectSampleDeterministicAndSorted(t *testing.T) {
	all := makeWindows(300)
	a, err := Select(all, 50, ModeSample, 42)
	require.NoError(t, err)
	b, err := Select(all, 50, ModeSample, 42)
	require.NoError(t, err)

	require.Len(t, a, 50)
	assert.Equal(t, a, b)
	assert.True(t, sort.SliceIsSorted(a, func(i, j int) bool { return a[i].WindowID < a[j].WindowID }))

	c, err := Select(all, 50, ModeSample, 7)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestSelectErrors(t *testing.T) {
	_, err := Select(makeWindows(10), 50, ModeHead, 0)
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindConfig))
	assert.Contains(t, err.Error(), "only 10 rows")

	_, err = Select(makeWindows(10), 5, "tail", 0)
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindConfig))
}
