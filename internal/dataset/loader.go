package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/miradorstack/ids-eval/internal/models"
	"github.com/miradorstack/ids-eval/internal/utils"
)

var requiredColumns = []string{
	"window_id",
	models.FeatureBytesPerSec,
	models.FeaturePktsPerSec,
	models.FeatureSynRate,
	models.FeatureFailedConnRate,
	"label",
}

// LoadCSV reads and validates a window dataset from path.
func LoadCSV(path string) ([]models.WindowRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, utils.NewAppError("dataset.LoadCSV", utils.KindIO, "open dataset", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV parses windows from r. Extra columns are ignored; missing required
// columns, malformed values, and duplicate window IDs are data errors.
func ReadCSV(r io.Reader) ([]models.WindowRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, utils.NewAppError("dataset.ReadCSV", utils.KindData, "dataset is empty", nil)
		}
		return nil, utils.NewAppError("dataset.ReadCSV", utils.KindData, "read header", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, utils.NewAppError("dataset.ReadCSV", utils.KindData, fmt.Sprintf("missing column %q", col), nil)
		}
	}

	var windows []models.WindowRecord
	seen := make(map[int64]struct{})
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, utils.NewAppError("dataset.ReadCSV", utils.KindData, fmt.Sprintf("line %d", line), err)
		}

		w, err := parseRecord(record, index)
		if err != nil {
			return nil, utils.NewAppError("dataset.ReadCSV", utils.KindData, fmt.Sprintf("line %d", line), err)
		}
		if _, dup := seen[w.WindowID]; dup {
			return nil, utils.NewAppError("dataset.ReadCSV", utils.KindData, fmt.Sprintf("line %d: duplicate window_id %d", line, w.WindowID), nil)
		}
		seen[w.WindowID] = struct{}{}
		windows = append(windows, w)
	}
	return windows, nil
}

func parseRecord(record []string, index map[string]int) (models.WindowRecord, error) {
	field := func(name string) string {
		i := index[name]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	id, err := parseInteger(field("window_id"))
	if err != nil {
		return models.WindowRecord{}, fmt.Errorf("window_id: %w", err)
	}
	if id < 0 {
		return models.WindowRecord{}, fmt.Errorf("window_id must be non-negative, got %d", id)
	}

	label, err := parseInteger(field("label"))
	if err != nil {
		return models.WindowRecord{}, fmt.Errorf("label: %w", err)
	}
	if label != 0 && label != 1 {
		return models.WindowRecord{}, fmt.Errorf("label must be 0 or 1, got %d", label)
	}

	w := models.WindowRecord{WindowID: id, Label: int(label)}
	targets := []struct {
		name string
		dst  *float64
	}{
		{models.FeatureBytesPerSec, &w.BytesPerSec},
		{models.FeaturePktsPerSec, &w.PktsPerSec},
		{models.FeatureSynRate, &w.SynRate},
		{models.FeatureFailedConnRate, &w.FailedConnRate},
	}
	for _, t := range targets {
		v, err := strconv.ParseFloat(field(t.name), 64)
		if err != nil {
			return models.WindowRecord{}, fmt.Errorf("%s: %w", t.name, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return models.WindowRecord{}, fmt.Errorf("%s must be a finite non-negative number, got %v", t.name, v)
		}
		*t.dst = v
	}
	if w.FailedConnRate > 1 {
		return models.WindowRecord{}, fmt.Errorf("failed_conn_rate must be within [0,1], got %v", w.FailedConnRate)
	}
	return w, nil
}

// parseInteger accepts plain integers and integral floats such as "3.0".
func parseInteger(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	return int64(f), nil
}
