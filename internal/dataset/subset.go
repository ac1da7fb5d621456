package dataset

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/miradorstack/ids-eval/internal/models"
	"github.com/miradorstack/ids-eval/internal/utils"
)

// Selection modes.
const (
	ModeHead   = "head"
	ModeSample = "sample"
)

// Select returns exactly size windows from all. Head mode takes the first
// size rows in file order; sample mode draws a seeded random subset and
// re-sorts it ascending by window ID. The input slice is not modified.
func Select(all []models.WindowRecord, size int, mode string, seed uint64) ([]models.WindowRecord, error) {
	if size <= 0 {
		return nil, utils.NewAppError("dataset.Select", utils.KindConfig, fmt.Sprintf("evaluation size must be positive, got %d", size), nil)
	}
	if len(all) < size {
		return nil, utils.NewAppError("dataset.Select", utils.KindConfig,
			fmt.Sprintf("dataset has only %d rows; need at least %d", len(all), size), nil)
	}

	switch mode {
	case ModeHead:
		return append([]models.WindowRecord(nil), all[:size]...), nil
	case ModeSample:
		rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
		perm := rng.Perm(len(all))[:size]
		out := make([]models.WindowRecord, size)
		for i, idx := range perm {
			out[i] = all[idx]
		}
		sort.Slice(out, func(i, j int) bool { return out[i].WindowID < out[j].WindowID })
		return out, nil
	default:
		return nil, utils.NewAppError("dataset.Select", utils.KindConfig,
			fmt.Sprintf("evaluation mode must be %q or %q, got %q", ModeHead, ModeSample, mode), nil)
	}
}
