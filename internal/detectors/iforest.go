package detectors

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/ids-eval/internal/models"
)

// IForestName identifies the isolation-forest baseline in results and metrics.
const IForestName = "iforest"

const eulerGamma = 0.5772156649015329

// IForestOptions configures IsolationForest.
type IForestOptions struct {
	Features      []string
	Trees         int
	MaxSamples    int
	Contamination float64
	Seed          uint64
}

// IsolationForest fits a fresh forest on standardised features for every
// subset it scores. A window is an outlier when its anomaly score
// 2^(-E[h]/c(psi)) lies above the (1-contamination) quantile of the subset.
// The reported score is the anomaly score minus that cut-off, so positive
// scores are exactly the flagged windows.
type IsolationForest struct {
	opts   IForestOptions
	logger *slog.Logger
}

// NewIsolationForest validates opts and returns a detector.
func NewIsolationForest(logger *slog.Logger, opts IForestOptions) (*IsolationForest, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(opts.Features) == 0 {
		opts.Features = models.DefaultFeatures
	}
	if opts.Trees <= 0 {
		opts.Trees = 200
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = 256
	}
	if !(opts.Contamination > 0 && opts.Contamination <= 0.5) {
		return nil, fmt.Errorf("iforest contamination must be in (0, 0.5], got %v", opts.Contamination)
	}
	opts.Features = append([]string(nil), opts.Features...)
	return &IsolationForest{opts: opts, logger: logger}, nil
}

// Name implements AnomalyDetector.
func (f *IsolationForest) Name() string { return IForestName }

// Contamination returns the configured expected outlier fraction.
func (f *IsolationForest) Contamination() float64 { return f.opts.Contamination }

// Score implements AnomalyDetector.
func (f *IsolationForest) Score(windows []models.WindowRecord) ([]models.Prediction, error) {
	if len(windows) == 0 {
		return []models.Prediction{}, nil
	}
	raw, err := models.Matrix(windows, f.opts.Features)
	if err != nil {
		return nil, err
	}
	x := fitStandardScaler(raw).transform(raw)

	psi := min(f.opts.MaxSamples, len(x))
	forest, err := f.fit(context.Background(), x, psi)
	if err != nil {
		return nil, err
	}

	norm := averagePathLength(psi)
	scores := make([]float64, len(x))
	for i, row := range x {
		total := 0.0
		for _, t := range forest {
			total += t.pathLength(row)
		}
		mean := total / float64(len(forest))
		if norm == 0 {
			scores[i] = 0.5
			continue
		}
		scores[i] = math.Pow(2, -mean/norm)
	}

	cutoff := percentile(scores, 100*(1-f.opts.Contamination))
	f.logger.Debug("isolation forest fitted",
		slog.Int("trees", len(forest)),
		slog.Int("max_samples", psi),
		slog.Float64("cutoff", cutoff),
	)

	preds := make([]models.Prediction, len(windows))
	for i, w := range windows {
		label := 0
		if scores[i] > cutoff {
			label = 1
		}
		preds[i] = models.Prediction{WindowID: w.WindowID, Label: label, Score: scores[i] - cutoff}
	}
	return preds, nil
}

// fit grows the trees concurrently. Each tree draws from its own generator
// derived from the seed and the tree index, so the forest does not depend on
// scheduling order.
func (f *IsolationForest) fit(ctx context.Context, x [][]float64, psi int) ([]*isolationTree, error) {
	maxDepth := int(math.Ceil(math.Log2(float64(max(psi, 2)))))
	forest := make([]*isolationTree, f.opts.Trees)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range forest {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(f.opts.Seed, uint64(i)))
			sample := rng.Perm(len(x))[:psi]
			t := &isolationTree{}
			t.grow(x, sample, 0, maxDepth, rng)
			forest[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fit isolation forest: %w", err)
	}
	return forest, nil
}

type treeNode struct {
	feature     int
	threshold   float64
	left, right int
	size        int
}

type isolationTree struct {
	nodes []treeNode
}

func (t *isolationTree) grow(x [][]float64, idx []int, depth, maxDepth int, rng *rand.Rand) int {
	id := len(t.nodes)
	t.nodes = append(t.nodes, treeNode{left: -1, right: -1, size: len(idx)})
	if depth >= maxDepth || len(idx) <= 1 {
		return id
	}

	type span struct {
		feature  int
		min, max float64
	}
	var candidates []span
	for j := range x[idx[0]] {
		lo, hi := x[idx[0]][j], x[idx[0]][j]
		for _, r := range idx[1:] {
			lo = math.Min(lo, x[r][j])
			hi = math.Max(hi, x[r][j])
		}
		if hi > lo {
			candidates = append(candidates, span{feature: j, min: lo, max: hi})
		}
	}
	if len(candidates) == 0 {
		return id
	}

	s := candidates[rng.IntN(len(candidates))]
	threshold := s.min + rng.Float64()*(s.max-s.min)
	var left, right []int
	for _, r := range idx {
		if x[r][s.feature] <= threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return id
	}

	l := t.grow(x, left, depth+1, maxDepth, rng)
	r := t.grow(x, right, depth+1, maxDepth, rng)
	t.nodes[id].feature = s.feature
	t.nodes[id].threshold = threshold
	t.nodes[id].left = l
	t.nodes[id].right = r
	return id
}

func (t *isolationTree) pathLength(row []float64) float64 {
	depth := 0
	n := t.nodes[0]
	for n.left >= 0 {
		if row[n.feature] <= n.threshold {
			n = t.nodes[n.left]
		} else {
			n = t.nodes[n.right]
		}
		depth++
	}
	return float64(depth) + averagePathLength(n.size)
}

// averagePathLength is the expected path length of an unsuccessful search in
// a binary search tree of n points.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

// percentile interpolates linearly between closest ranks, matching numpy's
// default percentile.
func percentile(values []float64, p float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := min(lo+1, len(sorted)-1)
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
