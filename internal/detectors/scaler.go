package detectors

import "gonum.org/v1/gonum/stat"

// standardScaler centres columns on their mean and divides by the population
// standard deviation. Constant columns keep a scale of 1.
type standardScaler struct {
	mean  []float64
	scale []float64
}

func fitStandardScaler(x [][]float64) standardScaler {
	if len(x) == 0 {
		return standardScaler{}
	}
	cols := len(x[0])
	s := standardScaler{mean: make([]float64, cols), scale: make([]float64, cols)}
	col := make([]float64, len(x))
	for j := 0; j < cols; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 {
			std = 1
		}
		s.mean[j], s.scale[j] = mean, std
	}
	return s
}

func (s standardScaler) transform(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.mean[j]) / s.scale[j]
		}
		out[i] = scaled
	}
	return out
}
