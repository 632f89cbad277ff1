package raster

import (
	"slices"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/pointraster/internal/model"
)

// reduce collapses one cell's ascending Z values to a single value.
func reduce(mode model.AggregationMode, sorted []float64) float64 {
	switch mode {
	case model.ModeMedian:
		return Median(sorted)
	case model.ModeMode:
		return Mode(sorted)
	default:
		return Mean(sorted)
	}
}

// Mean returns the arithmetic mean of xs, or NoData when xs is empty.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return NoData
	}
	return stat.Mean(xs, nil)
}

// Median returns the middle value of xs, averaging the two middle values
// for even lengths, or NoData when xs is empty.
func Median(xs []float64) float64 {
	m, err := stats.Median(stats.Float64Data(xs))
	if err != nil {
		return NoData
	}
	return m
}

// Mode returns the most frequent value of xs. Ties go to the smallest value.
// xs need not be sorted, but sorted input avoids a copy.
func Mode(xs []float64) float64 {
	if len(xs) == 0 {
		return NoData
	}
	if !isSorted(xs) {
		xs = slices.Clone(xs)
		slices.Sort(xs)
	}
	best, bestRun := xs[0], 0
	for i := 0; i < len(xs); {
		j := i + 1
		for j < len(xs) && xs[j] == xs[i] {
			j++
		}
		if j-i > bestRun {
			best, bestRun = xs[i], j-i
		}
		i = j
	}
	return best
}

func isSorted(xs []float64) bool {
	for i := 1; i < len(xs); i++ {
		if xs[i] < xs[i-1] {
			return false
		}
	}
	return true
}
