package hypergraph

import (
	"gonum.org/v1/gonum/stat"
)

// LabelStats holds the mean and standard deviation of a split's regression
// targets, used to standardize labels before training and to report metrics
// back on the original scale.
type LabelStats struct {
	Mean, StdDev float64
}

// ComputeLabelStats estimates label statistics from a split, usually the
// training split. A degenerate (constant) label set gets StdDev 1 so that
// standardization stays invertible.
func ComputeLabelStats(split *Split) LabelStats {
	values := make([]float64, len(split.Labels))
	for i, label := range split.Labels {
		values[i] = float64(label)
	}
	mean, std := stat.MeanStdDev(values, nil)
	if !(std > 0) {
		std = 1
	}
	return LabelStats{Mean: mean, StdDev: std}
}

// Standardize maps a label to zero mean and unit variance.
func (s LabelStats) Standardize(label float32) float32 {
	return float32((float64(label) - s.Mean) / s.StdDev)
}

// Destandardize inverts Standardize.
func (s LabelStats) Destandardize(label float32) float32 {
	return float32(float64(label)*s.StdDev + s.Mean)
}

// StandardizeLabels returns a copy of split with standardized labels.
// Graphs are shared, not copied.
func (s LabelStats) StandardizeLabels(split *Split) *Split {
	out := &Split{Graphs: split.Graphs, Labels: make([]float32, len(split.Labels))}
	for i, label := range split.Labels {
		out.Labels[i] = s.Standardize(label)
	}
	return out
}
