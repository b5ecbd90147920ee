package maxent

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// FeatureMap expands raw covariate rows into the model's feature space:
// standardized linear and quadratic terms plus hinge terms at fixed knots.
// The map is learned from the training data and frozen into the model
// artifact so predictions reproduce after reload.
type FeatureMap struct {
	Vars  []string    `json:"vars"`
	Means []float64   `json:"means"`
	Stds  []float64   `json:"stds"`
	Mins  []float64   `json:"mins"`
	Maxs  []float64   `json:"maxs"`
	Knots [][]float64 `json:"knots"` // per variable, in standardized space
}

// newFeatureMap derives standardization and hinge knots from the pooled
// training rows (presence plus background).
func newFeatureMap(vars []string, rows [][]float64, knotsPerVar int) (*FeatureMap, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("maxent: no training rows")
	}
	nv := len(vars)
	fm := &FeatureMap{
		Vars:  vars,
		Means: make([]float64, nv),
		Stds:  make([]float64, nv),
		Mins:  make([]float64, nv),
		Maxs:  make([]float64, nv),
		Knots: make([][]float64, nv),
	}
	col := make([]float64, len(rows))
	for i := 0; i < nv; i++ {
		for r, row := range rows {
			if len(row) != nv {
				return nil, fmt.Errorf("maxent: row has %d values, expected %d", len(row), nv)
			}
			col[r] = row[i]
		}
		mean, std := stat.MeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1 // constant column; the linear weight will absorb nothing
		}
		fm.Means[i] = mean
		fm.Stds[i] = std

		sorted := append([]float64(nil), col...)
		sort.Float64s(sorted)
		fm.Mins[i] = sorted[0]
		fm.Maxs[i] = sorted[len(sorted)-1]

		// Knots at interior quantiles of the standardized column.
		knots := make([]float64, knotsPerVar)
		for k := 0; k < knotsPerVar; k++ {
			q := float64(k+1) / float64(knotsPerVar+1)
			knots[k] = (stat.Quantile(q, stat.Empirical, sorted, nil) - mean) / std
		}
		fm.Knots[i] = knots
	}
	return fm, nil
}

// NumFeatures returns the feature-space dimension, excluding the intercept.
func (fm *FeatureMap) NumFeatures() int {
	n := 2 * len(fm.Vars) // linear + quadratic
	for _, k := range fm.Knots {
		n += len(k)
	}
	return n
}

// Transform expands one raw row into feature space.
func (fm *FeatureMap) Transform(row []float64) []float64 {
	out := make([]float64, 0, fm.NumFeatures())
	for i := range fm.Vars {
		z := (row[i] - fm.Means[i]) / fm.Stds[i]
		out = append(out, z, z*z)
		for _, knot := range fm.Knots[i] {
			h := z - knot
			if h < 0 {
				h = 0
			}
			out = append(out, h)
		}
	}
	return out
}

// featureVar maps each feature index to the covariate it derives from.
func (fm *FeatureMap) featureVar() []int {
	owner := make([]int, 0, fm.NumFeatures())
	for i := range fm.Vars {
		owner = append(owner, i, i)
		for range fm.Knots[i] {
			owner = append(owner, i)
		}
	}
	return owner
}
