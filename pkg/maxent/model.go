// Package maxent fits, applies, and evaluates the maximum-entropy
// presence/background model. The model is a regularized log-linear density
// ratio over linear, quadratic, and hinge feature transforms; the optimizer
// is delegated to gonum's L-BFGS. Consumers only see fit, predict,
// evaluate, and variable-importance operations.
package maxent

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/optimize"

	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/raster"
)

// FitParams tunes the fit. Zero values take defaults.
type FitParams struct {
	Lambda      float64 // l2 penalty on non-intercept weights
	KnotsPerVar int
	MaxIter     int
}

func (p FitParams) withDefaults() FitParams {
	if p.Lambda == 0 {
		p.Lambda = 0.01
	}
	if p.KnotsPerVar == 0 {
		p.KnotsPerVar = 4
	}
	if p.MaxIter == 0 {
		p.MaxIter = 500
	}
	return p
}

// Model is the fitted artifact: frozen feature map plus learned weights.
// Immutable once saved; reloading reproduces predictions exactly.
type Model struct {
	Features  *FeatureMap `json:"features"`
	Intercept float64     `json:"intercept"`
	Weights   []float64   `json:"weights"`
	Lambda    float64     `json:"lambda"`
}

// Fit trains on presence rows (label 1) and background rows (label 0),
// each row holding raw covariate values in vars order.
func Fit(vars []string, presence, bg [][]float64, p FitParams) (*Model, error) {
	p = p.withDefaults()
	if len(presence) == 0 {
		return nil, fmt.Errorf("maxent: no presence rows")
	}
	if len(bg) == 0 {
		return nil, fmt.Errorf("maxent: no background rows")
	}

	pooled := make([][]float64, 0, len(presence)+len(bg))
	pooled = append(pooled, presence...)
	pooled = append(pooled, bg...)
	fm, err := newFeatureMap(vars, pooled, p.KnotsPerVar)
	if err != nil {
		return nil, err
	}

	n := len(pooled)
	nf := fm.NumFeatures()
	design := make([][]float64, n)
	labels := make([]float64, n)
	for i, row := range pooled {
		design[i] = fm.Transform(row)
		if i < len(presence) {
			labels[i] = 1
		}
	}

	// x[0] is the unpenalized intercept, x[1:] the feature weights.
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return logisticLoss(x, design, labels, p.Lambda)
		},
		Grad: func(grad, x []float64) {
			logisticGrad(grad, x, design, labels, p.Lambda)
		},
	}
	x0 := make([]float64, 1+nf)
	settings := &optimize.Settings{
		MajorIterations:   p.MaxIter,
		GradientThreshold: 1e-6,
	}
	result, err := optimize.Minimize(problem, x0, settings, &optimize.LBFGS{})
	if err != nil {
		return nil, fmt.Errorf("maxent: optimization failed: %w", err)
	}

	return &Model{
		Features:  fm,
		Intercept: result.X[0],
		Weights:   append([]float64(nil), result.X[1:]...),
		Lambda:    p.Lambda,
	}, nil
}

func logisticLoss(x []float64, design [][]float64, labels []float64, lambda float64) float64 {
	n := float64(len(design))
	var loss float64
	for i, z := range design {
		eta := x[0]
		for j, f := range z {
			eta += x[j+1] * f
		}
		// log(1+exp(eta)) - y*eta, computed stably.
		if eta > 0 {
			loss += eta + math.Log1p(math.Exp(-eta)) - labels[i]*eta
		} else {
			loss += math.Log1p(math.Exp(eta)) - labels[i]*eta
		}
	}
	loss /= n
	for _, w := range x[1:] {
		loss += lambda / 2 * w * w
	}
	return loss
}

func logisticGrad(grad, x []float64, design [][]float64, labels []float64, lambda float64) {
	n := float64(len(design))
	for j := range grad {
		grad[j] = 0
	}
	for i, z := range design {
		eta := x[0]
		for j, f := range z {
			eta += x[j+1] * f
		}
		d := sigmoid(eta) - labels[i]
		grad[0] += d
		for j, f := range z {
			grad[j+1] += d * f
		}
	}
	for j := range grad {
		grad[j] /= n
	}
	for j := 1; j < len(grad); j++ {
		grad[j] += lambda * x[j]
	}
}

func sigmoid(eta float64) float64 {
	if eta >= 0 {
		return 1 / (1 + math.Exp(-eta))
	}
	e := math.Exp(eta)
	return e / (1 + e)
}

// Score returns the suitability of one raw covariate row, in [0, 1].
func (m *Model) Score(row []float64) float64 {
	z := m.Features.Transform(row)
	eta := m.Intercept
	for j, f := range z {
		eta += m.Weights[j] * f
	}
	return sigmoid(eta)
}

// PredictStack scores every cell of the stack, preserving no-data: a cell
// with any missing layer value stays NaN. Stack layers must match the
// model's covariates in name and order.
func (m *Model) PredictStack(s *raster.Stack) (*raster.Grid, error) {
	if len(s.Names) != len(m.Features.Vars) {
		return nil, fmt.Errorf("maxent: stack has %d layers, model wants %d", len(s.Names), len(m.Features.Vars))
	}
	for i, name := range m.Features.Vars {
		if s.Names[i] != name {
			return nil, fmt.Errorf("maxent: stack layer %d is %s, model wants %s", i, s.Names[i], name)
		}
	}

	g := raster.NewGrid(s.GridSpec)
	row := make([]float64, len(s.Layers))
	for r := 0; r < s.Ny; r++ {
	cells:
		for c := 0; c < s.Nx; c++ {
			for li, l := range s.Layers {
				v := l.Get(r, c)
				if math.IsNaN(v) {
					g.Data.Set(math.NaN(), r, c)
					continue cells
				}
				row[li] = v
			}
			g.Data.Set(m.Score(row), r, c)
		}
	}
	return g, nil
}

// Split partitions n indices into a seeded train/test split.
func Split(n int, trainFraction float64, seed int64) (train, test []int) {
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(n)
	cut := int(math.Round(float64(n) * trainFraction))
	if cut < 1 {
		cut = 1
	}
	if cut >= n {
		cut = n - 1
	}
	train = append(train, perm[:cut]...)
	test = append(test, perm[cut:]...)
	return train, test
}

// Rows picks the indexed rows from a table.
func Rows(all [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = all[j]
	}
	return out
}
