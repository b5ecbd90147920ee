package crossval

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/maxent"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/predictors"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/raster"
)

func TestSpatialFoldsPartition(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	samples := make([]predictors.Sample, 53)
	for i := range samples {
		samples[i] = predictors.Sample{
			Longitude: 71 + rng.Float64()*7,
			Latitude:  32 + rng.Float64()*5,
		}
	}
	folds := SpatialFolds(samples, 5)

	counts := make(map[int]int)
	for _, f := range folds {
		require.GreaterOrEqual(t, f, 0)
		require.Less(t, f, 5)
		counts[f]++
	}
	assert.Len(t, counts, 5)
	for f, n := range counts {
		assert.GreaterOrEqual(t, n, 10, "fold %d too small", f)
		assert.LessOrEqual(t, n, 11, "fold %d too large", f)
	}

	// Deterministic: same inputs give the same assignment.
	assert.Equal(t, folds, SpatialFolds(samples, 5))

	// Spatial: every point of fold 0 lies west of every point of fold 4.
	var east, west float64 = -999, 999
	for i, f := range folds {
		if f == 0 && samples[i].Longitude > east {
			east = samples[i].Longitude
		}
		if f == 4 && samples[i].Longitude < west {
			west = samples[i].Longitude
		}
	}
	assert.Less(t, east, west)
}

// A suitability gradient the model can learn: presences cluster where the
// covariate is high, so each fold's held-out AUC should beat chance.
func TestRunLearnableGradient(t *testing.T) {
	spec := raster.GridSpec{X0: 71, Y0: 32, Dx: 0.1, Dy: 0.1, Nx: 60, Ny: 40}
	s := raster.NewStack(spec, []string{"bio2"})
	for r := 0; r < spec.Ny; r++ {
		for c := 0; c < spec.Nx; c++ {
			s.Layers[0].Set(float64(r), r, c) // value rises with latitude
		}
	}

	rng := rand.New(rand.NewSource(9))
	var samples []predictors.Sample
	for i := 0; i < 60; i++ {
		// Presences in the high-value northern half.
		lon := 71.05 + rng.Float64()*5.8
		lat := 34.5 + rng.Float64()*1.4
		vals, ok := s.ExtractAt(lon, lat)
		require.True(t, ok)
		samples = append(samples, predictors.Sample{Longitude: lon, Latitude: lat, Values: vals})
	}

	sum, err := Run(s, samples, Params{
		K:             5,
		BackgroundMul: 5,
		BufferM:       0,
		Seed:          17,
		Fit:           maxent.FitParams{MaxIter: 200},
	})
	require.NoError(t, err)
	require.Len(t, sum.Folds, 5)

	for _, f := range sum.Folds {
		assert.Equal(t, 48, f.TrainPresences)
		assert.Equal(t, 12, f.TestPresences)
	}
	assert.Greater(t, sum.MeanAUC, 0.7)
	assert.GreaterOrEqual(t, sum.StdAUC, 0.0)
}
