package pipeline_test

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/background"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/config"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/occurrence"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/pipeline"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/predictors"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/raster"
)

// fixtureStack is a 40x30 two-layer stack where bio2 rises with latitude
// and bio3 is noise, so presences placed in the north are learnable.
func fixtureStack() *raster.Stack {
	spec := raster.GridSpec{X0: 71, Y0: 32, Dx: 0.1, Dy: 0.1, Nx: 40, Ny: 30}
	s := raster.NewStack(spec, []string{"bio2", "bio3"})
	rng := rand.New(rand.NewSource(3))
	for r := 0; r < spec.Ny; r++ {
		for c := 0; c < spec.Nx; c++ {
			s.Layers[0].Set(float64(r), r, c)
			s.Layers[1].Set(rng.NormFloat64(), r, c)
		}
	}
	return s
}

func northernOccurrences(spec raster.GridSpec, n int) []occurrence.Record {
	rng := rand.New(rand.NewSource(11))
	recs := make([]occurrence.Record, 0, n)
	seen := make(map[[2]int]bool)
	for len(recs) < n {
		r := spec.Ny - 10 + rng.Intn(10)
		c := rng.Intn(spec.Nx)
		if seen[[2]int{r, c}] {
			continue
		}
		seen[[2]int{r, c}] = true
		lon, lat := spec.CellCenter(r, c)
		recs = append(recs, occurrence.Record{Species: "Capra sibirica", Longitude: lon, Latitude: lat})
	}
	return recs
}

// fixtureConfig stages a workspace where the predictor and background
// artifacts already exist, so the modeling stages can run offline.
func fixtureConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.OutputDir = t.TempDir()
	cfg.CountryShp = filepath.Join(cfg.OutputDir, "missing.shp")
	cfg.BBox = config.BoundingBox{MinLon: 71, MinLat: 32, MaxLon: 75, MaxLat: 35}
	cfg.Model.Folds = 5
	cfg.Model.CVBackgroundMul = 5
	cfg.Background.BufferM = 1000

	stack := fixtureStack()
	require.NoError(t, raster.WriteStack(cfg.SelectedStackNC(), stack))

	recs := northernOccurrences(stack.GridSpec, 60)
	samples, dropped := predictors.ExtractSamples(stack, recs)
	require.Zero(t, dropped)
	require.NoError(t, predictors.WritePresenceTable(
		cfg.PresenceTableCSV(), cfg.Species, stack.Names, samples))

	pts, _ := background.Generate(stack, nil, 400, 0, cfg.Seed)
	require.NotEmpty(t, pts)
	require.NoError(t, background.WriteTable(cfg.BackgroundTableCSV(), stack.Names, pts))
	return cfg
}

func TestModelingStages(t *testing.T) {
	cfg := fixtureConfig(t)
	p, err := pipeline.New(cfg, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Fit())
	require.NoError(t, p.Classify())
	require.NoError(t, p.CrossValidate())
	require.NoError(t, p.Report())

	suit, err := raster.ReadGrid(cfg.SuitabilityNC())
	require.NoError(t, err)
	require.NoError(t, suit.SanityProbe(50))

	for _, path := range []string{
		cfg.ModelArtifact(), cfg.MetricsCSV(), cfg.BinaryHabitatNC(),
		cfg.ThresholdCSV(), cfg.ContributionsCSV(), cfg.ResponseCurvesCSV(),
		cfg.CrossValidationCSV(), cfg.ReportPath(),
	} {
		_, err := os.Stat(path)
		assert.NoError(t, err, path)
	}

	text, err := os.ReadFile(cfg.ReportPath())
	require.NoError(t, err)
	assert.Contains(t, string(text), "## Model evaluation")
	assert.Contains(t, string(text), "## Habitat classification")
	assert.Contains(t, string(text), "## Spatial cross-validation")
	assert.NotContains(t, string(text), "| Pakistan |")
}

func TestClassifyRegeneratesNoDataSuitability(t *testing.T) {
	cfg := fixtureConfig(t)
	p, err := pipeline.New(cfg, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Fit())

	// Corrupt the suitability raster with all no-data cells.
	bad := raster.NewGrid(raster.GridSpec{X0: 71, Y0: 32, Dx: 0.1, Dy: 0.1, Nx: 40, Ny: 30})
	for i := range bad.Data.Elements {
		bad.Data.Elements[i] = math.NaN()
	}
	require.NoError(t, raster.WriteGrid(cfg.SuitabilityNC(), "suitability", bad))

	require.NoError(t, p.Classify())
	suit, err := raster.ReadGrid(cfg.SuitabilityNC())
	require.NoError(t, err)
	require.NoError(t, suit.SanityProbe(50))
}
