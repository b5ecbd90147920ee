package report

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/config"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/store"
)

func sampleData() *Data {
	return &Data{
		Run: store.Run{
			ID:        "run-1",
			Species:   "Capra sibirica",
			Seed:      42,
			StartedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		},
		Counts: []store.StageCount{
			{Stage: "occurrences", Name: "cleaned", Value: 512},
		},
		Metrics: map[string]float64{
			"auc":                0.91,
			"cor":                0.55,
			"total_suitable_km2": 60530,
			"cv_mean_auc":        0.84,
			"cv_std_auc":         0.03,
		},
		ThresholdMethod: "roc_max_sens_spec",
		ThresholdValue:  0.41,
		Curated:         []string{"bio2", "bio15"},
		Retained:        []string{"bio2"},
		Contributions: []store.Contribution{
			{Variable: "bio2", Contribution: 62.5, PermutationImportance: 0.21},
		},
		Folds: []store.CVFold{
			{Fold: 0, TrainPresences: 48, TestPresences: 12, Background: 960, AUC: 0.82},
		},
		Countries: []store.CountrySummary{
			{Country: "Pakistan", SuitableAreaKm2: 5400, PercentOfCountry: 8.1},
		},
	}
}

func TestRenderSections(t *testing.T) {
	text := Render(sampleData())

	assert.Contains(t, text, "# Habitat suitability report: Capra sibirica")
	assert.Contains(t, text, "AUC: 0.9100 (excellent)")
	assert.Contains(t, text, "Threshold: 0.4100 (roc_max_sens_spec)")
	assert.Contains(t, text, "Total suitable area: 60530 km2")
	assert.Contains(t, text, "| Pakistan | 5400 | 8.1 |")
	assert.Contains(t, text, "Mean AUC 0.8400, stddev 0.0300")
	assert.Contains(t, text, "Model covariates (curated): bio2, bio15")
	assert.NotContains(t, text, "%!")
}

func TestRenderSkipsMissingSections(t *testing.T) {
	d := &Data{Run: store.Run{ID: "r", Species: "Capra sibirica", StartedAt: time.Now()}}
	text := Render(d)
	assert.NotContains(t, text, "## Model evaluation")
	assert.NotContains(t, text, "## Habitat classification")
	assert.NotContains(t, text, "## Spatial cross-validation")
}

func TestCollectFromStore(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.OutputDir = dir

	db, err := store.Open(cfg.ResultsDB())
	require.NoError(t, err)
	defer db.Close()

	id, err := store.CreateRun(db, cfg.Species, cfg.Seed, "")
	require.NoError(t, err)
	require.NoError(t, store.RecordMetric(db, id, "auc", 0.88))
	require.NoError(t, store.RecordThreshold(db, id, "median_fallback", 0.5))
	require.NoError(t, store.RecordStageCount(db, id, "background", "sampled", 10000))
	require.NoError(t, store.FinishRun(db, id))

	d, err := Collect(db, cfg)
	require.NoError(t, err)
	assert.Equal(t, id, d.Run.ID)
	assert.Equal(t, 0.88, d.Metrics["auc"])
	assert.Equal(t, "median_fallback", d.ThresholdMethod)
	require.Len(t, d.Counts, 1)
	assert.Empty(t, d.Curated)

	path := filepath.Join(dir, "report.md")
	require.NoError(t, Write(path, d))
	text := Render(d)
	assert.True(t, strings.Contains(text, "AUC: 0.8800 (good)"))
}
