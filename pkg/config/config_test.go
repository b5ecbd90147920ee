package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	raw := []byte("seed: 7\noutput_dir: /tmp/sdm-test\nbackground:\n  target_points: 500\n")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, "/tmp/sdm-test", cfg.OutputDir)
	assert.Equal(t, 500, cfg.Background.TargetPoints)

	// Untouched fields keep their defaults.
	assert.Equal(t, "Capra sibirica", cfg.Species)
	assert.Equal(t, 0.7, cfg.Predictors.CorrelationCutoff)
	assert.Len(t, cfg.Predictors.Curated, 8)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model:\n  train_fraction: 1.5\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestBoundingBox(t *testing.T) {
	b := BoundingBox{MinLon: 71, MinLat: 32, MaxLon: 78, MaxLat: 37}
	assert.True(t, b.Contains(71, 32))
	assert.True(t, b.Contains(78, 37))
	assert.False(t, b.Contains(70.9, 33))
	assert.Equal(t, 34.5, b.MidLat())
	assert.Equal(t, "POLYGON((71 32,78 32,78 37,71 37,71 32))", b.WKT())
}

func TestArtifactPathsUnderOutputDir(t *testing.T) {
	cfg := Default()
	cfg.OutputDir = "out"
	for _, p := range []string{
		cfg.RawOccurrencesCSV(), cfg.CroppedStackNC(), cfg.PresenceTableCSV(),
		cfg.BackgroundTableCSV(), cfg.ModelArtifact(), cfg.SuitabilityNC(),
		cfg.ResultsDB(), cfg.ReportPath(),
	} {
		assert.Equal(t, "out", filepath.Dir(p))
	}
}
