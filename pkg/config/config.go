// Package config holds the run configuration for the ibex distribution model
// pipeline. Every stage receives the pieces it needs explicitly; nothing reads
// ambient process state.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// BoundingBox is the study region in decimal degrees, WGS84.
type BoundingBox struct {
	MinLon float64 `yaml:"min_lon"`
	MinLat float64 `yaml:"min_lat"`
	MaxLon float64 `yaml:"max_lon"`
	MaxLat float64 `yaml:"max_lat"`
}

// Contains reports whether the point lies inside the box (edges inclusive).
func (b BoundingBox) Contains(lon, lat float64) bool {
	return lon >= b.MinLon && lon <= b.MaxLon && lat >= b.MinLat && lat <= b.MaxLat
}

// MidLat returns the latitude midpoint, used as the fixed latitude of
// interest for cell-area approximation.
func (b BoundingBox) MidLat() float64 {
	return (b.MinLat + b.MaxLat) / 2
}

// WKT renders the box as a POLYGON string for the GBIF geometry filter.
// GBIF requires counter-clockwise winding.
func (b BoundingBox) WKT() string {
	return fmt.Sprintf("POLYGON((%g %g,%g %g,%g %g,%g %g,%g %g))",
		b.MinLon, b.MinLat, b.MaxLon, b.MinLat, b.MaxLon, b.MaxLat, b.MinLon, b.MaxLat, b.MinLon, b.MinLat)
}

// OccurrenceConfig controls occurrence acquisition and cleaning.
type OccurrenceConfig struct {
	Species         string  `yaml:"species"`
	RecordCap       int     `yaml:"record_cap"`
	MaxUncertaintyM float64 `yaml:"max_uncertainty_m"`
	APIBaseURL      string  `yaml:"api_base_url"`
}

// ClimateConfig controls environmental acquisition.
type ClimateConfig struct {
	// DownloadURL points at the global 19-layer bioclim NetCDF.
	DownloadURL string `yaml:"download_url"`
	// CachePath is where the global file is kept between runs.
	CachePath string `yaml:"cache_path"`
}

// PredictorConfig controls variable selection.
type PredictorConfig struct {
	CorrelationCutoff float64 `yaml:"correlation_cutoff"`
	// Curated is the hand-chosen production feature set. It overrides the
	// automatic correlation filter, which is kept as a diagnostic only.
	Curated []string `yaml:"curated"`
}

// BackgroundConfig controls pseudo-absence sampling.
type BackgroundConfig struct {
	TargetPoints int     `yaml:"target_points"`
	BufferM      float64 `yaml:"buffer_m"`
}

// ModelConfig controls fitting, evaluation, and cross-validation.
type ModelConfig struct {
	TrainFraction   float64 `yaml:"train_fraction"`
	Folds           int     `yaml:"folds"`
	CVBackgroundMul int     `yaml:"cv_background_multiplier"`
}

// Config is the full pipeline configuration.
type Config struct {
	Species    string           `yaml:"species"`
	BBox       BoundingBox      `yaml:"bbox"`
	Seed       int64            `yaml:"seed"`
	OutputDir  string           `yaml:"output_dir"`
	CountryShp string           `yaml:"country_shapefile"`
	Occurrence OccurrenceConfig `yaml:"occurrence"`
	Climate    ClimateConfig    `yaml:"climate"`
	Predictors PredictorConfig  `yaml:"predictors"`
	Background BackgroundConfig `yaml:"background"`
	Model      ModelConfig      `yaml:"model"`
}

// Default returns the canonical Himalayan ibex run over the western Himalaya.
func Default() *Config {
	return &Config{
		Species:    "Capra sibirica",
		BBox:       BoundingBox{MinLon: 71, MinLat: 32, MaxLon: 78, MaxLat: 37},
		Seed:       42,
		OutputDir:  "output",
		CountryShp: filepath.Join("data", "ne_50m_admin_0_countries.shp"),
		Occurrence: OccurrenceConfig{
			Species:         "Capra sibirica",
			RecordCap:       5000,
			MaxUncertaintyM: 10000,
			APIBaseURL:      "https://api.gbif.org/v1",
		},
		Climate: ClimateConfig{
			DownloadURL: "https://geodata.ucdavis.edu/climate/worldclim/2_1/bioc/wc2.1_10m_bio.nc",
			CachePath:   filepath.Join("data", "wc2.1_10m_bio.nc"),
		},
		Predictors: PredictorConfig{
			CorrelationCutoff: 0.7,
			Curated: []string{
				"bio2", "bio3", "bio4", "bio10", "bio11", "bio15", "bio18", "bio19",
			},
		},
		Background: BackgroundConfig{TargetPoints: 10000, BufferM: 10000},
		Model:      ModelConfig{TrainFraction: 0.8, Folds: 5, CVBackgroundMul: 20},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults untouched.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations no stage could run with.
func (c *Config) Validate() error {
	if c.Species == "" {
		return fmt.Errorf("species must be set")
	}
	if c.BBox.MinLon >= c.BBox.MaxLon || c.BBox.MinLat >= c.BBox.MaxLat {
		return fmt.Errorf("bounding box is empty: %+v", c.BBox)
	}
	if c.Background.TargetPoints <= 0 {
		return fmt.Errorf("background target_points must be positive, got %d", c.Background.TargetPoints)
	}
	if c.Model.TrainFraction <= 0 || c.Model.TrainFraction >= 1 {
		return fmt.Errorf("train_fraction must be in (0,1), got %g", c.Model.TrainFraction)
	}
	if c.Model.Folds < 2 {
		return fmt.Errorf("folds must be at least 2, got %d", c.Model.Folds)
	}
	if len(c.Predictors.Curated) == 0 {
		return fmt.Errorf("curated predictor list must not be empty")
	}
	return nil
}

// Artifact paths. Every inter-stage file lives under OutputDir.

func (c *Config) RawOccurrencesCSV() string     { return filepath.Join(c.OutputDir, "occurrences_raw.csv") }
func (c *Config) CleanOccurrencesCSV() string   { return filepath.Join(c.OutputDir, "occurrences_clean.csv") }
func (c *Config) CroppedStackNC() string        { return filepath.Join(c.OutputDir, "bioclim_cropped.nc") }
func (c *Config) SelectedStackNC() string       { return filepath.Join(c.OutputDir, "bioclim_selected.nc") }
func (c *Config) CorrelationCSV() string        { return filepath.Join(c.OutputDir, "correlation_matrix.csv") }
func (c *Config) RetainedCSV() string           { return filepath.Join(c.OutputDir, "retained_variables.csv") }
func (c *Config) PresenceTableCSV() string      { return filepath.Join(c.OutputDir, "presence_table.csv") }
func (c *Config) BackgroundTableCSV() string    { return filepath.Join(c.OutputDir, "background_table.csv") }
func (c *Config) ModelArtifact() string         { return filepath.Join(c.OutputDir, "maxent_model.json") }
func (c *Config) SuitabilityNC() string         { return filepath.Join(c.OutputDir, "suitability.nc") }
func (c *Config) BinaryHabitatNC() string       { return filepath.Join(c.OutputDir, "habitat_binary.nc") }
func (c *Config) MetricsCSV() string            { return filepath.Join(c.OutputDir, "evaluation_metrics.csv") }
func (c *Config) ThresholdCSV() string          { return filepath.Join(c.OutputDir, "threshold.csv") }
func (c *Config) ContributionsCSV() string      { return filepath.Join(c.OutputDir, "variable_contributions.csv") }
func (c *Config) ResponseCurvesCSV() string     { return filepath.Join(c.OutputDir, "response_curves.csv") }
func (c *Config) CountrySummaryCSV() string     { return filepath.Join(c.OutputDir, "country_summary.csv") }
func (c *Config) CrossValidationCSV() string    { return filepath.Join(c.OutputDir, "crossvalidation.csv") }
func (c *Config) ResultsDB() string             { return filepath.Join(c.OutputDir, "results.db") }
func (c *Config) ReportPath() string            { return filepath.Join(c.OutputDir, "report.md") }
