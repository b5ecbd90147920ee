// Package pipeline orchestrates the modeling stages end to end. Every stage
// reads its inputs from the previous stage's artifacts on disk, so stages
// can also be run one at a time from the CLI.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/background"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/climate"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/config"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/crossval"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/habitat"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/maxent"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/occurrence"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/predictors"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/raster"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/report"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/store"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/table"
)

// countryNameField is the admin-0 name attribute in Natural Earth shapefiles.
const countryNameField = "NAME"

// Pipeline carries the shared state of a run: configuration, logger, and
// the open results store.
type Pipeline struct {
	cfg   *config.Config
	log   *zap.SugaredLogger
	db    *sql.DB
	runID string
}

// New opens the results store under the configured output directory.
func New(cfg *config.Config, log *zap.SugaredLogger) (*Pipeline, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	db, err := store.Open(cfg.ResultsDB())
	if err != nil {
		return nil, err
	}
	return &Pipeline{cfg: cfg, log: log, db: db}, nil
}

// Close releases the results store.
func (p *Pipeline) Close() error { return p.db.Close() }

// ensureRun attaches stage output to the most recent run, creating one when
// the store is empty so individual stages can be re-run from the CLI.
func (p *Pipeline) ensureRun() error {
	if p.runID != "" {
		return nil
	}
	run, err := store.LatestRun(p.db)
	if err == nil {
		p.runID = run.ID
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	return p.newRun()
}

func (p *Pipeline) newRun() error {
	id, err := store.CreateRun(p.db, p.cfg.Species, p.cfg.Seed, "")
	if err != nil {
		return err
	}
	p.runID = id
	return nil
}

func (p *Pipeline) count(stage, name string, value int) {
	if err := store.RecordStageCount(p.db, p.runID, stage, name, value); err != nil {
		p.log.Warnw("record stage count", "stage", stage, "name", name, "error", err)
	}
}

// Occurrences downloads occurrence records, cleans them, and writes the raw
// and cleaned CSVs. An empty result from both the geometry-filtered and the
// unfiltered query is fatal.
func (p *Pipeline) Occurrences(ctx context.Context) error {
	if err := p.ensureRun(); err != nil {
		return err
	}
	cfg := p.cfg
	client := occurrence.NewClient(cfg.Occurrence.APIBaseURL)
	p.log.Infow("fetching occurrences", "species", cfg.Species, "bbox", cfg.BBox.WKT())
	recs, err := client.Acquire(ctx, cfg.Species, cfg.BBox.WKT(), cfg.BBox.Contains, cfg.Occurrence.RecordCap)
	if err != nil {
		return fmt.Errorf("acquire occurrences for %q: %w", cfg.Species, err)
	}
	if err := occurrence.WriteCSV(cfg.RawOccurrencesCSV(), recs); err != nil {
		return err
	}

	clean, stats := occurrence.Clean(recs, cfg.BBox.Contains, cfg.Occurrence.MaxUncertaintyM)
	if len(clean) == 0 {
		return fmt.Errorf("no occurrences survive cleaning (%s)", stats)
	}
	if err := occurrence.WriteCSV(cfg.CleanOccurrencesCSV(), clean); err != nil {
		return err
	}
	p.log.Infow("occurrences cleaned", "raw", stats.Input, "clean", stats.Output,
		"outside_box", stats.OutsideBox, "zero_or_equal", stats.ZeroOrEqual,
		"too_uncertain", stats.TooUncertain, "duplicates", stats.Duplicates)
	p.count("occurrences", "raw", stats.Input)
	p.count("occurrences", "outside_box", stats.OutsideBox)
	p.count("occurrences", "zero_or_equal", stats.ZeroOrEqual)
	p.count("occurrences", "too_uncertain", stats.TooUncertain)
	p.count("occurrences", "duplicates", stats.Duplicates)
	p.count("occurrences", "clean", stats.Output)
	return nil
}

// Climate ensures the global bioclim NetCDF is cached locally, crops it to
// the study bounding box, and writes the cropped stack.
func (p *Pipeline) Climate(ctx context.Context) error {
	if err := p.ensureRun(); err != nil {
		return err
	}
	cfg := p.cfg
	if err := climate.EnsureGlobal(ctx, cfg.Climate.DownloadURL, cfg.Climate.CachePath); err != nil {
		return err
	}
	b := cfg.BBox
	stack, err := climate.LoadCropped(cfg.Climate.CachePath, b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
	if err != nil {
		return err
	}
	if err := raster.WriteStack(cfg.CroppedStackNC(), stack); err != nil {
		return err
	}
	valid := len(stack.ValidCells())
	p.log.Infow("climate cropped", "layers", len(stack.Names),
		"nx", stack.Nx, "ny", stack.Ny, "valid_cells", valid)
	p.count("climate", "layers", len(stack.Names))
	p.count("climate", "valid_cells", valid)
	return nil
}

// Predictors runs the correlation diagnostics, applies the curated variable
// list, and writes the selected stack plus the presence model table.
func (p *Pipeline) Predictors() error {
	if err := p.ensureRun(); err != nil {
		return err
	}
	cfg := p.cfg
	recs, err := occurrence.ReadCSV(cfg.CleanOccurrencesCSV())
	if err != nil {
		return err
	}
	stack, err := raster.ReadStack(cfg.CroppedStackNC())
	if err != nil {
		return err
	}

	samples, dropped := predictors.ExtractSamples(stack, recs)
	if len(samples) == 0 {
		return fmt.Errorf("no occurrences fall on valid climate cells")
	}
	corr, err := predictors.CorrelationMatrix(len(stack.Names), samples)
	if err != nil {
		return err
	}
	if err := predictors.WriteCorrelationCSV(cfg.CorrelationCSV(), stack.Names, corr); err != nil {
		return err
	}
	retained := predictors.LowCorrelationSet(stack.Names, corr, cfg.Predictors.CorrelationCutoff)
	if err := predictors.WriteRetainedCSV(cfg.RetainedCSV(), stack.Names, retained, cfg.Predictors.Curated); err != nil {
		return err
	}

	// The filter output is diagnostic only; the curated list is what the
	// model actually uses.
	selected, err := stack.Subset(cfg.Predictors.Curated)
	if err != nil {
		return err
	}
	if err := raster.WriteStack(cfg.SelectedStackNC(), selected); err != nil {
		return err
	}
	selSamples, selDropped := predictors.ExtractSamples(selected, recs)
	if err := predictors.WritePresenceTable(cfg.PresenceTableCSV(), cfg.Species, selected.Names, selSamples); err != nil {
		return err
	}
	p.log.Infow("predictors selected", "extracted", len(samples), "dropped", dropped,
		"retained_by_filter", len(retained), "curated", len(cfg.Predictors.Curated))
	p.count("predictors", "extracted", len(selSamples))
	p.count("predictors", "dropped", selDropped)
	p.count("predictors", "retained_by_filter", len(retained))
	return nil
}

// BackgroundSample draws the seeded pseudo-absence sample over the selected
// stack and writes the background model table.
func (p *Pipeline) BackgroundSample() error {
	if err := p.ensureRun(); err != nil {
		return err
	}
	cfg := p.cfg
	stack, err := raster.ReadStack(cfg.SelectedStackNC())
	if err != nil {
		return err
	}
	recs, err := occurrence.ReadCSV(cfg.CleanOccurrencesCSV())
	if err != nil {
		return err
	}
	pts, stats := background.Generate(stack, recs, cfg.Background.TargetPoints, cfg.Background.BufferM, cfg.Seed)
	if len(pts) == 0 {
		return fmt.Errorf("no background points could be sampled (%s)", stats)
	}
	if err := background.WriteTable(cfg.BackgroundTableCSV(), stack.Names, pts); err != nil {
		return err
	}
	p.log.Infow("background sampled", "points", len(pts), "valid_cells", stats.ValidCells,
		"too_close", stats.TooClose, "missing_values", stats.MissingValues)
	p.count("background", "valid_cells", stats.ValidCells)
	p.count("background", "too_close", stats.TooClose)
	p.count("background", "missing_values", stats.MissingValues)
	p.count("background", "sampled", stats.Output)
	return nil
}

// modelTables reads the presence and background tables and checks the
// column invariant between them.
func (p *Pipeline) modelTables() (vars []string, pres, bg [][]float64, err error) {
	cfg := p.cfg
	vars, samples, err := predictors.ReadPresenceTable(cfg.PresenceTableCSV())
	if err != nil {
		return nil, nil, nil, err
	}
	bgVars, pts, err := background.ReadTable(cfg.BackgroundTableCSV())
	if err != nil {
		return nil, nil, nil, err
	}
	if len(vars) != len(bgVars) {
		return nil, nil, nil, fmt.Errorf("presence table has %d variables, background %d", len(vars), len(bgVars))
	}
	for i := range vars {
		if vars[i] != bgVars[i] {
			return nil, nil, nil, fmt.Errorf("variable column %d differs: %s vs %s", i, vars[i], bgVars[i])
		}
	}
	for _, s := range samples {
		pres = append(pres, s.Values)
	}
	for _, pt := range pts {
		bg = append(bg, pt.Values)
	}
	return vars, pres, bg, nil
}

// splitTables is the seeded train/test partition shared by Fit and
// Classify, so the classification threshold is computed on the same test
// partition the model was evaluated on.
func (p *Pipeline) splitTables(pres, bg [][]float64) (trainPres, testPres, trainBG, testBG [][]float64) {
	frac := p.cfg.Model.TrainFraction
	trainI, testI := maxent.Split(len(pres), frac, p.cfg.Seed)
	trainPres, testPres = maxent.Rows(pres, trainI), maxent.Rows(pres, testI)
	trainI, testI = maxent.Split(len(bg), frac, p.cfg.Seed+1)
	trainBG, testBG = maxent.Rows(bg, trainI), maxent.Rows(bg, testI)
	return trainPres, testPres, trainBG, testBG
}

// Fit trains the model, evaluates it on the held-out partition, predicts
// suitability over the full stack, and exports the model artifact with its
// importance diagnostics.
func (p *Pipeline) Fit() error {
	if err := p.ensureRun(); err != nil {
		return err
	}
	cfg := p.cfg
	vars, pres, bg, err := p.modelTables()
	if err != nil {
		return err
	}
	trainPres, testPres, trainBG, testBG := p.splitTables(pres, bg)

	model, err := maxent.Fit(vars, trainPres, trainBG, maxent.FitParams{})
	if err != nil {
		return err
	}
	eval := model.Evaluate(testPres, testBG)
	p.log.Infow("model evaluated", "auc", eval.AUC, "band", eval.Band, "cor", eval.COR,
		"train_presences", len(trainPres), "test_presences", len(testPres))

	stack, err := raster.ReadStack(cfg.SelectedStackNC())
	if err != nil {
		return err
	}
	grid, err := model.PredictStack(stack)
	if err != nil {
		return err
	}
	if err := raster.WriteGrid(cfg.SuitabilityNC(), "suitability", grid); err != nil {
		return err
	}
	if err := model.Save(cfg.ModelArtifact()); err != nil {
		return err
	}

	if err := table.Write(cfg.MetricsCSV(), []string{"metric", "value"}, [][]string{
		{"auc", table.Float(eval.AUC)},
		{"cor", table.Float(eval.COR)},
		{"band", eval.Band},
	}); err != nil {
		return err
	}
	if err := store.RecordMetric(p.db, p.runID, "auc", eval.AUC); err != nil {
		return err
	}
	if err := store.RecordMetric(p.db, p.runID, "cor", eval.COR); err != nil {
		return err
	}

	if err := p.exportImportance(model, testPres, testBG); err != nil {
		return err
	}
	if err := writeResponseCurves(cfg.ResponseCurvesCSV(), model.ResponseCurves(100)); err != nil {
		return err
	}
	p.count("fit", "train_presences", len(trainPres))
	p.count("fit", "test_presences", len(testPres))
	p.count("fit", "train_background", len(trainBG))
	p.count("fit", "test_background", len(testBG))
	return nil
}

func (p *Pipeline) exportImportance(model *maxent.Model, testPres, testBG [][]float64) error {
	contrib := model.Contributions()
	perm := model.PermutationImportance(testPres, testBG, p.cfg.Seed)
	rows := make([]store.Contribution, 0, len(contrib))
	for _, v := range model.Features.Vars {
		rows = append(rows, store.Contribution{
			Variable:              v,
			Contribution:          contrib[v],
			PermutationImportance: perm[v],
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Contribution != rows[j].Contribution {
			return rows[i].Contribution > rows[j].Contribution
		}
		return rows[i].Variable < rows[j].Variable
	})
	csvRows := make([][]string, len(rows))
	for i, r := range rows {
		csvRows[i] = []string{r.Variable, table.Float(r.Contribution), table.Float(r.PermutationImportance)}
	}
	if err := table.Write(p.cfg.ContributionsCSV(),
		[]string{"variable", "contribution_pct", "permutation_importance"}, csvRows); err != nil {
		return err
	}
	return store.RecordContributions(p.db, p.runID, rows)
}

func writeResponseCurves(path string, pts []maxent.CurvePoint) error {
	rows := make([][]string, len(pts))
	for i, pt := range pts {
		rows[i] = []string{pt.Variable, table.Float(pt.Value), table.Float(pt.Suitability)}
	}
	return table.Write(path, []string{"variable", "value", "suitability"}, rows)
}

// suitabilityGrid loads the suitability raster, regenerating it from the
// model artifact when a probe of the existing file reads back all no-data.
func (p *Pipeline) suitabilityGrid() (*raster.Grid, error) {
	cfg := p.cfg
	grid, err := raster.ReadGrid(cfg.SuitabilityNC())
	if err != nil {
		return nil, err
	}
	if err := grid.SanityProbe(50); err == nil {
		return grid, nil
	} else if !errors.Is(err, raster.ErrAllNoData) {
		return nil, err
	}
	p.log.Warnw("suitability raster probes all no-data, regenerating",
		"path", cfg.SuitabilityNC())
	model, err := maxent.Load(cfg.ModelArtifact())
	if err != nil {
		return nil, err
	}
	stack, err := raster.ReadStack(cfg.SelectedStackNC())
	if err != nil {
		return nil, err
	}
	grid, err = model.PredictStack(stack)
	if err != nil {
		return nil, err
	}
	if err := raster.WriteGrid(cfg.SuitabilityNC(), "suitability", grid); err != nil {
		return nil, err
	}
	if err := grid.SanityProbe(50); err != nil {
		return nil, fmt.Errorf("regenerated suitability still has no valid cells: %w", err)
	}
	return grid, nil
}

// Classify thresholds the suitability surface into binary habitat, sums
// suitable area, and aggregates it per country.
func (p *Pipeline) Classify() error {
	if err := p.ensureRun(); err != nil {
		return err
	}
	cfg := p.cfg
	grid, err := p.suitabilityGrid()
	if err != nil {
		return err
	}
	model, err := maxent.Load(cfg.ModelArtifact())
	if err != nil {
		return err
	}
	_, pres, bg, err := p.modelTables()
	if err != nil {
		return err
	}
	_, testPres, _, testBG := p.splitTables(pres, bg)

	presScores := make([]float64, len(testPres))
	for i, row := range testPres {
		presScores[i] = model.Score(row)
	}
	bgScores := make([]float64, len(testBG))
	for i, row := range testBG {
		bgScores[i] = model.Score(row)
	}
	rec := habitat.ThresholdRecord{Method: "roc_max_sens_spec"}
	var ok bool
	if rec.Value, ok = maxent.ROCThreshold(presScores, bgScores); !ok {
		rec.Method = "median_fallback"
		rec.Value = maxent.Median(presScores)
		p.log.Warnw("ROC operating point unavailable, using median presence score",
			"threshold", rec.Value)
	}

	bin := habitat.Classify(grid, rec.Value)
	if err := raster.WriteGrid(cfg.BinaryHabitatNC(), "habitat", bin); err != nil {
		return err
	}
	cells, areaKm2 := habitat.SuitableArea(bin, cfg.BBox.MidLat())
	p.log.Infow("habitat classified", "threshold", rec.Value, "method", rec.Method,
		"suitable_cells", cells, "suitable_km2", areaKm2)

	if err := habitat.WriteThresholdCSV(cfg.ThresholdCSV(), rec); err != nil {
		return err
	}
	if err := store.RecordThreshold(p.db, p.runID, rec.Method, rec.Value); err != nil {
		return err
	}
	if err := store.RecordMetric(p.db, p.runID, "total_suitable_km2", areaKm2); err != nil {
		return err
	}
	p.count("classify", "suitable_cells", cells)
	return p.aggregateCountries(bin)
}

func (p *Pipeline) aggregateCountries(bin *raster.Grid) error {
	cfg := p.cfg
	if _, err := os.Stat(cfg.CountryShp); errors.Is(err, fs.ErrNotExist) {
		p.log.Warnw("country shapefile missing, skipping per-country summary",
			"path", cfg.CountryShp)
		return nil
	}
	countries, err := habitat.LoadCountries(cfg.CountryShp, countryNameField)
	if err != nil {
		return err
	}
	summaries := habitat.Aggregate(bin, countries, cfg.BBox.MidLat())
	if err := habitat.WriteCountryCSV(cfg.CountrySummaryCSV(), summaries); err != nil {
		return err
	}
	rows := make([]store.CountrySummary, len(summaries))
	for i, s := range summaries {
		rows[i] = store.CountrySummary{
			Country:          s.Country,
			SuitableAreaKm2:  s.AreaKm2,
			PercentOfCountry: s.Percent,
		}
	}
	p.log.Infow("per-country habitat aggregated", "countries", len(summaries))
	return store.RecordCountrySummaries(p.db, p.runID, rows)
}

// CrossValidate runs the k-fold spatial cross-validation over the presence
// table and selected stack.
func (p *Pipeline) CrossValidate() error {
	if err := p.ensureRun(); err != nil {
		return err
	}
	cfg := p.cfg
	stack, err := raster.ReadStack(cfg.SelectedStackNC())
	if err != nil {
		return err
	}
	_, samples, err := predictors.ReadPresenceTable(cfg.PresenceTableCSV())
	if err != nil {
		return err
	}
	sum, err := crossval.Run(stack, samples, crossval.Params{
		K:             cfg.Model.Folds,
		BackgroundMul: cfg.Model.CVBackgroundMul,
		BufferM:       cfg.Background.BufferM,
		Seed:          cfg.Seed,
	})
	if err != nil {
		return err
	}
	if err := crossval.WriteCSV(cfg.CrossValidationCSV(), sum); err != nil {
		return err
	}
	folds := make([]store.CVFold, len(sum.Folds))
	for i, f := range sum.Folds {
		folds[i] = store.CVFold{
			Fold:           f.Fold,
			TrainPresences: f.TrainPresences,
			TestPresences:  f.TestPresences,
			Background:     f.Background,
			AUC:            f.AUC,
		}
	}
	if err := store.RecordCVFolds(p.db, p.runID, folds); err != nil {
		return err
	}
	if err := store.RecordMetric(p.db, p.runID, "cv_mean_auc", sum.MeanAUC); err != nil {
		return err
	}
	if err := store.RecordMetric(p.db, p.runID, "cv_std_auc", sum.StdAUC); err != nil {
		return err
	}
	p.log.Infow("cross-validation complete", "folds", len(sum.Folds),
		"mean_auc", sum.MeanAUC, "std_auc", sum.StdAUC)
	return nil
}

// Report assembles the markdown summary from the store and CSV artifacts.
func (p *Pipeline) Report() error {
	if err := p.ensureRun(); err != nil {
		return err
	}
	d, err := report.Collect(p.db, p.cfg)
	if err != nil {
		return err
	}
	if err := report.Write(p.cfg.ReportPath(), d); err != nil {
		return err
	}
	p.log.Infow("report written", "path", p.cfg.ReportPath())
	return nil
}

// Run executes every stage in order under a fresh run, halting at the first
// error so later artifacts are left absent rather than stale.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.newRun(); err != nil {
		return err
	}
	stages := []struct {
		name string
		fn   func() error
	}{
		{"occurrences", func() error { return p.Occurrences(ctx) }},
		{"climate", func() error { return p.Climate(ctx) }},
		{"predictors", p.Predictors},
		{"background", p.BackgroundSample},
		{"fit", p.Fit},
		{"classify", p.Classify},
		{"crossval", p.CrossValidate},
		{"report", p.Report},
	}
	for _, s := range stages {
		p.log.Infow("stage starting", "stage", s.name)
		if err := s.fn(); err != nil {
			return fmt.Errorf("stage %s: %w", s.name, err)
		}
	}
	return store.FinishRun(p.db, p.runID)
}
