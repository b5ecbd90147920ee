// Package report assembles the run's markdown summary from the results
// store and the CSV artifacts written by the earlier stages.
package report

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/config"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/maxent"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/store"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/table"
)

// Data is everything the report renders, gathered in one place so the
// renderer stays a pure function.
type Data struct {
	Run             store.Run
	Counts          []store.StageCount
	Metrics         map[string]float64
	ThresholdMethod string
	ThresholdValue  float64
	Retained        []string
	Curated         []string
	Contributions   []store.Contribution
	Folds           []store.CVFold
	Countries       []store.CountrySummary
}

// Collect gathers the latest run's results from the store and the variable
// selection CSV. Sections whose stage never ran are left empty rather than
// failing the whole report.
func Collect(db *sql.DB, cfg *config.Config) (*Data, error) {
	run, err := store.LatestRun(db)
	if err != nil {
		return nil, fmt.Errorf("no completed run in %s: %w", cfg.ResultsDB(), err)
	}
	d := &Data{Run: *run}
	if d.Counts, err = store.GetStageCounts(db, run.ID); err != nil {
		return nil, err
	}
	if d.Metrics, err = store.GetMetrics(db, run.ID); err != nil {
		return nil, err
	}
	method, value, err := store.GetThreshold(db, run.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	d.ThresholdMethod, d.ThresholdValue = method, value
	if d.Contributions, err = store.GetContributions(db, run.ID); err != nil {
		return nil, err
	}
	if d.Folds, err = store.GetCVFolds(db, run.ID); err != nil {
		return nil, err
	}
	if d.Countries, err = store.GetCountrySummaries(db, run.ID); err != nil {
		return nil, err
	}
	if d.Retained, d.Curated, err = readSelection(cfg.RetainedCSV()); err != nil {
		return nil, err
	}
	return d, nil
}

func readSelection(path string) (retained, curated []string, err error) {
	_, rows, err := table.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	for _, row := range rows {
		if len(row) < 3 {
			continue
		}
		if row[1] == "true" {
			retained = append(retained, row[0])
		}
		if row[2] == "true" {
			curated = append(curated, row[0])
		}
	}
	return retained, curated, nil
}

// Render produces the markdown report text.
func Render(d *Data) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Habitat suitability report: %s\n\n", d.Run.Species)
	fmt.Fprintf(&b, "- Run: %s\n", d.Run.ID)
	fmt.Fprintf(&b, "- Seed: %d\n", d.Run.Seed)
	fmt.Fprintf(&b, "- Started: %s\n", d.Run.StartedAt.Format("2006-01-02 15:04:05 MST"))
	if !d.Run.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "- Finished: %s\n", d.Run.FinishedAt.Format("2006-01-02 15:04:05 MST"))
	}
	b.WriteString("\n")

	if len(d.Counts) > 0 {
		b.WriteString("## Stage counts\n\n| Stage | Counter | Value |\n|---|---|---|\n")
		for _, c := range d.Counts {
			fmt.Fprintf(&b, "| %s | %s | %d |\n", c.Stage, c.Name, c.Value)
		}
		b.WriteString("\n")
	}

	if len(d.Curated) > 0 || len(d.Retained) > 0 {
		b.WriteString("## Predictor variables\n\n")
		if len(d.Curated) > 0 {
			fmt.Fprintf(&b, "Model covariates (curated): %s\n\n", strings.Join(d.Curated, ", "))
		}
		if len(d.Retained) > 0 {
			fmt.Fprintf(&b, "Retained by the correlation filter (diagnostic): %s\n\n",
				strings.Join(d.Retained, ", "))
		}
	}

	if auc, ok := d.Metrics["auc"]; ok {
		b.WriteString("## Model evaluation\n\n")
		fmt.Fprintf(&b, "- AUC: %.4f (%s)\n", auc, maxent.Band(auc))
		if cor, ok := d.Metrics["cor"]; ok {
			fmt.Fprintf(&b, "- Point-biserial correlation: %.4f\n", cor)
		}
		b.WriteString("\n")
	}

	if len(d.Contributions) > 0 {
		b.WriteString("## Variable importance\n\n| Variable | Contribution % | Permutation importance |\n|---|---|---|\n")
		for _, c := range d.Contributions {
			fmt.Fprintf(&b, "| %s | %.1f | %.4f |\n", c.Variable, c.Contribution, c.PermutationImportance)
		}
		b.WriteString("\n")
	}

	if d.ThresholdMethod != "" {
		b.WriteString("## Habitat classification\n\n")
		fmt.Fprintf(&b, "- Threshold: %.4f (%s)\n", d.ThresholdValue, d.ThresholdMethod)
		if total, ok := d.Metrics["total_suitable_km2"]; ok {
			fmt.Fprintf(&b, "- Total suitable area: %.0f km2\n", total)
		}
		b.WriteString("\n")
		if len(d.Countries) > 0 {
			b.WriteString("| Country | Suitable area (km2) | % of country cells |\n|---|---|---|\n")
			for _, c := range d.Countries {
				fmt.Fprintf(&b, "| %s | %.0f | %.1f |\n", c.Country, c.SuitableAreaKm2, c.PercentOfCountry)
			}
			b.WriteString("\n")
		}
	}

	if len(d.Folds) > 0 {
		b.WriteString("## Spatial cross-validation\n\n| Fold | Train | Test | Background | AUC |\n|---|---|---|---|---|\n")
		for _, f := range d.Folds {
			fmt.Fprintf(&b, "| %d | %d | %d | %d | %.4f |\n",
				f.Fold, f.TrainPresences, f.TestPresences, f.Background, f.AUC)
		}
		if mean, ok := d.Metrics["cv_mean_auc"]; ok {
			fmt.Fprintf(&b, "\nMean AUC %.4f, stddev %.4f\n", mean, d.Metrics["cv_std_auc"])
		}
		b.WriteString("\n")
	}

	return b.String()
}

// Write renders the report to path.
func Write(path string, d *Data) error {
	return os.WriteFile(path, []byte(Render(d)), 0o644)
}
