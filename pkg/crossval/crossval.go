// Package crossval estimates model transferability with k-fold spatial
// cross-validation: presences are split into longitude-ordered blocks so a
// held-out fold is geographically distinct from its training folds.
package crossval

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/background"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/maxent"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/occurrence"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/predictors"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/raster"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/table"
)

// FoldResult is one fold's outcome.
type FoldResult struct {
	Fold           int
	TrainPresences int
	TestPresences  int
	Background     int
	AUC            float64
}

// Summary holds all folds plus the across-fold mean and standard deviation.
type Summary struct {
	Folds   []FoldResult
	MeanAUC float64
	StdAUC  float64
}

// Params configures a cross-validation run.
type Params struct {
	K             int
	BackgroundMul int // background points per training presence
	BufferM       float64
	Seed          int64
	Fit           maxent.FitParams
}

// SpatialFolds assigns each sample to one of k longitude-ordered blocks.
// The assignment is deterministic; the seed only drives per-fold background
// sampling. Returns fold index per sample.
func SpatialFolds(samples []predictors.Sample, k int) []int {
	order := make([]int, len(samples))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if samples[order[a]].Longitude != samples[order[b]].Longitude {
			return samples[order[a]].Longitude < samples[order[b]].Longitude
		}
		return samples[order[a]].Latitude < samples[order[b]].Latitude
	})

	folds := make([]int, len(samples))
	for rank, idx := range order {
		folds[idx] = rank * k / len(samples)
	}
	return folds
}

// Run performs the k-fold evaluation. Each fold samples its own background
// set, 20x the training presence count by default configuration; background
// is not shared across folds.
func Run(s *raster.Stack, samples []predictors.Sample, p Params) (*Summary, error) {
	if len(samples) < p.K {
		return nil, fmt.Errorf("crossval: %d presences cannot fill %d folds", len(samples), p.K)
	}
	folds := SpatialFolds(samples, p.K)

	sum := &Summary{}
	aucs := make([]float64, 0, p.K)
	for f := 0; f < p.K; f++ {
		var trainRows, testRows [][]float64
		var trainOccs []occurrence.Record
		for i, s := range samples {
			if folds[i] == f {
				testRows = append(testRows, s.Values)
			} else {
				trainRows = append(trainRows, s.Values)
				trainOccs = append(trainOccs, occurrence.Record{Longitude: s.Longitude, Latitude: s.Latitude})
			}
		}
		if len(testRows) == 0 {
			return nil, fmt.Errorf("crossval: fold %d is empty", f)
		}

		bgPts, _ := background.Generate(s, trainOccs, len(trainRows)*p.BackgroundMul, p.BufferM, p.Seed+int64(f))
		if len(bgPts) == 0 {
			return nil, fmt.Errorf("crossval: fold %d produced no background points", f)
		}
		bgRows := make([][]float64, len(bgPts))
		for i, b := range bgPts {
			bgRows[i] = b.Values
		}

		m, err := maxent.Fit(s.Names, trainRows, bgRows, p.Fit)
		if err != nil {
			return nil, fmt.Errorf("crossval: fold %d: %w", f, err)
		}
		ev := m.Evaluate(testRows, bgRows)

		sum.Folds = append(sum.Folds, FoldResult{
			Fold:           f,
			TrainPresences: len(trainRows),
			TestPresences:  len(testRows),
			Background:     len(bgRows),
			AUC:            ev.AUC,
		})
		aucs = append(aucs, ev.AUC)
	}
	sum.MeanAUC, sum.StdAUC = stat.MeanStdDev(aucs, nil)
	return sum, nil
}

// WriteCSV exports the fold table plus mean and stddev rows.
func WriteCSV(path string, sum *Summary) error {
	header := []string{"fold", "train_presences", "test_presences", "background", "auc"}
	var rows [][]string
	for _, f := range sum.Folds {
		rows = append(rows, []string{
			fmt.Sprint(f.Fold), fmt.Sprint(f.TrainPresences), fmt.Sprint(f.TestPresences),
			fmt.Sprint(f.Background), table.Float(f.AUC),
		})
	}
	rows = append(rows,
		[]string{"mean", "", "", "", table.Float(sum.MeanAUC)},
		[]string{"stddev", "", "", "", table.Float(sum.StdAUC)},
	)
	return table.Write(path, header, rows)
}
