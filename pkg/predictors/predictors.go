// Package predictors selects the environmental variables used as model
// covariates. The automatic correlation filter is diagnostic only: the
// production feature set is the fixed, hand-curated list from the
// configuration, which takes precedence. Both results are exported.
package predictors

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/occurrence"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/raster"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/table"
)

// Sample is one occurrence with its extracted environmental values, in
// stack layer order.
type Sample struct {
	Longitude float64
	Latitude  float64
	Values    []float64
}

// ExtractSamples reads stack values at each occurrence (nearest cell).
// Records off the grid or with any no-data value are dropped; the count of
// dropped records is returned for audit logging.
func ExtractSamples(s *raster.Stack, recs []occurrence.Record) (samples []Sample, dropped int) {
	for _, r := range recs {
		vals, ok := s.ExtractAt(r.Longitude, r.Latitude)
		if !ok {
			dropped++
			continue
		}
		hasNaN := false
		for _, v := range vals {
			if math.IsNaN(v) {
				hasNaN = true
				break
			}
		}
		if hasNaN {
			dropped++
			continue
		}
		samples = append(samples, Sample{Longitude: r.Longitude, Latitude: r.Latitude, Values: vals})
	}
	return samples, dropped
}

// CorrelationMatrix computes the symmetric Pearson correlation matrix of
// the sample values, one row per variable of the stack.
func CorrelationMatrix(nVars int, samples []Sample) (*mat.SymDense, error) {
	if len(samples) < 3 {
		return nil, fmt.Errorf("predictors: need at least 3 samples for correlation, got %d", len(samples))
	}
	data := make([]float64, 0, len(samples)*nVars)
	for _, s := range samples {
		if len(s.Values) != nVars {
			return nil, fmt.Errorf("predictors: sample has %d values, expected %d", len(s.Values), nVars)
		}
		data = append(data, s.Values...)
	}
	x := mat.NewDense(len(samples), nVars, data)
	corr := mat.NewSymDense(nVars, nil)
	stat.CorrelationMatrix(corr, x, nil)
	return corr, nil
}

// LowCorrelationSet greedily eliminates variables until no retained pair
// has |r| above the cutoff. Elimination rule: take the worst remaining pair;
// drop the member with the larger mean |r| against the other retained
// variables; on a tie drop the one later in catalogue order. The rule is
// deterministic so re-running on the same matrix yields the same set.
func LowCorrelationSet(names []string, corr *mat.SymDense, cutoff float64) []string {
	n := len(names)
	alive := make([]bool, n)
	for i := range alive {
		alive[i] = true
	}

	for {
		worstI, worstJ := -1, -1
		worstR := cutoff
		for i := 0; i < n; i++ {
			if !alive[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if !alive[j] {
					continue
				}
				r := math.Abs(corr.At(i, j))
				if math.IsNaN(r) {
					continue
				}
				if r > worstR {
					worstR = r
					worstI, worstJ = i, j
				}
			}
		}
		if worstI < 0 {
			break
		}
		if meanAbsCorr(corr, alive, worstJ) >= meanAbsCorr(corr, alive, worstI) {
			alive[worstJ] = false
		} else {
			alive[worstI] = false
		}
	}

	var kept []string
	for i, a := range alive {
		if a {
			kept = append(kept, names[i])
		}
	}
	return kept
}

func meanAbsCorr(corr *mat.SymDense, alive []bool, i int) float64 {
	var sum float64
	var count int
	for j := range alive {
		if j == i || !alive[j] {
			continue
		}
		r := math.Abs(corr.At(i, j))
		if math.IsNaN(r) {
			continue
		}
		sum += r
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// WriteCorrelationCSV exports the matrix with variable names on both axes.
func WriteCorrelationCSV(path string, names []string, corr *mat.SymDense) error {
	header := append([]string{"variable"}, names...)
	rows := make([][]string, len(names))
	for i, name := range names {
		row := make([]string, len(names)+1)
		row[0] = name
		for j := range names {
			row[j+1] = table.Float(corr.At(i, j))
		}
		rows[i] = row
	}
	return table.Write(path, header, rows)
}

// WriteRetainedCSV exports the diagnostic retained set alongside the
// curated production list, one row per catalogue variable.
func WriteRetainedCSV(path string, names, retained, curated []string) error {
	inRetained := toSet(retained)
	inCurated := toSet(curated)
	rows := make([][]string, len(names))
	for i, name := range names {
		rows[i] = []string{name, boolField(inRetained[name]), boolField(inCurated[name])}
	}
	return table.Write(path, []string{"variable", "retained_by_filter", "curated"}, rows)
}

func toSet(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

func boolField(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
