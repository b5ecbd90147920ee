package maxent

import (
	"math"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// Evaluation is the discrimination summary on a held-out partition.
type Evaluation struct {
	AUC  float64
	COR  float64 // point-biserial correlation between score and label
	Band string
}

// Band maps an AUC to the conventional interpretation band. The banding is
// a reporting convenience, kept identical for comparability.
func Band(auc float64) string {
	switch {
	case auc >= 0.9:
		return "excellent"
	case auc >= 0.8:
		return "good"
	case auc >= 0.7:
		return "fair"
	default:
		return "poor"
	}
}

// scoreAll applies the model to each raw row.
func (m *Model) scoreAll(rows [][]float64) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = m.Score(r)
	}
	return out
}

// Evaluate scores the test partitions and reports AUC and point-biserial
// correlation.
func (m *Model) Evaluate(testPresence, testBG [][]float64) Evaluation {
	pres := m.scoreAll(testPresence)
	bg := m.scoreAll(testBG)
	auc := AUC(pres, bg)

	scores := append(append([]float64(nil), pres...), bg...)
	labels := make([]float64, len(scores))
	for i := range pres {
		labels[i] = 1
	}
	cor := stat.Correlation(scores, labels, nil)

	return Evaluation{AUC: auc, COR: cor, Band: Band(auc)}
}

// AUC computes the area under the ROC curve for presence scores against
// background scores.
func AUC(presScores, bgScores []float64) float64 {
	y, classes := labeled(presScores, bgScores)
	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

// ROCThreshold returns the score cutoff maximizing sensitivity plus
// specificity on the given partitions. ok is false when no usable finite,
// positive threshold exists; callers then fall back to the median presence
// score.
func ROCThreshold(presScores, bgScores []float64) (threshold float64, ok bool) {
	y, classes := labeled(presScores, bgScores)
	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, thresh := stat.ROC(nil, y, classes, nil)

	best := math.Inf(-1)
	for i := range tpr {
		if math.IsInf(thresh[i], 0) {
			continue
		}
		if j := tpr[i] - fpr[i]; j > best {
			best = j
			threshold = thresh[i]
		}
	}
	if math.IsInf(best, -1) || threshold <= 0 {
		return 0, false
	}
	return threshold, true
}

func labeled(presScores, bgScores []float64) (y []float64, classes []bool) {
	y = append(append([]float64(nil), presScores...), bgScores...)
	classes = make([]bool, len(y))
	for i := range presScores {
		classes[i] = true
	}
	return y, classes
}

// Median returns the median of the values; the fallback operating point
// uses the median presence score.
func Median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	stat.SortWeighted(sorted, nil)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}
