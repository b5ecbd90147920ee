package maxent

import (
	"math"
	"math/rand"
)

// Contributions returns each covariate's share of the model's absolute
// weight mass, in percent. A coarse "which variables carry the model"
// statistic, paired with permutation importance for reporting.
func (m *Model) Contributions() map[string]float64 {
	owner := m.Features.featureVar()
	perVar := make([]float64, len(m.Features.Vars))
	var total float64
	for j, w := range m.Weights {
		a := math.Abs(w)
		perVar[owner[j]] += a
		total += a
	}
	out := make(map[string]float64, len(perVar))
	for i, name := range m.Features.Vars {
		if total > 0 {
			out[name] = perVar[i] / total * 100
		} else {
			out[name] = 0
		}
	}
	return out
}

// PermutationImportance reports the AUC drop on the test partitions when
// each covariate's column is shuffled (seeded), in AUC units. Variables the
// model does not rely on drop near zero.
func (m *Model) PermutationImportance(testPresence, testBG [][]float64, seed int64) map[string]float64 {
	base := AUC(m.scoreAll(testPresence), m.scoreAll(testBG))
	rng := rand.New(rand.NewSource(seed))

	all := make([][]float64, 0, len(testPresence)+len(testBG))
	all = append(all, testPresence...)
	all = append(all, testBG...)

	out := make(map[string]float64, len(m.Features.Vars))
	for vi, name := range m.Features.Vars {
		shuffled := make([][]float64, len(all))
		col := make([]float64, len(all))
		for i, row := range all {
			col[i] = row[vi]
		}
		rng.Shuffle(len(col), func(a, b int) { col[a], col[b] = col[b], col[a] })
		for i, row := range all {
			r := append([]float64(nil), row...)
			r[vi] = col[i]
			shuffled[i] = r
		}
		auc := AUC(m.scoreAll(shuffled[:len(testPresence)]), m.scoreAll(shuffled[len(testPresence):]))
		out[name] = base - auc
	}
	return out
}

// CurvePoint is one sample of a marginal response curve.
type CurvePoint struct {
	Variable    string
	Value       float64
	Suitability float64
}

// ResponseCurves sweeps each covariate across its training range while
// holding the others at their training means.
func (m *Model) ResponseCurves(points int) []CurvePoint {
	fm := m.Features
	var out []CurvePoint
	row := make([]float64, len(fm.Vars))
	for vi, name := range fm.Vars {
		copy(row, fm.Means)
		lo, hi := fm.Mins[vi], fm.Maxs[vi]
		for p := 0; p < points; p++ {
			v := lo
			if points > 1 {
				v = lo + (hi-lo)*float64(p)/float64(points-1)
			}
			row[vi] = v
			out = append(out, CurvePoint{Variable: name, Value: v, Suitability: m.Score(row)})
		}
	}
	return out
}
