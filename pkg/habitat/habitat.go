// Package habitat turns the continuous suitability surface into a binary
// habitat grid and aggregates suitable area per country polygon.
package habitat

import (
	"math"
	"sort"

	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/raster"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/table"
)

// Classify thresholds the suitability surface: cells with value >= threshold
// become 1, others 0, no-data stays NaN.
func Classify(suit *raster.Grid, threshold float64) *raster.Grid {
	out := raster.NewGrid(suit.GridSpec)
	for i, v := range suit.Data.Elements {
		switch {
		case math.IsNaN(v):
			out.Data.Elements[i] = math.NaN()
		case v >= threshold:
			out.Data.Elements[i] = 1
		default:
			out.Data.Elements[i] = 0
		}
	}
	return out
}

// SuitableArea counts suitable cells and converts them to km² using the
// fixed-latitude cell-area approximation.
func SuitableArea(bin *raster.Grid, latOfInterest float64) (cells int, areaKm2 float64) {
	for _, v := range bin.Data.Elements {
		if v == 1 {
			cells++
		}
	}
	return cells, float64(cells) * bin.CellAreaKm2(latOfInterest)
}

// ThresholdRecord is the operating point used for classification, with the
// method that produced it ("roc_max_sens_spec" or "median_fallback").
type ThresholdRecord struct {
	Method string
	Value  float64
}

// WriteThresholdCSV exports the operating point.
func WriteThresholdCSV(path string, t ThresholdRecord) error {
	return table.Write(path, []string{"method", "threshold"},
		[][]string{{t.Method, table.Float(t.Value)}})
}

// CountrySummary is one row of the per-country aggregation.
type CountrySummary struct {
	Country       string
	SuitableCells int
	ValidCells    int
	AreaKm2       float64
	Percent       float64
}

// WriteCountryCSV exports the per-country summaries.
func WriteCountryCSV(path string, rows []CountrySummary) error {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = []string{r.Country, table.Float(r.AreaKm2), table.Float(r.Percent)}
	}
	return table.Write(path, []string{"country", "suitable_area_km2", "percent_of_country"}, out)
}

func sortSummaries(rows []CountrySummary) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].AreaKm2 != rows[j].AreaKm2 {
			return rows[i].AreaKm2 > rows[j].AreaKm2
		}
		return rows[i].Country < rows[j].Country
	})
}
