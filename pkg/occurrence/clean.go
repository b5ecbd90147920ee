package occurrence

import (
	"fmt"
)

// CleanStats counts what each cleaning rule removed, for audit logging.
// Data-quality filtering is never fatal.
type CleanStats struct {
	Input        int
	OutsideBox   int
	ZeroOrEqual  int
	TooUncertain int
	Duplicates   int
	Output       int
}

func (s CleanStats) String() string {
	return fmt.Sprintf("input=%d outside_box=%d zero_or_equal=%d too_uncertain=%d duplicates=%d output=%d",
		s.Input, s.OutsideBox, s.ZeroOrEqual, s.TooUncertain, s.Duplicates, s.Output)
}

// Clean applies the cleaning rules in order: coordinates inside the box,
// no zero or lat==lon degenerate coordinates, coordinate uncertainty at most
// maxUncertaintyM (unknown uncertainty, recorded as 0, is kept), and exact
// (longitude, latitude) pairs unique. The first record with a given
// coordinate pair wins.
func Clean(recs []Record, inBox func(lon, lat float64) bool, maxUncertaintyM float64) ([]Record, CleanStats) {
	stats := CleanStats{Input: len(recs)}
	seen := make(map[[2]float64]bool, len(recs))
	var out []Record
	for _, r := range recs {
		if !inBox(r.Longitude, r.Latitude) {
			stats.OutsideBox++
			continue
		}
		if (r.Longitude == 0 && r.Latitude == 0) || r.Longitude == r.Latitude {
			stats.ZeroOrEqual++
			continue
		}
		if r.UncertaintyM > maxUncertaintyM {
			stats.TooUncertain++
			continue
		}
		key := [2]float64{r.Longitude, r.Latitude}
		if seen[key] {
			stats.Duplicates++
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	stats.Output = len(out)
	return out, stats
}
