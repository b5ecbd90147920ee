// Package background draws pseudo-absence points from the valid cells of
// the environmental stack. Sampling is driven by an explicit seed: the same
// seed over the same stack and occurrences yields an identical point set.
package background

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/golang/geo/s2"

	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/occurrence"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/raster"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/table"
)

// earthRadiusM is the mean Earth radius used for great-circle distances.
const earthRadiusM = 6371010.0

// Point is one retained pseudo-absence with extracted values in stack
// layer order.
type Point struct {
	Longitude float64
	Latitude  float64
	Values    []float64
}

// Stats counts what the sampler rejected, for audit logging.
type Stats struct {
	ValidCells     int
	Sampled        int
	TooClose       int
	MissingValues  int
	Output         int
}

func (s Stats) String() string {
	return fmt.Sprintf("valid_cells=%d sampled=%d too_close=%d missing_values=%d output=%d",
		s.ValidCells, s.Sampled, s.TooClose, s.MissingValues, s.Output)
}

// DistanceM returns the great-circle distance between two points in meters.
func DistanceM(lon1, lat1, lon2, lat2 float64) float64 {
	a := s2.LatLngFromDegrees(lat1, lon1)
	b := s2.LatLngFromDegrees(lat2, lon2)
	return a.Distance(b).Radians() * earthRadiusM
}

// Generate samples up to target cells uniformly at random (without
// replacement) from the valid cells of the stack's reference layer, keeps
// those farther than bufferM from every occurrence, and extracts layer
// values at the survivors. Rows with any missing value are dropped, so the
// output count is data-dependent and may be below target.
func Generate(s *raster.Stack, occs []occurrence.Record, target int, bufferM float64, seed int64) ([]Point, Stats) {
	cells := s.ValidCells()
	stats := Stats{ValidCells: len(cells)}

	n := target
	if n > len(cells) {
		n = len(cells)
	}
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(len(cells))
	stats.Sampled = n

	var out []Point
	for _, pi := range perm[:n] {
		rc := cells[pi]
		lon, lat := s.CellCenter(rc[0], rc[1])
		if minDistanceM(lon, lat, occs) <= bufferM {
			stats.TooClose++
			continue
		}
		vals, ok := s.ExtractAt(lon, lat)
		if !ok {
			stats.MissingValues++
			continue
		}
		missing := false
		for _, v := range vals {
			if math.IsNaN(v) {
				missing = true
				break
			}
		}
		if missing {
			stats.MissingValues++
			continue
		}
		out = append(out, Point{Longitude: lon, Latitude: lat, Values: vals})
	}
	stats.Output = len(out)
	return out, stats
}

func minDistanceM(lon, lat float64, occs []occurrence.Record) float64 {
	min := math.Inf(1)
	for _, o := range occs {
		if d := DistanceM(lon, lat, o.Longitude, o.Latitude); d < min {
			min = d
		}
	}
	return min
}

// WriteTable writes the background table: longitude, latitude, then one
// column per variable in stack order. The variable columns match the
// presence table column-for-column; the fitting stage depends on that.
func WriteTable(path string, varNames []string, pts []Point) error {
	header := append([]string{"longitude", "latitude"}, varNames...)
	rows := make([][]string, len(pts))
	for i, p := range pts {
		row := make([]string, 0, len(header))
		row = append(row, table.Float(p.Longitude), table.Float(p.Latitude))
		for _, v := range p.Values {
			row = append(row, table.Float(v))
		}
		rows[i] = row
	}
	return table.Write(path, header, rows)
}

// ReadTable reads a table written by WriteTable, returning the variable
// names it carries.
func ReadTable(path string) (varNames []string, pts []Point, err error) {
	header, rows, err := table.Read(path)
	if err != nil {
		return nil, nil, err
	}
	if len(header) < 3 || header[0] != "longitude" || header[1] != "latitude" {
		return nil, nil, fmt.Errorf("%s: not a background table", path)
	}
	varNames = header[2:]
	for _, row := range rows {
		p := Point{Values: make([]float64, len(varNames))}
		if p.Longitude, err = table.ParseFloat("longitude", row[0]); err != nil {
			return nil, nil, err
		}
		if p.Latitude, err = table.ParseFloat("latitude", row[1]); err != nil {
			return nil, nil, err
		}
		for i := range varNames {
			if p.Values[i], err = table.ParseFloat(varNames[i], row[i+2]); err != nil {
				return nil, nil, err
			}
		}
		pts = append(pts, p)
	}
	return varNames, pts, nil
}
