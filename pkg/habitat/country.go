package habitat

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/index/rtree"

	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/raster"
)

// Country is one admin-0 polygon with its name attribute.
type Country struct {
	geom.Polygonal
	Name string
}

// LoadCountries reads country polygons from a shapefile, taking names from
// the given attribute column. Geometries are assumed to be in WGS84 lon/lat
// like the grids; no reprojection is applied.
func LoadCountries(path, nameField string) ([]*Country, error) {
	dec, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("open country shapefile %s: %w", path, err)
	}
	defer dec.Close()

	var out []*Country
	for {
		g, fields, more := dec.DecodeRowFields(nameField)
		if !more {
			break
		}
		name, ok := fields[nameField]
		if !ok {
			return nil, fmt.Errorf("country shapefile %s: missing attribute column %s", path, nameField)
		}
		poly, ok := g.(geom.Polygonal)
		if !ok {
			return nil, fmt.Errorf("country shapefile %s: %s is not polygonal", path, name)
		}
		out = append(out, &Country{Polygonal: poly, Name: name})
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("read country shapefile %s: %w", path, err)
	}
	return out, nil
}

// Aggregate masks the binary habitat grid to each country polygon and sums
// suitable cells times the fixed-latitude cell area. Percent is suitable
// cells over valid (non-no-data) cells inside the polygon. Countries with
// zero suitable cells are omitted, not reported as zero. The single
// latitude-of-interest correction biases areas away from each country's
// true centroid latitude; that is the original workflow's approximation,
// reproduced as-is.
func Aggregate(bin *raster.Grid, countries []*Country, latOfInterest float64) []CountrySummary {
	tree := rtree.NewTree(25, 50)
	for _, c := range countries {
		tree.Insert(c)
	}
	cellArea := bin.CellAreaKm2(latOfInterest)

	acc := make(map[string]*CountrySummary, len(countries))
	for r := 0; r < bin.Ny; r++ {
		for c := 0; c < bin.Nx; c++ {
			v := bin.Data.Get(r, c)
			if math.IsNaN(v) {
				continue
			}
			lon, lat := bin.CellCenter(r, c)
			pt := geom.Point{X: lon, Y: lat}
			for _, item := range tree.SearchIntersect(pt.Bounds()) {
				country := item.(*Country)
				if pt.Within(country.Polygonal) == geom.Outside {
					continue
				}
				s := acc[country.Name]
				if s == nil {
					s = &CountrySummary{Country: country.Name}
					acc[country.Name] = s
				}
				s.ValidCells++
				if v == 1 {
					s.SuitableCells++
					s.AreaKm2 += cellArea
				}
				break // admin-0 polygons do not overlap; first hit wins
			}
		}
	}

	var out []CountrySummary
	for _, s := range acc {
		if s.SuitableCells == 0 {
			continue
		}
		s.Percent = float64(s.SuitableCells) / float64(s.ValidCells) * 100
		out = append(out, *s)
	}
	sortSummaries(out)
	return out
}
