// Package raster holds the gridded environmental data model: ordered stacks
// of same-extent layers backed by dense arrays, persisted as NetCDF.
// The no-data value is NaN throughout.
package raster

import (
	"errors"
	"fmt"
	"math"

	"github.com/ctessum/sparse"
)

// ErrAllNoData indicates a grid whose sampled cells are all no-data; callers
// regenerate the artifact from upstream inputs instead of trusting it.
var ErrAllNoData = errors.New("raster: sampled cells are all no-data")

// GridSpec describes grid geometry: lower-left origin, cell sizes in
// degrees, and cell counts. Data are row-major with row 0 at the southern
// edge.
type GridSpec struct {
	X0, Y0 float64 // lower-left corner, degrees
	Dx, Dy float64 // cell size, degrees
	Nx, Ny int
}

// CellAt returns the row and column containing the point, and whether the
// point lies on the grid.
func (g GridSpec) CellAt(lon, lat float64) (row, col int, ok bool) {
	col = int(math.Floor((lon - g.X0) / g.Dx))
	row = int(math.Floor((lat - g.Y0) / g.Dy))
	if col < 0 || col >= g.Nx || row < 0 || row >= g.Ny {
		return 0, 0, false
	}
	return row, col, true
}

// CellCenter returns the coordinates of the cell's center.
func (g GridSpec) CellCenter(row, col int) (lon, lat float64) {
	return g.X0 + (float64(col)+0.5)*g.Dx, g.Y0 + (float64(row)+0.5)*g.Dy
}

// CellAreaKm2 approximates per-cell area with a single fixed latitude of
// interest: (dx°·111 km)·(dy°·111 km·cos(lat)). The fixed-latitude
// correction is a deliberate approximation carried over from the original
// workflow; it is not applied per row.
func (g GridSpec) CellAreaKm2(latOfInterest float64) float64 {
	return (g.Dx * 111) * (g.Dy * 111 * math.Cos(latOfInterest*math.Pi/180))
}

// Equal reports whether two specs describe the same grid geometry.
func (g GridSpec) Equal(o GridSpec) bool {
	return g.X0 == o.X0 && g.Y0 == o.Y0 && g.Dx == o.Dx && g.Dy == o.Dy &&
		g.Nx == o.Nx && g.Ny == o.Ny
}

// Stack is an ordered collection of same-extent, same-resolution layers.
// Layer order is significant and preserved through persistence.
type Stack struct {
	GridSpec
	Names  []string
	Layers []*sparse.DenseArray // each with shape [Ny, Nx]
}

// NewStack allocates a stack of zero-filled layers.
func NewStack(spec GridSpec, names []string) *Stack {
	s := &Stack{GridSpec: spec, Names: names}
	for range names {
		s.Layers = append(s.Layers, sparse.ZerosDense(spec.Ny, spec.Nx))
	}
	return s
}

// Layer returns the named layer, or an error naming the missing variable.
func (s *Stack) Layer(name string) (*sparse.DenseArray, error) {
	for i, n := range s.Names {
		if n == name {
			return s.Layers[i], nil
		}
	}
	return nil, fmt.Errorf("raster: no layer named %s", name)
}

// Subset returns a new stack holding only the named layers, in the given
// order, sharing the underlying arrays.
func (s *Stack) Subset(names []string) (*Stack, error) {
	out := &Stack{GridSpec: s.GridSpec, Names: names}
	for _, name := range names {
		l, err := s.Layer(name)
		if err != nil {
			return nil, err
		}
		out.Layers = append(out.Layers, l)
	}
	return out, nil
}

// Crop returns a new stack restricted to cells whose extent intersects the
// box. Layer identity and order are preserved.
func (s *Stack) Crop(minLon, minLat, maxLon, maxLat float64) (*Stack, error) {
	c0 := int(math.Floor((minLon - s.X0) / s.Dx))
	r0 := int(math.Floor((minLat - s.Y0) / s.Dy))
	c1 := int(math.Ceil((maxLon - s.X0) / s.Dx))
	r1 := int(math.Ceil((maxLat - s.Y0) / s.Dy))
	c0 = clamp(c0, 0, s.Nx)
	r0 = clamp(r0, 0, s.Ny)
	c1 = clamp(c1, 0, s.Nx)
	r1 = clamp(r1, 0, s.Ny)
	if c1 <= c0 || r1 <= r0 {
		return nil, fmt.Errorf("raster: crop box (%g,%g)-(%g,%g) does not overlap grid", minLon, minLat, maxLon, maxLat)
	}

	spec := GridSpec{
		X0: s.X0 + float64(c0)*s.Dx,
		Y0: s.Y0 + float64(r0)*s.Dy,
		Dx: s.Dx, Dy: s.Dy,
		Nx: c1 - c0, Ny: r1 - r0,
	}
	out := NewStack(spec, s.Names)
	for li, layer := range s.Layers {
		for r := r0; r < r1; r++ {
			for c := c0; c < c1; c++ {
				out.Layers[li].Set(layer.Get(r, c), r-r0, c-c0)
			}
		}
	}
	return out, nil
}

// ExtractAt returns the layer values at the cell containing the point
// (nearest-cell extraction). ok is false when the point is off the grid.
// Individual values may still be NaN where a layer has no data.
func (s *Stack) ExtractAt(lon, lat float64) (vals []float64, ok bool) {
	row, col, ok := s.CellAt(lon, lat)
	if !ok {
		return nil, false
	}
	vals = make([]float64, len(s.Layers))
	for i, l := range s.Layers {
		vals[i] = l.Get(row, col)
	}
	return vals, true
}

// ValidCells returns the [row, col] indices of cells where the reference
// (first) layer has data, in row-major order.
func (s *Stack) ValidCells() [][2]int {
	if len(s.Layers) == 0 {
		return nil
	}
	ref := s.Layers[0]
	var cells [][2]int
	for r := 0; r < s.Ny; r++ {
		for c := 0; c < s.Nx; c++ {
			if !math.IsNaN(ref.Get(r, c)) {
				cells = append(cells, [2]int{r, c})
			}
		}
	}
	return cells
}

// Grid is a single-layer raster, used for suitability and habitat surfaces.
type Grid struct {
	GridSpec
	Data *sparse.DenseArray
}

// NewGrid allocates a zero-filled grid.
func NewGrid(spec GridSpec) *Grid {
	return &Grid{GridSpec: spec, Data: sparse.ZerosDense(spec.Ny, spec.Nx)}
}

// SanityProbe samples up to n cells spread across the grid and returns
// ErrAllNoData when every sampled cell is NaN. A cheap check for stale
// artifacts; it never reads the whole grid.
func (g *Grid) SanityProbe(n int) error {
	total := g.Nx * g.Ny
	if total == 0 {
		return ErrAllNoData
	}
	if n > total {
		n = total
	}
	stride := total / n
	if stride == 0 {
		stride = 1
	}
	for i := 0; i < total; i += stride {
		if !math.IsNaN(g.Data.Elements[i]) {
			return nil
		}
	}
	return ErrAllNoData
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
