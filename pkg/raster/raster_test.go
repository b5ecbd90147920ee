package raster

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStack(t *testing.T) *Stack {
	t.Helper()
	spec := GridSpec{X0: 70, Y0: 30, Dx: 1, Dy: 1, Nx: 4, Ny: 4}
	s := NewStack(spec, []string{"bio1", "bio2"})
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			s.Layers[0].Set(float64(r*4+c), r, c)
			s.Layers[1].Set(float64(r*4+c)*10, r, c)
		}
	}
	return s
}

func TestCellAtAndCenter(t *testing.T) {
	spec := GridSpec{X0: 70, Y0: 30, Dx: 0.5, Dy: 0.5, Nx: 10, Ny: 8}

	row, col, ok := spec.CellAt(70.25, 30.25)
	require.True(t, ok)
	assert.Equal(t, 0, row)
	assert.Equal(t, 0, col)

	row, col, ok = spec.CellAt(74.9, 33.9)
	require.True(t, ok)
	assert.Equal(t, 7, row)
	assert.Equal(t, 9, col)

	_, _, ok = spec.CellAt(69.9, 30.5)
	assert.False(t, ok)
	_, _, ok = spec.CellAt(70.5, 34.1)
	assert.False(t, ok)

	lon, lat := spec.CellCenter(0, 0)
	assert.InDelta(t, 70.25, lon, 1e-12)
	assert.InDelta(t, 30.25, lat, 1e-12)
}

func TestCellAreaFixedLatitude(t *testing.T) {
	spec := GridSpec{Dx: 1, Dy: 1}
	area := spec.CellAreaKm2(35)
	// 111 * 111 * cos(35 deg)
	assert.InDelta(t, 111*111*math.Cos(35*math.Pi/180), area, 1e-9)
	assert.InDelta(t, 10092, area, 5)
}

func TestCropPreservesLayerOrderAndValues(t *testing.T) {
	s := testStack(t)
	c, err := s.Crop(71, 31, 73, 33)
	require.NoError(t, err)

	assert.Equal(t, []string{"bio1", "bio2"}, c.Names)
	assert.Equal(t, 2, c.Nx)
	assert.Equal(t, 2, c.Ny)
	assert.Equal(t, 71.0, c.X0)
	assert.Equal(t, 31.0, c.Y0)
	// Cell (row 1, col 1) of the original becomes (0, 0) of the crop.
	assert.Equal(t, 5.0, c.Layers[0].Get(0, 0))
	assert.Equal(t, 50.0, c.Layers[1].Get(0, 0))
}

func TestCropOutsideGridFails(t *testing.T) {
	s := testStack(t)
	_, err := s.Crop(100, 50, 110, 60)
	require.Error(t, err)
}

func TestExtractAtNearestCell(t *testing.T) {
	s := testStack(t)
	vals, ok := s.ExtractAt(70.5, 30.5)
	require.True(t, ok)
	assert.Equal(t, []float64{0, 0}, vals)

	vals, ok = s.ExtractAt(73.5, 33.5)
	require.True(t, ok)
	assert.Equal(t, []float64{15, 150}, vals)

	_, ok = s.ExtractAt(60, 10)
	assert.False(t, ok)
}

func TestValidCellsSkipsNoData(t *testing.T) {
	s := testStack(t)
	s.Layers[0].Set(math.NaN(), 0, 0)
	s.Layers[0].Set(math.NaN(), 2, 3)
	cells := s.ValidCells()
	assert.Len(t, cells, 14)
	for _, rc := range cells {
		assert.False(t, math.IsNaN(s.Layers[0].Get(rc[0], rc[1])))
	}
}

func TestSubset(t *testing.T) {
	s := testStack(t)
	sub, err := s.Subset([]string{"bio2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"bio2"}, sub.Names)
	assert.Equal(t, 10.0, sub.Layers[0].Get(0, 1))

	_, err = s.Subset([]string{"bio19"})
	require.Error(t, err)
}

func TestNetCDFRoundTrip(t *testing.T) {
	s := testStack(t)
	s.Layers[0].Set(math.NaN(), 1, 1)
	path := filepath.Join(t.TempDir(), "stack.nc")

	require.NoError(t, WriteStack(path, s))
	got, err := ReadStack(path)
	require.NoError(t, err)

	assert.True(t, s.GridSpec.Equal(got.GridSpec))
	assert.Equal(t, s.Names, got.Names)
	for li := range s.Layers {
		for i, want := range s.Layers[li].Elements {
			if math.IsNaN(want) {
				assert.True(t, math.IsNaN(got.Layers[li].Elements[i]))
				continue
			}
			assert.InDelta(t, want, got.Layers[li].Elements[i], 1e-4)
		}
	}
}

func TestSanityProbe(t *testing.T) {
	spec := GridSpec{X0: 0, Y0: 0, Dx: 1, Dy: 1, Nx: 10, Ny: 10}
	g := NewGrid(spec)
	for i := range g.Data.Elements {
		g.Data.Elements[i] = math.NaN()
	}
	require.ErrorIs(t, g.SanityProbe(25), ErrAllNoData)

	g.Data.Elements[0] = 0.5
	require.NoError(t, g.SanityProbe(25))
}
