package raster

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// WriteStack writes the stack to a NetCDF file. Grid geometry travels in
// header attributes and layer order in the "layers" attribute, so a
// round-trip reproduces the stack exactly (float32 precision).
func WriteStack(path string, s *Stack) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}

	h := cdf.NewHeader([]string{"y", "x"}, []int{s.Ny, s.Nx})
	h.AddAttribute("", "x0", []float64{s.X0})
	h.AddAttribute("", "y0", []float64{s.Y0})
	h.AddAttribute("", "dx", []float64{s.Dx})
	h.AddAttribute("", "dy", []float64{s.Dy})
	h.AddAttribute("", "nx", []int32{int32(s.Nx)})
	h.AddAttribute("", "ny", []int32{int32(s.Ny)})
	h.AddAttribute("", "layers", strings.Join(s.Names, ","))
	for _, name := range s.Names {
		h.AddVariable(name, []string{"y", "x"}, []float32{0})
	}
	h.Define()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	nc, err := cdf.Create(f, h)
	if err != nil {
		return fmt.Errorf("create netcdf %s: %w", path, err)
	}
	for i, name := range s.Names {
		if err := writeVariable(nc, name, s.Layers[i]); err != nil {
			return fmt.Errorf("write layer %s to %s: %w", name, path, err)
		}
	}
	if err := cdf.UpdateNumRecs(f); err != nil {
		return fmt.Errorf("finalize %s: %w", path, err)
	}
	return nil
}

func writeVariable(f *cdf.File, name string, data *sparse.DenseArray) error {
	n := 1
	for _, v := range data.Shape {
		n *= v
	}
	if len(data.Elements) != n {
		return fmt.Errorf("dims are %d but array length is %d", n, len(data.Elements))
	}
	data32 := make([]float32, len(data.Elements))
	for i, e := range data.Elements {
		data32[i] = float32(e)
	}
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	w := f.Writer(name, start, end)
	_, err := w.Write(data32)
	return err
}

// ReadStack reads a stack written by WriteStack.
func ReadStack(path string) (*Stack, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	nc, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("open netcdf %s: %w", path, err)
	}

	spec := GridSpec{
		X0: nc.Header.GetAttribute("", "x0").([]float64)[0],
		Y0: nc.Header.GetAttribute("", "y0").([]float64)[0],
		Dx: nc.Header.GetAttribute("", "dx").([]float64)[0],
		Dy: nc.Header.GetAttribute("", "dy").([]float64)[0],
		Nx: int(nc.Header.GetAttribute("", "nx").([]int32)[0]),
		Ny: int(nc.Header.GetAttribute("", "ny").([]int32)[0]),
	}
	names := strings.Split(nc.Header.GetAttribute("", "layers").(string), ",")

	s := &Stack{GridSpec: spec, Names: names}
	for _, name := range names {
		dims := nc.Header.Lengths(name)
		n := 1
		for _, d := range dims {
			n *= d
		}
		if n != spec.Nx*spec.Ny {
			return nil, fmt.Errorf("%s: layer %s has %d elements, grid wants %d", path, name, n, spec.Nx*spec.Ny)
		}
		tmp := make([]float32, n)
		r := nc.Reader(name, nil, nil)
		if _, err := r.Read(tmp); err != nil {
			return nil, fmt.Errorf("read layer %s from %s: %w", name, path, err)
		}
		layer := sparse.ZerosDense(spec.Ny, spec.Nx)
		for i, v := range tmp {
			layer.Elements[i] = float64(v)
		}
		s.Layers = append(s.Layers, layer)
	}
	return s, nil
}

// WriteGrid persists a single-layer grid under the given variable name.
func WriteGrid(path, name string, g *Grid) error {
	return WriteStack(path, &Stack{
		GridSpec: g.GridSpec,
		Names:    []string{name},
		Layers:   []*sparse.DenseArray{g.Data},
	})
}

// ReadGrid reads a grid written by WriteGrid.
func ReadGrid(path string) (*Grid, error) {
	s, err := ReadStack(path)
	if err != nil {
		return nil, err
	}
	if len(s.Layers) != 1 {
		return nil, fmt.Errorf("%s: expected a single layer, got %d", path, len(s.Layers))
	}
	return &Grid{GridSpec: s.GridSpec, Data: s.Layers[0]}, nil
}
