package loaders

import (
	"fmt"
	"os"

	"github.com/ctessum/cdf"

	"github.com/couchcryptid/ocean-bgc-etl/internal/matching"
)

// NetCDFGrid exposes a gridded NetCDF simulation file for cell-selective
// loading. Horizontal dimensions come from the latitude field; the depth
// field, when present, supplies one depth per vertical level.
type NetCDFGrid struct {
	file     *cdf.File
	closer   *os.File
	latName  string
	depName  string
	jdm, idm int
	levels   int
}

// OpenNetCDFGrid opens a grid file. latField must be a 2-D field; depthField
// names the per-level depth variable and may be empty for surface grids.
func OpenNetCDFGrid(path, latField, depthField string) (*NetCDFGrid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open grid %s: %w", path, err)
	}
	cf, err := cdf.Open(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open grid %s: %w", path, err)
	}
	lengths := cf.Header.Lengths(latField)
	if len(lengths) != 2 {
		f.Close()
		return nil, fmt.Errorf("open grid %s: field %q has %d dimensions, want 2",
			path, latField, len(lengths))
	}
	g := &NetCDFGrid{
		file:    cf,
		closer:  f,
		latName: latField,
		depName: depthField,
		jdm:     lengths[0],
		idm:     lengths[1],
		levels:  1,
	}
	if depthField != "" {
		dl := cf.Header.Lengths(depthField)
		if len(dl) != 1 {
			f.Close()
			return nil, fmt.Errorf("open grid %s: depth field %q has %d dimensions, want 1",
				path, depthField, len(dl))
		}
		g.levels = dl[0]
	}
	return g, nil
}

func (g *NetCDFGrid) Close() error { return g.closer.Close() }

func (g *NetCDFGrid) FieldNames() []string {
	return g.file.Header.Variables()
}

func (g *NetCDFGrid) Dims() (jdm, idm int) { return g.jdm, g.idm }

func (g *NetCDFGrid) Levels() int { return g.levels }

func (g *NetCDFGrid) LevelDepths() ([]float64, error) {
	if g.depName == "" {
		return []float64{0}, nil
	}
	return ReadFloats(g.file, g.depName)
}

// ReadField reads a field flattened row-major. Accepted shapes are
// (jdm, idm) and (levels, jdm, idm); anything else is rejected.
func (g *NetCDFGrid) ReadField(name string) ([]float64, error) {
	found := false
	for _, v := range g.file.Header.Variables() {
		if v == name {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %q (grid has %v)",
			matching.ErrGridFieldMissing, name, g.file.Header.Variables())
	}
	lengths := g.file.Header.Lengths(name)
	switch {
	case len(lengths) == 2 && lengths[0] == g.jdm && lengths[1] == g.idm:
	case len(lengths) == 3 && lengths[0] == g.levels && lengths[1] == g.jdm && lengths[2] == g.idm:
	default:
		return nil, fmt.Errorf("read grid field %q: unexpected shape %v", name, lengths)
	}
	return ReadFloats(g.file, name)
}
