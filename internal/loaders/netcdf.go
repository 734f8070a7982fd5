package loaders

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/cdf"

	"github.com/couchcryptid/ocean-bgc-etl/internal/filtering"
	"github.com/couchcryptid/ocean-bgc-etl/internal/schema"
	"github.com/couchcryptid/ocean-bgc-etl/internal/storer"
	"github.com/couchcryptid/ocean-bgc-etl/internal/table"
)

// NetCDFLoader reads provider files holding one value per observation in
// 1-D variables. String metadata (expocode) comes from the file name, since
// NetCDF provider files do not carry per-row station strings.
type NetCDFLoader struct {
	provider  string
	category  string
	variables *schema.Set
}

func NewNetCDFLoader(provider, category string, variables *schema.Set) *NetCDFLoader {
	return &NetCDFLoader{provider: provider, category: category, variables: variables}
}

func (l *NetCDFLoader) Provider() string       { return l.provider }
func (l *NetCDFLoader) Category() string       { return l.category }
func (l *NetCDFLoader) Variables() *schema.Set { return l.variables }

func (l *NetCDFLoader) IsFileValid(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".nc" || ext == ".netcdf"
}

func (l *NetCDFLoader) Load(path string, constraints *filtering.Constraints) (*storer.Storer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	defer f.Close()

	cf, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	src, err := newNetCDFSource(cf, fileStem(path))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	loading := l.variables.LoadingSet()
	frame, err := buildFrame(src, loading)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := assembleDates(frame, loading); err != nil {
		return nil, err
	}
	if err := fillProvider(frame, loading, l.provider); err != nil {
		return nil, err
	}
	if err := fillExpocode(frame, loading, fileStem(path)); err != nil {
		return nil, err
	}
	return finishLoad(frame, l.variables, loading, l.category, l.provider, constraints)
}

func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func fillExpocode(frame *table.Frame, set *schema.Set, stem string) error {
	col, err := frame.Column(set.ExpocodeName())
	if err != nil {
		return err
	}
	for row := 0; row < frame.NumRows(); row++ {
		if col.At(row).S == "" {
			col.Set(row, table.StringVal(stem))
		}
	}
	return nil
}

type netcdfSource struct {
	file *cdf.File
	stem string
	rows int
}

func newNetCDFSource(f *cdf.File, stem string) (*netcdfSource, error) {
	rows := -1
	for _, v := range f.Header.Variables() {
		lengths := f.Header.Lengths(v)
		if len(lengths) != 1 {
			continue
		}
		if rows == -1 {
			rows = lengths[0]
		}
	}
	if rows == -1 {
		return nil, fmt.Errorf("no 1-D variables in file")
	}
	return &netcdfSource{file: f, stem: stem, rows: rows}, nil
}

func (s *netcdfSource) NumRows() int { return s.rows }

func (s *netcdfSource) HasColumn(name string) bool {
	for _, v := range s.file.Header.Variables() {
		if v == name && len(s.file.Header.Lengths(v)) == 1 {
			return true
		}
	}
	return false
}

func (s *netcdfSource) FloatColumn(name string) ([]float64, error) {
	if !s.HasColumn(name) {
		return nil, fmt.Errorf("no variable %q", name)
	}
	vals, err := ReadFloats(s.file, name)
	if err != nil {
		return nil, err
	}
	if len(vals) != s.rows {
		return nil, fmt.Errorf("variable %q has %d values, want %d", name, len(vals), s.rows)
	}
	return vals, nil
}

func (s *netcdfSource) StringColumn(name string) ([]string, error) {
	return nil, fmt.Errorf("no string variable %q in NetCDF source", name)
}

// ReadFloats reads a whole variable as float64, converting from the type
// stored in the file and mapping fill values to NaN.
func ReadFloats(f *cdf.File, name string) ([]float64, error) {
	n := 1
	for _, l := range f.Header.Lengths(name) {
		n *= l
	}
	r := f.Reader(name, nil, nil)
	buf := r.Zero(n)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("read %q: %w", name, err)
	}

	out := make([]float64, n)
	switch data := buf.(type) {
	case []float64:
		copy(out, data)
	case []float32:
		for i, v := range data {
			out[i] = float64(v)
		}
	case []int32:
		for i, v := range data {
			out[i] = float64(v)
		}
	case []int16:
		for i, v := range data {
			out[i] = float64(v)
		}
	case []int8:
		for i, v := range data {
			out[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("read %q: unsupported type %T", name, buf)
	}

	if fill, ok := fillValue(f, name); ok {
		for i, v := range out {
			if v == fill {
				out[i] = math.NaN()
			}
		}
	}
	return out, nil
}

func fillValue(f *cdf.File, name string) (float64, bool) {
	for _, attr := range []string{"_FillValue", "missing_value"} {
		switch v := f.Header.GetAttribute(name, attr).(type) {
		case []float64:
			if len(v) > 0 {
				return v[0], true
			}
		case []float32:
			if len(v) > 0 {
				return float64(v[0]), true
			}
		case []int32:
			if len(v) > 0 {
				return float64(v[0]), true
			}
		}
	}
	return 0, false
}
