package loaders

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/couchcryptid/ocean-bgc-etl/internal/filtering"
	"github.com/couchcryptid/ocean-bgc-etl/internal/schema"
	"github.com/couchcryptid/ocean-bgc-etl/internal/storer"
)

// CSVLoader reads delimited provider files. The first row is the header;
// empty cells and the literal "NaN" parse as missing.
type CSVLoader struct {
	provider  string
	category  string
	variables *schema.Set
	comma     rune
}

func NewCSVLoader(provider, category string, variables *schema.Set, comma rune) *CSVLoader {
	if comma == 0 {
		comma = ','
	}
	return &CSVLoader{
		provider:  provider,
		category:  category,
		variables: variables,
		comma:     comma,
	}
}

func (l *CSVLoader) Provider() string       { return l.provider }
func (l *CSVLoader) Category() string       { return l.category }
func (l *CSVLoader) Variables() *schema.Set { return l.variables }

func (l *CSVLoader) IsFileValid(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".csv")
}

func (l *CSVLoader) Load(path string, constraints *filtering.Constraints) (*storer.Storer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = l.comma
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("load %s: empty file", path)
	}

	src := newCSVSource(records[0], records[1:])
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
	return finishLoad(frame, l.variables, loading, l.category, l.provider, constraints)
}

type csvSource struct {
	columns map[string][]string
	rows    int
}

func newCSVSource(header []string, rows [][]string) *csvSource {
	src := &csvSource{
		columns: make(map[string][]string, len(header)),
		rows:    len(rows),
	}
	for i, name := range header {
		col := make([]string, len(rows))
		for j, row := range rows {
			if i < len(row) {
				col[j] = strings.TrimSpace(row[i])
			}
		}
		src.columns[strings.TrimSpace(name)] = col
	}
	return src
}

func (s *csvSource) NumRows() int { return s.rows }

func (s *csvSource) HasColumn(name string) bool {
	_, ok := s.columns[name]
	return ok
}

func (s *csvSource) StringColumn(name string) ([]string, error) {
	col, ok := s.columns[name]
	if !ok {
		return nil, fmt.Errorf("no column %q", name)
	}
	return col, nil
}

func (s *csvSource) FloatColumn(name string) ([]float64, error) {
	col, ok := s.columns[name]
	if !ok {
		return nil, fmt.Errorf("no column %q", name)
	}
	out := make([]float64, len(col))
	for i, cell := range col {
		if cell == "" || strings.EqualFold(cell, "nan") {
			out[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("column %q row %d: %w", name, i, err)
		}
		out[i] = v
	}
	return out, nil
}
