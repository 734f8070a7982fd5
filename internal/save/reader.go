package save

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/ocean-bgc-etl/internal/schema"
	"github.com/couchcryptid/ocean-bgc-etl/internal/storer"
	"github.com/couchcryptid/ocean-bgc-etl/internal/table"
)

const dateLayout = "2006-01-02"

// Reader parses files produced by Saver back into storers. Columns become
// Parsed variables named after the header row, typed by sniffing the values.
type Reader struct {
	category string
}

func NewReader(category string) *Reader {
	return &Reader{category: category}
}

// ReadFile reads one saved file. The first line holds variable names, the
// second units, the rest whitespace-separated values.
func (r *Reader) ReadFile(path string) (*storer.Storer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	defer f.Close()

	var lines [][]string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 0 {
			lines = append(lines, fields)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(lines) < 2 {
		return nil, fmt.Errorf("read %s: missing name and unit rows", path)
	}

	names := lines[0]
	units := lines[1]
	rows := lines[2:]
	for i, row := range rows {
		if len(row) != len(names) {
			return nil, fmt.Errorf("read %s: row %d has %d fields, want %d",
				path, i, len(row), len(names))
		}
	}
	return r.buildStorer(path, names, units, rows)
}

// ReadFiles reads and concatenates several saved files sharing one layout.
func (r *Reader) ReadFiles(paths []string) (*storer.Storer, error) {
	var combined *storer.Storer
	for _, path := range paths {
		st, err := r.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if combined == nil {
			combined = st
			continue
		}
		if combined, err = combined.Concat(st); err != nil {
			return nil, err
		}
	}
	if combined == nil {
		return nil, fmt.Errorf("read: no files given")
	}
	return combined, nil
}

func (r *Reader) buildStorer(path string, names, units []string, rows [][]string) (*storer.Storer, error) {
	set, err := parsedSet(names, units, rows)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cols := make([]*table.Series, len(names))
	for i, name := range names {
		v, err := set.Get(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		col, err := parseColumn(name, v.Kind(), rows, i)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		cols[i] = col
	}
	frame, err := table.NewFrame(cols...)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	providers, err := uniqueProviders(frame, set)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return storer.New(frame, set, r.category, providers)
}

// parsedSet maps the header onto the standard role columns and declares
// every remaining column as a Parsed variable of its sniffed kind.
func parsedSet(names, units []string, rows [][]string) (*schema.Set, error) {
	roleKinds := map[string]table.Kind{
		"PROVIDER":  table.String,
		"EXPOCODE":  table.String,
		"DATE":      table.Time,
		"YEAR":      table.Int,
		"MONTH":     table.Int,
		"DAY":       table.Int,
		"HOUR":      table.Int,
		"LATITUDE":  table.Float,
		"LONGITUDE": table.Float,
		"DEPH":      table.Float,
	}
	vars := make(map[string]schema.Parsed, len(names))
	var extras []schema.Var
	for i, name := range names {
		unit := "[]"
		if i < len(units) {
			unit = units[i]
		}
		kind, ok := roleKinds[name]
		if !ok {
			kind = sniffKind(rows, i)
		}
		v := schema.NewParsed(name, unit, kind)
		vars[name] = v
		if !ok {
			extras = append(extras, v)
		}
	}
	for _, role := range []string{"PROVIDER", "EXPOCODE", "DATE", "YEAR", "MONTH",
		"DAY", "LATITUDE", "LONGITUDE", "DEPH"} {
		if _, ok := vars[role]; !ok {
			return nil, fmt.Errorf("missing column %q", role)
		}
	}
	roles := schema.Roles{
		Provider:  vars["PROVIDER"],
		Expocode:  vars["EXPOCODE"],
		Date:      vars["DATE"],
		Year:      vars["YEAR"],
		Month:     vars["MONTH"],
		Day:       vars["DAY"],
		Latitude:  vars["LATITUDE"],
		Longitude: vars["LONGITUDE"],
		Depth:     vars["DEPH"],
	}
	if hour, ok := vars["HOUR"]; ok {
		roles.Hour = hour
	}
	return schema.NewSet(roles, extras...)
}

// sniffKind types a column from its cells: all-integer stays Int, numeric
// becomes Float, dates become Time, anything else String. NaN cells are
// numeric.
func sniffKind(rows [][]string, col int) table.Kind {
	kind := table.Int
	seen := false
	for _, row := range rows {
		cell := row[col]
		if strings.EqualFold(cell, "nan") {
			if kind == table.Int {
				kind = table.Float
			}
			continue
		}
		seen = true
		if _, err := strconv.ParseInt(cell, 10, 64); err == nil {
			continue
		}
		if _, err := strconv.ParseFloat(cell, 64); err == nil {
			kind = table.Float
			continue
		}
		if _, err := time.Parse(dateLayout, cell); err == nil {
			return table.Time
		}
		return table.String
	}
	if !seen && kind == table.Int {
		return table.Float
	}
	return kind
}

func parseColumn(name string, kind table.Kind, rows [][]string, col int) (*table.Series, error) {
	switch kind {
	case table.Float:
		vals := make([]float64, len(rows))
		for i, row := range rows {
			cell := row[col]
			if strings.EqualFold(cell, "nan") {
				vals[i] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("column %q row %d: %w", name, i, err)
			}
			vals[i] = v
		}
		return table.NewFloatSeries(name, vals), nil
	case table.Int:
		vals := make([]int64, len(rows))
		for i, row := range rows {
			v, err := strconv.ParseInt(row[col], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("column %q row %d: %w", name, i, err)
			}
			vals[i] = v
		}
		return table.NewIntSeries(name, vals), nil
	case table.Time:
		vals := make([]time.Time, len(rows))
		for i, row := range rows {
			v, err := time.Parse(dateLayout, row[col])
			if err != nil {
				return nil, fmt.Errorf("column %q row %d: %w", name, i, err)
			}
			vals[i] = v
		}
		return table.NewTimeSeries(name, vals), nil
	default:
		vals := make([]string, len(rows))
		for i, row := range rows {
			vals[i] = row[col]
		}
		return table.NewStringSeries(name, vals), nil
	}
}

func uniqueProviders(frame *table.Frame, set *schema.Set) ([]string, error) {
	name, ok := set.ProviderName()
	if !ok {
		return nil, nil
	}
	col, err := frame.Column(name)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, p := range col.Strings() {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out, nil
}
