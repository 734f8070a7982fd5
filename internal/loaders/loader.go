// Package loaders turns provider files into storers conforming to a
// variable set: aliases resolved, quality flags applied, types coerced,
// corrections run and row-removal policies enforced.
package loaders

import (
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/ocean-bgc-etl/internal/filtering"
	"github.com/couchcryptid/ocean-bgc-etl/internal/schema"
	"github.com/couchcryptid/ocean-bgc-etl/internal/storer"
	"github.com/couchcryptid/ocean-bgc-etl/internal/table"
)

// Loader reads one provider's files into storers.
type Loader interface {
	Provider() string
	Category() string
	// Variables is the loading set the loader was configured with.
	Variables() *schema.Set
	IsFileValid(path string) bool
	Load(path string, constraints *filtering.Constraints) (*storer.Storer, error)
}

// source is a single opened file exposing named columns. Formats implement
// it over their own raw representation.
type source interface {
	HasColumn(name string) bool
	FloatColumn(name string) ([]float64, error)
	StringColumn(name string) ([]string, error)
	NumRows() int
}

// buildFrame resolves every variable of the loading set against a source.
// Existing variables try their aliases in order, first present wins; flag
// columns overwrite rejected rows with the variable's default. Absent
// variables are filled with their default.
func buildFrame(src source, set *schema.Set) (*table.Frame, error) {
	n := src.NumRows()
	cols := make([]*table.Series, 0, set.Len())
	for _, v := range set.Elements() {
		var col *table.Series
		var err error
		switch v := v.(type) {
		case schema.Existing:
			col, err = resolveExisting(src, v, n)
		case schema.Parsed:
			col, err = readColumn(src, v.Name(), v.Kind(), n)
			if err == nil {
				col = col.Rename(v.Label())
			}
		default:
			col = table.NewConstantSeries(v.Label(), n, v.Default())
		}
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", v.Name(), err)
		}
		cols = append(cols, col)
	}
	return table.NewFrame(cols...)
}

func resolveExisting(src source, v schema.Existing, n int) (*table.Series, error) {
	for _, alias := range v.Aliases() {
		if !src.HasColumn(alias.Column) {
			continue
		}
		col, err := readColumn(src, alias.Column, v.Kind(), n)
		if err != nil {
			return nil, err
		}
		col = col.Rename(v.Label())
		if alias.FlagColumn == "" || !src.HasColumn(alias.FlagColumn) {
			return col, nil
		}
		flags, err := src.FloatColumn(alias.FlagColumn)
		if err != nil {
			return nil, fmt.Errorf("flag column %q: %w", alias.FlagColumn, err)
		}
		for row, flag := range flags {
			if !alias.AcceptsFlag(flag) {
				col.Set(row, v.Default())
			}
		}
		return col, nil
	}
	return table.NewConstantSeries(v.Label(), n, v.Default()), nil
}

func readColumn(src source, name string, kind table.Kind, n int) (*table.Series, error) {
	switch kind {
	case table.Float:
		vals, err := src.FloatColumn(name)
		if err != nil {
			return nil, err
		}
		return table.NewFloatSeries(name, vals), nil
	case table.Int:
		vals, err := src.FloatColumn(name)
		if err != nil {
			return nil, err
		}
		ints := make([]int64, len(vals))
		for i, v := range vals {
			if !math.IsNaN(v) {
				ints[i] = int64(v)
			}
		}
		return table.NewIntSeries(name, ints), nil
	case table.String:
		vals, err := src.StringColumn(name)
		if err != nil {
			return nil, err
		}
		return table.NewStringSeries(name, vals), nil
	default:
		return table.NewConstantSeries(name, n, table.TimeVal(time.Time{})), nil
	}
}

// assembleDates rebuilds the date column from the numeric year/month/day
// columns, plus the hour column when the set declares one. Rows whose year
// stayed at the default zero keep the zero time.
func assembleDates(frame *table.Frame, set *schema.Set) error {
	year, err := frame.Column(set.YearName())
	if err != nil {
		return err
	}
	month, err := frame.Column(set.MonthName())
	if err != nil {
		return err
	}
	day, err := frame.Column(set.DayName())
	if err != nil {
		return err
	}
	var hour *table.Series
	if hourName, ok := set.HourName(); ok {
		if hour, err = frame.Column(hourName); err != nil {
			return err
		}
	}
	date, err := frame.Column(set.DateName())
	if err != nil {
		return err
	}
	for row := 0; row < frame.NumRows(); row++ {
		y := year.At(row).I
		if y == 0 {
			continue
		}
		var h int64
		if hour != nil {
			h = hour.At(row).I
		}
		date.Set(row, table.TimeVal(time.Date(
			int(y), time.Month(month.At(row).I), int(day.At(row).I),
			int(h), 0, 0, 0, time.UTC,
		)))
	}
	return nil
}

// fillProvider writes the loader's provider name into the provider column
// when the set declares one.
func fillProvider(frame *table.Frame, set *schema.Set, provider string) error {
	name, ok := set.ProviderName()
	if !ok {
		return nil
	}
	col, err := frame.Column(name)
	if err != nil {
		return err
	}
	for row := 0; row < frame.NumRows(); row++ {
		if col.At(row).S == "" {
			col.Set(row, table.StringVal(provider))
		}
	}
	return nil
}

// finishLoad runs the shared tail of every load: corrections, feature
// insertion, temporary-variable removal, NaN row-removal policies, then
// domain constraints. The frame must carry the columns of the loading set;
// declared is the full set whose features get realized.
func finishLoad(frame *table.Frame, declared, loading *schema.Set, category, provider string, constraints *filtering.Constraints) (*storer.Storer, error) {
	for label, correct := range loading.Corrections() {
		col, err := frame.Column(label)
		if err != nil {
			return nil, err
		}
		corrected := correct(col.Floats())
		for row, v := range corrected {
			col.Set(row, table.FloatVal(v))
		}
	}

	st, err := storer.New(frame, loading, category, []string{provider})
	if err != nil {
		return nil, err
	}
	if err := st.InsertAllFeatures(declared); err != nil {
		return nil, err
	}
	if err := st.PopTemporaries(); err != nil {
		return nil, err
	}

	out := removeAnyNaNRows(st.Frame(), st.Variables().RemoveWhenAnyNaN())
	out = removeAllNaNRows(out, st.Variables().RemoveWhenAllNaN())
	if constraints != nil {
		if out, err = constraints.Apply(out); err != nil {
			return nil, err
		}
	}
	return storer.New(out, st.Variables(), category, []string{provider})
}

func removeAnyNaNRows(frame *table.Frame, labels []string) *table.Frame {
	if len(labels) == 0 {
		return frame
	}
	mask := make([]bool, frame.NumRows())
	for row := range mask {
		mask[row] = true
		for _, label := range labels {
			col, err := frame.Column(label)
			if err != nil {
				continue
			}
			if col.IsNaN(row) {
				mask[row] = false
				break
			}
		}
	}
	return frame.SelectMask(mask)
}

func removeAllNaNRows(frame *table.Frame, labels []string) *table.Frame {
	if len(labels) == 0 {
		return frame
	}
	mask := make([]bool, frame.NumRows())
	for row := range mask {
		for _, label := range labels {
			col, err := frame.Column(label)
			if err != nil {
				continue
			}
			if !col.IsNaN(row) {
				mask[row] = true
				break
			}
		}
	}
	return frame.SelectMask(mask)
}
