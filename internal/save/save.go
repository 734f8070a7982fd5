// Package save writes storers to fixed-width text files and reads them
// back. Files carry a variable name row, a unit row, then one formatted
// line per observation row.
package save

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/ocean-bgc-etl/internal/dateranges"
	"github.com/couchcryptid/ocean-bgc-etl/internal/schema"
	"github.com/couchcryptid/ocean-bgc-etl/internal/storer"
	"github.com/couchcryptid/ocean-bgc-etl/internal/table"
)

var (
	ErrFileExists        = errors.New("save: file already exists")
	ErrMultipleProviders = errors.New("save: multiple providers in storer")
)

const (
	singleFilenameFormat = "bgc_%s_%s.txt"
	aggrFilenameFormat   = "bgc_%s_%s.txt"
)

// Saver serializes one storer. The saving order defaults to the variable
// set's declaration order.
type Saver struct {
	storer *storer.Storer
	logger *slog.Logger
}

func NewSaver(st *storer.Storer, logger *slog.Logger) *Saver {
	return &Saver{storer: st, logger: logger}
}

// SetSavingOrder fixes the column order of saved files. Unnamed variables
// keep their declaration order after the named ones.
func (s *Saver) SetSavingOrder(names []string) error {
	return s.storer.Variables().SetSavingOrder(names)
}

// SaveAll writes the whole storer to path. An existing file is never
// overwritten.
func (s *Saver) SaveAll(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrFileExists, path)
	}
	s.logger.Info("saving storer", "path", path, "rows", s.storer.NumRows())
	return s.writeStorer(path, s.storer)
}

// SaveByDateRanges splits the storer over the generator's periods and
// writes one aggregated file per period under dir, named by the period's
// start date. With aggregatedOnly false, a per-provider copy also goes to a
// provider subdirectory; that requires a single-provider storer.
func (s *Saver) SaveByDateRanges(gen dateranges.Generator, dir string, aggregatedOnly bool) error {
	periods, err := gen.Generate()
	if err != nil {
		return err
	}
	for _, period := range periods {
		slice, err := s.storer.SliceOnDates(period.Start, period.End)
		if err != nil {
			return err
		}
		part := slice.Storer()
		dates := period.String()

		if !aggregatedOnly {
			if err := s.savePerProvider(part, dates, dir); err != nil {
				return err
			}
		}
		name := fmt.Sprintf(aggrFilenameFormat, s.storer.Category(), period.Start.Format("20060102"))
		if err := s.appendStorer(filepath.Join(dir, name), part); err != nil {
			return err
		}
		s.logger.Debug("saved period", "dates", dates, "rows", part.NumRows())
	}
	return nil
}

func (s *Saver) savePerProvider(part *storer.Storer, dates, dir string) error {
	providers := s.storer.Providers()
	if len(providers) != 1 {
		return fmt.Errorf("%w: %v", ErrMultipleProviders, providers)
	}
	provider := providers[0]
	providerDir := filepath.Join(dir, provider)
	if err := os.MkdirAll(providerDir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf(singleFilenameFormat, provider, dates)
	return s.appendStorer(filepath.Join(providerDir, name), part)
}

func (s *Saver) writeStorer(path string, st *storer.Storer) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := writeHeader(w, st.Variables()); err != nil {
		return err
	}
	if err := writeValues(w, st); err != nil {
		return err
	}
	return w.Flush()
}

// appendStorer appends rows to path, writing the header only when the file
// is new or empty. Several calls may accumulate into one aggregated file.
func (s *Saver) appendStorer(path string, st *storer.Storer) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if info.Size() == 0 {
		if err := writeHeader(w, st.Variables()); err != nil {
			return err
		}
	}
	if err := writeValues(w, st); err != nil {
		return err
	}
	return w.Flush()
}

func writeHeader(w *bufio.Writer, set *schema.Set) error {
	names := make([]string, 0, set.Len())
	units := make([]string, 0, set.Len())
	for _, name := range set.SaveNames() {
		v, err := set.Get(name)
		if err != nil {
			return err
		}
		names = append(names, fmt.Sprintf(v.NameFormat(), v.Label()))
		units = append(units, fmt.Sprintf(v.NameFormat(), v.Unit()))
	}
	if _, err := fmt.Fprintln(w, strings.Join(names, " ")); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, strings.Join(units, " "))
	return err
}

func writeValues(w *bufio.Writer, st *storer.Storer) error {
	set := st.Variables()
	type col struct {
		series *table.Series
		verb   string
	}
	cols := make([]col, 0, set.Len())
	for _, name := range set.SaveNames() {
		v, err := set.Get(name)
		if err != nil {
			return err
		}
		series, err := st.Frame().Column(v.Label())
		if err != nil {
			return err
		}
		cols = append(cols, col{series: series, verb: v.ValueFormat()})
	}
	cells := make([]string, len(cols))
	for row := 0; row < st.NumRows(); row++ {
		for i, c := range cols {
			cells[i] = c.series.At(row).Format(c.verb)
		}
		if _, err := fmt.Fprintln(w, strings.Join(cells, " ")); err != nil {
			return err
		}
	}
	return nil
}
