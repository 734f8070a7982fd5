// Package storer ties a loaded observation table to the schema that
// describes it and the providers that contributed it.
package storer

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/ocean-bgc-etl/internal/schema"
	"github.com/couchcryptid/ocean-bgc-etl/internal/table"
)

var (
	ErrIncompatibleSets       = errors.New("storer: variable sets differ")
	ErrIncompatibleCategories = errors.New("storer: categories differ")
	ErrColumnMismatch         = errors.New("storer: frame columns do not match variable labels")
)

// Storer is the unit that flows through the pipeline: a frame whose columns
// are exactly the labels of its variable set, a category tag, and the list
// of providers whose files contributed rows.
type Storer struct {
	frame     *table.Frame
	variables *schema.Set
	category  string
	providers []string
}

// New builds a storer, checking that the frame carries one column per
// declared variable and nothing else.
func New(frame *table.Frame, variables *schema.Set, category string, providers []string) (*Storer, error) {
	want := variables.Labels()
	if frame.NumCols() != len(want) {
		return nil, fmt.Errorf("%w: frame has %d columns, schema declares %d",
			ErrColumnMismatch, frame.NumCols(), len(want))
	}
	for _, label := range want {
		if !frame.HasColumn(label) {
			return nil, fmt.Errorf("%w: missing %q", ErrColumnMismatch, label)
		}
	}
	ordered, err := frame.Reorder(want)
	if err != nil {
		return nil, err
	}
	return &Storer{
		frame:     ordered,
		variables: variables,
		category:  category,
		providers: append([]string(nil), providers...),
	}, nil
}

func (s *Storer) Frame() *table.Frame     { return s.frame }
func (s *Storer) Variables() *schema.Set  { return s.variables }
func (s *Storer) Category() string        { return s.category }
func (s *Storer) Providers() []string     { return append([]string(nil), s.providers...) }
func (s *Storer) NumRows() int            { return s.frame.NumRows() }

// Concat appends the rows of other to s. Both storers must describe the
// same variables and carry the same category; providers are set-unioned
// keeping first-seen order. The result gets a fresh 0..n-1 index.
func (s *Storer) Concat(other *Storer) (*Storer, error) {
	if !s.variables.Equal(other.variables) {
		return nil, fmt.Errorf("%w: %v vs %v",
			ErrIncompatibleSets, s.variables.Names(), other.variables.Names())
	}
	if s.category != other.category {
		return nil, fmt.Errorf("%w: %q vs %q",
			ErrIncompatibleCategories, s.category, other.category)
	}
	frame, err := s.frame.Concat(other.frame)
	if err != nil {
		return nil, err
	}
	return &Storer{
		frame:     frame.ResetIndex(),
		variables: s.variables,
		category:  s.category,
		providers: unionProviders(s.providers, other.providers),
	}, nil
}

func unionProviders(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, p := range append(append([]string(nil), a...), b...) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// SliceUsingIndex keeps the rows whose index value appears in idx, in the
// order given. Index values absent from the storer contribute nothing.
func (s *Storer) SliceUsingIndex(idx []int) *Storer {
	var positions []int
	for _, i := range idx {
		positions = append(positions, s.frame.Loc(i)...)
	}
	return &Storer{
		frame:     s.frame.Take(positions),
		variables: s.variables,
		category:  s.category,
		providers: s.providers,
	}
}

// AddFeature computes a derived variable from the frame's columns and
// attaches both the column and its schema entry.
func (s *Storer) AddFeature(feat schema.Feature) error {
	inputs := make([][]float64, 0, len(feat.RequiredInputs()))
	for _, name := range feat.RequiredInputs() {
		v, err := s.variables.Get(name)
		if err != nil {
			return err
		}
		col, err := s.frame.Column(v.Label())
		if err != nil {
			return err
		}
		inputs = append(inputs, col.Floats())
	}
	values, err := feat.Compute(inputs...)
	if err != nil {
		return fmt.Errorf("compute %s: %w", feat.Name(), err)
	}
	if err := s.variables.Add(feat); err != nil {
		return err
	}
	return s.frame.AddColumn(table.NewFloatSeries(feat.Label(), values))
}

// Pop removes a non-mandatory variable and its column.
func (s *Storer) Pop(name string) error {
	v, err := s.variables.Pop(name)
	if err != nil {
		return err
	}
	_, err = s.frame.PopColumn(v.Label())
	return err
}

// InsertAllFeatures realizes, in dependency order, every feature of the
// declared set that the storer does not yet carry.
func (s *Storer) InsertAllFeatures(declared *schema.Set) error {
	feats, err := declared.ConstructableFeatures(s.frame.Labels())
	if err != nil {
		return err
	}
	for _, feat := range feats {
		if s.variables.Has(feat.Name()) {
			continue
		}
		if err := s.AddFeature(feat); err != nil {
			return err
		}
	}
	return nil
}

// PopTemporaries strips the variables that were only loaded as feature
// inputs.
func (s *Storer) PopTemporaries() error {
	for _, name := range s.variables.TemporaryNames() {
		if err := s.Pop(name); err != nil {
			return err
		}
	}
	return nil
}

// SliceOnDates returns a view of the rows whose date falls inside the
// inclusive [start, end] calendar-day span.
func (s *Storer) SliceOnDates(start, end time.Time) (Slice, error) {
	col, err := s.frame.Column(s.variables.DateName())
	if err != nil {
		return Slice{}, err
	}
	dates := col.Times()
	startDay := truncateToDay(start)
	endDay := truncateToDay(end)
	var positions []int
	for pos, d := range dates {
		day := truncateToDay(d)
		if day.Before(startDay) || day.After(endDay) {
			continue
		}
		positions = append(positions, pos)
	}
	return Slice{parent: s, positions: positions}, nil
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// dedupKey identifies an observation by station, date and position.
func (s *Storer) dedupKey(pos int, cols dedupColumns) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%.5f|%.5f|%.3f",
		cols.expocode.At(pos).S,
		truncateToDay(cols.date.At(pos).T).Format("20060102"),
		cols.lat.At(pos).F,
		cols.lon.At(pos).F,
		cols.depth.At(pos).F,
	)
	return b.String()
}

type dedupColumns struct {
	expocode *table.Series
	date     *table.Series
	lat      *table.Series
	lon      *table.Series
	depth    *table.Series
}

func (s *Storer) dedupColumns() (dedupColumns, error) {
	var cols dedupColumns
	var err error
	if cols.expocode, err = s.frame.Column(s.variables.ExpocodeName()); err != nil {
		return cols, err
	}
	if cols.date, err = s.frame.Column(s.variables.DateName()); err != nil {
		return cols, err
	}
	if cols.lat, err = s.frame.Column(s.variables.LatitudeName()); err != nil {
		return cols, err
	}
	if cols.lon, err = s.frame.Column(s.variables.LongitudeName()); err != nil {
		return cols, err
	}
	cols.depth, err = s.frame.Column(s.variables.DepthName())
	return cols, err
}

// RemoveDuplicates collapses repeated observations of the same station,
// date, position and depth. Repeats within one provider are merged by
// averaging the non-missing float payload; when several providers report
// the same observation, only the rows of the provider appearing earliest in
// priority are kept (unlisted providers rank after all listed ones).
func (s *Storer) RemoveDuplicates(priority []string) (*Storer, error) {
	cols, err := s.dedupColumns()
	if err != nil {
		return nil, err
	}
	providerLabel, hasProvider := s.variables.ProviderName()
	var providerCol *table.Series
	if hasProvider {
		if providerCol, err = s.frame.Column(providerLabel); err != nil {
			return nil, err
		}
	}
	rank := make(map[string]int, len(priority))
	for i, p := range priority {
		rank[p] = i
	}
	providerRank := func(pos int) int {
		if providerCol == nil {
			return 0
		}
		if r, ok := rank[providerCol.At(pos).S]; ok {
			return r
		}
		return len(priority)
	}

	// Group positions by observation key, then keep only the best-ranked
	// provider's rows per key.
	type group struct {
		rank      int
		positions []int
	}
	groups := make(map[string]*group)
	var order []string
	for pos := 0; pos < s.frame.NumRows(); pos++ {
		key := s.dedupKey(pos, cols)
		r := providerRank(pos)
		g, ok := groups[key]
		if !ok {
			groups[key] = &group{rank: r, positions: []int{pos}}
			order = append(order, key)
			continue
		}
		switch {
		case r < g.rank:
			g.rank = r
			g.positions = []int{pos}
		case r == g.rank:
			g.positions = append(g.positions, pos)
		}
	}

	var kept []int
	var merges [][]int
	for _, key := range order {
		g := groups[key]
		kept = append(kept, g.positions[0])
		merges = append(merges, g.positions)
	}
	sort.Ints(kept)

	frame := s.frame.Take(kept).ResetIndex()
	keptPos := make(map[int]int, len(kept))
	for newPos, oldPos := range kept {
		keptPos[oldPos] = newPos
	}
	for _, positions := range merges {
		if len(positions) < 2 {
			continue
		}
		s.mergeInto(frame, keptPos[positions[0]], positions)
	}
	return &Storer{
		frame:     frame,
		variables: s.variables,
		category:  s.category,
		providers: s.providers,
	}, nil
}

// mergeInto averages the duplicate rows' float payload into the kept row.
// Coordinate and depth columns define the key and are left untouched.
func (s *Storer) mergeInto(frame *table.Frame, target int, sources []int) {
	keyLabels := map[string]bool{
		s.variables.LatitudeName():  true,
		s.variables.LongitudeName(): true,
		s.variables.DepthName():     true,
	}
	for _, label := range frame.Labels() {
		if keyLabels[label] {
			continue
		}
		dst, err := frame.Column(label)
		if err != nil || dst.Kind() != table.Float {
			continue
		}
		src, err := s.frame.Column(label)
		if err != nil {
			continue
		}
		sum, n := 0.0, 0
		for _, pos := range sources {
			v := src.At(pos).F
			if math.IsNaN(v) {
				continue
			}
			sum += v
			n++
		}
		if n == 0 {
			continue
		}
		dst.Set(target, table.FloatVal(sum/float64(n)))
	}
}
