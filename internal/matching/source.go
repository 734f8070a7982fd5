package matching

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/ocean-bgc-etl/internal/filtering"
	"github.com/couchcryptid/ocean-bgc-etl/internal/schema"
	"github.com/couchcryptid/ocean-bgc-etl/internal/storer"
	"github.com/couchcryptid/ocean-bgc-etl/internal/table"
)

// DatedGrid associates one simulation grid file with its calendar date.
type DatedGrid struct {
	Date time.Time
	Grid GridFile
}

// SelectiveGridSource loads, for every simulation file, only the grid cells
// nearest to the reference observations of that file's date, and re-keys
// them onto the observation index.
type SelectiveGridSource struct {
	variables *schema.Set
	category  string
	provider  string
	strategy  *NearestNeighborStrategy
	logger    *slog.Logger

	// The grid is constant across dates, so the fitted tree is reused.
	fitted bool
}

func NewSelectiveGridSource(variables *schema.Set, category, provider string, logger *slog.Logger) *SelectiveGridSource {
	return &SelectiveGridSource{
		variables: variables,
		category:  category,
		provider:  provider,
		strategy:  &NearestNeighborStrategy{},
		logger:    logger,
	}
}

// resolveGridField finds the grid field backing a variable, trying its
// aliases in order.
func resolveGridField(grid GridFile, v schema.Var) (string, error) {
	names := grid.FieldNames()
	present := make(map[string]bool, len(names))
	for _, n := range names {
		present[n] = true
	}
	var tried []string
	if existing, ok := v.(schema.Existing); ok {
		for _, alias := range existing.Aliases() {
			if present[alias.Column] {
				return alias.Column, nil
			}
			tried = append(tried, alias.Column)
		}
	} else {
		if present[v.Name()] {
			return v.Name(), nil
		}
		tried = append(tried, v.Name())
	}
	return "", fmt.Errorf("%w: %s (tried %v, grid has %v)",
		ErrGridFieldMissing, v.Name(), tried, names)
}

func (s *SelectiveGridSource) coord(grid GridFile, name string) ([]float64, error) {
	v, err := s.loadingSet().Get(name)
	if err != nil {
		return nil, err
	}
	field, err := resolveGridField(grid, v)
	if err != nil {
		return nil, err
	}
	return grid.ReadField(field)
}

func (s *SelectiveGridSource) loadingSet() *schema.Set {
	return s.variables.LoadingSet()
}

// Select fits the nearest-neighbor structure on the grid coordinates,
// queries it with the observation points and returns the union mask of all
// selected cells plus the per-observation match. Cells outside the lat/lon
// extents implied by the constraints never enter the search.
func (s *SelectiveGridSource) Select(grid GridFile, obs *storer.Storer, constraints *filtering.Constraints) (*Mask, Match, error) {
	loading := s.loadingSet()
	gridLat, err := s.coord(grid, loading.LatitudeName())
	if err != nil {
		return nil, Match{}, err
	}
	gridLon, err := s.coord(grid, loading.LongitudeName())
	if err != nil {
		return nil, Match{}, err
	}

	jdm, idm := grid.Dims()
	if !s.fitted {
		searchable := NewEmptyMask(jdm, idm)
		if constraints != nil {
			restrictToExtremes(searchable, constraints, loading, gridLat, gridLon)
		}
		if err := s.strategy.Fit(gridLat, gridLon, searchable); err != nil {
			return nil, Match{}, err
		}
		s.fitted = true
	}

	obsLat, err := obs.Frame().Column(obs.Variables().LatitudeName())
	if err != nil {
		return nil, Match{}, err
	}
	obsLon, err := obs.Frame().Column(obs.Variables().LongitudeName())
	if err != nil {
		return nil, Match{}, err
	}
	flats, err := s.strategy.Query(obsLat.Floats(), obsLon.Floats())
	if err != nil {
		return nil, Match{}, err
	}

	mask := NewMask(jdm, idm)
	for _, flat := range flats {
		mask.Set(flat)
	}
	match, err := NewMatch(obs.Frame().Index(), flats)
	if err != nil {
		return nil, Match{}, err
	}
	return mask, match, nil
}

func restrictToExtremes(mask *Mask, constraints *filtering.Constraints, set *schema.Set, lat, lon []float64) {
	latMin, latMax := constraints.Extremes(set.LatitudeName(),
		table.FloatVal(-90), table.FloatVal(90))
	lonMin, lonMax := constraints.Extremes(set.LongitudeName(),
		table.FloatVal(-180), table.FloatVal(180))
	inRange := make([]bool, len(lat))
	for i := range lat {
		inRange[i] = lat[i] >= latMin.F && lat[i] <= latMax.F &&
			lon[i] >= lonMin.F && lon[i] <= lonMax.F
	}
	// Shapes agree by construction.
	_ = mask.IntersectValues(inRange)
}

// LoadDate processes one simulation file: slices the reference observations
// to the file's date, selects and loads the nearest cells, and returns the
// loaded rows re-keyed onto the observation index. A date with no matching
// observations returns nil.
func (s *SelectiveGridSource) LoadDate(file DatedGrid, reference *storer.Storer, constraints *filtering.Constraints) (*table.Frame, error) {
	slice, err := reference.SliceOnDates(file.Date, file.Date)
	if err != nil {
		return nil, err
	}
	if slice.Empty() {
		s.logger.Debug("no observations for simulation date, skipping",
			"date", file.Date.Format("2006-01-02"))
		return nil, nil
	}
	obs := slice.Storer()

	mask, match, err := s.Select(file.Grid, obs, constraints)
	if err != nil {
		return nil, err
	}
	s.logger.Info("selected simulation cells",
		"date", file.Date.Format("2006-01-02"),
		"observations", obs.NumRows(),
		"cells", len(mask.FlatIndex()),
	)

	frame, err := s.loadMasked(file, mask)
	if err != nil {
		return nil, err
	}
	if constraints != nil {
		if frame, err = constraints.Apply(frame); err != nil {
			return nil, err
		}
	}
	return match.Apply(frame)
}

// loadMasked reads only the masked cells of every declared variable, one
// row per (level, cell) pair, indexed by flat cell index.
func (s *SelectiveGridSource) loadMasked(file DatedGrid, mask *Mask) (*table.Frame, error) {
	grid := file.Grid
	loading := s.loadingSet()
	flatIdx := mask.FlatIndex()
	jdm, idm := grid.Dims()
	levels := grid.Levels()
	depths, err := grid.LevelDepths()
	if err != nil {
		return nil, err
	}
	if len(depths) != levels {
		return nil, fmt.Errorf("matching: %d level depths for %d levels", len(depths), levels)
	}
	rows := levels * len(flatIdx)

	gridLat, err := s.coord(grid, loading.LatitudeName())
	if err != nil {
		return nil, err
	}
	gridLon, err := s.coord(grid, loading.LongitudeName())
	if err != nil {
		return nil, err
	}

	cols := make([]*table.Series, 0, loading.Len())
	for _, v := range loading.Elements() {
		col, err := s.loadColumn(grid, v, loading, file.Date, gridLat, gridLon, depths, flatIdx, jdm*idm, rows)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}

	frame, err := table.NewFrame(cols...)
	if err != nil {
		return nil, err
	}
	index := make([]int, 0, rows)
	for level := 0; level < levels; level++ {
		index = append(index, flatIdx...)
	}
	return frame.WithIndex(index)
}

func (s *SelectiveGridSource) loadColumn(
	grid GridFile,
	v schema.Var,
	loading *schema.Set,
	date time.Time,
	gridLat, gridLon, depths []float64,
	flatIdx []int,
	cellsPerLevel, rows int,
) (*table.Series, error) {
	levels := len(depths)
	perLevelFloat := func(fn func(level int, flat int) float64) *table.Series {
		vals := make([]float64, 0, rows)
		for level := 0; level < levels; level++ {
			for _, flat := range flatIdx {
				vals = append(vals, fn(level, flat))
			}
		}
		return table.NewFloatSeries(v.Label(), vals)
	}

	switch v.Name() {
	case loading.LatitudeName():
		return perLevelFloat(func(_, flat int) float64 { return gridLat[flat] }), nil
	case loading.LongitudeName():
		return perLevelFloat(func(_, flat int) float64 { return gridLon[flat] }), nil
	case loading.DepthName():
		return perLevelFloat(func(level, _ int) float64 { return depths[level] }), nil
	case loading.DateName():
		vals := make([]time.Time, rows)
		for i := range vals {
			vals[i] = date
		}
		return table.NewTimeSeries(v.Label(), vals), nil
	case loading.YearName():
		return constantInt(v.Label(), rows, int64(date.Year())), nil
	case loading.MonthName():
		return constantInt(v.Label(), rows, int64(date.Month())), nil
	case loading.DayName():
		return constantInt(v.Label(), rows, int64(date.Day())), nil
	case loading.ExpocodeName():
		return table.NewConstantSeries(v.Label(), rows, table.StringVal(s.provider)), nil
	}
	if name, ok := loading.ProviderName(); ok && v.Name() == name {
		return table.NewConstantSeries(v.Label(), rows, table.StringVal(s.provider)), nil
	}

	existing, ok := v.(schema.Existing)
	if !ok {
		return table.NewConstantSeries(v.Label(), rows, v.Default()), nil
	}
	field, err := resolveGridField(grid, existing)
	if err != nil {
		// A payload variable absent from the grid file is filled with its
		// default, like any absent alias in a flat file.
		return table.NewConstantSeries(v.Label(), rows, v.Default()), nil
	}
	data, err := grid.ReadField(field)
	if err != nil {
		return nil, err
	}
	switch len(data) {
	case cellsPerLevel:
		return perLevelFloat(func(_, flat int) float64 { return data[flat] }), nil
	case levels * cellsPerLevel:
		return perLevelFloat(func(level, flat int) float64 {
			return data[level*cellsPerLevel+flat]
		}), nil
	default:
		return nil, fmt.Errorf("matching: field %q has %d values, want %d or %d",
			field, len(data), cellsPerLevel, levels*cellsPerLevel)
	}
}

func constantInt(label string, n int, v int64) *table.Series {
	vals := make([]int64, n)
	for i := range vals {
		vals[i] = v
	}
	return table.NewIntSeries(label, vals)
}

// LoadAll runs LoadDate over every simulation file, concatenates the
// matched frames preserving the observation index and realizes the declared
// derived variables, dropping the variables kept only as their inputs.
func (s *SelectiveGridSource) LoadAll(files []DatedGrid, reference *storer.Storer, constraints *filtering.Constraints) (*storer.Storer, error) {
	var combined *table.Frame
	for _, file := range files {
		frame, err := s.LoadDate(file, reference, constraints)
		if err != nil {
			return nil, err
		}
		if frame == nil {
			continue
		}
		if combined == nil {
			combined = frame
			continue
		}
		if combined, err = combined.Concat(frame); err != nil {
			return nil, err
		}
	}
	if combined == nil {
		return nil, fmt.Errorf("matching: no simulation file matched any observation")
	}

	loading := s.loadingSet()
	st, err := storer.New(combined, loading, s.category, []string{s.provider})
	if err != nil {
		return nil, err
	}
	if err := st.InsertAllFeatures(s.variables); err != nil {
		return nil, err
	}
	if err := st.PopTemporaries(); err != nil {
		return nil, err
	}
	return st, nil
}
