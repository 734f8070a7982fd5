package matching

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ocean-bgc-etl/internal/schema"
	"github.com/couchcryptid/ocean-bgc-etl/internal/storer"
	"github.com/couchcryptid/ocean-bgc-etl/internal/table"
)

// fakeGrid is an in-memory GridFile with fields keyed by name.
type fakeGrid struct {
	jdm, idm int
	depths   []float64
	fields   map[string][]float64
}

func (g *fakeGrid) FieldNames() []string {
	names := make([]string, 0, len(g.fields))
	for name := range g.fields {
		names = append(names, name)
	}
	return names
}

func (g *fakeGrid) Dims() (int, int)                { return g.jdm, g.idm }
func (g *fakeGrid) Levels() int                     { return len(g.depths) }
func (g *fakeGrid) LevelDepths() ([]float64, error) { return g.depths, nil }

func (g *fakeGrid) ReadField(name string) ([]float64, error) {
	data, ok := g.fields[name]
	if !ok {
		return nil, ErrGridFieldMissing
	}
	return data, nil
}

func TestMask(t *testing.T) {
	t.Run("empty mask selects everything", func(t *testing.T) {
		m := NewEmptyMask(2, 3)
		assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, m.FlatIndex())
	})

	t.Run("set and flat index ordering", func(t *testing.T) {
		m := NewMask(2, 3)
		m.Set(4)
		m.Set(1)
		assert.True(t, m.Selected(4))
		assert.False(t, m.Selected(0))
		assert.Equal(t, []int{1, 4}, m.FlatIndex())
	})

	t.Run("intersect", func(t *testing.T) {
		a := NewEmptyMask(2, 2)
		b := NewMask(2, 2)
		b.Set(3)
		require.NoError(t, a.Intersect(b))
		assert.Equal(t, []int{3}, a.FlatIndex())
	})

	t.Run("intersect shape mismatch", func(t *testing.T) {
		a := NewEmptyMask(2, 2)
		b := NewEmptyMask(2, 3)
		assert.ErrorIs(t, a.Intersect(b), ErrShapeMismatch)
		assert.ErrorIs(t, a.IntersectValues(make([]bool, 5)), ErrShapeMismatch)
	})

	t.Run("intersect values", func(t *testing.T) {
		m := NewEmptyMask(2, 2)
		require.NoError(t, m.IntersectValues([]bool{true, false, false, true}))
		assert.Equal(t, []int{0, 3}, m.FlatIndex())
	})
}

func TestMatchApply(t *testing.T) {
	// Two cells, two levels each, indexed by flat cell.
	sim, err := table.NewFrame(
		table.NewFloatSeries("DEPH", []float64{-5, -5, -10, -10}),
		table.NewFloatSeries("TEMP", []float64{1, 2, 5, 6}),
	)
	require.NoError(t, err)
	sim, err = sim.WithIndex([]int{7, 8, 7, 8})
	require.NoError(t, err)

	t.Run("cell rows duplicated per observation", func(t *testing.T) {
		match, err := NewMatch([]int{10, 11}, []int{7, 7})
		require.NoError(t, err)

		out, err := match.Apply(sim)
		require.NoError(t, err)
		assert.Equal(t, []int{10, 10, 11, 11}, out.Index())

		temp, err := out.Column("TEMP")
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 5, 1, 5}, temp.Floats())
	})

	t.Run("length mismatch", func(t *testing.T) {
		_, err := NewMatch([]int{10}, []int{7, 8})
		assert.Error(t, err)
	})

	t.Run("cell absent from frame", func(t *testing.T) {
		match, err := NewMatch([]int{10}, []int{99})
		require.NoError(t, err)
		_, err = match.Apply(sim)
		assert.Error(t, err)
	})
}

func TestNearestNeighborStrategy(t *testing.T) {
	lat := []float64{10, 10, 30, 30}
	lon := []float64{20, 40, 20, 40}

	t.Run("picks the closest cell", func(t *testing.T) {
		s := &NearestNeighborStrategy{}
		require.NoError(t, s.Fit(lat, lon, nil))

		got, err := s.Query([]float64{10.1, 29.9}, []float64{20.1, 39.9})
		require.NoError(t, err)
		assert.Equal(t, []int{0, 3}, got)
	})

	t.Run("masked cells never win", func(t *testing.T) {
		mask := NewEmptyMask(2, 2)
		require.NoError(t, mask.IntersectValues([]bool{false, true, true, true}))

		s := &NearestNeighborStrategy{}
		require.NoError(t, s.Fit(lat, lon, mask))

		got, err := s.Query([]float64{10.1}, []float64{20.1})
		require.NoError(t, err)
		assert.Equal(t, []int{1}, got)
	})

	t.Run("nan coordinates skipped", func(t *testing.T) {
		s := &NearestNeighborStrategy{}
		nanLat := []float64{table.NaN().F, 10}
		require.NoError(t, s.Fit(nanLat, []float64{20, 20}, nil))

		got, err := s.Query([]float64{10}, []float64{20})
		require.NoError(t, err)
		assert.Equal(t, []int{1}, got)
	})

	t.Run("no usable cells", func(t *testing.T) {
		s := &NearestNeighborStrategy{}
		mask := NewMask(2, 2)
		assert.ErrorIs(t, s.Fit(lat, lon, mask), ErrNoGridCells)
	})

	t.Run("query before fit", func(t *testing.T) {
		s := &NearestNeighborStrategy{}
		_, err := s.Query([]float64{10}, []float64{20})
		assert.Error(t, err)
	})
}

func simRoles(t *testing.T) schema.Roles {
	t.Helper()
	str := func(name string) schema.Var {
		return schema.NewTemplate(name, "[]", table.String, table.StringVal(""), "%-15s", "%15s").NotInFile()
	}
	num := func(name string) schema.Var {
		return schema.NewTemplate(name, "[]", table.Int, table.IntVal(0), "%-6s", "%6d").NotInFile()
	}
	flt := func(name, unit string) schema.Var {
		return schema.NewTemplate(name, unit, table.Float, table.NaN(), "%-12s", "%12.6f").NotInFile()
	}
	return schema.Roles{
		Provider: str("PROVIDER"),
		Expocode: str("EXPOCODE"),
		Date: schema.NewTemplate("DATE", "[]", table.Time, table.TimeVal(time.Time{}),
			"%-12s", "%12s").NotInFile(),
		Year:      num("YEAR"),
		Month:     num("MONTH"),
		Day:       num("DAY"),
		Latitude:  flt("LATITUDE", "[deg_N]"),
		Longitude: flt("LONGITUDE", "[deg_E]"),
		Depth:     flt("DEPH", "[m]"),
	}
}

func simSet(t *testing.T) *schema.Set {
	t.Helper()
	temp, err := schema.NewTemplate("TEMP", "[deg_C]", table.Float, table.NaN(),
		"%-12s", "%12.6f").InFileAs(schema.NewAlias("temp"))
	require.NoError(t, err)
	tempK := schema.NewFeature(
		schema.NewTemplate("TEMPK", "[K]", table.Float, table.NaN(), "%-12s", "%12.6f"),
		[]string{"TEMP"},
		func(inputs ...[]float64) ([]float64, error) {
			out := make([]float64, len(inputs[0]))
			for i, v := range inputs[0] {
				out[i] = v + 273.15
			}
			return out, nil
		},
	)

	set, err := schema.NewSet(simRoles(t), temp, tempK)
	require.NoError(t, err)
	return set
}

func fractionSimSet(t *testing.T) *schema.Set {
	t.Helper()
	dia, err := schema.NewTemplate("DIAC", "[mg/m3]", table.Float, table.NaN(),
		"%-12s", "%12.6f").InFileAs(schema.NewAlias("dia"))
	require.NoError(t, err)
	fla, err := schema.NewTemplate("FLAC", "[mg/m3]", table.Float, table.NaN(),
		"%-12s", "%12.6f").InFileAs(schema.NewAlias("fla"))
	require.NoError(t, err)
	cphl := schema.NewFeature(
		schema.NewTemplate("CPHL", "[mg/m3]", table.Float, table.NaN(), "%-12s", "%12.6f"),
		[]string{"DIAC", "FLAC"},
		func(inputs ...[]float64) ([]float64, error) {
			out := make([]float64, len(inputs[0]))
			for i := range out {
				out[i] = inputs[0][i] + inputs[1][i]
			}
			return out, nil
		},
	)

	set, err := schema.NewSet(simRoles(t), dia, fla, cphl)
	require.NoError(t, err)
	require.NoError(t, set.MarkTemporary("DIAC", "FLAC"))
	return set
}

func obsStorer(t *testing.T, set *schema.Set, dates []time.Time, lat, lon []float64) *storer.Storer {
	t.Helper()
	n := len(lat)
	years := make([]int64, n)
	months := make([]int64, n)
	days := make([]int64, n)
	providers := make([]string, n)
	expocodes := make([]string, n)
	depth := make([]float64, n)
	temp := make([]float64, n)
	tempK := make([]float64, n)
	for i, d := range dates {
		years[i] = int64(d.Year())
		months[i] = int64(d.Month())
		days[i] = int64(d.Day())
		providers[i] = "GLODAP"
		expocodes[i] = "EXPO1"
		depth[i] = -1
		temp[i] = 12
		tempK[i] = 285.15
	}
	f, err := table.NewFrame(
		table.NewStringSeries("PROVIDER", providers),
		table.NewStringSeries("EXPOCODE", expocodes),
		table.NewTimeSeries("DATE", dates),
		table.NewIntSeries("YEAR", years),
		table.NewIntSeries("MONTH", months),
		table.NewIntSeries("DAY", days),
		table.NewFloatSeries("LATITUDE", lat),
		table.NewFloatSeries("LONGITUDE", lon),
		table.NewFloatSeries("DEPH", depth),
		table.NewFloatSeries("TEMP", temp),
		table.NewFloatSeries("TEMPK", tempK),
	)
	require.NoError(t, err)
	s, err := storer.New(f, set, "in_situ", []string{"GLODAP"})
	require.NoError(t, err)
	return s
}

func testGrid() *fakeGrid {
	return &fakeGrid{
		jdm:    2,
		idm:    2,
		depths: []float64{-5, -10},
		fields: map[string][]float64{
			"LATITUDE":  {10, 10, 30, 30},
			"LONGITUDE": {20, 40, 20, 40},
			"temp": {
				1, 2, 3, 4,
				5, 6, 7, 8,
			},
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSelectiveGridSourceLoadAll(t *testing.T) {
	set := simSet(t)
	d1 := time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2020, time.March, 2, 0, 0, 0, 0, time.UTC)

	obs := obsStorer(t, set,
		[]time.Time{d1, d1, d2},
		[]float64{10.1, 29.9, 50},
		[]float64{20.1, 39.9, 50},
	)

	src := NewSelectiveGridSource(set, "simulation", "HYCOM", discardLogger())
	files := []DatedGrid{{Date: d1, Grid: testGrid()}}

	out, err := src.LoadAll(files, obs, nil)
	require.NoError(t, err)

	// Observation 0 pairs with cell 0, observation 1 with cell 3; the grid
	// has two levels, so each contributes two rows. Observation 2 has no
	// simulation file on its date.
	assert.Equal(t, "simulation", out.Category())
	assert.Equal(t, []string{"HYCOM"}, out.Providers())
	assert.Equal(t, []int{0, 0, 1, 1}, out.Frame().Index())

	temp, err := out.Frame().Column("TEMP")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 5, 4, 8}, temp.Floats())

	deph, err := out.Frame().Column("DEPH")
	require.NoError(t, err)
	assert.Equal(t, []float64{-5, -10, -5, -10}, deph.Floats())

	lat, err := out.Frame().Column("LATITUDE")
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 10, 30, 30}, lat.Floats())

	// The derived variable is computed on the loaded columns.
	tempK, err := out.Frame().Column("TEMPK")
	require.NoError(t, err)
	assert.Equal(t, []float64{274.15, 278.15, 277.15, 281.15}, tempK.Floats())

	dates, err := out.Frame().Column("DATE")
	require.NoError(t, err)
	assert.Equal(t, d1, dates.Times()[0])
}

func TestSelectiveGridSourceStripsFeatureInputs(t *testing.T) {
	d1 := time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC)
	obs := obsStorer(t, simSet(t), []time.Time{d1}, []float64{10.1}, []float64{20.1})

	grid := testGrid()
	grid.fields["dia"] = []float64{
		0.4, 0.5, 0.6, 0.7,
		1.0, 1.1, 1.2, 1.3,
	}
	grid.fields["fla"] = []float64{
		0.1, 0.2, 0.3, 0.4,
		2.0, 2.1, 2.2, 2.3,
	}

	src := NewSelectiveGridSource(fractionSimSet(t), "simulation", "HYCOM", discardLogger())
	out, err := src.LoadAll([]DatedGrid{{Date: d1, Grid: grid}}, obs, nil)
	require.NoError(t, err)

	// The observation pairs with cell 0 on both levels.
	cphl, err := out.Frame().Column("CPHL")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, cphl.At(0).F, 1e-9)
	assert.InDelta(t, 3.0, cphl.At(1).F, 1e-9)

	// The fractions fed the sum and do not survive into the matched storer.
	assert.False(t, out.Variables().Has("DIAC"))
	assert.False(t, out.Variables().Has("FLAC"))
	assert.False(t, out.Frame().HasColumn("DIAC"))
	assert.False(t, out.Frame().HasColumn("FLAC"))
}

func TestSelectiveGridSourceNoMatches(t *testing.T) {
	set := simSet(t)
	d2 := time.Date(2020, time.March, 2, 0, 0, 0, 0, time.UTC)
	obs := obsStorer(t, set, []time.Time{d2}, []float64{50}, []float64{50})

	src := NewSelectiveGridSource(set, "simulation", "HYCOM", discardLogger())
	files := []DatedGrid{{Date: time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC), Grid: testGrid()}}

	_, err := src.LoadAll(files, obs, nil)
	assert.Error(t, err)
}

func TestSelectiveGridSourceMissingCoordinateField(t *testing.T) {
	set := simSet(t)
	d1 := time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC)
	obs := obsStorer(t, set, []time.Time{d1}, []float64{10}, []float64{20})

	grid := testGrid()
	delete(grid.fields, "LONGITUDE")

	src := NewSelectiveGridSource(set, "simulation", "HYCOM", discardLogger())
	_, err := src.LoadDate(DatedGrid{Date: d1, Grid: grid}, obs, nil)
	assert.ErrorIs(t, err, ErrGridFieldMissing)
}
