package loaders

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ocean-bgc-etl/internal/filtering"
	"github.com/couchcryptid/ocean-bgc-etl/internal/schema"
	"github.com/couchcryptid/ocean-bgc-etl/internal/table"
)

// mapSource is an in-memory source for exercising buildFrame directly.
type mapSource struct {
	floats  map[string][]float64
	strings map[string][]string
	n       int
}

func (s *mapSource) NumRows() int { return s.n }

func (s *mapSource) HasColumn(name string) bool {
	if _, ok := s.floats[name]; ok {
		return true
	}
	_, ok := s.strings[name]
	return ok
}

func (s *mapSource) FloatColumn(name string) ([]float64, error) {
	col, ok := s.floats[name]
	if !ok {
		return nil, fmt.Errorf("no column %q", name)
	}
	return col, nil
}

func (s *mapSource) StringColumn(name string) ([]string, error) {
	col, ok := s.strings[name]
	if !ok {
		return nil, fmt.Errorf("no column %q", name)
	}
	return col, nil
}

func floatVar(t *testing.T, name string, aliases ...schema.Alias) schema.Existing {
	t.Helper()
	v, err := schema.NewTemplate(name, "[]", table.Float, table.NaN(), "%-12s", "%12.6f").
		InFileAs(aliases...)
	require.NoError(t, err)
	return v
}

func singleVarSet(t *testing.T, extra schema.Var) *schema.Set {
	t.Helper()
	str := func(name string) schema.Var {
		return schema.NewTemplate(name, "[]", table.String, table.StringVal(""), "%-15s", "%15s").NotInFile()
	}
	num := func(name string) schema.Var {
		return schema.NewTemplate(name, "[]", table.Int, table.IntVal(0), "%-6s", "%6d").NotInFile()
	}
	flt := func(name string) schema.Var {
		return schema.NewTemplate(name, "[]", table.Float, table.NaN(), "%-12s", "%12.6f").NotInFile()
	}
	set, err := schema.NewSet(schema.Roles{
		Provider: str("PROVIDER"),
		Expocode: str("EXPOCODE"),
		Date: schema.NewTemplate("DATE", "[]", table.Time, table.TimeVal(time.Time{}),
			"%-12s", "%12s").NotInFile(),
		Year:      num("YEAR"),
		Month:     num("MONTH"),
		Day:       num("DAY"),
		Latitude:  flt("LATITUDE"),
		Longitude: flt("LONGITUDE"),
		Depth:     flt("DEPH"),
	}, extra)
	require.NoError(t, err)
	return set
}

func TestBuildFrameAliasResolution(t *testing.T) {
	t.Run("first present alias wins", func(t *testing.T) {
		v := floatVar(t, "TEMP", schema.NewAlias("temp1"), schema.NewAlias("temp2"))
		src := &mapSource{
			n: 2,
			floats: map[string][]float64{
				"temp1": {1, 2},
				"temp2": {10, 20},
			},
		}
		frame, err := buildFrame(src, singleVarSet(t, v))
		require.NoError(t, err)

		col, err := frame.Column("TEMP")
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2}, col.Floats())
	})

	t.Run("later alias used when earlier absent", func(t *testing.T) {
		v := floatVar(t, "TEMP", schema.NewAlias("temp1"), schema.NewAlias("temp2"))
		src := &mapSource{
			n:      2,
			floats: map[string][]float64{"temp2": {10, 20}},
		}
		frame, err := buildFrame(src, singleVarSet(t, v))
		require.NoError(t, err)

		col, err := frame.Column("TEMP")
		require.NoError(t, err)
		assert.Equal(t, []float64{10, 20}, col.Floats())
	})

	t.Run("no alias present falls back to default", func(t *testing.T) {
		v := floatVar(t, "TEMP", schema.NewAlias("temp1"))
		src := &mapSource{n: 3, floats: map[string][]float64{}}
		frame, err := buildFrame(src, singleVarSet(t, v))
		require.NoError(t, err)

		col, err := frame.Column("TEMP")
		require.NoError(t, err)
		for row := 0; row < 3; row++ {
			assert.True(t, col.IsNaN(row))
		}
	})

	t.Run("rejected flags take the default, rows stay", func(t *testing.T) {
		v := floatVar(t, "PSAL", schema.NewFlaggedAlias("psal", "psal_flag", []float64{1, 2}))
		src := &mapSource{
			n: 3,
			floats: map[string][]float64{
				"psal":      {35.1, 34.0, 33.5},
				"psal_flag": {1, 9, 2},
			},
		}
		frame, err := buildFrame(src, singleVarSet(t, v))
		require.NoError(t, err)

		col, err := frame.Column("PSAL")
		require.NoError(t, err)
		assert.Equal(t, 3, frame.NumRows())
		assert.Equal(t, 35.1, col.At(0).F)
		assert.True(t, col.IsNaN(1))
		assert.Equal(t, 33.5, col.At(2).F)
	})

	t.Run("missing flag column keeps all values", func(t *testing.T) {
		v := floatVar(t, "PSAL", schema.NewFlaggedAlias("psal", "psal_flag", []float64{1}))
		src := &mapSource{
			n:      2,
			floats: map[string][]float64{"psal": {35.1, 34.0}},
		}
		frame, err := buildFrame(src, singleVarSet(t, v))
		require.NoError(t, err)

		col, err := frame.Column("PSAL")
		require.NoError(t, err)
		assert.Equal(t, []float64{35.1, 34.0}, col.Floats())
	})
}

func TestRemovePolicies(t *testing.T) {
	frame := func(t *testing.T, temp, psal []float64) *table.Frame {
		t.Helper()
		f, err := table.NewFrame(
			table.NewFloatSeries("TEMP", temp),
			table.NewFloatSeries("PSAL", psal),
		)
		require.NoError(t, err)
		return f
	}
	nan := math.NaN()

	t.Run("any-nan drops rows missing one value", func(t *testing.T) {
		f := frame(t, []float64{1, nan, 3}, []float64{35, 34, nan})
		out := removeAnyNaNRows(f, []string{"TEMP", "PSAL"})
		assert.Equal(t, 1, out.NumRows())
		assert.Equal(t, []int{0}, out.Index())
	})

	t.Run("all-nan keeps rows with at least one value", func(t *testing.T) {
		f := frame(t, []float64{1, nan, nan}, []float64{nan, 34, nan})
		out := removeAllNaNRows(f, []string{"TEMP", "PSAL"})
		assert.Equal(t, []int{0, 1}, out.Index())
	})

	t.Run("no labels is the identity", func(t *testing.T) {
		f := frame(t, []float64{nan}, []float64{nan})
		assert.Equal(t, 1, removeAnyNaNRows(f, nil).NumRows())
		assert.Equal(t, 1, removeAllNaNRows(f, nil).NumRows())
	})
}

func csvSet(t *testing.T, extras ...schema.Var) *schema.Set {
	t.Helper()
	str := func(name, alias string) schema.Var {
		v, err := schema.NewTemplate(name, "[]", table.String, table.StringVal(""), "%-15s", "%15s").
			InFileAs(schema.NewAlias(alias))
		require.NoError(t, err)
		return v
	}
	num := func(name, alias string) schema.Var {
		v, err := schema.NewTemplate(name, "[]", table.Int, table.IntVal(0), "%-6s", "%6d").
			InFileAs(schema.NewAlias(alias))
		require.NoError(t, err)
		return v
	}
	flt := func(name, alias string) schema.Existing {
		v, err := schema.NewTemplate(name, "[]", table.Float, table.NaN(), "%-12s", "%12.6f").
			InFileAs(schema.NewAlias(alias))
		require.NoError(t, err)
		return v
	}
	set, err := schema.NewSet(schema.Roles{
		Provider: schema.NewTemplate("PROVIDER", "[]", table.String, table.StringVal(""),
			"%-15s", "%15s").NotInFile(),
		Expocode: str("EXPOCODE", "expocode"),
		Date: schema.NewTemplate("DATE", "[]", table.Time, table.TimeVal(time.Time{}),
			"%-12s", "%12s").NotInFile(),
		Year:      num("YEAR", "year"),
		Month:     num("MONTH", "month"),
		Day:       num("DAY", "day"),
		Latitude:  flt("LATITUDE", "latitude"),
		Longitude: flt("LONGITUDE", "longitude"),
		Depth:     flt("DEPH", "depth"),
	}, extras...)
	require.NoError(t, err)
	return set
}

func psalVar(t *testing.T) schema.Var {
	t.Helper()
	psal, err := schema.NewTemplate("PSAL", "[psu]", table.Float, table.NaN(), "%-12s", "%12.6f").
		InFileAs(schema.NewFlaggedAlias("psal", "psal_flag", []float64{1}))
	require.NoError(t, err)
	return psal
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCSVLoaderLoad(t *testing.T) {
	content := "expocode,year,month,day,latitude,longitude,depth,psal,psal_flag\n" +
		"E1,2020,3,1,10.0,20.0,-5.0,35.1,1\n" +
		"E2,2020,3,2,11.0,21.0,-10.0,34.0,9\n" +
		"E3,2020,3,3,12.0,22.0,-15.0,NaN,1\n"
	path := writeFile(t, "obs.csv", content)

	loader := NewCSVLoader("GLODAP", "in_situ", csvSet(t, psalVar(t)), ',')
	assert.True(t, loader.IsFileValid(path))
	assert.False(t, loader.IsFileValid("obs.txt"))

	t.Run("unconstrained", func(t *testing.T) {
		st, err := loader.Load(path, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, st.NumRows())
		assert.Equal(t, "in_situ", st.Category())
		assert.Equal(t, []string{"GLODAP"}, st.Providers())

		provider, err := st.Frame().Column("PROVIDER")
		require.NoError(t, err)
		assert.Equal(t, "GLODAP", provider.At(0).S)

		dates, err := st.Frame().Column("DATE")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2020, time.March, 2, 0, 0, 0, 0, time.UTC), dates.Times()[1])

		// Row 2 carries a rejected flag, row 3 an explicit NaN cell.
		psal, err := st.Frame().Column("PSAL")
		require.NoError(t, err)
		assert.Equal(t, 35.1, psal.At(0).F)
		assert.True(t, psal.IsNaN(1))
		assert.True(t, psal.IsNaN(2))
	})

	t.Run("constrained", func(t *testing.T) {
		constraints := filtering.NewConstraints()
		constraints.AddBoundary("LATITUDE", table.FloatVal(10.5), table.FloatVal(11.5))

		st, err := loader.Load(path, constraints)
		require.NoError(t, err)
		assert.Equal(t, 1, st.NumRows())

		expocode, err := st.Frame().Column("EXPOCODE")
		require.NoError(t, err)
		assert.Equal(t, "E2", expocode.At(0).S)
	})

	t.Run("empty file", func(t *testing.T) {
		empty := writeFile(t, "empty.csv", "")
		_, err := loader.Load(empty, nil)
		assert.Error(t, err)
	})
}

func TestCSVLoaderComputesFeatures(t *testing.T) {
	dia, err := schema.NewTemplate("DIAC", "[mg/m3]", table.Float, table.NaN(), "%-12s", "%12.6f").
		InFileAs(schema.NewAlias("dia"))
	require.NoError(t, err)
	fla, err := schema.NewTemplate("FLAC", "[mg/m3]", table.Float, table.NaN(), "%-12s", "%12.6f").
		InFileAs(schema.NewAlias("fla"))
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
	set := csvSet(t, dia, fla, cphl)
	require.NoError(t, set.MarkTemporary("DIAC", "FLAC"))

	content := "expocode,year,month,day,latitude,longitude,depth,dia,fla\n" +
		"E1,2020,3,1,10.0,20.0,-5.0,0.4,0.6\n" +
		"E2,2020,3,2,11.0,21.0,-10.0,1.5,NaN\n"
	path := writeFile(t, "obs.csv", content)

	loader := NewCSVLoader("PHYTO", "in_situ", set, ',')
	st, err := loader.Load(path, nil)
	require.NoError(t, err)
	require.Equal(t, 2, st.NumRows())

	col, err := st.Frame().Column("CPHL")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, col.At(0).F, 1e-9)
	assert.True(t, col.IsNaN(1))

	// The fractions only feed the sum and do not leave the load.
	assert.False(t, st.Variables().Has("DIAC"))
	assert.False(t, st.Variables().Has("FLAC"))
	assert.False(t, st.Frame().HasColumn("DIAC"))
	assert.False(t, st.Frame().HasColumn("FLAC"))
	assert.Contains(t, st.Variables().SaveNames(), "CPHL")

	t.Run("configured set keeps the fractions for later files", func(t *testing.T) {
		assert.True(t, set.Has("DIAC"))
		assert.True(t, set.Has("FLAC"))
	})
}

func TestCSVLoaderSemicolonDelimiter(t *testing.T) {
	content := "expocode;year;month;day;latitude;longitude;depth;psal;psal_flag\n" +
		"E1;2020;3;1;10.0;20.0;-5.0;35.1;1\n"
	path := writeFile(t, "obs.csv", content)

	loader := NewCSVLoader("GLODAP", "in_situ", csvSet(t, psalVar(t)), ';')
	st, err := loader.Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, st.NumRows())

	lat, err := st.Frame().Column("LATITUDE")
	require.NoError(t, err)
	assert.Equal(t, 10.0, lat.At(0).F)
}
