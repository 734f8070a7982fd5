package watermass

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ocean-bgc-etl/internal/schema"
	"github.com/couchcryptid/ocean-bgc-etl/internal/storer"
	"github.com/couchcryptid/ocean-bgc-etl/internal/table"
)

func open() Range { return Range{Min: math.NaN(), Max: math.NaN()} }

func TestNewDerivesAcronym(t *testing.T) {
	wm := New("Atlantic Water", "", open(), open(), open())
	assert.Equal(t, "AW", wm.Acronym)

	wm = New("Modified North Atlantic Water", "MNAW", open(), open(), open())
	assert.Equal(t, "MNAW", wm.Acronym)
}

func testStorer(t *testing.T, ptemp, psal, sigt []float64) *storer.Storer {
	t.Helper()
	flt := func(name string) schema.Var {
		return schema.NewTemplate(name, "[]", table.Float, table.NaN(), "%-12s", "%12.6f").NotInFile()
	}
	num := func(name string) schema.Var {
		return schema.NewTemplate(name, "[]", table.Int, table.IntVal(0), "%-6s", "%6d").NotInFile()
	}
	str := func(name string) schema.Var {
		return schema.NewTemplate(name, "[]", table.String, table.StringVal(""), "%-10s", "%10s").NotInFile()
	}
	set, err := schema.NewSet(schema.Roles{
		Expocode:  str("EXPOCODE"),
		Date:      schema.NewTemplate("DATE", "[]", table.Time, table.TimeVal(time.Time{}), "%-12s", "%12s").NotInFile(),
		Year:      num("YEAR"),
		Month:     num("MONTH"),
		Day:       num("DAY"),
		Latitude:  flt("LATITUDE"),
		Longitude: flt("LONGITUDE"),
		Depth:     flt("DEPH"),
	}, flt("PTEMP"), flt("PSAL"), flt("SIGT"))
	require.NoError(t, err)

	n := len(ptemp)
	f, err := table.NewFrame(
		table.NewStringSeries("EXPOCODE", make([]string, n)),
		table.NewConstantSeries("DATE", n, table.TimeVal(time.Time{})),
		table.NewIntSeries("YEAR", make([]int64, n)),
		table.NewIntSeries("MONTH", make([]int64, n)),
		table.NewIntSeries("DAY", make([]int64, n)),
		table.NewFloatSeries("LATITUDE", make([]float64, n)),
		table.NewFloatSeries("LONGITUDE", make([]float64, n)),
		table.NewFloatSeries("DEPH", make([]float64, n)),
		table.NewFloatSeries("PTEMP", ptemp),
		table.NewFloatSeries("PSAL", psal),
		table.NewFloatSeries("SIGT", sigt),
	)
	require.NoError(t, err)
	st, err := storer.New(f, set, "in_situ", []string{"GLODAP"})
	require.NoError(t, err)
	return st
}

func TestExtractFromStorer(t *testing.T) {
	st := testStorer(t,
		[]float64{3, 8, 5, math.NaN()},
		[]float64{34.9, 35.2, 36.5, 35.0},
		[]float64{27.7, 27.8, 26.0, 27.7},
	)

	t.Run("all three ranges bound the selection", func(t *testing.T) {
		wm := New("Norwegian Sea Deep Water", "NSDW",
			Range{Min: 0, Max: 6},
			Range{Min: 34.5, Max: 35.5},
			Range{Min: 27.5, Max: 28})
		out, err := wm.ExtractFromStorer(st, "PTEMP", "PSAL", "SIGT")
		require.NoError(t, err)
		require.Equal(t, 1, out.NumRows())
		assert.Equal(t, []int{0}, out.Frame().Index())
	})

	t.Run("open sides keep rows with defined values", func(t *testing.T) {
		wm := New("Warm Water", "WW",
			Range{Min: 4, Max: math.NaN()}, open(), open())
		out, err := wm.ExtractFromStorer(st, "PTEMP", "PSAL", "SIGT")
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, out.Frame().Index())
	})

	t.Run("rows with NaN coordinates never match", func(t *testing.T) {
		wm := New("Any Water", "ANY", open(), open(), open())
		out, err := wm.ExtractFromStorer(st, "PTEMP", "PSAL", "SIGT")
		require.NoError(t, err)
		assert.Equal(t, 3, out.NumRows())
	})
}
