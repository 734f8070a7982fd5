package interpolation

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

func simSet(t *testing.T) *schema.Set {
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
	set, err := schema.NewSet(schema.Roles{
		Expocode: str("EXPOCODE"),
		Date: schema.NewTemplate("DATE", "[]", table.Time, table.TimeVal(time.Time{}),
			"%-12s", "%12s").NotInFile(),
		Year:      num("YEAR"),
		Month:     num("MONTH"),
		Day:       num("DAY"),
		Latitude:  flt("LATITUDE", "[deg_N]"),
		Longitude: flt("LONGITUDE", "[deg_E]"),
		Depth:     flt("DEPH", "[m]"),
	}, flt("TEMP", "[deg_C]"))
	require.NoError(t, err)
	return set
}

// profileStorer builds a simulation storer with one three-level profile at
// index 10: depths -5, -10, -20 with TEMP 15, 10, 5.
func profileStorer(t *testing.T) *storer.Storer {
	t.Helper()
	d := time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC)
	f, err := table.NewFrame(
		table.NewStringSeries("EXPOCODE", []string{"sim", "sim", "sim"}),
		table.NewTimeSeries("DATE", []time.Time{d, d, d}),
		table.NewIntSeries("YEAR", []int64{2020, 2020, 2020}),
		table.NewIntSeries("MONTH", []int64{3, 3, 3}),
		table.NewIntSeries("DAY", []int64{1, 1, 1}),
		table.NewFloatSeries("LATITUDE", []float64{50, 50, 50}),
		table.NewFloatSeries("LONGITUDE", []float64{0, 0, 0}),
		table.NewFloatSeries("DEPH", []float64{-5, -10, -20}),
		table.NewFloatSeries("TEMP", []float64{15, 10, 5}),
	)
	require.NoError(t, err)
	indexed, err := f.WithIndex([]int{10, 10, 10})
	require.NoError(t, err)
	s, err := storer.New(indexed, simSet(t), "simulation", []string{"HYCOM"})
	require.NoError(t, err)
	return s
}

func valueAt(t *testing.T, row []table.Value, s *storer.Storer, label string) table.Value {
	t.Helper()
	for i, l := range s.Frame().Labels() {
		if l == label {
			return row[i]
		}
	}
	t.Fatalf("no column %q", label)
	return table.Value{}
}

func TestInterpolateRowBoundaryPolicy(t *testing.T) {
	sim := profileStorer(t)
	ip, err := New(sim, []string{"TEMP"}, Linear)
	require.NoError(t, err)

	t.Run("beyond deepest level clamps to the deepest row", func(t *testing.T) {
		row, err := ip.InterpolateRow(10, -30)
		require.NoError(t, err)
		assert.Equal(t, -30.0, valueAt(t, row, sim, "DEPH").F)
		assert.Equal(t, 5.0, valueAt(t, row, sim, "TEMP").F)
	})

	t.Run("shallower than the first level clamps to the shallowest row", func(t *testing.T) {
		row, err := ip.InterpolateRow(10, -2)
		require.NoError(t, err)
		assert.Equal(t, -2.0, valueAt(t, row, sim, "DEPH").F)
		assert.Equal(t, 15.0, valueAt(t, row, sim, "TEMP").F)
	})

	t.Run("NaN depth passes through with NaN payload", func(t *testing.T) {
		row, err := ip.InterpolateRow(10, math.NaN())
		require.NoError(t, err)
		assert.True(t, math.IsNaN(valueAt(t, row, sim, "DEPH").F))
		assert.True(t, math.IsNaN(valueAt(t, row, sim, "TEMP").F))
		assert.Equal(t, "sim", valueAt(t, row, sim, "EXPOCODE").S)
		assert.Equal(t, 50.0, valueAt(t, row, sim, "LATITUDE").F)
	})

	t.Run("in-range depth interpolates linearly", func(t *testing.T) {
		row, err := ip.InterpolateRow(10, -7.5)
		require.NoError(t, err)
		assert.Equal(t, -7.5, valueAt(t, row, sim, "DEPH").F)
		assert.InDelta(t, 12.5, valueAt(t, row, sim, "TEMP").F, 1e-9)
	})

	t.Run("constant columns come from the first profile row", func(t *testing.T) {
		row, err := ip.InterpolateRow(10, -15)
		require.NoError(t, err)
		assert.Equal(t, int64(2020), valueAt(t, row, sim, "YEAR").I)
		assert.Equal(t, 50.0, valueAt(t, row, sim, "LATITUDE").F)
	})
}

func TestInterpolateStorer(t *testing.T) {
	sim := profileStorer(t)
	ip, err := New(sim, []string{"TEMP"}, Linear)
	require.NoError(t, err)

	obsFrame, err := table.NewFrame(
		table.NewStringSeries("EXPOCODE", []string{"c1", "c2"}),
		table.NewTimeSeries("DATE", []time.Time{
			time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC),
		}),
		table.NewIntSeries("YEAR", []int64{2020, 2020}),
		table.NewIntSeries("MONTH", []int64{3, 3}),
		table.NewIntSeries("DAY", []int64{1, 1}),
		table.NewFloatSeries("LATITUDE", []float64{50, 49}),
		table.NewFloatSeries("LONGITUDE", []float64{0, 1}),
		table.NewFloatSeries("DEPH", []float64{-7.5, -12}),
		table.NewFloatSeries("TEMP", []float64{12.2, 8.4}),
	)
	require.NoError(t, err)
	// Index 10 matches the simulation profile; index 99 has no profile and
	// must be skipped.
	indexed, err := obsFrame.WithIndex([]int{10, 99})
	require.NoError(t, err)
	obs, err := storer.New(indexed, simSet(t), "in_situ", []string{"GLODAP"})
	require.NoError(t, err)

	out, err := ip.InterpolateStorer(obs)
	require.NoError(t, err)

	assert.Equal(t, 1, out.NumRows())
	assert.Equal(t, []int{10}, out.Frame().Index())
	assert.Equal(t, "simulation", out.Category())
	assert.Equal(t, []string{"HYCOM"}, out.Providers())

	temp, err := out.Frame().Column("TEMP")
	require.NoError(t, err)
	assert.InDelta(t, 12.5, temp.At(0).F, 1e-9)
}
