package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPressure(t *testing.T) {
	feat := Pressure("DEPH", "LATITUDE")
	assert.Equal(t, "PRES", feat.Name())
	assert.Equal(t, []string{"DEPH", "LATITUDE"}, feat.RequiredInputs())

	// Check value from the UNESCO 1983 tables: 7321.45 m at 30 deg N is
	// 7500 dbar. Negative depths (depth-below-surface convention) work too.
	out, err := feat.Compute([]float64{0, 7321.45, -7321.45}, []float64{0, 30, 30})
	require.NoError(t, err)
	assert.InDelta(t, 0, out[0], 1e-9)
	assert.InDelta(t, 7500, out[1], 0.5)
	assert.InDelta(t, 7500, out[2], 0.5)
}

func TestPotentialTemperature(t *testing.T) {
	feat := PotentialTemperature("PSAL", "TEMP", "PRES")

	// UNESCO 1983 check value: ptmp(40, 40, 10000) = 36.89073.
	out, err := feat.Compute([]float64{40}, []float64{40}, []float64{10000})
	require.NoError(t, err)
	assert.InDelta(t, 36.89073, out[0], 1e-4)

	t.Run("surface water is unchanged", func(t *testing.T) {
		out, err := feat.Compute([]float64{35}, []float64{10}, []float64{0})
		require.NoError(t, err)
		assert.InDelta(t, 10, out[0], 1e-9)
	})
}

func TestSigmaT(t *testing.T) {
	feat := SigmaT("PSAL", "TEMP")

	// UNESCO 1983 check value: dens0(35, 5) = 1027.67547 kg/m3.
	out, err := feat.Compute([]float64{35}, []float64{5})
	require.NoError(t, err)
	assert.InDelta(t, 27.67547, out[0], 1e-4)

	t.Run("fresh water at 4 degrees", func(t *testing.T) {
		out, err := feat.Compute([]float64{0}, []float64{4})
		require.NoError(t, err)
		assert.InDelta(t, 0, out[0], 0.01)
	})
}

func TestChlorophyll(t *testing.T) {
	feat := ChlorophyllFromDiatomFlagellate("DIAT", "FLAG")
	out, err := feat.Compute([]float64{0.4, 1.1}, []float64{0.2, 0.3})
	require.NoError(t, err)
	assert.InDelta(t, 0.6, out[0], 1e-9)
	assert.InDelta(t, 1.4, out[1], 1e-9)
}

func TestMismatchedInputLengths(t *testing.T) {
	feat := SigmaT("PSAL", "TEMP")
	_, err := feat.Compute([]float64{35, 35}, []float64{5})
	assert.Error(t, err)
}
