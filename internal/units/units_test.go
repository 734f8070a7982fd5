package units

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUmolPerKgToMmolPerM3(t *testing.T) {
	got := UmolPerKgToMmolPerM3([]float64{0, 1, 2})

	assert.InDelta(t, 0, got[0], 1e-9)
	assert.InDelta(t, 1.025, got[1], 1e-9)
	assert.InDelta(t, 2.05, got[2], 1e-9)
}

func TestOxygenMlPerLToMmolPerM3(t *testing.T) {
	got := OxygenMlPerLToMmolPerM3([]float64{1})

	assert.InDelta(t, 44.6608009, got[0], 1e-9)
}

func TestCarbonConversionsPreserveNaN(t *testing.T) {
	for name, convert := range map[string]func([]float64) []float64{
		"nitrate":   NitrateMgcPerM3ToUmolPerL,
		"silicate":  SilicateMgcPerM3ToUmolPerL,
		"phosphate": PhosphateMgcPerM3ToUmolPerL,
	} {
		t.Run(name, func(t *testing.T) {
			got := convert([]float64{math.NaN(), 100})

			assert.True(t, math.IsNaN(got[0]))
			assert.Greater(t, got[1], 0.0)
		})
	}
}

func TestConversionsDoNotMutateInput(t *testing.T) {
	in := []float64{3, 4}
	UmolPerKgToMmolPerM3(in)

	assert.Equal(t, []float64{3, 4}, in)
}
