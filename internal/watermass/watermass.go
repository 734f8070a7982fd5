// Package watermass classifies observations into named water masses by
// their potential temperature, salinity and sigma-t ranges.
package watermass

import (
	"strings"

	"github.com/couchcryptid/ocean-bgc-etl/internal/filtering"
	"github.com/couchcryptid/ocean-bgc-etl/internal/storer"
	"github.com/couchcryptid/ocean-bgc-etl/internal/table"
)

// Range is an inclusive [Min, Max] span; a NaN side leaves it open.
type Range struct {
	Min float64
	Max float64
}

// WaterMass is a region of temperature/salinity/density space.
type WaterMass struct {
	Name                 string
	Acronym              string
	PotentialTemperature Range
	Salinity             Range
	SigmaT               Range
}

// New builds a water mass. An empty acronym is derived from the name's
// initials.
func New(name, acronym string, ptemp, salinity, sigmaT Range) WaterMass {
	if acronym == "" {
		var initials []string
		for _, word := range strings.Fields(name) {
			initials = append(initials, strings.ToUpper(word[:1]))
		}
		acronym = strings.Join(initials, "")
	}
	return WaterMass{
		Name:                 name,
		Acronym:              acronym,
		PotentialTemperature: ptemp,
		Salinity:             salinity,
		SigmaT:               sigmaT,
	}
}

// MakeConstraints bundles the water mass ranges into boundary constraints
// on the given column labels.
func (w WaterMass) MakeConstraints(ptempLabel, salinityLabel, sigmaTLabel string) *filtering.Constraints {
	c := filtering.NewConstraints()
	c.AddBoundary(ptempLabel, table.FloatVal(w.PotentialTemperature.Min), table.FloatVal(w.PotentialTemperature.Max))
	c.AddBoundary(salinityLabel, table.FloatVal(w.Salinity.Min), table.FloatVal(w.Salinity.Max))
	c.AddBoundary(sigmaTLabel, table.FloatVal(w.SigmaT.Min), table.FloatVal(w.SigmaT.Max))
	return c
}

// ExtractFromStorer keeps only the rows falling inside the water mass.
func (w WaterMass) ExtractFromStorer(s *storer.Storer, ptempLabel, salinityLabel, sigmaTLabel string) (*storer.Storer, error) {
	constraints := w.MakeConstraints(ptempLabel, salinityLabel, sigmaTLabel)
	frame, err := constraints.Apply(s.Frame())
	if err != nil {
		return nil, err
	}
	return storer.New(frame, s.Variables(), s.Category(), s.Providers())
}
