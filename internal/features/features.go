// Package features declares the derived physical quantities computed from
// loaded columns: pressure, potential temperature, sigma-t density and
// total chlorophyll-a. Seawater physics follows the EOS-80 equation of
// state (UNESCO 1983).
package features

import (
	"fmt"
	"math"

	"github.com/couchcryptid/ocean-bgc-etl/internal/schema"
	"github.com/couchcryptid/ocean-bgc-etl/internal/table"
)

func template(name, unit string) schema.Template {
	return schema.NewTemplate(name, unit, table.Float, table.NaN(), "%-10s", "%10.3f")
}

// Pressure derives pressure in dbars from depth (m) and latitude (deg).
func Pressure(depthName, latitudeName string) schema.Feature {
	return schema.NewFeature(template("PRES", "[dbars]"),
		[]string{depthName, latitudeName},
		func(inputs ...[]float64) ([]float64, error) {
			if err := sameLength(inputs); err != nil {
				return nil, err
			}
			depth, lat := inputs[0], inputs[1]
			out := make([]float64, len(depth))
			for i := range depth {
				out[i] = pres(math.Abs(depth[i]), lat[i])
			}
			return out, nil
		})
}

// PotentialTemperature derives potential temperature referenced to the
// surface from salinity (psu), temperature (deg C) and pressure (dbars).
func PotentialTemperature(salinityName, temperatureName, pressureName string) schema.Feature {
	return schema.NewFeature(template("PTEMP", "[deg_C]"),
		[]string{salinityName, temperatureName, pressureName},
		func(inputs ...[]float64) ([]float64, error) {
			if err := sameLength(inputs); err != nil {
				return nil, err
			}
			sal, temp, pressure := inputs[0], inputs[1], inputs[2]
			out := make([]float64, len(sal))
			for i := range sal {
				out[i] = ptmp(sal[i], temp[i], pressure[i])
			}
			return out, nil
		})
}

// SigmaT derives sigma-t (density anomaly at atmospheric pressure, kg/m3)
// from salinity (psu) and temperature (deg C).
func SigmaT(salinityName, temperatureName string) schema.Feature {
	return schema.NewFeature(template("SIGT", "[kg/m3]"),
		[]string{salinityName, temperatureName},
		func(inputs ...[]float64) ([]float64, error) {
			if err := sameLength(inputs); err != nil {
				return nil, err
			}
			sal, temp := inputs[0], inputs[1]
			out := make([]float64, len(sal))
			for i := range sal {
				out[i] = dens0(sal[i], temp[i]) - 1000
			}
			return out, nil
		})
}

// ChlorophyllFromDiatomFlagellate derives total chlorophyll-a (mg/m3) as
// the sum of the diatom and flagellate fractions.
func ChlorophyllFromDiatomFlagellate(diatomName, flagellateName string) schema.Feature {
	return schema.NewFeature(template("CPHL", "[mg/m3]"),
		[]string{diatomName, flagellateName},
		func(inputs ...[]float64) ([]float64, error) {
			if err := sameLength(inputs); err != nil {
				return nil, err
			}
			diatom, flagellate := inputs[0], inputs[1]
			out := make([]float64, len(diatom))
			for i := range diatom {
				out[i] = diatom[i] + flagellate[i]
			}
			return out, nil
		})
}

func sameLength(inputs [][]float64) error {
	for i := 1; i < len(inputs); i++ {
		if len(inputs[i]) != len(inputs[0]) {
			return fmt.Errorf("features: input lengths differ: %d vs %d",
				len(inputs[0]), len(inputs[i]))
		}
	}
	return nil
}

// pres converts depth (m, positive down) and latitude (deg) to pressure in
// dbars. Saunders & Fofonoff, as formulated in UNESCO 1983.
func pres(depth, lat float64) float64 {
	x := math.Sin(lat * math.Pi / 180)
	c1 := 5.92e-3 + x*x*5.25e-3
	return ((1 - c1) - math.Sqrt((1-c1)*(1-c1)-8.84e-6*depth)) / 4.42e-6
}

// adtg is the adiabatic temperature gradient (deg C per dbar), UNESCO 1983.
func adtg(s, t, p float64) float64 {
	ds := s - 35
	return 3.5803e-5 + (8.5258e-6+(-6.836e-8+6.6228e-10*t)*t)*t +
		(1.8932e-6+(-4.2393e-8)*t)*ds +
		((1.8741e-8+(-6.7795e-10+(8.733e-12+(-5.4481e-14)*t)*t)*t)+
			((-1.1351e-10)+2.7759e-12*t)*ds)*p +
		((-4.6206e-13)+(1.8676e-14+(-2.1687e-16)*t)*t)*p*p
}

// ptmp integrates the adiabatic gradient from p down to the surface with a
// fourth-order Runge-Kutta scheme (Fofonoff 1977).
func ptmp(s, t, p float64) float64 {
	const pr = 0.0 // surface reference pressure
	sqrt2 := math.Sqrt2

	delP := pr - p
	delTh := delP * adtg(s, t, p)
	th := t + 0.5*delTh
	q := delTh

	delTh = delP * adtg(s, th, p+0.5*delP)
	th += (1 - 1/sqrt2) * (delTh - q)
	q = (2-sqrt2)*delTh + (-2+3/sqrt2)*q

	delTh = delP * adtg(s, th, p+0.5*delP)
	th += (1 + 1/sqrt2) * (delTh - q)
	q = (2+sqrt2)*delTh + (-2-3/sqrt2)*q

	delTh = delP * adtg(s, th, p+delP)
	return th + (delTh-2*q)/6
}

// smow is the density of Standard Mean Ocean Water at temperature t.
func smow(t float64) float64 {
	return 999.842594 + (6.793952e-2+(-9.095290e-3+(1.001685e-4+
		(-1.120083e-6+6.536332e-9*t)*t)*t)*t)*t
}

// dens0 is seawater density at atmospheric pressure (kg/m3), UNESCO 1983.
func dens0(s, t float64) float64 {
	b := 8.24493e-1 + (-4.0899e-3+(7.6438e-5+(-8.2467e-7+5.3875e-9*t)*t)*t)*t
	c := -5.72466e-3 + (1.0227e-4+(-1.6546e-6)*t)*t
	const d0 = 4.8314e-4
	return smow(t) + b*s + c*s*math.Sqrt(s) + d0*s*s
}
