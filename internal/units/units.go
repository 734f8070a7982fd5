// Package units holds the unit conversions attached to variables as
// correction functions.
package units

import "gonum.org/v1/gonum/floats"

// UmolPerKgToMmolPerM3 converts umol/kg to mmol/m3 using a seawater
// density of 1025 kg/m3.
func UmolPerKgToMmolPerM3(data []float64) []float64 {
	const kgPerM3 = 1025
	const mmolPerUmol = 1e-3
	return scale(data, mmolPerUmol*kgPerM3)
}

// OxygenMlPerLToMmolPerM3 converts dissolved oxygen from mL/L to mmol/m3.
func OxygenMlPerLToMmolPerM3(data []float64) []float64 {
	return scale(data, 44.6608009)
}

// NitrateMgcPerM3ToUmolPerL converts nitrate from mgC/m3 to umol/L.
func NitrateMgcPerM3ToUmolPerL(data []float64) []float64 {
	const mgcPerMgNO3 = 6.625 * 12.01
	const gPerMolNO3 = 62.009 // nitrate molar mass
	return scale(data, 1/mgcPerMgNO3/(1000*gPerMolNO3)*1e6/1000)
}

// SilicateMgcPerM3ToUmolPerL converts silicate from mgC/m3 to umol/L.
func SilicateMgcPerM3ToUmolPerL(data []float64) []float64 {
	const mgcPerMgSiO2 = 6.625 * 12.01
	const gPerMolSiO2 = 76.083 // silicate molar mass
	return scale(data, 1/mgcPerMgSiO2/(1000*gPerMolSiO2)*1e6/1000)
}

// PhosphateMgcPerM3ToUmolPerL converts phosphate from mgC/m3 to umol/L.
func PhosphateMgcPerM3ToUmolPerL(data []float64) []float64 {
	const mgcPerMgH3PO4 = 107 * 12.01
	const gPerMolH3PO4 = 94.9714 // phosphate molar mass
	return scale(data, 1/mgcPerMgH3PO4/(1000*gPerMolH3PO4)*1e6/1000)
}

func scale(data []float64, factor float64) []float64 {
	return floats.ScaleTo(make([]float64, len(data)), factor, data)
}
