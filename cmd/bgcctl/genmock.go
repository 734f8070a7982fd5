package main

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/spf13/cobra"
)

var mockDir string

var genmockCmd = &cobra.Command{
	Use:   "genmock",
	Short: "Generate synthetic observation and simulation fixtures",
	Long: `Generates a deterministic fixture set under the output directory:
a provider CSV with flagged observation casts, a NetCDF simulation grid and
a settings file wiring them together. The same seed always produces the
same data, so generated fixtures are safe to diff.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		return generateMockData(mockDir)
	},
}

func init() {
	genmockCmd.Flags().StringVar(&mockDir, "dir", "data/mock", "output directory for generated fixtures")
}

const (
	mockGridRows   = 8
	mockGridCols   = 8
	mockGridLevels = 4
)

func generateMockData(dir string) error {
	obsDir := filepath.Join(dir, "observations")
	simDir := filepath.Join(dir, "simulation")
	for _, d := range []string{obsDir, simDir, filepath.Join(dir, "saved")} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	if err := writeMockCSV(filepath.Join(obsDir, "glodap_20200301.csv")); err != nil {
		return err
	}
	if err := writeMockGrid(filepath.Join(simDir, "grid_20200301.nc")); err != nil {
		return err
	}
	return writeMockSettings(filepath.Join(dir, "settings.toml"), dir)
}

func writeMockCSV(path string) error {
	rng := rand.New(rand.NewSource(1))
	var b strings.Builder
	b.WriteString("expocode,year,month,day,latitude,longitude,depth,temperature,temperature_flag,salinity\n")
	for i := 0; i < 60; i++ {
		day := 1 + i%28
		lat := 60 + rng.Float64()*14
		lon := 10 + rng.Float64()*14
		dep := rng.Float64() * 120
		temp := 8 - dep*0.05 + rng.Float64()
		flag := 2
		if i%15 == 0 {
			flag = 4
		}
		psal := 34.8 + rng.Float64()*0.6
		fmt.Fprintf(&b, "58GS20200301,2020,3,%d,%.4f,%.4f,%.1f,%.3f,%d,%.3f\n",
			day, lat, lon, dep, temp, flag, psal)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func writeMockGrid(path string) error {
	h := cdf.NewHeader(
		[]string{"level", "y", "x"},
		[]int{mockGridLevels, mockGridRows, mockGridCols})
	h.AddAttribute("", "comment", "synthetic simulation grid")
	h.AddVariable("plat", []string{"y", "x"}, []float32{0})
	h.AddVariable("plon", []string{"y", "x"}, []float32{0})
	h.AddVariable("depth", []string{"level"}, []float32{0})
	h.AddVariable("temp", []string{"level", "y", "x"}, []float32{0})
	h.AddVariable("salin", []string{"level", "y", "x"}, []float32{0})
	h.Define()

	cells := mockGridRows * mockGridCols
	plat := make([]float32, cells)
	plon := make([]float32, cells)
	for j := 0; j < mockGridRows; j++ {
		for i := 0; i < mockGridCols; i++ {
			plat[j*mockGridCols+i] = float32(60 + 2*j)
			plon[j*mockGridCols+i] = float32(10 + 2*i)
		}
	}
	depth := []float32{-5, -25, -50, -100}
	temp := make([]float32, mockGridLevels*cells)
	salin := make([]float32, mockGridLevels*cells)
	for level := 0; level < mockGridLevels; level++ {
		for cell := 0; cell < cells; cell++ {
			flat := level*cells + cell
			temp[flat] = float32(8) - 1.5*float32(level) + 0.1*float32(cell%mockGridCols)
			salin[flat] = 34.8 + 0.05*float32(level)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	nc, err := cdf.Create(f, h)
	if err != nil {
		return err
	}
	fields := map[string][]float32{
		"plat":  plat,
		"plon":  plon,
		"depth": depth,
		"temp":  temp,
		"salin": salin,
	}
	for name, data := range fields {
		if err := writeGridField(nc, name, data); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}
	return cdf.UpdateNumRecs(f)
}

func writeGridField(nc *cdf.File, name string, data []float32) error {
	end := nc.Header.Lengths(name)
	start := make([]int, len(end))
	_, err := nc.Writer(name, start, end).Write(data)
	return err
}

func writeMockSettings(path, dir string) error {
	settings := fmt.Sprintf(`loading_dir = %q
saving_dir = %q
simulation_dir = %q

date_min = "2020-03-01"
date_max = "2020-03-31"

latitude_min = 55.0
latitude_max = 80.0
longitude_min = 0.0
longitude_max = 30.0
depth_min = -150.0
depth_max = 0.0

priority = ["GLODAP"]
save_interval = "month"

sim_provider = "HYCOM"
grid_latitude_field = "plat"
grid_depth_field = "depth"
to_interpolate = ["TEMP", "PSAL"]
interpolation_kind = "linear"
variables_to_compare = ["TEMP", "PSAL"]

[[providers]]
name = "GLODAP"
format = "csv"
dir = %q

  [[providers.variables]]
  name = "expocode"
    [[providers.variables.aliases]]
    column = "expocode"
  [[providers.variables]]
  name = "year"
    [[providers.variables.aliases]]
    column = "year"
  [[providers.variables]]
  name = "month"
    [[providers.variables.aliases]]
    column = "month"
  [[providers.variables]]
  name = "day"
    [[providers.variables.aliases]]
    column = "day"
  [[providers.variables]]
  name = "latitude"
    [[providers.variables.aliases]]
    column = "latitude"
  [[providers.variables]]
  name = "longitude"
    [[providers.variables.aliases]]
    column = "longitude"
  [[providers.variables]]
  name = "depth"
  correction = "negative_depth"
    [[providers.variables.aliases]]
    column = "depth"
  [[providers.variables]]
  name = "temperature"
    [[providers.variables.aliases]]
    column = "temperature"
    flag = "temperature_flag"
    flag_values = [2.0]
  [[providers.variables]]
  name = "salinity"
    [[providers.variables.aliases]]
    column = "salinity"

[[providers]]
name = "HYCOM"
category = "simulation"
format = "netcdf"

  [[providers.variables]]
  name = "latitude"
    [[providers.variables.aliases]]
    column = "plat"
  [[providers.variables]]
  name = "longitude"
    [[providers.variables.aliases]]
    column = "plon"
  [[providers.variables]]
  name = "temperature"
    [[providers.variables.aliases]]
    column = "temp"
  [[providers.variables]]
  name = "salinity"
    [[providers.variables.aliases]]
    column = "salin"
`,
		filepath.Join(dir, "saved"),
		filepath.Join(dir, "saved"),
		filepath.Join(dir, "simulation"),
		filepath.Join(dir, "observations"),
	)
	return os.WriteFile(path, []byte(settings), 0o644)
}
