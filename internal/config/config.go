// Package config loads the application settings file and the per-provider
// variable declarations.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix  = "BGC"
	dateLayout = "2006-01-02"
)

// Config holds all application settings, populated from a TOML file with
// environment overrides.
type Config struct {
	LogLevel  string
	LogFormat string

	LoadingDir    string
	SavingDir     string
	SimulationDir string

	DateMin time.Time
	DateMax time.Time

	LatitudeMin  float64
	LatitudeMax  float64
	LongitudeMin float64
	LongitudeMax float64
	DepthMin     float64
	DepthMax     float64

	// FromPolygon switches the spatial constraint from the lat/lon box to
	// the polygon vertices.
	FromPolygon     bool
	PolygonVertices [][]float64

	// Priority ranks providers for duplicate resolution, best first.
	Priority []string

	Providers []Provider

	// Comparison settings.
	SimProvider        string
	GridLatitudeField  string
	GridDepthField     string
	ToInterpolate      []string
	InterpolationKind  string
	VariablesToCompare []string

	// WaterMass optionally restricts the comparison to one water mass.
	WaterMass *WaterMass

	// Saving granularity for date-range splitting.
	SaveInterval string
	SaveLength   int
}

// WaterMass bounds a region of potential temperature, salinity and sigma-t
// space. A NaN side leaves that bound open.
type WaterMass struct {
	Name     string
	Acronym  string
	PtempMin float64
	PtempMax float64
	PsalMin  float64
	PsalMax  float64
	SigtMin  float64
	SigtMax  float64
}

// Provider declares one observation source: where its files live, their
// format and the variables to resolve in them.
type Provider struct {
	Name      string
	Category  string
	Format    string
	Dir       string
	Delimiter string
	Variables []Variable
}

// Variable is the file-side declaration of one variable for one provider.
// Correction optionally names a unit conversion to run after loading.
type Variable struct {
	Name       string
	Aliases    []Alias
	Correction string
}

// Alias is one admissible column, optionally flag-filtered.
type Alias struct {
	Column     string
	Flag       string
	FlagValues []float64
}

type rawConfig struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	LoadingDir    string `mapstructure:"loading_dir"`
	SavingDir     string `mapstructure:"saving_dir"`
	SimulationDir string `mapstructure:"simulation_dir"`

	DateMin string `mapstructure:"date_min"`
	DateMax string `mapstructure:"date_max"`

	LatitudeMin  float64 `mapstructure:"latitude_min"`
	LatitudeMax  float64 `mapstructure:"latitude_max"`
	LongitudeMin float64 `mapstructure:"longitude_min"`
	LongitudeMax float64 `mapstructure:"longitude_max"`
	DepthMin     float64 `mapstructure:"depth_min"`
	DepthMax     float64 `mapstructure:"depth_max"`

	FromPolygon     bool        `mapstructure:"from_polygon"`
	PolygonVertices [][]float64 `mapstructure:"polygon_vertices"`

	Priority []string `mapstructure:"priority"`

	Providers []rawProvider `mapstructure:"providers"`

	SimProvider        string   `mapstructure:"sim_provider"`
	GridLatitudeField  string   `mapstructure:"grid_latitude_field"`
	GridDepthField     string   `mapstructure:"grid_depth_field"`
	ToInterpolate      []string `mapstructure:"to_interpolate"`
	InterpolationKind  string   `mapstructure:"interpolation_kind"`
	VariablesToCompare []string `mapstructure:"variables_to_compare"`

	WaterMass *rawWaterMass `mapstructure:"water_mass"`

	SaveInterval string `mapstructure:"save_interval"`
	SaveLength   int    `mapstructure:"save_length"`
}

type rawWaterMass struct {
	Name     string   `mapstructure:"name"`
	Acronym  string   `mapstructure:"acronym"`
	PtempMin *float64 `mapstructure:"ptemp_min"`
	PtempMax *float64 `mapstructure:"ptemp_max"`
	PsalMin  *float64 `mapstructure:"psal_min"`
	PsalMax  *float64 `mapstructure:"psal_max"`
	SigtMin  *float64 `mapstructure:"sigt_min"`
	SigtMax  *float64 `mapstructure:"sigt_max"`
}

type rawProvider struct {
	Name      string        `mapstructure:"name"`
	Category  string        `mapstructure:"category"`
	Format    string        `mapstructure:"format"`
	Dir       string        `mapstructure:"dir"`
	Delimiter string        `mapstructure:"delimiter"`
	Variables []rawVariable `mapstructure:"variables"`
}

type rawVariable struct {
	Name       string     `mapstructure:"name"`
	Aliases    []rawAlias `mapstructure:"aliases"`
	Correction string     `mapstructure:"correction"`
}

type rawAlias struct {
	Column     string    `mapstructure:"column"`
	Flag       string    `mapstructure:"flag"`
	FlagValues []float64 `mapstructure:"flag_values"`
}

// Load reads the settings file, applying defaults and BGC_* environment
// overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("latitude_min", -90.0)
	v.SetDefault("latitude_max", 90.0)
	v.SetDefault("longitude_min", -180.0)
	v.SetDefault("longitude_max", 180.0)
	v.SetDefault("depth_min", -12000.0)
	v.SetDefault("depth_max", 0.0)
	v.SetDefault("interpolation_kind", "linear")
	v.SetDefault("save_interval", "year")
	v.SetDefault("save_length", 1)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return fromRaw(raw)
}

func fromRaw(raw rawConfig) (*Config, error) {
	cfg := &Config{
		LogLevel:  raw.LogLevel,
		LogFormat: raw.LogFormat,

		LoadingDir:    raw.LoadingDir,
		SavingDir:     raw.SavingDir,
		SimulationDir: raw.SimulationDir,

		LatitudeMin:  raw.LatitudeMin,
		LatitudeMax:  raw.LatitudeMax,
		LongitudeMin: raw.LongitudeMin,
		LongitudeMax: raw.LongitudeMax,
		DepthMin:     raw.DepthMin,
		DepthMax:     raw.DepthMax,

		FromPolygon:     raw.FromPolygon,
		PolygonVertices: raw.PolygonVertices,

		Priority: raw.Priority,

		SimProvider:        raw.SimProvider,
		GridLatitudeField:  raw.GridLatitudeField,
		GridDepthField:     raw.GridDepthField,
		ToInterpolate:      raw.ToInterpolate,
		InterpolationKind:  strings.ToLower(raw.InterpolationKind),
		VariablesToCompare: raw.VariablesToCompare,

		SaveInterval: strings.ToLower(raw.SaveInterval),
		SaveLength:   raw.SaveLength,
	}

	var err error
	if cfg.DateMin, err = parseDate(raw.DateMin, "date_min"); err != nil {
		return nil, err
	}
	if cfg.DateMax, err = parseDate(raw.DateMax, "date_max"); err != nil {
		return nil, err
	}

	for _, rp := range raw.Providers {
		p, err := providerFromRaw(rp)
		if err != nil {
			return nil, err
		}
		cfg.Providers = append(cfg.Providers, p)
	}
	if raw.WaterMass != nil {
		cfg.WaterMass = &WaterMass{
			Name:     raw.WaterMass.Name,
			Acronym:  raw.WaterMass.Acronym,
			PtempMin: boundOrOpen(raw.WaterMass.PtempMin),
			PtempMax: boundOrOpen(raw.WaterMass.PtempMax),
			PsalMin:  boundOrOpen(raw.WaterMass.PsalMin),
			PsalMax:  boundOrOpen(raw.WaterMass.PsalMax),
			SigtMin:  boundOrOpen(raw.WaterMass.SigtMin),
			SigtMax:  boundOrOpen(raw.WaterMass.SigtMax),
		}
	}
	return cfg, cfg.validate()
}

func boundOrOpen(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func providerFromRaw(raw rawProvider) (Provider, error) {
	if raw.Name == "" {
		return Provider{}, errors.New("config: provider without a name")
	}
	p := Provider{
		Name:      raw.Name,
		Category:  raw.Category,
		Format:    strings.ToLower(raw.Format),
		Dir:       raw.Dir,
		Delimiter: raw.Delimiter,
	}
	if p.Category == "" {
		p.Category = "in_situ"
	}
	switch p.Format {
	case "csv", "netcdf":
	case "":
		p.Format = "csv"
	default:
		return Provider{}, fmt.Errorf("config: provider %s: unknown format %q", raw.Name, raw.Format)
	}
	for _, rv := range raw.Variables {
		variable := Variable{Name: rv.Name, Correction: rv.Correction}
		for _, ra := range rv.Aliases {
			variable.Aliases = append(variable.Aliases, Alias{
				Column:     ra.Column,
				Flag:       ra.Flag,
				FlagValues: ra.FlagValues,
			})
		}
		p.Variables = append(p.Variables, variable)
	}
	return p, nil
}

func parseDate(s, key string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("config: %s is required", key)
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: %s: %w", key, err)
	}
	return t.UTC(), nil
}

func (c *Config) validate() error {
	if c.LoadingDir == "" {
		return errors.New("config: loading_dir is required")
	}
	if c.SavingDir == "" {
		return errors.New("config: saving_dir is required")
	}
	if c.DateMax.Before(c.DateMin) {
		return errors.New("config: date_max before date_min")
	}
	if c.FromPolygon && len(c.PolygonVertices) < 3 {
		return errors.New("config: from_polygon needs at least 3 polygon_vertices")
	}
	for _, v := range c.PolygonVertices {
		if len(v) != 2 {
			return fmt.Errorf("config: polygon vertex %v must be [lon, lat]", v)
		}
	}
	switch c.InterpolationKind {
	case "linear", "cubic":
	default:
		return fmt.Errorf("config: unknown interpolation_kind %q", c.InterpolationKind)
	}
	switch c.SaveInterval {
	case "day", "week", "month", "year", "custom":
	default:
		return fmt.Errorf("config: unknown save_interval %q", c.SaveInterval)
	}
	if c.WaterMass != nil && c.WaterMass.Name == "" {
		return errors.New("config: water_mass needs a name")
	}
	return nil
}
