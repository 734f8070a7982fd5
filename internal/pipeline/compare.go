package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/couchcryptid/ocean-bgc-etl/internal/compare"
	"github.com/couchcryptid/ocean-bgc-etl/internal/config"
	"github.com/couchcryptid/ocean-bgc-etl/internal/features"
	"github.com/couchcryptid/ocean-bgc-etl/internal/filtering"
	"github.com/couchcryptid/ocean-bgc-etl/internal/interpolation"
	"github.com/couchcryptid/ocean-bgc-etl/internal/loaders"
	"github.com/couchcryptid/ocean-bgc-etl/internal/matching"
	"github.com/couchcryptid/ocean-bgc-etl/internal/save"
	"github.com/couchcryptid/ocean-bgc-etl/internal/storer"
	"github.com/couchcryptid/ocean-bgc-etl/internal/watermass"
)

// ErrNoObservations means the loading directory held no saved observations.
var ErrNoObservations = errors.New("pipeline: no observation files found")

// ErrNoGrids means the simulation directory held no dated grid files.
var ErrNoGrids = errors.New("pipeline: no simulation grid files found")

// GridLister enumerates the dated simulation grids available to a
// comparison run. Close releases whatever List opened.
type GridLister interface {
	List() ([]matching.DatedGrid, error)
	Close() error
}

// Comparison holds the outcome of an observation/simulation comparison.
type Comparison struct {
	Observations *storer.Storer
	Simulations  *storer.Storer
	RMSE         map[string]float64
	Bias         map[string]float64
}

// RunCompare matches saved observations against simulation grids, brings
// the simulation profiles onto observation depths and evaluates the
// configured comparison metrics.
func (p *Pipeline) RunCompare(ctx context.Context) (*Comparison, error) {
	grids := newDirectoryGrids(p.cfg.SimulationDir, p.cfg.GridLatitudeField, p.cfg.GridDepthField)
	defer grids.Close()
	return p.runCompare(ctx, grids)
}

func (p *Pipeline) runCompare(ctx context.Context, grids GridLister) (*Comparison, error) {
	obs, err := p.readObservations()
	if err != nil {
		return nil, err
	}
	constraints := p.Constraints()
	before := obs.NumRows()
	if obs, err = filterStorer(obs, constraints); err != nil {
		return nil, err
	}
	p.metrics.RowsFiltered.Add(float64(before - obs.NumRows()))
	if obs.NumRows() == 0 {
		return nil, fmt.Errorf("%w: no observations within constraints", ErrNoObservations)
	}

	files, err := grids.List()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNoGrids
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	simProvider, err := p.simProviderConfig()
	if err != nil {
		return nil, err
	}
	simSet, err := BuildSet(simProvider)
	if err != nil {
		return nil, err
	}
	source := matching.NewSelectiveGridSource(simSet, simProvider.Category, simProvider.Name, p.logger)

	matchStart := p.clock.Now()
	sim, err := source.LoadAll(files, obs, constraints)
	if err != nil {
		return nil, err
	}
	p.metrics.MatchDuration.Observe(p.clock.Now().Sub(matchStart).Seconds())

	interpStart := p.clock.Now()
	ip, err := interpolation.New(sim, p.cfg.ToInterpolate, interpolation.Kind(p.cfg.InterpolationKind))
	if err != nil {
		return nil, err
	}
	interpolated, err := ip.InterpolateStorer(obs)
	if err != nil {
		return nil, err
	}
	p.metrics.InterpolationDuration.Observe(p.clock.Now().Sub(interpStart).Seconds())

	obs = obs.SliceUsingIndex(interpolated.Frame().Index())
	for _, st := range []*storer.Storer{obs, interpolated} {
		if err := addDerived(st); err != nil {
			return nil, err
		}
	}

	if p.cfg.WaterMass != nil {
		if obs, err = p.extractWaterMass(obs); err != nil {
			return nil, err
		}
		interpolated = interpolated.SliceUsingIndex(obs.Frame().Index())
	}

	result := &Comparison{Observations: obs, Simulations: interpolated}
	if result.RMSE, err = compare.EvaluateStorers(compare.RMSE{}, obs, interpolated, p.cfg.VariablesToCompare); err != nil {
		return nil, err
	}
	if result.Bias, err = compare.EvaluateStorers(compare.Bias{}, obs, interpolated, p.cfg.VariablesToCompare); err != nil {
		return nil, err
	}
	for _, name := range p.cfg.VariablesToCompare {
		p.logger.Info("comparison metrics",
			"variable", name,
			"rmse", result.RMSE[name],
			"bias", result.Bias[name],
			"rows", obs.NumRows(),
		)
	}

	if err := p.saveComparison(result); err != nil {
		return nil, err
	}
	p.metrics.PipelineRuns.WithLabelValues("compare", "success").Inc()
	return result, nil
}

func (p *Pipeline) readObservations() (*storer.Storer, error) {
	paths, err := filepath.Glob(filepath.Join(p.cfg.LoadingDir, "*.txt"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoObservations, p.cfg.LoadingDir)
	}
	return save.NewReader("in_situ").ReadFiles(paths)
}

func (p *Pipeline) simProviderConfig() (config.Provider, error) {
	for _, provider := range p.cfg.Providers {
		if provider.Name == p.cfg.SimProvider {
			return provider, nil
		}
	}
	return config.Provider{}, fmt.Errorf("pipeline: simulation provider %q not configured", p.cfg.SimProvider)
}

// filterStorer applies the constraints to the storer's frame, keeping the
// storer's schema and provenance.
func filterStorer(st *storer.Storer, constraints *filtering.Constraints) (*storer.Storer, error) {
	frame, err := constraints.Apply(st.Frame())
	if err != nil {
		return nil, err
	}
	return storer.New(frame, st.Variables(), st.Category(), st.Providers())
}

// addDerived appends pressure, potential temperature and sigma-t so both
// sides of the comparison carry them.
func addDerived(st *storer.Storer) error {
	if err := st.AddFeature(features.Pressure("DEPH", "LATITUDE")); err != nil {
		return err
	}
	if err := st.AddFeature(features.PotentialTemperature("PSAL", "TEMP", "PRES")); err != nil {
		return err
	}
	return st.AddFeature(features.SigmaT("PSAL", "TEMP"))
}

// extractWaterMass keeps the observations inside the configured water mass.
func (p *Pipeline) extractWaterMass(obs *storer.Storer) (*storer.Storer, error) {
	wm := watermass.New(p.cfg.WaterMass.Name, p.cfg.WaterMass.Acronym,
		watermass.Range{Min: p.cfg.WaterMass.PtempMin, Max: p.cfg.WaterMass.PtempMax},
		watermass.Range{Min: p.cfg.WaterMass.PsalMin, Max: p.cfg.WaterMass.PsalMax},
		watermass.Range{Min: p.cfg.WaterMass.SigtMin, Max: p.cfg.WaterMass.SigtMax},
	)
	extracted, err := wm.ExtractFromStorer(obs, "PTEMP", "PSAL", "SIGT")
	if err != nil {
		return nil, err
	}
	p.logger.Info("water mass extracted",
		"water_mass", wm.Acronym,
		"rows", extracted.NumRows(),
	)
	return extracted, nil
}

func (p *Pipeline) saveComparison(result *Comparison) error {
	if err := os.MkdirAll(p.cfg.SavingDir, 0o755); err != nil {
		return err
	}
	obsPath := filepath.Join(p.cfg.SavingDir, "observations.txt")
	simPath := filepath.Join(p.cfg.SavingDir, "simulations.txt")
	for _, out := range []struct {
		path string
		st   *storer.Storer
	}{{obsPath, result.Observations}, {simPath, result.Simulations}} {
		if err := os.RemoveAll(out.path); err != nil {
			return err
		}
		if err := save.NewSaver(out.st, p.logger).SaveAll(out.path); err != nil {
			return err
		}
	}
	return nil
}

var gridDatePattern = regexp.MustCompile(`\d{8}`)

// directoryGrids lists NetCDF grids from a directory, taking each grid's
// date from the first eight-digit run in its file name.
type directoryGrids struct {
	dir      string
	latField string
	depField string
	opened   []*loaders.NetCDFGrid
}

func newDirectoryGrids(dir, latField, depField string) *directoryGrids {
	return &directoryGrids{dir: dir, latField: latField, depField: depField}
}

func (d *directoryGrids) List() ([]matching.DatedGrid, error) {
	paths, err := filepath.Glob(filepath.Join(d.dir, "*.nc"))
	if err != nil {
		return nil, err
	}
	var files []matching.DatedGrid
	for _, path := range paths {
		m := gridDatePattern.FindString(filepath.Base(path))
		if m == "" {
			continue
		}
		date, err := time.ParseInLocation("20060102", m, time.UTC)
		if err != nil {
			continue
		}
		grid, err := loaders.OpenNetCDFGrid(path, d.latField, d.depField)
		if err != nil {
			return nil, fmt.Errorf("open grid %s: %w", path, err)
		}
		d.opened = append(d.opened, grid)
		files = append(files, matching.DatedGrid{Date: date, Grid: grid})
	}
	return files, nil
}

func (d *directoryGrids) Close() error {
	var first error
	for _, g := range d.opened {
		if err := g.Close(); err != nil && first == nil {
			first = err
		}
	}
	d.opened = nil
	return first
}
