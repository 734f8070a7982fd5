// Package pipeline orchestrates the batch flows: extracting observation
// data from provider files and comparing observations against simulation
// output.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/ctessum/geom"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/ocean-bgc-etl/internal/config"
	"github.com/couchcryptid/ocean-bgc-etl/internal/dateranges"
	"github.com/couchcryptid/ocean-bgc-etl/internal/filtering"
	"github.com/couchcryptid/ocean-bgc-etl/internal/loaders"
	"github.com/couchcryptid/ocean-bgc-etl/internal/observability"
	"github.com/couchcryptid/ocean-bgc-etl/internal/save"
	"github.com/couchcryptid/ocean-bgc-etl/internal/schema"
	"github.com/couchcryptid/ocean-bgc-etl/internal/storer"
	"github.com/couchcryptid/ocean-bgc-etl/internal/table"
)

// ErrNoData means no provider contributed a single row.
var ErrNoData = errors.New("pipeline: no provider produced data")

// Pipeline runs the batch flows described by the configuration.
type Pipeline struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock
}

// New creates a Pipeline with the given configuration and observability.
func New(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		clock:   clockwork.NewRealClock(),
	}
}

// Constraints assembles the domain constraints from the configuration:
// the date span, the depth span and either the lat/lon box or the
// configured polygon.
func (p *Pipeline) Constraints() *filtering.Constraints {
	c := filtering.NewConstraints()
	c.AddBoundary("DATE",
		table.TimeVal(p.cfg.DateMin), table.TimeVal(p.cfg.DateMax))
	c.AddBoundary("DEPH",
		table.FloatVal(p.cfg.DepthMin), table.FloatVal(p.cfg.DepthMax))
	if p.cfg.FromPolygon {
		c.AddPolygon("LATITUDE", "LONGITUDE", configPolygon(p.cfg.PolygonVertices))
	} else {
		c.AddBoundary("LATITUDE",
			table.FloatVal(p.cfg.LatitudeMin), table.FloatVal(p.cfg.LatitudeMax))
		c.AddBoundary("LONGITUDE",
			table.FloatVal(p.cfg.LongitudeMin), table.FloatVal(p.cfg.LongitudeMax))
	}
	return c
}

func configPolygon(vertices [][]float64) geom.Polygonal {
	ring := make([]geom.Point, 0, len(vertices))
	for _, v := range vertices {
		ring = append(ring, geom.Point{X: v[0], Y: v[1]})
	}
	return geom.Polygon{ring}
}

// RunExtract loads every configured provider, filters by the configured
// constraints, aggregates, resolves duplicates and saves the result split
// by date ranges. A failing provider is logged and skipped; the run fails
// only when nothing loads at all.
func (p *Pipeline) RunExtract(ctx context.Context) (*storer.Storer, error) {
	constraints := p.Constraints()

	var combined *storer.Storer
	for _, provider := range p.cfg.Providers {
		// Simulation providers only participate in comparisons.
		if provider.Category == "simulation" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		st, err := p.loadProvider(ctx, provider, constraints)
		if err != nil {
			p.logger.Error("provider failed, skipping",
				"provider", provider.Name, "error", err)
			p.metrics.PipelineRuns.WithLabelValues("extract", "error").Inc()
			continue
		}
		if st == nil {
			continue
		}
		if combined == nil {
			combined = st
			continue
		}
		if combined, err = combined.Concat(st); err != nil {
			return nil, fmt.Errorf("aggregate %s: %w", provider.Name, err)
		}
	}
	if combined == nil {
		return nil, ErrNoData
	}

	before := combined.NumRows()
	deduped, err := combined.RemoveDuplicates(p.cfg.Priority)
	if err != nil {
		return nil, err
	}
	p.metrics.RowsDuplicate.Add(float64(before - deduped.NumRows()))
	p.logger.Info("aggregated observations",
		"rows", deduped.NumRows(),
		"duplicates_removed", before-deduped.NumRows(),
		"providers", deduped.Providers(),
	)

	if err := p.saveExtracted(deduped); err != nil {
		return nil, err
	}
	p.metrics.PipelineRuns.WithLabelValues("extract", "success").Inc()
	return deduped, nil
}

func (p *Pipeline) loadProvider(ctx context.Context, provider config.Provider, constraints *filtering.Constraints) (*storer.Storer, error) {
	set, err := BuildSet(provider)
	if err != nil {
		return nil, err
	}
	loader, err := newLoader(provider, set)
	if err != nil {
		return nil, err
	}
	files, err := listFiles(provider.Dir, loader)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		p.logger.Warn("no files for provider", "provider", provider.Name, "dir", provider.Dir)
		return nil, nil
	}

	start := p.clock.Now()
	var combined *storer.Storer
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		st, err := loader.Load(path, constraints)
		if err != nil {
			p.metrics.FilesLoaded.WithLabelValues(provider.Name, "error").Inc()
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		p.metrics.FilesLoaded.WithLabelValues(provider.Name, "success").Inc()
		p.metrics.RowsLoaded.WithLabelValues(provider.Name).Add(float64(st.NumRows()))
		if combined == nil {
			combined = st
			continue
		}
		if combined, err = combined.Concat(st); err != nil {
			return nil, err
		}
	}
	p.metrics.LoadDuration.WithLabelValues(provider.Name).
		Observe(p.clock.Now().Sub(start).Seconds())
	p.logger.Info("provider loaded",
		"provider", provider.Name,
		"files", len(files),
		"rows", combined.NumRows(),
	)
	return combined, nil
}

func newLoader(provider config.Provider, set *schema.Set) (loaders.Loader, error) {
	switch provider.Format {
	case "csv":
		var comma rune
		if provider.Delimiter != "" {
			comma = []rune(provider.Delimiter)[0]
		}
		return loaders.NewCSVLoader(provider.Name, provider.Category, set, comma), nil
	case "netcdf":
		return loaders.NewNetCDFLoader(provider.Name, provider.Category, set), nil
	default:
		return nil, fmt.Errorf("pipeline: provider %s: unknown format %q", provider.Name, provider.Format)
	}
}

func listFiles(dir string, loader loaders.Loader) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if loader.IsFileValid(path) {
			files = append(files, path)
		}
	}
	sort.Strings(files)
	return files, nil
}

func (p *Pipeline) saveExtracted(st *storer.Storer) error {
	if err := os.MkdirAll(p.cfg.SavingDir, 0o755); err != nil {
		return err
	}
	saver := save.NewSaver(st, p.logger)
	gen := dateranges.Generator{
		Start:    p.cfg.DateMin,
		End:      p.cfg.DateMax,
		Interval: dateranges.Interval(p.cfg.SaveInterval),
		Length:   p.cfg.SaveLength,
	}
	return saver.SaveByDateRanges(gen, p.cfg.SavingDir, true)
}
