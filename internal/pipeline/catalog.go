package pipeline

import (
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/ocean-bgc-etl/internal/config"
	"github.com/couchcryptid/ocean-bgc-etl/internal/features"
	"github.com/couchcryptid/ocean-bgc-etl/internal/schema"
	"github.com/couchcryptid/ocean-bgc-etl/internal/table"
	"github.com/couchcryptid/ocean-bgc-etl/internal/units"
)

// catalogEntry fixes the storage-side identity of one standard variable:
// its column label, unit, type, formats and NaN row policy. Providers only
// choose the file-side aliases.
type catalogEntry struct {
	template schema.Template
	anyNaN   bool
	allNaN   bool
}

func strTemplate(label string) schema.Template {
	return schema.NewTemplate(label, "[]", table.String, table.StringVal(""), "%-15s", "%15s")
}

func intTemplate(label string) schema.Template {
	return schema.NewTemplate(label, "[]", table.Int, table.IntVal(0), "%-6s", "%6d")
}

func floatTemplate(label, unit string) schema.Template {
	return schema.NewTemplate(label, unit, table.Float, table.NaN(), "%-12s", "%12.6f")
}

var catalog = map[string]catalogEntry{
	"provider": {template: strTemplate("PROVIDER")},
	"expocode": {template: strTemplate("EXPOCODE")},
	"date": {template: schema.NewTemplate("DATE", "[]", table.Time,
		table.TimeVal(time.Time{}), "%-12s", "%12s")},
	"year":        {template: intTemplate("YEAR")},
	"month":       {template: intTemplate("MONTH")},
	"day":         {template: intTemplate("DAY")},
	"hour":        {template: intTemplate("HOUR")},
	"latitude":    {template: floatTemplate("LATITUDE", "[deg_N]")},
	"longitude":   {template: floatTemplate("LONGITUDE", "[deg_E]")},
	"depth":       {template: floatTemplate("DEPH", "[m]"), anyNaN: true},
	"temperature": {template: floatTemplate("TEMP", "[deg_C]")},
	"salinity":    {template: floatTemplate("PSAL", "[psu]")},
	"oxygen":      {template: floatTemplate("DOXY", "[ml/l]")},
	"phosphate":   {template: floatTemplate("PHOS", "[umol/l]"), allNaN: true},
	"nitrate":     {template: floatTemplate("NTRA", "[umol/l]"), allNaN: true},
	"silicate":    {template: floatTemplate("SLCA", "[umol/l]"), allNaN: true},
	"chlorophyll": {template: floatTemplate("CPHL", "[mg/m3]"), allNaN: true},
	"diatom":      {template: floatTemplate("DIAC", "[mg/m3]")},
	"flagellate":  {template: floatTemplate("FLAC", "[mg/m3]")},
}

// payloadOrder fixes the declaration order of the non-role variables so
// every provider's set is column-compatible for concatenation.
var payloadOrder = []string{
	"temperature", "salinity", "oxygen",
	"phosphate", "nitrate", "silicate", "chlorophyll",
}

var corrections = map[string]func([]float64) []float64{
	"negative_depth":             negativeDepth,
	"umol_kg_to_mmol_m3":         units.UmolPerKgToMmolPerM3,
	"oxygen_ml_l_to_mmol_m3":     units.OxygenMlPerLToMmolPerM3,
	"nitrate_mgc_m3_to_umol_l":   units.NitrateMgcPerM3ToUmolPerL,
	"silicate_mgc_m3_to_umol_l":  units.SilicateMgcPerM3ToUmolPerL,
	"phosphate_mgc_m3_to_umol_l": units.PhosphateMgcPerM3ToUmolPerL,
}

// negativeDepth orients depth downwards regardless of the file convention.
func negativeDepth(data []float64) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = -math.Abs(v)
	}
	return out
}

// BuildSet assembles the variable set of one provider from the standard
// catalog and the provider's declared aliases. Variables the provider does
// not declare stay in the set with their default values. When diatom and
// flagellate are declared without chlorophyll, total chlorophyll becomes a
// derived variable of their sum and the fractions are marked temporary:
// they are loaded, consumed, and stripped before any storer leaves a load.
func BuildSet(p config.Provider) (*schema.Set, error) {
	declared := make(map[string]config.Variable, len(p.Variables))
	for _, v := range p.Variables {
		if _, ok := catalog[v.Name]; !ok {
			return nil, fmt.Errorf("pipeline: provider %s: unknown variable %q", p.Name, v.Name)
		}
		declared[v.Name] = v
	}

	roles := schema.Roles{}
	var err error
	assign := map[string]*schema.Var{
		"provider": &roles.Provider, "expocode": &roles.Expocode,
		"date": &roles.Date, "year": &roles.Year, "month": &roles.Month,
		"day": &roles.Day, "hour": &roles.Hour,
		"latitude": &roles.Latitude, "longitude": &roles.Longitude,
		"depth": &roles.Depth,
	}
	for name, target := range assign {
		if *target, err = makeVar(p, declared, name); err != nil {
			return nil, err
		}
	}

	chlorophyllFromFractions := false
	if _, hasDia := declared["diatom"]; hasDia {
		if _, hasFla := declared["flagellate"]; hasFla {
			if _, hasChl := declared["chlorophyll"]; !hasChl {
				chlorophyllFromFractions = true
			}
		}
	}

	var extras []schema.Var
	for _, name := range payloadOrder {
		if name == "chlorophyll" && chlorophyllFromFractions {
			for _, fraction := range []string{"diatom", "flagellate"} {
				v, err := makeVar(p, declared, fraction)
				if err != nil {
					return nil, err
				}
				extras = append(extras, v)
			}
			extras = append(extras, features.ChlorophyllFromDiatomFlagellate(
				catalog["diatom"].template.Name(),
				catalog["flagellate"].template.Name(),
			))
			continue
		}
		v, err := makeVar(p, declared, name)
		if err != nil {
			return nil, err
		}
		extras = append(extras, v)
	}
	set, err := schema.NewSet(roles, extras...)
	if err != nil {
		return nil, err
	}
	if chlorophyllFromFractions {
		err := set.MarkTemporary(
			catalog["diatom"].template.Name(),
			catalog["flagellate"].template.Name(),
		)
		if err != nil {
			return nil, err
		}
	}
	return set, nil
}

func makeVar(p config.Provider, declared map[string]config.Variable, name string) (schema.Var, error) {
	entry := catalog[name]
	cv, ok := declared[name]
	if !ok || len(cv.Aliases) == 0 {
		// Undeclared variables fill with defaults; their NaN policies
		// would otherwise wipe out every row.
		return entry.template.NotInFile(), nil
	}

	aliases := make([]schema.Alias, 0, len(cv.Aliases))
	for _, a := range cv.Aliases {
		if a.Flag == "" {
			aliases = append(aliases, schema.NewAlias(a.Column))
		} else {
			aliases = append(aliases, schema.NewFlaggedAlias(a.Column, a.Flag, a.FlagValues))
		}
	}
	v, err := entry.template.InFileAs(aliases...)
	if err != nil {
		return nil, fmt.Errorf("pipeline: provider %s: variable %s: %w", p.Name, name, err)
	}
	if cv.Correction != "" {
		fn, ok := corrections[cv.Correction]
		if !ok {
			return nil, fmt.Errorf("pipeline: provider %s: variable %s: unknown correction %q",
				p.Name, name, cv.Correction)
		}
		v = v.CorrectedWith(fn)
	}
	return applyExistingPolicy(v, entry)
}

func applyExistingPolicy(v schema.Existing, entry catalogEntry) (schema.Var, error) {
	switch {
	case entry.anyNaN:
		return v.RemoveWhenNaN()
	case entry.allNaN:
		return v.RemoveWhenAllNaN()
	}
	return v, nil
}
