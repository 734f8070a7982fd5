// Package schema models the typed variables a provider's files are read
// into: their names, units, primitive kinds, source-column aliases with
// quality flags, correction functions, NaN row-removal policies, and derived
// variables computed from other variables.
package schema

import (
	"errors"
	"fmt"

	"github.com/couchcryptid/ocean-bgc-etl/internal/table"
)

var (
	ErrUnknownVariable      = errors.New("schema: no such variable")
	ErrDuplicateVariable    = errors.New("schema: duplicate variable name")
	ErrMandatoryVariable    = errors.New("schema: variable is mandatory and cannot be removed")
	ErrEmptyAlias           = errors.New("schema: alias needs a source column name")
	ErrConflictingNaNPolicy = errors.New("schema: remove-when-nan and remove-when-all-nan are mutually exclusive")
)

// Alias is one admissible source column for a variable, optionally paired
// with a quality-flag column and the flag values considered valid.
type Alias struct {
	Column     string
	FlagColumn string
	FlagValues []float64
}

// NewAlias names a plain source column with no flag filtering.
func NewAlias(column string) Alias {
	return Alias{Column: column}
}

// NewFlaggedAlias names a source column whose values are only kept when the
// flag column holds one of the accepted values; other rows get the variable's
// default.
func NewFlaggedAlias(column, flagColumn string, accepted []float64) Alias {
	return Alias{Column: column, FlagColumn: flagColumn, FlagValues: accepted}
}

// AcceptsFlag reports whether a flag value passes the alias' filter. An alias
// without a flag column accepts everything.
func (a Alias) AcceptsFlag(flag float64) bool {
	if a.FlagColumn == "" {
		return true
	}
	for _, v := range a.FlagValues {
		if v == flag {
			return true
		}
	}
	return false
}

// meta carries the attributes shared by every variable kind.
type meta struct {
	name     string
	unit     string
	kind     table.Kind
	def      table.Value
	nameFmt  string
	valueFmt string
}

func (m meta) Name() string         { return m.name }
func (m meta) Unit() string         { return m.unit }
func (m meta) Kind() table.Kind     { return m.kind }
func (m meta) Default() table.Value { return m.def }
func (m meta) NameFormat() string   { return m.nameFmt }
func (m meta) ValueFormat() string  { return m.valueFmt }

// Label is the column label for the variable's data in a frame.
func (m meta) Label() string { return m.name }

// Var is the sealed interface over the closed set of variable kinds:
// Existing (read from source), Absent (filled with default), Feature
// (derived from other variables) and Parsed (read back from a saved file).
type Var interface {
	Name() string
	Unit() string
	Kind() table.Kind
	Default() table.Value
	Label() string
	NameFormat() string
	ValueFormat() string

	// ExistsInSource reports whether the variable is read from source columns.
	ExistsInSource() bool
	// IsFeature reports whether the variable is derived from other variables.
	IsFeature() bool

	sealedVar()
}

// Template is the immutable declaration of a variable, shared across
// providers. Specialize it per provider with InFileAs or NotInFile.
type Template struct {
	meta
}

// NewTemplate declares a variable. Formats are fmt verbs used by the
// fixed-width saver, e.g. "%-12s" and "%12.6f".
func NewTemplate(name, unit string, kind table.Kind, def table.Value, nameFmt, valueFmt string) Template {
	return Template{meta: meta{
		name:     name,
		unit:     unit,
		kind:     kind,
		def:      def,
		nameFmt:  nameFmt,
		valueFmt: valueFmt,
	}}
}

// InFileAs specializes the template into an Existing variable with ordered
// aliases; the first alias present in a given source wins.
func (t Template) InFileAs(aliases ...Alias) (Existing, error) {
	if len(aliases) == 0 {
		return Existing{}, fmt.Errorf("%w: variable %q", ErrEmptyAlias, t.name)
	}
	for _, a := range aliases {
		if a.Column == "" {
			return Existing{}, fmt.Errorf("%w: variable %q", ErrEmptyAlias, t.name)
		}
	}
	return Existing{meta: t.meta, aliases: append([]Alias(nil), aliases...)}, nil
}

// NotInFile specializes the template into an Absent variable, filled entirely
// with its default during loading.
func (t Template) NotInFile() Absent {
	return Absent{meta: t.meta}
}

// nanPolicy is the row-removal policy attached to loadable variables.
type nanPolicy int

const (
	keepNaN nanPolicy = iota
	// removeAnyNaN drops a row whenever this variable alone is NaN.
	removeAnyNaN
	// removeAllNaN drops a row only when this variable and every other
	// all-nan-flagged variable are simultaneously NaN.
	removeAllNaN
)

// Existing is a variable read from source columns.
type Existing struct {
	meta
	aliases    []Alias
	correction func([]float64) []float64
	policy     nanPolicy
}

func (Existing) sealedVar()           {}
func (Existing) ExistsInSource() bool { return true }
func (Existing) IsFeature() bool      { return false }

func (v Existing) Aliases() []Alias { return v.aliases }

func (v Existing) Correction() func([]float64) []float64 { return v.correction }

// CorrectedWith returns a copy with a post-load correction (unit conversion
// and the like), applied after type coercion and before constraint filtering.
func (v Existing) CorrectedWith(fn func([]float64) []float64) Existing {
	v.correction = fn
	return v
}

// RemoveWhenNaN returns a copy whose NaN alone removes the row.
func (v Existing) RemoveWhenNaN() (Existing, error) {
	if v.policy == removeAllNaN {
		return v, fmt.Errorf("%w: variable %q", ErrConflictingNaNPolicy, v.name)
	}
	v.policy = removeAnyNaN
	return v, nil
}

// RemoveWhenAllNaN returns a copy participating in the joint all-NaN removal
// group.
func (v Existing) RemoveWhenAllNaN() (Existing, error) {
	if v.policy == removeAnyNaN {
		return v, fmt.Errorf("%w: variable %q", ErrConflictingNaNPolicy, v.name)
	}
	v.policy = removeAllNaN
	return v, nil
}

func (v Existing) removesWhenNaN() bool    { return v.policy == removeAnyNaN }
func (v Existing) removesWhenAllNaN() bool { return v.policy == removeAllNaN }

// Absent is a variable the source does not carry; loading fills it with the
// default.
type Absent struct {
	meta
	policy nanPolicy
}

func (Absent) sealedVar()           {}
func (Absent) ExistsInSource() bool { return false }
func (Absent) IsFeature() bool      { return false }

// WithDefault returns a copy using the given default fill value.
func (v Absent) WithDefault(def table.Value) Absent {
	v.def = def
	return v
}

// RemoveWhenNaN returns a copy whose NaN alone removes the row.
func (v Absent) RemoveWhenNaN() (Absent, error) {
	if v.policy == removeAllNaN {
		return v, fmt.Errorf("%w: variable %q", ErrConflictingNaNPolicy, v.name)
	}
	v.policy = removeAnyNaN
	return v, nil
}

// RemoveWhenAllNaN returns a copy participating in the joint all-NaN removal
// group.
func (v Absent) RemoveWhenAllNaN() (Absent, error) {
	if v.policy == removeAnyNaN {
		return v, fmt.Errorf("%w: variable %q", ErrConflictingNaNPolicy, v.name)
	}
	v.policy = removeAllNaN
	return v, nil
}

func (v Absent) removesWhenNaN() bool    { return v.policy == removeAnyNaN }
func (v Absent) removesWhenAllNaN() bool { return v.policy == removeAllNaN }

// Transform computes a derived variable's values from its input columns,
// row-aligned. It must be pure.
type Transform func(inputs ...[]float64) ([]float64, error)

// Feature is a variable computed from other variables rather than read from
// source. Inputs may themselves be features; the Set expands them.
type Feature struct {
	meta
	inputs    []string
	transform Transform
}

// NewFeature derives a variable from the named inputs via fn.
func NewFeature(t Template, inputs []string, fn Transform) Feature {
	return Feature{meta: t.meta, inputs: append([]string(nil), inputs...), transform: fn}
}

func (Feature) sealedVar()           {}
func (Feature) ExistsInSource() bool { return false }
func (Feature) IsFeature() bool      { return true }

// RequiredInputs returns the names of the variables the transform consumes.
func (v Feature) RequiredInputs() []string { return v.inputs }

// Compute runs the transform.
func (v Feature) Compute(inputs ...[]float64) ([]float64, error) {
	return v.transform(inputs...)
}

// IsLoadable reports whether every required input name is available.
func (v Feature) IsLoadable(available []string) bool {
	for _, need := range v.inputs {
		found := false
		for _, have := range available {
			if have == need {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Parsed is a variable read back from a previously saved file; only its name
// and unit are known.
type Parsed struct {
	meta
}

// NewParsed declares a variable recovered from a saved file header.
func NewParsed(name, unit string, kind table.Kind) Parsed {
	return Parsed{meta: meta{
		name:     name,
		unit:     unit,
		kind:     kind,
		def:      table.NaN(),
		nameFmt:  "%-15s",
		valueFmt: "%15s",
	}}
}

func (Parsed) sealedVar()           {}
func (Parsed) ExistsInSource() bool { return true }
func (Parsed) IsFeature() bool      { return false }
