package schema

import (
	"fmt"
)

// Roles names the variables every observation set must resolve: provider and
// hour may be nil, every other role is mandatory.
type Roles struct {
	Provider  Var // optional
	Expocode  Var
	Date      Var
	Year      Var
	Month     Var
	Day       Var
	Hour      Var // optional
	Latitude  Var
	Longitude Var
	Depth     Var
}

func (r Roles) mandatory() ([]Var, error) {
	ordered := []struct {
		role string
		v    Var
	}{
		{"provider", r.Provider},
		{"expocode", r.Expocode},
		{"date", r.Date},
		{"year", r.Year},
		{"month", r.Month},
		{"day", r.Day},
		{"hour", r.Hour},
		{"latitude", r.Latitude},
		{"longitude", r.Longitude},
		{"depth", r.Depth},
	}
	vars := make([]Var, 0, len(ordered))
	for _, e := range ordered {
		if e.v == nil {
			if e.role == "provider" || e.role == "hour" {
				continue
			}
			return nil, fmt.Errorf("schema: role %q must resolve to a variable", e.role)
		}
		vars = append(vars, e.v)
	}
	return vars, nil
}

// Set is an ordered, name-keyed collection of variables with the mandatory
// roles fixed at construction.
type Set struct {
	elements []Var
	byName   map[string]Var
	roles    roleNames

	// temporary marks members kept only as feature inputs; storers strip
	// them once their features are inserted.
	temporary map[string]bool

	// saveOrder defaults to declaration order; settable via SetSavingOrder.
	saveOrder []string
}

type roleNames struct {
	provider  string
	expocode  string
	date      string
	year      string
	month     string
	day       string
	hour      string
	latitude  string
	longitude string
	depth     string
}

func (r roleNames) contains(name string) bool {
	switch name {
	case "":
		return false
	case r.provider, r.expocode, r.date, r.year, r.month, r.day,
		r.hour, r.latitude, r.longitude, r.depth:
		return true
	default:
		return false
	}
}

// NewSet builds a set from the mandatory roles plus any extra variables.
func NewSet(roles Roles, extras ...Var) (*Set, error) {
	mandatory, err := roles.mandatory()
	if err != nil {
		return nil, err
	}
	s := &Set{byName: make(map[string]Var)}
	s.roles = roleNames{
		expocode:  roles.Expocode.Name(),
		date:      roles.Date.Name(),
		year:      roles.Year.Name(),
		month:     roles.Month.Name(),
		day:       roles.Day.Name(),
		latitude:  roles.Latitude.Name(),
		longitude: roles.Longitude.Name(),
		depth:     roles.Depth.Name(),
	}
	if roles.Provider != nil {
		s.roles.provider = roles.Provider.Name()
	}
	if roles.Hour != nil {
		s.roles.hour = roles.Hour.Name()
	}
	for _, v := range append(mandatory, extras...) {
		if err := s.Add(v); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add appends a variable; a name collision is a configuration bug.
func (s *Set) Add(v Var) error {
	if _, dup := s.byName[v.Name()]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateVariable, v.Name())
	}
	s.elements = append(s.elements, v)
	s.byName[v.Name()] = v
	s.saveOrder = append(s.saveOrder, v.Name())
	return nil
}

// Pop removes and returns the named variable. Mandatory roles cannot be
// removed.
func (s *Set) Pop(name string) (Var, error) {
	v, err := s.Get(name)
	if err != nil {
		return nil, err
	}
	if s.roles.contains(name) {
		return nil, fmt.Errorf("%w: %q", ErrMandatoryVariable, name)
	}
	delete(s.byName, name)
	delete(s.temporary, name)
	for i, e := range s.elements {
		if e.Name() == name {
			s.elements = append(s.elements[:i], s.elements[i+1:]...)
			break
		}
	}
	for i, n := range s.saveOrder {
		if n == name {
			s.saveOrder = append(s.saveOrder[:i], s.saveOrder[i+1:]...)
			break
		}
	}
	return v, nil
}

// MarkTemporary flags members that exist only to feed derived variables.
// Mandatory roles cannot be temporary.
func (s *Set) MarkTemporary(names ...string) error {
	for _, name := range names {
		if _, err := s.Get(name); err != nil {
			return err
		}
		if s.roles.contains(name) {
			return fmt.Errorf("%w: %q", ErrMandatoryVariable, name)
		}
		if s.temporary == nil {
			s.temporary = make(map[string]bool)
		}
		s.temporary[name] = true
	}
	return nil
}

// TemporaryNames returns the marked members in declaration order.
func (s *Set) TemporaryNames() []string {
	var out []string
	for _, v := range s.elements {
		if s.temporary[v.Name()] {
			out = append(out, v.Name())
		}
	}
	return out
}

// Get returns the variable named name.
func (s *Set) Get(name string) (Var, error) {
	v, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (valid names: %v)", ErrUnknownVariable, name, s.Names())
	}
	return v, nil
}

func (s *Set) Has(name string) bool {
	_, ok := s.byName[name]
	return ok
}

func (s *Set) Len() int { return len(s.elements) }

// Elements returns the variables in declaration order.
func (s *Set) Elements() []Var { return append([]Var(nil), s.elements...) }

// Names returns the variable names in declaration order.
func (s *Set) Names() []string {
	names := make([]string, len(s.elements))
	for i, v := range s.elements {
		names[i] = v.Name()
	}
	return names
}

// Labels returns the column labels in declaration order.
func (s *Set) Labels() []string {
	labels := make([]string, len(s.elements))
	for i, v := range s.elements {
		labels[i] = v.Label()
	}
	return labels
}

// Role accessors, fixed at construction.

func (s *Set) ExpocodeName() string  { return s.roles.expocode }
func (s *Set) DateName() string      { return s.roles.date }
func (s *Set) YearName() string      { return s.roles.year }
func (s *Set) MonthName() string     { return s.roles.month }
func (s *Set) DayName() string       { return s.roles.day }
func (s *Set) LatitudeName() string  { return s.roles.latitude }
func (s *Set) LongitudeName() string { return s.roles.longitude }
func (s *Set) DepthName() string     { return s.roles.depth }

// ProviderName returns the provider role name; ok is false when the set was
// built without one.
func (s *Set) ProviderName() (string, bool) {
	return s.roles.provider, s.roles.provider != ""
}

// HourName returns the hour role name; ok is false when the set was built
// without one.
func (s *Set) HourName() (string, bool) {
	return s.roles.hour, s.roles.hour != ""
}

// Equal reports whether both sets declare the same variables: same names,
// units and kinds, independent of declaration order.
func (s *Set) Equal(other *Set) bool {
	if other == nil || len(s.elements) != len(other.elements) {
		return false
	}
	for name, v := range s.byName {
		o, ok := other.byName[name]
		if !ok || v.Unit() != o.Unit() || v.Kind() != o.Kind() {
			return false
		}
	}
	return true
}

// Clone returns a copy sharing the (immutable) variables but with
// independent membership and save order.
func (s *Set) Clone() *Set {
	out := &Set{
		elements:  append([]Var(nil), s.elements...),
		byName:    make(map[string]Var, len(s.byName)),
		roles:     s.roles,
		saveOrder: append([]string(nil), s.saveOrder...),
	}
	for name, v := range s.byName {
		out.byName[name] = v
	}
	if s.temporary != nil {
		out.temporary = make(map[string]bool, len(s.temporary))
		for name := range s.temporary {
			out.temporary[name] = true
		}
	}
	return out
}

// LoadingSet expands every feature into the leaf (non-derived) variables the
// loader must actually read, deduplicated by name and keeping declaration
// order of first appearance.
func (s *Set) LoadingSet() *Set {
	out := &Set{byName: make(map[string]Var), roles: s.roles}
	var add func(v Var)
	add = func(v Var) {
		if feat, ok := v.(Feature); ok {
			for _, name := range feat.RequiredInputs() {
				if input, ok := s.byName[name]; ok {
					add(input)
				}
			}
			return
		}
		if _, seen := out.byName[v.Name()]; seen {
			return
		}
		out.elements = append(out.elements, v)
		out.byName[v.Name()] = v
		out.saveOrder = append(out.saveOrder, v.Name())
	}
	for _, v := range s.elements {
		add(v)
	}
	for name := range s.temporary {
		if _, ok := out.byName[name]; ok {
			if out.temporary == nil {
				out.temporary = make(map[string]bool, len(s.temporary))
			}
			out.temporary[name] = true
		}
	}
	return out
}

// Features returns every feature the set needs, including features only
// required as inputs of other features.
func (s *Set) Features() []Feature {
	var out []Feature
	seen := make(map[string]bool)
	var walk func(v Var)
	walk = func(v Var) {
		feat, ok := v.(Feature)
		if !ok {
			return
		}
		if !seen[feat.Name()] {
			seen[feat.Name()] = true
			out = append(out, feat)
		}
		for _, name := range feat.RequiredInputs() {
			if input, ok := s.byName[name]; ok {
				walk(input)
			}
		}
	}
	for _, v := range s.elements {
		walk(v)
	}
	return out
}

// Corrections maps column labels to the correction functions of existing
// variables that carry one.
func (s *Set) Corrections() map[string]func([]float64) []float64 {
	out := make(map[string]func([]float64) []float64)
	for _, v := range s.elements {
		if ev, ok := v.(Existing); ok && ev.correction != nil {
			out[ev.Label()] = ev.correction
		}
	}
	return out
}

// RemoveWhenAnyNaN returns the labels whose NaN alone removes a row.
func (s *Set) RemoveWhenAnyNaN() []string {
	var out []string
	for _, v := range s.elements {
		switch t := v.(type) {
		case Existing:
			if t.removesWhenNaN() {
				out = append(out, t.Label())
			}
		case Absent:
			if t.removesWhenNaN() {
				out = append(out, t.Label())
			}
		}
	}
	return out
}

// RemoveWhenAllNaN returns the labels participating in joint all-NaN removal.
func (s *Set) RemoveWhenAllNaN() []string {
	var out []string
	for _, v := range s.elements {
		switch t := v.(type) {
		case Existing:
			if t.removesWhenAllNaN() {
				out = append(out, t.Label())
			}
		case Absent:
			if t.removesWhenAllNaN() {
				out = append(out, t.Label())
			}
		}
	}
	return out
}

// SetSavingOrder fixes the serialization order; every name must belong to
// the set. Names left out keep their relative declaration order appended
// after the given ones.
func (s *Set) SetSavingOrder(names []string) error {
	seen := make(map[string]bool, len(names))
	order := make([]string, 0, len(s.elements))
	for _, name := range names {
		if !s.Has(name) {
			return fmt.Errorf("%w: %q", ErrUnknownVariable, name)
		}
		if !seen[name] {
			seen[name] = true
			order = append(order, name)
		}
	}
	for _, v := range s.elements {
		if !seen[v.Name()] {
			order = append(order, v.Name())
		}
	}
	s.saveOrder = order
	return nil
}

// SaveNames returns the variable names in saving order.
func (s *Set) SaveNames() []string { return append([]string(nil), s.saveOrder...) }
