package table

import (
	"fmt"
	"math"
	"time"
)

// Kind is the closed set of primitive column types.
type Kind int

const (
	Float Kind = iota
	Int
	String
	Time
)

func (k Kind) String() string {
	switch k {
	case Float:
		return "float"
	case Int:
		return "int"
	case String:
		return "string"
	case Time:
		return "time"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is a single typed cell. Only the field matching Kind is meaningful.
type Value struct {
	Kind Kind
	F    float64
	I    int64
	S    string
	T    time.Time
}

func FloatVal(f float64) Value  { return Value{Kind: Float, F: f} }
func IntVal(i int64) Value      { return Value{Kind: Int, I: i} }
func StringVal(s string) Value  { return Value{Kind: String, S: s} }
func TimeVal(t time.Time) Value { return Value{Kind: Time, T: t} }

// NaN returns the float missing-value sentinel.
func NaN() Value { return Value{Kind: Float, F: math.NaN()} }

// IsMissing reports whether the value is the missing sentinel for its kind:
// NaN for floats, the zero time for times. Ints and strings have no missing
// representation.
func (v Value) IsMissing() bool {
	switch v.Kind {
	case Float:
		return math.IsNaN(v.F)
	case Time:
		return v.T.IsZero()
	default:
		return false
	}
}

// Less compares two values of the same kind. Comparing mismatched kinds or
// strings-to-strings by order is not needed anywhere, so Less on String falls
// back to lexicographic comparison.
func (v Value) Less(other Value) bool {
	switch v.Kind {
	case Float:
		return v.F < other.F
	case Int:
		return v.I < other.I
	case Time:
		return v.T.Before(other.T)
	case String:
		return v.S < other.S
	default:
		return false
	}
}

// Equal reports value equality for same-kind values.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case Float:
		return v.F == other.F
	case Int:
		return v.I == other.I
	case Time:
		return v.T.Equal(other.T)
	case String:
		return v.S == other.S
	default:
		return false
	}
}

// Format renders the value with a fmt verb suited to its kind, e.g. "%12.6f"
// for floats or "%-12s" for strings and times.
func (v Value) Format(verb string) string {
	switch v.Kind {
	case Float:
		return fmt.Sprintf(verb, v.F)
	case Int:
		return fmt.Sprintf(verb, v.I)
	case Time:
		return fmt.Sprintf(verb, v.T.Format("2006-01-02"))
	default:
		return fmt.Sprintf(verb, v.S)
	}
}
