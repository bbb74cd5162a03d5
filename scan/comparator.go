package scan

import (
	"bytes"
	"fmt"

	"memhound/process"
)

type comparatorKind int

const (
	cmpEquals comparatorKind = iota
	cmpChanged
	cmpUnchanged
	cmpIncreased
	cmpDecreased
	cmpIncreasedBy
	cmpDecreasedBy
	cmpInRange
)

// Comparator is a refine predicate applied to a candidate's freshly read
// value, optionally against its previously observed value.
type Comparator struct {
	kind comparatorKind
	a, b process.Value
}

// Equals keeps candidates whose current value equals the literal.
func Equals(v process.Value) Comparator {
	return Comparator{kind: cmpEquals, a: v}
}

// Changed keeps candidates whose value differs from the previous pass.
func Changed() Comparator { return Comparator{kind: cmpChanged} }

// Unchanged keeps candidates whose value matches the previous pass.
func Unchanged() Comparator { return Comparator{kind: cmpUnchanged} }

// Increased keeps candidates whose numeric value grew.
func Increased() Comparator { return Comparator{kind: cmpIncreased} }

// Decreased keeps candidates whose numeric value shrank.
func Decreased() Comparator { return Comparator{kind: cmpDecreased} }

// IncreasedBy keeps candidates whose value grew by exactly delta.
func IncreasedBy(delta process.Value) Comparator {
	return Comparator{kind: cmpIncreasedBy, a: delta}
}

// DecreasedBy keeps candidates whose value shrank by exactly delta.
func DecreasedBy(delta process.Value) Comparator {
	return Comparator{kind: cmpDecreasedBy, a: delta}
}

// InRange keeps candidates whose numeric value lies in [lo, hi].
func InRange(lo, hi process.Value) Comparator {
	return Comparator{kind: cmpInRange, a: lo, b: hi}
}

func (c Comparator) String() string {
	switch c.kind {
	case cmpEquals:
		return fmt.Sprintf("equals(%s)", c.a)
	case cmpChanged:
		return "changed"
	case cmpUnchanged:
		return "unchanged"
	case cmpIncreased:
		return "increased"
	case cmpDecreased:
		return "decreased"
	case cmpIncreasedBy:
		return fmt.Sprintf("increased-by(%s)", c.a)
	case cmpDecreasedBy:
		return fmt.Sprintf("decreased-by(%s)", c.a)
	case cmpInRange:
		return fmt.Sprintf("in-range(%s, %s)", c.a, c.b)
	default:
		return "comparator(?)"
	}
}

// ordered reports whether the comparator needs numeric ordering, which only
// applies to numeric value types.
func (c Comparator) ordered() bool {
	switch c.kind {
	case cmpIncreased, cmpDecreased, cmpIncreasedBy, cmpDecreasedBy, cmpInRange:
		return true
	}
	return false
}

// Valid reports whether the comparator applies to the session's value type.
func (c Comparator) Valid(t process.ValueType) bool {
	return !c.ordered() || t.Numeric()
}

// compareNumeric orders two raw values of the same numeric type.
func compareNumeric(t process.ValueType, x, y []byte) int {
	switch t {
	case process.Float32, process.Float64:
		a, b := process.NewValue(t, x).Float64(), process.NewValue(t, y).Float64()
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
	case process.Uint8, process.Uint16, process.Uint32, process.Uint64:
		a, b := process.NewValue(t, x).Uint64(), process.NewValue(t, y).Uint64()
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
	default:
		a, b := process.NewValue(t, x).Int64(), process.NewValue(t, y).Int64()
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
	}
	return 0
}

func deltaMatches(t process.ValueType, prev, cur []byte, delta process.Value, sign float64) bool {
	switch t {
	case process.Float32, process.Float64:
		p := process.NewValue(t, prev).Float64()
		c := process.NewValue(t, cur).Float64()
		return c == p+sign*delta.Float64()
	default:
		p := process.NewValue(t, prev).Int64()
		c := process.NewValue(t, cur).Int64()
		return c == p+int64(sign)*delta.Int64()
	}
}

// Apply evaluates the comparator for one candidate. prev is the value
// observed on the previous pass, cur the fresh read.
func (c Comparator) Apply(t process.ValueType, prev, cur []byte) bool {
	switch c.kind {
	case cmpEquals:
		return bytes.Equal(c.a.Raw, cur)
	case cmpChanged:
		return !bytes.Equal(prev, cur)
	case cmpUnchanged:
		return bytes.Equal(prev, cur)
	case cmpIncreased:
		return compareNumeric(t, cur, prev) > 0
	case cmpDecreased:
		return compareNumeric(t, cur, prev) < 0
	case cmpIncreasedBy:
		return deltaMatches(t, prev, cur, c.a, 1)
	case cmpDecreasedBy:
		return deltaMatches(t, prev, cur, c.a, -1)
	case cmpInRange:
		return compareNumeric(t, cur, c.a.Raw) >= 0 && compareNumeric(t, cur, c.b.Raw) <= 0
	default:
		return false
	}
}
