package table

import (
	"math"
	"strconv"
	"time"
)

// Kind is the native kind of a single cell.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindTime
	KindString
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindTime:
		return "time"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Numeric reports whether the kind is an integer or float.
func (k Kind) Numeric() bool { return k == KindInt || k == KindFloat }

// Value is one cell of a Table. The zero Value is null.
type Value struct {
	kind Kind
	i    int64
	f    float64
	t    time.Time
	s    string
	b    bool
}

func Null() Value                { return Value{} }
func IntValue(v int64) Value     { return Value{kind: KindInt, i: v} }
func FloatValue(v float64) Value { return Value{kind: KindFloat, f: v} }
func StringValue(v string) Value { return Value{kind: KindString, s: v} }
func BoolValue(v bool) Value     { return Value{kind: KindBool, b: v} }

// TimeValue stores t normalized to UTC.
func TimeValue(t time.Time) Value { return Value{kind: KindTime, t: t.UTC()} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Int returns the integer payload.
func (v Value) Int() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// Float returns the numeric payload, widening ints.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	}
	return 0, false
}

func (v Value) Time() (time.Time, bool) {
	if v.kind != KindTime {
		return time.Time{}, false
	}
	return v.t, true
}

func (v Value) Text() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// String renders the display form used in reports and prompts. Null renders
// as the empty string.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindTime:
		if isMidnight(v.t) {
			return v.t.Format("2006-01-02")
		}
		return v.t.Format(time.RFC3339Nano)
	case KindString:
		return v.s
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Equal compares kind and payload. Ints and integral floats are not equal
// here; use KeyPart for key matching.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindTime:
		return v.t.Equal(o.t)
	case KindString:
		return v.s == o.s
	case KindBool:
		return v.b == o.b
	}
	return false
}

// KeyPart returns a kind-tagged canonical encoding used to build primary-key
// tuples. Integral floats encode like ints so 1 and 1.0 match across
// snapshots that were typed differently.
func (v Value) KeyPart() string {
	switch v.kind {
	case KindInt:
		return "i:" + strconv.FormatInt(v.i, 10)
	case KindFloat:
		if v.f == math.Trunc(v.f) && math.Abs(v.f) < 1<<63 {
			return "i:" + strconv.FormatInt(int64(v.f), 10)
		}
		return "f:" + strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindTime:
		return "t:" + v.t.Format(time.RFC3339Nano)
	case KindString:
		return "s:" + strconv.Itoa(len(v.s)) + ":" + v.s
	case KindBool:
		if v.b {
			return "b:1"
		}
		return "b:0"
	default:
		return "n"
	}
}

func isMidnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}
