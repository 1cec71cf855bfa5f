package extraction

import (
	"strconv"
	"strings"
)

// ValueKind is the inferred type of an extracted value
type ValueKind int

const (
	ValueString ValueKind = iota
	ValueBool
	ValueInt
	ValueFloat
	ValueList
)

// String returns the string representation of the value kind
func (k ValueKind) String() string {
	switch k {
	case ValueBool:
		return "bool"
	case ValueInt:
		return "int"
	case ValueFloat:
		return "float"
	case ValueList:
		return "list"
	default:
		return "string"
	}
}

// Value is a typed extracted value. Exactly one payload field is meaningful,
// selected by Kind.
type Value struct {
	Kind  ValueKind
	Bool  bool
	Int   int64
	Float float64
	List  []string
	Str   string
}

// StringValue creates a string value
func StringValue(s string) Value { return Value{Kind: ValueString, Str: s} }

// BoolValue creates a boolean value
func BoolValue(b bool) Value { return Value{Kind: ValueBool, Bool: b} }

// IntValue creates an integer value
func IntValue(i int64) Value { return Value{Kind: ValueInt, Int: i} }

// FloatValue creates a floating-point value
func FloatValue(f float64) Value { return Value{Kind: ValueFloat, Float: f} }

// ListValue creates a list value
func ListValue(items []string) Value { return Value{Kind: ValueList, List: items} }

// Interface returns the payload as a plain Go value for encoders:
// bool, int64, float64, []string or string.
func (v Value) Interface() any {
	switch v.Kind {
	case ValueBool:
		return v.Bool
	case ValueInt:
		return v.Int
	case ValueFloat:
		return v.Float
	case ValueList:
		out := make([]string, len(v.List))
		copy(out, v.List)
		return out
	default:
		return v.Str
	}
}

// String renders the value for logs
func (v Value) String() string {
	switch v.Kind {
	case ValueBool:
		return strconv.FormatBool(v.Bool)
	case ValueInt:
		return strconv.FormatInt(v.Int, 10)
	case ValueFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case ValueList:
		return "[" + strings.Join(v.List, ", ") + "]"
	default:
		return v.Str
	}
}
