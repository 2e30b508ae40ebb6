package storage

import (
	"fmt"
	"strings"
)

// ValueType identifies the type of a stored value.
type ValueType int

const (
	TypeNull ValueType = iota
	TypeInteger
	TypeReal
	TypeText
	TypeBoolean
)

func (t ValueType) String() string {
	switch t {
	case TypeNull:
		return "NULL"
	case TypeInteger:
		return "INTEGER"
	case TypeReal:
		return "REAL"
	case TypeText:
		return "TEXT"
	case TypeBoolean:
		return "BOOLEAN"
	default:
		return "UNKNOWN"
	}
}

// ParseValueType resolves a column type name from a schema definition.
func ParseValueType(name string) (ValueType, error) {
	switch strings.ToUpper(name) {
	case "INTEGER", "INT":
		return TypeInteger, nil
	case "REAL", "FLOAT", "DOUBLE":
		return TypeReal, nil
	case "TEXT", "STRING", "VARCHAR":
		return TypeText, nil
	case "BOOLEAN", "BOOL":
		return TypeBoolean, nil
	default:
		return TypeNull, fmt.Errorf("unknown column type %q", name)
	}
}

// Value is a single typed cell. The zero value is NULL.
type Value struct {
	Type ValueType `json:"type"`
	Int  int64     `json:"int,omitempty"`
	Real float64   `json:"real,omitempty"`
	Text string    `json:"text,omitempty"`
	Bool bool      `json:"bool,omitempty"`
}

// Null returns the NULL value.
func Null() Value { return Value{Type: TypeNull} }

// Integer wraps an int64.
func Integer(v int64) Value { return Value{Type: TypeInteger, Int: v} }

// Real wraps a float64.
func Real(v float64) Value { return Value{Type: TypeReal, Real: v} }

// Text wraps a string.
func Text(v string) Value { return Value{Type: TypeText, Text: v} }

// Boolean wraps a bool.
func Boolean(v bool) Value { return Value{Type: TypeBoolean, Bool: v} }

// FromGo converts a Go value supplied by a caller into a Value.
func FromGo(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case int:
		return Integer(int64(x)), nil
	case int32:
		return Integer(int64(x)), nil
	case int64:
		return Integer(x), nil
	case float32:
		return Real(float64(x)), nil
	case float64:
		return Real(x), nil
	case string:
		return Text(x), nil
	case bool:
		return Boolean(x), nil
	case Value:
		return x, nil
	default:
		return Null(), fmt.Errorf("unsupported parameter type %T", v)
	}
}

// Go returns the native Go representation of the value.
func (v Value) Go() any {
	switch v.Type {
	case TypeInteger:
		return v.Int
	case TypeReal:
		return v.Real
	case TypeText:
		return v.Text
	case TypeBoolean:
		return v.Bool
	default:
		return nil
	}
}

// Equal reports whether two values have the same type and content.
func (v Value) Equal(other Value) bool {
	if v.Type != other.Type {
		return false
	}
	switch v.Type {
	case TypeNull:
		return true
	case TypeInteger:
		return v.Int == other.Int
	case TypeReal:
		return v.Real == other.Real
	case TypeText:
		return v.Text == other.Text
	case TypeBoolean:
		return v.Bool == other.Bool
	default:
		return false
	}
}

// Compare orders two values of the same type: -1, 0 or 1. Comparing
// values of different types (or NULLs) reports an error; WHERE clauses
// treat that as no match.
func (v Value) Compare(other Value) (int, error) {
	if v.Type != other.Type {
		return 0, fmt.Errorf("cannot compare %s with %s", v.Type, other.Type)
	}
	switch v.Type {
	case TypeInteger:
		return cmp(v.Int, other.Int), nil
	case TypeReal:
		return cmp(v.Real, other.Real), nil
	case TypeText:
		return strings.Compare(v.Text, other.Text), nil
	default:
		return 0, fmt.Errorf("values of type %s are not ordered", v.Type)
	}
}

func cmp[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (v Value) String() string {
	switch v.Type {
	case TypeNull:
		return "NULL"
	case TypeInteger:
		return fmt.Sprintf("%d", v.Int)
	case TypeReal:
		return fmt.Sprintf("%g", v.Real)
	case TypeText:
		return v.Text
	case TypeBoolean:
		return fmt.Sprintf("%t", v.Bool)
	default:
		return "?"
	}
}
