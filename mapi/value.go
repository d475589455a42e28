package mapi

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Currency is a PT_CURRENCY value: a signed 64-bit integer scaled by 10000.
type Currency int64

func (c Currency) Float() float64 {
	return float64(c) / 10000
}

// ErrorCode is a PT_ERROR value (an SCODE).
type ErrorCode uint32

// Value is a decoded property value.
//
// The dynamic value depends on the base type: nil (Null), int16, int32,
// float32, float64, Currency, time.Time (AppTime and Time), ErrorCode,
// bool, int64, string (String8 and Unicode), uuid.UUID, []byte (Binary and
// Object). Multivalued values hold a []Value of the base type.
type Value struct {
	Type Type
	v    any
}

func newValue(t Type, v any) Value {
	return Value{Type: t, v: v}
}

// Interface returns the underlying Go value. Slices are shared with the
// value and must not be modified.
func (v Value) Interface() any {
	return v.v
}

func (v Value) IsZero() bool {
	return v.Type == TypeUnspecified && v.v == nil
}

func (v Value) AsString() (string, bool) {
	s, ok := v.v.(string)
	return s, ok
}

// AsBytes returns a copy of a binary value.
func (v Value) AsBytes() ([]byte, bool) {
	b, ok := v.v.([]byte)
	return bytes.Clone(b), ok
}

// AsInt widens any integer-valued type. Currency returns its raw scaled
// value.
func (v Value) AsInt() (int64, bool) {
	switch x := v.v.(type) {
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case Currency:
		return int64(x), true
	case ErrorCode:
		return int64(x), true
	default:
		return 0, false
	}
}

func (v Value) AsFloat() (float64, bool) {
	switch x := v.v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case Currency:
		return x.Float(), true
	default:
		return 0, false
	}
}

func (v Value) AsBool() (bool, bool) {
	b, ok := v.v.(bool)
	return b, ok
}

func (v Value) AsTime() (time.Time, bool) {
	t, ok := v.v.(time.Time)
	return t, ok
}

func (v Value) AsGUID() (uuid.UUID, bool) {
	g, ok := v.v.(uuid.UUID)
	return g, ok
}

// Elements returns a copy of the ordered elements of a multivalued value.
func (v Value) Elements() ([]Value, bool) {
	e, ok := v.v.([]Value)
	return slices.Clone(e), ok
}

// String renders the value for diagnostics. Binary values are shown as
// truncated hex.
func (v Value) String() string {
	switch x := v.v.(type) {
	case nil:
		return "<null>"
	case string:
		return x
	case []byte:
		const limit = 32
		if len(x) > limit {
			return fmt.Sprintf("%s... (%d bytes)", hex.EncodeToString(x[:limit]), len(x))
		}
		return hex.EncodeToString(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case uuid.UUID:
		return "{" + strings.ToUpper(x.String()) + "}"
	case Currency:
		return fmt.Sprintf("%.4f", x.Float())
	case ErrorCode:
		return fmt.Sprintf("0x%08X", uint32(x))
	case []Value:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(x)
	}
}
