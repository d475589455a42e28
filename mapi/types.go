// Package mapi decodes the property streams of Outlook .msg containers:
// it parses entry names into property tags and type codes, and turns raw
// stream bytes into typed values.
package mapi

import "fmt"

// Type is a MAPI property type code, as embedded in stream names.
type Type uint16

// Property type codes (MS-OXCDATA 2.11.1).
const (
	TypeUnspecified Type = 0x0000
	TypeNull        Type = 0x0001
	TypeInt16       Type = 0x0002 // PT_SHORT
	TypeInt32       Type = 0x0003 // PT_LONG
	TypeFloat32     Type = 0x0004 // PT_FLOAT
	TypeFloat64     Type = 0x0005 // PT_DOUBLE
	TypeCurrency    Type = 0x0006 // PT_CURRENCY
	TypeAppTime     Type = 0x0007 // PT_APPTIME
	TypeErrorCode   Type = 0x000A // PT_ERROR
	TypeBoolean     Type = 0x000B // PT_BOOLEAN
	TypeObject      Type = 0x000D // PT_OBJECT
	TypeInt64       Type = 0x0014 // PT_I8
	TypeString8     Type = 0x001E // PT_STRING8
	TypeUnicode     Type = 0x001F // PT_UNICODE
	TypeTime        Type = 0x0040 // PT_SYSTIME
	TypeGUID        Type = 0x0048 // PT_CLSID
	TypeBinary      Type = 0x0102 // PT_BINARY

	// MultiValued is OR-ed into a base type for multivalued properties.
	MultiValued Type = 0x1000
)

var typeNames = map[Type]string{
	TypeUnspecified: "Unspecified",
	TypeNull:        "Null",
	TypeInt16:       "Int16",
	TypeInt32:       "Int32",
	TypeFloat32:     "Float32",
	TypeFloat64:     "Float64",
	TypeCurrency:    "Currency",
	TypeAppTime:     "AppTime",
	TypeErrorCode:   "ErrorCode",
	TypeBoolean:     "Boolean",
	TypeObject:      "Object",
	TypeInt64:       "Int64",
	TypeString8:     "String8",
	TypeUnicode:     "Unicode",
	TypeTime:        "Time",
	TypeGUID:        "GUID",
	TypeBinary:      "Binary",
}

// IsMulti reports whether the multivalued flag is set.
func (t Type) IsMulti() bool {
	return t&MultiValued != 0
}

// Base strips the multivalued flag.
func (t Type) Base() Type {
	return t &^ MultiValued
}

// Known reports whether the decoder has a rule for t.
func (t Type) Known() bool {
	base := t.Base()
	if base == TypeUnspecified {
		return false
	}
	if t.IsMulti() && (base == TypeNull || base == TypeObject) {
		return false
	}
	_, ok := typeNames[base]
	return ok
}

// Width returns the exact byte width of one value of the base type, or -1
// for variable-width types.
func (t Type) Width() int {
	switch t.Base() {
	case TypeNull:
		return 0
	case TypeInt16, TypeBoolean:
		return 2
	case TypeInt32, TypeFloat32, TypeErrorCode:
		return 4
	case TypeFloat64, TypeCurrency, TypeAppTime, TypeInt64, TypeTime:
		return 8
	case TypeGUID:
		return 16
	default:
		return -1
	}
}

// Fixed reports whether values of the base type have a fixed width.
func (t Type) Fixed() bool {
	return t.Width() >= 0
}

func (t Type) String() string {
	name, ok := typeNames[t.Base()]
	if !ok {
		return fmt.Sprintf("0x%04X", uint16(t))
	}
	if t.IsMulti() {
		return "Multiple" + name
	}
	return name
}
