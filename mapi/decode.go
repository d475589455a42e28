package mapi

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf16"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// DefaultMaxElements caps multivalued element counts.
const DefaultMaxElements = 1 << 16

// ErrMalformedValue matches every *MalformedValueError.
var ErrMalformedValue = errors.New("malformed value")

// MalformedValueError reports bytes that cannot be decoded as their type.
type MalformedValueError struct {
	Type   Type
	Reason string
	Err    error
}

func (e *MalformedValueError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed %s value: %s: %v", e.Type, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed %s value: %s", e.Type, e.Reason)
}

func (e *MalformedValueError) Is(target error) bool {
	return target == ErrMalformedValue
}

func (e *MalformedValueError) Unwrap() error {
	return e.Err
}

func malformed(t Type, format string, args ...any) error {
	return &MalformedValueError{Type: t, Reason: fmt.Sprintf(format, args...)}
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Decoder turns raw property bytes into Values. It is safe for concurrent
// use; the code page is fixed at construction.
type Decoder struct {
	codePage    int
	ansi        encoding.Encoding
	maxElements int
}

// NewDecoder returns a decoder that reads PT_STRING8 values in codePage.
// Zero selects DefaultCodePage.
func NewDecoder(codePage int) (*Decoder, error) {
	if codePage == 0 {
		codePage = DefaultCodePage
	}
	enc, err := CodePageEncoding(codePage)
	if err != nil {
		return nil, err
	}
	return &Decoder{codePage: codePage, ansi: enc, maxElements: DefaultMaxElements}, nil
}

// WithMaxElements returns a copy of d that rejects multivalued properties
// with more than n elements.
func (d *Decoder) WithMaxElements(n int) *Decoder {
	c := *d
	if n > 0 {
		c.maxElements = n
	}
	return &c
}

func (d *Decoder) CodePage() int {
	return d.codePage
}

// Decode decodes a scalar, or a multivalued property of a fixed-width base
// type whose elements are packed back to back in data.
func (d *Decoder) Decode(t Type, data []byte) (Value, error) {
	if !t.Known() {
		return Value{}, malformed(t, "unrecognized type code")
	}
	if !t.IsMulti() {
		return d.decodeScalar(t, data)
	}

	width := t.Width()
	if width <= 0 {
		return Value{}, malformed(t, "variable-width multivalued property needs element streams")
	}
	if len(data)%width != 0 {
		return Value{}, malformed(t, "%d bytes is not a multiple of %d", len(data), width)
	}
	elems := make([][]byte, len(data)/width)
	for i := range elems {
		elems[i] = data[i*width : (i+1)*width]
	}
	return d.DecodeElements(t, elems)
}

// DecodeElements decodes a multivalued property from its already separated
// element byte slices. Each element is decoded by the scalar rule of the
// base type. Zero elements yield an empty sequence.
func (d *Decoder) DecodeElements(t Type, elems [][]byte) (Value, error) {
	if !t.Known() {
		return Value{}, malformed(t, "unrecognized type code")
	}
	if len(elems) > d.maxElements {
		return Value{}, malformed(t, "%d elements exceeds limit of %d", len(elems), d.maxElements)
	}
	t |= MultiValued
	out := make([]Value, len(elems))
	for i, raw := range elems {
		v, err := d.decodeScalar(t.Base(), raw)
		if err != nil {
			return Value{}, &MalformedValueError{Type: t, Reason: fmt.Sprintf("element %d", i), Err: err}
		}
		out[i] = v
	}
	return newValue(t, out), nil
}

// DecodeOffsets decodes a multivalued property given as an offsets stream
// of N+1 little-endian uint32 boundaries and the concatenated values.
func (d *Decoder) DecodeOffsets(t Type, offsets, values []byte) (Value, error) {
	elems, err := SplitOffsets(offsets, values)
	if err != nil {
		return Value{}, &MalformedValueError{Type: t, Reason: "offsets", Err: err}
	}
	return d.DecodeElements(t, elems)
}

// SplitOffsets partitions values at the N+1 boundaries held in offsets.
// Boundaries must be non-decreasing and within values. An empty offsets
// stream, or a single boundary, yields zero elements.
func SplitOffsets(offsets, values []byte) ([][]byte, error) {
	if len(offsets)%4 != 0 {
		return nil, fmt.Errorf("offsets stream length %d is not a multiple of 4", len(offsets))
	}
	n := len(offsets) / 4
	if n < 2 {
		return [][]byte{}, nil
	}
	bounds := make([]uint32, n)
	for i := range bounds {
		bounds[i] = binary.LittleEndian.Uint32(offsets[i*4:])
	}
	out := make([][]byte, n-1)
	for i := range out {
		start, end := bounds[i], bounds[i+1]
		if start > end || int64(end) > int64(len(values)) {
			return nil, fmt.Errorf("element %d bounds [%d,%d) outside %d bytes", i, start, end, len(values))
		}
		out[i] = values[start:end]
	}
	return out, nil
}

func (d *Decoder) decodeScalar(t Type, data []byte) (Value, error) {
	if w := t.Width(); w >= 0 && len(data) != w {
		return Value{}, malformed(t, "want %d bytes, got %d", w, len(data))
	}

	le := binary.LittleEndian
	switch t {
	case TypeNull:
		return newValue(t, nil), nil
	case TypeInt16:
		return newValue(t, int16(le.Uint16(data))), nil
	case TypeInt32:
		return newValue(t, int32(le.Uint32(data))), nil
	case TypeFloat32:
		return newValue(t, math.Float32frombits(le.Uint32(data))), nil
	case TypeFloat64:
		return newValue(t, math.Float64frombits(le.Uint64(data))), nil
	case TypeCurrency:
		return newValue(t, Currency(int64(le.Uint64(data)))), nil
	case TypeAppTime:
		return newValue(t, AppTimeToTime(math.Float64frombits(le.Uint64(data)))), nil
	case TypeErrorCode:
		return newValue(t, ErrorCode(le.Uint32(data))), nil
	case TypeBoolean:
		return newValue(t, le.Uint16(data) != 0), nil
	case TypeInt64:
		return newValue(t, int64(le.Uint64(data))), nil
	case TypeTime:
		return newValue(t, FiletimeToTime(le.Uint64(data))), nil
	case TypeGUID:
		g, err := ParseGUID(data)
		if err != nil {
			return Value{}, &MalformedValueError{Type: t, Reason: "guid", Err: err}
		}
		return newValue(t, g), nil
	case TypeBinary, TypeObject:
		return newValue(t, data), nil
	case TypeString8:
		s, err := d.DecodeANSI(data)
		if err != nil {
			return Value{}, &MalformedValueError{Type: t, Reason: fmt.Sprintf("code page %d", d.codePage), Err: err}
		}
		return newValue(t, s), nil
	case TypeUnicode:
		s, err := DecodeUTF16(data)
		if err != nil {
			return Value{}, &MalformedValueError{Type: t, Reason: "utf-16le", Err: err}
		}
		return newValue(t, s), nil
	default:
		return Value{}, malformed(t, "unrecognized type code")
	}
}

// DecodeANSI decodes data in the decoder's code page. Trailing NUL bytes
// are stripped.
func (d *Decoder) DecodeANSI(data []byte) (string, error) {
	data = bytes.TrimRight(data, "\x00")
	out, err := d.ansi.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// DecodeUTF16 decodes UTF-16LE. Trailing NUL code units are stripped; an
// odd byte count or an unpaired surrogate is an error.
func DecodeUTF16(data []byte) (string, error) {
	if len(data)%2 != 0 {
		return "", fmt.Errorf("odd byte count %d", len(data))
	}
	for len(data) >= 2 && data[len(data)-1] == 0 && data[len(data)-2] == 0 {
		data = data[:len(data)-2]
	}
	if err := checkSurrogates(data); err != nil {
		return "", err
	}
	out, err := utf16le.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func checkSurrogates(data []byte) error {
	n := len(data) / 2
	for i := 0; i < n; i++ {
		u := rune(binary.LittleEndian.Uint16(data[i*2:]))
		if !utf16.IsSurrogate(u) {
			continue
		}
		if u >= 0xDC00 || i+1 >= n {
			return fmt.Errorf("unpaired surrogate 0x%04X at unit %d", u, i)
		}
		next := rune(binary.LittleEndian.Uint16(data[(i+1)*2:]))
		if next < 0xDC00 || next > 0xDFFF {
			return fmt.Errorf("unpaired surrogate 0x%04X at unit %d", u, i)
		}
		i++
	}
	return nil
}

// EncodeUTF16 encodes s as UTF-16LE without a terminator.
func EncodeUTF16(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[i*2:], u)
	}
	return out
}
