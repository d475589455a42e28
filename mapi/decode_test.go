package mapi

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func le16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func newTestDecoder(t *testing.T) *Decoder {
	t.Helper()
	d, err := NewDecoder(0)
	require.NoError(t, err)
	return d
}

func TestDecodeFixedWidth(t *testing.T) {
	d := newTestDecoder(t)
	when := time.Date(2009, 7, 1, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		typ  Type
		data []byte
		want any
	}{
		{"int16", TypeInt16, le16(0xFFFE), int16(-2)},
		{"int32", TypeInt32, le32(1252), int32(1252)},
		{"float32", TypeFloat32, le32(math.Float32bits(1.5)), float32(1.5)},
		{"float64", TypeFloat64, le64(math.Float64bits(-2.25)), float64(-2.25)},
		{"currency", TypeCurrency, le64(125000), Currency(125000)},
		{"error", TypeErrorCode, le32(0x8004010F), ErrorCode(0x8004010F)},
		{"bool true", TypeBoolean, le16(1), true},
		{"bool false", TypeBoolean, le16(0), false},
		{"int64", TypeInt64, le64(1 << 40), int64(1 << 40)},
		{"filetime", TypeTime, le64(TimeToFiletime(when)), when},
		{"apptime", TypeAppTime, le64(math.Float64bits(2.5)), time.Date(1900, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"null", TypeNull, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := d.Decode(tt.typ, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.typ, v.Type)
			assert.Equal(t, tt.want, v.Interface())
		})
	}
}

func TestDecodeWidthMismatch(t *testing.T) {
	d := newTestDecoder(t)
	for _, typ := range []Type{TypeInt16, TypeInt32, TypeFloat64, TypeBoolean, TypeTime, TypeGUID} {
		t.Run(typ.String(), func(t *testing.T) {
			_, err := d.Decode(typ, make([]byte, typ.Width()+1))
			assert.ErrorIs(t, err, ErrMalformedValue)

			var mv *MalformedValueError
			require.ErrorAs(t, err, &mv)
			assert.Equal(t, typ, mv.Type)
		})
	}
}

func TestDecodeUnknownType(t *testing.T) {
	d := newTestDecoder(t)
	for _, typ := range []Type{TypeUnspecified, 0x0099, TypeNull | MultiValued, TypeObject | MultiValued} {
		_, err := d.Decode(typ, []byte{1, 2})
		assert.ErrorIs(t, err, ErrMalformedValue, typ.String())
	}
}

func TestDecodeStrings(t *testing.T) {
	d := newTestDecoder(t)

	v, err := d.Decode(TypeUnicode, append(EncodeUTF16("test-unicode.doc"), 0, 0))
	require.NoError(t, err)
	s, ok := v.AsString()
	require.True(t, ok)
	assert.Equal(t, "test-unicode.doc", s)

	v, err = d.Decode(TypeUnicode, EncodeUTF16("pièce \U0001F600"))
	require.NoError(t, err)
	s, _ = v.AsString()
	assert.Equal(t, "pièce \U0001F600", s)

	v, err = d.Decode(TypeString8, []byte("TEST-U~1.DOC\x00"))
	require.NoError(t, err)
	s, _ = v.AsString()
	assert.Equal(t, "TEST-U~1.DOC", s)

	v, err = d.Decode(TypeString8, []byte("pi\xe8ce"))
	require.NoError(t, err)
	s, _ = v.AsString()
	assert.Equal(t, "pièce", s, "windows-1252 fallback")

	v, err = d.Decode(TypeUnicode, nil)
	require.NoError(t, err)
	s, _ = v.AsString()
	assert.Empty(t, s)
}

func TestDecodeUnicodeMalformed(t *testing.T) {
	d := newTestDecoder(t)

	_, err := d.Decode(TypeUnicode, []byte{'a', 0, 'b'})
	assert.ErrorIs(t, err, ErrMalformedValue, "odd length")

	_, err = d.Decode(TypeUnicode, le16(0xD800))
	assert.ErrorIs(t, err, ErrMalformedValue, "lone high surrogate")

	_, err = d.Decode(TypeUnicode, append(le16(0xDC00), 'a', 0))
	assert.ErrorIs(t, err, ErrMalformedValue, "lone low surrogate")
}

func TestDecodeCodePage(t *testing.T) {
	d, err := NewDecoder(1251)
	require.NoError(t, err)
	assert.Equal(t, 1251, d.CodePage())

	v, err := d.Decode(TypeString8, []byte{0xCF, 0xF0, 0xE8, 0xE2, 0xE5, 0xF2})
	require.NoError(t, err)
	s, _ := v.AsString()
	assert.Equal(t, "Привет", s)

	_, err = NewDecoder(99999)
	assert.ErrorIs(t, err, ErrUnknownCodePage)
}

func TestDecodeBinaryPassthrough(t *testing.T) {
	d := newTestDecoder(t)
	payload := make([]byte, 24064)
	payload[0], payload[len(payload)-1] = 0xD0, 0xFF

	v, err := d.Decode(TypeBinary, payload)
	require.NoError(t, err)
	b, ok := v.AsBytes()
	require.True(t, ok)
	assert.Len(t, b, 24064)
	assert.Equal(t, payload, b)
}

func TestDecodeGUID(t *testing.T) {
	d := newTestDecoder(t)
	raw := []byte{0x28, 0x03, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0xC0, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x46}

	v, err := d.Decode(TypeGUID, raw)
	require.NoError(t, err)
	g, ok := v.AsGUID()
	require.True(t, ok)
	assert.Equal(t, PSMAPI, g)
	assert.Equal(t, raw, GUIDBytes(g))
	assert.Equal(t, "{00020328-0000-0000-C000-000000000046}", v.String())

	random := uuid.New()
	back, err := ParseGUID(GUIDBytes(random))
	require.NoError(t, err)
	assert.Equal(t, random, back)
}

func TestDecodeMultiFixed(t *testing.T) {
	d := newTestDecoder(t)
	typ := TypeInt32 | MultiValued

	var data []byte
	for _, n := range []uint32{7, 8, 9} {
		data = append(data, le32(n)...)
	}
	v, err := d.Decode(typ, data)
	require.NoError(t, err)
	assert.Equal(t, typ, v.Type)

	elems, ok := v.Elements()
	require.True(t, ok)
	require.Len(t, elems, 3)
	for i, e := range elems {
		scalar, err := d.Decode(TypeInt32, data[i*4:(i+1)*4])
		require.NoError(t, err)
		assert.Equal(t, scalar, e)
	}

	v, err = d.Decode(typ, nil)
	require.NoError(t, err)
	elems, ok = v.Elements()
	require.True(t, ok)
	assert.Empty(t, elems)

	_, err = d.Decode(typ, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrMalformedValue)

	_, err = d.Decode(TypeUnicode|MultiValued, EncodeUTF16("x"))
	assert.ErrorIs(t, err, ErrMalformedValue)
}

func TestDecodeElements(t *testing.T) {
	d := newTestDecoder(t)
	typ := TypeUnicode | MultiValued

	v, err := d.DecodeElements(typ, [][]byte{
		append(EncodeUTF16("alpha"), 0, 0),
		EncodeUTF16("beta"),
	})
	require.NoError(t, err)
	assert.Equal(t, "[alpha, beta]", v.String())

	v, err = d.DecodeElements(typ, nil)
	require.NoError(t, err)
	elems, _ := v.Elements()
	assert.Empty(t, elems)

	_, err = d.DecodeElements(typ, [][]byte{{'x'}})
	assert.ErrorIs(t, err, ErrMalformedValue)

	small := d.WithMaxElements(1)
	_, err = small.DecodeElements(typ, [][]byte{nil, nil})
	assert.ErrorIs(t, err, ErrMalformedValue)
	_, err = d.DecodeElements(typ, [][]byte{nil, nil})
	assert.NoError(t, err, "WithMaxElements must not mutate the receiver")
}

func TestDecodeOffsets(t *testing.T) {
	d := newTestDecoder(t)
	values := []byte("onetwothree")

	var offsets []byte
	for _, o := range []uint32{0, 3, 6, 11} {
		offsets = append(offsets, le32(o)...)
	}

	v, err := d.DecodeOffsets(TypeString8|MultiValued, offsets, values)
	require.NoError(t, err)
	elems, _ := v.Elements()
	require.Len(t, elems, 3)
	for i, want := range []string{"one", "two", "three"} {
		s, _ := elems[i].AsString()
		assert.Equal(t, want, s)
	}

	v, err = d.DecodeOffsets(TypeBinary|MultiValued, le32(0), nil)
	require.NoError(t, err)
	elems, _ = v.Elements()
	assert.Empty(t, elems)

	_, err = d.DecodeOffsets(TypeBinary|MultiValued, append(le32(0), le32(99)...), values)
	assert.ErrorIs(t, err, ErrMalformedValue)

	_, err = d.DecodeOffsets(TypeBinary|MultiValued, append(le32(5), le32(2)...), values)
	assert.ErrorIs(t, err, ErrMalformedValue)

	_, err = SplitOffsets([]byte{1, 2, 3}, values)
	assert.Error(t, err)
}

func TestFiletime(t *testing.T) {
	assert.True(t, FiletimeToTime(0).IsZero())
	assert.Equal(t, time.Unix(0, 0).UTC(), FiletimeToTime(116444736000000000))

	when := time.Date(2024, 2, 29, 23, 59, 58, 123456700, time.UTC)
	assert.Equal(t, when, FiletimeToTime(TimeToFiletime(when)))
}

func TestTypeHelpers(t *testing.T) {
	assert.Equal(t, "MultipleUnicode", (TypeUnicode | MultiValued).String())
	assert.Equal(t, "0x0099", Type(0x0099).String())
	assert.Equal(t, TypeBinary, (TypeBinary | MultiValued).Base())
	assert.True(t, (TypeBinary | MultiValued).IsMulti())
	assert.Equal(t, -1, TypeString8.Width())
	assert.Equal(t, 16, (TypeGUID | MultiValued).Width())
	assert.True(t, IsNamedTag(0x8001))
	assert.False(t, IsNamedTag(0x0037))
	assert.False(t, IsNamedTag(0xFFFF))
}

func TestValueSlicesAreCopies(t *testing.T) {
	d := newTestDecoder(t)

	v, err := d.Decode(TypeBinary, []byte{1, 2, 3})
	require.NoError(t, err)
	b, _ := v.AsBytes()
	b[0] = 0xFF
	again, _ := v.AsBytes()
	assert.Equal(t, []byte{1, 2, 3}, again)

	v, err = d.Decode(TypeInt32|MultiValued, append(le32(7), le32(8)...))
	require.NoError(t, err)
	elems, _ := v.Elements()
	elems[0] = Value{}
	elems, _ = v.Elements()
	n, ok := elems[0].AsInt()
	require.True(t, ok)
	assert.EqualValues(t, 7, n)
}
