package chunks

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/msg-to-imap/mapi"
)

func TestBuildNamedProperties(t *testing.T) {
	custom := uuid.MustParse("00062008-0000-0000-c000-000000000046")
	guids := mapi.GUIDBytes(custom)

	name := mapi.EncodeUTF16("Keywords")
	strs := append(u32(uint32(len(name))), name...)

	var table []byte
	add := func(key, info uint32) {
		table = append(table, u32(key)...)
		table = append(table, u32(info)...)
	}
	add(0x8503, 0<<16|3<<1)        // numeric, custom set
	add(0, 1<<16|2<<1|1)           // string, PS_PUBLIC_STRINGS
	add(0x10, 2<<16|2<<1|1)        // string offset out of range
	add(0x1, 3<<16|9<<1)           // GUID index out of range
	add(0x2, 0x7FFF<<16|1<<1)      // property index past the named range
	table = append(table, 1, 2, 3) // partial record

	names, skipped := buildNamedProperties(guids, table, strs)
	assert.Equal(t, 3, skipped)
	require.Equal(t, 2, names.Len())

	p, err := names.Lookup(0x8000)
	require.NoError(t, err)
	assert.Equal(t, custom, p.GUID)
	assert.Equal(t, uint32(0x8503), p.ID)
	assert.Equal(t, "{00062008-0000-0000-C000-000000000046}/0x8503", p.String())

	p, err = names.Lookup(0x8001)
	require.NoError(t, err)
	assert.Equal(t, "Keywords", p.Name)

	tag, ok := names.TagForID(custom, 0x8503)
	require.True(t, ok)
	assert.Equal(t, uint16(0x8000), tag)
	_, ok = names.TagForName(custom, "Keywords")
	assert.False(t, ok)

	all := names.All()
	require.Len(t, all, 2)
	assert.Equal(t, uint16(0x8000), all[0].Tag)
}

func TestNilNamedProperties(t *testing.T) {
	var names *NamedProperties
	assert.Equal(t, 0, names.Len())
	assert.Nil(t, names.All())
	assert.False(t, names.Resolve(0x8001).Resolved)
	_, err := names.Lookup(0x8001)
	assert.ErrorIs(t, err, ErrUnresolvableNamedProperty)
}

func TestSetOverwriteKeepsPosition(t *testing.T) {
	var s Set
	s.put(Chunk{Tag: 1, Source: "a"})
	s.put(Chunk{Tag: 2, Source: "b"})
	s.put(Chunk{Tag: 1, Source: "c"})

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, "c", all[0].Source)
	assert.Equal(t, "b", all[1].Source)
	require.Len(t, s.Overwrites(), 1)
	assert.Equal(t, "a", s.Overwrites()[0].Previous.Source)

	var nilSet *Set
	assert.False(t, nilSet.Has(1))
	assert.Equal(t, 0, nilSet.Len())
	_, ok := nilSet.String(1)
	assert.False(t, ok)
}
