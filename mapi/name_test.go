package mapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEntryName(t *testing.T) {
	tests := []struct {
		name string
		want EntryName
	}{
		{"__substg1.0_0037001F", EntryName{Kind: EntryProperty, Tag: 0x0037, Type: TypeUnicode}},
		{"__substg1.0_0037001f", EntryName{Kind: EntryProperty, Tag: 0x0037, Type: TypeUnicode}},
		{"__substg1.0_370e001e", EntryName{Kind: EntryProperty, Tag: 0x370E, Type: TypeString8}},
		{"__substg1.0_3701000D", EntryName{Kind: EntryProperty, Tag: 0x3701, Type: TypeObject}},
		{"__substg1.0_8001101F-00000002", EntryName{Kind: EntryMultiElement, Tag: 0x8001, Type: TypeUnicode | MultiValued, Index: 2}},
		{"__recip_version1.0_#0000000A", EntryName{Kind: EntryRecipient, Index: 10}},
		{"__recip_version1.0_#0000000a", EntryName{Kind: EntryRecipient, Index: 10}},
		{"__attach_version1.0_#00000001", EntryName{Kind: EntryAttachment, Index: 1}},
		{"__nameid_version1.0", EntryName{Kind: EntryNameID}},
		{"__properties_version1.0", EntryName{Kind: EntryProperties}},

		{"__substg1.0_00Z7001F", EntryName{Kind: EntryUnknown}},
		{"__substg1.0_0037001", EntryName{Kind: EntryUnknown}},
		{"__substg1.0_0037001F0", EntryName{Kind: EntryUnknown}},
		{"__substg1.0_0037001F-1", EntryName{Kind: EntryUnknown}},
		{"__substg1.0_+037001F", EntryName{Kind: EntryUnknown}},
		{"__recip_version1.0_#0000000", EntryName{Kind: EntryUnknown}},
		{"__attach_version1.0_#0000000G", EntryName{Kind: EntryUnknown}},
		{"__nameid_version1.0x", EntryName{Kind: EntryUnknown}},
		{"\x01CompObj", EntryName{Kind: EntryUnknown}},
		{"", EntryName{Kind: EntryUnknown}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseEntryName(tt.name))
		})
	}
}

func TestEntryNameBuilders(t *testing.T) {
	assert.Equal(t, "__substg1.0_0037001F", PropertyStreamName(TagSubject, TypeUnicode))
	assert.Equal(t, "__substg1.0_8001101F-00000003", ElementStreamName(0x8001, TypeUnicode|MultiValued, 3))
	assert.Equal(t, "__recip_version1.0_#00000000", RecipientStorageName(0))
	assert.Equal(t, "__attach_version1.0_#0000001F", AttachmentStorageName(31))

	for _, name := range []string{
		PropertyStreamName(0xABCD, TypeBinary),
		ElementStreamName(0x1234, TypeBinary|MultiValued, 7),
		RecipientStorageName(5),
		AttachmentStorageName(6),
	} {
		assert.NotEqual(t, EntryUnknown, ParseEntryName(name).Kind, name)
	}
}
