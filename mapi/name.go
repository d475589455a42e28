package mapi

import (
	"fmt"
	"strconv"
	"strings"
)

// Entry names defined by the .msg container format (MS-OXMSG 2.2).
const (
	PropertyPrefix   = "__substg1.0_"
	RecipientPrefix  = "__recip_version1.0_#"
	AttachmentPrefix = "__attach_version1.0_#"
	NameIDStorage    = "__nameid_version1.0"
	PropertiesStream = "__properties_version1.0"
)

// EntryKind classifies a container entry by its name.
type EntryKind int

const (
	EntryUnknown EntryKind = iota
	// EntryProperty is a direct property stream: prefix, 4 hex tag, 4 hex type.
	EntryProperty
	// EntryMultiElement is one element stream of a variable-width
	// multivalued property: a property name followed by "-" and 8 hex digits.
	EntryMultiElement
	// EntryProperties is the fixed-width property stream.
	EntryProperties
	EntryRecipient
	EntryAttachment
	EntryNameID
)

func (k EntryKind) String() string {
	switch k {
	case EntryProperty:
		return "property"
	case EntryMultiElement:
		return "multivalue-element"
	case EntryProperties:
		return "properties"
	case EntryRecipient:
		return "recipient"
	case EntryAttachment:
		return "attachment"
	case EntryNameID:
		return "nameid"
	default:
		return "unknown"
	}
}

// EntryName is the parsed form of an entry name. Tag and Type are set for
// property and element streams; Index is the recipient, attachment or
// element index.
type EntryName struct {
	Kind  EntryKind
	Tag   uint16
	Type  Type
	Index uint32
}

// ParseEntryName classifies name. Hex fields are case-insensitive. A name
// with a known prefix but malformed hex is EntryUnknown.
func ParseEntryName(name string) EntryName {
	switch {
	case name == NameIDStorage:
		return EntryName{Kind: EntryNameID}
	case name == PropertiesStream:
		return EntryName{Kind: EntryProperties}
	case strings.HasPrefix(name, RecipientPrefix):
		if idx, ok := parseHex(name[len(RecipientPrefix):], 8); ok {
			return EntryName{Kind: EntryRecipient, Index: uint32(idx)}
		}
	case strings.HasPrefix(name, AttachmentPrefix):
		if idx, ok := parseHex(name[len(AttachmentPrefix):], 8); ok {
			return EntryName{Kind: EntryAttachment, Index: uint32(idx)}
		}
	case strings.HasPrefix(name, PropertyPrefix):
		return parsePropertyName(name[len(PropertyPrefix):])
	}
	return EntryName{Kind: EntryUnknown}
}

func parsePropertyName(rest string) EntryName {
	if len(rest) < 8 {
		return EntryName{Kind: EntryUnknown}
	}
	tag, ok := parseHex(rest[:4], 4)
	if !ok {
		return EntryName{Kind: EntryUnknown}
	}
	typ, ok := parseHex(rest[4:8], 4)
	if !ok {
		return EntryName{Kind: EntryUnknown}
	}

	switch suffix := rest[8:]; {
	case suffix == "":
		return EntryName{Kind: EntryProperty, Tag: uint16(tag), Type: Type(typ)}
	case suffix[0] == '-':
		idx, ok := parseHex(suffix[1:], 8)
		if !ok {
			return EntryName{Kind: EntryUnknown}
		}
		return EntryName{Kind: EntryMultiElement, Tag: uint16(tag), Type: Type(typ), Index: uint32(idx)}
	default:
		return EntryName{Kind: EntryUnknown}
	}
}

func parseHex(s string, digits int) (uint64, bool) {
	if len(s) != digits {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return 0, false
		}
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// PropertyStreamName builds the stream name for a property.
func PropertyStreamName(tag uint16, t Type) string {
	return fmt.Sprintf("%s%04X%04X", PropertyPrefix, tag, uint16(t))
}

// ElementStreamName builds the name of element i of a variable-width
// multivalued property.
func ElementStreamName(tag uint16, t Type, i uint32) string {
	return fmt.Sprintf("%s-%08X", PropertyStreamName(tag, t), i)
}

func RecipientStorageName(i uint32) string {
	return fmt.Sprintf("%s%08X", RecipientPrefix, i)
}

func AttachmentStorageName(i uint32) string {
	return fmt.Sprintf("%s%08X", AttachmentPrefix, i)
}
