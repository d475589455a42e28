package chunks

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/dhcgn/msg-to-imap/mapi"
)

// Streams of the named-property storage.
const (
	nameIDGUIDTag    = 0x0002
	nameIDEntryTag   = 0x0003
	nameIDStringTag  = 0x0004
	nameIDEntryWidth = 8
)

// PropertyName identifies a custom property by property set and either a
// string name or a numeric id. Resolved is false for placeholders returned
// for tags without a named-property entry.
type PropertyName struct {
	Tag      uint16
	GUID     uuid.UUID
	IsString bool
	Name     string
	ID       uint32
	Resolved bool
}

func (p PropertyName) String() string {
	if !p.Resolved {
		return fmt.Sprintf("unknown custom property 0x%04X", p.Tag)
	}
	set := "{" + strings.ToUpper(p.GUID.String()) + "}"
	if p.IsString {
		return fmt.Sprintf("%s/%s", set, p.Name)
	}
	return fmt.Sprintf("%s/0x%04X", set, p.ID)
}

// NamedProperties maps custom tags (0x8000 and up) to property names. It is
// read-only after construction; a nil *NamedProperties is an empty mapping.
type NamedProperties struct {
	byTag map[uint16]PropertyName
}

func newNamedProperties() *NamedProperties {
	return &NamedProperties{byTag: make(map[uint16]PropertyName)}
}

// Lookup returns the name mapped to tag or ErrUnresolvableNamedProperty.
func (n *NamedProperties) Lookup(tag uint16) (PropertyName, error) {
	if n != nil {
		if p, ok := n.byTag[tag]; ok {
			return p, nil
		}
	}
	return PropertyName{}, fmt.Errorf("tag 0x%04X: %w", tag, ErrUnresolvableNamedProperty)
}

// Resolve never fails: unmapped tags yield a placeholder with Resolved
// false.
func (n *NamedProperties) Resolve(tag uint16) PropertyName {
	p, err := n.Lookup(tag)
	if err != nil {
		return PropertyName{Tag: tag}
	}
	return p
}

// TagForName returns the tag assigned to a string-named property.
func (n *NamedProperties) TagForName(set uuid.UUID, name string) (uint16, bool) {
	for _, p := range n.All() {
		if p.IsString && p.GUID == set && p.Name == name {
			return p.Tag, true
		}
	}
	return 0, false
}

// TagForID returns the tag assigned to a numeric-id property.
func (n *NamedProperties) TagForID(set uuid.UUID, id uint32) (uint16, bool) {
	for _, p := range n.All() {
		if !p.IsString && p.GUID == set && p.ID == id {
			return p.Tag, true
		}
	}
	return 0, false
}

// All returns every mapping ordered by tag.
func (n *NamedProperties) All() []PropertyName {
	if n == nil {
		return nil
	}
	out := make([]PropertyName, 0, len(n.byTag))
	for _, p := range n.byTag {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

func (n *NamedProperties) Len() int {
	if n == nil {
		return 0
	}
	return len(n.byTag)
}

// buildNamedProperties decodes the GUID, entry and string streams of the
// named-property storage. Records that point outside their pools are
// skipped and counted in skipped.
func buildNamedProperties(guids, entries, strs []byte) (names *NamedProperties, skipped int) {
	names = newNamedProperties()

	var sets []uuid.UUID
	for i := 0; i+16 <= len(guids); i += 16 {
		g, _ := mapi.ParseGUID(guids[i : i+16])
		sets = append(sets, g)
	}

	le := binary.LittleEndian
	for i := 0; i+nameIDEntryWidth <= len(entries); i += nameIDEntryWidth {
		key := le.Uint32(entries[i:])
		info := le.Uint32(entries[i+4:])

		propIndex := info >> 16
		if propIndex > mapi.LastNamedTag-mapi.FirstNamedTag {
			skipped++
			continue
		}
		p := PropertyName{
			Tag:      uint16(mapi.FirstNamedTag + propIndex),
			IsString: info&1 == 1,
			Resolved: true,
		}

		switch guidIndex := (info >> 1) & 0x7FFF; {
		case guidIndex == 0:
			p.GUID = uuid.Nil
		case guidIndex == 1:
			p.GUID = mapi.PSMAPI
		case guidIndex == 2:
			p.GUID = mapi.PSPublicStrings
		case int(guidIndex-3) < len(sets):
			p.GUID = sets[guidIndex-3]
		default:
			skipped++
			continue
		}

		if p.IsString {
			name, ok := nameAt(strs, key)
			if !ok {
				skipped++
				continue
			}
			p.Name = name
		} else {
			p.ID = key
		}
		names.byTag[p.Tag] = p
	}
	return names, skipped
}

// nameAt reads the length-prefixed UTF-16LE name at offset off of the
// string stream.
func nameAt(strs []byte, off uint32) (string, bool) {
	start := uint64(off)
	if start+4 > uint64(len(strs)) {
		return "", false
	}
	n := uint64(binary.LittleEndian.Uint32(strs[start:]))
	end := start + 4 + n
	if end > uint64(len(strs)) {
		return "", false
	}
	name, err := mapi.DecodeUTF16(strs[start+4 : end])
	if err != nil {
		return "", false
	}
	return name, true
}
