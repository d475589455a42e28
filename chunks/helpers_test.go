package chunks

import (
	"encoding/binary"
	"errors"

	"github.com/dhcgn/msg-to-imap/mapi"
	"github.com/dhcgn/msg-to-imap/storage"
)

func unicodeZ(s string) []byte {
	return append(mapi.EncodeUTF16(s), 0, 0)
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// record builds one 16-byte fixed-property record.
func record(tag uint16, typ mapi.Type, value uint64) []byte {
	b := make([]byte, propertyRecordLen)
	binary.LittleEndian.PutUint32(b, uint32(tag)<<16|uint32(typ))
	binary.LittleEndian.PutUint32(b[4:], 0x6)
	binary.LittleEndian.PutUint64(b[8:], value)
	return b
}

// properties builds a fixed-property stream with a header of headerLen
// bytes carrying the given recipient and attachment counts.
func properties(headerLen int, recipients, attachments uint32, records ...[]byte) []byte {
	b := make([]byte, headerLen)
	if headerLen >= embeddedHeaderLen {
		binary.LittleEndian.PutUint32(b[16:], recipients)
		binary.LittleEndian.PutUint32(b[20:], attachments)
	}
	for _, r := range records {
		b = append(b, r...)
	}
	return b
}

type namedEntry struct {
	index     uint16
	guidIndex uint16
	name      string
	id        uint32
}

// addNameID builds a named-property storage with an empty GUID stream.
func addNameID(root *storage.Dir, entries ...namedEntry) {
	var table, strs []byte
	for _, e := range entries {
		info := uint32(e.index)<<16 | uint32(e.guidIndex)<<1
		key := e.id
		if e.name != "" {
			info |= 1
			key = uint32(len(strs))
			name := mapi.EncodeUTF16(e.name)
			strs = append(strs, u32(uint32(len(name)))...)
			strs = append(strs, name...)
			for len(strs)%4 != 0 {
				strs = append(strs, 0)
			}
		}
		table = append(table, u32(key)...)
		table = append(table, u32(info)...)
	}
	root.AddStorage(mapi.NameIDStorage).
		AddStream("__substg1.0_00020102", nil).
		AddStream("__substg1.0_00030102", table).
		AddStream("__substg1.0_00040102", strs)
}

var errBoom = errors.New("sector chain broken")

// brokenStorage fails to read one stream or to list its entries.
type brokenStorage struct {
	storage.Storage
	stream      string
	listEntries bool
}

func (b brokenStorage) Entries() ([]storage.Entry, error) {
	if b.listEntries {
		return nil, errBoom
	}
	return b.Storage.Entries()
}

func (b brokenStorage) ReadStream(name string) ([]byte, error) {
	if name == b.stream {
		return nil, errBoom
	}
	return b.Storage.ReadStream(name)
}
