package chunks

import (
	"encoding/binary"
	"fmt"

	"github.com/dhcgn/msg-to-imap/mapi"
)

// Header lengths of the fixed-property stream.
const (
	topHeaderLen      = 32
	embeddedHeaderLen = 24
	subHeaderLen      = 8
	propertyRecordLen = 16
)

// fixedProperties is the decoded content of a __properties_version1.0
// stream.
type fixedProperties struct {
	chunks      []Chunk
	recipients  int64
	attachments int64
	counts      bool
	trailing    int
}

// readFixedProperties splits the stream into 16-byte records after a header
// of headerLen bytes. Only fixed-width values are held inline; records of
// variable-width types point at a stream of their own and are skipped.
func readFixedProperties(dec *mapi.Decoder, data []byte, headerLen int) (fixedProperties, error) {
	var fp fixedProperties
	if len(data) < headerLen {
		return fp, fmt.Errorf("%d bytes is shorter than the %d byte header", len(data), headerLen)
	}
	le := binary.LittleEndian
	if headerLen >= embeddedHeaderLen {
		fp.recipients = int64(le.Uint32(data[16:]))
		fp.attachments = int64(le.Uint32(data[20:]))
		fp.counts = true
	}

	body := data[headerLen:]
	fp.trailing = len(body) % propertyRecordLen
	for off := 0; off+propertyRecordLen <= len(body); off += propertyRecordLen {
		rec := body[off : off+propertyRecordLen]
		tag := le.Uint32(rec)
		typ := mapi.Type(tag & 0xFFFF)
		c := Chunk{Tag: uint16(tag >> 16), Type: typ, Source: mapi.PropertiesStream}

		if !typ.Known() {
			_, c.Err = dec.Decode(typ, nil)
			fp.chunks = append(fp.chunks, c)
			continue
		}
		w := typ.Width()
		if typ.IsMulti() || w < 0 || w > 8 {
			continue
		}
		c.Value, c.Err = dec.Decode(typ, rec[8:8+w])
		fp.chunks = append(fp.chunks, c)
	}
	return fp, nil
}

// declaredCodePage returns the code page a container names for its ANSI
// strings. PR_MESSAGE_CODEPAGE takes precedence over PR_INTERNET_CPID.
func declaredCodePage(chunks []Chunk) (int, bool) {
	var found [2]int
	for _, c := range chunks {
		if !c.OK() {
			continue
		}
		v, ok := c.Value.AsInt()
		if !ok || v <= 0 {
			continue
		}
		switch c.Tag {
		case mapi.TagMessageCodePage:
			found[0] = int(v)
		case mapi.TagInternetCPID:
			found[1] = int(v)
		}
	}
	for _, cp := range found {
		if cp > 0 {
			return cp, true
		}
	}
	return 0, false
}
