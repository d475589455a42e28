package mapi

import (
	"fmt"

	"github.com/google/uuid"
)

// Property set GUIDs referenced by GUID index 1 and 2 of the named
// property entry stream.
var (
	PSMAPI          = uuid.MustParse("00020328-0000-0000-c000-000000000046")
	PSPublicStrings = uuid.MustParse("00020329-0000-0000-c000-000000000046")
)

// ParseGUID reassembles a 16-byte GUID stored in the Windows mixed-endian
// layout: Data1, Data2 and Data3 little-endian, Data4 as bytes.
func ParseGUID(b []byte) (uuid.UUID, error) {
	if len(b) != 16 {
		return uuid.Nil, fmt.Errorf("guid needs 16 bytes, got %d", len(b))
	}
	var u uuid.UUID
	u[0], u[1], u[2], u[3] = b[3], b[2], b[1], b[0]
	u[4], u[5] = b[5], b[4]
	u[6], u[7] = b[7], b[6]
	copy(u[8:], b[8:])
	return u, nil
}

// GUIDBytes is the inverse of ParseGUID.
func GUIDBytes(u uuid.UUID) []byte {
	b := make([]byte, 16)
	b[0], b[1], b[2], b[3] = u[3], u[2], u[1], u[0]
	b[4], b[5] = u[5], u[4]
	b[6], b[7] = u[7], u[6]
	copy(b[8:], u[8:])
	return b
}
