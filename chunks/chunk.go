// Package chunks decodes the streams of an Outlook message container into
// typed chunk groups: one message group, one group per recipient and
// attachment, and the named-property table.
package chunks

import (
	"time"

	"github.com/dhcgn/msg-to-imap/mapi"
)

// Chunk is one decoded property. Err is set when the stream bytes could not
// be decoded; Value is then the zero Value.
type Chunk struct {
	Tag    uint16
	Type   mapi.Type
	Value  mapi.Value
	Err    error
	Source string
}

func (c Chunk) OK() bool {
	return c.Err == nil
}

// Named reports whether the tag lies in the custom property range.
func (c Chunk) Named() bool {
	return mapi.IsNamedTag(c.Tag)
}

// Overwrite records a chunk replaced by a later chunk with the same tag.
type Overwrite struct {
	Tag      uint16
	Previous Chunk
	Current  Chunk
}

// Set maps tags to chunks. A tag appears at most once; a later insert
// replaces the earlier chunk in place and is recorded in Overwrites.
// A Set is read-only once the walk that built it returns.
type Set struct {
	index      map[uint16]int
	list       []Chunk
	overwrites []Overwrite
}

func (s *Set) put(c Chunk) {
	if s.index == nil {
		s.index = make(map[uint16]int)
	}
	if i, ok := s.index[c.Tag]; ok {
		s.overwrites = append(s.overwrites, Overwrite{Tag: c.Tag, Previous: s.list[i], Current: c})
		s.list[i] = c
		return
	}
	s.index[c.Tag] = len(s.list)
	s.list = append(s.list, c)
}

// Get returns the chunk for tag, including chunks that failed to decode.
func (s *Set) Get(tag uint16) (Chunk, bool) {
	if s == nil {
		return Chunk{}, false
	}
	i, ok := s.index[tag]
	if !ok {
		return Chunk{}, false
	}
	return s.list[i], true
}

func (s *Set) Has(tag uint16) bool {
	_, ok := s.Get(tag)
	return ok
}

// Value returns the decoded value for tag. Failed chunks count as absent.
func (s *Set) Value(tag uint16) (mapi.Value, bool) {
	c, ok := s.Get(tag)
	if !ok || !c.OK() {
		return mapi.Value{}, false
	}
	return c.Value, true
}

// All returns the chunks in first-insertion order.
func (s *Set) All() []Chunk {
	if s == nil {
		return nil
	}
	out := make([]Chunk, len(s.list))
	copy(out, s.list)
	return out
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.list)
}

func (s *Set) Overwrites() []Overwrite {
	if s == nil {
		return nil
	}
	out := make([]Overwrite, len(s.overwrites))
	copy(out, s.overwrites)
	return out
}

// Failures returns the chunks whose bytes could not be decoded.
func (s *Set) Failures() []Chunk {
	var out []Chunk
	for _, c := range s.All() {
		if !c.OK() {
			out = append(out, c)
		}
	}
	return out
}

func (s *Set) String(tag uint16) (string, bool) {
	v, ok := s.Value(tag)
	if !ok {
		return "", false
	}
	return v.AsString()
}

func (s *Set) Bytes(tag uint16) ([]byte, bool) {
	v, ok := s.Value(tag)
	if !ok {
		return nil, false
	}
	return v.AsBytes()
}

func (s *Set) Int(tag uint16) (int64, bool) {
	v, ok := s.Value(tag)
	if !ok {
		return 0, false
	}
	return v.AsInt()
}

func (s *Set) Bool(tag uint16) (bool, bool) {
	v, ok := s.Value(tag)
	if !ok {
		return false, false
	}
	return v.AsBool()
}

func (s *Set) Time(tag uint16) (time.Time, bool) {
	v, ok := s.Value(tag)
	if !ok {
		return time.Time{}, false
	}
	return v.AsTime()
}
