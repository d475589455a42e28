package storage

import "fmt"

// Dir is an in-memory Storage. It is what OpenCFB produces and what tests
// use to assemble containers by hand.
type Dir struct {
	entries []Entry
	streams map[string][]byte
	dirs    map[string]*Dir
}

// NewDir returns an empty storage.
func NewDir() *Dir {
	return &Dir{
		streams: make(map[string][]byte),
		dirs:    make(map[string]*Dir),
	}
}

// AddStream adds or replaces a stream and returns d for chaining.
// A replaced entry keeps its original position.
func (d *Dir) AddStream(name string, data []byte) *Dir {
	if _, ok := d.dirs[name]; ok {
		delete(d.dirs, name)
		d.setKind(name, KindStream)
	} else if _, ok := d.streams[name]; !ok {
		d.entries = append(d.entries, Entry{Name: name, Kind: KindStream})
	}
	d.streams[name] = data
	return d
}

// AddStorage adds a sub-storage and returns it. Adding an existing
// sub-storage returns the existing one.
func (d *Dir) AddStorage(name string) *Dir {
	if child, ok := d.dirs[name]; ok {
		return child
	}
	if _, ok := d.streams[name]; ok {
		delete(d.streams, name)
		d.setKind(name, KindStorage)
	} else {
		d.entries = append(d.entries, Entry{Name: name, Kind: KindStorage})
	}
	child := NewDir()
	d.dirs[name] = child
	return child
}

func (d *Dir) setKind(name string, kind Kind) {
	for i := range d.entries {
		if d.entries[i].Name == name {
			d.entries[i].Kind = kind
			return
		}
	}
}

// Entries returns a copy of the entry list in insertion order.
func (d *Dir) Entries() ([]Entry, error) {
	out := make([]Entry, len(d.entries))
	copy(out, d.entries)
	return out, nil
}

func (d *Dir) ReadStream(name string) ([]byte, error) {
	data, ok := d.streams[name]
	if !ok {
		return nil, fmt.Errorf("stream %q: %w", name, ErrNotFound)
	}
	return data, nil
}

func (d *Dir) OpenStorage(name string) (Storage, error) {
	child, ok := d.dirs[name]
	if !ok {
		return nil, fmt.Errorf("storage %q: %w", name, ErrNotFound)
	}
	return child, nil
}
