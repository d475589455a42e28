// Package storage exposes compound-file containers (OLE2/CFB) as a tree of
// named streams and sub-storages.
package storage

import "errors"

// ErrNotFound is returned when a named stream or sub-storage does not exist.
// Callers use it to detect optional structures.
var ErrNotFound = errors.New("entry not found")

// Kind distinguishes streams from sub-storages.
type Kind int

const (
	KindStream Kind = iota
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindStream:
		return "stream"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Entry is one directory entry of a storage.
type Entry struct {
	Name string
	Kind Kind
}

// Storage is a read-only view of one storage level of a container.
// Entries are reported in container order.
type Storage interface {
	Entries() ([]Entry, error)
	ReadStream(name string) ([]byte, error)
	OpenStorage(name string) (Storage, error)
}
