package chunks

import (
	"errors"
	"fmt"

	"github.com/dhcgn/msg-to-imap/storage"
)

var (
	// ErrDepthLimit is returned when embedded messages nest deeper than
	// Options.MaxDepth.
	ErrDepthLimit = errors.New("embedded message depth limit exceeded")

	// ErrUnresolvableNamedProperty is returned by NamedProperties.Lookup for
	// a custom tag without a named-property entry.
	ErrUnresolvableNamedProperty = errors.New("unresolvable named property")
)

// ContainerReadError is a structural failure of the container reader. It
// aborts the parse that hit it.
type ContainerReadError struct {
	Path string
	Err  error
}

func (e *ContainerReadError) Error() string {
	return fmt.Sprintf("read container %s: %v", e.Path, e.Err)
}

func (e *ContainerReadError) Unwrap() error {
	return e.Err
}

// UnknownEntry is a container entry the walker could not classify. It is
// diagnostic only.
type UnknownEntry struct {
	Path   string
	Name   string
	Kind   storage.Kind
	Reason string
}

func (u UnknownEntry) String() string {
	return fmt.Sprintf("%s/%s (%s): %s", u.Path, u.Name, u.Kind, u.Reason)
}
