package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/richardlehane/mscfb"
)

// OpenCFB reads a compound file and loads its whole directory tree, stream
// contents included, into memory. The reader is not used after OpenCFB
// returns.
func OpenCFB(r io.ReaderAt) (*Dir, error) {
	doc, err := mscfb.New(r)
	if err != nil {
		return nil, fmt.Errorf("open compound file: %w", err)
	}

	root := NewDir()
	dirs := map[string]*Dir{"": root}

	for {
		entry, err := doc.Next()
		if errors.Is(err, io.EOF) {
			return root, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read compound directory: %w", err)
		}

		parent := lookupParent(dirs, entry.Path)
		if entry.FileInfo().IsDir() {
			dirs[pathKey(entry.Path, entry.Name)] = parent.AddStorage(entry.Name)
			continue
		}

		data, err := io.ReadAll(entry)
		if err != nil {
			return nil, fmt.Errorf("read stream %s: %w", pathKey(entry.Path, entry.Name), err)
		}
		parent.AddStream(entry.Name, data)
	}
}

// OpenFile loads the compound file at path.
func OpenFile(path string) (*Dir, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	return OpenCFB(file)
}

// lookupParent finds the storage an entry belongs to. mscfb reports
// parents before their children; a missing level is created anyway.
func lookupParent(dirs map[string]*Dir, path []string) *Dir {
	if dir, ok := dirs[pathKey(path)]; ok {
		return dir
	}

	parent := dirs[""]
	for i, name := range path {
		key := pathKey(path[:i+1])
		child, ok := dirs[key]
		if !ok {
			child = parent.AddStorage(name)
			dirs[key] = child
		}
		parent = child
	}
	return parent
}

func pathKey(path []string, name ...string) string {
	parts := make([]string, 0, len(path)+len(name))
	parts = append(parts, path...)
	parts = append(parts, name...)
	return strings.Join(parts, "/")
}
