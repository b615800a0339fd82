package change

import (
	"fmt"
	"os"
)

// File is a discovered change file. Files are immutable and rebuilt on every
// catalog scan; only their ID and content hash are ever persisted.
type File interface {
	ID() ID
	// Path is the absolute path of the file.
	Path() string
	// RelPath is the path relative to the catalog root, with forward slashes.
	RelPath() string
	// Content reads the file's payload.
	Content() ([]byte, error)
}

type file struct {
	id      ID
	path    string
	relPath string
}

func (f file) ID() ID          { return f.id }
func (f file) Path() string    { return f.path }
func (f file) RelPath() string { return f.relPath }

func (f file) Content() ([]byte, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read change file %s: %w", f.relPath, err)
	}
	return b, nil
}

// ApplyFile is a change file of type apply, apply_always or apply_on_change.
type ApplyFile struct{ file }

// RevertFile is a change file of type revert.
type RevertFile struct{ file }

// NewFile builds the File subtype matching id's type.
func NewFile(id ID, path, relPath string) File {
	f := file{id: id, path: path, relPath: relPath}
	if id.Type == TypeRevert {
		return RevertFile{f}
	}
	return ApplyFile{f}
}
