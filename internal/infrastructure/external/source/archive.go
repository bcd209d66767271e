package source

import (
	"fmt"
	"os"
	"path/filepath"
)

// Archive keeps a copy of the latest downloaded document on disk.
type Archive struct {
	path string
}

// NewArchive returns an archive writing to path. An empty path disables it.
func NewArchive(path string) *Archive {
	return &Archive{path: path}
}

// Enabled reports whether a path is configured.
func (a *Archive) Enabled() bool {
	return a != nil && a.path != ""
}

// Path returns the archive location.
func (a *Archive) Path() string {
	if a == nil {
		return ""
	}
	return a.path
}

// Write replaces the archived copy. Readers never observe a partial file: data
// goes to a temporary file in the same directory which is then renamed.
func (a *Archive) Write(data []byte) error {
	if !a.Enabled() {
		return nil
	}

	dir := filepath.Dir(a.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(a.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, a.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename archive: %w", err)
	}
	return nil
}

// Read returns the archived copy.
func (a *Archive) Read() ([]byte, error) {
	if !a.Enabled() {
		return nil, os.ErrNotExist
	}
	return os.ReadFile(a.path)
}
