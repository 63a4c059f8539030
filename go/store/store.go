// Package store holds the named files that processes open through their
// file tables. Names are flat: there are no directories.
package store

import (
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/lucos-os/lucos/go/models"
)

type File interface {
	io.ReaderAt
	io.WriterAt
	Name() string
	Size() (int64, error)
	Truncate(size int64) error
	Close() error
}

type Store interface {
	// Create opens name for reading and writing, creating it or truncating
	// it to zero length.
	Create(name string) (File, error)
	// Open opens an existing file without changing its length.
	Open(name string) (File, error)
	// Remove drops the name. Files already open keep their contents.
	Remove(name string) error
	// List returns every name in natural sort order.
	List() ([]string, error)
}

// ValidName rejects names the store cannot hold.
func ValidName(name string, max int) error {
	switch {
	case name == "":
		return errors.Wrap(models.ErrInvalidArgument, "empty file name")
	case max > 0 && len(name) > max:
		return errors.Wrapf(models.ErrInvalidArgument, "file name longer than %d bytes", max)
	case strings.ContainsRune(name, '/') || strings.ContainsRune(name, 0):
		return errors.Wrapf(models.ErrInvalidArgument, "bad file name %q", name)
	case name == "." || name == "..":
		return errors.Wrapf(models.ErrInvalidArgument, "reserved file name %q", name)
	}
	return nil
}

// ReadFile returns the whole content of a named file.
func ReadFile(s Store, name string) ([]byte, error) {
	f, err := s.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	size, err := f.Size()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	n, err := f.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return nil, errors.Wrapf(err, "reading %s", name)
	}
	return buf[:n], nil
}

// WriteFile replaces the content of a named file.
func WriteFile(s Store, name string, data []byte) error {
	f, err := s.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()
	if n, err := f.WriteAt(data, 0); err != nil {
		return errors.Wrapf(err, "writing %s (%d of %d bytes)", name, n, len(data))
	}
	return nil
}
