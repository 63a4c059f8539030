package store

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/lunixbochs/fvbommel-util/sortorder"
	"github.com/pkg/errors"

	"github.com/lucos-os/lucos/go/models"
)

// HostStore keeps each named file as a regular file in one host directory.
type HostStore struct {
	Dir     string
	maxName int
	maxSize int64
}

func NewHostStore(dir string, maxName int, maxSize int64) (*HostStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "creating store directory")
	}
	return &HostStore{Dir: dir, maxName: maxName, maxSize: maxSize}, nil
}

func (h *HostStore) path(name string) (string, error) {
	if err := ValidName(name, h.maxName); err != nil {
		return "", err
	}
	return filepath.Join(h.Dir, name), nil
}

func (h *HostStore) Create(name string) (File, error) {
	p, err := h.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(p, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s", name)
	}
	return &hostFile{File: f, name: name, maxSize: h.maxSize}, nil
}

func (h *HostStore) Open(name string) (File, error) {
	p, err := h.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(p, os.O_RDWR, 0)
	if os.IsNotExist(err) {
		return nil, errors.Wrap(models.ErrNotFound, name)
	} else if err != nil {
		return nil, errors.Wrapf(err, "opening %s", name)
	}
	return &hostFile{File: f, name: name, maxSize: h.maxSize}, nil
}

func (h *HostStore) Remove(name string) error {
	p, err := h.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); os.IsNotExist(err) {
		return errors.Wrap(models.ErrNotFound, name)
	} else if err != nil {
		return errors.Wrapf(err, "removing %s", name)
	}
	return nil
}

func (h *HostStore) List() ([]string, error) {
	entries, err := os.ReadDir(h.Dir)
	if err != nil {
		return nil, errors.Wrap(err, "listing store")
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool { return sortorder.NaturalLess(names[i], names[j]) })
	return names, nil
}

type hostFile struct {
	*os.File
	name    string
	maxSize int64
}

func (f *hostFile) Name() string { return f.name }

func (f *hostFile) Size() (int64, error) {
	fi, err := f.File.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (f *hostFile) WriteAt(p []byte, off int64) (int, error) {
	want := p
	if f.maxSize > 0 {
		if off >= f.maxSize {
			return 0, errors.Wrapf(models.ErrCapacityExceeded, "%s is full", f.name)
		}
		if off+int64(len(p)) > f.maxSize {
			want = p[:f.maxSize-off]
		}
	}
	n, err := f.File.WriteAt(want, off)
	if err == nil && n < len(p) {
		err = errors.Wrapf(models.ErrCapacityExceeded, "%s is full", f.name)
	}
	return n, err
}
