package store

import (
	"io"
	"sort"
	"sync"

	"github.com/lunixbochs/fvbommel-util/sortorder"
	"github.com/pkg/errors"

	"github.com/lucos-os/lucos/go/models"
)

type memNode struct {
	sync.RWMutex
	data []byte
}

// MemStore keeps files in memory. Each file carries its own lock, so
// concurrent handles on one name see whole reads and writes.
type MemStore struct {
	mu      sync.Mutex
	files   map[string]*memNode
	maxName int
	maxSize int64
}

// NewMemStore returns an empty store. maxSize caps every file; writes past
// it are short. Zero means no limit.
func NewMemStore(maxName int, maxSize int64) *MemStore {
	return &MemStore{files: make(map[string]*memNode), maxName: maxName, maxSize: maxSize}
}

func (m *MemStore) Create(name string) (File, error) {
	if err := ValidName(name, m.maxName); err != nil {
		return nil, err
	}
	m.mu.Lock()
	node, ok := m.files[name]
	if !ok {
		node = &memNode{}
		m.files[name] = node
	}
	m.mu.Unlock()
	if ok {
		node.Lock()
		node.data = node.data[:0]
		node.Unlock()
	}
	return &memFile{name: name, node: node, maxSize: m.maxSize}, nil
}

func (m *MemStore) Open(name string) (File, error) {
	if err := ValidName(name, m.maxName); err != nil {
		return nil, err
	}
	m.mu.Lock()
	node, ok := m.files[name]
	m.mu.Unlock()
	if !ok {
		return nil, errors.Wrap(models.ErrNotFound, name)
	}
	return &memFile{name: name, node: node, maxSize: m.maxSize}, nil
}

func (m *MemStore) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; !ok {
		return errors.Wrap(models.ErrNotFound, name)
	}
	delete(m.files, name)
	return nil
}

func (m *MemStore) List() ([]string, error) {
	m.mu.Lock()
	names := make([]string, 0, len(m.files))
	for name := range m.files {
		names = append(names, name)
	}
	m.mu.Unlock()
	sort.Slice(names, func(i, j int) bool { return sortorder.NaturalLess(names[i], names[j]) })
	return names, nil
}

type memFile struct {
	name    string
	node    *memNode
	maxSize int64
	closed  bool
}

func (f *memFile) Name() string { return f.name }

func (f *memFile) check() error {
	if f.closed {
		return errors.Wrap(models.ErrInvalidHandle, f.name)
	}
	return nil
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, errors.Wrap(models.ErrInvalidArgument, "negative offset")
	}
	f.node.RLock()
	defer f.node.RUnlock()
	if off >= int64(len(f.node.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.node.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *memFile) WriteAt(p []byte, off int64) (int, error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, errors.Wrap(models.ErrInvalidArgument, "negative offset")
	}
	f.node.Lock()
	defer f.node.Unlock()
	want := p
	if f.maxSize > 0 {
		if off >= f.maxSize {
			return 0, errors.Wrapf(models.ErrCapacityExceeded, "%s is full", f.name)
		}
		if off+int64(len(p)) > f.maxSize {
			want = p[:f.maxSize-off]
		}
	}
	end := off + int64(len(want))
	if end > int64(len(f.node.data)) {
		if end > int64(cap(f.node.data)) {
			grown := make([]byte, end, end*2)
			copy(grown, f.node.data)
			f.node.data = grown
		} else {
			// reuse spare capacity, zeroing any hole past the old end
			old := int64(len(f.node.data))
			f.node.data = f.node.data[:end]
			if off > old {
				clear(f.node.data[old:off])
			}
		}
	}
	n := copy(f.node.data[off:], want)
	if n < len(p) {
		return n, errors.Wrapf(models.ErrCapacityExceeded, "%s is full", f.name)
	}
	return n, nil
}

func (f *memFile) Size() (int64, error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	f.node.RLock()
	defer f.node.RUnlock()
	return int64(len(f.node.data)), nil
}

func (f *memFile) Truncate(size int64) error {
	if err := f.check(); err != nil {
		return err
	}
	f.node.Lock()
	defer f.node.Unlock()
	if size < int64(len(f.node.data)) {
		f.node.data = f.node.data[:size]
	} else if size > int64(len(f.node.data)) {
		grown := make([]byte, size)
		copy(grown, f.node.data)
		f.node.data = grown
	}
	return nil
}

func (f *memFile) Close() error {
	if err := f.check(); err != nil {
		return err
	}
	f.closed = true
	return nil
}
