package fd

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/lucos-os/lucos/go/models"
	"github.com/lucos-os/lucos/go/store"
)

const (
	Stdin  = 0
	Stdout = 1
)

// Table is a fixed-size set of handle slots. It is only touched by the
// owning process and by that process's exit, but a lock keeps the monitor's
// listing safe.
type Table struct {
	mu    sync.Mutex
	files []*Handle
}

// NewTable returns a table of size slots. A non-nil console is opened on
// Stdin and Stdout.
func NewTable(size int, console *Console) *Table {
	t := &Table{files: make([]*Handle, size)}
	if console != nil && size > Stdout {
		t.files[Stdin] = NewHandle("stdin", console)
		t.files[Stdout] = NewHandle("stdout", console)
	}
	return t
}

// Install puts h in the lowest free slot.
func (t *Table) Install(h *Handle) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for fd, f := range t.files {
		if f == nil {
			t.files[fd] = h
			return fd, nil
		}
	}
	return -1, errors.Wrapf(models.ErrTableFull, "%d files open", len(t.files))
}

func (t *Table) Get(fd int) (*Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd < 0 || fd >= len(t.files) || t.files[fd] == nil {
		return nil, errors.Wrapf(models.ErrInvalidHandle, "fd %d", fd)
	}
	return t.files[fd], nil
}

func (t *Table) Close(fd int) error {
	t.mu.Lock()
	if fd < 0 || fd >= len(t.files) || t.files[fd] == nil {
		t.mu.Unlock()
		return errors.Wrapf(models.ErrInvalidHandle, "fd %d", fd)
	}
	h := t.files[fd]
	t.files[fd] = nil
	t.mu.Unlock()
	return h.Close()
}

// CloseAll releases every slot. The table stays usable but empty.
func (t *Table) CloseAll() {
	t.mu.Lock()
	files := t.files
	t.files = make([]*Handle, len(files))
	t.mu.Unlock()
	for _, h := range files {
		if h != nil {
			h.Close()
		}
	}
}

// Open returns the names behind the open slots, keyed by fd.
func (t *Table) Open() map[int]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[int]string)
	for fd, h := range t.files {
		if h != nil {
			out[fd] = h.Name()
		}
	}
	return out
}

// Creat creates or truncates name and installs a handle at the lowest free fd.
func (t *Table) Creat(s store.Store, name string) (int, error) {
	return t.install(s.Create, name)
}

// OpenFile installs a handle on an existing file.
func (t *Table) OpenFile(s store.Store, name string) (int, error) {
	return t.install(s.Open, name)
}

func (t *Table) install(open func(string) (store.File, error), name string) (int, error) {
	// check for a free slot first so a full table never truncates a file
	t.mu.Lock()
	free := false
	for _, f := range t.files {
		if f == nil {
			free = true
			break
		}
	}
	t.mu.Unlock()
	if !free {
		return -1, errors.Wrapf(models.ErrTableFull, "%d files open", len(t.files))
	}
	f, err := open(name)
	if err != nil {
		return -1, err
	}
	fd, err := t.Install(NewHandle(name, f))
	if err != nil {
		f.Close()
	}
	return fd, err
}
