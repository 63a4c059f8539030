// Package fd implements the per-process file table: small integer handles
// onto files in the named-file store, each with its own cursor.
package fd

import (
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/lucos-os/lucos/go/models"
	"github.com/lucos-os/lucos/go/store"
)

// A Handle is one open instance of a named file. Two handles on the same
// name share contents but not cursors.
type Handle struct {
	m    sync.Mutex
	name string
	file store.File
	pos  int64
}

func NewHandle(name string, f store.File) *Handle {
	return &Handle{name: name, file: f}
}

func (h *Handle) Name() string { return h.name }

func (h *Handle) Pos() int64 {
	h.m.Lock()
	defer h.m.Unlock()
	return h.pos
}

// Read fills buf from the cursor. End of file is a zero-length read, not an
// error.
func (h *Handle) Read(buf []byte) (int, error) {
	h.m.Lock()
	defer h.m.Unlock()
	if h.file == nil {
		return 0, models.ErrInvalidHandle
	}
	if len(buf) == 0 {
		return 0, nil
	}
	n, err := h.file.ReadAt(buf, h.pos)
	h.pos += int64(n)
	if err == io.EOF {
		err = nil
	}
	return n, errors.Wrapf(err, "reading %s", h.name)
}

// Write stores buf at the cursor. A partial write reports the partial count;
// an error comes back only when nothing was written.
func (h *Handle) Write(buf []byte) (int, error) {
	h.m.Lock()
	defer h.m.Unlock()
	if h.file == nil {
		return 0, models.ErrInvalidHandle
	}
	n, err := h.file.WriteAt(buf, h.pos)
	h.pos += int64(n)
	if n > 0 {
		return n, nil
	}
	return 0, errors.Wrapf(err, "writing %s", h.name)
}

func (h *Handle) Close() error {
	h.m.Lock()
	defer h.m.Unlock()
	if h.file == nil {
		return models.ErrInvalidHandle
	}
	err := h.file.Close()
	h.file = nil
	return err
}
