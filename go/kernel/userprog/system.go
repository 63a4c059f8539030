// Package userprog runs user programs as processes: it builds their address
// spaces, starts them on goroutines and serves their syscalls.
package userprog

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/lucos-os/lucos/go/kernel/fd"
	"github.com/lucos-os/lucos/go/kernel/proc"
	"github.com/lucos-os/lucos/go/models"
	"github.com/lucos-os/lucos/go/models/vm"
	"github.com/lucos-os/lucos/go/store"
)

// Tracer receives every completed syscall.
type Tracer interface {
	Syscall(pid, num int, args []uint64, ret uint64) error
}

// System is the state shared by every process on one machine.
type System struct {
	Config  *models.Config
	Procs   *proc.Table
	Store   store.Store
	Loader  models.Loader
	Phys    *vm.PhysMem
	Console *fd.Console
	Log     hclog.Logger

	Tracer Tracer
	// Strace receives name(args) = ret lines when Config.TraceSys is set.
	Strace io.Writer
	Color  bool

	rootPid atomic.Int64
	wg      sync.WaitGroup
	straceM sync.Mutex
}

func NewSystem(c *models.Config, s store.Store, l models.Loader, console *fd.Console, log hclog.Logger) *System {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &System{
		Config:  c,
		Procs:   proc.NewTable(c.MaxProcesses, log.Named("proc")),
		Store:   s,
		Loader:  l,
		Phys:    vm.NewPhysMem(c.PageSize, c.PhysPages),
		Console: console,
		Log:     log,
	}
}

// Boot starts path as the root process, the only one allowed to halt.
func (s *System) Boot(path string, args []string) (*Process, error) {
	return s.spawn(0, path, args, true)
}

func (s *System) RootPid() int { return int(s.rootPid.Load()) }

// Spawn loads path and starts it as a child of parent. Nothing is allocated
// in the process table unless the image loads and its arguments fit.
func (s *System) Spawn(parent int, path string, args []string) (*Process, error) {
	return s.spawn(parent, path, args, false)
}

func (s *System) spawn(parent int, path string, args []string, root bool) (*Process, error) {
	image, err := s.Loader.Load(path)
	if err != nil {
		return nil, err
	}
	c := s.Config
	pageSize := uint64(c.PageSize)
	textPages := image.Pages()
	pages := textPages + c.HeapPages + c.StackPages + 1

	space, err := vm.NewAddressSpace(s.Phys, pages)
	if err != nil {
		return nil, errors.Wrapf(err, "mapping %s", path)
	}
	for _, sec := range image.Sections {
		if len(sec.Data) > sec.Pages*c.PageSize {
			space.Release()
			return nil, errors.Wrapf(models.ErrBadImage, "%s: section %s overflows its pages", path, sec.Name)
		}
		if err := space.Load(uint64(sec.FirstVPN)*pageSize, sec.Data); err != nil {
			space.Release()
			return nil, err
		}
		space.Protect(sec.FirstVPN, sec.Pages, sec.ReadOnly)
	}
	argPage := uint64(pages-1) * pageSize
	argv, err := packArgs(args, argPage, c.PageSize)
	if err != nil {
		space.Release()
		return nil, errors.Wrapf(err, "arguments to %s", path)
	}
	if err := space.Load(argPage, argv); err != nil {
		space.Release()
		return nil, err
	}

	files := fd.NewTable(c.MaxOpenFiles, s.Console)
	rec, err := s.Procs.Insert(parent, path, args, files, space)
	if err != nil {
		space.Release()
		return nil, err
	}
	p := &Process{
		sys:       s,
		rec:       rec,
		space:     space,
		image:     image,
		argc:      len(args),
		argv:      argPage,
		heapStart: uint64(textPages) * pageSize,
		heapEnd:   uint64(textPages+c.HeapPages) * pageSize,
		log:       s.Log.Named("kernel").With("pid", rec.Pid),
	}
	p.kernel = newKernel(p)
	if root {
		s.rootPid.Store(int64(rec.Pid))
	}
	s.Procs.Start(rec.Pid)
	s.wg.Add(1)
	go p.run()
	p.log.Debug("spawned", "path", path, "args", args, "parent", rec.Parent, "pages", pages)
	return p, nil
}

// packArgs lays argv out for a page at base: little-endian 32-bit pointers,
// then the NUL-terminated strings they point to.
func packArgs(args []string, base uint64, pageSize int) ([]byte, error) {
	var buf bytes.Buffer
	ptrs := make([]uint32, len(args))
	off := base + uint64(4*len(args))
	for i, a := range args {
		ptrs[i] = uint32(off)
		off += uint64(len(a) + 1)
	}
	if off-base > uint64(pageSize) {
		return nil, errors.Wrapf(models.ErrCapacityExceeded, "%d bytes do not fit in a %d byte page", off-base, pageSize)
	}
	s := &models.StrucStream{Stream: &buf, Order: binary.LittleEndian}
	for _, ptr := range ptrs {
		if err := s.Pack(&struct{ Ptr uint32 }{ptr}); err != nil {
			return nil, err
		}
	}
	for _, a := range args {
		buf.WriteString(a)
		buf.WriteByte(0)
	}
	return buf.Bytes(), nil
}

// Halt stops the machine: blocked joins return, later syscalls unwind.
func (s *System) Halt() {
	s.Log.Info("halt")
	s.Procs.Halt()
}

// Wait blocks until the machine halts or its last process exits.
func (s *System) Wait() {
	select {
	case <-s.Procs.Halted():
	case <-s.Procs.Idle():
	}
}

// Drain waits for every process goroutine to finish unwinding.
func (s *System) Drain() {
	s.wg.Wait()
}
