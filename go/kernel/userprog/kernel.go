package userprog

import (
	"github.com/pkg/errors"

	co "github.com/lucos-os/lucos/go/kernel/common"
	"github.com/lucos-os/lucos/go/models"
	"github.com/lucos-os/lucos/go/store"
)

// Kernel serves one process's syscalls. Each exported method is a syscall,
// named after it.
type Kernel struct {
	co.KernelBase
	p *Process
}

func newKernel(p *Process) *Kernel {
	k := &Kernel{p: p}
	k.Mem = p.space
	k.Order = p.ByteOrder()
	k.Log = p.log
	k.MaxStr = p.sys.Config.MaxNameLen
	k.StrSize = 64
	// build the dispatch table before the process can trap from several goroutines
	co.Lookup(k, "exit")
	return k
}

func (k *Kernel) Halt() uint64 {
	if k.p.Pid() != k.p.sys.RootPid() {
		return k.p.fail("halt", errors.Wrapf(models.ErrNotRoot, "pid %d", k.p.Pid()))
	}
	k.p.sys.Halt()
	panic(haltUnwind{})
}

func (k *Kernel) Exit(status int32) {
	panic(models.ExitStatus(status))
}

func (k *Kernel) Exec(path string, argc int32, argv co.Buf) uint64 {
	if argc < 0 || int(argc)*4 > k.p.sys.Config.PageSize {
		return k.p.fail("exec", errors.Wrapf(models.ErrInvalidArgument, "argc %d", argc))
	}
	raw := make([]byte, 4*int(argc))
	if err := argv.Read(raw); err != nil {
		return k.p.fail("exec", err)
	}
	args := make([]string, argc)
	for i := range args {
		ptr := uint64(k.Order.Uint32(raw[i*4:]))
		s, err := k.Mem.ReadString(ptr, k.MaxStr)
		if err != nil {
			return k.p.fail("exec", errors.Wrapf(err, "argv[%d]", i))
		}
		args[i] = s
	}
	child, err := k.p.sys.Spawn(k.p.Pid(), path, args)
	if err != nil {
		return k.p.fail("exec", err)
	}
	return uint64(child.Pid())
}

func (k *Kernel) Join(pid int32, status co.Obuf) uint64 {
	code, abnormal, err := k.p.sys.Procs.Join(k.p.Pid(), int(pid))
	if err != nil {
		return k.p.fail("join", err)
	}
	if abnormal {
		return models.JoinAbnormal
	}
	if status.Addr != 0 {
		// the child is reaped either way; a bad status address only changes the result
		if err := status.Pack(&struct{ Status int32 }{int32(code)}); err != nil {
			return k.p.fail("join", errors.Wrap(models.ErrInvalidAddress, err.Error()))
		}
	}
	return models.JoinNormal
}

func (k *Kernel) Creat(name string) uint64 {
	fd, err := k.p.rec.Files.Creat(k.p.sys.Store, name)
	if err != nil {
		return k.p.fail("creat", err)
	}
	return uint64(fd)
}

func (k *Kernel) Open(name string) uint64 {
	fd, err := k.p.rec.Files.OpenFile(k.p.sys.Store, name)
	if err != nil {
		return k.p.fail("open", err)
	}
	return uint64(fd)
}

func (k *Kernel) Read(fd co.Fd, buf co.Obuf, size co.Len) uint64 {
	h, err := k.p.rec.Files.Get(int(fd))
	if err != nil {
		return k.p.fail("read", err)
	}
	if size < 0 {
		return k.p.fail("read", errors.Wrapf(models.ErrInvalidArgument, "count %d", size))
	}
	if size == 0 {
		return 0
	}
	if _, err := k.p.space.Translate(buf.Addr, uint64(size), true); err != nil {
		return k.p.fail("read", err)
	}
	data := make([]byte, size)
	n, err := h.Read(data)
	if err != nil {
		return k.p.fail("read", err)
	}
	if err := buf.Write(data[:n]); err != nil {
		return k.p.fail("read", err)
	}
	return uint64(n)
}

func (k *Kernel) Write(fd co.Fd, buf co.Buf, size co.Len) uint64 {
	h, err := k.p.rec.Files.Get(int(fd))
	if err != nil {
		return k.p.fail("write", err)
	}
	if size < 0 {
		return k.p.fail("write", errors.Wrapf(models.ErrInvalidArgument, "count %d", size))
	}
	if size == 0 {
		return 0
	}
	if _, err := k.p.space.Translate(buf.Addr, uint64(size), false); err != nil {
		return k.p.fail("write", err)
	}
	data := make([]byte, size)
	if err := buf.Read(data); err != nil {
		return k.p.fail("write", err)
	}
	n, err := h.Write(data)
	if err != nil {
		return k.p.fail("write", err)
	}
	return uint64(n)
}

func (k *Kernel) Close(fd co.Fd) uint64 {
	return models.Errno(k.failErr("close", k.p.rec.Files.Close(int(fd))))
}

func (k *Kernel) Unlink(name string) uint64 {
	if err := store.ValidName(name, k.MaxStr); err != nil {
		return k.p.fail("unlink", err)
	}
	return models.Errno(k.failErr("unlink", k.p.sys.Store.Remove(name)))
}

func (k *Kernel) failErr(name string, err error) error {
	if err != nil {
		k.p.fail(name, err)
	}
	return err
}
