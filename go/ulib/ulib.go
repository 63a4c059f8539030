// Package ulib is the user-side C library for programs running as lucos
// processes. Every call goes through the process's virtual memory and
// syscall trap, the way a compiled program would.
//
// Memory faults inside the library panic, which the kernel turns into an
// abnormal exit.
package ulib

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/lucos-os/lucos/go/models"
)

type Lib struct {
	T models.Task

	start, end, brk uint64
}

func New(t models.Task) *Lib {
	start, end := t.Heap()
	return &Lib{T: t, start: start, end: end, brk: start}
}

// Alloc reserves n bytes of heap, word aligned.
func (l *Lib) Alloc(n int) uint64 {
	addr := (l.brk + 3) &^ 3
	if addr+uint64(n) > l.end {
		panic(errors.Wrapf(models.ErrCapacityExceeded, "heap exhausted allocating %d bytes", n))
	}
	l.brk = addr + uint64(n)
	return addr
}

// Mark and Release bracket scratch allocations.
func (l *Lib) Mark() uint64 { return l.brk }

func (l *Lib) Release(mark uint64) {
	if mark >= l.start && mark <= l.brk {
		l.brk = mark
	}
}

func (l *Lib) Peek(addr uint64, n int) []byte {
	mem, err := l.T.MemRead(addr, uint64(n))
	if err != nil {
		panic(err)
	}
	return mem
}

func (l *Lib) Poke(addr uint64, p []byte) {
	if err := l.T.MemWrite(addr, p); err != nil {
		panic(err)
	}
}

// CString copies s into the heap with a trailing NUL.
func (l *Lib) CString(s string) uint64 {
	addr := l.Alloc(len(s) + 1)
	l.Poke(addr, append([]byte(s), 0))
	return addr
}

// GoString reads a NUL-terminated string of at most max bytes.
func (l *Lib) GoString(addr uint64, max int) string {
	var out []byte
	for len(out) < max {
		b := l.Peek(addr, 1)
		if b[0] == 0 {
			break
		}
		out = append(out, b[0])
		addr++
	}
	return string(out)
}

// Args reads the argument vector the kernel placed in the last page.
func (l *Lib) Args() []string {
	n := l.T.Argc()
	if n == 0 {
		return nil
	}
	raw := l.Peek(l.T.Argv(), 4*n)
	order := l.T.ByteOrder()
	args := make([]string, n)
	for i := range args {
		args[i] = l.GoString(uint64(order.Uint32(raw[i*4:])), 256)
	}
	return args
}

func (l *Lib) syscall(num int, args ...uint64) int {
	return int(int32(l.T.Syscall(num, args...)))
}

func (l *Lib) Halt() int {
	return l.syscall(models.SysHalt)
}

func (l *Lib) Exit(status int) {
	l.syscall(models.SysExit, uint64(status))
}

// Exec starts path with args. The argument strings and pointer array live in
// scratch heap released before returning.
func (l *Lib) Exec(path string, args ...string) int {
	mark := l.Mark()
	defer l.Release(mark)
	pathAddr := l.CString(path)
	ptrs := make([]byte, 4*len(args))
	for i, a := range args {
		l.T.ByteOrder().PutUint32(ptrs[i*4:], uint32(l.CString(a)))
	}
	var argv uint64
	if len(args) > 0 {
		argv = l.Alloc(len(ptrs))
		l.Poke(argv, ptrs)
	}
	return l.syscall(models.SysExec, pathAddr, uint64(len(args)), argv)
}

// Join waits for pid. status may be nil.
func (l *Lib) Join(pid int, status *int) int {
	mark := l.Mark()
	defer l.Release(mark)
	var addr uint64
	if status != nil {
		addr = l.Alloc(4)
	}
	ret := l.syscall(models.SysJoin, uint64(pid), addr)
	if status != nil && ret == models.JoinNormal {
		*status = int(int32(l.T.ByteOrder().Uint32(l.Peek(addr, 4))))
	}
	return ret
}

func (l *Lib) nameCall(num int, name string) int {
	mark := l.Mark()
	defer l.Release(mark)
	return l.syscall(num, l.CString(name))
}

func (l *Lib) Creat(name string) int  { return l.nameCall(models.SysCreat, name) }
func (l *Lib) Open(name string) int   { return l.nameCall(models.SysOpen, name) }
func (l *Lib) Unlink(name string) int { return l.nameCall(models.SysUnlink, name) }

func (l *Lib) Close(fd int) int {
	return l.syscall(models.SysClose, uint64(fd))
}

// Read reads up to len(p) bytes through a heap buffer.
func (l *Lib) Read(fd int, p []byte) int {
	mark := l.Mark()
	defer l.Release(mark)
	buf := l.Alloc(len(p))
	n := l.syscall(models.SysRead, uint64(fd), buf, uint64(len(p)))
	if n > 0 {
		copy(p, l.Peek(buf, n))
	}
	return n
}

func (l *Lib) Write(fd int, p []byte) int {
	mark := l.Mark()
	defer l.Release(mark)
	buf := l.Alloc(len(p))
	l.Poke(buf, p)
	return l.syscall(models.SysWrite, uint64(fd), buf, uint64(len(p)))
}

func (l *Lib) Printf(format string, a ...interface{}) int {
	return l.Write(1, []byte(fmt.Sprintf(format, a...)))
}
