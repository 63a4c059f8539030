package userprog

import (
	"encoding/binary"
	"fmt"
	"runtime/debug"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/lucos-os/lucos/go/kernel/common"
	"github.com/lucos-os/lucos/go/kernel/proc"
	"github.com/lucos-os/lucos/go/models"
	"github.com/lucos-os/lucos/go/models/vm"
)

// haltUnwind is panicked through a process goroutine once the machine halts.
type haltUnwind struct{}

// Process is a running user program. It is the program's models.Task.
type Process struct {
	sys    *System
	rec    *proc.Record
	space  *vm.AddressSpace
	image  *models.Image
	kernel *Kernel
	log    hclog.Logger

	argc               int
	argv               uint64
	heapStart, heapEnd uint64
}

func (p *Process) Pid() int                    { return p.rec.Pid }
func (p *Process) Record() *proc.Record        { return p.rec }
func (p *Process) ByteOrder() binary.ByteOrder { return binary.LittleEndian }
func (p *Process) Argc() int                   { return p.argc }
func (p *Process) Argv() uint64                { return p.argv }
func (p *Process) Heap() (uint64, uint64)      { return p.heapStart, p.heapEnd }

func (p *Process) MemRead(addr, size uint64) ([]byte, error) {
	mem := make([]byte, size)
	return mem, p.space.Read(addr, mem)
}

func (p *Process) MemReadInto(mem []byte, addr uint64) error {
	return p.space.Read(addr, mem)
}

func (p *Process) MemWrite(addr uint64, mem []byte) error {
	return p.space.Write(addr, mem)
}

func (p *Process) run() {
	defer p.sys.wg.Done()
	status, abnormal := p.execute()
	p.sys.Procs.Exit(p.Pid(), status, abnormal)
}

func (p *Process) execute() (status int, abnormal bool) {
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case models.ExitStatus:
				status = int(v)
			case haltUnwind:
			default:
				p.log.Error("process crashed", "err", fmt.Sprint(r), "stack", string(debug.Stack()))
				status, abnormal = -1, true
			}
		}
	}()
	return p.image.Main(p), false
}

func (p *Process) checkHalted() {
	select {
	case <-p.sys.Procs.Halted():
		panic(haltUnwind{})
	default:
	}
}

// Syscall traps into the kernel. Errors become MinusOne; exit and halt do
// not return.
func (p *Process) Syscall(num int, args ...uint64) uint64 {
	p.checkHalted()
	name, ok := models.SyscallNames[num]
	var sys *common.Syscall
	if ok {
		sys = common.Lookup(p.kernel, name)
	}
	if sys == nil {
		p.log.Warn("unknown syscall", "num", num)
		p.record(num, args, models.MinusOne)
		return models.MinusOne
	}
	// exit and a successful halt unwind out of Call
	traced := num == models.SysExit || num == models.SysHalt
	if traced {
		p.strace(sys.Trace(args))
		p.record(num, args, 0)
	}
	ret, err := sys.Call(args)
	if err != nil {
		p.log.Debug("syscall failed", "name", name, "err", err)
		ret = models.MinusOne
	}
	if !traced {
		p.strace(sys.Trace(args) + sys.TraceRet(args, ret))
		p.record(num, args, ret)
	}
	p.checkHalted()
	return ret
}

func (p *Process) record(num int, args []uint64, ret uint64) {
	if p.sys.Tracer == nil {
		return
	}
	if err := p.sys.Tracer.Syscall(p.Pid(), num, args, ret); err != nil {
		p.log.Warn("trace write failed", "err", err)
	}
}

// fail logs a kernel error and returns the syscall sentinel.
func (p *Process) fail(name string, err error) uint64 {
	if errors.Is(err, models.ErrHalted) {
		panic(haltUnwind{})
	}
	p.log.Debug(name, "err", err)
	return models.MinusOne
}
