package proc

import (
	"github.com/lucos-os/lucos/go/kernel/fd"
	"github.com/lucos-os/lucos/go/models/vm"
)

type State int

const (
	Created State = iota
	Running
	Exited
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Exited:
		return "exited"
	}
	return "unknown"
}

// Record is one process table entry. Parent and child links are pids into
// the owning Table, never pointers.
type Record struct {
	Pid    int
	Parent int
	Name   string
	Args   []string

	// Files and Space belong to the process until it exits.
	Files *fd.Table
	Space *vm.AddressSpace

	state    State
	status   int
	abnormal bool

	children map[int]bool
	reaped   map[int]bool
	joining  bool
	done     chan struct{}
}

// Done is closed once the process has exited and released its resources.
func (r *Record) Done() <-chan struct{} { return r.done }

// Status is only meaningful after Done is closed.
func (r *Record) Status() (status int, abnormal bool) {
	<-r.done
	return r.status, r.abnormal
}

// Info is a point-in-time copy of a record, for listings.
type Info struct {
	Pid      int
	Parent   int
	Name     string
	Args     []string
	State    State
	Status   int
	Abnormal bool
	Files    map[int]string
}
