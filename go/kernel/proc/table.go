// Package proc is the process table: pid allocation, parent/child
// bookkeeping, exit and join.
package proc

import (
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/lucos-os/lucos/go/kernel/fd"
	"github.com/lucos-os/lucos/go/models"
	"github.com/lucos-os/lucos/go/models/vm"
)

// Table holds every live and zombie process. All mutation happens under one
// lock; the only blocking operation, Join, waits outside it.
type Table struct {
	mu    sync.Mutex
	log   hclog.Logger
	max   int
	next  int
	procs map[int]*Record
	live  int

	idle     chan struct{}
	idleOnce sync.Once
	halted   chan struct{}
	haltOnce sync.Once
}

func NewTable(max int, log hclog.Logger) *Table {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Table{
		log:    log,
		max:    max,
		next:   1,
		procs:  make(map[int]*Record),
		idle:   make(chan struct{}),
		halted: make(chan struct{}),
	}
}

// Insert allocates a pid and registers a new record as a child of parent.
// A parent of 0 makes a root process.
func (t *Table) Insert(parent int, name string, args []string, files *fd.Table, space *vm.AddressSpace) (*Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.halted:
		return nil, models.ErrHalted
	default:
	}
	if len(t.procs) >= t.max {
		return nil, errors.Wrapf(models.ErrTableFull, "%d processes", len(t.procs))
	}
	r := &Record{
		Pid:      t.next,
		Parent:   parent,
		Name:     name,
		Args:     args,
		Files:    files,
		Space:    space,
		children: make(map[int]bool),
		reaped:   make(map[int]bool),
		done:     make(chan struct{}),
	}
	t.next++
	if p, ok := t.procs[parent]; ok {
		p.children[r.Pid] = true
	} else {
		r.Parent = 0
	}
	t.procs[r.Pid] = r
	t.live++
	t.log.Debug("insert", "pid", r.Pid, "parent", r.Parent, "name", name)
	return r, nil
}

func (t *Table) Start(pid int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.procs[pid]
	if !ok {
		return errors.Wrapf(models.ErrNoSuchProcess, "pid %d", pid)
	}
	if r.state == Created {
		r.state = Running
	}
	return nil
}

// Exit records the status of pid and wakes its joiner. The file table and
// address space are released before the record becomes visible as exited.
// A second Exit for the same pid is ignored.
func (t *Table) Exit(pid, status int, abnormal bool) error {
	t.mu.Lock()
	r, ok := t.procs[pid]
	if !ok || r.state == Exited {
		t.mu.Unlock()
		if !ok {
			return errors.Wrapf(models.ErrNoSuchProcess, "pid %d", pid)
		}
		return nil
	}
	// keeps a racing second Exit out while resources are released
	r.state = Exited
	t.mu.Unlock()

	if r.Files != nil {
		r.Files.CloseAll()
	}
	if r.Space != nil {
		r.Space.Release()
	}

	t.mu.Lock()
	r.status = status
	r.abnormal = abnormal
	close(r.done)
	for cpid := range r.children {
		child, ok := t.procs[cpid]
		if !ok {
			continue
		}
		if child.state == Exited && isClosed(child.done) {
			delete(t.procs, cpid)
		} else {
			child.Parent = 0
		}
	}
	r.children = nil
	if r.Parent == 0 {
		delete(t.procs, pid)
	}
	t.live--
	live := t.live
	t.mu.Unlock()

	t.log.Debug("exit", "pid", pid, "status", status, "abnormal", abnormal, "live", live)
	if live == 0 {
		t.idleOnce.Do(func() { close(t.idle) })
	}
	return nil
}

func isClosed(c chan struct{}) bool {
	select {
	case <-c:
		return true
	default:
		return false
	}
}

// Join blocks until pid, a child of caller, exits, then reaps it. A pid can
// be joined once.
func (t *Table) Join(caller, pid int) (status int, abnormal bool, err error) {
	t.mu.Lock()
	parent := t.procs[caller]
	if parent != nil && parent.reaped[pid] {
		t.mu.Unlock()
		return 0, false, errors.Wrapf(models.ErrAlreadyJoined, "pid %d", pid)
	}
	r, ok := t.procs[pid]
	switch {
	case !ok || r.Parent == 0:
		err = errors.Wrapf(models.ErrNoSuchProcess, "pid %d", pid)
	case r.Parent != caller:
		err = errors.Wrapf(models.ErrNotAChild, "pid %d is a child of %d", pid, r.Parent)
	case r.joining:
		err = errors.Wrapf(models.ErrAlreadyJoined, "pid %d", pid)
	}
	if err != nil {
		t.mu.Unlock()
		return 0, false, err
	}
	r.joining = true
	t.mu.Unlock()

	select {
	case <-r.done:
	case <-t.halted:
		return 0, false, models.ErrHalted
	}

	t.mu.Lock()
	delete(t.procs, pid)
	if parent != nil {
		parent.reaped[pid] = true
		delete(parent.children, pid)
	}
	t.mu.Unlock()
	t.log.Debug("reap", "pid", pid, "by", caller)
	return r.status, r.abnormal, nil
}

// Halt wakes every blocked joiner and refuses further inserts.
func (t *Table) Halt() {
	t.haltOnce.Do(func() { close(t.halted) })
}

func (t *Table) Halted() <-chan struct{} { return t.halted }

// Idle is closed when the last live process exits.
func (t *Table) Idle() <-chan struct{} { return t.idle }

func (t *Table) Live() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

func (t *Table) Lookup(pid int) (*Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.procs[pid]
	return r, ok
}

// List returns every record still in the table, ordered by pid.
func (t *Table) List() []Info {
	t.mu.Lock()
	out := make([]Info, 0, len(t.procs))
	var files []*fd.Table
	for _, r := range t.procs {
		out = append(out, Info{
			Pid:      r.Pid,
			Parent:   r.Parent,
			Name:     r.Name,
			Args:     r.Args,
			State:    r.state,
			Status:   r.status,
			Abnormal: r.abnormal,
		})
		files = append(files, r.Files)
	}
	t.mu.Unlock()
	for i, f := range files {
		if f != nil {
			out[i].Files = f.Open()
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pid < out[j].Pid })
	return out
}
