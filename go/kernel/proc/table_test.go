package proc

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/lucos-os/lucos/go/kernel/fd"
	"github.com/lucos-os/lucos/go/models"
	"github.com/lucos-os/lucos/go/models/vm"
	"github.com/lucos-os/lucos/go/store"
)

func insert(t *testing.T, tab *Table, parent int) *Record {
	r, err := tab.Insert(parent, "prog", nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	tab.Start(r.Pid)
	return r
}

func TestPidsMonotonic(t *testing.T) {
	tab := NewTable(64, nil)
	root := insert(t, tab, 0)
	if root.Pid != 1 || root.Parent != 0 {
		t.Fatal("root record", root.Pid, root.Parent)
	}
	a := insert(t, tab, root.Pid)
	tab.Exit(a.Pid, 0, false)
	tab.Join(root.Pid, a.Pid)
	b := insert(t, tab, root.Pid)
	if b.Pid != a.Pid+1 {
		t.Fatal("pid reused or skipped:", a.Pid, b.Pid)
	}
}

func TestJoinRules(t *testing.T) {
	tab := NewTable(64, nil)
	root := insert(t, tab, 0)
	child := insert(t, tab, root.Pid)
	grandchild := insert(t, tab, child.Pid)

	tests := []struct {
		caller, pid int
		err         error
	}{
		{root.Pid, grandchild.Pid, models.ErrNotAChild},
		{root.Pid, root.Pid, models.ErrNoSuchProcess},
		{root.Pid, 99, models.ErrNoSuchProcess},
		{grandchild.Pid, child.Pid, models.ErrNotAChild},
	}
	for _, test := range tests {
		if _, _, err := tab.Join(test.caller, test.pid); !errors.Is(err, test.err) {
			t.Fatalf("Join(%d, %d) = %v, want %v", test.caller, test.pid, err, test.err)
		}
	}
	// still not a child after it exits
	tab.Exit(grandchild.Pid, 3, false)
	if _, _, err := tab.Join(root.Pid, grandchild.Pid); !errors.Is(err, models.ErrNotAChild) {
		t.Fatal("join of exited grandchild:", err)
	}

	tab.Exit(child.Pid, 7, false)
	status, abnormal, err := tab.Join(root.Pid, child.Pid)
	if err != nil || status != 7 || abnormal {
		t.Fatal("first join =", status, abnormal, err)
	}
	if _, _, err := tab.Join(root.Pid, child.Pid); !errors.Is(err, models.ErrAlreadyJoined) {
		t.Fatal("second join:", err)
	}
	if _, ok := tab.Lookup(child.Pid); ok {
		t.Fatal("joined record still in table")
	}
}

func TestJoinBlocks(t *testing.T) {
	tab := NewTable(64, nil)
	root := insert(t, tab, 0)
	child := insert(t, tab, root.Pid)
	done := make(chan int)
	go func() {
		status, _, _ := tab.Join(root.Pid, child.Pid)
		done <- status
	}()
	select {
	case <-done:
		t.Fatal("join returned before the child exited")
	case <-time.After(20 * time.Millisecond):
	}
	tab.mu.Lock()
	joining := child.joining
	tab.mu.Unlock()
	if !joining {
		t.Fatal("joiner not registered")
	}
	// a concurrent second join is refused while the first waits
	if _, _, err := tab.Join(root.Pid, child.Pid); !errors.Is(err, models.ErrAlreadyJoined) {
		t.Fatal("concurrent join:", err)
	}
	tab.Exit(child.Pid, 42, false)
	if status := <-done; status != 42 {
		t.Fatal("join status", status)
	}
}

func TestAbnormalExit(t *testing.T) {
	tab := NewTable(64, nil)
	root := insert(t, tab, 0)
	child := insert(t, tab, root.Pid)
	tab.Exit(child.Pid, -1, true)
	tab.Exit(child.Pid, 0, false)
	_, abnormal, err := tab.Join(root.Pid, child.Pid)
	if err != nil || !abnormal {
		t.Fatal("abnormal exit lost:", abnormal, err)
	}
}

func TestOrphans(t *testing.T) {
	tab := NewTable(64, nil)
	root := insert(t, tab, 0)
	mid := insert(t, tab, root.Pid)
	running := insert(t, tab, mid.Pid)
	zombie := insert(t, tab, mid.Pid)
	tab.Exit(zombie.Pid, 1, false)
	tab.Exit(mid.Pid, 0, false)

	if _, ok := tab.Lookup(zombie.Pid); ok {
		t.Fatal("exited child of an exiting parent was not reaped")
	}
	r, ok := tab.Lookup(running.Pid)
	if !ok || r.Parent != 0 {
		t.Fatal("running child was not orphaned")
	}
	if _, _, err := tab.Join(root.Pid, running.Pid); !errors.Is(err, models.ErrNoSuchProcess) {
		t.Fatal("orphan joinable:", err)
	}
	tab.Exit(running.Pid, 0, false)
	if _, ok := tab.Lookup(running.Pid); ok {
		t.Fatal("orphan not reaped at exit")
	}
}

func TestIdleAndHalt(t *testing.T) {
	tab := NewTable(64, nil)
	root := insert(t, tab, 0)
	child := insert(t, tab, root.Pid)
	errc := make(chan error)
	go func() {
		_, _, err := tab.Join(root.Pid, child.Pid)
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	tab.Halt()
	if err := <-errc; !errors.Is(err, models.ErrHalted) {
		t.Fatal("halt did not wake joiner:", err)
	}
	if _, err := tab.Insert(root.Pid, "late", nil, nil, nil); !errors.Is(err, models.ErrHalted) {
		t.Fatal("insert after halt:", err)
	}

	tab = NewTable(64, nil)
	root = insert(t, tab, 0)
	child = insert(t, tab, root.Pid)
	tab.Exit(root.Pid, 0, false)
	select {
	case <-tab.Idle():
		t.Fatal("idle with a live child")
	default:
	}
	tab.Exit(child.Pid, 0, false)
	select {
	case <-tab.Idle():
	case <-time.After(time.Second):
		t.Fatal("idle not signalled")
	}
}

func TestTableFull(t *testing.T) {
	tab := NewTable(2, nil)
	root := insert(t, tab, 0)
	insert(t, tab, root.Pid)
	if _, err := tab.Insert(root.Pid, "x", nil, nil, nil); !errors.Is(err, models.ErrTableFull) {
		t.Fatal("expected ErrTableFull, got", err)
	}
}

func TestConcurrentInsertJoin(t *testing.T) {
	const n = 32
	tab := NewTable(n+1, nil)
	root := insert(t, tab, 0)
	pids := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := tab.Insert(root.Pid, "worker", nil, nil, nil)
			if err != nil {
				t.Error(err)
				return
			}
			pids[i] = r.Pid
			go tab.Exit(r.Pid, r.Pid*10, false)
		}(i)
	}
	wg.Wait()
	seen := make(map[int]bool)
	for _, pid := range pids {
		if seen[pid] {
			t.Fatal("duplicate pid", pid)
		}
		seen[pid] = true
		status, _, err := tab.Join(root.Pid, pid)
		if err != nil || status != pid*10 {
			t.Fatal("join", pid, "=", status, err)
		}
	}
}

func TestExitReleasesResources(t *testing.T) {
	tab := NewTable(64, nil)
	phys := vm.NewPhysMem(64, 4)
	space, _ := vm.NewAddressSpace(phys, 4)
	s := store.NewMemStore(256, 0)
	files := fd.NewTable(16, nil)
	files.Creat(s, "f")
	r, _ := tab.Insert(0, "prog", nil, files, space)
	tab.Exit(r.Pid, 0, false)
	<-r.Done()
	if phys.FreePages() != 4 {
		t.Fatal("frames not released")
	}
	if len(files.Open()) != 0 {
		t.Fatal("files not closed")
	}
	if len(tab.List()) != 0 {
		t.Fatal("root record survived its exit")
	}
}
