package userprog

import (
	"bytes"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lucos-os/lucos/go/kernel/fd"
	"github.com/lucos-os/lucos/go/loader"
	"github.com/lucos-os/lucos/go/models"
	"github.com/lucos-os/lucos/go/programs"
	"github.com/lucos-os/lucos/go/store"
	"github.com/lucos-os/lucos/go/ulib"
)

type syncBuffer struct {
	sync.Mutex
	bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.Lock()
	defer s.Unlock()
	return s.Buffer.Write(p)
}

func (s *syncBuffer) String() string {
	s.Lock()
	defer s.Unlock()
	return s.Buffer.String()
}

type testSystem struct {
	*System
	store  *store.MemStore
	reg    *loader.Registry
	strace *syncBuffer
}

func newTestSystem(t *testing.T) *testSystem {
	c := models.DefaultConfig()
	c.PageSize = 256
	c.PhysPages = 1024
	c.HeapPages = 8
	c.TraceSys = true
	s := store.NewMemStore(c.MaxNameLen, int64(c.MaxFileSize))
	reg := loader.NewRegistry()
	if err := programs.Install(s, reg); err != nil {
		t.Fatal(err)
	}
	sys := NewSystem(c, s, loader.New(s, reg, nil), fd.NewConsole(nil, nil), nil)
	ts := &testSystem{System: sys, store: s, reg: reg, strace: &syncBuffer{}}
	sys.Strace = ts.strace
	return ts
}

func (ts *testSystem) install(t *testing.T, name string, f func(l *ulib.Lib, args []string) int) {
	ts.reg.Register(name, func(task models.Task) int {
		l := ulib.New(task)
		return f(l, l.Args())
	})
	if err := loader.Install(ts.store, name+".coff", loader.NativeImage(name)); err != nil {
		t.Fatal(err)
	}
}

func (ts *testSystem) run(t *testing.T, path string, args ...string) (int, bool) {
	p, err := ts.Boot(path, args)
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		ts.Wait()
		ts.Drain()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("machine did not stop")
	}
	return p.Record().Status()
}

func TestWriteTest(t *testing.T) {
	ts := newTestSystem(t)
	if status, _ := ts.run(t, "writeTest.coff"); status != 0 {
		t.Fatal("writeTest status", status)
	}
	data, err := store.ReadFile(ts.store, "wTest1.txt")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "Test text to wr  next test text\x00" {
		t.Fatalf("wTest1.txt = %q", data)
	}
}

func TestWriteThenRead(t *testing.T) {
	ts := newTestSystem(t)
	ts.install(t, "roundTrip", func(l *ulib.Lib, args []string) int {
		fd := l.Creat("wTest1.txt")
		l.Write(fd, []byte("Test text to write")[:15])
		l.Write(fd, []byte("  next test text\x00"))
		if l.Close(fd) != 0 {
			return 1
		}
		fd = l.Open("wTest1.txt")
		buf := make([]byte, 32)
		if n := l.Read(fd, buf); n != 32 || string(buf) != "Test text to wr  next test text\x00" {
			t.Errorf("read = %d %q", n, buf)
		}
		if n := l.Read(fd, buf); n != 0 {
			t.Errorf("read past end = %d", n)
		}
		return 0
	})
	if status, _ := ts.run(t, "roundTrip.coff"); status != 0 {
		t.Fatal("status", status)
	}
}

func TestOverwriteExtendsFile(t *testing.T) {
	ts := newTestSystem(t)
	ts.install(t, "overwrite", func(l *ulib.Lib, args []string) int {
		fd := l.Creat("grow.txt")
		if l.Write(fd, []byte("0123456789")) != 10 || l.Close(fd) != 0 {
			return 1
		}
		fd = l.Open("grow.txt")
		if n := l.Write(fd, []byte("abcdefghijklmno")); n != 15 {
			t.Errorf("overwrite = %d", n)
			return 2
		}
		return l.Close(fd)
	})
	status, abnormal := ts.run(t, "overwrite.coff")
	if status != 0 || abnormal {
		t.Fatal("status", status, abnormal)
	}
	data, err := store.ReadFile(ts.store, "grow.txt")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "abcdefghijklmno" {
		t.Fatalf("got %q", data)
	}
}

func TestHugeCountOnShortBuffer(t *testing.T) {
	ts := newTestSystem(t)
	var before, after runtime.MemStats
	ts.install(t, "hugeCount", func(l *ulib.Lib, args []string) int {
		fd := l.Creat("huge.txt")
		runtime.ReadMemStats(&before)
		w := int32(l.T.Syscall(models.SysWrite, uint64(fd), 0x100, 0x7fffffff))
		r := int32(l.T.Syscall(models.SysRead, uint64(fd), 0x100, 0x7fffffff))
		runtime.ReadMemStats(&after)
		if w != -1 || r != -1 {
			t.Errorf("write = %d, read = %d", w, r)
		}
		return 0
	})
	if status, _ := ts.run(t, "hugeCount.coff"); status != 0 {
		t.Fatal("status", status)
	}
	if grown := after.TotalAlloc - before.TotalAlloc; grown > 64<<20 {
		t.Fatalf("allocated %d MiB for a rejected count", grown>>20)
	}
}

func TestFileErrors(t *testing.T) {
	ts := newTestSystem(t)
	store.WriteFile(ts.store, "data", []byte("abcdef"))
	ts.install(t, "fileErrors", func(l *ulib.Lib, args []string) int {
		check := func(what string, got, want int) {
			if got != want {
				t.Errorf("%s = %d, want %d", what, got, want)
			}
		}
		check("open missing", l.Open("missing"), -1)
		check("close(-1)", l.Close(-1), -1)
		check("close(15)", l.Close(15), -1)
		check("creat empty name", l.Creat(""), -1)
		check("creat with slash", l.Creat("a/b"), -1)
		a, b := l.Creat("empty"), l.Open("empty")
		if a < 2 || b < 2 || a == b {
			t.Errorf("creat/open fds %d %d", a, b)
		}
		check("read empty", l.Read(b, make([]byte, 4)), 0)

		fd := l.Open("data")
		check("read to unmapped memory", int(int32(l.T.Syscall(models.SysRead, uint64(fd), 1<<40, 3))), -1)
		check("negative read", int(int32(l.T.Syscall(models.SysRead, uint64(fd), 0, models.MinusOne))), -1)
		check("zero read", int(int32(l.T.Syscall(models.SysRead, uint64(fd), 1<<40, 0))), 0)
		buf := make([]byte, 3)
		check("read after failures", l.Read(fd, buf), 3)
		if string(buf) != "abc" {
			t.Errorf("cursor moved by a failed read: %q", buf)
		}
		check("write from unmapped memory", int(int32(l.T.Syscall(models.SysWrite, uint64(fd), 1<<40, 3))), -1)
		check("close", l.Close(fd), 0)
		check("double close", l.Close(fd), -1)
		check("read closed fd", l.Read(fd, buf), -1)

		check("unlink", l.Unlink("data"), 0)
		check("unlink again", l.Unlink("data"), -1)
		check("open unlinked", l.Open("data"), -1)
		check("unknown syscall", int(int32(l.T.Syscall(42))), -1)
		return 0
	})
	if status, abnormal := ts.run(t, "fileErrors.coff"); status != 0 || abnormal {
		t.Fatal("status", status, abnormal)
	}
}

func TestFileTableFull(t *testing.T) {
	ts := newTestSystem(t)
	status, _ := ts.run(t, "create.coff")
	// every slot was full: two console fds plus the files that fit
	if status != ts.Config.MaxOpenFiles {
		t.Fatal("create closed", status, "fds")
	}
	out := ts.Console.Transcript()
	if !strings.Contains(out, "Attempted to close file 0, result: 0\n") {
		t.Fatal("missing report before stdout closed:", out)
	}
	if strings.Contains(out, "Attempted to close file 1,") {
		t.Fatal("wrote after closing stdout:", out)
	}
	names, _ := ts.store.List()
	if len(names) < ts.Config.MaxOpenFiles-2 {
		t.Fatal("files missing from store:", names)
	}
}

func TestExecFanOut(t *testing.T) {
	ts := newTestSystem(t)
	var out syncBuffer
	ts.Console = fd.NewConsole(nil, &out)
	status, abnormal := ts.run(t, "execTest.coff", "5")
	if status != 0 || abnormal {
		t.Fatal("execTest status", status, abnormal)
	}
	transcript := ts.Console.Transcript()
	if n := strings.Count(transcript, "exiting simpleHello.coff"); n != 5 {
		t.Fatalf("%d children ran:\n%s", n, transcript)
	}
	if n := strings.Count(transcript, "longfilename123456789101112\n"); n != 5 {
		t.Fatal("arguments not passed")
	}
	if ts.Phys.FreePages() != ts.Config.PhysPages {
		t.Fatal("frames leaked:", ts.Phys.FreePages())
	}
}

func TestProcJoinTest(t *testing.T) {
	ts := newTestSystem(t)
	if status, _ := ts.run(t, "procJoinTest.coff"); status != 0 {
		t.Fatal("procJoinTest status", status, ts.Console.Transcript())
	}
}

func TestJoinResults(t *testing.T) {
	ts := newTestSystem(t)
	ts.install(t, "joiner", func(l *ulib.Lib, args []string) int {
		var status int
		ok := l.Exec("workSim.coff", "7")
		if ret := l.Join(ok, &status); ret != 1 || status != 7 {
			t.Errorf("normal join = %d status %d", ret, status)
		}
		if ret := l.Join(ok, &status); ret != -1 {
			t.Errorf("second join = %d", ret)
		}
		status = 99
		bad := l.Exec("workSim.coff", "0", "fault")
		if ret := l.Join(bad, &status); ret != 0 || status != 99 {
			t.Errorf("abnormal join = %d status %d", ret, status)
		}
		if ret := l.Join(l.T.Pid(), nil); ret != -1 {
			t.Errorf("self join = %d", ret)
		}
		if ret := l.Join(1000, nil); ret != -1 {
			t.Errorf("join of unknown pid = %d", ret)
		}
		// status address is optional
		quiet := l.Exec("workSim.coff", "3")
		if ret := l.Join(quiet, nil); ret != 1 {
			t.Errorf("join without status = %d", ret)
		}
		last := l.Exec("workSim.coff", "4")
		if ret := int(int32(l.T.Syscall(models.SysJoin, uint64(last), 0))); ret != 1 {
			t.Errorf("join with null status = %d", ret)
		}
		// an unwritable status address fails the join but still reaps
		lost := l.Exec("workSim.coff", "4")
		if ret := int(int32(l.T.Syscall(models.SysJoin, uint64(lost), 1<<40))); ret != -1 {
			t.Errorf("join with unmapped status = %d", ret)
		}
		if ret := l.Join(lost, nil); ret != -1 {
			t.Errorf("join after failed status write = %d", ret)
		}
		return 0
	})
	if status, _ := ts.run(t, "joiner.coff"); status != 0 {
		t.Fatal("status", status)
	}
}

func TestJoinGrandchild(t *testing.T) {
	ts := newTestSystem(t)
	pids := make(chan int, 1)
	ts.install(t, "middle", func(l *ulib.Lib, args []string) int {
		child := l.Exec("workSim.coff", "5")
		pids <- child
		return l.Join(child, nil)
	})
	ts.install(t, "top", func(l *ulib.Lib, args []string) int {
		mid := l.Exec("middle.coff")
		grandchild := <-pids
		if ret := l.Join(grandchild, nil); ret != -1 {
			t.Errorf("join of grandchild = %d", ret)
		}
		var status int
		if ret := l.Join(mid, &status); ret != 1 || status != 1 {
			t.Errorf("join of middle = %d status %d", ret, status)
		}
		return 0
	})
	if status, _ := ts.run(t, "top.coff"); status != 0 {
		t.Fatal("status", status)
	}
}

func TestExecFailures(t *testing.T) {
	ts := newTestSystem(t)
	store.WriteFile(ts.store, "junk.coff", []byte("not an image"))
	ts.install(t, "execFail", func(l *ulib.Lib, args []string) int {
		if pid := l.Exec("missing.coff"); pid != -1 {
			t.Errorf("exec of missing image = %d", pid)
		}
		if pid := l.Exec("junk.coff"); pid != -1 {
			t.Errorf("exec of junk = %d", pid)
		}
		huge := strings.Repeat("x", 200)
		if pid := l.Exec("workSim.coff", huge, huge); pid != -1 {
			t.Errorf("exec with arguments larger than a page = %d", pid)
		}
		if pid := int(int32(l.T.Syscall(models.SysExec, 1<<40, 0, 0))); pid != -1 {
			t.Errorf("exec with unmapped path = %d", pid)
		}
		// failed execs allocate no pids
		if pid := l.Exec("workSim.coff"); pid != l.T.Pid()+1 {
			t.Errorf("next pid = %d", pid)
		}
		return 0
	})
	if status, _ := ts.run(t, "execFail.coff"); status != 0 {
		t.Fatal("status", status)
	}
}

func TestArgumentsCopied(t *testing.T) {
	ts := newTestSystem(t)
	got := make(chan []string, 1)
	ts.install(t, "echoArgs", func(l *ulib.Lib, args []string) int {
		got <- args
		return len(args)
	})
	ts.install(t, "mutator", func(l *ulib.Lib, args []string) int {
		mark := l.Mark()
		pid := l.Exec("echoArgs.coff", "alpha", "beta")
		// scribble over the memory the arguments were passed in
		addr := l.Alloc(64)
		l.Poke(addr, bytes.Repeat([]byte{'Z'}, 64))
		l.Release(mark)
		var status int
		l.Join(pid, &status)
		return status
	})
	if status, _ := ts.run(t, "mutator.coff"); status != 2 {
		t.Fatal("status", status)
	}
	if args := <-got; len(args) != 2 || args[0] != "alpha" || args[1] != "beta" {
		t.Fatal("child saw", args)
	}
}

func TestConcurrentExec(t *testing.T) {
	ts := newTestSystem(t)
	const n = 8
	ts.install(t, "spawner", func(l *ulib.Lib, args []string) int {
		var mu sync.Mutex
		var wg sync.WaitGroup
		pids := make(map[int]int)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				// the heap allocator is not goroutine safe
				mu.Lock()
				defer mu.Unlock()
				pid := l.Exec("workSim.coff", string(rune('0'+i)))
				pids[pid] = i
			}(i)
		}
		wg.Wait()
		if len(pids) != n {
			t.Errorf("got %d distinct pids", len(pids))
		}
		for pid, want := range pids {
			var status int
			if ret := l.Join(pid, &status); ret != 1 || status != want {
				t.Errorf("join %d = %d status %d, want %d", pid, ret, status, want)
			}
		}
		return 0
	})
	if status, _ := ts.run(t, "spawner.coff"); status != 0 {
		t.Fatal("status", status)
	}
}

func TestHalt(t *testing.T) {
	ts := newTestSystem(t)
	ts.install(t, "sleeper", func(l *ulib.Lib, args []string) int {
		for {
			l.Close(-1)
			time.Sleep(time.Millisecond)
		}
	})
	ts.install(t, "haltChild", func(l *ulib.Lib, args []string) int {
		return l.Halt()
	})
	ts.install(t, "haltRoot", func(l *ulib.Lib, args []string) int {
		var status int
		if ret := l.Join(l.Exec("haltChild.coff"), &status); ret != 1 || status != -1 {
			t.Errorf("halt from a child = %d status %d", ret, status)
		}
		l.Exec("sleeper.coff")
		l.Halt()
		t.Error("halt returned to the root process")
		return 1
	})
	status, abnormal := ts.run(t, "haltRoot.coff")
	if status != 0 || abnormal {
		t.Fatal("root status after halt", status, abnormal)
	}
	if _, err := ts.Spawn(ts.RootPid(), "workSim.coff", nil); err == nil {
		t.Fatal("spawn after halt succeeded")
	}
}

func TestLuaProgram(t *testing.T) {
	ts := newTestSystem(t)
	script := `
local fd = sys.creat("lua.txt")
sys.write(fd, "from " .. arg[1])
sys.close(fd)
fd = sys.open("lua.txt")
local data = sys.read(fd, 64)
print(data)
local pid = sys.exec("workSim.coff", "6")
local ret, status = sys.join(pid)
if ret ~= 1 or status ~= 6 then
  sys.exit(2)
end
return #data
`
	if err := loader.Install(ts.store, "script.coff", loader.LuaImage(script, ts.Config.PageSize)); err != nil {
		t.Fatal(err)
	}
	status, abnormal := ts.run(t, "script.coff", "lua")
	if status != 8 || abnormal {
		t.Fatal("lua status", status, abnormal, ts.Console.Transcript())
	}
	if !strings.Contains(ts.Console.Transcript(), "from lua\n") {
		t.Fatal("lua print missing:", ts.Console.Transcript())
	}
}

func TestLuaExitAndError(t *testing.T) {
	ts := newTestSystem(t)
	loader.Install(ts.store, "exit.coff", loader.LuaImage(`sys.exit(9) return 1`, ts.Config.PageSize))
	if status, abnormal := ts.run(t, "exit.coff"); status != 9 || abnormal {
		t.Fatal("lua exit", status, abnormal)
	}
	ts = newTestSystem(t)
	loader.Install(ts.store, "broken.coff", loader.LuaImage(`error("boom")`, ts.Config.PageSize))
	if status, abnormal := ts.run(t, "broken.coff"); status != -1 || !abnormal {
		t.Fatal("lua error", status, abnormal)
	}
}

func TestStrace(t *testing.T) {
	ts := newTestSystem(t)
	ts.install(t, "traced", func(l *ulib.Lib, args []string) int {
		fd := l.Creat("t.txt")
		l.Write(fd, []byte("hi"))
		l.Close(99)
		l.Exit(3)
		return 0
	})
	if status, _ := ts.run(t, "traced.coff"); status != 3 {
		t.Fatal("status", status)
	}
	out := ts.strace.String()
	for _, want := range []string{
		`[1] creat("t.txt") = 2`,
		`[1] write(2, "hi", 2) = 2`,
		`[1] close(99) = -1`,
		`[1] exit(3)`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("strace missing %q:\n%s", want, out)
		}
	}
}
