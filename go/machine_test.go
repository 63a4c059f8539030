package lucos

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"

	"github.com/lucos-os/lucos/go/kernel/proc"
	"github.com/lucos-os/lucos/go/models"
	"github.com/lucos-os/lucos/go/models/trace"
	"github.com/lucos-os/lucos/go/store"
)

func testConfig(out io.Writer) *models.Config {
	c := models.DefaultConfig()
	c.PageSize = 256
	c.PhysPages = 1024
	c.HeapPages = 8
	c.Output = out
	c.Input = strings.NewReader("")
	return c
}

func newTestMachine(t *testing.T, c *models.Config) *Machine {
	s, err := NewStore(c)
	if err != nil {
		t.Fatal(err)
	}
	m, err := NewMachine(c, s, hclog.NewNullLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestRunExecTest(t *testing.T) {
	var out bytes.Buffer
	m := newTestMachine(t, testConfig(&out))
	if err := m.Run("execTest.coff", []string{"3"}); err != nil {
		t.Fatal(err, out.String())
	}
	if n := strings.Count(out.String(), "exiting simpleHello.coff"); n != 3 {
		t.Fatalf("expected 3 children to finish, got %d:\n%s", n, out.String())
	}
	for _, p := range m.Processes() {
		if p.State != proc.Exited {
			t.Errorf("process %d still %s after run", p.Pid, p.State)
		}
	}
}

func TestRunExitStatus(t *testing.T) {
	tests := []struct {
		args []string
		want error
	}{
		{[]string{"0"}, nil},
		{[]string{"3"}, models.ExitStatus(3)},
		{[]string{"0", "fault"}, models.ExitStatus(-1)},
	}
	for _, test := range tests {
		m := newTestMachine(t, testConfig(io.Discard))
		if err := m.Run("workSim.coff", test.args); err != test.want {
			t.Errorf("workSim %v: got %v, want %v", test.args, err, test.want)
		}
	}
}

func TestRunHalts(t *testing.T) {
	var out bytes.Buffer
	m := newTestMachine(t, testConfig(&out))
	if err := m.Run("open.coff", nil); err != nil {
		t.Fatal(err, out.String())
	}
	select {
	case <-m.sys.Procs.Halted():
	default:
		t.Fatal("machine did not halt")
	}
	if err := m.Run("workSim.coff", nil); err == nil {
		t.Fatal("booted a halted machine")
	}
}

func TestRunMissing(t *testing.T) {
	m := newTestMachine(t, testConfig(io.Discard))
	if err := m.Run("nope.coff", nil); err == nil {
		t.Fatal("expected boot failure")
	}
}

func TestTraceFile(t *testing.T) {
	c := testConfig(io.Discard)
	c.TraceFile = filepath.Join(t.TempDir(), "run.trace")
	m := newTestMachine(t, c)
	if err := m.Run("writeTest.coff", nil); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(c.TraceFile)
	if err != nil {
		t.Fatal(err)
	}
	tf, err := trace.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	defer tf.Close()
	if tf.Header.PageSize != 256 {
		t.Fatal("bad page size", tf.Header.PageSize)
	}
	counts := make(map[int32]int)
	for {
		frame, err := tf.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			t.Fatal(err)
		}
		counts[frame.Num]++
	}
	if counts[models.SysCreat] == 0 || counts[models.SysWrite] == 0 || counts[models.SysClose] != 1 {
		t.Fatal("unexpected frames", counts)
	}
}

func TestInstallFlag(t *testing.T) {
	var out bytes.Buffer
	m := newTestMachine(t, testConfig(&out))
	path := filepath.Join(t.TempDir(), "hi.lua")
	if err := os.WriteFile(path, []byte("print('hi ' .. #arg)\n"), 0644); err != nil {
		t.Fatal(err)
	}
	for _, bad := range []string{"hi.coff", "=x.lua", "hi.coff="} {
		if err := m.InstallFlag(bad); err == nil {
			t.Errorf("accepted %q", bad)
		}
	}
	if err := m.InstallFlag("hi.coff=" + path); err != nil {
		t.Fatal(err)
	}
	if _, err := store.ReadFile(m.Store, "hi.coff"); err != nil {
		t.Fatal(err)
	}
	if err := m.Run("hi.coff", []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "hi 2\n") {
		t.Fatal("got", out.String())
	}
}

func TestHostStore(t *testing.T) {
	c := testConfig(io.Discard)
	c.StoreDir = t.TempDir()
	m := newTestMachine(t, c)
	if err := m.Run("writeTest.coff", nil); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(c.StoreDir, "wTest1.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "Test text to wr  next test text\x00" {
		t.Fatalf("got %q", data)
	}
	if _, err := os.Stat(filepath.Join(c.StoreDir, "execTest.coff")); err != nil {
		t.Fatal("images not installed on the host:", err)
	}
}
