// Package lucos assembles a machine: store, loader, physical memory, console
// and kernel, booted with one root program.
package lucos

import (
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"

	"github.com/lucos-os/lucos/go/kernel/fd"
	"github.com/lucos-os/lucos/go/kernel/proc"
	"github.com/lucos-os/lucos/go/kernel/userprog"
	"github.com/lucos-os/lucos/go/loader"
	"github.com/lucos-os/lucos/go/models"
	"github.com/lucos-os/lucos/go/models/trace"
	"github.com/lucos-os/lucos/go/programs"
	"github.com/lucos-os/lucos/go/store"
)

type Machine struct {
	Config   *models.Config
	Store    store.Store
	Registry *loader.Registry
	Console  *fd.Console
	Log      hclog.Logger

	sys    *userprog.System
	tracer *trace.TraceWriter
}

// NewLogger builds the root logger the machine's components name themselves
// under.
func NewLogger(c *models.Config, w io.Writer) hclog.Logger {
	color := hclog.ColorOff
	if c.Color {
		color = hclog.AutoColor
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "lucos",
		Level:  hclog.LevelFromString(c.LogLevel),
		Output: w,
		Color:  color,
	})
}

// NewStore opens the store named by the config: a host directory, or memory.
func NewStore(c *models.Config) (store.Store, error) {
	if c.StoreDir != "" {
		return store.NewHostStore(c.StoreDir, c.MaxNameLen, int64(c.MaxFileSize))
	}
	return store.NewMemStore(c.MaxNameLen, int64(c.MaxFileSize)), nil
}

// NewMachine installs the built-in programs into s and prepares a kernel. s
// may outlive the machine; a new machine can be booted on it later.
func NewMachine(c *models.Config, s store.Store, log hclog.Logger) (*Machine, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = NewLogger(c, os.Stderr)
	}
	reg := loader.NewRegistry()
	if err := programs.Install(s, reg); err != nil {
		return nil, errors.Wrap(err, "installing programs")
	}
	m := &Machine{
		Config:   c,
		Store:    s,
		Registry: reg,
		Console:  fd.NewConsole(c.Input, c.Output),
		Log:      log,
	}
	m.sys = userprog.NewSystem(c, s, loader.New(s, reg, log.Named("loader")), m.Console, log)
	if c.TraceSys {
		m.sys.Strace = os.Stderr
		m.sys.Color = c.Color || isatty.IsTerminal(os.Stderr.Fd())
	}
	if c.TraceFile != "" {
		f, err := os.Create(c.TraceFile)
		if err != nil {
			return nil, errors.Wrap(err, "creating trace file")
		}
		tw, err := trace.NewWriter(f, c.PageSize)
		if err != nil {
			f.Close()
			return nil, err
		}
		m.tracer = tw
		m.sys.Tracer = tw
		log.Debug("tracing", "file", c.TraceFile, "boot", tw.Header.BootID)
	}
	return m, nil
}

// InstallLua wraps a host Lua script into an image named name.
func (m *Machine) InstallLua(name, hostPath string) error {
	script, err := os.ReadFile(hostPath)
	if err != nil {
		return errors.Wrapf(err, "reading %s", hostPath)
	}
	return loader.Install(m.Store, name, loader.LuaImage(string(script), m.Config.PageSize))
}

// InstallFlag handles name=path.lua arguments from the command line.
func (m *Machine) InstallFlag(arg string) error {
	name, path, ok := strings.Cut(arg, "=")
	if !ok || name == "" || path == "" {
		return errors.Errorf("bad install %q, want name=path.lua", arg)
	}
	return m.InstallLua(name, path)
}

// Run boots path as the root process and blocks until the machine halts or
// its last process exits. A root that exits non-zero, or crashes, comes back
// as a models.ExitStatus error.
func (m *Machine) Run(path string, args []string) error {
	root, err := m.sys.Boot(path, args)
	if err != nil {
		return err
	}
	m.Log.Debug("booted", "pid", root.Pid(), "path", path)
	m.sys.Wait()
	status, abnormal := root.Record().Status()
	select {
	case <-m.sys.Procs.Halted():
		m.Log.Info("machine halted", "by", root.Pid())
	default:
		m.Log.Debug("last process exited")
	}
	if abnormal {
		return models.ExitStatus(-1)
	} else if status != 0 {
		return models.ExitStatus(status)
	}
	return nil
}

func (m *Machine) Processes() []proc.Info {
	return m.sys.Procs.List()
}

func (m *Machine) Halt() {
	m.sys.Halt()
}

func (m *Machine) Close() error {
	m.sys.Halt()
	if m.tracer != nil {
		m.sys.Drain()
		tw := m.tracer
		m.tracer = nil
		return tw.Close()
	}
	return nil
}
