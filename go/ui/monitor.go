// Package ui is the interactive monitor: a readline prompt over a machine's
// file store that boots programs on demand.
package ui

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/hashicorp/go-hclog"
	"github.com/lunixbochs/fvbommel-util/sortorder"
	"github.com/lunixbochs/vtclean"
	"github.com/mattn/go-shellwords"
	"github.com/pkg/errors"
	"github.com/shibukawa/configdir"

	lucos "github.com/lucos-os/lucos/go"
	"github.com/lucos-os/lucos/go/loader"
	"github.com/lucos-os/lucos/go/models"
	"github.com/lucos-os/lucos/go/store"
)

var errQuit = errors.New("quit")

type Command struct {
	Name string
	Args string
	Desc string
	Run  func(m *Monitor, args []string) error
}

var commands = make(map[string]*Command)

func cmd(c *Command) *Command {
	commands[c.Name] = c
	return c
}

type lockedWriter struct {
	sync.Mutex
	w io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.Lock()
	defer l.Unlock()
	return l.w.Write(p)
}

type Monitor struct {
	Config *models.Config
	Store  store.Store
	Log    hclog.Logger

	out *lockedWriter
	rl  *readline.Instance

	mu     sync.Mutex
	bg     *lucos.Machine
	bgDone chan struct{}
}

func NewMonitor(c *models.Config, s store.Store, log hclog.Logger) *Monitor {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Monitor{Config: c, Store: s, Log: log, out: &lockedWriter{w: c.Output}}
}

func (m *Monitor) Printf(format string, a ...interface{}) {
	fmt.Fprintf(m.out, format, a...)
}

// Run reads commands until quit or EOF. History is kept in the user's cache
// folder when it can be created.
func (m *Monitor) Run() error {
	configDirs := configdir.New("lucos", "monitor")
	cacheDir := configDirs.QueryCacheFolder()
	historyPath := ""
	if err := cacheDir.MkdirAll(); err == nil {
		historyPath = filepath.Join(cacheDir.Path, "history")
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "lucos> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		HistoryFile:     historyPath,
	})
	if err != nil {
		return errors.Wrap(err, "starting readline")
	}
	m.rl = rl
	m.out.Lock()
	m.out.w = rl.Stdout()
	m.out.Unlock()
	defer func() {
		m.stopBackground()
		rl.Close()
	}()
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err != nil {
			return nil
		}
		if err := m.Exec(line); err == errQuit {
			return nil
		}
	}
}

// Exec runs one command line. Command errors are printed; only quit is
// returned.
func (m *Monitor) Exec(line string) error {
	args, err := shellwords.Parse(line)
	if err != nil {
		m.Printf("parse error: %v\n", err)
		return nil
	}
	if len(args) == 0 {
		return nil
	}
	name, args := args[0], args[1:]
	c, ok := commands[name]
	if !ok {
		m.Printf("command not found: %s\n", name)
		return nil
	}
	if err := c.Run(m, args); err == errQuit {
		return err
	} else if err != nil {
		m.Printf("error: %v\n", err)
	}
	return nil
}

// machine boots a fresh machine on the monitor's store, with console output
// routed through the monitor.
func (m *Monitor) machine(in io.Reader) (*lucos.Machine, error) {
	config := *m.Config
	config.Output = m.out
	config.Input = in
	return lucos.NewMachine(&config, m.Store, m.Log.Named("machine"))
}

func (m *Monitor) report(path string, err error) {
	if e, ok := err.(models.ExitStatus); ok {
		if e == -1 {
			m.Printf("%s: crashed\n", path)
		} else {
			m.Printf("%s: exit status %d\n", path, int(e))
		}
	} else if err != nil {
		m.Printf("%s: %v\n", path, err)
	} else {
		m.Printf("%s: ok\n", path)
	}
}

func (m *Monitor) stopBackground() {
	m.mu.Lock()
	bg, done := m.bg, m.bgDone
	m.mu.Unlock()
	if bg != nil {
		bg.Halt()
		<-done
	}
}

func usage(c *Command) error {
	return errors.Errorf("usage: %s %s", c.Name, c.Args)
}

var lsCmd = cmd(&Command{
	Name: "ls",
	Desc: "list files in the store",
	Run: func(m *Monitor, args []string) error {
		names, err := m.Store.List()
		if err != nil {
			return err
		}
		for _, name := range names {
			size := int64(-1)
			if f, err := m.Store.Open(name); err == nil {
				size, _ = f.Size()
				f.Close()
			}
			m.Printf("%8d %s\n", size, name)
		}
		return nil
	},
})

var catCmd = cmd(&Command{
	Name: "cat",
	Args: "<file>...",
	Desc: "print files",
	Run: func(m *Monitor, args []string) error {
		if len(args) == 0 {
			return usage(commands["cat"])
		}
		for _, name := range args {
			data, err := store.ReadFile(m.Store, name)
			if err != nil {
				return err
			}
			m.Printf("%s", vtclean.Clean(string(data), false))
			if len(data) > 0 && data[len(data)-1] != '\n' {
				m.Printf("\n")
			}
		}
		return nil
	},
})

var rmCmd = cmd(&Command{
	Name: "rm",
	Args: "<file>...",
	Desc: "remove files",
	Run: func(m *Monitor, args []string) error {
		if len(args) == 0 {
			return usage(commands["rm"])
		}
		for _, name := range args {
			if err := m.Store.Remove(name); err != nil {
				return err
			}
		}
		return nil
	},
})

var installCmd = cmd(&Command{
	Name: "install",
	Args: "<name> <host.lua>",
	Desc: "install a host Lua script as a program",
	Run: func(m *Monitor, args []string) error {
		if len(args) != 2 {
			return usage(commands["install"])
		}
		script, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		return loader.Install(m.Store, args[0], loader.LuaImage(string(script), m.Config.PageSize))
	},
})

var runCmd = cmd(&Command{
	Name: "run",
	Args: "<program> [args...]",
	Desc: "boot a machine and wait for it",
	Run: func(m *Monitor, args []string) error {
		if len(args) == 0 {
			return usage(commands["run"])
		}
		mach, err := m.machine(m.Config.Input)
		if err != nil {
			return err
		}
		defer mach.Close()
		m.report(args[0], mach.Run(args[0], args[1:]))
		return nil
	},
})

var bgCmd = cmd(&Command{
	Name: "bg",
	Args: "<program> [args...]",
	Desc: "boot a machine in the background",
	Run: func(m *Monitor, args []string) error {
		if len(args) == 0 {
			return usage(commands["bg"])
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.bg != nil {
			return errors.New("a background machine is already running")
		}
		mach, err := m.machine(strings.NewReader(""))
		if err != nil {
			return err
		}
		done := make(chan struct{})
		m.bg, m.bgDone = mach, done
		go func() {
			err := mach.Run(args[0], args[1:])
			mach.Close()
			m.mu.Lock()
			m.bg, m.bgDone = nil, nil
			m.mu.Unlock()
			m.report(args[0], err)
			close(done)
		}()
		return nil
	},
})

var psCmd = cmd(&Command{
	Name: "ps",
	Desc: "list processes of the background machine",
	Run: func(m *Monitor, args []string) error {
		m.mu.Lock()
		bg := m.bg
		m.mu.Unlock()
		if bg == nil {
			m.Printf("no machine running\n")
			return nil
		}
		m.Printf("%5s %5s %-8s %s\n", "PID", "PPID", "STATE", "CMD")
		for _, p := range bg.Processes() {
			cmdline := strings.Join(append([]string{p.Name}, p.Args...), " ")
			m.Printf("%5d %5d %-8s %s\n", p.Pid, p.Parent, p.State, cmdline)
		}
		return nil
	},
})

var haltCmd = cmd(&Command{
	Name: "halt",
	Desc: "halt the background machine",
	Run: func(m *Monitor, args []string) error {
		m.mu.Lock()
		bg, done := m.bg, m.bgDone
		m.mu.Unlock()
		if bg == nil {
			return errors.New("no machine running")
		}
		bg.Halt()
		<-done
		return nil
	},
})

var quitCmd = cmd(&Command{
	Name: "quit",
	Desc: "halt any machine and leave",
	Run: func(m *Monitor, args []string) error {
		m.stopBackground()
		return errQuit
	},
})

var helpCmd = cmd(&Command{
	Name: "help",
	Desc: "list commands",
	Run: func(m *Monitor, args []string) error {
		names := make([]string, 0, len(commands))
		for name := range commands {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool { return sortorder.NaturalLess(names[i], names[j]) })
		for _, name := range names {
			c := commands[name]
			m.Printf("%-28s %s\n", strings.TrimSpace(c.Name+" "+c.Args), c.Desc)
		}
		return nil
	},
})
