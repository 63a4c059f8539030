package cmd

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	lucos "github.com/lucos-os/lucos/go"
	"github.com/lucos-os/lucos/go/models"
	"github.com/lucos-os/lucos/go/store"
)

type strslice []string

func (s *strslice) String() string {
	return fmt.Sprintf("%v", *s)
}

func (s *strslice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

type LucosCmd struct {
	Config *models.Config
	Store  store.Store

	SetupFlags   func() error
	SetupMachine func() error
	RunMachine   func(args []string) error

	// NoExe commands run without a program argument.
	NoExe bool

	Machine *lucos.Machine
	Flags   *flag.FlagSet
	Stderr  io.Writer
}

func NewLucosCmd() *LucosCmd {
	return &LucosCmd{Flags: flag.NewFlagSet("cli", flag.ExitOnError), Stderr: os.Stderr}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// PrintError prints err and, for pkg/errors values, where it came from.
func (c *LucosCmd) PrintError(err error) {
	fmt.Fprintf(c.Stderr, "%s\n", strings.Repeat("-", 40))
	fmt.Fprintf(c.Stderr, "Error: %s\n", err)
	if st, ok := errors.Cause(err).(stackTracer); ok {
		for _, f := range st.StackTrace() {
			method := fmt.Sprintf("%n", f)
			fmt.Fprintf(c.Stderr, "%s:%d | %s()\n", f, f, method)
			if method == "main" {
				break
			}
		}
	}
}

// Run parses argv, boots a machine and returns the process exit code.
func (c *LucosCmd) Run(argv []string) int {
	fs := c.Flags
	configPath := fs.String("config", "", "config file (default: "+models.ConfigName+" in the user config folder)")
	storeDir := fs.String("store", "", "keep files in this host directory instead of memory")
	strace := fs.Bool("strace", false, "trace syscalls")
	tracefile := fs.String("trace", "", "binary syscall trace output file")
	verbose := fs.Bool("v", false, "verbose output")
	color := fs.Bool("color", false, "force colored output")
	var installs strslice
	fs.Var(&installs, "install", "install a host Lua script as name=path.lua (repeatable)")
	tnames := []string{"strace", "trace"}

	fs.Usage = func() {
		usage := "Usage: %s [options]"
		if !c.NoExe {
			usage += " <program> [args...]"
		}
		usage += "\n\nOptions:\n"
		fmt.Fprintf(c.Stderr, usage, argv[0])
		var flags, tflags []*flag.Flag
		fs.VisitAll(func(f *flag.Flag) {
			for _, name := range tnames {
				if name == f.Name {
					tflags = append(tflags, f)
					return
				}
			}
			flags = append(flags, f)
		})
		models.PrintFlags(c.Stderr, flags)
		fmt.Fprintf(c.Stderr, "\nTrace Options:\n")
		models.PrintFlags(c.Stderr, tflags)
	}
	if c.SetupFlags != nil {
		if err := c.SetupFlags(); err != nil {
			c.PrintError(err)
			return 1
		}
	}
	fs.Parse(argv[1:])
	args := fs.Args()
	if !c.NoExe && len(args) < 1 {
		fs.Usage()
		return 1
	}

	config, err := models.LoadConfig(*configPath)
	if err != nil {
		c.PrintError(err)
		return 1
	}
	if *storeDir != "" {
		config.StoreDir = *storeDir
	}
	if *strace {
		config.TraceSys = true
	}
	if *tracefile != "" {
		config.TraceFile = *tracefile
	}
	if *verbose {
		config.LogLevel = "debug"
	}
	if *color {
		config.Color = true
	}
	c.Config = config

	c.Store, err = lucos.NewStore(config)
	if err != nil {
		c.PrintError(err)
		return 1
	}
	m, err := lucos.NewMachine(config, c.Store, nil)
	if err != nil {
		c.PrintError(err)
		return 1
	}
	c.Machine = m
	defer m.Close()
	for _, arg := range installs {
		if err := m.InstallFlag(arg); err != nil {
			c.PrintError(err)
			return 1
		}
	}
	if c.SetupMachine != nil {
		if err := c.SetupMachine(); err != nil {
			c.PrintError(err)
			return 1
		}
	}

	if c.RunMachine != nil {
		err = c.RunMachine(args)
	} else {
		err = m.Run(args[0], args[1:])
	}
	if err != nil {
		if e, ok := err.(models.ExitStatus); ok {
			return int(e) & 0xff
		}
		c.PrintError(err)
		return 1
	}
	return 0
}
