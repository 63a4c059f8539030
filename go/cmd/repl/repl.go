package repl

import (
	"os"

	"github.com/lucos-os/lucos/go/cmd"
	"github.com/lucos-os/lucos/go/ui"
)

func Main(args []string) {
	c := cmd.NewLucosCmd()
	c.NoExe = true
	c.RunMachine = func(args []string) error {
		mon := ui.NewMonitor(c.Config, c.Store, c.Machine.Log)
		return mon.Run()
	}
	os.Exit(c.Run(args))
}

func init() { cmd.Register("repl", "interactive monitor over a machine's file store", Main) }
