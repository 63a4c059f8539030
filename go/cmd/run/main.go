package run

import (
	"os"

	"github.com/lucos-os/lucos/go/cmd"
)

func Main(args []string) {
	os.Exit(cmd.NewLucosCmd().Run(args))
}

func init() { cmd.Register("run", "boot a machine and run a program as its root process", Main) }
