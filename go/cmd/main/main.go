package main

import (
	"github.com/lucos-os/lucos/go/cmd"

	_ "github.com/lucos-os/lucos/go/cmd/repl"
	_ "github.com/lucos-os/lucos/go/cmd/run"
	_ "github.com/lucos-os/lucos/go/cmd/trace"
)

func main() { cmd.Main() }
