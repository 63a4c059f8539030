// Package programs is the built-in user program corpus, installed into every
// machine's store as native images.
package programs

import (
	"github.com/lucos-os/lucos/go/loader"
	"github.com/lucos-os/lucos/go/models"
	"github.com/lucos-os/lucos/go/store"
	"github.com/lucos-os/lucos/go/ulib"
)

// entry adapts a ulib-style program to a models.Program.
func entry(f func(l *ulib.Lib, args []string) int) models.Program {
	return func(t models.Task) int {
		l := ulib.New(t)
		return f(l, l.Args())
	}
}

var builtins = map[string]models.Program{
	"simpleHello":  entry(SimpleHello),
	"workSim":      entry(WorkSim),
	"execTest":     entry(ExecTest),
	"procJoinTest": entry(ProcJoinTest),
	"create":       entry(Create),
	"open":         entry(Open),
	"readTest":     entry(ReadTest),
	"writeTest":    entry(WriteTest),
}

// Register adds every built-in to r under its entry name.
func Register(r *loader.Registry) {
	for name, prog := range builtins {
		r.Register(name, prog)
	}
}

// Install registers the built-ins and writes an image for each one to the
// store as <name>.coff.
func Install(s store.Store, r *loader.Registry) error {
	Register(r)
	for name := range builtins {
		if err := loader.Install(s, name+".coff", loader.NativeImage(name)); err != nil {
			return err
		}
	}
	return nil
}
