// Package lua runs user programs written in Lua. Scripts see the syscalls
// as the global table sys and their arguments as the global table arg.
package lua

import (
	"github.com/pkg/errors"
	lua "github.com/yuin/gopher-lua"

	"github.com/lucos-os/lucos/go/models"
	"github.com/lucos-os/lucos/go/ulib"
)

// SectionName is the image section holding a Lua program's source.
const SectionName = ".lua"

type runner struct {
	lib *ulib.Lib
	// unwind holds a panic raised by a syscall (exit, halt, a fault) until
	// the interpreter has returned.
	unwind interface{}
}

// Program returns an entry point that runs script. A number returned by the
// chunk is the exit status; a Lua error is an abnormal exit.
func Program(script, name string) models.Program {
	return func(t models.Task) int {
		r := &runner{lib: ulib.New(t)}
		L := lua.NewState()
		defer L.Close()
		r.bind(L)
		top := L.GetTop()
		err := L.DoString(script)
		if r.unwind != nil {
			panic(r.unwind)
		}
		if err != nil {
			panic(errors.Wrapf(err, "lua %s", name))
		}
		if L.GetTop() > top {
			if n, ok := L.Get(-1).(lua.LNumber); ok {
				return int(n)
			}
		}
		return 0
	}
}

// guard runs a syscall, parking any panic so it can cross the interpreter.
func (r *runner) guard(L *lua.LState, f func() int) (n int) {
	defer func() {
		if v := recover(); v != nil {
			r.unwind = v
			L.RaiseError("process unwinding: %v", v)
		}
	}()
	return f()
}

func (r *runner) bind(L *lua.LState) {
	args := L.NewTable()
	for i, a := range r.lib.Args() {
		L.RawSetInt(args, i+1, lua.LString(a))
	}
	L.SetGlobal("arg", args)

	sys := L.NewTable()
	fns := map[string]lua.LGFunction{
		"halt": func(L *lua.LState) int {
			return r.guard(L, func() int {
				L.Push(lua.LNumber(r.lib.Halt()))
				return 1
			})
		},
		"exit": func(L *lua.LState) int {
			status := L.OptInt(1, 0)
			return r.guard(L, func() int {
				r.lib.Exit(status)
				return 0
			})
		},
		"exec": func(L *lua.LState) int {
			path := L.CheckString(1)
			var argv []string
			for i := 2; i <= L.GetTop(); i++ {
				argv = append(argv, L.CheckString(i))
			}
			return r.guard(L, func() int {
				L.Push(lua.LNumber(r.lib.Exec(path, argv...)))
				return 1
			})
		},
		"join": func(L *lua.LState) int {
			pid := L.CheckInt(1)
			return r.guard(L, func() int {
				var status int
				ret := r.lib.Join(pid, &status)
				L.Push(lua.LNumber(ret))
				if ret == models.JoinNormal {
					L.Push(lua.LNumber(status))
				} else {
					L.Push(lua.LNil)
				}
				return 2
			})
		},
		"creat":  r.nameCall(func(s string) int { return r.lib.Creat(s) }),
		"open":   r.nameCall(func(s string) int { return r.lib.Open(s) }),
		"unlink": r.nameCall(func(s string) int { return r.lib.Unlink(s) }),
		"close": func(L *lua.LState) int {
			fd := L.CheckInt(1)
			return r.guard(L, func() int {
				L.Push(lua.LNumber(r.lib.Close(fd)))
				return 1
			})
		},
		"read": func(L *lua.LState) int {
			fd, size := L.CheckInt(1), L.CheckInt(2)
			if size < 0 {
				size = 0
			}
			return r.guard(L, func() int {
				buf := make([]byte, size)
				n := r.lib.Read(fd, buf)
				if n < 0 {
					L.Push(lua.LNil)
					L.Push(lua.LNumber(n))
					return 2
				}
				L.Push(lua.LString(buf[:n]))
				return 1
			})
		},
		"write": func(L *lua.LState) int {
			fd, s := L.CheckInt(1), L.CheckString(2)
			return r.guard(L, func() int {
				L.Push(lua.LNumber(r.lib.Write(fd, []byte(s))))
				return 1
			})
		},
	}
	for name, fn := range fns {
		L.SetField(sys, name, L.NewFunction(fn))
	}
	L.SetGlobal("sys", sys)

	// print goes to the process's stdout, not the host's
	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		var line string
		for i := 1; i <= L.GetTop(); i++ {
			if i > 1 {
				line += "\t"
			}
			line += L.ToStringMeta(L.Get(i)).String()
		}
		return r.guard(L, func() int {
			r.lib.Printf("%s\n", line)
			return 0
		})
	}))
}

func (r *runner) nameCall(f func(string) int) lua.LGFunction {
	return func(L *lua.LState) int {
		name := L.CheckString(1)
		return r.guard(L, func() int {
			L.Push(lua.LNumber(f(name)))
			return 1
		})
	}
}
