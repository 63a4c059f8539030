package common

import (
	"encoding/binary"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hashicorp/go-hclog"
	"github.com/lunixbochs/argjoy"
)

// Memory is the calling process's address space, as the kernel sees it.
type Memory interface {
	Read(addr uint64, p []byte) error
	Write(addr uint64, p []byte) error
	ReadString(addr uint64, max int) (string, error)
}

type KernelBase struct {
	Syscalls map[string]Syscall
	Mem      Memory
	Order    binary.ByteOrder
	Argjoy   argjoy.Argjoy
	Log      hclog.Logger
	// MaxStr bounds string arguments read from user memory.
	MaxStr int
	// StrSize bounds strings printed by Trace.
	StrSize int
}

func (k *KernelBase) Base() *KernelBase {
	return k
}

type Kernel interface {
	Base() *KernelBase
}

func camelToSnakeCase(name string) string {
	var words []string
	last := 0
	for i, c := range name {
		if unicode.IsUpper(c) {
			if i > 0 {
				words = append(words, name[last:i])
			}
			last = i
		}
	}
	words = append(words, name[last:])
	return strings.ToLower(strings.Join(words, "_"))
}

func initKernel(kf Kernel) {
	k := kf.Base()
	if k.Order == nil {
		k.Order = binary.LittleEndian
	}
	k.Syscalls = make(map[string]Syscall)
	instance := reflect.ValueOf(kf)
	typ := instance.Type()
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		name := method.Name
		if r, size := utf8.DecodeRuneInString(name); size <= 0 || !unicode.IsUpper(r) || name == "Base" {
			continue
		}
		name = camelToSnakeCase(name)
		in := make([]reflect.Type, method.Type.NumIn()-1)
		for j := 1; j < method.Type.NumIn(); j++ {
			in[j-1] = method.Type.In(j)
		}
		out := make([]reflect.Type, method.Type.NumOut())
		for j := 0; j < method.Type.NumOut(); j++ {
			out[j] = method.Type.Out(j)
		}
		k.Syscalls[name] = Syscall{
			Name:     name,
			Kernel:   k,
			Instance: instance,
			Method:   method,
			In:       in,
			Out:      out,
		}
	}
	k.Argjoy.Register(k.commonArgCodec)
	k.Argjoy.Register(argjoy.IntToInt)
}

// Lookup finds a syscall by name, building the dispatch table on first use.
func Lookup(kf Kernel, name string) *Syscall {
	k := kf.Base()
	if k.Syscalls == nil {
		initKernel(kf)
	}
	if sys, ok := k.Syscalls[name]; ok {
		return &sys
	}
	return nil
}
