package common

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/lucos-os/lucos/go/models"
)

func hex(a interface{}) string {
	tmp := fmt.Sprintf("0x%x", a)
	if strings.HasPrefix(tmp, "0x-") {
		tmp = "-0x" + tmp[3:]
	}
	return tmp
}

func (s Syscall) traceArg(args ...interface{}) string {
	switch arg := args[0].(type) {
	case Obuf:
		return hex(arg.Addr)
	case Buf:
		if len(args) > 1 {
			if length, ok := args[1].(Len); ok && length > 0 {
				mem := make([]byte, s.clip(int(length)))
				if s.Kernel.Mem.Read(arg.Addr, mem) == nil {
					return models.Repr(mem, s.Kernel.StrSize)
				}
			}
		}
		return hex(arg.Addr)
	case Ptr:
		return hex(arg)
	case Fd:
		return fmt.Sprintf("%d", int32(arg))
	case Len:
		return fmt.Sprintf("%d", int32(arg))
	case string:
		return models.Repr([]byte(arg), s.Kernel.StrSize)
	case uint64:
		return fmt.Sprintf("%d", int32(arg))
	default:
		return fmt.Sprintf("%v", arg)
	}
}

// clip bounds how much of a buffer is read for display. One byte past
// StrSize is enough for Repr to mark the cut.
func (s Syscall) clip(n int) int {
	if max := s.Kernel.StrSize; max > 0 && n > max+1 {
		return max + 1
	}
	return n
}

func (s Syscall) traceArgs(regs []uint64) string {
	padded := make([]uint64, len(s.In))
	copy(padded, regs)
	inRef, err := s.Kernel.Argjoy.Convert(s.In, false, padded)
	if err != nil {
		return "<" + err.Error() + ">"
	}
	in := make([]interface{}, len(inRef))
	for i, val := range inRef {
		in[i] = val.Interface()
	}
	ret := make([]string, len(in))
	for i := range in {
		ret[i] = s.traceArg(in[i:]...)
	}
	return strings.Join(ret, ", ")
}

// Trace formats the call as name(args). Call it before the handler runs so
// input buffers show what the process passed in.
func (s Syscall) Trace(regs []uint64) string {
	return fmt.Sprintf("%s(%s)", s.Name, s.traceArgs(regs))
}

// TraceRet formats " = ret", including what the kernel wrote into an output
// buffer followed by a length argument.
func (s Syscall) TraceRet(args []uint64, ret uint64) string {
	var out []string
	for i, typ := range s.In {
		if typ == reflect.TypeOf(Obuf{}) && i+1 < len(s.In) && s.In[i+1] == reflect.TypeOf(Len(0)) && i+1 < len(args) {
			length := int32(ret)
			if length > 0 && int64(length) <= int64(int32(args[i+1])) {
				mem := make([]byte, s.clip(int(length)))
				if s.Kernel.Mem.Read(args[i], mem) == nil {
					out = append(out, models.Repr(mem, s.Kernel.StrSize))
				}
			}
		}
	}
	if len(s.Out) > 0 {
		out = append(out, s.traceArg(ret))
	}
	if len(out) > 0 {
		return fmt.Sprintf(" = %s", strings.Join(out, ", "))
	}
	return ""
}
