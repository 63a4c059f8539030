package userprog

import (
	"fmt"

	"github.com/mgutz/ansi"
)

var (
	pidColor  = ansi.ColorFunc("cyan")
	callColor = ansi.ColorFunc("yellow+b")
)

func (p *Process) strace(line string) {
	s := p.sys
	if !s.Config.TraceSys || s.Strace == nil {
		return
	}
	prefix := fmt.Sprintf("[%d]", p.Pid())
	if s.Color {
		prefix = pidColor(prefix)
		line = callColor(line)
	}
	s.straceM.Lock()
	fmt.Fprintf(s.Strace, "%s %s\n", prefix, line)
	s.straceM.Unlock()
}
