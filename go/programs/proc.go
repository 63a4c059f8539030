package programs

import (
	"strconv"

	"github.com/lucos-os/lucos/go/ulib"
)

// SimpleHello prints each argument on its own line.
func SimpleHello(l *ulib.Lib, args []string) int {
	for _, a := range args {
		l.Printf("%s\n", a)
	}
	l.Printf("exiting simpleHello.coff\n")
	return 0
}

// WorkSim exits with the status given as its first argument. A second
// argument of "fault" makes it touch unmapped memory instead.
func WorkSim(l *ulib.Lib, args []string) int {
	status := 0
	if len(args) > 0 {
		status, _ = strconv.Atoi(args[0])
	}
	if len(args) > 1 && args[1] == "fault" {
		l.Peek(1<<40, 4)
	}
	return status
}

// ExecTest fans out NUM_PROGRAMS copies of simpleHello (default 5) and joins
// every one of them.
func ExecTest(l *ulib.Lib, args []string) int {
	n := 5
	if len(args) > 0 {
		if v, err := strconv.Atoi(args[0]); err == nil {
			n = v
		}
	}
	argv := []string{"Hello, world!", "test", "longfilename123456789101112"}
	var pids []int
	for i := 0; i < n; i++ {
		pid := l.Exec("simpleHello.coff", argv...)
		l.Printf("process created, pid is %d\n", pid)
		if pid < 0 {
			return 1
		}
		pids = append(pids, pid)
	}
	failed := 0
	for _, pid := range pids {
		var status int
		ret := l.Join(pid, &status)
		l.Printf("joined %d: result %d, status %d\n", pid, ret, status)
		if ret != 1 || status != 0 {
			failed++
		}
	}
	return failed
}

// ProcJoinTest runs workSim twice and reports both join results.
func ProcJoinTest(l *ulib.Lib, args []string) int {
	l.Printf("starting proc join test\n")
	child := l.Exec("workSim.coff", "0", "0")
	var status1, status2 int
	result1 := l.Join(child, &status1)
	child2 := l.Exec("workSim.coff", "1", "1")
	result2 := l.Join(child2, &status2)
	l.Printf("join result1: %d, status %d\n", result1, status1)
	l.Printf("join result2: %d, status %d\n", result2, status2)
	// a second join on a reaped child must fail
	again := l.Join(child, nil)
	l.Printf("join again: %d\n", again)
	l.Printf("finishing proc join test\n")
	if result1 != 1 || result2 != 1 || status1 != 0 || status2 != 1 || again != -1 {
		return 1
	}
	return 0
}
