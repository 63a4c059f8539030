package models

// Syscall numbers, passed by user programs as the first trap argument.
const (
	SysHalt = iota
	SysExit
	SysExec
	SysJoin
	SysCreat
	SysOpen
	SysRead
	SysWrite
	SysClose
	SysUnlink
)

// Results of join.
const (
	JoinAbnormal = 0
	JoinNormal   = 1
)

// SyscallNames maps syscall numbers to the kernel method that serves them.
var SyscallNames = map[int]string{
	SysHalt:   "halt",
	SysExit:   "exit",
	SysExec:   "exec",
	SysJoin:   "join",
	SysCreat:  "creat",
	SysOpen:   "open",
	SysRead:   "read",
	SysWrite:  "write",
	SysClose:  "close",
	SysUnlink: "unlink",
}
