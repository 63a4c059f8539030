package models

import (
	"encoding/binary"
)

// Task is the user-mode view of a running process: its own memory, its
// arguments and the trap into the kernel.
type Task interface {
	Pid() int
	ByteOrder() binary.ByteOrder

	// Syscall traps into the kernel. It returns the raw return register.
	// exit and halt never return: they unwind the calling goroutine.
	Syscall(num int, args ...uint64) uint64

	MemRead(addr, size uint64) ([]byte, error)
	MemReadInto(p []byte, addr uint64) error
	MemWrite(addr uint64, p []byte) error

	Argc() int
	Argv() uint64
	// Heap returns the bounds of the image's writable heap section.
	Heap() (start, end uint64)
}

// Program is the entry point of a user program. Returning is an implicit
// exit with the returned status.
type Program func(t Task) int
