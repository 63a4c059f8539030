package models

import (
	"github.com/pkg/errors"
)

// Every kernel-side failure is one of these, possibly wrapped with context.
// The syscall layer matches them with errors.Is and turns them into MinusOne.
var (
	ErrInvalidHandle    = errors.New("invalid file handle")
	ErrNotFound         = errors.New("not found")
	ErrTableFull        = errors.New("table full")
	ErrInvalidAddress   = errors.New("invalid address")
	ErrNotAChild        = errors.New("not a child of the caller")
	ErrAlreadyJoined    = errors.New("already joined")
	ErrNoSuchProcess    = errors.New("no such process")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrBadImage         = errors.New("bad executable image")
	ErrNotRoot          = errors.New("caller is not the root process")
	ErrHalted           = errors.New("machine halted")
)

// MinusOne is -1 as seen through a 64-bit return register.
const MinusOne = 0xFFFFFFFFFFFFFFFF

// Errno converts a kernel error into a syscall return value.
func Errno(err error) uint64 {
	if err != nil {
		return MinusOne
	}
	return 0
}
