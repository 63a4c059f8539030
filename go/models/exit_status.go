package models

import "fmt"

// ExitStatus is returned (or panicked) when a process or the whole machine
// stops with a status code.
type ExitStatus int

func (e ExitStatus) Error() string {
	return fmt.Sprintf("exit %d", int(e))
}
