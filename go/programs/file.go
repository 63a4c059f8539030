package programs

import (
	"fmt"

	"github.com/lucos-os/lucos/go/ulib"
)

// Create makes 20 files at once, more than a file table holds, then closes
// fds 0 through 19 blindly, the console included. Once stdout is gone the
// remaining reports are lost; the status is the number of closes that
// succeeded.
func Create(l *ulib.Lib, args []string) int {
	const numFiles = 20
	l.Printf("Initialize creat() syscall tests...\n")
	l.Printf("Attempting to create %d files simultaneously\n", numFiles)
	for i := 0; i < numFiles; i++ {
		l.Creat(fmt.Sprintf("cTest_%d.txt", i))
	}
	closed := 0
	for fd := 0; fd < numFiles; fd++ {
		result := l.Close(fd)
		l.Printf("Attempted to close file %d, result: %d\n", fd, result)
		if result == 0 {
			closed++
		}
	}
	return closed
}

// Open opens testFile1.txt and halts the machine.
func Open(l *ulib.Lib, args []string) int {
	name := "testFile1.txt"
	l.Printf("user program opening file %s ...\n", name)
	fd := l.Open(name)
	l.Printf("%s opened with file handle %d\n", name, fd)
	l.Halt()
	return fd
}

// ReadTest prints the first ten bytes of rTest1.txt.
func ReadTest(l *ulib.Lib, args []string) int {
	fd := l.Open("rTest1.txt")
	if fd == -1 {
		l.Printf("File does not exist\n")
		return 1
	}
	buf := make([]byte, 100)
	n := l.Read(fd, buf[:10])
	l.Close(fd)
	if n < 0 {
		return 1
	}
	l.Printf("%s\n", buf[:n])
	return 0
}

// WriteTest writes two pieces of text to wTest1.txt.
func WriteTest(l *ulib.Lib, args []string) int {
	fd := l.Creat("wTest1.txt")
	if fd == -1 {
		return writeError(l)
	}
	if l.Write(fd, []byte("Test text to write")[:15]) != 15 {
		return writeError(l)
	}
	if l.Write(fd, []byte("  next test text\x00")) != 17 {
		return writeError(l)
	}
	return l.Close(fd)
}

func writeError(l *ulib.Lib) int {
	l.Printf("ERROR IN WRITE TEST\n")
	l.Halt()
	return 1
}
