package fd

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/lunixbochs/vtclean"
)

// Console is the terminal every process finds on Stdin and Stdout. It ignores
// offsets and is never really closed.
type Console struct {
	// rmu and mu are separate so a blocked read never holds up output
	rmu        sync.Mutex
	mu         sync.Mutex
	in         io.Reader
	out        io.Writer
	transcript bytes.Buffer
}

func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: in, out: out}
}

func (c *Console) Name() string { return "console" }

func (c *Console) ReadAt(p []byte, off int64) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()
	if c.in == nil {
		return 0, io.EOF
	}
	return c.in.Read(p)
}

func (c *Console) WriteAt(p []byte, off int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript.Write(p)
	if c.out == nil {
		return len(p), nil
	}
	return c.out.Write(p)
}

func (c *Console) Size() (int64, error)      { return 0, nil }
func (c *Console) Truncate(size int64) error { return nil }
func (c *Console) Close() error              { return nil }

// Transcript returns everything written so far, minus terminal escapes.
func (c *Console) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines := strings.Split(c.transcript.String(), "\n")
	for i, line := range lines {
		lines[i] = vtclean.Clean(line, false)
	}
	return strings.Join(lines, "\n")
}
