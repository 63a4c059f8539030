package vm

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/lucos-os/lucos/go/models"
)

// PhysMem is the machine's main memory, handed out to address spaces one
// page frame at a time.
type PhysMem struct {
	mu       sync.Mutex
	pageSize int
	mem      []byte
	free     []int
}

func NewPhysMem(pageSize, pages int) *PhysMem {
	free := make([]int, pages)
	for i := range free {
		free[i] = i
	}
	return &PhysMem{
		pageSize: pageSize,
		mem:      make([]byte, pageSize*pages),
		free:     free,
	}
}

func (p *PhysMem) PageSize() int { return p.pageSize }

func (p *PhysMem) Pages() int { return len(p.mem) / p.pageSize }

func (p *PhysMem) FreePages() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Alloc reserves n zeroed frames. It allocates all of them or none.
func (p *PhysMem) Alloc(n int) ([]int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > len(p.free) {
		return nil, errors.Wrapf(models.ErrCapacityExceeded, "need %d frames, %d free", n, len(p.free))
	}
	frames := make([]int, n)
	copy(frames, p.free[:n])
	p.free = p.free[n:]
	for _, f := range frames {
		clear(p.frame(f))
	}
	return frames, nil
}

func (p *PhysMem) Free(frames []int) {
	p.mu.Lock()
	p.free = append(p.free, frames...)
	p.mu.Unlock()
}

func (p *PhysMem) frame(ppn int) []byte {
	off := ppn * p.pageSize
	return p.mem[off : off+p.pageSize]
}
