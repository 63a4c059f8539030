package vm

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/lucos-os/lucos/go/models"
)

type MemError struct {
	Addr uint64
	Size int
	Enum int
}

func (m *MemError) Error() string {
	reason := "memory error"
	switch m.Enum {
	case MEM_WRITE_UNMAPPED:
		reason = "unmapped write"
	case MEM_READ_UNMAPPED:
		reason = "unmapped read"
	case MEM_WRITE_PROT:
		reason = "protected write"
	case MEM_RANGE:
		reason = "address overflow"
	}
	return fmt.Sprintf("%s at %#x(%d)", reason, m.Addr, m.Size)
}

func (m *MemError) Unwrap() error { return models.ErrInvalidAddress }

type TranslationEntry struct {
	VPN, PPN int
	Valid    bool
	ReadOnly bool
	Used     bool
	Dirty    bool
}

// Region is a translated piece of a virtual range, contained in one frame.
type Region struct {
	VPN    int
	PPN    int
	Offset int
	Len    int
}

// AddressSpace maps a process's virtual pages onto physical frames. Virtual
// page n covers [n*pageSize, (n+1)*pageSize).
type AddressSpace struct {
	mu       sync.Mutex
	phys     *PhysMem
	pageSize uint64
	table    []TranslationEntry
}

// NewAddressSpace allocates pages zeroed frames and maps them at vpn 0..pages-1.
func NewAddressSpace(phys *PhysMem, pages int) (*AddressSpace, error) {
	frames, err := phys.Alloc(pages)
	if err != nil {
		return nil, err
	}
	table := make([]TranslationEntry, pages)
	for i, f := range frames {
		table[i] = TranslationEntry{VPN: i, PPN: f, Valid: true}
	}
	return &AddressSpace{phys: phys, pageSize: uint64(phys.PageSize()), table: table}, nil
}

func (a *AddressSpace) PageSize() uint64 { return a.pageSize }

func (a *AddressSpace) Pages() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.table)
}

func (a *AddressSpace) Size() uint64 {
	return uint64(a.Pages()) * a.pageSize
}

// Protect marks n pages starting at vpn read-only or writable.
func (a *AddressSpace) Protect(vpn, n int, readOnly bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := vpn; i < vpn+n && i < len(a.table); i++ {
		a.table[i].ReadOnly = readOnly
	}
}

func (a *AddressSpace) Entry(vpn int) (TranslationEntry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if vpn < 0 || vpn >= len(a.table) {
		return TranslationEntry{}, false
	}
	return a.table[vpn], true
}

// Translate resolves [addr, addr+size) into physical regions. The whole range
// must be mapped, and writable if write is set; nothing is returned otherwise.
func (a *AddressSpace) Translate(addr, size uint64, write bool) ([]Region, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.translate(addr, size, write, true)
}

func (a *AddressSpace) translate(addr, size uint64, write, prot bool) ([]Region, error) {
	enum := MEM_READ_UNMAPPED
	if write {
		enum = MEM_WRITE_UNMAPPED
	}
	if addr+size < addr {
		return nil, &MemError{Addr: addr, Size: int(size), Enum: MEM_RANGE}
	}
	var regions []Region
	for cur, end := addr, addr+size; cur < end; {
		vpn := cur / a.pageSize
		if vpn >= uint64(len(a.table)) || !a.table[vpn].Valid {
			return nil, &MemError{Addr: addr, Size: int(size), Enum: enum}
		}
		e := &a.table[vpn]
		if write && prot && e.ReadOnly {
			return nil, &MemError{Addr: addr, Size: int(size), Enum: MEM_WRITE_PROT}
		}
		off := cur % a.pageSize
		n := a.pageSize - off
		if end-cur < n {
			n = end - cur
		}
		regions = append(regions, Region{VPN: int(vpn), PPN: e.PPN, Offset: int(off), Len: int(n)})
		cur += n
	}
	// mark only after the whole range checked out
	for _, r := range regions {
		a.table[r.VPN].Used = true
		if write {
			a.table[r.VPN].Dirty = true
		}
	}
	return regions, nil
}

func (a *AddressSpace) Read(addr uint64, p []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	regions, err := a.translate(addr, uint64(len(p)), false, true)
	if err != nil {
		return err
	}
	for _, r := range regions {
		n := copy(p, a.phys.frame(r.PPN)[r.Offset:r.Offset+r.Len])
		p = p[n:]
	}
	return nil
}

func (a *AddressSpace) Write(addr uint64, p []byte) error {
	return a.write(addr, p, true)
}

// Load writes p ignoring read-only protection. The loader uses it to fill
// text sections before they are handed to the program.
func (a *AddressSpace) Load(addr uint64, p []byte) error {
	return a.write(addr, p, false)
}

func (a *AddressSpace) write(addr uint64, p []byte, prot bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	regions, err := a.translate(addr, uint64(len(p)), true, prot)
	if err != nil {
		return err
	}
	for _, r := range regions {
		n := copy(a.phys.frame(r.PPN)[r.Offset:r.Offset+r.Len], p)
		p = p[n:]
	}
	return nil
}

// ReadString reads a NUL-terminated string of at most max bytes. A string
// with no terminator within max+1 bytes is an error.
func (a *AddressSpace) ReadString(addr uint64, max int) (string, error) {
	var out []byte
	for len(out) <= max {
		n := a.pageSize - addr%a.pageSize
		if rest := uint64(max + 1 - len(out)); n > rest {
			n = rest
		}
		chunk := make([]byte, n)
		if err := a.Read(addr, chunk); err != nil {
			return "", err
		}
		if i := bytes.IndexByte(chunk, 0); i >= 0 {
			return string(append(out, chunk[:i]...)), nil
		}
		out = append(out, chunk...)
		addr += n
	}
	return "", &MemError{Addr: addr, Size: max, Enum: MEM_RANGE}
}

// Release returns every frame to physical memory. Later accesses fail.
func (a *AddressSpace) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	frames := make([]int, 0, len(a.table))
	for _, e := range a.table {
		if e.Valid {
			frames = append(frames, e.PPN)
		}
	}
	a.table = nil
	a.phys.Free(frames)
}
