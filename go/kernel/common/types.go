package common

import (
	"github.com/pkg/errors"

	"github.com/lucos-os/lucos/go/models"
)

type (
	// Buf is a user address the kernel reads from.
	Buf struct {
		Addr uint64
		K    *KernelBase
	}
	// Obuf is a user address the kernel writes to.
	Obuf struct{ Buf }
	// Len is a signed byte count; user programs may pass garbage.
	Len int32
	Fd  int32
	Ptr uint64
)

func NewBuf(k Kernel, addr uint64) Buf {
	return Buf{K: k.Base(), Addr: addr}
}

type memCursor struct {
	mem  Memory
	addr uint64
}

func (c *memCursor) Read(p []byte) (int, error) {
	if err := c.mem.Read(c.addr, p); err != nil {
		return 0, err
	}
	c.addr += uint64(len(p))
	return len(p), nil
}

func (c *memCursor) Write(p []byte) (int, error) {
	if err := c.mem.Write(c.addr, p); err != nil {
		return 0, err
	}
	c.addr += uint64(len(p))
	return len(p), nil
}

func (b Buf) Struc() *models.StrucStream {
	return &models.StrucStream{Stream: &memCursor{b.K.Mem, b.Addr}, Order: b.K.Order}
}

func (b Buf) Pack(i interface{}) error {
	return errors.Wrap(b.Struc().Pack(i), "struc.Pack() failed")
}

func (b Buf) Unpack(i interface{}) error {
	return errors.Wrap(b.Struc().Unpack(i), "struc.Unpack() failed")
}

func (b Buf) Sizeof(i interface{}) (int, error) {
	n, err := b.Struc().Sizeof(i)
	return n, errors.Wrap(err, "struc.Sizeof() failed")
}

func (b Buf) Read(p []byte) error {
	return b.K.Mem.Read(b.Addr, p)
}

func (b Buf) Write(p []byte) error {
	return b.K.Mem.Write(b.Addr, p)
}
