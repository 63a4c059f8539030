package common

import (
	"github.com/lunixbochs/argjoy"
	"github.com/pkg/errors"

	"github.com/lucos-os/lucos/go/models"
)

func (k *KernelBase) commonArgCodec(arg interface{}, vals []interface{}) error {
	if reg, ok := vals[0].(uint64); ok {
		switch v := arg.(type) {
		case *Buf:
			*v = NewBuf(k, reg)
		case *Obuf:
			*v = Obuf{NewBuf(k, reg)}
		case *Len:
			*v = Len(int32(reg))
		case *Fd:
			*v = Fd(int32(reg))
		case *Ptr:
			*v = Ptr(reg)
		case *int32:
			*v = int32(reg)
		case *int:
			*v = int(int32(reg))
		case *string:
			s, err := k.Mem.ReadString(reg, k.MaxStr)
			if err != nil {
				return errors.Wrap(models.ErrInvalidAddress, err.Error())
			}
			*v = s
		default:
			return argjoy.NoMatch
		}
		return nil
	}
	return argjoy.NoMatch
}
