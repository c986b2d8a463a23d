package kernel

import (
	"errors"
	"math"

	linux "github.com/wnxd/greet-linux"
	"github.com/wnxd/greet-linux/debugger"
	"github.com/wnxd/greet-linux/emulator"
)

type mman struct {
}

func (k *mman) munmap(ctx linux.Context, addr emuptr, len size_t) int32 {
	err := ctx.Debugger().MapFree(addr, uint64(len))
	if err != nil {
		ctx.SetErrno(linux.EINVAL)
		return -1
	}
	return 0
}

// mmap only backs anonymous mappings; there is no guest filesystem to map from.
func (k *mman) mmap(ctx linux.Context, addr emuptr, len size_t, prot emulator.MemProt, flags, fd int32, offset off_t) emuptr {
	const (
		MAP_FAILED    = math.MaxUint64
		MAP_SHARED    = 0x01
		MAP_PRIVATE   = 0x02
		MAP_FIXED     = 0x10
		MAP_ANONYMOUS = 0x20
	)

	if len == 0 || flags&(MAP_SHARED|MAP_PRIVATE) == 0 || offset%debugger.PAGE_SIZE != 0 {
		ctx.SetErrno(linux.EINVAL)
		return MAP_FAILED
	}
	if flags&MAP_ANONYMOUS == 0 {
		ctx.SetErrno(linux.ENODEV)
		return MAP_FAILED
	}
	if len > debugger.MAX_MAP_SIZE {
		ctx.SetErrno(linux.ENOMEM)
		return MAP_FAILED
	}
	prot &= emulator.MEM_PROT_ALL
	dbg := ctx.Debugger()
	if flags&MAP_FIXED != 0 {
		if addr%debugger.PAGE_SIZE != 0 {
			ctx.SetErrno(linux.EINVAL)
			return MAP_FAILED
		}
		if addr >= debugger.USER_SPACE_END || uint64(len) > debugger.USER_SPACE_END-addr {
			ctx.SetErrno(linux.ENOMEM)
			return MAP_FAILED
		}
		dbg.MemUnmap(addr, debugger.Align(uint64(len), debugger.PAGE_SIZE))
		region, err := dbg.MemMap(addr, uint64(len), prot)
		if err != nil {
			ctx.SetErrno(mapErrno(err))
			return MAP_FAILED
		}
		return region.Addr
	}
	region, err := dbg.MapAlloc(uint64(len), prot)
	if err != nil {
		ctx.SetErrno(mapErrno(err))
		return MAP_FAILED
	}
	return region.Addr
}

func mapErrno(err error) linux.Errno {
	if errors.Is(err, debugger.ErrArgumentInvalid) {
		return linux.EINVAL
	}
	return linux.ENOMEM
}

func (k *mman) mprotect(ctx linux.Context, start emuptr, len size_t, prot emulator.MemProt) int32 {
	if start%debugger.PAGE_SIZE != 0 {
		ctx.SetErrno(linux.EINVAL)
		return -1
	}
	if len == 0 {
		return 0
	}
	err := ctx.Debugger().MemProtect(start, debugger.Align(uint64(len), debugger.PAGE_SIZE), prot&emulator.MEM_PROT_ALL)
	if err != nil {
		ctx.SetErrno(linux.ENOMEM)
		return -1
	}
	return 0
}
