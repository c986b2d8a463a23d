package kernel

import (
	"math"

	linux "github.com/wnxd/greet-linux"
)

const (
	RLIMIT_STACK   = 3
	RLIMIT_NLIMITS = 16

	RLIM_INFINITY = math.MaxUint64
)

type rlimit struct {
	rlim_cur ulong_t
	rlim_max ulong_t
}

type resource struct {
}

func (r *resource) getrlimit(ctx linux.Context, resource int32, rlim emuptr) int32 {
	if resource < 0 || resource >= RLIMIT_NLIMITS {
		ctx.SetErrno(linux.EINVAL)
		return -1
	}
	dbg := ctx.Debugger()
	lim := rlimit{rlim_cur: RLIM_INFINITY, rlim_max: RLIM_INFINITY}
	if resource == RLIMIT_STACK {
		lim.rlim_cur = ulong_t(dbg.StackSize())
		lim.rlim_max = ulong_t(dbg.StackSize())
	}
	if _, err := dbg.MemWrite(rlim, lim); err != nil {
		ctx.SetErrno(linux.EFAULT)
		return -1
	}
	return 0
}
