package kernel

import (
	"math"

	linux "github.com/wnxd/greet-linux"
	"github.com/wnxd/greet-linux/emulator"
)

type Syscall struct {
	fcntl
	prctl
	mman
	resource
}

func (sys *Syscall) Get(nr linux.NR) func(linux.Context, ...uint64) uint64 {
	switch nr {
	case linux.NR_ioctl:
		return sys.Emulate_ioctl
	case linux.NR_close:
		return sys.Emulate_close
	case linux.NR_read:
		return sys.Emulate_read
	case linux.NR_write:
		return sys.Emulate_write
	case linux.NR_writev:
		return sys.Emulate_writev
	case linux.NR_exit, linux.NR_exit_group:
		return sys.Emulate_exit
	case linux.NR_clock_gettime:
		return sys.Emulate_clock_gettime
	case linux.NR_uname:
		return sys.Emulate_uname
	case linux.NR_getrlimit:
		return sys.Emulate_getrlimit
	case linux.NR_setrlimit:
		return sys.Ignore
	case linux.NR_gettimeofday:
		return sys.Emulate_gettimeofday
	case linux.NR_getpid:
		return sys.Emulate_getpid
	case linux.NR_getuid, linux.NR_geteuid, linux.NR_getgid, linux.NR_getegid:
		return sys.Ignore
	case linux.NR_gettid:
		return sys.Emulate_gettid
	case linux.NR_sysinfo:
		return sys.Emulate_sysinfo
	case linux.NR_brk:
		return sys.Reject
	case linux.NR_munmap:
		return sys.Emulate_munmap
	case linux.NR_mmap:
		return sys.Emulate_mmap
	case linux.NR_mprotect:
		return sys.Emulate_mprotect
	case linux.NR_getrandom:
		return sys.Emulate_getrandom
	}
	return nil
}

func (sys *Syscall) Reject(ctx linux.Context, args ...uint64) uint64 {
	ctx.SetErrno(linux.ENOSYS)
	return math.MaxUint64
}

func (sys *Syscall) Ignore(ctx linux.Context, args ...uint64) uint64 {
	return 0
}

func (sys *Syscall) Emulate_ioctl(ctx linux.Context, args ...uint64) uint64 {
	r := sys.ioctl(ctx, uint32(args[0]), uint32(args[1]), args[2])
	return uint64(r)
}

func (sys *Syscall) Emulate_close(ctx linux.Context, args ...uint64) uint64 {
	r := sys.fcntl.close(ctx, uint32(args[0]))
	return uint64(r)
}

func (sys *Syscall) Emulate_read(ctx linux.Context, args ...uint64) uint64 {
	r := sys.fcntl.read(ctx, uint32(args[0]), args[1], size_t(args[2]))
	return uint64(r)
}

func (sys *Syscall) Emulate_write(ctx linux.Context, args ...uint64) uint64 {
	r := sys.fcntl.write(ctx, uint32(args[0]), args[1], size_t(args[2]))
	return uint64(r)
}

func (sys *Syscall) Emulate_writev(ctx linux.Context, args ...uint64) uint64 {
	r := sys.fcntl.writev(ctx, uint32(args[0]), args[1], int32(args[2]))
	return uint64(r)
}

// Emulate_exit ends the single guest thread, so exit and exit_group agree.
func (sys *Syscall) Emulate_exit(ctx linux.Context, args ...uint64) uint64 {
	ctx.Debugger().Exit(int(int32(args[0])))
	return 0
}

func (sys *Syscall) Emulate_clock_gettime(ctx linux.Context, args ...uint64) uint64 {
	r := sys.clock_gettime(ctx, clockid_t(args[0]), args[1])
	return uint64(r)
}

func (sys *Syscall) Emulate_uname(ctx linux.Context, args ...uint64) uint64 {
	r := sys.uname(ctx, args[0])
	return uint64(r)
}

func (sys *Syscall) Emulate_getrlimit(ctx linux.Context, args ...uint64) uint64 {
	r := sys.resource.getrlimit(ctx, int32(args[0]), args[1])
	return uint64(r)
}

func (sys *Syscall) Emulate_gettimeofday(ctx linux.Context, args ...uint64) uint64 {
	r := sys.gettimeofday(ctx, args[0], args[1])
	return uint64(r)
}

func (sys *Syscall) Emulate_getpid(ctx linux.Context, args ...uint64) uint64 {
	r := sys.prctl.getpid(ctx)
	return uint64(r)
}

func (sys *Syscall) Emulate_gettid(ctx linux.Context, args ...uint64) uint64 {
	r := sys.prctl.gettid(ctx)
	return uint64(r)
}

func (sys *Syscall) Emulate_sysinfo(ctx linux.Context, args ...uint64) uint64 {
	r := sys.sysinfo(ctx, args[0])
	return uint64(r)
}

func (sys *Syscall) Emulate_munmap(ctx linux.Context, args ...uint64) uint64 {
	r := sys.mman.munmap(ctx, args[0], size_t(args[1]))
	return uint64(r)
}

func (sys *Syscall) Emulate_mmap(ctx linux.Context, args ...uint64) uint64 {
	r := sys.mman.mmap(ctx, args[0], size_t(args[1]), emulator.MemProt(args[2]), int32(args[3]), int32(args[4]), off_t(args[5]))
	return r
}

func (sys *Syscall) Emulate_mprotect(ctx linux.Context, args ...uint64) uint64 {
	r := sys.mman.mprotect(ctx, args[0], size_t(args[1]), emulator.MemProt(args[2]))
	return uint64(r)
}

func (sys *Syscall) Emulate_getrandom(ctx linux.Context, args ...uint64) uint64 {
	r := sys.getrandom(ctx, args[0], size_t(args[1]), uint32(args[2]))
	return uint64(r)
}
