package kernel

import (
	"context"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	linux "github.com/wnxd/greet-linux"
)

type sysinfo struct {
	uptime    long_t
	loads     [3]ulong_t
	totalram  ulong_t
	freeram   ulong_t
	sharedram ulong_t
	bufferram ulong_t
	totalswap ulong_t
	freeswap  ulong_t
	procs     uint16
	pad       uint16
	_         [4]byte
	totalhigh ulong_t
	freehigh  ulong_t
	mem_unit  uint32
	_         [4]byte
}

const utsLen = 65

type utsname struct {
	sysname    [utsLen]byte
	nodename   [utsLen]byte
	release    [utsLen]byte
	version    [utsLen]byte
	machine    [utsLen]byte
	domainname [utsLen]byte
}

var (
	_ = sysinfo{}.loads
	_ = sysinfo{}.pad
	_ = sysinfo{}.totalhigh
	_ = sysinfo{}.freehigh
	_ = utsname{}.domainname
)

func (*Syscall) sysinfo(ctx linux.Context, info emuptr) int32 {
	uptime, err := host.Uptime()
	if err != nil {
		ctx.SetErrno(linux.EINVAL)
		return -1
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		ctx.SetErrno(linux.EINVAL)
		return -1
	}
	sm, err := mem.SwapMemory()
	if err != nil {
		ctx.SetErrno(linux.EINVAL)
		return -1
	}
	pids, err := process.Pids()
	if err != nil {
		ctx.SetErrno(linux.EINVAL)
		return -1
	}
	_, err = ctx.Debugger().MemWrite(info, sysinfo{
		uptime:    long_t(uptime),
		totalram:  ulong_t(vm.Total),
		freeram:   ulong_t(vm.Free),
		sharedram: ulong_t(vm.Shared),
		bufferram: ulong_t(vm.Buffers),
		totalswap: ulong_t(sm.Total),
		freeswap:  ulong_t(sm.Free),
		procs:     uint16(len(pids)),
		mem_unit:  1,
	})
	if err != nil {
		ctx.SetErrno(linux.EFAULT)
		return -1
	}
	return 0
}

// uname reports the host kernel under the guest machine name.
func (*Syscall) uname(ctx linux.Context, buf emuptr) int32 {
	var uts utsname
	putUTS(&uts.sysname, "Linux")
	putUTS(&uts.nodename, "localhost")
	putUTS(&uts.release, "6.0.0")
	putUTS(&uts.version, "#1 SMP")
	putUTS(&uts.machine, ctx.Debugger().Arch().String())
	putUTS(&uts.domainname, "(none)")
	if info, err := host.InfoWithContext(context.Background()); err == nil {
		if info.Hostname != "" {
			putUTS(&uts.nodename, info.Hostname)
		}
		if info.KernelVersion != "" {
			putUTS(&uts.release, info.KernelVersion)
		}
	}
	if _, err := ctx.Debugger().MemWrite(buf, uts); err != nil {
		ctx.SetErrno(linux.EFAULT)
		return -1
	}
	return 0
}

func putUTS(dst *[utsLen]byte, s string) {
	*dst = [utsLen]byte{}
	copy(dst[:utsLen-1], s)
}
