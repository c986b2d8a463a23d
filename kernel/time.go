package kernel

import (
	"time"

	linux "github.com/wnxd/greet-linux"
)

const (
	CLOCK_REALTIME           = 0
	CLOCK_MONOTONIC          = 1
	CLOCK_PROCESS_CPUTIME_ID = 2
	CLOCK_THREAD_CPUTIME_ID  = 3
	CLOCK_MONOTONIC_RAW      = 4
	CLOCK_REALTIME_COARSE    = 5
	CLOCK_MONOTONIC_COARSE   = 6
	CLOCK_BOOTTIME           = 7
)

type timespec struct {
	tv_sec  time_t
	tv_nsec long_t
}

type timeval struct {
	tv_sec  time_t
	tv_usec suseconds_t
}

type timezone struct {
	tz_minuteswest int32
	tz_dsttime     int32
}

// boot anchors the monotonic clocks at kernel package load.
var boot = time.Now()

func (sys *Syscall) clock_gettime(ctx linux.Context, clock clockid_t, ts emuptr) int32 {
	var d time.Duration
	switch clock {
	case CLOCK_REALTIME, CLOCK_REALTIME_COARSE:
		d = time.Duration(time.Now().UnixNano())
	case CLOCK_MONOTONIC, CLOCK_MONOTONIC_RAW, CLOCK_MONOTONIC_COARSE, CLOCK_BOOTTIME,
		CLOCK_PROCESS_CPUTIME_ID, CLOCK_THREAD_CPUTIME_ID:
		d = time.Since(boot)
	default:
		ctx.SetErrno(linux.EINVAL)
		return -1
	}
	_, err := ctx.Debugger().MemWrite(ts, timespec{
		tv_sec:  time_t(d / time.Second),
		tv_nsec: long_t(d % time.Second),
	})
	if err != nil {
		ctx.SetErrno(linux.EFAULT)
		return -1
	}
	return 0
}

func (sys *Syscall) gettimeofday(ctx linux.Context, tv, tz emuptr) int32 {
	dbg := ctx.Debugger()
	now := time.Now()
	if tv != emunullptr {
		_, err := dbg.MemWrite(tv, timeval{
			tv_sec:  time_t(now.Unix()),
			tv_usec: suseconds_t(now.Nanosecond() / 1e3),
		})
		if err != nil {
			ctx.SetErrno(linux.EFAULT)
			return -1
		}
	}
	if tz != emunullptr {
		_, offset := now.Zone()
		_, err := dbg.MemWrite(tz, timezone{
			tz_minuteswest: int32(-offset / 60),
			tz_dsttime:     0,
		})
		if err != nil {
			ctx.SetErrno(linux.EFAULT)
			return -1
		}
	}
	return 0
}
