package linux

import "strconv"

type NR uint64

// Generic syscall table, as used by riscv64.
const (
	NR_ioctl         NR = 29
	NR_close         NR = 57
	NR_read          NR = 63
	NR_write         NR = 64
	NR_writev        NR = 66
	NR_exit          NR = 93
	NR_exit_group    NR = 94
	NR_clock_gettime NR = 113
	NR_uname         NR = 160
	NR_getrlimit     NR = 163
	NR_setrlimit     NR = 164
	NR_gettimeofday  NR = 169
	NR_getpid        NR = 172
	NR_getuid        NR = 174
	NR_geteuid       NR = 175
	NR_getgid        NR = 176
	NR_getegid       NR = 177
	NR_gettid        NR = 178
	NR_sysinfo       NR = 179
	NR_brk           NR = 214
	NR_munmap        NR = 215
	NR_mmap          NR = 222
	NR_mprotect      NR = 226
	NR_getrandom     NR = 278
)

var nrNames = map[NR]string{
	NR_ioctl:         "ioctl",
	NR_close:         "close",
	NR_read:          "read",
	NR_write:         "write",
	NR_writev:        "writev",
	NR_exit:          "exit",
	NR_exit_group:    "exit_group",
	NR_clock_gettime: "clock_gettime",
	NR_uname:         "uname",
	NR_getrlimit:     "getrlimit",
	NR_setrlimit:     "setrlimit",
	NR_gettimeofday:  "gettimeofday",
	NR_getpid:        "getpid",
	NR_getuid:        "getuid",
	NR_geteuid:       "geteuid",
	NR_getgid:        "getgid",
	NR_getegid:       "getegid",
	NR_gettid:        "gettid",
	NR_sysinfo:       "sysinfo",
	NR_brk:           "brk",
	NR_munmap:        "munmap",
	NR_mmap:          "mmap",
	NR_mprotect:      "mprotect",
	NR_getrandom:     "getrandom",
}

func (nr NR) String() string {
	if name, ok := nrNames[nr]; ok {
		return name
	}
	return "syscall_" + strconv.FormatUint(uint64(nr), 10)
}
