package kernel

// LP64 layout, independent of the host word size.
type emuptr = uint64

type long_t int64
type ulong_t uint64
type size_t ulong_t
type ssize_t long_t
type time_t long_t
type suseconds_t long_t
type clockid_t int32
type off_t long_t
type pid_t int32

const emunullptr = emuptr(0)
