package linux

import "strconv"

type Errno uint64

const (
	EPERM  Errno = 1
	ENOENT Errno = 2
	EINTR  Errno = 4
	EIO    Errno = 5
	EBADF  Errno = 9
	EAGAIN Errno = 11
	ENOMEM Errno = 12
	EFAULT Errno = 14
	EINVAL Errno = 22
	ENODEV Errno = 19
	ENOTTY Errno = 25
	ENOSYS Errno = 38
)

var errnoNames = map[Errno]string{
	EPERM:  "operation not permitted",
	ENOENT: "no such file or directory",
	EINTR:  "interrupted system call",
	EIO:    "input/output error",
	EBADF:  "bad file descriptor",
	EAGAIN: "resource temporarily unavailable",
	ENOMEM: "cannot allocate memory",
	EFAULT: "bad address",
	EINVAL: "invalid argument",
	ENODEV: "no such device",
	ENOTTY: "inappropriate ioctl for device",
	ENOSYS: "function not implemented",
}

func (e Errno) Error() string {
	if s, ok := errnoNames[e]; ok {
		return s
	}
	return "errno " + strconv.FormatUint(uint64(e), 10)
}

// Raw is the value a failing syscall leaves in the return register.
func (e Errno) Raw() uint64 {
	return -uint64(e)
}
