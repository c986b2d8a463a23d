package kernel

import (
	"crypto/rand"

	linux "github.com/wnxd/greet-linux"
)

const (
	GRND_NONBLOCK = 0x0001
	GRND_RANDOM   = 0x0002
	GRND_INSECURE = 0x0004

	// getrandom never returns more than this per call.
	maxRandom = 0x2000000
)

func (*Syscall) getrandom(ctx linux.Context, buf emuptr, count size_t, flags uint32) ssize_t {
	if flags&^(GRND_NONBLOCK|GRND_RANDOM|GRND_INSECURE) != 0 || flags&(GRND_RANDOM|GRND_INSECURE) == GRND_RANDOM|GRND_INSECURE {
		ctx.SetErrno(linux.EINVAL)
		return -1
	}
	if count == 0 {
		return 0
	}
	limit := size_t(maxRandom)
	if flags&GRND_RANDOM != 0 {
		limit = 512
	}
	data := make([]byte, min(count, limit))
	if _, err := rand.Read(data); err != nil {
		ctx.SetErrno(linux.EAGAIN)
		return -1
	}
	if err := ctx.ToPointer(buf).MemWrite(data); err != nil {
		ctx.SetErrno(linux.EFAULT)
		return -1
	}
	return ssize_t(len(data))
}
