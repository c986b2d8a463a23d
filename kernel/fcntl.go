package kernel

import (
	"errors"
	"io"

	linux "github.com/wnxd/greet-linux"
	"github.com/wnxd/greet-linux/debugger"
	"github.com/wnxd/greet-linux/emulator"
)

const (
	// MAX_RW_COUNT caps a single transfer, as Linux does.
	MAX_RW_COUNT = 0x7ffff000
	UIO_MAXIOV   = 1024

	readChunk = 0x10000
)

type iovec struct {
	Base emuptr
	Len  size_t
}

type fcntl struct {
}

func (f *fcntl) close(ctx linux.Context, fd uint32) int32 {
	if err := ctx.Debugger().CloseFile(int(fd)); err != nil {
		ctx.SetErrno(closeErrno(err))
		return -1
	}
	return 0
}

func (f *fcntl) read(ctx linux.Context, fd uint32, buf emuptr, count size_t) ssize_t {
	file, err := ctx.Debugger().GetFile(int(fd))
	if err != nil {
		ctx.SetErrno(linux.EBADF)
		return -1
	}
	r, ok := file.(io.Reader)
	if !ok {
		ctx.SetErrno(linux.EBADF)
		return -1
	}
	if count == 0 {
		return 0
	}
	data := make([]byte, min(count, readChunk))
	n, err := r.Read(data)
	if n > 0 {
		if werr := ctx.ToPointer(buf).MemWrite(data[:n]); werr != nil {
			ctx.SetErrno(linux.EFAULT)
			return -1
		}
		return ssize_t(n)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		ctx.SetErrno(linux.EIO)
		return -1
	}
	return 0
}

func (f *fcntl) write(ctx linux.Context, fd uint32, buf emuptr, count size_t) ssize_t {
	w, ok := f.writer(ctx, fd)
	if !ok {
		return -1
	}
	n, err := copyOut(w, ctx.ToPointer(buf), min(count, MAX_RW_COUNT))
	if err != nil && n == 0 {
		ctx.SetErrno(copyErrno(err))
		return -1
	}
	return ssize_t(n)
}

func (f *fcntl) writev(ctx linux.Context, fd uint32, iov emuptr, iovcnt int32) ssize_t {
	w, ok := f.writer(ctx, fd)
	if !ok {
		return -1
	}
	if iovcnt < 0 || iovcnt > UIO_MAXIOV {
		ctx.SetErrno(linux.EINVAL)
		return -1
	}
	arr := make([]iovec, iovcnt)
	if err := ctx.Debugger().MemExtract(iov, arr); err != nil {
		ctx.SetErrno(linux.EFAULT)
		return -1
	}
	var n ssize_t
	for i := range arr {
		left := MAX_RW_COUNT - size_t(n)
		m, err := copyOut(w, ctx.ToPointer(arr[i].Base), min(arr[i].Len, left))
		n += ssize_t(m)
		if err != nil {
			if n == 0 {
				ctx.SetErrno(copyErrno(err))
				return -1
			}
			break
		}
	}
	return n
}

func (f *fcntl) writer(ctx linux.Context, fd uint32) (io.Writer, bool) {
	file, err := ctx.Debugger().GetFile(int(fd))
	if err != nil {
		ctx.SetErrno(linux.EBADF)
		return nil, false
	}
	w, ok := file.(io.Writer)
	if !ok {
		ctx.SetErrno(linux.EBADF)
		return nil, false
	}
	return w, true
}

func copyOut(w io.Writer, ptr emulator.Pointer, count size_t) (int64, error) {
	if count == 0 {
		return 0, nil
	}
	return io.Copy(w, io.NewSectionReader(ptr, 0, int64(count)))
}

func copyErrno(err error) linux.Errno {
	if emulator.IsMemoryFault(err) {
		return linux.EFAULT
	}
	return linux.EIO
}

func closeErrno(err error) linux.Errno {
	var errno linux.Errno
	if errors.As(err, &errno) {
		return errno
	}
	if errors.Is(err, debugger.ErrFileNotFound) {
		return linux.EBADF
	}
	return linux.EIO
}
