package debugger

import (
	"errors"
	"log/slog"

	"github.com/wnxd/greet-linux/emulator"
)

var (
	ErrArgumentInvalid = errors.New("argument invalid")
	ErrFileNotFound    = errors.New("file not found")
	ErrNotLoaded       = errors.New("no program loaded")
	ErrNotExited       = errors.New("guest stopped without exiting")
	ErrNoMemory        = errors.New("cannot allocate memory")
)

type HookResult int

const (
	HookResult_Next HookResult = iota
	HookResult_Done
)

type InterruptCallback func(ctx Context, intno uint64, data any) HookResult

type CodeCallback func(ctx Context, addr uint64, size uint32, data any)

type HookHandler interface {
	Close() error
}

type Region struct {
	Addr uint64
	Size uint64
	Prot emulator.MemProt
}

// File is whatever the guest fd refers to; io.Reader, io.Writer and io.Closer
// are checked at use.
type File = any

type Context interface {
	RegRead(reg int) (uint64, error)
	RegReadBatch(regs ...int) ([]uint64, error)
	RegWrite(reg int, val uint64) error
	ToPointer(addr uint64) emulator.Pointer
	TaskID() int
	Debugger() Debugger
}

type Debugger interface {
	Arch() emulator.Arch
	Emulator() *emulator.Emulator
	Logger() *slog.Logger
	AddHook(typ emulator.HookType, callback any, data any) (HookHandler, error)

	MemMap(addr, size uint64, prot emulator.MemProt) (Region, error)
	MemUnmap(addr, size uint64) error
	MemProtect(addr, size uint64, prot emulator.MemProt) error
	MapAlloc(size uint64, prot emulator.MemProt) (Region, error)
	MapFree(addr, size uint64) error
	MemWrite(addr uint64, v any) (int, error)
	MemExtract(addr uint64, v any) error
	StackSize() uint64

	GetFile(fd int) (File, error)
	CloseFile(fd int) error

	Exit(code int)
	ExitCode() (int, bool)
}

const (
	PAGE_SIZE = 0x1000

	// USER_SPACE_END bounds guest mappings (Sv39 user half).
	USER_SPACE_END = 1 << 38
	// MAX_MAP_SIZE bounds a single host-backed mapping.
	MAX_MAP_SIZE = 1 << 30
)

func Align(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
