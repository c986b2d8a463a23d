package kernel

import (
	"errors"
	"log/slog"

	linux "github.com/wnxd/greet-linux"
	"github.com/wnxd/greet-linux/debugger"
	"github.com/wnxd/greet-linux/emulator"
)

type Kernel struct {
	sys      Syscall
	err      linux.Errno
	dbg      linux.Debugger
	log      *slog.Logger
	intrHook debugger.HookHandler
}

// attached exposes the kernel state through the debugger it serves.
type attached struct {
	debugger.Debugger
	*Kernel
}

func NewKernel(dbg debugger.Debugger) (*Kernel, error) {
	k := &Kernel{log: dbg.Logger()}
	var handleIntr debugger.InterruptCallback
	switch dbg.Arch() {
	case emulator.ARCH_RISCV64:
		handleIntr = k.riscv64Intr
	default:
		return nil, errors.ErrUnsupported
	}
	hook, err := dbg.AddHook(emulator.HOOK_TYPE_INTR, handleIntr, nil)
	if err != nil {
		return nil, err
	}
	k.dbg = &attached{dbg, k}
	k.intrHook = hook
	return k, nil
}

func (k *Kernel) Close() error {
	return k.intrHook.Close()
}

func (k *Kernel) NR(no uint64) linux.NR {
	return linux.NR(no)
}

func (k *Kernel) Syscall() linux.Syscall {
	return &k.sys
}

func (k *Kernel) Errno() linux.Errno {
	return k.err
}

func (k *Kernel) SetErrno(err linux.Errno) {
	k.err = err
}

func (k *Kernel) riscv64Intr(ctx debugger.Context, intno uint64, data any) debugger.HookResult {
	if intno != emulator.RISCV_INTR_ECALL_U {
		return debugger.HookResult_Next
	}
	pc, err := ctx.RegRead(emulator.RISCV_REG_PC)
	if err != nil {
		return debugger.HookResult_Next
	}
	code, err := ctx.Debugger().Emulator().Memory().Fetch(pc - 4)
	if err != nil || code != emulator.RISCV_INST_ECALL {
		return debugger.HookResult_Next
	}
	no, err := ctx.RegRead(emulator.RISCV_REG_A7)
	if err != nil {
		return debugger.HookResult_Next
	}
	args, err := ctx.RegReadBatch(emulator.RISCV_REG_A0, emulator.RISCV_REG_A1, emulator.RISCV_REG_A2, emulator.RISCV_REG_A3, emulator.RISCV_REG_A4, emulator.RISCV_REG_A5)
	if err != nil {
		return debugger.HookResult_Next
	}
	nr := k.NR(no)
	call := k.sys.Get(nr)
	if call == nil {
		k.log.Debug("unsupported syscall", "nr", no, "pc", pc-4)
		ctx.RegWrite(emulator.RISCV_REG_A0, linux.ENOSYS.Raw())
		return debugger.HookResult_Done
	}
	k.SetErrno(0)
	r := call(linux.NewContext(ctx, k.dbg), args...)
	if errno := k.Errno(); errno != 0 && int64(r) == -1 {
		k.log.Debug("syscall", "name", nr.String(), "errno", errno.Error())
		r = errno.Raw()
	} else {
		k.log.Debug("syscall", "name", nr.String(), "ret", int64(r))
	}
	ctx.RegWrite(emulator.RISCV_REG_A0, r)
	return debugger.HookResult_Done
}
