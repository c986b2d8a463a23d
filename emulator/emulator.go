package emulator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
)

type Arch int

const (
	ARCH_UNKNOWN Arch = iota
	ARCH_RISCV64
)

func (a Arch) String() string {
	switch a {
	case ARCH_RISCV64:
		return "riscv64"
	}
	return "unknown"
}

type MemProt uint32

const (
	MEM_PROT_NONE  MemProt = 0
	MEM_PROT_READ  MemProt = 1
	MEM_PROT_WRITE MemProt = 2
	MEM_PROT_EXEC  MemProt = 4
	MEM_PROT_ALL           = MEM_PROT_READ | MEM_PROT_WRITE | MEM_PROT_EXEC
)

func (p MemProt) String() string {
	b := []byte("---")
	if p&MEM_PROT_READ != 0 {
		b[0] = 'r'
	}
	if p&MEM_PROT_WRITE != 0 {
		b[1] = 'w'
	}
	if p&MEM_PROT_EXEC != 0 {
		b[2] = 'x'
	}
	return string(b)
}

// Interrupt numbers follow the RISC-V exception cause codes.
const (
	RISCV_INTR_BREAKPOINT = 3
	RISCV_INTR_ECALL_U    = 8
)

type HookType int

const (
	HOOK_TYPE_CODE HookType = 1 << iota
	HOOK_TYPE_INTR
)

// InterruptCallback returns true when the interrupt was handled.
type InterruptCallback func(emu *Emulator, intno uint64, data any) bool

type CodeCallback func(emu *Emulator, addr uint64, size uint32, data any)

type Hook struct {
	emu      *Emulator
	typ      HookType
	callback any
	data     any
}

func (h *Hook) Close() error {
	// A fresh slice leaves a running dispatch loop on the old one.
	h.emu.hooks = slices.DeleteFunc(slices.Clone(h.emu.hooks), func(x *Hook) bool { return x == h })
	return nil
}

type Emulator struct {
	arch    Arch
	mem     *Memory
	x       [32]uint64
	pc      uint64
	hooks   []*Hook
	stopped atomic.Bool
	steps   uint64
}

func New(arch Arch) (*Emulator, error) {
	switch arch {
	case ARCH_RISCV64:
	default:
		return nil, errors.ErrUnsupported
	}
	return &Emulator{arch: arch, mem: NewMemory()}, nil
}

func (e *Emulator) Arch() Arch {
	return e.arch
}

func (e *Emulator) Memory() *Memory {
	return e.mem
}

func (e *Emulator) Steps() uint64 {
	return e.steps
}

func (e *Emulator) AddHook(typ HookType, callback any, data any) (*Hook, error) {
	switch typ {
	case HOOK_TYPE_CODE:
		if _, ok := callback.(CodeCallback); !ok {
			if fn, ok := callback.(func(*Emulator, uint64, uint32, any)); ok {
				callback = CodeCallback(fn)
			} else {
				return nil, ErrHookInvalid
			}
		}
	case HOOK_TYPE_INTR:
		if _, ok := callback.(InterruptCallback); !ok {
			if fn, ok := callback.(func(*Emulator, uint64, any) bool); ok {
				callback = InterruptCallback(fn)
			} else {
				return nil, ErrHookInvalid
			}
		}
	default:
		return nil, ErrHookInvalid
	}
	h := &Hook{emu: e, typ: typ, callback: callback, data: data}
	e.hooks = append(e.hooks, h)
	return h, nil
}

func (e *Emulator) RegRead(reg int) (uint64, error) {
	switch {
	case reg == RISCV_REG_PC:
		return e.pc, nil
	case reg >= RISCV_REG_ZERO && reg <= RISCV_REG_T6:
		return e.x[reg], nil
	}
	return 0, fmt.Errorf("register %d: %w", reg, ErrRegisterInvalid)
}

func (e *Emulator) RegReadBatch(regs ...int) ([]uint64, error) {
	vals := make([]uint64, len(regs))
	for i, reg := range regs {
		v, err := e.RegRead(reg)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func (e *Emulator) RegWrite(reg int, val uint64) error {
	switch {
	case reg == RISCV_REG_PC:
		e.pc = val
	case reg == RISCV_REG_ZERO:
	case reg > RISCV_REG_ZERO && reg <= RISCV_REG_T6:
		e.x[reg] = val
	default:
		return fmt.Errorf("register %d: %w", reg, ErrRegisterInvalid)
	}
	return nil
}

func (e *Emulator) MemMap(addr, size uint64, prot MemProt) error {
	return e.mem.Insert(&Segment{Start: addr, Prot: prot, Data: make([]byte, size)})
}

func (e *Emulator) MemUnmap(addr, size uint64) error {
	e.mem.Unmap(addr, size)
	return nil
}

func (e *Emulator) MemProtect(addr, size uint64, prot MemProt) error {
	return e.mem.Protect(addr, size, prot)
}

func (e *Emulator) MemRead(addr, size uint64) ([]byte, error) {
	buf := make([]byte, size)
	if err := e.mem.ReadSlice(addr, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (e *Emulator) MemWrite(addr uint64, data []byte) error {
	return e.mem.WriteSlice(addr, data)
}

func (e *Emulator) ToPointer(addr uint64) Pointer {
	return e.mem.ToPointer(addr)
}

// Start executes from begin until Stop is called, a fault occurs, ctx is done,
// or count instructions have run. A zero count means no limit.
func (e *Emulator) Start(ctx context.Context, begin, count uint64) error {
	e.pc = begin
	e.steps = 0
	e.stopped.Store(false)
	for !e.stopped.Load() {
		if count != 0 && e.steps >= count {
			return ErrStepLimit
		}
		if e.steps&0x3ff == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := e.step(); err != nil {
			return err
		}
		e.steps++
	}
	return nil
}

func (e *Emulator) Stop() {
	e.stopped.Store(true)
}

func (e *Emulator) interrupt(intno uint64) error {
	for _, h := range e.hooks {
		if h.typ != HOOK_TYPE_INTR {
			continue
		}
		if h.callback.(InterruptCallback)(e, intno, h.data) {
			return nil
		}
	}
	return fmt.Errorf("interrupt %d at pc %#x: %w", intno, e.pc, ErrUnhandledInterrupt)
}

func (e *Emulator) traceCode(addr uint64) {
	for _, h := range e.hooks {
		if h.typ == HOOK_TYPE_CODE {
			h.callback.(CodeCallback)(e, addr, 4, h.data)
		}
	}
}

// Pointer is a view of guest memory starting at a fixed address.
type Pointer struct {
	mem  *Memory
	addr uint64
}

func (p Pointer) Address() uint64 {
	return p.addr
}

func (p Pointer) Add(off uint64) Pointer {
	return Pointer{mem: p.mem, addr: p.addr + off}
}

func (p Pointer) ReadAt(b []byte, off int64) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if err := p.mem.ReadSlice(p.addr+uint64(off), b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (p Pointer) WriteAt(b []byte, off int64) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if err := p.mem.WriteSlice(p.addr+uint64(off), b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (p Pointer) MemWrite(b []byte) error {
	_, err := p.WriteAt(b, 0)
	return err
}
