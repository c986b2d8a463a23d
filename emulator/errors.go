package emulator

import (
	"errors"
	"fmt"
)

var (
	ErrHookInvalid        = errors.New("hook invalid")
	ErrStepLimit          = errors.New("step limit reached")
	ErrUnhandledInterrupt = errors.New("unhandled interrupt")
	ErrAddressOverflow    = errors.New("address range overflows")
)

type UnmappedError struct {
	Addr uint64
}

func (e *UnmappedError) Error() string {
	return fmt.Sprintf("unmapped address %#x", e.Addr)
}

type ProtectionError struct {
	Addr      uint64
	Available MemProt
	Required  MemProt
}

func (e *ProtectionError) Error() string {
	return fmt.Sprintf("protection violation at %#x: have %s, need %s", e.Addr, e.Available, e.Required)
}

type OutOfBoundsError struct {
	Addr uint64
	Len  int
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("access of %d bytes at %#x crosses segment end", e.Len, e.Addr)
}

type OverlapError struct {
	New         uint64
	Overlapping []uint64
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("segment at %#x overlaps %#x", e.New, e.Overlapping)
}

// IsMemoryFault reports whether err comes from a guest memory access.
func IsMemoryFault(err error) bool {
	var (
		unmapped *UnmappedError
		prot     *ProtectionError
		oob      *OutOfBoundsError
	)
	return errors.As(err, &unmapped) || errors.As(err, &prot) || errors.As(err, &oob)
}

type FaultCause int

const (
	FAULT_ILLEGAL_INSTRUCTION FaultCause = iota + 1
	FAULT_MISALIGNED_FETCH
	FAULT_FETCH
	FAULT_LOAD
	FAULT_STORE
)

func (c FaultCause) String() string {
	switch c {
	case FAULT_ILLEGAL_INSTRUCTION:
		return "illegal instruction"
	case FAULT_MISALIGNED_FETCH:
		return "misaligned fetch"
	case FAULT_FETCH:
		return "fetch fault"
	case FAULT_LOAD:
		return "load fault"
	case FAULT_STORE:
		return "store fault"
	}
	return fmt.Sprintf("fault(%d)", int(c))
}

// Fault stops the hart. Err holds the memory error for access faults.
type Fault struct {
	PC    uint64
	Inst  uint32
	Cause FaultCause
	Err   error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s at pc %#x: %v", f.Cause, f.PC, f.Err)
	}
	return fmt.Sprintf("%s at pc %#x (inst %#08x)", f.Cause, f.PC, f.Inst)
}

func (f *Fault) Unwrap() error {
	return f.Err
}
