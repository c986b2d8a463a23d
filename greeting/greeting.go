// Package greeting prints "Hi!\n" with a raw write and exits with status 0,
// both natively and as a RISC-V guest program.
package greeting

import (
	"bytes"
	"errors"

	linux "github.com/wnxd/greet-linux"
	"github.com/wnxd/greet-linux/asm/riscv"
	"github.com/wnxd/greet-linux/loader"
)

const Message = "Hi!\n"

// Base is where Executable maps its image.
const Base = 0x10000

// Program assembles the guest greeting. It only addresses memory through sp.
func Program() ([]byte, error) {
	var a riscv.Assembler
	errs := []error{a.Addi("sp", "sp", -16)}
	for i := 0; i < len(Message); i++ {
		errs = append(errs,
			a.Li("t0", int32(Message[i])),
			a.Sb("t0", "sp", int32(i)),
		)
	}
	errs = append(errs,
		a.Li("a0", 1),
		a.Mv("a1", "sp"),
		a.Li("a2", int32(len(Message))),
		a.Li("a7", int32(linux.NR_write)),
	)
	a.Ecall()
	// result ignored
	errs = append(errs,
		a.Addi("sp", "sp", 16),
		a.Li("a0", 0),
		a.Li("a7", int32(linux.NR_exit)),
	)
	a.Ecall()
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return a.Bytes(), nil
}

// Executable wraps Program in a static ELF image mapped at Base.
func Executable() ([]byte, error) {
	text, err := Program()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := loader.Write(&buf, Base, text); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
