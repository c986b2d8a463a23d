package emulator

import "errors"

var ErrRegisterInvalid = errors.New("register invalid")

const (
	RISCV_REG_ZERO = iota
	RISCV_REG_RA
	RISCV_REG_SP
	RISCV_REG_GP
	RISCV_REG_TP
	RISCV_REG_T0
	RISCV_REG_T1
	RISCV_REG_T2
	RISCV_REG_S0
	RISCV_REG_S1
	RISCV_REG_A0
	RISCV_REG_A1
	RISCV_REG_A2
	RISCV_REG_A3
	RISCV_REG_A4
	RISCV_REG_A5
	RISCV_REG_A6
	RISCV_REG_A7
	RISCV_REG_S2
	RISCV_REG_S3
	RISCV_REG_S4
	RISCV_REG_S5
	RISCV_REG_S6
	RISCV_REG_S7
	RISCV_REG_S8
	RISCV_REG_S9
	RISCV_REG_S10
	RISCV_REG_S11
	RISCV_REG_T3
	RISCV_REG_T4
	RISCV_REG_T5
	RISCV_REG_T6
	RISCV_REG_PC
)

const (
	RISCV_INST_ECALL  uint32 = 0x00000073
	RISCV_INST_EBREAK uint32 = 0x00100073
)
