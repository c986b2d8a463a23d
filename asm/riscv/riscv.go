package riscv

import (
	"encoding/binary"
	"fmt"
)

// RISC-V uses fixed 32-bit little-endian instructions

var Registers = map[string]uint32{
	"zero": 0, "x0": 0,
	"ra": 1, "x1": 1,
	"sp": 2, "x2": 2,
	"gp": 3, "x3": 3,
	"tp": 4, "x4": 4,
	"t0": 5, "x5": 5,
	"t1": 6, "x6": 6,
	"t2": 7, "x7": 7,
	"s0": 8, "fp": 8, "x8": 8,
	"s1": 9, "x9": 9,
	"a0": 10, "x10": 10,
	"a1": 11, "x11": 11,
	"a2": 12, "x12": 12,
	"a3": 13, "x13": 13,
	"a4": 14, "x14": 14,
	"a5": 15, "x15": 15,
	"a6": 16, "x16": 16,
	"a7": 17, "x17": 17,
	"s2": 18, "x18": 18,
	"s3": 19, "x19": 19,
	"s4": 20, "x20": 20,
	"s5": 21, "x21": 21,
	"s6": 22, "x22": 22,
	"s7": 23, "x23": 23,
	"s8": 24, "x24": 24,
	"s9": 25, "x25": 25,
	"s10": 26, "x26": 26,
	"s11": 27, "x27": 27,
	"t3": 28, "x28": 28,
	"t4": 29, "x29": 29,
	"t5": 30, "x30": 30,
	"t6": 31, "x31": 31,
}

const (
	opLoad   = 0x03
	opImm    = 0x13
	opImm32  = 0x1b
	opStore  = 0x23
	opReg    = 0x33
	opLui    = 0x37
	opBranch = 0x63
	opJal    = 0x6f
	opSystem = 0x73
)

// R-type: opcode[6:0] | rd[11:7] | funct3[14:12] | rs1[19:15] | rs2[24:20] | funct7[31:25]
func EncodeR(opcode, funct3, funct7, rd, rs1, rs2 uint32) uint32 {
	return opcode | (rd << 7) | (funct3 << 12) | (rs1 << 15) | (rs2 << 20) | (funct7 << 25)
}

// I-type: opcode[6:0] | rd[11:7] | funct3[14:12] | rs1[19:15] | imm[31:20]
func EncodeI(opcode, funct3, rd, rs1 uint32, imm int32) uint32 {
	return opcode | (rd << 7) | (funct3 << 12) | (rs1 << 15) | (uint32(imm&0xfff) << 20)
}

// S-type: opcode[6:0] | imm[11:7] | funct3[14:12] | rs1[19:15] | rs2[24:20] | imm[31:25]
func EncodeS(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	imm_4_0 := uint32(imm & 0x1f)
	imm_11_5 := uint32((imm >> 5) & 0x7f)
	return opcode | (imm_4_0 << 7) | (funct3 << 12) | (rs1 << 15) | (rs2 << 20) | (imm_11_5 << 25)
}

// B-type: opcode[6:0] | imm[11|4:1] | funct3[14:12] | rs1[19:15] | rs2[24:20] | imm[12|10:5]
func EncodeB(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	imm_11 := uint32((imm >> 11) & 0x1)
	imm_4_1 := uint32((imm >> 1) & 0xf)
	imm_10_5 := uint32((imm >> 5) & 0x3f)
	imm_12 := uint32((imm >> 12) & 0x1)
	return opcode | (imm_11 << 7) | (imm_4_1 << 8) | (funct3 << 12) | (rs1 << 15) | (rs2 << 20) | (imm_10_5 << 25) | (imm_12 << 31)
}

// U-type: opcode[6:0] | rd[11:7] | imm[31:12]
func EncodeU(opcode, rd, imm uint32) uint32 {
	return opcode | (rd << 7) | (imm & 0xfffff000)
}

// J-type: opcode[6:0] | rd[11:7] | imm[19:12|11|10:1|20]
func EncodeJ(opcode, rd uint32, imm int32) uint32 {
	imm_19_12 := uint32((imm >> 12) & 0xff)
	imm_11 := uint32((imm >> 11) & 0x1)
	imm_10_1 := uint32((imm >> 1) & 0x3ff)
	imm_20 := uint32((imm >> 20) & 0x1)
	return opcode | (rd << 7) | (imm_19_12 << 12) | (imm_11 << 20) | (imm_10_1 << 21) | (imm_20 << 31)
}

type Assembler struct {
	buf []byte
}

func (a *Assembler) Bytes() []byte {
	return a.buf
}

// Len is the current offset in bytes.
func (a *Assembler) Len() int {
	return len(a.buf)
}

func (a *Assembler) Emit(inst uint32) {
	a.buf = binary.LittleEndian.AppendUint32(a.buf, inst)
}

func reg(name string) (uint32, error) {
	r, ok := Registers[name]
	if !ok {
		return 0, fmt.Errorf("invalid RISC-V register: %s", name)
	}
	return r, nil
}

func regs(names ...string) ([]uint32, error) {
	ret := make([]uint32, len(names))
	for i, name := range names {
		r, err := reg(name)
		if err != nil {
			return nil, err
		}
		ret[i] = r
	}
	return ret, nil
}

func checkImm(imm int32, bits uint) error {
	lo, hi := -int32(1)<<(bits-1), int32(1)<<(bits-1)-1
	if imm < lo || imm > hi {
		return fmt.Errorf("immediate %d out of %d-bit range", imm, bits)
	}
	return nil
}

// ADDI: addi rd, rs1, imm
func (a *Assembler) Addi(dest, src string, imm int32) error {
	r, err := regs(dest, src)
	if err != nil {
		return err
	}
	if err := checkImm(imm, 12); err != nil {
		return err
	}
	a.Emit(EncodeI(opImm, 0, r[0], r[1], imm))
	return nil
}

// ADD: add rd, rs1, rs2
func (a *Assembler) Add(dest, src1, src2 string) error {
	r, err := regs(dest, src1, src2)
	if err != nil {
		return err
	}
	a.Emit(EncodeR(opReg, 0, 0, r[0], r[1], r[2]))
	return nil
}

// MV: addi rd, rs, 0
func (a *Assembler) Mv(dest, src string) error {
	return a.Addi(dest, src, 0)
}

// LI: addi for 12-bit values, lui+addiw otherwise
func (a *Assembler) Li(dest string, imm int32) error {
	if checkImm(imm, 12) == nil {
		return a.Addi(dest, "zero", imm)
	}
	rd, err := reg(dest)
	if err != nil {
		return err
	}
	hi := (int64(imm) + 0x800) >> 12
	lo := int32(int64(imm) - hi<<12)
	a.Emit(EncodeU(opLui, rd, uint32(hi)<<12))
	if lo != 0 {
		a.Emit(EncodeI(opImm32, 0, rd, rd, lo))
	}
	return nil
}

func (a *Assembler) store(funct3 uint32, src, base string, offset int32) error {
	r, err := regs(src, base)
	if err != nil {
		return err
	}
	if err := checkImm(offset, 12); err != nil {
		return err
	}
	a.Emit(EncodeS(opStore, funct3, r[1], r[0], offset))
	return nil
}

func (a *Assembler) load(funct3 uint32, dest, base string, offset int32) error {
	r, err := regs(dest, base)
	if err != nil {
		return err
	}
	if err := checkImm(offset, 12); err != nil {
		return err
	}
	a.Emit(EncodeI(opLoad, funct3, r[0], r[1], offset))
	return nil
}

// SB: sb rs2, offset(rs1)
func (a *Assembler) Sb(src, base string, offset int32) error {
	return a.store(0, src, base, offset)
}

// SD: sd rs2, offset(rs1)
func (a *Assembler) Sd(src, base string, offset int32) error {
	return a.store(3, src, base, offset)
}

// LBU: lbu rd, offset(rs1)
func (a *Assembler) Lbu(dest, base string, offset int32) error {
	return a.load(4, dest, base, offset)
}

// LD: ld rd, offset(rs1)
func (a *Assembler) Ld(dest, base string, offset int32) error {
	return a.load(3, dest, base, offset)
}

// BNE: bne rs1, rs2, offset
func (a *Assembler) Bne(src1, src2 string, offset int32) error {
	r, err := regs(src1, src2)
	if err != nil {
		return err
	}
	if offset&1 != 0 {
		return fmt.Errorf("branch offset %d is not 2-byte aligned", offset)
	}
	if err := checkImm(offset, 13); err != nil {
		return err
	}
	a.Emit(EncodeB(opBranch, 1, r[0], r[1], offset))
	return nil
}

// JAL: jal rd, offset
func (a *Assembler) Jal(dest string, offset int32) error {
	rd, err := reg(dest)
	if err != nil {
		return err
	}
	if offset&1 != 0 {
		return fmt.Errorf("jump offset %d is not 2-byte aligned", offset)
	}
	if err := checkImm(offset, 21); err != nil {
		return err
	}
	a.Emit(EncodeJ(opJal, rd, offset))
	return nil
}

func (a *Assembler) Ecall() {
	a.Emit(EncodeI(opSystem, 0, 0, 0, 0))
}

func (a *Assembler) Ebreak() {
	a.Emit(EncodeI(opSystem, 0, 0, 0, 1))
}
