package emulator

import (
	"encoding/binary"
	"errors"
	"math"
	"math/bits"
)

func immI(inst uint32) uint64 {
	return uint64(int64(int32(inst) >> 20))
}

func immS(inst uint32) uint64 {
	return uint64(int64(int32(inst&0xfe000000)>>20) | int64((inst>>7)&0x1f))
}

func immB(inst uint32) uint64 {
	return uint64(int64(int32(inst&0x80000000)>>19) |
		int64((inst&0x80)<<4) |
		int64((inst>>20)&0x7e0) |
		int64((inst>>7)&0x1e))
}

func immU(inst uint32) uint64 {
	return uint64(int64(int32(inst & 0xfffff000)))
}

func immJ(inst uint32) uint64 {
	return uint64(int64(int32(inst&0x80000000)>>11) |
		int64(inst&0xff000) |
		int64((inst>>9)&0x800) |
		int64((inst>>20)&0x7fe))
}

func sext32(v uint64) uint64 {
	return uint64(int64(int32(v)))
}

func (e *Emulator) setX(rd uint32, v uint64) {
	if rd != 0 {
		e.x[rd] = v
	}
}

func (e *Emulator) step() error {
	pc := e.pc
	if pc&3 != 0 {
		return &Fault{PC: pc, Cause: FAULT_MISALIGNED_FETCH}
	}
	inst, err := e.mem.Fetch(pc)
	if err != nil {
		return &Fault{PC: pc, Cause: FAULT_FETCH, Err: err}
	}
	e.traceCode(pc)
	if e.stopped.Load() {
		return nil
	}

	next := pc + 4
	rd := (inst >> 7) & 0x1f
	funct3 := (inst >> 12) & 0x7
	rs1 := e.x[(inst>>15)&0x1f]
	rs2 := e.x[(inst>>20)&0x1f]
	funct7 := inst >> 25

	switch inst & 0x7f {
	case 0x37: // lui
		e.setX(rd, immU(inst))
	case 0x17: // auipc
		e.setX(rd, pc+immU(inst))
	case 0x6f: // jal
		e.setX(rd, next)
		next = pc + immJ(inst)
	case 0x67: // jalr
		if funct3 != 0 {
			return illegalInstruction(pc, inst)
		}
		target := (rs1 + immI(inst)) &^ 1
		e.setX(rd, next)
		next = target
	case 0x63:
		var taken bool
		switch funct3 {
		case 0:
			taken = rs1 == rs2
		case 1:
			taken = rs1 != rs2
		case 4:
			taken = int64(rs1) < int64(rs2)
		case 5:
			taken = int64(rs1) >= int64(rs2)
		case 6:
			taken = rs1 < rs2
		case 7:
			taken = rs1 >= rs2
		default:
			return illegalInstruction(pc, inst)
		}
		if taken {
			next = pc + immB(inst)
		}
	case 0x03:
		v, err := e.load(rs1+immI(inst), funct3)
		if err != nil {
			if errors.Is(err, errIllegal) {
				return illegalInstruction(pc, inst)
			}
			return &Fault{PC: pc, Inst: inst, Cause: FAULT_LOAD, Err: err}
		}
		e.setX(rd, v)
	case 0x23:
		if err := e.store(rs1+immS(inst), funct3, rs2); err != nil {
			if errors.Is(err, errIllegal) {
				return illegalInstruction(pc, inst)
			}
			return &Fault{PC: pc, Inst: inst, Cause: FAULT_STORE, Err: err}
		}
	case 0x13:
		v, ok := opImm(inst, funct3, rs1)
		if !ok {
			return illegalInstruction(pc, inst)
		}
		e.setX(rd, v)
	case 0x1b:
		v, ok := opImm32(inst, funct3, rs1)
		if !ok {
			return illegalInstruction(pc, inst)
		}
		e.setX(rd, v)
	case 0x33:
		v, ok := op(funct3, funct7, rs1, rs2)
		if !ok {
			return illegalInstruction(pc, inst)
		}
		e.setX(rd, v)
	case 0x3b:
		v, ok := op32(funct3, funct7, rs1, rs2)
		if !ok {
			return illegalInstruction(pc, inst)
		}
		e.setX(rd, v)
	case 0x0f: // fence
	case 0x73:
		e.pc = next
		switch inst {
		case RISCV_INST_ECALL:
			return e.interrupt(RISCV_INTR_ECALL_U)
		case RISCV_INST_EBREAK:
			return e.interrupt(RISCV_INTR_BREAKPOINT)
		}
		e.pc = pc
		return illegalInstruction(pc, inst)
	default:
		return illegalInstruction(pc, inst)
	}

	if next&3 != 0 {
		return &Fault{PC: pc, Inst: inst, Cause: FAULT_MISALIGNED_FETCH}
	}
	e.pc = next
	return nil
}

func illegalInstruction(pc uint64, inst uint32) error {
	return &Fault{PC: pc, Inst: inst, Cause: FAULT_ILLEGAL_INSTRUCTION}
}

var errIllegal = errors.New("illegal encoding")

func (e *Emulator) load(addr uint64, funct3 uint32) (uint64, error) {
	var buf [8]byte
	size := 1 << (funct3 & 3)
	if funct3 == 7 {
		return 0, errIllegal
	}
	if err := e.mem.ReadSlice(addr, buf[:size]); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(buf[:])
	switch funct3 {
	case 0:
		return uint64(int64(int8(v))), nil
	case 1:
		return uint64(int64(int16(v))), nil
	case 2:
		return sext32(v), nil
	case 3:
		return v, nil
	case 4:
		return v & 0xff, nil
	case 5:
		return v & 0xffff, nil
	case 6:
		return v & 0xffffffff, nil
	}
	return 0, errIllegal
}

func (e *Emulator) store(addr uint64, funct3 uint32, v uint64) error {
	if funct3 > 3 {
		return errIllegal
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return e.mem.WriteSlice(addr, buf[:1<<funct3])
}

func opImm(inst, funct3 uint32, rs1 uint64) (uint64, bool) {
	imm := immI(inst)
	shamt := (inst >> 20) & 0x3f
	switch funct3 {
	case 0:
		return rs1 + imm, true
	case 1:
		if inst>>26 != 0 {
			return 0, false
		}
		return rs1 << shamt, true
	case 2:
		return b2u(int64(rs1) < int64(imm)), true
	case 3:
		return b2u(rs1 < imm), true
	case 4:
		return rs1 ^ imm, true
	case 5:
		switch inst >> 26 {
		case 0x00:
			return rs1 >> shamt, true
		case 0x10:
			return uint64(int64(rs1) >> shamt), true
		}
	case 6:
		return rs1 | imm, true
	case 7:
		return rs1 & imm, true
	}
	return 0, false
}

func opImm32(inst, funct3 uint32, rs1 uint64) (uint64, bool) {
	shamt := (inst >> 20) & 0x1f
	funct7 := inst >> 25
	switch funct3 {
	case 0:
		return sext32(rs1 + immI(inst)), true
	case 1:
		if funct7 != 0 {
			return 0, false
		}
		return sext32(rs1 << shamt), true
	case 5:
		switch funct7 {
		case 0x00:
			return sext32(uint64(uint32(rs1) >> shamt)), true
		case 0x20:
			return uint64(int64(int32(rs1) >> shamt)), true
		}
	}
	return 0, false
}

func op(funct3, funct7 uint32, a, b uint64) (uint64, bool) {
	shamt := b & 0x3f
	switch funct7 {
	case 0x00:
		switch funct3 {
		case 0:
			return a + b, true
		case 1:
			return a << shamt, true
		case 2:
			return b2u(int64(a) < int64(b)), true
		case 3:
			return b2u(a < b), true
		case 4:
			return a ^ b, true
		case 5:
			return a >> shamt, true
		case 6:
			return a | b, true
		case 7:
			return a & b, true
		}
	case 0x20:
		switch funct3 {
		case 0:
			return a - b, true
		case 5:
			return uint64(int64(a) >> shamt), true
		}
	case 0x01:
		return mulDiv(funct3, a, b), true
	}
	return 0, false
}

func op32(funct3, funct7 uint32, a, b uint64) (uint64, bool) {
	shamt := b & 0x1f
	switch funct7 {
	case 0x00:
		switch funct3 {
		case 0:
			return sext32(a + b), true
		case 1:
			return sext32(a << shamt), true
		case 5:
			return sext32(uint64(uint32(a) >> shamt)), true
		}
	case 0x20:
		switch funct3 {
		case 0:
			return sext32(a - b), true
		case 5:
			return uint64(int64(int32(a) >> shamt)), true
		}
	case 0x01:
		return mulDiv32(funct3, a, b)
	}
	return 0, false
}

func mulDiv(funct3 uint32, a, b uint64) uint64 {
	switch funct3 {
	case 0: // mul
		return a * b
	case 1: // mulh
		hi, _ := bits.Mul64(a, b)
		if int64(a) < 0 {
			hi -= b
		}
		if int64(b) < 0 {
			hi -= a
		}
		return hi
	case 2: // mulhsu
		hi, _ := bits.Mul64(a, b)
		if int64(a) < 0 {
			hi -= b
		}
		return hi
	case 3: // mulhu
		hi, _ := bits.Mul64(a, b)
		return hi
	case 4: // div
		switch {
		case b == 0:
			return math.MaxUint64
		case int64(a) == math.MinInt64 && int64(b) == -1:
			return a
		}
		return uint64(int64(a) / int64(b))
	case 5: // divu
		if b == 0 {
			return math.MaxUint64
		}
		return a / b
	case 6: // rem
		switch {
		case b == 0:
			return a
		case int64(a) == math.MinInt64 && int64(b) == -1:
			return 0
		}
		return uint64(int64(a) % int64(b))
	default: // remu
		if b == 0 {
			return a
		}
		return a % b
	}
}

func mulDiv32(funct3 uint32, a, b uint64) (uint64, bool) {
	x, y := int32(a), int32(b)
	switch funct3 {
	case 0:
		return sext32(uint64(x * y)), true
	case 4:
		switch {
		case y == 0:
			return math.MaxUint64, true
		case x == math.MinInt32 && y == -1:
			return uint64(int64(x)), true
		}
		return uint64(int64(x / y)), true
	case 5:
		if uint32(y) == 0 {
			return math.MaxUint64, true
		}
		return sext32(uint64(uint32(x) / uint32(y))), true
	case 6:
		switch {
		case y == 0:
			return uint64(int64(x)), true
		case x == math.MinInt32 && y == -1:
			return 0, true
		}
		return uint64(int64(x % y)), true
	case 7:
		if uint32(y) == 0 {
			return uint64(int64(x)), true
		}
		return sext32(uint64(uint32(x) % uint32(y))), true
	}
	return 0, false
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
