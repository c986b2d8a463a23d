package loader

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/wnxd/greet-linux/emulator"
)

const (
	headerSize = 64
	phdrSize   = 56

	// TextOffset is where Write places the program text, relative to the image base.
	TextOffset = headerSize + phdrSize

	maxSegmentSize = 1 << 30
	pageSize       = 0x1000
)

var (
	ErrMagic      = errors.New("invalid ELF magic")
	ErrBitness    = errors.New("unsupported ELF class")
	ErrEndianness = errors.New("unsupported ELF byte order")
	ErrMachine    = errors.New("unsupported ELF machine")
	ErrType       = errors.New("unsupported ELF type")
	ErrSegment    = errors.New("invalid ELF segment")
)

type Image struct {
	Entry    uint64
	Segments []*emulator.Segment
}

func Open(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// Read accepts static RV64 little-endian executables. Every loadable segment
// with a non-zero memory size is returned, zero-filled past its file bytes.
func Read(r io.ReaderAt) (*Image, error) {
	var ident [elf.EI_NIDENT]byte
	if _, err := r.ReadAt(ident[:], 0); err != nil {
		return nil, fmt.Errorf("read ident: %w", err)
	}
	if string(ident[:4]) != elf.ELFMAG {
		return nil, fmt.Errorf("%w: % x", ErrMagic, ident[:4])
	}
	if class := elf.Class(ident[elf.EI_CLASS]); class != elf.ELFCLASS64 {
		return nil, fmt.Errorf("%w: %s", ErrBitness, class)
	}
	if data := elf.Data(ident[elf.EI_DATA]); data != elf.ELFDATA2LSB {
		return nil, fmt.Errorf("%w: %s", ErrEndianness, data)
	}

	f, err := elf.NewFile(r)
	if err != nil {
		return nil, err
	}
	if f.Machine != elf.EM_RISCV {
		return nil, fmt.Errorf("%w: %s", ErrMachine, f.Machine)
	}
	if f.Type != elf.ET_EXEC {
		return nil, fmt.Errorf("%w: %s", ErrType, f.Type)
	}

	img := &Image{Entry: f.Entry}
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD || p.Memsz == 0 {
			continue
		}
		if p.Filesz > p.Memsz || p.Memsz > maxSegmentSize || p.Vaddr+p.Memsz < p.Vaddr {
			return nil, fmt.Errorf("%w: vaddr %#x filesz %#x memsz %#x", ErrSegment, p.Vaddr, p.Filesz, p.Memsz)
		}
		data := make([]byte, p.Memsz)
		if _, err := io.ReadFull(p.Open(), data[:p.Filesz]); err != nil {
			return nil, fmt.Errorf("read segment at %#x: %w", p.Vaddr, err)
		}
		img.Segments = append(img.Segments, &emulator.Segment{
			Start: p.Vaddr,
			Prot:  protection(p.Flags),
			Data:  data,
		})
	}
	return img, nil
}

func protection(flags elf.ProgFlag) emulator.MemProt {
	var prot emulator.MemProt
	if flags&elf.PF_R != 0 {
		prot |= emulator.MEM_PROT_READ
	}
	if flags&elf.PF_W != 0 {
		prot |= emulator.MEM_PROT_WRITE
	}
	if flags&elf.PF_X != 0 {
		prot |= emulator.MEM_PROT_EXEC
	}
	return prot
}

// Write emits a static executable whose single read/execute segment maps the
// whole file at base. The entry point is base+TextOffset.
func Write(w io.Writer, base uint64, text []byte) error {
	if base%pageSize != 0 {
		return fmt.Errorf("base %#x is not page aligned", base)
	}
	var ident [elf.EI_NIDENT]byte
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	ident[elf.EI_OSABI] = byte(elf.ELFOSABI_NONE)

	size := uint64(TextOffset + len(text))
	hdr := elf.Header64{
		Ident:     ident,
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_RISCV),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     base + TextOffset,
		Phoff:     headerSize,
		Ehsize:    headerSize,
		Phentsize: phdrSize,
		Phnum:     1,
	}
	prog := elf.Prog64{
		Type:   uint32(elf.PT_LOAD),
		Flags:  uint32(elf.PF_R | elf.PF_X),
		Off:    0,
		Vaddr:  base,
		Paddr:  base,
		Filesz: size,
		Memsz:  size,
		Align:  pageSize,
	}
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, &prog); err != nil {
		return err
	}
	_, err := w.Write(text)
	return err
}
