package loader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/wnxd/greet-linux/emulator"
)

func image(t *testing.T, text []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := Write(&buf, 0x10000, text); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	text := []byte{0x73, 0, 0, 0}
	img, err := Read(bytes.NewReader(image(t, text)))
	if err != nil {
		t.Fatal(err)
	}
	if img.Entry != 0x10000+TextOffset {
		t.Fatalf("entry %#x", img.Entry)
	}
	if len(img.Segments) != 1 {
		t.Fatalf("got %d segments", len(img.Segments))
	}
	s := img.Segments[0]
	if s.Start != 0x10000 || s.Prot != emulator.MEM_PROT_READ|emulator.MEM_PROT_EXEC {
		t.Fatalf("got start %#x prot %s", s.Start, s.Prot)
	}
	if !bytes.Equal(s.Data[TextOffset:], text) {
		t.Fatalf("got % x", s.Data[TextOffset:])
	}
	if !bytes.Equal(s.Data[:4], []byte(elf.ELFMAG)) {
		t.Fatal("header is not mapped")
	}
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog.elf")
	if err := os.WriteFile(path, image(t, []byte{0x73, 0, 0, 0}), 0o755); err != nil {
		t.Fatal(err)
	}
	img, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if img.Entry != 0x10000+TextOffset {
		t.Fatalf("entry %#x", img.Entry)
	}
	if _, err := Open(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("got %v", err)
	}
}

func TestRejects(t *testing.T) {
	for _, c := range []struct {
		name  string
		patch func(b []byte)
		want  error
	}{
		{"magic", func(b []byte) { b[1] = 'X' }, ErrMagic},
		{"bitness", func(b []byte) { b[elf.EI_CLASS] = byte(elf.ELFCLASS32) }, ErrBitness},
		{"endianness", func(b []byte) { b[elf.EI_DATA] = byte(elf.ELFDATA2MSB) }, ErrEndianness},
		{"machine", func(b []byte) { binary.LittleEndian.PutUint16(b[18:], uint16(elf.EM_X86_64)) }, ErrMachine},
		{"type", func(b []byte) { binary.LittleEndian.PutUint16(b[16:], uint16(elf.ET_DYN)) }, ErrType},
		{"wrapping segment", func(b []byte) { binary.LittleEndian.PutUint64(b[headerSize+16:], 0xfffffffffffffff8) }, ErrSegment},
		{"oversized segment", func(b []byte) { binary.LittleEndian.PutUint64(b[headerSize+40:], 1<<40) }, ErrSegment},
	} {
		b := image(t, []byte{0x73, 0, 0, 0})
		c.patch(b)
		if _, err := Read(bytes.NewReader(b)); !errors.Is(err, c.want) {
			t.Fatalf("%s: got %v", c.name, err)
		}
	}
	if _, err := Read(bytes.NewReader([]byte("\x7fEL"))); err == nil {
		t.Fatal("expected error for truncated file")
	}
}

func TestZeroFill(t *testing.T) {
	var buf bytes.Buffer
	var ident [elf.EI_NIDENT]byte
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	hdr := elf.Header64{
		Ident:     ident,
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_RISCV),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     0x20000,
		Phoff:     headerSize,
		Ehsize:    headerSize,
		Phentsize: phdrSize,
		Phnum:     3,
	}
	progs := []elf.Prog64{
		{Type: uint32(elf.PT_LOAD), Flags: uint32(elf.PF_R | elf.PF_W), Off: headerSize + 3*phdrSize, Vaddr: 0x20000, Filesz: 4, Memsz: 16},
		{Type: uint32(elf.PT_NOTE), Flags: uint32(elf.PF_R), Vaddr: 0x30000, Memsz: 8},
		{Type: uint32(elf.PT_LOAD), Flags: uint32(elf.PF_R), Vaddr: 0x40000},
	}
	binary.Write(&buf, binary.LittleEndian, &hdr)
	binary.Write(&buf, binary.LittleEndian, progs)
	buf.WriteString("Hi!\n")

	img, err := Read(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if len(img.Segments) != 1 {
		t.Fatalf("got %d segments", len(img.Segments))
	}
	s := img.Segments[0]
	if len(s.Data) != 16 || string(s.Data[:4]) != "Hi!\n" || !bytes.Equal(s.Data[4:], make([]byte, 12)) {
		t.Fatalf("got % x", s.Data)
	}
	if s.Prot != emulator.MEM_PROT_READ|emulator.MEM_PROT_WRITE {
		t.Fatalf("got %s", s.Prot)
	}
}

func TestWriteUnalignedBase(t *testing.T) {
	if err := Write(new(bytes.Buffer), 0x10004, nil); err == nil {
		t.Fatal("expected error")
	}
}
