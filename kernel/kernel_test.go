package kernel_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	linux "github.com/wnxd/greet-linux"
	"github.com/wnxd/greet-linux/asm/riscv"
	"github.com/wnxd/greet-linux/debugger"
	"github.com/wnxd/greet-linux/emulator"
	"github.com/wnxd/greet-linux/kernel"
	"github.com/wnxd/greet-linux/loader"
)

const textBase = 0x10000

type guest struct {
	out  bytes.Buffer
	code int
	proc *debugger.Process
}

func run(t *testing.T, build func(a *riscv.Assembler) error) *guest {
	t.Helper()
	var a riscv.Assembler
	if err := build(&a); err != nil {
		t.Fatal(err)
	}
	g := new(guest)
	p, err := debugger.New(emulator.ARCH_RISCV64, debugger.Options{
		Stdin:    bytes.NewReader([]byte("in\n")),
		Stdout:   &g.out,
		Stderr:   &g.out,
		MaxSteps: 10000,
	})
	if err != nil {
		t.Fatal(err)
	}
	k, err := kernel.NewKernel(p)
	if err != nil {
		t.Fatal(err)
	}
	defer k.Close()
	img := &loader.Image{
		Entry: textBase,
		Segments: []*emulator.Segment{
			{Start: textBase, Prot: emulator.MEM_PROT_READ | emulator.MEM_PROT_EXEC, Data: a.Bytes()},
		},
	}
	if err := p.Load(img); err != nil {
		t.Fatal(err)
	}
	g.code, err = p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	g.proc = p
	return g
}

// stack reads size bytes at the guest sp left by exit.
func (g *guest) stack(t *testing.T, size uint64) []byte {
	t.Helper()
	sp, err := g.proc.Emulator().RegRead(emulator.RISCV_REG_SP)
	if err != nil {
		t.Fatal(err)
	}
	b, err := g.proc.Emulator().MemRead(sp, size)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func syscall(a *riscv.Assembler, nr linux.NR) error {
	err := a.Li("a7", int32(nr))
	a.Ecall()
	return err
}

// exitWithResult passes the last syscall result to exit so tests can read it.
func exitWithResult(a *riscv.Assembler) error {
	return syscall(a, linux.NR_exit)
}

func errnoCode(e linux.Errno) int {
	return -int(e)
}

func TestWriteHi(t *testing.T) {
	g := run(t, func(a *riscv.Assembler) error {
		errs := []error{a.Addi("sp", "sp", -16)}
		for i, c := range []byte("Hi!\n") {
			errs = append(errs, a.Li("t0", int32(c)), a.Sb("t0", "sp", int32(i)))
		}
		errs = append(errs,
			a.Li("a0", 1),
			a.Mv("a1", "sp"),
			a.Li("a2", 4),
			syscall(a, linux.NR_write),
			a.Addi("sp", "sp", 16),
			a.Li("a0", 0),
			syscall(a, linux.NR_exit),
		)
		return errors.Join(errs...)
	})
	if g.out.String() != "Hi!\n" || g.code != 0 {
		t.Fatalf("got %q, code %d", g.out.String(), g.code)
	}
}

func TestWriteResult(t *testing.T) {
	g := run(t, func(a *riscv.Assembler) error {
		return errors.Join(
			a.Li("a0", 1),
			a.Mv("a1", "sp"),
			a.Li("a2", 3),
			syscall(a, linux.NR_write),
			exitWithResult(a),
		)
	})
	if g.code != 3 || g.out.Len() != 3 {
		t.Fatalf("code %d, wrote %d bytes", g.code, g.out.Len())
	}
}

func TestErrors(t *testing.T) {
	for _, c := range []struct {
		name  string
		build func(a *riscv.Assembler) error
		want  linux.Errno
	}{
		{"bad fd", func(a *riscv.Assembler) error {
			return errors.Join(a.Li("a0", 7), a.Mv("a1", "sp"), a.Li("a2", 1), syscall(a, linux.NR_write))
		}, linux.EBADF},
		{"write to stdin", func(a *riscv.Assembler) error {
			return errors.Join(a.Li("a0", 0), a.Mv("a1", "sp"), a.Li("a2", 1), syscall(a, linux.NR_write))
		}, linux.EBADF},
		{"bad buffer", func(a *riscv.Assembler) error {
			return errors.Join(a.Li("a0", 1), a.Li("a1", 0), a.Li("a2", 4), syscall(a, linux.NR_write))
		}, linux.EFAULT},
		{"unknown syscall", func(a *riscv.Assembler) error {
			return syscall(a, 1000)
		}, linux.ENOSYS},
		{"brk", func(a *riscv.Assembler) error {
			return errors.Join(a.Li("a0", 0), syscall(a, linux.NR_brk))
		}, linux.ENOSYS},
		{"file mmap", func(a *riscv.Assembler) error {
			return errors.Join(a.Li("a0", 0), a.Li("a1", 4096), a.Li("a2", 3), a.Li("a3", 0x02), a.Li("a4", 3), a.Li("a5", 0), syscall(a, linux.NR_mmap))
		}, linux.ENODEV},
		{"bad clock", func(a *riscv.Assembler) error {
			return errors.Join(a.Li("a0", 99), a.Mv("a1", "sp"), syscall(a, linux.NR_clock_gettime))
		}, linux.EINVAL},
		{"bad rlimit", func(a *riscv.Assembler) error {
			return errors.Join(a.Li("a0", 99), a.Mv("a1", "sp"), syscall(a, linux.NR_getrlimit))
		}, linux.EINVAL},
		{"getrandom flags", func(a *riscv.Assembler) error {
			return errors.Join(a.Mv("a0", "sp"), a.Li("a1", 8), a.Li("a2", 8), syscall(a, linux.NR_getrandom))
		}, linux.EINVAL},
		{"getrandom random and insecure", func(a *riscv.Assembler) error {
			return errors.Join(a.Mv("a0", "sp"), a.Li("a1", 8), a.Li("a2", 6), syscall(a, linux.NR_getrandom))
		}, linux.EINVAL},
		{"ioctl on a stream", func(a *riscv.Assembler) error {
			return errors.Join(a.Li("a0", 1), a.Li("a1", 0x5401), a.Mv("a2", "sp"), syscall(a, linux.NR_ioctl))
		}, linux.ENOTTY},
		{"ioctl bad fd", func(a *riscv.Assembler) error {
			return errors.Join(a.Li("a0", 9), a.Li("a1", 0x5401), a.Mv("a2", "sp"), syscall(a, linux.NR_ioctl))
		}, linux.EBADF},
		{"close twice", func(a *riscv.Assembler) error {
			return errors.Join(a.Li("a0", 2), syscall(a, linux.NR_close), a.Li("a0", 2), syscall(a, linux.NR_close))
		}, linux.EBADF},
	} {
		g := run(t, func(a *riscv.Assembler) error {
			return errors.Join(c.build(a), exitWithResult(a))
		})
		if g.code != errnoCode(c.want) {
			t.Fatalf("%s: got %d, want %d", c.name, g.code, errnoCode(c.want))
		}
	}
}

func TestWritev(t *testing.T) {
	g := run(t, func(a *riscv.Assembler) error {
		return errors.Join(
			a.Addi("sp", "sp", -48),
			a.Li("t0", 'H'), a.Sb("t0", "sp", 32),
			a.Li("t0", 'i'), a.Sb("t0", "sp", 33),
			a.Li("t0", '!'), a.Sb("t0", "sp", 34),
			a.Li("t0", '\n'), a.Sb("t0", "sp", 35),
			a.Li("t1", 2),
			a.Addi("t0", "sp", 32), a.Sd("t0", "sp", 0), a.Sd("t1", "sp", 8),
			a.Addi("t0", "sp", 34), a.Sd("t0", "sp", 16), a.Sd("t1", "sp", 24),
			a.Li("a0", 1),
			a.Mv("a1", "sp"),
			a.Li("a2", 2),
			syscall(a, linux.NR_writev),
			exitWithResult(a),
		)
	})
	if g.out.String() != "Hi!\n" || g.code != 4 {
		t.Fatalf("got %q, code %d", g.out.String(), g.code)
	}
}

func TestRead(t *testing.T) {
	g := run(t, func(a *riscv.Assembler) error {
		return errors.Join(
			a.Addi("sp", "sp", -16),
			a.Li("a0", 0),
			a.Mv("a1", "sp"),
			a.Li("a2", 16),
			syscall(a, linux.NR_read),
			a.Mv("a2", "a0"),
			a.Li("a0", 1),
			a.Mv("a1", "sp"),
			syscall(a, linux.NR_write),
			exitWithResult(a),
		)
	})
	if g.out.String() != "in\n" || g.code != 3 {
		t.Fatalf("got %q, code %d", g.out.String(), g.code)
	}
}

func TestExitGroup(t *testing.T) {
	g := run(t, func(a *riscv.Assembler) error {
		return errors.Join(a.Li("a0", 3), syscall(a, linux.NR_exit_group), a.Li("a0", 4), syscall(a, linux.NR_exit))
	})
	if g.code != 3 {
		t.Fatalf("code %d", g.code)
	}
}

func TestIgnored(t *testing.T) {
	for _, nr := range []linux.NR{linux.NR_getuid, linux.NR_geteuid, linux.NR_getgid, linux.NR_getegid} {
		g := run(t, func(a *riscv.Assembler) error {
			return errors.Join(a.Li("a0", 5), syscall(a, nr), exitWithResult(a))
		})
		if g.code != 0 {
			t.Fatalf("%s: code %d", nr, g.code)
		}
	}
}

func TestMmap(t *testing.T) {
	g := run(t, func(a *riscv.Assembler) error {
		return errors.Join(
			a.Li("a0", 0),
			a.Li("a1", 4096),
			a.Li("a2", 3),
			a.Li("a3", 0x22),
			a.Li("a4", -1),
			a.Li("a5", 0),
			syscall(a, linux.NR_mmap),
			a.Li("t0", 42),
			a.Sd("t0", "a0", 8),
			exitWithResult(a),
		)
	})
	if g.code != debugger.DefaultMmapBase {
		t.Fatalf("mapped at %#x", g.code)
	}
	b, err := g.proc.Emulator().MemRead(debugger.DefaultMmapBase+8, 1)
	if err != nil || b[0] != 42 {
		t.Fatalf("got %v %v", b, err)
	}
}

func TestMemoryCalls(t *testing.T) {
	g := run(t, func(a *riscv.Assembler) error {
		return errors.Join(
			a.Li("a0", 0),
			a.Li("a1", 8192),
			a.Li("a2", 3),
			a.Li("a3", 0x22),
			a.Li("a4", -1),
			a.Li("a5", 0),
			syscall(a, linux.NR_mmap),
			a.Mv("s0", "a0"),
			a.Li("a1", 4096),
			a.Li("a2", 1),
			syscall(a, linux.NR_mprotect),
			a.Addi("a0", "s0", 0),
			a.Li("a1", 4096),
			syscall(a, linux.NR_munmap),
			exitWithResult(a),
		)
	})
	if g.code != 0 {
		t.Fatalf("code %d", g.code)
	}
	segs := g.proc.Emulator().Memory().Segments()
	var found bool
	for _, s := range segs {
		if s.Start == debugger.DefaultMmapBase {
			t.Fatal("unmapped page is still present")
		}
		if s.Start == debugger.DefaultMmapBase+4096 {
			found = true
			if s.Prot != emulator.MEM_PROT_READ|emulator.MEM_PROT_WRITE {
				t.Fatalf("got %s", s.Prot)
			}
		}
	}
	if !found {
		t.Fatal("second page is missing")
	}
}

func TestClock(t *testing.T) {
	g := run(t, func(a *riscv.Assembler) error {
		return errors.Join(
			a.Addi("sp", "sp", -16),
			a.Li("a0", 0),
			a.Mv("a1", "sp"),
			syscall(a, linux.NR_clock_gettime),
			a.Ld("a0", "sp", 0),
			exitWithResult(a),
		)
	})
	if g.code == 0 {
		t.Fatal("realtime seconds are zero")
	}
}

func TestGet(t *testing.T) {
	var sys kernel.Syscall
	for _, nr := range []linux.NR{linux.NR_write, linux.NR_writev, linux.NR_exit, linux.NR_exit_group, linux.NR_sysinfo, linux.NR_uname, linux.NR_getrandom} {
		if sys.Get(nr) == nil {
			t.Fatalf("%s is not handled", nr)
		}
	}
	if sys.Get(1000) != nil {
		t.Fatal("unexpected handler")
	}
}

// power leaves 1<<n in dest.
func power(a *riscv.Assembler, dest string, n int) error {
	errs := []error{a.Li(dest, 1)}
	for range n {
		errs = append(errs, a.Add(dest, dest, dest))
	}
	return errors.Join(errs...)
}

func hugeLength(a *riscv.Assembler) error {
	return power(a, "a1", 50)
}

func TestMmapTooLarge(t *testing.T) {
	g := run(t, func(a *riscv.Assembler) error {
		return errors.Join(
			a.Li("a0", 0),
			hugeLength(a),
			a.Li("a2", 3),
			a.Li("a3", 0x22),
			a.Li("a4", -1),
			a.Li("a5", 0),
			syscall(a, linux.NR_mmap),
			exitWithResult(a),
		)
	})
	if g.code != errnoCode(linux.ENOMEM) {
		t.Fatalf("got %d", g.code)
	}
}

func TestMmapFixedTooLarge(t *testing.T) {
	// text stays mapped, or the exit below would fault
	g := run(t, func(a *riscv.Assembler) error {
		return errors.Join(
			a.Li("a0", textBase),
			hugeLength(a),
			a.Li("a2", 3),
			a.Li("a3", 0x32),
			a.Li("a4", -1),
			a.Li("a5", 0),
			syscall(a, linux.NR_mmap),
			exitWithResult(a),
		)
	})
	if g.code != errnoCode(linux.ENOMEM) {
		t.Fatalf("got %d", g.code)
	}
}

func TestSysinfo(t *testing.T) {
	g := run(t, func(a *riscv.Assembler) error {
		return errors.Join(
			a.Addi("sp", "sp", -128),
			a.Mv("a0", "sp"),
			syscall(a, linux.NR_sysinfo),
			exitWithResult(a),
		)
	})
	if g.code != 0 {
		t.Fatalf("code %d", g.code)
	}
	b := g.stack(t, 128)
	le := binary.LittleEndian
	if uptime := int64(le.Uint64(b[0:])); uptime <= 0 {
		t.Fatalf("uptime %d", uptime)
	}
	if totalram := le.Uint64(b[32:]); totalram == 0 || le.Uint64(b[40:]) > totalram {
		t.Fatalf("totalram %d freeram %d", totalram, le.Uint64(b[40:]))
	}
	if procs := le.Uint16(b[80:]); procs == 0 {
		t.Fatal("no processes")
	}
	if unit := le.Uint32(b[104:]); unit != 1 {
		t.Fatalf("mem_unit %d", unit)
	}
	if !bytes.Equal(b[108:], make([]byte, 20)) {
		t.Fatalf("wrote past the struct: % x", b[108:])
	}
}

func TestUname(t *testing.T) {
	g := run(t, func(a *riscv.Assembler) error {
		return errors.Join(
			a.Addi("sp", "sp", -400),
			a.Mv("a0", "sp"),
			syscall(a, linux.NR_uname),
			exitWithResult(a),
		)
	})
	if g.code != 0 {
		t.Fatalf("code %d", g.code)
	}
	b := g.stack(t, 400)
	var fields []string
	for i := range 6 {
		field := b[i*65 : (i+1)*65]
		end := bytes.IndexByte(field, 0)
		if end < 0 {
			t.Fatalf("field %d is not terminated", i)
		}
		fields = append(fields, string(field[:end]))
	}
	if fields[0] != "Linux" || fields[4] != "riscv64" || fields[5] != "(none)" {
		t.Fatalf("got %q", fields)
	}
	if fields[1] == "" || fields[2] == "" {
		t.Fatalf("got %q", fields)
	}
	if !bytes.Equal(b[390:], make([]byte, 10)) {
		t.Fatalf("wrote past the struct: % x", b[390:])
	}
}

func TestGetrlimit(t *testing.T) {
	for resource, want := range map[int32]uint64{
		3: debugger.DefaultStackSize,
		7: math.MaxUint64,
	} {
		g := run(t, func(a *riscv.Assembler) error {
			return errors.Join(
				a.Addi("sp", "sp", -16),
				a.Li("a0", resource),
				a.Mv("a1", "sp"),
				syscall(a, linux.NR_getrlimit),
				exitWithResult(a),
			)
		})
		if g.code != 0 {
			t.Fatalf("resource %d: code %d", resource, g.code)
		}
		b := g.stack(t, 16)
		if cur, lim := binary.LittleEndian.Uint64(b), binary.LittleEndian.Uint64(b[8:]); cur != want || lim != want {
			t.Fatalf("resource %d: got %#x %#x", resource, cur, lim)
		}
	}
}

func TestGettimeofday(t *testing.T) {
	before := time.Now().Unix()
	g := run(t, func(a *riscv.Assembler) error {
		return errors.Join(
			a.Addi("sp", "sp", -32),
			a.Mv("a0", "sp"),
			a.Addi("a1", "sp", 16),
			syscall(a, linux.NR_gettimeofday),
			exitWithResult(a),
		)
	})
	after := time.Now().Unix()
	if g.code != 0 {
		t.Fatalf("code %d", g.code)
	}
	b := g.stack(t, 24)
	sec := int64(binary.LittleEndian.Uint64(b))
	usec := int64(binary.LittleEndian.Uint64(b[8:]))
	if sec < before || sec > after || usec < 0 || usec >= 1e6 {
		t.Fatalf("got %d.%06d, want within [%d, %d]", sec, usec, before, after)
	}
	_, offset := time.Now().Zone()
	if west := int32(binary.LittleEndian.Uint32(b[16:])); west != int32(-offset/60) {
		t.Fatalf("minutes west %d", west)
	}
}

func TestGetrandom(t *testing.T) {
	g := run(t, func(a *riscv.Assembler) error {
		return errors.Join(
			a.Addi("sp", "sp", -64),
			a.Mv("a0", "sp"),
			a.Li("a1", 32),
			a.Li("a2", 0),
			syscall(a, linux.NR_getrandom),
			exitWithResult(a),
		)
	})
	if g.code != 32 {
		t.Fatalf("code %d", g.code)
	}
	b := g.stack(t, 64)
	if bytes.Equal(b[:32], make([]byte, 32)) {
		t.Fatal("buffer not filled")
	}
	if !bytes.Equal(b[32:], make([]byte, 32)) {
		t.Fatalf("wrote past the count: % x", b[32:])
	}
}

func TestMmapFixedOutsideUserSpace(t *testing.T) {
	g := run(t, func(a *riscv.Assembler) error {
		return errors.Join(
			power(a, "a0", 40),
			a.Li("a1", 4096),
			a.Li("a2", 3),
			a.Li("a3", 0x32),
			a.Li("a4", -1),
			a.Li("a5", 0),
			syscall(a, linux.NR_mmap),
			exitWithResult(a),
		)
	})
	if g.code != errnoCode(linux.ENOMEM) {
		t.Fatalf("got %d", g.code)
	}
}
