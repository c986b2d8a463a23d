package debugger

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/wnxd/greet-linux/emulator"
	"github.com/wnxd/greet-linux/internal/logs"
	"github.com/wnxd/greet-linux/loader"
)

const (
	DefaultStackTop  = 0x7fff0000
	DefaultStackSize = 0x20000
	DefaultMmapBase  = 0x40000000
)

type Options struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Args   []string

	StackTop  uint64
	StackSize uint64
	MmapBase  uint64
	// MaxSteps bounds the number of executed instructions; zero means unbounded.
	MaxSteps uint64
	// Trace logs every executed instruction at logs.LevelTrace.
	Trace bool

	Logger *slog.Logger
}

// Process is a single-threaded guest program on top of an Emulator.
type Process struct {
	emu  *emulator.Emulator
	opts Options
	log  *slog.Logger

	entry  uint64
	loaded bool

	rw    sync.RWMutex
	files map[int]File

	exited   bool
	exitCode int
}

func New(arch emulator.Arch, opts Options) (*Process, error) {
	emu, err := emulator.New(arch)
	if err != nil {
		return nil, err
	}
	if opts.StackTop == 0 {
		opts.StackTop = DefaultStackTop
	}
	if opts.StackSize == 0 {
		opts.StackSize = DefaultStackSize
	}
	if opts.MmapBase == 0 {
		opts.MmapBase = DefaultMmapBase
	}
	if opts.StackTop%PAGE_SIZE != 0 || opts.StackSize%PAGE_SIZE != 0 || opts.StackSize > opts.StackTop {
		return nil, fmt.Errorf("stack %#x/%#x: %w", opts.StackTop, opts.StackSize, ErrArgumentInvalid)
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	p := &Process{
		emu:   emu,
		opts:  opts,
		log:   log,
		files: make(map[int]File),
	}
	for fd, f := range []File{opts.Stdin, opts.Stdout, opts.Stderr} {
		if f != nil {
			p.files[fd] = f
		}
	}
	if opts.Trace {
		_, err := p.AddHook(emulator.HOOK_TYPE_CODE, CodeCallback(p.trace), nil)
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Process) Arch() emulator.Arch {
	return p.emu.Arch()
}

func (p *Process) Emulator() *emulator.Emulator {
	return p.emu
}

func (p *Process) Logger() *slog.Logger {
	return p.log
}

func (p *Process) StackSize() uint64 {
	return p.opts.StackSize
}

func (p *Process) Entry() uint64 {
	return p.entry
}

// Load maps the image and an initial stack holding argc, argv, an empty
// environment and an empty auxiliary vector.
func (p *Process) Load(img *loader.Image) error {
	for _, seg := range img.Segments {
		if err := p.emu.Memory().Insert(seg); err != nil {
			return fmt.Errorf("map segment: %w", err)
		}
		p.log.Debug("map segment", "start", hex(seg.Start), "size", len(seg.Data), "prot", seg.Prot.String())
	}
	stackBase := p.opts.StackTop - p.opts.StackSize
	if _, err := p.MemMap(stackBase, p.opts.StackSize, emulator.MEM_PROT_READ|emulator.MEM_PROT_WRITE); err != nil {
		return fmt.Errorf("map stack: %w", err)
	}
	sp, err := p.setupStack(p.opts.Args)
	if err != nil {
		return fmt.Errorf("setup stack: %w", err)
	}
	if err := p.emu.RegWrite(emulator.RISCV_REG_SP, sp); err != nil {
		return err
	}
	p.entry = img.Entry
	p.loaded = true
	return nil
}

func (p *Process) setupStack(args []string) (uint64, error) {
	sp := p.opts.StackTop
	ptrs := make([]uint64, len(args))
	for i := len(args) - 1; i >= 0; i-- {
		b := append([]byte(args[i]), 0)
		sp -= uint64(len(b))
		if err := p.emu.MemWrite(sp, b); err != nil {
			return 0, err
		}
		ptrs[i] = sp
	}
	words := []uint64{uint64(len(args))}
	words = append(words, ptrs...)
	// argv NULL, envp NULL, AT_NULL pair
	words = append(words, 0, 0, 0, 0)
	sp = (sp - uint64(len(words))*8) &^ 15
	if _, err := p.MemWrite(sp, words); err != nil {
		return 0, err
	}
	return sp, nil
}

// Run executes the loaded program and returns its exit status.
func (p *Process) Run(ctx context.Context) (int, error) {
	if !p.loaded {
		return -1, ErrNotLoaded
	}
	p.log.InfoContext(ctx, "run", "arch", p.Arch().String(), "entry", hex(p.entry))
	err := p.emu.Start(ctx, p.entry, p.opts.MaxSteps)
	if code, ok := p.ExitCode(); ok {
		p.log.InfoContext(ctx, "exit", "code", code, "steps", p.emu.Steps())
		return code, nil
	}
	if err == nil {
		err = ErrNotExited
	}
	p.log.ErrorContext(ctx, "abort", "error", err, "steps", p.emu.Steps())
	return -1, err
}

func (p *Process) Exit(code int) {
	p.exited = true
	p.exitCode = code
	p.emu.Stop()
}

func (p *Process) ExitCode() (int, bool) {
	return p.exitCode, p.exited
}

func (p *Process) AddHook(typ emulator.HookType, callback any, data any) (HookHandler, error) {
	switch typ {
	case emulator.HOOK_TYPE_INTR:
		cb, ok := callback.(InterruptCallback)
		if !ok {
			fn, ok := callback.(func(Context, uint64, any) HookResult)
			if !ok {
				return nil, emulator.ErrHookInvalid
			}
			cb = fn
		}
		return hookHandler(p.emu.AddHook(typ, emulator.InterruptCallback(func(emu *emulator.Emulator, intno uint64, data any) bool {
			return cb(&hookContext{p}, intno, data) == HookResult_Done
		}), data))
	case emulator.HOOK_TYPE_CODE:
		cb, ok := callback.(CodeCallback)
		if !ok {
			fn, ok := callback.(func(Context, uint64, uint32, any))
			if !ok {
				return nil, emulator.ErrHookInvalid
			}
			cb = fn
		}
		return hookHandler(p.emu.AddHook(typ, emulator.CodeCallback(func(emu *emulator.Emulator, addr uint64, size uint32, data any) {
			cb(&hookContext{p}, addr, size, data)
		}), data))
	}
	return nil, emulator.ErrHookInvalid
}

func hookHandler(h *emulator.Hook, err error) (HookHandler, error) {
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (p *Process) trace(ctx Context, addr uint64, size uint32, data any) {
	inst, err := p.emu.Memory().Fetch(addr)
	if err != nil {
		return
	}
	p.log.Log(context.Background(), logs.LevelTrace, "exec", "pc", hex(addr), "inst", fmt.Sprintf("%08x", inst))
}

func (p *Process) MemMap(addr, size uint64, prot emulator.MemProt) (Region, error) {
	if size == 0 || addr%PAGE_SIZE != 0 {
		return Region{}, ErrArgumentInvalid
	}
	if size > MAX_MAP_SIZE || addr >= USER_SPACE_END || size > USER_SPACE_END-addr {
		return Region{}, fmt.Errorf("map %#x+%#x: %w", addr, size, ErrNoMemory)
	}
	size = Align(size, PAGE_SIZE)
	if err := p.emu.MemMap(addr, size, prot); err != nil {
		return Region{}, err
	}
	return Region{Addr: addr, Size: size, Prot: prot}, nil
}

func (p *Process) MemUnmap(addr, size uint64) error {
	return p.emu.MemUnmap(addr, size)
}

func (p *Process) MemProtect(addr, size uint64, prot emulator.MemProt) error {
	return p.emu.MemProtect(addr, size, prot)
}

// MapAlloc maps size bytes at the lowest free page-aligned address above MmapBase.
func (p *Process) MapAlloc(size uint64, prot emulator.MemProt) (Region, error) {
	if size == 0 {
		return Region{}, ErrArgumentInvalid
	}
	if size > MAX_MAP_SIZE {
		return Region{}, fmt.Errorf("alloc %#x: %w", size, ErrNoMemory)
	}
	size = Align(size, PAGE_SIZE)
	addr := p.opts.MmapBase
	for _, seg := range p.emu.Memory().Segments() {
		if seg.End() <= addr {
			continue
		}
		if seg.Start >= addr+size {
			break
		}
		addr = Align(seg.End(), PAGE_SIZE)
	}
	return p.MemMap(addr, size, prot)
}

func (p *Process) MapFree(addr, size uint64) error {
	if addr%PAGE_SIZE != 0 || size == 0 {
		return ErrArgumentInvalid
	}
	return p.emu.MemUnmap(addr, Align(size, PAGE_SIZE))
}

// MemWrite stores v packed in little-endian order, as encoding/binary lays it out.
func (p *Process) MemWrite(addr uint64, v any) (int, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return 0, err
	}
	if err := p.emu.MemWrite(addr, buf.Bytes()); err != nil {
		return 0, err
	}
	return buf.Len(), nil
}

// MemExtract decodes guest memory into v. Struct fields must be exported.
func (p *Process) MemExtract(addr uint64, v any) error {
	size := binary.Size(v)
	if size < 0 {
		return ErrArgumentInvalid
	}
	data, err := p.emu.MemRead(addr, uint64(size))
	if err != nil {
		return err
	}
	return binary.Read(bytes.NewReader(data), binary.LittleEndian, v)
}

func (p *Process) GetFile(fd int) (File, error) {
	p.rw.RLock()
	defer p.rw.RUnlock()
	f, ok := p.files[fd]
	if !ok {
		return nil, ErrFileNotFound
	}
	return f, nil
}

// AddFile installs f at the lowest unused descriptor.
func (p *Process) AddFile(f File) int {
	p.rw.Lock()
	defer p.rw.Unlock()
	fd := 0
	for {
		if _, ok := p.files[fd]; !ok {
			break
		}
		fd++
	}
	p.files[fd] = f
	return fd
}

func (p *Process) CloseFile(fd int) error {
	p.rw.Lock()
	f, ok := p.files[fd]
	delete(p.files, fd)
	p.rw.Unlock()
	if !ok {
		return ErrFileNotFound
	}
	if fd <= 2 {
		return nil
	}
	if c, ok := f.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type hookContext struct {
	p *Process
}

func (ctx *hookContext) RegRead(reg int) (uint64, error) {
	return ctx.p.emu.RegRead(reg)
}

func (ctx *hookContext) RegReadBatch(regs ...int) ([]uint64, error) {
	return ctx.p.emu.RegReadBatch(regs...)
}

func (ctx *hookContext) RegWrite(reg int, val uint64) error {
	return ctx.p.emu.RegWrite(reg, val)
}

func (ctx *hookContext) ToPointer(addr uint64) emulator.Pointer {
	return ctx.p.emu.ToPointer(addr)
}

// TaskID of the only thread, which Linux numbers like the process.
func (ctx *hookContext) TaskID() int {
	return os.Getpid()
}

func (ctx *hookContext) Debugger() Debugger {
	return ctx.p
}

func hex(v uint64) string {
	return fmt.Sprintf("%#x", v)
}
