package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/wnxd/greet-linux/configs"
	"github.com/wnxd/greet-linux/debugger"
	"github.com/wnxd/greet-linux/emulator"
	"github.com/wnxd/greet-linux/greeting"
	"github.com/wnxd/greet-linux/internal/logs"
	"github.com/wnxd/greet-linux/kernel"
	"github.com/wnxd/greet-linux/loader"
)

// exitFailure reports a runner failure, as opposed to a guest exit status.
const exitFailure = 125

func main() {
	var configPath = flag.String("config", "", "CUE configuration file")
	var maxSteps = flag.Uint64("max-steps", 0, "instruction budget (0 keeps the configured value)")
	var logLevel = flag.String("log-level", "", "log level: trace, debug, info, warn or error")
	var trace = flag.Bool("trace", false, "log every executed instruction (lowers the log level to trace)")
	var dump = flag.String("dump", "", "write the built-in greeting executable to this path and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [program.elf [args...]]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	var paths []string
	if *configPath != "" {
		paths = append(paths, *configPath)
	}
	cfg, err := configs.Load(paths...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(exitFailure)
	}
	if *maxSteps != 0 {
		cfg.MaxSteps = *maxSteps
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *trace {
		cfg.Trace = true
	}
	level, err := logs.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log level: %v\n", err)
		os.Exit(exitFailure)
	}
	if cfg.Trace {
		level = min(level, logs.LevelTrace)
	}
	logs.SetLevel(level)
	logger := logs.New(os.Stderr)

	if *dump != "" {
		if err := dumpGreeting(*dump); err != nil {
			logger.Error("dump", "path", *dump, "error", err)
			os.Exit(exitFailure)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code, err := run(ctx, cfg, logger, flag.Args())
	stop()
	if err != nil {
		logger.Error("run", "error", err)
		os.Exit(exitFailure)
	}
	os.Exit(code & 0xff)
}

func dumpGreeting(path string) error {
	b, err := greeting.Executable()
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o755)
}

func run(ctx context.Context, cfg configs.Config, logger *slog.Logger, args []string) (int, error) {
	var (
		img  *loader.Image
		name = "greeting"
		err  error
	)
	if len(args) > 0 {
		name = args[0]
		img, err = loader.Open(name)
	} else {
		var b []byte
		if b, err = greeting.Executable(); err == nil {
			img, err = loader.Read(bytes.NewReader(b))
		}
	}
	if err != nil {
		return -1, err
	}

	opts := cfg.Options()
	if len(opts.Args) == 0 {
		opts.Args = append([]string{name}, args[min(1, len(args)):]...)
	}
	opts.Stdin = os.Stdin
	opts.Stdout = os.Stdout
	opts.Stderr = os.Stderr
	opts.Logger = logger
	p, err := debugger.New(emulator.ARCH_RISCV64, opts)
	if err != nil {
		return -1, err
	}
	k, err := kernel.NewKernel(p)
	if err != nil {
		return -1, err
	}
	defer k.Close()
	if err := p.Load(img); err != nil {
		return -1, err
	}
	return p.Run(logs.WithProgram(ctx, name))
}
