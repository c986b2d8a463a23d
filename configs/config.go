package configs

import (
	"github.com/wnxd/greet-linux/debugger"
)

const Schema = `
stack_top?: int & >0
stack_size?: int & >0
mmap_base?: int & >0
max_steps?: int & >=0
log_level?: "trace" | "debug" | "info" | "warn" | "error"
trace?: bool
args?: [...string]
`

// Config holds the runner settings.
type Config struct {
	StackTop  uint64
	StackSize uint64
	MmapBase  uint64
	MaxSteps  uint64
	LogLevel  string
	Trace     bool
	Args      []string
}

func Default() Config {
	return Config{
		StackTop:  debugger.DefaultStackTop,
		StackSize: debugger.DefaultStackSize,
		MmapBase:  debugger.DefaultMmapBase,
		MaxSteps:  1 << 24,
		LogLevel:  "info",
	}
}

// Load overlays the files on Default.
func Load(filePaths ...string) (Config, error) {
	cfg := Default()
	if len(filePaths) == 0 {
		return cfg, nil
	}
	loader := NewLoader(filePaths, Schema)
	if err := assign(loader, "stack_top", &cfg.StackTop); err != nil {
		return cfg, err
	}
	if err := assign(loader, "stack_size", &cfg.StackSize); err != nil {
		return cfg, err
	}
	if err := assign(loader, "mmap_base", &cfg.MmapBase); err != nil {
		return cfg, err
	}
	if err := assign(loader, "max_steps", &cfg.MaxSteps); err != nil {
		return cfg, err
	}
	if err := assign(loader, "log_level", &cfg.LogLevel); err != nil {
		return cfg, err
	}
	if err := assign(loader, "trace", &cfg.Trace); err != nil {
		return cfg, err
	}
	if err := assign(loader, "args", &cfg.Args); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func assign[T any](loader Loader, path string, target *T) error {
	v, ok, err := First[T](loader, path)
	if err != nil {
		return err
	}
	if ok {
		*target = v
	}
	return nil
}

// Options maps the settings onto a process configuration.
func (c Config) Options() debugger.Options {
	return debugger.Options{
		Args:      c.Args,
		StackTop:  c.StackTop,
		StackSize: c.StackSize,
		MmapBase:  c.MmapBase,
		MaxSteps:  c.MaxSteps,
		Trace:     c.Trace,
	}
}
