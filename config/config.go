// Package config handles bpvm.toml run configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/colorfulnotion/bpvm/gc"
	"github.com/colorfulnotion/bpvm/jit"
	"github.com/colorfulnotion/bpvm/log"
	"github.com/colorfulnotion/bpvm/vm"
)

// Config is the whole file. Missing keys keep their Default values.
type Config struct {
	VM  VMConfig  `toml:"vm"`
	JIT JITConfig `toml:"jit"`
	Log LogConfig `toml:"log"`
}

type VMConfig struct {
	MaxFrames        int    `toml:"max_frames"`
	MaxHandlers      int    `toml:"max_handlers"`
	InitialRegisters int    `toml:"initial_registers"`
	Dispatch         string `toml:"dispatch"`
	GCThresholdBytes int    `toml:"gc_threshold_bytes"`
}

type JITConfig struct {
	Enabled        bool `toml:"enabled"`
	Threshold      int  `toml:"threshold"`
	CodeCacheBytes int  `toml:"code_cache_bytes"`
}

type LogConfig struct {
	Level   string `toml:"level"`
	Modules string `toml:"modules"` // comma separated, enables Trace/Debug for them
}

func Default() Config {
	return Config{
		VM: VMConfig{
			MaxFrames:        vm.DefaultMaxFrames,
			MaxHandlers:      vm.DefaultMaxHandlers,
			InitialRegisters: vm.DefaultInitialRegisters,
			Dispatch:         vm.DispatchTable.String(),
			GCThresholdBytes: gc.MinThreshold,
		},
		JIT: JITConfig{
			Enabled:        true,
			Threshold:      jit.DefaultThreshold,
			CodeCacheBytes: jit.DefaultCodeCacheBytes,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. An empty path returns Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("cannot read %s: %w", path, err)
	}
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		log.Warn(log.CLIModule, "unknown config keys ignored", "file", path, "keys", fmt.Sprint(undec))
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.VM.MaxFrames < 1 {
		errs = append(errs, fmt.Errorf("vm.max_frames must be positive, got %d", c.VM.MaxFrames))
	}
	if c.VM.MaxHandlers < 1 {
		errs = append(errs, fmt.Errorf("vm.max_handlers must be positive, got %d", c.VM.MaxHandlers))
	}
	if c.VM.InitialRegisters < 1 || c.VM.InitialRegisters > vm.MaxRegisters {
		errs = append(errs, fmt.Errorf("vm.initial_registers out of range: %d", c.VM.InitialRegisters))
	}
	if _, err := vm.ParseDispatch(c.VM.Dispatch); err != nil {
		errs = append(errs, fmt.Errorf("vm.dispatch: %w", err))
	}
	if c.JIT.Threshold < 1 {
		errs = append(errs, fmt.Errorf("jit.threshold must be at least 1, got %d", c.JIT.Threshold))
	}
	if c.JIT.CodeCacheBytes < 4096 {
		errs = append(errs, fmt.Errorf("jit.code_cache_bytes too small: %d", c.JIT.CodeCacheBytes))
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

// VMConfig maps the [vm] section. Validate has already checked dispatch.
func (c Config) VMConfig() vm.Config {
	d, _ := vm.ParseDispatch(c.VM.Dispatch)
	return vm.Config{
		MaxFrames:        c.VM.MaxFrames,
		MaxHandlers:      c.VM.MaxHandlers,
		InitialRegisters: c.VM.InitialRegisters,
		Dispatch:         d,
		GCThreshold:      c.VM.GCThresholdBytes,
	}
}

func (c Config) JITConfig() jit.Config {
	return jit.Config{
		Enabled:    c.JIT.Enabled,
		Threshold:  c.JIT.Threshold,
		CacheBytes: c.JIT.CodeCacheBytes,
	}
}

// Write encodes c as TOML.
func (c Config) Write(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
