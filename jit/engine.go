package jit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/colorfulnotion/bpvm/bytecode"
	"github.com/colorfulnotion/bpvm/log"
	"github.com/colorfulnotion/bpvm/value"
	"github.com/colorfulnotion/bpvm/vmerrors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Config struct {
	Enabled    bool
	Threshold  int
	CacheBytes int
}

func DefaultConfig() Config {
	return Config{Enabled: true, Threshold: DefaultThreshold, CacheBytes: DefaultCodeCacheBytes}
}

// Engine is the second tier. The interpreter hands it every call through
// OnCall; the engine counts, compiles hot functions once and runs their native
// bodies when the arguments allow it.
type Engine struct {
	cfg      Config
	profiler *Profiler
	cache    *CodeCache
	bodies   map[uint32]*CompiledBody
	tracer   trace.Tracer

	// CompileTime accumulates time spent in Compile, keyed by function.
	CompileTime map[uint32]time.Duration
}

// NewEngine never fails: without a code cache every compilation ends Failed
// and execution stays in the interpreter.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		cfg:         cfg,
		profiler:    NewProfiler(cfg.Threshold),
		bodies:      make(map[uint32]*CompiledBody),
		tracer:      otel.Tracer("bpvm/jit"),
		CompileTime: make(map[uint32]time.Duration),
	}
	if cfg.Enabled && nativeSupported {
		cc, err := NewCodeCache(cfg.CacheBytes)
		if err != nil {
			log.Warn(log.JITModule, "native tier unavailable", "err", err)
		} else {
			e.cache = cc
		}
	}
	return e
}

func (e *Engine) Enabled() bool { return e.cfg.Enabled }
func (e *Engine) Native() bool { return e.cache != nil }
func (e *Engine) Profiler() *Profiler { return e.profiler }
func (e *Engine) Stats() Stats { return e.profiler.Stats() }
func (e *Engine) Cache() *CodeCache { return e.cache }

// Body returns the compiled body of fnIdx, if it was compiled successfully.
func (e *Engine) Body(fnIdx uint32) (*CompiledBody, bool) {
	b, ok := e.bodies[fnIdx]
	return b, ok
}

// OnCall records a call to fnIdx with args and runs it natively when a valid
// body exists. frames is the interpreter's current frame count and maxFrames
// its limit; the native body is given the remaining depth as its self-call
// budget. handled is false when the interpreter must execute the call.
func (e *Engine) OnCall(ctx context.Context, fnIdx uint32, fn *bytecode.Function, args []value.Value, frames, maxFrames int) (result value.Value, handled bool, err error) {
	if !e.cfg.Enabled {
		return value.Null(), false, nil
	}
	if e.profiler.RecordCall(fnIdx) == Hot {
		e.compile(ctx, fnIdx, fn)
	}
	entry, gen, ok := e.profiler.nativeEntry(fnIdx)
	if !ok || e.cache == nil || !e.cache.Valid(gen) || frames >= maxFrames || len(args) != int(fn.Arity) {
		e.profiler.countInterp()
		return value.Null(), false, nil
	}
	for _, a := range args {
		if a.Kind != value.KindInt {
			e.profiler.countInterp()
			return value.Null(), false, nil
		}
	}
	body := e.bodies[fnIdx]
	window := make([]int64, WindowSlots(body.RegCount))
	for i, a := range args {
		window[i] = a.I
	}
	window[body.RegCount+1] = int64(maxFrames - (frames + 1))
	r := callNative(entry, window)
	e.profiler.countNative()

	switch window[body.RegCount] {
	case StatusOK:
	case StatusDivByZero:
		return value.Null(), true, fmt.Errorf("%s (native): %w", fn.Name, vmerrors.ErrEDivisionByZero)
	case StatusStackOverflow:
		return value.Null(), true, fmt.Errorf("%s (native): %w", fn.Name, vmerrors.ErrEStackOverflow)
	default:
		return value.Null(), true, fmt.Errorf("%s: native status %d", fn.Name, window[body.RegCount])
	}
	if body.ResultKind == value.KindBool {
		return value.Bool(r != 0), true, nil
	}
	return value.Int(r), true, nil
}

// compile runs once per Hot transition and always leaves the function
// Compiled or Failed.
func (e *Engine) compile(ctx context.Context, fnIdx uint32, fn *bytecode.Function) {
	_, span := e.tracer.Start(ctx, "jit.compile", trace.WithAttributes(
		attribute.String("fn", fn.Name),
		attribute.Int("bytecode_len", len(fn.Code)),
	))
	defer span.End()

	e.profiler.BeginCompile(fnIdx)
	start := time.Now()
	body, err := Compile(fn, fnIdx)
	e.CompileTime[fnIdx] += time.Since(start)
	if err == nil && e.cache == nil {
		err = vmerrors.ErrJUnsupported
	}
	var entry uintptr
	var gen uint64
	if err == nil {
		entry, gen, err = e.cache.Alloc(body.Code)
	}
	if err != nil {
		e.profiler.MarkFailed(fnIdx)
		span.RecordError(err)
		span.SetStatus(codes.Error, vmerrors.GetErrorName(err))
		lvl := log.Debug
		if !errors.Is(err, vmerrors.ErrJUnsupportedOpcode) && !errors.Is(err, vmerrors.ErrJKindMismatch) {
			lvl = log.Warn
		}
		lvl(log.JITModule, "compile failed", "fn", fn.Name, "err", err)
		return
	}
	e.bodies[fnIdx] = body
	e.profiler.MarkCompiled(fnIdx, entry, len(body.Code), gen)
	span.SetAttributes(attribute.Int("native_len", len(body.Code)))
	log.Info(log.JITModule, "function compiled", "fn", fn.Name, "native", len(body.Code), "generation", gen)
}

// Invalidate discards fnIdx's native body; the function is profiled again
// from Cold.
func (e *Engine) Invalidate(fnIdx uint32) {
	gen, _, had := e.profiler.Invalidate(fnIdx)
	delete(e.bodies, fnIdx)
	if had && e.cache != nil {
		e.cache.Release(gen)
	}
}

// Disassemble lists the native body of fnIdx.
func (e *Engine) Disassemble(fnIdx uint32) (string, error) {
	body, ok := e.bodies[fnIdx]
	if !ok {
		return "", fmt.Errorf("function %d has no native body", fnIdx)
	}
	return DisassembleBody(body), nil
}

func (e *Engine) Close() error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Close()
}
