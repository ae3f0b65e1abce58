// Package vm is the register interpreter. It owns the register file, the
// frame and handler stacks and the main dispatch loop, and hands every CALL
// to the JIT engine before pushing an interpreted frame.
package vm

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/colorfulnotion/bpvm/builtins"
	"github.com/colorfulnotion/bpvm/bytecode"
	"github.com/colorfulnotion/bpvm/ffi"
	"github.com/colorfulnotion/bpvm/gc"
	"github.com/colorfulnotion/bpvm/jit"
	"github.com/colorfulnotion/bpvm/log"
	"github.com/colorfulnotion/bpvm/value"
	"github.com/colorfulnotion/bpvm/vmerrors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMaxFrames   = 256
	DefaultMaxHandlers = 64

	// ExitInterrupted is the exit code used when the run context is cancelled.
	ExitInterrupted = 130
)

// Dispatch selects how the loop maps an opcode to its handler.
type Dispatch uint8

const (
	DispatchTable Dispatch = iota
	DispatchSwitch
)

func (d Dispatch) String() string {
	if d == DispatchSwitch {
		return "switch"
	}
	return "table"
}

func ParseDispatch(s string) (Dispatch, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "table":
		return DispatchTable, nil
	case "switch":
		return DispatchSwitch, nil
	}
	return DispatchTable, fmt.Errorf("unknown dispatch %q (want table or switch)", s)
}

type Config struct {
	MaxFrames        int
	MaxHandlers      int
	InitialRegisters int
	Dispatch         Dispatch
	GCThreshold      int
}

func DefaultConfig() Config {
	return Config{
		MaxFrames:        DefaultMaxFrames,
		MaxHandlers:      DefaultMaxHandlers,
		InitialRegisters: DefaultInitialRegisters,
		Dispatch:         DispatchTable,
		GCThreshold:      gc.MinThreshold,
	}
}

// Frame is one activation. IP is only meaningful for suspended frames; the
// active frame's ip lives in the VM.
type Frame struct {
	FnIdx     uint32
	Fn        *bytecode.Function
	IP        int
	RegBase   int
	ReturnReg uint8
}

// TryHandler is one active try region.
type TryHandler struct {
	CatchAddr   uint32
	FinallyAddr uint32
	ExcReg      uint8
	FrameIdx    int
	RegBase     int
}

// FatalError is an engine-invariant violation. Err wraps a vmerrors sentinel.
type FatalError struct {
	Err    error
	Func   string
	PC     int
	Opcode string
	Depth  int
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s+0x%04x %s (depth %d): %v", e.Func, e.PC, e.Opcode, e.Depth, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// TraceEvent describes the instruction about to execute.
type TraceEvent struct {
	Step  uint64
	Depth int
	FnIdx uint32
	Func  string
	PC    int
	Text  string
}

type Option func(*VM)

func WithBuiltins(d builtins.Dispatcher) Option { return func(vm *VM) { vm.builtins = d } }
func WithFFI(s ffi.Service) Option              { return func(vm *VM) { vm.ffi = s } }
func WithHeap(h *gc.Heap) Option                { return func(vm *VM) { vm.heap = h } }

// WithJIT attaches a JIT engine. Without one every call is interpreted.
func WithJIT(e *jit.Engine) Option { return func(vm *VM) { vm.jit = e } }

type VM struct {
	mod      *bytecode.Module
	cfg      Config
	heap     *gc.Heap
	builtins builtins.Dispatcher
	ffi      ffi.Service
	jit      *jit.Engine
	tracer   trace.Tracer
	onStep   func(TraceEvent)

	regs     *RegisterFile
	frames   []Frame
	handlers []TryHandler

	// active frame
	fnIdx   uint32
	fn      *bytecode.Function
	code    []byte
	ip      int
	pc      int
	regBase int
	regsTop int

	highWater int
	steps     uint64
	started   bool
	done      bool
	result    int
	ctx       context.Context
	stopCtx   func() bool

	exiting  atomic.Bool
	exitCode atomic.Int64

	exec func(op byte, ops []byte) error
}

// New prepares a VM for the module's entry function. The entry must be
// register bytecode.
func New(m *bytecode.Module, cfg Config, opts ...Option) (*VM, error) {
	entry, err := m.EntryFunction()
	if err != nil {
		return nil, err
	}
	if m.Legacy || entry.Format != bytecode.FormatRegister {
		return nil, fmt.Errorf("entry %s is %s bytecode: %w", entry.Name, entry.Format, vmerrors.ErrENotRegisterFormat)
	}
	def := DefaultConfig()
	if cfg.MaxFrames <= 0 {
		cfg.MaxFrames = def.MaxFrames
	}
	if cfg.MaxHandlers <= 0 {
		cfg.MaxHandlers = def.MaxHandlers
	}
	if cfg.InitialRegisters <= 0 {
		cfg.InitialRegisters = def.InitialRegisters
	}
	vm := &VM{
		mod:    m,
		cfg:    cfg,
		tracer: otel.Tracer("bpvm/vm"),
		regs:   NewRegisterFile(cfg.InitialRegisters),
		frames: make([]Frame, 0, cfg.MaxFrames),
	}
	for _, opt := range opts {
		opt(vm)
	}
	if vm.heap == nil {
		vm.heap = gc.NewHeap(cfg.GCThreshold)
	}
	if vm.builtins == nil {
		vm.builtins = builtins.NewRegistry(vm.heap)
	}
	if r, ok := vm.builtins.(interface{ SetExit(builtins.ExitFunc) }); ok {
		r.SetExit(vm.RequestExit)
	}
	if cfg.Dispatch == DispatchSwitch {
		vm.exec = vm.execSwitch
	} else {
		vm.exec = vm.execTable
	}
	return vm, nil
}

func (vm *VM) Module() *bytecode.Module { return vm.mod }
func (vm *VM) Heap() *gc.Heap           { return vm.heap }
func (vm *VM) JIT() *jit.Engine         { return vm.jit }
func (vm *VM) Steps() uint64            { return vm.steps }
func (vm *VM) HighWater() int           { return vm.highWater }
func (vm *VM) RegsTop() int             { return vm.regsTop }
func (vm *VM) Depth() int               { return len(vm.frames) }
func (vm *VM) Done() bool               { return vm.done }
func (vm *VM) Result() int              { return vm.result }

// SetTracer installs a hook called before every instruction.
func (vm *VM) SetTracer(f func(TraceEvent)) { vm.onStep = f }

// RequestExit asks the loop to stop with code at the next dispatch cycle. It
// is safe to call from another goroutine.
func (vm *VM) RequestExit(code int) {
	vm.exitCode.Store(int64(code))
	vm.exiting.Store(true)
}

// Register returns register off of the active frame.
func (vm *VM) Register(off int) value.Value { return vm.regs.Get(vm.regBase, off) }

// Registers returns a copy of the active frame's window.
func (vm *VM) Registers() []value.Value {
	if vm.fn == nil {
		return nil
	}
	return append([]value.Value(nil), vm.regs.Window(vm.regBase, int(vm.fn.RegCount))...)
}

// Start sets up the entry frame. Run calls it; the debugger calls it before
// stepping.
func (vm *VM) Start(ctx context.Context) error {
	if vm.started {
		return nil
	}
	entry, _ := vm.mod.EntryFunction()
	rc := int(entry.RegCount)
	if err := vm.regs.Ensure(rc); err != nil {
		return err
	}
	vm.ctx = ctx
	vm.stopCtx = context.AfterFunc(ctx, func() { vm.RequestExit(ExitInterrupted) })
	vm.frames = append(vm.frames[:0], Frame{FnIdx: vm.mod.Entry, Fn: entry})
	vm.fnIdx, vm.fn, vm.code = vm.mod.Entry, entry, entry.Code
	vm.ip, vm.regBase, vm.regsTop = 0, 0, rc
	vm.highWater = rc
	vm.started = true
	log.Debug(log.VMModule, "start", "entry", entry.Name, "regs", rc, "dispatch", vm.cfg.Dispatch)
	return nil
}

// Run executes the module to completion and returns the process exit code.
func (vm *VM) Run(ctx context.Context) (int, error) {
	ctx, span := vm.tracer.Start(ctx, "vm.run")
	defer span.End()

	if err := vm.Start(ctx); err != nil {
		return 1, err
	}
	for !vm.done {
		if err := vm.Step(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, vmerrors.GetErrorName(err))
			return 1, err
		}
	}
	span.SetAttributes(
		attribute.String("entry", vm.frameName()),
		attribute.Int("exit_code", vm.result),
		attribute.Int64("steps", int64(vm.steps)),
	)
	log.Debug(log.VMModule, "run finished", "exit", vm.result, "steps", vm.steps, "highWater", vm.highWater)
	return vm.result, nil
}

func (vm *VM) frameName() string {
	if entry, err := vm.mod.EntryFunction(); err == nil {
		return entry.Name
	}
	return ""
}

// Step runs one dispatch cycle: GC safepoint, exit poll, implicit return or
// one instruction.
func (vm *VM) Step() error {
	if vm.done {
		return nil
	}
	if !vm.started {
		if err := vm.Start(context.Background()); err != nil {
			return err
		}
	}
	if vm.heap.ShouldCollect() {
		vm.heap.Collect(vm.regs.Window(0, vm.regsTop))
	}
	if vm.exiting.Load() {
		vm.finish(int(vm.exitCode.Load()))
		return nil
	}
	if vm.ip >= len(vm.code) {
		vm.implicitReturn()
		return nil
	}

	vm.steps++
	vm.pc = vm.ip
	op := vm.code[vm.pc]
	width := bytecode.OperandLength(op)
	if width < 0 {
		return vm.fatal(op, fmt.Errorf("opcode 0x%02x: %w", op, vmerrors.ErrEBadOpcode))
	}
	end := vm.pc + 1 + width
	if end > len(vm.code) {
		return vm.fatal(op, fmt.Errorf("%s needs %d operand bytes: %w", bytecode.Name(op), width, vmerrors.ErrLTruncated))
	}
	if vm.onStep != nil {
		vm.onStep(vm.traceEvent())
	}
	ops := vm.code[vm.pc+1 : end]
	vm.ip = end
	if err := vm.exec(op, ops); err != nil {
		return vm.fatal(op, err)
	}
	return nil
}

func (vm *VM) traceEvent() TraceEvent {
	text := bytecode.Name(vm.code[vm.pc])
	if in, err := bytecode.DecodeAt(vm.code, vm.pc); err == nil {
		if ops := bytecode.FormatInstruction(in, vm.fn, vm.mod); ops != "" {
			text += " " + ops
		}
	}
	return TraceEvent{Step: vm.steps, Depth: len(vm.frames), FnIdx: vm.fnIdx, Func: vm.fn.Name, PC: vm.pc, Text: text}
}

func (vm *VM) finish(code int) {
	vm.done = true
	vm.result = code
	if vm.stopCtx != nil {
		vm.stopCtx()
	}
}

func (vm *VM) fatal(op byte, err error) error {
	fe := &FatalError{Err: err, Func: vm.fn.Name, PC: vm.pc, Opcode: bytecode.Name(op), Depth: len(vm.frames)}
	log.Debug(log.VMModule, "fatal", "err", fe, "frames", vm.FrameTree())
	vm.finish(1)
	return fe
}

func (vm *VM) reg(r byte) value.Value { return vm.regs.vals[vm.regBase+int(r)] }

func (vm *VM) setReg(r byte, v value.Value) { vm.regs.vals[vm.regBase+int(r)] = v }

// window returns n registers of the active frame starting at base. Counts
// wider than the register slack grow the file first.
func (vm *VM) window(base byte, n int) ([]value.Value, error) {
	start := vm.regBase + int(base)
	if err := vm.regs.Ensure(start + n); err != nil {
		return nil, err
	}
	return vm.regs.Window(start, n), nil
}
