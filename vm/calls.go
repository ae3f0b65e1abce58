package vm

import (
	"fmt"

	"github.com/colorfulnotion/bpvm/bytecode"
	"github.com/colorfulnotion/bpvm/log"
	"github.com/colorfulnotion/bpvm/value"
	"github.com/colorfulnotion/bpvm/vmerrors"
)

func (vm *VM) function(idx uint32) (*bytecode.Function, error) {
	if int(idx) >= len(vm.mod.Functions) {
		return nil, fmt.Errorf("function %d of %d: %w", idx, len(vm.mod.Functions), vmerrors.ErrEBadFunctionIndex)
	}
	fn := vm.mod.Functions[idx]
	if fn.Format != bytecode.FormatRegister {
		return nil, fmt.Errorf("%s is %s bytecode: %w", fn.Name, fn.Format, vmerrors.ErrENotRegisterFormat)
	}
	return fn, nil
}

// pushFrame activates callee with args in its first registers. The callee's
// window starts at the current regsTop.
func (vm *VM) pushFrame(idx uint32, callee *bytecode.Function, dst byte, args []value.Value) error {
	if len(vm.frames) >= vm.cfg.MaxFrames {
		return fmt.Errorf("calling %s at depth %d: %w", callee.Name, len(vm.frames), vmerrors.ErrEStackOverflow)
	}
	rc := int(callee.RegCount)
	if len(args) > rc {
		return fmt.Errorf("%d args to %s with %d registers: %w", len(args), callee.Name, rc, vmerrors.ErrETypeMismatch)
	}
	base := vm.regsTop
	if err := vm.regs.Ensure(base + rc); err != nil {
		return err
	}
	win := vm.regs.Window(base, rc)
	n := copy(win, args)
	for i := n; i < rc; i++ {
		win[i] = value.Null()
	}

	vm.frames[len(vm.frames)-1].IP = vm.ip
	vm.frames = append(vm.frames, Frame{FnIdx: idx, Fn: callee, RegBase: base, ReturnReg: dst})
	vm.fnIdx, vm.fn, vm.code = idx, callee, callee.Code
	vm.ip, vm.regBase, vm.regsTop = 0, base, base+rc
	if vm.regsTop > vm.highWater {
		vm.highWater = vm.regsTop
	}
	return nil
}

// popFrame discards the active frame and resumes its caller. Handlers
// registered by the discarded frame go with it.
func (vm *VM) popFrame() Frame {
	top := vm.frames[len(vm.frames)-1]
	vm.frames = vm.frames[:len(vm.frames)-1]
	for len(vm.handlers) > 0 && vm.handlers[len(vm.handlers)-1].FrameIdx >= len(vm.frames) {
		vm.handlers = vm.handlers[:len(vm.handlers)-1]
	}
	caller := vm.frames[len(vm.frames)-1]
	vm.fnIdx, vm.fn, vm.code = caller.FnIdx, caller.Fn, caller.Fn.Code
	vm.ip, vm.regBase = caller.IP, caller.RegBase
	vm.regsTop = caller.RegBase + int(caller.Fn.RegCount)
	return top
}

// implicitReturn runs when ip passes the end of the body. The caller's
// destination register is left untouched.
func (vm *VM) implicitReturn() {
	if len(vm.frames) == 1 {
		code := 0
		if vm.exiting.Load() {
			code = int(vm.exitCode.Load())
		}
		vm.finish(code)
		return
	}
	vm.popFrame()
}

func opCall(vm *VM, ops []byte) error {
	dst, idx, base, argc := ops[0], u32(ops, 1), ops[5], int(ops[6])
	callee, err := vm.function(idx)
	if err != nil {
		return err
	}
	if len(vm.frames) >= vm.cfg.MaxFrames {
		return fmt.Errorf("calling %s at depth %d: %w", callee.Name, len(vm.frames), vmerrors.ErrEStackOverflow)
	}
	args, err := vm.window(base, argc)
	if err != nil {
		return err
	}
	if vm.jit != nil {
		rv, handled, err := vm.jit.OnCall(vm.ctx, idx, callee, args, len(vm.frames), vm.cfg.MaxFrames)
		if err != nil {
			return err
		}
		if handled {
			vm.setReg(dst, rv)
			return nil
		}
	}
	return vm.pushFrame(idx, callee, dst, args)
}

func opRet(vm *VM, ops []byte) error {
	rv := vm.reg(ops[0])
	if len(vm.frames) == 1 {
		code := int(rv.I)
		if vm.exiting.Load() {
			code = int(vm.exitCode.Load())
		}
		vm.finish(code)
		return nil
	}
	top := vm.popFrame()
	vm.setReg(top.ReturnReg, rv)
	return nil
}

func (vm *VM) argsCopy(base byte, argc int) ([]value.Value, error) {
	w, err := vm.window(base, argc)
	if err != nil {
		return nil, err
	}
	return append([]value.Value(nil), w...), nil
}

func opCallBuiltin(vm *VM, ops []byte) error {
	dst, id := ops[0], u16(ops, 1)
	args, err := vm.argsCopy(ops[3], int(ops[4]))
	if err != nil {
		return err
	}
	rv, err := vm.builtins.Call(id, args)
	if err != nil {
		return err
	}
	vm.setReg(dst, rv)
	return nil
}

// opFFICall forwards to the attached external service. Without one every
// extern id is unbound.
func opFFICall(vm *VM, ops []byte) error {
	dst, id := ops[0], u16(ops, 1)
	if vm.ffi == nil {
		return fmt.Errorf("extern %d with no ffi service attached: %w", id, vmerrors.ErrEBadExtern)
	}
	args, err := vm.argsCopy(ops[3], int(ops[4]))
	if err != nil {
		return err
	}
	rv, err := vm.ffi.Invoke(id, args)
	if err != nil {
		return err
	}
	vm.setReg(dst, rv)
	return nil
}

// resolveMethod finds method in classID's table, walking up the parents.
func (vm *VM) resolveMethod(classID int32, method uint16) (uint32, error) {
	for id, hops := classID, 0; id >= 0 && hops <= len(vm.mod.Classes); hops++ {
		if int(id) >= len(vm.mod.Classes) {
			break
		}
		ct := vm.mod.Classes[id]
		if int(method) < len(ct.Methods) {
			return ct.Methods[method], nil
		}
		id = ct.Parent
	}
	return 0, fmt.Errorf("method %d on class %d: %w", method, classID, vmerrors.ErrEBadMethod)
}

func (vm *VM) invokeMethod(fnIdx uint32, dst byte, recv value.Value, base byte, argc int) error {
	callee, err := vm.function(fnIdx)
	if err != nil {
		return err
	}
	rest, err := vm.window(base, argc)
	if err != nil {
		return err
	}
	args := make([]value.Value, 0, argc+1)
	args = append(append(args, recv), rest...)
	return vm.pushFrame(fnIdx, callee, dst, args)
}

// opMethodCall calls a method with the receiver in r0 and the arguments
// after it.
func opMethodCall(vm *VM, ops []byte) error {
	dst, recv, method := ops[0], vm.reg(ops[1]), u16(ops, 2)
	if recv.Kind != value.KindClass {
		return typeMismatch(bytecode.METHOD_CALL, recv)
	}
	fnIdx, err := vm.resolveMethod(int32(recv.Class().ClassID), method)
	if err != nil {
		return err
	}
	return vm.invokeMethod(fnIdx, dst, recv, ops[4], int(ops[5]))
}

// opSuperCall resolves through the parent of the receiver in r0.
func opSuperCall(vm *VM, ops []byte) error {
	dst, method := ops[0], u16(ops, 1)
	recv := vm.reg(0)
	if recv.Kind != value.KindClass {
		return typeMismatch(bytecode.SUPER_CALL, recv)
	}
	id := recv.Class().ClassID
	parent := int32(-1)
	if int(id) < len(vm.mod.Classes) {
		parent = vm.mod.Classes[id].Parent
	}
	if parent < 0 {
		return fmt.Errorf("super of class %d: %w", id, vmerrors.ErrEBadMethod)
	}
	fnIdx, err := vm.resolveMethod(parent, method)
	if err != nil {
		return err
	}
	return vm.invokeMethod(fnIdx, dst, recv, ops[3], int(ops[4]))
}

func opTryBegin(vm *VM, ops []byte) error {
	if len(vm.handlers) >= vm.cfg.MaxHandlers {
		return fmt.Errorf("%d handlers: %w", len(vm.handlers), vmerrors.ErrEHandlerOverflow)
	}
	vm.handlers = append(vm.handlers, TryHandler{
		CatchAddr:   u32(ops, 0),
		FinallyAddr: u32(ops, 4),
		ExcReg:      ops[8],
		FrameIdx:    len(vm.frames) - 1,
		RegBase:     vm.regBase,
	})
	return nil
}

func opTryEnd(vm *VM, ops []byte) error {
	if n := len(vm.handlers); n > 0 {
		vm.handlers = vm.handlers[:n-1]
	}
	return nil
}

// opThrow unwinds to the innermost handler. finally_addr is not consulted.
func opThrow(vm *VM, ops []byte) error {
	exc := vm.reg(ops[0])
	n := len(vm.handlers)
	if n == 0 {
		return fmt.Errorf("unhandled exception: %s: %w", exc, vmerrors.ErrEUnhandledException)
	}
	h := vm.handlers[n-1]
	vm.handlers = vm.handlers[:n-1]
	unwound := len(vm.frames) - (h.FrameIdx + 1)
	vm.frames = vm.frames[:h.FrameIdx+1]
	f := vm.frames[h.FrameIdx]
	vm.fnIdx, vm.fn, vm.code = f.FnIdx, f.Fn, f.Fn.Code
	vm.regBase = h.RegBase
	vm.regsTop = h.RegBase + int(f.Fn.RegCount)
	vm.setReg(h.ExcReg, exc)
	vm.ip = int(h.CatchAddr)
	if unwound > 0 {
		log.Trace(log.VMModule, "unwound", "frames", unwound, "into", f.Fn.Name, "catch", h.CatchAddr)
	}
	return nil
}
