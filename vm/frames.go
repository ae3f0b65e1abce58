package vm

import (
	"fmt"

	"github.com/colorfulnotion/bpvm/value"
	"github.com/xlab/treeprint"
)

// Frames returns a copy of the frame stack, outermost first. The active
// frame's IP is the current ip.
func (vm *VM) Frames() []Frame {
	out := append([]Frame(nil), vm.frames...)
	if n := len(out); n > 0 {
		out[n-1].IP = vm.ip
	}
	return out
}

func (vm *VM) Handlers() []TryHandler {
	return append([]TryHandler(nil), vm.handlers...)
}

// FrameTree renders the frame stack with each frame's live registers and the
// handler stack beside it.
func (vm *VM) FrameTree() string {
	tree := treeprint.NewWithRoot(fmt.Sprintf("vm depth=%d regsTop=%d highWater=%d", len(vm.frames), vm.regsTop, vm.highWater))
	frames := tree.AddBranch("frames")
	for i, f := range vm.Frames() {
		b := frames.AddMetaBranch(i, fmt.Sprintf("%s ip=0x%04x base=%d ret=r%d", f.Fn.Name, f.IP, f.RegBase, f.ReturnReg))
		rc := int(f.Fn.RegCount)
		for r := 0; r < rc && f.RegBase+r < vm.regs.Cap(); r++ {
			if v := vm.regs.Get(f.RegBase, r); v.Kind != value.KindNull {
				b.AddNode(fmt.Sprintf("r%d = %s", r, v))
			}
		}
	}
	if len(vm.handlers) > 0 {
		hs := tree.AddBranch("handlers")
		for i, h := range vm.handlers {
			hs.AddMetaNode(i, fmt.Sprintf("frame=%d catch=0x%04x finally=0x%04x exc=r%d", h.FrameIdx, h.CatchAddr, h.FinallyAddr, h.ExcReg))
		}
	}
	return tree.String()
}
