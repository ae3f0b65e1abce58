package main

import (
	"fmt"
	"io"

	"github.com/colorfulnotion/bpvm/builtins"
	"github.com/colorfulnotion/bpvm/bytecode"
	"github.com/colorfulnotion/bpvm/ffi"
	"github.com/colorfulnotion/bpvm/gc"
	"github.com/colorfulnotion/bpvm/jit"
	log "github.com/colorfulnotion/bpvm/log"
	"github.com/colorfulnotion/bpvm/vm"
	"golang.org/x/exp/slices"
)

// session is one VM wired to its heap, builtins, host externs and JIT.
type session struct {
	mod      *bytecode.Module
	heap     *gc.Heap
	builtins *builtins.Registry
	engine   *jit.Engine
	vm       *vm.VM
}

func newSession(m *bytecode.Module, vcfg vm.Config, jcfg jit.Config, stdout io.Writer, argv []string) (*session, error) {
	s := &session{mod: m, heap: gc.NewHeap(vcfg.GCThreshold)}
	s.builtins = builtins.NewRegistry(s.heap, builtins.WithStdout(stdout))
	s.engine = jit.NewEngine(jcfg)
	v, err := vm.New(m, vcfg,
		vm.WithHeap(s.heap),
		vm.WithBuiltins(s.builtins),
		vm.WithFFI(ffi.NewHostRegistry(s.heap, argv)),
		vm.WithJIT(s.engine),
	)
	if err != nil {
		s.engine.Close()
		return nil, err
	}
	s.vm = v
	log.Debug(log.CLIModule, "session", "functions", len(m.Functions), "jit", jcfg.Enabled, "native", s.engine.Native())
	return s, nil
}

func (s *session) Close() error { return s.engine.Close() }

func loadModule(path string) (*bytecode.Module, error) {
	m, err := bytecode.ReadFile(path)
	if err != nil {
		return nil, err
	}
	log.Debug(log.LoaderModule, "loaded", "path", path, "functions", len(m.Functions), "strings", len(m.Strings), "legacy", m.Legacy)
	return m, nil
}

// functionName is the name of fnIdx, or its index when out of range.
func functionName(m *bytecode.Module, fnIdx uint32) string {
	if int(fnIdx) < len(m.Functions) {
		return m.Functions[fnIdx].Name
	}
	return fmt.Sprintf("fn#%d", fnIdx)
}

// printStats writes the JIT, GC and builtin counters of a finished session.
func printStats(w io.Writer, s *session) {
	st := s.engine.Stats()
	fmt.Fprintf(w, "steps=%d highWater=%d\n", s.vm.Steps(), s.vm.HighWater())
	fmt.Fprintf(w, "jit: executions=%d native=%d interp=%d compiled=%d failed=%d\n",
		st.TotalExecutions, st.NativeExecutions, st.InterpExecutions, st.TotalCompilations, st.FailedCompilations)
	for _, idx := range sortedFunctions(s.engine) {
		pr := s.engine.Profiler().Profile(idx)
		fmt.Fprintf(w, "  %-24s calls=%-8d state=%-9s compile=%s\n", functionName(s.mod, idx), pr.Calls, pr.State, s.engine.CompileTime[idx])
	}
	if cc := s.engine.Cache(); cc != nil {
		fmt.Fprintf(w, "code cache: %d/%d bytes gen=%d\n", cc.Used(), cc.Size(), cc.Generation())
	}
	gs := s.heap.Stats()
	fmt.Fprintf(w, "gc: collections=%d freed=%d live=%d objects/%d bytes\n", gs.Collections, gs.Freed, gs.LiveObjects, gs.LiveBytes)
	calls := s.builtins.Calls()
	ids := make([]uint16, 0, len(calls))
	for id := range calls {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "  builtin %-14s %d\n", s.builtins.Name(id), calls[id])
	}
}

func sortedFunctions(e *jit.Engine) []uint32 {
	fns := e.Profiler().Functions()
	slices.Sort(fns)
	return fns
}
