package jit

import (
	"fmt"
	"sync"

	"github.com/colorfulnotion/bpvm/log"
)

type State uint8

const (
	Cold State = iota
	Warm
	Hot
	Compiling
	Compiled
	Failed
)

var stateNames = [...]string{"Cold", "Warm", "Hot", "Compiling", "Compiled", "Failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", s)
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, bool) {
	for i, n := range stateNames {
		if n == s {
			return State(i), true
		}
	}
	return Cold, false
}

const DefaultThreshold = 100

// Profile is the per-function JIT record.
type Profile struct {
	Calls   uint64
	State   State
	Native  uintptr
	Size    int
	Gen     uint64 // code cache generation of Native
	History []State
}

// Stats are engine-wide counters.
type Stats struct {
	TotalCompilations  uint64 `json:"total_compilations"`
	TotalExecutions    uint64 `json:"total_executions"`
	NativeExecutions   uint64 `json:"native_executions"`
	InterpExecutions   uint64 `json:"interp_executions"`
	FailedCompilations uint64 `json:"failed_compilations"`
}

// Profiler tracks call counts and tier state per function index. A VM owns one
// profiler; the mutex only guards readers such as the CLI chart and stats.
type Profiler struct {
	mu        sync.Mutex
	threshold uint64
	profiles  map[uint32]*Profile
	stats     Stats
}

func NewProfiler(threshold int) *Profiler {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Profiler{threshold: uint64(threshold), profiles: make(map[uint32]*Profile)}
}

func (p *Profiler) Threshold() uint64 { return p.threshold }

func (p *Profiler) get(fn uint32) *Profile {
	pr, ok := p.profiles[fn]
	if !ok {
		pr = &Profile{History: []State{Cold}}
		p.profiles[fn] = pr
	}
	return pr
}

func (p *Profiler) transition(fn uint32, pr *Profile, s State) {
	if pr.State == s {
		return
	}
	log.Trace(log.JITModule, "state", "fn", fn, "from", pr.State, "to", s, "calls", pr.Calls)
	pr.State = s
	pr.History = append(pr.History, s)
}

// RecordCall counts one call. Counting stops once the function is
// Compiling, Compiled or Failed.
func (p *Profiler) RecordCall(fn uint32) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.TotalExecutions++
	pr := p.get(fn)
	if pr.State >= Compiling {
		return pr.State
	}
	pr.Calls++
	switch {
	case pr.Calls >= p.threshold:
		p.transition(fn, pr, Hot)
	case pr.Calls >= p.threshold/2:
		p.transition(fn, pr, Warm)
	}
	return pr.State
}

// Seed raises a function's call count without counting executions, for
// profiles restored from storage. The state follows the thresholds.
func (p *Profiler) Seed(fn uint32, calls uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr := p.get(fn)
	if pr.State >= Compiling || calls <= pr.Calls {
		return
	}
	pr.Calls = calls
	switch {
	case calls >= p.threshold:
		p.transition(fn, pr, Hot)
	case calls >= p.threshold/2:
		p.transition(fn, pr, Warm)
	}
}

func (p *Profiler) ShouldCompile(fn uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr, ok := p.profiles[fn]
	return ok && pr.State == Hot
}

func (p *Profiler) BeginCompile(fn uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transition(fn, p.get(fn), Compiling)
}

func (p *Profiler) MarkCompiled(fn uint32, native uintptr, size int, gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr := p.get(fn)
	pr.Native, pr.Size, pr.Gen = native, size, gen
	p.stats.TotalCompilations++
	p.transition(fn, pr, Compiled)
}

func (p *Profiler) MarkFailed(fn uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.FailedCompilations++
	p.transition(fn, p.get(fn), Failed)
}

// Invalidate drops the native body and restarts profiling from Cold. It
// returns the dropped body's generation and size.
func (p *Profiler) Invalidate(fn uint32) (gen uint64, size int, had bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr := p.get(fn)
	had = pr.Native != 0
	gen, size = pr.Gen, pr.Size
	pr.Calls, pr.Native, pr.Size, pr.Gen = 0, 0, 0, 0
	p.transition(fn, pr, Cold)
	return gen, size, had
}

func (p *Profiler) countNative() {
	p.mu.Lock()
	p.stats.NativeExecutions++
	p.mu.Unlock()
}

func (p *Profiler) countInterp() {
	p.mu.Lock()
	p.stats.InterpExecutions++
	p.mu.Unlock()
}

// Profile returns a copy of the function's profile.
func (p *Profiler) Profile(fn uint32) Profile {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr := p.get(fn)
	cp := *pr
	cp.History = append([]State(nil), pr.History...)
	return cp
}

// Functions lists every profiled function index.
func (p *Profiler) Functions() []uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]uint32, 0, len(p.profiles))
	for fn := range p.profiles {
		out = append(out, fn)
	}
	return out
}

func (p *Profiler) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// nativeEntry returns the installed body for fn, if any.
func (p *Profiler) nativeEntry(fn uint32) (uintptr, uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr, ok := p.profiles[fn]
	if !ok || pr.State != Compiled || pr.Native == 0 {
		return 0, 0, false
	}
	return pr.Native, pr.Gen, true
}
