package ffi

import (
	"fmt"
	"os"
	"runtime"

	"github.com/colorfulnotion/bpvm/gc"
	"github.com/colorfulnotion/bpvm/log"
	"github.com/colorfulnotion/bpvm/value"
	"github.com/colorfulnotion/bpvm/vmerrors"
	"golang.org/x/exp/slices"
)

// Service executes FFI_CALL.
type Service interface {
	Invoke(externID uint16, args []value.Value) (value.Value, error)
}

// Func is a host function bound to an extern id.
type Func func(args []value.Value) (value.Value, error)

type extern struct {
	name string
	fn   Func
}

// Registry binds extern ids to Go functions.
type Registry struct {
	externs map[uint16]extern
}

func NewRegistry() *Registry {
	return &Registry{externs: make(map[uint16]extern)}
}

// Register binds id to fn, replacing any previous binding.
func (r *Registry) Register(id uint16, name string, fn Func) {
	r.externs[id] = extern{name: name, fn: fn}
}

func (r *Registry) Invoke(id uint16, args []value.Value) (value.Value, error) {
	e, ok := r.externs[id]
	if !ok {
		return value.Null(), fmt.Errorf("extern %d: %w", id, vmerrors.ErrEBadExtern)
	}
	log.Trace(log.VMModule, "ffi", "extern", e.name, "argc", len(args))
	return e.fn(args)
}

// Names lists the bound externs as "id:name" in id order.
func (r *Registry) Names() []string {
	ids := make([]int, 0, len(r.externs))
	for id := range r.externs {
		ids = append(ids, int(id))
	}
	slices.Sort(ids)
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = fmt.Sprintf("%d:%s", id, r.externs[uint16(id)].name)
	}
	return out
}

// Host externs registered by the CLI.
const (
	HOST_PID      = 1
	HOST_NUM_CPU  = 2
	HOST_HOSTNAME = 3
	HOST_ARGS     = 4
)

// NewHostRegistry returns a registry with the process-level host externs.
func NewHostRegistry(heap *gc.Heap, argv []string) *Registry {
	r := NewRegistry()
	r.Register(HOST_PID, "pid", func([]value.Value) (value.Value, error) {
		return value.Int(int64(os.Getpid())), nil
	})
	r.Register(HOST_NUM_CPU, "num_cpu", func([]value.Value) (value.Value, error) {
		return value.Int(int64(runtime.NumCPU())), nil
	})
	r.Register(HOST_HOSTNAME, "hostname", func([]value.Value) (value.Value, error) {
		name, err := os.Hostname()
		if err != nil {
			return heap.NewStr(""), nil
		}
		return heap.NewStr(name), nil
	})
	r.Register(HOST_ARGS, "args", func([]value.Value) (value.Value, error) {
		elems := make([]value.Value, len(argv))
		for i, a := range argv {
			elems[i] = heap.NewStr(a)
		}
		return heap.NewArray(elems), nil
	})
	return r
}
