package gc

import (
	"time"

	"github.com/colorfulnotion/bpvm/log"
	"github.com/colorfulnotion/bpvm/value"
)

const MinThreshold = 1 << 20

// Stats summarises collector activity.
type Stats struct {
	Collections int    `json:"collections"`
	Freed       int    `json:"freed_objects"`
	LiveObjects int    `json:"live_objects"`
	LiveBytes   int    `json:"live_bytes"`
	PauseTotal  uint64 `json:"pause_ns"`
}

// Heap is a non-moving mark-sweep collector over every object it allocated.
// Collection runs only at interpreter safepoints; the heap is not safe for
// concurrent use.
type Heap struct {
	objects   []value.Object
	bytes     int
	threshold int
	stats     Stats
}

// NewHeap returns a heap that first collects after threshold bytes. A
// threshold below 1 MiB is raised to 1 MiB.
func NewHeap(threshold int) *Heap {
	if threshold < MinThreshold {
		threshold = MinThreshold
	}
	return &Heap{threshold: threshold}
}

func (h *Heap) track(o value.Object) value.Value {
	h.bytes += o.Resize()
	h.objects = append(h.objects, o)
	return value.FromObject(o)
}

func (h *Heap) NewStr(s string) value.Value {
	return h.track(&value.Str{S: s})
}

// NewArray allocates an array holding a copy of elems.
func (h *Heap) NewArray(elems []value.Value) value.Value {
	a := &value.Array{Elems: make([]value.Value, len(elems))}
	copy(a.Elems, elems)
	return h.track(a)
}

func (h *Heap) NewMap() value.Value {
	return h.track(value.NewMapObject())
}

func (h *Heap) NewStruct(typeID uint16, fields []value.Value) value.Value {
	s := &value.Struct{TypeID: typeID, Fields: make([]value.Value, len(fields))}
	copy(s.Fields, fields)
	return h.track(s)
}

// NewClass allocates an instance with fieldCount null fields; the first
// len(init) fields are copied from init.
func (h *Heap) NewClass(classID uint16, fieldCount int, init []value.Value) value.Value {
	c := &value.Class{ClassID: classID, Fields: make([]value.Value, fieldCount)}
	copy(c.Fields, init)
	return h.track(c)
}

// Bytes is the accounted size of everything allocated since the last
// collection plus what survived it.
func (h *Heap) Bytes() int { return h.bytes }

func (h *Heap) Objects() int { return len(h.objects) }

// Tracks reports whether v refers to an object that is still registered,
// that is, one no collection has freed.
func (h *Heap) Tracks(v value.Value) bool {
	if !v.Kind.IsHeap() || v.Ref == nil {
		return false
	}
	for _, o := range h.objects {
		if o == v.Ref {
			return true
		}
	}
	return false
}

func (h *Heap) Threshold() int { return h.threshold }

func (h *Heap) Stats() Stats { return h.stats }

func (h *Heap) ShouldCollect() bool { return h.bytes >= h.threshold }

// Collect marks everything reachable from roots, frees the rest and re-arms
// the threshold at twice the live size.
func (h *Heap) Collect(roots []value.Value) {
	start := time.Now()

	var stack []value.Object
	push := func(v value.Value) {
		if !v.Kind.IsHeap() || v.Ref == nil {
			return
		}
		hdr := v.Ref.Hdr()
		if hdr.Marked {
			return
		}
		hdr.Marked = true
		stack = append(stack, v.Ref)
	}
	for _, r := range roots {
		push(r)
	}
	for len(stack) > 0 {
		o := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		o.Trace(push)
	}

	live := h.objects[:0]
	liveBytes := 0
	freed := 0
	for _, o := range h.objects {
		hdr := o.Hdr()
		if !hdr.Marked {
			freed++
			continue
		}
		hdr.Marked = false
		liveBytes += o.Resize()
		live = append(live, o)
	}
	for i := len(live); i < len(h.objects); i++ {
		h.objects[i] = nil
	}
	h.objects = live
	h.bytes = liveBytes
	h.threshold = 2 * liveBytes
	if h.threshold < MinThreshold {
		h.threshold = MinThreshold
	}

	pause := time.Since(start)
	h.stats.Collections++
	h.stats.Freed += freed
	h.stats.LiveObjects = len(live)
	h.stats.LiveBytes = liveBytes
	h.stats.PauseTotal += uint64(pause.Nanoseconds())
	log.Debug(log.GCModule, "collect", "freed", freed, "live", len(live), "liveBytes", liveBytes, "next", h.threshold, "pause", pause)
}
