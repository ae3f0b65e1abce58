package builtins

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/colorfulnotion/bpvm/gc"
	"github.com/colorfulnotion/bpvm/log"
	"github.com/colorfulnotion/bpvm/value"
	"github.com/colorfulnotion/bpvm/vmerrors"
)

// Builtin ids as encoded in CALL_BUILTIN.
const (
	PRINT         = 1
	LEN           = 2
	SUBSTR        = 3
	READ_LINE     = 4
	TO_STR        = 5
	CLOCK_MS      = 6
	EXIT          = 7
	FILE_READ     = 8
	FILE_WRITE    = 9
	CHR           = 10
	ORD           = 11
	BASE64_ENCODE = 12
	BASE64_DECODE = 13
)

const (
	ABS   = 16
	MIN   = 17
	MAX   = 18
	POW   = 19
	SQRT  = 20
	FLOOR = 21
	CEIL  = 22
	ROUND = 23
)

const (
	STR_UPPER       = 24
	STR_LOWER       = 25
	STR_TRIM        = 26
	STR_STARTS_WITH = 27
	STR_ENDS_WITH   = 28
	STR_FIND        = 29
	STR_REPLACE     = 30
	STR_SPLIT       = 31
	STR_JOIN        = 32
	RAND            = 33
	RAND_RANGE      = 34
	RAND_SEED       = 35
	FILE_EXISTS     = 36
	FILE_DELETE     = 37
	FILE_APPEND     = 38
	SLEEP           = 39
	GETENV          = 40
)

// Dispatcher executes CALL_BUILTIN.
type Dispatcher interface {
	Call(id uint16, args []value.Value) (value.Value, error)
}

// ExitFunc receives the code passed to the exit builtin.
type ExitFunc func(code int)

type handler func(r *Registry, args []value.Value) (value.Value, error)

type entry struct {
	name string
	fn   handler
}

// Registry is the standard builtin table.
type Registry struct {
	heap   *gc.Heap
	stdout io.Writer
	stdin  *bufio.Reader
	exit   ExitFunc
	sleep  func(time.Duration)
	now    func() time.Time
	rand   uint64
	table  map[uint16]entry
	calls  map[uint16]uint64
}

type Option func(*Registry)

func WithStdout(w io.Writer) Option { return func(r *Registry) { r.stdout = w } }
func WithStdin(rd io.Reader) Option { return func(r *Registry) { r.stdin = bufio.NewReader(rd) } }
func WithExit(f ExitFunc) Option    { return func(r *Registry) { r.exit = f } }
func WithSleep(f func(time.Duration)) Option {
	return func(r *Registry) { r.sleep = f }
}
func WithClock(f func() time.Time) Option { return func(r *Registry) { r.now = f } }

func NewRegistry(heap *gc.Heap, opts ...Option) *Registry {
	r := &Registry{
		heap:   heap,
		stdout: os.Stdout,
		stdin:  bufio.NewReader(os.Stdin),
		sleep:  time.Sleep,
		now:    time.Now,
		rand:   1,
		calls:  make(map[uint16]uint64),
	}
	for _, o := range opts {
		o(r)
	}
	r.table = map[uint16]entry{
		PRINT:         {"print", biPrint},
		LEN:           {"len", biLen},
		SUBSTR:        {"substr", biSubstr},
		READ_LINE:     {"read_line", biReadLine},
		TO_STR:        {"to_str", biToStr},
		CLOCK_MS:      {"clock_ms", biClockMs},
		EXIT:          {"exit", biExit},
		FILE_READ:     {"file_read", biFileRead},
		FILE_WRITE:    {"file_write", biFileWrite},
		CHR:           {"chr", biChr},
		ORD:           {"ord", biOrd},
		BASE64_ENCODE: {"base64_encode", biBase64Encode},
		BASE64_DECODE: {"base64_decode", biBase64Decode},

		ABS:   {"abs", biAbs},
		MIN:   {"min", biMin},
		MAX:   {"max", biMax},
		POW:   {"pow", biPow},
		SQRT:  {"sqrt", biSqrt},
		FLOOR: {"floor", biIdentityInt("floor")},
		CEIL:  {"ceil", biIdentityInt("ceil")},
		ROUND: {"round", biIdentityInt("round")},

		STR_UPPER:       {"str_upper", biUpper},
		STR_LOWER:       {"str_lower", biLower},
		STR_TRIM:        {"str_trim", biTrim},
		STR_STARTS_WITH: {"starts_with", biStartsWith},
		STR_ENDS_WITH:   {"ends_with", biEndsWith},
		STR_FIND:        {"str_find", biFind},
		STR_REPLACE:     {"str_replace", biReplace},
		STR_SPLIT:       {"str_split", biSplit},
		STR_JOIN:        {"str_join", biJoin},
		RAND:            {"rand", biRand},
		RAND_RANGE:      {"rand_range", biRandRange},
		RAND_SEED:       {"rand_seed", biRandSeed},
		FILE_EXISTS:     {"file_exists", biFileExists},
		FILE_DELETE:     {"file_delete", biFileDelete},
		FILE_APPEND:     {"file_append", biFileAppend},
		SLEEP:           {"sleep", biSleep},
		GETENV:          {"getenv", biGetenv},
	}
	return r
}

// SetExit replaces the exit hook. The VM installs itself here.
func (r *Registry) SetExit(f ExitFunc) { r.exit = f }

func (r *Registry) Call(id uint16, args []value.Value) (value.Value, error) {
	e, ok := r.table[id]
	if !ok {
		return value.Null(), fmt.Errorf("builtin %d: %w", id, vmerrors.ErrEBadBuiltin)
	}
	r.calls[id]++
	log.Trace(log.VMModule, "builtin", "name", e.name, "argc", len(args))
	return e.fn(r, args)
}

// Name returns the builtin's name or "" for an unknown id.
func (r *Registry) Name(id uint16) string {
	return r.table[id].name
}

// Calls reports how often each builtin ran.
func (r *Registry) Calls() map[uint16]uint64 { return r.calls }

func (r *Registry) str(s string) value.Value { return r.heap.NewStr(s) }

// expect checks argc and argument kinds against a signature such as "(str,int)".
func expect(name string, args []value.Value, kinds ...value.Kind) error {
	ok := len(args) == len(kinds)
	for i := 0; ok && i < len(kinds); i++ {
		ok = args[i].Kind == kinds[i]
	}
	if ok {
		return nil
	}
	sig := "("
	for i, k := range kinds {
		if i > 0 {
			sig += ","
		}
		sig += k.String()
	}
	return fmt.Errorf("%s expects %s): %w", name, sig, vmerrors.ErrETypeMismatch)
}
