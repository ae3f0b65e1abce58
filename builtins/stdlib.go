package builtins

import (
	"encoding/base64"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/colorfulnotion/bpvm/value"
	"github.com/colorfulnotion/bpvm/vmerrors"
)

var (
	kStr = value.KindStr
	kInt = value.KindInt
)

func biPrint(r *Registry, args []value.Value) (value.Value, error) {
	var sb strings.Builder
	for i, a := range args {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(a.String())
	}
	sb.WriteByte('\n')
	_, err := io.WriteString(r.stdout, sb.String())
	return value.Null(), err
}

func biLen(r *Registry, args []value.Value) (value.Value, error) {
	if len(args) == 1 {
		switch args[0].Kind {
		case value.KindArray:
			return value.Int(int64(args[0].Array().Len())), nil
		case value.KindMap:
			return value.Int(int64(args[0].Map().Len())), nil
		}
	}
	if err := expect("len", args, kStr); err != nil {
		return value.Null(), err
	}
	return value.Int(int64(len(args[0].Str()))), nil
}

func biSubstr(r *Registry, args []value.Value) (value.Value, error) {
	if err := expect("substr", args, kStr, kInt, kInt); err != nil {
		return value.Null(), err
	}
	s := args[0].Str()
	start, n := args[1].I, args[2].I
	if start < 0 {
		start = 0
	}
	if n < 0 {
		n = 0
	}
	if start > int64(len(s)) {
		start = int64(len(s))
	}
	if n > int64(len(s))-start {
		n = int64(len(s)) - start
	}
	return r.str(s[start : start+n]), nil
}

func biReadLine(r *Registry, args []value.Value) (value.Value, error) {
	line, err := r.stdin.ReadString('\n')
	if err != nil && line == "" {
		return r.str(""), nil
	}
	return r.str(strings.TrimRight(line, "\r\n")), nil
}

func biToStr(r *Registry, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Null(), fmt.Errorf("to_str expects (x): %w", vmerrors.ErrETypeMismatch)
	}
	if args[0].Kind == value.KindStr {
		return args[0], nil
	}
	return r.str(args[0].String()), nil
}

func biClockMs(r *Registry, args []value.Value) (value.Value, error) {
	return value.Int(r.now().UnixMilli()), nil
}

func biExit(r *Registry, args []value.Value) (value.Value, error) {
	if err := expect("exit", args, kInt); err != nil {
		return value.Null(), err
	}
	if r.exit != nil {
		r.exit(int(args[0].I))
	}
	return value.Null(), nil
}

func biFileRead(r *Registry, args []value.Value) (value.Value, error) {
	if err := expect("file_read", args, kStr); err != nil {
		return value.Null(), err
	}
	data, err := os.ReadFile(args[0].Str())
	if err != nil {
		return r.str(""), nil
	}
	return r.str(string(data)), nil
}

func writeFile(path, data string, flag int) bool {
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return false
	}
	n, err := f.WriteString(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err == nil && n == len(data)
}

func biFileWrite(r *Registry, args []value.Value) (value.Value, error) {
	if err := expect("file_write", args, kStr, kStr); err != nil {
		return value.Null(), err
	}
	return value.Bool(writeFile(args[0].Str(), args[1].Str(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC)), nil
}

func biFileAppend(r *Registry, args []value.Value) (value.Value, error) {
	if err := expect("file_append", args, kStr, kStr); err != nil {
		return value.Null(), err
	}
	return value.Bool(writeFile(args[0].Str(), args[1].Str(), os.O_CREATE|os.O_WRONLY|os.O_APPEND)), nil
}

func biFileExists(r *Registry, args []value.Value) (value.Value, error) {
	if err := expect("file_exists", args, kStr); err != nil {
		return value.Null(), err
	}
	_, err := os.Stat(args[0].Str())
	return value.Bool(err == nil), nil
}

func biFileDelete(r *Registry, args []value.Value) (value.Value, error) {
	if err := expect("file_delete", args, kStr); err != nil {
		return value.Null(), err
	}
	return value.Bool(os.Remove(args[0].Str()) == nil), nil
}

func biChr(r *Registry, args []value.Value) (value.Value, error) {
	if err := expect("chr", args, kInt); err != nil {
		return value.Null(), err
	}
	if args[0].I < 0 || args[0].I > 127 {
		return value.Null(), fmt.Errorf("chr expects 0-127, got %d: %w", args[0].I, vmerrors.ErrETypeMismatch)
	}
	return r.str(string(rune(args[0].I))), nil
}

func biOrd(r *Registry, args []value.Value) (value.Value, error) {
	if err := expect("ord", args, kStr); err != nil {
		return value.Null(), err
	}
	s := args[0].Str()
	if s == "" {
		return value.Null(), fmt.Errorf("ord expects non-empty string: %w", vmerrors.ErrETypeMismatch)
	}
	return value.Int(int64(s[0])), nil
}

func biBase64Encode(r *Registry, args []value.Value) (value.Value, error) {
	if err := expect("base64_encode", args, kStr); err != nil {
		return value.Null(), err
	}
	return r.str(base64.StdEncoding.EncodeToString([]byte(args[0].Str()))), nil
}

// Malformed input decodes as far as it is valid.
func biBase64Decode(r *Registry, args []value.Value) (value.Value, error) {
	if err := expect("base64_decode", args, kStr); err != nil {
		return value.Null(), err
	}
	src := args[0].Str()
	dst := make([]byte, base64.StdEncoding.DecodedLen(len(src)))
	n, _ := base64.StdEncoding.Decode(dst, []byte(src))
	return r.str(string(dst[:n])), nil
}

func biAbs(r *Registry, args []value.Value) (value.Value, error) {
	if err := expect("abs", args, kInt); err != nil {
		return value.Null(), err
	}
	if n := args[0].I; n < 0 {
		return value.Int(-n), nil
	}
	return args[0], nil
}

func biMin(r *Registry, args []value.Value) (value.Value, error) {
	if err := expect("min", args, kInt, kInt); err != nil {
		return value.Null(), err
	}
	return value.Int(min(args[0].I, args[1].I)), nil
}

func biMax(r *Registry, args []value.Value) (value.Value, error) {
	if err := expect("max", args, kInt, kInt); err != nil {
		return value.Null(), err
	}
	return value.Int(max(args[0].I, args[1].I)), nil
}

func biPow(r *Registry, args []value.Value) (value.Value, error) {
	if err := expect("pow", args, kInt, kInt); err != nil {
		return value.Null(), err
	}
	return value.Int(int64(math.Pow(float64(args[0].I), float64(args[1].I)))), nil
}

func biSqrt(r *Registry, args []value.Value) (value.Value, error) {
	if err := expect("sqrt", args, kInt); err != nil {
		return value.Null(), err
	}
	return value.Int(int64(math.Sqrt(float64(args[0].I)))), nil
}

// floor, ceil and round operate on ints and return them unchanged.
func biIdentityInt(name string) handler {
	return func(r *Registry, args []value.Value) (value.Value, error) {
		if err := expect(name, args, kInt); err != nil {
			return value.Null(), err
		}
		return args[0], nil
	}
}

func biUpper(r *Registry, args []value.Value) (value.Value, error) {
	if err := expect("str_upper", args, kStr); err != nil {
		return value.Null(), err
	}
	return r.str(asciiMap(args[0].Str(), 'a', 'z', -32)), nil
}

func biLower(r *Registry, args []value.Value) (value.Value, error) {
	if err := expect("str_lower", args, kStr); err != nil {
		return value.Null(), err
	}
	return r.str(asciiMap(args[0].Str(), 'A', 'Z', 32)), nil
}

// asciiMap shifts bytes in [lo,hi] by delta and leaves the rest untouched.
func asciiMap(s string, lo, hi byte, delta int) string {
	b := []byte(s)
	for i, c := range b {
		if c >= lo && c <= hi {
			b[i] = byte(int(c) + delta)
		}
	}
	return string(b)
}

func biTrim(r *Registry, args []value.Value) (value.Value, error) {
	if err := expect("str_trim", args, kStr); err != nil {
		return value.Null(), err
	}
	return r.str(strings.Trim(args[0].Str(), " \t\n\v\f\r")), nil
}

func biStartsWith(r *Registry, args []value.Value) (value.Value, error) {
	if err := expect("starts_with", args, kStr, kStr); err != nil {
		return value.Null(), err
	}
	return value.Bool(strings.HasPrefix(args[0].Str(), args[1].Str())), nil
}

func biEndsWith(r *Registry, args []value.Value) (value.Value, error) {
	if err := expect("ends_with", args, kStr, kStr); err != nil {
		return value.Null(), err
	}
	return value.Bool(strings.HasSuffix(args[0].Str(), args[1].Str())), nil
}

func biFind(r *Registry, args []value.Value) (value.Value, error) {
	if err := expect("str_find", args, kStr, kStr); err != nil {
		return value.Null(), err
	}
	return value.Int(int64(strings.Index(args[0].Str(), args[1].Str()))), nil
}

// str_replace replaces the first occurrence only.
func biReplace(r *Registry, args []value.Value) (value.Value, error) {
	if err := expect("str_replace", args, kStr, kStr, kStr); err != nil {
		return value.Null(), err
	}
	if args[1].Str() == "" {
		return args[0], nil
	}
	if !strings.Contains(args[0].Str(), args[1].Str()) {
		return args[0], nil
	}
	return r.str(strings.Replace(args[0].Str(), args[1].Str(), args[2].Str(), 1)), nil
}

func biSplit(r *Registry, args []value.Value) (value.Value, error) {
	if err := expect("str_split", args, kStr, kStr); err != nil {
		return value.Null(), err
	}
	var parts []string
	if sep := args[1].Str(); sep == "" {
		for i := 0; i < len(args[0].Str()); i++ {
			parts = append(parts, args[0].Str()[i:i+1])
		}
	} else {
		parts = strings.Split(args[0].Str(), sep)
	}
	elems := make([]value.Value, len(parts))
	for i, p := range parts {
		elems[i] = r.str(p)
	}
	return r.heap.NewArray(elems), nil
}

func biJoin(r *Registry, args []value.Value) (value.Value, error) {
	if err := expect("str_join", args, value.KindArray, kStr); err != nil {
		return value.Null(), err
	}
	elems := args[0].Array().Elems
	parts := make([]string, len(elems))
	for i, e := range elems {
		if e.Kind != value.KindStr {
			return value.Null(), fmt.Errorf("str_join: element %d is %s: %w", i, e.Kind, vmerrors.ErrETypeMismatch)
		}
		parts[i] = e.Str()
	}
	return r.str(strings.Join(parts, args[1].Str())), nil
}

// The generator is the classic ANSI C LCG so seeded sequences are stable
// across platforms.
func (r *Registry) nextRand() int64 {
	r.rand = r.rand*1103515245 + 12345
	return int64((r.rand / 65536) % 32768)
}

func biRand(r *Registry, args []value.Value) (value.Value, error) {
	return value.Int(r.nextRand()), nil
}

func biRandRange(r *Registry, args []value.Value) (value.Value, error) {
	if err := expect("rand_range", args, kInt, kInt); err != nil {
		return value.Null(), err
	}
	lo, hi := args[0].I, args[1].I
	if lo >= hi {
		return value.Int(lo), nil
	}
	r.rand = r.rand*1103515245 + 12345
	return value.Int(lo + int64((r.rand/65536)%uint64(hi-lo))), nil
}

func biRandSeed(r *Registry, args []value.Value) (value.Value, error) {
	if err := expect("rand_seed", args, kInt); err != nil {
		return value.Null(), err
	}
	r.rand = uint64(args[0].I)
	return value.Null(), nil
}

func biSleep(r *Registry, args []value.Value) (value.Value, error) {
	if err := expect("sleep", args, kInt); err != nil {
		return value.Null(), err
	}
	if ms := args[0].I; ms > 0 {
		r.sleep(time.Duration(ms) * time.Millisecond)
	}
	return value.Null(), nil
}

func biGetenv(r *Registry, args []value.Value) (value.Value, error) {
	if err := expect("getenv", args, kStr); err != nil {
		return value.Null(), err
	}
	return r.str(os.Getenv(args[0].Str())), nil
}
