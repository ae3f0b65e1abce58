package vmerrors

import (
	"errors"
	"strings"
)

// Loader (L) Errors
var (
	ErrLBadMagic           = errors.New("L1|BadMagic: Module does not start with a known magic.")
	ErrLUnsupportedVersion = errors.New("L2|UnsupportedVersion: Module version is not supported.")
	ErrLTruncated          = errors.New("L3|Truncated: Module ends before a declared section is complete.")
	ErrLBadEntry           = errors.New("L4|BadEntry: Entry function index is outside the function table.")
	ErrLBadFormat          = errors.New("L5|BadFormat: Function carries an unknown bytecode format tag.")
)

// Engine (E) Errors
var (
	ErrEBadFunctionIndex    = errors.New("E1|BadFunctionIndex: Call targets a function index outside the module.")
	ErrEBadStringConst      = errors.New("E2|BadStringConst: String constant id is outside the function or module pool.")
	ErrEStackOverflow       = errors.New("E3|StackOverflow: Call frame stack exceeded its maximum depth.")
	ErrEHandlerOverflow     = errors.New("E4|HandlerOverflow: Too many nested try blocks.")
	ErrETypeMismatch        = errors.New("E5|TypeMismatch: Opcode received an operand with an unexpected tag.")
	ErrEDivisionByZero      = errors.New("E6|DivisionByZero: Integer division or modulo by zero.")
	ErrEIndexOutOfBounds    = errors.New("E7|IndexOutOfBounds: Array index out of bounds.")
	ErrEKeyNotFound         = errors.New("E8|KeyNotFound: Key not found in map.")
	ErrEBadField            = errors.New("E9|BadField: Field index is outside the record.")
	ErrEBadBuiltin          = errors.New("E10|BadBuiltin: Builtin id is not registered.")
	ErrEBadExtern           = errors.New("E11|BadExtern: External function id is not registered.")
	ErrEUnhandledException  = errors.New("E12|UnhandledException: Exception thrown with no active handler.")
	ErrEBadOpcode           = errors.New("E13|BadOpcode: Unknown opcode.")
	ErrENotRegisterFormat   = errors.New("E14|NotRegisterFormat: Entry function is not register bytecode.")
	ErrEBadMethod           = errors.New("E15|BadMethod: Method id is not defined for the receiver class.")
	ErrERegisterFileExhaust = errors.New("E16|RegisterFileExhausted: Register file cannot grow any further.")
)

// JIT (J) Errors
var (
	ErrJUnsupportedFormat = errors.New("J1|UnsupportedFormat: Function is not register bytecode.")
	ErrJUnsupportedOpcode = errors.New("J2|UnsupportedOpcode: Opcode has no native translation.")
	ErrJRel8Overflow      = errors.New("J3|Rel8Overflow: Short jump displacement does not fit in 8 bits.")
	ErrJRel32Overflow     = errors.New("J4|Rel32Overflow: Jump displacement does not fit in 32 bits.")
	ErrJUndefinedLabel    = errors.New("J5|UndefinedLabel: Jump references a label that was never placed.")
	ErrJCodeCacheFull     = errors.New("J6|CodeCacheFull: Code cache has no room for the native body.")
	ErrJUnsupported       = errors.New("J7|Unsupported: Native execution is not supported on this platform.")
	ErrJKindMismatch      = errors.New("J8|KindMismatch: Register kinds cannot be proven identical to the interpreter.")
	ErrJBadJumpTarget     = errors.New("J9|BadJumpTarget: Jump target is not an instruction boundary inside the body.")
	ErrJTruncated         = errors.New("J10|Truncated: Instruction operands run past the end of the body.")
)

// GetErrorName extracts the error name from the error message.
func GetErrorName(err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") {
		return errStr
	}
	parts := strings.SplitN(errStr, "|", 2)
	nameParts := strings.SplitN(parts[1], ":", 2)
	return strings.TrimSpace(nameParts[0])
}

func GetErrorNames(errs []error) []string {
	errStrs := make([]string, len(errs))
	for i, err := range errs {
		errStrs[i] = GetErrorName(err)
	}
	return errStrs
}

// GetErrorCode extracts the error code from the error message.
func GetErrorCode(err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") {
		return ""
	}
	parts := strings.SplitN(errStr, "|", 2)
	return strings.TrimSpace(parts[0])
}

// GetErrorCodeWithName returns the error code and name in the format "Code_ErrorName".
func GetErrorCodeWithName(err error) string {
	code := GetErrorCode(err)
	name := GetErrorName(err)
	if code == "" || name == "" {
		return ""
	}
	return code + "_" + name
}

// GetErrorDesc extracts the error description from the error message.
func GetErrorDesc(err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()
	parts := strings.SplitN(errStr, ":", 2)
	if len(parts) < 2 {
		return "DESC NOT SET"
	}
	return strings.TrimSpace(parts[1])
}

// Sentinel returns the first registered sentinel wrapped by err, or nil.
func Sentinel(err error) error {
	for _, s := range all {
		if errors.Is(err, s) {
			return s
		}
	}
	return nil
}

var all = []error{
	ErrLBadMagic, ErrLUnsupportedVersion, ErrLTruncated, ErrLBadEntry, ErrLBadFormat,
	ErrEBadFunctionIndex, ErrEBadStringConst, ErrEStackOverflow, ErrEHandlerOverflow,
	ErrETypeMismatch, ErrEDivisionByZero, ErrEIndexOutOfBounds, ErrEKeyNotFound,
	ErrEBadField, ErrEBadBuiltin, ErrEBadExtern, ErrEUnhandledException, ErrEBadOpcode,
	ErrENotRegisterFormat, ErrEBadMethod, ErrERegisterFileExhaust,
	ErrJUnsupportedFormat, ErrJUnsupportedOpcode, ErrJRel8Overflow, ErrJRel32Overflow,
	ErrJUndefinedLabel, ErrJCodeCacheFull, ErrJUnsupported, ErrJKindMismatch,
	ErrJBadJumpTarget, ErrJTruncated,
}
