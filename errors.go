// Package filament implements the Filament kernel: a deterministic,
// event-sourced partitioning runtime that hosts sandboxed computational
// modules and drives them through atomic transactional cycles (Weaves).
package filament

import (
	"errors"
	"fmt"
)

// Code is a host-function return code. Non-negative values (PARK, YIELD) are
// control codes, not errors; negative values are faults returned to the
// caller within the current Weave.
type Code int32

const (
	CodePark       Code = 0  // module is done for this weave, nothing pending
	CodeYield      Code = 1  // module commits and asks to run again next cycle
	CodeErrPerm    Code = -1 // capability does not authorize the operation
	CodeErrNotFound Code = -2 // channel, blob, or kv key missing
	CodeErrIO      Code = -3 // ring full, channel backpressure
	CodeErrOOM     Code = -4 // memory quota exhausted or DMA pool unavailable
	CodeErrInvalid Code = -5 // malformed value, tag, or manifest field
	CodeErrTimeout Code = -6 // time or compute budget exceeded mid-weave
	CodeErrType    Code = -7 // schema mismatch at a channel or kv boundary
)

func (c Code) String() string {
	switch c {
	case CodePark:
		return "PARK"
	case CodeYield:
		return "YIELD"
	case CodeErrPerm:
		return "ERR_PERM"
	case CodeErrNotFound:
		return "ERR_NOT_FOUND"
	case CodeErrIO:
		return "ERR_IO"
	case CodeErrOOM:
		return "ERR_OOM"
	case CodeErrInvalid:
		return "ERR_INVALID"
	case CodeErrTimeout:
		return "ERR_TIMEOUT"
	case CodeErrType:
		return "ERR_TYPE"
	default:
		return fmt.Sprintf("CODE(%d)", int32(c))
	}
}

// Error is the kernel's structured error type: it names the operation, the
// process and weave it occurred in, and the fault code, and wraps any
// underlying cause.
type Error struct {
	Op        string // operation that failed, e.g. "blob_alloc", "channel_create"
	ProcessID uint64 // 0 if not applicable
	WeaveSeq  uint64 // weave sequence number, 0 if not applicable
	Code      Code
	Msg       string
	Inner     error
}

func (e *Error) Error() string {
	var parts []string
	if e.ProcessID != 0 {
		parts = append(parts, fmt.Sprintf("process=%d", e.ProcessID))
	}
	if e.WeaveSeq != 0 {
		parts = append(parts, fmt.Sprintf("weave=%d", e.WeaveSeq))
	}
	msg := e.Msg
	if msg == "" {
		msg = e.Code.String()
	}
	if len(parts) > 0 {
		return fmt.Sprintf("filament: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("filament: %s", msg)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// NewError builds a structured error carrying a fault code.
func NewError(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewProcessError builds a structured error scoped to a process.
func NewProcessError(op string, processID uint64, code Code, msg string) *Error {
	return &Error{Op: op, ProcessID: processID, Code: code, Msg: msg}
}

// NewWeaveError builds a structured error scoped to a process and weave.
func NewWeaveError(op string, processID, weaveSeq uint64, code Code, msg string) *Error {
	return &Error{Op: op, ProcessID: processID, WeaveSeq: weaveSeq, Code: code, Msg: msg}
}

// WrapError wraps inner with kernel context, preserving its code if it is
// already a structured *Error.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if fe, ok := inner.(*Error); ok {
		return &Error{
			Op:        op,
			ProcessID: fe.ProcessID,
			WeaveSeq:  fe.WeaveSeq,
			Code:      fe.Code,
			Msg:       fe.Msg,
			Inner:     fe.Inner,
		}
	}
	return &Error{Op: op, Code: CodeErrIO, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is a *Error carrying code.
func IsCode(err error, code Code) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}
