package filament

import (
	"errors"
	"testing"
)

func TestStructuredError(t *testing.T) {
	err := NewError("blob_alloc", CodeErrOOM, "quota exhausted")

	if err.Op != "blob_alloc" {
		t.Errorf("Expected Op=blob_alloc, got %s", err.Op)
	}
	if err.Code != CodeErrOOM {
		t.Errorf("Expected Code=CodeErrOOM, got %s", err.Code)
	}

	expected := "filament: quota exhausted"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestProcessAndWeaveError(t *testing.T) {
	err := NewProcessError("channel_create", 42, CodeErrType, "schema mismatch")
	if err.ProcessID != 42 {
		t.Errorf("Expected ProcessID=42, got %d", err.ProcessID)
	}
	want := "filament: schema mismatch (process=42)"
	if err.Error() != want {
		t.Errorf("Expected error message %q, got %q", want, err.Error())
	}

	werr := NewWeaveError("weave_commit", 7, 99, CodeErrTimeout, "budget exceeded")
	if werr.ProcessID != 7 || werr.WeaveSeq != 99 {
		t.Errorf("Expected ProcessID=7 WeaveSeq=99, got %d/%d", werr.ProcessID, werr.WeaveSeq)
	}
}

func TestWrapError(t *testing.T) {
	inner := errors.New("short read")
	err := WrapError("staging_merge", inner)

	if err.Code != CodeErrIO {
		t.Errorf("Expected Code=CodeErrIO, got %s", err.Code)
	}
	if !errors.Is(err, inner) {
		t.Error("Expected wrapped error to satisfy errors.Is for the inner cause")
	}
}

func TestWrapErrorPreservesStructuredCode(t *testing.T) {
	inner := NewError("channel_write", CodeErrInvalid, "oversize payload")
	err := WrapError("process_tick", inner)

	if err.Code != CodeErrInvalid {
		t.Errorf("Expected wrapped Code=CodeErrInvalid, got %s", err.Code)
	}
	if err.Op != "process_tick" {
		t.Errorf("Expected Op=process_tick, got %s", err.Op)
	}
}

func TestWrapErrorNil(t *testing.T) {
	if WrapError("noop", nil) != nil {
		t.Error("Expected WrapError(nil) to return nil")
	}
}

func TestIsCode(t *testing.T) {
	err := NewError("timer_set", CodeErrTimeout, "deadline in the past")

	if !IsCode(err, CodeErrTimeout) {
		t.Error("IsCode should return true for matching code")
	}
	if IsCode(err, CodeErrIO) {
		t.Error("IsCode should return false for non-matching code")
	}
	if IsCode(nil, CodeErrTimeout) {
		t.Error("IsCode should return false for nil error")
	}
}

func TestErrorIsComparesByCode(t *testing.T) {
	a := NewError("op_a", CodeErrPerm, "denied")
	b := NewError("op_b", CodeErrPerm, "also denied")
	c := NewError("op_c", CodeErrNotFound, "missing")

	if !errors.Is(a, b) {
		t.Error("Expected two *Error values with the same Code to match via errors.Is")
	}
	if errors.Is(a, c) {
		t.Error("Expected *Error values with different Codes not to match")
	}
}

func TestCodeString(t *testing.T) {
	cases := map[Code]string{
		CodePark:       "PARK",
		CodeYield:      "YIELD",
		CodeErrPerm:    "ERR_PERM",
		CodeErrNotFound: "ERR_NOT_FOUND",
		CodeErrIO:      "ERR_IO",
		CodeErrOOM:     "ERR_OOM",
		CodeErrInvalid: "ERR_INVALID",
		CodeErrTimeout: "ERR_TIMEOUT",
		CodeErrType:    "ERR_TYPE",
	}
	for code, want := range cases {
		if got := code.String(); got != want {
			t.Errorf("Code(%d).String() = %q, want %q", int32(code), got, want)
		}
	}
}
